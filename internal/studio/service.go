// Package studio runs multi-scene content generation: it drafts a script,
// renders every scene image and narration through the sequential pipeline
// in the background, and keeps the latest snapshot of each run in memory.
package studio

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"academy/internal/domain"
	"academy/internal/metrics"
	"academy/internal/pipeline"
	"academy/internal/providers/image"
	"academy/internal/providers/speech"
	"academy/internal/storage"
)

// BlobStore persists generated assets.
type BlobStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
	URL(key string) string
}

// Kind selects which asset of a scene to regenerate.
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// StartRequest starts a run from explicit scenes, or from a topic when
// Scenes is empty.
type StartRequest struct {
	Topic      string        `json:"topic"`
	SceneCount int           `json:"scene_count"`
	Scenes     []ScriptScene `json:"scenes"`
	WithAudio  bool          `json:"with_audio"`
}

// Run is a point-in-time snapshot of a generation run.
type Run struct {
	ID           string             `json:"id"`
	OwnerID      string             `json:"owner_id"`
	Topic        string             `json:"topic,omitempty"`
	WithAudio    bool               `json:"with_audio"`
	Status       pipeline.RunStatus `json:"status"`
	Scenes       []pipeline.Scene   `json:"scenes"`
	FailureCount int                `json:"failure_count"`
	Cancelled    bool               `json:"cancelled"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// Done reports whether the background run has finished.
func (r Run) Done() bool {
	return r.Status == pipeline.RunCompleted
}

// Options configures a Service.
type Options struct {
	MaxScenes   int
	CallTimeout time.Duration
	// Retention drops finished runs older than this from the registry.
	Retention time.Duration
	Logger    *zerolog.Logger
}

type record struct {
	mu           sync.Mutex
	run          Run
	cancel       context.CancelFunc
	regenerating bool
}

func (rec *record) snapshot() Run {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	r := rec.run
	r.Scenes = pipeline.CloneScenes(rec.run.Scenes)
	return r
}

// Service owns the run registry.
type Service struct {
	pipeline  *pipeline.Pipeline
	images    image.Generator
	voice     speech.Generator
	chat      ChatClient
	blobs     BlobStore
	maxScenes int
	retention time.Duration
	logger    zerolog.Logger
	now       func() time.Time

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	runs    map[string]*record
}

// New wires the studio. voice may be nil, in which case runs never produce
// narration audio.
func New(images image.Generator, voice speech.Generator, chat ChatClient, blobs BlobStore, opts Options) *Service {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	maxScenes := opts.MaxScenes
	if maxScenes <= 0 {
		maxScenes = 10
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Service{
		pipeline:  pipeline.New(pipeline.Options{CallTimeout: opts.CallTimeout, Logger: &logger}),
		images:    images,
		voice:     voice,
		chat:      chat,
		blobs:     blobs,
		maxScenes: maxScenes,
		retention: retention,
		logger:    logger,
		now:       time.Now,
		baseCtx:   ctx,
		stop:      stop,
		runs:      map[string]*record{},
	}
}

// MaxScenes returns the configured scene cap.
func (s *Service) MaxScenes() int {
	return s.maxScenes
}

// Start registers a run and generates it in the background. The returned
// snapshot is taken before generation begins.
func (s *Service) Start(ctx context.Context, userID string, req StartRequest) (Run, error) {
	if s.images == nil {
		return Run{}, fmt.Errorf("studio: image generator not configured: %w", domain.ErrProviderFailure)
	}
	script := req.Scenes
	if len(script) == 0 {
		var err error
		if script, err = s.Script(ctx, req.Topic, req.SceneCount); err != nil {
			return Run{}, err
		}
	}
	if len(script) > s.maxScenes {
		return Run{}, fmt.Errorf("studio: at most %d scenes allowed: %w", s.maxScenes, domain.ErrInvalidInput)
	}

	scenes := make([]pipeline.Scene, 0, len(script))
	for i, sc := range script {
		prompt := strings.TrimSpace(sc.Prompt)
		if prompt == "" {
			return Run{}, fmt.Errorf("studio: scene %d has no prompt: %w", i+1, domain.ErrInvalidInput)
		}
		secondary := pipeline.StatusPending
		if !req.WithAudio || s.voice == nil {
			secondary = pipeline.StatusSkipped
		}
		scenes = append(scenes, pipeline.Scene{
			Index:           i,
			Prompt:          prompt,
			Narration:       strings.TrimSpace(sc.Narration),
			PrimaryStatus:   pipeline.StatusPending,
			SecondaryStatus: secondary,
		})
	}

	now := s.now().UTC()
	runCtx, cancel := context.WithCancel(s.baseCtx)
	rec := &record{
		run: Run{
			ID:        uuid.NewString(),
			OwnerID:   userID,
			Topic:     strings.TrimSpace(req.Topic),
			WithAudio: req.WithAudio && s.voice != nil,
			Status:    pipeline.RunNotStarted,
			Scenes:    scenes,
			CreatedAt: now,
			UpdatedAt: now,
		},
		cancel: cancel,
	}
	snapshot := rec.snapshot()

	s.mu.Lock()
	s.pruneLocked(now)
	s.runs[snapshot.ID] = rec
	s.mu.Unlock()

	var secondary pipeline.Generator
	if snapshot.WithAudio {
		secondary = s.audioGenerator(snapshot.ID)
	}

	s.wg.Add(1)
	metrics.GenerationRunsActive.Inc()
	go func() {
		defer s.wg.Done()
		defer metrics.GenerationRunsActive.Dec()
		defer cancel()
		s.execute(runCtx, rec, scenes, secondary)
	}()

	s.logger.Info().Str("run_id", snapshot.ID).Str("user_id", userID).Int("scenes", len(scenes)).Bool("audio", snapshot.WithAudio).Msg("studio: run started")
	return snapshot, nil
}

func (s *Service) execute(ctx context.Context, rec *record, scenes []pipeline.Scene, secondary pipeline.Generator) {
	runID := rec.snapshot().ID
	onProgress := func(snap []pipeline.Scene) {
		rec.mu.Lock()
		rec.run.Scenes = snap
		rec.run.FailureCount = pipeline.CountFailures(snap)
		rec.run.UpdatedAt = s.now().UTC()
		rec.mu.Unlock()
	}
	// Completed is published below together with the final scenes, so
	// Regenerate cannot start before the result lands.
	onStatus := func(status pipeline.RunStatus) {
		if status == pipeline.RunCompleted {
			return
		}
		rec.mu.Lock()
		rec.run.Status = status
		rec.run.UpdatedAt = s.now().UTC()
		rec.mu.Unlock()
	}

	result := s.pipeline.RunWithStatus(ctx, scenes, s.imageGenerator(runID), secondary, onProgress, onStatus)

	rec.mu.Lock()
	rec.run.Scenes = result.Scenes
	rec.run.Status = result.OverallStatus
	rec.run.FailureCount = result.FailureCount
	rec.run.Cancelled = result.Cancelled
	rec.run.UpdatedAt = s.now().UTC()
	rec.mu.Unlock()

	for _, sc := range result.Scenes {
		metrics.RecordSceneOutcome("image", string(sc.PrimaryStatus))
		metrics.RecordSceneOutcome("audio", string(sc.SecondaryStatus))
	}
	s.logger.Info().Str("run_id", runID).Int("failures", result.FailureCount).Bool("cancelled", result.Cancelled).Msg("studio: run finished")
}

func (s *Service) imageGenerator(runID string) pipeline.Generator {
	return func(ctx context.Context, scene pipeline.Scene) (*pipeline.Blob, error) {
		start := time.Now()
		asset, err := s.images.Generate(ctx, image.Request{Prompt: scene.Prompt, RequestID: runID})
		metrics.RecordProviderCall("image", time.Since(start), err)
		if err != nil {
			return nil, err
		}
		return s.persist(ctx, runID, scene.Index, KindImage, asset.Data, asset.MIME)
	}
}

func (s *Service) audioGenerator(runID string) pipeline.Generator {
	return func(ctx context.Context, scene pipeline.Scene) (*pipeline.Blob, error) {
		start := time.Now()
		asset, err := s.voice.Synthesize(ctx, scene.Narration)
		metrics.RecordProviderCall("speech", time.Since(start), err)
		if err != nil {
			return nil, err
		}
		return s.persist(ctx, runID, scene.Index, KindAudio, asset.Data, asset.MIME)
	}
}

func (s *Service) persist(ctx context.Context, runID string, index int, kind Kind, data []byte, mime string) (*pipeline.Blob, error) {
	if len(data) == 0 {
		return nil, pipeline.ErrEmptyAsset
	}
	key := fmt.Sprintf("studio/%s/scene-%02d-%s%s", runID, index+1, kind, storage.ExtensionForMIME(mime))
	key, err := s.blobs.Write(ctx, key, data)
	if err != nil {
		return nil, err
	}
	return &pipeline.Blob{Key: key, MIME: mime, Size: int64(len(data)), URL: s.blobs.URL(key)}, nil
}

// lookup returns the owner's run record. Runs of other users are reported
// as missing.
func (s *Service) lookup(userID, runID string) (*record, error) {
	s.mu.RLock()
	rec, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("studio: run %s: %w", runID, domain.ErrNotFound)
	}
	rec.mu.Lock()
	owner := rec.run.OwnerID
	rec.mu.Unlock()
	if owner != userID {
		return nil, fmt.Errorf("studio: run %s: %w", runID, domain.ErrNotFound)
	}
	return rec, nil
}

// Get returns the latest snapshot of a run.
func (s *Service) Get(userID, runID string) (Run, error) {
	rec, err := s.lookup(userID, runID)
	if err != nil {
		return Run{}, err
	}
	return rec.snapshot(), nil
}

// Cancel stops an in-flight run between scenes. Finished runs are
// returned unchanged.
func (s *Service) Cancel(userID, runID string) (Run, error) {
	rec, err := s.lookup(userID, runID)
	if err != nil {
		return Run{}, err
	}
	rec.cancel()
	s.logger.Info().Str("run_id", runID).Msg("studio: cancel requested")
	return rec.snapshot(), nil
}

// Regenerate re-renders one scene asset of a finished run and returns the
// updated scene.
func (s *Service) Regenerate(ctx context.Context, userID, runID string, index int, kind Kind) (pipeline.Scene, error) {
	rec, err := s.lookup(userID, runID)
	if err != nil {
		return pipeline.Scene{}, err
	}

	rec.mu.Lock()
	if rec.run.Status != pipeline.RunCompleted {
		rec.mu.Unlock()
		return pipeline.Scene{}, fmt.Errorf("studio: run %s still generating: %w", runID, domain.ErrConflict)
	}
	if rec.regenerating {
		rec.mu.Unlock()
		return pipeline.Scene{}, fmt.Errorf("studio: run %s already regenerating: %w", runID, domain.ErrConflict)
	}
	pos := -1
	for i, sc := range rec.run.Scenes {
		if sc.Index == index {
			pos = i
			break
		}
	}
	if pos < 0 {
		rec.mu.Unlock()
		return pipeline.Scene{}, fmt.Errorf("studio: run %s scene %d: %w", runID, index, domain.ErrNotFound)
	}
	if kind == KindAudio && !rec.run.WithAudio {
		rec.mu.Unlock()
		return pipeline.Scene{}, fmt.Errorf("studio: run %s has no narration audio: %w", runID, domain.ErrInvalidInput)
	}
	scene := pipeline.CloneScenes(rec.run.Scenes[pos : pos+1])[0]
	rec.regenerating = true
	rec.mu.Unlock()

	var updated pipeline.Scene
	switch kind {
	case KindImage:
		updated = s.pipeline.Regenerate(ctx, scene, s.imageGenerator(runID))
	case KindAudio:
		updated = s.pipeline.RegenerateSecondary(ctx, scene, s.audioGenerator(runID))
	default:
		rec.mu.Lock()
		rec.regenerating = false
		rec.mu.Unlock()
		return pipeline.Scene{}, fmt.Errorf("studio: unknown asset kind %q: %w", kind, domain.ErrInvalidInput)
	}

	rec.mu.Lock()
	rec.run.Scenes[pos] = updated
	rec.run.FailureCount = pipeline.CountFailures(rec.run.Scenes)
	rec.run.UpdatedAt = s.now().UTC()
	rec.regenerating = false
	rec.mu.Unlock()

	s.logger.Info().Str("run_id", runID).Int("scene", index).Str("kind", string(kind)).Msg("studio: scene regenerated")
	return pipeline.CloneScenes([]pipeline.Scene{updated})[0], nil
}

// pruneLocked drops finished runs past the retention window. Callers hold
// s.mu.
func (s *Service) pruneLocked(now time.Time) {
	for id, rec := range s.runs {
		rec.mu.Lock()
		expired := rec.run.Status == pipeline.RunCompleted && now.Sub(rec.run.UpdatedAt) > s.retention
		rec.mu.Unlock()
		if expired {
			delete(s.runs, id)
		}
	}
}

// Wait blocks until every background run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close cancels all in-flight runs and waits for them to stop or for ctx
// to expire.
func (s *Service) Close(ctx context.Context) error {
	s.stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
