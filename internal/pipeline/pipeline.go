// Package pipeline generates the assets of an ordered scene list strictly in
// scene order: every primary asset first, then every secondary asset. A
// failed asset never aborts the batch; a run always ends Completed and
// reports partial failure through FailureCount.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// ErrEmptyAsset is recorded when a generator returns no blob and no error.
var ErrEmptyAsset = errors.New("pipeline: generator returned no asset")

// Options configures a Pipeline.
type Options struct {
	// CallTimeout bounds every generator call; zero disables it.
	CallTimeout time.Duration
	OnStatus    StatusFunc
	Logger      *zerolog.Logger
}

// Pipeline runs generation batches. It holds no state between runs and is
// safe to reuse.
type Pipeline struct {
	callTimeout time.Duration
	onStatus    StatusFunc
	logger      zerolog.Logger
}

// New constructs a pipeline.
func New(opts Options) *Pipeline {
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Pipeline{callTimeout: opts.CallTimeout, onStatus: opts.OnStatus, logger: logger}
}

type run struct {
	p          *Pipeline
	scenes     []Scene
	status     RunStatus
	onProgress ProgressFunc
	onStatus   StatusFunc
	cancelled  bool
}

// Run generates assets for scenes. The input slice is not modified; the
// pipeline works on its own copy ordered by Scene.Index. A nil secondary
// generator marks every secondary slot Skipped. Cancelling ctx stops the run
// between scenes, leaving unvisited scenes Pending.
func (p *Pipeline) Run(ctx context.Context, scenes []Scene, primary, secondary Generator, onProgress ProgressFunc) GenerationRun {
	return p.RunWithStatus(ctx, scenes, primary, secondary, onProgress, nil)
}

// RunWithStatus is Run with an extra per-run status observer, called in
// addition to Options.OnStatus.
func (p *Pipeline) RunWithStatus(ctx context.Context, scenes []Scene, primary, secondary Generator, onProgress ProgressFunc, onStatus StatusFunc) GenerationRun {
	r := &run{
		p:          p,
		scenes:     CloneScenes(scenes),
		status:     RunNotStarted,
		onProgress: onProgress,
		onStatus:   onStatus,
	}
	sort.SliceStable(r.scenes, func(i, j int) bool { return r.scenes[i].Index < r.scenes[j].Index })
	for i := range r.scenes {
		r.scenes[i].PrimaryStatus = StatusPending
		r.scenes[i].PrimaryAsset = nil
		r.scenes[i].PrimaryError = ""
		r.scenes[i].SecondaryAsset = nil
		r.scenes[i].SecondaryError = ""
		if secondary == nil {
			r.scenes[i].SecondaryStatus = StatusSkipped
		} else {
			r.scenes[i].SecondaryStatus = StatusPending
		}
	}

	r.advance(RunGeneratingPrimary)
	r.phase(ctx, primary, primarySlot)

	if secondary != nil && !r.cancelled {
		r.advance(RunGeneratingSecondary)
		r.phase(ctx, secondary, secondarySlot)
	}

	r.advance(RunCompleted)
	res := GenerationRun{
		Scenes:        CloneScenes(r.scenes),
		OverallStatus: r.status,
		FailureCount:  CountFailures(r.scenes),
		Cancelled:     r.cancelled,
	}
	p.logger.Info().
		Int("scenes", len(res.Scenes)).
		Int("failures", res.FailureCount).
		Bool("cancelled", res.Cancelled).
		Msg("pipeline: run completed")
	return res
}

// Regenerate re-runs the primary generator for one scene, independent of any
// run. The returned scene is Done or Failed.
func (p *Pipeline) Regenerate(ctx context.Context, scene Scene, primary Generator) Scene {
	s := scene.clone()
	primarySlot.set(&s, StatusInFlight, nil, "")
	blob, err := p.invoke(ctx, primary, s, primarySlot)
	primarySlot.finish(&s, blob, err)
	return s
}

// RegenerateSecondary is Regenerate for the secondary asset. A scene with
// empty narration comes back Skipped without calling the generator.
func (p *Pipeline) RegenerateSecondary(ctx context.Context, scene Scene, secondary Generator) Scene {
	s := scene.clone()
	if s.Narration == "" || secondary == nil {
		secondarySlot.set(&s, StatusSkipped, nil, "")
		return s
	}
	secondarySlot.set(&s, StatusInFlight, nil, "")
	blob, err := p.invoke(ctx, secondary, s, secondarySlot)
	secondarySlot.finish(&s, blob, err)
	return s
}

func (r *run) phase(ctx context.Context, gen Generator, sl slot) {
	for i := range r.scenes {
		if ctx.Err() != nil {
			r.cancelled = true
			r.p.logger.Warn().Int("scene", r.scenes[i].Index).Str("slot", sl.name).Msg("pipeline: run cancelled")
			return
		}
		s := &r.scenes[i]
		if sl.name == secondarySlot.name && s.Narration == "" {
			sl.set(s, StatusSkipped, nil, "")
			r.progress()
			continue
		}
		sl.set(s, StatusInFlight, nil, "")
		r.progress()

		blob, err := r.p.invoke(ctx, gen, *s, sl)
		sl.finish(s, blob, err)
		r.progress()
	}
}

func (p *Pipeline) invoke(ctx context.Context, gen Generator, scene Scene, sl slot) (blob *Blob, err error) {
	if gen == nil {
		return nil, errors.New("pipeline: generator not configured")
	}
	callCtx := ctx
	if p.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.callTimeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			blob, err = nil, fmt.Errorf("pipeline: generator panic: %v", rec)
		}
	}()
	blob, err = gen(callCtx, scene.clone())
	if err == nil && (blob == nil || blob.Key == "") {
		err = ErrEmptyAsset
	}
	if err != nil {
		p.logger.Warn().Err(err).Int("scene", scene.Index).Str("slot", sl.name).Msg("pipeline: asset generation failed")
		return nil, err
	}
	return blob, nil
}

func (r *run) advance(next RunStatus) {
	if runOrder[next] <= runOrder[r.status] {
		return
	}
	r.status = next
	if r.p.onStatus != nil {
		r.p.onStatus(next)
	}
	if r.onStatus != nil {
		r.onStatus(next)
	}
}

func (r *run) progress() {
	if r.onProgress != nil {
		r.onProgress(CloneScenes(r.scenes))
	}
}

// CountFailures returns the number of scenes with at least one failed asset.
func CountFailures(scenes []Scene) int {
	n := 0
	for _, s := range scenes {
		if s.Failed() {
			n++
		}
	}
	return n
}

// slot abstracts over the primary and secondary asset fields of a scene.
type slot struct {
	name string
	set  func(s *Scene, status AssetStatus, blob *Blob, errMsg string)
}

func (sl slot) finish(s *Scene, blob *Blob, err error) {
	if err != nil {
		sl.set(s, StatusFailed, nil, err.Error())
		return
	}
	sl.set(s, StatusDone, blob, "")
}

var (
	primarySlot = slot{name: "primary", set: func(s *Scene, status AssetStatus, blob *Blob, errMsg string) {
		s.PrimaryStatus, s.PrimaryAsset, s.PrimaryError = status, blob, errMsg
	}}
	secondarySlot = slot{name: "secondary", set: func(s *Scene, status AssetStatus, blob *Blob, errMsg string) {
		s.SecondaryStatus, s.SecondaryAsset, s.SecondaryError = status, blob, errMsg
	}}
)
