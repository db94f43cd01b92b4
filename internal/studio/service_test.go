package studio

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"academy/internal/domain"
	"academy/internal/pipeline"
	"academy/internal/providers/image"
	"academy/internal/providers/speech"
	"academy/internal/storage"
)

type stubImages struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
	block chan struct{}
}

func (s *stubImages) Generate(ctx context.Context, req image.Request) (image.Asset, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return image.Asset{}, ctx.Err()
		}
	}
	s.mu.Lock()
	s.calls = append(s.calls, req.Prompt)
	failing := s.fail[req.Prompt]
	s.mu.Unlock()
	if failing {
		return image.Asset{}, errors.New("render failed")
	}
	return image.Asset{Data: []byte("png:" + req.Prompt), MIME: "image/png"}, nil
}

type stubVoice struct{}

func (stubVoice) Synthesize(ctx context.Context, text string) (speech.Asset, error) {
	return speech.Asset{Data: []byte("mp3:" + text), MIME: "audio/mpeg"}, nil
}

type stubChat struct {
	content string
	err     error
}

func (c stubChat) ChatJSON(ctx context.Context, system, user string) (string, error) {
	return c.content, c.err
}

func (c stubChat) HasCredentials() bool { return true }

func newTestService(t *testing.T, images image.Generator, voice speech.Generator, chat ChatClient) *Service {
	t.Helper()
	blobs, err := storage.NewFileStore(t.TempDir(), "http://cdn.test/static")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	svc := New(images, voice, chat, blobs, Options{MaxScenes: 4, CallTimeout: time.Second})
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

func threeScenes() []ScriptScene {
	return []ScriptScene{
		{Prompt: "sunrise", Narration: "첫 장면"},
		{Prompt: "market", Narration: "둘째 장면"},
		{Prompt: "night", Narration: "셋째 장면"},
	}
}

func TestStartGeneratesAllScenes(t *testing.T) {
	images := &stubImages{}
	svc := newTestService(t, images, stubVoice{}, nil)

	started, err := svc.Start(context.Background(), "u1", StartRequest{Topic: "시장", Scenes: threeScenes(), WithAudio: true})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if started.ID == "" || started.Status != pipeline.RunNotStarted {
		t.Fatalf("unexpected initial snapshot: %+v", started)
	}
	svc.Wait()

	run, err := svc.Get("u1", started.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if run.Status != pipeline.RunCompleted || run.FailureCount != 0 || run.Cancelled {
		t.Fatalf("run = %+v", run)
	}
	for i, sc := range run.Scenes {
		if sc.PrimaryStatus != pipeline.StatusDone || sc.SecondaryStatus != pipeline.StatusDone {
			t.Fatalf("scene %d statuses = %s/%s", i, sc.PrimaryStatus, sc.SecondaryStatus)
		}
		if !strings.HasPrefix(sc.PrimaryAsset.URL, "http://cdn.test/static/studio/"+run.ID+"/") {
			t.Fatalf("scene %d url = %s", i, sc.PrimaryAsset.URL)
		}
	}
	if got := strings.Join(images.calls, ","); got != "sunrise,market,night" {
		t.Fatalf("image order = %s", got)
	}
}

func TestStartWithoutAudioSkipsNarration(t *testing.T) {
	svc := newTestService(t, &stubImages{}, nil, nil)
	started, err := svc.Start(context.Background(), "u1", StartRequest{Scenes: threeScenes(), WithAudio: true})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc.Wait()
	run, _ := svc.Get("u1", started.ID)
	if run.WithAudio {
		t.Fatalf("audio should be disabled without a speech generator")
	}
	for _, sc := range run.Scenes {
		if sc.SecondaryStatus != pipeline.StatusSkipped {
			t.Fatalf("secondary = %s, want skipped", sc.SecondaryStatus)
		}
	}
}

func TestStartValidation(t *testing.T) {
	svc := newTestService(t, &stubImages{}, nil, nil)
	tests := []struct {
		name string
		req  StartRequest
	}{
		{name: "no topic and no scenes", req: StartRequest{}},
		{name: "too many scenes", req: StartRequest{Scenes: make([]ScriptScene, 5)}},
		{name: "blank prompt", req: StartRequest{Scenes: []ScriptScene{{Prompt: "  "}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Start(context.Background(), "u1", tc.req); !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestStartFromTopicUsesScript(t *testing.T) {
	chat := stubChat{content: "```json\n{\"scenes\":[{\"prompt\":\"a\",\"narration\":\"가\"},{\"prompt\":\"b\",\"narration\":\"나\"}]}\n```"}
	svc := newTestService(t, &stubImages{}, nil, chat)
	started, err := svc.Start(context.Background(), "u1", StartRequest{Topic: "여행", SceneCount: 2})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(started.Scenes) != 2 || started.Scenes[1].Prompt != "b" {
		t.Fatalf("scenes = %+v", started.Scenes)
	}
}

func TestScriptProviderFailure(t *testing.T) {
	svc := newTestService(t, &stubImages{}, nil, stubChat{err: errors.New("upstream down")})
	if _, err := svc.Script(context.Background(), "여행", 3); !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("err = %v, want ErrProviderFailure", err)
	}
	svc = newTestService(t, &stubImages{}, nil, stubChat{content: `{"scenes":[]}`})
	if _, err := svc.Script(context.Background(), "여행", 3); !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("empty script err = %v", err)
	}
}

func TestSyntheticScriptClampsCount(t *testing.T) {
	svc := newTestService(t, &stubImages{}, nil, nil)
	scenes, err := svc.Script(context.Background(), "여행", 99)
	if err != nil {
		t.Fatalf("Script: %v", err)
	}
	if len(scenes) != 4 {
		t.Fatalf("scenes = %d, want clamp to 4", len(scenes))
	}
	if got := ClampSceneCount(0, 4); got != 1 {
		t.Fatalf("ClampSceneCount(0) = %d", got)
	}
}

func TestGetHidesOtherUsersRuns(t *testing.T) {
	svc := newTestService(t, &stubImages{}, nil, nil)
	started, err := svc.Start(context.Background(), "owner", StartRequest{Scenes: threeScenes()})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc.Wait()
	if _, err := svc.Get("intruder", started.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := svc.Get("owner", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// gatedImages fails the fail prompt at once and holds the hold prompt until
// release is closed.
type gatedImages struct {
	fail    string
	hold    string
	release chan struct{}
}

func (g *gatedImages) Generate(ctx context.Context, req image.Request) (image.Asset, error) {
	switch req.Prompt {
	case g.fail:
		return image.Asset{}, errors.New("render failed")
	case g.hold:
		select {
		case <-g.release:
		case <-ctx.Done():
			return image.Asset{}, ctx.Err()
		}
	}
	return image.Asset{Data: []byte("png:" + req.Prompt), MIME: "image/png"}, nil
}

func TestSnapshotFailureCountWhileGenerating(t *testing.T) {
	images := &gatedImages{fail: "sunrise", hold: "market", release: make(chan struct{})}
	svc := newTestService(t, images, nil, nil)
	started, err := svc.Start(context.Background(), "u1", StartRequest{Scenes: threeScenes()})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var run Run
	deadline := time.Now().Add(2 * time.Second)
	for {
		run, err = svc.Get("u1", started.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if run.Scenes[1].PrimaryStatus == pipeline.StatusInFlight {
			break
		}
		if time.Now().After(deadline) {
			close(images.release)
			t.Fatalf("scene 2 never started: %+v", run)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if run.Status != pipeline.RunGeneratingPrimary {
		t.Fatalf("status = %s, want %s", run.Status, pipeline.RunGeneratingPrimary)
	}
	if run.Scenes[0].PrimaryStatus != pipeline.StatusFailed || run.FailureCount != 1 {
		t.Fatalf("mid-run failure count = %d, scene 1 = %s", run.FailureCount, run.Scenes[0].PrimaryStatus)
	}
	if _, err := svc.Regenerate(context.Background(), "u1", started.ID, 0, KindImage); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("regenerate mid-run err = %v, want ErrConflict", err)
	}

	close(images.release)
	svc.Wait()
	run, _ = svc.Get("u1", started.ID)
	if run.Status != pipeline.RunCompleted || run.FailureCount != 1 || run.Scenes[2].PrimaryStatus != pipeline.StatusDone {
		t.Fatalf("final run = %+v", run)
	}
}

func TestRegenerateFailedScene(t *testing.T) {
	images := &stubImages{fail: map[string]bool{"market": true}}
	svc := newTestService(t, images, stubVoice{}, nil)
	started, err := svc.Start(context.Background(), "u1", StartRequest{Scenes: threeScenes()})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc.Wait()

	run, _ := svc.Get("u1", started.ID)
	if run.FailureCount != 1 || run.Scenes[1].PrimaryStatus != pipeline.StatusFailed {
		t.Fatalf("run = %+v", run)
	}

	images.mu.Lock()
	images.fail = nil
	images.mu.Unlock()

	scene, err := svc.Regenerate(context.Background(), "u1", started.ID, 1, KindImage)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if scene.PrimaryStatus != pipeline.StatusDone || scene.PrimaryError != "" {
		t.Fatalf("scene = %+v", scene)
	}
	run, _ = svc.Get("u1", started.ID)
	if run.FailureCount != 0 {
		t.Fatalf("failure count = %d, want 0", run.FailureCount)
	}

	if _, err := svc.Regenerate(context.Background(), "u1", started.ID, 9, KindImage); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown scene err = %v", err)
	}
	if _, err := svc.Regenerate(context.Background(), "u1", started.ID, 0, KindAudio); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("audio on silent run err = %v", err)
	}
	if _, err := svc.Regenerate(context.Background(), "u1", started.ID, 0, Kind("video")); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("unknown kind err = %v", err)
	}
}

func TestRegenerateWhileRunningConflicts(t *testing.T) {
	images := &stubImages{block: make(chan struct{})}
	svc := newTestService(t, images, nil, nil)
	started, err := svc.Start(context.Background(), "u1", StartRequest{Scenes: threeScenes()})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := svc.Regenerate(context.Background(), "u1", started.ID, 0, KindImage); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if _, _, err := svc.Export(context.Background(), "u1", started.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("export err = %v, want ErrConflict", err)
	}
	close(images.block)
	svc.Wait()
}

func TestCancelStopsRun(t *testing.T) {
	images := &stubImages{block: make(chan struct{})}
	svc := newTestService(t, images, nil, nil)
	started, err := svc.Start(context.Background(), "u1", StartRequest{Scenes: threeScenes()})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := svc.Cancel("u1", started.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	svc.Wait()

	run, _ := svc.Get("u1", started.ID)
	if !run.Cancelled || run.Status != pipeline.RunCompleted {
		t.Fatalf("run = %+v", run)
	}
	if run.Scenes[2].PrimaryStatus != pipeline.StatusPending {
		t.Fatalf("last scene = %s, want pending", run.Scenes[2].PrimaryStatus)
	}
}

func TestExportBundlesAssets(t *testing.T) {
	svc := newTestService(t, &stubImages{}, stubVoice{}, nil)
	started, err := svc.Start(context.Background(), "u1", StartRequest{Topic: "시장", Scenes: threeScenes(), WithAudio: true})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc.Wait()

	data, name, err := svc.Export(context.Background(), "u1", started.ID)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if name != "studio-"+started.ID+".zip" {
		t.Fatalf("filename = %s", name)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	want := "scene-01-image.png,scene-01-audio.mp3,scene-02-image.png,scene-02-audio.mp3,scene-03-image.png,scene-03-audio.mp3,script.txt"
	if got := strings.Join(names, ","); got != want {
		t.Fatalf("entries = %s", got)
	}
}

func TestExportWithoutAssets(t *testing.T) {
	images := &stubImages{fail: map[string]bool{"sunrise": true}}
	svc := newTestService(t, images, nil, nil)
	started, err := svc.Start(context.Background(), "u1", StartRequest{Scenes: threeScenes()[:1]})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc.Wait()
	if _, _, err := svc.Export(context.Background(), "u1", started.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
