package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	calls []int
	fail  map[int]bool
}

func (r *recorder) generator(prefix string) Generator {
	return func(ctx context.Context, s Scene) (*Blob, error) {
		r.mu.Lock()
		r.calls = append(r.calls, s.Index)
		fail := r.fail[s.Index]
		r.mu.Unlock()
		if fail {
			return nil, fmt.Errorf("%s %d failed", prefix, s.Index)
		}
		return &Blob{Key: fmt.Sprintf("%s-%d", prefix, s.Index), MIME: "application/octet-stream"}, nil
	}
}

func scenes(n int) []Scene {
	out := make([]Scene, n)
	for i := range out {
		out[i] = Scene{Index: i, Prompt: fmt.Sprintf("prompt %d", i), Narration: fmt.Sprintf("narration %d", i)}
	}
	return out
}

func TestRunPrimaryOnlyWithOneFailure(t *testing.T) {
	rec := &recorder{fail: map[int]bool{1: true}}
	run := New(Options{}).Run(context.Background(), scenes(3), rec.generator("img"), nil, nil)

	want := []AssetStatus{StatusDone, StatusFailed, StatusDone}
	for i, s := range run.Scenes {
		if s.PrimaryStatus != want[i] {
			t.Fatalf("scene %d primary = %s, want %s", i, s.PrimaryStatus, want[i])
		}
		if s.SecondaryStatus != StatusSkipped {
			t.Fatalf("scene %d secondary = %s, want skipped", i, s.SecondaryStatus)
		}
	}
	if run.FailureCount != 1 {
		t.Fatalf("FailureCount = %d, want 1", run.FailureCount)
	}
	if run.OverallStatus != RunCompleted {
		t.Fatalf("OverallStatus = %s, want completed", run.OverallStatus)
	}
	if fmt.Sprint(rec.calls) != "[0 1 2]" {
		t.Fatalf("calls = %v, want [0 1 2]", rec.calls)
	}
	if run.Scenes[1].PrimaryAsset != nil {
		t.Fatalf("failed scene must not carry an asset")
	}
	if run.Scenes[1].PrimaryError == "" {
		t.Fatalf("failed scene should record the error")
	}
}

func TestRunPartialFailureKeepsSuccessfulAssets(t *testing.T) {
	fail := map[int]bool{0: true, 3: true, 4: true}
	rec := &recorder{fail: fail}
	run := New(Options{}).Run(context.Background(), scenes(6), rec.generator("img"), (&recorder{}).generator("tts"), nil)

	if run.OverallStatus != RunCompleted {
		t.Fatalf("OverallStatus = %s", run.OverallStatus)
	}
	if run.FailureCount < len(fail) {
		t.Fatalf("FailureCount = %d, want >= %d", run.FailureCount, len(fail))
	}
	for _, s := range run.Scenes {
		if fail[s.Index] {
			continue
		}
		if s.PrimaryAsset == nil || s.PrimaryAsset.Key != fmt.Sprintf("img-%d", s.Index) {
			t.Fatalf("scene %d lost its asset: %+v", s.Index, s.PrimaryAsset)
		}
	}
}

func TestRunProgressOrdering(t *testing.T) {
	var snaps [][]Scene
	New(Options{}).Run(context.Background(), scenes(3), (&recorder{}).generator("img"), (&recorder{}).generator("tts"), func(s []Scene) {
		snaps = append(snaps, s)
	})

	// two transitions per scene per phase
	if len(snaps) != 12 {
		t.Fatalf("progress callbacks = %d, want 12", len(snaps))
	}
	terminal := func(st AssetStatus) bool { return st == StatusDone || st == StatusFailed }
	for _, snap := range snaps {
		for i := 0; i+1 < len(snap); i++ {
			if snap[i+1].PrimaryStatus != StatusPending && !terminal(snap[i].PrimaryStatus) {
				t.Fatalf("scene %d left pending before scene %d finished: %+v", i+1, i, snap)
			}
			if snap[i+1].SecondaryStatus != StatusPending && !terminal(snap[i].SecondaryStatus) {
				t.Fatalf("secondary of scene %d started before scene %d finished", i+1, i)
			}
		}
		for _, s := range snap {
			if s.SecondaryStatus != StatusPending && !terminal(snap[len(snap)-1].PrimaryStatus) {
				t.Fatalf("phase 2 started before phase 1 completed")
			}
		}
	}
	first := snaps[0]
	if first[0].PrimaryStatus != StatusInFlight || first[1].PrimaryStatus != StatusPending {
		t.Fatalf("first snapshot = %+v", first)
	}
}

func TestProgressSnapshotsAreCopies(t *testing.T) {
	var snaps [][]Scene
	New(Options{}).Run(context.Background(), scenes(2), (&recorder{}).generator("img"), nil, func(s []Scene) {
		snaps = append(snaps, s)
	})
	if snaps[0][0].PrimaryStatus != StatusInFlight {
		t.Fatalf("earlier snapshot was mutated: %s", snaps[0][0].PrimaryStatus)
	}
}

func TestRunDoesNotMutateInput(t *testing.T) {
	in := scenes(2)
	New(Options{}).Run(context.Background(), in, (&recorder{}).generator("img"), nil, nil)
	if in[0].PrimaryStatus != "" || in[0].PrimaryAsset != nil {
		t.Fatalf("input scene mutated: %+v", in[0])
	}
}

func TestRunOrdersByIndex(t *testing.T) {
	rec := &recorder{}
	in := []Scene{{Index: 2, Prompt: "c"}, {Index: 0, Prompt: "a"}, {Index: 1, Prompt: "b"}}
	run := New(Options{}).Run(context.Background(), in, rec.generator("img"), nil, nil)
	if fmt.Sprint(rec.calls) != "[0 1 2]" {
		t.Fatalf("calls = %v", rec.calls)
	}
	if run.Scenes[0].Prompt != "a" {
		t.Fatalf("scenes not ordered by index")
	}
}

func TestNarrationSkip(t *testing.T) {
	in := scenes(3)
	in[1].Narration = ""
	tts := &recorder{}
	run := New(Options{}).Run(context.Background(), in, (&recorder{}).generator("img"), tts.generator("tts"), nil)

	if run.Scenes[1].SecondaryStatus != StatusSkipped {
		t.Fatalf("scene 1 secondary = %s, want skipped", run.Scenes[1].SecondaryStatus)
	}
	if fmt.Sprint(tts.calls) != "[0 2]" {
		t.Fatalf("tts calls = %v, want [0 2]", tts.calls)
	}
	if run.Scenes[0].SecondaryStatus != StatusDone || run.Scenes[0].SecondaryAsset.Key != "tts-0" {
		t.Fatalf("scene 0 secondary = %+v", run.Scenes[0])
	}
}

func TestSecondaryFailureCountsOncePerScene(t *testing.T) {
	img := &recorder{fail: map[int]bool{0: true}}
	tts := &recorder{fail: map[int]bool{0: true, 1: true}}
	run := New(Options{}).Run(context.Background(), scenes(3), img.generator("img"), tts.generator("tts"), nil)
	if run.FailureCount != 2 {
		t.Fatalf("FailureCount = %d, want 2", run.FailureCount)
	}
}

func TestEmptyBlobIsFailure(t *testing.T) {
	gen := func(ctx context.Context, s Scene) (*Blob, error) { return nil, nil }
	run := New(Options{}).Run(context.Background(), scenes(1), gen, nil, nil)
	if run.Scenes[0].PrimaryStatus != StatusFailed {
		t.Fatalf("status = %s, want failed", run.Scenes[0].PrimaryStatus)
	}
	if run.Scenes[0].PrimaryError != ErrEmptyAsset.Error() {
		t.Fatalf("error = %q", run.Scenes[0].PrimaryError)
	}
}

func TestGeneratorPanicIsFailure(t *testing.T) {
	gen := func(ctx context.Context, s Scene) (*Blob, error) {
		if s.Index == 0 {
			panic("boom")
		}
		return &Blob{Key: "ok"}, nil
	}
	run := New(Options{}).Run(context.Background(), scenes(2), gen, nil, nil)
	if run.Scenes[0].PrimaryStatus != StatusFailed || run.Scenes[1].PrimaryStatus != StatusDone {
		t.Fatalf("unexpected statuses: %+v", run.Scenes)
	}
}

func TestCallTimeoutIsFailure(t *testing.T) {
	gen := func(ctx context.Context, s Scene) (*Blob, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	run := New(Options{CallTimeout: 10 * time.Millisecond}).Run(context.Background(), scenes(2), gen, nil, nil)
	if run.FailureCount != 2 || run.OverallStatus != RunCompleted {
		t.Fatalf("run = %+v", run)
	}
	if run.Cancelled {
		t.Fatalf("a per-call timeout must not cancel the run")
	}
}

func TestCancellationLeavesRemainingPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := func(c context.Context, s Scene) (*Blob, error) {
		if s.Index == 1 {
			cancel()
		}
		return &Blob{Key: fmt.Sprint(s.Index)}, nil
	}
	tts := &recorder{}
	run := New(Options{}).Run(ctx, scenes(4), gen, tts.generator("tts"), nil)

	if !run.Cancelled {
		t.Fatalf("expected cancelled run")
	}
	if run.OverallStatus != RunCompleted {
		t.Fatalf("OverallStatus = %s", run.OverallStatus)
	}
	if run.Scenes[1].PrimaryStatus != StatusDone {
		t.Fatalf("in-flight scene should finish, got %s", run.Scenes[1].PrimaryStatus)
	}
	for _, i := range []int{2, 3} {
		if run.Scenes[i].PrimaryStatus != StatusPending {
			t.Fatalf("scene %d = %s, want pending", i, run.Scenes[i].PrimaryStatus)
		}
	}
	if len(tts.calls) != 0 {
		t.Fatalf("secondary phase should not start after cancel")
	}
}

func TestStatusOnlyAdvances(t *testing.T) {
	var seen []RunStatus
	p := New(Options{OnStatus: func(s RunStatus) { seen = append(seen, s) }})
	p.Run(context.Background(), scenes(2), (&recorder{}).generator("img"), (&recorder{}).generator("tts"), nil)
	if fmt.Sprint(seen) != "[generating_primary generating_secondary completed]" {
		t.Fatalf("statuses = %v", seen)
	}

	seen = nil
	p.Run(context.Background(), scenes(2), (&recorder{}).generator("img"), nil, nil)
	if fmt.Sprint(seen) != "[generating_primary completed]" {
		t.Fatalf("statuses without secondary = %v", seen)
	}
}

func TestRunEmptySceneList(t *testing.T) {
	run := New(Options{}).Run(context.Background(), nil, (&recorder{}).generator("img"), nil, nil)
	if run.OverallStatus != RunCompleted || run.FailureCount != 0 || len(run.Scenes) != 0 {
		t.Fatalf("run = %+v", run)
	}
}

func TestRegenerate(t *testing.T) {
	p := New(Options{})
	failed := Scene{Index: 4, Prompt: "p", PrimaryStatus: StatusFailed, PrimaryError: "x"}

	var calls int
	ok := func(ctx context.Context, s Scene) (*Blob, error) {
		calls++
		return &Blob{Key: "fresh"}, nil
	}
	got := p.Regenerate(context.Background(), failed, ok)
	if got.PrimaryStatus != StatusDone || got.PrimaryAsset.Key != "fresh" || got.PrimaryError != "" {
		t.Fatalf("Regenerate success = %+v", got)
	}
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
	if failed.PrimaryStatus != StatusFailed {
		t.Fatalf("input scene mutated")
	}

	bad := func(ctx context.Context, s Scene) (*Blob, error) { return nil, errors.New("still down") }
	got = p.Regenerate(context.Background(), got, bad)
	if got.PrimaryStatus != StatusFailed || got.PrimaryAsset != nil {
		t.Fatalf("Regenerate failure = %+v", got)
	}
}

func TestRegenerateSecondary(t *testing.T) {
	p := New(Options{})
	tts := &recorder{}
	got := p.RegenerateSecondary(context.Background(), Scene{Index: 0, Narration: "hello"}, tts.generator("tts"))
	if got.SecondaryStatus != StatusDone || got.SecondaryAsset.Key != "tts-0" {
		t.Fatalf("RegenerateSecondary = %+v", got)
	}
	got = p.RegenerateSecondary(context.Background(), Scene{Index: 1}, tts.generator("tts"))
	if got.SecondaryStatus != StatusSkipped || len(tts.calls) != 1 {
		t.Fatalf("empty narration should skip, got %+v calls %v", got, tts.calls)
	}
}
