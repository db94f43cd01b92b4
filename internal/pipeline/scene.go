package pipeline

import "context"

// AssetStatus is the lifecycle of one asset slot of a scene.
type AssetStatus string

const (
	StatusPending  AssetStatus = "pending"
	StatusInFlight AssetStatus = "in_flight"
	StatusDone     AssetStatus = "done"
	StatusFailed   AssetStatus = "failed"
	StatusSkipped  AssetStatus = "skipped"
)

// RunStatus is the overall progress of a generation run. It only advances.
type RunStatus string

const (
	RunNotStarted          RunStatus = "not_started"
	RunGeneratingPrimary   RunStatus = "generating_primary"
	RunGeneratingSecondary RunStatus = "generating_secondary"
	RunCompleted           RunStatus = "completed"
)

var runOrder = map[RunStatus]int{
	RunNotStarted:          0,
	RunGeneratingPrimary:   1,
	RunGeneratingSecondary: 2,
	RunCompleted:           3,
}

// Blob references a generated asset persisted elsewhere.
type Blob struct {
	Key  string `json:"key"`
	MIME string `json:"mime"`
	Size int64  `json:"size"`
	URL  string `json:"url,omitempty"`
}

// Scene is one unit of a multi-scene run.
type Scene struct {
	Index           int         `json:"index"`
	Prompt          string      `json:"prompt"`
	Narration       string      `json:"narration"`
	PrimaryAsset    *Blob       `json:"primary_asset,omitempty"`
	SecondaryAsset  *Blob       `json:"secondary_asset,omitempty"`
	PrimaryStatus   AssetStatus `json:"primary_status"`
	SecondaryStatus AssetStatus `json:"secondary_status"`
	PrimaryError    string      `json:"primary_error,omitempty"`
	SecondaryError  string      `json:"secondary_error,omitempty"`
}

// Failed reports whether either asset of the scene failed.
func (s Scene) Failed() bool {
	return s.PrimaryStatus == StatusFailed || s.SecondaryStatus == StatusFailed
}

func (s Scene) clone() Scene {
	out := s
	if s.PrimaryAsset != nil {
		b := *s.PrimaryAsset
		out.PrimaryAsset = &b
	}
	if s.SecondaryAsset != nil {
		b := *s.SecondaryAsset
		out.SecondaryAsset = &b
	}
	return out
}

// CloneScenes deep-copies a scene list.
func CloneScenes(scenes []Scene) []Scene {
	out := make([]Scene, len(scenes))
	for i, s := range scenes {
		out[i] = s.clone()
	}
	return out
}

// GenerationRun is the result of Run.
type GenerationRun struct {
	Scenes        []Scene   `json:"scenes"`
	OverallStatus RunStatus `json:"overall_status"`
	FailureCount  int       `json:"failure_count"`
	// Cancelled is set when the context ended before every scene was visited.
	Cancelled bool `json:"cancelled,omitempty"`
}

// Generator produces one asset for a scene. The primary generator reads
// Scene.Prompt, the secondary one Scene.Narration. Returning an error or a
// nil/empty blob marks the asset failed.
type Generator func(ctx context.Context, scene Scene) (*Blob, error)

// ProgressFunc observes a snapshot of the scene list after every transition.
// The snapshot is a copy and may be retained.
type ProgressFunc func(scenes []Scene)

// StatusFunc observes overall status changes.
type StatusFunc func(status RunStatus)
