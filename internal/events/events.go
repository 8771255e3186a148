// Package events defines the payloads the scheduler emits toward a front
// end, and the Sink interface it emits them through.
package events

// PreloadProgress is the preload-progress event payload.
type PreloadProgress struct {
	Stage            string   `json:"stage"`
	StageCompleted   int64    `json:"stage_progress_completed"`
	StageTotal       int64    `json:"stage_progress_total"`
	OverallCompleted int64    `json:"overall_completed"`
	OverallTotal     int64    `json:"overall_total"`
	Progress         int      `json:"progress"`
	Conversions      int64    `json:"conversions"`
	Thumbnails       int64    `json:"thumbnails"`
	Metadata         int64    `json:"metadata"`
	ActiveActions    []string `json:"active_actions"`
}

// HashProgress is the hash-progress event payload.
type HashProgress struct {
	Completed int64 `json:"completed"`
	Total     int64 `json:"total"`
}

// Sink is anything that can receive room237's two event types. The
// transport that fans these out to real clients is deliberately a thin
// collaborator; Sink exists so the scheduler is constructible and testable
// without one.
type Sink interface {
	EmitPreloadProgress(PreloadProgress)
	EmitHashProgress(HashProgress)
}

// NullSink discards every event; it is the default for tests and for
// embedding room237 without a live transport.
type NullSink struct{}

func (NullSink) EmitPreloadProgress(PreloadProgress) {}
func (NullSink) EmitHashProgress(HashProgress)       {}
