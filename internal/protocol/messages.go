package protocol

import "time"

// Status of a document's audio generation, derived from clip count vs the
// number of narratable sections.
type Status string

const (
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// AudioSnapshot is the response shape shared by the trigger and status
// endpoints. Segments holds whatever clips exist right now; the list only
// ever grows until Status is completed.
type AudioSnapshot struct {
	Title    string   `json:"title"`
	Segments []string `json:"segments"`
	Status   Status   `json:"status"`
	Progress int      `json:"progress"`
	Total    int      `json:"total"`
	Error    string   `json:"error,omitempty"`
}

// ProgressEvent is broadcast on the bus as a synthesis run advances.
type ProgressEvent struct {
	DOI       string    `json:"doi"`
	RunID     string    `json:"run_id"`
	Kind      string    `json:"kind"` // clip, completed, failed
	Index     int       `json:"index,omitempty"`
	URL       string    `json:"url,omitempty"`
	Progress  int       `json:"progress"`
	Total     int       `json:"total"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventKindClip      = "clip"
	EventKindCompleted = "completed"
	EventKindFailed    = "failed"

	SubjectAudioProgress = "papercast.audio.progress"
)
