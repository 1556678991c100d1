package jobs

import "time"

// State is a job lifecycle phase.
type State string

const (
	StateQueued      State = "queued"
	StateDownloading State = "downloading"
	StateRendering   State = "rendering"
	StateUploading   State = "uploading"
	StateFinalizing  State = "finalizing"
	StateDone        State = "done"
	StateError       State = "error"
)

// Mode distinguishes the two submission shapes.
type Mode string

const (
	ModeFlat     Mode = "flat"
	ModeTimeline Mode = "timeline"
)

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool {
	return s == StateDone || s == StateError
}

// Active reports whether the state occupies a processing slot.
func (s State) Active() bool {
	switch s {
	case StateDownloading, StateRendering, StateUploading, StateFinalizing:
		return true
	default:
		return false
	}
}

// Result is the terminal payload of a successful job.
type Result struct {
	URL             string  `json:"url,omitempty"`
	DownloadPath    string  `json:"downloadPath,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	SizeBytes       int64   `json:"sizeBytes,omitempty"`
}

// Job is a snapshot of one tracked render job.
type Job struct {
	ID        string    `json:"jobId"`
	ProjectID string    `json:"projectId,omitempty"`
	Mode      Mode      `json:"mode"`
	State     State     `json:"status"`
	Progress  int       `json:"progress"`
	Result    *Result   `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// OutputPath is the locally served render for timeline jobs.
	OutputPath string `json:"-"`
	// Ticket identifies the admission holding the job's slot.
	Ticket     Ticket `json:"-"`
}

// Ticket is issued by Admit and redeemed by Release.
type Ticket uint64

// Update carries the optional fields of a status change.
type Update struct {
	Progress   int
	Result     *Result
	Error      string
	OutputPath string
}

// isValidTransition enforces the lifecycle edges. Flat jobs publish through
// uploading, timeline jobs through finalizing.
func isValidTransition(from, to State) bool {
	if from == to {
		return !from.Terminal()
	}
	if to == StateError {
		return !from.Terminal()
	}
	switch from {
	case StateQueued:
		return to == StateDownloading
	case StateDownloading:
		return to == StateRendering
	case StateRendering:
		return to == StateUploading || to == StateFinalizing
	case StateUploading, StateFinalizing:
		return to == StateDone
	default:
		return false
	}
}
