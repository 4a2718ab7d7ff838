package dump

import "time"

// State is where a run currently is.
type State string

const (
	StateIdle        State = "idle"
	StateDownloading State = "downloading"
	StateParsing     State = "parsing"
	StateFlushing    State = "flushing"
	StateDraining    State = "draining"
	StateCleaningUp  State = "cleaning_up"
	StateDone        State = "done"
)

// Result summarises one run.
type Result struct {
	Success   bool          `json:"success"`
	Message   string        `json:"message"`
	Count     int           `json:"count"`
	Skipped   int           `json:"skipped"`
	Batches   int           `json:"batches"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Status is a snapshot of the pipeline for the admin status endpoint.
type Status struct {
	State     State      `json:"state"`
	Running   bool       `json:"running"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	Last      *Result    `json:"last,omitempty"`
}
