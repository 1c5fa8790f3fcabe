package domain

import "time"

// RunStatus is the externally observable status of a pipeline run.
type RunStatus string

const (
	RunQueued   RunStatus = "QUEUED"
	RunRunning  RunStatus = "RUNNING"
	RunFinished RunStatus = "FINISHED"
	RunFailed   RunStatus = "FAILED"
)

// Done reports whether the run reached a terminal status.
func (s RunStatus) Done() bool {
	return s == RunFinished || s == RunFailed
}

// Run records one execution of a pipeline for a triggered input.
type Run struct {
	ID        string    `json:"id"`
	Input     int       `json:"input"`
	Pipeline  string    `json:"pipeline"`
	Status    RunStatus `json:"status"`
	Stage     string    `json:"stage,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Queued    time.Time `json:"queued"`
	Started   time.Time `json:"started,omitzero"`
	Ended     time.Time `json:"ended,omitzero"`
}
