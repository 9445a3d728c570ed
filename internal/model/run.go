package model

import "time"

// RunStatus represents the current state of a radar run.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusFetching   RunStatus = "fetching"
	RunStatusMerging    RunStatus = "merging"
	RunStatusDiffing    RunStatus = "diffing"
	RunStatusNotifying  RunStatus = "notifying"
	RunStatusCommitting RunStatus = "committing"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// RunStats summarizes one run's outcome for the store, the report, and
// the end-of-run notifications.
type RunStats struct {
	RecordsMerged  int      `json:"records_merged"`
	Relevant       int      `json:"relevant"`
	Critical       int      `json:"critical"`
	Warning        int      `json:"warning"`
	Changes        int      `json:"changes"`
	IssuesCreated  int      `json:"issues_created"`
	Escalations    int      `json:"escalations"`
	Suppressed     int      `json:"suppressed"`
	NotifyFailures int      `json:"notify_failures"`
	FeedsFailed    []string `json:"feeds_failed,omitempty"`
}

// Run is one execution of the radar pipeline.
type Run struct {
	ID        string    `json:"id"`
	Status    RunStatus `json:"status"`
	Stats     *RunStats `json:"stats,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PhaseStatus represents the state of a pipeline phase.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
)

// RunPhase records the timing and outcome of one phase within a run.
type RunPhase struct {
	ID         string      `json:"id"`
	RunID      string      `json:"run_id"`
	Name       string      `json:"name"`
	Status     PhaseStatus `json:"status"`
	DurationMs int64       `json:"duration_ms"`
	Error      string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
}
