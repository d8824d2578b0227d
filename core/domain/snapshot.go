package domain

import "time"

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Snapshot is the caller-facing view of a job at one point in time.
type Snapshot struct {
	JobID           string         `json:"job_id"`
	Status          JobStatus      `json:"status"`
	OverallProgress int            `json:"overall_progress"`
	Summary         BatchSummary   `json:"summary"`
	Files           []FileProgress `json:"per_file"`
	Result          *BatchResult   `json:"result"`
}

// Unit is the queue message for one item of a batch.
type Unit struct {
	JobID      string            `json:"job_id"`
	Item       Item              `json:"item"`
	Params     map[string]string `json:"params,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

func (u Unit) Ref() string {
	return u.JobID + "/" + u.Item.Key
}

type SubmitResponse struct {
	JobID           string `json:"job_id"`
	QueuedItemCount int    `json:"queued_item_count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
