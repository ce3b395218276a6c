package domain

import "time"

// JobType identifies which pipeline a job runs through.
type JobType string

const (
	JobTypeRewrite       JobType = "REWRITE"
	JobTypeDraft         JobType = "DRAFT"
	JobTypeBulletRewrite JobType = "BULLET_REWRITE"
)

// JobCost returns the fixed credit cost for a job type. Costs are charged
// only after the job completes successfully, never up front.
func JobCost(t JobType) int {
	switch t {
	case JobTypeRewrite:
		return 3
	case JobTypeDraft:
		return 5
	case JobTypeBulletRewrite:
		return 1
	default:
		return 0
	}
}

// Job status constants. PROCESSING is the sole initial state, set
// synchronously at enqueue time. COMPLETED and FAILED are terminal.
const (
	JobStatusProcessing = "PROCESSING"
	JobStatusCompleted  = "COMPLETED"
	JobStatusFailed     = "FAILED"
)

// Job is the durable record of one asynchronous unit of work. The record
// exists before the queue starts the job so clients can poll immediately
// after submission.
type Job struct {
	JobID        string     `db:"job_id" json:"job_id"`
	UserID       string     `db:"user_id" json:"user_id"`
	JobType      JobType    `db:"job_type" json:"job_type"`
	Status       string     `db:"status" json:"status"`
	ErrorMessage string     `db:"error_message" json:"error_message,omitempty"`
	Result       []byte     `db:"result" json:"result,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// JobPayload is the pending work carried between enqueue and dequeue. It
// lives only in memory; the Job record is the durable trace.
type JobPayload struct {
	UserID     string `json:"user_id"`
	UserResume string `json:"user_resume,omitempty"`
	JD         string `json:"jd,omitempty"`
	JD1        string `json:"jd1,omitempty"`
	JD2        string `json:"jd2,omitempty"`
	JD3        string `json:"jd3,omitempty"`
}

// JobResult is the payload returned to polling clients once a job completes.
type JobResult struct {
	CollectionID string   `json:"collection_id"`
	Docs         []DocRef `json:"docs"`
}

// DocRef points a client at one document produced by a job run.
type DocRef struct {
	ID      string  `json:"id"`
	DocType DocType `json:"doc_type"`
}
