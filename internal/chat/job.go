package chat

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// IndexJob tracks one asynchronous catalog-embedding rebuild.
type IndexJob struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID

	Status JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	// Filled when succeeded
	ServicesIndexed *int `json:"services_indexed,omitempty"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (IndexJob) TableName() string { return "index_jobs" }
