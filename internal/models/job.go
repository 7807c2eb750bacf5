package models

import "time"

// JobStatus is the closed set of durable job lifecycle states.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobRetry     JobStatus = "retry"
)

// Job is a durable unit of asynchronous work. Dispatch order is
// (priority ASC, enqueued_at ASC); 0 is the highest priority.
type Job struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Name          string     `gorm:"index;not null" json:"name"`
	Payload       string     `gorm:"type:json;not null" json:"payload"`
	Priority      int        `gorm:"index;default:5" json:"priority"`
	Attempt       int        `gorm:"default:0" json:"attempt"`
	MaxAttempts   int        `gorm:"default:5" json:"max_attempts"`
	Status        JobStatus  `gorm:"index;default:'queued'" json:"status"`
	Result        string     `gorm:"type:json" json:"result,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CorrelationID string     `gorm:"index" json:"correlation_id,omitempty"`
	EnqueuedAt    time.Time  `gorm:"index;autoCreateTime" json:"enqueued_at"`
	NextAttemptAt time.Time  `gorm:"index" json:"next_attempt_at"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
