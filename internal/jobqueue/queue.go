// Package jobqueue implements a durable, claim-row job queue generalized
// from internal/service/image_service.go's single-purpose image-resize
// worker loop (ClaimNextQueued/MarkFailed/RequeueStaleProcessing) into a
// registry of named job kinds with capped exponential backoff.
package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"playhub/internal/config"
	"playhub/internal/models"
	"playhub/internal/observability"

	"gorm.io/gorm"
)

var jobLogger = observability.NewJobLogger()

// Queue is the durable store of jobs, backed by the `jobs` table.
type Queue struct {
	db  *gorm.DB
	cfg *config.Config
}

// NewQueue creates a Queue bound to db.
func NewQueue(db *gorm.DB, cfg *config.Config) *Queue {
	return &Queue{db: db, cfg: cfg}
}

// Enqueue durably schedules a named job for immediate dispatch.
func (q *Queue) Enqueue(ctx context.Context, name string, payload any) (*models.Job, error) {
	return q.enqueue(ctx, name, payload, "")
}

// EnqueueAndWait enqueues a job and blocks (polling) for its completion, up
// to timeout (defaulting to the configured reply timeout, 30s). The
// correlation ID ties the request to the eventual result row
// the same way internal/server/server.go's consumedTickets map ties a
// short-lived request to a reply, except here the correlation survives a
// process restart because it lives in the `jobs` row itself.
func (q *Queue) EnqueueAndWait(ctx context.Context, name string, payload any, timeout time.Duration) (*models.Job, error) {
	if timeout <= 0 {
		timeout = q.replyTimeout()
	}
	correlationID := fmt.Sprintf("%s-%d", name, time.Now().UnixNano())
	job, err := q.enqueue(ctx, name, payload, correlationID)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			var current models.Job
			if err := q.db.WithContext(ctx).First(&current, job.ID).Error; err != nil {
				return nil, fmt.Errorf("poll job %d: %w", job.ID, err)
			}
			if current.Status == models.JobCompleted || current.Status == models.JobFailed {
				return &current, nil
			}
			if time.Now().After(deadline) {
				return &current, fmt.Errorf("job %d did not complete within %s", job.ID, timeout)
			}
		}
	}
}

func (q *Queue) replyTimeout() time.Duration {
	if q.cfg != nil && q.cfg.JobQueueReplyTimeoutSec > 0 {
		return time.Duration(q.cfg.JobQueueReplyTimeoutSec) * time.Second
	}
	return 30 * time.Second
}

func (q *Queue) enqueue(ctx context.Context, name string, payload any, correlationID string) (*models.Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}
	maxAttempts := 5
	if q.cfg != nil && q.cfg.JobQueueMaxRetries > 0 {
		maxAttempts = q.cfg.JobQueueMaxRetries
	}
	job := &models.Job{
		Name:          name,
		Payload:       string(body),
		Priority:      5,
		MaxAttempts:   maxAttempts,
		Status:        models.JobQueued,
		CorrelationID: correlationID,
		NextAttemptAt: time.Now().UTC(),
	}
	if err := q.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("enqueue job %s: %w", name, err)
	}
	jobLogger.LogEnqueue(ctx, name, job.ID)
	return job, nil
}

// ClaimNext atomically claims the oldest ready job, ordered by
// (priority ASC, enqueued_at ASC), the same claim-row idiom as
// ImageRepository.ClaimNextQueued.
func (q *Queue) ClaimNext(ctx context.Context) (*models.Job, error) {
	var job models.Job
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("status IN ? AND next_attempt_at <= ?", []models.JobStatus{models.JobQueued, models.JobRetry}, time.Now().UTC()).
			Order("priority ASC, enqueued_at ASC").
			Limit(1).
			First(&job).Error
		if err != nil {
			return err
		}
		job.Status = models.JobRunning
		job.Attempt++
		now := time.Now().UTC()
		job.ClaimedAt = &now
		return tx.Save(&job).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// RequeueStale returns jobs claimed longer than staleAfter ago (a worker
// that crashed mid-job) to the queued state.
func (q *Queue) RequeueStale(ctx context.Context, staleAfter time.Duration) (int64, error) {
	cutoff := time.Now().Add(-staleAfter)
	res := q.db.WithContext(ctx).Model(&models.Job{}).
		Where("status = ? AND claimed_at < ?", models.JobRunning, cutoff).
		Updates(map[string]any{"status": models.JobQueued, "claimed_at": nil})
	return res.RowsAffected, res.Error
}

// MarkOutcome records the result of a processed job, scheduling a backoff
// retry when the outcome is Retry and attempts remain.
func (q *Queue) MarkOutcome(ctx context.Context, jobID uint, outcome Outcome, result string, failureReason string) error {
	var job models.Job
	if err := q.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		return err
	}

	switch outcome {
	case Success:
		job.Status = models.JobCompleted
		job.Result = result
		now := time.Now().UTC()
		job.CompletedAt = &now
	case Retry:
		if job.Attempt >= job.MaxAttempts {
			job.Status = models.JobFailed
			job.FailureReason = failureReason
		} else {
			job.Status = models.JobRetry
			job.NextAttemptAt = time.Now().Add(q.backoff(job.Attempt))
			job.FailureReason = failureReason
		}
	case Failed:
		job.Status = models.JobFailed
		job.FailureReason = failureReason
	}
	if err := q.db.WithContext(ctx).Save(&job).Error; err != nil {
		return err
	}
	jobLogger.LogOutcome(ctx, job.Name, job.ID, string(job.Status), job.Attempt)
	return nil
}

func (q *Queue) backoff(attempt int) time.Duration {
	baseMS := int64(1000)
	capMS := int64(60000)
	if q.cfg != nil {
		if q.cfg.JobQueueBackoffBaseMS > 0 {
			baseMS = int64(q.cfg.JobQueueBackoffBaseMS)
		}
		if q.cfg.JobQueueBackoffCapMS > 0 {
			capMS = int64(q.cfg.JobQueueBackoffCapMS)
		}
	}
	delay := baseMS
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= capMS {
			delay = capMS
			break
		}
	}
	return time.Duration(delay) * time.Millisecond
}
