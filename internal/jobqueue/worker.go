package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"playhub/internal/config"
	"playhub/internal/models"
	"playhub/internal/observability"

	"gorm.io/gorm"
)

var jobQueueMetrics = observability.NewJobQueueMetrics()

// Outcome is what a JobFunc reports back to the worker loop.
type Outcome int

const (
	Success Outcome = iota
	Retry
	Failed
)

// JobFunc processes one job's decoded payload and returns its outcome plus
// an optional JSON result and/or failure reason.
type JobFunc func(ctx context.Context, payload json.RawMessage) (Outcome, string, string)

// Worker polls the Queue for ready jobs and dispatches them to the
// registered handler for their name, following the same idle-sleep /
// stale-requeue shape as ImageService.workerLoop.
type Worker struct {
	queue    *Queue
	handlers map[string]JobFunc
	cfg      *config.Config
}

// NewWorker creates a Worker with an empty handler registry.
func NewWorker(queue *Queue, cfg *config.Config) *Worker {
	return &Worker{queue: queue, handlers: make(map[string]JobFunc), cfg: cfg}
}

// Register binds a handler to a job name. Known names: create_user,
// send_email, resize_image, delete_user, delete_upload, bulk_delete_users,
// bulk_delete_uploads, bulk_user_action, oauth_list_galleries,
// oauth_list_gallery_images, oauth_delete_gallery, oauth_delete_picture.
func (w *Worker) Register(name string, fn JobFunc) {
	w.handlers[name] = fn
}

func (w *Worker) staleAfter() time.Duration {
	if w.cfg != nil && w.cfg.JobQueueStaleAfterMin > 0 {
		return time.Duration(w.cfg.JobQueueStaleAfterMin) * time.Minute
	}
	return 10 * time.Minute
}

func (w *Worker) pollInterval() time.Duration {
	if w.cfg != nil && w.cfg.JobQueuePollIntervalMS > 0 {
		return time.Duration(w.cfg.JobQueuePollIntervalMS) * time.Millisecond
	}
	return 500 * time.Millisecond
}

// Run starts the worker's poll loop; it returns when ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	lastRequeue := time.Now()
	for {
		if ctx.Err() != nil {
			return
		}
		if time.Since(lastRequeue) >= time.Minute {
			if _, err := w.queue.RequeueStale(ctx, w.staleAfter()); err != nil {
				observability.GlobalLogger.ErrorContext(ctx, "jobqueue requeue stale failed", "error", err.Error())
			}
			w.sampleDepth(ctx)
			lastRequeue = time.Now()
		}

		job, err := w.queue.ClaimNext(ctx)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if !sleepContext(ctx, w.pollInterval()) {
					return
				}
				continue
			}
			if !sleepContext(ctx, time.Second) {
				return
			}
			continue
		}

		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *models.Job) {
	handler, ok := w.handlers[job.Name]
	if !ok {
		jobQueueMetrics.RecordOutcome(job.Name, "failed")
		_ = w.queue.MarkOutcome(ctx, job.ID, Failed, "", "no handler registered for job "+job.Name)
		return
	}
	outcome, result, failureReason := handler(ctx, json.RawMessage(job.Payload))
	jobQueueMetrics.RecordOutcome(job.Name, outcomeLabel(outcome))
	if err := w.queue.MarkOutcome(ctx, job.ID, outcome, result, failureReason); err != nil {
		observability.GlobalLogger.ErrorContext(ctx, "jobqueue failed to record outcome",
			"job_id", job.ID, "job_name", job.Name, "error", err.Error())
	}
}

func outcomeLabel(o Outcome) string {
	switch o {
	case Success:
		return "success"
	case Retry:
		return "retry"
	default:
		return "failed"
	}
}

// sampleDepth records the current count of queued and retry-pending jobs
// for the playhub_jobqueue_depth gauge.
func (w *Worker) sampleDepth(ctx context.Context) {
	for _, status := range []models.JobStatus{models.JobQueued, models.JobRetry, models.JobRunning} {
		var count int64
		if err := w.queue.db.WithContext(ctx).Model(&models.Job{}).Where("status = ?", status).Count(&count).Error; err != nil {
			continue
		}
		jobQueueMetrics.RecordDepth(string(status), count)
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
