package worker

import (
	"context"
	"errors"
	"time"

	"github.com/akeren/go-waitlist/internal/log"
	"github.com/akeren/go-waitlist/pkg/mailinglist"
	"github.com/akeren/go-waitlist/pkg/queue"
)

// JobSource is the part of *queue.Queue the worker consumes.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job, cause error) (bool, error)
	DeadLetter(ctx context.Context, job *queue.Job, cause error) error
}

type Config struct {
	PollTimeout time.Duration
	// JobTimeout bounds a single Subscribe call.
	JobTimeout time.Duration
	// ErrorBackoff is the pause after the queue itself fails.
	ErrorBackoff time.Duration
}

// MailingListWorker delivers queued signups to the mailing-list provider.
type MailingListWorker struct {
	source JobSource
	syncer mailinglist.Syncer
	logger *log.Logger
	cfg    Config
}

func NewMailingListWorker(source JobSource, syncer mailinglist.Syncer, logger *log.Logger, cfg Config) *MailingListWorker {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}

	return &MailingListWorker{source: source, syncer: syncer, logger: logger, cfg: cfg}
}

// Run processes jobs until ctx is cancelled.
func (w *MailingListWorker) Run(ctx context.Context) error {
	w.logger.Info("Mailing list worker started", "poll_timeout", w.cfg.PollTimeout.String())

	for {
		if ctx.Err() != nil {
			w.logger.Info("Mailing list worker stopped")
			return nil
		}

		job, err := w.source.Dequeue(ctx, w.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("Dequeue failed", "error", err)
			sleep(ctx, w.cfg.ErrorBackoff)
			continue
		}
		if job == nil {
			continue
		}

		w.Process(ctx, job)
	}
}

// Process handles one job and routes failures to retry or dead letter.
func (w *MailingListWorker) Process(ctx context.Context, job *queue.Job) {
	logger := w.logger.With("job_id", job.ID, "job_type", job.Type, "attempt", job.Attempt)

	if job.Type != mailinglist.JobTypeSubscribe {
		logger.Warn("Unknown job type")
		w.deadLetter(ctx, logger, job, errors.New("unknown job type"))
		return
	}

	var contact mailinglist.Contact
	if err := job.Decode(&contact); err != nil {
		logger.Warn("Invalid job payload", "error", err)
		w.deadLetter(ctx, logger, job, err)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	err := w.syncer.Subscribe(callCtx, contact)
	cancel()

	if err == nil {
		logger.Info("Mailing list subscribe succeeded", "email", contact.Email)
		return
	}

	if !mailinglist.IsTemporary(err) && ctx.Err() == nil {
		logger.Error("Mailing list subscribe rejected", "email", contact.Email, "error", err)
		w.deadLetter(ctx, logger, job, err)
		return
	}

	// Requeue on a fresh context so a shutdown does not lose the job.
	retryCtx, cancelRetry := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.JobTimeout)
	defer cancelRetry()

	dead, retryErr := w.source.Retry(retryCtx, job, err)
	if retryErr != nil {
		logger.Error("Requeue failed", "email", contact.Email, "error", retryErr)
		return
	}
	if dead {
		logger.Error("Mailing list subscribe gave up", "email", contact.Email, "error", err)
		return
	}
	logger.Warn("Mailing list subscribe will be retried", "email", contact.Email, "error", err)
}

func (w *MailingListWorker) deadLetter(ctx context.Context, logger *log.Logger, job *queue.Job, cause error) {
	dlCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.JobTimeout)
	defer cancel()

	if err := w.source.DeadLetter(dlCtx, job, cause); err != nil {
		logger.Error("Dead letter failed", "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
