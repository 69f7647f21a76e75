package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	DefaultMaxAttempts = 3
)

type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Job is the envelope stored in the Redis list.
type Job struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	LastError string          `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("queue: decode %s payload: %w", j.Type, err)
	}
	return nil
}

type Config struct {
	// Name is the Redis list jobs are pushed to and popped from.
	Name string
	// DeadLetter receives jobs that exhausted MaxAttempts or could not be decoded.
	// Defaults to Name + ":dlq".
	DeadLetter  string
	MaxAttempts int
}

// Queue is a FIFO job queue on a Redis list (RPUSH / BLPOP).
type Queue struct {
	client      *redis.Client
	name        string
	deadLetter  string
	maxAttempts int
	logger      Logger
}

func New(client *redis.Client, cfg Config, logger Logger) (*Queue, error) {
	if client == nil {
		return nil, errors.New("queue: redis client is required")
	}
	if cfg.Name == "" {
		return nil, errors.New("queue: name is required")
	}
	if cfg.DeadLetter == "" {
		cfg.DeadLetter = cfg.Name + ":dlq"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}

	return &Queue{
		client:      client,
		name:        cfg.Name,
		deadLetter:  cfg.DeadLetter,
		maxAttempts: cfg.MaxAttempts,
		logger:      logger,
	}, nil
}

func NewJob(jobType string, payload any) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal payload: %w", err)
	}

	return &Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (q *Queue) Enqueue(ctx context.Context, jobType string, payload any) (*Job, error) {
	job, err := NewJob(jobType, payload)
	if err != nil {
		return nil, err
	}

	if err := q.push(ctx, q.name, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Dequeue waits up to timeout for a job. It returns (nil, nil) when the wait
// expires with nothing queued.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: blpop %s: %w", q.name, err)
	}
	if len(result) < 2 {
		return nil, nil
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.warn("Undecodable job moved to dead letter", "queue", q.name, "error", err)
		if pushErr := q.client.RPush(ctx, q.deadLetter, result[1]).Err(); pushErr != nil {
			return nil, fmt.Errorf("queue: dead letter raw job: %w", pushErr)
		}
		return nil, nil
	}
	return &job, nil
}

// Retry requeues job with its attempt counter bumped, or dead-letters it once
// MaxAttempts is reached. It reports whether the job was dead-lettered.
func (q *Queue) Retry(ctx context.Context, job *Job, cause error) (bool, error) {
	job.Attempt++
	if cause != nil {
		job.LastError = cause.Error()
	}

	if job.Attempt >= q.maxAttempts {
		return true, q.DeadLetter(ctx, job, nil)
	}

	if err := q.push(ctx, q.name, job); err != nil {
		return false, err
	}
	q.info("Job requeued", "job_id", job.ID, "attempt", job.Attempt)
	return false, nil
}

func (q *Queue) DeadLetter(ctx context.Context, job *Job, cause error) error {
	if cause != nil {
		job.LastError = cause.Error()
	}
	if err := q.push(ctx, q.deadLetter, job); err != nil {
		q.error("Dead letter push failed", "job_id", job.ID, "error", err)
		return err
	}
	q.warn("Job moved to dead letter", "job_id", job.ID, "attempt", job.Attempt, "last_error", job.LastError)
	return nil
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.name).Result()
}

func (q *Queue) DeadLetterLen(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.deadLetter).Result()
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *Queue) push(ctx context.Context, list string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, list, raw).Err(); err != nil {
		return fmt.Errorf("queue: rpush %s: %w", list, err)
	}
	return nil
}

func (q *Queue) info(msg string, args ...any) {
	if q.logger != nil {
		q.logger.Info(msg, args...)
	}
}

func (q *Queue) warn(msg string, args ...any) {
	if q.logger != nil {
		q.logger.Warn(msg, args...)
	}
}

func (q *Queue) error(msg string, args ...any) {
	if q.logger != nil {
		q.logger.Error(msg, args...)
	}
}
