package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/identmakers/roots-dashboard/internal/models"
)

const (
	// QueueEnrollments is the Redis list key for enrollment change events.
	QueueEnrollments = "feed:enrollments"
	// QueueDLQ is the dead-letter list for events that could not be applied.
	QueueDLQ = "feed:enrollments:dlq"
	// DequeueTimeout bounds a single blocking pop so shutdown is noticed.
	DequeueTimeout = 5 * time.Second
	// RetryBackoff is the delay after a Redis error.
	RetryBackoff = 2 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeEnrollmentChange JobType = "enrollment_change"
)

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Error     string          `json:"error,omitempty"`
}

// DecodeChange unmarshals an enrollment change job payload.
func DecodeChange(job *Job) (models.ChangeEvent, error) {
	var ev models.ChangeEvent
	if job.Type != JobTypeEnrollmentChange {
		return ev, fmt.Errorf("unknown job type: %s", job.Type)
	}
	if err := json.Unmarshal(job.Payload, &ev); err != nil {
		return ev, fmt.Errorf("unmarshal payload: %w", err)
	}
	return ev, nil
}

// Queue is an ordered Redis list of enrollment change events. A single consumer
// pops from the head, so events are applied in push order.
type Queue struct {
	client *redis.Client
	key    string
	dlq    string
	logger *zap.Logger
}

// NewQueue creates a Redis-backed queue. Empty keys fall back to the defaults.
func NewQueue(client *redis.Client, key, dlq string, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if key == "" {
		key = QueueEnrollments
	}
	if dlq == "" {
		dlq = QueueDLQ
	}
	return &Queue{client: client, key: key, dlq: dlq, logger: logger}
}

// EnqueueChange appends an enrollment change event.
func (q *Queue) EnqueueChange(ctx context.Context, ev models.ChangeEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      JobTypeEnrollmentChange,
		Payload:   body,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued enrollment change", zap.String("job_id", job.ID), zap.String("organization", ev.Organization))
	return nil
}

// Dequeue blocks for up to DequeueTimeout. It returns nil, nil when the wait
// times out or the head element is not a valid job (which is dropped with a warning).
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, DequeueTimeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// DeadLetter moves a job that cannot be applied to the DLQ with its error.
func (q *Queue) DeadLetter(ctx context.Context, job *Job, cause error) error {
	if cause != nil {
		job.Error = cause.Error()
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, q.dlq, raw).Err(); err != nil {
		q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
		return err
	}
	q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.String("error", job.Error))
	return nil
}

// Requeue puts a job back at the head of the queue so it is retried before
// any later event.
func (q *Queue) Requeue(ctx context.Context, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// Len returns the number of pending events.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
