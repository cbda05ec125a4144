// Package feed connects the external record and presence stores to the
// in-memory dashboard: it replays existing records on start, consumes the
// enrollment change queue, follows the presence snapshot and polls the vendor
// account.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/identmakers/roots-dashboard/internal/aggregation"
	"github.com/identmakers/roots-dashboard/internal/models"
	"github.com/identmakers/roots-dashboard/internal/records"
	"github.com/identmakers/roots-dashboard/pkg/queue"
)

// ErrRecordStore wraps record store failures; the job is retried.
var ErrRecordStore = errors.New("record store unavailable")

// Source is the ordered change queue.
type Source interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Requeue(ctx context.Context, job *queue.Job) error
	DeadLetter(ctx context.Context, job *queue.Job, cause error) error
}

// Applier applies one change event to the live aggregates.
type Applier interface {
	ApplyChange(ev models.ChangeEvent) (aggregation.Result, error)
}

// Ledger is the record store. Record reports whether the change altered it.
type Ledger interface {
	Record(ctx context.Context, ev models.ChangeEvent) (bool, error)
}

// Consumer pops change events in order and applies them.
//
// With a ledger, every event is written to the record store first and only
// counted when the store changed. The store is the single source of truth:
// an add that replay already counted, or a remove whose record is already
// gone, leaves the aggregates alone.
//
// Events that cannot be decoded or are rejected go to the dead-letter queue.
// Record store failures put the job back at the head of the queue.
type Consumer struct {
	source  Source
	applier Applier
	ledger  Ledger
	backoff time.Duration
	logger  *zap.Logger
}

// NewConsumer creates an enrollment change consumer. ledger may be nil, in
// which case events are counted without being stored.
func NewConsumer(source Source, applier Applier, ledger Ledger, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{source: source, applier: applier, ledger: ledger, backoff: queue.RetryBackoff, logger: logger}
}

// Process decodes, records and applies one job. A job whose change is already
// reflected in the record store returns a Result with Changed unset.
func (c *Consumer) Process(ctx context.Context, job *queue.Job) (aggregation.Result, error) {
	ev, err := queue.DecodeChange(job)
	if err != nil {
		return aggregation.Result{}, err
	}
	if err := aggregation.Validate(ev); err != nil {
		return aggregation.Result{}, err
	}
	if c.ledger != nil {
		if ev.EnrollmentID == "" {
			return aggregation.Result{}, records.ErrMissingIdentifier
		}
		changed, err := c.ledger.Record(ctx, ev)
		if err != nil {
			return aggregation.Result{}, fmt.Errorf("%w: %v", ErrRecordStore, err)
		}
		if !changed {
			c.logger.Info("change already in record store",
				zap.String("job_id", job.ID),
				zap.String("kind", string(ev.Kind)),
				zap.String("enrollment_id", ev.EnrollmentID),
				zap.Int("delta", ev.Delta),
			)
			return aggregation.Result{}, nil
		}
	}
	return c.applier.ApplyChange(ev)
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("enrollment consumer stopping")
			return
		default:
		}

		job, err := c.source.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			c.logger.Warn("dequeue error", zap.Error(err))
			c.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		res, err := c.Process(ctx, job)
		switch {
		case errors.Is(err, ErrRecordStore):
			c.logger.Warn("record store write failed, retrying", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := c.source.Requeue(ctx, job); reErr != nil {
				c.logger.Error("requeue failed", zap.String("job_id", job.ID), zap.Error(reErr))
			}
			c.sleep(ctx)
		case err != nil:
			c.logger.Error("enrollment event rejected", zap.String("job_id", job.ID), zap.Error(err))
			if dlqErr := c.source.DeadLetter(ctx, job, err); dlqErr != nil {
				c.logger.Error("dead-letter failed", zap.String("job_id", job.ID), zap.Error(dlqErr))
			}
		case res.Changed:
			c.logger.Debug("enrollment event applied",
				zap.String("job_id", job.ID),
				zap.String("key", res.Key),
				zap.Uint64("version", res.Version),
			)
		}
	}
}

func (c *Consumer) sleep(ctx context.Context) {
	t := time.NewTimer(c.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
