package feed

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/identmakers/roots-dashboard/internal/aggregation"
	"github.com/identmakers/roots-dashboard/internal/models"
)

// RecordSource iterates the external record store.
type RecordSource interface {
	ForEach(ctx context.Context, fn func(models.EnrollmentRecord) error) error
}

// Replay feeds every stored record to the applier as an add event and returns
// how many were applied. Records with an unknown kind are logged and skipped;
// any other apply error aborts the replay.
func Replay(ctx context.Context, src RecordSource, applier Applier, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	applied := 0
	err := src.ForEach(ctx, func(rec models.EnrollmentRecord) error {
		if _, err := applier.ApplyChange(rec.AddedEvent()); err != nil {
			if errors.Is(err, aggregation.ErrInvalidRecordKind) {
				logger.Error("skipping stored record", zap.Int64("id", rec.ID), zap.String("kind", string(rec.Kind)), zap.Error(err))
				return nil
			}
			return fmt.Errorf("apply record %d: %w", rec.ID, err)
		}
		applied++
		return nil
	})
	if err != nil {
		return applied, fmt.Errorf("replay: %w", err)
	}
	logger.Info("enrollment records replayed", zap.Int("records", applied))
	return applied, nil
}
