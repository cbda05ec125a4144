package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/identmakers/roots-dashboard/internal/aggregation"
	"github.com/identmakers/roots-dashboard/internal/models"
)

type fakeRecords struct {
	records []models.EnrollmentRecord
	err     error
}

func (f fakeRecords) ForEach(ctx context.Context, fn func(models.EnrollmentRecord) error) error {
	for _, r := range f.records {
		if err := fn(r); err != nil {
			return err
		}
	}
	return f.err
}

type failingApplier struct{ err error }

func (a failingApplier) ApplyChange(models.ChangeEvent) (aggregation.Result, error) {
	return aggregation.Result{}, a.err
}

func TestReplay(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	src := fakeRecords{records: []models.EnrollmentRecord{
		{ID: 1, Organization: "Maple High", Kind: models.KindStudent, EnrollmentID: "MAPLEAB05SEP20241234"},
		{ID: 2, Organization: "Maple High", Kind: models.KindStudent, EnrollmentID: "MAPLEAB06SEP20241234"},
		{ID: 3, Organization: "Maple High", Kind: "parent"},
		{ID: 4, Organization: "Oak School", Kind: models.KindStaff, EnrollmentID: "OAKSCHL05SEP20245678"},
	}}
	store := aggregation.New(nil)

	n, err := Replay(context.Background(), src, store, zap.New(core))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	snap := store.Snapshot()
	assert.Equal(t, 2, snap.Students)
	assert.Equal(t, 1, snap.Staff)
	require.Len(t, snap.DateBuckets, 2)
	day, ok := snap.Bucket("2024-09-05")
	require.True(t, ok)
	assert.Equal(t, 2, day.Total())

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, int64(3), logs.All()[0].ContextMap()["id"])
}

func TestReplayErrors(t *testing.T) {
	_, err := Replay(context.Background(), fakeRecords{err: errors.New("connection reset")}, aggregation.New(nil), nil)
	assert.ErrorContains(t, err, "connection reset")

	boom := errors.New("boom")
	src := fakeRecords{records: []models.EnrollmentRecord{{ID: 9, Organization: "Oak School", Kind: models.KindStaff}}}
	n, err := Replay(context.Background(), src, failingApplier{err: boom}, nil)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, n)
}

// memLedger is an in-memory record store keyed like enrollment_records.
type memLedger struct {
	records  []models.EnrollmentRecord
	nextID   int64
	failures int
}

func newMemLedger(recs ...models.EnrollmentRecord) *memLedger {
	l := &memLedger{records: recs}
	for _, r := range recs {
		l.nextID = max(l.nextID, r.ID)
	}
	return l
}

func (l *memLedger) ForEach(ctx context.Context, fn func(models.EnrollmentRecord) error) error {
	for _, r := range l.records {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (l *memLedger) Record(ctx context.Context, ev models.ChangeEvent) (bool, error) {
	if l.failures > 0 {
		l.failures--
		return false, errors.New("connection reset")
	}
	idx := -1
	for i, r := range l.records {
		if r.Kind == ev.Kind && r.EnrollmentID == ev.EnrollmentID {
			idx = i
			break
		}
	}
	if ev.Delta > 0 {
		if idx >= 0 {
			return false, nil
		}
		l.nextID++
		l.records = append(l.records, models.EnrollmentRecord{
			ID: l.nextID, Organization: ev.Organization, Kind: ev.Kind, EnrollmentID: ev.EnrollmentID,
		})
		return true, nil
	}
	if idx < 0 {
		return false, nil
	}
	l.records = append(l.records[:idx], l.records[idx+1:]...)
	return true, nil
}
