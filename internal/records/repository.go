// Package records is the enrollment record store. It is the source of truth
// for the aggregates: they are rebuilt from it on start, and every change
// consumed from the feed is written to it before it is counted.
package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/identmakers/roots-dashboard/internal/enrollment"
	"github.com/identmakers/roots-dashboard/internal/models"
)

// ErrMissingIdentifier is returned for a change without an enrollment id;
// such a change cannot be matched to a stored record.
var ErrMissingIdentifier = errors.New("enrollment id required")

// Repository handles enrollment_records reads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an enrollment records repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectRecords = `SELECT id, organization, org_code, kind, enrollment_id, created_at
	FROM enrollment_records ORDER BY id`

// ForEach streams every record in insertion order. Iteration stops at the
// first error returned by fn.
func (r *Repository) ForEach(ctx context.Context, fn func(models.EnrollmentRecord) error) error {
	rows, err := r.pool.Query(ctx, selectRecords)
	if err != nil {
		return fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return fmt.Errorf("scan record: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

const (
	insertRecord = `INSERT INTO enrollment_records (organization, org_code, kind, enrollment_id)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (kind, enrollment_id) DO NOTHING`

	deleteRecord = `DELETE FROM enrollment_records WHERE kind = $1 AND enrollment_id = $2`
)

// Record writes a change to the store: an add inserts the record, a remove
// deletes it. It reports whether the store changed; false means the add was
// already stored or the remove had nothing to delete, so the change is
// already reflected in the aggregates.
func (r *Repository) Record(ctx context.Context, ev models.ChangeEvent) (bool, error) {
	sql, args, err := recordStatement(ev)
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("record %s %s: %w", ev.Kind, ev.EnrollmentID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func recordStatement(ev models.ChangeEvent) (string, []any, error) {
	if ev.EnrollmentID == "" {
		return "", nil, ErrMissingIdentifier
	}
	if ev.Delta > 0 {
		return insertRecord, []any{ev.Organization, enrollment.OrgCode(ev.EnrollmentID), string(ev.Kind), ev.EnrollmentID}, nil
	}
	return deleteRecord, []any{string(ev.Kind), ev.EnrollmentID}, nil
}

func scanRecord(row pgx.Row) (models.EnrollmentRecord, error) {
	var (
		rec  models.EnrollmentRecord
		kind string
	)
	if err := row.Scan(&rec.ID, &rec.Organization, &rec.OrgCode, &kind, &rec.EnrollmentID, &rec.CreatedAt); err != nil {
		return models.EnrollmentRecord{}, err
	}
	rec.Kind = models.RecordKind(kind)
	return rec, nil
}
