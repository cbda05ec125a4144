// Package aggregation maintains live enrollment counts per organization, per
// calendar day and globally, updated incrementally from add/remove events.
//
// Absence is zero: an organization whose total drops to zero or below is removed,
// a per-day organization entry is removed the same way, and a day with no
// organization entries is removed. Global totals always equal the sum over the
// organizations present, and a day's totals always equal the sum over its entries.
package aggregation

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/identmakers/roots-dashboard/internal/enrollment"
	"github.com/identmakers/roots-dashboard/internal/models"
	"github.com/identmakers/roots-dashboard/internal/orgkey"
)

// Validate reports the caller bugs ApplyChange rejects: an unknown record kind
// or a delta other than +1 or -1.
func Validate(ev models.ChangeEvent) error {
	if !ev.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRecordKind, ev.Kind)
	}
	if ev.Delta != 1 && ev.Delta != -1 {
		return fmt.Errorf("%w: %d", ErrInvalidDelta, ev.Delta)
	}
	return nil
}

// Result describes what one ApplyChange did. Changed is the recompute signal
// for whoever renders the aggregates.
type Result struct {
	Changed bool
	Key     string
	Date    string // ISO date bucket touched, empty when the identifier had no date
	Created bool
	Removed bool
	Orphan  bool
	Version uint64
}

// Snapshot is a consistent copy of the store as of the last applied change.
// Organizations are ordered by normalized key and DateBuckets by date, but
// display code should sort explicitly.
type Snapshot struct {
	Students       int                            `json:"students"`
	Staff          int                            `json:"staff"`
	Organizations  []models.OrganizationAggregate `json:"organizations"`
	DateBuckets    []models.DateBucket            `json:"date_buckets"`
	OrphanRemovals int64                          `json:"orphan_removals"`
	Version        uint64                         `json:"version"`
}

// Total returns Students + Staff.
func (s Snapshot) Total() int {
	return s.Students + s.Staff
}

// Organization looks an aggregate up by display name (normalized before matching).
func (s Snapshot) Organization(name string) (models.OrganizationAggregate, bool) {
	key := orgkey.Normalize(name)
	for _, a := range s.Organizations {
		if a.NormalizedKey == key {
			return a, true
		}
	}
	return models.OrganizationAggregate{}, false
}

// Bucket looks a date bucket up by ISO date.
func (s Snapshot) Bucket(date string) (models.DateBucket, bool) {
	for _, b := range s.DateBuckets {
		if b.Date == date {
			return b, true
		}
	}
	return models.DateBucket{}, false
}

type dateBucket struct {
	students int
	staff    int
	orgs     map[string]*models.DateOrganizationCount
}

// Store is the incremental aggregation engine. The zero value is not usable; call New.
//
// ApplyChange calls for different organizations (and different days) run in
// parallel; calls for the same organization or day are serialized. Snapshot
// excludes all writers for the duration of the copy.
type Store struct {
	gate      sync.RWMutex
	orgLocks  keyedMutex
	dateLocks keyedMutex

	orgsMu sync.Mutex
	orgs   map[string]*models.OrganizationAggregate

	datesMu sync.Mutex
	dates   map[string]*dateBucket

	students atomic.Int64
	staff    atomic.Int64
	orphans  atomic.Int64
	version  atomic.Uint64

	logger *zap.Logger
}

// New creates an empty store.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		orgs:   make(map[string]*models.OrganizationAggregate),
		dates:  make(map[string]*dateBucket),
		logger: logger,
	}
}

// ApplyChange applies one add (+1) or remove (-1) event.
//
// A remove for a record the store never counted is tolerated: the affected
// aggregate is created, adjusted and immediately dropped, and the event is
// reported as an orphan. Unknown kinds and deltas are caller bugs and are returned.
func (s *Store) ApplyChange(ev models.ChangeEvent) (Result, error) {
	if err := Validate(ev); err != nil {
		return Result{}, err
	}

	key := orgkey.Normalize(ev.Organization)

	s.gate.RLock()
	defer s.gate.RUnlock()

	res := Result{Changed: true, Key: key}
	s.applyOrganization(ev, key, &res)
	if d, ok := enrollment.ExtractDate(ev.EnrollmentID); ok {
		res.Date = d.String()
		s.applyDate(ev, key, res.Date)
	}
	res.Version = s.version.Add(1)

	if res.Orphan {
		s.orphans.Add(1)
		s.logger.Warn("orphan removal",
			zap.String("organization", ev.Organization),
			zap.String("kind", string(ev.Kind)),
			zap.String("enrollment_id", ev.EnrollmentID),
		)
	}
	return res, nil
}

func (s *Store) applyOrganization(ev models.ChangeEvent, key string, res *Result) {
	unlock := s.orgLocks.Lock(key)
	defer unlock()

	s.orgsMu.Lock()
	agg, ok := s.orgs[key]
	if !ok {
		agg = &models.OrganizationAggregate{Name: ev.Organization, NormalizedKey: key}
		s.orgs[key] = agg
	}
	s.orgsMu.Unlock()
	res.Created = !ok && ev.Delta > 0

	switch ev.Kind {
	case models.KindStudent:
		agg.Students += ev.Delta
		s.students.Add(int64(ev.Delta))
		res.Orphan = agg.Students < 0
	case models.KindStaff:
		agg.Staff += ev.Delta
		s.staff.Add(int64(ev.Delta))
		res.Orphan = agg.Staff < 0
	}

	if agg.Total() <= 0 {
		// Drop the residual with the aggregate so globals stay equal to the sum.
		s.students.Add(int64(-agg.Students))
		s.staff.Add(int64(-agg.Staff))
		s.orgsMu.Lock()
		delete(s.orgs, key)
		s.orgsMu.Unlock()
		res.Removed = true
	}
}

func (s *Store) applyDate(ev models.ChangeEvent, key, date string) {
	unlock := s.dateLocks.Lock(date)
	defer unlock()

	s.datesMu.Lock()
	b, ok := s.dates[date]
	if !ok {
		b = &dateBucket{orgs: make(map[string]*models.DateOrganizationCount)}
		s.dates[date] = b
	}
	s.datesMu.Unlock()

	entry, ok := b.orgs[key]
	if !ok {
		entry = &models.DateOrganizationCount{Name: ev.Organization, NormalizedKey: key}
		b.orgs[key] = entry
	}

	switch ev.Kind {
	case models.KindStudent:
		entry.Students += ev.Delta
		b.students += ev.Delta
	case models.KindStaff:
		entry.Staff += ev.Delta
		b.staff += ev.Delta
	}

	if entry.Total() <= 0 {
		b.students -= entry.Students
		b.staff -= entry.Staff
		delete(b.orgs, key)
	}
	if len(b.orgs) == 0 {
		s.datesMu.Lock()
		delete(s.dates, date)
		s.datesMu.Unlock()
	}
}

// Snapshot returns a consistent copy of all aggregates.
func (s *Store) Snapshot() Snapshot {
	s.gate.Lock()
	defer s.gate.Unlock()

	snap := Snapshot{
		Students:       int(s.students.Load()),
		Staff:          int(s.staff.Load()),
		Organizations:  make([]models.OrganizationAggregate, 0, len(s.orgs)),
		DateBuckets:    make([]models.DateBucket, 0, len(s.dates)),
		OrphanRemovals: s.orphans.Load(),
		Version:        s.version.Load(),
	}
	for _, agg := range s.orgs {
		snap.Organizations = append(snap.Organizations, *agg)
	}
	sort.Slice(snap.Organizations, func(i, j int) bool {
		return snap.Organizations[i].NormalizedKey < snap.Organizations[j].NormalizedKey
	})

	for date, b := range s.dates {
		out := models.DateBucket{
			Date:          date,
			Students:      b.students,
			Staff:         b.staff,
			Organizations: make([]models.DateOrganizationCount, 0, len(b.orgs)),
		}
		for _, entry := range b.orgs {
			out.Organizations = append(out.Organizations, *entry)
		}
		sort.Slice(out.Organizations, func(i, j int) bool {
			return out.Organizations[i].NormalizedKey < out.Organizations[j].NormalizedKey
		})
		snap.DateBuckets = append(snap.DateBuckets, out)
	}
	sort.Slice(snap.DateBuckets, func(i, j int) bool {
		return snap.DateBuckets[i].Date < snap.DateBuckets[j].Date
	})
	return snap
}

// Len returns the number of organizations with at least one record. Like
// Snapshot it excludes writers, so an orphan aggregate that is created and
// dropped within one ApplyChange is never counted.
func (s *Store) Len() int {
	s.gate.Lock()
	defer s.gate.Unlock()
	return len(s.orgs)
}

// Version returns the number of changes applied since creation.
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// Reset drops every aggregate. The store can be reused afterwards, e.g. to
// rebuild from a fresh replay of the record store.
func (s *Store) Reset() {
	s.gate.Lock()
	defer s.gate.Unlock()

	s.orgs = make(map[string]*models.OrganizationAggregate)
	s.dates = make(map[string]*dateBucket)
	s.students.Store(0)
	s.staff.Store(0)
	s.orphans.Store(0)
	s.version.Add(1)
	s.logger.Info("aggregation store reset")
}
