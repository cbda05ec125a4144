// Package dashboard ties the aggregation store, the presence view and the
// vendor account together and serves the projected dashboard.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/identmakers/roots-dashboard/internal/aggregation"
	"github.com/identmakers/roots-dashboard/internal/metrics"
	"github.com/identmakers/roots-dashboard/internal/models"
	"github.com/identmakers/roots-dashboard/internal/presence"
	"github.com/identmakers/roots-dashboard/internal/projection"
	"github.com/identmakers/roots-dashboard/internal/realtime"
	"github.com/identmakers/roots-dashboard/internal/subscription"
)

// DefaultDebounce coalesces bursts of changes into one broadcast.
const DefaultDebounce = 150 * time.Millisecond

// ErrInvalidQuery is returned for a malformed client query.
var ErrInvalidQuery = errors.New("invalid query")

// Broadcaster pushes an event to every connected viewer.
type Broadcaster interface {
	Broadcast(event string, payload interface{})
}

// Options configures a Service. Zero values pick the defaults; a negative
// Debounce broadcasts synchronously on every change.
type Options struct {
	Debounce   time.Duration
	RecentDays int
	Now        func() time.Time
}

// Update is the payload of a dashboard_update broadcast.
type Update struct {
	Summary       projection.Summary   `json:"summary"`
	Organizations projection.View      `json:"organizations"`
	Dates         []projection.DateRow `json:"dates"`
	Online        []string             `json:"online"`
	Subscription  subscription.Status  `json:"subscription"`
	Version       uint64               `json:"version"`
}

// Service owns one aggregation store and the latest presence and vendor state.
type Service struct {
	store       *aggregation.Store
	broadcaster Broadcaster
	debounce    time.Duration
	recentDays  int
	now         func() time.Time
	logger      *zap.Logger

	mu      sync.RWMutex
	entries []presence.Entry
	online  presence.Result
	vendor  subscription.Status

	timerMu sync.Mutex
	timer   *time.Timer
	closed  bool
}

// NewService creates a dashboard service around store. broadcaster may be nil.
func NewService(store *aggregation.Store, broadcaster Broadcaster, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Debounce == 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.RecentDays <= 0 {
		opts.RecentDays = projection.DefaultRecentDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:       store,
		broadcaster: broadcaster,
		debounce:    opts.Debounce,
		recentDays:  opts.RecentDays,
		now:         opts.Now,
		logger:      logger,
		online:      presence.Resolve(opts.Now(), nil),
		vendor:      subscription.Evaluate(nil),
	}
}

// ApplyChange applies one change event and schedules a broadcast.
func (s *Service) ApplyChange(ev models.ChangeEvent) (aggregation.Result, error) {
	res, err := s.store.ApplyChange(ev)
	if err != nil {
		metrics.EventsRejected.WithLabelValues(rejectReason(err)).Inc()
		return res, err
	}
	metrics.EventsApplied.WithLabelValues(string(ev.Kind), metrics.Direction(ev.Delta)).Inc()
	if res.Orphan {
		metrics.OrphanRemovals.Inc()
	}
	if res.Changed {
		s.schedule()
	}
	return res, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, aggregation.ErrInvalidRecordKind):
		return "invalid_kind"
	case errors.Is(err, aggregation.ErrInvalidDelta):
		return "invalid_delta"
	default:
		return "other"
	}
}

// UpdatePresence replaces the presence entries and re-resolves the online set.
func (s *Service) UpdatePresence(entries []presence.Entry) {
	s.mu.Lock()
	s.entries = entries
	s.online = presence.Resolve(s.now(), entries)
	count := s.online.Count
	s.mu.Unlock()

	metrics.PresenceResolutions.WithLabelValues("snapshot").Inc()
	metrics.OnlineOrganizations.Set(float64(count))
	s.schedule()
}

// ApplyPresenceSnapshot decodes a raw presence-store snapshot and applies it.
func (s *Service) ApplyPresenceSnapshot(raw []byte) error {
	entries, err := presence.DecodeSnapshot(raw)
	if err != nil {
		return fmt.Errorf("decode presence: %w", err)
	}
	s.UpdatePresence(entries)
	return nil
}

// RefreshPresence re-resolves the last entries against the current time, so
// sessions expire without a new snapshot. It broadcasts only when the online
// set changed and reports whether it did.
func (s *Service) RefreshPresence() bool {
	s.mu.Lock()
	next := presence.Resolve(s.now(), s.entries)
	changed := !slices.Equal(next.Online, s.online.Online)
	s.online = next
	s.mu.Unlock()

	metrics.PresenceResolutions.WithLabelValues("tick").Inc()
	if changed {
		metrics.OnlineOrganizations.Set(float64(next.Count))
		s.schedule()
	}
	return changed
}

// RunPresenceTicker calls RefreshPresence every interval until ctx is cancelled.
func (s *Service) RunPresenceTicker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.RefreshPresence() {
				s.logger.Debug("presence expired", zap.Int("online", s.Online().Count))
			}
		}
	}
}

// SetVendorAccount evaluates and stores the vendor subscription card.
func (s *Service) SetVendorAccount(acct *models.VendorAccount) {
	st := subscription.Evaluate(acct)
	s.mu.Lock()
	changed := st != s.vendor
	s.vendor = st
	s.mu.Unlock()
	if changed {
		s.logger.Info("vendor subscription changed", zap.String("tier", st.Tier), zap.String("status", st.Status))
		s.schedule()
	}
}

// Subscription returns the current vendor subscription card.
func (s *Service) Subscription() subscription.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vendor
}

// Online returns the current online set.
func (s *Service) Online() presence.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

// Snapshot returns a copy of the aggregates.
func (s *Service) Snapshot() aggregation.Snapshot {
	return s.store.Snapshot()
}

// Summary returns the headline counters.
func (s *Service) Summary() projection.Summary {
	return projection.Summarize(s.store.Snapshot(), s.Online())
}

// Organizations projects the organization table.
func (s *Service) Organizations(q projection.Query) projection.View {
	return projection.Project(s.store.Snapshot(), s.Online(), q)
}

// RecentDates returns the latest n date buckets; n <= 0 uses the configured default.
func (s *Service) RecentDates(n int) []projection.DateRow {
	if n <= 0 {
		n = s.recentDays
	}
	return projection.RecentDates(s.store.Snapshot(), n)
}

// Update builds the full dashboard payload for q.
func (s *Service) Update(q projection.Query) Update {
	snap := s.store.Snapshot()
	online := s.Online()
	return Update{
		Summary:       projection.Summarize(snap, online),
		Organizations: projection.Project(snap, online, q),
		Dates:         projection.RecentDates(snap, s.recentDays),
		Online:        projection.SortedOnline(online),
		Subscription:  s.Subscription(),
		Version:       snap.Version,
	}
}

// Current returns the default dashboard payload.
func (s *Service) Current() any {
	return s.Update(projection.Query{})
}

// Query projects the organization table for a JSON encoded projection.Query.
func (s *Service) Query(raw json.RawMessage) (any, error) {
	var q projection.Query
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
		}
	}
	return s.Organizations(q), nil
}

// schedule arranges a broadcast. Changes arriving while one is pending are
// folded into it, so viewers see at most one update per debounce window.
func (s *Service) schedule() {
	if s.debounce < 0 {
		s.broadcast()
		return
	}
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.closed || s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(s.debounce, s.fire)
}

func (s *Service) fire() {
	s.timerMu.Lock()
	s.timer = nil
	closed := s.closed
	s.timerMu.Unlock()
	if !closed {
		s.broadcast()
	}
}

// Flush cancels a pending broadcast and broadcasts immediately.
func (s *Service) Flush() {
	s.timerMu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerMu.Unlock()
	s.broadcast()
}

// Close stops pending and future broadcasts.
func (s *Service) Close() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Service) broadcast() {
	u := s.Update(projection.Query{})
	metrics.Enrollments.WithLabelValues(string(models.KindStudent)).Set(float64(u.Summary.Students))
	metrics.Enrollments.WithLabelValues(string(models.KindStaff)).Set(float64(u.Summary.Staff))
	metrics.Organizations.Set(float64(u.Summary.Organizations))
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Broadcast(realtime.EventDashboardUpdate, u)
	metrics.Broadcasts.Inc()
}
