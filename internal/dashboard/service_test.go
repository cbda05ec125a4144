package dashboard

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identmakers/roots-dashboard/internal/aggregation"
	"github.com/identmakers/roots-dashboard/internal/models"
	"github.com/identmakers/roots-dashboard/internal/presence"
	"github.com/identmakers/roots-dashboard/internal/projection"
	"github.com/identmakers/roots-dashboard/internal/realtime"
	"github.com/identmakers/roots-dashboard/internal/subscription"
)

type recordingBroadcaster struct {
	mu      sync.Mutex
	updates []Update
}

func (b *recordingBroadcaster) Broadcast(event string, payload interface{}) {
	if event != realtime.EventDashboardUpdate {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, payload.(Update))
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.updates)
}

func (b *recordingBroadcaster) last() Update {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.updates[len(b.updates)-1]
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T, debounce time.Duration) (*Service, *recordingBroadcaster, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2024, time.September, 5, 10, 0, 0, 0, time.UTC)}
	b := &recordingBroadcaster{}
	svc := NewService(aggregation.New(nil), b, Options{Debounce: debounce, Now: clk.Now}, nil)
	t.Cleanup(svc.Close)
	return svc, b, clk
}

func apply(t *testing.T, svc *Service, org string, kind models.RecordKind, delta int, id string) aggregation.Result {
	t.Helper()
	res, err := svc.ApplyChange(models.ChangeEvent{Organization: org, Kind: kind, Delta: delta, EnrollmentID: id})
	require.NoError(t, err)
	return res
}

func TestServiceBroadcastsUpdates(t *testing.T) {
	svc, b, _ := newTestService(t, -1)

	apply(t, svc, "Maple High", models.KindStudent, 1, "MAPLEAB05SEP20241234")
	apply(t, svc, "Oak School", models.KindStaff, 1, "OAKSCHL06SEP20241234")

	require.Equal(t, 2, b.count())
	u := b.last()
	assert.Equal(t, projection.Summary{Students: 1, Staff: 1, Total: 2, Organizations: 2}, u.Summary)
	require.Len(t, u.Organizations.Rows, 2)
	assert.Equal(t, "Maple High", u.Organizations.Rows[0].Name)
	require.Len(t, u.Dates, 2)
	assert.Equal(t, "2024-09-06", u.Dates[0].Date)
	assert.Equal(t, subscription.StatusUnknown, u.Subscription.Status)
	assert.Equal(t, uint64(2), u.Version)
	assert.Empty(t, u.Online)
}

func TestServiceRejectsCallerBugs(t *testing.T) {
	svc, b, _ := newTestService(t, -1)

	_, err := svc.ApplyChange(models.ChangeEvent{Organization: "Maple High", Kind: "parent", Delta: 1})
	assert.ErrorIs(t, err, aggregation.ErrInvalidRecordKind)
	_, err = svc.ApplyChange(models.ChangeEvent{Organization: "Maple High", Kind: models.KindStaff, Delta: 3})
	assert.ErrorIs(t, err, aggregation.ErrInvalidDelta)
	assert.Zero(t, b.count())
}

func TestServiceDebounceCoalesces(t *testing.T) {
	svc, b, _ := newTestService(t, time.Hour)

	for i := 0; i < 5; i++ {
		apply(t, svc, "Maple High", models.KindStudent, 1, "")
	}
	assert.Zero(t, b.count())

	svc.Flush()
	require.Equal(t, 1, b.count())
	assert.Equal(t, 5, b.last().Summary.Students)
}

func TestServiceDebounceFires(t *testing.T) {
	svc, b, _ := newTestService(t, 10*time.Millisecond)

	apply(t, svc, "Maple High", models.KindStudent, 1, "")
	apply(t, svc, "Maple High", models.KindStaff, 1, "")

	assert.Eventually(t, func() bool { return b.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, b.last().Summary.Total)
}

func TestServiceCloseStopsBroadcasts(t *testing.T) {
	svc, b, _ := newTestService(t, 30*time.Millisecond)

	apply(t, svc, "Maple High", models.KindStudent, 1, "")
	svc.Close()
	apply(t, svc, "Maple High", models.KindStudent, 1, "")

	assert.Never(t, func() bool { return b.count() > 0 }, 80*time.Millisecond, 5*time.Millisecond)
}

func TestServicePresence(t *testing.T) {
	svc, b, clk := newTestService(t, -1)
	apply(t, svc, "Maple High", models.KindStudent, 1, "")
	apply(t, svc, "Oak School", models.KindStudent, 1, "")

	now := clk.Now().UnixMilli()
	svc.UpdatePresence([]presence.Entry{
		{Key: "a", Sessions: []models.SessionRecord{
			{Organization: "maple high", Status: models.StatusOnline, ExpiresAt: now + 60_000},
		}},
		{Key: "b", Sessions: []models.SessionRecord{
			{Organization: "Oak School", Status: models.StatusOnline, ExpiresAt: now + 5*60_000},
		}},
	})

	assert.Equal(t, 2, svc.Online().Count)
	assert.Equal(t, 2, svc.Summary().Online)
	view := svc.Organizations(projection.Query{Search: "maple"})
	require.Len(t, view.Rows, 1)
	assert.True(t, view.Rows[0].Online)
	assert.Equal(t, 1, view.OnlineInView)

	broadcasts := b.count()
	assert.False(t, svc.RefreshPresence())
	assert.Equal(t, broadcasts, b.count())

	clk.Advance(2 * time.Minute)
	assert.True(t, svc.RefreshPresence())
	assert.Equal(t, []string{"Oak School"}, svc.Online().Online)
	assert.Equal(t, broadcasts+1, b.count())
	assert.Equal(t, []string{"Oak School"}, b.last().Online)
}

func TestServiceApplyPresenceSnapshot(t *testing.T) {
	svc, _, clk := newTestService(t, -1)

	raw := []byte(`{"x":{"s1":{"schoolName":"Maple High","status":"online","expiresAt":` +
		jsonInt(clk.Now().UnixMilli()+1000) + `}}}`)
	require.NoError(t, svc.ApplyPresenceSnapshot(raw))
	assert.True(t, svc.Online().IsOnline("MAPLE HIGH"))

	err := svc.ApplyPresenceSnapshot([]byte(`[1,2]`))
	assert.ErrorIs(t, err, presence.ErrInvalidSnapshot)
	assert.Equal(t, 1, svc.Online().Count)

	require.NoError(t, svc.ApplyPresenceSnapshot(nil))
	assert.Zero(t, svc.Online().Count)
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestServiceVendorAccount(t *testing.T) {
	svc, b, _ := newTestService(t, -1)
	assert.Equal(t, subscription.StatusUnknown, svc.Subscription().Status)

	acct := &models.VendorAccount{Due: 1200}
	svc.SetVendorAccount(acct)
	assert.Equal(t, subscription.TierPaymentDue, svc.Subscription().Tier)
	assert.Equal(t, 1, b.count())

	svc.SetVendorAccount(&models.VendorAccount{Due: 1200})
	assert.Equal(t, 1, b.count())
}

func TestServiceQuery(t *testing.T) {
	svc, _, _ := newTestService(t, -1)
	apply(t, svc, "Maple High", models.KindStudent, 1, "")
	apply(t, svc, "Oak School", models.KindStudent, 1, "")
	apply(t, svc, "Oak School", models.KindStaff, 1, "")

	got, err := svc.Query(json.RawMessage(`{"search":"","sort":"high"}`))
	require.NoError(t, err)
	view := got.(projection.View)
	require.Len(t, view.Rows, 2)
	assert.Equal(t, "Oak School", view.Rows[0].Name)

	got, err = svc.Query(nil)
	require.NoError(t, err)
	assert.Len(t, got.(projection.View).Rows, 2)

	_, err = svc.Query(json.RawMessage(`"oak"`))
	assert.ErrorIs(t, err, ErrInvalidQuery)

	cur := svc.Current().(Update)
	assert.Equal(t, 3, cur.Summary.Total)
}

func TestServiceRecentDatesDefault(t *testing.T) {
	svc, _, _ := newTestService(t, -1)
	for day := 1; day <= 9; day++ {
		id := "MAPLEAB0" + string(rune('0'+day)) + "SEP20241234"
		apply(t, svc, "Maple High", models.KindStudent, 1, id)
	}

	assert.Len(t, svc.RecentDates(0), projection.DefaultRecentDays)
	rows := svc.RecentDates(2)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-09-09", rows[0].Date)
	assert.Equal(t, "09 Sep", rows[0].Label)
}
