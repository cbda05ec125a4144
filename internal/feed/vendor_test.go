package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identmakers/roots-dashboard/internal/models"
)

type fakeAccounts struct {
	acct *models.VendorAccount
	err  error
}

func (f *fakeAccounts) Get(context.Context) (*models.VendorAccount, error) {
	return f.acct, f.err
}

type accountSink struct {
	calls int
	last  *models.VendorAccount
}

func (s *accountSink) SetVendorAccount(acct *models.VendorAccount) {
	s.calls++
	s.last = acct
}

func TestVendorPollerPoll(t *testing.T) {
	src := &fakeAccounts{acct: &models.VendorAccount{Credits: 500}}
	sink := &accountSink{}
	p := NewVendorPoller(src, sink, 0, nil)
	assert.Equal(t, defaultVendorInterval, p.interval)

	require.NoError(t, p.Poll(context.Background()))
	assert.Equal(t, 1, sink.calls)
	assert.InDelta(t, 500, sink.last.Credits, 0)

	src.err = errors.New("redis down")
	assert.Error(t, p.Poll(context.Background()))
	assert.Equal(t, 1, sink.calls)
}

func TestVendorPollerRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &accountSink{}
	NewVendorPoller(&fakeAccounts{}, sink, 0, nil).Run(ctx)
	assert.Equal(t, 1, sink.calls)
	assert.Nil(t, sink.last)
}
