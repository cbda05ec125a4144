package feed

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/identmakers/roots-dashboard/internal/models"
)

// AccountSource reads the vendor account.
type AccountSource interface {
	Get(ctx context.Context) (*models.VendorAccount, error)
}

// AccountSink receives the latest vendor account.
type AccountSink interface {
	SetVendorAccount(acct *models.VendorAccount)
}

const defaultVendorInterval = 30 * time.Second

// VendorPoller refreshes the vendor account on a fixed interval.
type VendorPoller struct {
	source   AccountSource
	sink     AccountSink
	interval time.Duration
	logger   *zap.Logger
}

// NewVendorPoller creates a poller; a non-positive interval defaults to 30s.
func NewVendorPoller(source AccountSource, sink AccountSink, interval time.Duration, logger *zap.Logger) *VendorPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = defaultVendorInterval
	}
	return &VendorPoller{source: source, sink: sink, interval: interval, logger: logger}
}

// Poll reads the account once. On error the sink keeps its previous value.
func (p *VendorPoller) Poll(ctx context.Context) error {
	acct, err := p.source.Get(ctx)
	if err != nil {
		p.logger.Warn("vendor account poll failed", zap.Error(err))
		return err
	}
	p.sink.SetVendorAccount(acct)
	return nil
}

// Run polls immediately and then every interval until ctx is cancelled.
func (p *VendorPoller) Run(ctx context.Context) {
	_ = p.Poll(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.Poll(ctx)
		}
	}
}
