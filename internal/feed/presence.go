package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultPresenceKey holds the whole presence snapshot as JSON.
	DefaultPresenceKey = "presence:sessions"
	// DefaultPresenceChannel announces snapshot changes.
	DefaultPresenceChannel = "presence:updates"
)

// PresenceSink receives raw presence snapshots.
type PresenceSink interface {
	ApplyPresenceSnapshot(raw []byte) error
}

// PresenceFeed follows the presence snapshot stored in Redis. Writers SET the
// key and PUBLISH on the channel; a message carrying the snapshot is applied
// as is, an empty message makes the feed reload the key.
type PresenceFeed struct {
	client  *redis.Client
	key     string
	channel string
	load    func(ctx context.Context) ([]byte, error)
	logger  *zap.Logger
}

// NewPresenceFeed creates a presence feed. Empty names fall back to the defaults.
func NewPresenceFeed(client *redis.Client, key, channel string, logger *zap.Logger) *PresenceFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	if key == "" {
		key = DefaultPresenceKey
	}
	if channel == "" {
		channel = DefaultPresenceChannel
	}
	f := &PresenceFeed{client: client, key: key, channel: channel, logger: logger}
	f.load = f.Load
	return f
}

// Load returns the stored snapshot, or nil when the key does not exist.
func (f *PresenceFeed) Load(ctx context.Context) ([]byte, error) {
	raw, err := f.client.Get(ctx, f.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", f.key, err)
	}
	return raw, nil
}

// Sync loads the stored snapshot into sink.
func (f *PresenceFeed) Sync(ctx context.Context, sink PresenceSink) error {
	raw, err := f.load(ctx)
	if err != nil {
		return err
	}
	return sink.ApplyPresenceSnapshot(raw)
}

// Subscribe listens on the update channel and feeds every change to sink.
// Returns a cancel function to stop the subscription.
func (f *PresenceFeed) Subscribe(ctx context.Context, sink PresenceSink) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(ctx)
	pubsub := f.client.Subscribe(ctx, f.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				f.handle(ctx, msg.Payload, sink)
			}
		}
	}()
	return cancelCtx, nil
}

func (f *PresenceFeed) handle(ctx context.Context, payload string, sink PresenceSink) {
	var err error
	if payload == "" {
		err = f.Sync(ctx, sink)
	} else {
		err = sink.ApplyPresenceSnapshot([]byte(payload))
	}
	if err != nil {
		f.logger.Warn("presence update rejected", zap.String("channel", f.channel), zap.Error(err))
	}
}
