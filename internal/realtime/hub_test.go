package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(id string, buf int) *Client {
	return &Client{ID: id, send: make(chan WSMessage, buf)}
}

func TestHubBroadcast(t *testing.T) {
	h := NewHub(nil)
	a, b := newTestClient("a", 1), newTestClient("b", 1)
	h.Register(a)
	h.Register(b)
	assert.Equal(t, 2, h.ViewerCount())

	h.Broadcast(EventDashboardUpdate, map[string]int{"students": 3})
	for _, c := range []*Client{a, b} {
		msg := <-c.send
		assert.Equal(t, EventDashboardUpdate, msg.Event)
		assert.JSONEq(t, `{"students":3}`, string(msg.Data))
	}

	// Full buffers drop instead of blocking.
	h.Broadcast(EventDashboardUpdate, json.RawMessage(`1`))
	h.Broadcast(EventDashboardUpdate, json.RawMessage(`2`))
	msg := <-a.send
	assert.Equal(t, `1`, string(msg.Data))
	assert.Empty(t, a.send)

	h.Unregister(a)
	h.Unregister(a)
	_, open := <-a.send
	assert.False(t, open)
	assert.Equal(t, 1, h.ViewerCount())
}

func TestHubSendToClient(t *testing.T) {
	h := NewHub(nil)
	a, b := newTestClient("a", 4), newTestClient("b", 4)
	h.Register(a)
	h.Register(b)

	h.SendToClient("a", EventPong, nil)
	h.SendToClient("missing", EventPong, nil)

	require.Len(t, a.send, 1)
	msg := <-a.send
	assert.Equal(t, EventPong, msg.Event)
	assert.Nil(t, msg.Data)
	assert.Empty(t, b.send)
}

func TestHubBroadcastUnencodable(t *testing.T) {
	h := NewHub(nil)
	a := newTestClient("a", 1)
	h.Register(a)
	h.Broadcast(EventDashboardUpdate, func() {})
	assert.Empty(t, a.send)
}
