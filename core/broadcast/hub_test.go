package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-sense/core/dispatch"
	"github.com/koscakluka/ema-sense/core/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	messages [][]byte
	failing  bool
	closed   bool
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("broken pipe")
	}
	c.messages = append(c.messages, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestHandleWritesToEveryPeer(t *testing.T) {
	hub := NewHub()
	first, second := &fakeConn{}, &fakeConn{}
	hub.Add(first)
	hub.Add(second)

	event := events.NewResponseGenerated("Greetings, Sir.")
	require.NoError(t, hub.Handle(context.Background(), event))

	for _, conn := range []*fakeConn{first, second} {
		require.Len(t, conn.messages, 1)
		var message Message
		require.NoError(t, json.Unmarshal(conn.messages[0], &message))
		assert.Equal(t, "brain.response.generated", message.Kind)
		assert.Equal(t, "Greetings, Sir.", message.Payload[events.KeyText])
		assert.True(t, event.Timestamp().Equal(message.Timestamp))
	}
}

func TestFailingPeerIsDroppedWithoutError(t *testing.T) {
	hub := NewHub()
	healthy, broken := &fakeConn{}, &fakeConn{failing: true}
	hub.Add(healthy)
	hub.Add(broken)

	err := hub.Handle(context.Background(), events.NewSpeakingStarted("hi"))

	assert.NoError(t, err)
	assert.Equal(t, 1, hub.Len())
	assert.True(t, broken.closed)
	assert.Len(t, healthy.messages, 1)
}

func TestHandleWithoutPeers(t *testing.T) {
	hub := NewHub()
	assert.NoError(t, hub.Handle(context.Background(), events.NewUserLost()))
}

func TestRemoveUnknownPeerIsIgnored(t *testing.T) {
	hub := NewHub()
	conn := &fakeConn{}
	id := hub.Add(conn)

	hub.Remove("missing")
	assert.Equal(t, 1, hub.Len())

	hub.Remove(id)
	assert.Zero(t, hub.Len())
	assert.True(t, conn.closed)
}

func TestRegisterSubscribesDefaultKinds(t *testing.T) {
	d := dispatch.New()
	hub := NewHub()
	hub.Register(d)

	for _, kind := range DefaultKinds() {
		assert.Equal(t, 1, d.Subscriptions(kind), kind)
	}
	assert.Zero(t, d.Subscriptions(events.KindUserPresenceDetected))
}

func TestBroadcastOverWebsocket(t *testing.T) {
	hub := NewHub()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Add(conn)
	}))
	defer server.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, time.Millisecond)

	d := dispatch.New()
	hub.Register(d)
	d.Publish(context.Background(), events.NewUserIdentified("Master"))

	var message Message
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, client.ReadJSON(&message))
	assert.Equal(t, events.KindUserIdentified.String(), message.Kind)
	assert.Equal(t, "Master", message.Payload[events.KeyUser])

	require.NoError(t, hub.Close())
	assert.Zero(t, hub.Len())
}

func TestSchemaDescribesBothDirections(t *testing.T) {
	data, err := json.Marshal(Schema())
	require.NoError(t, err)

	assert.Contains(t, string(data), `"Message"`)
	assert.Contains(t, string(data), `"Control"`)
	assert.Contains(t, string(data), `"timestamp"`)
}
