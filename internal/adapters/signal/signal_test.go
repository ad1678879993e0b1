package signal

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/store"
)

type wsHarness struct {
	srv  *httptest.Server
	orch *orch.Orchestrator
}

func newWSHarness(t *testing.T, opts Options) *wsHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.OpenSQLite(":memory:", false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	router := core.NewChannelRouter()
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Router:   router,
		Presence: core.NewPresenceTracker(st, router),
		Policy:   app.SimplePolicy{},
		Messages: st,
		Members:  st,
		Options:  orch.Options{MaxMessageLen: 20},
	}
	ctl := NewSignalWSController(o, opts)

	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		if uid := c.Query("uid"); uid != "" {
			c.Set(UserKey, &domain.User{ID: domain.UserID(uid), Username: uid})
		}
		ctl.HandleSignal(ctx, c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		o.Shutdown()
		cancel()
		srv.Close()
	})
	return &wsHarness{srv: srv, orch: o}
}

func (h *wsHarness) dial(t *testing.T, uid string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws?uid=" + uid
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil returns the first event of type typ, skipping others.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var ev map[string]any
		require.NoError(t, conn.ReadJSON(&ev))
		if ev["type"] == typ {
			return ev
		}
	}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.RateBurst = 0
	return opts
}

func TestSignal_UnauthenticatedRequestIsRejected(t *testing.T) {
	h := newWSHarness(t, testOptions())
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestSignal_PingPong(t *testing.T) {
	h := newWSHarness(t, testOptions())
	conn := h.dial(t, "alice")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	readUntil(t, conn, core.EventPong)
}

func TestSignal_JoinSendAck(t *testing.T) {
	h := newWSHarness(t, testOptions())
	conn := h.dial(t, "alice")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "join_channel", "channelId": "general"}))
	hist := readUntil(t, conn, core.EventChannelHistory)
	assert.Equal(t, "general", hist["channelId"])
	assert.Empty(t, hist["messages"])

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "send_message", "channelId": "general", "content": "hello", "clientId": "tmp-1",
	}))
	msg := readUntil(t, conn, core.EventNewMessage)
	assert.Equal(t, "hello", msg["content"])
	assert.Equal(t, "alice", msg["userId"])

	ack := readUntil(t, conn, core.EventMessageAck)
	assert.Equal(t, "tmp-1", ack["clientId"])
	assert.Equal(t, msg["id"], ack["messageId"])
	assert.Equal(t, "general", ack["channelId"])
}

func TestSignal_ErrorsKeepConnectionOpen(t *testing.T) {
	h := newWSHarness(t, testOptions())
	conn := h.dial(t, "alice")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	ev := readUntil(t, conn, core.EventError)
	assert.Equal(t, "bad_payload", ev["error"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "send_message", "channelId": "general", "content": "  ", "clientId": "x"}))
	ev = readUntil(t, conn, core.EventError)
	assert.Equal(t, "send_message", ev["event"])
	assert.Equal(t, "invalid_payload", ev["error"])
	assert.Equal(t, "x", ev["clientId"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "send_message", "channelId": "general", "content": strings.Repeat("a", 21)}))
	ev = readUntil(t, conn, core.EventError)
	assert.Equal(t, "invalid_payload", ev["error"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "shout"}))
	ev = readUntil(t, conn, core.EventError)
	assert.Equal(t, "unknown_event", ev["error"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	readUntil(t, conn, core.EventPong)
}

func TestSignal_RateLimitedSend(t *testing.T) {
	opts := DefaultOptions()
	opts.RateBurst = 1
	opts.RateInterval = time.Minute
	h := newWSHarness(t, opts)
	conn := h.dial(t, "alice")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "join_channel", "channelId": "general"}))
	readUntil(t, conn, core.EventChannelHistory)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "send_message", "channelId": "general", "content": "one"}))
	readUntil(t, conn, core.EventMessageAck)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "send_message", "channelId": "general", "content": "two", "clientId": "c-2"}))
	ev := readUntil(t, conn, core.EventError)
	assert.Equal(t, "rate_limited", ev["error"])
	assert.Equal(t, "c-2", ev["clientId"])
}

func TestSignal_PresenceAndTypingBetweenUsers(t *testing.T) {
	h := newWSHarness(t, testOptions())
	alice := h.dial(t, "alice")
	require.NoError(t, alice.WriteJSON(map[string]any{"type": "join_channel", "channelId": "general"}))
	readUntil(t, alice, core.EventChannelHistory)

	bob := h.dial(t, "bob")
	online := readUntil(t, alice, core.EventPresenceUpdate)
	assert.Equal(t, "bob", online["userId"])
	assert.Equal(t, true, online["online"])

	require.NoError(t, bob.WriteJSON(map[string]any{"type": "join_channel", "channelId": "general"}))
	readUntil(t, bob, core.EventChannelHistory)
	require.NoError(t, bob.WriteJSON(map[string]any{"type": "typing", "channelId": "general", "isTyping": true}))

	typing := readUntil(t, alice, core.EventUserTyping)
	assert.Equal(t, "bob", typing["userId"])
	assert.Equal(t, true, typing["isTyping"])

	require.NoError(t, bob.Close())
	offline := readUntil(t, alice, core.EventPresenceUpdate)
	assert.Equal(t, "bob", offline["userId"])
	assert.Equal(t, false, offline["online"])
	assert.Contains(t, offline, "lastSeen")
}
