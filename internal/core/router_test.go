package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/core/coretest"
	"github.com/dkeye/Huddle/internal/domain"
)

func TestRouter_SubscribeIsIdempotent(t *testing.T) {
	r := core.NewChannelRouter()
	r.Attach("c1", coretest.NewConn())

	assert.True(t, r.Subscribe("c1", "general"))
	assert.False(t, r.Subscribe("c1", "general"))
	assert.Equal(t, []core.ConnectionID{"c1"}, r.Subscribers("general"))
}

func TestRouter_SubscribeUnknownConnection(t *testing.T) {
	r := core.NewChannelRouter()
	assert.False(t, r.Subscribe("ghost", "general"))
	assert.Empty(t, r.Subscribers("general"))
}

func TestRouter_UnsubscribeIsIdempotent(t *testing.T) {
	r := core.NewChannelRouter()
	r.Attach("c1", coretest.NewConn())
	r.Subscribe("c1", "general")

	assert.True(t, r.Unsubscribe("c1", "general"))
	assert.False(t, r.Unsubscribe("c1", "general"))
	assert.Empty(t, r.ChannelsOf("c1"))
}

func TestRouter_BroadcastExcludesOnlyTheExcludedConnection(t *testing.T) {
	r := core.NewChannelRouter()
	a, b, outsider := coretest.NewConn(), coretest.NewConn(), coretest.NewConn()
	r.Attach("a", a)
	r.Attach("b", b)
	r.Attach("x", outsider)
	r.Subscribe("a", "general")
	r.Subscribe("b", "general")

	res := r.Broadcast("general", core.NewUserTyping("u1", "general", true), "a")

	assert.Equal(t, 1, res.SentTo)
	assert.Empty(t, a.Events())
	require.Len(t, b.Events(), 1)
	assert.Equal(t, core.EventUserTyping, b.Events()[0]["type"])
	assert.Empty(t, outsider.Events())
}

func TestRouter_BroadcastGlobalReachesEveryConnection(t *testing.T) {
	r := core.NewChannelRouter()
	a, b := coretest.NewConn(), coretest.NewConn()
	r.Attach("a", a)
	r.Attach("b", b)

	res := r.BroadcastGlobal(core.NewPresenceUpdate("u1", true, domainNow()), "a")

	assert.Equal(t, 1, res.SentTo)
	assert.Empty(t, a.Events())
	assert.Len(t, b.OfType(core.EventPresenceUpdate), 1)
}

func TestRouter_DetachRemovesEverySubscription(t *testing.T) {
	r := core.NewChannelRouter()
	r.Attach("c1", coretest.NewConn())
	r.Subscribe("c1", "general")
	r.Subscribe("c1", "random")

	left := r.Detach("c1")

	assert.Equal(t, []domain.ChannelID{"general", "random"}, left)
	assert.Empty(t, r.Subscribers("general"))
	assert.Empty(t, r.Subscribers("random"))
	assert.Equal(t, 0, r.ConnectionCount())
	assert.ErrorIs(t, r.Unicast("c1", core.ErrorEvent{Type: core.EventError}), core.ErrConnectionClosed)
}

func TestRouter_BroadcastReportsBackpressure(t *testing.T) {
	r := core.NewChannelRouter()
	slow := coretest.NewBoundedConn(1)
	r.Attach("slow", slow)
	r.Subscribe("slow", "general")

	first := r.Broadcast("general", core.NewUserTyping("u1", "general", true), "")
	second := r.Broadcast("general", core.NewUserTyping("u1", "general", false), "")

	assert.Equal(t, 1, first.SentTo)
	assert.Equal(t, []core.ConnectionID{"slow"}, second.Dropped)
}

func TestRouter_ClosedConnectionIsNotReportedAsDropped(t *testing.T) {
	r := core.NewChannelRouter()
	conn := coretest.NewConn()
	r.Attach("c1", conn)
	r.Subscribe("c1", "general")
	conn.Close()

	res := r.Broadcast("general", core.NewUserTyping("u1", "general", true), "")

	assert.Equal(t, 0, res.SentTo)
	assert.Empty(t, res.Dropped)
}
