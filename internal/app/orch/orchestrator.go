package orch

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/metrics"
	"github.com/rs/zerolog/log"
)

// MessageStore is the append-only channel log.
type MessageStore interface {
	// CreateMessage assigns ID and CreatedAt and returns the stored row with
	// its author filled in.
	CreateMessage(ctx context.Context, msg domain.Message) (*domain.Message, error)
	// ListChannelHistory returns up to limit latest messages, oldest first.
	// limit <= 0 means all.
	ListChannelHistory(ctx context.Context, ch domain.ChannelID, limit int) ([]domain.Message, error)
}

// MembershipStore answers whether a user belongs to a channel.
type MembershipStore interface {
	IsMember(ctx context.Context, ch domain.ChannelID, uid domain.UserID) (bool, error)
}

type Options struct {
	// EnforceMembership gates join_channel and send_message on membership.
	EnforceMembership bool
	MaxMessageLen     int
	// HistoryLimit caps channel_history; 0 sends the whole log.
	HistoryLimit int
}

// Orchestrator drives one connection's lifecycle across presence, routing
// and storage.
type Orchestrator struct {
	Registry *app.Registry
	Router   *core.ChannelRouter
	Presence *core.PresenceTracker
	Policy   app.Policy
	Messages MessageStore
	Members  MembershipStore
	Options  Options

	seq channelLocks
}

// Connect runs after the identity was verified.
func (o *Orchestrator) Connect(
	ctx context.Context,
	cid core.ConnectionID,
	user domain.User,
	sig core.SignalConnection,
	cancel context.CancelFunc,
) {
	o.Registry.Bind(cid, user, sig, cancel)
	o.Router.Attach(cid, sig)
	res := o.Presence.RegisterConnection(ctx, cid, user.ID)
	metrics.ActiveConnections.Set(float64(o.Router.ConnectionCount()))
	log.Info().Str("module", "orch").Str("conn", string(cid)).Str("user", string(user.ID)).Msg("connected")
	o.applyPolicy("", res)
}

// Disconnect tears the connection down. Safe to call more than once.
func (o *Orchestrator) Disconnect(ctx context.Context, cid core.ConnectionID) {
	if !o.Registry.Unbind(cid) {
		return
	}
	_, res := o.Presence.DeregisterConnection(ctx, cid)
	channels := o.Router.Detach(cid)
	metrics.ActiveConnections.Set(float64(o.Router.ConnectionCount()))
	log.Info().Str("module", "orch").Str("conn", string(cid)).Int("channels", len(channels)).Msg("disconnected")
	o.applyPolicy("", res)
}

// Kick closes a connection from the server side.
func (o *Orchestrator) Kick(cid core.ConnectionID) {
	if o.Registry.Cancel(cid) {
		metrics.ConnectionsKicked.Inc()
	}
}

// Shutdown closes every live connection; their read loops run Disconnect.
func (o *Orchestrator) Shutdown() {
	for _, cid := range o.Registry.All() {
		o.Registry.Cancel(cid)
	}
}

// Drain waits until every connection has run Disconnect or ctx ends.
func (o *Orchestrator) Drain(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for o.Registry.Count() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (o *Orchestrator) applyPolicy(ch domain.ChannelID, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, cid := range res.Dropped {
		switch o.Policy.OnBackPressure(ch, cid) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("conn", string(cid)).Str("channel", string(ch)).Msg("kicking slow connection")
			o.Kick(cid)
		case app.DropFrame, app.NoAction:
			log.Debug().Str("module", "orch").Str("conn", string(cid)).Str("channel", string(ch)).Msg("frame dropped for slow connection")
		}
	}
}

// channelLocks serializes persistence and fan-out per channel so every
// subscriber observes new_message events in persistence order.
type channelLocks struct {
	m sync.Map // domain.ChannelID -> *sync.Mutex
}

func (l *channelLocks) lock(ch domain.ChannelID) func() {
	v, _ := l.m.LoadOrStore(ch, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
