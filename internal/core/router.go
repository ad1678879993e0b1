package core

import (
	"sort"
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// ChannelRouter owns the process-wide connection table and the per-channel
// subscriber sets. Lock order is router.mu before channelRoom.mu.
type ChannelRouter struct {
	mu     sync.RWMutex
	conns  map[ConnectionID]SignalConnection
	joined map[ConnectionID]map[domain.ChannelID]struct{}
	rooms  map[domain.ChannelID]*channelRoom
}

func NewChannelRouter() *ChannelRouter {
	return &ChannelRouter{
		conns:  make(map[ConnectionID]SignalConnection),
		joined: make(map[ConnectionID]map[domain.ChannelID]struct{}),
		rooms:  make(map[domain.ChannelID]*channelRoom),
	}
}

// Attach makes a connection reachable by global broadcasts and unicasts.
func (r *ChannelRouter) Attach(cid ConnectionID, conn SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[cid] = conn
	if _, ok := r.joined[cid]; !ok {
		r.joined[cid] = make(map[domain.ChannelID]struct{})
	}
	log.Debug().Str("module", "core.router").Str("conn", string(cid)).Int("total", len(r.conns)).Msg("connection attached")
}

// Detach forgets the connection and drops every subscription it holds.
// It returns the channels the connection was removed from.
func (r *ChannelRouter) Detach(cid ConnectionID) []domain.ChannelID {
	r.mu.Lock()
	defer r.mu.Unlock()

	channels := make([]domain.ChannelID, 0, len(r.joined[cid]))
	for ch := range r.joined[cid] {
		r.removeLocked(cid, ch)
		channels = append(channels, ch)
	}
	delete(r.joined, cid)
	delete(r.conns, cid)
	sortChannels(channels)
	log.Debug().Str("module", "core.router").Str("conn", string(cid)).Int("channels", len(channels)).Msg("connection detached")
	return channels
}

// Subscribe adds the connection to the channel's live subscriber set. It
// reports false when the connection was already subscribed or is unknown.
func (r *ChannelRouter) Subscribe(cid ConnectionID, ch domain.ChannelID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[cid]
	if !ok {
		log.Warn().Str("module", "core.router").Str("conn", string(cid)).Str("channel", string(ch)).Msg("subscribe for unknown connection")
		return false
	}
	room, ok := r.rooms[ch]
	if !ok {
		room = newChannelRoom(ch)
		r.rooms[ch] = room
	}
	if !room.add(cid, conn) {
		return false
	}
	r.joined[cid][ch] = struct{}{}
	log.Info().Str("module", "core.router").Str("conn", string(cid)).Str("channel", string(ch)).Msg("subscribed")
	return true
}

// Unsubscribe removes the connection from the channel. Idempotent.
func (r *ChannelRouter) Unsubscribe(cid ConnectionID, ch domain.ChannelID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := r.removeLocked(cid, ch)
	if removed {
		log.Info().Str("module", "core.router").Str("conn", string(cid)).Str("channel", string(ch)).Msg("unsubscribed")
	}
	return removed
}

func (r *ChannelRouter) removeLocked(cid ConnectionID, ch domain.ChannelID) bool {
	if set, ok := r.joined[cid]; ok {
		delete(set, ch)
	}
	room, ok := r.rooms[ch]
	if !ok {
		return false
	}
	removed, empty := room.remove(cid)
	if empty {
		delete(r.rooms, ch)
	}
	return removed
}

// Broadcast delivers v to every subscriber of ch except exclude.
func (r *ChannelRouter) Broadcast(ch domain.ChannelID, v any, exclude ConnectionID) PublishResult {
	f, err := Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "core.router").Str("channel", string(ch)).Msg("encode broadcast")
		return PublishResult{}
	}
	r.mu.RLock()
	room, ok := r.rooms[ch]
	r.mu.RUnlock()
	if !ok {
		return PublishResult{}
	}
	return room.publish(exclude, f)
}

// BroadcastGlobal delivers v to every live connection except exclude.
func (r *ChannelRouter) BroadcastGlobal(v any, exclude ConnectionID) PublishResult {
	f, err := Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "core.router").Msg("encode global broadcast")
		return PublishResult{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return deliver(r.conns, exclude, f)
}

// Unicast delivers v to a single connection.
func (r *ChannelRouter) Unicast(cid ConnectionID, v any) error {
	f, err := Encode(v)
	if err != nil {
		return err
	}
	r.mu.RLock()
	conn, ok := r.conns[cid]
	r.mu.RUnlock()
	if !ok {
		return ErrConnectionClosed
	}
	return conn.TrySend(f)
}

// ChannelsOf lists the channels a connection is subscribed to.
func (r *ChannelRouter) ChannelsOf(cid ConnectionID) []domain.ChannelID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ChannelID, 0, len(r.joined[cid]))
	for ch := range r.joined[cid] {
		out = append(out, ch)
	}
	sortChannels(out)
	return out
}

// Subscribers lists the connections subscribed to ch.
func (r *ChannelRouter) Subscribers(ch domain.ChannelID) []ConnectionID {
	r.mu.RLock()
	room, ok := r.rooms[ch]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return room.snapshot()
}

func (r *ChannelRouter) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func sortChannels(chs []domain.ChannelID) {
	sort.Slice(chs, func(i, j int) bool { return chs[i] < chs[j] })
}
