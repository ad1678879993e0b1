package core

import (
	"errors"
	"sort"
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/metrics"
	"github.com/rs/zerolog/log"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SentTo  int
	Dropped []ConnectionID
}

// channelRoom is the live subscriber set of one channel.
// It never closes adapter-owned resources.
type channelRoom struct {
	id          domain.ChannelID
	mu          sync.RWMutex
	subscribers map[ConnectionID]SignalConnection
}

func newChannelRoom(id domain.ChannelID) *channelRoom {
	return &channelRoom{
		id:          id,
		subscribers: make(map[ConnectionID]SignalConnection),
	}
}

func (r *channelRoom) add(cid ConnectionID, conn SignalConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subscribers[cid]; ok {
		return false
	}
	r.subscribers[cid] = conn
	return true
}

// remove reports whether cid was subscribed and whether the room is now empty.
func (r *channelRoom) remove(cid ConnectionID) (removed, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, removed = r.subscribers[cid]
	delete(r.subscribers, cid)
	return removed, len(r.subscribers) == 0
}

func (r *channelRoom) snapshot() []ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ConnectionID, 0, len(r.subscribers))
	for cid := range r.subscribers {
		out = append(out, cid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *channelRoom) publish(exclude ConnectionID, f Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := deliver(r.subscribers, exclude, f)
	log.Debug().Str("module", "core.router").Str("channel", string(r.id)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// deliver writes f to every target but exclude. Connections that are already
// closed are skipped silently: their teardown is in flight.
func deliver(targets map[ConnectionID]SignalConnection, exclude ConnectionID, f Frame) PublishResult {
	res := PublishResult{}
	for cid, conn := range targets {
		if cid == exclude {
			continue
		}
		err := conn.TrySend(f)
		switch {
		case err == nil:
			res.SentTo++
		case errors.Is(err, ErrBackpressure):
			res.Dropped = append(res.Dropped, cid)
		}
	}
	metrics.EventsDelivered.Add(float64(res.SentTo))
	metrics.EventsDropped.Add(float64(len(res.Dropped)))
	return res
}
