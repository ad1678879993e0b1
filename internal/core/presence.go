package core

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/metrics"
	"github.com/rs/zerolog/log"
)

// PresenceWriter persists presence rows. Writes are best-effort.
type PresenceWriter interface {
	UpsertPresence(ctx context.Context, rec domain.PresenceRecord) error
	MarkOffline(ctx context.Context, connectionID string, at time.Time) error
}

// GlobalNotifier fans an event out to every live connection.
type GlobalNotifier interface {
	BroadcastGlobal(v any, exclude ConnectionID) PublishResult
}

// PresenceTracker maps connections to users and derives each user's online
// state from the set of that user's live connections.
type PresenceTracker struct {
	mu       sync.Mutex
	byConn   map[ConnectionID]domain.UserID
	byUser   map[domain.UserID]map[ConnectionID]struct{}
	lastSeen map[domain.UserID]time.Time

	store  PresenceWriter
	notify GlobalNotifier
	now    func() time.Time
}

// NewPresenceTracker builds a tracker. store may be nil.
func NewPresenceTracker(store PresenceWriter, notify GlobalNotifier) *PresenceTracker {
	return &PresenceTracker{
		byConn:   make(map[ConnectionID]domain.UserID),
		byUser:   make(map[domain.UserID]map[ConnectionID]struct{}),
		lastSeen: make(map[domain.UserID]time.Time),
		store:    store,
		notify:   notify,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RegisterConnection marks cid online for uid and tells every other
// connection that uid is online. The result lists peers whose buffer was full.
func (t *PresenceTracker) RegisterConnection(ctx context.Context, cid ConnectionID, uid domain.UserID) PublishResult {
	now := t.now()
	var res PublishResult

	t.mu.Lock()
	if prev, ok := t.byConn[cid]; ok && prev != uid {
		t.dropLocked(cid, prev)
	}
	t.byConn[cid] = uid
	conns, ok := t.byUser[uid]
	if !ok {
		conns = make(map[ConnectionID]struct{})
		t.byUser[uid] = conns
	}
	conns[cid] = struct{}{}
	t.lastSeen[uid] = now
	metrics.OnlineUsers.Set(float64(len(t.byUser)))
	// Emitted under the lock so online/offline transitions of one user reach
	// peers in the order they happened.
	if t.notify != nil {
		res = t.notify.BroadcastGlobal(NewPresenceUpdate(uid, true, now), cid)
	}
	live := len(conns)
	t.mu.Unlock()

	log.Info().Str("module", "core.presence").Str("conn", string(cid)).Str("user", string(uid)).Int("live", live).Msg("connection registered")

	if t.store != nil {
		rec := domain.PresenceRecord{ConnectionID: string(cid), UserID: uid, Online: true, LastSeen: now}
		if err := t.store.UpsertPresence(ctx, rec); err != nil {
			log.Error().Err(err).Str("module", "core.presence").Str("conn", string(cid)).Msg("presence upsert failed")
		}
	}
	return res
}

// DeregisterConnection flags cid offline. The offline event fires only when
// it was the user's last live connection; offline reports whether that
// happened and res carries the offline broadcast outcome.
func (t *PresenceTracker) DeregisterConnection(ctx context.Context, cid ConnectionID) (offline bool, res PublishResult) {
	now := t.now()

	t.mu.Lock()
	uid, ok := t.byConn[cid]
	if !ok {
		t.mu.Unlock()
		return false, res
	}
	remaining := t.dropLocked(cid, uid)
	t.lastSeen[uid] = now
	metrics.OnlineUsers.Set(float64(len(t.byUser)))
	if remaining == 0 && t.notify != nil {
		res = t.notify.BroadcastGlobal(NewPresenceUpdate(uid, false, now), cid)
	}
	t.mu.Unlock()

	log.Info().Str("module", "core.presence").Str("conn", string(cid)).Str("user", string(uid)).Int("remaining", remaining).Msg("connection deregistered")

	if t.store != nil {
		if err := t.store.MarkOffline(ctx, string(cid), now); err != nil {
			log.Error().Err(err).Str("module", "core.presence").Str("conn", string(cid)).Msg("presence mark offline failed")
		}
	}
	return remaining == 0, res
}

func (t *PresenceTracker) dropLocked(cid ConnectionID, uid domain.UserID) int {
	delete(t.byConn, cid)
	conns := t.byUser[uid]
	delete(conns, cid)
	if len(conns) == 0 {
		delete(t.byUser, uid)
		return 0
	}
	return len(conns)
}

func (t *PresenceTracker) IsOnline(uid domain.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byUser[uid]) > 0
}

// ListOnlineUserIDs returns the distinct online users, sorted.
func (t *PresenceTracker) ListOnlineUserIDs() []domain.UserID {
	t.mu.Lock()
	out := make([]domain.UserID, 0, len(t.byUser))
	for uid := range t.byUser {
		out = append(out, uid)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LastSeen reports the last connect or disconnect seen for uid in this process.
func (t *PresenceTracker) LastSeen(uid domain.UserID) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.lastSeen[uid]
	return ts, ok
}

func (t *PresenceTracker) ConnectionCount(uid domain.UserID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byUser[uid])
}
