package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	User        domain.User
	Signal      core.SignalConnection
	Cancel      context.CancelFunc
	ConnectedAt time.Time
}

// Registry is the table of authenticated connections: who owns each one and
// how to tear it down.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.ConnectionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.ConnectionID]*sessionEntry),
	}
}

func (r *Registry) Bind(
	cid core.ConnectionID,
	user domain.User,
	sig core.SignalConnection,
	cancel context.CancelFunc,
) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[cid] = &sessionEntry{
		User:        user,
		Signal:      sig,
		Cancel:      cancel,
		ConnectedAt: time.Now().UTC(),
	}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Str("user", string(user.ID)).Msg("bound session")
}

// UserOf returns the owner of a live connection.
func (r *Registry) UserOf(cid core.ConnectionID) (domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[cid]; ok {
		return e.User, true
	}
	return domain.User{}, false
}

// Unbind forgets the connection and reports whether it was bound.
func (r *Registry) Unbind(cid core.ConnectionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[cid]; !ok {
		return false
	}
	delete(r.sessions, cid)
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("unbind session")
	return true
}

func (r *Registry) All() []core.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.ConnectionID, 0, len(r.sessions))
	for cid := range r.sessions {
		out = append(out, cid)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Cancel stops the connection's pumps and closes its transport. The read
// loop then runs the regular disconnect path.
func (r *Registry) Cancel(cid core.ConnectionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	if e.Signal != nil {
		e.Signal.Close()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("canceled session")
	return true
}
