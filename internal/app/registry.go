package app

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// Session is a registry entry: an authenticated identity bound to its
// connection.
type Session struct {
	ID       core.SessionID
	Identity domain.Identity
	Profile  domain.Profile
	Conn     core.SignalConnection
	JoinedAt time.Time
}

// Registry is the single source of truth for "is this identity online".
// It also keeps the admin observers, which never occupy an identity slot.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.Identity]*Session
	admins   map[core.SessionID]core.SignalConnection
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.Identity]*Session),
		admins:   make(map[core.SessionID]core.SignalConnection),
	}
}

// Register inserts s unless its identity is already bound.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.Identity]; ok {
		log.Info().Str("module", "app.registry").Str("sid", string(s.ID)).Str("username", string(s.Identity)).Msg("username taken")
		return domain.ErrAlreadyTaken
	}
	if s.JoinedAt.IsZero() {
		s.JoinedAt = time.Now()
	}
	r.sessions[s.Identity] = s
	log.Info().Str("module", "app.registry").Str("sid", string(s.ID)).Str("username", string(s.Identity)).Int("total", len(r.sessions)).Msg("registered")
	return nil
}

// Unregister removes id whatever connection holds it.
func (r *Registry) Unregister(id domain.Identity) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("sid", string(s.ID)).Str("username", string(id)).Int("total", len(r.sessions)).Msg("unregistered")
	return s, true
}

// Release removes id only while it is still bound to sid, so a late
// disconnect never drops whoever took the name afterwards.
func (r *Registry) Release(id domain.Identity, sid core.SessionID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.ID != sid {
		return nil, false
	}
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("username", string(id)).Int("total", len(r.sessions)).Msg("released")
	return s, true
}

func (r *Registry) Lookup(id domain.Identity) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Online(id domain.Identity) bool {
	_, ok := r.Lookup(id)
	return ok
}

// SessionOf returns the connection currently bound to id.
func (r *Registry) SessionOf(id domain.Identity) (core.SessionID, bool) {
	if s, ok := r.Lookup(id); ok {
		return s.ID, true
	}
	return "", false
}

func (r *Registry) Region(id domain.Identity) domain.Region {
	if s, ok := r.Lookup(id); ok {
		return s.Profile.Geo.Region
	}
	return domain.UnknownRegion
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot is a sorted point-in-time copy of the online identities.
func (r *Registry) Snapshot() []domain.Identity {
	r.mu.RLock()
	out := make([]domain.Identity, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type regSnap struct {
	Identity domain.Identity
	Session  *Session
}

// Sessions returns every entry except exclude. An empty exclude keeps all.
func (r *Registry) Sessions(exclude domain.Identity) []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, len(r.sessions))
	for id, s := range r.sessions {
		if id == exclude {
			continue
		}
		out = append(out, regSnap{Identity: id, Session: s})
	}
	return out
}

func (r *Registry) AddAdmin(sid core.SessionID, conn core.SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admins[sid] = conn
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Int("admins", len(r.admins)).Msg("admin attached")
}

func (r *Registry) RemoveAdmin(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.admins[sid]; !ok {
		return
	}
	delete(r.admins, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Int("admins", len(r.admins)).Msg("admin detached")
}

func (r *Registry) Admins() []core.SignalConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.SignalConnection, 0, len(r.admins))
	for _, c := range r.admins {
		out = append(out, c)
	}
	return out
}
