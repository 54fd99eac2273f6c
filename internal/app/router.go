package app

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/observability"
	"github.com/rs/zerolog/log"
)

// PublishResult reports delivery stats for one fan-out.
type PublishResult struct {
	SendTo  int
	Dropped []domain.Identity
}

// Router delivers envelopes. Every send is fire-and-forget: unknown or
// closed targets are skipped without surfacing an error.
type Router struct {
	Registry *Registry
	Policy   Policy
}

func NewRouter(reg *Registry, policy Policy) *Router {
	if policy == nil {
		policy = DropPolicy{}
	}
	return &Router{Registry: reg, Policy: policy}
}

func encode(v any) (core.Frame, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("marshal envelope")
		return nil, false
	}
	return b, true
}

// Send writes v to a single connection that may not be registered (the
// requester itself, an admin, a connection still authenticating).
func (r *Router) Send(conn core.SignalConnection, v any) bool {
	f, ok := encode(v)
	if !ok {
		return false
	}
	return conn.TrySend(f) == nil
}

// DirectSend delivers v to id if it is online.
func (r *Router) DirectSend(id domain.Identity, v any) bool {
	s, ok := r.Registry.Lookup(id)
	if !ok {
		log.Debug().Str("module", "app.router").Str("to", string(id)).Msg("direct send: target offline")
		return false
	}
	f, ok := encode(v)
	if !ok {
		return false
	}
	return r.deliver(s, f)
}

// Broadcast delivers v to every online identity except exclude.
func (r *Router) Broadcast(v any, exclude domain.Identity) PublishResult {
	res := PublishResult{}
	f, ok := encode(v)
	if !ok {
		return res
	}
	for _, snap := range r.Registry.Sessions(exclude) {
		if !r.deliver(snap.Session, f) {
			res.Dropped = append(res.Dropped, snap.Identity)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "app.router").Str("exclude", string(exclude)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// BroadcastToAdmins delivers v to the admin observers only.
func (r *Router) BroadcastToAdmins(v any) int {
	admins := r.Registry.Admins()
	if len(admins) == 0 {
		return 0
	}
	f, ok := encode(v)
	if !ok {
		return 0
	}
	n := 0
	for _, c := range admins {
		if c.TrySend(f) == nil {
			n++
		}
	}
	return n
}

func (r *Router) deliver(s *Session, f core.Frame) bool {
	err := s.Conn.TrySend(f)
	if err == nil {
		return true
	}
	if errors.Is(err, core.ErrBackpressure) {
		observability.RecordDroppedFrame("backpressure")
		switch r.Policy.OnBackPressure(s.Identity) {
		case KickMember:
			log.Warn().Str("module", "app.router").Str("username", string(s.Identity)).Msg("slow consumer kicked")
			s.Conn.Close()
		case DropFrame, NoAction:
		}
		return false
	}
	observability.RecordDroppedFrame("closed")
	return false
}
