package app

import (
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const DefaultCallTimeout = 60 * time.Second

// Presence is the part of the registry the coordinator needs.
type Presence interface {
	SessionOf(id domain.Identity) (core.SessionID, bool)
	Region(id domain.Identity) domain.Region
}

// Notifier is the part of the router the coordinator needs.
type Notifier interface {
	DirectSend(id domain.Identity, v any) bool
}

// call is shared by both parties, so every transition moves the pair at once.
// The session IDs pin each party to the connection that was online when the
// call was placed.
type call struct {
	id        string
	caller    domain.Identity
	callee    domain.Identity
	callerSID core.SessionID
	calleeSID core.SessionID
	kind      domain.CallKind
	state     domain.CallState
	timer     *time.Timer
}

func (c *call) sessionOf(id domain.Identity) core.SessionID {
	if id == c.caller {
		return c.callerSID
	}
	return c.calleeSID
}

func (c *call) peerOf(id domain.Identity) domain.Identity {
	if id == c.caller {
		return c.callee
	}
	return c.caller
}

func (c *call) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Calls is the per-identity call state machine. An identity without an
// entry is idle. One mutex covers states and timers of every pair, and the
// notifications of a transition are queued before it is released so peers
// observe them in transition order.
type Calls struct {
	mu          sync.Mutex
	calls       map[domain.Identity]*call
	presence    Presence
	notify      Notifier
	timeout     time.Duration
	regionCheck bool
}

func NewCalls(presence Presence, notify Notifier, timeout time.Duration, regionCheck bool) *Calls {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Calls{
		calls:       make(map[domain.Identity]*call),
		presence:    presence,
		notify:      notify,
		timeout:     timeout,
		regionCheck: regionCheck,
	}
}

// Request rings callee on behalf of caller.
func (c *Calls) Request(caller, callee domain.Identity, kind domain.CallKind) error {
	if callee == "" || callee == caller || callee == domain.GroupIdentity {
		return domain.ErrInvalidTarget
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	callerSID, ok := c.presence.SessionOf(caller)
	if !ok {
		return domain.ErrPeerOffline
	}
	calleeSID, ok := c.presence.SessionOf(callee)
	if !ok {
		return domain.ErrPeerOffline
	}
	if _, busy := c.calls[caller]; busy {
		return domain.ErrBusy
	}
	if _, busy := c.calls[callee]; busy {
		return domain.ErrBusy
	}
	if c.regionCheck && c.presence.Region(caller).Mismatch(c.presence.Region(callee)) {
		return domain.ErrCountryMismatch
	}

	cl := &call{
		id:        uuid.NewString(),
		caller:    caller,
		callee:    callee,
		callerSID: callerSID,
		calleeSID: calleeSID,
		kind:      kind,
		state:     domain.CallRinging,
	}
	c.calls[caller] = cl
	c.calls[callee] = cl
	cl.timer = time.AfterFunc(c.timeout, func() { c.expire(cl) })

	c.notify.DirectSend(callee, core.Call{
		Type:     core.KindCallRequest,
		From:     string(caller),
		CallType: kind,
	})
	observability.RecordCall("requested")
	log.Info().Str("module", "app.calls").Str("call", cl.id).Str("caller", string(caller)).Str("callee", string(callee)).Str("kind", string(kind)).Msg("ringing")
	return nil
}

// Accept answers a call that caller placed to callee.
func (c *Calls) Accept(callee, caller domain.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cl, ok := c.ringingFrom(callee, caller)
	if !ok {
		return domain.ErrNoCall
	}
	cl.stopTimer()
	cl.state = domain.CallActive
	cl.kind = ""

	c.notify.DirectSend(caller, core.Call{Type: core.KindCallAccepted, From: string(callee)})
	observability.RecordCall("accepted")
	log.Info().Str("module", "app.calls").Str("call", cl.id).Msg("active")
	return nil
}

// Reject declines a call that caller placed to callee.
func (c *Calls) Reject(callee, caller domain.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cl, ok := c.ringingFrom(callee, caller)
	if !ok {
		return domain.ErrNoCall
	}
	c.clear(cl)

	c.notify.DirectSend(caller, core.Call{Type: core.KindCallRejected, From: string(callee)})
	observability.RecordCall("rejected")
	log.Info().Str("module", "app.calls").Str("call", cl.id).Msg("rejected")
	return nil
}

// End hangs up an active call, or withdraws a ringing one.
func (c *Calls) End(party, peer domain.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cl, ok := c.calls[party]
	if !ok || cl.peerOf(party) != peer {
		return domain.ErrNoCall
	}
	c.clear(cl)

	c.notify.DirectSend(peer, core.Call{Type: core.KindCallEnded, From: string(party)})
	observability.RecordCall("ended")
	log.Info().Str("module", "app.calls").Str("call", cl.id).Str("by", string(party)).Msg("ended")
	return nil
}

// OnDeparture forces the peer of a leaving identity back to idle. sid is
// the departing connection; a call placed by a later session of the same
// identity is left alone.
func (c *Calls) OnDeparture(id domain.Identity, sid core.SessionID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cl, ok := c.calls[id]
	if !ok || cl.sessionOf(id) != sid {
		return
	}
	c.clear(cl)

	peer := cl.peerOf(id)
	c.notify.DirectSend(peer, core.Call{
		Type:   core.KindCallEnded,
		From:   string(id),
		Reason: "disconnected",
	})
	observability.RecordCall("dropped")
	log.Info().Str("module", "app.calls").Str("call", cl.id).Str("gone", string(id)).Str("peer", string(peer)).Msg("peer departed")
}

// expire runs on the timer goroutine. A timer whose Stop lost the race
// finds its call replaced or no longer ringing and does nothing.
func (c *Calls) expire(cl *call) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.calls[cl.caller]; !ok || cur != cl || cl.state != domain.CallRinging {
		return
	}
	cl.timer = nil
	c.clear(cl)

	c.notify.DirectSend(cl.caller, core.Call{Type: core.KindCallTimeout, From: string(cl.callee)})
	c.notify.DirectSend(cl.callee, core.Call{Type: core.KindCallTimeout, From: string(cl.caller)})
	observability.RecordCall("timeout")
	log.Info().Str("module", "app.calls").Str("call", cl.id).Msg("ring timeout")
}

func (c *Calls) State(id domain.Identity) domain.CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.calls[id]; ok {
		return cl.state
	}
	return domain.CallIdle
}

// Kind is the call kind recorded while ringing; cleared once accepted.
func (c *Calls) Kind(id domain.Identity) domain.CallKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.calls[id]; ok {
		return cl.kind
	}
	return ""
}

// Peer returns who id is in a call with, if anyone.
func (c *Calls) Peer(id domain.Identity) (domain.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.calls[id]; ok {
		return cl.peerOf(id), true
	}
	return "", false
}

// Stop cancels every pending ring timer. Used on shutdown.
func (c *Calls) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cl := range c.calls {
		cl.stopTimer()
	}
}

func (c *Calls) ringingFrom(callee, caller domain.Identity) (*call, bool) {
	cl, ok := c.calls[callee]
	if !ok || cl.state != domain.CallRinging || cl.callee != callee || cl.caller != caller {
		return nil, false
	}
	return cl, true
}

// clear must be called with c.mu held.
func (c *Calls) clear(cl *call) {
	cl.stopTimer()
	cl.state = domain.CallIdle
	cl.kind = ""
	if c.calls[cl.caller] == cl {
		delete(c.calls, cl.caller)
	}
	if c.calls[cl.callee] == cl {
		delete(c.calls, cl.callee)
	}
}
