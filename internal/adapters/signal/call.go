package signal

import (
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/observability"
	"github.com/rs/zerolog/log"
)

type callPayload struct {
	To       string `json:"to" validate:"required"`
	CallType string `json:"callType" validate:"omitempty,oneof=audio video"`
}

func (ctl *SignalWSController) handleCallRequest(c *WsSignalConn, data []byte) {
	var p callPayload
	if !ctl.decode(c, core.KindCallRequest, data, &p) {
		return
	}
	if !ctl.limiter.Allow(c.identity) {
		log.Warn().Str("module", "signal").Str("username", string(c.identity)).Msg("call request rate limited")
		ctl.callFailed(c, core.KindCallRequest, p.To, domain.ErrRateLimited)
		return
	}
	kind, err := domain.ParseCallKind(p.CallType)
	if err != nil {
		ctl.callFailed(c, core.KindCallRequest, p.To, err)
		return
	}
	ctl.callResult(c, core.KindCallRequest, p.To,
		ctl.Orch.Calls.Request(c.identity, domain.Identity(p.To), kind))
}

func (ctl *SignalWSController) handleCallAccept(c *WsSignalConn, data []byte) {
	var p callPayload
	if !ctl.decode(c, core.KindCallAccepted, data, &p) {
		return
	}
	ctl.callResult(c, core.KindCallAccepted, p.To,
		ctl.Orch.Calls.Accept(c.identity, domain.Identity(p.To)))
}

func (ctl *SignalWSController) handleCallReject(c *WsSignalConn, data []byte) {
	var p callPayload
	if !ctl.decode(c, core.KindCallRejected, data, &p) {
		return
	}
	ctl.callResult(c, core.KindCallRejected, p.To,
		ctl.Orch.Calls.Reject(c.identity, domain.Identity(p.To)))
}

func (ctl *SignalWSController) handleCallEnd(c *WsSignalConn, data []byte) {
	var p callPayload
	if !ctl.decode(c, core.KindCallEnded, data, &p) {
		return
	}
	ctl.callResult(c, core.KindCallEnded, p.To,
		ctl.Orch.Calls.End(c.identity, domain.Identity(p.To)))
}

func (ctl *SignalWSController) callResult(c *WsSignalConn, kind core.Kind, peer string, err error) {
	if err != nil {
		ctl.callFailed(c, kind, peer, err)
		return
	}
	observability.RecordEvent(string(kind), "ok")
}

// callFailed answers the requester only; the peer never learns about it.
func (ctl *SignalWSController) callFailed(c *WsSignalConn, kind core.Kind, peer string, err error) {
	reason := domain.Reason(err)
	log.Info().Str("module", "signal").Str("username", string(c.identity)).Str("peer", peer).Str("type", string(kind)).Str("reason", reason).Msg("call op failed")
	ctl.sendJSON(c, core.Call{Type: core.KindCallFailed, To: peer, Reason: reason})
	observability.RecordEvent(string(kind), "rejected")
}
