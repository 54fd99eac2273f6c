package signal

import (
	"fmt"
	"time"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/observability"
	"github.com/rs/zerolog/log"
)

type messagePayload struct {
	Content string `json:"content" validate:"required"`
}

type privatePayload struct {
	Receiver string `json:"receiver" validate:"required"`
	Content  string `json:"content" validate:"required"`
}

type receiverPayload struct {
	Receiver string `json:"receiver" validate:"required"`
}

func (ctl *SignalWSController) handleMessage(c *WsSignalConn, data []byte) {
	var p messagePayload
	if !ctl.decode(c, core.KindMessage, data, &p) {
		return
	}
	res := ctl.Orch.Router.Broadcast(core.Chat{
		Type:      core.KindMessage,
		Sender:    string(c.identity),
		Content:   p.Content,
		Timestamp: time.Now().UTC(),
	}, c.identity)
	observability.RecordEvent(string(core.KindMessage), "ok")
	log.Debug().Str("module", "signal").Str("sender", string(c.identity)).Int("sent_to", res.SendTo).Msg("group message")
}

func (ctl *SignalWSController) handlePrivateMessage(c *WsSignalConn, data []byte) {
	var p privatePayload
	if !ctl.decode(c, core.KindPrivateMessage, data, &p) {
		return
	}
	ok := ctl.Orch.Router.DirectSend(domain.Identity(p.Receiver), core.Chat{
		Type:      core.KindPrivateMessage,
		Sender:    string(c.identity),
		Content:   p.Content,
		Timestamp: time.Now().UTC(),
	})
	if !ok {
		observability.RecordEvent(string(core.KindPrivateMessage), "dropped")
		return
	}
	observability.RecordEvent(string(core.KindPrivateMessage), "ok")
}

func (ctl *SignalWSController) handleListUsers(c *WsSignalConn) {
	ctl.sendJSON(c, ctl.Orch.UserList())
	observability.RecordEvent(string(core.KindListUsers), "ok")
}

func (ctl *SignalWSController) handleEnablePrivate(c *WsSignalConn, data []byte) {
	var p receiverPayload
	if !ctl.decode(c, core.KindEnablePrivate, data, &p) {
		return
	}
	if !ctl.Orch.Online(domain.Identity(p.Receiver)) {
		ctl.sendAuthError(c, fmt.Sprintf("User %s not found", p.Receiver))
		observability.RecordEvent(string(core.KindEnablePrivate), "rejected")
		return
	}
	ctl.sendJSON(c, core.Receiver{Type: core.KindPrivateEnabled, Receiver: p.Receiver})
	observability.RecordEvent(string(core.KindEnablePrivate), "ok")
}

func (ctl *SignalWSController) handleEnableGroup(c *WsSignalConn) {
	ctl.sendJSON(c, core.Control{Type: core.KindGroupEnabled})
	observability.RecordEvent(string(core.KindEnableGroup), "ok")
}
