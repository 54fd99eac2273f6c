package signal

import (
	"context"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/observability"
	"github.com/rs/zerolog/log"
)

type adminDeletePayload struct {
	Username string `json:"username" validate:"required"`
}

func (ctl *SignalWSController) handleAdminGetUsers(ctx context.Context, c *WsSignalConn) {
	ctl.sendJSON(c, ctl.Orch.AdminUserList(ctx, 0))
	observability.RecordEvent(string(core.KindAdminGetUsers), "ok")
}

func (ctl *SignalWSController) handleAdminDelete(ctx context.Context, c *WsSignalConn, data []byte) {
	var p adminDeletePayload
	if !ctl.decode(c, core.KindAdminDelete, data, &p) {
		return
	}
	n := ctl.Orch.AdminDelete(ctx, domain.Identity(p.Username))
	log.Info().Str("module", "signal").Str("sid", string(c.id)).Str("target", p.Username).Int("deleted", n).Msg("admin delete")
	ctl.Orch.PublishAdminList(ctx, n)
	observability.RecordEvent(string(core.KindAdminDelete), "ok")
}

func (ctl *SignalWSController) handleAdminDeleteInactive(ctx context.Context, c *WsSignalConn) {
	n := ctl.Orch.AdminDeleteInactive(ctx)
	log.Info().Str("module", "signal").Str("sid", string(c.id)).Int("deleted", n).Msg("admin delete inactive")
	ctl.Orch.PublishAdminList(ctx, n)
	observability.RecordEvent(string(core.KindAdminDeleteInactive), "ok")
}
