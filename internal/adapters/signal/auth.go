package signal

import (
	"context"
	"errors"

	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/observability"
	"github.com/rs/zerolog/log"
)

type authPayload struct {
	Username    string `json:"username" validate:"required"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

func (ctl *SignalWSController) handleAuth(ctx context.Context, c *WsSignalConn, data []byte) {
	if c.role != orch.RoleNone {
		ctl.sendAuthError(c, "Already authenticated")
		observability.RecordEvent(string(core.KindAuth), "rejected")
		return
	}
	var p authPayload
	if !ctl.decode(c, core.KindAuth, data, &p) {
		ctl.sendAuthError(c, "Username is required")
		return
	}

	res, err := ctl.Orch.Authenticate(ctx, orch.AuthRequest{
		SessionID:   c.id,
		Conn:        c,
		RemoteAddr:  c.remote,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		Secret:      p.Password,
	})
	switch {
	case errors.Is(err, domain.ErrAlreadyTaken):
		log.Info().Str("module", "signal").Str("sid", string(c.id)).Str("username", p.Username).Msg("duplicate identity, closing")
		ctl.sendAuthError(c, "Username already taken")
		observability.RecordEvent(string(core.KindAuth), "rejected")
		c.Close()
		return
	case orch.IsAuthError(err):
		ctl.sendAuthError(c, err.Error())
		observability.RecordEvent(string(core.KindAuth), "rejected")
		return
	case err != nil:
		log.Error().Err(err).Str("module", "signal").Str("sid", string(c.id)).Msg("auth failed")
		ctl.sendAuthError(c, "Authentication failed")
		observability.RecordEvent(string(core.KindAuth), "error")
		return
	}

	c.identity = res.Identity
	c.setRole(res.Role)
	observability.RecordEvent(string(core.KindAuth), "ok")
	log.Info().Str("module", "signal").Str("sid", string(c.id)).Str("username", string(res.Identity)).Str("role", res.Role.String()).Str("country", string(res.Geo.Region)).Msg("authenticated")
}
