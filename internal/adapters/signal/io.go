package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/observability"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

func (ctl *SignalWSController) pingPeriod() time.Duration {
	if ctl.cfg.PingPeriod > 0 {
		return ctl.cfg.PingPeriod
	}
	return 54 * time.Second
}

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(c.id)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(c.id)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("sid", string(c.id)).Msg("writePump ping error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(c.id)).Msg("readPump closing")
		ctl.onClose(ctx, c)
	}()

	pongWait := ctl.pingPeriod() * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(c.id)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		ctl.handleSignal(ctx, c, data)
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, c *WsSignalConn, data []byte) {
	// Frames still buffered behind a close belong to a finished connection.
	if c.isClosed() {
		log.Debug().Str("module", "signal").Str("sid", string(c.id)).Msg("event after close dropped")
		observability.RecordEvent("closed", "dropped")
		return
	}
	if !gjson.ValidBytes(data) {
		log.Warn().Str("module", "signal").Str("sid", string(c.id)).Msg("bad json")
		observability.RecordEvent("invalid", "malformed")
		return
	}
	kind := core.Kind(gjson.GetBytes(data, "type").String())

	switch kind {
	case "":
		log.Warn().Str("module", "signal").Str("sid", string(c.id)).Msg("envelope without type")
		observability.RecordEvent("invalid", "malformed")
		return
	case core.KindPing:
		ctl.handlePing(c)
		return
	case core.KindAuth:
		ctl.handleAuth(ctx, c, data)
		return
	}

	switch c.role {
	case orch.RoleUser:
		if !ctl.Orch.Owns(c.identity, c.id) {
			log.Warn().Str("module", "signal").Str("sid", string(c.id)).Str("username", string(c.identity)).Str("type", string(kind)).Msg("event from unregistered session dropped")
			observability.RecordEvent(metricKind(kind), "stale")
			return
		}
		ctl.handleUserEvent(ctx, c, kind, data)
	case orch.RoleAdmin:
		ctl.handleAdminEvent(ctx, c, kind, data)
	default:
		log.Warn().Str("module", "signal").Str("sid", string(c.id)).Str("type", string(kind)).Msg("event before auth")
		ctl.sendAuthError(c, "Not authenticated")
		observability.RecordEvent(metricKind(kind), "unauthenticated")
	}
}

func (ctl *SignalWSController) handleUserEvent(ctx context.Context, c *WsSignalConn, kind core.Kind, data []byte) {
	switch kind {
	case core.KindMessage:
		ctl.handleMessage(c, data)
	case core.KindPrivateMessage:
		ctl.handlePrivateMessage(c, data)
	case core.KindListUsers:
		ctl.handleListUsers(c)
	case core.KindEnablePrivate:
		ctl.handleEnablePrivate(c, data)
	case core.KindEnableGroup:
		ctl.handleEnableGroup(c)
	case core.KindCallRequest:
		ctl.handleCallRequest(c, data)
	case core.KindCallAccepted:
		ctl.handleCallAccept(c, data)
	case core.KindCallRejected:
		ctl.handleCallReject(c, data)
	case core.KindCallEnded:
		ctl.handleCallEnd(c, data)
	case core.KindWebRTCOffer, core.KindWebRTCAnswer, core.KindWebRTCCandidate:
		ctl.handleNegotiation(c, kind, data)
	case core.KindFile, core.KindFileChunkStart, core.KindFileChunk, core.KindFileChunkEnd, core.KindFileCancel:
		ctl.handleFile(c, kind, data)
	case core.KindAdminGetUsers, core.KindAdminDelete, core.KindAdminDeleteInactive:
		log.Warn().Str("module", "signal").Str("username", string(c.identity)).Str("type", string(kind)).Msg("admin event from user")
		ctl.sendAuthError(c, "Not authorized")
		observability.RecordEvent(string(kind), "unauthorized")
	default:
		log.Warn().Str("module", "signal").Str("type", string(kind)).Msg("unknown signal")
		observability.RecordEvent("unknown", "dropped")
	}
}

func (ctl *SignalWSController) handleAdminEvent(ctx context.Context, c *WsSignalConn, kind core.Kind, data []byte) {
	switch kind {
	case core.KindAdminGetUsers:
		ctl.handleAdminGetUsers(ctx, c)
	case core.KindAdminDelete:
		ctl.handleAdminDelete(ctx, c, data)
	case core.KindAdminDeleteInactive:
		ctl.handleAdminDeleteInactive(ctx, c)
	case core.KindListUsers:
		ctl.handleListUsers(c)
	default:
		log.Warn().Str("module", "signal").Str("type", string(kind)).Msg("event not available to admin")
		observability.RecordEvent(metricKind(kind), "dropped")
	}
}

// decode unmarshals data into v and checks its validate tags. A failure
// drops the event and keeps the connection.
func (ctl *SignalWSController) decode(c *WsSignalConn, kind core.Kind, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(c.id)).Str("type", string(kind)).Msg("bad payload")
		observability.RecordEvent(string(kind), "malformed")
		return false
	}
	if err := ctl.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			log.Warn().Str("module", "signal").Str("sid", string(c.id)).Str("type", string(kind)).Str("field", verrs[0].Field()).Str("rule", verrs[0].Tag()).Msg("invalid payload")
		} else {
			log.Warn().Err(err).Str("module", "signal").Str("type", string(kind)).Msg("invalid payload")
		}
		observability.RecordEvent(string(kind), "malformed")
		return false
	}
	return true
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	if !ctl.Orch.Router.Send(c, v) {
		log.Debug().Str("module", "signal").Str("sid", string(c.id)).Msg("sendJSON dropped")
	}
}

func (ctl *SignalWSController) sendAuthError(c *WsSignalConn, msg string) {
	ctl.sendJSON(c, core.AuthError{Type: core.KindAuthError, Message: msg})
}

var knownKinds = map[core.Kind]struct{}{
	core.KindAuth: {}, core.KindMessage: {}, core.KindPrivateMessage: {}, core.KindListUsers: {},
	core.KindEnablePrivate: {}, core.KindEnableGroup: {}, core.KindCallRequest: {}, core.KindCallAccepted: {},
	core.KindCallRejected: {}, core.KindCallEnded: {}, core.KindWebRTCOffer: {}, core.KindWebRTCAnswer: {},
	core.KindWebRTCCandidate: {}, core.KindFile: {}, core.KindFileChunkStart: {}, core.KindFileChunk: {},
	core.KindFileChunkEnd: {}, core.KindFileCancel: {}, core.KindAdminGetUsers: {}, core.KindAdminDelete: {},
	core.KindAdminDeleteInactive: {}, core.KindPing: {},
}

// metricKind keeps client supplied strings out of metric labels.
func metricKind(k core.Kind) string {
	if _, ok := knownKinds[k]; ok {
		return string(k)
	}
	return "unknown"
}
