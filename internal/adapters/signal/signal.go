package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

type SignalWSController struct {
	Orch *orch.Orchestrator

	cfg      *config.Config
	limiter  *RateLimiter
	validate *validator.Validate
	upgrader websocket.Upgrader

	// base outlives the request and the shutdown signal so that Drain can
	// still flush queued frames.
	base   context.Context
	cancel context.CancelFunc

	wg       sync.WaitGroup
	mu       sync.Mutex
	draining bool
	conns    map[core.SessionID]*WsSignalConn
}

func NewSignalWSController(o *orch.Orchestrator, cfg *config.Config) *SignalWSController {
	base, cancel := context.WithCancel(context.Background())
	ctl := &SignalWSController{
		Orch:     o,
		cfg:      cfg,
		limiter:  NewRateLimiter(cfg.CallRateLimit, cfg.CallRateInterval),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		base:     base,
		cancel:   cancel,
		conns:    make(map[core.SessionID]*WsSignalConn),
	}
	ctl.upgrader = websocket.Upgrader{CheckOrigin: originChecker(cfg.AllowedOrigins)}
	return ctl
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// WsSignalConn is one client connection. role and identity are only
// touched by the connection's read goroutine.
type WsSignalConn struct {
	id     core.SessionID
	remote string
	conn   *websocket.Conn
	send   chan core.Frame

	mu     sync.RWMutex
	closed bool

	role     orch.Role
	identity domain.Identity
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// Close stops accepting frames. The write pump flushes what is queued,
// sends a close frame and drops the socket.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *WsSignalConn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// kill drops the socket without flushing.
func (c *WsSignalConn) kill() {
	c.Close()
	_ = c.conn.Close()
}

func (c *WsSignalConn) setRole(r orch.Role) {
	observability.ConnectionClosed(c.role.String())
	c.role = r
	observability.ConnectionOpened(r.String())
}

func (ctl *SignalWSController) HandleSignal(c *gin.Context) {
	sid := core.SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("client_token", c.GetString("client_token")).Msg("new WS connection")

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.cfg.MaxMessageSize)

	conn := &WsSignalConn{
		id:     sid,
		remote: c.ClientIP(),
		conn:   ws,
		send:   make(chan core.Frame, ctl.cfg.SendBuffer),
	}
	if !ctl.track(conn) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("draining, connection refused")
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		_ = ws.Close()
		return
	}
	observability.ConnectionOpened(conn.role.String())

	go ctl.writePump(ctl.base, conn)
	go ctl.readPump(ctl.base, conn)
}

func (ctl *SignalWSController) track(c *WsSignalConn) bool {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if ctl.draining {
		return false
	}
	ctl.conns[c.id] = c
	ctl.wg.Add(1)
	return true
}

// onClose unwinds registry and call state before the connection counts as
// finished.
func (ctl *SignalWSController) onClose(ctx context.Context, c *WsSignalConn) {
	c.Close()
	switch c.role {
	case orch.RoleUser:
		ctl.Orch.Leave(ctx, c.identity, c.id)
		ctl.limiter.Forget(c.identity)
	case orch.RoleAdmin:
		ctl.Orch.LeaveAdmin(c.id)
	}
	observability.ConnectionClosed(c.role.String())

	ctl.mu.Lock()
	delete(ctl.conns, c.id)
	ctl.mu.Unlock()
	ctl.wg.Done()
	log.Info().Str("module", "signal").Str("sid", string(c.id)).Str("username", string(c.identity)).Msg("connection finished")
}

// Drain closes every connection after its queue is flushed and waits for
// them to unwind, killing whatever is left when ctx expires.
func (ctl *SignalWSController) Drain(ctx context.Context) {
	ctl.mu.Lock()
	ctl.draining = true
	conns := make([]*WsSignalConn, 0, len(ctl.conns))
	for _, c := range ctl.conns {
		conns = append(conns, c)
	}
	ctl.mu.Unlock()

	log.Info().Str("module", "signal").Int("connections", len(conns)).Msg("draining")
	for _, c := range conns {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		ctl.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Str("module", "signal").Msg("drain timeout, dropping remaining connections")
		for _, c := range conns {
			c.kill()
		}
		<-done
	}
	ctl.cancel()
}
