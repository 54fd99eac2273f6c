package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dkeye/Relay/internal/adapters/signal"
	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/gin-gonic/gin"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func clientIP(t *testing.T, cfg *config.Config, remote, forwarded string) string {
	t.Helper()
	r := newEngine(cfg)
	r.GET("/ip", func(c *gin.Context) { c.String(http.StatusOK, c.ClientIP()) })

	req := httptest.NewRequest(http.MethodGet, "/ip", nil)
	req.RemoteAddr = remote
	req.Header.Set("X-Forwarded-For", forwarded)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Body.String()
}

func TestForwardedForIgnoredWithoutTrustedProxies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.Mode = "test"

	if got := clientIP(t, cfg, "203.0.113.7:40000", "8.8.8.8"); got != "203.0.113.7" {
		t.Fatalf("client ip = %q, want socket peer 203.0.113.7", got)
	}
}

func TestForwardedForHonouredFromTrustedProxy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.Mode = "test"
	cfg.TrustedProxies = []string{"203.0.113.0/24"}

	if got := clientIP(t, cfg, "203.0.113.7:40000", "8.8.8.8"); got != "8.8.8.8" {
		t.Fatalf("client ip = %q, want forwarded 8.8.8.8", got)
	}
	if got := clientIP(t, cfg, "198.51.100.1:40000", "8.8.8.8"); got != "198.51.100.1" {
		t.Fatalf("untrusted peer: client ip = %q", got)
	}
}

func TestPublicUsersOmitDisplayNames(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.Mode = "test"
	o := orch.New(orch.Options{})
	r := SetupRouter(cfg, o, signal.NewSignalWSController(o, cfg))

	err := o.Registry.Register(&app.Session{
		ID:       "s1",
		Identity: "alice",
		Profile:  domain.Profile{DisplayName: "Alice Liddell"},
		Conn:     nopConn{},
	})
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "Alice Liddell") {
		t.Fatalf("display name leaked: %s", w.Body.String())
	}

	var list struct {
		Type  string           `json:"type"`
		Users []map[string]any `json:"users"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Users) != 1 || list.Users[0]["username"] != "alice" || list.Users[0]["callState"] != "idle" {
		t.Fatalf("users = %+v", list.Users)
	}
	if _, ok := list.Users[0]["displayName"]; ok {
		t.Fatal("displayName field present")
	}
}
