package config

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 65535 || cfg.MaxMessageSize != 50<<20 || cfg.CallTimeout != time.Minute {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9001")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RELAY_CALL_TIMEOUT", "5s")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9001 {
		t.Fatalf("port = %d, want 9001", cfg.Port)
	}
	if cfg.MaxMessageSize != 1024 {
		t.Fatalf("max_message_size = %d, want 1024", cfg.MaxMessageSize)
	}
	if cfg.CallTimeout != 5*time.Second {
		t.Fatalf("call_timeout = %s, want 5s", cfg.CallTimeout)
	}
}

func TestLoadFlagsWinOverEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9001")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("port", 0, "")
	if err := fs.Parse([]string{"--port=7000"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg, err := Load(fs)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 7000 {
		t.Fatalf("port = %d, want 7000", cfg.Port)
	}
}

func TestValidateRejectsUnknownPolicy(t *testing.T) {
	cfg := Default()
	cfg.SlowConsumer = "sometimes"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestValidateWarnsOnDefaultSecretInRelease(t *testing.T) {
	buf := captureLog(t)
	cfg := Default()
	if !cfg.InsecureSecret() {
		t.Fatal("release default secret should be flagged")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(buf.String(), "default secret") {
		t.Fatalf("no warning logged: %q", buf.String())
	}

	buf.Reset()
	cfg.Secret = "a-real-key"
	if cfg.InsecureSecret() {
		t.Fatal("custom secret flagged")
	}
	_ = cfg.Validate()
	if strings.Contains(buf.String(), "default secret") {
		t.Fatalf("unexpected warning: %q", buf.String())
	}

	cfg.Secret = DefaultSecret
	cfg.Mode = "debug"
	if cfg.InsecureSecret() {
		t.Fatal("debug mode should tolerate the default secret")
	}
}

func TestValidateRejectsEmptySecret(t *testing.T) {
	cfg := Default()
	cfg.Secret = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestTrustedProxiesDefaultNone(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.TrustedProxies) != 0 {
		t.Fatalf("trusted_proxies = %v, want none", cfg.TrustedProxies)
	}
}
