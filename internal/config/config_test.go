package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/napmirror/internal/export"
	"github.com/danmuck/napmirror/internal/protocol/session"
	"github.com/danmuck/napmirror/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "napmirror.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	testlog.Start(t)
	cfg, err := load("", map[string]string{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
	if cfg.Host != session.DefaultHost {
		t.Fatalf("unexpected default host %q", cfg.Host)
	}
}

func TestLoadFileOverridesOnlyDefinedKeys(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
host = "ws://127.0.0.1:9000/rpc"
call_timeout = "5s"
max_connect_attempts = 0

[backoff]
initial = "100ms"
jitter = false

[inspector]
cors_origins = ["http://a.test", " ", "http://b.test"]

[journal]
path = "/tmp/napmirror.db"

[export]
mode = "file"
format = "yaml"
`)
	cfg, err := load(path, map[string]string{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Default()
	want.Host = "ws://127.0.0.1:9000/rpc"
	want.CallTimeout = 5 * time.Second
	want.MaxConnectAttempts = 0
	want.Backoff.InitialDelay = 100 * time.Millisecond
	want.Backoff.Jitter = false
	want.Inspector.CorsOrigins = []string{"http://a.test", "http://b.test"}
	want.Journal.Path = "/tmp/napmirror.db"
	want.Export = export.Config{Mode: "file", Dir: ".", Format: "yaml"}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `host = "tcp://10.0.0.1:8888"`)
	cfg, err := load(path, map[string]string{
		"NAPMIRROR_HOST":         "tcp://10.0.0.2:8888",
		"NAPMIRROR_CALL_TIMEOUT": "2s",
		"NAPMIRROR_CORS_ORIGINS": "http://x.test,http://y.test",
		"NAPMIRROR_EXPORT_MODE":  "none",
		"NAPMIRROR_IDENTITY":     " inspector-1 ",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Host != "tcp://10.0.0.2:8888" || cfg.CallTimeout != 2*time.Second || cfg.Identity != "inspector-1" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if diff := cmp.Diff([]string{"http://x.test", "http://y.test"}, cfg.Inspector.CorsOrigins); diff != "" {
		t.Fatalf("cors mismatch (-want +got):\n%s", diff)
	}
	if cfg.Export.Mode != export.ModeNone {
		t.Fatalf("unexpected export mode %q", cfg.Export.Mode)
	}
}

func TestLoadRejectsInvalidInput(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"bad duration": `call_timeout = "soon"`,
		"unknown key":  `hots = "tcp://localhost:1"`,
		"bad scheme":   `host = "udp://localhost:1"`,
		"bad export":   "[export]\nmode = \"printer\"",
	}
	for name, body := range cases {
		if _, err := load(writeConfig(t, body), map[string]string{}); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := load("", map[string]string{"NAPMIRROR_CALL_TIMEOUT": "-1s"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for negative call timeout, got %v", err)
	}
	if _, err := load(filepath.Join(t.TempDir(), "missing.toml"), map[string]string{}); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestSessionCarriesTransportSettings(t *testing.T) {
	testlog.Start(t)
	cfg := Default()
	cfg.Identity = "abc"
	cfg.TLS = session.TLSConfig{Enabled: true, ServerName: "nap.local"}
	s := cfg.Session()
	if s.Identity != "abc" || !s.TLS.Enabled || s.TLS.ServerName != "nap.local" {
		t.Fatalf("unexpected session config: %+v", s)
	}
	if s.MaxFrameBytes != session.DefaultMaxFrameBytes {
		t.Fatalf("session defaults should be kept, got %d", s.MaxFrameBytes)
	}
}
