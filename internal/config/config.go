// Package config loads napmirror settings: defaults, then a TOML file, then
// NAPMIRROR_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/danmuck/napmirror/internal/export"
	"github.com/danmuck/napmirror/internal/protocol/session"
)

var ErrInvalid = errors.New("config: invalid")

type InspectorConfig struct {
	Addr        string
	CorsOrigins []string
	// Token, when set, is required as a bearer token on mutating routes.
	Token string
}

type JournalConfig struct {
	// Path is the sqlite journal; empty disables journaling.
	Path string
}

type Config struct {
	Host               string
	Identity           string
	ConnectTimeout     time.Duration
	HandshakeTimeout   time.Duration
	WriteTimeout       time.Duration
	MaxConnectAttempts int
	CallTimeout        time.Duration
	Backoff            session.BackoffConfig
	TLS                session.TLSConfig

	Inspector InspectorConfig
	Journal   JournalConfig
	Export    export.Config
}

func Default() Config {
	s := session.DefaultConfig()
	return Config{
		Host:               s.Host,
		ConnectTimeout:     s.ConnectTimeout,
		HandshakeTimeout:   s.HandshakeTimeout,
		WriteTimeout:       s.WriteTimeout,
		MaxConnectAttempts: s.MaxConnectAttempts,
		CallTimeout:        30 * time.Second,
		Backoff:            s.Backoff,
		Inspector: InspectorConfig{
			Addr:        "127.0.0.1:8899",
			CorsOrigins: []string{"http://localhost:3000"},
		},
		Export: export.Config{Mode: export.ModeClipboard, Dir: ".", Format: export.FormatJSON},
	}
}

// Session is the transport configuration.
func (c Config) Session() session.Config {
	s := session.DefaultConfig()
	s.Host = c.Host
	s.Identity = c.Identity
	s.ConnectTimeout = c.ConnectTimeout
	s.HandshakeTimeout = c.HandshakeTimeout
	s.WriteTimeout = c.WriteTimeout
	s.MaxConnectAttempts = c.MaxConnectAttempts
	s.Backoff = c.Backoff
	s.TLS = c.TLS
	return s
}

func (c Config) Validate() error {
	if err := c.Session().Validate(); err != nil {
		return err
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("%w: call_timeout must be >= 0", ErrInvalid)
	}
	if strings.TrimSpace(c.Inspector.Addr) == "" {
		return fmt.Errorf("%w: inspector addr required", ErrInvalid)
	}
	if _, err := export.New(c.Export); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Load reads path (skipped when empty) over Default, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	return load(path, nil)
}

func load(path string, environ map[string]string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, environ); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type fileConfig struct {
	Host               string `toml:"host"`
	Identity           string `toml:"identity"`
	ConnectTimeout     string `toml:"connect_timeout"`
	HandshakeTimeout   string `toml:"handshake_timeout"`
	WriteTimeout       string `toml:"write_timeout"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
	CallTimeout        string `toml:"call_timeout"`

	Backoff struct {
		Initial    string  `toml:"initial"`
		Multiplier float64 `toml:"multiplier"`
		Max        string  `toml:"max"`
		Jitter     bool    `toml:"jitter"`
	} `toml:"backoff"`

	TLS struct {
		Enabled            bool   `toml:"enabled"`
		CAFile             string `toml:"ca_file"`
		CertFile           string `toml:"cert_file"`
		KeyFile            string `toml:"key_file"`
		ServerName         string `toml:"server_name"`
		InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	} `toml:"tls"`

	Inspector struct {
		Addr        string   `toml:"addr"`
		CorsOrigins []string `toml:"cors_origins"`
		Token       string   `toml:"token"`
	} `toml:"inspector"`

	Journal struct {
		Path string `toml:"path"`
	} `toml:"journal"`

	Export struct {
		Mode   string `toml:"mode"`
		Dir    string `toml:"dir"`
		Format string `toml:"format"`
	} `toml:"export"`
}

func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%w: unknown key %q", ErrInvalid, undecoded[0].String())
	}

	durations := []struct {
		key  []string
		raw  string
		dest *time.Duration
	}{
		{[]string{"connect_timeout"}, raw.ConnectTimeout, &cfg.ConnectTimeout},
		{[]string{"handshake_timeout"}, raw.HandshakeTimeout, &cfg.HandshakeTimeout},
		{[]string{"write_timeout"}, raw.WriteTimeout, &cfg.WriteTimeout},
		{[]string{"call_timeout"}, raw.CallTimeout, &cfg.CallTimeout},
		{[]string{"backoff", "initial"}, raw.Backoff.Initial, &cfg.Backoff.InitialDelay},
		{[]string{"backoff", "max"}, raw.Backoff.Max, &cfg.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", strings.Join(d.key, "."), err)
		}
		*d.dest = v
	}

	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("identity") {
		cfg.Identity = strings.TrimSpace(raw.Identity)
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("backoff", "multiplier") {
		cfg.Backoff.Multiplier = raw.Backoff.Multiplier
	}
	if meta.IsDefined("backoff", "jitter") {
		cfg.Backoff.Jitter = raw.Backoff.Jitter
	}

	if meta.IsDefined("tls", "enabled") {
		cfg.TLS.Enabled = raw.TLS.Enabled
	}
	if meta.IsDefined("tls", "ca_file") {
		cfg.TLS.CAFile = strings.TrimSpace(raw.TLS.CAFile)
	}
	if meta.IsDefined("tls", "cert_file") {
		cfg.TLS.CertFile = strings.TrimSpace(raw.TLS.CertFile)
	}
	if meta.IsDefined("tls", "key_file") {
		cfg.TLS.KeyFile = strings.TrimSpace(raw.TLS.KeyFile)
	}
	if meta.IsDefined("tls", "server_name") {
		cfg.TLS.ServerName = strings.TrimSpace(raw.TLS.ServerName)
	}
	if meta.IsDefined("tls", "insecure_skip_verify") {
		cfg.TLS.InsecureSkipVerify = raw.TLS.InsecureSkipVerify
	}

	if meta.IsDefined("inspector", "addr") {
		cfg.Inspector.Addr = strings.TrimSpace(raw.Inspector.Addr)
	}
	if meta.IsDefined("inspector", "cors_origins") {
		cfg.Inspector.CorsOrigins = normalizeList(raw.Inspector.CorsOrigins)
	}
	if meta.IsDefined("inspector", "token") {
		cfg.Inspector.Token = strings.TrimSpace(raw.Inspector.Token)
	}
	if meta.IsDefined("journal", "path") {
		cfg.Journal.Path = strings.TrimSpace(raw.Journal.Path)
	}
	if meta.IsDefined("export", "mode") {
		cfg.Export.Mode = strings.TrimSpace(raw.Export.Mode)
	}
	if meta.IsDefined("export", "dir") {
		cfg.Export.Dir = strings.TrimSpace(raw.Export.Dir)
	}
	if meta.IsDefined("export", "format") {
		cfg.Export.Format = strings.TrimSpace(raw.Export.Format)
	}
	return nil
}

// envConfig holds the NAPMIRROR_* overrides; unset variables stay nil.
type envConfig struct {
	Host               *string        `env:"NAPMIRROR_HOST"`
	Identity           *string        `env:"NAPMIRROR_IDENTITY"`
	ConnectTimeout     *time.Duration `env:"NAPMIRROR_CONNECT_TIMEOUT"`
	MaxConnectAttempts *int           `env:"NAPMIRROR_MAX_CONNECT_ATTEMPTS"`
	CallTimeout        *time.Duration `env:"NAPMIRROR_CALL_TIMEOUT"`
	TLSEnabled         *bool          `env:"NAPMIRROR_TLS_ENABLED"`
	TLSCAFile          *string        `env:"NAPMIRROR_TLS_CA_FILE"`
	InspectorAddr      *string        `env:"NAPMIRROR_INSPECTOR_ADDR"`
	InspectorToken     *string        `env:"NAPMIRROR_INSPECTOR_TOKEN"`
	CorsOrigins        []string       `env:"NAPMIRROR_CORS_ORIGINS" envSeparator:","`
	JournalPath        *string        `env:"NAPMIRROR_JOURNAL"`
	ExportMode         *string        `env:"NAPMIRROR_EXPORT_MODE"`
	ExportDir          *string        `env:"NAPMIRROR_EXPORT_DIR"`
	ExportFormat       *string        `env:"NAPMIRROR_EXPORT_FORMAT"`
}

func applyEnv(cfg *Config, environ map[string]string) error {
	var e envConfig
	if err := env.ParseWithOptions(&e, env.Options{Environment: environ}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	setString(&cfg.Host, e.Host)
	setString(&cfg.Identity, e.Identity)
	if e.ConnectTimeout != nil {
		cfg.ConnectTimeout = *e.ConnectTimeout
	}
	if e.MaxConnectAttempts != nil {
		cfg.MaxConnectAttempts = *e.MaxConnectAttempts
	}
	if e.CallTimeout != nil {
		cfg.CallTimeout = *e.CallTimeout
	}
	if e.TLSEnabled != nil {
		cfg.TLS.Enabled = *e.TLSEnabled
	}
	setString(&cfg.TLS.CAFile, e.TLSCAFile)
	setString(&cfg.Inspector.Addr, e.InspectorAddr)
	setString(&cfg.Inspector.Token, e.InspectorToken)
	if e.CorsOrigins != nil {
		cfg.Inspector.CorsOrigins = normalizeList(e.CorsOrigins)
	}
	setString(&cfg.Journal.Path, e.JournalPath)
	setString(&cfg.Export.Mode, e.ExportMode)
	setString(&cfg.Export.Dir, e.ExportDir)
	setString(&cfg.Export.Format, e.ExportFormat)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
