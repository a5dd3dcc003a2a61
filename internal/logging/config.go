package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	logs "github.com/danmuck/smplog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "NAPMIRROR_LOG_LEVEL"
	EnvLogTimestamp = "NAPMIRROR_LOG_TIMESTAMP"
	EnvLogNoColor   = "NAPMIRROR_LOG_NOCOLOR"
	EnvLogBypass    = "NAPMIRROR_LOG_BYPASS"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

var configureOnce sync.Once

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

func Configure(profile Profile) {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile, os.Stderr)
		applyEnvOverrides(&cfg)
		Apply(cfg)
	})
}

// Apply installs cfg as the smplog logger and points zerolog's global
// logger at it, so packages logging through either see the same output.
func Apply(cfg logs.Config) {
	logs.Configure(cfg)
	bind()
}

// SetLevel changes the threshold of the configured logger.
func SetLevel(level logs.Level) {
	logs.SetLevel(level)
	bind()
}

func bind() {
	log.Logger = *logs.Zerolog()
}

// defaultConfig writes to w; stdout stays free for command output.
func defaultConfig(profile Profile, w io.Writer) logs.Config {
	cfg := logs.DefaultConfig()
	cfg.Writer = w
	switch profile {
	case ProfileTest:
		cfg.Level = logs.DebugLevel
		cfg.Timestamp = false
	default:
		cfg.Level = logs.InfoLevel
		cfg.Timestamp = true
	}
	return cfg
}

func applyEnvOverrides(cfg *logs.Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogBypass)); ok {
		cfg.Bypass = v
	}
}

// ParseLevel maps a level name onto a log level.
func ParseLevel(raw string) (logs.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return logs.InfoLevel, false
	case "trace", "diagnostics":
		return logs.TraceLevel, true
	case "debug":
		return logs.DebugLevel, true
	case "info":
		return logs.InfoLevel, true
	case "warn", "warning":
		return logs.WarnLevel, true
	case "error":
		return logs.ErrorLevel, true
	case "fatal":
		return logs.FatalLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return logs.Disabled, true
	default:
		return logs.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
