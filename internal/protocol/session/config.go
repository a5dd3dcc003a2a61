package session

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrHostRequired        = errors.New("session: host required")
	ErrUnsupportedScheme   = errors.New("session: unsupported scheme")
	ErrTLSCertFileRequired = errors.New("session: tls cert file required")
	ErrTLSKeyFileRequired  = errors.New("session: tls key file required")
	ErrInvalidConfig       = errors.New("session: invalid config")
)

// DefaultHost is where a local NAP application listens.
const DefaultHost = "tcp://localhost:8888"

// DefaultMaxFrameBytes bounds one inbound frame.
const DefaultMaxFrameBytes = 16 << 20

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// TLSConfig enables TLS on tcp hosts and selects wss on websocket hosts.
// CertFile and KeyFile together enable a client certificate.
type TLSConfig struct {
	Enabled            bool
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	InsecureSkipVerify bool
}

func (t TLSConfig) Mutual() bool {
	return strings.TrimSpace(t.CertFile) != "" || strings.TrimSpace(t.KeyFile) != ""
}

type Config struct {
	// Host is tcp://host:port, ws://host:port/path or wss://host:port/path.
	// A bare host:port means tcp.
	Host string
	// Identity names this client for object callbacks. Empty picks a random uuid.
	Identity string

	ConnectTimeout     time.Duration
	HandshakeTimeout   time.Duration
	WriteTimeout       time.Duration
	MaxConnectAttempts int
	MaxFrameBytes      int
	InboundBuffer      int
	Backoff            BackoffConfig
	TLS                TLSConfig
}

func DefaultConfig() Config {
	return Config{
		Host:               DefaultHost,
		ConnectTimeout:     5 * time.Second,
		HandshakeTimeout:   5 * time.Second,
		WriteTimeout:       10 * time.Second,
		MaxConnectAttempts: 5,
		MaxFrameBytes:      DefaultMaxFrameBytes,
		InboundBuffer:      256,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills unset fields from DefaultConfig. MaxConnectAttempts
// keeps its value: zero means retry until the context ends.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if strings.TrimSpace(c.Host) == "" {
		c.Host = d.Host
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = d.MaxFrameBytes
	}
	if c.InboundBuffer <= 0 {
		c.InboundBuffer = d.InboundBuffer
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff.InitialDelay = d.Backoff.InitialDelay
	}
	if c.Backoff.Multiplier <= 0 {
		c.Backoff.Multiplier = d.Backoff.Multiplier
	}
	if c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = d.Backoff.MaxDelay
	}
	return c
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return ErrHostRequired
	}
	if _, err := parseEndpoint(c.Host, c.TLS.Enabled); err != nil {
		return err
	}
	if c.MaxConnectAttempts < 0 {
		return fmt.Errorf("%w: max connect attempts must be >= 0", ErrInvalidConfig)
	}
	if c.Backoff.Multiplier != 0 && c.Backoff.Multiplier < 1 {
		return fmt.Errorf("%w: backoff multiplier must be >= 1", ErrInvalidConfig)
	}
	if c.TLS.Mutual() {
		if strings.TrimSpace(c.TLS.CertFile) == "" {
			return ErrTLSCertFileRequired
		}
		if strings.TrimSpace(c.TLS.KeyFile) == "" {
			return ErrTLSKeyFileRequired
		}
	}
	return nil
}
