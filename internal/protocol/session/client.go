package session

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/napmirror/internal/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/websocket"
)

var ErrClosed = errors.New("session: closed")

const jsonRPCVersion = "2.0"

// request is one outbound JSON-RPC call.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// Client is a live session. Send is safe for concurrent use; envelopes are
// delivered on a single channel in arrival order.
type Client struct {
	cfg      Config
	ep       endpoint
	codec    frameCodec
	identity string

	nextID  atomic.Uint64
	writeMu sync.Mutex

	envs      chan protocol.Envelope
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	errMu sync.Mutex
	err   error
}

// Dial connects to cfg.Host, retrying with backoff until MaxConnectAttempts
// is reached (zero retries until ctx ends).
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ep, err := parseEndpoint(cfg.Host, cfg.TLS.Enabled)
	if err != nil {
		return nil, err
	}
	backoff := NewBackoff(cfg.Backoff, rand.New(rand.NewSource(time.Now().UnixNano())))

	var attempt int
	for {
		attempt++
		codec, err := dialCodec(ctx, cfg, ep)
		if err == nil {
			return newClient(cfg, ep, codec), nil
		}
		log.Warn().
			Int("attempt", attempt).
			Str("host", cfg.Host).
			Err(err).
			Msg("session: dial failed")
		if cfg.MaxConnectAttempts > 0 && attempt >= cfg.MaxConnectAttempts {
			return nil, fmt.Errorf("session: dial %s after %d attempts: %w", cfg.Host, attempt, err)
		}
		if err := backoff.Sleep(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func newClient(cfg Config, ep endpoint, codec frameCodec) *Client {
	identity := strings.TrimSpace(cfg.Identity)
	if identity == "" {
		identity = uuid.NewString()
	}
	c := &Client{
		cfg:      cfg,
		ep:       ep,
		codec:    codec,
		identity: identity,
		envs:     make(chan protocol.Envelope, cfg.InboundBuffer),
		done:     make(chan struct{}),
	}
	c.wg.Add(1)
	go c.readLoop()
	log.Info().
		Str("host", cfg.Host).
		Str("identity", identity).
		Msg("session: connected")
	return c
}

func dialCodec(ctx context.Context, cfg Config, ep endpoint) (frameCodec, error) {
	var tlsCfg *tls.Config
	if ep.secure() {
		var err error
		if tlsCfg, err = clientTLSConfig(cfg.TLS, ep.addr); err != nil {
			return nil, err
		}
	}
	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout+cfg.HandshakeTimeout)
	defer cancel()

	if ep.websocket() {
		wsCfg, err := websocket.NewConfig(ep.url, ep.origin())
		if err != nil {
			return nil, err
		}
		wsCfg.TlsConfig = tlsCfg
		wsCfg.Dialer = &net.Dialer{Timeout: cfg.ConnectTimeout}
		conn, err := wsCfg.DialContext(dialCtx)
		if err != nil {
			return nil, err
		}
		return newWSCodec(conn, cfg.MaxFrameBytes), nil
	}

	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	rawConn, err := dialer.DialContext(dialCtx, "tcp", ep.addr)
	if err != nil {
		return nil, err
	}
	if tlsCfg == nil {
		return newLineCodec(rawConn, cfg.MaxFrameBytes), nil
	}
	conn := tls.Client(rawConn, tlsCfg)
	if err := conn.HandshakeContext(dialCtx); err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	return newLineCodec(conn, cfg.MaxFrameBytes), nil
}

func clientTLSConfig(t TLSConfig, addr string) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: t.InsecureSkipVerify,
	}
	serverName := strings.TrimSpace(t.ServerName)
	if serverName == "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		serverName = host
	}
	cfg.ServerName = serverName

	if caPath := strings.TrimSpace(t.CAFile); caPath != "" {
		caPEM, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("session: parse tls ca bundle: %s", caPath)
		}
		cfg.RootCAs = pool
	}
	if t.Mutual() {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// Send fires one call. It does not wait for any reply.
func (c *Client) Send(method string, args ...any) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if args == nil {
		args = []any{}
	}
	payload, err := json.Marshal(request{
		JSONRPC: jsonRPCVersion,
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  args,
	})
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", method, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.codec.WriteFrame(payload, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("session: send %s: %w", method, err)
	}
	return nil
}

// Envelopes is closed when the connection ends; Err reports why.
func (c *Client) Envelopes() <-chan protocol.Envelope {
	return c.envs
}

func (c *Client) Identity() string {
	return c.identity
}

// Err is the reason the reader stopped, nil after a local Close.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.codec.Close()
		c.wg.Wait()
	})
	return err
}

// readLoop forwards every inbound frame. Frames that cannot be read as an
// envelope are forwarded as undecodable so the reader reports them.
func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.envs)
	for {
		frame, err := c.codec.ReadFrame()
		var env protocol.Envelope
		switch {
		case err == nil:
			if len(frame) == 0 {
				continue
			}
			if env, err = protocol.DecodeEnvelope(frame); err != nil {
				log.Warn().Err(err).Int("bytes", len(frame)).Msg("session: undecodable frame")
				env = protocol.Undecodable(err)
			}
		case errors.Is(err, ErrFrameTooLarge):
			log.Warn().Int("max_bytes", c.cfg.MaxFrameBytes).Msg("session: oversized frame")
			env = protocol.Undecodable(err)
		default:
			c.finish(err)
			return
		}
		select {
		case c.envs <- env:
		case <-c.done:
			return
		}
	}
}

func (c *Client) finish(err error) {
	select {
	case <-c.done:
		return
	default:
	}
	c.errMu.Lock()
	c.err = err
	c.errMu.Unlock()
	log.Warn().Err(err).Str("host", c.cfg.Host).Msg("session: connection closed")
}
