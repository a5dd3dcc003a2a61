package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/danmuck/napmirror/internal/catalog"
	"github.com/danmuck/napmirror/internal/dispatch"
	"github.com/danmuck/napmirror/internal/events"
	"github.com/danmuck/napmirror/internal/export"
	"github.com/danmuck/napmirror/internal/kinds"
	"github.com/danmuck/napmirror/internal/mirror"
	"github.com/danmuck/napmirror/internal/protocol"
	"github.com/danmuck/napmirror/internal/registry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrStopped         = errors.New("core: stopped")
	ErrTransportClosed = errors.New("core: transport closed")
	ErrSend            = errors.New("core: send failed")
	ErrNoObject        = errors.New("core: no object")
)

// Transport is the session collaborator: it fires outbound calls and
// delivers inbound envelopes in arrival order.
type Transport interface {
	Send(method string, args ...any) error
	Envelopes() <-chan protocol.Envelope
	Identity() string
}

// Journal records inbound envelopes before they are dispatched.
type Journal interface {
	Append(ctx context.Context, env protocol.Envelope, receivedAt time.Time) error
}

type Option func(*Core)

// WithKinds replaces the default kind catalog.
func WithKinds(c *kinds.Catalog) Option {
	return func(core *Core) { core.kinds = c }
}

func WithExporter(e export.Exporter) Option {
	return func(core *Core) { core.exporter = e }
}

func WithJournal(j Journal) Option {
	return func(core *Core) { core.journal = j }
}

func WithBus(b *events.Bus) Option {
	return func(core *Core) { core.bus = b }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(core *Core) { core.logger = logger }
}

// WithCallTimeout bounds how long a waiting call blocks. Zero waits until
// the caller's context ends.
func WithCallTimeout(d time.Duration) Option {
	return func(core *Core) { core.callTimeout = d }
}

type task struct {
	fn   func(*Core)
	done chan struct{}
}

// Core mirrors the remote graph.
type Core struct {
	transport Transport
	kinds     *kinds.Catalog
	types     *catalog.Registry
	resolver  *kinds.Resolver
	factory   *mirror.Factory
	objects   *registry.Registry[*mirror.Object]
	bus       *events.Bus
	table     *dispatch.Table
	disp      *dispatch.Dispatcher
	exporter  export.Exporter
	journal   Journal
	logger    zerolog.Logger

	root       *mirror.Object
	moduleInfo map[string]json.RawMessage

	received    *signal
	callMu      sync.Mutex
	callTimeout time.Duration

	tasks    chan task
	done     chan struct{}
	stopOnce sync.Once
}

func New(transport Transport, opts ...Option) (*Core, error) {
	c := &Core{
		transport: transport,
		types:     catalog.New(),
		objects:   registry.New[*mirror.Object](),
		logger:    log.Logger,
		received:  newSignal(),
		tasks:     make(chan task),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.kinds == nil {
		c.kinds = kinds.Default()
	}
	if c.bus == nil {
		c.bus = events.NewBus()
	}
	if c.exporter == nil {
		c.exporter = export.Discard{}
	}

	c.resolver = kinds.NewResolver(c.kinds, c.types)
	factory, err := mirror.NewFactory(c.kinds, c.resolver)
	if err != nil {
		return nil, err
	}
	c.factory = factory
	c.table = c.handlers()
	c.disp = dispatch.New(c.table,
		dispatch.WithLogger(c.logger),
		dispatch.OnReceived(c.onReceived),
	)
	return c, nil
}

// Bus carries the domain events. Listeners run on the event loop, or on the
// goroutine calling HandleMessage, and must not block on Do or on waiting
// calls.
func (c *Core) Bus() *events.Bus {
	return c.bus
}

// Identity is the session identity used for object callbacks.
func (c *Core) Identity() string {
	return c.transport.Identity()
}

// NotificationIDs lists the ids with a bound handler.
func (c *Core) NotificationIDs() []string {
	return c.table.IDs()
}

// Messages is the count of envelopes received so far.
func (c *Core) Messages() uint64 {
	return c.received.current()
}
