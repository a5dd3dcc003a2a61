// Package dispatch routes inbound envelopes to the handler bound to their
// notification id.
//
// The handler table is explicit and fixed once built: an id either has a
// typed handler or it is an unknown notification. Payload keys decode into
// the handler's argument struct by exact json name; a key the struct does
// not declare makes the payload malformed.
package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/danmuck/napmirror/internal/observability"
	"github.com/danmuck/napmirror/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrDuplicateHandler = errors.New("dispatch: handler already registered")
	ErrInvalidHandler   = errors.New("dispatch: invalid handler")
)

// Outcome labels recorded per dispatched envelope, in addition to the
// protocol error classes.
const (
	OutcomeHandled = "handled"
	OutcomeReply   = "reply"
)

// Handler consumes the decoded result payload of one envelope.
type Handler func(payload json.RawMessage) error

// Validator is implemented by argument structs with required fields.
type Validator interface {
	Validate() error
}

// Bind adapts a typed handler. The payload decodes into T; unknown or
// miscased keys, decode and validation failures are malformed payloads.
func Bind[T any](fn func(T) error) Handler {
	keys := argumentKeys(reflect.TypeFor[T]())
	return func(payload json.RawMessage) error {
		if keys != nil {
			if err := checkKeys(payload, keys); err != nil {
				return err
			}
		}
		var args T
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&args); err != nil {
			if errors.Is(err, protocol.ErrProtocol) {
				return err
			}
			return fmt.Errorf("%w: %v", protocol.ErrMalformedPayload, err)
		}
		if v, ok := any(&args).(Validator); ok {
			if err := v.Validate(); err != nil {
				return err
			}
		}
		return fn(args)
	}
}

// argumentKeys lists the json names a struct accepts, or nil for non-struct
// argument types.
func argumentKeys(t reflect.Type) map[string]struct{} {
	if t.Kind() != reflect.Struct {
		return nil
	}
	keys := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			continue
		case "":
			name = f.Name
		}
		keys[name] = struct{}{}
	}
	return keys
}

// checkKeys rejects keys encoding/json would otherwise fold onto a field by
// case.
func checkKeys(payload json.RawMessage, keys map[string]struct{}) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrMalformedPayload, err)
	}
	for key := range fields {
		if _, ok := keys[key]; !ok {
			return fmt.Errorf("%w: unexpected argument %q", protocol.ErrMalformedPayload, key)
		}
	}
	return nil
}

// Table maps notification ids to handlers.
type Table struct {
	handlers map[string]Handler
}

func NewTable() *Table {
	return &Table{handlers: make(map[string]Handler)}
}

func (t *Table) Register(id string, h Handler) error {
	id = strings.TrimSpace(id)
	if id == "" || h == nil {
		return fmt.Errorf("%w: id=%q", ErrInvalidHandler, id)
	}
	if _, exists := t.handlers[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, id)
	}
	t.handlers[id] = h
	return nil
}

// MustRegister panics on registration errors; for tables built at startup.
func (t *Table) MustRegister(id string, h Handler) {
	if err := t.Register(id, h); err != nil {
		panic(err)
	}
}

func (t *Table) Lookup(id string) (Handler, bool) {
	h, ok := t.handlers[id]
	return h, ok
}

// IDs lists the bound notification ids, sorted.
func (t *Table) IDs() []string {
	ids := make([]string, 0, len(t.handlers))
	for id := range t.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// OnReceived runs after every envelope that dispatched without a fatal error.
func OnReceived(fn func(protocol.Envelope)) Option {
	return func(d *Dispatcher) { d.onReceived = fn }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// Dispatcher processes one envelope at a time, to completion.
type Dispatcher struct {
	table      *Table
	onReceived func(protocol.Envelope)
	logger     zerolog.Logger
}

func New(table *Table, opts ...Option) *Dispatcher {
	d := &Dispatcher{table: table, logger: log.Logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs the handler for env.
//
// A bare reply (null or empty result) runs no handler. A stale reference
// reported by a handler is logged and dropped. Protocol and capability
// failures are returned and suppress the message-received hook.
func (d *Dispatcher) Dispatch(env protocol.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	start := time.Now()

	if !env.HasResult() {
		observability.RecordDispatch(env.ID, OutcomeReply, time.Since(start))
		d.received(env)
		return nil
	}

	h, ok := d.table.Lookup(env.ID)
	if !ok {
		err := fmt.Errorf("%w: %s", protocol.ErrUnknownNotification, env.ID)
		observability.RecordDispatch(env.ID, protocol.Classify(err), time.Since(start))
		return err
	}

	err := h(env.Payload())
	outcome := OutcomeHandled
	if err != nil {
		outcome = protocol.Classify(err)
	}
	observability.RecordDispatch(env.ID, outcome, time.Since(start))

	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrStaleReference):
		d.logger.Warn().Str("id", env.ID).Err(err).Msg("dispatch: dropped notification")
	default:
		return fmt.Errorf("dispatch %s: %w", env.ID, err)
	}
	d.received(env)
	return nil
}

func (d *Dispatcher) received(env protocol.Envelope) {
	if d.onReceived != nil {
		d.onReceived(env)
	}
}
