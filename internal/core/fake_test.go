package core

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/danmuck/napmirror/internal/events"
	"github.com/danmuck/napmirror/internal/protocol"
)

type sentCall struct {
	Method string
	Args   []any
}

// fakeTransport records sends and lets tests push inbound envelopes.
// reply, when set, runs on every Send and may queue envelopes.
type fakeTransport struct {
	mu    sync.Mutex
	sent  []sentCall
	envs  chan protocol.Envelope
	reply func(method string, args []any) []protocol.Envelope
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{envs: make(chan protocol.Envelope, 64)}
}

func (f *fakeTransport) Send(method string, args ...any) error {
	f.mu.Lock()
	f.sent = append(f.sent, sentCall{Method: method, Args: args})
	reply := f.reply
	f.mu.Unlock()
	if reply != nil {
		for _, env := range reply(method, args) {
			f.envs <- env
		}
	}
	return nil
}

func (f *fakeTransport) Envelopes() <-chan protocol.Envelope { return f.envs }

func (f *fakeTransport) Identity() string { return "test-identity" }

func (f *fakeTransport) calls() []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentCall(nil), f.sent...)
}

type fakeExporter struct {
	trees []string
}

func (f *fakeExporter) Export(_ context.Context, tree json.RawMessage) error {
	f.trees = append(f.trees, string(tree))
	return nil
}

func mustEnvelope(t *testing.T, id string, payload any) protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(id, payload)
	if err != nil {
		t.Fatalf("new envelope %s: %v", id, err)
	}
	return env
}

func rawEnvelope(id, result string) protocol.Envelope {
	return protocol.Envelope{ID: id, Result: &result}
}

func newTestCore(t *testing.T, opts ...Option) (*Core, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	c, err := New(tr, opts...)
	if err != nil {
		t.Fatalf("new core: %v", err)
	}
	return c, tr
}

// recorder collects every event published on a bus.
type recorder struct {
	events []events.Event
}

func record(c *Core) *recorder {
	r := &recorder{}
	c.Bus().Subscribe(func(e events.Event) { r.events = append(r.events, e) })
	return r
}

func (r *recorder) types() []events.Type {
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) scopedTo(h protocol.Handle) []events.Event {
	var out []events.Event
	for _, e := range r.events {
		if e.Handle == h {
			out = append(out, e)
		}
	}
	return out
}

const sceneTree = `{
	"type": "nap::Entity", "ptr": 10, "name": "root",
	"children": [
		{"type": "nap::Entity", "ptr": 11, "name": "camera", "children": [
			{"type": "nap::Component", "ptr": 12, "name": "lens", "children": [
				{"type": "nap::Attribute<bool>", "ptr": 13, "name": "enabled", "valueType": "bool", "value": "true"},
				{"type": "nap::Attribute<float>", "ptr": 14, "name": "fov", "valueType": "float", "value": "45"}
			]}
		]},
		{"type": "nap::Operator", "ptr": 20, "name": "mix", "children": [
			{"type": "nap::OutputPlugBase", "ptr": 21, "name": "out"},
			{"type": "nap::InputPlugBase", "ptr": 22, "name": "in"}
		]}
	]
}`

func loadScene(t *testing.T, c *Core) {
	t.Helper()
	if err := c.HandleMessage(rawEnvelope(NotifyObjectTree, sceneTree)); err != nil {
		t.Fatalf("load scene: %v", err)
	}
}
