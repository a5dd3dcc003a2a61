package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/napmirror/internal/events"
	"github.com/danmuck/napmirror/internal/mirror"
	"github.com/danmuck/napmirror/internal/protocol"
	"github.com/danmuck/napmirror/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// startLoop runs c.Run until the test ends.
func startLoop(t *testing.T, c *Core) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errs; !errors.Is(err, context.Canceled) {
			t.Errorf("run: %v", err)
		}
	})
}

func withTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSetNameWaitsForEcho(t *testing.T) {
	testlog.Start(t)
	c, tr := newTestCore(t)
	loadScene(t, c)
	tr.reply = func(method string, args []any) []protocol.Envelope {
		if method != MethodSetName {
			return nil
		}
		return []protocol.Envelope{mustEnvelope(t, NotifyNameChanged, map[string]any{"ptr": args[0], "name": args[1]})}
	}
	startLoop(t, c)
	ctx := withTimeout(t)

	obj := mustFind(t, ctx, c, 12)
	if err := c.SetName(ctx, obj, "optics"); err != nil {
		t.Fatalf("set name: %v", err)
	}
	var name string
	if err := c.Do(ctx, func(c *Core) { name = obj.Name }); err != nil {
		t.Fatalf("do: %v", err)
	}
	if name != "optics" {
		t.Fatalf("expected echoed name, got %q", name)
	}
	want := []sentCall{{Method: MethodSetName, Args: []any{protocol.Handle(12), "optics"}}}
	if diff := cmp.Diff(want, tr.calls()); diff != "" {
		t.Fatalf("sent calls mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadModuleInfoWaitsForBothReplies(t *testing.T) {
	testlog.Start(t)
	c, tr := newTestCore(t)
	tr.reply = func(method string, _ []any) []protocol.Envelope {
		switch method {
		case MethodGetModuleInfo:
			return []protocol.Envelope{rawEnvelope(NotifyModuleInfo, `{"types":[{"name":"nap::Entity","baseTypes":["nap::Object"],"instantiable":true}]}`)}
		case MethodGetObjectTree:
			return []protocol.Envelope{rawEnvelope(NotifyObjectTree, sceneTree)}
		}
		return nil
	}
	waiting := 0
	c.Bus().SubscribeType(events.WaitingForMessage, func(events.Event) { waiting++ })
	startLoop(t, c)
	ctx := withTimeout(t)

	if err := c.LoadModuleInfo(ctx); err != nil {
		t.Fatalf("load module info: %v", err)
	}
	var types, objects int
	if err := c.Do(ctx, func(c *Core) {
		types = len(c.Types())
		objects = c.Objects()
	}); err != nil {
		t.Fatalf("do: %v", err)
	}
	if types != 1 || objects != 8 {
		t.Fatalf("expected catalog and tree loaded, types=%d objects=%d", types, objects)
	}
	if waiting != 1 {
		t.Fatalf("expected one waiting-for-message event, got %d", waiting)
	}
	if c.Messages() != 2 {
		t.Fatalf("expected two processed messages, got %d", c.Messages())
	}
}

func TestWaitingForMessageRunsOnLoop(t *testing.T) {
	testlog.Start(t)
	c, tr := newTestCore(t)
	loadScene(t, c)
	tr.reply = func(method string, args []any) []protocol.Envelope {
		return []protocol.Envelope{mustEnvelope(t, NotifyNameChanged, map[string]any{"ptr": args[0], "name": args[1]})}
	}
	var doErr error
	c.Bus().SubscribeType(events.WaitingForMessage, func(events.Event) {
		// The loop is busy running this listener, so a nested Do cannot be
		// accepted before its deadline.
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		doErr = c.Do(ctx, func(*Core) {})
	})
	rec := record(c)
	startLoop(t, c)
	ctx := withTimeout(t)
	obj := mustFind(t, ctx, c, 12)

	if err := c.SetName(ctx, obj, "optics"); err != nil {
		t.Fatalf("set name: %v", err)
	}
	var got []events.Type
	if err := c.Do(ctx, func(*Core) { got = rec.types() }); err != nil {
		t.Fatalf("do: %v", err)
	}
	if !errors.Is(doErr, context.DeadlineExceeded) {
		t.Fatalf("listener should run on the busy loop, nested do returned %v", doErr)
	}
	want := []events.Type{events.WaitingForMessage, events.NameChanged, events.MessageReceived}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestWaitingCallEndsWithContext(t *testing.T) {
	testlog.Start(t)
	c, _ := newTestCore(t)
	loadScene(t, c)
	startLoop(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	obj := mustFind(t, withTimeout(t), c, 10)
	err := c.AddEntity(ctx, obj)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestCallTimeoutOption(t *testing.T) {
	testlog.Start(t)
	c, _ := newTestCore(t, WithCallTimeout(20*time.Millisecond))
	startLoop(t, c)
	if err := c.LoadObjectTree(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected call timeout, got %v", err)
	}
}

func TestWaitingCallReportsDispatchFailure(t *testing.T) {
	testlog.Start(t)
	c, tr := newTestCore(t)
	tr.reply = func(string, []any) []protocol.Envelope {
		return []protocol.Envelope{rawEnvelope("unknownEvent", `{"x":1}`)}
	}
	startLoop(t, c)

	err := c.LoadObjectTree(withTimeout(t))
	if !errors.Is(err, protocol.ErrUnknownNotification) {
		t.Fatalf("expected the dispatch failure, got %v", err)
	}
}

func TestWaitingCallReportsUndecodableFrame(t *testing.T) {
	testlog.Start(t)
	c, tr := newTestCore(t)
	tr.reply = func(string, []any) []protocol.Envelope {
		return []protocol.Envelope{protocol.Undecodable(errors.New("invalid character 'o'"))}
	}
	var failed []error
	c.Bus().SubscribeType(events.DispatchFailed, func(e events.Event) { failed = append(failed, e.Err) })
	startLoop(t, c)
	ctx := withTimeout(t)

	err := c.LoadObjectTree(ctx)
	if !errors.Is(err, protocol.ErrMalformedEnvelope) {
		t.Fatalf("expected the undecodable frame to fail the wait, got %v", err)
	}
	var n int
	if err := c.Do(ctx, func(*Core) { n = len(failed) }); err != nil {
		t.Fatalf("do: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one dispatch-failed event, got %d", n)
	}
}

func TestBareReplySatisfiesWait(t *testing.T) {
	testlog.Start(t)
	c, tr := newTestCore(t)
	tr.reply = func(method string, _ []any) []protocol.Envelope {
		return []protocol.Envelope{{ID: method}}
	}
	startLoop(t, c)
	if err := c.LoadObjectTree(withTimeout(t)); err != nil {
		t.Fatalf("bare reply should end the wait: %v", err)
	}
}

func TestOutboundCallArguments(t *testing.T) {
	testlog.Start(t)
	c, tr := newTestCore(t)
	loadScene(t, c)
	ctx := context.Background()
	attr, _ := c.FindObject(13)
	out, _ := c.FindObject(21)
	in, _ := c.FindObject(22)
	entity, _ := c.FindObject(10)

	steps := []func() error{
		func() error { return c.TriggerSignalAttribute(ctx, attr) },
		func() error { return c.AddObjectCallbacks(ctx, entity) },
		func() error { return c.RemoveObjectCallbacks(ctx, entity) },
		func() error { return c.DisconnectPlug(ctx, in) },
		func() error { return c.ExportObject(ctx, entity, "scene.json") },
		func() error { return c.ImportObject(ctx, entity, "part.json") },
		func() error { return c.LoadFile(ctx, "app.json") },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	want := []sentCall{
		{Method: MethodTriggerSignalAttribute, Args: []any{protocol.Handle(13)}},
		{Method: MethodAddObjectCallbacks, Args: []any{"test-identity", protocol.Handle(10)}},
		{Method: MethodRemoveObjectCallbacks, Args: []any{"test-identity", protocol.Handle(10)}},
		{Method: MethodDisconnectPlug, Args: []any{protocol.Handle(22)}},
		{Method: MethodExportObject, Args: []any{protocol.Handle(10), "scene.json"}},
		{Method: MethodImportObject, Args: []any{protocol.Handle(10), "part.json"}},
		{Method: MethodLoadFile, Args: []any{"app.json"}},
	}
	if diff := cmp.Diff(want, tr.calls()); diff != "" {
		t.Fatalf("sent calls mismatch (-want +got):\n%s", diff)
	}

	if err := c.ConnectPlugs(ctx, in, out); !errors.Is(err, protocol.ErrCapabilityMismatch) {
		t.Fatalf("reversed plugs should be rejected, got %v", err)
	}
	if err := c.DisconnectPlug(ctx, out); !errors.Is(err, protocol.ErrCapabilityMismatch) {
		t.Fatalf("output plug cannot be disconnected as a destination, got %v", err)
	}
	if err := c.SetAttributeValue(ctx, entity, 1); !errors.Is(err, protocol.ErrCapabilityMismatch) {
		t.Fatalf("entity has no value, got %v", err)
	}
	if err := c.SetName(ctx, nil, "x"); !errors.Is(err, ErrNoObject) {
		t.Fatalf("expected ErrNoObject, got %v", err)
	}
	if len(tr.calls()) != len(want) {
		t.Fatalf("rejected calls must not be sent")
	}
}

func TestSetAttributeValueUsesWireForm(t *testing.T) {
	testlog.Start(t)
	c, tr := newTestCore(t)
	loadScene(t, c)
	tr.reply = func(_ string, args []any) []protocol.Envelope {
		return []protocol.Envelope{mustEnvelope(t, NotifyAttributeValueChanged, map[string]any{"ptr": args[0], "name": "enabled", "value": args[1]})}
	}
	startLoop(t, c)
	ctx := withTimeout(t)
	attr := mustFind(t, ctx, c, 13)

	if err := c.SetAttributeValue(ctx, attr, false); err != nil {
		t.Fatalf("set value: %v", err)
	}
	calls := tr.calls()
	if len(calls) != 1 || calls[0].Args[1] != "false" {
		t.Fatalf("expected wire form \"false\", got %+v", calls)
	}
	var value any
	if err := c.Do(ctx, func(*Core) { value = attr.Value }); err != nil {
		t.Fatalf("do: %v", err)
	}
	if value != false {
		t.Fatalf("expected echoed false, got %v", value)
	}
}

func TestRemoveObjectsSendsEachAndWaitsOnce(t *testing.T) {
	testlog.Start(t)
	c, tr := newTestCore(t)
	loadScene(t, c)
	tr.reply = func(_ string, args []any) []protocol.Envelope {
		return []protocol.Envelope{mustEnvelope(t, NotifyObjectRemoved, map[string]any{"ptr": args[0]})}
	}
	startLoop(t, c)
	ctx := withTimeout(t)
	a := mustFind(t, ctx, c, 11)
	b := mustFind(t, ctx, c, 20)

	if err := c.RemoveObjects(ctx, a, b); err != nil {
		t.Fatalf("remove objects: %v", err)
	}
	if len(tr.calls()) != 2 {
		t.Fatalf("expected two removeObject calls, got %d", len(tr.calls()))
	}
}

func TestRunStopsWhenTransportCloses(t *testing.T) {
	testlog.Start(t)
	c, tr := newTestCore(t)
	close(tr.envs)
	if err := c.Run(context.Background()); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("expected ErrTransportClosed, got %v", err)
	}
	if err := c.Do(context.Background(), func(*Core) {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped after run returns, got %v", err)
	}
	if err := c.LoadObjectTree(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("waiting after stop should fail fast, got %v", err)
	}
}

type memJournal struct {
	ids []string
}

func (j *memJournal) Append(_ context.Context, env protocol.Envelope, _ time.Time) error {
	j.ids = append(j.ids, env.ID)
	return nil
}

func TestRunJournalsEnvelopes(t *testing.T) {
	testlog.Start(t)
	j := &memJournal{}
	c, tr := newTestCore(t, WithJournal(j))
	tr.envs <- rawEnvelope(NotifyObjectTree, sceneTree)
	tr.envs <- rawEnvelope("unknownEvent", `{}`)
	close(tr.envs)

	if err := c.Run(context.Background()); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff([]string{NotifyObjectTree, "unknownEvent"}, j.ids); diff != "" {
		t.Fatalf("journal mismatch (-want +got):\n%s", diff)
	}
	if c.Objects() != 8 {
		t.Fatalf("loop should keep running after a failed dispatch")
	}
}

func mustFind(t *testing.T, ctx context.Context, c *Core, h protocol.Handle) *mirror.Object {
	t.Helper()
	var obj *mirror.Object
	if err := c.Do(ctx, func(c *Core) { obj, _ = c.FindObject(h) }); err != nil {
		t.Fatalf("do: %v", err)
	}
	if obj == nil {
		t.Fatalf("object %s not found", h)
	}
	return obj
}
