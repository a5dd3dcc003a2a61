package core

import (
	"context"
	"fmt"

	"github.com/danmuck/napmirror/internal/events"
	"github.com/danmuck/napmirror/internal/kinds"
	"github.com/danmuck/napmirror/internal/mirror"
	"github.com/danmuck/napmirror/internal/observability"
	"github.com/danmuck/napmirror/internal/protocol"
)

// Outbound method names.
const (
	MethodTriggerSignalAttribute = "triggerSignalAttribute"
	MethodRemoveObject           = "removeObject"
	MethodAddObjectCallbacks     = "addObjectCallbacks"
	MethodRemoveObjectCallbacks  = "removeObjectCallbacks"
	MethodGetModuleInfo          = "getModuleInfo"
	MethodSetAttributeValue      = "setAttributeValue"
	MethodGetObjectTree          = "getObjectTree"
	MethodCopyObjectTree         = "copyObjectTree"
	MethodPasteObjectTree        = "pasteObjectTree"
	MethodConnectPlugs           = "connectPlugs"
	MethodDisconnectPlug         = "disconnectPlug"
	MethodSetName                = "setName"
	MethodExportObject           = "exportObject"
	MethodImportObject           = "importObject"
	MethodLoadFile               = "loadFile"
	MethodAddEntity              = "addEntity"
	MethodAddChild               = "addChild"
)

type request struct {
	method string
	args   []any
}

func req(method string, args ...any) request {
	return request{method: method, args: args}
}

// roundTrip sends reqs and, when waits > 0, blocks until that many further
// envelopes have been processed. Calls are serialized so at most one wait is
// outstanding. A waiting call first runs a task on the event loop that
// captures the sequence and publishes WaitingForMessage, so listeners see it
// on the loop and before any reply.
func (c *Core) roundTrip(ctx context.Context, waits int, reqs ...request) error {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	if waits == 0 {
		return c.send(reqs)
	}
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}
	var from uint64
	if err := c.Do(ctx, func(c *Core) {
		from = c.received.current()
		c.bus.Publish(events.Event{Type: events.WaitingForMessage})
	}); err != nil {
		return err
	}
	if err := c.send(reqs); err != nil {
		return err
	}
	return c.received.wait(ctx, from, waits)
}

func (c *Core) send(reqs []request) error {
	for _, r := range reqs {
		err := c.transport.Send(r.method, r.args...)
		observability.RecordCall(r.method, err == nil)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSend, r.method, err)
		}
		c.logger.Debug().Str("method", r.method).Msg("core: call sent")
	}
	return nil
}

func present(obj *mirror.Object) error {
	if obj == nil || obj.Handle == protocol.NoHandle {
		return ErrNoObject
	}
	return nil
}

func (c *Core) TriggerSignalAttribute(ctx context.Context, attr *mirror.Object) error {
	if err := present(attr); err != nil {
		return err
	}
	return c.roundTrip(ctx, 0, req(MethodTriggerSignalAttribute, attr.Handle))
}

// RemoveObjects sends one removeObject per object and waits once.
func (c *Core) RemoveObjects(ctx context.Context, objs ...*mirror.Object) error {
	if len(objs) == 0 {
		return nil
	}
	reqs := make([]request, 0, len(objs))
	for _, o := range objs {
		if err := present(o); err != nil {
			return err
		}
		reqs = append(reqs, req(MethodRemoveObject, o.Handle))
	}
	return c.roundTrip(ctx, 1, reqs...)
}

func (c *Core) AddObjectCallbacks(ctx context.Context, obj *mirror.Object) error {
	if err := present(obj); err != nil {
		return err
	}
	return c.roundTrip(ctx, 0, req(MethodAddObjectCallbacks, c.Identity(), obj.Handle))
}

func (c *Core) RemoveObjectCallbacks(ctx context.Context, obj *mirror.Object) error {
	if err := present(obj); err != nil {
		return err
	}
	return c.roundTrip(ctx, 0, req(MethodRemoveObjectCallbacks, c.Identity(), obj.Handle))
}

// LoadModuleInfo requests the type catalog and then the object tree, and
// waits for both.
func (c *Core) LoadModuleInfo(ctx context.Context) error {
	return c.roundTrip(ctx, 2, req(MethodGetModuleInfo), req(MethodGetObjectTree))
}

// SetAttributeValue sends value in wire form. The mirror updates when the
// server echoes attributeValueChanged.
func (c *Core) SetAttributeValue(ctx context.Context, attr *mirror.Object, value any) error {
	if err := present(attr); err != nil {
		return err
	}
	if !attr.IsAttribute() {
		return fmt.Errorf("%w: %s is not an attribute", protocol.ErrCapabilityMismatch, attr)
	}
	return c.roundTrip(ctx, 1, req(MethodSetAttributeValue, attr.Handle, protocol.FormatValue(value)))
}

func (c *Core) LoadObjectTree(ctx context.Context) error {
	return c.roundTrip(ctx, 1, req(MethodGetObjectTree))
}

func (c *Core) CopyObjectTree(ctx context.Context, obj *mirror.Object) error {
	if err := present(obj); err != nil {
		return err
	}
	return c.roundTrip(ctx, 1, req(MethodCopyObjectTree, obj.Handle))
}

func (c *Core) PasteObjectTree(ctx context.Context, parent *mirror.Object, tree string) error {
	if err := present(parent); err != nil {
		return err
	}
	return c.roundTrip(ctx, 1, req(MethodPasteObjectTree, parent.Handle, tree))
}

func (c *Core) ConnectPlugs(ctx context.Context, src, dst *mirror.Object) error {
	if err := present(src); err != nil {
		return err
	}
	if err := present(dst); err != nil {
		return err
	}
	if err := requirePlugs(src, dst); err != nil {
		return err
	}
	return c.roundTrip(ctx, 1, req(MethodConnectPlugs, src.Handle, dst.Handle))
}

func (c *Core) DisconnectPlug(ctx context.Context, dst *mirror.Object) error {
	if err := present(dst); err != nil {
		return err
	}
	if !dst.Is(kinds.CapInputPlug) {
		return fmt.Errorf("%w: %s is not an input plug", protocol.ErrCapabilityMismatch, dst)
	}
	return c.roundTrip(ctx, 0, req(MethodDisconnectPlug, dst.Handle))
}

func (c *Core) SetName(ctx context.Context, obj *mirror.Object, name string) error {
	if err := present(obj); err != nil {
		return err
	}
	return c.roundTrip(ctx, 1, req(MethodSetName, obj.Handle, name))
}

// ExportObject asks the server to write obj to filename on its side.
func (c *Core) ExportObject(ctx context.Context, obj *mirror.Object, filename string) error {
	if err := present(obj); err != nil {
		return err
	}
	return c.roundTrip(ctx, 0, req(MethodExportObject, obj.Handle, filename))
}

func (c *Core) ImportObject(ctx context.Context, parent *mirror.Object, filename string) error {
	if err := present(parent); err != nil {
		return err
	}
	return c.roundTrip(ctx, 0, req(MethodImportObject, parent.Handle, filename))
}

func (c *Core) LoadFile(ctx context.Context, filename string) error {
	return c.roundTrip(ctx, 0, req(MethodLoadFile, filename))
}

func (c *Core) AddEntity(ctx context.Context, parent *mirror.Object) error {
	if err := present(parent); err != nil {
		return err
	}
	return c.roundTrip(ctx, 1, req(MethodAddEntity, parent.Handle))
}

// AddChild instantiates componentType under entity.
func (c *Core) AddChild(ctx context.Context, entity *mirror.Object, componentType string) error {
	if err := present(entity); err != nil {
		return err
	}
	return c.roundTrip(ctx, 1, req(MethodAddChild, entity.Handle, componentType))
}
