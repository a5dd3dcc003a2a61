package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/danmuck/napmirror/internal/catalog"
	"github.com/danmuck/napmirror/internal/dispatch"
	"github.com/danmuck/napmirror/internal/events"
	"github.com/danmuck/napmirror/internal/kinds"
	"github.com/danmuck/napmirror/internal/mirror"
	"github.com/danmuck/napmirror/internal/observability"
	"github.com/danmuck/napmirror/internal/protocol"
	"github.com/rs/zerolog"
)

// Notification ids bound by the core.
const (
	NotifyLog                   = "log"
	NotifyNameChanged           = "nameChanged"
	NotifyAttributeValueChanged = "attributeValueChanged"
	NotifyObjectAdded           = "objectAdded"
	NotifyObjectRemoved         = "objectRemoved"
	NotifyModuleInfo            = "getModuleInfo"
	NotifyObjectTree            = "getObjectTree"
	NotifyPlugConnected         = "plugConnected"
	NotifyPlugDisconnected      = "plugDisconnected"
	NotifyCopyObjectTree        = "copyObjectTree"
)

func (c *Core) handlers() *dispatch.Table {
	t := dispatch.NewTable()
	t.MustRegister(NotifyLog, dispatch.Bind(c.handleLog))
	t.MustRegister(NotifyNameChanged, dispatch.Bind(c.handleNameChanged))
	t.MustRegister(NotifyAttributeValueChanged, dispatch.Bind(c.handleAttributeValueChanged))
	t.MustRegister(NotifyObjectAdded, dispatch.Bind(c.handleObjectAdded))
	t.MustRegister(NotifyObjectRemoved, dispatch.Bind(c.handleObjectRemoved))
	t.MustRegister(NotifyModuleInfo, c.handleModuleInfo)
	t.MustRegister(NotifyObjectTree, c.handleObjectTree)
	t.MustRegister(NotifyPlugConnected, dispatch.Bind(c.plugHandler(events.Connected)))
	t.MustRegister(NotifyPlugDisconnected, dispatch.Bind(c.plugHandler(events.Disconnected)))
	t.MustRegister(NotifyCopyObjectTree, c.handleCopyObjectTree)
	return t
}

type logArgs struct {
	Level     int    `json:"level"`
	LevelName string `json:"levelName"`
	Text      string `json:"text"`
}

type nameArgs struct {
	Ptr  protocol.Handle `json:"ptr"`
	Name protocol.Text   `json:"name"`
}

func (a *nameArgs) Validate() error { return requireHandle(protocol.FieldPtr, a.Ptr) }

type valueArgs struct {
	Ptr   protocol.Handle `json:"ptr"`
	Name  protocol.Text   `json:"name"`
	Value protocol.Text   `json:"value"`
}

func (a *valueArgs) Validate() error { return requireHandle(protocol.FieldPtr, a.Ptr) }

type addedArgs struct {
	Ptr   protocol.Handle   `json:"ptr"`
	Child protocol.Embedded `json:"child"`
}

func (a *addedArgs) Validate() error {
	if err := requireHandle(protocol.FieldPtr, a.Ptr); err != nil {
		return err
	}
	if len(a.Child) == 0 {
		return fmt.Errorf("%w: missing child", protocol.ErrMalformedPayload)
	}
	return nil
}

type removedArgs struct {
	Ptr protocol.Handle `json:"ptr"`
}

func (a *removedArgs) Validate() error { return requireHandle(protocol.FieldPtr, a.Ptr) }

type plugArgs struct {
	SrcPtr protocol.Handle `json:"srcPtr"`
	DstPtr protocol.Handle `json:"dstPtr"`
}

func (a *plugArgs) Validate() error {
	if err := requireHandle("srcPtr", a.SrcPtr); err != nil {
		return err
	}
	return requireHandle("dstPtr", a.DstPtr)
}

func requireHandle(field string, h protocol.Handle) error {
	if h == protocol.NoHandle {
		return fmt.Errorf("%w: missing %s", protocol.ErrMalformedPayload, field)
	}
	return nil
}

func stale(format string, args ...any) error {
	return fmt.Errorf("%w: %s", protocol.ErrStaleReference, fmt.Sprintf(format, args...))
}

func (c *Core) handleLog(a logArgs) error {
	c.logger.WithLevel(serverLevel(a.LevelName)).
		Str("server_level", a.LevelName).
		Msg(a.Text)
	c.bus.Publish(events.Event{
		Type: events.LogMessageReceived,
		Log:  &events.LogMessage{Level: a.Level, LevelName: a.LevelName, Text: a.Text},
	})
	return nil
}

func (c *Core) handleNameChanged(a nameArgs) error {
	obj, ok := c.objects.Get(a.Ptr)
	if !ok {
		return stale("nameChanged ptr=%s", a.Ptr)
	}
	obj.Name = string(a.Name)
	c.bus.Publish(events.Event{Type: events.NameChanged, Handle: obj.Handle, Object: obj, Name: obj.Name})
	return nil
}

func (c *Core) handleAttributeValueChanged(a valueArgs) error {
	obj, ok := c.objects.Get(a.Ptr)
	if !ok {
		return stale("attributeValueChanged ptr=%s name=%s", a.Ptr, a.Name)
	}
	if !obj.IsAttribute() {
		return fmt.Errorf("%w: %s is not an attribute", protocol.ErrCapabilityMismatch, obj)
	}
	if err := obj.SetValue(string(a.Value)); err != nil {
		return err
	}
	c.bus.Publish(events.Event{Type: events.ValueChanged, Handle: obj.Handle, Object: obj, Value: obj.Value})
	return nil
}

func (c *Core) handleObjectAdded(a addedArgs) error {
	parent, ok := c.objects.Get(a.Ptr)
	if !ok {
		return stale("objectAdded parent ptr=%s", a.Ptr)
	}
	child, err := c.factory.BuildJSON(a.Child.Raw())
	if err != nil {
		return err
	}
	c.register(child)
	parent.AddChild(child)
	c.bus.Publish(events.Event{Type: events.ChildAdded, Handle: parent.Handle, Object: parent, Child: child})
	return nil
}

func (c *Core) handleObjectRemoved(a removedArgs) error {
	obj, ok := c.objects.Get(a.Ptr)
	if !ok {
		return stale("objectRemoved ptr=%s", a.Ptr)
	}
	c.bus.Publish(events.Event{Type: events.ObjectRemoved, Handle: protocol.NoHandle, Object: obj})

	if parent, ok := c.ParentOf(obj); ok {
		parent.RemoveChild(obj)
		c.bus.Publish(events.Event{Type: events.ChildRemoved, Handle: parent.Handle, Object: parent, Child: obj})
	} else if c.root == obj {
		c.root = nil
		c.bus.Publish(events.Event{Type: events.RootChanged})
	}
	c.unregister(obj)
	return nil
}

func (c *Core) handleModuleInfo(payload json.RawMessage) error {
	var info map[string]json.RawMessage
	if err := json.Unmarshal(payload, &info); err != nil {
		return fmt.Errorf("%w: module info: %v", protocol.ErrMalformedPayload, err)
	}
	types, err := catalog.ParseDescriptors(info[protocol.FieldTypes])
	if err != nil {
		return err
	}
	c.types.ReplaceAll(types)
	c.moduleInfo = info
	c.logger.Info().Int("types", len(types)).Msg("core: module info loaded")

	c.bus.Publish(events.Event{Type: events.ModuleInfoChanged, ModuleInfo: info})
	c.bus.Publish(events.Event{Type: events.TypeHierarchyChanged})
	return nil
}

func (c *Core) handleObjectTree(payload json.RawMessage) error {
	root, err := c.factory.BuildJSON(payload)
	if err != nil {
		return err
	}
	c.objects.Clear()
	c.register(root)
	c.root = root
	c.logger.Info().Int("objects", c.objects.Len()).Msg("core: object tree loaded")
	c.bus.Publish(events.Event{Type: events.RootChanged, Object: root})
	return nil
}

func (c *Core) plugHandler(typ events.Type) func(plugArgs) error {
	return func(a plugArgs) error {
		src, ok := c.objects.Get(a.SrcPtr)
		if !ok {
			return stale("%s srcPtr=%s", typ, a.SrcPtr)
		}
		dst, ok := c.objects.Get(a.DstPtr)
		if !ok {
			return stale("%s dstPtr=%s", typ, a.DstPtr)
		}
		if err := requirePlugs(src, dst); err != nil {
			return err
		}
		c.bus.Publish(events.Event{Type: typ, Handle: dst.Handle, Object: dst, Source: src})
		return nil
	}
}

func (c *Core) handleCopyObjectTree(payload json.RawMessage) error {
	if err := c.exporter.Export(context.Background(), payload); err != nil {
		c.logger.Error().Err(err).Msg("core: export copied tree")
	}
	return nil
}

func requirePlugs(src, dst *mirror.Object) error {
	if src != nil && !src.Is(kinds.CapOutputPlug) {
		return fmt.Errorf("%w: source %s is not an output plug", protocol.ErrCapabilityMismatch, src)
	}
	if !dst.Is(kinds.CapInputPlug) {
		return fmt.Errorf("%w: destination %s is not an input plug", protocol.ErrCapabilityMismatch, dst)
	}
	return nil
}

func (c *Core) register(root *mirror.Object) {
	root.Walk(func(o *mirror.Object) bool {
		if o.Handle != protocol.NoHandle {
			c.objects.Put(o.Handle, o)
		}
		return true
	})
	observability.SetMirrorObjects(c.objects.Len())
}

func (c *Core) unregister(root *mirror.Object) {
	root.Walk(func(o *mirror.Object) bool {
		if cur, ok := c.objects.Get(o.Handle); ok && cur == o {
			c.objects.Remove(o.Handle)
		}
		return true
	})
	observability.SetMirrorObjects(c.objects.Len())
}

func serverLevel(name string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fine", "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "fatal":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
