// Package events carries domain notifications from the mirror core to its
// observers. Delivery is synchronous and in publish order, on the mirror's
// event loop (or the goroutine driving HandleMessage directly).
package events

import (
	"encoding/json"

	"github.com/danmuck/napmirror/internal/mirror"
	"github.com/danmuck/napmirror/internal/protocol"
)

// Type identifies a notification.
type Type string

// Core-wide notifications.
const (
	MessageReceived      Type = "message-received"
	RootChanged          Type = "root-changed"
	ModuleInfoChanged    Type = "module-info-changed"
	TypeHierarchyChanged Type = "type-hierarchy-changed"
	ObjectRemoved        Type = "object-removed"
	LogMessageReceived   Type = "log-message-received"
	WaitingForMessage    Type = "waiting-for-message"
	DispatchFailed       Type = "dispatch-failed"
)

// Notifications scoped to one mirror object (Event.Handle).
const (
	NameChanged  Type = "name-changed"
	ValueChanged Type = "value-changed"
	ChildAdded   Type = "child-added"
	ChildRemoved Type = "child-removed"
	Connected    Type = "connected"
	Disconnected Type = "disconnected"
)

// LogMessage is a log line forwarded by the server.
type LogMessage struct {
	Level     int
	LevelName string
	Text      string
}

// Event is one notification. Handle is the scope of per-object events and
// NoHandle for core-wide ones; the remaining fields are set per Type.
type Event struct {
	Type   Type
	Handle protocol.Handle

	// Object is the affected object; for Connected/Disconnected it is the
	// destination plug and Source is the output plug.
	Object *mirror.Object
	Child  *mirror.Object
	Source *mirror.Object

	Name       string
	Value      any
	Log        *LogMessage
	ModuleInfo map[string]json.RawMessage
	MessageID  string
	Err        error
}

// Scoped reports whether e targets a single mirror object.
func (e Event) Scoped() bool {
	return e.Handle != protocol.NoHandle
}
