package events

import (
	"sync"

	"github.com/danmuck/napmirror/internal/protocol"
)

// Listener receives published events.
type Listener func(Event)

type subscription struct {
	id       uint64
	typ      Type
	handle   protocol.Handle
	listener Listener
}

func (s subscription) matches(e Event) bool {
	if s.typ != "" && s.typ != e.Type {
		return false
	}
	if s.handle != protocol.NoHandle && s.handle != e.Handle {
		return false
	}
	return true
}

// Bus fans events out to subscribers in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe receives every event. The returned func cancels the subscription.
func (b *Bus) Subscribe(fn Listener) func() {
	return b.add(subscription{listener: fn})
}

// SubscribeType receives events of one type.
func (b *Bus) SubscribeType(t Type, fn Listener) func() {
	return b.add(subscription{typ: t, listener: fn})
}

// SubscribeObject receives the per-object events scoped to h.
func (b *Bus) SubscribeObject(h protocol.Handle, fn Listener) func() {
	return b.add(subscription{handle: h, listener: fn})
}

// Publish delivers e synchronously. Listeners may subscribe or cancel
// during delivery; changes take effect from the next Publish.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.matches(e) {
			s.listener(e)
		}
	}
}

func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) add(s subscription) func() {
	b.mu.Lock()
	b.nextID++
	s.id = b.nextID
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(s.id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}
