// Package activity enumerates the user interactions that keep a session
// alive and fans them out to subscribers.
package activity

import "sync"

// Kind identifies a class of user interaction.
type Kind int

const (
	PointerDown Kind = iota
	PointerMove
	KeyPress
	Scroll
	TouchStart
)

// Qualifying is the fixed set of interaction kinds that count as activity.
var Qualifying = []Kind{PointerDown, PointerMove, KeyPress, Scroll, TouchStart}

func (k Kind) String() string {
	switch k {
	case PointerDown:
		return "pointerdown"
	case PointerMove:
		return "pointermove"
	case KeyPress:
		return "keypress"
	case Scroll:
		return "scroll"
	case TouchStart:
		return "touchstart"
	default:
		return "unknown"
	}
}

// Handler receives interaction events. It runs on the publisher's goroutine
// and must not block.
type Handler func(Kind)

// Source is anything a handler can be attached to for a set of kinds.
type Source interface {
	// Subscribe attaches handler to kinds and returns the function that detaches it.
	Subscribe(kinds []Kind, handler Handler) (unsubscribe func())
}

type subscription struct {
	kinds   map[Kind]struct{}
	handler Handler
}

// Bus is an in-process Source. The zero value is ready to use.
type Bus struct {
	mu   sync.RWMutex
	subs map[uint64]subscription
	next uint64
}

var _ Source = (*Bus)(nil)

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(kinds []Kind, handler Handler) func() {
	set := make(map[Kind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}

	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[uint64]subscription)
	}
	b.next++
	id := b.next
	b.subs[id] = subscription{kinds: set, handler: handler}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers kind to every subscriber registered for it.
func (b *Bus) Publish(kind Kind) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if _, ok := s.kinds[kind]; ok {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(kind)
	}
}

// Subscribers returns the number of attached handlers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
