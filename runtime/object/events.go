package object

import (
	"sync"

	"github.com/google/uuid"
)

// EventType classifies runtime events delivered to observers
type EventType uint8

const (
	EventTypeRegistered EventType = iota
	EventCreated
	EventFinalized
	EventPropertyChanged
	EventEmitted
)

func (e EventType) String() string {
	switch e {
	case EventTypeRegistered:
		return "type-registered"
	case EventCreated:
		return "created"
	case EventFinalized:
		return "finalized"
	case EventPropertyChanged:
		return "property-changed"
	case EventEmitted:
		return "emitted"
	default:
		return "unknown"
	}
}

// Event describes something that already happened in a registry.
//
// Object is set for EventCreated, EventPropertyChanged and EventEmitted.
// Observers must not keep it without taking a reference.
type Event struct {
	Type     EventType
	TypeID   Type
	TypeName string
	ObjectID uuid.UUID
	Object   *Object
	Property string
	Signal   string
	Detail   string
}

// Observer receives registry events synchronously on the goroutine that
// caused them. Implementations must not block.
type Observer interface {
	OnObjectEvent(e Event)
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(e Event)

// OnObjectEvent implements Observer
func (f ObserverFunc) OnObjectEvent(e Event) {
	f(e)
}

// SubscriptionID identifies an observer registration
type SubscriptionID uint64

type observerList struct {
	mu     sync.RWMutex
	nextID SubscriptionID
	subs   []subscription
}

type subscription struct {
	id  SubscriptionID
	obs Observer
}

// Subscribe registers an observer for every subsequent event
func (r *Registry) Subscribe(obs Observer) SubscriptionID {
	l := &r.observers
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	subs := make([]subscription, len(l.subs), len(l.subs)+1)
	copy(subs, l.subs)
	l.subs = append(subs, subscription{id: l.nextID, obs: obs})
	return l.nextID
}

// Unsubscribe removes an observer. Unknown ids are ignored.
func (r *Registry) Unsubscribe(id SubscriptionID) {
	l := &r.observers
	l.mu.Lock()
	defer l.mu.Unlock()
	subs := make([]subscription, 0, len(l.subs))
	for _, s := range l.subs {
		if s.id != id {
			subs = append(subs, s)
		}
	}
	l.subs = subs
}

func (r *Registry) emitEvent(e Event) {
	l := &r.observers
	l.mu.RLock()
	subs := l.subs
	l.mu.RUnlock()
	for _, s := range subs {
		s.obs.OnObjectEvent(e)
	}
}
