package inspect

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/conduit-lang/objrt/runtime/object"
)

// Tracker indexes live instances of a registry by id. It holds weak
// references only, so inspecting never keeps an instance alive.
type Tracker struct {
	mu        sync.RWMutex
	instances map[uuid.UUID]*object.WeakRef
	order     []uuid.UUID
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{instances: make(map[uuid.UUID]*object.WeakRef)}
}

// Attach subscribes the tracker to reg. The returned function unsubscribes.
func (t *Tracker) Attach(reg *object.Registry) func() {
	id := reg.Subscribe(t)
	return func() { reg.Unsubscribe(id) }
}

// OnObjectEvent implements object.Observer
func (t *Tracker) OnObjectEvent(e object.Event) {
	switch e.Type {
	case object.EventCreated:
		ref := object.NewWeakRef(e.Object)
		t.mu.Lock()
		t.instances[e.ObjectID] = ref
		t.order = append(t.order, e.ObjectID)
		t.mu.Unlock()
	case object.EventFinalized:
		t.mu.Lock()
		delete(t.instances, e.ObjectID)
		if len(t.order) > 2*len(t.instances)+16 {
			t.compactLocked()
		}
		t.mu.Unlock()
	}
}

// compactLocked drops finalized ids from order. t.mu must be held.
func (t *Tracker) compactLocked() {
	live := t.order[:0]
	for _, id := range t.order {
		if _, ok := t.instances[id]; ok {
			live = append(live, id)
		}
	}
	clear(t.order[len(live):])
	t.order = live
}

// Lookup returns a strong reference to the instance with id, or nil when it
// is unknown or already finalized. The caller must Unref the result.
func (t *Tracker) Lookup(id uuid.UUID) *object.Object {
	t.mu.RLock()
	ref, ok := t.instances[id]
	t.mu.RUnlock()
	if !ok {
		return nil
	}
	return ref.Upgrade()
}

// Len returns the number of tracked instances
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.instances)
}

// Each calls fn with a strong reference to every live instance in creation
// order. The reference is dropped after fn returns.
func (t *Tracker) Each(fn func(obj *object.Object)) {
	t.mu.Lock()
	t.compactLocked()
	refs := make([]*object.WeakRef, 0, len(t.order))
	for _, id := range t.order {
		refs = append(refs, t.instances[id])
	}
	t.mu.Unlock()

	for _, ref := range refs {
		if obj := ref.Upgrade(); obj != nil {
			fn(obj)
			obj.Unref()
		}
	}
}

// IDs returns the ids of tracked instances in sorted order
func (t *Tracker) IDs() []uuid.UUID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(t.instances))
	for id := range t.instances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
