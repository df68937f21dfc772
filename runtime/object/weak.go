package object

import (
	"fmt"
	"sync/atomic"
)

// WeakRef tracks an object without keeping it alive. The slot is cleared
// when the object's count reaches zero, before any dispose slot runs.
//
// The zero WeakRef is empty and ready to use.
type WeakRef struct {
	ptr atomic.Pointer[Object]
}

// NewWeakRef returns a weak reference to obj, which may be nil
func NewWeakRef(obj *Object) *WeakRef {
	w := &WeakRef{}
	w.Set(obj)
	return w
}

// Downgrade returns a weak reference to o
func (o *Object) Downgrade() *WeakRef {
	return NewWeakRef(o)
}

// Set points w at obj, detaching it from its previous object
func (w *WeakRef) Set(obj *Object) {
	if old := w.ptr.Load(); old != nil {
		old.weakMu.Lock()
		delete(old.weakRefs, w)
		old.weakMu.Unlock()
	}
	if obj == nil {
		w.ptr.Store(nil)
		return
	}

	obj.weakMu.Lock()
	defer obj.weakMu.Unlock()
	if obj.finalized.Load() {
		w.ptr.Store(nil)
		return
	}
	if obj.weakRefs == nil {
		obj.weakRefs = make(map[*WeakRef]struct{})
	}
	obj.weakRefs[w] = struct{}{}
	w.ptr.Store(obj)
}

// Clear empties w
func (w *WeakRef) Clear() {
	w.Set(nil)
}

// Upgrade returns a new strong reference, or nil when the object is gone.
// The caller must Unref a non-nil result.
func (w *WeakRef) Upgrade() *Object {
	obj := w.ptr.Load()
	if obj == nil || !obj.tryRef() {
		return nil
	}
	return obj
}

// Clone returns an independent weak reference to the same object
func (w *WeakRef) Clone() *WeakRef {
	obj := w.Upgrade()
	if obj == nil {
		return &WeakRef{}
	}
	clone := NewWeakRef(obj)
	obj.Unref()
	return clone
}

func (o *Object) clearWeakRefs() {
	o.weakMu.Lock()
	refs := o.weakRefs
	o.weakRefs = nil
	o.weakMu.Unlock()

	for w := range refs {
		w.ptr.CompareAndSwap(o, nil)
	}
}

// Owner is an identity token for ConfinedWeakRef. Go has no goroutine
// identity, so code that wants confinement carries an Owner explicitly.
type Owner struct {
	id uint64
}

var ownerIDs atomic.Uint64

// NewOwner returns a fresh token
func NewOwner() *Owner {
	return &Owner{id: ownerIDs.Add(1)}
}

// ConfinedWeakRef is a weak reference that only its owner may upgrade.
// Cloning and clearing are allowed from anywhere.
type ConfinedWeakRef struct {
	weak  *WeakRef
	owner *Owner
}

// Confine returns a weak reference to o upgradable only by owner
func (o *Object) Confine(owner *Owner) *ConfinedWeakRef {
	return &ConfinedWeakRef{weak: NewWeakRef(o), owner: owner}
}

// Upgrade returns a new strong reference or nil. Calling it with another
// owner panics.
func (c *ConfinedWeakRef) Upgrade(owner *Owner) *Object {
	if owner != c.owner {
		panic(fmt.Sprintf("object: confined weak reference owned by %d upgraded by another owner", c.owner.id))
	}
	return c.weak.Upgrade()
}

// Owner returns the token the reference is confined to
func (c *ConfinedWeakRef) Owner() *Owner {
	return c.owner
}

// Clone returns an independent reference confined to the same owner
func (c *ConfinedWeakRef) Clone() *ConfinedWeakRef {
	return &ConfinedWeakRef{weak: c.weak.Clone(), owner: c.owner}
}

// Clear empties the reference
func (c *ConfinedWeakRef) Clear() {
	c.weak.Clear()
}

// WeakNotifyID identifies a weak notify callback
type WeakNotifyID uint64

type weakNotify struct {
	id WeakNotifyID
	fn func(obj *Object)
}

// AddWeakNotify registers fn to run during teardown, after the dispose
// slots. The object passed to fn can no longer be referenced.
func (o *Object) AddWeakNotify(fn func(obj *Object)) WeakNotifyID {
	id := WeakNotifyID(o.class.registry.nextNotify.Add(1))
	o.weakMu.Lock()
	o.weakNotifies = append(o.weakNotifies, weakNotify{id: id, fn: fn})
	o.weakMu.Unlock()
	return id
}

// RemoveWeakNotify unregisters a callback and reports whether it was present
func (o *Object) RemoveWeakNotify(id WeakNotifyID) bool {
	o.weakMu.Lock()
	defer o.weakMu.Unlock()
	for i, n := range o.weakNotifies {
		if n.id == id {
			o.weakNotifies = append(o.weakNotifies[:i], o.weakNotifies[i+1:]...)
			return true
		}
	}
	return false
}

func (o *Object) runWeakNotifies() {
	o.weakMu.Lock()
	notifies := o.weakNotifies
	o.weakNotifies = nil
	o.weakMu.Unlock()

	for _, n := range notifies {
		n.fn(o)
	}
}
