package object

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Object is a reference-counted instance of a registered class.
//
// The creator owns one reference. Ref and Unref are lock-free; when the count
// reaches zero the instance is torn down exactly once: weak references are
// cleared first, then dispose slots, weak notifies, signal handlers and
// finalize slots run, and the private block is returned to the allocator.
type Object struct {
	id        uuid.UUID
	class     *Class
	refs      atomic.Int32
	floating  atomic.Bool
	finalized atomic.Bool
	private   any

	// set while construct-time properties are applied; never written after
	// the object is returned to the caller
	constructing bool

	propMu sync.RWMutex
	props  map[*ParamSpec]Value

	dataMu sync.Mutex
	data   map[string]any

	sigMu        sync.Mutex
	handlers     []*handlerEntry // active, copy on write
	byID         map[HandlerID]*handlerEntry
	disconnected []handlerTombstone // most recent last
	emissions    []*Emission

	weakMu       sync.Mutex
	weakRefs     map[*WeakRef]struct{}
	weakNotifies []weakNotify
}

// Dropper is implemented by qdata values that release resources when the
// value is replaced or the object is finalized.
type Dropper interface {
	Drop()
}

// ID returns the instance identity
func (o *Object) ID() uuid.UUID {
	return o.id
}

// Class returns the instance's class
func (o *Object) Class() *Class {
	return o.class
}

// Type returns the dynamic type
func (o *Object) Type() Type {
	return o.class.typ
}

// TypeName returns the registered name of the dynamic type
func (o *Object) TypeName() string {
	return o.class.name
}

// Registry returns the registry the instance's type belongs to
func (o *Object) Registry() *Registry {
	return o.class.registry
}

// Private returns the instance-private data block
func (o *Object) Private() any {
	return o.private
}

// IsA reports whether the instance's type is t, derives from it or implements it
func (o *Object) IsA(t Type) bool {
	target := o.class.registry.class(t)
	return target != nil && o.class.IsA(target)
}

// Cast returns o when it is an instance of t
func (o *Object) Cast(t Type) (*Object, bool) {
	if o == nil || !o.IsA(t) {
		return nil, false
	}
	return o, true
}

// RefCount returns the current strong count; only meaningful for diagnostics
func (o *Object) RefCount() int32 {
	return o.refs.Load()
}

// IsFloating reports whether the initial reference has not been sunk yet
func (o *Object) IsFloating() bool {
	return o.floating.Load()
}

// IsFinalized reports whether the instance has been torn down
func (o *Object) IsFinalized() bool {
	return o.finalized.Load()
}

// Ref adds a strong reference and returns o. Taking a reference on a
// finalized object is a programming error and panics.
func (o *Object) Ref() *Object {
	if !o.tryRef() {
		panic(fmt.Sprintf("object: Ref on finalized %s instance", o.class.name))
	}
	return o
}

// tryRef increments the count unless it is zero. It is the only way a weak
// reference gains a strong one, so a finalized instance is never revived.
func (o *Object) tryRef() bool {
	for {
		n := o.refs.Load()
		if n <= 0 {
			return false
		}
		if o.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Unref drops a strong reference, tearing the instance down on the last one
func (o *Object) Unref() {
	n := o.refs.Add(-1)
	switch {
	case n > 0:
		return
	case n == 0:
		o.destroy()
	default:
		panic(fmt.Sprintf("object: Unref on finalized %s instance", o.class.name))
	}
}

// RefSink takes ownership of a floating reference, or adds a reference when
// the object is not floating.
func (o *Object) RefSink() *Object {
	if o.floating.CompareAndSwap(true, false) {
		return o
	}
	return o.Ref()
}

func (o *Object) destroy() {
	if !o.finalized.CompareAndSwap(false, true) {
		return
	}
	r := o.class.registry

	o.clearWeakRefs()
	for k := o.class; k != nil; k = k.parent {
		if k.dispose != nil {
			k.dispose(o)
		}
	}
	o.runWeakNotifies()
	o.disconnectAll()
	for k := o.class; k != nil; k = k.parent {
		if k.finalize != nil {
			k.finalize(o)
		}
	}
	o.dropData()

	r.alloc.Free(o.class, o.private)
	o.private = nil

	r.logger.Debug("instance finalized",
		zap.String("type", o.class.name),
		zap.String("id", o.id.String()))
	r.emitEvent(Event{Type: EventFinalized, TypeID: o.class.typ, TypeName: o.class.name, ObjectID: o.id})
}

// String returns "Type@id"
func (o *Object) String() string {
	return o.class.name + "@" + o.id.String()
}

// SetData attaches v under key. A nil v removes the entry. Replaced values
// implementing Dropper are dropped.
func (o *Object) SetData(key string, v any) {
	o.dataMu.Lock()
	old, had := o.data[key]
	if v == nil {
		delete(o.data, key)
	} else {
		if o.data == nil {
			o.data = make(map[string]any)
		}
		o.data[key] = v
	}
	o.dataMu.Unlock()

	if d, ok := old.(Dropper); had && ok {
		d.Drop()
	}
}

// Data returns the value attached under key
func (o *Object) Data(key string) (any, bool) {
	o.dataMu.Lock()
	defer o.dataMu.Unlock()
	v, ok := o.data[key]
	return v, ok
}

// StealData removes and returns the value under key without dropping it
func (o *Object) StealData(key string) (any, bool) {
	o.dataMu.Lock()
	defer o.dataMu.Unlock()
	v, ok := o.data[key]
	delete(o.data, key)
	return v, ok
}

// DataAs returns the value under key when it has type T
func DataAs[T any](o *Object, key string) (T, bool) {
	v, ok := o.Data(key)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

func (o *Object) dropData() {
	o.dataMu.Lock()
	data := o.data
	o.data = nil
	o.dataMu.Unlock()

	for _, v := range data {
		if d, ok := v.(Dropper); ok {
			d.Drop()
		}
	}
}

// Unowned holds the floating reference of a freshly constructed
// initially-unowned instance until someone takes ownership with Sink.
type Unowned struct {
	obj *Object
}

// Object returns the wrapped instance without taking ownership
func (u *Unowned) Object() *Object {
	return u.obj
}

// Sink converts the floating reference into an owned one without changing
// the count. Only the first call succeeds; later calls return nil, false.
func (u *Unowned) Sink() (*Object, bool) {
	if !u.obj.floating.CompareAndSwap(true, false) {
		return nil, false
	}
	return u.obj, true
}
