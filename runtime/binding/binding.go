package binding

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/conduit-lang/objrt/runtime/object"
)

var (
	// ErrInvalidBinding is returned by Builder.Validate when the two
	// properties cannot be bound
	ErrInvalidBinding = errors.New("invalid binding")
)

// Flags control the direction and behaviour of a binding
type Flags uint32

const (
	// Default propagates source changes to the target only
	Default Flags = 0
	// Bidirectional also propagates target changes back to the source
	Bidirectional Flags = 1 << (iota - 1)
	// SyncCreate copies the source value to the target when the binding is built
	SyncCreate
	// InvertBoolean negates boolean values in both directions
	InvertBoolean
)

// Has reports whether all bits of x are set
func (f Flags) Has(x Flags) bool {
	return f&x == x
}

func (f Flags) String() string {
	if f == Default {
		return "default"
	}
	var parts []string
	for _, n := range []struct {
		flag Flags
		name string
	}{
		{Bidirectional, "bidirectional"},
		{SyncCreate, "sync-create"},
		{InvertBoolean, "invert-boolean"},
	} {
		if f.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// TransformFunc converts a value on its way between the two properties.
// Returning false skips the update.
type TransformFunc func(b *Binding, v object.Value) (object.Value, bool)

// Builder collects the description of a binding. Nothing is connected until Build.
type Builder struct {
	source     *object.Object
	sourceProp string
	target     *object.Object
	targetProp string
	flags      Flags
	to         TransformFunc
	from       TransformFunc
}

// Bind starts describing a binding of source's sourceProp to target's targetProp
func Bind(source *object.Object, sourceProp string, target *object.Object, targetProp string) *Builder {
	return &Builder{
		source:     source,
		sourceProp: sourceProp,
		target:     target,
		targetProp: targetProp,
	}
}

// Flags sets the binding flags
func (b *Builder) Flags(f Flags) *Builder {
	b.flags = f
	return b
}

// TransformTo sets the source to target conversion
func (b *Builder) TransformTo(fn TransformFunc) *Builder {
	b.to = fn
	return b
}

// TransformFrom sets the target to source conversion used by bidirectional bindings
func (b *Builder) TransformFrom(fn TransformFunc) *Builder {
	b.from = fn
	return b
}

// Validate reports why Build would fail, or nil
func (b *Builder) Validate() error {
	_, _, err := b.resolve()
	return err
}

func (b *Builder) resolve() (*object.ParamSpec, *object.ParamSpec, error) {
	if b.source == nil || b.target == nil {
		return nil, nil, fmt.Errorf("%w: nil instance", ErrInvalidBinding)
	}
	if b.source == b.target && b.sourceProp == b.targetProp {
		return nil, nil, fmt.Errorf("%w: property '%s' bound to itself", ErrInvalidBinding, b.sourceProp)
	}
	if b.source.IsFinalized() || b.target.IsFinalized() {
		return nil, nil, fmt.Errorf("%w: finalized instance", ErrInvalidBinding)
	}

	sp := b.source.FindProperty(b.sourceProp)
	if sp == nil {
		return nil, nil, fmt.Errorf("%w: %s has no property '%s'", ErrInvalidBinding, b.source.TypeName(), b.sourceProp)
	}
	tp := b.target.FindProperty(b.targetProp)
	if tp == nil {
		return nil, nil, fmt.Errorf("%w: %s has no property '%s'", ErrInvalidBinding, b.target.TypeName(), b.targetProp)
	}
	if !sp.IsReadable() {
		return nil, nil, fmt.Errorf("%w: source property '%s' is not readable", ErrInvalidBinding, sp.Name())
	}
	if !tp.IsWritable() {
		return nil, nil, fmt.Errorf("%w: target property '%s' is not writable", ErrInvalidBinding, tp.Name())
	}
	bidi := b.flags.Has(Bidirectional)
	if bidi && (!tp.IsReadable() || !sp.IsWritable()) {
		return nil, nil, fmt.Errorf("%w: bidirectional binding needs readable and writable properties", ErrInvalidBinding)
	}

	if b.flags.Has(InvertBoolean) {
		if sp.ValueType() != object.TypeBool || tp.ValueType() != object.TypeBool {
			return nil, nil, fmt.Errorf("%w: invert-boolean needs boolean properties", ErrInvalidBinding)
		}
		return sp, tp, nil
	}

	reg := b.source.Registry()
	if b.to == nil && !reg.Transformable(sp.ValueType(), tp.ValueType()) {
		return nil, nil, fmt.Errorf("%w: cannot convert %s to %s", ErrInvalidBinding,
			reg.Name(sp.ValueType()), reg.Name(tp.ValueType()))
	}
	if bidi && b.from == nil && !reg.Transformable(tp.ValueType(), sp.ValueType()) {
		return nil, nil, fmt.Errorf("%w: cannot convert %s to %s", ErrInvalidBinding,
			reg.Name(tp.ValueType()), reg.Name(sp.ValueType()))
	}
	return sp, tp, nil
}

// Build connects the binding. It returns nil when the properties cannot be
// bound; Validate tells why.
func (b *Builder) Build() *Binding {
	sp, tp, err := b.resolve()
	if err != nil {
		if b.source != nil {
			b.source.Registry().Logger().Debug("binding rejected", zap.Error(err))
		}
		return nil
	}

	bd := &Binding{
		source:     object.NewWeakRef(b.source),
		target:     object.NewWeakRef(b.target),
		sourceProp: sp,
		targetProp: tp,
		flags:      b.flags,
		to:         b.to,
		from:       b.from,
		logger:     b.source.Registry().Logger(),
	}

	sourceHandler, err := b.source.ConnectNotify(sp.Name(), func(obj *object.Object, _ *object.ParamSpec) {
		bd.propagate(obj, true)
	})
	if err != nil {
		bd.source.Clear()
		bd.target.Clear()
		return nil
	}
	bd.sourceHandler = sourceHandler
	bd.sourceNotify = b.source.AddWeakNotify(func(*object.Object) { bd.Unbind() })
	bd.targetNotify = b.target.AddWeakNotify(func(*object.Object) { bd.Unbind() })

	if bd.flags.Has(Bidirectional) {
		targetHandler, err := b.target.ConnectNotify(tp.Name(), func(obj *object.Object, _ *object.ParamSpec) {
			bd.propagate(obj, false)
		})
		if err != nil {
			bd.Unbind()
			return nil
		}
		bd.targetHandler = targetHandler
	}

	bd.logger.Debug("binding created",
		zap.Stringer("source", b.source),
		zap.String("source_property", sp.Name()),
		zap.Stringer("target", b.target),
		zap.String("target_property", tp.Name()),
		zap.Stringer("flags", b.flags))

	if bd.flags.Has(SyncCreate) {
		bd.propagate(b.source, true)
	}
	return bd
}

// Binding keeps a target property in sync with a source property. It holds
// only weak references, so it never keeps either instance alive, and it
// unbinds itself when either is finalized.
type Binding struct {
	source     *object.WeakRef
	target     *object.WeakRef
	sourceProp *object.ParamSpec
	targetProp *object.ParamSpec
	flags      Flags
	to         TransformFunc
	from       TransformFunc
	logger     *zap.Logger

	sourceHandler object.HandlerID
	targetHandler object.HandlerID
	sourceNotify  object.WeakNotifyID
	targetNotify  object.WeakNotifyID

	// propagating is set while one side is being written, so the notify
	// of that write does not bounce back
	propagating atomic.Bool
	unbound     atomic.Bool
	unbindOnce  sync.Once
}

// Source returns a new reference to the source instance, or nil once it is
// gone or the binding was released. The caller must Unref it.
func (b *Binding) Source() *object.Object { return b.source.Upgrade() }

// Target returns a new reference to the target instance, or nil
func (b *Binding) Target() *object.Object { return b.target.Upgrade() }

// SourceProperty returns the name of the bound source property
func (b *Binding) SourceProperty() string { return b.sourceProp.Name() }

// TargetProperty returns the name of the bound target property
func (b *Binding) TargetProperty() string { return b.targetProp.Name() }

// Flags returns the flags the binding was created with
func (b *Binding) Flags() Flags { return b.flags }

// IsBound reports whether the binding still propagates
func (b *Binding) IsBound() bool { return !b.unbound.Load() }

// Unbind disconnects the binding. It is safe to call more than once, and
// it runs on its own when either instance is finalized.
func (b *Binding) Unbind() {
	b.unbindOnce.Do(func() {
		b.unbound.Store(true)
		// a finalizing side has its weak reference cleared already and
		// drops its own handlers
		release(b.source, b.sourceHandler, b.sourceNotify)
		release(b.target, b.targetHandler, b.targetNotify)
		b.source.Clear()
		b.target.Clear()

		b.logger.Debug("binding released",
			zap.String("source_property", b.sourceProp.Name()),
			zap.String("target_property", b.targetProp.Name()))
	})
}

func release(weak *object.WeakRef, handler object.HandlerID, notify object.WeakNotifyID) {
	obj := weak.Upgrade()
	if obj == nil {
		return
	}
	defer obj.Unref()
	if handler != 0 {
		_ = obj.Disconnect(handler)
	}
	obj.RemoveWeakNotify(notify)
}

// propagate copies the value from the side that changed to the other one
func (b *Binding) propagate(from *object.Object, forward bool) {
	if b.unbound.Load() || !b.propagating.CompareAndSwap(false, true) {
		return
	}
	defer b.propagating.Store(false)

	otherRef, srcSpec, dstSpec, transform := b.target, b.sourceProp, b.targetProp, b.to
	if !forward {
		otherRef, srcSpec, dstSpec, transform = b.source, b.targetProp, b.sourceProp, b.from
	}
	other := otherRef.Upgrade()
	if other == nil {
		return
	}
	defer other.Unref()

	v, err := from.Property(srcSpec.Name())
	if err != nil {
		b.logger.Debug("binding read failed", zap.Error(err))
		return
	}

	var ok bool
	switch {
	case transform != nil:
		v, ok = transform(b, v)
	case b.flags.Has(InvertBoolean):
		var on bool
		on, ok = v.AsBool()
		v = object.BoolValue(!on)
	default:
		v, ok = convert(v, dstSpec.ValueType())
	}
	if !ok {
		return
	}

	if err := other.SetProperty(dstSpec.Name(), v); err != nil {
		b.logger.Debug("binding write failed",
			zap.String("property", dstSpec.Name()),
			zap.Error(err))
	}
}

// convert is the default transform
func convert(v object.Value, dst object.Type) (object.Value, bool) {
	if obj, ok := v.AsObject(); ok && obj == nil {
		return object.ObjectValueAs(dst, nil), true
	}
	return object.Transform(v, dst)
}
