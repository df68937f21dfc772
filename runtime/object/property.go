package object

import (
	"fmt"
)

const (
	opSet       = "set"
	opGet       = "get"
	opConstruct = "construct"
)

// prepareSet resolves, type checks and validates a value for name without
// touching any instance.
func (r *Registry) prepareSet(c *Class, name string, v Value, op string) (*ParamSpec, Value, error) {
	pspec := c.FindProperty(name)
	if pspec == nil {
		return nil, Value{}, &PropertyError{Type: c.name, Property: name, Op: op, Err: ErrUnknownProperty}
	}
	if !pspec.flags.Has(ParamWritable) {
		return nil, Value{}, &PropertyError{Type: c.name, Property: name, Op: op, Err: ErrNotWritable}
	}
	if pspec.flags.Has(ParamConstructOnly) && op != opConstruct {
		return nil, Value{}, &PropertyError{Type: c.name, Property: name, Op: op, Err: ErrNotWritable,
			Detail: "construct-only property"}
	}

	if !v.IsValid() && r.isObjectType(pspec.valueType) {
		v = ObjectValueAs(pspec.valueType, nil)
	}
	got := v.typ
	if obj, ok := v.data.(*Object); ok && obj != nil {
		got = obj.class.typ
	}
	if !r.CheckValue(&v, pspec.valueType) {
		return nil, Value{}, &PropertyError{Type: c.name, Property: name, Op: op, Err: ErrTypeMismatch,
			Detail: fmt.Sprintf("expected %s, got %s", r.Name(pspec.valueType), r.Name(got))}
	}

	orig := v
	if pspec.validate(&v) && !pspec.flags.Has(ParamLaxValidation) {
		return nil, Value{}, &PropertyError{Type: c.name, Property: name, Op: op, Err: ErrValidationFailed,
			Detail: fmt.Sprintf("%s coerced to %s", orig, v)}
	}
	return pspec, v, nil
}

func (o *Object) commitProperty(pspec *ParamSpec, v Value) {
	if owner := o.class.registry.class(pspec.owner); owner != nil && owner.setProperty != nil {
		owner.setProperty(o, pspec, v)
		return
	}
	o.propMu.Lock()
	o.props[pspec] = v
	o.propMu.Unlock()
}

func (o *Object) readProperty(pspec *ParamSpec) Value {
	if owner := o.class.registry.class(pspec.owner); owner != nil && owner.getProperty != nil {
		return owner.getProperty(o, pspec)
	}
	o.propMu.RLock()
	v, ok := o.props[pspec]
	o.propMu.RUnlock()
	if !ok {
		return pspec.def
	}
	return v
}

// SetProperty validates and stores one property, then emits notify::name
func (o *Object) SetProperty(name string, v Value) error {
	return o.SetProperties(Property{Name: name, Value: v})
}

// Set is SetProperty with a Go value, see ValueOf
func (o *Object) Set(name string, v any) error {
	return o.SetProperty(name, ValueOf(v))
}

// SetProperties validates every property before applying any of them.
// Notifications are emitted after all values are stored, once per property.
func (o *Object) SetProperties(props ...Property) error {
	r := o.class.registry

	type change struct {
		pspec *ParamSpec
		value Value
	}
	changes := make([]change, 0, len(props))
	for _, p := range props {
		pspec, v, err := r.prepareSet(o.class, p.Name, p.Value, opSet)
		if err != nil {
			return err
		}
		changes = append(changes, change{pspec: pspec, value: v})
	}

	var notify []*ParamSpec
	seen := make(map[*ParamSpec]bool, len(changes))
	for _, ch := range changes {
		explicit := ch.pspec.flags.Has(ParamExplicitNotify)
		var old Value
		if explicit {
			old = o.readProperty(ch.pspec)
		}
		o.commitProperty(ch.pspec, ch.value)
		if explicit && old.Equal(ch.value) {
			continue
		}
		if !seen[ch.pspec] {
			seen[ch.pspec] = true
			notify = append(notify, ch.pspec)
		}
	}
	for _, pspec := range notify {
		o.notifyProperty(pspec)
	}
	return nil
}

// Property returns the current value of a readable property
func (o *Object) Property(name string) (Value, error) {
	pspec := o.class.FindProperty(name)
	if pspec == nil {
		return Value{}, &PropertyError{Type: o.class.name, Property: name, Op: opGet, Err: ErrUnknownProperty}
	}
	if !pspec.flags.Has(ParamReadable) {
		return Value{}, &PropertyError{Type: o.class.name, Property: name, Op: opGet, Err: ErrNotReadable}
	}
	v := o.readProperty(pspec)
	if !v.IsValid() {
		return Value{}, &PropertyError{Type: o.class.name, Property: name, Op: opGet, Err: ErrNotReadable,
			Detail: "getter produced no value"}
	}
	return v, nil
}

// Get returns the current value of a readable property as a Go value
func (o *Object) Get(name string) (any, error) {
	v, err := o.Property(name)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// FindProperty returns the descriptor visible from the instance's class
func (o *Object) FindProperty(name string) *ParamSpec {
	return o.class.FindProperty(name)
}

// ListProperties returns every property visible from the instance's class
func (o *Object) ListProperties() []*ParamSpec {
	return o.class.ListProperties()
}

// HasProperty reports whether the property exists and its value type is t
// or a subtype. TypeInvalid matches any value type.
func (o *Object) HasProperty(name string, t Type) bool {
	pspec := o.class.FindProperty(name)
	if pspec == nil {
		return false
	}
	return t == TypeInvalid || o.class.registry.IsA(pspec.valueType, t)
}

// PropertyType returns the value type of a property
func (o *Object) PropertyType(name string) (Type, bool) {
	pspec := o.class.FindProperty(name)
	if pspec == nil {
		return TypeInvalid, false
	}
	return pspec.valueType, true
}

// Notify emits notify::name for a property
func (o *Object) Notify(name string) error {
	pspec := o.class.FindProperty(name)
	if pspec == nil {
		return &PropertyError{Type: o.class.name, Property: name, Op: "notify", Err: ErrUnknownProperty}
	}
	o.notifyProperty(pspec)
	return nil
}

// NotifyByPSpec emits notify for a descriptor
func (o *Object) NotifyByPSpec(pspec *ParamSpec) {
	o.notifyProperty(pspec)
}

func (o *Object) notifyProperty(pspec *ParamSpec) {
	if o.constructing {
		return
	}
	r := o.class.registry
	r.emitEvent(Event{
		Type:     EventPropertyChanged,
		TypeID:   o.class.typ,
		TypeName: o.class.name,
		ObjectID: o.id,
		Object:   o,
		Property: pspec.name,
	})
	o.emit(r.notify, pspec.name, []Value{ObjectValue(o), ParamSpecValue(pspec)})
}

// ConnectNotify connects fn to notify::name, or to every notification when
// name is empty
func (o *Object) ConnectNotify(name string, fn func(obj *Object, pspec *ParamSpec)) (HandlerID, error) {
	signal := "notify"
	if name != "" {
		if o.class.FindProperty(name) == nil {
			return 0, &PropertyError{Type: o.class.name, Property: name, Op: "notify", Err: ErrUnknownProperty}
		}
		signal += "::" + name
	}
	return o.Connect(signal, false, func(args []Value) Value {
		obj, _ := args[0].AsObject()
		pspec, _ := args[1].AsParamSpec()
		fn(obj, pspec)
		return Value{}
	})
}
