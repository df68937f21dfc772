package object

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Property pairs a property name with a value for construction and batch sets
type Property struct {
	Name  string
	Value Value
}

// Prop builds a Property from a Go value, see ValueOf
func Prop(name string, v any) Property {
	return Property{Name: name, Value: ValueOf(v)}
}

// New constructs an instance of t and returns it owned by the caller.
// Instances of initially-unowned types are sunk before they are returned.
//
// Every supplied property is validated before anything is allocated, so a
// failed construction leaves no partially built instance behind. Errors are
// *ConstructError values matching ErrConstruct.
func (r *Registry) New(t Type, props ...Property) (*Object, error) {
	return r.construct(t, props, false)
}

// NewUnowned constructs an instance of an initially-unowned type and returns
// its floating reference
func (r *Registry) NewUnowned(t Type, props ...Property) (*Unowned, error) {
	c := r.class(t)
	if c != nil && !c.IsA(r.class(TypeInitiallyUnowned)) {
		return nil, &ConstructError{Type: c.name, Err: ErrNotFloating}
	}
	obj, err := r.construct(t, props, true)
	if err != nil {
		return nil, err
	}
	return &Unowned{obj: obj}, nil
}

// NewByName constructs an instance of the type registered under name
func (r *Registry) NewByName(name string, props ...Property) (*Object, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, &ConstructError{Type: name, Err: ErrUnknownType}
	}
	return r.New(t, props...)
}

type pendingProperty struct {
	pspec   *ParamSpec
	value   Value
	applied bool
}

func (r *Registry) construct(t Type, props []Property, floating bool) (*Object, error) {
	c := r.class(t)
	if c == nil {
		return nil, &ConstructError{Type: t.String(), Err: ErrUnknownType}
	}
	if c.kind != kindObject {
		return nil, &ConstructError{Type: c.name, Err: ErrNotInstantiable}
	}
	if c.IsAbstract() {
		return nil, &ConstructError{Type: c.name, Err: ErrAbstract}
	}

	pending := make([]*pendingProperty, 0, len(props))
	byPSpec := make(map[*ParamSpec]*pendingProperty, len(props))
	for _, p := range props {
		pspec, v, err := r.prepareSet(c, p.Name, p.Value, opConstruct)
		if err != nil {
			return nil, &ConstructError{Type: c.name, Err: err}
		}
		if prev, dup := byPSpec[pspec]; dup {
			prev.value = v
			continue
		}
		pp := &pendingProperty{pspec: pspec, value: v}
		byPSpec[pspec] = pp
		pending = append(pending, pp)
	}

	c.seal()
	block, err := r.alloc.Alloc(c)
	if err != nil {
		return nil, &ConstructError{Type: c.name, Err: err}
	}

	obj := &Object{
		id:           uuid.New(),
		class:        c,
		private:      block,
		props:        make(map[*ParamSpec]Value),
		byID:         make(map[HandlerID]*handlerEntry),
		constructing: true,
	}
	obj.refs.Store(1)
	obj.floating.Store(floating)

	for _, k := range c.chain {
		if k.instanceInit != nil {
			k.instanceInit(obj)
		}
	}

	// construct properties first, supplied or default, then the rest in the
	// order they were given
	for _, pspec := range c.ListProperties() {
		if pspec.flags&(ParamConstruct|ParamConstructOnly) == 0 {
			continue
		}
		v := pspec.def
		if pp, ok := byPSpec[pspec]; ok {
			v = pp.value
			pp.applied = true
		}
		obj.commitProperty(pspec, v)
	}
	for _, pp := range pending {
		if !pp.applied {
			obj.commitProperty(pp.pspec, pp.value)
		}
	}

	c.ChainConstructed(obj)
	obj.constructing = false

	r.logger.Debug("instance created",
		zap.String("type", c.name),
		zap.String("id", obj.id.String()),
		zap.Bool("floating", floating))
	r.emitEvent(Event{Type: EventCreated, TypeID: c.typ, TypeName: c.name, ObjectID: obj.id, Object: obj})
	return obj, nil
}
