package object

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// TypeDefinition describes a class to register
type TypeDefinition struct {
	Name       string
	Parent     Type // TypeObject when zero
	Interfaces []Type
	Flags      TypeFlags

	Properties []*ParamSpec
	Signals    []*SignalSpec

	// InstancePrivate allocates the per-instance data block. Inherited when nil.
	InstancePrivate func() any
	// InstanceInit runs after defaults are stored, root class first.
	InstanceInit func(obj *Object)
	// Constructed replaces the inherited slot; call Parent().ChainConstructed to chain up.
	Constructed func(obj *Object)
	// SetProperty and GetProperty handle the properties installed on this class.
	// Without them values live in the instance's property storage.
	SetProperty func(obj *Object, pspec *ParamSpec, v Value)
	GetProperty func(obj *Object, pspec *ParamSpec) Value
	// Dispose and Finalize run for every class in the chain, most derived first.
	Dispose  func(obj *Object)
	Finalize func(obj *Object)

	// ClassInit runs once the tables above are installed and before the type
	// becomes visible. It may add signals, install properties and override
	// class handlers.
	ClassInit func(c *Class) error
}

// InterfaceDefinition describes an interface to register
type InterfaceDefinition struct {
	Name          string
	Prerequisites []Type
	Properties    []*ParamSpec
	Signals       []*SignalSpec
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the registry logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithAllocator replaces the default heap allocator
func WithAllocator(a Allocator) Option {
	return func(r *Registry) {
		if a != nil {
			r.alloc = a
		}
	}
}

// Registry owns every class registered in it. Type ids are only meaningful
// within the registry that issued them.
type Registry struct {
	mu      sync.RWMutex
	classes []*Class // indexed by Type
	byName  map[string]*Class

	logger *zap.Logger
	alloc  Allocator

	nextSignal  atomic.Uint32
	nextHandler atomic.Uint64
	nextNotify  atomic.Uint64

	notify    *SignalSpec
	observers observerList
}

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
)

// Default returns the process-wide registry, creating it on first use
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a registry holding only the fundamental types
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		classes: make([]*Class, 1, 32),
		byName:  make(map[string]*Class),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.alloc == nil {
		r.alloc = NewHeapAllocator()
	}

	for t := TypeNone; t < TypeObject; t++ {
		r.insert(newClass(r, fundamentalNames[t], kindFundamental, nil))
	}
	object := newClass(r, fundamentalNames[TypeObject], kindObject, nil)
	r.insert(object)
	unowned := newClass(r, fundamentalNames[TypeInitiallyUnowned], kindObject, object)
	r.insert(unowned)

	notify := NewSignal("notify",
		SignalRunFirst|SignalNoRecurse|SignalDetailed|SignalAction|SignalNoHooks,
		[]Type{TypeParamSpec}, TypeNone)
	if _, err := object.AddSignal(notify); err != nil {
		panic(err)
	}
	r.notify = notify
	return r
}

func (r *Registry) insert(c *Class) Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.typ = Type(len(r.classes))
	r.classes = append(r.classes, c)
	r.byName[c.name] = c
	return c.typ
}

func (r *Registry) class(t Type) *Class {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t == TypeInvalid || int(t) >= len(r.classes) {
		return nil
	}
	return r.classes[t]
}

// Logger returns the registry logger
func (r *Registry) Logger() *zap.Logger {
	return r.logger
}

// Allocator returns the instance allocator
func (r *Registry) Allocator() Allocator {
	return r.alloc
}

// Register adds a class. Nothing becomes visible unless every part of the
// definition is valid.
func (r *Registry) Register(def TypeDefinition) (Type, error) {
	if !validName(def.Name) {
		return TypeInvalid, fmt.Errorf("type name '%s': %w", def.Name, ErrInvalidDefinition)
	}
	if _, exists := r.Lookup(def.Name); exists {
		return TypeInvalid, fmt.Errorf("type '%s': %w", def.Name, ErrDuplicateType)
	}

	parentType := def.Parent
	if parentType == TypeInvalid {
		parentType = TypeObject
	}
	parent := r.class(parentType)
	if parent == nil {
		return TypeInvalid, fmt.Errorf("parent of '%s': %w", def.Name, ErrUnknownType)
	}
	if parent.kind != kindObject {
		return TypeInvalid, fmt.Errorf("parent '%s' of '%s' is not a class: %w", parent.name, def.Name, ErrInvalidDefinition)
	}
	if parent.flags.Has(TypeFlagFinal) {
		return TypeInvalid, fmt.Errorf("parent '%s' of '%s' is final: %w", parent.name, def.Name, ErrInvalidDefinition)
	}

	c := newClass(r, def.Name, kindObject, parent)
	c.flags = def.Flags

	ifaces, err := r.resolveInterfaces(def.Name, def.Interfaces)
	if err != nil {
		return TypeInvalid, err
	}
	c.interfaces = ifaces
	for _, iface := range ifaces {
		for _, prereq := range iface.interfaces {
			if !c.listsInterface(prereq) {
				return TypeInvalid, fmt.Errorf("'%s' implements '%s' but not its prerequisite '%s': %w",
					def.Name, iface.name, prereq.name, ErrInvalidDefinition)
			}
		}
	}

	if def.InstancePrivate != nil {
		c.newPrivate = def.InstancePrivate
	}
	if def.Constructed != nil {
		c.constructed = def.Constructed
	}
	c.instanceInit = def.InstanceInit
	c.setProperty = def.SetProperty
	c.getProperty = def.GetProperty
	c.dispose = def.Dispose
	c.finalize = def.Finalize

	// The class id must be known before properties and signals record their owner.
	if err := r.reserve(c); err != nil {
		return TypeInvalid, err
	}
	if err := r.populate(c, def.Properties, def.Signals); err != nil {
		r.release(c)
		return TypeInvalid, err
	}
	if def.ClassInit != nil {
		if err := def.ClassInit(c); err != nil {
			r.release(c)
			return TypeInvalid, fmt.Errorf("class init of '%s': %w", def.Name, err)
		}
	}
	r.publish(c)

	r.logger.Debug("type registered",
		zap.String("type", c.name),
		zap.String("parent", parent.name),
		zap.Uint32("id", uint32(c.typ)))
	r.emitEvent(Event{Type: EventTypeRegistered, TypeID: c.typ, TypeName: c.name})
	return c.typ, nil
}

// RegisterInterface adds an interface type
func (r *Registry) RegisterInterface(def InterfaceDefinition) (Type, error) {
	if !validName(def.Name) {
		return TypeInvalid, fmt.Errorf("interface name '%s': %w", def.Name, ErrInvalidDefinition)
	}
	if _, exists := r.Lookup(def.Name); exists {
		return TypeInvalid, fmt.Errorf("interface '%s': %w", def.Name, ErrDuplicateType)
	}
	prereqs, err := r.resolveInterfaces(def.Name, def.Prerequisites)
	if err != nil {
		return TypeInvalid, err
	}

	c := newClass(r, def.Name, kindInterface, r.class(TypeInterface))
	c.interfaces = prereqs

	if err := r.reserve(c); err != nil {
		return TypeInvalid, err
	}
	if err := r.populate(c, def.Properties, def.Signals); err != nil {
		r.release(c)
		return TypeInvalid, err
	}
	r.publish(c)

	r.logger.Debug("interface registered", zap.String("type", c.name), zap.Uint32("id", uint32(c.typ)))
	r.emitEvent(Event{Type: EventTypeRegistered, TypeID: c.typ, TypeName: c.name})
	return c.typ, nil
}

// listsInterface reports whether iface is named by c or one of its ancestors
func (c *Class) listsInterface(iface *Class) bool {
	for _, k := range c.chain {
		for _, i := range k.interfaces {
			if i == iface {
				return true
			}
		}
	}
	return false
}

func (r *Registry) resolveInterfaces(owner string, types []Type) ([]*Class, error) {
	out := make([]*Class, 0, len(types))
	for _, t := range types {
		iface := r.class(t)
		if iface == nil {
			return nil, fmt.Errorf("interface %s of '%s': %w", t, owner, ErrUnknownType)
		}
		if iface.kind != kindInterface {
			return nil, fmt.Errorf("'%s' listed by '%s' is not an interface: %w", iface.name, owner, ErrInvalidDefinition)
		}
		out = append(out, iface)
	}
	return out, nil
}

func (r *Registry) populate(c *Class, props []*ParamSpec, signals []*SignalSpec) error {
	for _, p := range props {
		if err := c.InstallProperty(p); err != nil {
			return err
		}
	}
	for _, s := range signals {
		if _, err := c.AddSignal(s); err != nil {
			return err
		}
	}
	return nil
}

// reserve assigns the next type id to c. The class is reachable by id, so
// its own properties may refer to it, but not yet by name.
// Registration is expected to run single-threaded at startup; concurrent
// Register calls are still safe, they just interleave ids.
func (r *Registry) reserve(c *Class) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[c.name]; exists {
		return fmt.Errorf("type '%s': %w", c.name, ErrDuplicateType)
	}
	c.typ = Type(len(r.classes))
	r.classes = append(r.classes, c)
	r.byName[c.name] = nil
	return nil
}

func (r *Registry) release(c *Class) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byName, c.name)
	// the slot stays reserved so later ids remain stable
	r.classes[c.typ] = nil
	for _, p := range c.propOrder {
		p.owner = TypeInvalid
	}
	for _, s := range c.signalOrder {
		s.owner = TypeInvalid
	}
}

func (r *Registry) publish(c *Class) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[c.name] = c
}

// Lookup returns the type registered under name
func (r *Registry) Lookup(name string) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.byName[name]
	if c == nil {
		return TypeInvalid, false
	}
	return c.typ, true
}

// Class returns the metadata of t
func (r *Registry) Class(t Type) (*Class, error) {
	c := r.class(t)
	if c == nil {
		return nil, fmt.Errorf("type %d: %w", uint32(t), ErrUnknownType)
	}
	return c, nil
}

// ClassByName returns the metadata of the type registered under name
func (r *Registry) ClassByName(name string) (*Class, error) {
	r.mu.RLock()
	c := r.byName[name]
	r.mu.RUnlock()
	if c == nil {
		return nil, fmt.Errorf("type '%s': %w", name, ErrUnknownType)
	}
	return c, nil
}

// Name returns the registered name of t, or its String form if unknown
func (r *Registry) Name(t Type) string {
	if c := r.class(t); c != nil {
		return c.name
	}
	return t.String()
}

// Parent returns the parent type, TypeInvalid for roots and unknown types
func (r *Registry) Parent(t Type) Type {
	c := r.class(t)
	if c == nil || c.parent == nil {
		return TypeInvalid
	}
	return c.parent.typ
}

// Depth returns the number of ancestors of t, -1 if unknown
func (r *Registry) Depth(t Type) int {
	c := r.class(t)
	if c == nil {
		return -1
	}
	return c.depth
}

// IsA reports whether t is target, derives from it or implements it.
// Unregistered types are never related to anything.
func (r *Registry) IsA(t, target Type) bool {
	c := r.class(t)
	tc := r.class(target)
	if c == nil || tc == nil {
		return false
	}
	return c.IsA(tc)
}

// Types returns every registered type in registration order
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Type, 0, len(r.classes))
	for _, c := range r.classes {
		if c != nil {
			out = append(out, c.typ)
		}
	}
	return out
}

// Children returns the direct subclasses of t
func (r *Registry) Children(t Type) []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Type
	for _, c := range r.classes {
		if c != nil && c.parent != nil && c.parent.typ == t {
			out = append(out, c.typ)
		}
	}
	return out
}

// Interfaces returns the interfaces implemented by t and its ancestors
func (r *Registry) Interfaces(t Type) []Type {
	c := r.class(t)
	if c == nil {
		return nil
	}
	seen := make(map[Type]bool)
	var out []Type
	var walk func(k *Class)
	walk = func(k *Class) {
		for _, iface := range k.interfaces {
			if !seen[iface.typ] {
				seen[iface.typ] = true
				out = append(out, iface.typ)
				walk(iface)
			}
		}
	}
	for k := c; k != nil; k = k.parent {
		walk(k)
	}
	return out
}

func (r *Registry) isObjectType(t Type) bool {
	c := r.class(t)
	return c != nil && (c.kind == kindObject || c.kind == kindInterface)
}

// CheckValue reports whether v can be stored where want is expected,
// retagging object values to want. Objects match covariantly; a nil object
// matches any object or interface type.
func (r *Registry) CheckValue(v *Value, want Type) bool {
	if obj, ok := v.data.(*Object); ok {
		wc := r.class(want)
		if wc == nil || (wc.kind != kindObject && wc.kind != kindInterface) {
			return false
		}
		if obj != nil && !obj.class.IsA(wc) {
			return false
		}
		v.typ = want
		return true
	}
	return v.typ == want && want != TypeInvalid
}

func (r *Registry) checkParamSpec(p *ParamSpec) error {
	if p == nil {
		return fmt.Errorf("nil property: %w", ErrInvalidDefinition)
	}
	if !validName(p.name) {
		return fmt.Errorf("property name '%s': %w", p.name, ErrInvalidDefinition)
	}
	if r.class(p.valueType) == nil || p.valueType == TypeNone {
		return fmt.Errorf("property '%s' value type %d: %w", p.name, uint32(p.valueType), ErrUnknownType)
	}
	def := p.def
	if !r.CheckValue(&def, p.valueType) {
		return fmt.Errorf("property '%s' default %s does not hold %s: %w",
			p.name, p.def, r.Name(p.valueType), ErrInvalidDefinition)
	}
	if p.validate(&def) {
		return fmt.Errorf("property '%s' default %s fails its own validation: %w", p.name, p.def, ErrInvalidDefinition)
	}
	p.def = def
	return nil
}

func (r *Registry) checkSignalSpec(s *SignalSpec) error {
	if s == nil {
		return fmt.Errorf("nil signal: %w", ErrInvalidDefinition)
	}
	if !validName(s.name) {
		return fmt.Errorf("signal name '%s': %w", s.name, ErrInvalidDefinition)
	}
	for i, t := range s.params {
		if r.class(t) == nil || t == TypeNone {
			return fmt.Errorf("signal '%s' parameter %d: %w", s.name, i, ErrUnknownType)
		}
	}
	if r.class(s.ret) == nil {
		return fmt.Errorf("signal '%s' return type: %w", s.name, ErrUnknownType)
	}
	if s.accumulator != nil && s.ret == TypeNone {
		return fmt.Errorf("signal '%s' has an accumulator but no return type: %w", s.name, ErrInvalidDefinition)
	}
	return nil
}
