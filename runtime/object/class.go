package object

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Class holds the metadata shared by every instance of a type: its place in
// the hierarchy, the property and signal tables, class handler overrides and
// the virtual slots.
//
// Tables are append-only until the class is sealed. Sealing happens when the
// first instance of the class or of any descendant is constructed; from then
// on reads skip the lock and every modification fails with ErrSealed.
type Class struct {
	registry   *Registry
	typ        Type
	name       string
	kind       classKind
	flags      TypeFlags
	parent     *Class
	interfaces []*Class // implemented interfaces; prerequisites for interface classes
	chain      []*Class // root first, ending with this class
	depth      int

	mu          sync.RWMutex
	sealed      atomic.Bool
	properties  map[string]*ParamSpec
	propOrder   []*ParamSpec
	signals     map[string]*SignalSpec
	signalOrder []*SignalSpec
	overrides   map[SignalID]ClassHandler

	newPrivate   func() any
	instanceInit func(obj *Object)
	constructed  func(obj *Object)
	setProperty  func(obj *Object, pspec *ParamSpec, v Value)
	getProperty  func(obj *Object, pspec *ParamSpec) Value
	dispose      func(obj *Object)
	finalize     func(obj *Object)
}

func newClass(r *Registry, name string, kind classKind, parent *Class) *Class {
	c := &Class{
		registry:   r,
		name:       name,
		kind:       kind,
		parent:     parent,
		properties: make(map[string]*ParamSpec),
		signals:    make(map[string]*SignalSpec),
		overrides:  make(map[SignalID]ClassHandler),
	}
	if parent != nil {
		c.depth = parent.depth + 1
		c.chain = append(append([]*Class(nil), parent.chain...), c)
		c.constructed = parent.constructed
		c.newPrivate = parent.newPrivate
	} else {
		c.chain = []*Class{c}
	}
	return c
}

// Type returns the class's type id
func (c *Class) Type() Type {
	return c.typ
}

// Name returns the registered type name
func (c *Class) Name() string {
	return c.name
}

// Parent returns the parent class, nil for fundamental roots
func (c *Class) Parent() *Class {
	return c.parent
}

// Interfaces returns the interfaces implemented directly by this class
func (c *Class) Interfaces() []*Class {
	return append([]*Class(nil), c.interfaces...)
}

// Flags returns the type flags
func (c *Class) Flags() TypeFlags {
	return c.flags
}

// Depth returns the number of ancestors
func (c *Class) Depth() int {
	return c.depth
}

// Registry returns the owning registry
func (c *Class) Registry() *Registry {
	return c.registry
}

// IsAbstract reports whether the type cannot be instantiated
func (c *Class) IsAbstract() bool {
	return c.flags.Has(TypeFlagAbstract)
}

// IsInterface reports whether the type is an interface
func (c *Class) IsInterface() bool {
	return c.kind == kindInterface
}

// IsSealed reports whether the class tables are frozen
func (c *Class) IsSealed() bool {
	return c.sealed.Load()
}

// IsA reports whether c is target, derives from it or implements it
func (c *Class) IsA(target *Class) bool {
	if target == nil {
		return false
	}
	if target.kind != kindInterface {
		return target.depth <= c.depth && c.chain[target.depth] == target
	}
	for k := c; k != nil; k = k.parent {
		if k == target {
			return true
		}
		for _, iface := range k.interfaces {
			if iface.IsA(target) {
				return true
			}
		}
	}
	return false
}

// NewPrivate returns a fresh instance-private value from the nearest class
// that declares one, or nil.
func (c *Class) NewPrivate() any {
	if c.newPrivate == nil {
		return nil
	}
	return c.newPrivate()
}

// ChainConstructed runs this class's constructed slot on obj. Overrides use
// it on their parent class to chain up.
func (c *Class) ChainConstructed(obj *Object) {
	if c.constructed != nil {
		c.constructed(obj)
	}
}

func (c *Class) rlock() func() {
	if c.sealed.Load() {
		return func() {}
	}
	c.mu.RLock()
	return c.mu.RUnlock
}

// InstallProperty adds a property to the class. The descriptor becomes owned
// by the class and cannot be installed anywhere else.
func (c *Class) InstallProperty(pspec *ParamSpec) error {
	if err := c.registry.checkParamSpec(pspec); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed.Load() {
		return fmt.Errorf("install property '%s' on '%s': %w", pspec.name, c.name, ErrSealed)
	}
	if pspec.owner != TypeInvalid {
		return fmt.Errorf("property '%s' already installed on another type: %w", pspec.name, ErrInvalidDefinition)
	}
	if _, exists := c.properties[pspec.name]; exists {
		return fmt.Errorf("property '%s' on '%s': %w", pspec.name, c.name, ErrDuplicateProperty)
	}

	pspec.owner = c.typ
	c.properties[pspec.name] = pspec
	c.propOrder = append(c.propOrder, pspec)
	return nil
}

// InstallProperties installs each descriptor in order, stopping at the first error
func (c *Class) InstallProperties(pspecs ...*ParamSpec) error {
	for _, p := range pspecs {
		if err := c.InstallProperty(p); err != nil {
			return err
		}
	}
	return nil
}

func (c *Class) ownProperty(name string) *ParamSpec {
	unlock := c.rlock()
	defer unlock()
	return c.properties[name]
}

// FindProperty looks the name up in the class chain, most derived first,
// then in the interfaces of each class in the chain.
func (c *Class) FindProperty(name string) *ParamSpec {
	for k := c; k != nil; k = k.parent {
		if p := k.ownProperty(name); p != nil {
			return p
		}
	}
	for k := c; k != nil; k = k.parent {
		for _, iface := range k.interfaces {
			if p := iface.FindProperty(name); p != nil {
				return p
			}
		}
	}
	return nil
}

// ListProperties returns every visible property. Shadowed names resolve to
// the most derived declaration.
func (c *Class) ListProperties() []*ParamSpec {
	seen := make(map[string]bool)
	var out []*ParamSpec
	add := func(k *Class) {
		unlock := k.rlock()
		defer unlock()
		for _, p := range k.propOrder {
			if !seen[p.name] {
				seen[p.name] = true
				out = append(out, p)
			}
		}
	}
	for k := c; k != nil; k = k.parent {
		add(k)
	}
	for k := c; k != nil; k = k.parent {
		for _, iface := range k.interfaces {
			for _, p := range iface.ListProperties() {
				if !seen[p.name] {
					seen[p.name] = true
					out = append(out, p)
				}
			}
		}
	}
	return out
}

// AddSignal registers a signal on the class and returns its id. The name must
// be unique among this class's own signals; a subclass may shadow it.
func (c *Class) AddSignal(spec *SignalSpec) (SignalID, error) {
	if err := c.registry.checkSignalSpec(spec); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed.Load() {
		return 0, fmt.Errorf("add signal '%s' on '%s': %w", spec.name, c.name, ErrSealed)
	}
	if spec.owner != TypeInvalid {
		return 0, fmt.Errorf("signal '%s' already added to another type: %w", spec.name, ErrInvalidDefinition)
	}
	if _, exists := c.signals[spec.name]; exists {
		return 0, fmt.Errorf("signal '%s' on '%s': %w", spec.name, c.name, ErrDuplicateSignal)
	}

	spec.id = SignalID(c.registry.nextSignal.Add(1))
	spec.owner = c.typ
	c.signals[spec.name] = spec
	c.signalOrder = append(c.signalOrder, spec)

	c.registry.logger.Debug("signal added",
		zap.String("type", c.name),
		zap.String("signal", spec.name),
		zap.Uint32("id", uint32(spec.id)))
	return spec.id, nil
}

func (c *Class) ownSignal(name string) *SignalSpec {
	unlock := c.rlock()
	defer unlock()
	return c.signals[name]
}

// FindSignal looks the name up in the class chain then in the interfaces
func (c *Class) FindSignal(name string) *SignalSpec {
	for k := c; k != nil; k = k.parent {
		if s := k.ownSignal(name); s != nil {
			return s
		}
	}
	for k := c; k != nil; k = k.parent {
		for _, iface := range k.interfaces {
			if s := iface.FindSignal(name); s != nil {
				return s
			}
		}
	}
	return nil
}

// ListSignals returns every visible signal, most derived first
func (c *Class) ListSignals() []*SignalSpec {
	seen := make(map[string]bool)
	var out []*SignalSpec
	collect := func(specs []*SignalSpec) {
		for _, s := range specs {
			if !seen[s.name] {
				seen[s.name] = true
				out = append(out, s)
			}
		}
	}
	for k := c; k != nil; k = k.parent {
		unlock := k.rlock()
		collect(k.signalOrder)
		unlock()
	}
	for k := c; k != nil; k = k.parent {
		for _, iface := range k.interfaces {
			collect(iface.ListSignals())
		}
	}
	return out
}

// OverrideClassHandler replaces the class handler of an inherited signal for
// this class and its descendants. The replaced handler stays reachable
// through Emission.ChainFromOverridden.
func (c *Class) OverrideClassHandler(name string, h ClassHandler) error {
	if h == nil {
		return fmt.Errorf("override '%s' on '%s': nil handler: %w", name, c.name, ErrInvalidDefinition)
	}
	spec := c.FindSignal(name)
	if spec == nil {
		return &SignalError{Type: c.name, Signal: name, Index: -1, Err: ErrUnknownSignal}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed.Load() {
		return fmt.Errorf("override '%s' on '%s': %w", name, c.name, ErrSealed)
	}
	if _, exists := c.overrides[spec.id]; exists {
		return fmt.Errorf("class '%s' already overrides '%s': %w", c.name, name, ErrInvalidDefinition)
	}
	c.overrides[spec.id] = h
	return nil
}

// classHandlers returns the class handler chain for spec as seen from c,
// most derived override first and the signal's own handler last.
func (c *Class) classHandlers(spec *SignalSpec) []ClassHandler {
	var chain []ClassHandler
	for k := c; k != nil; k = k.parent {
		unlock := k.rlock()
		h, ok := k.overrides[spec.id]
		unlock()
		if ok {
			chain = append(chain, h)
		}
	}
	if spec.classHandler != nil {
		chain = append(chain, spec.classHandler)
	}
	return chain
}

// seal freezes the class, its ancestors and all interfaces they implement
func (c *Class) seal() {
	if c.sealed.Load() {
		return
	}
	for _, k := range c.chain {
		k.sealOne()
		for _, iface := range k.interfaces {
			iface.seal()
		}
	}
}

func (c *Class) sealOne() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed.Load() {
		return
	}
	c.sealed.Store(true)
	c.registry.logger.Debug("class sealed", zap.String("type", c.name))
}

func (c *Class) String() string {
	return c.name
}
