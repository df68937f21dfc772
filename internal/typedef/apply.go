package typedef

import (
	"fmt"
	"math"
	"regexp"

	"go.uber.org/zap"

	"github.com/conduit-lang/objrt/runtime/object"
)

// Apply registers the document's interfaces and types with reg, parents and
// interfaces first. Every reference is resolved against the document and reg
// before anything is registered. Properties and signals are installed once
// all types exist, so they may name any type of the document.
//
// It returns the registered types in registration order.
func (d *Document) Apply(reg *object.Registry) ([]object.Type, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := d.resolveAll(reg); err != nil {
		return nil, err
	}
	order, err := newGraph(d).sort()
	if err != nil {
		return nil, err
	}

	ifaces := make(map[string]*InterfaceDef, len(d.Interfaces))
	for i := range d.Interfaces {
		ifaces[d.Interfaces[i].Name] = &d.Interfaces[i]
	}
	types := make(map[string]*TypeDef, len(d.Types))
	for i := range d.Types {
		types[d.Types[i].Name] = &d.Types[i]
	}

	logger := reg.Logger()
	registered := make([]object.Type, 0, len(order))
	for _, name := range order {
		var (
			t   object.Type
			err error
		)
		if def, ok := ifaces[name]; ok {
			t, err = reg.RegisterInterface(object.InterfaceDefinition{
				Name:          def.Name,
				Prerequisites: lookupAll(reg, def.Prerequisites),
			})
		} else {
			t, err = d.registerType(reg, types[name])
		}
		if err != nil {
			return registered, fmt.Errorf("failed to register '%s': %w", name, err)
		}
		registered = append(registered, t)
		logger.Debug("type definition applied",
			zap.String("type", name),
			zap.String("source", d.Source(name)))
	}

	for _, name := range order {
		var props []PropertyDef
		var signals []SignalDef
		if def, ok := ifaces[name]; ok {
			props, signals = def.Properties, def.Signals
		} else {
			props, signals = types[name].Properties, types[name].Signals
		}
		if err := installMembers(reg, name, props, signals); err != nil {
			return registered, err
		}
	}
	return registered, nil
}

func (d *Document) registerType(reg *object.Registry, def *TypeDef) (object.Type, error) {
	parent := object.TypeObject
	switch {
	case def.Parent != "":
		parent, _ = reg.Lookup(def.Parent)
	case def.Unowned:
		parent = object.TypeInitiallyUnowned
	}

	var flags object.TypeFlags
	if def.Abstract {
		flags |= object.TypeFlagAbstract
	}
	if def.Final {
		flags |= object.TypeFlagFinal
	}

	return reg.Register(object.TypeDefinition{
		Name:       def.Name,
		Parent:     parent,
		Interfaces: lookupAll(reg, def.Interfaces),
		Flags:      flags,
	})
}

// resolveAll reports every reference that names neither a definition of the
// document nor a type registered in reg.
func (d *Document) resolveAll(reg *object.Registry) error {
	c := &collector{doc: d}
	local := make(map[string]bool)
	for _, name := range d.Names() {
		local[name] = true
		if _, ok := reg.Lookup(name); ok {
			c.add(name, "", "", "type '%s' is already registered", name)
		}
	}
	known := func(name string) bool {
		if local[name] {
			return true
		}
		_, ok := reg.Lookup(name)
		return ok
	}
	check := func(typ, member, what, ref string) {
		if ref != "" && ref != "none" && !known(ref) {
			c.add(typ, member, "", "unknown %s '%s'", what, ref)
		}
	}
	checkSignals := func(typ string, signals []SignalDef) {
		for _, s := range signals {
			for _, p := range s.Params {
				check(typ, s.Name, "parameter type", p)
			}
			check(typ, s.Name, "return type", s.Returns)
		}
	}
	checkProps := func(typ string, props []PropertyDef) {
		for _, p := range props {
			check(typ, p.Name, "object type", p.ObjectType)
		}
	}

	for _, i := range d.Interfaces {
		for _, p := range i.Prerequisites {
			check(i.Name, "", "prerequisite", p)
		}
		checkProps(i.Name, i.Properties)
		checkSignals(i.Name, i.Signals)
	}
	for _, t := range d.Types {
		check(t.Name, "", "parent", t.Parent)
		for _, i := range t.Interfaces {
			check(t.Name, "", "interface", i)
		}
		checkProps(t.Name, t.Properties)
		checkSignals(t.Name, t.Signals)
	}
	return c.err()
}

func lookupAll(reg *object.Registry, names []string) []object.Type {
	types := make([]object.Type, 0, len(names))
	for _, name := range names {
		t, _ := reg.Lookup(name)
		types = append(types, t)
	}
	return types
}

func installMembers(reg *object.Registry, typ string, props []PropertyDef, signals []SignalDef) error {
	c, err := reg.ClassByName(typ)
	if err != nil {
		return err
	}
	for _, p := range props {
		pspec, err := buildParamSpec(reg, p)
		if err != nil {
			return fmt.Errorf("property '%s.%s': %w", typ, p.Name, err)
		}
		if err := c.InstallProperty(pspec); err != nil {
			return err
		}
	}
	for _, s := range signals {
		spec, err := buildSignal(reg, s)
		if err != nil {
			return fmt.Errorf("signal '%s.%s': %w", typ, s.Name, err)
		}
		if _, err := c.AddSignal(spec); err != nil {
			return err
		}
	}
	return nil
}

func buildParamSpec(reg *object.Registry, p PropertyDef) (*object.ParamSpec, error) {
	flags, err := parseParamFlags(p.Flags)
	if err != nil {
		return nil, err
	}
	var def any
	if p.Default != nil {
		if def, err = defaultValue(p); err != nil {
			return nil, err
		}
	}

	var pspec *object.ParamSpec
	switch p.Kind {
	case "bool":
		b, _ := def.(bool)
		pspec = object.BoolParam(p.Name, b, flags)
	case "int":
		lo, hi := int64(math.MinInt64), int64(math.MaxInt64)
		if p.Min != nil {
			lo = int64(*p.Min)
		}
		if p.Max != nil {
			hi = int64(*p.Max)
		}
		n, ok := def.(int64)
		if !ok {
			n = clamp(0, lo, hi)
		}
		pspec = object.IntParam(p.Name, lo, hi, n, flags)
	case "uint":
		lo, hi := uint64(0), uint64(math.MaxUint64)
		if p.Min != nil {
			lo = uint64(*p.Min)
		}
		if p.Max != nil {
			hi = uint64(*p.Max)
		}
		n, ok := def.(uint64)
		if !ok {
			n = lo
		}
		pspec = object.UintParam(p.Name, lo, hi, n, flags)
	case "double":
		lo, hi := -math.MaxFloat64, math.MaxFloat64
		if p.Min != nil {
			lo = *p.Min
		}
		if p.Max != nil {
			hi = *p.Max
		}
		n, ok := def.(float64)
		if !ok {
			n = clamp(0, lo, hi)
		}
		pspec = object.DoubleParam(p.Name, lo, hi, n, flags)
	case "string":
		s, _ := def.(string)
		pspec = object.StringParam(p.Name, s, flags)
		if p.MaxLength > 0 {
			pspec = pspec.WithMaxLength(p.MaxLength)
		}
		if p.Pattern != "" {
			re, err := regexp.Compile(p.Pattern)
			if err != nil {
				return nil, err
			}
			pspec = pspec.WithPattern(re)
		}
	case "enum":
		s, ok := def.(string)
		if !ok {
			s = p.Values[0]
		}
		pspec = object.EnumParam(p.Name, p.Values, s, flags)
	case "object":
		t, ok := reg.Lookup(p.ObjectType)
		if !ok {
			return nil, fmt.Errorf("unknown object type '%s': %w", p.ObjectType, object.ErrUnknownType)
		}
		pspec = object.ObjectParam(p.Name, t, flags)
	case "boxed":
		pspec = object.BoxedParam(p.Name, flags)
	default:
		return nil, fmt.Errorf("unknown kind '%s': %w", p.Kind, object.ErrInvalidDefinition)
	}

	if p.Nick != "" {
		pspec = pspec.WithNick(p.Nick)
	}
	if p.Blurb != "" {
		pspec = pspec.WithBlurb(p.Blurb)
	}
	return pspec, nil
}

func buildSignal(reg *object.Registry, s SignalDef) (*object.SignalSpec, error) {
	flags, err := parseSignalFlags(s.Flags)
	if err != nil {
		return nil, err
	}
	params := make([]object.Type, 0, len(s.Params))
	for _, name := range s.Params {
		t, ok := reg.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown parameter type '%s': %w", name, object.ErrUnknownType)
		}
		params = append(params, t)
	}
	ret := object.TypeNone
	if s.Returns != "" {
		t, ok := reg.Lookup(s.Returns)
		if !ok {
			return nil, fmt.Errorf("unknown return type '%s': %w", s.Returns, object.ErrUnknownType)
		}
		ret = t
	}

	spec := object.NewSignal(s.Name, flags, params, ret)
	if s.Accumulator != "" {
		spec = spec.WithAccumulator(accumulators[s.Accumulator])
	}
	return spec, nil
}

func clamp[T int64 | float64](v, lo, hi T) T {
	return min(max(v, lo), hi)
}
