package object

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFundamentalTypes(t *testing.T) {
	reg := NewRegistry()

	for typ := TypeNone; typ < firstDynamicType; typ++ {
		c, err := reg.Class(typ)
		require.NoError(t, err, typ.String())
		assert.Equal(t, typ, c.Type())
		assert.Equal(t, typ.String(), c.Name())

		found, ok := reg.Lookup(typ.String())
		assert.True(t, ok)
		assert.Equal(t, typ, found)
	}

	assert.True(t, reg.IsA(TypeInitiallyUnowned, TypeObject))
	assert.False(t, reg.IsA(TypeObject, TypeInitiallyUnowned))
	assert.Equal(t, TypeObject, reg.Parent(TypeInitiallyUnowned))
	assert.Equal(t, TypeInvalid, reg.Parent(TypeObject))
}

func TestRegistry_IsA(t *testing.T) {
	f := newFixture(t)
	reg := f.reg

	tests := []struct {
		name   string
		typ    Type
		target Type
		want   bool
	}{
		{"reflexive", f.widget, f.widget, true},
		{"direct parent", f.button, f.widget, true},
		{"root", f.button, TypeObject, true},
		{"inherited interface", f.button, f.named, true},
		{"direct interface", f.widget, f.named, true},
		{"interface is itself", f.named, f.named, true},
		{"not a descendant", f.widget, f.button, false},
		{"sibling", f.container, f.widget, false},
		{"interface not implemented", f.container, f.named, false},
		{"unregistered source", Type(9999), TypeObject, false},
		{"unregistered target", f.widget, Type(9999), false},
		{"invalid", TypeInvalid, TypeInvalid, false},
		{"object is not an interface", f.widget, TypeInterface, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reg.IsA(tt.typ, tt.target))
		})
	}
}

func TestRegistry_RegisterErrors(t *testing.T) {
	f := newFixture(t)

	final, err := f.reg.Register(TypeDefinition{Name: "Sealed", Flags: TypeFlagFinal})
	require.NoError(t, err)

	tests := []struct {
		name string
		def  TypeDefinition
		err  error
	}{
		{"duplicate", TypeDefinition{Name: "Widget"}, ErrDuplicateType},
		{"empty name", TypeDefinition{Name: ""}, ErrInvalidDefinition},
		{"bad name", TypeDefinition{Name: "9lives"}, ErrInvalidDefinition},
		{"unknown parent", TypeDefinition{Name: "Orphan", Parent: Type(4242)}, ErrNotFound},
		{"parent not a class", TypeDefinition{Name: "Weird", Parent: TypeString}, ErrInvalidDefinition},
		{"final parent", TypeDefinition{Name: "Child", Parent: final}, ErrInvalidDefinition},
		{"interface not interface", TypeDefinition{Name: "Fake", Interfaces: []Type{f.widget}}, ErrInvalidDefinition},
		{"unknown interface", TypeDefinition{Name: "Ghost", Interfaces: []Type{Type(777)}}, ErrNotFound},
		{
			"duplicate property",
			TypeDefinition{Name: "Twice", Properties: []*ParamSpec{
				IntParam("a", 0, 1, 0, ParamReadWrite),
				IntParam("a", 0, 1, 0, ParamReadWrite),
			}},
			ErrDuplicateProperty,
		},
		{
			"duplicate signal",
			TypeDefinition{Name: "Loud", Signals: []*SignalSpec{
				NewSignal("ping", SignalRunLast, nil, TypeNone),
				NewSignal("ping", SignalRunLast, nil, TypeNone),
			}},
			ErrDuplicateSignal,
		},
		{
			"default fails validation",
			TypeDefinition{Name: "Bad", Properties: []*ParamSpec{IntParam("n", 0, 10, 11, ParamReadWrite)}},
			ErrInvalidDefinition,
		},
		{
			"accumulator without return",
			TypeDefinition{Name: "Acc", Signals: []*SignalSpec{
				NewSignal("x", SignalRunLast, nil, TypeNone).WithAccumulator(AccumulatorFirstWins),
			}},
			ErrInvalidDefinition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.reg.Register(tt.def)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.err), "got %v", err)
		})
	}

	t.Run("failed registration leaves no trace", func(t *testing.T) {
		_, ok := f.reg.Lookup("Twice")
		assert.False(t, ok)
		_, err := f.reg.Register(TypeDefinition{Name: "Twice"})
		assert.NoError(t, err)
	})
}

func TestRegistry_InterfacePrerequisites(t *testing.T) {
	reg := NewRegistry()

	base, err := reg.RegisterInterface(InterfaceDefinition{Name: "Base"})
	require.NoError(t, err)
	derived, err := reg.RegisterInterface(InterfaceDefinition{Name: "Derived", Prerequisites: []Type{base}})
	require.NoError(t, err)

	_, err = reg.Register(TypeDefinition{Name: "Partial", Interfaces: []Type{derived}})
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	full, err := reg.Register(TypeDefinition{Name: "Full", Interfaces: []Type{base, derived}})
	require.NoError(t, err)
	assert.True(t, reg.IsA(full, derived))
	assert.True(t, reg.IsA(full, base))
	assert.True(t, reg.IsA(derived, base))
	assert.ElementsMatch(t, []Type{base, derived}, reg.Interfaces(full))
}

func TestRegistry_Introspection(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "Widget", f.reg.Name(f.widget))
	assert.Equal(t, "Type(4242)", f.reg.Name(Type(4242)))
	assert.Equal(t, 1, f.reg.Depth(f.widget))
	assert.Equal(t, 2, f.reg.Depth(f.button))
	assert.Equal(t, -1, f.reg.Depth(Type(4242)))
	assert.Equal(t, []Type{f.button}, f.reg.Children(f.widget))
	assert.Contains(t, f.reg.Children(TypeObject), f.widget)
	assert.Contains(t, f.reg.Types(), f.label)

	_, err := f.reg.Class(Type(4242))
	assert.True(t, IsNotFound(err))

	c, err := f.reg.ClassByName("Button")
	require.NoError(t, err)
	assert.Equal(t, f.button, c.Type())
	assert.Equal(t, "Widget", c.Parent().Name())
}

func TestClass_FindProperty(t *testing.T) {
	f := newFixture(t)
	c, err := f.reg.Class(f.button)
	require.NoError(t, err)

	tests := []struct {
		name  string
		owner Type
	}{
		{"peer", f.button},
		{"label", f.widget},
		{"name", f.named},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := c.FindProperty(tt.name)
			require.NotNil(t, p)
			assert.Equal(t, tt.owner, p.Owner())
		})
	}

	assert.Nil(t, c.FindProperty("missing"))

	names := make([]string, 0)
	for _, p := range c.ListProperties() {
		names = append(names, p.Name())
	}
	assert.Contains(t, names, "peer")
	assert.Contains(t, names, "width")
	assert.Contains(t, names, "name")
}

func TestClass_Sealing(t *testing.T) {
	f := newFixture(t)
	c, err := f.reg.Class(f.button)
	require.NoError(t, err)
	parent := c.Parent()

	assert.False(t, c.IsSealed())
	require.NoError(t, c.InstallProperty(IntParam("late", 0, 5, 0, ParamReadWrite)))

	obj := f.newButton(t)
	defer obj.Unref()

	assert.True(t, c.IsSealed())
	assert.True(t, parent.IsSealed(), "ancestors are sealed with the class")

	named, err := f.reg.Class(f.named)
	require.NoError(t, err)
	assert.True(t, named.IsSealed(), "implemented interfaces are sealed too")

	err = c.InstallProperty(IntParam("later", 0, 5, 0, ParamReadWrite))
	assert.ErrorIs(t, err, ErrSealed)

	_, err = parent.AddSignal(NewSignal("late-signal", SignalRunLast, nil, TypeNone))
	assert.ErrorIs(t, err, ErrSealed)

	err = c.OverrideClassHandler("clicked", func(e *Emission, args []Value) Value { return Value{} })
	assert.ErrorIs(t, err, ErrSealed)

	// subclasses of a sealed class can still be registered
	_, err = f.reg.Register(TypeDefinition{
		Name:       "Toggle",
		Parent:     f.button,
		Properties: []*ParamSpec{BoolParam("active", false, ParamReadWrite)},
	})
	assert.NoError(t, err)
}

func TestClass_AddSignalShadowing(t *testing.T) {
	f := newFixture(t)
	c, err := f.reg.Class(f.button)
	require.NoError(t, err)

	// same name on a subclass is allowed and shadows the parent's signal
	id, err := c.AddSignal(NewSignal("clicked", SignalRunLast, []Type{TypeString}, TypeNone))
	require.NoError(t, err)

	spec := c.FindSignal("clicked")
	require.NotNil(t, spec)
	assert.Equal(t, id, spec.ID())
	assert.Equal(t, []Type{TypeString}, spec.ParamTypes())

	_, err = c.AddSignal(NewSignal("clicked", SignalRunLast, nil, TypeNone))
	assert.ErrorIs(t, err, ErrDuplicateSignal)
}

func TestRegistry_ClassInit(t *testing.T) {
	reg := NewRegistry()

	typ, err := reg.Register(TypeDefinition{
		Name: "Configured",
		ClassInit: func(c *Class) error {
			if err := c.InstallProperty(IntParam("level", 0, 3, 1, ParamReadWrite)); err != nil {
				return err
			}
			_, err := c.AddSignal(NewSignal("fired", SignalRunLast, nil, TypeNone))
			return err
		},
	})
	require.NoError(t, err)

	c, err := reg.Class(typ)
	require.NoError(t, err)
	assert.NotNil(t, c.FindProperty("level"))
	assert.NotNil(t, c.FindSignal("fired"))

	_, err = reg.Register(TypeDefinition{
		Name:      "Broken",
		ClassInit: func(c *Class) error { return errors.New("boom") },
	})
	assert.EqualError(t, err, "class init of 'Broken': boom")
	_, ok := reg.Lookup("Broken")
	assert.False(t, ok)
}

func TestRegistry_Observer(t *testing.T) {
	reg := NewRegistry()

	var events []EventType
	id := reg.Subscribe(ObserverFunc(func(e Event) {
		events = append(events, e.Type)
	}))

	typ, err := reg.Register(TypeDefinition{Name: "Observed"})
	require.NoError(t, err)
	obj, err := reg.New(typ)
	require.NoError(t, err)
	obj.Unref()

	assert.Equal(t, []EventType{EventTypeRegistered, EventCreated, EventFinalized}, events)

	reg.Unsubscribe(id)
	obj, err = reg.New(typ)
	require.NoError(t, err)
	obj.Unref()
	assert.Len(t, events, 3)
}

func TestDefaultRegistry(t *testing.T) {
	assert.Same(t, Default(), Default())
	_, ok := Default().Lookup("Object")
	assert.True(t, ok)
}
