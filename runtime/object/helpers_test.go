package object

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	reg       *Registry
	named     Type
	widget    Type
	button    Type
	container Type
	label     Type
}

type widgetPrivate struct {
	initialized bool
	dropped     bool
}

func (p *widgetPrivate) Drop() { p.dropped = true }

// newFixture registers a small hierarchy:
//
//	Named (interface, property "name")
//	Object
//	├── Widget (Named)
//	│   └── Button
//	└── Container (abstract)
//	InitiallyUnowned
//	└── Label
func newFixture(t testing.TB) *fixture {
	t.Helper()
	reg := NewRegistry(WithLogger(zaptest.NewLogger(t)))
	f := &fixture{reg: reg}

	var err error
	f.named, err = reg.RegisterInterface(InterfaceDefinition{
		Name:       "Named",
		Properties: []*ParamSpec{StringParam("name", "", ParamReadWrite)},
	})
	require.NoError(t, err)

	f.widget, err = reg.Register(TypeDefinition{
		Name:       "Widget",
		Interfaces: []Type{f.named},
		Properties: []*ParamSpec{
			StringParam("label", "", ParamReadWrite).WithMaxLength(8),
			IntParam("width", 0, 100, 10, ParamReadWrite|ParamConstruct),
			StringParam("id", "none", ParamReadWrite|ParamConstructOnly),
			DoubleParam("opacity", 0, 1, 1, ParamReadWrite|ParamLaxValidation),
			StringParam("secret", "", ParamWritable),
			IntParam("count", 0, 10, 0, ParamReadable),
			BoolParam("visible", true, ParamReadWrite|ParamExplicitNotify),
			EnumParam("align", []string{"start", "center", "end"}, "start", ParamReadWrite),
		},
		Signals: []*SignalSpec{
			NewSignal("clicked", SignalRunLast, []Type{TypeInt}, TypeNone),
			NewSignal("query", SignalRunLast, []Type{TypeString}, TypeBool).WithAccumulator(AccumulatorTrueHandled),
			NewSignal("compute", SignalRunLast, nil, TypeInt),
			NewSignal("changed", SignalRunFirst|SignalDetailed, nil, TypeNone),
		},
		InstancePrivate: func() any { return &widgetPrivate{} },
		InstanceInit: func(obj *Object) {
			obj.Private().(*widgetPrivate).initialized = true
		},
	})
	require.NoError(t, err)

	f.button, err = reg.Register(TypeDefinition{
		Name:       "Button",
		Parent:     f.widget,
		Properties: []*ParamSpec{ObjectParam("peer", f.widget, ParamReadWrite)},
	})
	require.NoError(t, err)

	f.container, err = reg.Register(TypeDefinition{
		Name:  "Container",
		Flags: TypeFlagAbstract,
	})
	require.NoError(t, err)

	f.label, err = reg.Register(TypeDefinition{
		Name:       "Label",
		Parent:     TypeInitiallyUnowned,
		Properties: []*ParamSpec{StringParam("text", "", ParamReadWrite)},
	})
	require.NoError(t, err)

	return f
}

func (f *fixture) newWidget(t testing.TB, props ...Property) *Object {
	t.Helper()
	obj, err := f.reg.New(f.widget, props...)
	require.NoError(t, err)
	return obj
}

func (f *fixture) newButton(t *testing.T, props ...Property) *Object {
	t.Helper()
	obj, err := f.reg.New(f.button, props...)
	require.NoError(t, err)
	return obj
}
