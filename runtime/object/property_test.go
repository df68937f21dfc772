package object

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProperty_Defaults(t *testing.T) {
	f := newFixture(t)
	obj := f.newWidget(t)
	defer obj.Unref()

	tests := []struct {
		name string
		want Value
	}{
		{"label", StringValue("")},
		{"width", IntValue(10)},
		{"id", StringValue("none")},
		{"opacity", DoubleValue(1)},
		{"visible", BoolValue(true)},
		{"align", StringValue("start")},
		{"name", StringValue("")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := obj.Property(tt.name)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(v), "got %s", v)
		})
	}
}

func TestSetProperty(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		prop    string
		value   Value
		err     error
		want    Value
		wantErr bool
	}{
		{name: "string", prop: "label", value: StringValue("ok"), want: StringValue("ok")},
		{name: "int in range", prop: "width", value: IntValue(50), want: IntValue(50)},
		{name: "interface property", prop: "name", value: StringValue("main"), want: StringValue("main")},
		{name: "enum member", prop: "align", value: StringValue("end"), want: StringValue("end")},
		{name: "lax clamps", prop: "opacity", value: DoubleValue(3), want: DoubleValue(1)},
		{name: "unknown", prop: "nope", value: IntValue(1), err: ErrNotFound, wantErr: true},
		{name: "read only", prop: "count", value: IntValue(1), err: ErrNotWritable, wantErr: true},
		{name: "construct only", prop: "id", value: StringValue("x"), err: ErrNotWritable, wantErr: true},
		{name: "wrong type", prop: "width", value: StringValue("10"), err: ErrTypeMismatch, wantErr: true},
		{name: "int for double", prop: "opacity", value: IntValue(1), err: ErrTypeMismatch, wantErr: true},
		{name: "out of range", prop: "width", value: IntValue(101), err: ErrValidationFailed, wantErr: true},
		{name: "too long", prop: "label", value: StringValue("far too long"), err: ErrValidationFailed, wantErr: true},
		{name: "enum outsider", prop: "align", value: StringValue("middle"), err: ErrValidationFailed, wantErr: true},
		{name: "uninitialized", prop: "label", value: Value{}, err: ErrTypeMismatch, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := f.newWidget(t)
			defer obj.Unref()

			before, _ := obj.Property(tt.prop)
			err := obj.SetProperty(tt.prop, tt.value)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.err)

				var perr *PropertyError
				require.True(t, errors.As(err, &perr))
				assert.Equal(t, tt.prop, perr.Property)
				assert.Equal(t, "Widget", perr.Type)
				assert.Equal(t, "set", perr.Op)

				after, _ := obj.Property(tt.prop)
				assert.True(t, before.Equal(after), "failed set must not change the value")
				return
			}
			require.NoError(t, err)
			got, err := obj.Property(tt.prop)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestProperty_NotReadable(t *testing.T) {
	f := newFixture(t)
	obj := f.newWidget(t)
	defer obj.Unref()

	require.NoError(t, obj.Set("secret", "s3cr3t"))
	_, err := obj.Property("secret")
	assert.ErrorIs(t, err, ErrNotReadable)

	_, err = obj.Get("missing")
	assert.ErrorIs(t, err, ErrUnknownProperty)
}

func TestProperty_ConstructOnly(t *testing.T) {
	f := newFixture(t)

	obj := f.newWidget(t, Prop("id", "w-1"), Prop("width", 20))
	defer obj.Unref()

	v, err := obj.Get("id")
	require.NoError(t, err)
	assert.Equal(t, "w-1", v)

	assert.ErrorIs(t, obj.Set("id", "w-2"), ErrNotWritable)
	v, _ = obj.Get("width")
	assert.Equal(t, int64(20), v)
}

func TestProperty_ObjectCovariance(t *testing.T) {
	f := newFixture(t)
	btn := f.newButton(t)
	defer btn.Unref()
	other := f.newButton(t)
	defer other.Unref()
	widget := f.newWidget(t)
	defer widget.Unref()
	label, err := f.reg.New(f.label)
	require.NoError(t, err)
	defer label.Unref()

	t.Run("subtype accepted", func(t *testing.T) {
		require.NoError(t, btn.Set("peer", other))
		v, err := btn.Property("peer")
		require.NoError(t, err)
		assert.Equal(t, f.widget, v.Type(), "value is retagged to the declared type")
		got, ok := v.AsObject()
		assert.True(t, ok)
		assert.Same(t, other, got)
		assert.True(t, v.Equal(ObjectValue(other)), "read back value equals the value set")
		assert.False(t, v.Equal(ObjectValue(widget)))
	})

	t.Run("exact type accepted", func(t *testing.T) {
		assert.NoError(t, btn.Set("peer", widget))
	})

	t.Run("unrelated type rejected", func(t *testing.T) {
		err := btn.Set("peer", label)
		assert.ErrorIs(t, err, ErrTypeMismatch)
		assert.ErrorContains(t, err, "expected Widget, got Label")
	})

	t.Run("nil object accepted", func(t *testing.T) {
		require.NoError(t, btn.SetProperty("peer", ObjectValue(nil)))
		v, err := btn.Get("peer")
		require.NoError(t, err)
		assert.Nil(t, v)
		pv, err := btn.Property("peer")
		require.NoError(t, err)
		assert.True(t, pv.Equal(ObjectValue(nil)))
		assert.False(t, pv.Equal(IntValue(0)))

		require.NoError(t, btn.SetProperty("peer", Value{}))
	})

	t.Run("nil object rejected for scalars", func(t *testing.T) {
		assert.ErrorIs(t, btn.SetProperty("width", ObjectValue(nil)), ErrTypeMismatch)
	})
}

func TestSetProperties_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	obj := f.newWidget(t)
	defer obj.Unref()

	var notified []string
	_, err := obj.ConnectNotify("", func(o *Object, p *ParamSpec) {
		notified = append(notified, p.Name())
	})
	require.NoError(t, err)

	err = obj.SetProperties(Prop("label", "a"), Prop("width", 999))
	assert.ErrorIs(t, err, ErrValidationFailed)
	v, _ := obj.Get("label")
	assert.Equal(t, "", v, "no property is applied when one fails")
	assert.Empty(t, notified)

	require.NoError(t, obj.SetProperties(Prop("label", "a"), Prop("width", 5), Prop("label", "b")))
	v, _ = obj.Get("label")
	assert.Equal(t, "b", v)
	assert.Equal(t, []string{"label", "width"}, notified, "one notification per property")
}

func TestNotify(t *testing.T) {
	f := newFixture(t)
	obj := f.newWidget(t)
	defer obj.Unref()

	var label, all []string
	_, err := obj.ConnectNotify("label", func(o *Object, p *ParamSpec) {
		assert.Same(t, obj, o)
		label = append(label, p.Name())
	})
	require.NoError(t, err)
	_, err = obj.Connect("notify", false, func(args []Value) Value {
		p, _ := args[1].AsParamSpec()
		all = append(all, p.Name())
		return Value{}
	})
	require.NoError(t, err)

	require.NoError(t, obj.Set("label", "x"))
	require.NoError(t, obj.Set("width", 3))
	require.NoError(t, obj.Notify("label"))

	assert.Equal(t, []string{"label", "label"}, label)
	assert.Equal(t, []string{"label", "width", "label"}, all)

	assert.ErrorIs(t, obj.Notify("missing"), ErrNotFound)
	_, err = obj.ConnectNotify("missing", func(*Object, *ParamSpec) {})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNotify_ExplicitNotify(t *testing.T) {
	f := newFixture(t)
	obj := f.newWidget(t)
	defer obj.Unref()

	count := 0
	_, err := obj.ConnectNotify("visible", func(*Object, *ParamSpec) { count++ })
	require.NoError(t, err)

	require.NoError(t, obj.Set("visible", true))
	assert.Equal(t, 0, count, "unchanged value is not notified")
	require.NoError(t, obj.Set("visible", false))
	assert.Equal(t, 1, count)
}

func TestNotify_NotDuringConstruction(t *testing.T) {
	f := newFixture(t)

	var events []EventType
	f.reg.Subscribe(ObserverFunc(func(e Event) {
		if e.Type == EventPropertyChanged || e.Type == EventEmitted {
			events = append(events, e.Type)
		}
	}))

	obj := f.newWidget(t, Prop("label", "a"))
	defer obj.Unref()
	assert.Empty(t, events)

	require.NoError(t, obj.Set("label", "b"))
	assert.Equal(t, []EventType{EventPropertyChanged, EventEmitted}, events)
}

func TestHasProperty(t *testing.T) {
	f := newFixture(t)
	btn := f.newButton(t)
	defer btn.Unref()

	assert.True(t, btn.HasProperty("label", TypeString))
	assert.True(t, btn.HasProperty("label", TypeInvalid))
	assert.False(t, btn.HasProperty("label", TypeInt))
	assert.True(t, btn.HasProperty("peer", TypeObject))
	assert.False(t, btn.HasProperty("missing", TypeInvalid))

	typ, ok := btn.PropertyType("width")
	assert.True(t, ok)
	assert.Equal(t, TypeInt, typ)
	_, ok = btn.PropertyType("missing")
	assert.False(t, ok)
}

func TestParamSpec_Validators(t *testing.T) {
	tests := []struct {
		name    string
		pspec   *ParamSpec
		in      Value
		want    Value
		changed bool
	}{
		{"int below", IntParam("p", -5, 5, 0, ParamReadWrite), IntValue(-9), IntValue(-5), true},
		{"int inside", IntParam("p", -5, 5, 0, ParamReadWrite), IntValue(3), IntValue(3), false},
		{"uint above", UintParam("p", 1, 8, 1, ParamReadWrite), UintValue(9), UintValue(8), true},
		{"uint below", UintParam("p", 1, 8, 1, ParamReadWrite), UintValue(0), UintValue(1), true},
		{"double above", DoubleParam("p", 0, 1, 0, ParamReadWrite), DoubleValue(1.5), DoubleValue(1), true},
		{"max length", StringParam("p", "", ParamReadWrite).WithMaxLength(3), StringValue("héllo"), StringValue("hél"), true},
		{
			"pattern mismatch",
			StringParam("p", "a1", ParamReadWrite).WithPattern(regexp.MustCompile(`^[a-z][0-9]$`)),
			StringValue("zz"), StringValue("a1"), true,
		},
		{
			"pattern match",
			StringParam("p", "a1", ParamReadWrite).WithPattern(regexp.MustCompile(`^[a-z][0-9]$`)),
			StringValue("b2"), StringValue("b2"), false,
		},
		{"enum", EnumParam("p", []string{"x", "y"}, "x", ParamReadWrite), StringValue("z"), StringValue("x"), true},
		{"custom", BoolParam("p", false, ParamReadWrite).WithValidator(ValidatorFunc(func(v *Value) bool {
			*v = BoolValue(false)
			return true
		})), BoolValue(true), BoolValue(false), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := tt.pspec.Validate(tt.in)
			assert.Equal(t, tt.changed, changed)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestParamFlags_String(t *testing.T) {
	assert.Equal(t, "readable|writable", ParamReadWrite.String())
	assert.Equal(t, "none", ParamFlags(0).String())

	f, ok := ParseParamFlag("construct-only")
	assert.True(t, ok)
	assert.Equal(t, ParamConstructOnly, f)
	_, ok = ParseParamFlag("bogus")
	assert.False(t, ok)
}

func TestCustomPropertyStorage(t *testing.T) {
	reg := NewRegistry()

	type counter struct{ value int64 }
	typ, err := reg.Register(TypeDefinition{
		Name:            "Counter",
		Properties:      []*ParamSpec{IntParam("value", 0, 100, 0, ParamReadWrite)},
		InstancePrivate: func() any { return &counter{} },
		SetProperty: func(obj *Object, pspec *ParamSpec, v Value) {
			obj.Private().(*counter).value, _ = v.AsInt()
		},
		GetProperty: func(obj *Object, pspec *ParamSpec) Value {
			return IntValue(obj.Private().(*counter).value)
		},
	})
	require.NoError(t, err)

	obj, err := reg.New(typ, Prop("value", 42))
	require.NoError(t, err)
	defer obj.Unref()

	assert.Equal(t, int64(42), obj.Private().(*counter).value)
	require.NoError(t, obj.Set("value", 7))
	v, err := obj.Get("value")
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
}
