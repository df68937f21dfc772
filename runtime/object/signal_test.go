package object

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordSignal(t *testing.T, reg *Registry, flags SignalFlags, ret Type, log *[]string) Type {
	t.Helper()
	typ, err := reg.Register(TypeDefinition{
		Name: "Emitter",
		Signals: []*SignalSpec{
			NewSignal("fire", flags, nil, ret).WithClassHandler(func(e *Emission, args []Value) Value {
				*log = append(*log, "class:"+e.Stage().String())
				if ret == TypeNone {
					return Value{}
				}
				return NewValue(ret)
			}),
		},
	})
	require.NoError(t, err)
	return typ
}

func TestEmit_Order(t *testing.T) {
	tests := []struct {
		name  string
		flags SignalFlags
		want  []string
	}{
		{"run first", SignalRunFirst, []string{"class:first", "h1", "h2", "a1"}},
		{"run last", SignalRunLast, []string{"h1", "h2", "class:last", "a1"}},
		{"run cleanup", SignalRunCleanup, []string{"h1", "h2", "a1", "class:cleanup"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var log []string
			reg := NewRegistry()
			typ := recordSignal(t, reg, tt.flags, TypeNone, &log)
			obj, err := reg.New(typ)
			require.NoError(t, err)
			defer obj.Unref()

			handler := func(name string) Handler {
				return func(args []Value) Value {
					got, _ := args[0].AsObject()
					assert.Same(t, obj, got)
					log = append(log, name)
					return Value{}
				}
			}
			_, err = obj.Connect("fire", true, handler("a1"))
			require.NoError(t, err)
			_, err = obj.Connect("fire", false, handler("h1"))
			require.NoError(t, err)
			_, err = obj.Connect("fire", false, handler("h2"))
			require.NoError(t, err)

			ret, err := obj.Emit("fire")
			require.NoError(t, err)
			assert.False(t, ret.IsValid(), "unit signals return the zero value")
			assert.Equal(t, tt.want, log)
		})
	}
}

func TestEmit_ArgumentChecks(t *testing.T) {
	f := newFixture(t)
	obj := f.newWidget(t)
	defer obj.Unref()

	var got []int64
	_, err := obj.Connect("clicked", false, func(args []Value) Value {
		n, _ := args[1].AsInt()
		got = append(got, n)
		return Value{}
	})
	require.NoError(t, err)

	_, err = obj.Emit("clicked", 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, got)

	tests := []struct {
		name  string
		args  []any
		err   error
		index int
	}{
		{"too few", nil, ErrArityMismatch, -1},
		{"too many", []any{1, 2}, ErrArityMismatch, -1},
		{"wrong type", []any{"three"}, ErrArgTypeMismatch, 0},
		{"uint for int", []any{uint(3)}, ErrArgTypeMismatch, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := obj.Emit("clicked", tt.args...)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.True(t, IsTypeMismatch(err) == (tt.err == ErrArgTypeMismatch))

			var serr *SignalError
			require.True(t, errors.As(err, &serr))
			assert.Equal(t, tt.index, serr.Index)
		})
	}
	assert.Len(t, got, 1, "rejected emissions invoke nothing")

	_, err = obj.Emit("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEmit_ObjectArguments(t *testing.T) {
	f := newFixture(t)
	c, err := f.reg.Class(f.button)
	require.NoError(t, err)
	_, err = c.AddSignal(NewSignal("attach", SignalRunLast, []Type{f.widget}, TypeNone))
	require.NoError(t, err)

	btn := f.newButton(t)
	defer btn.Unref()
	other := f.newButton(t)
	defer other.Unref()
	label, err := f.reg.New(f.label)
	require.NoError(t, err)
	defer label.Unref()

	var seen []*Object
	_, err = btn.Connect("attach", false, func(args []Value) Value {
		o, _ := args[1].AsObject()
		seen = append(seen, o)
		assert.Equal(t, f.widget, args[1].Type())
		return Value{}
	})
	require.NoError(t, err)

	_, err = btn.Emit("attach", other)
	assert.NoError(t, err)
	_, err = btn.Emit("attach", nil)
	assert.NoError(t, err, "nil is accepted for object parameters")
	_, err = btn.Emit("attach", label)
	assert.ErrorIs(t, err, ErrArgTypeMismatch)

	assert.Equal(t, []*Object{other, nil}, seen)
}

func TestEmit_ReturnValues(t *testing.T) {
	f := newFixture(t)

	t.Run("no handlers yields zero value", func(t *testing.T) {
		obj := f.newWidget(t)
		defer obj.Unref()
		ret, err := obj.Emit("compute")
		require.NoError(t, err)
		assert.Equal(t, IntValue(0), ret)
	})

	t.Run("last handler wins", func(t *testing.T) {
		obj := f.newWidget(t)
		defer obj.Unref()
		for _, n := range []int64{1, 2, 3} {
			n := n
			_, err := obj.Connect("compute", false, func([]Value) Value { return IntValue(n) })
			require.NoError(t, err)
		}
		ret, err := obj.Emit("compute")
		require.NoError(t, err)
		assert.Equal(t, IntValue(3), ret)
	})

	t.Run("true handled stops", func(t *testing.T) {
		obj := f.newWidget(t)
		defer obj.Unref()
		var calls []string
		for _, h := range []struct {
			name string
			ret  bool
		}{{"a", false}, {"b", true}, {"c", false}} {
			h := h
			_, err := obj.Connect("query", false, func(args []Value) Value {
				s, _ := args[1].AsString()
				assert.Equal(t, "q", s)
				calls = append(calls, h.name)
				return BoolValue(h.ret)
			})
			require.NoError(t, err)
		}
		ret, err := obj.Emit("query", "q")
		require.NoError(t, err)
		assert.Equal(t, BoolValue(true), ret)
		assert.Equal(t, []string{"a", "b"}, calls)
	})

	t.Run("sum accumulator", func(t *testing.T) {
		reg := NewRegistry()
		typ, err := reg.Register(TypeDefinition{
			Name: "Summer",
			Signals: []*SignalSpec{
				NewSignal("total", SignalRunLast, nil, TypeInt).WithAccumulator(AccumulatorSum),
			},
		})
		require.NoError(t, err)
		obj, err := reg.New(typ)
		require.NoError(t, err)
		defer obj.Unref()

		for _, n := range []int64{4, 5, 6} {
			n := n
			_, err := obj.Connect("total", false, func([]Value) Value { return IntValue(n) })
			require.NoError(t, err)
		}
		ret, err := obj.Emit("total")
		require.NoError(t, err)
		assert.Equal(t, IntValue(15), ret)
	})

	t.Run("first wins", func(t *testing.T) {
		reg := NewRegistry()
		typ, err := reg.Register(TypeDefinition{
			Name: "First",
			Signals: []*SignalSpec{
				NewSignal("pick", SignalRunLast, nil, TypeString).WithAccumulator(AccumulatorFirstWins),
			},
		})
		require.NoError(t, err)
		obj, err := reg.New(typ)
		require.NoError(t, err)
		defer obj.Unref()

		_, err = obj.Connect("pick", false, func([]Value) Value { return StringValue("one") })
		require.NoError(t, err)
		_, err = obj.Connect("pick", false, func([]Value) Value {
			t.Fatal("second handler must not run")
			return Value{}
		})
		require.NoError(t, err)
		ret, err := obj.Emit("pick")
		require.NoError(t, err)
		assert.Equal(t, StringValue("one"), ret)
	})
}

func TestEmit_ContractViolation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		signal  string
		args    []any
		handler Handler
	}{
		{"value from unit signal", "clicked", []any{1}, func([]Value) Value { return IntValue(1) }},
		{"nothing from valued signal", "compute", nil, func([]Value) Value { return Value{} }},
		{"wrong type from valued signal", "compute", nil, func([]Value) Value { return StringValue("x") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := f.newWidget(t)
			defer obj.Unref()
			_, err := obj.Connect(tt.signal, false, tt.handler)
			require.NoError(t, err)

			defer func() {
				r := recover()
				require.NotNil(t, r)
				cv, ok := r.(*ContractViolation)
				require.True(t, ok, "panic value %v", r)
				assert.Equal(t, tt.signal, cv.Signal)
				assert.Equal(t, int32(1), obj.RefCount(), "emission reference is released on panic")
			}()
			_, _ = obj.Emit(tt.signal, tt.args...)
		})
	}
}

func TestHandler_StateMachine(t *testing.T) {
	f := newFixture(t)
	obj := f.newWidget(t)
	defer obj.Unref()

	calls := 0
	id, err := obj.Connect("clicked", false, func([]Value) Value {
		calls++
		return Value{}
	})
	require.NoError(t, err)

	emit := func() {
		_, err := obj.Emit("clicked", 1)
		require.NoError(t, err)
	}

	emit()
	assert.Equal(t, 1, calls)

	require.NoError(t, obj.BlockHandler(id))
	require.NoError(t, obj.BlockHandler(id), "blocking twice is a no-op")
	state, err := obj.HandlerState(id)
	require.NoError(t, err)
	assert.Equal(t, HandlerBlocked, state)
	assert.False(t, obj.HasHandlerPending("clicked"))
	emit()
	assert.Equal(t, 1, calls)

	require.NoError(t, obj.UnblockHandler(id))
	require.NoError(t, obj.UnblockHandler(id), "unblocking twice is a no-op")
	assert.True(t, obj.HasHandlerPending("clicked"))
	emit()
	assert.Equal(t, 2, calls)

	require.NoError(t, obj.Disconnect(id))
	emit()
	assert.Equal(t, 2, calls)

	for name, op := range map[string]func(HandlerID) error{
		"disconnect": obj.Disconnect,
		"block":      obj.BlockHandler,
		"unblock":    obj.UnblockHandler,
	} {
		err := op(id)
		assert.ErrorIs(t, err, ErrAlreadyDisconnected, name)
	}
	state, err = obj.HandlerState(id)
	require.NoError(t, err)
	assert.Equal(t, HandlerDisconnected, state)

	assert.ErrorIs(t, obj.Disconnect(HandlerID(999999)), ErrNotFound)
	assert.ErrorIs(t, obj.BlockHandler(HandlerID(999999)), ErrNotFound)

	other := f.newWidget(t)
	defer other.Unref()
	assert.ErrorIs(t, other.Disconnect(id), ErrNotFound, "ids belong to one instance")
}

func TestHandler_DisconnectDuringEmission(t *testing.T) {
	f := newFixture(t)
	obj := f.newWidget(t)
	defer obj.Unref()

	var second HandlerID
	var calls []string
	_, err := obj.Connect("clicked", false, func([]Value) Value {
		calls = append(calls, "first")
		require.NoError(t, obj.Disconnect(second))
		return Value{}
	})
	require.NoError(t, err)
	second, err = obj.Connect("clicked", false, func([]Value) Value {
		calls = append(calls, "second")
		return Value{}
	})
	require.NoError(t, err)

	_, err = obj.Emit("clicked", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, calls)
}

func TestConnect_Detail(t *testing.T) {
	f := newFixture(t)
	obj := f.newWidget(t)
	defer obj.Unref()

	var calls []string
	connect := func(name string) {
		_, err := obj.Connect(name, false, func([]Value) Value {
			calls = append(calls, name)
			return Value{}
		})
		require.NoError(t, err)
	}
	connect("changed")
	connect("changed::size")
	connect("changed::color")

	_, err := obj.Emit("changed::size")
	require.NoError(t, err)
	assert.Equal(t, []string{"changed", "changed::size"}, calls)

	calls = nil
	_, err = obj.Emit("changed")
	require.NoError(t, err)
	assert.Equal(t, []string{"changed"}, calls, "detailed handlers need a matching detail")

	tests := []string{"clicked::x", "changed::", "::size", "missing::x"}
	for _, name := range tests {
		_, err := obj.Connect(name, false, func([]Value) Value { return Value{} })
		assert.ErrorIs(t, err, ErrNotFound, name)
	}
}

func TestStopEmission(t *testing.T) {
	f := newFixture(t)
	obj := f.newWidget(t)
	defer obj.Unref()

	var calls []string
	_, err := obj.Connect("clicked", false, func([]Value) Value {
		calls = append(calls, "first")
		require.NoError(t, obj.StopEmission("clicked"))
		return Value{}
	})
	require.NoError(t, err)
	_, err = obj.Connect("clicked", true, func([]Value) Value {
		calls = append(calls, "after")
		return Value{}
	})
	require.NoError(t, err)

	_, err = obj.Emit("clicked", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, calls)

	err = obj.StopEmission("clicked")
	assert.ErrorIs(t, err, ErrNoEmission)
	err = obj.StopEmission("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStopEmission_CleanupStillRuns(t *testing.T) {
	var log []string
	reg := NewRegistry()
	typ := recordSignal(t, reg, SignalRunCleanup, TypeNone, &log)
	obj, err := reg.New(typ)
	require.NoError(t, err)
	defer obj.Unref()

	_, err = obj.Connect("fire", false, func([]Value) Value {
		log = append(log, "stopper")
		require.NoError(t, obj.StopEmission("fire"))
		return Value{}
	})
	require.NoError(t, err)
	_, err = obj.Connect("fire", false, func([]Value) Value {
		log = append(log, "skipped")
		return Value{}
	})
	require.NoError(t, err)

	_, err = obj.Emit("fire")
	require.NoError(t, err)
	assert.Equal(t, []string{"stopper", "class:cleanup"}, log)
}

func TestDisconnect_ForgetsHandlers(t *testing.T) {
	f := newFixture(t)
	obj := f.newWidget(t)
	defer obj.Unref()

	var ids []HandlerID
	for i := 0; i < 3*disconnectedHistory; i++ {
		id, err := obj.Connect("clicked", false, func([]Value) Value { return Value{} })
		require.NoError(t, err)
		require.NoError(t, obj.Disconnect(id))
		ids = append(ids, id)
	}

	obj.sigMu.Lock()
	assert.Empty(t, obj.byID)
	assert.Empty(t, obj.handlers)
	assert.Len(t, obj.disconnected, disconnectedHistory)
	obj.sigMu.Unlock()

	recent := ids[len(ids)-1]
	assert.ErrorIs(t, obj.Disconnect(recent), ErrAlreadyDisconnected)
	assert.ErrorIs(t, obj.BlockHandler(recent), ErrAlreadyDisconnected)
	state, err := obj.HandlerState(recent)
	require.NoError(t, err)
	assert.Equal(t, HandlerDisconnected, state)

	assert.ErrorIs(t, obj.Disconnect(ids[0]), ErrNotFound, "old ids are forgotten")
}

func TestOverrideClassHandler(t *testing.T) {
	reg := NewRegistry()
	var log []string

	base, err := reg.Register(TypeDefinition{
		Name: "Base",
		Signals: []*SignalSpec{
			NewSignal("describe", SignalRunLast, nil, TypeString).WithClassHandler(func(e *Emission, args []Value) Value {
				log = append(log, "base")
				return StringValue("base")
			}),
		},
	})
	require.NoError(t, err)

	derived, err := reg.Register(TypeDefinition{
		Name:   "Derived",
		Parent: base,
		ClassInit: func(c *Class) error {
			return c.OverrideClassHandler("describe", func(e *Emission, args []Value) Value {
				log = append(log, "derived")
				parent, _ := e.ChainFromOverridden(args).AsString()
				return StringValue("derived+" + parent)
			})
		},
	})
	require.NoError(t, err)

	leaf, err := reg.Register(TypeDefinition{
		Name:   "Leaf",
		Parent: derived,
		ClassInit: func(c *Class) error {
			return c.OverrideClassHandler("describe", func(e *Emission, args []Value) Value {
				log = append(log, "leaf")
				parent, _ := e.ChainFromOverridden(args).AsString()
				return StringValue("leaf+" + parent)
			})
		},
	})
	require.NoError(t, err)

	tests := []struct {
		typ  Type
		want string
		log  []string
	}{
		{base, "base", []string{"base"}},
		{derived, "derived+base", []string{"derived", "base"}},
		{leaf, "leaf+derived+base", []string{"leaf", "derived", "base"}},
	}
	for _, tt := range tests {
		t.Run(reg.Name(tt.typ), func(t *testing.T) {
			log = nil
			obj, err := reg.New(tt.typ)
			require.NoError(t, err)
			defer obj.Unref()

			ret, err := obj.Emit("describe")
			require.NoError(t, err)
			assert.Equal(t, StringValue(tt.want), ret)
			assert.Equal(t, tt.log, log)
		})
	}

	c, err := reg.Class(leaf)
	require.NoError(t, err)
	assert.ErrorIs(t, c.OverrideClassHandler("missing", func(*Emission, []Value) Value { return Value{} }), ErrNotFound)
}

func TestOverrideClassHandler_StagelessSignal(t *testing.T) {
	reg := NewRegistry()
	var log []string

	base, err := reg.Register(TypeDefinition{
		Name:    "Pinger",
		Signals: []*SignalSpec{NewSignal("ping", 0, nil, TypeNone)},
	})
	require.NoError(t, err)
	derived, err := reg.Register(TypeDefinition{
		Name:   "LoudPinger",
		Parent: base,
		ClassInit: func(c *Class) error {
			return c.OverrideClassHandler("ping", func(e *Emission, args []Value) Value {
				log = append(log, "override")
				return Value{}
			})
		},
	})
	require.NoError(t, err)

	tests := []struct {
		typ Type
		log []string
	}{
		{base, []string{"before", "after"}},
		{derived, []string{"before", "override", "after"}},
	}
	for _, tt := range tests {
		t.Run(reg.Name(tt.typ), func(t *testing.T) {
			log = nil
			obj, err := reg.New(tt.typ)
			require.NoError(t, err)
			defer obj.Unref()

			_, err = obj.Connect("ping", false, func([]Value) Value {
				log = append(log, "before")
				return Value{}
			})
			require.NoError(t, err)
			_, err = obj.Connect("ping", true, func([]Value) Value {
				log = append(log, "after")
				return Value{}
			})
			require.NoError(t, err)

			_, err = obj.Emit("ping")
			require.NoError(t, err)
			assert.Equal(t, tt.log, log)
		})
	}
}

func TestEmit_NoRecurseRestarts(t *testing.T) {
	reg := NewRegistry()
	typ, err := reg.Register(TypeDefinition{
		Name: "Restarter",
		Signals: []*SignalSpec{
			NewSignal("tick", SignalRunLast|SignalNoRecurse, nil, TypeNone),
		},
	})
	require.NoError(t, err)
	obj, err := reg.New(typ)
	require.NoError(t, err)
	defer obj.Unref()

	var calls []string
	reemitted := false
	_, err = obj.Connect("tick", false, func([]Value) Value {
		calls = append(calls, "first")
		if !reemitted {
			reemitted = true
			_, err := obj.Emit("tick")
			require.NoError(t, err)
			calls = append(calls, "nested returned")
		}
		return Value{}
	})
	require.NoError(t, err)
	_, err = obj.Connect("tick", false, func([]Value) Value {
		calls = append(calls, "second")
		return Value{}
	})
	require.NoError(t, err)

	_, err = obj.Emit("tick")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "nested returned", "first", "second"}, calls)
}

func TestEmit_HandlerDropsLastReference(t *testing.T) {
	f := newFixture(t)
	obj := f.newWidget(t)

	_, err := obj.Connect("clicked", false, func([]Value) Value {
		obj.Unref()
		assert.False(t, obj.IsFinalized(), "emission holds its own reference")
		return Value{}
	})
	require.NoError(t, err)

	_, err = obj.Emit("clicked", 1)
	require.NoError(t, err)
	assert.True(t, obj.IsFinalized())
}

func TestSignalFlags_String(t *testing.T) {
	assert.Equal(t, "run-first|no-recurse|detailed|action|no-hooks",
		(SignalRunFirst | SignalNoRecurse | SignalDetailed | SignalAction | SignalNoHooks).String())

	flag, ok := ParseSignalFlag("run-cleanup")
	assert.True(t, ok)
	assert.Equal(t, SignalRunCleanup, flag)
}
