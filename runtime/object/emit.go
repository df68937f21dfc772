package object

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// Emission is the state of one signal emission. Class handlers receive it
// to chain up or stop the emission.
type Emission struct {
	instance *Object
	signal   *SignalSpec
	detail   string
	stage    Stage
	stopped  atomic.Bool
	restart  atomic.Bool
	chain    []ClassHandler
	chainPos int
}

// Instance returns the emitting instance
func (e *Emission) Instance() *Object { return e.instance }

// Signal returns the signal being emitted
func (e *Emission) Signal() *SignalSpec { return e.signal }

// Detail returns the emission detail, empty when none was given
func (e *Emission) Detail() string { return e.detail }

// Stage returns the stage of the handler currently running
func (e *Emission) Stage() Stage { return e.stage }

// Stop prevents any further handler of this emission from running, except
// a RUN_CLEANUP class handler.
func (e *Emission) Stop() {
	e.stopped.Store(true)
}

// ChainFromOverridden calls the class handler this one overrides, or
// returns the zero Value at the end of the chain.
func (e *Emission) ChainFromOverridden(args []Value) Value {
	next := e.chainPos + 1
	if next >= len(e.chain) {
		return Value{}
	}
	prev := e.chainPos
	e.chainPos = next
	defer func() { e.chainPos = prev }()
	return e.chain[next](e, args)
}

func (e *Emission) invokeClass(args []Value) Value {
	e.chainPos = 0
	return e.chain[0](e, args)
}

// Emit emits "name" or "name::detail" with Go arguments converted by
// ValueOf. A nil argument stands for a nil object.
func (o *Object) Emit(name string, args ...any) (Value, error) {
	vals := make([]Value, len(args))
	for i, a := range args {
		vals[i] = ValueOf(a)
	}
	return o.EmitValues(name, vals)
}

// EmitValues checks the arguments against the signal's parameter types and
// runs the emission. Signals without a return type yield the zero Value.
//
// A handler returning a value for a signal without return type, or nothing
// for a signal with one, panics with a *ContractViolation.
func (o *Object) EmitValues(name string, args []Value) (Value, error) {
	spec, detail, err := o.resolveSignal(name)
	if err != nil {
		return Value{}, err
	}
	if len(args) != len(spec.params) {
		return Value{}, &SignalError{Type: o.class.name, Signal: name, Index: -1, Err: ErrArityMismatch,
			Detail: fmt.Sprintf("expected %d arguments, got %d", len(spec.params), len(args))}
	}

	r := o.class.registry
	full := make([]Value, len(args)+1)
	full[0] = ObjectValue(o)
	for i, a := range args {
		want := spec.params[i]
		if !a.IsValid() && r.isObjectType(want) {
			a = ObjectValueAs(want, nil)
		}
		got := a.typ
		if obj, ok := a.data.(*Object); ok && obj != nil {
			got = obj.class.typ
		}
		if !r.CheckValue(&a, want) {
			return Value{}, &SignalError{Type: o.class.name, Signal: name, Index: i, Err: ErrArgTypeMismatch,
				Detail: fmt.Sprintf("expected %s, got %s", r.Name(want), r.Name(got))}
		}
		full[i+1] = a
	}
	return o.emit(spec, detail, full), nil
}

func (o *Object) emit(spec *SignalSpec, detail string, args []Value) Value {
	if spec.flags.Has(SignalNoRecurse) {
		if active := o.findEmission(spec, detail, true); active != nil {
			active.restart.Store(true)
			if spec.ret == TypeNone {
				return Value{}
			}
			return NewValue(spec.ret)
		}
	}

	// handlers may drop the caller's reference; a finalizing instance is
	// emitted on without one
	if o.tryRef() {
		defer o.Unref()
	}

	e := &Emission{
		instance: o,
		signal:   spec,
		detail:   detail,
		chain:    o.class.classHandlers(spec),
	}
	o.pushEmission(e)
	defer o.popEmission(e)

	var result Value
	for {
		result = e.run(args)
		if !e.restart.Swap(false) {
			break
		}
		e.stopped.Store(false)
	}

	r := o.class.registry
	r.emitEvent(Event{
		Type:     EventEmitted,
		TypeID:   o.class.typ,
		TypeName: o.class.name,
		ObjectID: o.id,
		Object:   o,
		Signal:   spec.name,
		Detail:   detail,
	})
	return result
}

func (e *Emission) run(args []Value) Value {
	spec := e.signal
	handlers := e.instance.snapshotHandlers()
	stages := spec.flags & signalStages
	if stages == 0 && len(e.chain) > 0 {
		// an override on a signal declared without a stage runs last
		stages = SignalRunLast
	}

	var acc Value
	running := true
	call := func(stage Stage, fn func() Value) {
		e.stage = stage
		ret := fn()
		e.checkReturn(ret)
		if spec.ret != TypeNone {
			if spec.accumulator != nil {
				hint := &InvocationHint{Signal: spec, Detail: e.detail, Stage: stage}
				if !spec.accumulator(hint, &acc, ret) {
					running = false
				}
			} else {
				acc = ret
			}
		}
		if e.stopped.Load() || e.restart.Load() {
			running = false
		}
	}
	callHandlers := func(stage Stage, after bool) {
		for _, h := range handlers {
			if !running {
				return
			}
			if h.after != after || !h.matches(spec, e.detail) {
				continue
			}
			// state is checked at invocation time so a handler blocked or
			// disconnected by an earlier one is skipped
			if HandlerState(h.state.Load()) != HandlerConnected {
				continue
			}
			call(stage, func() Value { return h.fn(args) })
		}
	}

	if running && stages.Has(SignalRunFirst) && len(e.chain) > 0 {
		call(StageFirst, func() Value { return e.invokeClass(args) })
	}
	callHandlers(StageFirst, false)
	if running && stages.Has(SignalRunLast) && len(e.chain) > 0 {
		call(StageLast, func() Value { return e.invokeClass(args) })
	}
	callHandlers(StageLast, true)
	if stages.Has(SignalRunCleanup) && len(e.chain) > 0 && !e.restart.Load() {
		e.stage = StageCleanup
		e.invokeClass(args)
	}

	if spec.ret == TypeNone {
		return Value{}
	}
	if !acc.IsValid() {
		return NewValue(spec.ret)
	}
	r := e.instance.class.registry
	if !r.CheckValue(&acc, spec.ret) {
		e.violate("emission produced %s, signal returns %s", r.Name(acc.typ), r.Name(spec.ret))
	}
	return acc
}

func (e *Emission) checkReturn(ret Value) {
	switch {
	case e.signal.ret == TypeNone && ret.IsValid():
		e.violate("handler returned %s for a signal without return value", ret)
	case e.signal.ret != TypeNone && !ret.IsValid():
		e.violate("handler returned no value, signal returns %s", e.instance.class.registry.Name(e.signal.ret))
	}
}

func (e *Emission) violate(format string, args ...any) {
	cv := &ContractViolation{
		Type:   e.instance.class.name,
		Signal: e.signal.name,
		Detail: fmt.Sprintf(format, args...),
	}
	e.instance.class.registry.logger.Error("signal contract violation",
		zap.String("type", cv.Type),
		zap.String("signal", cv.Signal),
		zap.String("detail", cv.Detail))
	panic(cv)
}

func (o *Object) pushEmission(e *Emission) {
	o.sigMu.Lock()
	o.emissions = append(o.emissions, e)
	o.sigMu.Unlock()
}

func (o *Object) popEmission(e *Emission) {
	o.sigMu.Lock()
	defer o.sigMu.Unlock()
	for i := len(o.emissions) - 1; i >= 0; i-- {
		if o.emissions[i] == e {
			o.emissions = append(o.emissions[:i], o.emissions[i+1:]...)
			return
		}
	}
}

// findEmission returns the innermost running emission of spec. With exact
// the detail must match; otherwise an empty detail matches any.
func (o *Object) findEmission(spec *SignalSpec, detail string, exact bool) *Emission {
	o.sigMu.Lock()
	defer o.sigMu.Unlock()
	for i := len(o.emissions) - 1; i >= 0; i-- {
		e := o.emissions[i]
		if e.signal != spec {
			continue
		}
		if e.detail == detail || (!exact && detail == "") {
			return e
		}
	}
	return nil
}

// StopEmission stops the innermost running emission of name on this
// instance. It fails with ErrNoEmission when there is none.
func (o *Object) StopEmission(name string) error {
	spec, detail, err := o.resolveSignal(name)
	if err != nil {
		return err
	}
	e := o.findEmission(spec, detail, false)
	if e == nil {
		return &SignalError{Type: o.class.name, Signal: name, Index: -1, Err: ErrNoEmission}
	}
	e.Stop()
	return nil
}
