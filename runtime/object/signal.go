package object

import (
	"strings"
)

// SignalID identifies a signal within its registry
type SignalID uint32

// SignalFlags control when class handlers run and how emissions behave
type SignalFlags uint32

const (
	SignalRunFirst SignalFlags = 1 << iota
	SignalRunLast
	SignalRunCleanup
	// SignalNoRecurse restarts a running emission instead of nesting a new one
	SignalNoRecurse
	// SignalDetailed allows "name::detail" connections and emissions
	SignalDetailed
	SignalAction
	SignalNoHooks
)

const signalStages = SignalRunFirst | SignalRunLast | SignalRunCleanup

var signalFlagNames = []struct {
	flag SignalFlags
	name string
}{
	{SignalRunFirst, "run-first"},
	{SignalRunLast, "run-last"},
	{SignalRunCleanup, "run-cleanup"},
	{SignalNoRecurse, "no-recurse"},
	{SignalDetailed, "detailed"},
	{SignalAction, "action"},
	{SignalNoHooks, "no-hooks"},
}

// Has reports whether all bits of x are set
func (f SignalFlags) Has(x SignalFlags) bool {
	return f&x == x
}

// String returns a '|' separated list of flag names
func (f SignalFlags) String() string {
	var parts []string
	for _, n := range signalFlagNames {
		if f.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseSignalFlag maps a flag name as printed by String back to its value
func ParseSignalFlag(name string) (SignalFlags, bool) {
	for _, n := range signalFlagNames {
		if n.name == name {
			return n.flag, true
		}
	}
	return 0, false
}

// Stage is the phase of an emission a handler runs in
type Stage uint8

const (
	StageFirst Stage = iota
	StageLast
	StageCleanup
)

func (s Stage) String() string {
	switch s {
	case StageLast:
		return "last"
	case StageCleanup:
		return "cleanup"
	default:
		return "first"
	}
}

// Handler is an instance-level signal handler. args[0] holds the emitting
// instance, followed by the signal parameters. Handlers of signals without a
// return type must return the zero Value.
type Handler func(args []Value) Value

// ClassHandler is the per-class default handler of a signal
type ClassHandler func(e *Emission, args []Value) Value

// InvocationHint tells an accumulator where in the emission it is called
type InvocationHint struct {
	Signal *SignalSpec
	Detail string
	Stage  Stage
}

// Accumulator folds each handler's return value into acc. Returning false
// stops the emission.
type Accumulator func(hint *InvocationHint, acc *Value, ret Value) bool

// AccumulatorFirstWins keeps the first returned value and stops
func AccumulatorFirstWins(_ *InvocationHint, acc *Value, ret Value) bool {
	*acc = ret
	return false
}

// AccumulatorTrueHandled keeps the latest bool and stops once a handler returns true
func AccumulatorTrueHandled(_ *InvocationHint, acc *Value, ret Value) bool {
	*acc = ret
	handled, _ := ret.AsBool()
	return !handled
}

// AccumulatorSum adds numeric return values
func AccumulatorSum(_ *InvocationHint, acc *Value, ret Value) bool {
	if !acc.IsValid() {
		*acc = ret
		return true
	}
	switch a := acc.data.(type) {
	case int64:
		if b, ok := ret.AsInt(); ok {
			*acc = IntValue(a + b)
		}
	case uint64:
		if b, ok := ret.AsUint(); ok {
			*acc = UintValue(a + b)
		}
	case float64:
		if b, ok := ret.AsDouble(); ok {
			*acc = DoubleValue(a + b)
		}
	}
	return true
}

// SignalSpec describes a signal: parameter and return types, flags and the
// optional class handler and accumulator.
type SignalSpec struct {
	id           SignalID
	name         string
	flags        SignalFlags
	params       []Type
	ret          Type
	classHandler ClassHandler
	accumulator  Accumulator
	owner        Type
}

// NewSignal creates a signal descriptor. A ret of TypeInvalid means the
// signal has no return value.
func NewSignal(name string, flags SignalFlags, params []Type, ret Type) *SignalSpec {
	if ret == TypeInvalid {
		ret = TypeNone
	}
	return &SignalSpec{
		name:   name,
		flags:  flags,
		params: append([]Type(nil), params...),
		ret:    ret,
	}
}

// WithClassHandler sets the class handler. Without a run stage flag it runs last.
func (s *SignalSpec) WithClassHandler(h ClassHandler) *SignalSpec {
	s.classHandler = h
	if s.flags&signalStages == 0 {
		s.flags |= SignalRunLast
	}
	return s
}

// WithAccumulator sets the accumulator
func (s *SignalSpec) WithAccumulator(a Accumulator) *SignalSpec {
	s.accumulator = a
	return s
}

// ID returns the registry-wide signal id, zero before installation
func (s *SignalSpec) ID() SignalID { return s.id }

// Name returns the signal name
func (s *SignalSpec) Name() string { return s.name }

// Flags returns the signal flags
func (s *SignalSpec) Flags() SignalFlags { return s.flags }

// ReturnType returns the return type, TypeNone for unit signals
func (s *SignalSpec) ReturnType() Type { return s.ret }

// Owner returns the type that declared the signal
func (s *SignalSpec) Owner() Type { return s.owner }

// HasClassHandler reports whether the signal declares its own class handler
func (s *SignalSpec) HasClassHandler() bool { return s.classHandler != nil }

// HasAccumulator reports whether handler returns are accumulated
func (s *SignalSpec) HasAccumulator() bool { return s.accumulator != nil }

// ParamTypes returns the parameter types, excluding the instance
func (s *SignalSpec) ParamTypes() []Type {
	return append([]Type(nil), s.params...)
}

// parseSignalName splits "name::detail"
func parseSignalName(full string) (name, detail string, ok bool) {
	name, detail, hasDetail := strings.Cut(full, "::")
	if hasDetail && detail == "" {
		return "", "", false
	}
	return name, detail, name != ""
}
