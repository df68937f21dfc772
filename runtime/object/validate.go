package object

import (
	"regexp"
	"slices"
	"unicode/utf8"
)

// Validator checks a property value and coerces it in place when it is out
// of bounds. Validate reports whether it changed the value; strict
// properties turn a change into ErrValidationFailed.
type Validator interface {
	Validate(v *Value) bool
}

// ValidatorFunc adapts a function to the Validator interface
type ValidatorFunc func(v *Value) bool

// Validate implements the Validator interface
func (f ValidatorFunc) Validate(v *Value) bool {
	return f(v)
}

// IntRange clamps integer values to [Min, Max]
type IntRange struct {
	Min, Max int64
}

// Validate implements the Validator interface
func (r IntRange) Validate(v *Value) bool {
	i, ok := v.AsInt()
	if !ok {
		return false
	}
	switch {
	case i < r.Min:
		*v = IntValue(r.Min)
	case i > r.Max:
		*v = IntValue(r.Max)
	default:
		return false
	}
	return true
}

// UintRange clamps unsigned values to [Min, Max]
type UintRange struct {
	Min, Max uint64
}

// Validate implements the Validator interface
func (r UintRange) Validate(v *Value) bool {
	u, ok := v.AsUint()
	if !ok {
		return false
	}
	switch {
	case u < r.Min:
		*v = UintValue(r.Min)
	case u > r.Max:
		*v = UintValue(r.Max)
	default:
		return false
	}
	return true
}

// DoubleRange clamps floating point values to [Min, Max]. NaN becomes Min.
type DoubleRange struct {
	Min, Max float64
}

// Validate implements the Validator interface
func (r DoubleRange) Validate(v *Value) bool {
	f, ok := v.AsDouble()
	if !ok {
		return false
	}
	switch {
	case f != f:
		*v = DoubleValue(r.Min)
	case f < r.Min:
		*v = DoubleValue(r.Min)
	case f > r.Max:
		*v = DoubleValue(r.Max)
	default:
		return false
	}
	return true
}

// MaxLength truncates strings longer than N runes
type MaxLength struct {
	N int
}

// Validate implements the Validator interface
func (m MaxLength) Validate(v *Value) bool {
	s, ok := v.AsString()
	if !ok || utf8.RuneCountInString(s) <= m.N {
		return false
	}
	*v = StringValue(string([]rune(s)[:m.N]))
	return true
}

// Pattern replaces strings not matching Re with Fallback
type Pattern struct {
	Re       *regexp.Regexp
	Fallback string
}

// Validate implements the Validator interface
func (p Pattern) Validate(v *Value) bool {
	s, ok := v.AsString()
	if !ok || p.Re == nil || p.Re.MatchString(s) {
		return false
	}
	*v = StringValue(p.Fallback)
	return true
}

// OneOf replaces strings outside Values with Fallback
type OneOf struct {
	Values   []string
	Fallback string
}

// Validate implements the Validator interface
func (o OneOf) Validate(v *Value) bool {
	s, ok := v.AsString()
	if !ok || slices.Contains(o.Values, s) {
		return false
	}
	*v = StringValue(o.Fallback)
	return true
}
