package object

import (
	"regexp"
	"strings"
)

// ParamFlags control access to a property
type ParamFlags uint32

const (
	ParamReadable ParamFlags = 1 << iota
	ParamWritable
	// ParamConstruct properties are set during construction, from the
	// supplied value or the default
	ParamConstruct
	// ParamConstructOnly properties can only be set during construction
	ParamConstructOnly
	// ParamLaxValidation commits coerced values instead of rejecting them
	ParamLaxValidation
	// ParamExplicitNotify suppresses notify when a set leaves the value unchanged
	ParamExplicitNotify
	ParamDeprecated

	ParamReadWrite = ParamReadable | ParamWritable
)

var paramFlagNames = []struct {
	flag ParamFlags
	name string
}{
	{ParamReadable, "readable"},
	{ParamWritable, "writable"},
	{ParamConstruct, "construct"},
	{ParamConstructOnly, "construct-only"},
	{ParamLaxValidation, "lax-validation"},
	{ParamExplicitNotify, "explicit-notify"},
	{ParamDeprecated, "deprecated"},
}

// Has reports whether all bits of x are set
func (f ParamFlags) Has(x ParamFlags) bool {
	return f&x == x
}

// String returns a '|' separated list of flag names
func (f ParamFlags) String() string {
	var parts []string
	for _, n := range paramFlagNames {
		if f.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseParamFlag maps a flag name as printed by String back to its value
func ParseParamFlag(name string) (ParamFlags, bool) {
	for _, n := range paramFlagNames {
		if n.name == name {
			return n.flag, true
		}
	}
	return 0, false
}

// ParamSpec describes one property: its value type, access flags, default
// and the validators applied to every value written to it.
type ParamSpec struct {
	name       string
	nick       string
	blurb      string
	valueType  Type
	flags      ParamFlags
	def        Value
	validators []Validator
	owner      Type
}

// NewParamSpec creates a descriptor for an arbitrary value type. An invalid
// def is replaced by the zero value of valueType.
func NewParamSpec(name string, valueType Type, def Value, flags ParamFlags, validators ...Validator) *ParamSpec {
	if !def.IsValid() {
		def = NewValue(valueType)
	}
	return &ParamSpec{
		name:       name,
		valueType:  valueType,
		flags:      flags,
		def:        def,
		validators: validators,
	}
}

// BoolParam creates a boolean property
func BoolParam(name string, def bool, flags ParamFlags) *ParamSpec {
	return NewParamSpec(name, TypeBool, BoolValue(def), flags)
}

// IntParam creates an integer property clamped to [min, max]
func IntParam(name string, min, max, def int64, flags ParamFlags) *ParamSpec {
	return NewParamSpec(name, TypeInt, IntValue(def), flags, IntRange{Min: min, Max: max})
}

// UintParam creates an unsigned property clamped to [min, max]
func UintParam(name string, min, max, def uint64, flags ParamFlags) *ParamSpec {
	return NewParamSpec(name, TypeUint, UintValue(def), flags, UintRange{Min: min, Max: max})
}

// DoubleParam creates a floating point property clamped to [min, max]
func DoubleParam(name string, min, max, def float64, flags ParamFlags) *ParamSpec {
	return NewParamSpec(name, TypeDouble, DoubleValue(def), flags, DoubleRange{Min: min, Max: max})
}

// StringParam creates a string property
func StringParam(name, def string, flags ParamFlags) *ParamSpec {
	return NewParamSpec(name, TypeString, StringValue(def), flags)
}

// EnumParam creates a string property restricted to values. Anything else
// is coerced to def.
func EnumParam(name string, values []string, def string, flags ParamFlags) *ParamSpec {
	return NewParamSpec(name, TypeString, StringValue(def), flags,
		OneOf{Values: append([]string(nil), values...), Fallback: def})
}

// ObjectParam creates a property holding an object of objType or a subtype
func ObjectParam(name string, objType Type, flags ParamFlags) *ParamSpec {
	return NewParamSpec(name, objType, ObjectValueAs(objType, nil), flags)
}

// BoxedParam creates a property holding an arbitrary Go value
func BoxedParam(name string, flags ParamFlags) *ParamSpec {
	return NewParamSpec(name, TypeBoxed, BoxedValue(nil), flags)
}

// WithNick sets the short display name
func (p *ParamSpec) WithNick(nick string) *ParamSpec {
	p.nick = nick
	return p
}

// WithBlurb sets the description
func (p *ParamSpec) WithBlurb(blurb string) *ParamSpec {
	p.blurb = blurb
	return p
}

// WithValidator appends a validator
func (p *ParamSpec) WithValidator(v Validator) *ParamSpec {
	p.validators = append(p.validators, v)
	return p
}

// WithMaxLength truncates string values longer than n runes
func (p *ParamSpec) WithMaxLength(n int) *ParamSpec {
	return p.WithValidator(MaxLength{N: n})
}

// WithPattern replaces string values not matching re with the default
func (p *ParamSpec) WithPattern(re *regexp.Regexp) *ParamSpec {
	fallback, _ := p.def.AsString()
	return p.WithValidator(Pattern{Re: re, Fallback: fallback})
}

// Name returns the canonical property name
func (p *ParamSpec) Name() string { return p.name }

// Nick returns the short display name
func (p *ParamSpec) Nick() string { return p.nick }

// Blurb returns the one-line description
func (p *ParamSpec) Blurb() string { return p.blurb }

// ValueType returns the declared value type
func (p *ParamSpec) ValueType() Type { return p.valueType }

// Flags returns the access and behaviour flags
func (p *ParamSpec) Flags() ParamFlags { return p.flags }

// Default returns the default value
func (p *ParamSpec) Default() Value { return p.def }

// Owner returns the type that installed the property, TypeInvalid before installation
func (p *ParamSpec) Owner() Type { return p.owner }

// Validators returns the validators in application order
func (p *ParamSpec) Validators() []Validator {
	return append([]Validator(nil), p.validators...)
}

// IsReadable reports whether the property can be read
func (p *ParamSpec) IsReadable() bool { return p.flags.Has(ParamReadable) }

// IsWritable reports whether the property can be written after construction
func (p *ParamSpec) IsWritable() bool {
	return p.flags.Has(ParamWritable) && !p.flags.Has(ParamConstructOnly)
}

// Validate runs the validators over a copy of v and returns the result with
// whether any validator had to change it.
func (p *ParamSpec) Validate(v Value) (Value, bool) {
	changed := p.validate(&v)
	return v, changed
}

func (p *ParamSpec) validate(v *Value) bool {
	changed := false
	for _, val := range p.validators {
		if val.Validate(v) {
			changed = true
		}
	}
	return changed
}
