package object

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Value is a tagged container for one typed value. The zero Value is the
// uninitialized sentinel: IsValid reports false and it matches no type.
//
// Object values may be tagged with a static type more generic than the
// dynamic type of the object they hold.
type Value struct {
	typ  Type
	data any
}

// NewValue returns the zero value of t
func NewValue(t Type) Value {
	var v Value
	v.Init(t)
	return v
}

// Init resets v to the zero value of t
func (v *Value) Init(t Type) {
	v.typ = t
	switch t {
	case TypeBool:
		v.data = false
	case TypeInt:
		v.data = int64(0)
	case TypeUint:
		v.data = uint64(0)
	case TypeDouble:
		v.data = float64(0)
	case TypeString:
		v.data = ""
	case TypeParamSpec:
		v.data = (*ParamSpec)(nil)
	case TypeNone, TypeInvalid, TypeBoxed:
		v.data = nil
	default:
		// Object and interface types start as a nil object
		v.data = (*Object)(nil)
	}
}

// Unset returns v to the uninitialized state
func (v *Value) Unset() {
	v.typ = TypeInvalid
	v.data = nil
}

// Type returns the type tag
func (v Value) Type() Type {
	return v.typ
}

// IsValid reports whether v has been initialized
func (v Value) IsValid() bool {
	return v.typ != TypeInvalid
}

// BoolValue wraps a bool
func BoolValue(b bool) Value { return Value{typ: TypeBool, data: b} }

// IntValue wraps an int64
func IntValue(i int64) Value { return Value{typ: TypeInt, data: i} }

// UintValue wraps a uint64
func UintValue(u uint64) Value { return Value{typ: TypeUint, data: u} }

// DoubleValue wraps a float64
func DoubleValue(f float64) Value { return Value{typ: TypeDouble, data: f} }

// StringValue wraps a string
func StringValue(s string) Value { return Value{typ: TypeString, data: s} }

// BoxedValue wraps an arbitrary Go value
func BoxedValue(x any) Value { return Value{typ: TypeBoxed, data: x} }

// ParamSpecValue wraps a property descriptor
func ParamSpecValue(p *ParamSpec) Value { return Value{typ: TypeParamSpec, data: p} }

// ObjectValue wraps obj tagged with its dynamic type. A nil obj is tagged
// TypeObject.
func ObjectValue(obj *Object) Value {
	if obj == nil {
		return Value{typ: TypeObject, data: (*Object)(nil)}
	}
	return Value{typ: obj.class.typ, data: obj}
}

// ObjectValueAs wraps obj tagged with the static type t
func ObjectValueAs(t Type, obj *Object) Value {
	return Value{typ: t, data: obj}
}

// ValueOf converts a Go value into a Value. Integer kinds map to TypeInt or
// TypeUint, floats to TypeDouble, *Object to its dynamic type and anything
// unrecognised to TypeBoxed. A nil interface gives the zero Value.
func ValueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return Value{}
	case Value:
		return t
	case bool:
		return BoolValue(t)
	case int:
		return IntValue(int64(t))
	case int8:
		return IntValue(int64(t))
	case int16:
		return IntValue(int64(t))
	case int32:
		return IntValue(int64(t))
	case int64:
		return IntValue(t)
	case uint:
		return UintValue(uint64(t))
	case uint8:
		return UintValue(uint64(t))
	case uint16:
		return UintValue(uint64(t))
	case uint32:
		return UintValue(uint64(t))
	case uint64:
		return UintValue(t)
	case float32:
		return DoubleValue(float64(t))
	case float64:
		return DoubleValue(t)
	case string:
		return StringValue(t)
	case *Object:
		return ObjectValue(t)
	case *ParamSpec:
		return ParamSpecValue(t)
	default:
		return BoxedValue(x)
	}
}

// AsBool returns the contained bool
func (v Value) AsBool() (bool, bool) {
	b, ok := v.data.(bool)
	return b, ok && v.typ == TypeBool
}

// AsInt returns the contained int64
func (v Value) AsInt() (int64, bool) {
	i, ok := v.data.(int64)
	return i, ok && v.typ == TypeInt
}

// AsUint returns the contained uint64
func (v Value) AsUint() (uint64, bool) {
	u, ok := v.data.(uint64)
	return u, ok && v.typ == TypeUint
}

// AsDouble returns the contained float64
func (v Value) AsDouble() (float64, bool) {
	f, ok := v.data.(float64)
	return f, ok && v.typ == TypeDouble
}

// AsString returns the contained string
func (v Value) AsString() (string, bool) {
	s, ok := v.data.(string)
	return s, ok && v.typ == TypeString
}

// AsObject returns the contained object. ok is true for object values even
// when the object is nil.
func (v Value) AsObject() (*Object, bool) {
	obj, ok := v.data.(*Object)
	return obj, ok
}

// AsParamSpec returns the contained property descriptor
func (v Value) AsParamSpec() (*ParamSpec, bool) {
	p, ok := v.data.(*ParamSpec)
	return p, ok
}

// Interface returns the contained Go value
func (v Value) Interface() any {
	if obj, ok := v.data.(*Object); ok && obj == nil {
		return nil
	}
	return v.data
}

// HoldsObject reports whether v contains an object (possibly nil)
func (v Value) HoldsObject() bool {
	_, ok := v.data.(*Object)
	return ok
}

// Equal reports whether both values have the same tag and contents. Object
// values compare by instance only.
func (v Value) Equal(o Value) bool {
	if a, ok := v.data.(*Object); ok {
		b, ok := o.data.(*Object)
		return ok && a == b
	}
	if v.typ != o.typ {
		return false
	}
	switch a := v.data.(type) {
	case nil, bool, int64, uint64, float64, string, *Object, *ParamSpec:
		return v.data == o.data
	default:
		return reflect.DeepEqual(a, o.data)
	}
}

// String renders v for diagnostics
func (v Value) String() string {
	switch d := v.data.(type) {
	case nil:
		if v.typ == TypeInvalid {
			return "<unset>"
		}
		return fmt.Sprintf("%s(nil)", v.typ)
	case string:
		return strconv.Quote(d)
	case *Object:
		if d == nil {
			return "nil"
		}
		return d.String()
	case *ParamSpec:
		if d == nil {
			return "nil"
		}
		return "ParamSpec(" + d.name + ")"
	default:
		return fmt.Sprint(d)
	}
}

// Transform converts v to dst. Same-type values and compatible objects are
// passed through; bool, int, uint, double and string convert between each
// other where the conversion is lossless in range. It reports false when no
// conversion applies.
func Transform(v Value, dst Type) (Value, bool) {
	if !v.IsValid() {
		return Value{}, false
	}
	if obj, ok := v.data.(*Object); ok {
		switch {
		case obj == nil && (dst == v.typ || dst == TypeObject):
			return ObjectValueAs(dst, nil), true
		case obj != nil && obj.IsA(dst):
			return ObjectValueAs(dst, obj), true
		case dst == TypeString:
			return StringValue(v.String()), true
		}
		return Value{}, false
	}
	if v.typ == dst {
		return v, true
	}

	switch d := v.data.(type) {
	case bool:
		switch dst {
		case TypeInt:
			return IntValue(boolToInt(d)), true
		case TypeUint:
			return UintValue(uint64(boolToInt(d))), true
		case TypeDouble:
			return DoubleValue(float64(boolToInt(d))), true
		case TypeString:
			return StringValue(strconv.FormatBool(d)), true
		}
	case int64:
		switch dst {
		case TypeBool:
			return BoolValue(d != 0), true
		case TypeUint:
			if d < 0 {
				return Value{}, false
			}
			return UintValue(uint64(d)), true
		case TypeDouble:
			return DoubleValue(float64(d)), true
		case TypeString:
			return StringValue(strconv.FormatInt(d, 10)), true
		}
	case uint64:
		switch dst {
		case TypeBool:
			return BoolValue(d != 0), true
		case TypeInt:
			if d > math.MaxInt64 {
				return Value{}, false
			}
			return IntValue(int64(d)), true
		case TypeDouble:
			return DoubleValue(float64(d)), true
		case TypeString:
			return StringValue(strconv.FormatUint(d, 10)), true
		}
	case float64:
		switch dst {
		case TypeBool:
			return BoolValue(d != 0), true
		case TypeInt:
			if math.IsNaN(d) || d < math.MinInt64 || d >= math.MaxInt64 {
				return Value{}, false
			}
			return IntValue(int64(d)), true
		case TypeUint:
			if math.IsNaN(d) || d < 0 || d >= math.MaxUint64 {
				return Value{}, false
			}
			return UintValue(uint64(d)), true
		case TypeString:
			return StringValue(strconv.FormatFloat(d, 'g', -1, 64)), true
		}
	case string:
		s := strings.TrimSpace(d)
		switch dst {
		case TypeBool:
			if b, err := strconv.ParseBool(s); err == nil {
				return BoolValue(b), true
			}
		case TypeInt:
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return IntValue(i), true
			}
		case TypeUint:
			if u, err := strconv.ParseUint(s, 10, 64); err == nil {
				return UintValue(u), true
			}
		case TypeDouble:
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return DoubleValue(f), true
			}
		}
	}
	return Value{}, false
}

// Transformable reports whether Transform can in principle convert values of
// type src into dst. Object conversions are checked against r.
func (r *Registry) Transformable(src, dst Type) bool {
	if src == dst {
		return true
	}
	scalar := func(t Type) bool {
		switch t {
		case TypeBool, TypeInt, TypeUint, TypeDouble, TypeString:
			return true
		}
		return false
	}
	if scalar(src) && scalar(dst) {
		return true
	}
	if r.isObjectType(src) {
		return dst == TypeString || r.IsA(src, dst) || r.IsA(dst, src)
	}
	return false
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
