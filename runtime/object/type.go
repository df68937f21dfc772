package object

import (
	"fmt"
	"strings"
)

// Type identifies a registered type. Types are indexes into a Registry and
// stay valid for the registry's lifetime. The fundamental types below are
// registered first in every registry, so their values are the same everywhere.
type Type uint32

const (
	TypeInvalid Type = iota
	TypeNone
	TypeInterface
	TypeBool
	TypeInt
	TypeUint
	TypeDouble
	TypeString
	TypeBoxed
	TypeParamSpec
	TypeObject
	TypeInitiallyUnowned

	firstDynamicType
)

var fundamentalNames = [...]string{
	TypeInvalid:          "invalid",
	TypeNone:             "none",
	TypeInterface:        "Interface",
	TypeBool:             "bool",
	TypeInt:              "int",
	TypeUint:             "uint",
	TypeDouble:           "double",
	TypeString:           "string",
	TypeBoxed:            "boxed",
	TypeParamSpec:        "paramspec",
	TypeObject:           "Object",
	TypeInitiallyUnowned: "InitiallyUnowned",
}

// String returns the name of fundamental types; dynamic types need
// Registry.Name for their registered name.
func (t Type) String() string {
	if t < firstDynamicType {
		return fundamentalNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint32(t))
}

// IsFundamental reports whether t is one of the pre-registered types
func (t Type) IsFundamental() bool {
	return t != TypeInvalid && t < firstDynamicType
}

// TypeFlags modify how a type may be used
type TypeFlags uint8

const (
	// TypeFlagAbstract types cannot be instantiated
	TypeFlagAbstract TypeFlags = 1 << iota
	// TypeFlagFinal types cannot be derived from
	TypeFlagFinal
)

// Has reports whether all bits of x are set
func (f TypeFlags) Has(x TypeFlags) bool {
	return f&x == x
}

// String returns a '|' separated list of flag names
func (f TypeFlags) String() string {
	var parts []string
	if f.Has(TypeFlagAbstract) {
		parts = append(parts, "abstract")
	}
	if f.Has(TypeFlagFinal) {
		parts = append(parts, "final")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

type classKind uint8

const (
	kindFundamental classKind = iota
	kindInterface
	kindObject
)

func (k classKind) String() string {
	switch k {
	case kindInterface:
		return "interface"
	case kindObject:
		return "object"
	default:
		return "fundamental"
	}
}

// validName reports whether name is a canonical type, property or signal
// name: a letter followed by letters, digits, '-' or '_'.
func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '-' || r == '_'):
		default:
			return false
		}
	}
	return true
}
