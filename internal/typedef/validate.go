package typedef

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/conduit-lang/objrt/runtime/object"
)

var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// kinds maps property kinds to their value types. object is resolved
// through object_type.
var kinds = map[string]object.Type{
	"bool":   object.TypeBool,
	"int":    object.TypeInt,
	"uint":   object.TypeUint,
	"double": object.TypeDouble,
	"string": object.TypeString,
	"enum":   object.TypeString,
	"boxed":  object.TypeBoxed,
	"object": object.TypeObject,
}

var accumulators = map[string]object.Accumulator{
	"first-wins":   object.AccumulatorFirstWins,
	"true-handled": object.AccumulatorTrueHandled,
	"sum":          object.AccumulatorSum,
}

// Validate checks the document on its own. References to types outside the
// document are checked by Apply against the target registry.
func (d *Document) Validate() error {
	c := &collector{doc: d}
	seen := make(map[string]bool)

	checkName := func(name string) {
		switch {
		case !namePattern.MatchString(name):
			c.add(name, "", "names start with a letter followed by letters, digits, '-' or '_'",
				"invalid type name '%s'", name)
		case seen[name]:
			c.add(name, "", "", "type '%s' is defined more than once", name)
		}
		seen[name] = true
	}

	for _, i := range d.Interfaces {
		checkName(i.Name)
		validateMembers(c, i.Name, i.Properties, i.Signals)
	}
	for _, t := range d.Types {
		checkName(t.Name)
		if t.Abstract && t.Final {
			c.add(t.Name, "", "", "a type cannot be both abstract and final")
		}
		if t.Unowned && t.Parent != "" && t.Parent != object.TypeInitiallyUnowned.String() {
			c.add(t.Name, "", "drop 'unowned' and derive from an InitiallyUnowned type instead",
				"'unowned' conflicts with parent '%s'", t.Parent)
		}
		validateMembers(c, t.Name, t.Properties, t.Signals)
	}

	if cycles := newGraph(d).detectCycles(); len(cycles) > 0 {
		for _, cycle := range cycles {
			c.add(cycle[0], "", "", "circular dependency: %s -> %s", strings.Join(cycle, " -> "), cycle[0])
		}
	}
	return c.err()
}

func validateMembers(c *collector, typ string, props []PropertyDef, signals []SignalDef) {
	seen := make(map[string]bool)
	for _, p := range props {
		if !namePattern.MatchString(p.Name) {
			c.add(typ, p.Name, "", "invalid property name '%s'", p.Name)
		} else if seen[p.Name] {
			c.add(typ, p.Name, "", "property defined more than once")
		}
		seen[p.Name] = true
		validateProperty(c, typ, p)
	}

	seen = make(map[string]bool)
	for _, s := range signals {
		if !namePattern.MatchString(s.Name) {
			c.add(typ, s.Name, "", "invalid signal name '%s'", s.Name)
		} else if seen[s.Name] {
			c.add(typ, s.Name, "", "signal defined more than once")
		}
		seen[s.Name] = true
		validateSignal(c, typ, s)
	}
}

func validateProperty(c *collector, typ string, p PropertyDef) {
	if _, ok := kinds[p.Kind]; !ok {
		c.add(typ, p.Name, "kinds are "+strings.Join(kindNames(), ", "), "unknown kind '%s'", p.Kind)
		return
	}
	if _, err := parseParamFlags(p.Flags); err != nil {
		c.add(typ, p.Name, "", "%v", err)
	}

	numeric := p.Kind == "int" || p.Kind == "uint" || p.Kind == "double"
	if (p.Min != nil || p.Max != nil) && !numeric {
		c.add(typ, p.Name, "", "min and max apply to numeric kinds only")
	}
	if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
		c.add(typ, p.Name, "", "min %v is greater than max %v", *p.Min, *p.Max)
	}
	if p.Kind == "uint" && p.Min != nil && *p.Min < 0 {
		c.add(typ, p.Name, "", "uint property cannot have a negative min")
	}
	if (p.MaxLength != 0 || p.Pattern != "") && p.Kind != "string" {
		c.add(typ, p.Name, "", "max_length and pattern apply to string properties only")
	}
	if p.MaxLength < 0 {
		c.add(typ, p.Name, "", "max_length must not be negative")
	}
	if p.Pattern != "" {
		if _, err := regexp.Compile(p.Pattern); err != nil {
			c.add(typ, p.Name, "", "invalid pattern: %v", err)
		}
	}

	switch p.Kind {
	case "enum":
		if len(p.Values) == 0 {
			c.add(typ, p.Name, "list the allowed strings under 'values'", "enum property has no values")
		}
	case "object":
		if p.ObjectType == "" {
			c.add(typ, p.Name, "", "object property needs 'object_type'")
		}
	default:
		if p.ObjectType != "" {
			c.add(typ, p.Name, "", "'object_type' applies to object properties only")
		}
	}
	if len(p.Values) > 0 && p.Kind != "enum" {
		c.add(typ, p.Name, "", "'values' applies to enum properties only")
	}

	if p.Default != nil {
		if p.Kind == "object" || p.Kind == "boxed" {
			c.add(typ, p.Name, "", "%s properties cannot declare a default", p.Kind)
		} else if _, err := defaultValue(p); err != nil {
			c.add(typ, p.Name, "", "%v", err)
		}
	}
}

func validateSignal(c *collector, typ string, s SignalDef) {
	if _, err := parseSignalFlags(s.Flags); err != nil {
		c.add(typ, s.Name, "", "%v", err)
	}
	if s.Accumulator != "" {
		if _, ok := accumulators[s.Accumulator]; !ok {
			c.add(typ, s.Name, "accumulators are first-wins, true-handled and sum",
				"unknown accumulator '%s'", s.Accumulator)
		}
		if s.Returns == "" || s.Returns == "none" {
			c.add(typ, s.Name, "", "an accumulator needs a return type")
		}
	}
	for i, param := range s.Params {
		if param == "" || param == "none" {
			c.add(typ, s.Name, "", "parameter %d has no type", i)
		}
	}
}

func kindNames() []string {
	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

func parseParamFlags(names []string) (object.ParamFlags, error) {
	if len(names) == 0 {
		return object.ParamReadWrite, nil
	}
	var flags object.ParamFlags
	for _, name := range names {
		if name == "readwrite" {
			flags |= object.ParamReadWrite
			continue
		}
		f, ok := object.ParseParamFlag(name)
		if !ok {
			return 0, fmt.Errorf("unknown property flag '%s'", name)
		}
		flags |= f
	}
	return flags, nil
}

func parseSignalFlags(names []string) (object.SignalFlags, error) {
	if len(names) == 0 {
		return object.SignalRunLast, nil
	}
	var flags object.SignalFlags
	for _, name := range names {
		f, ok := object.ParseSignalFlag(name)
		if !ok {
			return 0, fmt.Errorf("unknown signal flag '%s'", name)
		}
		flags |= f
	}
	return flags, nil
}

// defaultValue converts the YAML default of p to the Go type of its kind
func defaultValue(p PropertyDef) (any, error) {
	switch p.Kind {
	case "bool":
		b, ok := p.Default.(bool)
		if !ok {
			return nil, fmt.Errorf("default %v is not a bool", p.Default)
		}
		return b, nil
	case "int":
		switch n := p.Default.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case uint64:
			if n <= math.MaxInt64 {
				return int64(n), nil
			}
		}
		return nil, fmt.Errorf("default %v is not an int", p.Default)
	case "uint":
		switch n := p.Default.(type) {
		case int:
			if n >= 0 {
				return uint64(n), nil
			}
		case int64:
			if n >= 0 {
				return uint64(n), nil
			}
		case uint64:
			return n, nil
		}
		return nil, fmt.Errorf("default %v is not a uint", p.Default)
	case "double":
		switch n := p.Default.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
		return nil, fmt.Errorf("default %v is not a number", p.Default)
	case "string":
		s, ok := p.Default.(string)
		if !ok {
			return nil, fmt.Errorf("default %v is not a string", p.Default)
		}
		return s, nil
	case "enum":
		s, ok := p.Default.(string)
		if !ok || !slices.Contains(p.Values, s) {
			return nil, fmt.Errorf("default %v is not one of %s", p.Default, strings.Join(p.Values, ", "))
		}
		return s, nil
	}
	return nil, fmt.Errorf("%s properties have no default", p.Kind)
}
