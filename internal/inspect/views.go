package inspect

import (
	"github.com/conduit-lang/objrt/runtime/object"
)

// TypeInfo summarizes a registered type
type TypeInfo struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Parent     string   `json:"parent,omitempty"`
	Depth      int      `json:"depth"`
	Abstract   bool     `json:"abstract,omitempty"`
	Final      bool     `json:"final,omitempty"`
	Interfaces []string `json:"interfaces,omitempty"`
}

// PropertyInfo describes a property of a type
type PropertyInfo struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Flags   string `json:"flags"`
	Owner   string `json:"owner"`
	Default any    `json:"default,omitempty"`
	Nick    string `json:"nick,omitempty"`
	Blurb   string `json:"blurb,omitempty"`
}

// SignalInfo describes a signal of a type
type SignalInfo struct {
	Name    string   `json:"name"`
	Flags   string   `json:"flags"`
	Owner   string   `json:"owner"`
	Params  []string `json:"params"`
	Returns string   `json:"returns,omitempty"`
}

// TypeDetail is the full description of a type
type TypeDetail struct {
	TypeInfo
	Children   []string       `json:"children"`
	Properties []PropertyInfo `json:"properties"`
	Signals    []SignalInfo   `json:"signals"`
}

// InstanceInfo summarizes a live instance
type InstanceInfo struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	RefCount int32  `json:"ref_count"`
	Floating bool   `json:"floating,omitempty"`
}

// InstanceDetail is an instance with its readable property values
type InstanceDetail struct {
	InstanceInfo
	Properties map[string]any `json:"properties"`
}

// PropertyValue is the value of one property of an instance
type PropertyValue struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// SetPropertyRequest is the body of a property update
type SetPropertyRequest struct {
	Value any `json:"value"`
}

// EmitRequest is the body of a signal emission
type EmitRequest struct {
	Args []any `json:"args"`
}

// EmitResponse carries the return value of an emission
type EmitResponse struct {
	Signal string `json:"signal"`
	Return any    `json:"return,omitempty"`
}

func typeKind(reg *object.Registry, c *object.Class) string {
	switch {
	case c.IsInterface():
		return "interface"
	case reg.IsA(c.Type(), object.TypeObject):
		return "object"
	default:
		return "fundamental"
	}
}

func newTypeInfo(reg *object.Registry, c *object.Class) TypeInfo {
	info := TypeInfo{
		Name:     c.Name(),
		Kind:     typeKind(reg, c),
		Depth:    c.Depth(),
		Abstract: c.IsAbstract(),
		Final:    c.Flags().Has(object.TypeFlagFinal),
	}
	if p := c.Parent(); p != nil {
		info.Parent = p.Name()
	}
	for _, t := range reg.Interfaces(c.Type()) {
		info.Interfaces = append(info.Interfaces, reg.Name(t))
	}
	return info
}

func newTypeDetail(reg *object.Registry, c *object.Class) TypeDetail {
	d := TypeDetail{
		TypeInfo:   newTypeInfo(reg, c),
		Children:   []string{},
		Properties: []PropertyInfo{},
		Signals:    []SignalInfo{},
	}
	for _, t := range reg.Children(c.Type()) {
		d.Children = append(d.Children, reg.Name(t))
	}
	for _, p := range c.ListProperties() {
		d.Properties = append(d.Properties, PropertyInfo{
			Name:    p.Name(),
			Type:    reg.Name(p.ValueType()),
			Flags:   p.Flags().String(),
			Owner:   reg.Name(p.Owner()),
			Default: jsonValue(p.Default()),
			Nick:    p.Nick(),
			Blurb:   p.Blurb(),
		})
	}
	for _, s := range c.ListSignals() {
		info := SignalInfo{
			Name:   s.Name(),
			Flags:  s.Flags().String(),
			Owner:  reg.Name(s.Owner()),
			Params: []string{},
		}
		for _, t := range s.ParamTypes() {
			info.Params = append(info.Params, reg.Name(t))
		}
		if s.ReturnType() != object.TypeNone {
			info.Returns = reg.Name(s.ReturnType())
		}
		d.Signals = append(d.Signals, info)
	}
	return d
}

func newInstanceInfo(obj *object.Object) InstanceInfo {
	return InstanceInfo{
		ID:       obj.ID().String(),
		Type:     obj.TypeName(),
		RefCount: obj.RefCount(),
		Floating: obj.IsFloating(),
	}
}

// jsonValue converts a Value to something encoding/json renders: objects
// become their id, descriptors their name.
func jsonValue(v object.Value) any {
	if !v.IsValid() {
		return nil
	}
	if v.HoldsObject() {
		obj, _ := v.AsObject()
		if obj == nil {
			return nil
		}
		return obj.ID().String()
	}
	if p, ok := v.AsParamSpec(); ok {
		if p == nil {
			return nil
		}
		return p.Name()
	}
	if v.Interface() == nil {
		return nil
	}
	switch v.Type() {
	case object.TypeBool, object.TypeInt, object.TypeUint, object.TypeDouble, object.TypeString:
		return v.Interface()
	}
	return v.String()
}
