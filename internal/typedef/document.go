// Package typedef loads declarative type definitions from YAML and registers
// them with an object registry.
package typedef

// Document is one or more merged definition files
type Document struct {
	Interfaces []InterfaceDef `yaml:"interfaces"`
	Types      []TypeDef      `yaml:"types"`

	// sources maps definition names to the file they came from
	sources map[string]string
}

// InterfaceDef declares an interface type
type InterfaceDef struct {
	Name          string        `yaml:"name"`
	Prerequisites []string      `yaml:"prerequisites"`
	Properties    []PropertyDef `yaml:"properties"`
	Signals       []SignalDef   `yaml:"signals"`
}

// TypeDef declares a class. Parent defaults to Object, or to
// InitiallyUnowned when Unowned is set.
type TypeDef struct {
	Name        string        `yaml:"name"`
	Parent      string        `yaml:"parent"`
	Interfaces  []string      `yaml:"interfaces"`
	Abstract    bool          `yaml:"abstract"`
	Final       bool          `yaml:"final"`
	Unowned     bool          `yaml:"unowned"`
	Description string        `yaml:"description"`
	Properties  []PropertyDef `yaml:"properties"`
	Signals     []SignalDef   `yaml:"signals"`
}

// PropertyDef declares a property. Kind is one of bool, int, uint, double,
// string, enum, object or boxed.
type PropertyDef struct {
	Name       string   `yaml:"name"`
	Kind       string   `yaml:"kind"`
	Flags      []string `yaml:"flags"`
	Default    any      `yaml:"default"`
	Min        *float64 `yaml:"min"`
	Max        *float64 `yaml:"max"`
	MaxLength  int      `yaml:"max_length"`
	Pattern    string   `yaml:"pattern"`
	Values     []string `yaml:"values"`
	ObjectType string   `yaml:"object_type"`
	Nick       string   `yaml:"nick"`
	Blurb      string   `yaml:"blurb"`
}

// SignalDef declares a signal. Params and Returns name fundamental kinds or
// object types; an empty Returns means no return value.
type SignalDef struct {
	Name        string   `yaml:"name"`
	Flags       []string `yaml:"flags"`
	Params      []string `yaml:"params"`
	Returns     string   `yaml:"returns"`
	Accumulator string   `yaml:"accumulator"`
}

// Names returns every interface and type name declared in the document
func (d *Document) Names() []string {
	names := make([]string, 0, len(d.Interfaces)+len(d.Types))
	for _, i := range d.Interfaces {
		names = append(names, i.Name)
	}
	for _, t := range d.Types {
		names = append(names, t.Name)
	}
	return names
}

// Source returns the file a definition was loaded from, if known
func (d *Document) Source(name string) string {
	return d.sources[name]
}

// Description returns the description of a declared type
func (d *Document) Description(name string) string {
	for _, t := range d.Types {
		if t.Name == name {
			return t.Description
		}
	}
	return ""
}

// Merge appends the definitions of other to d
func (d *Document) Merge(other *Document) {
	d.Interfaces = append(d.Interfaces, other.Interfaces...)
	d.Types = append(d.Types, other.Types...)
	for name, src := range other.sources {
		d.setSource(name, src)
	}
}

func (d *Document) setSource(name, src string) {
	if src == "" {
		return
	}
	if d.sources == nil {
		d.sources = make(map[string]string)
	}
	if _, ok := d.sources[name]; !ok {
		d.sources[name] = src
	}
}
