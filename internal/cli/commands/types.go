package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/objrt/internal/cli/config"
	"github.com/conduit-lang/objrt/internal/cli/ui"
	"github.com/conduit-lang/objrt/internal/typedef"
	"github.com/conduit-lang/objrt/runtime/object"
)

type typesOptions struct {
	global *globalOptions
	json   bool
	show   string
	kind   string
}

// typeView is the printable description of one registered type
type typeView struct {
	Name        string         `json:"name"`
	Kind        string         `json:"kind"`
	Parent      string         `json:"parent,omitempty"`
	Interfaces  []string       `json:"interfaces,omitempty"`
	Abstract    bool           `json:"abstract,omitempty"`
	Final       bool           `json:"final,omitempty"`
	Source      string         `json:"source,omitempty"`
	Properties  []propertyView `json:"properties"`
	Signals     []signalView   `json:"signals"`

	// members declared by the type itself
	ownProps   int
	ownSignals int
}

type propertyView struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Flags   string `json:"flags"`
	Default string `json:"default,omitempty"`
	Owner   string `json:"owner"`
}

type signalView struct {
	Name    string   `json:"name"`
	Flags   string   `json:"flags"`
	Params  []string `json:"params"`
	Returns string   `json:"returns,omitempty"`
	Owner   string   `json:"owner"`
}

// NewTypesCommand creates the types command
func NewTypesCommand(global *globalOptions) *cobra.Command {
	opts := &typesOptions{global: global}

	cmd := &cobra.Command{
		Use:   "types [files...]",
		Short: "List the types declared in definition files",
		Long: `Load type definition files into a fresh registry and list the
interfaces and classes they declare.

Without arguments the files listed under "types" in objrt.yaml are used.`,
		Example: `  objrt types types/*.yaml
  objrt types --kind interface
  objrt types --show Widget
  objrt types --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTypes(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false, "output as JSON")
	cmd.Flags().StringVar(&opts.show, "show", "", "show properties and signals of one type")
	cmd.Flags().StringVar(&opts.kind, "kind", "", "only list types of this kind (object or interface)")
	_ = cmd.RegisterFlagCompletionFunc("show", completeTypeNames(global))
	_ = cmd.RegisterFlagCompletionFunc("kind", cobra.FixedCompletions([]string{"object", "interface"}, cobra.ShellCompDirectiveNoFileComp))

	return cmd
}

func runTypes(cmd *cobra.Command, opts *typesOptions, args []string) error {
	files, err := definitionFiles(opts.global, args)
	if err != nil {
		return err
	}
	reg, doc, types, err := loadTypes(files, zap.NewNop())
	if err != nil {
		return err
	}

	views := make([]typeView, 0, len(types))
	for _, t := range types {
		v := describeType(reg, doc, t)
		if opts.kind != "" && v.Kind != opts.kind {
			continue
		}
		views = append(views, v)
	}

	if opts.show != "" {
		for _, v := range views {
			if v.Name == opts.show {
				return printType(cmd, opts, v)
			}
		}
		names := make([]string, len(views))
		for i, v := range views {
			names[i] = v.Name
		}
		ui.TypeNotFound(opts.show, names, opts.global.noColor).Write(cmd.ErrOrStderr())
		return fmt.Errorf("type '%s' not found", opts.show)
	}

	if opts.json {
		return writeJSON(cmd, views)
	}

	table := ui.NewTable(cmd.OutOrStdout(), opts.global.noColor,
		"NAME", "KIND", "PARENT", "INTERFACES", "PROPERTIES", "SIGNALS", "SOURCE")
	for _, v := range views {
		table.AddRow(v.Name, v.Kind, v.Parent, strings.Join(v.Interfaces, ","),
			strconv.Itoa(v.ownProps), strconv.Itoa(v.ownSignals), v.Source)
	}
	table.Render()
	return nil
}

func printType(cmd *cobra.Command, opts *typesOptions, v typeView) error {
	if opts.json {
		return writeJSON(cmd, v)
	}

	out := cmd.OutOrStdout()
	noColor := opts.global.noColor

	ui.Header(out, v.Name, noColor)
	kv := ui.NewKeyValue(out, noColor)
	kv.Add("Kind", v.Kind)
	kv.Add("Parent", v.Parent)
	kv.Add("Interfaces", strings.Join(v.Interfaces, ", "))
	var flags []string
	if v.Abstract {
		flags = append(flags, "abstract")
	}
	if v.Final {
		flags = append(flags, "final")
	}
	kv.Add("Flags", strings.Join(flags, ", "))
	kv.Add("Source", v.Source)
	kv.Render()

	if len(v.Properties) > 0 {
		fmt.Fprintln(out)
		props := ui.NewTable(out, noColor, "PROPERTY", "TYPE", "FLAGS", "DEFAULT", "OWNER")
		for _, p := range v.Properties {
			props.AddRow(p.Name, p.Type, p.Flags, p.Default, p.Owner)
		}
		props.Render()
	}

	if len(v.Signals) > 0 {
		fmt.Fprintln(out)
		signals := ui.NewTable(out, noColor, "SIGNAL", "FLAGS", "PARAMS", "RETURNS", "OWNER")
		for _, s := range v.Signals {
			signals.AddRow(s.Name, s.Flags, strings.Join(s.Params, ", "), s.Returns, s.Owner)
		}
		signals.Render()
	}
	return nil
}

func describeType(reg *object.Registry, doc *typedef.Document, t object.Type) typeView {
	c, err := reg.Class(t)
	if err != nil {
		return typeView{Name: reg.Name(t)}
	}

	v := typeView{
		Name:       c.Name(),
		Kind:       "object",
		Abstract:   c.IsAbstract(),
		Final:      c.Flags().Has(object.TypeFlagFinal),
		Source:     doc.Source(c.Name()),
		Properties: []propertyView{},
		Signals:    []signalView{},
	}
	if c.IsInterface() {
		v.Kind = "interface"
	}
	if p := c.Parent(); p != nil && !c.IsInterface() {
		v.Parent = p.Name()
	}
	for _, i := range reg.Interfaces(t) {
		v.Interfaces = append(v.Interfaces, reg.Name(i))
	}

	for _, p := range c.ListProperties() {
		pv := propertyView{
			Name:  p.Name(),
			Type:  reg.Name(p.ValueType()),
			Flags: p.Flags().String(),
			Owner: reg.Name(p.Owner()),
		}
		if d := p.Default(); d.IsValid() && d.Interface() != nil {
			pv.Default = d.String()
		}
		if p.Owner() == t {
			v.ownProps++
		}
		v.Properties = append(v.Properties, pv)
	}

	for _, s := range c.ListSignals() {
		sv := signalView{
			Name:   s.Name(),
			Flags:  s.Flags().String(),
			Params: []string{},
			Owner:  reg.Name(s.Owner()),
		}
		for _, p := range s.ParamTypes() {
			sv.Params = append(sv.Params, reg.Name(p))
		}
		if s.ReturnType() != object.TypeNone {
			sv.Returns = reg.Name(s.ReturnType())
		}
		if s.Owner() == t {
			v.ownSignals++
		}
		v.Signals = append(v.Signals, sv)
	}
	return v
}

// definitionFiles returns args, or the files configured under types
func definitionFiles(global *globalOptions, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	cfg, err := config.Load(global.configFile)
	if err != nil {
		return nil, err
	}
	if len(cfg.Types) == 0 {
		return nil, fmt.Errorf("no type definition files given; pass files or set types in objrt.yaml")
	}
	return cfg.Types, nil
}

// loadTypes loads files into a new registry and registers their types
func loadTypes(files []string, logger *zap.Logger) (*object.Registry, *typedef.Document, []object.Type, error) {
	doc, err := typedef.LoadFiles(files...)
	if err != nil {
		return nil, nil, nil, err
	}
	reg := object.NewRegistry(object.WithLogger(logger))
	types, err := doc.Apply(reg)
	if err != nil {
		return nil, nil, nil, err
	}
	return reg, doc, types, nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
