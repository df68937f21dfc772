// Package docs generates Markdown reference pages for registered types.
package docs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/conduit-lang/objrt/runtime/object"
)

// Config holds configuration for documentation generation
type Config struct {
	// Title heads the index page
	Title string

	// OutputDir is the directory the pages are written to
	OutputDir string

	// Describe returns the description of a type, if any
	Describe func(name string) string

	// Source returns the definition file of a type, if known
	Source func(name string) string
}

// MarkdownGenerator generates Markdown documentation
type MarkdownGenerator struct {
	reg    *object.Registry
	config *Config
}

// NewMarkdownGenerator creates a new Markdown generator for reg
func NewMarkdownGenerator(reg *object.Registry, config *Config) *MarkdownGenerator {
	if config.Title == "" {
		config.Title = "Type Reference"
	}
	return &MarkdownGenerator{reg: reg, config: config}
}

// Generate writes README.md and one page per type. It returns the paths
// written.
func (g *MarkdownGenerator) Generate(types []object.Type) ([]string, error) {
	if err := os.MkdirAll(g.config.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	classes := make([]*object.Class, 0, len(types))
	for _, t := range types {
		c, err := g.reg.Class(t)
		if err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}

	var written []string
	index := filepath.Join(g.config.OutputDir, "README.md")
	if err := os.WriteFile(index, []byte(g.index(classes)), 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", index, err)
	}
	written = append(written, index)

	for _, c := range classes {
		path := filepath.Join(g.config.OutputDir, PageName(c.Name()))
		if err := os.WriteFile(path, []byte(g.Page(c)), 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

// PageName returns the file name of the page for a type
func PageName(name string) string {
	return strings.ToLower(name) + ".md"
}

func (g *MarkdownGenerator) index(classes []*object.Class) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "# %s\n\n", g.config.Title)

	var ifaces, objects []*object.Class
	for _, c := range classes {
		if c.IsInterface() {
			ifaces = append(ifaces, c)
		} else {
			objects = append(objects, c)
		}
	}

	section := func(title string, list []*object.Class) {
		if len(list) == 0 {
			return
		}
		fmt.Fprintf(&buf, "## %s\n\n", title)
		for _, c := range list {
			fmt.Fprintf(&buf, "- [%s](%s)", c.Name(), PageName(c.Name()))
			if d := g.describe(c.Name()); d != "" {
				fmt.Fprintf(&buf, " - %s", firstLine(d))
			}
			buf.WriteString("\n")
		}
		buf.WriteString("\n")
	}
	section("Interfaces", ifaces)
	section("Types", objects)
	return buf.String()
}

// Page renders the reference page of one type
func (g *MarkdownGenerator) Page(c *object.Class) string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "# %s\n\n", c.Name())
	if d := g.describe(c.Name()); d != "" {
		fmt.Fprintf(&buf, "> %s\n\n", d)
	}

	if c.IsInterface() {
		buf.WriteString("- **Kind:** interface\n")
	} else {
		buf.WriteString("- **Kind:** object\n")
		fmt.Fprintf(&buf, "- **Hierarchy:** %s\n", strings.Join(hierarchy(c), " → "))
	}
	var flags []string
	if c.IsAbstract() && !c.IsInterface() {
		flags = append(flags, "abstract")
	}
	if c.Flags().Has(object.TypeFlagFinal) {
		flags = append(flags, "final")
	}
	if len(flags) > 0 {
		fmt.Fprintf(&buf, "- **Flags:** %s\n", strings.Join(flags, ", "))
	}
	if ifaces := g.reg.Interfaces(c.Type()); len(ifaces) > 0 {
		links := make([]string, len(ifaces))
		for i, t := range ifaces {
			links[i] = g.link(t)
		}
		fmt.Fprintf(&buf, "- **Interfaces:** %s\n", strings.Join(links, ", "))
	}
	if src := g.source(c.Name()); src != "" {
		fmt.Fprintf(&buf, "- **Source:** `%s`\n", src)
	}
	buf.WriteString("\n")

	g.writeProperties(&buf, c)
	g.writeSignals(&buf, c)
	return buf.String()
}

func (g *MarkdownGenerator) writeProperties(buf *strings.Builder, c *object.Class) {
	buf.WriteString("## Properties\n\n")
	props := c.ListProperties()
	if len(props) == 0 {
		buf.WriteString("No properties defined.\n\n")
		return
	}

	buf.WriteString("| Name | Type | Flags | Default | Defined in | Description |\n")
	buf.WriteString("|------|------|-------|---------|------------|-------------|\n")
	example := make(map[string]any)
	for _, p := range props {
		def := "-"
		if d := p.Default(); d.IsValid() && d.Interface() != nil {
			def = "`" + d.String() + "`"
			example[p.Name()] = d.Interface()
		}
		desc := p.Blurb()
		if desc == "" {
			desc = "-"
		}
		fmt.Fprintf(buf, "| `%s` | %s | %s | %s | %s | %s |\n",
			p.Name(), g.link(p.ValueType()), escapeCell(p.Flags().String()), def, g.link(p.Owner()), escapeCell(desc))
	}
	buf.WriteString("\n")

	if len(example) > 0 {
		buf.WriteString("### Defaults\n\n")
		buf.WriteString("```json\n")
		out, _ := json.MarshalIndent(example, "", "  ")
		buf.Write(out)
		buf.WriteString("\n```\n\n")
	}
}

func (g *MarkdownGenerator) writeSignals(buf *strings.Builder, c *object.Class) {
	buf.WriteString("## Signals\n\n")
	signals := c.ListSignals()
	if len(signals) == 0 {
		buf.WriteString("No signals defined.\n\n")
		return
	}

	for _, s := range signals {
		params := make([]string, 0, len(s.ParamTypes()))
		for _, p := range s.ParamTypes() {
			params = append(params, g.reg.Name(p))
		}
		ret := "void"
		if s.ReturnType() != object.TypeNone {
			ret = g.reg.Name(s.ReturnType())
		}

		fmt.Fprintf(buf, "### %s\n\n", s.Name())
		fmt.Fprintf(buf, "```\n%s %s(%s)\n```\n\n", ret, s.Name(), strings.Join(params, ", "))
		fmt.Fprintf(buf, "- **Flags:** %s\n", s.Flags().String())
		fmt.Fprintf(buf, "- **Defined in:** %s\n", g.link(s.Owner()))
		if s.HasAccumulator() {
			buf.WriteString("- **Accumulated:** yes\n")
		}
		buf.WriteString("\n")
	}
}

// link renders a type name, linking registered non-fundamental types
func (g *MarkdownGenerator) link(t object.Type) string {
	name := g.reg.Name(t)
	if t.IsFundamental() {
		return "`" + name + "`"
	}
	return fmt.Sprintf("[%s](%s)", name, PageName(name))
}

func (g *MarkdownGenerator) describe(name string) string {
	if g.config.Describe == nil {
		return ""
	}
	return g.config.Describe(name)
}

func (g *MarkdownGenerator) source(name string) string {
	if g.config.Source == nil {
		return ""
	}
	return g.config.Source(name)
}

// hierarchy returns the ancestry of c from the root down
func hierarchy(c *object.Class) []string {
	var chain []string
	for p := c; p != nil; p = p.Parent() {
		chain = append([]string{p.Name()}, chain...)
	}
	return chain
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
