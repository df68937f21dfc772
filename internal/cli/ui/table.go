// Package ui renders command output: aligned tables, key/value blocks and
// colored status messages.
package ui

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Table renders rows under a header, columns padded to the widest cell
type Table struct {
	w       io.Writer
	headers []string
	rows    [][]string
	noColor bool
}

// NewTable creates a table writing to w
func NewTable(w io.Writer, noColor bool, headers ...string) *Table {
	return &Table{w: w, headers: headers, noColor: noColor}
}

// AddRow appends a row. Missing cells render empty, extra cells are dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	copy(row, cells)
	t.rows = append(t.rows, row)
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the table
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(cell))
		}
	}

	head := t.color(color.Bold, color.FgCyan)
	rule := t.color(color.FgHiBlack)

	cells := make([]string, len(t.headers))
	for i, h := range t.headers {
		cells[i] = head.Sprint(pad(h, widths[i]))
	}
	t.line(cells)

	for i, width := range widths {
		cells[i] = rule.Sprint(strings.Repeat("─", width))
	}
	t.line(cells)

	for _, row := range t.rows {
		for i, cell := range row {
			cells[i] = pad(cell, widths[i])
		}
		t.line(cells)
	}
}

func (t *Table) line(cells []string) {
	fmt.Fprintln(t.w, strings.TrimRight(strings.Join(cells, "  "), " "))
}

func (t *Table) color(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if t.noColor {
		c.DisableColor()
	}
	return c
}

func pad(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

// KeyValue renders aligned "key: value" lines
type KeyValue struct {
	w       io.Writer
	keys    []string
	values  []string
	noColor bool
}

// NewKeyValue creates a key/value block writing to w
func NewKeyValue(w io.Writer, noColor bool) *KeyValue {
	return &KeyValue{w: w, noColor: noColor}
}

// Add appends a pair. Empty values are skipped.
func (kv *KeyValue) Add(key, value string) {
	if value == "" {
		return
	}
	kv.keys = append(kv.keys, key)
	kv.values = append(kv.values, value)
}

// Render writes the block
func (kv *KeyValue) Render() {
	width := 0
	for _, k := range kv.keys {
		width = max(width, utf8.RuneCountInString(k)+1)
	}
	c := color.New(color.FgCyan)
	if kv.noColor {
		c.DisableColor()
	}
	for i, k := range kv.keys {
		fmt.Fprintf(kv.w, "%s %s\n", c.Sprint(pad(k+":", width)), kv.values[i])
	}
}

// Header writes a bold title underlined to its width
func Header(w io.Writer, title string, noColor bool) {
	bold := color.New(color.Bold, color.FgCyan)
	rule := color.New(color.FgHiBlack)
	if noColor {
		bold.DisableColor()
		rule.DisableColor()
	}
	bold.Fprintln(w, title)
	rule.Fprintln(w, strings.Repeat("─", utf8.RuneCountInString(title)))
}
