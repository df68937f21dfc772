package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Level is the severity of a message
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

// Message is a problem report with optional suggestions and follow-up
// commands, for example:
//
//	✗ TYPE NOT FOUND: Widgt
//	   no type named 'Widgt' is registered
//
//	   Did you mean: Widget?
//
//	   → objrt types
type Message struct {
	Level       Level
	Title       string
	Subject     string
	Detail      []string
	Suggestions []string
	Commands    []string
	NoColor     bool
}

// Format renders m
func (m Message) Format() string {
	var head, body *color.Color
	var symbol string
	switch m.Level {
	case LevelWarning:
		head, body, symbol = color.New(color.FgYellow, color.Bold), color.New(color.FgYellow), "!"
	case LevelInfo:
		head, body, symbol = color.New(color.FgCyan, color.Bold), color.New(color.FgCyan), "i"
	default:
		head, body, symbol = color.New(color.FgRed, color.Bold), color.New(color.FgRed), "✗"
	}
	hint := color.New(color.FgYellow)
	cmd := color.New(color.FgCyan)
	if m.NoColor {
		for _, c := range []*color.Color{head, body, hint, cmd} {
			c.DisableColor()
		}
	}

	var b strings.Builder
	switch {
	case m.Title != "" && m.Subject != "":
		head.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(m.Title), m.Subject)
	case m.Title != "":
		head.Fprintf(&b, "%s %s\n", symbol, strings.ToUpper(m.Title))
	default:
		head.Fprintf(&b, "%s %s\n", symbol, m.Subject)
	}
	for _, line := range m.Detail {
		body.Fprintf(&b, "   %s\n", line)
	}
	if len(m.Suggestions) > 0 {
		b.WriteString("\n")
		hint.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(m.Suggestions, ", "))
	}
	if len(m.Commands) > 0 {
		b.WriteString("\n")
		for _, c := range m.Commands {
			cmd.Fprintf(&b, "   → %s\n", c)
		}
	}
	return b.String()
}

// Write renders m to w
func (m Message) Write(w io.Writer) {
	fmt.Fprint(w, m.Format())
}

// Success writes a green check line
func Success(w io.Writer, noColor bool, format string, args ...any) {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	green.Fprintf(w, "✓ %s\n", fmt.Sprintf(format, args...))
}

// TypeNotFound reports an unknown type name with close matches among known
func TypeNotFound(name string, known []string, noColor bool) Message {
	return Message{
		Level:       LevelError,
		Title:       "type not found",
		Subject:     name,
		Detail:      []string{fmt.Sprintf("no type named '%s' is registered", name)},
		Suggestions: FindSimilar(name, known, 3, 3),
		Commands:    []string{"List types: objrt types"},
		NoColor:     noColor,
	}
}
