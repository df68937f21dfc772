package typedef

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/objrt/runtime/object"
)

// ValidationError describes one problem in a definition document
type ValidationError struct {
	Source  string
	Type    string
	Member  string
	Message string
	Hint    string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	var b strings.Builder

	if e.Source != "" {
		b.WriteString(e.Source)
		b.WriteString(": ")
	}

	if e.Type != "" {
		b.WriteString(e.Type)
		if e.Member != "" {
			b.WriteString(".")
			b.WriteString(e.Member)
		}
		b.WriteString(": ")
	}

	b.WriteString(e.Message)

	if e.Hint != "" {
		b.WriteString("\n  hint: ")
		b.WriteString(e.Hint)
	}

	return b.String()
}

// ValidationErrors collects every problem found in a document. It matches
// object.ErrInvalidDefinition under errors.Is.
type ValidationErrors []*ValidationError

// Error implements the error interface
func (errs ValidationErrors) Error() string {
	if len(errs) == 1 {
		return "type definitions invalid: " + errs[0].Error()
	}
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = "  - " + err.Error()
	}
	return fmt.Sprintf("type definitions invalid with %d errors:\n%s", len(errs), strings.Join(msgs, "\n"))
}

func (errs ValidationErrors) Unwrap() error {
	return object.ErrInvalidDefinition
}

type collector struct {
	doc  *Document
	errs ValidationErrors
}

func (c *collector) add(typ, member, hint, format string, args ...any) {
	c.errs = append(c.errs, &ValidationError{
		Source:  c.doc.Source(typ),
		Type:    typ,
		Member:  member,
		Message: fmt.Sprintf(format, args...),
		Hint:    hint,
	})
}

func (c *collector) err() error {
	if len(c.errs) == 0 {
		return nil
	}
	return c.errs
}
