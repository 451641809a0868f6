// Package diag collects source-level problems reported by the lowering
// passes. Lowering does not stop at the first problem: diagnostics
// accumulate in a Bag and any error-severity entry marks the unit as
// failed once the pass finishes.
package diag

import (
	"fmt"
	"strings"
)

// Severity ranks a diagnostic.
type Severity int

const (
	Error Severity = iota
	Warning
	Info
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	default:
		return "unknown"
	}
}

// A Diagnostic is a single problem anchored to a position in a unit.
// Subject carries the qualified name of the declaration the problem is
// attached to, so callers can group problems per declaration.
type Diagnostic struct {
	Severity Severity
	Message  string
	File     string
	Line     int
	Col      int
	Subject  string
	Hint     string
}

// Bag accumulates diagnostics across both lowering passes.
type Bag struct {
	items []Diagnostic
}

func NewBag() *Bag {
	return &Bag{items: make([]Diagnostic, 0)}
}

// Errorf records an error with a formatted message.
func (b *Bag) Errorf(file string, line, col int, subject, format string, args ...any) {
	b.items = append(b.items, Diagnostic{
		Severity: Error,
		Message:  fmt.Sprintf(format, args...),
		File:     file,
		Line:     line,
		Col:      col,
		Subject:  subject,
	})
}

// ErrorWithHint records an error carrying a suggestion line.
func (b *Bag) ErrorWithHint(file string, line, col int, subject, msg, hint string) {
	b.items = append(b.items, Diagnostic{
		Severity: Error,
		Message:  msg,
		File:     file,
		Line:     line,
		Col:      col,
		Subject:  subject,
		Hint:     hint,
	})
}

// Warningf records a warning with a formatted message.
func (b *Bag) Warningf(file string, line, col int, subject, format string, args ...any) {
	b.items = append(b.items, Diagnostic{
		Severity: Warning,
		Message:  fmt.Sprintf(format, args...),
		File:     file,
		Line:     line,
		Col:      col,
		Subject:  subject,
	})
}

// Infof records an informational note.
func (b *Bag) Infof(file string, line, col int, subject, format string, args ...any) {
	b.items = append(b.items, Diagnostic{
		Severity: Info,
		Message:  fmt.Sprintf(format, args...),
		File:     file,
		Line:     line,
		Col:      col,
		Subject:  subject,
	})
}

// HasErrors reports whether any error-severity diagnostic was recorded.
func (b *Bag) HasErrors() bool {
	for _, it := range b.items {
		if it.Severity == Error {
			return true
		}
	}
	return false
}

// ErrorCount returns the number of error-severity diagnostics.
func (b *Bag) ErrorCount() int {
	n := 0
	for _, it := range b.items {
		if it.Severity == Error {
			n++
		}
	}
	return n
}

// All returns every recorded diagnostic in insertion order.
func (b *Bag) All() []Diagnostic {
	return b.items
}

// Count returns the total number of diagnostics.
func (b *Bag) Count() int {
	return len(b.items)
}

// BySubject returns the diagnostics attached to one declaration.
func (b *Bag) BySubject(subject string) []Diagnostic {
	var out []Diagnostic
	for _, it := range b.items {
		if it.Subject == subject {
			out = append(out, it)
		}
	}
	return out
}

// Format renders all diagnostics, one per line:
//
//	error[main.kiln:3:10]: class must be final
//	  hint: remove the 'open' modifier
func (b *Bag) Format() string {
	if len(b.items) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, it := range b.items {
		fmt.Fprintf(&sb, "%s[%s:%d:%d]: %s", it.Severity, it.File, it.Line, it.Col, it.Message)
		if it.Hint != "" {
			fmt.Fprintf(&sb, "\n  hint: %s", it.Hint)
		}
		if i < len(b.items)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Clear drops all recorded diagnostics.
func (b *Bag) Clear() {
	b.items = b.items[:0]
}
