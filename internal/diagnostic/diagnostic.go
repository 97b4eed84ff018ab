// Package diagnostic turns raw toolchain output into structured diagnostics
// and selects the one to act on. Parsing is line-pattern based: GCC/Clang
// compile diagnostics (path:line:col: error: msg) and linker undefined-symbol
// lines are the two recognized families. Anything else is banner text.
package diagnostic

import "fmt"

// Severity is the reported level of a toolchain message.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityNote    Severity = "note"
)

// Kind classifies a diagnostic for repair purposes.
type Kind string

const (
	// KindCompile is a diagnostic tied to a specific file and line,
	// raised during translation.
	KindCompile Kind = "compile"

	// KindLinker is a diagnostic with no source location, naming an
	// unresolved symbol.
	KindLinker Kind = "linker"

	// KindUnrecognized is output the parser could not structure. The raw
	// text is preserved so the run can still report something meaningful.
	KindUnrecognized Kind = "unrecognized"
)

// Diagnostic is one parsed toolchain message.
//
// A linker diagnostic never carries File/Line/Column; it references a missing
// symbol, not a source location, and carries SymbolName instead.
type Diagnostic struct {
	File     string
	Line     int
	Column   int
	Severity Severity
	Message  string
	Kind     Kind

	// SymbolName is set only for linker diagnostics: the symbol the
	// undefined-reference message names, stripped of any argument list.
	SymbolName string
}

// String renders the diagnostic in the familiar compiler form.
func (d Diagnostic) String() string {
	switch d.Kind {
	case KindLinker:
		return fmt.Sprintf("undefined symbol: %s", d.SymbolName)
	case KindCompile:
		return fmt.Sprintf("%s:%d:%d: %s: %s", d.File, d.Line, d.Column, d.Severity, d.Message)
	default:
		return d.Message
	}
}
