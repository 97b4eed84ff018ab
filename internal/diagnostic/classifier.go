package diagnostic

import "mend/internal/logging"

// Select picks the single diagnostic to act on this iteration.
//
// Compile errors take priority: a compilation failure blocks everything
// downstream, including linking, and fixing the earliest error in the
// earliest-failing file is the change most likely to cascade-fix later ones.
// When no compile error exists the first linker error is chosen; failing
// that, the first unrecognized diagnostic. Returns false when the sequence
// contains nothing actionable (e.g. warnings only).
func Select(diags []Diagnostic) (Diagnostic, bool) {
	// First error-severity compile diagnostic. Output order means its file
	// is also the first distinct failing file.
	for _, d := range diags {
		if d.Kind == KindCompile && d.Severity == SeverityError {
			logging.Parse("selected compile error in %s:%d", d.File, d.Line)
			return d, true
		}
	}

	for _, d := range diags {
		if d.Kind == KindLinker {
			logging.Parse("selected linker error for symbol %q", d.SymbolName)
			return d, true
		}
	}

	for _, d := range diags {
		if d.Kind == KindUnrecognized {
			logging.Parse("selected unrecognized diagnostic (%d bytes)", len(d.Message))
			return d, true
		}
	}

	return Diagnostic{}, false
}
