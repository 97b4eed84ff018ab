package diagnostic

import (
	"regexp"
	"strconv"
	"strings"

	"mend/internal/logging"
)

// Compile diagnostic: /path/to/file.cpp:10:5: error: message
// "fatal error" is folded into plain error severity.
var compileLinePattern = regexp.MustCompile(`^([^:\n]+):(\d+):(\d+):\s+(?:fatal\s+)?(error|warning|note):\s+(.+)$`)

// Linker diagnostic, both classic ld and modern ld/lld spellings:
//
//	undefined reference to `Symbol'
//	ld: error: undefined symbol: Symbol
var linkerLinePattern = regexp.MustCompile("(?:undefined reference to|undefined symbol:)\\s+[`'\"]?([^'`\"\n]+)")

// Parse turns raw combined stdout/stderr of a build step into an ordered
// diagnostic sequence. Order follows the toolchain output, since later
// messages may reference earlier context ("in file included from ...").
//
// Lines matching neither family are dropped; they are typically banner or
// source-context text. If nothing is recognized despite a non-zero exit code,
// a single unrecognized diagnostic carrying the full raw output is returned
// so the caller can still report and terminate.
func Parse(output string, exitCode int) []Diagnostic {
	var diags []Diagnostic

	for _, line := range strings.Split(output, "\n") {
		if m := compileLinePattern.FindStringSubmatch(line); m != nil {
			lineNo, _ := strconv.Atoi(m[2])
			colNo, _ := strconv.Atoi(m[3])
			diags = append(diags, Diagnostic{
				File:     m[1],
				Line:     lineNo,
				Column:   colNo,
				Severity: Severity(m[4]),
				Message:  m[5],
				Kind:     KindCompile,
			})
			continue
		}

		if m := linkerLinePattern.FindStringSubmatch(line); m != nil {
			// Duplicates (one per referencing translation unit) are
			// kept; selection happens in the classifier.
			diags = append(diags, Diagnostic{
				Severity:   SeverityError,
				Message:    strings.TrimSpace(line),
				Kind:       KindLinker,
				SymbolName: cleanSymbol(m[1]),
			})
		}
	}

	if len(diags) == 0 && exitCode != 0 {
		logging.Parse("no diagnostics recognized in %d bytes of failing output", len(output))
		return []Diagnostic{{
			Severity: SeverityError,
			Message:  output,
			Kind:     KindUnrecognized,
		}}
	}

	logging.ParseDebug("parsed %d diagnostics (exit code %d)", len(diags), exitCode)
	return diags
}

// cleanSymbol strips an argument list and surrounding quote characters from a
// linker symbol token, leaving the loose name used for project search.
func cleanSymbol(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "("); i >= 0 {
		s = s[:i]
	}
	return strings.Trim(strings.TrimSpace(s), "`'\"")
}
