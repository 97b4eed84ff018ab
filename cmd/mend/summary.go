package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"mend/internal/loop"
	"mend/internal/symbols"
)

// Semantic colors for the terminal report.
var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#9e9e9e"))
	headerStyle  = lipgloss.NewStyle().Bold(true)
)

// renderSummary formats a finished run as a per-attempt report.
func renderSummary(result *loop.Result) string {
	var sb strings.Builder

	sb.WriteString(headerStyle.Render("Repair run " + result.RunID))
	sb.WriteString("\n")

	for _, a := range result.Attempts {
		sb.WriteString(renderAttempt(a))
	}

	switch result.Outcome {
	case loop.OutcomeSucceeded:
		sb.WriteString(successStyle.Render("✓ build succeeded"))
	case loop.OutcomeExhausted:
		sb.WriteString(failStyle.Render("✗ attempt budget exhausted, build still failing"))
	default:
		sb.WriteString(failStyle.Render("✗ aborted"))
	}
	sb.WriteString("\n")
	return sb.String()
}

func renderAttempt(a loop.Attempt) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "  %s ", dimStyle.Render(fmt.Sprintf("[%d]", a.Index)))
	switch {
	case a.BuildSucceeded:
		sb.WriteString(successStyle.Render("build ok"))
	case a.Selected != nil:
		fmt.Fprintf(&sb, "%s %s", warnStyle.Render(string(a.Selected.Kind)), firstLine(a.Selected.String()))
	default:
		sb.WriteString(warnStyle.Render("build failed"))
	}
	sb.WriteString("\n")

	if a.PatchedFile != "" {
		fmt.Fprintf(&sb, "      patched %s\n", a.PatchedFile)
	}
	if a.Failure != "" {
		fmt.Fprintf(&sb, "      %s\n", dimStyle.Render(firstLine(a.Failure)))
	}
	return sb.String()
}

// renderReference formats a standalone symbol lookup. Paths are shown relative
// to the project root when possible.
func renderReference(root string, ref symbols.Reference) string {
	var sb strings.Builder

	sb.WriteString(headerStyle.Render("Symbol " + ref.SymbolName))
	sb.WriteString("\n")

	if ref.DeclaringFile == "" {
		sb.WriteString(warnStyle.Render("  no declaration found in project sources"))
		sb.WriteString("\n")
	} else {
		fmt.Fprintf(&sb, "  declared at %s:%d\n", relPath(root, ref.DeclaringFile), ref.DeclaringLine)
	}

	if ref.HasDefinition {
		fmt.Fprintf(&sb, "  %s %s\n", successStyle.Render("defined in"), relPath(root, ref.DefiningFile))
	} else {
		sb.WriteString(failStyle.Render("  no definition found"))
		sb.WriteString("\n")
	}

	for _, m := range ref.Mentions {
		fmt.Fprintf(&sb, "  %s\n", dimStyle.Render("mentioned in "+relPath(root, m)))
	}
	return sb.String()
}

func relPath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
