package main

import (
	"strings"
	"testing"

	"mend/internal/diagnostic"
	"mend/internal/loop"
	"mend/internal/symbols"
)

func TestRenderSummary_Succeeded(t *testing.T) {
	d := diagnostic.Diagnostic{
		File: "src/utils.cpp", Line: 6, Column: 40,
		Severity: diagnostic.SeverityError,
		Message:  "'data' is a private member of 'Matrix'",
		Kind:     diagnostic.KindCompile,
	}
	result := &loop.Result{
		RunID:   "run-1",
		Outcome: loop.OutcomeSucceeded,
		Attempts: []loop.Attempt{
			{Index: 1, Selected: &d, PatchedFile: "src/utils.cpp"},
			{Index: 2, BuildSucceeded: true},
		},
	}

	out := renderSummary(result)
	for _, want := range []string{"run-1", "compile", "patched src/utils.cpp", "build ok", "build succeeded"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestRenderSummary_Exhausted(t *testing.T) {
	result := &loop.Result{
		RunID:   "run-2",
		Outcome: loop.OutcomeExhausted,
		Attempts: []loop.Attempt{
			{Index: 1, Failure: "reasoning service returned no usable code block"},
		},
	}

	out := renderSummary(result)
	if !strings.Contains(out, "attempt budget exhausted") {
		t.Errorf("missing exhausted marker:\n%s", out)
	}
	if !strings.Contains(out, "no usable code block") {
		t.Errorf("missing attempt failure:\n%s", out)
	}
}

func TestRenderReference(t *testing.T) {
	ref := symbols.Reference{
		SymbolName:    "specializedSolver",
		DeclaringFile: "/work/proj/include/matrix.hpp",
		DeclaringLine: 13,
		Mentions:      []string{"/work/proj/include/matrix.hpp"},
	}

	out := renderReference("/work/proj", ref)
	for _, want := range []string{"specializedSolver", "include/matrix.hpp:13", "no definition found"} {
		if !strings.Contains(out, want) {
			t.Errorf("reference report missing %q:\n%s", want, out)
		}
	}
}

func TestCommandRegistration(t *testing.T) {
	for _, name := range []string{"fix", "resolve", "version"} {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}
