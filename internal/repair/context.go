// Package repair assembles the context for a repair request and negotiates
// the patch contract with the reasoning service: minimal but sufficient
// source context in, one complete replacement file out.
package repair

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"mend/internal/config"
	"mend/internal/diagnostic"
	"mend/internal/logging"
	"mend/internal/symbols"
)

// Excerpt is one related source file handed to the reasoning service.
type Excerpt struct {
	Path    string
	Content string
}

// Context is the bundle sent to the reasoning service for one repair.
type Context struct {
	// TargetFile is the file whose content will be replaced.
	TargetFile string

	// OriginalContent is the full current text of TargetFile.
	OriginalContent string

	// RelatedExcerpts are headers/declarations relevant to the diagnostic,
	// in include order, bounded in combined size. Never contains
	// TargetFile itself.
	RelatedExcerpts []Excerpt

	// Diagnostic is the triggering diagnostic.
	Diagnostic diagnostic.Diagnostic

	// SymbolHint is present only for linker errors.
	SymbolHint *symbols.Reference
}

// Matches local includes: #include "../include/matrix.hpp"
var includePattern = regexp.MustCompile(`#include\s+"([^"]+)"`)

// Builder produces repair contexts from classified diagnostics.
type Builder struct {
	projectRoot  string
	fallbackFile string
	budget       int
	index        *symbols.Index
}

// NewBuilder creates a context builder for a project. The index is consulted
// for linker errors only.
func NewBuilder(projectRoot string, cfg config.RepairConfig, index *symbols.Index) *Builder {
	return &Builder{
		projectRoot:  projectRoot,
		fallbackFile: cfg.FallbackImplementationFile,
		budget:       cfg.ContextBudget,
		index:        index,
	}
}

// Build assembles the repair context for the selected diagnostic.
func (b *Builder) Build(d diagnostic.Diagnostic) (*Context, error) {
	switch d.Kind {
	case diagnostic.KindCompile:
		return b.buildCompile(d)
	case diagnostic.KindLinker:
		return b.buildLinker(d)
	default:
		return nil, fmt.Errorf("no context can be built for %s diagnostics", d.Kind)
	}
}

// buildCompile targets the diagnostic's own file and attaches the headers it
// directly includes, in include order.
func (b *Builder) buildCompile(d diagnostic.Diagnostic) (*Context, error) {
	target := b.absolute(d.File)
	content, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("cannot read offending file %s: %w", target, err)
	}

	rc := &Context{
		TargetFile:      target,
		OriginalContent: string(content),
		Diagnostic:      d,
	}

	for _, inc := range includePattern.FindAllStringSubmatch(rc.OriginalContent, -1) {
		path := b.resolveInclude(target, inc[1])
		if path == "" {
			continue
		}
		rc.addExcerpt(path, b.budget)
	}

	logging.Repair("compile context for %s: %d excerpts", target, len(rc.RelatedExcerpts))
	return rc, nil
}

// buildLinker targets the file holding the symbol's declaration: the fix is
// to add a definition, typically colocated with or near the declaration.
// With no declaration found, the designated implementation file is targeted
// instead and, when present, CMakeLists.txt is attached — an unresolved
// symbol can also mean a library missing from the link line.
func (b *Builder) buildLinker(d diagnostic.Diagnostic) (*Context, error) {
	ref, err := b.index.Resolve(d.SymbolName)
	if err != nil {
		return nil, err
	}

	target := b.absolute(b.fallbackFile)
	if ref.DeclaringFile != "" {
		target = ref.DeclaringFile
	}

	rc := &Context{
		TargetFile: target,
		Diagnostic: d,
		SymbolHint: &ref,
	}

	content, err := os.ReadFile(target)
	if err == nil {
		rc.OriginalContent = string(content)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("cannot read target file %s: %w", target, err)
	}
	// A missing fallback file is tolerated: the service creates it whole.

	if ref.DeclaringFile != "" && ref.DeclaringFile != target {
		rc.addExcerpt(ref.DeclaringFile, b.budget)
	}
	// Near-miss mentions (partial or misspelled definitions) help the
	// service place the new definition next to related code.
	for _, m := range ref.Mentions {
		rc.addExcerpt(m, b.budget)
	}

	if len(ref.Mentions) == 0 {
		if cml := filepath.Join(b.projectRoot, "CMakeLists.txt"); fileExists(cml) {
			rc.addExcerpt(cml, b.budget)
		}
	}

	logging.Repair("linker context for %q: target=%s excerpts=%d declared=%v defined=%v",
		d.SymbolName, target, len(rc.RelatedExcerpts), ref.DeclaringFile != "", ref.HasDefinition)
	return rc, nil
}

// addExcerpt appends the file at path unless it is the target, already
// present, unreadable, or over the remaining budget.
func (rc *Context) addExcerpt(path string, budget int) {
	if path == rc.TargetFile {
		return
	}
	for _, e := range rc.RelatedExcerpts {
		if e.Path == path {
			return
		}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		logging.RepairDebug("skipping unreadable excerpt %s: %v", path, err)
		return
	}
	used := 0
	for _, e := range rc.RelatedExcerpts {
		used += len(e.Content)
	}
	if used+len(content) > budget {
		logging.RepairDebug("excerpt %s (%d bytes) over budget (%d/%d used)", path, len(content), used, budget)
		return
	}
	rc.RelatedExcerpts = append(rc.RelatedExcerpts, Excerpt{Path: path, Content: string(content)})
}

// resolveInclude resolves an #include "…" path the way a compiler's quoted
// lookup starts: relative to the including file's directory, then relative to
// the project root.
func (b *Builder) resolveInclude(from, include string) string {
	candidate := filepath.Clean(filepath.Join(filepath.Dir(from), include))
	if fileExists(candidate) {
		return candidate
	}
	candidate = filepath.Clean(filepath.Join(b.projectRoot, include))
	if fileExists(candidate) {
		return candidate
	}
	return ""
}

func (b *Builder) absolute(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(b.projectRoot, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
