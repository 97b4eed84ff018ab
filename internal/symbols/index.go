// Package symbols resolves a symbol name to its declaration and definition
// sites by scanning project source text. This is a heuristic, not a
// compiler-accurate resolver: no name mangling, no AST. It can miss
// definitions written in unconventional styles and can collide on names
// reused across unrelated scopes; callers must treat a missing definition as
// "not found by heuristic", not as ground truth.
package symbols

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"mend/internal/logging"
)

// Reference is the result of a symbol search.
type Reference struct {
	// SymbolName is the cleaned, human-readable symbol searched for.
	SymbolName string

	// DeclaringFile/DeclaringLine locate the first declaration found in
	// stable (lexicographic) traversal order. Empty when none was found.
	DeclaringFile string
	DeclaringLine int

	// HasDefinition is true when any scanned file defines (not merely
	// declares) the symbol.
	HasDefinition bool

	// DefiningFile is the first file containing a definition, when any.
	DefiningFile string

	// Mentions lists every scanned file containing the symbol token, in
	// traversal order. Context building uses these as near-miss hints.
	Mentions []string
}

type scannedFile struct {
	path    string
	content string
}

// Index scans a project tree for symbol declarations and definitions.
//
// The scan result is cached for the duration of one controller run and must
// be invalidated after any patch is applied: a write changes line numbers and
// possibly match results project-wide.
type Index struct {
	root    string
	exts    map[string]bool
	exclude map[string]bool

	mu       sync.Mutex
	files    []scannedFile        // nil until first scan
	resolved map[string]Reference // memoized lookups for this snapshot
}

// New creates an index over root. Only files with one of the given extensions
// are scanned; directories named in exclude are skipped entirely.
func New(root string, extensions, exclude []string) *Index {
	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		exts[e] = true
	}
	excl := make(map[string]bool, len(exclude))
	for _, d := range exclude {
		excl[d] = true
	}
	return &Index{
		root:     root,
		exts:     exts,
		exclude:  excl,
		resolved: make(map[string]Reference),
	}
}

// Invalidate discards the cached scan. The next Resolve rebuilds it from disk.
func (ix *Index) Invalidate() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.files = nil
	ix.resolved = make(map[string]Reference)
	logging.SymbolsDebug("index invalidated for %s", ix.root)
}

// Resolve searches the project for symbol and reports where it is declared
// and whether any translation unit defines it.
func (ix *Index) Resolve(symbol string) (Reference, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ref, ok := ix.resolved[symbol]; ok {
		return ref, nil
	}

	if ix.files == nil {
		if err := ix.scanLocked(); err != nil {
			return Reference{}, err
		}
	}

	ref := ix.searchLocked(symbol)
	ix.resolved[symbol] = ref
	logging.Symbols("resolved %q: declared=%s:%d defined=%v (%d mentions)",
		symbol, ref.DeclaringFile, ref.DeclaringLine, ref.HasDefinition, len(ref.Mentions))
	return ref, nil
}

// scanLocked reads every project source file into the snapshot.
// filepath.WalkDir yields lexical order, which keeps declaration reporting
// stable across runs.
func (ix *Index) scanLocked() error {
	var files []scannedFile

	err := filepath.WalkDir(ix.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if ix.exclude[d.Name()] && path != ix.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !ix.exts[filepath.Ext(path)] {
			return nil
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			// Unreadable source is skipped, not fatal: the scan is
			// a best-effort heuristic.
			logging.SymbolsDebug("skipping unreadable %s: %v", path, readErr)
			return nil
		}
		files = append(files, scannedFile{path: path, content: string(content)})
		return nil
	})
	if err != nil {
		return fmt.Errorf("project scan failed: %w", err)
	}

	ix.files = files
	logging.SymbolsDebug("scanned %d source files under %s", len(files), ix.root)
	return nil
}

func (ix *Index) searchLocked(symbol string) Reference {
	ref := Reference{SymbolName: symbol}
	token := matchToken(symbol)
	pattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(token) + `\b`)

	for _, f := range ix.files {
		locs := pattern.FindAllStringIndex(f.content, -1)
		if locs == nil {
			continue
		}
		ref.Mentions = append(ref.Mentions, f.path)

		for _, loc := range locs {
			switch classifyMatch(f.content, loc[1]) {
			case matchDeclaration:
				if ref.DeclaringFile == "" {
					ref.DeclaringFile = f.path
					ref.DeclaringLine = 1 + strings.Count(f.content[:loc[0]], "\n")
				}
			case matchDefinition:
				ref.HasDefinition = true
				if ref.DefiningFile == "" {
					ref.DefiningFile = f.path
				}
			}
		}
	}

	return ref
}

// matchToken reduces a possibly qualified symbol to the token searched for as
// a whole word. Declarations inside a class body spell only the unqualified
// name, so the last :: segment is what appears in source.
func matchToken(symbol string) string {
	if i := strings.LastIndex(symbol, "::"); i >= 0 {
		return symbol[i+2:]
	}
	return symbol
}

type matchKind int

const (
	matchMention matchKind = iota
	matchDeclaration
	matchDefinition
)

// classifyMatch decides whether the token occurrence ending at pos looks like
// a function declaration or definition. A signature followed by a terminator
// before any body opener is a declaration; a body opener first is a
// definition. Anything else (a call site, a comment) is a mere mention.
func classifyMatch(content string, pos int) matchKind {
	rest := content[pos:]

	// A signature starts with an argument list right after the name.
	trimmed := strings.TrimLeft(rest, " \t")
	if !strings.HasPrefix(trimmed, "(") {
		return matchMention
	}

	// Walk past the argument list, then look for ';' vs '{'. Bounded so a
	// truncated file cannot stall the scan.
	depth := 0
	for i, r := range trimmed {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				tail := trimmed[i+1:]
				return classifyTail(tail)
			}
		case '\n':
			// Argument lists may span lines; keep walking.
		}
		if i > 4096 {
			break
		}
	}
	return matchMention
}

// classifyTail inspects what follows a closing argument parenthesis.
// Qualifiers like const/noexcept/override may precede the terminator; any
// operator or further punctuation means the match was an expression, not a
// signature.
func classifyTail(tail string) matchKind {
	for _, r := range tail {
		switch {
		case r == ';':
			return matchDeclaration
		case r == '{':
			return matchDefinition
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			continue
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			// Qualifier keyword characters.
			continue
		default:
			return matchMention
		}
	}
	return matchMention
}
