package repair

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mend/internal/config"
	"mend/internal/diagnostic"
	"mend/internal/symbols"
)

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func newTestBuilder(root string, budget int) *Builder {
	cfg := config.DefaultConfig().Repair
	if budget > 0 {
		cfg.ContextBudget = budget
	}
	index := symbols.New(root, cfg.SourceExtensions, cfg.ExcludeDirs)
	return NewBuilder(root, cfg, index)
}

func TestBuild_CompileError(t *testing.T) {
	root := writeProject(t, map[string]string{
		"include/matrix.hpp": "class Matrix {};\n",
		"src/utils.cpp":      "#include \"../include/matrix.hpp\"\n\nvoid broken() { }\n",
	})

	rc, err := newTestBuilder(root, 0).Build(diagnostic.Diagnostic{
		Kind:     diagnostic.KindCompile,
		Severity: diagnostic.SeverityError,
		File:     "src/utils.cpp",
		Line:     3,
		Message:  "expected ';'",
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "src/utils.cpp"), rc.TargetFile)
	assert.Contains(t, rc.OriginalContent, "void broken()")
	require.Len(t, rc.RelatedExcerpts, 1)
	assert.Equal(t, filepath.Join(root, "include/matrix.hpp"), rc.RelatedExcerpts[0].Path)
	assert.Nil(t, rc.SymbolHint)
}

func TestBuild_CompileError_DedupAndSelfExclusion(t *testing.T) {
	root := writeProject(t, map[string]string{
		"a.hpp": "int one();\n",
		// The same header twice, plus a self-include, plus a missing one.
		"main.cpp": "#include \"a.hpp\"\n#include \"a.hpp\"\n#include \"main.cpp\"\n#include \"gone.hpp\"\nint main() {}\n",
	})

	rc, err := newTestBuilder(root, 0).Build(diagnostic.Diagnostic{
		Kind: diagnostic.KindCompile, Severity: diagnostic.SeverityError,
		File: "main.cpp", Line: 5, Message: "x",
	})
	require.NoError(t, err)

	require.Len(t, rc.RelatedExcerpts, 1, "duplicates, self, and missing includes are excluded")
	assert.Equal(t, filepath.Join(root, "a.hpp"), rc.RelatedExcerpts[0].Path)
}

func TestBuild_CompileError_BudgetTruncation(t *testing.T) {
	big := make([]byte, 600)
	for i := range big {
		big[i] = 'x'
	}
	root := writeProject(t, map[string]string{
		"small.hpp": "int s();\n",
		"big.hpp":   string(big),
		"main.cpp":  "#include \"small.hpp\"\n#include \"big.hpp\"\nint main() {}\n",
	})

	rc, err := newTestBuilder(root, 100).Build(diagnostic.Diagnostic{
		Kind: diagnostic.KindCompile, Severity: diagnostic.SeverityError,
		File: "main.cpp", Line: 3, Message: "x",
	})
	require.NoError(t, err)

	// small.hpp fits the 100-byte budget, big.hpp does not.
	require.Len(t, rc.RelatedExcerpts, 1)
	assert.Equal(t, filepath.Join(root, "small.hpp"), rc.RelatedExcerpts[0].Path)
}

func TestBuild_LinkerError_TargetsDeclarationFile(t *testing.T) {
	root := writeProject(t, map[string]string{
		"include/matrix.hpp": "void specializedSolver(int m);\n",
		"src/main.cpp":       "#include \"../include/matrix.hpp\"\nint main() { return 0; }\n",
	})

	rc, err := newTestBuilder(root, 0).Build(diagnostic.Diagnostic{
		Kind:       diagnostic.KindLinker,
		Severity:   diagnostic.SeverityError,
		Message:    "undefined reference to `specializedSolver(int)'",
		SymbolName: "specializedSolver",
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "include/matrix.hpp"), rc.TargetFile)
	require.NotNil(t, rc.SymbolHint)
	assert.False(t, rc.SymbolHint.HasDefinition)

	for _, e := range rc.RelatedExcerpts {
		assert.NotEqual(t, rc.TargetFile, e.Path, "target must never appear in excerpts")
	}
}

func TestBuild_LinkerError_FallbackWithCMakeLists(t *testing.T) {
	root := writeProject(t, map[string]string{
		"CMakeLists.txt": "add_executable(app src/main.cpp)\n",
		"src/main.cpp":   "int main() { return 0; }\n",
		"src/utils.cpp":  "// implementation file\n",
	})

	rc, err := newTestBuilder(root, 0).Build(diagnostic.Diagnostic{
		Kind:       diagnostic.KindLinker,
		Severity:   diagnostic.SeverityError,
		Message:    "undefined reference to `pthread_create'",
		SymbolName: "pthread_create",
	})
	require.NoError(t, err)

	// No declaration anywhere: fall back to the implementation file and
	// hand over the build definition, the miss may be a missing library.
	assert.Equal(t, filepath.Join(root, "src/utils.cpp"), rc.TargetFile)
	require.Len(t, rc.RelatedExcerpts, 1)
	assert.Equal(t, filepath.Join(root, "CMakeLists.txt"), rc.RelatedExcerpts[0].Path)
}

func TestBuild_UnrecognizedDiagnosticRejected(t *testing.T) {
	root := writeProject(t, map[string]string{"a.cpp": "int main() {}\n"})

	_, err := newTestBuilder(root, 0).Build(diagnostic.Diagnostic{
		Kind:     diagnostic.KindUnrecognized,
		Severity: diagnostic.SeverityError,
		Message:  "ninja: error",
	})
	assert.Error(t, err)
}
