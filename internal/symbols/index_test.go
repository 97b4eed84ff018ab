package symbols

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func newTestIndex(root string) *Index {
	return New(root,
		[]string{".cpp", ".hpp", ".h"},
		[]string{"build", ".git"},
	)
}

const headerWithDeclOnly = `#ifndef MATRIX_HPP
#define MATRIX_HPP

template <typename T>
class Matrix {
public:
    void add(const Matrix<T>& other);
};

void printMatrixInfo(const Matrix<int>& m);

// Declared but never defined anywhere.
void specializedSolver(const Matrix<float>& m);

#endif
`

const utilsWithDefinition = `#include "../include/matrix.hpp"
#include <iostream>

void printMatrixInfo(const Matrix<int>& m) {
    std::cout << "matrix" << std::endl;
}
`

func TestResolve_DeclaredNeverDefined(t *testing.T) {
	root := writeProject(t, map[string]string{
		"include/matrix.hpp": headerWithDeclOnly,
		"src/utils.cpp":      utilsWithDefinition,
	})

	ref, err := newTestIndex(root).Resolve("specializedSolver")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "include/matrix.hpp"), ref.DeclaringFile)
	assert.Equal(t, 13, ref.DeclaringLine)
	assert.False(t, ref.HasDefinition)
}

func TestResolve_DeclaredAndDefined(t *testing.T) {
	root := writeProject(t, map[string]string{
		"include/matrix.hpp": headerWithDeclOnly,
		"src/utils.cpp":      utilsWithDefinition,
	})

	ref, err := newTestIndex(root).Resolve("printMatrixInfo")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "include/matrix.hpp"), ref.DeclaringFile)
	assert.True(t, ref.HasDefinition)
	assert.Equal(t, filepath.Join(root, "src/utils.cpp"), ref.DefiningFile)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "include/matrix.hpp"),
		filepath.Join(root, "src/utils.cpp"),
	}, ref.Mentions)
}

func TestResolve_QualifiedSymbolMatchesUnqualifiedDeclaration(t *testing.T) {
	root := writeProject(t, map[string]string{
		"include/matrix.hpp": headerWithDeclOnly,
	})

	// Linker messages report qualified names; the class body spells only
	// the unqualified one.
	ref, err := newTestIndex(root).Resolve("Matrix::add")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "include/matrix.hpp"), ref.DeclaringFile)
}

func TestResolve_UnknownSymbol(t *testing.T) {
	root := writeProject(t, map[string]string{
		"include/matrix.hpp": headerWithDeclOnly,
	})

	ref, err := newTestIndex(root).Resolve("nonexistentThing")
	require.NoError(t, err)
	assert.Empty(t, ref.DeclaringFile)
	assert.False(t, ref.HasDefinition)
	assert.Empty(t, ref.Mentions)
}

func TestResolve_ExcludedDirsSkipped(t *testing.T) {
	root := writeProject(t, map[string]string{
		"build/generated.cpp": "void ghostSymbol() {}\n",
		"src/real.cpp":        "void realSymbol() {}\n",
	})
	ix := newTestIndex(root)

	ref, err := ix.Resolve("ghostSymbol")
	require.NoError(t, err)
	assert.False(t, ref.HasDefinition, "build/ output must not be scanned")

	ref, err = ix.Resolve("realSymbol")
	require.NoError(t, err)
	assert.True(t, ref.HasDefinition)
}

func TestInvalidate_PicksUpNewContent(t *testing.T) {
	root := writeProject(t, map[string]string{
		"include/matrix.hpp": headerWithDeclOnly,
	})
	ix := newTestIndex(root)

	ref, err := ix.Resolve("specializedSolver")
	require.NoError(t, err)
	require.False(t, ref.HasDefinition)

	// A patch lands a definition; without invalidation the cached scan
	// would keep reporting the stale result.
	impl := "#include \"../include/matrix.hpp\"\n\nvoid specializedSolver(const Matrix<float>& m) {\n}\n"
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "solver.cpp"), []byte(impl), 0o644))

	ref, err = ix.Resolve("specializedSolver")
	require.NoError(t, err)
	assert.False(t, ref.HasDefinition, "cached snapshot should not see the new file yet")

	ix.Invalidate()
	ref, err = ix.Resolve("specializedSolver")
	require.NoError(t, err)
	assert.True(t, ref.HasDefinition)
	assert.Equal(t, filepath.Join(root, "src", "solver.cpp"), ref.DefiningFile)
}
