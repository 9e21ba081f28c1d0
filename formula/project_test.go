package formula

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject_ReadFile(t *testing.T) {
	proj := &Project{
		DirFS: fstest.MapFS{
			"hello.txt": {Data: []byte("hello")},
		},
	}

	t.Run("existing file", func(t *testing.T) {
		got, err := proj.ReadFile("hello.txt")
		require.NoError(t, err)
		assert.Equal(t, "hello", string(got))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := proj.ReadFile("missing.txt")
		assert.True(t, errors.Is(err, fs.ErrNotExist))
	})
}

func TestProject_WriteFileKeepsMode(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "bootstrap")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"), 0o755))

	proj := NewProject(dir)
	require.NoError(t, proj.WriteFile("bootstrap", []byte("#!/bin/sh\nexit 0\n")))
	require.NoError(t, proj.WriteFile("src/new.c", []byte("int x;\n")))

	fi, err := os.Stat(script)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o755), fi.Mode().Perm())

	got, err := proj.ReadFile("src/new.c")
	require.NoError(t, err)
	assert.Equal(t, "int x;\n", string(got))

	require.NoError(t, proj.Remove("src/new.c"))
	path, err := proj.Path("src/new.c")
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestProject_StaysInTree(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "octave")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "keep.txt"), []byte("keep"), 0o644))
	proj := NewProject(dir)

	for _, name := range []string{"../escaped.txt", "src/../../escaped.txt", "/etc/passwd", "../keep.txt"} {
		t.Run(name, func(t *testing.T) {
			_, err := proj.Path(name)
			assert.ErrorIs(t, err, ErrOutsideTree)
			assert.ErrorIs(t, proj.WriteFile(name, []byte("x")), ErrOutsideTree)
			assert.ErrorIs(t, proj.Remove(name), ErrOutsideTree)
		})
	}
	assert.NoFileExists(t, filepath.Join(parent, "escaped.txt"))
	assert.FileExists(t, filepath.Join(parent, "keep.txt"))

	path, err := proj.Path("src/../configure.ac")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "configure.ac"), path)
}
