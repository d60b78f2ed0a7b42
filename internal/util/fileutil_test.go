package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartFileCommit(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "report.csv")

	part, err := CreatePart(dst)
	require.NoError(t, err)
	_, err = part.Write([]byte("a,b\n"))
	require.NoError(t, err)

	assert.NoFileExists(t, dst)
	assert.FileExists(t, dst+PartSuffix)

	require.NoError(t, part.Commit())

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))
	assert.NoFileExists(t, dst+PartSuffix)
}

func TestPartFileAbort(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "report.csv")

	part, err := CreatePart(dst)
	require.NoError(t, err)
	_, err = part.Write([]byte("partial"))
	require.NoError(t, err)

	part.Abort()

	assert.NoFileExists(t, dst)
	assert.NoFileExists(t, dst+PartSuffix)
}

func TestCreatedRollbackKeepsExistingDirs(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "existing")
	require.NoError(t, os.Mkdir(existing, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(existing, "keep.txt"), []byte("x"), 0644))

	var created Created
	nested := filepath.Join(existing, "a", "b")
	require.NoError(t, created.MkdirAll(nested))
	file := filepath.Join(nested, "f.bin")
	require.NoError(t, os.WriteFile(file, []byte("data"), 0644))
	created.Add(file)

	created.Rollback()

	assert.NoDirExists(t, filepath.Join(existing, "a"))
	assert.FileExists(t, filepath.Join(existing, "keep.txt"))
}

func TestCreatedMkdirAllRejectsFile(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "f")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	var created Created
	assert.Error(t, created.MkdirAll(filepath.Join(file, "sub")))
}
