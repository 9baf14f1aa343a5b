package volume

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProvisionsDirectory(t *testing.T) {
	svc, err := New(t.TempDir())
	require.NoError(t, err)

	path, err := svc.Create(42)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDeleteRemovesDirectoryAndContents(t *testing.T) {
	svc, err := New(t.TempDir())
	require.NoError(t, err)

	path, err := svc.Create(7)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(path, "data.db"), []byte("x"), 0600))

	require.NoError(t, svc.Delete(7))
	assert.False(t, svc.Exists(7))
}

func TestDeleteNonexistentIsNotAnError(t *testing.T) {
	svc, err := New(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, svc.Delete(999))
}

func TestPathIsStablePerInstance(t *testing.T) {
	svc, err := New(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, svc.Path(5), svc.Path(5))
	assert.NotEqual(t, svc.Path(5), svc.Path(6))
}
