//go:build unix

package file_tracker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFileID_StableForSameFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(p, []byte("line1\n"), 0644))

	id1, err := GetFileIDFromPath(p)
	require.NoError(t, err)

	// appending keeps the identity
	f, err := os.OpenFile(p, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("line2\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	id2, err := GetFileIDFromPath(p)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	// truncation in place keeps the identity as well
	require.NoError(t, os.Truncate(p, 0))
	id3, err := GetFileIDFromPath(p)
	require.NoError(t, err)
	assert.Equal(t, id1, id3)
}

func TestGetFileID_ChangesOnReplace(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(p, []byte("old\n"), 0644))
	before, err := GetFileIDFromPath(p)
	require.NoError(t, err)

	// logrotate "create": move the file aside and create a new one under the same name
	require.NoError(t, os.Rename(p, filepath.Join(dir, "app.log.1")))
	require.NoError(t, os.WriteFile(p, []byte("new\n"), 0644))

	after, err := GetFileIDFromPath(p)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
	assert.Contains(t, after.String(), "ino:")
}

func TestGetFileID_Unavailable(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "mem.log", []byte("x"), 0644))
	info, err := fs.Stat("mem.log")
	require.NoError(t, err)

	_, err = GetFileID(info)
	assert.True(t, IsFileIDUnavailable(err))

	_, err = GetFileID(nil)
	assert.ErrorIs(t, err, ErrFileIDUnavailable)
}

func TestGetFileIDFromPath_Missing(t *testing.T) {
	_, err := GetFileIDFromPath(filepath.Join(t.TempDir(), "missing.log"))
	assert.True(t, os.IsNotExist(err))
}
