package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "", MaskToken(""))
	assert.Equal(t, "s...", MaskToken("short"))
	masked := MaskToken("1//0abcdefghijklmnop")
	assert.Equal(t, "1//0ab...op", masked)
	assert.NotContains(t, masked, "cdefghijklmn")
}

func TestMaskSensitiveQuery(t *testing.T) {
	assert.Equal(t, "", MaskSensitiveQuery(""))
	got := MaskSensitiveQuery("alt=sse&key=verysecretvalue1&x=1")
	assert.Contains(t, got, "alt=sse")
	assert.Contains(t, got, "x=1")
	assert.NotContains(t, got, "verysecretvalue1")
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "out.json")
	require.NoError(t, WriteFileAtomic(path, []byte(`{"a":1}`), 0o600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Overwrite replaces the content wholesale.
	require.NoError(t, WriteFileAtomic(path, []byte(`{"a":2}`), 0o600))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
