package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadManifest_MissingIsEmpty(t *testing.T) {
	m, err := LoadManifest(filepath.Join(t.TempDir(), "manifest.json"))
	require.NoError(t, err)
	assert.Empty(t, m.Files)
	assert.Equal(t, ManifestVersion, m.Version)
}

func TestLoadManifest_Errors(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0644))
	_, err := LoadManifest(bad)
	assert.ErrorContains(t, err, "failed to parse manifest")

	future := filepath.Join(dir, "future.json")
	require.NoError(t, os.WriteFile(future, []byte(`{"version": 9, "files": {}}`), 0644))
	_, err = LoadManifest(future)
	assert.ErrorContains(t, err, "unsupported manifest version 9")
}

func TestManifest_EncodeIsSorted(t *testing.T) {
	// Test: Encoding is stable regardless of record order
	dir := t.TempDir()
	m, err := LoadManifest(filepath.Join(dir, "manifest.json"))
	require.NoError(t, err)
	m.Record(filepath.Join(dir, "z.py"), []byte("z"))
	m.Record(filepath.Join(dir, "a.py"), []byte("a"))

	data, err := m.Encode()
	require.NoError(t, err)
	want := "{\n" +
		"  \"version\": 1,\n" +
		"  \"files\": {\n" +
		"    \"a.py\": \"" + Hash([]byte("a")) + "\",\n" +
		"    \"z.py\": \"" + Hash([]byte("z")) + "\"\n" +
		"  }\n" +
		"}\n"
	assert.Equal(t, want, string(data))
}

func TestManifest_SaveOnlyWhenChanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	m, err := LoadManifest(path)
	require.NoError(t, err)
	m.Record(filepath.Join(filepath.Dir(path), "a.py"), []byte("a"))

	wrote, err := m.Save()
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = m.Save()
	require.NoError(t, err)
	assert.False(t, wrote)

	loaded, err := LoadManifest(path)
	require.NoError(t, err)
	h, ok := loaded.Lookup(filepath.Join(filepath.Dir(path), "a.py"))
	assert.True(t, ok)
	assert.Equal(t, Hash([]byte("a")), h)
}
