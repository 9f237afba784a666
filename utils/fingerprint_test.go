package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterministic(t *testing.T) {
	content := []byte("hello world")

	// sha256("hello world")
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	assert.Equal(t, want, FingerprintBytes(content))

	got, err := Fingerprint(bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFingerprintPathIndependent(t *testing.T) {
	dir := t.TempDir()
	content := []byte("# Title\n\nSome knowledge.\n")

	pathA := filepath.Join(dir, "a", "doc.md")
	pathB := filepath.Join(dir, "b", "renamed.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(pathA), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Dir(pathB), 0o755))
	require.NoError(t, os.WriteFile(pathA, content, 0o644))
	require.NoError(t, os.WriteFile(pathB, content, 0o644))

	hashA, err := FingerprintFile(pathA)
	require.NoError(t, err)
	hashB, err := FingerprintFile(pathB)
	require.NoError(t, err)

	assert.Equal(t, hashA, hashB)
	assert.Len(t, hashA, 64)
}

func TestFingerprintDiffersByContent(t *testing.T) {
	a := FingerprintBytes([]byte("version one"))
	b := FingerprintBytes([]byte("version two"))
	assert.NotEqual(t, a, b)
}

func TestFingerprintFileMissing(t *testing.T) {
	_, err := FingerprintFile(filepath.Join(t.TempDir(), "absent.md"))
	assert.Error(t, err)
}
