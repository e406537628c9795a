package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeBlake3HashIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.yaml")
	require.NoError(t, os.WriteFile(path, []byte("service:\n  name: x\n"), 0644))

	h1, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	h2, err := ComputeBlake3Hash(path)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestWriteAndVerifyChecksum(t *testing.T) {
	path := writeConfig(t, "service:\n  name: relaybus\n")
	require.NoError(t, WriteChecksum(path))

	// Load verifies against the manifest and passes.
	_, err := Load(path)
	require.NoError(t, err)

	// Tampering after hashing must fail the load.
	require.NoError(t, os.WriteFile(path, []byte("service:\n  name: evil\n"), 0644))
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")
}

func TestLoadWithoutChecksumsIsAllowed(t *testing.T) {
	path := writeConfig(t, "service:\n  name: relaybus\n")
	_, err := Load(path)
	require.NoError(t, err)
}

func TestVerifyFileHashMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0644))

	err := VerifyFileHash(path, "deadbeef")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")
}
