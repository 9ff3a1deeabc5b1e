package secrets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewKeyLength(t *testing.T) {
	key, err := NewKey()
	require.NoError(t, err)
	require.Len(t, key, KeyLength)
}

func TestNewKeySetKeysAreIndependent(t *testing.T) {
	keys, err := NewKeySet()
	require.NoError(t, err)
	require.Len(t, keys, len(AuthKeyNames))

	seen := map[string]bool{}
	for name, key := range keys {
		require.Len(t, key, KeyLength, "key %s", name)
		require.False(t, seen[key], "key %s repeats another key", name)
		seen[key] = true
	}
}
