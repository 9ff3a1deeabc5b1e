package external

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalArchiveStoreAndRemove(t *testing.T) {
	ctx := context.Background()
	src := filepath.Join(t.TempDir(), "backup.tar.gz")
	require.NoError(t, os.WriteFile(src, []byte("archive-bytes"), 0o640))

	root := t.TempDir()
	store := NewLocalArchive(root)

	require.NoError(t, store.Store(ctx, src, "acme/backup.tar.gz"))

	copied, err := os.ReadFile(filepath.Join(root, "acme", "backup.tar.gz"))
	require.NoError(t, err)
	require.Equal(t, []byte("archive-bytes"), copied)

	require.NoError(t, store.Remove(ctx, "acme/backup.tar.gz"))
	_, err = os.Stat(filepath.Join(root, "acme", "backup.tar.gz"))
	require.True(t, os.IsNotExist(err))

	// Removing twice is fine.
	require.NoError(t, store.Remove(ctx, "acme/backup.tar.gz"))
}
