package provisioning

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureDirsLayoutAndModes(t *testing.T) {
	p := NewFSProvisioner(t.TempDir())
	ctx := context.Background()

	root, err := p.EnsureDirs(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, p.Root("acme"), root)

	for _, dir := range []string{"content", "content/uploads", "content/cache"} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err)
		require.True(t, info.IsDir())
		require.Equal(t, os.FileMode(0o755), info.Mode().Perm(), dir)
	}
	for _, dir := range []string{"backups", "logs"} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o700), info.Mode().Perm(), dir)
	}
}

func TestEnsureDirsIsIdempotent(t *testing.T) {
	p := NewFSProvisioner(t.TempDir())
	ctx := context.Background()

	first, err := p.EnsureDirs(ctx, "acme")
	require.NoError(t, err)
	second, err := p.EnsureDirs(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestWriteConfigIsOwnerOnly(t *testing.T) {
	p := NewFSProvisioner(t.TempDir())
	ctx := context.Background()

	_, err := p.EnsureDirs(ctx, "acme")
	require.NoError(t, err)

	path, err := p.WriteConfig(ctx, "acme", "TENANT_SLUG=acme\n")
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "TENANT_SLUG=acme\n", string(body))
}

func TestTeardownRemovesTreeAndToleratesAbsence(t *testing.T) {
	p := NewFSProvisioner(t.TempDir())
	ctx := context.Background()

	root, err := p.EnsureDirs(ctx, "acme")
	require.NoError(t, err)

	require.NoError(t, p.Teardown(ctx, "acme"))
	_, err = os.Stat(root)
	require.True(t, os.IsNotExist(err))

	// Missing tree is not an error.
	require.NoError(t, p.Teardown(ctx, "acme"))
}
