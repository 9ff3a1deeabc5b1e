package provisioning

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/diploy/hostfleet/domains/tenants/be/service"
)

// configFileName is the artifact rendered into each tenant root.
const configFileName = "tenant.conf"

// tenantDirs is the directory layout under each tenant root. Backups and
// logs are private to the service account.
var tenantDirs = []struct {
	Name string
	Mode os.FileMode
}{
	{"content", 0o755},
	{"content/uploads", 0o755},
	{"content/cache", 0o755},
	{"backups", 0o700},
	{"logs", 0o700},
}

// FSProvisioner owns the per-tenant directory trees under a base path.
type FSProvisioner struct {
	basePath string
}

func NewFSProvisioner(basePath string) *FSProvisioner {
	if basePath == "" {
		panic("fs provisioner requires a base path")
	}
	return &FSProvisioner{basePath: basePath}
}

// Root returns the tenant's directory root.
func (p *FSProvisioner) Root(slug string) string {
	return filepath.Join(p.basePath, slug)
}

func (p *FSProvisioner) EnsureDirs(_ context.Context, slug string) (string, error) {
	root := p.Root(slug)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("create tenant root: %w", err)
	}
	for _, dir := range tenantDirs {
		path := filepath.Join(root, filepath.FromSlash(dir.Name))
		if err := os.MkdirAll(path, dir.Mode); err != nil {
			return "", fmt.Errorf("create tenant dir %s: %w", dir.Name, err)
		}
		// MkdirAll leaves pre-existing dirs alone, so pin the mode.
		if err := os.Chmod(path, dir.Mode); err != nil {
			return "", fmt.Errorf("chmod tenant dir %s: %w", dir.Name, err)
		}
	}
	return root, nil
}

func (p *FSProvisioner) WriteConfig(_ context.Context, slug, body string) (string, error) {
	path := filepath.Join(p.Root(slug), configFileName)
	// The config carries key material; owner-only from the first byte.
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		return "", fmt.Errorf("write tenant config: %w", err)
	}
	return path, nil
}

func (p *FSProvisioner) Teardown(_ context.Context, slug string) error {
	if err := os.RemoveAll(p.Root(slug)); err != nil {
		return fmt.Errorf("remove tenant tree: %w", err)
	}
	return nil
}

var _ service.StorageProvisioner = (*FSProvisioner)(nil)
