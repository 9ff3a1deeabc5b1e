package external

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalArchive replicates archives into a second directory on the same
// host. A stand-in for off-host replication on single-node deployments.
type LocalArchive struct {
	root string
}

func NewLocalArchive(root string) *LocalArchive {
	if root == "" {
		panic("local archive requires a root directory")
	}
	return &LocalArchive{root: root}
}

func (l *LocalArchive) Store(_ context.Context, localPath, remoteName string) error {
	dst := filepath.Join(l.root, filepath.FromSlash(remoteName))
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", localPath, err)
	}
	defer src.Close() // nolint:errcheck

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("create archive copy %s: %w", dst, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy archive to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close archive copy %s: %w", dst, err)
	}
	return nil
}

func (l *LocalArchive) Remove(_ context.Context, remoteName string) error {
	err := os.Remove(filepath.Join(l.root, filepath.FromSlash(remoteName)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove replicated archive %s: %w", remoteName, err)
	}
	return nil
}

var _ ArchiveStore = (*LocalArchive)(nil)
