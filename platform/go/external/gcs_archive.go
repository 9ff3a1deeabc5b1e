package external

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"cloud.google.com/go/storage"
)

// GCSArchive replicates backup archives to a Cloud Storage bucket.
type GCSArchive struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSArchive wraps an existing storage client. The prefix namespaces
// this deployment's objects inside a shared bucket and may be empty.
func NewGCSArchive(client *storage.Client, bucket, prefix string) *GCSArchive {
	if client == nil {
		panic("gcs archive requires a storage client")
	}
	if bucket == "" {
		panic("gcs archive requires a bucket")
	}
	return &GCSArchive{client: client, bucket: bucket, prefix: prefix}
}

func (g *GCSArchive) object(remoteName string) *storage.ObjectHandle {
	name := remoteName
	if g.prefix != "" {
		name = path.Join(g.prefix, remoteName)
	}
	return g.client.Bucket(g.bucket).Object(name)
}

func (g *GCSArchive) Store(ctx context.Context, localPath, remoteName string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", localPath, err)
	}
	defer src.Close() // nolint:errcheck

	w := g.object(remoteName).NewWriter(ctx)
	if _, err := io.Copy(w, src); err != nil {
		_ = w.Close()
		return fmt.Errorf("upload archive %s: %w", remoteName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize archive upload %s: %w", remoteName, err)
	}
	return nil
}

func (g *GCSArchive) Remove(ctx context.Context, remoteName string) error {
	err := g.object(remoteName).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete replicated archive %s: %w", remoteName, err)
	}
	return nil
}

var _ ArchiveStore = (*GCSArchive)(nil)
