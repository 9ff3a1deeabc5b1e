package service

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// excludedDirs are tenant tree paths never included in an archive,
// relative to the tenant root. The backups directory is excluded so an
// archive never swallows its predecessors.
var excludedDirs = map[string]struct{}{
	"content/cache": {},
	"logs":          {},
	"tmp":           {},
	"backups":       {},
}

// databaseEntry is the archive member name of the SQL dump in a full
// backup.
const databaseEntry = "database.sql"

// Manifest is written next to each archive and kept in the bookkeeping
// row. It is what a restore reads first.
type Manifest struct {
	Slug            string    `json:"slug"`
	NamespacePrefix string    `json:"namespace_prefix"`
	Kind            string    `json:"kind"`
	CreatedAt       time.Time `json:"created_at"`
	FileCount       int       `json:"file_count"`
	RawBytes        int64     `json:"raw_bytes"`
	HasDatabase     bool      `json:"has_database"`
}

// writeArchive builds a gzipped tarball at dst. When rootPath is set the
// tenant tree is walked with the standing exclusions; when dumpPath is
// set the SQL dump is added as database.sql. Returns the number of file
// entries and the raw (pre-compression) byte total.
func writeArchive(dst, rootPath, dumpPath string) (int, int64, error) {
	out, err := os.Create(dst)
	if err != nil {
		return 0, 0, fmt.Errorf("create archive: %w", err)
	}
	defer out.Close() // nolint:errcheck

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	var files int
	var rawBytes int64

	if rootPath != "" {
		files, rawBytes, err = addTree(tw, rootPath)
		if err != nil {
			return 0, 0, err
		}
	}
	if dumpPath != "" {
		n, err := addFile(tw, dumpPath, databaseEntry)
		if err != nil {
			return 0, 0, err
		}
		files++
		rawBytes += n
	}

	if err := tw.Close(); err != nil {
		return 0, 0, fmt.Errorf("finish tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, 0, fmt.Errorf("finish gzip stream: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, 0, fmt.Errorf("flush archive: %w", err)
	}
	return files, rawBytes, nil
}

func addTree(tw *tar.Writer, rootPath string) (int, int64, error) {
	var files int
	var rawBytes int64

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(rootPath, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if _, skip := excludedDirs[rel]; skip {
				return filepath.SkipDir
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			hdr.Name = rel + "/"
			return tw.WriteHeader(hdr)
		}
		if !d.Type().IsRegular() {
			return nil // sockets, symlinks and such stay out
		}
		n, err := addFile(tw, path, rel)
		if err != nil {
			return err
		}
		files++
		rawBytes += n
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("archive tenant tree: %w", err)
	}
	return files, rawBytes, nil
}

func addFile(tw *tar.Writer, path, name string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return 0, fmt.Errorf("tar header for %s: %w", path, err)
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return 0, fmt.Errorf("write header for %s: %w", name, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() // nolint:errcheck

	n, err := io.Copy(tw, f)
	if err != nil {
		return 0, fmt.Errorf("copy %s into archive: %w", name, err)
	}
	return n, nil
}

// manifestPath derives the manifest file name from the archive path.
func manifestPath(archivePath string) string {
	return strings.TrimSuffix(archivePath, ".tar.gz") + ".manifest.json"
}
