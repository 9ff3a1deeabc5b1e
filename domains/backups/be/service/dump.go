package service

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Dumper produces a SQL dump of one tenant's namespaced tables.
type Dumper interface {
	Dump(ctx context.Context, namespacePrefix, dst string) error
}

// PGDump shells out to pg_dump, selecting the tenant's tables by prefix
// pattern. The binary must be on PATH and version-compatible with the
// server.
type PGDump struct {
	ConnString string
	Binary     string // defaults to "pg_dump"
}

func NewPGDump(connString string) *PGDump {
	if connString == "" {
		panic("pg_dump requires a connection string")
	}
	return &PGDump{ConnString: connString, Binary: "pg_dump"}
}

func (d *PGDump) Dump(ctx context.Context, namespacePrefix, dst string) error {
	binary := d.Binary
	if binary == "" {
		binary = "pg_dump"
	}

	cmd := exec.CommandContext(ctx, binary,
		"--format=plain",
		"--no-owner",
		"--no-privileges",
		"--table="+namespacePrefix+"_*",
		"--file="+dst,
		d.ConnString)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pg_dump %s: %w: %s", namespacePrefix, err, stderr.String())
	}
	return nil
}

var _ Dumper = (*PGDump)(nil)
