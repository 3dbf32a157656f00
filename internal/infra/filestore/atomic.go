// Package filestore keeps progress documents, uploads and backups on the
// local filesystem.
package filestore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
)

// writeFileAtomic writes data to a temp file next to path, syncs it and
// renames it over path. Readers see either the old or the new content.
func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Annotatef(err, "create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Annotate(err, "create temp file")
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Annotate(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Annotate(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Annotate(err, "close temp file")
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return errors.Annotate(err, "chmod temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Annotatef(err, "rename into %s", path)
	}
	return nil
}

// safeName rejects names that would escape the store directory.
func safeName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return errors.NotValidf("file name %q", name)
	}
	return nil
}
