package filestore

import (
	"context"
	"path"
	"path/filepath"

	"github.com/juju/errors"
)

// Uploads stores files under <dir>/<folder> and serves them below urlPrefix.
type Uploads struct {
	dir       string
	urlPrefix string
}

func NewUploads(dir, urlPrefix string) *Uploads {
	if urlPrefix == "" {
		urlPrefix = "/uploads"
	}
	return &Uploads{dir: dir, urlPrefix: urlPrefix}
}

// Root is the directory served at the URL prefix.
func (u *Uploads) Root() string { return u.dir }

func (u *Uploads) Put(_ context.Context, folder, name string, content []byte) (string, error) {
	if err := safeName(folder); err != nil {
		return "", errors.Annotate(err, "folder")
	}
	if err := safeName(name); err != nil {
		return "", errors.Trace(err)
	}
	dst := filepath.Join(u.dir, folder, name)
	if err := writeFileAtomic(dst, content, 0o644); err != nil {
		return "", errors.Annotate(err, "save upload")
	}
	return path.Join(u.urlPrefix, folder, name), nil
}
