package backup

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// DirSink stores backups as files in one local directory.
type DirSink struct {
	Dir string
}

// Put writes r to a temporary file and renames it into place.
func (d DirSink) Put(ctx context.Context, name string, r io.Reader) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(d.Dir, name+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(d.Dir, name))
}

func (d DirSink) Open(_ context.Context, name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(d.Dir, filepath.Base(name)))
}

// List returns the regular files in the directory. A missing directory holds
// no backups.
func (d DirSink) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (d DirSink) Delete(_ context.Context, name string) error {
	return os.Remove(filepath.Join(d.Dir, filepath.Base(name)))
}
