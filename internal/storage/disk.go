package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Disk stores blobs as flat files under a single directory. Uniqueness is
// enforced by O_EXCL: the filesystem arbitrates concurrent uploads with the
// same name, and losers retry with a suffixed name.
type Disk struct {
	dir string
}

// NewDisk creates the directory if needed and returns a Disk store.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Disk{dir: dir}, nil
}

// Save writes the blob under the sanitized hint, appending a timestamp plus
// random suffix before the extension when the name is taken.
func (d *Disk) Save(_ context.Context, nameHint string, r io.Reader, _ int64) (SavedFile, error) {
	name := SanitizeFilename(nameHint)
	if name == "" {
		name = fallbackName(filepath.Ext(nameHint))
	}
	base, ext := splitExt(name)

	for attempt := 0; attempt < 10; attempt++ {
		candidate := name
		if attempt > 0 {
			candidate = base + uniqueSuffix() + ext
		}
		path := filepath.Join(d.dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640) // #nosec G304 -- name is sanitized above
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return SavedFile{}, fmt.Errorf("create %s: %w", candidate, err)
		}
		if _, err := io.Copy(f, r); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return SavedFile{}, fmt.Errorf("write %s: %w", candidate, err)
		}
		if err := f.Close(); err != nil {
			return SavedFile{}, fmt.Errorf("close %s: %w", candidate, err)
		}
		return SavedFile{Path: path, Name: candidate}, nil
	}
	return SavedFile{}, fmt.Errorf("could not find a free name for %s", name)
}

// Exists reports whether the path is a regular file.
func (d *Disk) Exists(_ context.Context, path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Open returns the file's byte stream.
func (d *Disk) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(path) // #nosec G304 -- paths come from version records, not request input
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// Remove deletes the file; a missing file is not an error.
func (d *Disk) Remove(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// List returns all stored files with their modification times.
func (d *Disk) List(_ context.Context) ([]StoredObject, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("read storage dir: %w", err)
	}
	var out []StoredObject
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		out = append(out, StoredObject{Path: filepath.Join(d.dir, e.Name()), ModTime: info.ModTime()})
	}
	return out, nil
}
