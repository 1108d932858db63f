// Package storage is the file-store boundary. Backends guarantee that Save
// never overwrites an existing blob: uniqueness is resolved inside the store
// (atomic create on disk), not by a racy check in the caller.
package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// SavedFile describes a stored blob: the path used to retrieve it and the
// final (possibly suffixed) filename.
type SavedFile struct {
	Path string
	Name string
}

// StoredObject is one stored blob as reported by List. ModTime lets the
// sweeper distinguish fresh in-flight uploads from stale orphans.
type StoredObject struct {
	Path    string
	ModTime time.Time
}

// Store abstracts the backing file store.
type Store interface {
	// Save persists the blob under a unique name derived from nameHint.
	Save(ctx context.Context, nameHint string, r io.Reader, size int64) (SavedFile, error)
	// Exists reports whether the path still resolves to a stored blob.
	Exists(ctx context.Context, path string) bool
	// Open returns the blob's byte stream.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Remove deletes the blob. Missing blobs are not an error.
	Remove(ctx context.Context, path string) error
	// List returns every stored blob (used by the orphan sweeper).
	List(ctx context.Context) ([]StoredObject, error)
}

// SanitizeFilename reduces a client-supplied filename to a safe basename:
// path components are stripped, spaces become underscores, and anything
// outside [A-Za-z0-9._-] is dropped. Returns "" when nothing survives.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "._-")
	if out == "" || out == "." || out == ".." {
		return ""
	}
	return out
}

// uniqueSuffix returns a timestamp + random fragment used to de-collide
// filenames, e.g. "_20260829154233_a1b2c3d4".
func uniqueSuffix() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("_%s_%s", time.Now().Format("20060102150405"), hex.EncodeToString(buf))
}

// fallbackName is used when the sanitized hint is empty.
func fallbackName(ext string) string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return "upload_" + hex.EncodeToString(buf) + ext
}

func splitExt(name string) (base, ext string) {
	ext = filepath.Ext(name)
	return strings.TrimSuffix(name, ext), ext
}
