package storage_test

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoussefKhaledS/Document-Repository/internal/storage"
)

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"my report.pdf", "my_report.pdf"},
		{"../../etc/passwd", "passwd"},
		{`..\..\boot.ini`, "boot.ini"},
		{"résumé.pdf", "rsum.pdf"},
		{"weird!@#name$.txt", "weirdname.txt"},
		{"...", ""},
		{"???", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, storage.SanitizeFilename(tc.in), "input %q", tc.in)
	}
}

func TestDiskSave_RoundTrip(t *testing.T) {
	store, err := storage.NewDisk(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	saved, err := store.Save(ctx, "report.pdf", strings.NewReader("hello"), 5)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", saved.Name)
	assert.True(t, store.Exists(ctx, saved.Path))

	rc, err := store.Open(ctx, saved.Path)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestDiskSave_CollisionGetsSuffixedName(t *testing.T) {
	store, err := storage.NewDisk(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	first, err := store.Save(ctx, "report.pdf", strings.NewReader("one"), 3)
	require.NoError(t, err)
	second, err := store.Save(ctx, "report.pdf", strings.NewReader("two"), 3)
	require.NoError(t, err)

	assert.NotEqual(t, first.Path, second.Path)
	assert.True(t, strings.HasPrefix(second.Name, "report_"))
	assert.True(t, strings.HasSuffix(second.Name, ".pdf"))

	// Both blobs survive with their own contents.
	rc, err := store.Open(ctx, first.Path)
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "one", string(body))
}

func TestDiskSave_UnsanitizableNameGetsFallback(t *testing.T) {
	store, err := storage.NewDisk(t.TempDir())
	require.NoError(t, err)

	saved, err := store.Save(context.Background(), "???", strings.NewReader("x"), 1)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(saved.Name, "upload_"))
}

func TestDiskRemove_MissingFileIsNoError(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewDisk(dir)
	require.NoError(t, err)

	require.NoError(t, store.Remove(context.Background(), filepath.Join(dir, "nope.pdf")))
}

func TestDiskList(t *testing.T) {
	store, err := storage.NewDisk(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	a, err := store.Save(ctx, "a.txt", strings.NewReader("a"), 1)
	require.NoError(t, err)
	b, err := store.Save(ctx, "b.txt", strings.NewReader("b"), 1)
	require.NoError(t, err)

	objects, err := store.List(ctx)
	require.NoError(t, err)
	paths := make([]string, 0, len(objects))
	for _, o := range objects {
		assert.False(t, o.ModTime.IsZero())
		paths = append(paths, o.Path)
	}
	assert.ElementsMatch(t, []string{a.Path, b.Path}, paths)
}
