package worker_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoussefKhaledS/Document-Repository/internal/auth"
	"github.com/YoussefKhaledS/Document-Repository/internal/db"
	"github.com/YoussefKhaledS/Document-Repository/internal/model"
	"github.com/YoussefKhaledS/Document-Repository/internal/storage"
	"github.com/YoussefKhaledS/Document-Repository/internal/worker"
)

func TestSweeper_RemovesOrphansKeepsReferenced(t *testing.T) {
	gdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "worker_test.db"))
	require.NoError(t, err)
	store, err := storage.NewDisk(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	kept, err := store.Save(ctx, "kept.pdf", strings.NewReader("x"), 1)
	require.NoError(t, err)
	orphan, err := store.Save(ctx, "orphan.pdf", strings.NewReader("x"), 1)
	require.NoError(t, err)

	role := &model.Role{Name: "user"}
	require.NoError(t, gdb.Create(role).Error)
	emp := &model.Employee{Name: "emp-1", Email: "emp-1@example.com", PasswordHash: "x", RoleID: role.ID}
	require.NoError(t, gdb.Create(emp).Error)

	doc := &model.Document{Title: "doc", UploaderID: emp.ID}
	require.NoError(t, gdb.Create(doc).Error)
	require.NoError(t, gdb.Create(&model.DocumentVersion{
		DocumentID:    doc.ID,
		VersionNumber: 1,
		Filepath:      kept.Path,
		Filename:      kept.Name,
		UploadedAt:    time.Now(),
		UploaderID:    emp.ID,
	}).Error)

	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	require.NoError(t, worker.NewSweeper(gdb, store, 0, log).Run(ctx))

	assert.True(t, store.Exists(ctx, kept.Path))
	assert.False(t, store.Exists(ctx, orphan.Path))
}

func TestSweeper_GraceSparesFreshFiles(t *testing.T) {
	gdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "worker_test.db"))
	require.NoError(t, err)
	store, err := storage.NewDisk(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	orphan, err := store.Save(ctx, "inflight.pdf", strings.NewReader("x"), 1)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	sw := worker.NewSweeper(gdb, store, time.Hour, log)

	// Fresh enough to be an upload whose transaction has not committed yet.
	require.NoError(t, sw.Run(ctx))
	assert.True(t, store.Exists(ctx, orphan.Path))

	// Once it ages past the grace window it is reaped.
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(orphan.Path, old, old))
	require.NoError(t, sw.Run(ctx))
	assert.False(t, store.Exists(ctx, orphan.Path))
}

func TestSweeper_PurgesDeadRefreshTokens(t *testing.T) {
	gdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "worker_test.db"))
	require.NoError(t, err)
	store, err := storage.NewDisk(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	tokens := auth.NewRefreshStore(gdb)
	_, err = tokens.IssueRefreshToken(ctx, "emp-1", -time.Hour)
	require.NoError(t, err)
	_, err = tokens.IssueRefreshToken(ctx, "emp-1", time.Hour)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	require.NoError(t, worker.NewSweeper(gdb, store, 0, log).Run(ctx))

	var remaining int64
	require.NoError(t, gdb.Model(&model.RefreshToken{}).Count(&remaining).Error)
	assert.EqualValues(t, 1, remaining)
}
