// Package ledger owns the document write path. An ingest either creates a new
// document with its first version or appends a version to an existing one; all
// database rows for a single ingest commit in one transaction.
package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"gorm.io/gorm"

	"github.com/YoussefKhaledS/Document-Repository/internal/access"
	"github.com/YoussefKhaledS/Document-Repository/internal/apperr"
	"github.com/YoussefKhaledS/Document-Repository/internal/catalog"
	"github.com/YoussefKhaledS/Document-Repository/internal/config"
	"github.com/YoussefKhaledS/Document-Repository/internal/directory"
	"github.com/YoussefKhaledS/Document-Repository/internal/model"
	"github.com/YoussefKhaledS/Document-Repository/internal/storage"
)

// Ledger coordinates the store, the directory, and the database for ingests.
type Ledger struct {
	db      *gorm.DB
	store   storage.Store
	dir     *directory.Directory
	upload  config.UploadConfig
	log     *slog.Logger
	ingests metric.Int64Counter
}

// New creates a Ledger.
func New(db *gorm.DB, store storage.Store, dir *directory.Directory, upload config.UploadConfig, log *slog.Logger) *Ledger {
	ingests, err := otel.Meter("docrepo/ledger").Int64Counter("docrepo.documents.ingested",
		metric.WithDescription("Document versions ingested."))
	if err != nil {
		log.Warn("could not create ingest counter", "error", err)
	}
	return &Ledger{db: db, store: store, dir: dir, upload: upload, log: log, ingests: ingests}
}

// IngestInput is one upload request. Departments and Tags are raw client
// values; the ledger normalizes them.
type IngestInput struct {
	Title         string
	UploaderName  string
	Filename      string
	Size          int64
	Content       io.Reader
	VersionNumber float64
	Departments   []string
	Tags          []string
}

// Ingest validates the input, stores the blob, and records the version.
//
// Title is the natural key: an unseen title creates a document, a known title
// appends a version. The document's current version always becomes the version
// just written, even when its number is lower than an existing one. Permission
// rows are written on the first ingest (public when no departments are named)
// and widened on later ingests that name departments; naming a department on a
// public document converts it to departmental access.
func (l *Ledger) Ingest(ctx context.Context, in IngestInput) (*model.Document, error) {
	title := strings.TrimSpace(in.Title)
	if err := l.validate(title, in); err != nil {
		return nil, err
	}

	uploader, err := l.dir.EmployeeByName(ctx, in.UploaderName)
	if err != nil {
		return nil, err
	}

	// Friendly rejection before the blob is written. The unique index on
	// (document_id, version_number) still backstops concurrent ingests.
	if err := l.checkDuplicateVersion(ctx, title, in.VersionNumber); err != nil {
		return nil, err
	}

	saved, err := l.store.Save(ctx, in.Filename, in.Content, in.Size)
	if err != nil {
		return nil, apperr.Storage(err, "store file %q", in.Filename)
	}

	var doc *model.Document
	txErr := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		doc, err = l.record(tx, title, uploader, saved, in)
		return err
	})
	if txErr != nil {
		// The blob is unreachable once the transaction rolls back.
		if rmErr := l.store.Remove(ctx, saved.Path); rmErr != nil {
			l.log.Warn("orphaned file left behind after failed ingest",
				"path", saved.Path, "error", rmErr)
		}
		if errors.Is(txErr, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict(txErr, "version %g already exists for document %q", in.VersionNumber, title)
		}
		return nil, txErr
	}

	if l.ingests != nil {
		l.ingests.Add(ctx, 1)
	}
	l.log.Info("document version ingested",
		"title", title, "version", in.VersionNumber, "uploader", uploader.Name, "file", saved.Name)
	return doc, nil
}

func (l *Ledger) record(tx *gorm.DB, title string, uploader *model.Employee, saved storage.SavedFile, in IngestInput) (*model.Document, error) {
	var doc model.Document
	err := tx.Where("title = ?", title).First(&doc).Error
	isNew := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !isNew {
		return nil, err
	}
	if isNew {
		doc = model.Document{Title: title, UploaderID: uploader.ID}
		if err := tx.Create(&doc).Error; err != nil {
			return nil, err
		}
	}

	version := model.DocumentVersion{
		DocumentID:    doc.ID,
		VersionNumber: in.VersionNumber,
		Filepath:      saved.Path,
		Filename:      saved.Name,
		UploadedAt:    time.Now().UTC(),
		UploaderID:    uploader.ID,
	}
	if err := tx.Create(&version).Error; err != nil {
		return nil, err
	}

	// The newest write wins the current pointer, not the highest number.
	if err := tx.Model(&model.Document{}).Where("id = ?", doc.ID).
		Update("current_version_id", version.ID).Error; err != nil {
		return nil, err
	}
	doc.CurrentVersionID = &version.ID

	if err := l.grant(tx, &doc, uploader, isNew, in.Departments); err != nil {
		return nil, err
	}
	for _, name := range catalog.Normalize(in.Tags) {
		tag, err := catalog.EnsureTx(tx, name)
		if err != nil {
			return nil, err
		}
		if _, err := catalog.AttachTx(tx, doc.ID, tag.ID); err != nil {
			return nil, err
		}
	}
	return &doc, nil
}

func (l *Ledger) grant(tx *gorm.DB, doc *model.Document, uploader *model.Employee, isNew bool, departments []string) error {
	names := dedupeNames(departments)
	if len(names) == 0 {
		if isNew {
			return access.GrantPublicTx(tx, doc.ID)
		}
		return nil
	}
	// The uploader's own department is included on the first ingest only.
	// Later ingests grant exactly the named departments.
	if isNew && uploader.DepartmentID != nil {
		if err := access.GrantDepartmentTx(tx, doc.ID, *uploader.DepartmentID); err != nil {
			return err
		}
	}
	for _, name := range names {
		dep, err := directory.EnsureDepartmentTx(tx, name)
		if err != nil {
			return err
		}
		if err := access.GrantDepartmentTx(tx, doc.ID, dep.ID); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) validate(title string, in IngestInput) error {
	if title == "" {
		return apperr.Validation("title", "title is required")
	}
	if strings.TrimSpace(in.UploaderName) == "" {
		return apperr.Validation("uploader", "uploader name is required")
	}
	if strings.TrimSpace(in.Filename) == "" || in.Content == nil {
		return apperr.Validation("file", "file is required")
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(in.Filename), "."))
	if !allowed(ext, l.upload.AllowedExtensions) {
		return apperr.Validation("file", "file type %q is not allowed", ext)
	}
	if in.Size > l.upload.MaxBytes {
		return apperr.Validation("file", "file exceeds the maximum size of %d bytes", l.upload.MaxBytes)
	}
	if !(in.VersionNumber > 0) {
		return apperr.Validation("version_number", "version number must be greater than zero")
	}
	return nil
}

func (l *Ledger) checkDuplicateVersion(ctx context.Context, title string, versionNumber float64) error {
	var doc model.Document
	err := l.db.WithContext(ctx).Where("title = ?", title).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var count int64
	if err := l.db.WithContext(ctx).Model(&model.DocumentVersion{}).
		Where("document_id = ? AND version_number = ?", doc.ID, versionNumber).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return apperr.Conflict(nil, "version %g already exists for document %q", versionNumber, title)
	}
	return nil
}

func allowed(ext string, list []string) bool {
	for _, a := range list {
		if ext == strings.ToLower(a) {
			return true
		}
	}
	return false
}

func dedupeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = directory.Normalize(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
