// Package query is the read side of the repository: search, version history,
// file retrieval, and the accessible tag/uploader lists for filter dropdowns.
// Every query composes the same permission predicate the access package uses,
// so a document visible in search is always visible everywhere else.
package query

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"gorm.io/gorm"

	"github.com/YoussefKhaledS/Document-Repository/internal/access"
	"github.com/YoussefKhaledS/Document-Repository/internal/apperr"
	"github.com/YoussefKhaledS/Document-Repository/internal/catalog"
	"github.com/YoussefKhaledS/Document-Repository/internal/directory"
	"github.com/YoussefKhaledS/Document-Repository/internal/model"
	"github.com/YoussefKhaledS/Document-Repository/internal/storage"
)

// Engine answers read queries over the shared store.
type Engine struct {
	db       *gorm.DB
	store    storage.Store
	access   *access.Manager
	searches metric.Int64Counter
}

// New creates an Engine.
func New(db *gorm.DB, store storage.Store, acc *access.Manager) *Engine {
	searches, _ := otel.Meter("docrepo/query").Int64Counter("docrepo.documents.searches",
		metric.WithDescription("Document searches served."))
	return &Engine{db: db, store: store, access: acc, searches: searches}
}

// Filter narrows a search. All fields are optional and conjunctive; an empty
// filter returns every accessible document. A document matches Uploaders when
// its creator is any of the named employees.
type Filter struct {
	Title     string
	Uploaders []string
	Tags      []string
}

// Search returns the distinct, alphabetically ordered titles of accessible
// documents matching the filter. Tag filters are conjunctive: each named tag
// narrows the result to documents carrying it.
func (e *Engine) Search(ctx context.Context, employee *model.Employee, f Filter) ([]string, error) {
	cond, args := access.PermissionPredicate(employee)
	q := e.db.WithContext(ctx).Model(&model.Document{}).
		Joins("JOIN document_permissions ON document_permissions.document_id = documents.id").
		Where(cond, args...)

	if t := strings.TrimSpace(f.Title); t != "" {
		q = q.Where("LOWER(documents.title) LIKE ?", "%"+strings.ToLower(t)+"%")
	}
	if uploaders := normalizeNames(f.Uploaders); len(uploaders) > 0 {
		q = q.Joins("JOIN employees ON employees.id = documents.uploader_id").
			Where("employees.name IN ?", uploaders)
	}
	for _, tag := range catalog.Normalize(f.Tags) {
		q = q.Where(
			"documents.id IN (SELECT document_tags.document_id FROM document_tags"+
				" JOIN tags ON tags.id = document_tags.tag_id WHERE tags.name = ?)", tag)
	}

	titles := []string{}
	if err := q.Distinct("documents.title").Order("documents.title").
		Pluck("documents.title", &titles).Error; err != nil {
		return nil, err
	}
	if e.searches != nil {
		e.searches.Add(ctx, 1)
	}
	return titles, nil
}

// normalizeNames trims and lowercases each name, dropping empties.
func normalizeNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = directory.Normalize(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// VersionEntry is one row of a document's history.
type VersionEntry struct {
	VersionNumber float64
	Filename      string
	UploadedAt    time.Time
	Uploader      string
}

// History is the full version history of one document.
type History struct {
	Title    string
	Creator  string
	Tags     []string
	Versions []VersionEntry
}

// VersionHistory returns the document's versions ordered newest number first,
// with its creator and tags.
func (e *Engine) VersionHistory(ctx context.Context, employee *model.Employee, title string) (*History, error) {
	doc, err := e.accessibleDocument(ctx, employee, title)
	if err != nil {
		return nil, err
	}

	var creator model.Employee
	if err := e.db.WithContext(ctx).Where("id = ?", doc.UploaderID).First(&creator).Error; err != nil {
		return nil, err
	}

	var versions []model.DocumentVersion
	if err := e.db.WithContext(ctx).Preload("Uploader").
		Where("document_id = ?", doc.ID).
		Order("version_number DESC").
		Find(&versions).Error; err != nil {
		return nil, err
	}

	tags := []string{}
	if err := e.db.WithContext(ctx).Model(&model.Tag{}).
		Joins("JOIN document_tags ON document_tags.tag_id = tags.id").
		Where("document_tags.document_id = ?", doc.ID).
		Order("tags.name").
		Pluck("tags.name", &tags).Error; err != nil {
		return nil, err
	}

	h := &History{Title: doc.Title, Creator: creator.Name, Tags: tags}
	for _, v := range versions {
		name := ""
		if v.Uploader != nil {
			name = v.Uploader.Name
		}
		h.Versions = append(h.Versions, VersionEntry{
			VersionNumber: v.VersionNumber,
			Filename:      v.Filename,
			UploadedAt:    v.UploadedAt,
			Uploader:      name,
		})
	}
	return h, nil
}

// FileResult is the outcome of a file fetch. Content is nil when the version
// record exists but its blob is gone from storage; metadata is still returned
// so callers can report what was requested.
type FileResult struct {
	Filename      string
	VersionNumber float64
	UploadedAt    time.Time
	Uploader      string
	Content       io.ReadCloser
}

// FetchVersionFile returns the blob for one version of the document. When
// versionNumber is nil the version with the highest number is served, which
// may differ from the document's current pointer after an out-of-order ingest.
func (e *Engine) FetchVersionFile(ctx context.Context, employee *model.Employee, title string, versionNumber *float64) (*FileResult, error) {
	doc, err := e.accessibleDocument(ctx, employee, title)
	if err != nil {
		return nil, err
	}

	q := e.db.WithContext(ctx).Preload("Uploader").Where("document_id = ?", doc.ID)
	if versionNumber != nil {
		q = q.Where("version_number = ?", *versionNumber)
	}
	var version model.DocumentVersion
	if err := q.Order("version_number DESC").First(&version).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if versionNumber != nil {
				return nil, apperr.NotFound("version %g of document %q not found", *versionNumber, title)
			}
			return nil, apperr.NotFound("document %q has no versions", title)
		}
		return nil, err
	}

	res := &FileResult{
		Filename:      version.Filename,
		VersionNumber: version.VersionNumber,
		UploadedAt:    version.UploadedAt,
	}
	if version.Uploader != nil {
		res.Uploader = version.Uploader.Name
	}
	if !e.store.Exists(ctx, version.Filepath) {
		return res, nil
	}
	rc, err := e.store.Open(ctx, version.Filepath)
	if err != nil {
		return nil, apperr.Storage(err, "open file for version %g of %q", version.VersionNumber, title)
	}
	res.Content = rc
	return res, nil
}

// AccessibleTags returns the distinct tag names attached to documents the
// employee can see, for populating search filters.
func (e *Engine) AccessibleTags(ctx context.Context, employee *model.Employee) ([]string, error) {
	cond, args := access.PermissionPredicate(employee)
	tags := []string{}
	err := e.db.WithContext(ctx).Model(&model.Tag{}).
		Joins("JOIN document_tags ON document_tags.tag_id = tags.id").
		Joins("JOIN document_permissions ON document_permissions.document_id = document_tags.document_id").
		Where(cond, args...).
		Distinct("tags.name").Order("tags.name").
		Pluck("tags.name", &tags).Error
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// AccessibleUploaders returns the distinct names of employees who created
// documents the employee can see.
func (e *Engine) AccessibleUploaders(ctx context.Context, employee *model.Employee) ([]string, error) {
	cond, args := access.PermissionPredicate(employee)
	names := []string{}
	err := e.db.WithContext(ctx).Model(&model.Employee{}).
		Joins("JOIN documents ON documents.uploader_id = employees.id").
		Joins("JOIN document_permissions ON document_permissions.document_id = documents.id").
		Where(cond, args...).
		Distinct("employees.name").Order("employees.name").
		Pluck("employees.name", &names).Error
	if err != nil {
		return nil, err
	}
	return names, nil
}

// accessibleDocument resolves a title and enforces the permission check.
// Inaccessible documents are reported as access denied, not hidden as missing,
// matching the history and file endpoints' contract.
func (e *Engine) accessibleDocument(ctx context.Context, employee *model.Employee, title string) (*model.Document, error) {
	title = strings.TrimSpace(title)
	var doc model.Document
	if err := e.db.WithContext(ctx).Where("title = ?", title).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("document %q not found", title)
		}
		return nil, err
	}
	ok, err := e.access.HasAccess(ctx, employee, doc.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.AccessDenied("no access to document %q", title)
	}
	return &doc, nil
}
