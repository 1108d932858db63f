package handler

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/YoussefKhaledS/Document-Repository/internal/api/jsonapi"
	"github.com/YoussefKhaledS/Document-Repository/internal/api/middleware"
	"github.com/YoussefKhaledS/Document-Repository/internal/directory"
	"github.com/YoussefKhaledS/Document-Repository/internal/ledger"
	"github.com/YoussefKhaledS/Document-Repository/internal/model"
	"github.com/YoussefKhaledS/Document-Repository/internal/query"
)

// DocumentHandler handles /api/v1/documents* routes.
type DocumentHandler struct {
	ledger   *ledger.Ledger
	query    *query.Engine
	dir      *directory.Directory
	maxBytes int64
}

// NewDocumentHandler creates a DocumentHandler. maxBytes bounds the multipart
// request body on upload.
func NewDocumentHandler(l *ledger.Ledger, q *query.Engine, dir *directory.Directory, maxBytes int64) *DocumentHandler {
	return &DocumentHandler{ledger: l, query: q, dir: dir, maxBytes: maxBytes}
}

// employee resolves the authenticated employee from the access token claims.
// The database row is authoritative; claims may carry a stale department.
func (h *DocumentHandler) employee(w http.ResponseWriter, r *http.Request) *model.Employee {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		jsonapi.RenderError(w, http.StatusUnauthorized, "missing_token", "Unauthorized", "authentication required")
		return nil
	}
	emp, err := h.dir.EmployeeByID(r.Context(), claims.EmployeeID)
	if err != nil {
		jsonapi.RenderError(w, http.StatusUnauthorized, "employee_not_found", "Unauthorized", "employee account does not exist")
		return nil
	}
	return emp
}

// documentAttrs is the JSON:API attributes payload for an ingested document.
type documentAttrs struct {
	Title         string  `json:"title"`
	VersionNumber float64 `json:"version_number"`
}

// Upload handles POST /api/v1/documents. The request is multipart/form-data
// with fields title, version_number, uploader (optional, defaults to the
// authenticated employee), departments, tags, and the file part named "file".
// departments and tags accept both repeated fields and comma-separated values.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	emp := h.employee(w, r)
	if emp == nil {
		return
	}

	// A little headroom over the file limit for the other form fields.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		jsonapi.RenderError(w, http.StatusRequestEntityTooLarge, "body_too_large", "Request Entity Too Large", "upload exceeds the size limit")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity, "missing_field", "Unprocessable Entity", "file is required")
		return
	}
	defer file.Close()

	versionNumber := 0.0
	if v := r.FormValue("version_number"); v != "" {
		versionNumber, err = strconv.ParseFloat(v, 64)
		if err != nil {
			jsonapi.RenderError(w, http.StatusUnprocessableEntity, "invalid_field", "Unprocessable Entity", "version_number must be a number")
			return
		}
	}

	uploader := r.FormValue("uploader")
	if uploader == "" {
		uploader = emp.Name
	}

	doc, err := h.ledger.Ingest(r.Context(), ledger.IngestInput{
		Title:         r.FormValue("title"),
		UploaderName:  uploader,
		Filename:      header.Filename,
		Size:          header.Size,
		Content:       file,
		VersionNumber: versionNumber,
		Departments:   listValues(r, "departments"),
		Tags:          listValues(r, "tags"),
	})
	if err != nil {
		jsonapi.RenderAppError(w, err)
		return
	}

	jsonapi.RenderOne(w, http.StatusCreated, jsonapi.ResourceObject{
		Type: "document",
		ID:   doc.ID,
		Attributes: documentAttrs{
			Title:         doc.Title,
			VersionNumber: versionNumber,
		},
	})
}

// Search handles GET /api/v1/documents. Query parameters title, uploader, and
// tags narrow the result; all are optional. uploader and tags may be repeated
// or comma-separated; a document matches when its creator is any named
// uploader and it carries every named tag.
func (h *DocumentHandler) Search(w http.ResponseWriter, r *http.Request) {
	emp := h.employee(w, r)
	if emp == nil {
		return
	}

	titles, err := h.query.Search(r.Context(), emp, query.Filter{
		Title:     r.URL.Query().Get("title"),
		Uploaders: queryList(r, "uploader"),
		Tags:      queryList(r, "tags"),
	})
	if err != nil {
		jsonapi.RenderAppError(w, err)
		return
	}

	data := make([]any, 0, len(titles))
	for _, t := range titles {
		data = append(data, jsonapi.ResourceObject{
			Type:       "document",
			ID:         t,
			Attributes: map[string]string{"title": t},
		})
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}

// versionAttrs is one history row in the JSON:API response.
type versionAttrs struct {
	VersionNumber float64 `json:"version_number"`
	Filename      string  `json:"filename"`
	UploadedAt    string  `json:"uploaded_at"`
	Uploader      string  `json:"uploader"`
}

// historyAttrs is the JSON:API attributes payload for a document's history.
type historyAttrs struct {
	Title    string         `json:"title"`
	Creator  string         `json:"creator"`
	Tags     []string       `json:"tags"`
	Versions []versionAttrs `json:"versions"`
}

// History handles GET /api/v1/documents/history?title=...
func (h *DocumentHandler) History(w http.ResponseWriter, r *http.Request) {
	emp := h.employee(w, r)
	if emp == nil {
		return
	}
	title := r.URL.Query().Get("title")
	if strings.TrimSpace(title) == "" {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity, "missing_field", "Unprocessable Entity", "title is required")
		return
	}

	hist, err := h.query.VersionHistory(r.Context(), emp, title)
	if err != nil {
		jsonapi.RenderAppError(w, err)
		return
	}

	attrs := historyAttrs{Title: hist.Title, Creator: hist.Creator, Tags: hist.Tags, Versions: []versionAttrs{}}
	for _, v := range hist.Versions {
		attrs.Versions = append(attrs.Versions, versionAttrs{
			VersionNumber: v.VersionNumber,
			Filename:      v.Filename,
			UploadedAt:    v.UploadedAt.UTC().Format("2006-01-02T15:04:05Z"),
			Uploader:      v.Uploader,
		})
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "document_history",
		ID:         hist.Title,
		Attributes: attrs,
	})
}

// File handles GET /api/v1/documents/file?title=...&version=...
// Without a version parameter the highest version number is served. When the
// version record exists but its blob is gone, the response is a 410 carrying
// the version metadata.
func (h *DocumentHandler) File(w http.ResponseWriter, r *http.Request) {
	emp := h.employee(w, r)
	if emp == nil {
		return
	}
	title := r.URL.Query().Get("title")
	if strings.TrimSpace(title) == "" {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity, "missing_field", "Unprocessable Entity", "title is required")
		return
	}

	var versionNumber *float64
	if v := r.URL.Query().Get("version"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			jsonapi.RenderError(w, http.StatusUnprocessableEntity, "invalid_field", "Unprocessable Entity", "version must be a number")
			return
		}
		versionNumber = &n
	}

	res, err := h.query.FetchVersionFile(r.Context(), emp, title, versionNumber)
	if err != nil {
		jsonapi.RenderAppError(w, err)
		return
	}
	if res.Content == nil {
		jsonapi.RenderError(w, http.StatusGone, "file_missing", "Gone",
			"the file for version "+strconv.FormatFloat(res.VersionNumber, 'f', -1, 64)+" is no longer in storage")
		return
	}
	defer res.Content.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+res.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, res.Content)
}

// filterAttrs is the JSON:API attributes payload for the filters endpoint.
type filterAttrs struct {
	Tags      []string `json:"tags"`
	Uploaders []string `json:"uploaders"`
}

// Filters handles GET /api/v1/documents/filters, returning the tag and
// uploader values the employee may filter by.
func (h *DocumentHandler) Filters(w http.ResponseWriter, r *http.Request) {
	emp := h.employee(w, r)
	if emp == nil {
		return
	}

	tags, err := h.query.AccessibleTags(r.Context(), emp)
	if err != nil {
		jsonapi.RenderAppError(w, err)
		return
	}
	uploaders, err := h.query.AccessibleUploaders(r.Context(), emp)
	if err != nil {
		jsonapi.RenderAppError(w, err)
		return
	}

	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "document_filters",
		ID:         "1",
		Attributes: filterAttrs{Tags: tags, Uploaders: uploaders},
	})
}

// listValues collects a multipart field that may be repeated or
// comma-separated.
func listValues(r *http.Request, key string) []string {
	var out []string
	for _, raw := range r.MultipartForm.Value[key] {
		out = append(out, strings.Split(raw, ",")...)
	}
	return out
}

// queryList collects a query parameter that may be repeated or
// comma-separated.
func queryList(r *http.Request, key string) []string {
	var out []string
	for _, raw := range r.URL.Query()[key] {
		out = append(out, strings.Split(raw, ",")...)
	}
	return out
}
