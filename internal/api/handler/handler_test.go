package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoussefKhaledS/Document-Repository/internal/access"
	"github.com/YoussefKhaledS/Document-Repository/internal/api"
	"github.com/YoussefKhaledS/Document-Repository/internal/api/handler"
	"github.com/YoussefKhaledS/Document-Repository/internal/config"
	"github.com/YoussefKhaledS/Document-Repository/internal/db"
	"github.com/YoussefKhaledS/Document-Repository/internal/directory"
	"github.com/YoussefKhaledS/Document-Repository/internal/health"
	"github.com/YoussefKhaledS/Document-Repository/internal/ledger"
	"github.com/YoussefKhaledS/Document-Repository/internal/query"
	"github.com/YoussefKhaledS/Document-Repository/internal/storage"
)

const testSecret = "test-secret-at-least-32-bytes-long"

func newTestServer(t *testing.T) (*httptest.Server, *directory.Directory) {
	t.Helper()
	gdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "api_test.db"))
	require.NoError(t, err)
	store, err := storage.NewDisk(t.TempDir())
	require.NoError(t, err)

	dir := directory.New(gdb)
	acc := access.New(gdb)
	upload := config.UploadConfig{AllowedExtensions: []string{"pdf", "txt"}, MaxBytes: 10 << 20}
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	led := ledger.New(gdb, store, dir, upload, log)
	eng := query.New(gdb, store, acc)

	mux := http.NewServeMux()
	api.RegisterRoutes(mux,
		health.New(db.NewPinger(gdb)),
		handler.NewAuthHandler(gdb, dir, testSecret, 15*time.Minute, time.Hour),
		handler.NewDocumentHandler(led, eng, dir, upload.MaxBytes),
		testSecret)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, dir
}

func createEmployee(t *testing.T, dir *directory.Directory, name, role, dept string) {
	t.Helper()
	_, err := dir.CreateEmployee(context.Background(), directory.NewEmployee{
		Name:           name,
		Email:          name + "@example.com",
		Password:       "Str0ng-Pass!",
		RoleName:       role,
		DepartmentName: dept,
	})
	require.NoError(t, err)
}

func login(t *testing.T, srv *httptest.Server, email string) string {
	t.Helper()
	body := `{"email":"` + email + `","password":"Str0ng-Pass!"}`
	resp, err := http.Post(srv.URL+"/api/v1/auth/login", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc struct {
		Data struct {
			Attributes struct {
				AccessToken string `json:"access_token"`
			} `json:"attributes"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	require.NotEmpty(t, doc.Data.Attributes.AccessToken)
	return doc.Data.Attributes.AccessToken
}

func uploadDocument(t *testing.T, srv *httptest.Server, token, title, version string, fields map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", title))
	require.NoError(t, mw.WriteField("version_number", version))
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", "report.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("pdf bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/documents", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func get(t *testing.T, srv *httptest.Server, token, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+path, http.NoBody)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestLogin_WrongPassword(t *testing.T) {
	srv, dir := newTestServer(t)
	createEmployee(t, dir, "alice", "user", "finance")

	body := `{"email":"alice@example.com","password":"wrong"}`
	resp, err := http.Post(srv.URL+"/api/v1/auth/login", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUploadSearchDownload_EndToEnd(t *testing.T) {
	srv, dir := newTestServer(t)
	createEmployee(t, dir, "alice", "user", "finance")
	token := login(t, srv, "alice@example.com")

	resp := uploadDocument(t, srv, token, "q1 report", "1", map[string]string{"tags": "finance,quarterly"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = get(t, srv, token, "/api/v1/documents?title=q1")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Data []struct {
			Attributes struct {
				Title string `json:"title"`
			} `json:"attributes"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "q1 report", list.Data[0].Attributes.Title)

	resp = get(t, srv, token, "/api/v1/documents?uploader=alice,bob")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list.Data = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Data, 1)

	resp = get(t, srv, token, "/api/v1/documents/file?title=q1+report")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "report.pdf")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes", string(body))
}

func TestUpload_DuplicateVersionIsConflict(t *testing.T) {
	srv, dir := newTestServer(t)
	createEmployee(t, dir, "alice", "user", "finance")
	token := login(t, srv, "alice@example.com")

	resp := uploadDocument(t, srv, token, "q1 report", "1", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = uploadDocument(t, srv, token, "q1 report", "1", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestUpload_RequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/documents", "multipart/form-data", http.NoBody)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHistory_DepartmentScoping(t *testing.T) {
	srv, dir := newTestServer(t)
	createEmployee(t, dir, "alice", "user", "finance")
	createEmployee(t, dir, "bob", "user", "it")
	aliceTok := login(t, srv, "alice@example.com")
	bobTok := login(t, srv, "bob@example.com")

	resp := uploadDocument(t, srv, aliceTok, "budget", "1", map[string]string{"departments": "finance"})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = get(t, srv, aliceTok, "/api/v1/documents/history?title=budget")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, srv, bobTok, "/api/v1/documents/history?title=budget")
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSignup_RequiresPermission(t *testing.T) {
	srv, dir := newTestServer(t)
	createEmployee(t, dir, "alice", "user", "finance")
	createEmployee(t, dir, "mia", "manager", "hr")

	body := `{"name":"newbie","email":"newbie@example.com","password":"Str0ng-Pass!","department":"it"}`

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/auth/signup", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login(t, srv, "alice@example.com"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, err = http.NewRequest(http.MethodPost, srv.URL+"/api/v1/auth/signup", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login(t, srv, "mia@example.com"))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestFilters_Endpoint(t *testing.T) {
	srv, dir := newTestServer(t)
	createEmployee(t, dir, "alice", "user", "finance")
	token := login(t, srv, "alice@example.com")

	resp := uploadDocument(t, srv, token, "handbook", "1", map[string]string{"tags": "policy"})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = get(t, srv, token, "/api/v1/documents/filters")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc struct {
		Data struct {
			Attributes struct {
				Tags      []string `json:"tags"`
				Uploaders []string `json:"uploaders"`
			} `json:"attributes"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, []string{"policy"}, doc.Data.Attributes.Tags)
	assert.Equal(t, []string{"alice"}, doc.Data.Attributes.Uploaders)
}
