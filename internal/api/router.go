// Package api wires all API routes onto the provided ServeMux.
package api

import (
	"net/http"

	"github.com/YoussefKhaledS/Document-Repository/internal/api/handler"
	"github.com/YoussefKhaledS/Document-Repository/internal/api/middleware"
	"github.com/YoussefKhaledS/Document-Repository/internal/health"
)

// RegisterRoutes registers all application routes on mux.
func RegisterRoutes(mux *http.ServeMux, h *health.Handler, auth *handler.AuthHandler, docs *handler.DocumentHandler, jwtSecret string) {
	// Public health endpoints (no auth required)
	mux.HandleFunc("GET /api/v1/health", h.ServeHealth)
	mux.HandleFunc("GET /api/v1/ready", h.ServeReady)

	// Auth endpoints (no auth required)
	mux.HandleFunc("POST /api/v1/auth/login", auth.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", auth.Refresh)

	// Auth-required routes — wrap with RequireAuth middleware.
	protected := middleware.RequireAuth(jwtSecret)
	mux.Handle("POST /api/v1/auth/logout", protected(http.HandlerFunc(auth.Logout)))
	mux.Handle("POST /api/v1/auth/signup",
		protected(middleware.RequirePermission("employee:create")(http.HandlerFunc(auth.Signup))))

	canRead := middleware.RequirePermission("document:read")
	canUpload := middleware.RequirePermission("document:upload")
	mux.Handle("POST /api/v1/documents", protected(canUpload(http.HandlerFunc(docs.Upload))))
	mux.Handle("GET /api/v1/documents", protected(canRead(http.HandlerFunc(docs.Search))))
	mux.Handle("GET /api/v1/documents/history", protected(canRead(http.HandlerFunc(docs.History))))
	mux.Handle("GET /api/v1/documents/file", protected(canRead(http.HandlerFunc(docs.File))))
	mux.Handle("GET /api/v1/documents/filters", protected(canRead(http.HandlerFunc(docs.Filters))))

	// Catch-all 404
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
}
