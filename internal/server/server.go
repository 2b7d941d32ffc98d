// Package server exposes the inventory, receipt pipeline and analytics over
// a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"

	"github.com/Marioshad/foodvault/internal/analytics"
	"github.com/Marioshad/foodvault/internal/auth"
	"github.com/Marioshad/foodvault/internal/inventory"
	"github.com/Marioshad/foodvault/internal/receipt"
	"github.com/Marioshad/foodvault/internal/reconcile"
)

// SessionCookie carries the opaque session id
const SessionCookie = "foodvault_session"

const shutdownTimeout = 10 * time.Second

// Services are the collaborators the handlers call into
type Services struct {
	Inventory *inventory.Service
	Receipts  *receipt.Service
	Reconcile *reconcile.Engine
	Analytics *analytics.Service
	Auth      *auth.Service
}

// Options tune the HTTP surface
type Options struct {
	// Development adds the wrapped error chain to error bodies
	Development bool
	// SecureCookie marks the session cookie Secure
	SecureCookie bool
	// AllowOrigin is the CORS origin; empty means "*"
	AllowOrigin string
}

// Server handles HTTP requests for the food inventory
type Server struct {
	services Services
	opts     Options
	mux      *http.ServeMux
	handler  http.Handler
}

// NewServer creates a new Server with default mux
func NewServer(services Services, opts Options) *Server {
	return NewServerWithMux(services, opts, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(services Services, opts Options, mux *http.ServeMux) *Server {
	s := &Server{
		services: services,
		opts:     opts,
		mux:      mux,
	}
	s.registerRoutes()
	s.handler = s.corsMiddleware(s.logRequests(mux))
	return s
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	// Auth endpoints are the only public /api routes
	s.mux.HandleFunc("POST /api/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/logout", s.handleLogout)
	s.mux.HandleFunc("GET /api/user", s.requireAuth(s.handleCurrentUser))

	s.mux.HandleFunc("POST /api/receipts/upload", s.requireAuth(s.handleUploadReceipt))
	s.mux.HandleFunc("POST /api/receipts/commit", s.requireAuth(s.handleCommitReceipt))
	s.mux.HandleFunc("GET /api/receipts/{id}/file", s.requireAuth(s.handleGetReceiptFile))
	s.mux.HandleFunc("DELETE /api/receipts/{id}/file", s.requireAuth(s.handleDeleteReceiptFile))

	s.mux.HandleFunc("GET /api/food-items/{id}", s.requireAuth(s.handleGetFoodItem))
	s.mux.HandleFunc("PATCH /api/food-items/{id}", s.requireAuth(s.handleUpdateFoodItem))
	s.mux.HandleFunc("DELETE /api/food-items/{id}", s.requireAuth(s.handleDeleteFoodItem))
	s.mux.HandleFunc("GET /api/food-items", s.requireAuth(s.handleListFoodItems))
	s.mux.HandleFunc("POST /api/food-items", s.requireAuth(s.handleCreateFoodItem))

	s.mux.HandleFunc("PATCH /api/locations/{id}", s.requireAuth(s.handleUpdateLocation))
	s.mux.HandleFunc("DELETE /api/locations/{id}", s.requireAuth(s.handleDeleteLocation))
	s.mux.HandleFunc("GET /api/locations", s.requireAuth(s.handleListLocations))
	s.mux.HandleFunc("POST /api/locations", s.requireAuth(s.handleCreateLocation))

	s.mux.HandleFunc("GET /api/analytics", s.requireAuth(s.handleAnalytics))
	s.mux.HandleFunc("GET /api/dashboard", s.requireAuth(s.handleDashboard))
	s.mux.HandleFunc("GET /api/shopping-list", s.requireAuth(s.handleShoppingList))
}

// corsMiddleware adds CORS headers to responses and answers preflight requests
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// setCORSHeaders sets CORS headers on a response
func (s *Server) setCORSHeaders(w http.ResponseWriter) {
	origin := s.opts.AllowOrigin
	if origin == "" {
		origin = "*"
	} else {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// logRequests logs method, path, status and duration of every API call
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		if r.URL.Path == "/healthz" {
			return
		}

		level := slog.LevelInfo
		if m.Code >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, "Handled request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"duration", m.Duration,
			"bytes", m.Written,
		)
	})
}

// requireAuth resolves the session cookie to a user and stores it on the request context
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sessionID string
		if c, err := r.Cookie(SessionCookie); err == nil {
			sessionID = c.Value
		}

		user, err := s.services.Auth.Authenticate(r.Context(), sessionID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		next(w, r.WithContext(auth.WithUser(r.Context(), user)))
	}
}

// Start serves on addr until ctx is cancelled, then drains in-flight requests
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "address", addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
