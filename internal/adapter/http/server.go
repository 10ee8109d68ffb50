package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"time"

	"github.com/couchcryptid/catastro-tasador/internal/adapter/viewmodel"
	"github.com/couchcryptid/catastro-tasador/internal/domain"
	"github.com/couchcryptid/catastro-tasador/internal/report"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dashboard is the session workflow driven by the API.
type Dashboard interface {
	Submit(ctx context.Context, raw string) (domain.AnalysisResult, error)
	Export(ctx context.Context, form report.Form) (domain.FileHandle, error)
	AttachLogo(ctx context.Context, r io.Reader) (domain.EmbeddedImage, error)
}

// ViewSource provides the rendered dashboard document.
type ViewSource interface {
	View() viewmodel.View
}

// Server exposes the dashboard API plus health, readiness, and metrics
// endpoints.
type Server struct {
	httpServer *http.Server
	dashboard  Dashboard
	views      ViewSource
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the /api routes and /healthz,
// /readyz, and /metrics.
func NewServer(addr string, dashboard Dashboard, views ViewSource, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      90 * time.Second, // covers a full backend round trip
			IdleTimeout:       60 * time.Second,
		},
		dashboard: dashboard,
		views:     views,
		logger:    logger,
	}

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(ready))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/view", s.handleView)
		r.Post("/analysis", s.handleAnalysis)
		r.Put("/logo", s.handleLogo)
		r.Post("/report", s.handleReport)
	})

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.views.View())
}

type analysisRequest struct {
	Ref string `json:"ref"`
}

// Lookups and exports outlive a client disconnect; the backend client
// timeout bounds them.
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	raw, err := readReference(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Solicitud no válida"})
		return
	}
	if _, err := s.dashboard.Submit(context.WithoutCancel(r.Context()), raw); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.views.View())
}

func (s *Server) handleLogo(w http.ResponseWriter, r *http.Request) {
	if _, err := s.dashboard.AttachLogo(r.Context(), r.Body); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var form report.Form
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Solicitud no válida"})
			return
		}
	}

	handle, err := s.dashboard.Export(context.WithoutCancel(r.Context()), form)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	f, err := os.Open(handle.Path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": handle.Name}))
	http.ServeContent(w, r, handle.Name, info.ModTime(), f)
}

// readReference accepts a JSON body {"ref": ...} or a form field "ref".
func readReference(r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		return r.FormValue("ref"), nil
	}
	var req analysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", err
	}
	return req.Ref, nil
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: domain.UserMessage(err)})
}

func statusFor(err error) int {
	var (
		invalid *domain.InvalidReferenceError
		asset   *domain.AssetReadError
		lookup  *domain.LookupError
		export  *domain.ExportError
	)
	switch {
	case errors.As(err, &invalid), errors.As(err, &asset):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConcurrentRequest), errors.Is(err, domain.ErrNoActiveAnalysis):
		return http.StatusConflict
	case errors.As(err, &lookup), errors.As(err, &export):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
