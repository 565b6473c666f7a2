package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/luminalhq/docchat/internal/health"
	"github.com/luminalhq/docchat/internal/ingest"
	"github.com/luminalhq/docchat/internal/model"
	"github.com/luminalhq/docchat/internal/qa"
	"github.com/luminalhq/docchat/internal/registry"
	"github.com/luminalhq/docchat/internal/search"
)

// Asker answers questions; satisfied by qa.Orchestrator.
type Asker interface {
	Ask(ctx context.Context, req qa.Request) (*qa.Response, error)
}

// Ingester drives the ingestion pipeline; satisfied by ingest.Service.
type Ingester interface {
	Upload(ctx context.Context, filename string, content []byte, force bool) (*ingest.UploadResult, error)
	IngestLogicalSummaries(ctx context.Context, filename string) (*ingest.SummaryResult, error)
	IngestParagraphSummaries(ctx context.Context, filename string) (*ingest.SummaryResult, error)
	DeleteDocument(ctx context.Context, filename string) error
	ClearAll(ctx context.Context) ([]ingest.DeleteCount, error)
}

// Searcher runs searches; satisfied by search.Engine.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*model.SearchResultSet, error)
}

// Server is the HTTP surface over the service.
type Server struct {
	ingester Ingester
	searcher Searcher
	asker    Asker
	catalog  *registry.Registry
	checks   *health.Manager
	log      *zap.Logger

	maxUploadBytes int64
}

func NewServer(ingester Ingester, searcher Searcher, asker Asker, catalog *registry.Registry, checks *health.Manager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checks == nil {
		checks = health.NewManager(0)
	}
	return &Server{
		ingester:       ingester,
		searcher:       searcher,
		asker:          asker,
		catalog:        catalog,
		checks:         checks,
		log:            logger,
		maxUploadBytes: 32 << 20,
	}
}

// Router wires all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/status", s.handleStatus)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/documents", s.handleListDocuments)
		r.Delete("/documents", s.handleClearAll)
		r.Delete("/documents/{filename}", s.handleDeleteDocument)
		r.Get("/collections", s.handleCollections)

		r.Post("/process/upload", s.handleUpload)
		r.Post("/process/{filename}/summaries", s.handleLogicalSummaries)
		r.Post("/process/{filename}/paragraphs", s.handleParagraphSummaries)

		r.Post("/search", s.handleSearch)
		r.Post("/ask", s.handleAsk)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}

// writeJSON renders a success payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders the error contract {"detail": "<msg>"} with the status
// from the error taxonomy.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := model.HTTPStatus(err)
	if status >= 500 {
		s.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"detail": err.Error()})
}
