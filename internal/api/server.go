// Package api serves the companion HTTP API: the story catalog, saved reading
// positions and a live event stream for displays following the reader.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hushapp/hush/internal/domain"
	"github.com/hushapp/hush/internal/ratelimit"
	"github.com/hushapp/hush/internal/store"
	"github.com/hushapp/hush/internal/story"
)

// Catalog lists and loads stories.
type Catalog interface {
	Catalog(ctx context.Context) ([]story.Entry, error)
	Load(ctx context.Context, id string) (*domain.Story, error)
}

// Services holds the dependencies of the HTTP handlers.
type Services struct {
	Stories  Catalog
	Progress store.ProgressStore
	// Events streams playback events. Optional.
	Events http.Handler
	// Limiter throttles clients. Optional.
	Limiter *ratelimit.Limiter
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	stories  Catalog
	progress store.ProgressStore
	events   http.Handler
	limiter  *ratelimit.Limiter
	router   *chi.Mux
	api      huma.API
	logger   *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
// allowedOrigins lists the browser origins allowed to call the API; empty allows any.
func NewServer(services Services, allowedOrigins []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		stories:  services.Stories,
		progress: services.Progress,
		events:   services.Events,
		limiter:  services.Limiter,
		router:   chi.NewRouter(),
		logger:   logger,
	}

	s.setupMiddleware(allowedOrigins)
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware(allowedOrigins []string) {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Last-Event-ID"},
		MaxAge:         300,
	}))
	if s.limiter != nil {
		s.router.Use(s.limiter.Middleware)
	}
}

// setupRoutes configures all HTTP routes. The event stream stays on chi; the
// rest is described by huma and served with an OpenAPI document at /openapi.json.
func (s *Server) setupRoutes() {
	if s.events != nil {
		s.router.Method(http.MethodGet, "/events", s.events)
	}

	s.api = humachi.New(s.router, humaConfig())
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerStoryRoutes()
	s.registerProgressRoutes()
}

// humaConfig is huma's default JSON setup with the envelope as the only
// transformer, so bodies carry no $schema link.
func humaConfig() huma.Config {
	return huma.Config{
		OpenAPI: &huma.OpenAPI{
			OpenAPI: "3.1.0",
			Info: &huma.Info{
				Title:       "Hush Companion API",
				Version:     "1.0.0",
				Description: "Story catalog and reading positions for displays following the reader",
			},
			Components: &huma.Components{
				Schemas: huma.NewMapRegistry("#/components/schemas/", huma.DefaultSchemaNamer),
			},
		},
		OpenAPIPath:   "/openapi",
		DocsPath:      "/docs",
		Formats:       map[string]huma.Format{"application/json": huma.DefaultJSONFormat, "json": huma.DefaultJSONFormat},
		DefaultFormat: "application/json",
		Transformers:  []huma.Transformer{EnvelopeTransformer},
	}
}

// requestLogger logs each request through slog. The event stream is logged
// once when it ends.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
