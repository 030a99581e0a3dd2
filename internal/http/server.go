// Package http exposes the expense tracker as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"monee/internal/cache"
	"monee/internal/core"
	applog "monee/internal/log"
	"monee/internal/metrics"
	"monee/internal/middleware/ratelimit"
	"monee/internal/middleware/security"
	"monee/internal/middleware/trace"
	"monee/internal/prefs"
)

// RecordStore is the record list the handlers read and mutate.
type RecordStore interface {
	Records(ctx context.Context) []core.Expense
	Add(ctx context.Context, d core.Draft) (core.Expense, error)
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// Preferences is the secondary state behind the settings and note endpoints.
type Preferences interface {
	Settings(ctx context.Context) (core.Settings, error)
	Apply(ctx context.Context, u prefs.Update) error
	Note(ctx context.Context) (string, error)
	SetNote(ctx context.Context, note string) error
	Theme(ctx context.Context) (string, error)
	APIKey(ctx context.Context) (string, error)
	ClearData(ctx context.Context) error
}

// Assistant answers questions about the records.
type Assistant interface {
	Ask(ctx context.Context, apiKey string, records []core.Expense, question string) (string, error)
}

// Deps are the collaborators of the server. Metrics, Reports, Limiter,
// Detector and Now are optional. Reports must also be registered as a store
// event sink to see record changes.
type Deps struct {
	Store     RecordStore
	Prefs     Preferences
	Assistant Assistant
	Metrics   *metrics.Metrics
	Reports   *cache.Reports
	Limiter   *ratelimit.Limiter
	Detector  *security.Detector
	Logger    *applog.Logger
	Now       func() time.Time
}

type Server struct {
	http.Server
	store     RecordStore
	prefs     Preferences
	assistant Assistant
	metrics   *metrics.Metrics
	reports   *cache.Reports
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	logger    *applog.Logger
	now       func() time.Time
	started   time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	s := &Server{
		store:     deps.Store,
		prefs:     deps.Prefs,
		assistant: deps.Assistant,
		metrics:   deps.Metrics,
		reports:   deps.Reports,
		limiter:   deps.Limiter,
		detector:  deps.Detector,
		logger:    logger.WithComponent(applog.ComponentHTTP),
		now:       deps.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.detector == nil {
		s.detector = security.NewDetector(logger)
	}
	if s.limiter == nil {
		s.limiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	}
	s.started = s.now()

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	var observer trace.Observer
	if s.metrics != nil {
		observer = s.metrics
	}
	r.Use(trace.NewMiddleware(s.logger, s.detector.ExtractClientIP, observer).Middleware)
	r.Use(chimw.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		}))

		r.Get("/categories", s.handleCategories)
		r.Get("/filters", s.handleFilters)

		r.Route("/expenses", func(r chi.Router) {
			r.Get("/", s.handleListExpenses)
			r.Post("/", s.handleCreateExpense)
			r.Get("/recent", s.handleRecentExpenses)
			r.Get("/daily", s.handleDailyExpenses)
			r.Get("/monthly", s.handleMonthlyExpenses)
			r.Get("/yearly", s.handleYearlyExpenses)
			r.Get("/period", s.handlePeriodExpenses)
			r.Delete("/{id}", s.handleDeleteExpense)
		})

		r.Get("/report", s.handleReport)
		r.Get("/dashboard", s.handleDashboard)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)
		r.Post("/settings/clear", s.handleClearData)
		r.Put("/note", s.handleUpdateNote)

		r.Post("/chat", s.handleChat)
	})

	return r
}

// Shutdown stops the rate limiter cleanup and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
