package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"gastos/internal/cache"
	"gastos/internal/dashboard"
	applog "gastos/internal/log"
	"gastos/internal/middleware/ratelimit"
	"gastos/internal/middleware/security"
	"gastos/internal/middleware/trace"
	"gastos/internal/services"
	appweb "gastos/web"
)

// RefreshPublisher hands refresh requests to a background worker.
type RefreshPublisher interface {
	PublishRefreshRequest(ctx context.Context, reason, requestID string) error
}

// HealthCheck is a named dependency probe reported by /readyz.
type HealthCheck struct {
	Name  string
	Check func(context.Context) error
}

// Server serves the expense dashboard and its JSON API.
type Server struct {
	http.Server
	templates *template.Template
	dataset   *services.DatasetService
	publisher RefreshPublisher
	checks    []HealthCheck
	logger    *applog.Logger
	started   time.Time

	summaries *cache.LRUCache[dashboard.Summary]
	caches    *cache.Manager
	limiter   *ratelimit.Limiter
	limits    ratelimit.Config
	detector  *security.Detector
	tracer    *trace.Middleware

	// errorRetry is how long a failed load is served before retrying.
	errorRetry time.Duration

	shutdownOnce sync.Once
}

// ServerOption customises a Server.
type ServerOption func(*Server)

// WithRefreshPublisher makes POST /api/refresh enqueue instead of fetching
// inline.
func WithRefreshPublisher(p RefreshPublisher) ServerOption {
	return func(s *Server) { s.publisher = p }
}

// WithHealthCheck adds a readiness probe.
func WithHealthCheck(name string, check func(context.Context) error) ServerOption {
	return func(s *Server) {
		s.checks = append(s.checks, HealthCheck{Name: name, Check: check})
	}
}

func WithLogger(l *applog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithRateLimit(cfg ratelimit.Config) ServerOption {
	return func(s *Server) { s.limits = cfg }
}

// NewServer configures routes and templates, returning a ready-to-run
// http.Server. Summaries are memoised until the dataset changes.
func NewServer(addr string, dataset *services.DatasetService, opts ...ServerOption) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		dataset:    dataset,
		logger:     applog.New(applog.DefaultConfig()),
		started:    time.Now(),
		summaries:  cache.NewLRUCache[dashboard.Summary](100, 10*time.Minute),
		limits:     ratelimit.DefaultConfig(),
		detector:   security.NewDetector(),
		errorRetry: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent(applog.ComponentHTTP)
	s.limiter = ratelimit.NewLimiter(s.limits)
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, s.logger)

	s.caches = cache.NewManager(s.logger.Logger)
	s.caches.Register(s.summaries)
	s.caches.StartCleanup(10 * time.Minute)

	dataset.OnChange(func(services.State) {
		s.summaries.Purge()
	})

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates",
			applog.FieldError, err,
			applog.FieldOperation, applog.OpParse)
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/expenses", s.handleExpenses)
	mux.HandleFunc("GET /api/periods", s.handlePeriods)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/categories/{name}/stats", s.handleCategoryStats)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)

	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ExtractClientIP, isAPIRequest, s.onRateLimited)(h)
	h = s.detector.Middleware(true)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.tracer.Middleware(h)
	s.Handler = h

	return s
}

var templateFuncs = template.FuncMap{
	"money":      formatAmount,
	"toggleLink": toggleLink,
	"safeHTML":   func(s string) template.HTML { return template.HTML(s) },
	"monthName":  dashboard.MonthName,
}

func isAPIRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldComponent, applog.ComponentRateLimit,
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	w.Header().Set("Retry-After", "60")
	writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded, try again later")
}

// Shutdown stops background routines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// records returns the current dataset state, loading first when nothing has
// completed yet, the last outcome is older than the cache TTL, or the last
// load failed more than errorRetry ago.
func (s *Server) records(ctx context.Context) services.State {
	st := s.dataset.State()
	age := time.Since(st.LoadedAt)
	if st.LoadedAt.IsZero() || age > s.dataset.Store().TTL() || (st.Err != nil && age >= s.errorRetry) {
		_, _ = s.dataset.Load(ctx)
		st = s.dataset.State()
	}
	return st
}

// DatasetRefreshed reloads the dataset when another process refreshed the
// shared cache after the current records were loaded. It reports whether a
// reload ran.
func (s *Server) DatasetRefreshed(ctx context.Context, refreshedAt time.Time) (bool, error) {
	st := s.dataset.State()
	if !st.LoadedAt.IsZero() && !refreshedAt.After(st.LoadedAt) {
		return false, nil
	}
	s.logger.InfoContext(ctx, "Dataset refreshed elsewhere, reloading",
		applog.FieldOperation, applog.OpRefresh,
		"refreshed_at", refreshedAt)
	_, err := s.dataset.Load(ctx)
	return true, err
}

// summary memoises dashboard.Summarize per month and disabled set.
func (s *Server) summary(ctx context.Context, st services.State, p SummaryParams) (dashboard.Summary, bool) {
	year, month := p.Year, p.Month
	if !p.Set {
		latest, ok := dashboard.LatestMonth(st.Records)
		if !ok {
			return dashboard.Summary{}, false
		}
		year, month = latest.Year, latest.Month
	}

	key := summaryKey(st.LoadedAt.UnixNano(), year, month, p.disabledList())
	if sum, ok := s.summaries.Get(key); ok {
		applog.FromContext(ctx).DebugContext(ctx, "Summary cache hit",
			applog.FieldYear, year, applog.FieldMonth, month)
		return sum, true
	}

	record, ok := dashboard.Find(st.Records, year, month)
	if !ok {
		return dashboard.Summary{}, false
	}
	sum := dashboard.Summarize(record, p.Disabled)
	s.summaries.Set(key, sum)
	return sum, true
}
