package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"moneyflow/internal/cache"
	"moneyflow/internal/core"
	"moneyflow/internal/log"
	"moneyflow/internal/middleware/ratelimit"
	"moneyflow/internal/middleware/security"
	"moneyflow/internal/middleware/trace"
)

// Runner executes the recurring-transaction job for a day.
type Runner interface {
	Run(ctx context.Context, today core.Date) (core.RunSummary, error)
}

// RecurringReader is the read side the projection and feed handlers use.
type RecurringReader interface {
	GetRecurring(ctx context.Context, id string) (core.RecurringTransaction, error)
	ListRecurring(ctx context.Context, userID string) ([]core.RecurringTransaction, error)
	ListActiveRecurring(ctx context.Context) ([]core.RecurringTransaction, error)
	Ping(ctx context.Context) error
}

// Options configures the server. Zero values fall back to defaults.
type Options struct {
	Addr               string
	CronSecret         string
	Location           *time.Location
	RateLimitPerMinute int
	FeedCacheSize      int
	FeedCacheTTL       time.Duration
	RunTimeout         time.Duration // per cron run; zero means the request context only
	TrustedProxies     []*net.IPNet  // in addition to loopback and private networks
	Logger             *log.Logger

	// Now is the clock used to compute "today"; tests pin it.
	Now func() time.Time
}

type Server struct {
	http.Server
	runner Runner
	store  RecurringReader
	secret []byte
	loc    *time.Location
	now    func() time.Time
	logger *log.Logger

	runTimeout time.Duration

	feedCache    *cache.LRUCache[string]
	feeds        *cache.Loader[string]
	cacheManager *cache.Manager

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics
}

type appMetrics struct {
	runs                int64
	runFailures         int64
	transactionsCreated int64
	itemErrors          int64
	cacheHits           int64
	cacheMisses         int64
	uptime              time.Time
}

// NewServer wires the router, middleware and caches.
func NewServer(runner Runner, store RecurringReader, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8081"
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.FeedCacheSize < 1 {
		opts.FeedCacheSize = 128
	}
	if opts.FeedCacheTTL <= 0 {
		opts.FeedCacheTTL = 5 * time.Minute
	}

	feedCache := cache.NewLRUCache[string](opts.FeedCacheSize, opts.FeedCacheTTL)
	detector := security.NewDetector(opts.TrustedProxies...)

	s := &Server{
		runner:           runner,
		store:            store,
		secret:           []byte(opts.CronSecret),
		loc:              opts.Location,
		runTimeout:       opts.RunTimeout,
		now:              opts.Now,
		logger:           opts.Logger.WithComponent(log.ComponentHTTP),
		feedCache:        feedCache,
		feeds:            cache.NewLoader[string](feedCache),
		cacheManager:     cache.NewManager(opts.Logger),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(opts.Logger, detector.ExtractClientIP),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}
	s.cacheManager.Register(feedCache)
	s.cacheManager.StartCleanup(time.Minute)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	limit := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.onRateLimit)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(log.ComponentMiddleware(log.ComponentRecurring), limit, s.requireBearer)
	api.HandleFunc("/recurring-transactions", s.handleCron).Methods(http.MethodGet)
	api.HandleFunc("/recurring/{id}/next", s.handleNext).Methods(http.MethodGet)
	api.HandleFunc("/recurring/{id}/upcoming", s.handleUpcoming).Methods(http.MethodGet)

	cal := r.PathPrefix("/calendar").Subrouter()
	cal.Use(log.ComponentMiddleware(log.ComponentCalendar), limit, s.requireBearer)
	cal.HandleFunc("/recurring.ics", s.handleFeed).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("not found").Write(w)
	})

	var h http.Handler = r
	h = log.Middleware(s.logger, trace.RequestID)(h)
	h = s.securityDetector.Middleware(s.logger)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.traceMiddleware.Middleware(h)
	return h
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(),
		"Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
}

// today is the calendar day in the configured zone.
func (s *Server) today() core.Date {
	return core.DateOf(s.now().In(s.loc))
}

// InvalidateFeeds drops cached calendar feeds.
func (s *Server) InvalidateFeeds() {
	s.feeds.Invalidate()
}

// Shutdown stops background work and drains connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Stop()
	s.cacheManager.Stop()
	err := s.Server.Shutdown(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (m *appMetrics) recordRun(summary core.RunSummary, err error) {
	atomic.AddInt64(&m.runs, 1)
	if err != nil {
		atomic.AddInt64(&m.runFailures, 1)
	}
	atomic.AddInt64(&m.transactionsCreated, int64(summary.Created))
	atomic.AddInt64(&m.itemErrors, int64(len(summary.Errors)))
}
