package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"hourlog/internal/cache"
	"hourlog/internal/core"
	"hourlog/internal/identity"
	"hourlog/internal/journal"
	applog "hourlog/internal/log"
	"hourlog/internal/middleware/ratelimit"
	"hourlog/internal/middleware/security"
	"hourlog/internal/middleware/trace"
)

// Server exposes the journal API over HTTP. Every /api route runs behind
// the trace, logging, detection, security-header and identity middleware;
// write routes are additionally rate limited per client IP.
type Server struct {
	http.Server

	journal  *journal.Service
	identity identity.Provider

	logger     *applog.Logger
	structured *applog.StructuredLogger

	tracer   *trace.Middleware
	limiter  *ratelimit.Limiter
	detector *security.Detector

	// Month counts are the hot read path (one query per calendar cell on
	// the month view), so they get a small LRU in front of the store.
	countsCache  *cache.LRUCache[map[string]int]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc *journal.Service, provider identity.Provider) *Server {
	mux := http.NewServeMux()

	detector := security.NewDetector()
	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfig())
	tracer := trace.NewMiddleware(detector.ExtractClientIP)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	logger := applog.Default(applog.ComponentHTTP)

	countsCache := cache.NewLRUCache[map[string]int](100, 5*time.Minute)
	manager := cache.NewManager()
	manager.Register(countsCache)
	manager.StartCleanup(10 * time.Minute)

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		journal:      svc,
		identity:     provider,
		logger:       logger,
		structured:   applog.NewStructuredLogger(logger),
		tracer:       tracer,
		limiter:      limiter,
		detector:     detector,
		countsCache:  countsCache,
		cacheManager: manager,
	}

	logging := applog.Middleware(logger)
	requestID := applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})

	// Order matters: the tracer assigns the request id that the logging
	// middleware then attaches to the context logger.
	base := func(h http.Handler) http.Handler {
		return tracer.Middleware(logging(requestID(s.withDetection(headers.Middleware(h)))))
	}
	read := func(h http.HandlerFunc) http.Handler {
		return base(s.withUser(h))
	}
	write := func(h http.HandlerFunc) http.Handler {
		limited := limiter.Middleware(detector.ExtractClientIP, nil)
		return base(limited(s.withUser(h)))
	}

	mux.Handle("/api/entries/day", read(s.handleGetDay))
	mux.Handle("/api/entries/month-counts", read(s.handleMonthCounts))
	mux.Handle("/api/entries/all", read(s.handleGetAll))
	mux.Handle("/api/export", read(s.handleExport))
	mux.Handle("/api/entries/set-hour", write(s.handleSetHour))
	mux.Handle("/api/entries/set-many", write(s.handleSetMany))
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	return s
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.cacheManager != nil {
			s.cacheManager.Stop()
		}
		if s.limiter != nil {
			s.limiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

type contextKey string

const userIDKey contextKey = "user_id"

// withUser resolves the request's user id and stores it in the context.
// Requests without an authenticated user get a 401.
func (s *Server) withUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.identity.UserID(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next(w, r.WithContext(ctx))
	}
}

// withDetection flags scanner-looking requests. Detection is log-only; the
// request is still served and the count surfaces on /metrics.
func (s *Server) withDetection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request pattern",
				"method", r.Method, "path", r.URL.Path)
		}
		next.ServeHTTP(w, r)
	})
}

// UserIDFromContext returns the user id resolved by the identity middleware.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

func (s *Server) countsKey(userID string, year, month int) string {
	return userID + "|" + strconv.Itoa(year) + "-" + strconv.Itoa(month)
}

// invalidateCounts drops the cached month counts covering the given date.
func (s *Server) invalidateCounts(userID, date string) {
	t, err := core.ParseDate(date)
	if err != nil {
		return
	}
	s.countsCache.Delete(s.countsKey(userID, t.Year(), int(t.Month())))
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
