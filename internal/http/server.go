package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"bilancio/internal/identity"
	applog "bilancio/internal/log"
	"bilancio/internal/middleware/ratelimit"
	"bilancio/internal/middleware/security"
	"bilancio/internal/middleware/trace"
	"bilancio/internal/services"
)

// DefaultStoreTimeout bounds the store work of a single request.
const DefaultStoreTimeout = 7 * time.Second

// Pinger reports whether the store can serve requests.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups what the handlers call into.
type Services struct {
	Ledger     *services.LedgerService
	Stats      *services.StatsService
	Categories *services.CategoryService
	Settings   *services.SettingsService
	Store      Pinger
}

type Options struct {
	RateLimitPerMinute int
	StoreTimeout       time.Duration
	Logger             *applog.Logger
	Headers            security.HeadersConfig
}

type Server struct {
	http.Server
	ledger     *services.LedgerService
	stats      *services.StatsService
	categories *services.CategoryService
	settings   *services.SettingsService
	store      Pinger

	verifier     *identity.Verifier
	limiter      *ratelimit.Limiter
	tracer       *trace.Middleware
	storeTimeout time.Duration

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc Services, verifier *identity.Verifier, opts Options) *Server {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.Headers == (security.HeadersConfig{}) {
		opts.Headers = security.DefaultHeadersConfig()
	}
	limitCfg := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		limitCfg.RequestsPerMinute = opts.RateLimitPerMinute
	}

	s := &Server{
		ledger:       svc.Ledger,
		stats:        svc.Stats,
		categories:   svc.Categories,
		settings:     svc.Settings,
		store:        svc.Store,
		verifier:     verifier,
		limiter:      ratelimit.NewLimiter(limitCfg),
		tracer:       trace.NewMiddleware(clientIP),
		storeTimeout: opts.StoreTimeout,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.Handle("GET /api/stats/categories", s.api(s.handleCategoryStats))
	mux.Handle("GET /api/stats/balance", s.api(s.handleBalanceStats))
	mux.Handle("GET /api/overview", s.api(s.handleOverview))
	mux.Handle("GET /api/history-data", s.api(s.handleHistoryData))
	mux.Handle("GET /api/history-periods", s.api(s.handleHistoryPeriods))
	mux.Handle("GET /api/transactions-history", s.api(s.handleTransactionHistory))

	mux.Handle("POST /api/transactions", s.api(s.handleCreateTransaction))
	mux.Handle("PUT /api/transactions/{id}", s.api(s.handleUpdateTransaction))
	mux.Handle("DELETE /api/transactions/{id}", s.api(s.handleDeleteTransaction))

	mux.Handle("GET /api/categories", s.api(s.handleListCategories))
	mux.Handle("POST /api/categories", s.api(s.handleCreateCategory))
	mux.Handle("DELETE /api/categories", s.api(s.handleDeleteCategory))

	mux.Handle("GET /api/settings", s.api(s.handleGetSettings))
	mux.Handle("PUT /api/settings", s.api(s.handleUpdateSettings))
	mux.Handle("GET /api/currencies", s.api(s.handleCurrencies))

	var handler http.Handler = mux
	handler = security.Headers(opts.Headers)(handler)
	handler = s.tracer.Middleware(handler)
	handler = applog.Middleware(opts.Logger.WithComponent(applog.ComponentHTTP))(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// api wraps an /api handler with rate limiting and bearer authentication.
func (s *Server) api(h http.HandlerFunc) http.Handler {
	limited := s.limiter.Middleware(clientIP, func(w http.ResponseWriter, r *http.Request) {
		slog.WarnContext(r.Context(), "Rate limit exceeded", "client_ip", clientIP(r), "path", r.URL.Path)
		TooManyRequestsError().Write(w)
	})
	return limited(s.authenticate(h))
}

// authenticate verifies the bearer token and stores the user id on the context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.verifier.VerifyHeader(r.Header.Get("Authorization"))
		if err != nil {
			slog.DebugContext(r.Context(), "Authentication failed", "error", err)
			UnauthorizedError().Write(w)
			return
		}
		ctx := identity.WithUserID(r.Context(), userID)
		ctx = applog.WithLogger(ctx, applog.FromContext(ctx).With(applog.FieldUserID, userID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// storeContext derives the per-request deadline for store calls.
func (s *Server) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.storeTimeout)
}

// Limiter exposes the rate limiter for metrics.
func (s *Server) Limiter() *ratelimit.Limiter { return s.limiter }

// Metrics returns the request counters of the trace middleware.
func (s *Server) Metrics() trace.Metrics { return s.tracer.GetMetrics() }

// Shutdown stops background goroutines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the peer address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			slog.WarnContext(r.Context(), "Readiness check failed", "error", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
