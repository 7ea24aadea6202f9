package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	klog "kidcash/internal/log"
	"kidcash/internal/middleware/ratelimit"
	"kidcash/internal/middleware/security"
	"kidcash/internal/middleware/trace"
	"kidcash/internal/services"
)

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

// Options wires the stores and middleware settings into a Server.
type Options struct {
	Finance  *services.FinanceStore
	Family   *services.FamilyStore
	Settings *services.SettingsStore

	// Checks run on /readyz, keyed by dependency name.
	Checks map[string]ReadyCheck

	RateLimit      ratelimit.Config
	TrustedProxies []string
	Logger         *klog.Logger
}

type Server struct {
	http.Server

	finance  *services.FinanceStore
	family   *services.FamilyStore
	settings *services.SettingsStore
	checks   map[string]ReadyCheck

	validate         *validator.Validate
	logger           *klog.Logger
	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics

	shutdownOnce sync.Once
}

type appMetrics struct {
	uptime              time.Time
	transactionsCreated int64
	requestsReviewed    int64
	goalContributions   int64
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = klog.FromContext(context.Background())
	}

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.WarnContext(context.Background(), "Ignoring trusted proxy", klog.FieldError, err)
		}
	}

	s := &Server{
		finance:          opts.Finance,
		family:           opts.Family,
		settings:         opts.Settings,
		checks:           opts.Checks,
		validate:         NewValidator(),
		logger:           logger.WithComponent(klog.ComponentHTTP),
		securityDetector: detector,
		rateLimiter:      ratelimit.NewLimiter(opts.RateLimit),
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP, logger),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}

	mux := http.NewServeMux()
	s.routes(mux)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.rateLimiter.Middleware(detector.ExtractClientIP, RateLimited)

	var handler http.Handler = mux
	handler = limit(handler)
	handler = s.rejectSuspicious(handler)
	handler = s.traceMiddleware.Middleware(handler)
	handler = headers.Middleware(handler)

	s.Addr = addr
	s.Handler = handler
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("POST /api/session/login", s.handleLogin)
	mux.HandleFunc("POST /api/session/logout", s.handleLogout)
	mux.HandleFunc("POST /api/session/switch", s.handleSwitchUser)
	mux.HandleFunc("PATCH /api/session/user", s.handleUpdateUser)

	mux.HandleFunc("GET /api/family", s.handleFamily)
	mux.HandleFunc("POST /api/family/rules", s.handleAddRule)
	mux.HandleFunc("PATCH /api/family/rules/{id}", s.handleUpdateRule)
	mux.HandleFunc("DELETE /api/family/rules/{id}", s.handleDeleteRule)
	mux.HandleFunc("POST /api/family/rules/{id}/toggle", s.handleToggleRule)

	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)

	mux.HandleFunc("GET /api/requests", s.handleListRequests)
	mux.HandleFunc("POST /api/requests", s.handleCreateRequest)
	mux.HandleFunc("GET /api/requests/{id}", s.handleGetRequest)
	mux.HandleFunc("POST /api/requests/{id}/status", s.handleUpdateRequestStatus)

	mux.HandleFunc("GET /api/goals", s.handleListGoals)
	mux.HandleFunc("POST /api/goals", s.handleCreateGoal)
	mux.HandleFunc("GET /api/goals/{id}", s.handleGetGoal)
	mux.HandleFunc("POST /api/goals/{id}/contributions", s.handleContributeToGoal)
	mux.HandleFunc("POST /api/goals/{id}/funds", s.handleAddFundsToGoal)
	mux.HandleFunc("POST /api/goals/{id}/complete", s.handleCompleteGoal)

	mux.HandleFunc("GET /api/stats", s.handleStats)

	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handleUpdateSettings)
	mux.HandleFunc("GET /api/settings/options", s.handleSettingsOptions)
}

// rejectSuspicious answers scanner probes with a plain 404.
func (s *Server) rejectSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.securityDetector.DetectSuspiciousRequest(r) {
			klog.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request rejected",
				klog.FieldComponent, klog.ComponentSecurity,
				klog.FieldMethod, r.Method,
				klog.FieldPath, r.URL.Path,
				klog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
				klog.FieldUserAgent, r.UserAgent())
			NewJSONResponse().Status(http.StatusNotFound).Error(CodeNotFound, "not found").Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
