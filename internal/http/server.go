package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Imaginaryverse/spending-habits/internal/aggregate"
	"github.com/Imaginaryverse/spending-habits/internal/core"
	applog "github.com/Imaginaryverse/spending-habits/internal/log"
	"github.com/Imaginaryverse/spending-habits/internal/middleware/metrics"
	"github.com/Imaginaryverse/spending-habits/internal/middleware/ratelimit"
	"github.com/Imaginaryverse/spending-habits/internal/middleware/security"
	"github.com/Imaginaryverse/spending-habits/internal/middleware/trace"
	"github.com/Imaginaryverse/spending-habits/internal/services"
)

// SpendingAPI is the item side of the service layer.
type SpendingAPI interface {
	Categories(ctx context.Context) ([]core.SpendingCategory, error)
	List(ctx context.Context, filter core.ItemFilter) ([]core.SpendingItem, error)
	Get(ctx context.Context, userID, id string) (core.SpendingItem, error)
	Create(ctx context.Context, item core.SpendingItem) (core.SpendingItem, error)
	Update(ctx context.Context, item core.SpendingItem) (core.SpendingItem, error)
	Delete(ctx context.Context, userID, id string) error
}

// OverviewAPI serves aggregated views.
type OverviewAPI interface {
	Overview(ctx context.Context, userID string, ref time.Time) (services.Overview, error)
	History(ctx context.Context, userID string, res aggregate.Resolution, ref time.Time) (services.History, error)
	Budget(ctx context.Context, userID string, ref time.Time) (aggregate.Budget, error)
	DemoOverview(ref time.Time) services.Overview
	Invalidate(userID string)
}

// Accounts registers and authenticates users.
type Accounts interface {
	Register(ctx context.Context, email, name, password string) (core.User, error)
	Authenticate(ctx context.Context, email, password string) (core.User, error)
}

// TokenIssuer signs and verifies session tokens.
type TokenIssuer interface {
	TokenValidator
	Generate(user core.User) (string, time.Time, error)
}

type Profiles interface {
	GetProfile(ctx context.Context, userID string) (core.UserProfile, error)
	SaveProfile(ctx context.Context, p core.UserProfile) (core.UserProfile, error)
}

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

// Deps wires the server to the rest of the application.
type Deps struct {
	Spending SpendingAPI
	Overview OverviewAPI
	Accounts Accounts
	Tokens   TokenIssuer
	Profiles Profiles

	// ReadyChecks are run by /readyz, keyed by dependency name.
	ReadyChecks map[string]ReadyCheck
	Metrics     *metrics.Metrics
	Logger      *applog.Logger

	RateLimitPerMinute int
	DemoMode           bool
	Location           *time.Location
	Now                func() time.Time
}

type Server struct {
	http.Server
	deps    Deps
	logger  *applog.Logger
	limiter *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = applog.Discard()
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	s := &Server{
		deps:    deps,
		logger:  deps.Logger.WithComponent(applog.ComponentHTTP),
		limiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
	}

	mux := http.NewServeMux()
	s.routes(mux)

	detector := security.NewDetector(deps.Logger)
	detector.OnSuspicious(deps.Metrics.Suspicious)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.limiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		deps.Metrics.RateLimited(w, r)
		ErrorResponse(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, try again later").Write(w)
	}, http.MethodPost, http.MethodPut, http.MethodDelete)

	var handler http.Handler = jsonFallback(mux)
	handler = limit(handler)
	handler = detector.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = deps.Metrics.Middleware(handler)
	handler = trace.NewMiddleware(deps.Logger, detector.ExtractClientIP).Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	authed := func(h http.HandlerFunc) http.HandlerFunc { return requireAuth(s.deps.Tokens, h) }

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.deps.Metrics.Handler())

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	mux.HandleFunc("GET /api/categories", authed(s.handleCategories))
	mux.HandleFunc("GET /api/profile", authed(s.handleGetProfile))
	mux.HandleFunc("PUT /api/profile", authed(s.handleUpdateProfile))

	mux.HandleFunc("GET /api/items", authed(s.handleListItems))
	mux.HandleFunc("POST /api/items", authed(s.handleCreateItem))
	mux.HandleFunc("GET /api/items/{id}", authed(s.handleGetItem))
	mux.HandleFunc("PUT /api/items/{id}", authed(s.handleUpdateItem))
	mux.HandleFunc("DELETE /api/items/{id}", authed(s.handleDeleteItem))

	mux.HandleFunc("GET /api/overview", authed(s.handleOverview))
	mux.HandleFunc("GET /api/history", authed(s.handleHistory))
	mux.HandleFunc("GET /api/budget", authed(s.handleBudget))

	if s.deps.DemoMode {
		mux.HandleFunc("GET /api/demo/overview", s.handleDemoOverview)
	}
}

// jsonFallback serves requests the mux has no pattern for with a JSON error
// body. A method mismatch keeps the mux's 405 and its Allow header.
func jsonFallback(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, pattern := mux.Handler(r)
		if pattern != "" {
			mux.ServeHTTP(w, r)
			return
		}

		sw := &statusOnlyWriter{header: make(http.Header)}
		h.ServeHTTP(sw, r)
		if sw.status == http.StatusMethodNotAllowed {
			ErrorResponse(http.StatusMethodNotAllowed, CodeMethodNotAllowed,
				r.Method+" not allowed on "+r.URL.Path).
				Header("Allow", sw.header.Get("Allow")).
				Write(w)
			return
		}
		NotFoundError("no route for " + r.Method + " " + r.URL.Path).Write(w)
	})
}

// statusOnlyWriter records the status and headers of the mux's plain-text
// fallback and drops its body.
type statusOnlyWriter struct {
	header http.Header
	status int
}

func (w *statusOnlyWriter) Header() http.Header { return w.header }

func (w *statusOnlyWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
}

func (w *statusOnlyWriter) Write(b []byte) (int, error) {
	w.WriteHeader(http.StatusOK)
	return len(b), nil
}

// now returns the current time in the configured location.
func (s *Server) now() time.Time {
	return s.deps.Now().In(s.deps.Location)
}

// Shutdown stops accepting requests, drains in-flight ones and releases the
// rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	NewResponse().Data(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.deps.ReadyChecks))
	ready := true
	for name, check := range s.deps.ReadyChecks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
		s.logger.WarnContext(r.Context(), "Readiness check failed", "checks", checks)
	}
	NewResponse().Status(status).Data(map[string]any{"ready": ready, "checks": checks}).Write(w)
}
