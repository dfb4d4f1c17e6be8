package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stockflow/backend/internal/access"
	"stockflow/backend/internal/domain"
	"stockflow/backend/internal/ledger"
	"stockflow/backend/internal/session"
)

type API struct {
	engine        *ledger.Engine
	sessions      *session.Store
	log           zerolog.Logger
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(engine *ledger.Engine, sessions *session.Store, log zerolog.Logger, allowedOrigin string) *API {
	return &API{
		engine:        engine,
		sessions:      sessions,
		log:           log,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/logout", a.requireAuth(a.handleLogout, access.RouteDashboard))
	mux.HandleFunc("/api/v1/auth/me", a.requireAuth(a.handleMe, access.RouteDashboard))

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, access.RouteProducts))
	mux.HandleFunc("/api/v1/products/", a.requireAuth(a.handleProductActions, access.RouteProducts))
	mux.HandleFunc("/api/v1/categories", a.requireAuth(a.handleCategories, access.RouteCategories))
	mux.HandleFunc("/api/v1/categories/", a.requireAuth(a.handleCategoryActions, access.RouteCategories))
	mux.HandleFunc("/api/v1/suppliers", a.requireAuth(a.handleSuppliers, access.RouteSuppliers))
	mux.HandleFunc("/api/v1/suppliers/", a.requireAuth(a.handleSupplierActions, access.RouteSuppliers))

	mux.HandleFunc("/api/v1/purchases", a.requireAuth(a.handlePurchases, access.RoutePurchases))
	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSales, access.RouteSales))
	mux.HandleFunc("/api/v1/adjustments", a.requireAuth(a.handleAdjustments, access.RouteProducts))

	mux.HandleFunc("/api/v1/settings", a.requireAuth(a.handleSettings, access.RouteSettings))
	mux.HandleFunc("/api/v1/users", a.requireAuth(a.handleUsers, access.RouteUsers))
	mux.HandleFunc("/api/v1/users/", a.requireAuth(a.handleUserActions, access.RouteUsers))

	mux.HandleFunc("/api/v1/reports/summary", a.requireAuth(a.handleReportSummary, access.RouteReports))
	mux.HandleFunc("/api/v1/reports/export", a.requireAuth(a.handleReportExport, access.RouteReports))
	mux.HandleFunc("/api/v1/reports/low-stock", a.requireAuth(a.handleLowStock, access.RouteDashboard))

	mux.HandleFunc("/api/v1/backup/export", a.requireAuth(a.handleBackupExport, access.RouteBackup))
	mux.HandleFunc("/api/v1/backup/import", a.requireAuth(a.handleBackupImport, access.RouteBackup))

	return a.withMiddleware(mux)
}

// requireAuth authenticates the bearer token and gates the handler on the
// policy table for the given route key, so HTTP exposure always matches
// what the access package says.
func (a *API) requireAuth(next http.HandlerFunc, route access.RouteKey) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.sessions.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if !access.CanAccess(route, actor.Role) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(WithActor(r.Context(), actor)))
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)

		if a.allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		a.log.Info().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// decodeJSON decodes the body into dst and runs struct validation.
func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return errors.New("invalid field " + fe.Field())
		}
		return errors.New("validation failed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}
