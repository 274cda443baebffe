package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"caixaforte/backend/internal/domain"
	"caixaforte/backend/internal/metrics"
	"caixaforte/backend/internal/service"
	"caixaforte/backend/internal/store"
)

const maxBodyBytes = 1 << 20

type Server struct {
	svc          *service.Service
	auth         *AuthManager
	logger       *zap.Logger
	loginLimiter *attemptLimiter
}

func NewServer(svc *service.Service, auth *AuthManager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		svc:          svc,
		auth:         auth,
		logger:       logger,
		loginLimiter: newAttemptLimiter(8, time.Minute),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("GET /api/me", s.requireAuth(s.handleMe))

	mux.HandleFunc("POST /api/pos/checkout", s.requireAuth(s.handleCheckout))
	mux.HandleFunc("GET /api/pos/search", s.requireAuth(s.handleProductSearch))

	mux.HandleFunc("POST /api/cash-closing", s.requireAuth(s.handleCashClosing))
	mux.HandleFunc("GET /api/cash-closing", s.requireAuth(s.handleListCashClosings, domain.RoleAdmin))

	mux.HandleFunc("POST /api/stock/adjust", s.requireAuth(s.handleStockAdjust, domain.RoleAdmin, domain.RoleManager))
	mux.HandleFunc("GET /api/stock/movements", s.requireAuth(s.handleStockMovements))
	mux.HandleFunc("GET /api/stock/alerts", s.requireAuth(s.handleStockAlerts, domain.RoleAdmin, domain.RoleManager))

	mux.HandleFunc("GET /api/dashboard/kpi", s.requireAuth(s.handleDashboardKPI))
	mux.HandleFunc("GET /api/dashboard/sales", s.requireAuth(s.handleDashboardSales))
	mux.HandleFunc("GET /api/dashboard/top-products", s.requireAuth(s.handleTopProducts))

	mux.HandleFunc("GET /api/products", s.requireAuth(s.handleListProducts))
	mux.HandleFunc("POST /api/products", s.requireAuth(s.handleCreateProduct, domain.RoleAdmin, domain.RoleManager))

	return s.withMiddleware(mux)
}

// requireAuth parses the Bearer token, attaches the verified actor to the
// request context and optionally enforces a role allow-list. Services still
// re-check roles so nothing depends on the HTTP layer alone.
func (s *Server) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		actor, err := s.auth.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		if len(roles) > 0 {
			allowed := false
			for _, role := range roles {
				if actor.Role == role {
					allowed = true
					break
				}
			}
			if !allowed {
				writeError(w, http.StatusForbidden, "access denied")
				return
			}
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Keyed on username+IP so one locked account does not block the whole
	// terminal, and one IP cannot spray every account unthrottled.
	key := strings.ToLower(strings.TrimSpace(req.Username)) + "|" + clientIP(r)
	if !s.loginLimiter.allow(key) {
		writeError(w, http.StatusTooManyRequests, "too many login attempts, try again later")
		return
	}

	resp, err := s.auth.Login(r.Context(), req)
	if err != nil {
		s.loginLimiter.record(key)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	s.loginLimiter.reset(key)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	writeJSON(w, http.StatusOK, actor)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.svc.Checkout(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleProductSearch(w http.ResponseWriter, r *http.Request) {
	results, err := s.svc.SearchProducts(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": results})
}

func (s *Server) handleCashClosing(w http.ResponseWriter, r *http.Request) {
	var req domain.CashClosingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	closing, err := s.svc.CloseCash(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": closing})
}

func (s *Server) handleListCashClosings(w http.ResponseWriter, r *http.Request) {
	closings, err := s.svc.ListCashClosings(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": closings})
}

func (s *Server) handleStockAdjust(w http.ResponseWriter, r *http.Request) {
	var req domain.StockAdjustRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.svc.AdjustStock(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": result})
}

func (s *Server) handleStockMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := parsePositiveInt(q.Get("page"), 1)
	limit := parsePositiveInt(q.Get("limit"), 50)

	pageData, err := s.svc.ListStockMovements(r.Context(),
		q.Get("productId"), q.Get("userId"), q.Get("type"), page, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pageData)
}

func (s *Server) handleStockAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.svc.ListLowStockProducts(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": alerts})
}

func (s *Server) handleDashboardKPI(w http.ResponseWriter, r *http.Request) {
	kpi, err := s.svc.DashboardKPI(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": kpi})
}

func (s *Server) handleDashboardSales(w http.ResponseWriter, r *http.Request) {
	series, err := s.svc.DashboardSales(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	top, err := s.svc.TopProducts(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": top})
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.svc.ListProducts(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": products})
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	product, err := s.svc.CreateProduct(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": product})
}

// writeServiceError maps domain errors to HTTP statuses. Unknown errors are
// logged server-side and returned as an opaque 500.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var stockErr *store.InsufficientStockError
	if errors.As(err, &stockErr) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     stockErr.Error(),
			"productId": stockErr.ProductID,
			"available": stockErr.Available,
			"requested": stockErr.Requested,
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "access denied")
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")

		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).
			Observe(duration.Seconds())
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", duration))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// attemptLimiter is a small sliding-window limiter keyed by client, used to
// slow down credential stuffing on the login endpoint.
type attemptLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	max      int
	window   time.Duration
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	return &attemptLimiter{
		attempts: make(map[string][]time.Time),
		max:      max,
		window:   window,
	}
}

func (l *attemptLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.window)
	recent := l.attempts[key][:0]
	for _, t := range l.attempts[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	l.attempts[key] = recent
	return len(recent) < l.max
}

func (l *attemptLimiter) record(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts[key] = append(l.attempts[key], time.Now())
}

func (l *attemptLimiter) reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, key)
}
