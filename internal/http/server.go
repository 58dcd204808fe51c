// Package http exposes the JSON API for recording transactions, managing
// category budgets and alert preferences, and triggering budget checks.
package http

import (
	"context"
	"net/http"
	"sync"

	"nudge/internal/middleware/trace"
	"nudge/internal/services"
)

type Server struct {
	http.Server
	svc         *services.AlertService
	rateLimiter *rateLimiter
	tracer      *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc *services.AlertService) *Server {
	mux := http.NewServeMux()

	s := &Server{
		svc:         svc,
		rateLimiter: newRateLimiter(),
		tracer:      trace.NewMiddleware(clientIP),
	}

	s.Server = http.Server{
		Addr:    addr,
		Handler: s.tracer.Middleware(mux),
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)
	mux.HandleFunc("/metricsz", s.handleMetrics)

	mux.HandleFunc("/api/transactions", s.withAPIHeaders(s.handleTransactions))
	mux.HandleFunc("/api/transactions/{id}", s.withAPIHeaders(s.handleTransactionByID))
	mux.HandleFunc("/api/categories", s.withAPIHeaders(s.handleCategories))
	mux.HandleFunc("/api/categories/{id}", s.withAPIHeaders(s.handleCategoryByID))
	mux.HandleFunc("/api/categories/{id}/limit", s.withAPIHeaders(s.handleCategoryLimit))
	mux.HandleFunc("/api/preferences", s.withAPIHeaders(s.handlePreferences))
	mux.HandleFunc("/api/alerts/check", s.withAPIHeaders(s.handleAlertCheck))

	return s
}

// withAPIHeaders adds security headers and rate limiting for mutating requests.
func (s *Server) withAPIHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next(w, r)
	}
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// clientIP extracts the client IP, considering proxies.
func clientIP(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip = r.Header.Get("X-Real-IP")
	}
	if ip == "" {
		ip = r.RemoteAddr
	}
	return ip
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleMetrics reports coarse request counters from the trace middleware.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m := s.tracer.GetMetrics()
	respondJSON(w, http.StatusOK, map[string]int64{
		"total_requests":       m.TotalRequests,
		"avg_response_time_us": m.AverageResponseTime,
	})
}
