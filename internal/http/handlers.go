package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().Text("ok").Write(w)
}

// handleReady checks that the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed", "error", err)
		NewResponse().Status(http.StatusServiceUnavailable).Text("not ready").Write(w)
		return
	}
	NewResponse().Text("ready").Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", contentTypeText)

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	counters := []struct {
		name, help string
		value      int64
	}{
		{"http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests},
		{"http_client_errors_total", "Responses with a 4xx status", traceMetrics.ClientErrors},
		{"http_server_errors_total", "Responses with a 5xx status", traceMetrics.ServerErrors},
		{"recurring_runs_total", "Recurring-transaction runs triggered over HTTP", atomic.LoadInt64(&s.appMetrics.runs)},
		{"recurring_run_failures_total", "Runs that could not list definitions", atomic.LoadInt64(&s.appMetrics.runFailures)},
		{"recurring_transactions_created_total", "Transactions generated by runs", atomic.LoadInt64(&s.appMetrics.transactionsCreated)},
		{"recurring_item_errors_total", "Per-definition errors reported by runs", atomic.LoadInt64(&s.appMetrics.itemErrors)},
		{"feed_cache_hits_total", "Calendar feed cache hits", atomic.LoadInt64(&s.appMetrics.cacheHits)},
		{"feed_cache_misses_total", "Calendar feed cache misses", atomic.LoadInt64(&s.appMetrics.cacheMisses)},
		{"rate_limit_hits_total", "Requests rejected by the rate limiter", rateLimitMetrics.Rejected},
		{"security_suspicious_requests_total", "Requests matching probe patterns", securityMetrics.SuspiciousRequests},
		{"security_invalid_ip_total", "Requests whose peer address did not parse", securityMetrics.InvalidIPAttempts},
	}

	w.WriteHeader(http.StatusOK)
	for _, c := range counters {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", c.name, c.help, c.name, c.name, c.value)
	}

	fmt.Fprintf(w, "# HELP feed_cache_entries Current calendar feed cache entries\n")
	fmt.Fprintf(w, "# TYPE feed_cache_entries gauge\n")
	fmt.Fprintf(w, "feed_cache_entries %d\n\n", s.feedCache.Size())

	fmt.Fprintf(w, "# HELP rate_limit_active_clients Clients tracked by the rate limiter\n")
	fmt.Fprintf(w, "# TYPE rate_limit_active_clients gauge\n")
	fmt.Fprintf(w, "rate_limit_active_clients %d\n\n", rateLimitMetrics.Clients)

	fmt.Fprintf(w, "# HELP uptime_seconds Process uptime\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.appMetrics.uptime).Seconds())
}
