// Package trace tags each request with an ID and writes the access log.
package trace

import (
	"context"
	"net/http"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"moneyflow/internal/log"
)

// RequestIDHeader is accepted from callers when well formed and echoed back.
// Schedulers that retry a cron call can pass the same ID to correlate logs.
const RequestIDHeader = "X-Request-ID"

var validRequestID = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

type requestIDKey struct{}

// Metrics counts traced requests.
type Metrics struct {
	TotalRequests int64
	ClientErrors  int64
	ServerErrors  int64
}

// Middleware assigns request IDs and logs every request.
type Middleware struct {
	clientIP func(*http.Request) string
	logger   *log.Logger

	total, client4xx, server5xx atomic.Int64
}

func NewMiddleware(logger *log.Logger, clientIP func(*http.Request) string) *Middleware {
	if logger == nil {
		logger = log.Discard()
	}
	if clientIP == nil {
		clientIP = func(r *http.Request) string { return r.RemoteAddr }
	}
	return &Middleware{clientIP: clientIP, logger: logger}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(RequestIDHeader)
		if !validRequestID.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		r = r.WithContext(ctx)
		ip := m.clientIP(r)

		access := log.NewStructuredLogger(m.logger.With(log.FieldRequestID, id))
		access.LogHTTPStart(ctx, r, ip)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		m.total.Add(1)
		switch {
		case sw.status >= 500:
			m.server5xx.Add(1)
		case sw.status >= 400:
			m.client4xx.Add(1)
		}
		access.LogHTTPEnd(ctx, r, sw.status, time.Since(start).Milliseconds(), ip)
	})
}

// statusWriter remembers the first status written.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// GetRequestID returns the ID Middleware stored in ctx.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID is GetRequestID for a request, in the shape log.Middleware takes.
func RequestID(r *http.Request) string {
	return GetRequestID(r.Context())
}

func (m *Middleware) GetMetrics() Metrics {
	return Metrics{
		TotalRequests: m.total.Load(),
		ClientErrors:  m.client4xx.Load(),
		ServerErrors:  m.server5xx.Load(),
	}
}
