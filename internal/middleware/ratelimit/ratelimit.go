// Package ratelimit throttles requests per client with a fixed window.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds rate limiter configuration. Zero fields take defaults.
type Config struct {
	RequestsPerMinute int
	Window            time.Duration
	// IdleAfter is how long a client may stay quiet before it is forgotten.
	IdleAfter       time.Duration
	CleanupInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 60
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = 10 * time.Minute
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 5 * time.Minute
	}
	return c
}

type window struct {
	start time.Time
	last  time.Time
	count int
}

// Limiter counts requests per key inside a window that starts with the
// key's first request. Steady traffic does not extend the window.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window

	rejected int64
	stop     chan struct{}
	stopOnce sync.Once
}

// NewLimiter starts a limiter and its idle-client sweeper.
func NewLimiter(cfg Config) *Limiter {
	return newLimiter(cfg, time.Now)
}

func newLimiter(cfg Config, now func() time.Time) *Limiter {
	l := &Limiter{
		cfg:     cfg.withDefaults(),
		now:     now,
		windows: make(map[string]*window),
		stop:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Allow records a request for key. When the request is over the limit it
// returns false and the time left until the window resets.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.cfg.Window {
		l.windows[key] = &window{start: now, last: now, count: 1}
		return true, 0
	}
	w.count++
	w.last = now
	if w.count <= l.cfg.RequestsPerMinute {
		return true, 0
	}
	atomic.AddInt64(&l.rejected, 1)
	return false, w.start.Add(l.cfg.Window).Sub(now)
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep forgets clients idle for longer than IdleAfter.
func (l *Limiter) sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.cfg.IdleAfter)
	removed := 0
	for key, w := range l.windows {
		if w.last.Before(cutoff) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Stop ends the sweeper. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Metrics is a snapshot of limiter activity.
type Metrics struct {
	Rejected int64
	Clients  int
}

func (l *Limiter) GetMetrics() Metrics {
	l.mu.Lock()
	clients := len(l.windows)
	l.mu.Unlock()
	return Metrics{Rejected: atomic.LoadInt64(&l.rejected), Clients: clients}
}

// Middleware limits requests keyed by key(r). onLimit writes the rejection;
// Retry-After is already set when it runs. A nil onLimit sends a plain 429.
func (l *Limiter) Middleware(key func(*http.Request) string, onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retry := l.Allow(key(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(retry)))
			if onLimit == nil {
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			onLimit(w, r)
		})
	}
}

func retrySeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	return max(s, 1)
}
