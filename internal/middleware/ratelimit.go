package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/insurelens/insurelens-ai/internal/metrics"
)

// RateLimiter is a per-client token bucket. Clients are keyed by remote IP;
// each bucket refills continuously at the configured per-minute rate.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*bucket

	perMinute int
	log       *zap.Logger
	stop      chan struct{}
	stopOnce  sync.Once
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a limiter allowing perMinute requests per client.
// perMinute <= 0 disables limiting.
func NewRateLimiter(perMinute int, log *zap.Logger) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	rl := &RateLimiter{
		clients:   make(map[string]*bucket),
		perMinute: perMinute,
		log:       log,
		stop:      make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

// Wrap enforces the limit around next. Rejected requests get 429 with a
// Retry-After hint; WebSocket upgrades are passed through untouched so a
// streaming session is not cut off mid-dialogue.
func (rl *RateLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.perMinute <= 0 || r.Header.Get("Upgrade") == "websocket" {
			next.ServeHTTP(w, r)
			return
		}

		client := clientIP(r)
		if !rl.allow(client) {
			metrics.RateLimitedTotal.Inc()
			rl.log.Warn("rate limit exceeded", zap.String("client", client), zap.String("path", r.URL.Path))
			w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfterSeconds()))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"code":"rate_limited","message":"too many requests, slow down"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allow takes one token from the client's bucket, refilling first.
func (rl *RateLimiter) allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.clients[client]
	if !ok {
		rl.clients[client] = &bucket{tokens: float64(rl.perMinute) - 1, lastRefill: now}
		return true
	}

	refill := now.Sub(b.lastRefill).Minutes() * float64(rl.perMinute)
	if refill > 0 {
		b.tokens = minF(float64(rl.perMinute), b.tokens+refill)
		b.lastRefill = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func (rl *RateLimiter) retryAfterSeconds() int {
	// Time until one token refills, rounded up.
	secs := 60 / rl.perMinute
	if secs < 1 {
		secs = 1
	}
	return secs
}

// sweep drops buckets idle for ten minutes so the client map stays bounded.
func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := time.Now().Add(-10 * time.Minute)
			for client, b := range rl.clients {
				if b.lastRefill.Before(cutoff) {
					delete(rl.clients, client)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Stop ends the background sweep.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// clientIP strips the port from RemoteAddr so one client is one bucket
// regardless of the ephemeral port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
