package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"roomrelay/pkg/config"
	apperrors "roomrelay/pkg/errors"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const limiterIdleTimeout = 5 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiterStore stores per-key (for example, per IP) rate limiters.
type rateLimiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	rate      rate.Limit
	burstSize int
	lastPrune time.Time
	now       func() time.Time
}

func newRateLimiterStore(r rate.Limit, burst int) *rateLimiterStore {
	return &rateLimiterStore{
		limiters:  make(map[string]*limiterEntry),
		rate:      r,
		burstSize: burst,
		lastPrune: time.Now(),
		now:       time.Now,
	}
}

func (s *rateLimiterStore) getLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastPrune) > limiterIdleTimeout {
		s.pruneLocked(now)
	}

	entry, exists := s.limiters[key]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(s.rate, s.burstSize)}
		s.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

func (s *rateLimiterStore) pruneLocked(now time.Time) {
	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > limiterIdleTimeout {
			delete(s.limiters, key)
		}
	}
	s.lastPrune = now
}

func (s *rateLimiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// clientIP extracts the IP part from the request's remote address.
func clientIP(r *http.Request) string {
	// Try X-Forwarded-For first (behind proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// NewConnectionRateLimitMiddleware limits WebSocket upgrade attempts per
// client IP. A zero connections_per_minute disables it.
func NewConnectionRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	perMinute := cfg.RateLimiting.WebSocket.ConnectionsPerMinute
	if perMinute <= 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	store := newRateLimiterStore(rate.Every(time.Minute/time.Duration(perMinute)), cfg.RateLimiting.WebSocket.Burst)

	return func(c *gin.Context) {
		limiter := store.getLimiter(clientIP(c.Request))
		if !limiter.Allow() {
			c.Header("Retry-After", "60")
			_ = c.Error(apperrors.NewRateLimitError())
			c.Abort()
			return
		}
		c.Next()
	}
}
