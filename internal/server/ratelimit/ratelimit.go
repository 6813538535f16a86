package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type RateLimiter struct {
	connections  map[string]int         // IP -> open websocket count
	authAttempts map[string][]time.Time // IP -> timestamps of auth attempts
	mu           sync.RWMutex
	maxConns     int
	maxAuth      int
	now          func() time.Time
}

func New(maxConns, maxAuth int) *RateLimiter {
	return &RateLimiter{
		connections:  make(map[string]int),
		authAttempts: make(map[string][]time.Time),
		maxConns:     maxConns,
		maxAuth:      maxAuth,
		now:          time.Now,
	}
}

func (rl *RateLimiter) Limits() (maxConns, maxAuth int) {
	return rl.maxConns, rl.maxAuth
}

// Run drops expired auth attempts every minute until ctx ends.
func (rl *RateLimiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-time.Minute)
	for ip, attempts := range rl.authAttempts {
		valid := recent(attempts, cutoff)
		if len(valid) == 0 {
			delete(rl.authAttempts, ip)
		} else {
			rl.authAttempts[ip] = valid
		}
	}
}

func recent(attempts []time.Time, cutoff time.Time) []time.Time {
	var valid []time.Time
	for _, t := range attempts {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	return valid
}

// Acquire reserves a websocket slot for ip. It reports false when ip is at
// its limit.
func (rl *RateLimiter) Acquire(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.connections[ip] >= rl.maxConns {
		return false
	}
	rl.connections[ip]++
	return true
}

func (rl *RateLimiter) Release(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.connections[ip]--
	if rl.connections[ip] <= 0 {
		delete(rl.connections, ip)
	}
}

func (rl *RateLimiter) Connections(ip string) int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.connections[ip]
}

// CanAuth records an auth attempt and reports whether it is allowed.
func (rl *RateLimiter) CanAuth(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	attempts := recent(rl.authAttempts[ip], now.Add(-time.Minute))
	if len(attempts) >= rl.maxAuth {
		rl.authAttempts[ip] = attempts
		return false
	}
	rl.authAttempts[ip] = append(attempts, now)
	return true
}

// AuthLimit is gin middleware for the login and register routes.
func (rl *RateLimiter) AuthLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.CanAuth(GetClientIP(c.Request)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many login attempts. Please wait a minute.",
				"code":  "rate_limited",
			})
			return
		}
		c.Next()
	}
}

func GetClientIP(r *http.Request) string {
	// First hop of X-Forwarded-For when behind a reverse proxy.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
