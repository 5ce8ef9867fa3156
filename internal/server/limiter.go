package server

import (
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// IPLimiter hands out one token bucket per client IP for WebSocket
// handshakes.
type IPLimiter struct {
	limiters sync.Map
	rate     rate.Limit
	burst    int
}

// NewIPLimiter allows r handshakes per second per IP with the given burst.
func NewIPLimiter(r float64, burst int) *IPLimiter {
	return &IPLimiter{rate: rate.Limit(r), burst: burst}
}

// Allow reports whether ip may open another connection now.
func (l *IPLimiter) Allow(ip string) bool {
	return l.get(ip).Allow()
}

func (l *IPLimiter) get(ip string) *rate.Limiter {
	now := time.Now().UnixNano()
	if val, ok := l.limiters.Load(ip); ok {
		entry := val.(*ipLimiter)
		entry.lastSeen.Store(now)
		return entry.limiter
	}
	entry := &ipLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
	entry.lastSeen.Store(now)
	actual, loaded := l.limiters.LoadOrStore(ip, entry)
	if loaded {
		actual.(*ipLimiter).lastSeen.Store(now)
	}
	return actual.(*ipLimiter).limiter
}

// Cleanup forgets limiters idle for longer than maxIdle.
func (l *IPLimiter) Cleanup(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle).UnixNano()
	l.limiters.Range(func(key, value any) bool {
		if value.(*ipLimiter).lastSeen.Load() < cutoff {
			l.limiters.Delete(key)
		}
		return true
	})
}

// StartCleanup runs Cleanup every interval until done is closed.
func (l *IPLimiter) StartCleanup(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Cleanup(interval)
			case <-done:
				return
			}
		}
	}()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
