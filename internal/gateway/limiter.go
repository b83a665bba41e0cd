// ABOUTME: Per-key token bucket limiter pool for guest sends
// ABOUTME: Each guest or session key gets its own golang.org/x/time/rate limiter

package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

// maxLimiters bounds the pool; it is reset when full.
const maxLimiters = 50_000

type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &limiterPool{m: make(map[string]*rate.Limiter), rps: rps, burst: burst}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	if len(p.m) >= maxLimiters {
		p.m = make(map[string]*rate.Limiter)
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = l
	return l
}

// Allow reports whether key may send now.
func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}
