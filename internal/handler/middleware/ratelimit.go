package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/commentgate-api/internal/ierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client IP. Buckets idle for
// limiterIdleTTL are dropped on the next sweep.
type IPRateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rps       rate.Limit
	burst     int
	lastSweep time.Time
	nowFn     func() time.Time
	logger    *zap.Logger
}

func NewIPRateLimiter(rps float64, burst int, logger *zap.Logger) *IPRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &IPRateLimiter{
		visitors:  make(map[string]*visitor),
		rps:       rate.Limit(rps),
		burst:     burst,
		lastSweep: time.Now(),
		nowFn:     time.Now,
		logger:    logger.Named("RateLimiter"),
	}
}

func (l *IPRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > limiterIdleTTL {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Handler rejects requests beyond the per-IP budget with 429. A non-positive
// rate disables limiting.
func (l *IPRateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.rps <= 0 {
			c.Next()
			return
		}
		if !l.allow(c.ClientIP()) {
			l.logger.Warn("Rate limit exceeded", zap.String("client_ip", c.ClientIP()), zap.String("path", c.FullPath()))
			c.Header("Retry-After", "1")
			_ = c.Error(ierr.ErrRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}
