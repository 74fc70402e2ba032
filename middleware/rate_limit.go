package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cppla/hoppin/metrics"
	"github.com/cppla/hoppin/utils"
)

const (
	limiterIdleTTL       = 5 * time.Minute
	limiterSweepInterval = time.Minute
)

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

// RateLimiter keeps one token bucket per caller. Authenticated callers are keyed
// by user id, anonymous ones by client IP.
type RateLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	limiters  map[string]*rateLimiter
	nextSweep time.Time
}

// NewRateLimiter allows perMinute requests per caller with a burst of half that.
func NewRateLimiter(perMinute int) *RateLimiter {
	perMinute = max(perMinute, 1)
	return &RateLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    max(perMinute/2, 1),
		now:      time.Now,
		limiters: map[string]*rateLimiter{},
	}
}

// Middleware rejects callers that ran out of tokens with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !rl.allow(callerKey(ctx)) {
			metrics.APIRateLimitHits.WithLabelValues(routeOf(ctx)).Inc()
			utils.Abort(ctx, http.StatusTooManyRequests, utils.CodeRateLimited+1, "rate limit exceeded")
			return
		}
		ctx.Next()
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if !now.Before(rl.nextSweep) {
		rl.sweep(now)
	}

	l, ok := rl.limiters[key]
	if !ok {
		l = &rateLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = l
	}
	l.expires = now.Add(limiterIdleTTL)
	return l.limiter.AllowN(now, 1)
}

// sweep drops idle buckets. It runs at most once per limiterSweepInterval.
func (rl *RateLimiter) sweep(now time.Time) {
	for k, l := range rl.limiters {
		if now.After(l.expires) {
			delete(rl.limiters, k)
		}
	}
	rl.nextSweep = now.Add(limiterSweepInterval)
}

func callerKey(ctx *gin.Context) string {
	if id := CurrentUserID(ctx); id != "" {
		return fmt.Sprintf("user:%s", id)
	}
	return "ip:" + ctx.ClientIP()
}

func routeOf(ctx *gin.Context) string {
	if r := ctx.FullPath(); r != "" {
		return r
	}
	return "unmatched"
}
