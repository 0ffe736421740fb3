package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/qs3c/insight_go_server/internal/pkg/response"
)

// limiterIdleTTL 超过该时间未使用的限流器会被回收
const limiterIdleTTL = 10 * time.Minute

// RateLimiter 按用户的令牌桶限流
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*userLimiter
	limit    rate.Limit
	burst    int
	now      func() time.Time
	lastGC   time.Time
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*userLimiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow 消耗一个令牌，返回是否放行及建议的重试等待时间
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	if l.limit <= 0 {
		return true, 0
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastGC) > limiterIdleTTL {
		for k, ul := range l.limiters {
			if now.Sub(ul.lastSeen) > limiterIdleTTL {
				delete(l.limiters, k)
			}
		}
		l.lastGC = now
	}

	ul, ok := l.limiters[key]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = ul
	}
	ul.lastSeen = now

	r := ul.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// RateLimit 限流中间件，已登录用户按用户 ID，否则按客户端 IP
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if userID, ok := GetUserID(c); ok {
			key = "user:" + strconv.FormatInt(userID, 10)
		}

		allowed, retryAfter := limiter.Allow(key)
		if !allowed {
			seconds := int((retryAfter + time.Second - 1) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			response.RateLimitError(c, "请求过于频繁，请稍后再试")
			c.Abort()
			return
		}

		c.Next()
	}
}
