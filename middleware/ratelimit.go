package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"docsync/pkg/httputil"
	"docsync/pkg/logger"
	"docsync/pkg/metrics"
)

// Limiter decides whether one more request for key is allowed. When it is
// not, retryAfter says how long the caller should wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)
	Name() string
}

// MemoryLimiter keeps a token bucket per key in process memory.
type MemoryLimiter struct {
	rps     float64
	burst   int
	buckets sync.Map // map[string]*rate.Limiter
}

func NewMemoryLimiter(rps float64, burst int) *MemoryLimiter {
	return &MemoryLimiter{rps: rps, burst: burst}
}

func (m *MemoryLimiter) Name() string { return "memory" }

func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	v, ok := m.buckets.Load(key)
	if !ok {
		v, _ = m.buckets.LoadOrStore(key, rate.NewLimiter(rate.Limit(m.rps), m.burst))
	}
	if v.(*rate.Limiter).Allow() {
		return true, 0, nil
	}
	return false, time.Second, nil
}

// RedisLimiter is a fixed-window counter shared by every process using the
// same Redis. Each window allows rps*window+burst requests per key.
type RedisLimiter struct {
	client  *redis.Client
	window  time.Duration
	allowed int64
	now     func() time.Time
}

func NewRedisLimiter(client *redis.Client, rps float64, burst int, window time.Duration) *RedisLimiter {
	if window < time.Second {
		window = time.Second
	}
	return &RedisLimiter{
		client:  client,
		window:  window,
		allowed: int64(rps*window.Seconds()) + int64(burst),
		now:     time.Now,
	}
}

func (l *RedisLimiter) Name() string { return "redis" }

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	windowSeconds := int64(l.window / time.Second)
	bucket := l.now().Unix() / windowSeconds
	redisKey := fmt.Sprintf("rl:%s:%d", key, bucket)

	cnt, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, err
	}
	if cnt == 1 {
		_ = l.client.Expire(ctx, redisKey, l.window+time.Second).Err()
	}
	if cnt > l.allowed {
		return false, l.window, nil
	}
	return true, 0, nil
}

// RateLimit rejects requests over the limit with 429. Authenticated requests
// are keyed by user, others by client address. X-Forwarded-For is only
// honored when the peer is one of trustedProxies. Limiter failures let the
// request through.
func RateLimit(l Limiter, trustedProxies ...netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + clientIP(r, trustedProxies)
			if userID := UserIDFrom(r.Context()); userID != "" {
				key = "sub:" + userID
			}

			ok, retryAfter, err := l.Allow(r.Context(), key)
			if err != nil {
				logger.Sugar.Errorf("Rate limit check failed for %s: %v", key, err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				metrics.RateLimitRejected.WithLabelValues(l.Name()).Inc()
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
				httputil.RespondError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
			metrics.RateLimitAllowed.WithLabelValues(l.Name()).Inc()
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the peer address. Behind a trusted proxy it walks
// X-Forwarded-For from the right and returns the first untrusted hop.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return "unknown"
	}
	if !isTrusted(host, trusted) {
		return host
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !isTrusted(hop, trusted) {
			return hop
		}
	}
	return host
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
