// Package ratelimit bounds job submissions per client IP. A Redis fixed
// window is shared across replicas; without Redis, or when Redis errors, an
// in-process token bucket per IP takes over.
package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"montage/internal/httpkit"
	"montage/internal/pkg/errors"
	"montage/internal/pkg/logger"
)

// WindowStore is the Redis subset the fixed window needs.
type WindowStore interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

type Options struct {
	// RPM is the per-IP budget; zero or negative disables limiting.
	RPM   int
	Redis WindowStore
	Log   *logger.Logger
	Now   func() time.Time
}

type Limiter struct {
	rpm   int
	redis WindowStore
	log   *logger.Logger
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const (
	redisTimeout = 200 * time.Millisecond
	bucketIdle   = 5 * time.Minute
)

func New(opts Options) *Limiter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = logger.Discard()
	}
	return &Limiter{
		rpm:     opts.RPM,
		redis:   opts.Redis,
		log:     opts.Log.WithComponent("ratelimit"),
		now:     opts.Now,
		buckets: make(map[string]*bucket),
	}
}

func windowKey(ip string, now time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", ip, now.Unix()/60)
}

// Allow reports whether ip may submit now, and the remaining budget in the
// current window (best effort for the in-process path).
func (l *Limiter) Allow(ctx context.Context, ip string) (bool, int) {
	if l.rpm <= 0 {
		return true, l.rpm
	}
	if l.redis != nil {
		ctx, cancel := context.WithTimeout(ctx, redisTimeout)
		defer cancel()

		key := windowKey(ip, l.now())
		n, err := l.redis.Incr(ctx, key).Result()
		if err == nil {
			if n == 1 {
				_ = l.redis.Expire(ctx, key, 65*time.Second).Err()
			}
			return int(n) <= l.rpm, l.rpm - int(n)
		}
		l.log.Debug("redis window unavailable, using local bucket", "error", err.Error())
	}
	return l.allowLocal(ip)
}

func (l *Limiter) allowLocal(ip string) (bool, int) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > bucketIdle {
			delete(l.buckets, key)
		}
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(float64(l.rpm)/60), l.rpm)}
		l.buckets[ip] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	return allowed, int(b.limiter.TokensAt(now))
}

// Middleware rejects requests over budget with 429 RESOURCE_EXHAUSTED.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		ok, remaining := l.Allow(r.Context(), ip)
		if remaining >= 0 {
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		}
		if !ok {
			w.Header().Set("Retry-After", "60")
			httpkit.WriteError(w, errors.New(errors.CodeRateLimited, "rate limit exceeded").
				WithField("ip", ip))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP extracts the client address from proxy headers or RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
