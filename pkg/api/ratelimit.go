package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mufat/mufat/pkg/config"
	"golang.org/x/time/rate"
)

// bucketIdleTTL is how long an unused bucket survives before a sweep drops it.
const bucketIdleTTL = 10 * time.Minute

// limitKey names the bucket a request is counted against.
type limitKey func(r *http.Request) string

// clientKey counts dashboard reads per client address.
func clientKey(r *http.Request) string {
	return extractIP(r)
}

// machineKey counts submissions per report db and reporting machine. Test
// hosts behind one NAT share an address.
func machineKey(r *http.Request) string {
	return chi.URLParam(r, "db") + "/" + chi.URLParam(r, "host")
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiter holds one token bucket per key. Idle buckets are swept on access.
type limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	every     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func newLimiter(perMinute int) *limiter {
	return &limiter{
		buckets: make(map[string]*bucket, 16),
		every:   rate.Limit(float64(perMinute) / 60.0),
		burst:   perMinute,
		now:     time.Now,
	}
}

func (l *limiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if now.Sub(l.lastSweep) > bucketIdleTTL {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > bucketIdleTTL {
				delete(l.buckets, k)
			}
		}

		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}

	b.lastSeen = now

	return b.limiter.AllowN(now, 1)
}

// retryAfter is the wait, in whole seconds, until one more token is refilled.
func (l *limiter) retryAfter() string {
	return strconv.Itoa(int(math.Ceil(60 / float64(l.burst))))
}

// rateLimit returns a middleware enforcing tier per key. A tier without a
// limit passes everything. It must be installed on a route group so chi has
// resolved the URL params that key reads.
func (s *server) rateLimit(
	tier config.RateLimitTier,
	key limitKey,
) func(http.Handler) http.Handler {
	if tier.RequestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	l := newLimiter(tier.RequestsPerMinute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if !l.allow(k) {
				s.log.WithField("bucket", k).Debug("Rate limit exceeded")

				w.Header().Set("Retry-After", l.retryAfter())
				writeJSON(w, http.StatusTooManyRequests,
					errorResponse{"rate limit exceeded"})

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractIP returns the client's IP address, preferring the first hop of
// X-Forwarded-For.
func extractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")

		return strings.TrimSpace(first)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}
