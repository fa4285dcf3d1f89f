package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func doRequest(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	r.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestMemoryRateLimit(t *testing.T) {
	h := RateLimit(NewMemoryLimiter(1, 2))(okHandler())

	assert.Equal(t, http.StatusOK, doRequest(h, "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, doRequest(h, "10.0.0.1:1234").Code)
	blocked := doRequest(h, "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "1", blocked.Header().Get("Retry-After"))

	// Other clients have their own bucket.
	assert.Equal(t, http.StatusOK, doRequest(h, "10.0.0.2:1234").Code)
}

func TestRateLimitKeysByUser(t *testing.T) {
	h := RateLimit(NewMemoryLimiter(1, 1))(okHandler())

	for _, user := range []string{"u1", "u2"} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r = r.WithContext(context.WithValue(r.Context(), UserIDKey, user))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code, user)
	}
}

func TestRedisLimiter(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer client.Close()

	limiter := NewRedisLimiter(client, 1, 0, time.Second)
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }
	h := RateLimit(limiter)(okHandler())

	assert.Equal(t, http.StatusOK, doRequest(h, "10.0.0.1:1").Code)
	blocked := doRequest(h, "10.0.0.1:1")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "1", blocked.Header().Get("Retry-After"))
	assert.True(t, m.Exists("rl:ip:10.0.0.1:1700000000"))

	now = now.Add(2 * time.Second)
	assert.Equal(t, http.StatusOK, doRequest(h, "10.0.0.1:1").Code)
}

func TestRedisLimiterFailsOpen(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: m.Addr(), MaxRetries: -1})
	defer client.Close()
	m.Close()

	h := RateLimit(NewRedisLimiter(client, 1, 0, time.Second))(okHandler())
	assert.Equal(t, http.StatusOK, doRequest(h, "10.0.0.1:1").Code)
}

func TestClientIP(t *testing.T) {
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"direct", "192.0.2.1:5555", "", "192.0.2.1"},
		{"header from untrusted peer is ignored", "192.0.2.1:5555", "203.0.113.9", "192.0.2.1"},
		{"trusted proxy", "10.0.0.5:443", "203.0.113.9", "203.0.113.9"},
		{"trusted chain", "10.0.0.5:443", "198.51.100.7, 203.0.113.9, 10.1.2.3", "203.0.113.9"},
		{"proxy without header", "10.0.0.5:443", "", "10.0.0.5"},
		{"unparseable peer", "garbage", "203.0.113.9", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, clientIP(r, proxies))
		})
	}
}

func TestRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	h := RateLimit(NewMemoryLimiter(1, 1))(okHandler())

	send := func(forwarded string) int {
		r := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
		r.RemoteAddr = "192.0.2.1:5555"
		r.Header.Set("X-Forwarded-For", forwarded)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.2"))
}
