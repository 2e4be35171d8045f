package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newLimitedHandler(t *testing.T, limit int) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	config := RateLimitConfig{
		RequestsPerWindow: limit,
		Window:            time.Minute,
		KeyPrefix:         "catalog:ratelimit",
	}
	return RateLimitMiddleware(client, config, zap.NewNop())(okHandler()), mr
}

// Exactly the configured number of requests pass per window
func TestProperty_RateLimitingBlocksExcessiveRequests(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("excessive requests are blocked with 429", prop.ForAll(
		func(limit int, excess int) bool {
			handler, _ := newLimitedHandler(t, limit)

			passed, blocked := 0, 0
			for i := 0; i < limit+excess; i++ {
				req := httptest.NewRequest("GET", "/api/products", nil)
				req.RemoteAddr = "192.168.1.100:5123"
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				switch w.Code {
				case http.StatusOK:
					passed++
				case http.StatusTooManyRequests:
					blocked++
				}
			}
			return passed == limit && blocked == excess
		},
		gen.IntRange(1, 20),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRateLimitKeysByUserAndPort(t *testing.T) {
	handler, mr := newLimitedHandler(t, 1)

	send := func(remote, user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/api/products", nil)
		req.RemoteAddr = remote
		if user != "" {
			req = req.WithContext(WithUser(req.Context(), user, ""))
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1000", "").Code)
	// same host, new ephemeral port
	blocked := send("10.0.0.1:2000", "")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "0", blocked.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, send("10.0.0.1:3000", "alice").Code)
	assert.True(t, mr.Exists("catalog:ratelimit:user:alice"))
	assert.True(t, mr.Exists("catalog:ratelimit:10.0.0.1"))
}

func TestRateLimitWindowExpires(t *testing.T) {
	handler, mr := newLimitedHandler(t, 1)

	do := func() int {
		req := httptest.NewRequest("GET", "/api/products", nil)
		req.RemoteAddr = "10.0.0.2:1"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do())
	assert.Equal(t, http.StatusTooManyRequests, do())

	mr.FastForward(time.Minute + time.Second)

	assert.Equal(t, http.StatusOK, do())
}

func TestRateLimitFailsOpenWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	handler := RateLimitMiddleware(client, RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, KeyPrefix: "rl"}, zap.NewNop())(okHandler())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/products", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
