package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimit(t *testing.T) {
	type hit struct {
		remoteAddr string
		header     map[string]string
		want       int
	}
	tests := []struct {
		name    string
		max     int
		keyFunc func(*http.Request) string
		hits    []hit
	}{
		{
			name: "over limit",
			max:  2,
			hits: []hit{
				{remoteAddr: "10.0.0.1:9999", want: http.StatusOK},
				{remoteAddr: "10.0.0.1:9999", want: http.StatusOK},
				{remoteAddr: "10.0.0.1:9999", want: http.StatusTooManyRequests},
			},
		},
		{
			name: "clients are independent",
			max:  1,
			hits: []hit{
				{remoteAddr: "10.0.0.1:1234", want: http.StatusOK},
				{remoteAddr: "10.0.0.2:1234", want: http.StatusOK},
				{remoteAddr: "10.0.0.1:5678", want: http.StatusTooManyRequests},
			},
		},
		{
			name: "forwarded for wins over remote addr",
			max:  1,
			hits: []hit{
				{remoteAddr: "192.168.1.1:4444", header: map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}, want: http.StatusOK},
				{remoteAddr: "192.168.1.2:5555", header: map[string]string{"X-Forwarded-For": "203.0.113.50"}, want: http.StatusTooManyRequests},
			},
		},
		{
			name:    "custom key",
			max:     1,
			keyFunc: func(r *http.Request) string { return r.Header.Get("X-Api-Key") },
			hits: []hit{
				{header: map[string]string{"X-Api-Key": "key-a"}, want: http.StatusOK},
				{header: map[string]string{"X-Api-Key": "key-a"}, want: http.StatusTooManyRequests},
				{header: map[string]string{"X-Api-Key": "key-b"}, want: http.StatusOK},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RateLimit(RateLimitConfig{Max: tt.max, Window: time.Minute, KeyFunc: tt.keyFunc})(okHandler())
			for i, h := range tt.hits {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				if h.remoteAddr != "" {
					req.RemoteAddr = h.remoteAddr
				}
				for k, v := range h.header {
					req.Header.Set(k, v)
				}
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)
				require.Equal(t, h.want, w.Code, "hit %d", i)
			}
		})
	}
}

func TestRateLimit_Rejection(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	serve := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	w := serve()
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))

	w = serve()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"code":429,"message":"rate limit exceeded"}`, w.Body.String())
}

func TestRateLimit_Skip(t *testing.T) {
	handler := RateLimit(RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		Skip:   func(r *http.Request) bool { return r.URL.Path == "/hooks" },
	})(okHandler())

	serve := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.1:1"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	for i := range 5 {
		w := serve("/hooks")
		require.Equal(t, http.StatusOK, w.Code, "hit %d", i)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}

	// Skipped requests do not count against the client.
	assert.Equal(t, http.StatusOK, serve("/").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve("/").Code)
	assert.Equal(t, http.StatusOK, serve("/hooks").Code)
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 4, Window: time.Minute})
	start := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	for range 4 {
		_, _, ok := l.allow("k", start)
		require.True(t, ok)
	}
	_, _, ok := l.allow("k", start.Add(30*time.Second))
	assert.False(t, ok)

	// Halfway into the next window half of the previous count still weighs in.
	remaining, _, ok := l.allow("k", start.Add(90*time.Second))
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)

	// Two idle windows reset the client.
	remaining, _, ok = l.allow("k", start.Add(5*time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 3, remaining)

	l.evict(start.Add(10 * time.Minute))
	assert.Empty(t, l.windows)
}
