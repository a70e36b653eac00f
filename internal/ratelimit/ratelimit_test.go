package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingBucket struct {
	limit int
	seen  map[string]int
	err   error
}

func (b *countingBucket) Allow(_ context.Context, key string) (bool, error) {
	if b.err != nil {
		return false, b.err
	}
	b.seen[key]++
	return b.seen[key] <= b.limit, nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
}

func TestMiddlewareLimitsPerKey(t *testing.T) {
	bucket := &countingBucket{limit: 2, seen: map[string]int{}}
	h := Middleware(bucket, KeyByCredentialOrIP("ApiKey"))(okHandler())

	call := func(key string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/readings", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		if key != "" {
			req.Header.Set("ApiKey", key)
		}
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		return rw.Code
	}

	require.Equal(t, http.StatusNoContent, call("k1"))
	require.Equal(t, http.StatusNoContent, call("{k1}"))
	require.Equal(t, http.StatusTooManyRequests, call("k1"))
	require.Equal(t, http.StatusNoContent, call("k2"))
	require.Equal(t, http.StatusNoContent, call(""))
	require.Equal(t, 1, bucket.seen["ip:10.0.0.1"])
}

func TestMiddlewareFailsOpen(t *testing.T) {
	h := Middleware(&countingBucket{err: errors.New("redis down")}, KeyByIP)(okHandler())
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rw.Code)
}

func TestKeyByIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.9:443"
	require.Equal(t, "192.168.1.9", KeyByIP(req))
	req.RemoteAddr = "unix"
	require.Equal(t, "unix", KeyByIP(req))
}

func TestConfigEnabled(t *testing.T) {
	require.True(t, Config{RPS: 1, Burst: 1}.Enabled())
	require.False(t, Config{RPS: 0, Burst: 5}.Enabled())
}
