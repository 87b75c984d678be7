package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newLimiter(t *testing.T, read, write RateConfig) *RateLimiter {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	l := NewRateLimiter(client, "", read, write)
	fixed := time.UnixMilli(1_700_000_000_000)
	l.now = func() time.Time { return fixed }
	return l
}

func TestRateLimiterThrottlesWritesPerClient(t *testing.T) {
	l := newLimiter(t, RateConfig{Rate: 100, Burst: 100}, RateConfig{Rate: 1, Burst: 2})
	h := l.Middleware(okHandler())

	do := func(client string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/routes/1/like", nil)
		req = req.WithContext(WithClientID(req.Context(), client))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, do("a").Code)
	require.Equal(t, http.StatusOK, do("a").Code)
	limited := do("a")
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	require.Equal(t, "1", limited.Header().Get("Retry-After"))

	require.Equal(t, http.StatusOK, do("b").Code)
}

func TestRateLimiterReadsUseSeparateBucket(t *testing.T) {
	l := newLimiter(t, RateConfig{Rate: 5, Burst: 5}, RateConfig{Rate: 1, Burst: 1})
	h := l.Middleware(okHandler())

	post := httptest.NewRequest(http.MethodPost, "/", nil)
	post.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, post)
	require.Equal(t, http.StatusOK, rec.Code)

	get := httptest.NewRequest(http.MethodGet, "/", nil)
	get.RemoteAddr = "10.0.0.1:1234"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, get)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestNilRateLimiterPassesThrough(t *testing.T) {
	var l *RateLimiter
	require.Nil(t, NewRateLimiter(nil, "", RateConfig{}, RateConfig{}))
	rec := httptest.NewRecorder()
	l.Middleware(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestClientIdentityPrefersHeaderThenCookie(t *testing.T) {
	var seen string
	h := ClientIdentity(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen, _ = ClientIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ClientHeader, "header-id")
	req.AddCookie(&http.Cookie{Name: ClientCookie, Value: "cookie-id"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "header-id", seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: ClientCookie, Value: "cookie-id"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "cookie-id", seen)
	require.Empty(t, rec.Result().Cookies())
}

func TestClientIdentityIssuesCookie(t *testing.T) {
	var seen string
	h := ClientIdentity(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen, _ = ClientIDFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, ClientCookie, cookies[0].Name)
	require.Equal(t, seen, cookies[0].Value)
	require.NotEmpty(t, seen)
}

func TestRequestLoggerPassesStatus(t *testing.T) {
	h := RequestLogger(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
}

func TestReadyGatesUntilStartupCompletes(t *testing.T) {
	var ready atomic.Bool
	h := Ready(ready.Load)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/routes", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))

	ready.Store(true)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/routes", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
