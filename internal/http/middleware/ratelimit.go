package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateConfig is a token bucket: Rate tokens per second up to Burst.
type RateConfig struct {
	Rate  float64
	Burst float64
}

// RateLimiter throttles clients with a token bucket kept in Redis, so the
// budget is shared by every service instance. Reads (queries, track
// downloads) and writes (likes) draw from separate buckets.
type RateLimiter struct {
	client    redis.Scripter
	keyPrefix string
	read      RateConfig
	write     RateConfig
	script    *redis.Script
	now       func() time.Time
}

// NewRateLimiter returns nil when client is nil; a nil limiter's Middleware is a passthrough.
func NewRateLimiter(client redis.Scripter, prefix string, read, write RateConfig) *RateLimiter {
	if client == nil {
		return nil
	}
	if prefix == "" {
		prefix = "routebook:rl"
	}
	return &RateLimiter{
		client:    client,
		keyPrefix: prefix,
		read:      read,
		write:     write,
		script:    redis.NewScript(tokenBucketLua),
		now:       time.Now,
	}
}

// Middleware enforces the read or write bucket for the request method.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil || (l.read.Rate <= 0 && l.write.Rate <= 0) {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg, scope := l.write, "write"
		if isReadMethod(r.Method) {
			cfg, scope = l.read, "read"
		}
		if cfg.Rate <= 0 || cfg.Burst <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		allowed, retryAfter, err := l.allow(r.Context(), scope, clientIdentifier(r), cfg)
		if err != nil {
			// fail open
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			w.Header().Set("Retry-After", formatRetryAfter(retryAfter))
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(ctx context.Context, scope, identifier string, cfg RateConfig) (bool, time.Duration, error) {
	key := strings.Join([]string{l.keyPrefix, scope, identifier}, ":")
	result, err := l.script.Run(ctx, l.client, []string{key}, l.now().UnixMilli(), cfg.Rate, cfg.Burst, 1).Result()
	if err != nil {
		return false, 0, err
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, errors.New("invalid rate limit response")
	}
	allowed, ok := values[0].(int64)
	if !ok {
		return false, 0, errors.New("invalid rate limit flag")
	}
	waitMS, ok := values[1].(int64)
	if !ok {
		return false, 0, errors.New("invalid rate limit wait")
	}
	return allowed == 1, time.Duration(waitMS) * time.Millisecond, nil
}

func isReadMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

func clientIdentifier(r *http.Request) string {
	if id, ok := ClientIDFromContext(r.Context()); ok {
		return id
	}
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "anonymous"
}

func formatRetryAfter(d time.Duration) string {
	seconds := int((d + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

// Redis truncates Lua numbers to integers on return, so the wait is reported in whole milliseconds.
const tokenBucketLua = `
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'timestamp')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil then
  tokens = capacity
end
if last == nil then
  last = now_ms
end

local delta = math.max(0, now_ms - last)
tokens = math.min(capacity, tokens + delta * rate / 1000)

local allowed = 0
local wait_ms = 0
if tokens >= requested then
  tokens = tokens - requested
  allowed = 1
else
  wait_ms = math.ceil((requested - tokens) / rate * 1000)
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'timestamp', tostring(now_ms))
redis.call('PEXPIRE', key, math.ceil(capacity / rate * 1000))
return {allowed, wait_ms}
`
