package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PetoAdam/homenavi/readings-service/internal/auth"
	apperrors "github.com/PetoAdam/homenavi/readings-service/pkg/errors"
)

type Config struct {
	RPS   int
	Burst int
}

// Bucket decides whether one more request under key may proceed.
type Bucket interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// tokenBucket refills rps tokens per second up to burst. The bucket hash
// expires once it would be full again.
var tokenBucket = redis.NewScript(`
local tokens_key = KEYS[1]
local max_tokens = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local bucket = redis.call('HMGET', tokens_key, 'tokens', 'last')
local tokens = tonumber(bucket[1]) or max_tokens
local last = tonumber(bucket[2]) or now
local delta = math.max(0, now - last) / 1000
tokens = math.min(max_tokens, tokens + math.floor(delta * refill_rate))
local allowed = 0
if tokens > 0 then
  tokens = tokens - 1
  allowed = 1
end
redis.call('HSET', tokens_key, 'tokens', tokens, 'last', now)
redis.call('EXPIRE', tokens_key, math.ceil(max_tokens / refill_rate) + 1)
return allowed
`)

type RedisBucket struct {
	client redis.Scripter
	prefix string
	cfg    Config
	now    func() time.Time
}

func NewRedisBucket(client redis.Scripter, prefix string, cfg Config) *RedisBucket {
	return &RedisBucket{client: client, prefix: normalizePrefix(prefix), cfg: cfg, now: time.Now}
}

func (b *RedisBucket) Allow(ctx context.Context, key string) (bool, error) {
	res, err := tokenBucket.Run(ctx, b.client, []string{b.prefix + ":" + key}, b.cfg.Burst, b.cfg.RPS, b.now().UnixMilli()).Int64()
	if err != nil {
		return false, fmt.Errorf("token bucket %s: %w", key, err)
	}
	return res == 1, nil
}

// Middleware rejects requests over the limit with 429. Limiter errors fail
// open so a redis outage does not take the API down.
func Middleware(bucket Bucket, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := bucket.Allow(r.Context(), keyFunc(r))
			if err != nil {
				slog.Warn("rate limiter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", "1")
				apperrors.WriteError(w, apperrors.RateLimited("rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func KeyByIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// KeyByCredentialOrIP keys callers by their API key when one is presented.
func KeyByCredentialOrIP(header string) func(*http.Request) string {
	return func(r *http.Request) string {
		if key := auth.NormalizeCredential(r.Header.Get(header)); key != "" {
			return "key:" + key
		}
		return "ip:" + KeyByIP(r)
	}
}

// Enabled reports whether cfg describes a usable limit.
func (c Config) Enabled() bool {
	return c.RPS > 0 && c.Burst > 0
}

func normalizePrefix(p string) string {
	return strings.TrimSuffix(p, ":")
}
