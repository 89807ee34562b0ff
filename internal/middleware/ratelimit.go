package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/accesshub/cloud-access-gateway/internal/config"
)

// NewEdgeLimiter returns a middleware applying a Redis-backed sliding-window
// request limit in front of the API. This guards the process against
// abusive clients and is unrelated to the per-service usage quota the
// authorization engine enforces from the database; a request passing here
// can still be answered 429 by the engine.
//
// The window is maintained as a sorted set of request timestamps per key and
// trimmed on every evaluation, all inside one Lua script so the trim, count
// and add are atomic on the Redis side. Redis being unreachable fails open:
// requests pass through unlimited rather than erroring.
func NewEdgeLimiter(cfg config.EdgeLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}

	windowScript := redis.NewScript(`
		local key = KEYS[1]
		local now_ms = tonumber(ARGV[1])
		local window_ms = tonumber(ARGV[2])
		local limit = tonumber(ARGV[3])
		local ttl_seconds = tonumber(ARGV[4])
		local member = ARGV[5]

		redis.call('ZREMRANGEBYSCORE', key, 0, now_ms - window_ms)
		local count = redis.call('ZCARD', key)

		if count < limit then
			redis.call('ZADD', key, now_ms, member)
			redis.call('EXPIRE', key, ttl_seconds)
			return { 1, limit - count - 1, 0 }
		end

		local retry_ms = window_ms
		local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
		if oldest[2] then
			retry_ms = (tonumber(oldest[2]) + window_ms) - now_ms
			if retry_ms < 0 then retry_ms = 0 end
		end
		return { 0, 0, retry_ms }
	`)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := edgeKey(cfg, c)
			now := time.Now()
			// Member must be unique per request or concurrent hits collapse
			// into one sorted-set entry and undercount.
			member := fmt.Sprintf("%d-%d", now.UnixNano(), atomic.AddUint64(&edgeSeq, 1))

			args := []interface{}{
				now.UnixMilli(),
				cfg.Window.Milliseconds(),
				cfg.Limit,
				int64(cfg.TTL / time.Second),
				member,
			}

			ctx := c.Request().Context()
			vals, err := windowScript.Run(ctx, rdb, []string{key}, args...).Result()
			if err != nil {
				if cfg.Debug {
					c.Logger().Warnf("[edge-limit] redis error for key=%s: %v", key, err)
				}
				return next(c)
			}

			arr, ok := vals.([]interface{})
			if !ok || len(arr) != 3 {
				if cfg.Debug {
					c.Logger().Warnf("[edge-limit] unexpected script result for key=%s: %#v", key, vals)
				}
				return next(c)
			}
			allowed := toInt64(arr[0]) == 1
			remaining := toInt64(arr[1])
			retryMs := toInt64(arr[2])

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if !allowed {
				secs := int(math.Ceil(float64(retryMs) / 1000.0))
				if secs < 0 {
					secs = 0
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"message":     "request rate exceeded",
					"retry_after": secs,
				})
			}

			if cfg.Debug {
				c.Response().Header().Set("X-RateLimit-Key", key)
			}
			return next(c)
		}
	}
}

// edgeSeq disambiguates limiter members created in the same nanosecond.
var edgeSeq uint64

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// edgeKey builds the limiter key from the configured strategy.
func edgeKey(cfg config.EdgeLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", callerKey(c))
	case "user_route":
		parts = append(parts, "user", callerKey(c), "route", route)
	default: // "ip_route"
		parts = append(parts, "ip", ip, "route", route)
	}
	return strings.Join(parts, ":")
}
