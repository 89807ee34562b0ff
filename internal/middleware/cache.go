package middleware

import (
	"bytes"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/accesshub/cloud-access-gateway/internal/config"
)

// cachedResponse is the envelope stored in Redis for a cache hit. Only the
// status, content type and body are kept; anything fancier should not be
// flowing through the public catalog routes this middleware fronts.
type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// recordingWriter tees the response body into a buffer so a successful
// response can be stored after it has been sent. Bodies beyond limit are
// forwarded but not buffered, which marks the response uncacheable.
type recordingWriter struct {
	http.ResponseWriter
	status   int
	buf      bytes.Buffer
	overflow bool
	limit    int
}

func (w *recordingWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	if !w.overflow {
		if w.buf.Len()+len(b) <= w.limit {
			w.buf.Write(b)
		} else {
			w.overflow = true
		}
	}
	return w.ResponseWriter.Write(b)
}

// ResponseCache returns a middleware serving eligible requests from Redis.
// Only configured methods are considered and only 200 responses are stored.
// Redis failures fall through to the live handler, never to an error.
func ResponseCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !cfg.Methods[req.Method] {
				return next(c)
			}
			key := cacheKey(cfg, c)
			ctx := req.Context()

			if raw, err := rdb.Get(ctx, key).Bytes(); err == nil {
				var cr cachedResponse
				if json.Unmarshal(raw, &cr) == nil {
					c.Response().Header().Set("X-Cache", "HIT")
					return c.Blob(cr.Status, cr.ContentType, cr.Body)
				}
			}

			rw := &recordingWriter{
				ResponseWriter: c.Response().Writer,
				status:         http.StatusOK,
				limit:          cfg.MaxBodyBytes,
			}
			c.Response().Header().Set("X-Cache", "MISS")
			c.Response().Writer = rw

			if err := next(c); err != nil {
				return err
			}

			if rw.status == http.StatusOK && !rw.overflow && rw.buf.Len() > 0 {
				cr := cachedResponse{
					Status:      rw.status,
					ContentType: c.Response().Header().Get(echo.HeaderContentType),
					Body:        rw.buf.Bytes(),
				}
				if raw, err := json.Marshal(cr); err == nil {
					// Best effort; a failed store just means a miss next time.
					_ = rdb.Set(ctx, key, raw, cfg.TTL).Err()
				}
			}
			return nil
		}
	}
}

// cacheKey derives a stable key from method, route and query string.
func cacheKey(cfg config.CacheConfig, c echo.Context) string {
	r := c.Request()
	sum := sha1.Sum([]byte(r.Method + ":" + c.Path() + "?" + r.URL.RawQuery))
	return fmt.Sprintf("%s:%x", cfg.Prefix, sum[:])
}
