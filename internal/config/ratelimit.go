package config

import (
	"os"
	"strconv"
	"time"
)

// EdgeLimitConfig controls the Redis-backed request limiter that sits in
// front of the whole API. This limiter is an infrastructure guard against
// abusive clients and is independent of the per-service usage quota the
// authorization engine enforces from the database.
type EdgeLimitConfig struct {
	Enabled     bool          // master switch; disabled also when Redis is absent
	Limit       int           // max requests per key within Window
	Window      time.Duration // sliding window length
	TTL         time.Duration // lifetime of idle limiter keys in Redis
	KeyStrategy string        // which request attributes form the limiter key
	Prefix      string        // key namespace prefix
	Debug       bool          // emit limiter diagnostics in headers/logs
}

// LoadEdgeLimitConfig reads EDGE_LIMIT_* environment variables and applies
// defaults plus a few sanity floors so a misconfigured limiter never blocks
// every request outright.
func LoadEdgeLimitConfig() EdgeLimitConfig {
	cfg := EdgeLimitConfig{
		Enabled:     envBool("EDGE_LIMIT_ENABLED", true),
		Limit:       envInt("EDGE_LIMIT_REQUESTS", 120),
		Window:      envDur("EDGE_LIMIT_WINDOW", time.Minute),
		TTL:         envDur("EDGE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy: envStr("EDGE_LIMIT_KEY_STRATEGY", "ip_route"),
		Prefix:      envStr("EDGE_LIMIT_PREFIX", "edge"),
		Debug:       envBool("EDGE_LIMIT_DEBUG", false),
	}
	if cfg.Limit < 1 {
		cfg.Limit = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.TTL < 2*cfg.Window {
		cfg.TTL = 2 * cfg.Window
	}
	return cfg
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
