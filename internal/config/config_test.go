package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadEdgeLimitConfigDefaults(t *testing.T) {
	for _, k := range []string{
		"EDGE_LIMIT_ENABLED", "EDGE_LIMIT_REQUESTS", "EDGE_LIMIT_WINDOW",
		"EDGE_LIMIT_TTL", "EDGE_LIMIT_KEY_STRATEGY", "EDGE_LIMIT_PREFIX",
		"EDGE_LIMIT_DEBUG",
	} {
		t.Setenv(k, "")
	}

	cfg := LoadEdgeLimitConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 120, cfg.Limit)
	assert.Equal(t, time.Minute, cfg.Window)
	assert.Equal(t, 10*time.Minute, cfg.TTL)
	assert.Equal(t, "ip_route", cfg.KeyStrategy)
	assert.Equal(t, "edge", cfg.Prefix)
	assert.False(t, cfg.Debug)
}

func TestLoadEdgeLimitConfigSanityFloors(t *testing.T) {
	t.Setenv("EDGE_LIMIT_REQUESTS", "0")
	t.Setenv("EDGE_LIMIT_WINDOW", "-5s")
	t.Setenv("EDGE_LIMIT_TTL", "1s")

	cfg := LoadEdgeLimitConfig()
	assert.Equal(t, 1, cfg.Limit, "a zero limit would reject every request")
	assert.Equal(t, time.Minute, cfg.Window)
	assert.Equal(t, 2*cfg.Window, cfg.TTL, "idle keys must outlive the window")
}

func TestLoadCacheConfigMethods(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head ,")

	cfg := LoadCacheConfig()
	assert.True(t, cfg.Methods["GET"])
	assert.True(t, cfg.Methods["HEAD"])
	assert.False(t, cfg.Methods["POST"])
	assert.False(t, cfg.Methods[""])
}

func TestEnvBoolParsing(t *testing.T) {
	t.Setenv("EDGE_LIMIT_DEBUG", "on")
	assert.True(t, LoadEdgeLimitConfig().Debug)

	t.Setenv("EDGE_LIMIT_DEBUG", "nonsense")
	assert.False(t, LoadEdgeLimitConfig().Debug, "unparsable values keep the default")
}
