package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/reckit/rank"
	"github.com/rushteam/reckit/store"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(TMDBKeyEnvVar, "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 8, cfg.Resolver.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.Resolver.FetchTimeout)
	assert.Equal(t, rank.DefaultWeights, cfg.Recommend.Weights)
	assert.Equal(t, 12, cfg.Recommend.TopN)
	assert.Equal(t, 20, cfg.History.Window)
	assert.Equal(t, OnNoDataFallback, cfg.Recommend.OnNoData)
	assert.Equal(t, store.BackendBadger, cfg.Fallback.Store.Backend)
	assert.Equal(t, "cached_fallback", cfg.Fallback.Key)
	assert.False(t, cfg.TMDB.Enabled())
	assert.Zero(t, cfg.Server.RateLimit)
	assert.Equal(t, time.Minute, cfg.Server.RateWindow)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	t.Setenv(TMDBKeyEnvVar, "")
	path := writeFile(t, "reckit.yaml", `
server:
  addr: ":9000"
  request_timeout: 3s
corpus:
  dir: /srv/corpus
cache:
  backend: store
  store:
    backend: redis
    redis:
      addr: "redis:6379"
resolver:
  concurrency: 4
recommend:
  on_no_data: error
  weights:
    language: 0.5
  blocked_ids: ["13", "42"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 3*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "/srv/corpus", cfg.Corpus.Dir)
	assert.Equal(t, store.BackendRedis, cfg.Cache.Store.Backend)
	assert.Equal(t, "redis:6379", cfg.Cache.Store.Redis.Addr)
	assert.Equal(t, 4, cfg.Resolver.Concurrency)
	assert.Equal(t, OnNoDataError, cfg.Recommend.OnNoData)
	assert.InDelta(t, 0.5, cfg.Recommend.Weights.Language, 1e-12)
	assert.InDelta(t, 0.45, cfg.Recommend.Weights.Similarity, 1e-12, "unset weights keep defaults")
	assert.Equal(t, []string{"13", "42"}, cfg.Recommend.BlockedIDs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "reckit.yaml", `
tmdb:
  api_key: from-file
resolver:
  concurrency: 4
`)
	t.Setenv("RECKIT_RESOLVER__CONCURRENCY", "16")
	t.Setenv("RECKIT_RESOLVER__FETCH_TIMEOUT", "750ms")
	t.Setenv("RECKIT_RECOMMEND__BLOCKED_IDS", "1, 2,,3")
	t.Setenv("RECKIT_SERVER__RATE_LIMIT", "60")
	t.Setenv(TMDBKeyEnvVar, "from-shortcut")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Resolver.Concurrency)
	assert.Equal(t, 750*time.Millisecond, cfg.Resolver.FetchTimeout)
	assert.Equal(t, []string{"1", "2", "3"}, cfg.Recommend.BlockedIDs)
	assert.Equal(t, 60, cfg.Server.RateLimit)
	assert.Equal(t, "from-shortcut", cfg.TMDB.APIKey)
	assert.True(t, cfg.TMDB.Enabled())

	t.Setenv("RECKIT_TMDB__API_KEY", "from-prefixed")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-prefixed", cfg.TMDB.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Resolver.Concurrency = 0 }},
		{"zero top n", func(c *Config) { c.Recommend.TopN = 0 }},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"unknown store backend", func(c *Config) { c.Fallback.Store.Backend = "s3" }},
		{"empty corpus dir", func(c *Config) { c.Corpus.Dir = "" }},
		{"unknown no-data mode", func(c *Config) { c.Recommend.OnNoData = "panic" }},
		{"pgvector without dsn", func(c *Config) { c.Cache.Backend = CachePGVector }},
		{"sql history without dsn", func(c *Config) { c.History.DSN = "" }},
		{"zero decade span", func(c *Config) { c.Recommend.Weights.DecadeSpan = 0 }},
	}
	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	t.Setenv(TMDBKeyEnvVar, "")
	path := writeFile(t, "bad.yaml", "resolver:\n  concurrency: -1\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConversions(t *testing.T) {
	cfg := Default()
	fc := cfg.TMDB.Fetcher()
	assert.Equal(t, cfg.TMDB.BaseURL, fc.BaseURL)
	assert.Equal(t, cfg.TMDB.BreakerFailures, fc.BreakerFailures)

	rc := cfg.Resolver.Resolver()
	assert.Equal(t, 8, rc.Concurrency)
	assert.Equal(t, cfg.Resolver.Weights, rc.Weights)
}
