package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://proj.supabase.co/")
	t.Setenv("SUPABASE_SERVICE_KEY", "service-key")

	cfg := FromEnv()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://proj.supabase.co", cfg.SupabaseURL)
	assert.Equal(t, "https://proj.supabase.co/storage/v1/object/public/webtoon-files/", cfg.SupabaseStorageBaseURL)
	assert.Equal(t, 120*time.Second, cfg.GeminiTimeout)
	assert.Equal(t, 60*time.Second, cfg.SeedreamTimeout)
	assert.Equal(t, 30*time.Second, cfg.DownloadTimeout)
	assert.Equal(t, 10*1024*1024, cfg.ImageMaxBytes)
	assert.Equal(t, 36000000, cfg.ImageMaxPixels)
	assert.Equal(t, 100, cfg.ResizeCacheSize)
	assert.Equal(t, "fifo", cfg.ResizeCachePolicy)
	assert.Equal(t, 2, cfg.GeminiConcurrency)
	assert.Equal(t, 2, cfg.SeedreamConcurrency)
	assert.Equal(t, "seedream", cfg.DefaultProvider)
	assert.False(t, cfg.RedisEnabled())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://proj.supabase.co")
	t.Setenv("SUPABASE_SERVICE_KEY", "service-key")
	t.Setenv("GEMINI_TIMEOUT_MS", "5000")
	t.Setenv("SEEDREAM_CONCURRENCY", "4")
	t.Setenv("DEFAULT_PROVIDER", "Gemini")
	t.Setenv("RESIZE_CACHE_POLICY", "LRU")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("IMAGE_MAX_PIXELS", "not-a-number")

	cfg := FromEnv()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Second, cfg.GeminiTimeout)
	assert.Equal(t, 4, cfg.SeedreamConcurrency)
	assert.Equal(t, "gemini", cfg.DefaultProvider)
	assert.Equal(t, "lru", cfg.ResizeCachePolicy)
	assert.Equal(t, 36000000, cfg.ImageMaxPixels)
	assert.Equal(t, []string{`⚠️  Invalid IMAGE_MAX_PIXELS="not-a-number", using default 36000000`}, cfg.Warnings())
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, "localhost:6379", cfg.GetRedisAddr())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing supabase url", func(c *Config) { c.SupabaseURL = "" }},
		{"missing service key", func(c *Config) { c.SupabaseServiceKey = "" }},
		{"unknown default provider", func(c *Config) { c.DefaultProvider = "dalle" }},
		{"unknown cache policy", func(c *Config) { c.ResizeCachePolicy = "random" }},
		{"zero concurrency", func(c *Config) { c.GeminiConcurrency = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SUPABASE_URL", "https://proj.supabase.co")
			t.Setenv("SUPABASE_SERVICE_KEY", "service-key")
			cfg := FromEnv()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestFromEnv_InvalidValuesAreReportedAsWarnings(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://proj.supabase.co")
	t.Setenv("SUPABASE_SERVICE_KEY", "service-key")
	t.Setenv("SEEDREAM_RPS", "fast")
	t.Setenv("UPLOAD_WEBP", "maybe")

	cfg := FromEnv()

	assert.Equal(t, float64(0), cfg.SeedreamRPS)
	assert.False(t, cfg.UploadWebP)
	require.Len(t, cfg.Warnings(), 2)
	assert.Contains(t, cfg.Warnings()[0], "SEEDREAM_RPS")
	assert.Contains(t, cfg.Warnings()[1], "UPLOAD_WEBP")
}

func TestFromEnv_NoWarningsForValidEnv(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://proj.supabase.co")
	t.Setenv("SUPABASE_SERVICE_KEY", "service-key")
	t.Setenv("GEMINI_CONCURRENCY", "3")

	assert.Empty(t, FromEnv().Warnings())
}
