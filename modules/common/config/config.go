package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 구조체 - 모든 환경변수를 담음
type Config struct {
	// Server
	Port      string
	LogLevel  string
	LogFormat string

	// Redis (진행 상황 추적용, REDIS_HOST 비어있으면 비활성화)
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// Supabase
	SupabaseURL            string
	SupabaseServiceKey     string
	SupabaseStorageBucket  string
	SupabaseStorageBaseURL string

	// Gemini API
	GeminiAPIKey      string
	GeminiModel       string
	GeminiTimeout     time.Duration
	GeminiMaxRetries  int
	GeminiConcurrency int
	GeminiRPS         float64

	// Seedream API
	SeedreamAPIKey         string
	SeedreamBaseURL        string
	SeedreamModel          string
	SeedreamTimeout        time.Duration
	SeedreamMaxRetries     int
	SeedreamConcurrency    int
	SeedreamRPS            float64
	SeedreamResponseFormat string

	// Image budgets
	ImageMaxBytes     int
	ImageMaxPixels    int
	ResizeCacheSize   int
	ResizeCachePolicy string

	// Batch
	DownloadTimeout   time.Duration
	DefaultProvider   string
	UploadWebP        bool
	UploadWebPQuality float32

	// 로드 중 발생한 경고 (logger 생성 전이라 main 에서 출력)
	warnings []string
}

// LoadConfig - 환경변수 로드
func LoadConfig() (*Config, error) {
	// .env 파일 로드 (있으면)
	envErr := godotenv.Load()

	cfg := FromEnv()
	if envErr != nil {
		cfg.warnings = append([]string{"⚠️  .env file not found, using environment variables"}, cfg.warnings...)
	}

	// 필수 환경변수 검증
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv - 현재 환경변수로 Config 생성 (기본값 적용, 검증 없음)
func FromEnv() *Config {
	env := &envReader{}

	supabaseURL := strings.TrimRight(env.get("SUPABASE_URL", ""), "/")
	bucket := env.get("SUPABASE_STORAGE_BUCKET", "webtoon-files")

	storageBaseURL := env.get("SUPABASE_STORAGE_BASE_URL", "")
	if storageBaseURL == "" && supabaseURL != "" {
		storageBaseURL = fmt.Sprintf("%s/storage/v1/object/public/%s/", supabaseURL, bucket)
	}

	cfg := &Config{
		// Server
		Port:      env.get("PORT", "8080"),
		LogLevel:  env.get("LOG_LEVEL", "info"),
		LogFormat: env.get("LOG_FORMAT", "json"),

		// Redis
		RedisHost:     env.get("REDIS_HOST", ""),
		RedisPort:     env.get("REDIS_PORT", "6379"),
		RedisUsername: env.get("REDIS_USERNAME", ""),
		RedisPassword: env.get("REDIS_PASSWORD", ""),
		RedisUseTLS:   env.getBool("REDIS_USE_TLS", true),

		// Supabase
		SupabaseURL:            supabaseURL,
		SupabaseServiceKey:     env.get("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket:  bucket,
		SupabaseStorageBaseURL: storageBaseURL,

		// Gemini API
		GeminiAPIKey:      env.get("GEMINI_API_KEY", ""),
		GeminiModel:       env.get("GEMINI_MODEL", "gemini-2.5-flash-image"),
		GeminiTimeout:     env.getMillis("GEMINI_TIMEOUT_MS", 120000),
		GeminiMaxRetries:  env.getInt("GEMINI_MAX_RETRIES", 2),
		GeminiConcurrency: env.getInt("GEMINI_CONCURRENCY", 2),
		GeminiRPS:         env.getFloat("GEMINI_RPS", 0),

		// Seedream API
		SeedreamAPIKey:         env.get("SEEDREAM_API_KEY", ""),
		SeedreamBaseURL:        strings.TrimRight(env.get("SEEDREAM_API_BASE_URL", "https://ark.ap-southeast.bytepluses.com/api/v3"), "/"),
		SeedreamModel:          env.get("SEEDREAM_MODEL", "seedream-4-0-250828"),
		SeedreamTimeout:        env.getMillis("SEEDREAM_TIMEOUT_MS", 60000),
		SeedreamMaxRetries:     env.getInt("SEEDREAM_MAX_RETRIES", 2),
		SeedreamConcurrency:    env.getInt("SEEDREAM_CONCURRENCY", 2),
		SeedreamRPS:            env.getFloat("SEEDREAM_RPS", 0),
		SeedreamResponseFormat: env.get("SEEDREAM_RESPONSE_FORMAT", "url"),

		// Image budgets
		ImageMaxBytes:     env.getInt("IMAGE_MAX_BYTES", 10*1024*1024),
		ImageMaxPixels:    env.getInt("IMAGE_MAX_PIXELS", 36000000),
		ResizeCacheSize:   env.getInt("RESIZE_CACHE_SIZE", 100),
		ResizeCachePolicy: strings.ToLower(env.get("RESIZE_CACHE_POLICY", "fifo")),

		// Batch
		DownloadTimeout:   env.getMillis("DOWNLOAD_TIMEOUT_MS", 30000),
		DefaultProvider:   strings.ToLower(env.get("DEFAULT_PROVIDER", "seedream")),
		UploadWebP:        env.getBool("UPLOAD_WEBP", false),
		UploadWebPQuality: float32(env.getFloat("UPLOAD_WEBP_QUALITY", 90)),
	}
	cfg.warnings = env.warnings
	return cfg
}

// Validate - 필수 환경변수 검증
func (c *Config) Validate() error {
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY is required")
	}
	if c.DefaultProvider != "gemini" && c.DefaultProvider != "seedream" {
		return fmt.Errorf("DEFAULT_PROVIDER must be gemini or seedream, got %q", c.DefaultProvider)
	}
	if c.ResizeCachePolicy != "fifo" && c.ResizeCachePolicy != "lru" {
		return fmt.Errorf("RESIZE_CACHE_POLICY must be fifo or lru, got %q", c.ResizeCachePolicy)
	}
	if c.GeminiConcurrency < 1 || c.SeedreamConcurrency < 1 {
		return fmt.Errorf("provider concurrency must be at least 1")
	}
	if c.ImageMaxBytes <= 0 || c.ImageMaxPixels <= 0 {
		return fmt.Errorf("IMAGE_MAX_BYTES and IMAGE_MAX_PIXELS must be positive")
	}
	return nil
}

// RedisEnabled - Redis 진행 상황 추적 사용 여부
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// GetRedisAddr - Redis 연결 문자열 생성
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// Warnings - 로드 중 무시된 값 등 경고 메시지
func (c *Config) Warnings() []string {
	return c.warnings
}

// envReader - 환경변수 읽기 (잘못된 값은 기본값 + 경고)
type envReader struct {
	warnings []string
}

// get - 환경변수 가져오기 (기본값 지원)
func (e *envReader) get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (e *envReader) getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
		e.warnf("⚠️  Invalid %s=%q, using default %d", key, value, defaultValue)
	}
	return defaultValue
}

func (e *envReader) getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return parsed
		}
		e.warnf("⚠️  Invalid %s=%q, using default %v", key, value, defaultValue)
	}
	return defaultValue
}

func (e *envReader) getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
		e.warnf("⚠️  Invalid %s=%q, using default %v", key, value, defaultValue)
	}
	return defaultValue
}

// getMillis - 밀리초 단위 환경변수를 time.Duration으로 변환
func (e *envReader) getMillis(key string, defaultMillis int) time.Duration {
	return time.Duration(e.getInt(key, defaultMillis)) * time.Millisecond
}

func (e *envReader) warnf(format string, args ...interface{}) {
	e.warnings = append(e.warnings, fmt.Sprintf(format, args...))
}
