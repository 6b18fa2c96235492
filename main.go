package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"webtoon-regen-server/modules/common/config"
	"webtoon-regen-server/modules/common/database"
	"webtoon-regen-server/modules/common/logger"
	"webtoon-regen-server/modules/common/metrics"
	"webtoon-regen-server/modules/common/progress"
	"webtoon-regen-server/modules/common/provider"
	redisutil "webtoon-regen-server/modules/common/redis"
	"webtoon-regen-server/modules/common/storage"
	"webtoon-regen-server/modules/imageadapter"
	"webtoon-regen-server/modules/regenerate"
	"webtoon-regen-server/modules/submodule/gemini"
	"webtoon-regen-server/modules/submodule/seedream"
)

var startTime = time.Now()

// CORS 헤더 추가
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// 헬스 체크 엔드포인트
func healthCheck(adapter *imageadapter.Adapter, providers []provider.GenerationProvider, tracking bool) http.HandlerFunc {
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, string(p.Name()))
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "healthy",
			"uptime":      time.Since(startTime).String(),
			"providers":   names,
			"tracking":    tracking,
			"resizeCache": adapter.CacheStats(),
		})
	}
}

func main() {
	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		// logger 생성 전이므로 기본 logger 사용
		zap.NewExample().Fatal("❌ Failed to load config", zap.Error(err))
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		zap.NewExample().Fatal("❌ Failed to create logger", zap.Error(err))
	}
	defer log.Sync()

	for _, warning := range cfg.Warnings() {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 메트릭
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Supabase (DB + Storage)
	db, err := database.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, log)
	if err != nil {
		log.Fatal("❌ Failed to create database client", zap.Error(err))
	}
	blobs := storage.NewClient(storage.Config{
		SupabaseURL:     cfg.SupabaseURL,
		ServiceKey:      cfg.SupabaseServiceKey,
		Bucket:          cfg.SupabaseStorageBucket,
		PublicBaseURL:   cfg.SupabaseStorageBaseURL,
		DownloadTimeout: cfg.DownloadTimeout,
	}, nil, log)

	// 진행 상황 추적 (Redis 설정 시에만)
	var tracker *progress.Tracker
	if cfg.RedisEnabled() {
		rdb, err := redisutil.Connect(ctx, cfg, log)
		if err != nil {
			log.Warn("⚠️  Redis unavailable, progress tracking disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			tracker = progress.NewTracker(rdb, progress.DefaultTTL, log)
		}
	} else {
		log.Info("ℹ️  REDIS_HOST not set, progress tracking disabled")
	}

	// Provider 클라이언트 (키 없으면 건너뜀, 해당 요청은 에러 결과)
	var providers []provider.GenerationProvider

	geminiService, err := gemini.NewService(ctx, gemini.Config{
		APIKey:     cfg.GeminiAPIKey,
		Model:      cfg.GeminiModel,
		Timeout:    cfg.GeminiTimeout,
		MaxRetries: cfg.GeminiMaxRetries,
		RPS:        cfg.GeminiRPS,
	}, m, log)
	switch {
	case errors.Is(err, provider.ErrNotConfigured):
		log.Warn("⚠️  GEMINI_API_KEY not set, Gemini requests will fail")
	case err != nil:
		log.Error("❌ Failed to create Gemini client", zap.Error(err))
	default:
		providers = append(providers, geminiService)
	}

	seedreamService, err := seedream.NewService(seedream.Config{
		APIKey:         cfg.SeedreamAPIKey,
		BaseURL:        cfg.SeedreamBaseURL,
		Model:          cfg.SeedreamModel,
		Timeout:        cfg.SeedreamTimeout,
		MaxRetries:     cfg.SeedreamMaxRetries,
		RPS:            cfg.SeedreamRPS,
		ResponseFormat: cfg.SeedreamResponseFormat,
	}, nil, m, log)
	switch {
	case errors.Is(err, provider.ErrNotConfigured):
		log.Warn("⚠️  SEEDREAM_API_KEY not set, Seedream requests will fail")
	case err != nil:
		log.Error("❌ Failed to create Seedream client", zap.Error(err))
	default:
		providers = append(providers, seedreamService)
	}

	// 이미지 조정 + 배치 파이프라인
	cache := imageadapter.NewResizeCache(cfg.ResizeCacheSize, imageadapter.ParseEvictionPolicy(cfg.ResizeCachePolicy), m)
	adapter := imageadapter.NewAdapter(cache, imageadapter.Options{
		MaxBytes:  cfg.ImageMaxBytes,
		MaxPixels: cfg.ImageMaxPixels,
	}, log.Named("adapter"))

	dispatcher := regenerate.NewDispatcher(regenerate.DispatcherConfig{
		Providers: providers,
		Concurrency: map[provider.Name]int{
			provider.Gemini:   cfg.GeminiConcurrency,
			provider.Seedream: cfg.SeedreamConcurrency,
		},
		Adapter: adapter,
		Persister: regenerate.NewPersister(db, blobs, regenerate.PersisterOptions{
			UploadWebP:  cfg.UploadWebP,
			WebPQuality: cfg.UploadWebPQuality,
		}, log),
		Tracker: tracker,
		Metrics: m,
		Logger:  log,
	})

	defaultProvider, _ := provider.ParseName(cfg.DefaultProvider)
	service := regenerate.NewService(regenerate.ServiceConfig{
		Loader:          regenerate.NewLoader(db, blobs, log),
		Dispatcher:      dispatcher,
		Tracker:         tracker,
		Metrics:         m,
		DefaultProvider: defaultProvider,
		Logger:          log,
	})

	// 라우터 설정
	r := mux.NewRouter()

	// CORS 미들웨어 적용
	r.Use(enableCORS)

	health := healthCheck(adapter, providers, tracker != nil)
	r.HandleFunc("/", health).Methods("GET")
	r.HandleFunc("/health", health).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})).Methods("GET")

	regenerate.NewHandler(service, tracker, log).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("🛑 Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("❌ Graceful shutdown failed", zap.Error(err))
		}
	}()

	log.Info("🚀 Webtoon Regenerate Server starting", zap.String("port", cfg.Port))
	log.Info("❤️  Health check", zap.String("url", "http://localhost:"+cfg.Port+"/health"))
	log.Info("📊 Metrics", zap.String("url", "http://localhost:"+cfg.Port+"/metrics"))

	// 서버 시작
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Server failed to start", zap.Error(err))
	}
}
