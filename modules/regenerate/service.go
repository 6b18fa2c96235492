package regenerate

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"webtoon-regen-server/modules/common/fallback"
	"webtoon-regen-server/modules/common/metrics"
	"webtoon-regen-server/modules/common/progress"
	"webtoon-regen-server/modules/common/provider"
)

// Service - 배치 재생성 오케스트레이션
// Loading → Adapting → Dispatching → Aggregated
type Service struct {
	loader          *Loader
	dispatcher      *Dispatcher
	tracker         *progress.Tracker
	metrics         *metrics.Collector
	defaultProvider provider.Name
	logger          *zap.Logger
	newID           func() string
}

// ServiceConfig - Service 의존성
type ServiceConfig struct {
	Loader          *Loader
	Dispatcher      *Dispatcher
	Tracker         *progress.Tracker
	Metrics         *metrics.Collector
	DefaultProvider provider.Name
	Logger          *zap.Logger
}

// NewService - DefaultProvider 가 비어 있으면 seedream
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	defaultProvider := cfg.DefaultProvider
	if defaultProvider == "" {
		defaultProvider = provider.Seedream
	}

	return &Service{
		loader:          cfg.Loader,
		dispatcher:      cfg.Dispatcher,
		tracker:         cfg.Tracker,
		metrics:         cfg.Metrics,
		defaultProvider: defaultProvider,
		logger:          logger.Named("regenerate"),
		newID:           func() string { return uuid.New().String() },
	}
}

// Regenerate - 배치 1건 처리
// 요청별 실패는 결과 안의 에러 항목, 배치 전체 실패만 error 로 반환
func (s *Service) Regenerate(ctx context.Context, req *BatchRequest) (*BatchResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	createdBy := fallback.SafeString(req.CreatedBy, "")

	batchID := s.newID()
	if req.BatchID != "" {
		// 대소문자/중괄호 표기 차이로 다른 Redis key 가 되지 않도록 정규화
		batchID = uuid.MustParse(req.BatchID).String()
	}
	started := time.Now()
	logger := s.logger.With(zap.String("batchId", batchID))

	requests := s.normalize(req.Requests, logger)
	referenceIDs := mergeReferenceIDs(req.ReferenceFileID, req.ReferenceFileIDs)
	characterIDs := make([]string, 0, len(req.CharacterSheets))
	for _, sheet := range req.CharacterSheets {
		if id := fallback.SafeString(sheet.SheetID, ""); id != "" {
			characterIDs = append(characterIDs, id)
		}
	}

	s.tracker.Start(ctx, batchID, len(requests))

	// Loading
	logger.Info("📥 Loading images",
		zap.String("fileId", req.FileID),
		zap.Int("references", len(referenceIDs)),
		zap.Int("characters", len(characterIDs)),
		zap.Int("requests", len(requests)))

	loaded, err := s.loader.Load(ctx, req.FileID, referenceIDs, characterIDs)
	if err != nil {
		logger.Error("❌ Batch aborted while loading", zap.Error(err))
		s.finish(ctx, batchID, progress.StatusFailed, started)
		return nil, err
	}

	// Adapting (provider 별 조정은 각 그룹 안에서 수행)
	s.tracker.SetStatus(ctx, batchID, progress.StatusAdapting)
	logger.Info("🖼️  Adapting images", zap.Int("width", loaded.Source.Width), zap.Int("height", loaded.Source.Height))

	// Dispatching
	s.tracker.SetStatus(ctx, batchID, progress.StatusDispatching)
	images := s.dispatcher.Dispatch(ctx, &batchRun{
		batchID:   batchID,
		requests:  requests,
		loaded:    loaded,
		sources:   loaded.Sources(),
		createdBy: createdBy,
	})

	// Aggregated
	var failed, inline int
	for _, img := range images {
		switch {
		case img.Failed():
			failed++
		case img.ImageBase64 != "":
			inline++
		}
	}
	s.finish(ctx, batchID, progress.StatusCompleted, started)

	logger.Info("✅ Batch completed",
		zap.Int("total", len(images)),
		zap.Int("failed", failed),
		zap.Int("inline", inline),
		zap.Duration("elapsed", time.Since(started)))

	return &BatchResult{BatchID: batchID, Images: images}, nil
}

func (s *Service) finish(ctx context.Context, batchID string, status progress.Status, started time.Time) {
	s.tracker.SetStatus(context.WithoutCancel(ctx), batchID, status)
	s.metrics.ObserveBatch(string(status), time.Since(started))
}

// normalize - provider 확정 (비었거나 알 수 없으면 기본 provider)
func (s *Service) normalize(requests []GenerationRequest, logger *zap.Logger) []normalizedRequest {
	out := make([]normalizedRequest, len(requests))
	for i, req := range requests {
		name := s.defaultProvider
		if strings.TrimSpace(req.APIProvider) != "" {
			if parsed, ok := provider.ParseName(req.APIProvider); ok {
				name = parsed
			} else {
				logger.Warn("⚠️  Unknown provider, using default",
					zap.Int("index", req.Index),
					zap.String("apiProvider", req.APIProvider),
					zap.String("default", string(s.defaultProvider)))
			}
		}
		req.StyleID = fallback.SafeString(req.StyleID, "")
		req.StyleKey = fallback.SafeString(req.StyleKey, "")
		req.StyleName = fallback.SafeString(req.StyleName, "")
		out[i] = normalizedRequest{GenerationRequest: req, Provider: name}
	}
	return out
}

func validate(req *BatchRequest) error {
	if req == nil {
		return validationError("request body is required")
	}
	if strings.TrimSpace(req.FileID) == "" {
		return validationError("fileId is required")
	}
	if len(req.Requests) == 0 {
		return validationError("requests must not be empty")
	}
	if req.BatchID != "" {
		if _, err := uuid.Parse(req.BatchID); err != nil {
			return validationError("batchId must be a UUID")
		}
	}

	seen := make(map[int]struct{}, len(req.Requests))
	for _, r := range req.Requests {
		if _, dup := seen[r.Index]; dup {
			return validationError("duplicate request index %d", r.Index)
		}
		seen[r.Index] = struct{}{}
	}
	return nil
}

// mergeReferenceIDs - 단일 referenceFileId 를 앞에 붙이고 중복 제거 (순서 유지)
func mergeReferenceIDs(legacy string, ids []string) []string {
	merged := make([]string, 0, len(ids)+1)
	seen := make(map[string]struct{}, len(ids)+1)

	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		merged = append(merged, id)
	}

	add(legacy)
	for _, id := range ids {
		add(id)
	}
	return merged
}
