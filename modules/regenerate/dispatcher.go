package regenerate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"webtoon-regen-server/modules/common/metrics"
	"webtoon-regen-server/modules/common/progress"
	"webtoon-regen-server/modules/common/provider"
	"webtoon-regen-server/modules/common/settle"
	"webtoon-regen-server/modules/imageadapter"
)

// DefaultConcurrency - provider 별 기본 동시 요청 수
const DefaultConcurrency = 2

// Dispatcher - provider 별 청크 단위 동시 실행 및 결과 취합
type Dispatcher struct {
	providers   map[provider.Name]provider.GenerationProvider
	concurrency map[provider.Name]int
	adapter     *imageadapter.Adapter
	persister   *Persister
	tracker     *progress.Tracker
	metrics     *metrics.Collector
	logger      *zap.Logger
}

// DispatcherConfig - Dispatcher 의존성
type DispatcherConfig struct {
	Providers   []provider.GenerationProvider
	Concurrency map[provider.Name]int
	Adapter     *imageadapter.Adapter
	Persister   *Persister
	Tracker     *progress.Tracker
	Metrics     *metrics.Collector
	Logger      *zap.Logger
}

// NewDispatcher - 설정 안 된 provider 는 Providers 에서 빠져 있으면 됨
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	providers := make(map[provider.Name]provider.GenerationProvider, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if p != nil {
			providers[p.Name()] = p
		}
	}

	return &Dispatcher{
		providers:   providers,
		concurrency: cfg.Concurrency,
		adapter:     cfg.Adapter,
		persister:   cfg.Persister,
		tracker:     cfg.Tracker,
		metrics:     cfg.Metrics,
		logger:      logger.Named("dispatcher"),
	}
}

// batchRun - 배치 1회 실행 컨텍스트
type batchRun struct {
	batchID   string
	requests  []normalizedRequest
	loaded    *LoadedImages
	sources   *imageadapter.Sources
	createdBy string
}

// Dispatch - provider 그룹을 동시에 실행하고 결과를 이어 붙임
// 그룹 전체 실패 (provider 미설정, 이미지 조정 실패) 는 해당 그룹 요청마다 에러 결과로 기록
func (d *Dispatcher) Dispatch(ctx context.Context, run *batchRun) []ProcessedImage {
	// 클라이언트 연결이 끊겨도 이미 시작한 생성/저장은 끝까지 진행
	ctx = context.WithoutCancel(ctx)
	groups := partition(run.requests)

	tasks := make([]settle.Task[[]ProcessedImage], 0, len(groups))
	for _, g := range groups {
		tasks = append(tasks, func(ctx context.Context) ([]ProcessedImage, error) {
			return d.runGroup(ctx, run, g.name, g.requests), nil
		})
	}

	results := settle.All(ctx, tasks)

	images := make([]ProcessedImage, 0, len(run.requests))
	for i, result := range results {
		if !result.OK() {
			// runGroup 내부 panic
			images = append(images, d.failGroup(ctx, run, groups[i].name, groups[i].requests, result.Err)...)
			continue
		}
		images = append(images, result.Value...)
	}
	return images
}

type requestGroup struct {
	name     provider.Name
	requests []normalizedRequest
}

// partition - provider.All 순서로 그룹화 (그룹 안 순서는 입력 순서)
func partition(requests []normalizedRequest) []requestGroup {
	byName := make(map[provider.Name][]normalizedRequest)
	for _, req := range requests {
		byName[req.Provider] = append(byName[req.Provider], req)
	}

	groups := make([]requestGroup, 0, len(byName))
	for _, name := range provider.All {
		if reqs := byName[name]; len(reqs) > 0 {
			groups = append(groups, requestGroup{name: name, requests: reqs})
			delete(byName, name)
		}
	}
	// 정규화 이후에는 남지 않지만 누락 방지
	for name, reqs := range byName {
		groups = append(groups, requestGroup{name: name, requests: reqs})
	}
	return groups
}

func (d *Dispatcher) runGroup(ctx context.Context, run *batchRun, name provider.Name, requests []normalizedRequest) []ProcessedImage {
	logger := d.logger.With(zap.String("batchId", run.batchID), zap.String("provider", string(name)))

	p, ok := d.providers[name]
	if !ok {
		return d.failGroup(ctx, run, name, requests, fmt.Errorf("%s: %w", name, provider.ErrNotConfigured))
	}

	set, err := d.adapter.Prepare(name, run.sources)
	if err != nil {
		return d.failGroup(ctx, run, name, requests, fmt.Errorf("adapt images for %s: %w", name, err))
	}

	size := d.concurrency[name]
	if size < 1 {
		size = DefaultConcurrency
	}

	tasks := make([]settle.Task[ProcessedImage], len(requests))
	for i, req := range requests {
		tasks[i] = func(ctx context.Context) (ProcessedImage, error) {
			img := d.processRequest(ctx, p, set, run, req)
			d.record(ctx, run.batchID, img)
			return img, nil
		}
	}

	logger.Info("🚀 Dispatching provider group", zap.Int("requests", len(requests)), zap.Int("concurrency", size))

	results := settle.Chunked(ctx, tasks, size, func(start int, chunk []settle.Result[ProcessedImage]) {
		logger.Debug("📦 Chunk settled", zap.Int("start", start), zap.Int("size", len(chunk)))
	})

	images := make([]ProcessedImage, len(results))
	for i, result := range results {
		if result.OK() {
			images[i] = result.Value
			continue
		}
		// processRequest 내부 panic
		images[i] = d.errorImage(requests[i], result.Err)
		d.record(ctx, run.batchID, images[i])
	}
	return images
}

// processRequest - 생성 → 저장. 실패는 분류된 에러 결과로 변환
func (d *Dispatcher) processRequest(ctx context.Context, p provider.GenerationProvider, set *imageadapter.AdaptedImageSet, run *batchRun, req normalizedRequest) ProcessedImage {
	out, err := p.Generate(ctx, set.Input(req.StylePrompt))
	if err != nil {
		return d.errorImage(req, err)
	}

	img := req.baseImage()
	outcome := d.persister.Persist(ctx, PersistInput{
		ImageBase64: out.Base64,
		MimeType:    out.MimeType,
		Source:      run.loaded.Info,
		Request:     req,
		CreatedBy:   run.createdBy,
	})

	switch o := outcome.(type) {
	case StoredResult:
		img.FileID = o.FileID
		img.StoragePath = o.StoragePath
		img.ImageURL = o.URL
		img.MimeType = o.MimeType
		d.metrics.ObserveRequest(string(req.Provider), progress.OutcomeStored)
	case InlineResult:
		img.ImageBase64 = o.Base64
		img.MimeType = o.MimeType
		d.metrics.ObserveRequest(string(req.Provider), progress.OutcomeInline)
	}
	return img
}

func (d *Dispatcher) errorImage(req normalizedRequest, err error) ProcessedImage {
	classified := provider.Classify(err, req.Provider)
	d.logger.Error("❌ Generation failed",
		zap.Int("index", req.Index),
		zap.String("provider", string(req.Provider)),
		zap.String("code", classified.Code),
		zap.Error(err))
	d.metrics.ObserveRequest(string(req.Provider), progress.OutcomeError)

	img := req.baseImage()
	img.ErrorCode = classified.Code
	img.Error = classified.Message
	return img
}

func (d *Dispatcher) failGroup(ctx context.Context, run *batchRun, name provider.Name, requests []normalizedRequest, err error) []ProcessedImage {
	d.logger.Error("❌ Provider group failed",
		zap.String("batchId", run.batchID),
		zap.String("provider", string(name)),
		zap.Int("requests", len(requests)),
		zap.Error(err))

	images := make([]ProcessedImage, len(requests))
	for i, req := range requests {
		images[i] = d.errorImage(req, err)
		d.record(ctx, run.batchID, images[i])
	}
	return images
}

func (d *Dispatcher) record(ctx context.Context, batchID string, img ProcessedImage) {
	summary := progress.ImageSummary{
		Index:    img.Index,
		Provider: string(img.Provider),
		FileID:   img.FileID,
		URL:      img.ImageURL,
	}
	switch {
	case img.Failed():
		summary.Outcome = progress.OutcomeError
		summary.ErrorCode = img.ErrorCode
	case img.ImageBase64 != "":
		summary.Outcome = progress.OutcomeInline
	default:
		summary.Outcome = progress.OutcomeStored
	}
	d.tracker.RecordImage(ctx, batchID, summary)
}
