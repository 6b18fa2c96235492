package seedream

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"webtoon-regen-server/modules/common/metrics"
	"webtoon-regen-server/modules/common/provider"
	"webtoon-regen-server/modules/common/retry"
	"webtoon-regen-server/modules/common/utils"
)

const (
	defaultTimeout        = 60 * time.Second
	defaultResponseFormat = "url"
	maxImageDownloadBytes = 64 << 20
)

// ErrImageTooLarge - 결과 이미지가 다운로드 한도 초과
var ErrImageTooLarge = errors.New("seedream image exceeds download limit")

// Service - Seedream HTTP JSON 이미지 생성 클라이언트
type Service struct {
	httpClient     *http.Client
	apiKey         string
	endpoint       string
	model          string
	responseFormat string
	timeout        time.Duration
	maxDownload    int64
	policy         retry.Policy
	limiter        *rate.Limiter
	metrics        *metrics.Collector
	logger         *zap.Logger
}

// NewService - API 키가 없으면 provider.ErrNotConfigured
func NewService(cfg Config, httpClient *http.Client, m *metrics.Collector, logger *zap.Logger) (*Service, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("seedream: %w", provider.ErrNotConfigured)
	}
	if httpClient == nil {
		// 시간 제한은 시도별 context 로 처리
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("seedream")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	responseFormat := cfg.ResponseFormat
	if responseFormat != "b64_json" {
		responseFormat = defaultResponseFormat
	}

	s := &Service{
		httpClient:     httpClient,
		apiKey:         cfg.APIKey,
		endpoint:       strings.TrimRight(cfg.BaseURL, "/") + "/images/generations",
		model:          cfg.Model,
		responseFormat: responseFormat,
		timeout:        timeout,
		maxDownload:    maxImageDownloadBytes,
		metrics:        m,
		logger:         logger,
	}
	if cfg.RPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}

	s.policy = retry.DefaultPolicy(cfg.MaxRetries)
	s.policy.Retryable = IsRetryable
	s.policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("🔄 [Seedream] Retrying generation",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	logger.Info("✅ [Seedream] Service initialized", zap.String("model", cfg.Model), zap.Duration("timeout", timeout))
	return s, nil
}

// Name - provider 이름
func (s *Service) Name() provider.Name {
	return provider.Seedream
}

// Generate - 이미지 생성 (URL 결과는 같은 시도 시간 안에 다운로드)
func (s *Service) Generate(ctx context.Context, in *provider.Input) (*provider.Output, error) {
	done := s.metrics.TrackProviderCall(string(provider.Seedream))
	defer done()

	reqBody := GenerationRequest{
		Model:          s.model,
		Prompt:         in.Prompt,
		Size:           in.Size,
		ResponseFormat: s.responseFormat,
		Stream:         false,
		Watermark:      true,
	}
	for _, img := range in.Images {
		if len(img.Data) == 0 {
			continue
		}
		reqBody.Image = append(reqBody.Image, img.DataURL())
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal seedream request: %w", err)
	}

	s.logger.Info("🎨 [Seedream] Generating image",
		zap.String("model", s.model),
		zap.String("size", in.Size),
		zap.Int("images", len(reqBody.Image)),
		zap.String("prompt", truncateString(in.Prompt, 50)))

	return retry.Do(ctx, s.policy, func(ctx context.Context, attempt int) (*provider.Output, error) {
		s.metrics.ObserveAttempt(string(provider.Seedream))
		return s.attempt(ctx, jsonBody)
	})
}

func (s *Service) attempt(ctx context.Context, jsonBody []byte) (*provider.Output, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("seedream rate limiter: %w", err)
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	out, err := s.generateOnce(attemptCtx, jsonBody)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, provider.Timeout(provider.Seedream, err)
		}
		return nil, err
	}

	s.logger.Info("✅ [Seedream] Image generated",
		zap.String("mimeType", out.MimeType),
		zap.Int("base64Chars", len(out.Base64)),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

func (s *Service) generateOnce(ctx context.Context, jsonBody []byte) (*provider.Output, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create seedream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("seedream request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read seedream response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &provider.HTTPError{Provider: provider.Seedream, Status: resp.StatusCode, Body: string(bodyBytes)}
	}

	var genResp GenerationResponse
	if err := json.Unmarshal(bodyBytes, &genResp); err != nil {
		return nil, fmt.Errorf("failed to parse seedream response: %w", err)
	}
	if genResp.Error != nil && genResp.Error.Message != "" {
		return nil, fmt.Errorf("seedream api error %s: %s", genResp.Error.Code, genResp.Error.Message)
	}
	if len(genResp.Data) == 0 {
		return nil, fmt.Errorf("seedream: %w", provider.ErrNoImage)
	}

	item := genResp.Data[0]
	switch {
	case item.B64JSON != "":
		imageData, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode seedream b64_json: %w", err)
		}
		return &provider.Output{Base64: item.B64JSON, MimeType: utils.DetectMimeType(imageData, "image/png")}, nil

	case item.URL != "":
		imageData, err := s.downloadImage(ctx, item.URL)
		if err != nil {
			return nil, err
		}
		return &provider.Output{
			Base64:   base64.StdEncoding.EncodeToString(imageData),
			MimeType: utils.DetectMimeType(imageData, "image/png"),
		}, nil
	}

	return nil, fmt.Errorf("seedream: %w", provider.ErrNoImage)
}

// downloadImage - 결과 URL 다운로드
func (s *Service) downloadImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create image download request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download seedream image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &provider.HTTPError{Provider: provider.Seedream, Status: resp.StatusCode, Body: string(body)}
	}

	// 한도 +1 바이트까지 읽어 잘린 이미지를 구분
	imageData, err := io.ReadAll(io.LimitReader(resp.Body, s.maxDownload+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read seedream image: %w", err)
	}
	if int64(len(imageData)) > s.maxDownload {
		return nil, fmt.Errorf("%w (%d bytes)", ErrImageTooLarge, s.maxDownload)
	}
	if len(imageData) == 0 {
		return nil, fmt.Errorf("seedream: empty image download: %w", provider.ErrNoImage)
	}
	return imageData, nil
}

// IsRetryable - 5xx 와 네트워크 끊김만 재시도 (timeout 은 재시도 안 함)
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if provider.IsServerError(err) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection refused")
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
