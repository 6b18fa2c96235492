package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"webtoon-regen-server/modules/common/metrics"
	"webtoon-regen-server/modules/common/provider"
	"webtoon-regen-server/modules/common/retry"
)

const defaultTimeout = 120 * time.Second

// Service - Gemini 스트리밍 이미지 생성 클라이언트
type Service struct {
	models  contentStreamer
	model   string
	timeout time.Duration
	policy  retry.Policy
	limiter *rate.Limiter
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewService - genai 클라이언트 생성. API 키가 없으면 provider.ErrNotConfigured
func NewService(ctx context.Context, cfg Config, m *metrics.Collector, logger *zap.Logger) (*Service, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", provider.ErrNotConfigured)
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return newService(genaiClient.Models, cfg, m, logger), nil
}

func newService(models contentStreamer, cfg Config, m *metrics.Collector, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("gemini")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	s := &Service{
		models:  models,
		model:   cfg.Model,
		timeout: timeout,
		metrics: m,
		logger:  logger,
	}
	if cfg.RPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}

	s.policy = retry.DefaultPolicy(cfg.MaxRetries)
	s.policy.Retryable = IsRetryable
	s.policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("🔄 [Gemini] Retrying generation",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	logger.Info("✅ [Gemini] Service initialized", zap.String("model", cfg.Model), zap.Duration("timeout", timeout))
	return s
}

// Name - provider 이름
func (s *Service) Name() provider.Name {
	return provider.Gemini
}

// Generate - 프롬프트 + 이미지로 스트리밍 생성, 첫 번째 인라인 이미지 반환
func (s *Service) Generate(ctx context.Context, in *provider.Input) (*provider.Output, error) {
	done := s.metrics.TrackProviderCall(string(provider.Gemini))
	defer done()

	contents := buildContents(in)
	genConfig := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
		Temperature:        floatPtr(0.7),
	}
	if in.AspectRatio != "" {
		genConfig.ImageConfig = &genai.ImageConfig{AspectRatio: in.AspectRatio}
	}

	s.logger.Info("🎨 [Gemini] Generating image",
		zap.String("model", s.model),
		zap.String("aspectRatio", in.AspectRatio),
		zap.Int("images", len(in.Images)),
		zap.String("prompt", truncateString(in.Prompt, 50)))

	return retry.Do(ctx, s.policy, func(ctx context.Context, attempt int) (*provider.Output, error) {
		s.metrics.ObserveAttempt(string(provider.Gemini))
		return s.attempt(ctx, contents, genConfig)
	})
}

// attempt - 스트림 열기부터 끝까지 읽기까지 하나의 timeout 으로 제한
func (s *Service) attempt(ctx context.Context, contents []*genai.Content, genConfig *genai.GenerateContentConfig) (*provider.Output, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("gemini rate limiter: %w", err)
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	out, err := s.stream(attemptCtx, contents, genConfig)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, provider.Timeout(provider.Gemini, err)
		}
		return nil, err
	}

	s.logger.Info("✅ [Gemini] Image generated",
		zap.String("mimeType", out.MimeType),
		zap.Int("base64Chars", len(out.Base64)),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

// stream - 청크를 순서대로 보며 첫 인라인 이미지를 찾음
func (s *Service) stream(ctx context.Context, contents []*genai.Content, genConfig *genai.GenerateContentConfig) (*provider.Output, error) {
	for resp, err := range s.models.GenerateContentStream(ctx, s.model, contents, genConfig) {
		if err != nil {
			return nil, convertError(err)
		}
		if resp == nil {
			continue
		}

		if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
			return nil, &provider.SafetyBlockError{
				Provider:     provider.Gemini,
				FinishReason: string(fb.BlockReason),
				Message:      fb.BlockReasonMessage,
			}
		}

		for _, candidate := range resp.Candidates {
			if candidate == nil {
				continue
			}
			if candidate.Content != nil {
				for _, part := range candidate.Content.Parts {
					if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
						mimeType := part.InlineData.MIMEType
						if mimeType == "" {
							mimeType = "image/png"
						}
						return &provider.Output{
							Base64:   base64.StdEncoding.EncodeToString(part.InlineData.Data),
							MimeType: mimeType,
						}, nil
					}
				}
			}

			// 이미지 없이 STOP 이외의 사유로 끝난 경우 (안전 필터 등)
			if reason := candidate.FinishReason; reason != "" &&
				reason != genai.FinishReasonUnspecified && reason != genai.FinishReasonStop {
				return nil, &provider.SafetyBlockError{
					Provider:     provider.Gemini,
					FinishReason: string(reason),
					Message:      candidate.FinishMessage,
				}
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("gemini: %w", provider.ErrNoImage)
}

// IsRetryable - timeout, 5xx, 429 만 재시도. 안전 차단은 재시도 안 함
func IsRetryable(err error) bool {
	var blocked *provider.SafetyBlockError
	if errors.As(err, &blocked) {
		return false
	}
	return provider.IsTimeout(err) ||
		provider.IsServerError(err) ||
		provider.IsHTTPStatus(err, http.StatusTooManyRequests)
}

// buildContents - 텍스트, 원본, 캐릭터/레퍼런스 순서의 parts 구성
func buildContents(in *provider.Input) []*genai.Content {
	parts := []*genai.Part{genai.NewPartFromText(in.Prompt)}
	for _, img := range in.Images {
		if len(img.Data) == 0 {
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MimeType))
	}
	return []*genai.Content{{Role: "user", Parts: parts}}
}

// convertError - genai.APIError 를 provider.HTTPError 로 변환
func convertError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErrorToHTTP(apiErr, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrorToHTTP(*apiErrPtr, err)
	}
	return err
}

func apiErrorToHTTP(apiErr genai.APIError, cause error) error {
	status := apiErr.Code
	if status == 0 && apiErr.Status == "RESOURCE_EXHAUSTED" {
		status = http.StatusTooManyRequests
	}
	if status == 0 {
		return cause
	}
	return &provider.HTTPError{
		Provider: provider.Gemini,
		Status:   status,
		Body:     fmt.Sprintf("%s: %s", apiErr.Status, apiErr.Message),
	}
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func floatPtr(f float64) *float32 {
	f32 := float32(f)
	return &f32
}
