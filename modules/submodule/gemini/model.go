package gemini

import (
	"context"
	"iter"
	"time"

	"google.golang.org/genai"
)

// Config - Gemini 클라이언트 설정
type Config struct {
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	// 초당 호출 수 제한 (0 = 무제한)
	RPS float64
}

// contentStreamer - genai.Models 의 스트리밍 호출 부분 (테스트에서 교체)
type contentStreamer interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}
