package seedream

import "time"

// Config - Seedream (Ark images API) 클라이언트 설정
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	// 초당 호출 수 제한 (0 = 무제한)
	RPS float64
	// "url" 또는 "b64_json"
	ResponseFormat string
}

// GenerationRequest - POST {base}/images/generations 요청 바디
type GenerationRequest struct {
	Model          string   `json:"model"`
	Prompt         string   `json:"prompt"`
	Image          []string `json:"image,omitempty"` // data URL 목록
	Size           string   `json:"size,omitempty"`  // "{W}x{H}"
	ResponseFormat string   `json:"response_format"`
	Stream         bool     `json:"stream"`
	Watermark      bool     `json:"watermark"`
}

// GenerationResponse - 이미지 생성 응답
type GenerationResponse struct {
	Model   string          `json:"model"`
	Created int64           `json:"created"`
	Data    []GeneratedItem `json:"data"`
	Error   *APIErrorBody   `json:"error,omitempty"`
}

// GeneratedItem - 생성 결과 1건 (url 또는 b64_json)
type GeneratedItem struct {
	URL     string `json:"url,omitempty"`
	B64JSON string `json:"b64_json,omitempty"`
	Size    string `json:"size,omitempty"`
}

// APIErrorBody - 에러 응답 바디
type APIErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
