package provider

import (
	"errors"
	"fmt"
)

// ErrTimeout - provider 호출 시간 초과
var ErrTimeout = errors.New("provider call timed out")

// ErrNotConfigured - API 키 등 provider 설정 없음
var ErrNotConfigured = errors.New("provider is not configured")

// ErrNoImage - 응답에 이미지 데이터 없음
var ErrNoImage = errors.New("no image data in provider response")

// HTTPError - provider 가 HTTP 에러 상태를 반환한 경우
type HTTPError struct {
	Provider Name
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s api error: status %d: %s", e.Provider, e.Status, truncate(e.Body, 300))
}

// SafetyBlockError - 후보의 finish reason 이 STOP 이 아닌 경우 (안전 필터 등). 재시도 대상 아님
type SafetyBlockError struct {
	Provider     Name
	FinishReason string
	Message      string
}

func (e *SafetyBlockError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s generation blocked (finish reason %s): %s", e.Provider, e.FinishReason, e.Message)
	}
	return fmt.Sprintf("%s generation blocked (finish reason %s)", e.Provider, e.FinishReason)
}

// Timeout - ErrTimeout 으로 감싼 에러 생성
func Timeout(name Name, cause error) error {
	return fmt.Errorf("%s: %w: %w", name, ErrTimeout, cause)
}

// IsHTTPStatus - err 가 특정 상태 코드의 HTTPError 인지 확인
func IsHTTPStatus(err error, status int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == status
}

// IsServerError - 5xx HTTPError 여부
func IsServerError(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Status >= 500 && httpErr.Status <= 599
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
