package provider

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
)

// 에러 코드 suffix
const (
	CodeTimeout            = "TIMEOUT"
	CodeOverload           = "OVERLOAD"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeRateLimit          = "RATE_LIMIT"
	CodeError              = "ERROR"
)

// 사용자에게 노출되는 고정 메시지 (provider 원본 에러는 로그로만 남김)
var userMessages = map[string]string{
	CodeTimeout:            "이미지 생성 시간이 초과되었습니다. 잠시 후 다시 시도해주세요.",
	CodeOverload:           "AI 서버에 요청이 많아 처리하지 못했습니다. 잠시 후 다시 시도해주세요.",
	CodeServiceUnavailable: "AI 서비스를 일시적으로 사용할 수 없습니다. 잠시 후 다시 시도해주세요.",
	CodeRateLimit:          "요청 한도를 초과했습니다. 잠시 후 다시 시도해주세요.",
	CodeError:              "이미지 생성 중 오류가 발생했습니다. 다시 시도해주세요.",
}

// Classified - 분류된 에러 (코드 + 사용자 메시지)
type Classified struct {
	Code    string
	Message string
}

// Classify - provider 에러를 고정된 분류 체계로 변환
// 우선순위: timeout > 503(overload/unavailable) > 429 > 기타
func Classify(err error, name Name) Classified {
	kind := classifyKind(err)
	return Classified{
		Code:    name.Upper() + "_" + kind,
		Message: userMessages[kind],
	}
}

func classifyKind(err error) string {
	if err == nil {
		return CodeError
	}
	if IsTimeout(err) {
		return CodeTimeout
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.Status {
		case http.StatusServiceUnavailable:
			if strings.Contains(strings.ToLower(httpErr.Body), "overload") {
				return CodeOverload
			}
			return CodeServiceUnavailable
		case http.StatusTooManyRequests:
			return CodeRateLimit
		}
	}
	return CodeError
}

// IsTimeout - timeout 형태의 에러인지 확인
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out")
}
