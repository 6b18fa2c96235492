package provider

import (
	"context"
	"strings"

	"webtoon-regen-server/modules/common/utils"
)

// Name - 이미지 생성 provider 이름
type Name string

const (
	Gemini   Name = "gemini"
	Seedream Name = "seedream"
)

// All - 지원하는 provider 목록 (선언 순서 고정)
var All = []Name{Gemini, Seedream}

// ParseName - 문자열을 provider 이름으로 변환 (대소문자/공백 무시)
func ParseName(s string) (Name, bool) {
	switch Name(strings.ToLower(strings.TrimSpace(s))) {
	case Gemini:
		return Gemini, true
	case Seedream:
		return Seedream, true
	}
	return "", false
}

// Upper - 에러 코드 prefix 용 대문자 이름
func (n Name) Upper() string {
	return strings.ToUpper(string(n))
}

// EncodedImage - provider 전송용 인코딩된 이미지
type EncodedImage struct {
	MimeType string
	Data     []byte
}

// DataURL - "data:{mime};base64,..." 형식
func (e EncodedImage) DataURL() string {
	return utils.ToDataURL(e.MimeType, e.Data)
}

// Input - provider 호출 입력 (프롬프트 + 조정된 이미지들)
type Input struct {
	Prompt string
	// Images[0] 은 원본, 이후는 캐릭터 또는 레퍼런스 이미지
	Images []EncodedImage
	// Gemini 전용
	AspectRatio string
	// Seedream 전용 ("{W}x{H}")
	Size string
}

// Output - provider 생성 결과
type Output struct {
	Base64   string
	MimeType string
}

// GenerationProvider - 이미지 생성 provider 공통 인터페이스
type GenerationProvider interface {
	Name() Name
	Generate(ctx context.Context, in *Input) (*Output, error)
}
