package utils

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // GIF 디코더 등록
	_ "image/jpeg" // JPEG 디코더 등록
	_ "image/png"  // PNG 디코더 등록
	"net/http"
	"strings"

	_ "golang.org/x/image/webp" // WebP 디코더 등록 (image.Decode / DecodeConfig)
)

// ConvertImageToBase64 - 이미지 바이너리를 base64로 변환
func ConvertImageToBase64(imageData []byte) string {
	return base64.StdEncoding.EncodeToString(imageData)
}

// ToDataURL - "data:{mime};base64,{data}" 형식 문자열 생성
func ToDataURL(mimeType string, imageData []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, ConvertImageToBase64(imageData))
}

// DetectMimeType - 바이트 내용으로 이미지 MIME 추정 (fallback 은 헤더/기본값)
func DetectMimeType(imageData []byte, fallback string) string {
	detected := http.DetectContentType(imageData)
	if strings.HasPrefix(detected, "image/") {
		return detected
	}
	if fallback = strings.TrimSpace(strings.Split(fallback, ";")[0]); strings.HasPrefix(fallback, "image/") {
		return fallback
	}
	return "image/png"
}

// ExtensionFromMime - MIME 타입에 맞는 파일 확장자 (점 없음)
func ExtensionFromMime(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}

// DecodeDimensions - 전체 디코딩 없이 이미지 크기만 읽기
func DecodeDimensions(imageData []byte) (width, height int, format string, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(imageData))
	if err != nil {
		return 0, 0, "", fmt.Errorf("failed to decode image config: %w", err)
	}
	return cfg.Width, cfg.Height, format, nil
}
