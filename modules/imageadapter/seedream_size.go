package imageadapter

import (
	"fmt"
	"math"
)

// Seedream 출력 크기 제약
const (
	seedreamTargetLongEdge = 2048
	seedreamMinWidth       = 1280
	seedreamMaxWidth       = 4096
	seedreamMinHeight      = 720
	seedreamMaxHeight      = 4096
	seedreamMinPixels      = 3686400
	seedreamSizeStep       = 8
)

// CalculateSeedreamSize - 원본 비율을 유지하는 Seedream 출력 크기 "{W}x{H}" 계산
func CalculateSeedreamSize(width, height int) string {
	w, h := SeedreamDimensions(width, height)
	return fmt.Sprintf("%dx%d", w, h)
}

// SeedreamDimensions - CalculateSeedreamSize 의 정수 버전
func SeedreamDimensions(width, height int) (int, int) {
	if width <= 0 || height <= 0 {
		return seedreamTargetLongEdge, seedreamTargetLongEdge
	}

	ratio := float64(width) / float64(height)

	var w, h float64
	if ratio >= 1 {
		w = seedreamTargetLongEdge
		h = seedreamTargetLongEdge / ratio
	} else {
		h = seedreamTargetLongEdge
		w = seedreamTargetLongEdge * ratio
	}

	w = clamp(w, seedreamMinWidth, seedreamMaxWidth)
	h = clamp(h, seedreamMinHeight, seedreamMaxHeight)

	tw := roundToStep(w)
	th := roundToStep(h)

	// 최소 픽셀 수 미달이면 비율 유지하며 확대 (8의 배수로 올림)
	if area := tw * th; area < seedreamMinPixels {
		scale := math.Sqrt(float64(seedreamMinPixels) / float64(area))
		tw = ceilToStep(float64(tw) * scale)
		th = ceilToStep(float64(th) * scale)
		tw = min(tw, seedreamMaxWidth)
		th = min(th, seedreamMaxHeight)
	}

	return tw, th
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func roundToStep(v float64) int {
	return int(math.Round(v/seedreamSizeStep)) * seedreamSizeStep
}

func ceilToStep(v float64) int {
	return int(math.Ceil(v/seedreamSizeStep)) * seedreamSizeStep
}
