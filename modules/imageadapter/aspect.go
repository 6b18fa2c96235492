package imageadapter

import (
	"math"
	"strconv"
	"strings"

	"webtoon-regen-server/modules/common/provider"
)

// provider 별 지원 비율 (선언 순서가 동률 처리 기준)
var supportedAspectRatios = map[provider.Name][]string{
	provider.Gemini:   {"1:1", "2:3", "3:2", "3:4", "4:3", "4:5", "5:4", "9:16", "16:9", "21:9"},
	provider.Seedream: {"1:1", "4:3", "3:4", "16:9", "9:16", "3:2", "2:3", "21:9"},
}

// SupportedAspectRatios - provider 가 지원하는 "W:H" 비율 목록 (복사본)
func SupportedAspectRatios(name provider.Name) []string {
	ratios := supportedAspectRatios[name]
	out := make([]string, len(ratios))
	copy(out, ratios)
	return out
}

// GetClosestAspectRatio - width/height 와 가장 가까운 provider 지원 비율 반환
// 동률이면 목록에서 먼저 나온 값. 크기가 없거나 알 수 없는 provider 면 "1:1"
func GetClosestAspectRatio(width, height int, name provider.Name) string {
	candidates := supportedAspectRatios[name]
	if len(candidates) == 0 || width <= 0 || height <= 0 {
		return "1:1"
	}

	original := float64(width) / float64(height)
	best := candidates[0]
	bestDiff := math.Inf(1)

	for _, candidate := range candidates {
		ratio, ok := parseRatio(candidate)
		if !ok {
			continue
		}
		if diff := math.Abs(original - ratio); diff < bestDiff {
			best = candidate
			bestDiff = diff
		}
	}
	return best
}

func parseRatio(s string) (float64, bool) {
	w, h, found := strings.Cut(s, ":")
	if !found {
		return 0, false
	}
	wf, err := strconv.ParseFloat(w, 64)
	if err != nil {
		return 0, false
	}
	hf, err := strconv.ParseFloat(h, 64)
	if err != nil || hf == 0 {
		return 0, false
	}
	return wf / hf, true
}
