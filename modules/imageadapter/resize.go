package imageadapter

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // GIF 디코더 등록
	"image/jpeg"
	_ "image/png" // PNG 디코더 등록
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP 디코더 등록
)

// 리사이즈 기본 예산
const (
	DefaultMaxBytes  = 10 * 1024 * 1024
	DefaultMaxPixels = 36000000
)

// 리사이즈 단계별 상수
const (
	pixelSafetyFactor = 0.95
	pixelStepQuality  = 85
	scaleStepQuality  = 70
	fallbackQuality   = 60
	fallbackMaxEdge   = 2048
)

var (
	qualitySteps = []int{80, 70, 60, 50}
	scaleSteps   = []float64{0.8, 0.7, 0.6, 0.5, 0.4}
)

// Step - 리사이즈 결과를 만든 단계
type Step string

const (
	StepNone     Step = "none"
	StepPixel    Step = "pixel"
	StepQuality  Step = "quality"
	StepScale    Step = "scale"
	StepFallback Step = "fallback"
)

// Options - 바이트/픽셀 예산 (0 이하면 기본값)
type Options struct {
	MaxBytes  int
	MaxPixels int
}

func (o Options) withDefaults() Options {
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	if o.MaxPixels <= 0 {
		o.MaxPixels = DefaultMaxPixels
	}
	return o
}

// ResizeResult - 리사이즈 결과 (생성 후 변경 금지)
type ResizeResult struct {
	Data     []byte
	MimeType string
	Resized  bool
	Width    int
	Height   int
	Step     Step
}

// ResizeImageIfNeeded - 예산 안이면 원본 그대로, 아니면 리사이즈 사다리를 순서대로 적용
//
//  1. 픽셀 초과 시 sqrt(예산/픽셀)*0.95 로 축소, q85
//  2. 같은 크기에서 q80, 70, 60, 50
//  3. q70 에서 0.8 ~ 0.4 배 축소
//  4. 2048x2048 안으로 맞춰 q60 (예산 초과여도 그대로 반환)
func ResizeImageIfNeeded(data []byte, mimeType string, opts Options) (*ResizeResult, error) {
	opts = opts.withDefaults()

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read image size: %w", err)
	}

	pixels := cfg.Width * cfg.Height
	if len(data) <= opts.MaxBytes && pixels <= opts.MaxPixels {
		return &ResizeResult{
			Data:     data,
			MimeType: mimeType,
			Width:    cfg.Width,
			Height:   cfg.Height,
			Step:     StepNone,
		}, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	width, height := cfg.Width, cfg.Height
	base := flatten(src, width, height)

	// 1. 픽셀 예산
	if pixels > opts.MaxPixels {
		scale := math.Sqrt(float64(opts.MaxPixels)/float64(pixels)) * pixelSafetyFactor
		width, height = scaleDims(cfg.Width, cfg.Height, scale)
		base = flatten(src, width, height)

		out, err := encodeJPEG(base, pixelStepQuality)
		if err != nil {
			return nil, err
		}
		if len(out) <= opts.MaxBytes {
			return jpegResult(out, width, height, StepPixel), nil
		}
	}

	// 2. 품질 단계
	for _, quality := range qualitySteps {
		out, err := encodeJPEG(base, quality)
		if err != nil {
			return nil, err
		}
		if len(out) <= opts.MaxBytes {
			return jpegResult(out, width, height, StepQuality), nil
		}
	}

	// 3. 크기 단계 (1단계 이후 크기 기준)
	for _, scale := range scaleSteps {
		w, h := scaleDims(width, height, scale)
		out, err := encodeJPEG(flatten(src, w, h), scaleStepQuality)
		if err != nil {
			return nil, err
		}
		if len(out) <= opts.MaxBytes {
			return jpegResult(out, w, h, StepScale), nil
		}
	}

	// 4. 최종 fallback
	w, h := fitInside(cfg.Width, cfg.Height, fallbackMaxEdge, fallbackMaxEdge)
	out, err := encodeJPEG(flatten(src, w, h), fallbackQuality)
	if err != nil {
		return nil, err
	}
	return jpegResult(out, w, h, StepFallback), nil
}

func jpegResult(data []byte, width, height int, step Step) *ResizeResult {
	return &ResizeResult{
		Data:     data,
		MimeType: "image/jpeg",
		Resized:  true,
		Width:    width,
		Height:   height,
		Step:     step,
	}
}

// flatten - 흰 배경 위에 width x height 로 그리기 (JPEG 는 알파 없음)
func flatten(src image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	bounds := src.Bounds()
	if bounds.Dx() == width && bounds.Dy() == height {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
		return dst
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG (q%d): %w", quality, err)
	}
	return buf.Bytes(), nil
}

func scaleDims(width, height int, scale float64) (int, int) {
	w := int(math.Floor(float64(width) * scale))
	h := int(math.Floor(float64(height) * scale))
	return max(w, 1), max(h, 1)
}

// fitInside - 비율 유지하며 maxW x maxH 안에 맞춤 (확대 없음)
func fitInside(width, height, maxW, maxH int) (int, int) {
	if width <= maxW && height <= maxH {
		return width, height
	}
	scale := math.Min(float64(maxW)/float64(width), float64(maxH)/float64(height))
	return scaleDims(width, height, scale)
}
