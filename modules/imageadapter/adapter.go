package imageadapter

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"webtoon-regen-server/modules/common/provider"
)

// Seedream 요청당 최대 이미지 수
const seedreamMaxImages = 10

// 캐시 key prefix
const (
	referenceKeyPrefix = "ref:"
	characterKeyPrefix = "char:"
)

// ImageBlob - 다운로드된 이미지 원본
type ImageBlob struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
}

// Sources - 배치 하나의 입력 이미지 묶음
// 원본 리사이즈는 배치당 한 번만 수행 (캐시 사용 안 함)
type Sources struct {
	Source     ImageBlob
	References []ImageBlob
	Characters []ImageBlob

	sourceOnce   sync.Once
	sourceResult *ResizeResult
	sourceErr    error
}

// AdaptedImageSet - provider 전송 준비가 끝난 이미지 + 크기 정보
type AdaptedImageSet struct {
	Provider provider.Name
	Images   []provider.EncodedImage
	// Gemini 전용
	AspectRatio string
	// Seedream 전용
	Size string
}

// Input - 프롬프트를 붙여 provider 입력 생성
func (s *AdaptedImageSet) Input(prompt string) *provider.Input {
	return &provider.Input{
		Prompt:      prompt,
		Images:      s.Images,
		AspectRatio: s.AspectRatio,
		Size:        s.Size,
	}
}

// Adapter - provider 별 이미지 조정기
type Adapter struct {
	cache  *ResizeCache
	opts   Options
	logger *zap.Logger
}

// NewAdapter - cache 는 nil 가능
func NewAdapter(cache *ResizeCache, opts Options, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{cache: cache, opts: opts.withDefaults(), logger: logger}
}

// Prepare - provider 형식에 맞게 이미지 조정
func (a *Adapter) Prepare(name provider.Name, src *Sources) (*AdaptedImageSet, error) {
	source, err := a.source(src)
	if err != nil {
		return nil, err
	}

	images := []provider.EncodedImage{{MimeType: source.MimeType, Data: source.Data}}
	set := &AdaptedImageSet{Provider: name}

	switch name {
	case provider.Gemini:
		// 캐릭터 이미지가 있으면 레퍼런스는 보내지 않음
		if len(src.Characters) > 0 {
			images = append(images, a.resizeAll(characterKeyPrefix, src.Characters)...)
		} else {
			images = append(images, a.resizeAll(referenceKeyPrefix, src.References)...)
		}
		set.AspectRatio = GetClosestAspectRatio(src.Source.Width, src.Source.Height, name)

	case provider.Seedream:
		images = append(images, a.resizeAll(referenceKeyPrefix, src.References)...)
		images = append(images, a.resizeAll(characterKeyPrefix, src.Characters)...)
		if len(images) > seedreamMaxImages {
			a.logger.Warn("⚠️  Too many images for Seedream, truncating",
				zap.Int("count", len(images)),
				zap.Int("max", seedreamMaxImages))
			images = images[:seedreamMaxImages]
		}
		set.Size = CalculateSeedreamSize(src.Source.Width, src.Source.Height)

	default:
		return nil, fmt.Errorf("unsupported provider %q", name)
	}

	set.Images = images
	a.logger.Debug("🖼️  Images adapted",
		zap.String("provider", string(name)),
		zap.Int("images", len(images)),
		zap.String("aspectRatio", set.AspectRatio),
		zap.String("size", set.Size))
	return set, nil
}

// CacheStats - 캐시 통계 (캐시 없으면 0)
func (a *Adapter) CacheStats() CacheStats {
	if a.cache == nil {
		return CacheStats{}
	}
	return a.cache.Stats()
}

func (a *Adapter) source(src *Sources) (*ResizeResult, error) {
	src.sourceOnce.Do(func() {
		src.sourceResult, src.sourceErr = ResizeImageIfNeeded(src.Source.Data, src.Source.MimeType, a.opts)
		if src.sourceErr != nil {
			src.sourceErr = fmt.Errorf("resize source image: %w", src.sourceErr)
			return
		}
		if src.sourceResult.Resized {
			a.logger.Info("📐 Source image resized",
				zap.Int("originalBytes", len(src.Source.Data)),
				zap.Int("bytes", len(src.sourceResult.Data)),
				zap.Int("width", src.sourceResult.Width),
				zap.Int("height", src.sourceResult.Height),
				zap.String("step", string(src.sourceResult.Step)))
		}
	})
	return src.sourceResult, src.sourceErr
}

// resizeAll - 실패한 이미지는 건너뜀 (선택 입력이므로)
func (a *Adapter) resizeAll(prefix string, blobs []ImageBlob) []provider.EncodedImage {
	out := make([]provider.EncodedImage, 0, len(blobs))
	for i, blob := range blobs {
		result, err := ResizeImageWithCache(a.cache, prefix, blob.Data, blob.MimeType, a.opts)
		if err != nil {
			a.logger.Warn("⚠️  Skipping image that could not be adapted",
				zap.String("kind", prefix),
				zap.Int("position", i),
				zap.Error(err))
			continue
		}
		out = append(out, provider.EncodedImage{MimeType: result.MimeType, Data: result.Data})
	}
	return out
}
