package regenerate

import (
	"errors"
	"fmt"

	"webtoon-regen-server/modules/common/provider"
)

// CharacterSheetRef - 캐릭터 시트 참조
type CharacterSheetRef struct {
	SheetID string `json:"sheetId"`
}

// GenerationRequest - 스타일 프롬프트 1건 (index 가 유일한 식별자)
type GenerationRequest struct {
	Index       int    `json:"index"`
	StylePrompt string `json:"stylePrompt"`
	APIProvider string `json:"apiProvider,omitempty"`
	StyleID     string `json:"styleId,omitempty"`
	StyleKey    string `json:"styleKey,omitempty"`
	StyleName   string `json:"styleName,omitempty"`
}

// BatchRequest - POST /api/regenerate/batch 요청
type BatchRequest struct {
	// 선택. 클라이언트가 미리 정한 UUID 로 진행 상황을 요청 중에 구독할 수 있음
	BatchID string `json:"batchId,omitempty"`
	FileID  string `json:"fileId"`
	// 하위 호환 (단일 레퍼런스)
	ReferenceFileID  string              `json:"referenceFileId,omitempty"`
	ReferenceFileIDs []string            `json:"referenceFileIds,omitempty"`
	CharacterSheets  []CharacterSheetRef `json:"characterSheets,omitempty"`
	CreatedBy        string              `json:"createdBy,omitempty"`
	Requests         []GenerationRequest `json:"requests"`
}

// BatchResponse - 배치 응답
type BatchResponse struct {
	BatchID string           `json:"batchId"`
	Images  []ProcessedImage `json:"images"`
}

// ProcessedImage - 요청 1건의 결과. 저장 성공, inline, 에러 중 하나
type ProcessedImage struct {
	Index       int           `json:"index"`
	Provider    provider.Name `json:"provider"`
	StylePrompt string        `json:"stylePrompt"`
	StyleID     string        `json:"styleId,omitempty"`
	StyleKey    string        `json:"styleKey,omitempty"`
	StyleName   string        `json:"styleName,omitempty"`

	// 저장 성공
	FileID      string `json:"fileId,omitempty"`
	StoragePath string `json:"storagePath,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`

	// 저장 실패 시 inline
	ImageBase64 string `json:"imageBase64,omitempty"`

	MimeType string `json:"mimeType,omitempty"`

	// 실패
	ErrorCode string `json:"errorCode,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Failed - 에러 결과 여부
func (p ProcessedImage) Failed() bool {
	return p.ErrorCode != ""
}

// BatchResult - 배치 결과 (len == len(requests), index 중복/누락 없음)
type BatchResult struct {
	BatchID string
	Images  []ProcessedImage
}

// normalizedRequest - provider 가 확정된 요청
type normalizedRequest struct {
	GenerationRequest
	Provider provider.Name
}

func (r normalizedRequest) baseImage() ProcessedImage {
	return ProcessedImage{
		Index:       r.Index,
		Provider:    r.Provider,
		StylePrompt: r.StylePrompt,
		StyleID:     r.StyleID,
		StyleKey:    r.StyleKey,
		StyleName:   r.StyleName,
	}
}

// Outcome - 저장 결과 (StoredResult 또는 InlineResult)
type Outcome interface {
	outcome()
}

// StoredResult - storage + DB 저장 성공
type StoredResult struct {
	FileID      string
	StoragePath string
	URL         string
	MimeType    string
}

// InlineResult - 저장 실패로 생성 이미지를 그대로 반환
type InlineResult struct {
	Base64   string
	MimeType string
	Reason   error
}

func (StoredResult) outcome() {}
func (InlineResult) outcome() {}

// ErrValidation - 요청 검증 실패 (400)
var ErrValidation = errors.New("invalid batch request")

// BatchErrorKind - 배치 전체를 중단시키는 에러 종류
type BatchErrorKind string

const (
	KindSourceUnavailable              BatchErrorKind = "SourceUnavailable"
	KindReferencesUnavailable          BatchErrorKind = "ReferencesUnavailable"
	KindCharacterReferencesUnavailable BatchErrorKind = "CharacterReferencesUnavailable"
)

// BatchError - 배치 중단 에러 (Status 는 HTTP 상태)
type BatchError struct {
	Kind   BatchErrorKind
	Status int
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
