package model

import "time"

// File - files 테이블 구조 (원본 컷 이미지, 생성 이미지)
type File struct {
	ID        string  `json:"id"`
	CutID     *string `json:"cut_id"`
	ProcessID *string `json:"process_id"`
	FileName  string  `json:"file_name"`
	FilePath  string  `json:"file_path"`
	FileURL   *string `json:"file_url"`
	FileType  string  `json:"file_type"`
	MimeType  *string `json:"mime_type"`
	Width     *int    `json:"width"`
	Height    *int    `json:"height"`
}

// ReferenceFile - reference_files 테이블 구조 (레퍼런스 id 조회 fallback)
type ReferenceFile struct {
	ID        string  `json:"id"`
	WebtoonID *string `json:"webtoon_id"`
	FileName  string  `json:"file_name"`
	FilePath  string  `json:"file_path"`
	FileURL   *string `json:"file_url"`
	MimeType  *string `json:"mime_type"`
}

// CharacterSheet - character_sheets 테이블 구조
type CharacterSheet struct {
	ID          string  `json:"id"`
	CharacterID *string `json:"character_id"`
	FilePath    string  `json:"file_path"`
	FileURL     *string `json:"file_url"`
}

// GeneratedFileMetadata - 생성 파일 metadata JSONB
type GeneratedFileMetadata struct {
	StyleID   string `json:"styleId,omitempty"`
	StyleKey  string `json:"styleKey,omitempty"`
	StyleName string `json:"styleName,omitempty"`
	Provider  string `json:"provider"`
	Prompt    string `json:"prompt"`
}

// GeneratedFile - files 테이블 insert 데이터 (임시 파일, 원본 연결)
type GeneratedFile struct {
	CutID        *string               `json:"cut_id"`
	ProcessID    *string               `json:"process_id"`
	FileName     string                `json:"file_name"`
	FilePath     string                `json:"file_path"`
	FileURL      string                `json:"file_url"`
	FileSize     int64                 `json:"file_size"`
	FileType     string                `json:"file_type"`
	MimeType     string                `json:"mime_type"`
	IsTemp       bool                  `json:"is_temp"`
	SourceFileID string                `json:"source_file_id"`
	CreatedBy    *string               `json:"created_by,omitempty"`
	Description  string                `json:"description,omitempty"`
	Metadata     GeneratedFileMetadata `json:"metadata"`
}

// InsertedFile - insert 후 반환되는 행
type InsertedFile struct {
	ID        string    `json:"id"`
	FilePath  string    `json:"file_path"`
	CreatedAt time.Time `json:"created_at"`
}

// FileTypeImage - files.file_type 이미지 값
const FileTypeImage = "image"

// StringValue - nil 포인터면 빈 문자열
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
