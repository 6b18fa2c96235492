package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"webtoon-regen-server/modules/common/model"
)

// 테이블 이름
const (
	TableFiles           = "files"
	TableReferenceFiles  = "reference_files"
	TableCharacterSheets = "character_sheets"
)

// ErrNotFound - 조회 결과 없음
var ErrNotFound = errors.New("record not found")

type Client struct {
	supabase *supabase.Client
	logger   *zap.Logger
}

// NewClient - Database 클라이언트 생성
func NewClient(supabaseURL, serviceKey string, logger *zap.Logger) (*Client, error) {
	supabaseClient, err := supabase.NewClient(supabaseURL, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		supabase: supabaseClient,
		logger:   logger.Named("database"),
	}, nil
}

// FetchFile - files 테이블에서 파일 조회
func (c *Client) FetchFile(ctx context.Context, fileID string) (*model.File, error) {
	var files []model.File
	if err := c.selectByID(TableFiles, fileID, &files); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("file %s: %w", fileID, ErrNotFound)
	}

	c.logger.Debug("✅ File fetched", zap.String("fileId", fileID), zap.String("path", files[0].FilePath))
	return &files[0], nil
}

// FetchReferenceFile - reference_files 테이블에서 레퍼런스 조회
func (c *Client) FetchReferenceFile(ctx context.Context, fileID string) (*model.ReferenceFile, error) {
	var refs []model.ReferenceFile
	if err := c.selectByID(TableReferenceFiles, fileID, &refs); err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("reference file %s: %w", fileID, ErrNotFound)
	}
	return &refs[0], nil
}

// FetchCharacterSheet - character_sheets 테이블에서 시트 조회
func (c *Client) FetchCharacterSheet(ctx context.Context, sheetID string) (*model.CharacterSheet, error) {
	var sheets []model.CharacterSheet
	if err := c.selectByID(TableCharacterSheets, sheetID, &sheets); err != nil {
		return nil, err
	}
	if len(sheets) == 0 {
		return nil, fmt.Errorf("character sheet %s: %w", sheetID, ErrNotFound)
	}
	return &sheets[0], nil
}

// InsertGeneratedFile - 생성 이미지를 files 테이블에 임시 파일로 기록
func (c *Client) InsertGeneratedFile(ctx context.Context, file *model.GeneratedFile) (*model.InsertedFile, error) {
	c.logger.Info("💾 Creating generated file record", zap.String("path", file.FilePath))

	data, _, err := c.supabase.From(TableFiles).
		Insert(file, false, "", "representation", "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to insert generated file: %w", err)
	}

	var inserted []model.InsertedFile
	if err := json.Unmarshal(data, &inserted); err != nil {
		return nil, fmt.Errorf("failed to parse insert response: %w", err)
	}
	if len(inserted) == 0 || inserted[0].ID == "" {
		return nil, fmt.Errorf("no file record returned")
	}

	c.logger.Info("✅ Generated file record created", zap.String("fileId", inserted[0].ID))
	return &inserted[0], nil
}

func (c *Client) selectByID(table, id string, out interface{}) error {
	data, _, err := c.supabase.From(table).
		Select("*", "exact", false).
		Eq("id", id).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", table, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", table, err)
	}
	return nil
}
