package regenerate

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"webtoon-regen-server/modules/common/fallback"
	"webtoon-regen-server/modules/common/model"
	"webtoon-regen-server/modules/common/utils"
	"webtoon-regen-server/modules/common/utils/webpconv"
)

// PersistInput - 저장할 생성 결과
type PersistInput struct {
	ImageBase64 string
	MimeType    string
	Source      SourceInfo
	Request     normalizedRequest
	CreatedBy   string
}

// PersisterOptions - 업로드 전 WebP 변환 옵션
type PersisterOptions struct {
	UploadWebP  bool
	WebPQuality float32
}

// Persister - storage 업로드 + files 기록, 실패 시 inline 으로 degrade
type Persister struct {
	files  FileStore
	blobs  BlobStore
	opts   PersisterOptions
	logger *zap.Logger
}

// NewPersister - Persister 생성
func NewPersister(files FileStore, blobs BlobStore, opts PersisterOptions, logger *zap.Logger) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{files: files, blobs: blobs, opts: opts, logger: logger.Named("persister")}
}

// Persist - 업로드 실패 시 fallback 이름으로 1회 재시도, DB 기록 실패 시 업로드 파일 삭제 후 inline
func (p *Persister) Persist(ctx context.Context, in PersistInput) Outcome {
	inline := func(reason error) Outcome {
		return InlineResult{Base64: in.ImageBase64, MimeType: in.MimeType, Reason: reason}
	}

	data, err := base64.StdEncoding.DecodeString(in.ImageBase64)
	if err != nil {
		p.logger.Warn("⚠️  Generated image is not valid base64, returning inline", zap.Int("index", in.Request.Index), zap.Error(err))
		return inline(fmt.Errorf("decode generated image: %w", err))
	}

	mimeType := in.MimeType
	if p.opts.UploadWebP && mimeType != "image/webp" {
		if webpData, err := webpconv.ConvertToWebP(data, p.opts.WebPQuality); err != nil {
			p.logger.Warn("⚠️  WebP conversion failed, uploading original", zap.Int("index", in.Request.Index), zap.Error(err))
		} else {
			p.logger.Debug("🔄 Converted to WebP",
				zap.Int("index", in.Request.Index),
				zap.Int("originalBytes", len(data)),
				zap.Int("webpBytes", len(webpData)))
			data, mimeType = webpData, "image/webp"
		}
	}
	ext := utils.ExtensionFromMime(mimeType)

	// 1. 업로드 (실패 시 단순한 이름으로 1회 재시도)
	fileName := fallback.GeneratedFileName(in.Source.FileName, ext)
	storagePath := joinPath(in.Source.Folder(), fileName)

	if err := p.blobs.Upload(ctx, storagePath, data, mimeType); err != nil {
		p.logger.Warn("⚠️  Upload failed, retrying with fallback name",
			zap.Int("index", in.Request.Index),
			zap.String("path", storagePath),
			zap.Error(err))

		fileName = fallback.RegeneratedFileName(ext)
		storagePath = joinPath(in.Source.Folder(), fileName)

		if retryErr := p.blobs.Upload(ctx, storagePath, data, mimeType); retryErr != nil {
			p.logger.Error("❌ Upload failed twice, returning inline image",
				zap.Int("index", in.Request.Index),
				zap.Error(retryErr))
			return inline(errors.Join(err, retryErr))
		}
	}

	publicURL := p.blobs.PublicURL(storagePath)

	// 2. files 기록 (실패 시 업로드 파일 정리)
	record := &model.GeneratedFile{
		CutID:        in.Source.CutID,
		ProcessID:    in.Source.ProcessID,
		FileName:     fileName,
		FilePath:     storagePath,
		FileURL:      publicURL,
		FileSize:     int64(len(data)),
		FileType:     model.FileTypeImage,
		MimeType:     mimeType,
		IsTemp:       true,
		SourceFileID: in.Source.FileID,
		Description:  fmt.Sprintf("Regenerated from %s (%s)", in.Source.FileName, in.Request.Provider),
		Metadata: model.GeneratedFileMetadata{
			StyleID:   in.Request.StyleID,
			StyleKey:  in.Request.StyleKey,
			StyleName: in.Request.StyleName,
			Provider:  string(in.Request.Provider),
			Prompt:    in.Request.StylePrompt,
		},
	}
	if in.CreatedBy != "" {
		createdBy := in.CreatedBy
		record.CreatedBy = &createdBy
	}

	inserted, err := p.files.InsertGeneratedFile(ctx, record)
	if err != nil {
		p.logger.Error("❌ Failed to record generated file, returning inline image",
			zap.Int("index", in.Request.Index),
			zap.String("path", storagePath),
			zap.Error(err))

		if delErr := p.blobs.Delete(ctx, storagePath); delErr != nil {
			p.logger.Warn("⚠️  Failed to delete orphaned upload", zap.String("path", storagePath), zap.Error(delErr))
		}
		return inline(fmt.Errorf("record generated file: %w", err))
	}

	p.logger.Info("✅ Generated image stored",
		zap.Int("index", in.Request.Index),
		zap.String("fileId", inserted.ID),
		zap.String("path", storagePath))

	return StoredResult{
		FileID:      inserted.ID,
		StoragePath: storagePath,
		URL:         publicURL,
		MimeType:    mimeType,
	}
}

func joinPath(folder, name string) string {
	if folder == "" {
		return name
	}
	return folder + "/" + name
}
