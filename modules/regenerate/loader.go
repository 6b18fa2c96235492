package regenerate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"

	"go.uber.org/zap"

	"webtoon-regen-server/modules/common/database"
	"webtoon-regen-server/modules/common/model"
	"webtoon-regen-server/modules/common/settle"
	"webtoon-regen-server/modules/common/storage"
	"webtoon-regen-server/modules/common/utils"
	"webtoon-regen-server/modules/imageadapter"
)

// FileStore - 파일 메타데이터 조회/기록
type FileStore interface {
	FetchFile(ctx context.Context, fileID string) (*model.File, error)
	FetchReferenceFile(ctx context.Context, fileID string) (*model.ReferenceFile, error)
	FetchCharacterSheet(ctx context.Context, sheetID string) (*model.CharacterSheet, error)
	InsertGeneratedFile(ctx context.Context, file *model.GeneratedFile) (*model.InsertedFile, error)
}

// BlobStore - 이미지 저장소
type BlobStore interface {
	Download(ctx context.Context, url string) ([]byte, string, error)
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	Delete(ctx context.Context, path string) error
	PublicURL(path string) string
}

// SourceInfo - 원본 파일 정보 (생성 파일 저장 위치/연결에 사용)
type SourceInfo struct {
	FileID    string
	FileName  string
	FilePath  string
	CutID     *string
	ProcessID *string
}

// Folder - 원본과 같은 storage 폴더
func (s SourceInfo) Folder() string {
	dir := path.Dir(s.FilePath)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// LoadedImages - 배치 입력 이미지
type LoadedImages struct {
	Info       SourceInfo
	Source     imageadapter.ImageBlob
	References []imageadapter.ImageBlob
	Characters []imageadapter.ImageBlob
}

// Sources - 이미지 조정기 입력으로 변환
func (l *LoadedImages) Sources() *imageadapter.Sources {
	return &imageadapter.Sources{
		Source:     l.Source,
		References: l.References,
		Characters: l.Characters,
	}
}

type imageKind int

const (
	kindSource imageKind = iota
	kindReference
	kindCharacter
)

type loadedImage struct {
	blob imageadapter.ImageBlob
	info SourceInfo
}

// Loader - 원본/레퍼런스/캐릭터 이미지 동시 다운로드
type Loader struct {
	files  FileStore
	blobs  BlobStore
	logger *zap.Logger
}

// NewLoader - Loader 생성
func NewLoader(files FileStore, blobs BlobStore, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{files: files, blobs: blobs, logger: logger.Named("loader")}
}

// Load - 모든 이미지를 동시에 받고 부분 실패 규칙 적용
// 원본 실패는 항상 중단, 레퍼런스/캐릭터는 전부 실패했을 때만 중단
func (l *Loader) Load(ctx context.Context, sourceID string, referenceIDs, characterIDs []string) (*LoadedImages, error) {
	kinds := make([]imageKind, 0, 1+len(referenceIDs)+len(characterIDs))
	tasks := make([]settle.Task[loadedImage], 0, cap(kinds))

	kinds = append(kinds, kindSource)
	tasks = append(tasks, func(ctx context.Context) (loadedImage, error) { return l.loadSource(ctx, sourceID) })

	for _, id := range referenceIDs {
		kinds = append(kinds, kindReference)
		tasks = append(tasks, func(ctx context.Context) (loadedImage, error) { return l.loadReference(ctx, id) })
	}
	for _, id := range characterIDs {
		kinds = append(kinds, kindCharacter)
		tasks = append(tasks, func(ctx context.Context) (loadedImage, error) { return l.loadCharacter(ctx, id) })
	}

	results := settle.All(ctx, tasks)

	loaded := &LoadedImages{}
	var refErrs, charErrs []error

	for i, result := range results {
		switch kinds[i] {
		case kindSource:
			if !result.OK() {
				return nil, sourceUnavailable(result.Err)
			}
			loaded.Source = result.Value.blob
			loaded.Info = result.Value.info

		case kindReference:
			if !result.OK() {
				refErrs = append(refErrs, result.Err)
				continue
			}
			loaded.References = append(loaded.References, result.Value.blob)

		case kindCharacter:
			if !result.OK() {
				charErrs = append(charErrs, result.Err)
				continue
			}
			loaded.Characters = append(loaded.Characters, result.Value.blob)
		}
	}

	if len(referenceIDs) > 0 && len(loaded.References) == 0 {
		return nil, &BatchError{Kind: KindReferencesUnavailable, Status: http.StatusBadRequest, Err: errors.Join(refErrs...)}
	}
	if len(characterIDs) > 0 && len(loaded.Characters) == 0 {
		return nil, &BatchError{Kind: KindCharacterReferencesUnavailable, Status: http.StatusBadRequest, Err: errors.Join(charErrs...)}
	}

	if len(refErrs) > 0 {
		l.logger.Warn("⚠️  Some reference images failed to load, continuing with the rest",
			zap.Int("loaded", len(loaded.References)),
			zap.Int("failed", len(refErrs)),
			zap.Error(errors.Join(refErrs...)))
	}
	if len(charErrs) > 0 {
		l.logger.Warn("⚠️  Some character images failed to load, continuing with the rest",
			zap.Int("loaded", len(loaded.Characters)),
			zap.Int("failed", len(charErrs)),
			zap.Error(errors.Join(charErrs...)))
	}

	l.logger.Info("📥 Images loaded",
		zap.String("sourceId", sourceID),
		zap.Int("width", loaded.Source.Width),
		zap.Int("height", loaded.Source.Height),
		zap.Int("references", len(loaded.References)),
		zap.Int("characters", len(loaded.Characters)))
	return loaded, nil
}

func (l *Loader) loadSource(ctx context.Context, sourceID string) (loadedImage, error) {
	file, err := l.files.FetchFile(ctx, sourceID)
	if err != nil {
		return loadedImage{}, err
	}

	blob, err := l.download(ctx, l.resolveURL(file.FileURL, file.FilePath), model.StringValue(file.MimeType))
	if err != nil {
		return loadedImage{}, err
	}

	width, height, _, err := utils.DecodeDimensions(blob.Data)
	if err != nil {
		return loadedImage{}, fmt.Errorf("unsupported source image: %w", err)
	}
	blob.Width, blob.Height = width, height

	return loadedImage{
		blob: blob,
		info: SourceInfo{
			FileID:    file.ID,
			FileName:  file.FileName,
			FilePath:  file.FilePath,
			CutID:     file.CutID,
			ProcessID: file.ProcessID,
		},
	}, nil
}

// loadReference - files 먼저, 실패하면 reference_files
func (l *Loader) loadReference(ctx context.Context, refID string) (loadedImage, error) {
	var url, mimeType string

	if file, err := l.files.FetchFile(ctx, refID); err == nil {
		url, mimeType = l.resolveURL(file.FileURL, file.FilePath), model.StringValue(file.MimeType)
	} else {
		ref, refErr := l.files.FetchReferenceFile(ctx, refID)
		if refErr != nil {
			return loadedImage{}, fmt.Errorf("reference %s: %w", refID, errors.Join(err, refErr))
		}
		url, mimeType = l.resolveURL(ref.FileURL, ref.FilePath), model.StringValue(ref.MimeType)
	}

	blob, err := l.download(ctx, url, mimeType)
	if err != nil {
		return loadedImage{}, fmt.Errorf("reference %s: %w", refID, err)
	}
	return loadedImage{blob: blob}, nil
}

func (l *Loader) loadCharacter(ctx context.Context, sheetID string) (loadedImage, error) {
	sheet, err := l.files.FetchCharacterSheet(ctx, sheetID)
	if err != nil {
		return loadedImage{}, fmt.Errorf("character sheet %s: %w", sheetID, err)
	}

	blob, err := l.download(ctx, l.resolveURL(sheet.FileURL, sheet.FilePath), "")
	if err != nil {
		return loadedImage{}, fmt.Errorf("character sheet %s: %w", sheetID, err)
	}
	return loadedImage{blob: blob}, nil
}

func (l *Loader) download(ctx context.Context, url, mimeHint string) (imageadapter.ImageBlob, error) {
	data, contentType, err := l.blobs.Download(ctx, url)
	if err != nil {
		return imageadapter.ImageBlob{}, err
	}
	if mimeHint == "" {
		mimeHint = contentType
	}
	return imageadapter.ImageBlob{Data: data, MimeType: utils.DetectMimeType(data, mimeHint)}, nil
}

// resolveURL - file_url 이 있으면 그대로, 없으면 공개 URL
func (l *Loader) resolveURL(fileURL *string, filePath string) string {
	if u := model.StringValue(fileURL); u != "" {
		return u
	}
	return l.blobs.PublicURL(filePath)
}

// sourceUnavailable - 원본 행/객체가 없으면 404, 그 외 400
func sourceUnavailable(err error) error {
	status := http.StatusBadRequest
	if errors.Is(err, database.ErrNotFound) || errors.Is(err, storage.ErrNotFound) {
		status = http.StatusNotFound
	}
	return &BatchError{Kind: KindSourceUnavailable, Status: status, Err: err}
}
