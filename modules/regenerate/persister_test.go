package regenerate

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"webtoon-regen-server/modules/common/provider"
)

func persistInput(t *testing.T) PersistInput {
	t.Helper()
	return PersistInput{
		ImageBase64: base64.StdEncoding.EncodeToString(pngBytes(t, 4, 4)),
		MimeType:    "image/png",
		Source: SourceInfo{
			FileID:    "src",
			FileName:  "cut-01.png",
			FilePath:  "webtoon/ep1/cut-01.png",
			CutID:     strPtr("cut-1"),
			ProcessID: strPtr("proc-1"),
		},
		Request: normalizedRequest{
			GenerationRequest: GenerationRequest{Index: 3, StylePrompt: "watercolor", StyleKey: "wc"},
			Provider:          provider.Seedream,
		},
		CreatedBy: "user-1",
	}
}

func TestPersister_Stored(t *testing.T) {
	files, blobs := newFakeFiles(), newFakeBlobs()
	p := NewPersister(files, blobs, PersisterOptions{}, zap.NewNop())

	outcome := p.Persist(context.Background(), persistInput(t))

	stored, ok := outcome.(StoredResult)
	require.True(t, ok, "expected StoredResult, got %T", outcome)
	assert.Equal(t, "gen-1", stored.FileID)
	assert.True(t, strings.HasPrefix(stored.StoragePath, "webtoon/ep1/cut01-"))
	assert.True(t, strings.HasSuffix(stored.StoragePath, ".png"))
	assert.Equal(t, testPublicBase+stored.StoragePath, stored.URL)
	assert.Equal(t, "image/png", stored.MimeType)

	require.Len(t, files.inserted, 1)
	row := files.inserted[0]
	assert.True(t, row.IsTemp)
	assert.Equal(t, "src", row.SourceFileID)
	assert.Equal(t, "cut-1", *row.CutID)
	assert.Equal(t, "user-1", *row.CreatedBy)
	assert.Equal(t, "seedream", row.Metadata.Provider)
	assert.Equal(t, "wc", row.Metadata.StyleKey)
	assert.Equal(t, "watercolor", row.Metadata.Prompt)
}

func TestPersister_UploadRetriesWithFallbackName(t *testing.T) {
	files, blobs := newFakeFiles(), newFakeBlobs()
	blobs.uploadErr = func(_ string, attempt int) error {
		if attempt == 0 {
			return errors.New("invalid key")
		}
		return nil
	}
	p := NewPersister(files, blobs, PersisterOptions{}, zap.NewNop())

	outcome := p.Persist(context.Background(), persistInput(t))

	stored, ok := outcome.(StoredResult)
	require.True(t, ok, "expected StoredResult, got %T", outcome)
	require.Len(t, blobs.uploads, 2)
	assert.True(t, strings.HasPrefix(stored.StoragePath, "webtoon/ep1/regenerated-"))
}

func TestPersister_UploadFailsTwiceReturnsInline(t *testing.T) {
	files, blobs := newFakeFiles(), newFakeBlobs()
	blobs.uploadErr = func(string, int) error { return errors.New("storage down") }
	p := NewPersister(files, blobs, PersisterOptions{}, zap.NewNop())

	in := persistInput(t)
	outcome := p.Persist(context.Background(), in)

	inline, ok := outcome.(InlineResult)
	require.True(t, ok, "expected InlineResult, got %T", outcome)
	assert.Equal(t, in.ImageBase64, inline.Base64)
	assert.Equal(t, "image/png", inline.MimeType)
	assert.Error(t, inline.Reason)
	assert.Len(t, blobs.uploads, 2)
	assert.Empty(t, files.inserted)
}

func TestPersister_InsertFailureDeletesUpload(t *testing.T) {
	files, blobs := newFakeFiles(), newFakeBlobs()
	files.insertErr = errors.New("db unavailable")
	p := NewPersister(files, blobs, PersisterOptions{}, zap.NewNop())

	outcome := p.Persist(context.Background(), persistInput(t))

	_, ok := outcome.(InlineResult)
	require.True(t, ok, "expected InlineResult, got %T", outcome)
	require.Len(t, blobs.uploads, 1)
	assert.Equal(t, blobs.uploads, blobs.deleted)
}

func TestPersister_InvalidBase64ReturnsInline(t *testing.T) {
	files, blobs := newFakeFiles(), newFakeBlobs()
	p := NewPersister(files, blobs, PersisterOptions{}, zap.NewNop())

	in := persistInput(t)
	in.ImageBase64 = "%%%not-base64"

	_, ok := p.Persist(context.Background(), in).(InlineResult)
	assert.True(t, ok)
	assert.Empty(t, blobs.uploads)
}

func TestPersister_WebPConversion(t *testing.T) {
	files, blobs := newFakeFiles(), newFakeBlobs()
	p := NewPersister(files, blobs, PersisterOptions{UploadWebP: true, WebPQuality: 80}, zap.NewNop())

	outcome := p.Persist(context.Background(), persistInput(t))

	stored, ok := outcome.(StoredResult)
	require.True(t, ok, "expected StoredResult, got %T", outcome)
	assert.Equal(t, "image/webp", stored.MimeType)
	assert.True(t, strings.HasSuffix(stored.StoragePath, ".webp"))
	assert.Equal(t, "image/webp", files.inserted[0].MimeType)
}
