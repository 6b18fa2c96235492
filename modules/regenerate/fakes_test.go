package regenerate

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	pathpkg "path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"webtoon-regen-server/modules/common/database"
	"webtoon-regen-server/modules/common/model"
	"webtoon-regen-server/modules/common/provider"
	"webtoon-regen-server/modules/common/storage"
)

const testPublicBase = "https://cdn.test/public/"

func strPtr(s string) *string { return &s }

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 5), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fakeFiles - FileStore 테스트 구현
type fakeFiles struct {
	mu         sync.Mutex
	files      map[string]*model.File
	references map[string]*model.ReferenceFile
	sheets     map[string]*model.CharacterSheet
	inserted   []*model.GeneratedFile
	insertErr  error
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{
		files:      map[string]*model.File{},
		references: map[string]*model.ReferenceFile{},
		sheets:     map[string]*model.CharacterSheet{},
	}
}

func (f *fakeFiles) FetchFile(_ context.Context, id string) (*model.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file, ok := f.files[id]; ok {
		return file, nil
	}
	return nil, fmt.Errorf("files %s: %w", id, database.ErrNotFound)
}

func (f *fakeFiles) FetchReferenceFile(_ context.Context, id string) (*model.ReferenceFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ref, ok := f.references[id]; ok {
		return ref, nil
	}
	return nil, fmt.Errorf("reference_files %s: %w", id, database.ErrNotFound)
}

func (f *fakeFiles) FetchCharacterSheet(_ context.Context, id string) (*model.CharacterSheet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sheet, ok := f.sheets[id]; ok {
		return sheet, nil
	}
	return nil, fmt.Errorf("character_sheets %s: %w", id, database.ErrNotFound)
}

func (f *fakeFiles) InsertGeneratedFile(_ context.Context, file *model.GeneratedFile) (*model.InsertedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.inserted = append(f.inserted, file)
	return &model.InsertedFile{ID: fmt.Sprintf("gen-%d", len(f.inserted)), FilePath: file.FilePath}, nil
}

func (f *fakeFiles) addFile(id, p string) {
	f.files[id] = &model.File{ID: id, FileName: pathpkg.Base(p), FilePath: p, CutID: strPtr("cut-1"), ProcessID: strPtr("proc-1")}
}

// fakeBlobs - BlobStore 테스트 구현 (public URL → 데이터)
type fakeBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploads   []string
	deleted   []string
	uploadErr func(path string, attempt int) error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}}
}

func (b *fakeBlobs) PublicURL(path string) string {
	return testPublicBase + path
}

func (b *fakeBlobs) Download(_ context.Context, url string) ([]byte, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[url]
	if !ok {
		return nil, "", fmt.Errorf("download %s: %w", url, storage.ErrNotFound)
	}
	return data, "", nil
}

func (b *fakeBlobs) Upload(_ context.Context, path string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	attempt := len(b.uploads)
	b.uploads = append(b.uploads, path)
	if b.uploadErr != nil {
		if err := b.uploadErr(path, attempt); err != nil {
			return err
		}
	}
	b.objects[testPublicBase+path] = data
	return nil
}

func (b *fakeBlobs) Delete(_ context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, path)
	delete(b.objects, testPublicBase+path)
	return nil
}

func (b *fakeBlobs) put(path string, data []byte) {
	b.objects[testPublicBase+path] = data
}

// fakeProvider - 동시 실행 수를 기록하는 provider
type fakeProvider struct {
	name     provider.Name
	delay    time.Duration
	generate func(in *provider.Input) (*provider.Output, error)

	mu          sync.Mutex
	inputs      []*provider.Input
	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (p *fakeProvider) Name() provider.Name { return p.name }

func (p *fakeProvider) Generate(_ context.Context, in *provider.Input) (*provider.Output, error) {
	n := p.inflight.Add(1)
	defer p.inflight.Add(-1)
	for {
		cur := p.maxInflight.Load()
		if n <= cur || p.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}

	p.mu.Lock()
	p.inputs = append(p.inputs, in)
	p.mu.Unlock()

	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.generate != nil {
		return p.generate(in)
	}
	return &provider.Output{Base64: base64.StdEncoding.EncodeToString([]byte("generated:" + in.Prompt)), MimeType: "image/png"}, nil
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inputs)
}
