package imageadapter

import (
	"errors"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResizeCache_GetOrComputeOnce(t *testing.T) {
	cache := NewResizeCache(10, EvictFIFO, nil)
	var calls int32

	compute := func() (*ResizeResult, error) {
		atomic.AddInt32(&calls, 1)
		return &ResizeResult{Data: []byte{1}, MimeType: "image/jpeg", Resized: true}, nil
	}

	first, err := cache.GetOrCompute("ref:a", compute)
	require.NoError(t, err)
	second, err := cache.GetOrCompute("ref:a", compute)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, first, second)
	assert.Equal(t, CacheStats{Hits: 1, Misses: 1, Size: 1}, cache.Stats())
}

func TestResizeCache_ErrorIsNotCached(t *testing.T) {
	cache := NewResizeCache(10, EvictFIFO, nil)
	boom := errors.New("boom")

	_, err := cache.GetOrCompute("k", func() (*ResizeResult, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, cache.Len())
}

func TestResizeCache_Eviction(t *testing.T) {
	tests := []struct {
		policy  EvictionPolicy
		evicted string
		kept    string
	}{
		{EvictFIFO, "a", "b"},
		{EvictLRU, "b", "a"},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			cache := NewResizeCache(2, tt.policy, nil)
			cache.Put("a", ResizeResult{Data: []byte("a")})
			cache.Put("b", ResizeResult{Data: []byte("b")})

			// a 조회 (LRU 에서는 a 가 최신이 됨)
			_, ok := cache.Get("a")
			require.True(t, ok)

			cache.Put("c", ResizeResult{Data: []byte("c")})
			assert.Equal(t, 2, cache.Len())

			_, ok = cache.Get(tt.evicted)
			assert.False(t, ok)
			_, ok = cache.Get(tt.kept)
			assert.True(t, ok)
			_, ok = cache.Get("c")
			assert.True(t, ok)
		})
	}
}

func TestResizeCache_ConcurrentMissesComputeOnce(t *testing.T) {
	cache := NewResizeCache(10, EvictFIFO, nil)
	var calls int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.GetOrCompute("same", func() (*ResizeResult, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return &ResizeResult{Data: []byte("x")}, nil
			})
			assert.NoError(t, err)
		}()
	}

	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestResizeImageWithCache_SecondCallHits(t *testing.T) {
	cache := NewResizeCache(10, EvictFIFO, nil)
	data := solidPNG(t, 30, 30, color.White)

	first, err := ResizeImageWithCache(cache, "ref:", data, "image/png", Options{})
	require.NoError(t, err)
	second, err := ResizeImageWithCache(cache, "ref:", data, "image/png", Options{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), cache.Stats().Misses)
	assert.Equal(t, int64(1), cache.Stats().Hits)

	// prefix 가 다르면 별도 항목
	_, err = ResizeImageWithCache(cache, "char:", data, "image/png", Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())
}

func TestResizeImageWithCache_NilCache(t *testing.T) {
	data := solidPNG(t, 10, 10, color.White)
	result, err := ResizeImageWithCache(nil, "ref:", data, "image/png", Options{})
	require.NoError(t, err)
	assert.False(t, result.Resized)
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("ref:", []byte("same"))
	assert.Equal(t, a, CacheKey("ref:", []byte("same")))
	assert.NotEqual(t, a, CacheKey("char:", []byte("same")))
	assert.Len(t, a, len("ref:")+64)
}

func TestParseEvictionPolicy(t *testing.T) {
	assert.Equal(t, EvictLRU, ParseEvictionPolicy(" LRU "))
	assert.Equal(t, EvictFIFO, ParseEvictionPolicy("random"))
}
