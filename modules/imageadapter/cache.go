package imageadapter

import (
	"container/list"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"webtoon-regen-server/modules/common/metrics"
)

// EvictionPolicy - 캐시 가득 찼을 때 제거 순서
type EvictionPolicy string

const (
	// EvictFIFO - 가장 먼저 들어온 항목 제거
	EvictFIFO EvictionPolicy = "fifo"
	// EvictLRU - 가장 오래 조회되지 않은 항목 제거
	EvictLRU EvictionPolicy = "lru"
)

// DefaultCacheCapacity - 기본 캐시 크기
const DefaultCacheCapacity = 100

// ParseEvictionPolicy - 알 수 없는 값은 FIFO
func ParseEvictionPolicy(s string) EvictionPolicy {
	if EvictionPolicy(strings.ToLower(strings.TrimSpace(s))) == EvictLRU {
		return EvictLRU
	}
	return EvictFIFO
}

// CacheStats - 캐시 조회 통계
type CacheStats struct {
	Hits   int64
	Misses int64
	Size   int
}

type cacheItem struct {
	key    string
	result ResizeResult
}

// ResizeCache - 리사이즈 결과 캐시 (프로세스 수명, 성능 용도만)
type ResizeCache struct {
	mu       sync.Mutex
	capacity int
	policy   EvictionPolicy
	order    *list.List
	items    map[string]*list.Element
	hits     int64
	misses   int64

	group   singleflight.Group
	metrics *metrics.Collector
}

// NewResizeCache - capacity 가 0 이하면 기본값 100
func NewResizeCache(capacity int, policy EvictionPolicy, m *metrics.Collector) *ResizeCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if policy != EvictLRU {
		policy = EvictFIFO
	}
	return &ResizeCache{
		capacity: capacity,
		policy:   policy,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
		metrics:  m,
	}
}

// CacheKey - prefix + sha256(base64(data))
func CacheKey(prefix string, data []byte) string {
	sum := sha256.Sum256([]byte(base64.StdEncoding.EncodeToString(data)))
	return prefix + hex.EncodeToString(sum[:])
}

// Get - 캐시 조회 (통계에 반영)
func (c *ResizeCache) Get(key string) (ResizeResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result, ok := c.lookupLocked(key)
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.metrics.ObserveCache(ok)
	return result, ok
}

// Put - 항목 저장, 가득 차면 정책에 따라 하나 제거
func (c *ResizeCache) Put(key string, result ResizeResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*cacheItem).result = result
		if c.policy == EvictLRU {
			c.order.MoveToBack(elem)
		}
		return
	}

	for c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheItem).key)
	}

	c.items[key] = c.order.PushBack(&cacheItem{key: key, result: result})
}

// GetOrCompute - 캐시 hit 이면 반환, miss 면 compute 실행 후 저장
// 같은 key 로 동시에 miss 가 나면 compute 는 한 번만 실행
func (c *ResizeCache) GetOrCompute(key string, compute func() (*ResizeResult, error)) (*ResizeResult, error) {
	if result, ok := c.Get(key); ok {
		return &result, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.mu.Lock()
		cached, ok := c.lookupLocked(key)
		c.mu.Unlock()
		if ok {
			return &cached, nil
		}

		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Put(key, *result)
		return result, nil
	})
	if err != nil {
		return nil, err
	}

	result := *v.(*ResizeResult)
	return &result, nil
}

// Stats - hit/miss/크기
func (c *ResizeCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Size: c.order.Len()}
}

// Len - 현재 항목 수
func (c *ResizeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *ResizeCache) lookupLocked(key string) (ResizeResult, bool) {
	elem, ok := c.items[key]
	if !ok {
		return ResizeResult{}, false
	}
	if c.policy == EvictLRU {
		c.order.MoveToBack(elem)
	}
	return elem.Value.(*cacheItem).result, true
}

// ResizeImageWithCache - 레퍼런스/캐릭터 이미지 전용 캐시 리사이즈
// cache 가 nil 이면 캐시 없이 계산
func ResizeImageWithCache(cache *ResizeCache, prefix string, data []byte, mimeType string, opts Options) (*ResizeResult, error) {
	compute := func() (*ResizeResult, error) {
		result, err := ResizeImageIfNeeded(data, mimeType, opts)
		if err != nil {
			return nil, fmt.Errorf("resize %s image: %w", strings.TrimSuffix(prefix, ":"), err)
		}
		return result, nil
	}

	if cache == nil {
		return compute()
	}
	return cache.GetOrCompute(CacheKey(prefix, data), compute)
}
