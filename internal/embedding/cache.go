package embedding

import (
	"container/list"
	"context"
	"sync"

	"github.com/hyperjump/vectra/internal/metrics"
)

// EmbeddingCache is an LRU cache for embeddings keyed by text.
type EmbeddingCache struct {
	capacity int
	cache    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	key   string
	value []float64
}

// NewEmbeddingCache creates a new cache with the given capacity.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	return &EmbeddingCache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached embedding for key if present.
func (c *EmbeddingCache) Get(key string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).value, true
	}
	return nil, false
}

// Set stores the embedding for key, evicting the oldest entry if at capacity.
func (c *EmbeddingCache) Set(key string, value []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}

	entry := &cacheEntry{key: key, value: value}
	elem := c.lru.PushFront(entry)
	c.cache[key] = elem

	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len returns the number of cached embeddings.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// CachedModel serves repeated inputs from an EmbeddingCache and sends only misses to the
// wrapped model.
type CachedModel struct {
	model   Model
	cache   *EmbeddingCache
	metrics *metrics.Embedding
}

// NewCachedModel wraps m with an LRU cache of the given capacity. mt may be nil.
func NewCachedModel(m Model, capacity int, mt *metrics.Embedding) *CachedModel {
	return &CachedModel{model: m, cache: NewEmbeddingCache(capacity), metrics: mt}
}

// MaxTokens implements Model.
func (c *CachedModel) MaxTokens() int { return c.model.MaxTokens() }

// CreateEmbeddings implements Model. Non-success responses from the wrapped model are returned
// unchanged and nothing is cached.
func (c *CachedModel) CreateEmbeddings(ctx context.Context, inputs []string) (*Response, error) {
	output := make([][]float64, len(inputs))
	var missIdx []int
	var missText []string
	for i, text := range inputs {
		if v, ok := c.cache.Get(text); ok {
			output[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missText = append(missText, text)
	}
	if c.metrics != nil {
		c.metrics.ObserveCache(len(inputs)-len(missIdx), len(missIdx))
	}
	if len(missText) == 0 {
		return &Response{Status: StatusSuccess, Output: output}, nil
	}

	resp, err := c.model.CreateEmbeddings(ctx, missText)
	if err != nil || resp.Status != StatusSuccess {
		return resp, err
	}
	if len(resp.Output) != len(missText) {
		return &Response{Status: StatusError, Message: "embeddings count does not match inputs"}, nil
	}
	for j, i := range missIdx {
		output[i] = resp.Output[j]
		c.cache.Set(missText[j], resp.Output[j])
	}
	return &Response{Status: StatusSuccess, Output: output}, nil
}
