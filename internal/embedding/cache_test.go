package embedding

import (
	"context"
	"testing"

	"github.com/hyperjump/vectra/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float64{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float64{4, 5})
	c.Set("c", []float64{6}) // evicts a
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("expected b to remain")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to be present")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d", c.Len())
	}
}

func TestCachedModel_OnlyMissesReachModel(t *testing.T) {
	mock := NewMock(4)
	mt := metrics.NewEmbedding("test")
	cached := NewCachedModel(mock, 10, mt)
	ctx := context.Background()

	first, err := cached.CreateEmbeddings(ctx, []string{"a", "b"})
	if err != nil || first.Status != StatusSuccess {
		t.Fatalf("first call: %v %+v", err, first)
	}
	second, err := cached.CreateEmbeddings(ctx, []string{"b", "a"})
	if err != nil || second.Status != StatusSuccess {
		t.Fatalf("second call: %v %+v", err, second)
	}
	if mock.Calls() != 1 {
		t.Errorf("model calls = %d, want 1", mock.Calls())
	}
	if second.Output[0][0] != first.Output[1][0] || second.Output[1][0] != first.Output[0][0] {
		t.Error("cached output not in input order")
	}

	if _, err := cached.CreateEmbeddings(ctx, []string{"a", "c"}); err != nil {
		t.Fatal(err)
	}
	if mock.Calls() != 2 {
		t.Errorf("model calls = %d, want 2", mock.Calls())
	}
	if got := testutil.ToFloat64(mt.CacheTotal.WithLabelValues("hit")); got != 3 {
		t.Errorf("cache hits = %v, want 3", got)
	}
	if got := testutil.ToFloat64(mt.CacheTotal.WithLabelValues("miss")); got != 3 {
		t.Errorf("cache misses = %v, want 3", got)
	}
}

type statusModel struct{ status Status }

func (m statusModel) MaxTokens() int { return 10 }

func (m statusModel) CreateEmbeddings(context.Context, []string) (*Response, error) {
	return &Response{Status: m.status, Message: "nope"}, nil
}

func TestCachedModel_DoesNotCacheFailures(t *testing.T) {
	cached := NewCachedModel(statusModel{status: StatusRateLimited}, 10, nil)
	resp, err := cached.CreateEmbeddings(context.Background(), []string{"a"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != StatusRateLimited {
		t.Errorf("status = %v", resp.Status)
	}
	if cached.cache.Len() != 0 {
		t.Error("failed responses must not be cached")
	}
	if cached.MaxTokens() != 10 {
		t.Errorf("MaxTokens() = %d", cached.MaxTokens())
	}
}
