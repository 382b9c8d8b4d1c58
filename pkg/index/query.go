package index

import (
	"context"
	"sort"
	"time"

	"github.com/hyperjump/vectra/pkg/metadata"
	"github.com/hyperjump/vectra/pkg/vector"
	"go.uber.org/zap"
)

// QueryItems returns up to topK committed items ranked by cosine similarity to query, highest
// first. Only items whose inline metadata matches filter (nil matches all) are scored. Items with
// equal scores keep their storage order. Results carry the complete metadata, read from side
// files where the index externalizes it.
func (li *LocalIndex) QueryItems(ctx context.Context, query []float64, topK int, filter *metadata.Filter) ([]*QueryResult, error) {
	start := time.Now()
	results, err := li.queryItems(ctx, query, topK, filter)
	li.observer.ObserveOperation("query", err, time.Since(start))
	return results, err
}

func (li *LocalIndex) queryItems(ctx context.Context, query []float64, topK int, filter *metadata.Filter) ([]*QueryResult, error) {
	data, dim, err := li.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []*QueryResult{}, nil
	}
	if err := validateVector(query, dim); err != nil {
		return nil, err
	}

	candidates := make([]*Item, 0, len(data.Items))
	for _, it := range data.Items {
		if metadata.Evaluate(it.Metadata, filter) {
			candidates = append(candidates, it)
		}
	}

	queryNorm := vector.Norm(query)
	scored := make([]*QueryResult, len(candidates))
	for i, it := range candidates {
		scored[i] = &QueryResult{
			Item:  it,
			Score: vector.NormalizedCosineSimilarity(query, queryNorm, it.Vector, it.Norm),
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}

	for _, r := range scored {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.Item = r.Item.Clone()
		if r.Item.MetadataFile == "" {
			continue
		}
		md, err := li.readSideFile(r.Item.MetadataFile)
		if err != nil {
			return nil, err
		}
		r.Item.Metadata = md
	}

	li.logger.Debug("query",
		zap.Int("items", len(data.Items)),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(scored)))
	return scored, nil
}
