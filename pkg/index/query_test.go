package index

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/vectra/pkg/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryItems_Ranking(t *testing.T) {
	ctx := context.Background()
	li := newTestIndex(t, CreateConfig{})
	require.NoError(t, li.BeginUpdate(ctx))
	for _, in := range []ItemInput{
		{ID: "A", Vector: []float64{1, 0}},
		{ID: "B", Vector: []float64{0, 1}},
		{ID: "C", Vector: []float64{0.7, 0.7}},
	} {
		_, err := li.InsertItem(ctx, in)
		require.NoError(t, err)
	}
	require.NoError(t, li.EndUpdate(ctx))

	results, err := li.QueryItems(ctx, []float64{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].Item.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "C", results[1].Item.ID)
	assert.InDelta(t, math.Sqrt2/2, results[1].Score, 1e-9)
}

func TestQueryItems_TopK(t *testing.T) {
	ctx := context.Background()
	li := newTestIndex(t, CreateConfig{})
	_, err := li.InsertItem(ctx, ItemInput{ID: "a", Vector: []float64{1, 0}})
	require.NoError(t, err)

	for _, k := range []int{0, -1} {
		results, err := li.QueryItems(ctx, []float64{1, 0}, k, nil)
		require.NoError(t, err)
		assert.NotNil(t, results)
		assert.Empty(t, results)
	}

	results, err := li.QueryItems(ctx, []float64{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestQueryItems_TiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	li := newTestIndex(t, CreateConfig{})
	require.NoError(t, li.BeginUpdate(ctx))
	for _, id := range []string{"first", "second", "third"} {
		_, err := li.InsertItem(ctx, ItemInput{ID: id, Vector: []float64{2, 2}})
		require.NoError(t, err)
	}
	require.NoError(t, li.EndUpdate(ctx))

	results, err := li.QueryItems(ctx, []float64{1, 1}, 3, nil)
	require.NoError(t, err)
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Item.ID
	}
	assert.Equal(t, []string{"first", "second", "third"}, ids)
}

func TestQueryItems_FilterNarrowing(t *testing.T) {
	ctx := context.Background()
	li := newTestIndex(t, CreateConfig{MetadataConfig: MetadataConfig{Indexed: []string{"category"}}})
	_, err := li.InsertItem(ctx, ItemInput{
		ID:       "secret",
		Vector:   []float64{1, 0},
		Metadata: metadata.Metadata{"category": metadata.String("x"), "note": metadata.String("secret")},
	})
	require.NoError(t, err)
	_, err = li.InsertItem(ctx, ItemInput{
		ID:       "other",
		Vector:   []float64{1, 0.1},
		Metadata: metadata.Metadata{"category": metadata.String("y")},
	})
	require.NoError(t, err)

	results, err := li.QueryItems(ctx, []float64{1, 0}, 10, metadata.Eq("category", metadata.String("x")))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "secret", results[0].Item.ID)
	assert.Equal(t, metadata.Metadata{
		"category": metadata.String("x"),
		"note":     metadata.String("secret"),
	}, results[0].Item.Metadata)

	results, err = li.QueryItems(ctx, []float64{1, 0}, 10, metadata.Eq("note", metadata.String("secret")))
	require.NoError(t, err)
	assert.Empty(t, results)

	// the filtered-out item must not displace the match even though it scores higher
	results, err = li.QueryItems(ctx, []float64{1, 0.1}, 1, metadata.Eq("category", metadata.String("x")))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "secret", results[0].Item.ID)
}

func TestQueryItems_MissingSideFile(t *testing.T) {
	ctx := context.Background()
	li := newTestIndex(t, CreateConfig{MetadataConfig: MetadataConfig{Indexed: []string{"k"}}})
	_, err := li.InsertItem(ctx, ItemInput{ID: "a", Vector: []float64{1}, Metadata: metadata.Metadata{"k": metadata.Number(1)}})
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(li.Folder(), "a.json")))

	_, err = li.QueryItems(ctx, []float64{1}, 1, nil)
	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "read metadata", serr.Op)
}

func TestQueryItems_ResultsAreCopies(t *testing.T) {
	ctx := context.Background()
	li := newTestIndex(t, CreateConfig{})
	_, err := li.InsertItem(ctx, ItemInput{ID: "a", Vector: []float64{1, 0}})
	require.NoError(t, err)

	results, err := li.QueryItems(ctx, []float64{1, 0}, 1, nil)
	require.NoError(t, err)
	results[0].Item.Vector[0] = -1

	results, err = li.QueryItems(ctx, []float64{1, 0}, 1, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestQueryItems_Validation(t *testing.T) {
	ctx := context.Background()
	li := newTestIndex(t, CreateConfig{})
	_, err := li.QueryItems(ctx, nil, 1, nil)
	assert.ErrorIs(t, err, ErrVectorRequired)
	_, err = li.QueryItems(ctx, []float64{0, 0}, 1, nil)
	assert.ErrorIs(t, err, ErrZeroVector)

	// an empty index has no dimension yet, so any length is accepted
	results, err := li.QueryItems(ctx, []float64{1, 2, 3}, 1, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestListItemsByMetadata(t *testing.T) {
	ctx := context.Background()
	li := newTestIndex(t, CreateConfig{})
	require.NoError(t, li.BeginUpdate(ctx))
	for i, c := range []string{"a", "b", "a"} {
		_, err := li.InsertItem(ctx, ItemInput{
			Vector:   []float64{float64(i + 1)},
			Metadata: metadata.Metadata{"c": metadata.String(c), "i": metadata.Number(float64(i))},
		})
		require.NoError(t, err)
	}
	require.NoError(t, li.EndUpdate(ctx))

	items, err := li.ListItemsByMetadata(ctx, metadata.Eq("c", metadata.String("a")))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, metadata.Number(0), items[0].Metadata["i"])
	assert.Equal(t, metadata.Number(2), items[1].Metadata["i"])

	items, err = li.ListItemsByMetadata(ctx, metadata.Or())
	require.NoError(t, err)
	assert.Empty(t, items)
}
