package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adgm-assist/backend/internal/vector"
)

func TestSearch_OrdersBySimilarity(t *testing.T) {
	s := New("")
	ctx := context.Background()

	require.NoError(t, s.Add(ctx,
		vector.Record{SourceURL: "a", Text: "exact match", Embedding: []float32{1, 0}},
		vector.Record{SourceURL: "b", Text: "orthogonal", Embedding: []float32{0, 1}},
		vector.Record{SourceURL: "c", Text: "close match", Embedding: []float32{0.9, 0.1}},
	))

	results, err := s.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "exact match", results[0].Record.Text)
	assert.Equal(t, "close match", results[1].Record.Text)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestSearch_KLargerThanStore(t *testing.T) {
	s := New("")
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, vector.Record{Text: "only", Embedding: []float32{1, 0}}))

	results, err := s.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearch_TiesKeepInsertionOrder(t *testing.T) {
	s := New("")
	ctx := context.Background()

	require.NoError(t, s.Add(ctx,
		vector.Record{Text: "first", Embedding: []float32{1, 0}},
		vector.Record{Text: "second", Embedding: []float32{2, 0}},
		vector.Record{Text: "third", Embedding: []float32{3, 0}},
	))

	// All three are colinear with the query, so all score 1.0.
	results, err := s.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "first", results[0].Record.Text)
	assert.Equal(t, "second", results[1].Record.Text)
	assert.Equal(t, "third", results[2].Record.Text)
}

func TestSearch_ZeroVectorRanksLast(t *testing.T) {
	s := New("")
	ctx := context.Background()

	require.NoError(t, s.Add(ctx,
		vector.Record{Text: "zero", Embedding: []float32{0, 0}},
		vector.Record{Text: "opposite", Embedding: []float32{-1, 0}},
	))

	results, err := s.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "opposite", results[0].Record.Text)
	assert.Equal(t, "zero", results[1].Record.Text)
	assert.Equal(t, float64(-1), results[1].Score, "zero-magnitude fallback, never NaN")
}

func TestPersistAndLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.json")
	ctx := context.Background()

	s := New(path)
	require.NoError(t, s.Add(ctx,
		vector.Record{SourceURL: "https://www.adgm.com/fees", Text: "fee schedule", Embedding: []float32{0.1, 0.2}},
		vector.Record{SourceURL: "https://www.adgm.com/fees", Text: "payment methods", Embedding: []float32{0.3, 0.4}},
	))
	require.NoError(t, s.Persist())

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())

	results, err := loaded.Search(ctx, []float32{0.1, 0.2}, 1)
	require.NoError(t, err)
	assert.Equal(t, "fee schedule", results[0].Record.Text)
}

func TestLoad_MissingFileFailsFast(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreadable")
}

func TestLoad_CorruptFileFailsFast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt")
}

func TestLoad_DimensionMismatchFailsFast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.json")
	payload := `[{"url":"a","text":"x","embedding":[1,2]},{"url":"b","text":"y","embedding":[1,2,3]}]`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestCosine_Properties(t *testing.T) {
	a := []float32{0.2, 0.8, -0.1}
	b := []float32{0.5, 0.1, 0.9}

	assert.InDelta(t, vector.Cosine(a, b), vector.Cosine(b, a), 1e-12, "symmetric")
	assert.InDelta(t, 1.0, vector.Cosine(a, a), 1e-9, "self-similarity is 1")

	got := vector.Cosine(a, b)
	assert.GreaterOrEqual(t, got, -1.0)
	assert.LessOrEqual(t, got, 1.0)
}
