package milvus

import (
	"context"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMilvusClient overrides Search; everything else panics if reached.
type fakeMilvusClient struct {
	client.Client
	results []client.SearchResult
	err     error
}

func (f *fakeMilvusClient) Search(
	ctx context.Context,
	collName string,
	partitions []string,
	expr string,
	outputFields []string,
	vectors []entity.Vector,
	vectorField string,
	metricType entity.MetricType,
	topK int,
	sp entity.SearchParam,
	opts ...client.SearchQueryOptionFunc,
) ([]client.SearchResult, error) {
	return f.results, f.err
}

func TestSearch_MapsColumnsToResults(t *testing.T) {
	fake := &fakeMilvusClient{
		results: []client.SearchResult{
			{
				ResultCount: 2,
				Fields: client.ResultSet{
					entity.NewColumnVarChar("text", []string{"chunk one", "chunk two"}),
					entity.NewColumnVarChar("source_url", []string{"https://www.adgm.com/a", "https://www.adgm.com/b"}),
				},
				Scores: []float32{0.92, 0.81},
			},
		},
	}
	s := &Store{client: fake, collectionName: "c", vectorDim: 2}

	results, err := s.Search(context.Background(), []float32{0.1, 0.2}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "chunk one", results[0].Record.Text)
	assert.Equal(t, "https://www.adgm.com/a", results[0].Record.SourceURL)
	assert.InDelta(t, 0.92, results[0].Score, 1e-6)
	assert.Equal(t, "chunk two", results[1].Record.Text)
}

func TestSearch_MissingOutputColumnIsAnError(t *testing.T) {
	fake := &fakeMilvusClient{
		results: []client.SearchResult{
			{
				ResultCount: 1,
				Fields: client.ResultSet{
					entity.NewColumnVarChar("text", []string{"chunk"}),
				},
				Scores: []float32{0.5},
			},
		},
	}
	s := &Store{client: fake, collectionName: "c", vectorDim: 2}

	_, err := s.Search(context.Background(), []float32{0.1, 0.2}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing output fields")
}

func TestSearch_WrongColumnTypeIsAnError(t *testing.T) {
	fake := &fakeMilvusClient{
		results: []client.SearchResult{
			{
				ResultCount: 1,
				Fields: client.ResultSet{
					entity.NewColumnInt64("text", []int64{7}),
					entity.NewColumnVarChar("source_url", []string{"https://www.adgm.com/a"}),
				},
				Scores: []float32{0.5},
			},
		},
	}
	s := &Store{client: fake, collectionName: "c", vectorDim: 2}

	_, err := s.Search(context.Background(), []float32{0.1, 0.2}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected type")
}
