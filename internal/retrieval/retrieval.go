package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/adgm-assist/backend/internal/metrics"
	"github.com/adgm-assist/backend/internal/vector"
	"github.com/adgm-assist/backend/pkg/logger"
)

// Snippet is one piece of retrieved context.
type Snippet struct {
	SourceURL string
	Text      string
	Score     float64
}

// Retriever finds the stored text most relevant to a question. The
// default implementation goes through the vector store; the Azure search
// client satisfies the same interface as the full-text variant.
type Retriever interface {
	Retrieve(ctx context.Context, question string, k int) ([]Snippet, error)
}

// Embedder converts a question into a query vector.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// VectorRetriever embeds the question and scans the vector store.
type VectorRetriever struct {
	embedder Embedder
	store    vector.Store
}

func NewVectorRetriever(embedder Embedder, store vector.Store) *VectorRetriever {
	return &VectorRetriever{embedder: embedder, store: store}
}

func (r *VectorRetriever) Retrieve(ctx context.Context, question string, k int) ([]Snippet, error) {
	queryVec, err := r.embedder.GenerateEmbedding(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	results, err := r.store.Search(ctx, queryVec, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search store: %w", err)
	}

	snippets := make([]Snippet, 0, len(results))
	for _, res := range results {
		snippets = append(snippets, Snippet{
			SourceURL: res.Record.SourceURL,
			Text:      res.Record.Text,
			Score:     res.Score,
		})
	}

	metrics.RetrievalResults.Observe(float64(len(snippets)))
	if len(snippets) > 0 {
		metrics.RetrievalTopScore.Observe(snippets[0].Score)
	}

	logger.Debug("Context retrieved",
		zap.Int("k", k),
		zap.Int("snippets", len(snippets)),
	)

	return snippets, nil
}
