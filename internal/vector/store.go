package vector

import (
	"context"
	"math"
)

// Record pairs a text chunk with its embedding and the page it came from.
type Record struct {
	SourceURL string    `json:"url"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

// Result is one search hit.
type Result struct {
	Record Record
	Score  float64
}

// Store is the retrieval capability. The default implementation is a
// linear scan over an in-memory slice; an indexed backend can replace it
// without touching callers.
type Store interface {
	Add(ctx context.Context, records ...Record) error
	Search(ctx context.Context, query []float32, k int) ([]Result, error)
	Len() int
}

// Cosine returns the cosine similarity of a and b. A zero-magnitude
// vector scores -1 (least relevant) instead of propagating NaN into the
// result ordering.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return -1
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
