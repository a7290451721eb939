package ingestion

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adgm-assist/backend/internal/chunker"
	"github.com/adgm-assist/backend/internal/storage/models"
	"github.com/adgm-assist/backend/internal/vector"
	"github.com/adgm-assist/backend/pkg/retry"
)

type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

// fakeEmbedder fails the first failuresPerText attempts for each text.
type fakeEmbedder struct {
	mu              sync.Mutex
	attempts        map[string]int
	failuresPerText int
	failAlwaysFor   string
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{attempts: map[string]int{}}
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[text]++

	if f.failAlwaysFor != "" && strings.Contains(text, f.failAlwaysFor) {
		return nil, errors.New("service unavailable")
	}
	if f.attempts[text] <= f.failuresPerText {
		return nil, errors.New("transient failure")
	}
	return []float32{float32(len(text)), 1}, nil
}

type memStore struct {
	mu      sync.Mutex
	records []vector.Record
}

func (m *memStore) Add(ctx context.Context, records ...vector.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	return nil
}

func (m *memStore) Search(ctx context.Context, q []float32, k int) ([]vector.Result, error) {
	return nil, nil
}

func (m *memStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func newTestBuilder(embedder Embedder, store vector.Store) *Builder {
	ch := chunker.New(wordCounter{}, 3)
	b := NewBuilder(nil, ch, embedder, store)
	return b.WithRetryConfig(retry.FixedConfig(3, time.Millisecond, nil))
}

func TestBuildFromPages_EmbedsEveryChunk(t *testing.T) {
	embedder := newFakeEmbedder()
	store := &memStore{}
	b := newTestBuilder(embedder, store)

	pages := []models.Page{
		{ID: "1", URL: "https://www.adgm.com/", Content: "one two three four five"},
		{ID: "2", URL: "https://www.adgm.com/fees", Content: "six seven"},
	}

	added, err := b.BuildFromPages(context.Background(), pages)
	require.NoError(t, err)

	// First page chunks into "one two three" + "four five", second into one chunk.
	assert.Equal(t, 3, added)
	require.Equal(t, 3, store.Len())
	assert.Equal(t, "https://www.adgm.com/", store.records[0].SourceURL)
	assert.Equal(t, "one two three", store.records[0].Text)
}

func TestBuildFromPages_ChunkSucceedsOnSecondAttempt(t *testing.T) {
	embedder := newFakeEmbedder()
	embedder.failuresPerText = 1
	store := &memStore{}
	b := newTestBuilder(embedder, store)

	added, err := b.BuildFromPages(context.Background(), []models.Page{
		{ID: "1", URL: "u", Content: "hello world"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, added)
	assert.Equal(t, 1, store.Len(), "a retried chunk appears exactly once")
	assert.Equal(t, 2, embedder.attempts["hello world"])
}

func TestBuildFromPages_FailedChunkIsDroppedBatchContinues(t *testing.T) {
	embedder := newFakeEmbedder()
	embedder.failAlwaysFor = "poison"
	store := &memStore{}
	b := newTestBuilder(embedder, store)

	added, err := b.BuildFromPages(context.Background(), []models.Page{
		{ID: "1", URL: "u1", Content: "poison pill here"},
		{ID: "2", URL: "u2", Content: "clean text"},
	})
	require.NoError(t, err, "a dropped chunk never fails the batch")

	assert.Equal(t, 1, added)
	require.Equal(t, 1, store.Len())
	assert.Equal(t, "clean text", store.records[0].Text)
	assert.Equal(t, 3, embedder.attempts["poison pill here"],
		"exactly three attempts before dropping")
}

func TestBuildFromPages_EmptyContentProducesNothing(t *testing.T) {
	embedder := newFakeEmbedder()
	store := &memStore{}
	b := newTestBuilder(embedder, store)

	added, err := b.BuildFromPages(context.Background(), []models.Page{
		{ID: "1", URL: "u", Content: "   "},
	})
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Zero(t, store.Len())
}

type fakeCache struct {
	mu   sync.Mutex
	data map[string][]float32
	gets int
	hits int
}

func (c *fakeCache) GetEmbedding(ctx context.Context, text string) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	emb, ok := c.data[text]
	if ok {
		c.hits++
	}
	return emb, ok, nil
}

func (c *fakeCache) SetEmbedding(ctx context.Context, text string, embedding []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[text] = embedding
	return nil
}

func TestBuildFromPages_CacheShortCircuitsEmbedding(t *testing.T) {
	embedder := newFakeEmbedder()
	store := &memStore{}
	cache := &fakeCache{data: map[string][]float32{"cached text": {9, 9}}}
	b := newTestBuilder(embedder, store).WithCache(cache)

	added, err := b.BuildFromPages(context.Background(), []models.Page{
		{ID: "1", URL: "u", Content: "cached text"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, added)
	assert.Equal(t, 1, cache.hits)
	assert.Zero(t, embedder.attempts["cached text"], "no service call on cache hit")
	assert.Equal(t, []float32{9, 9}, store.records[0].Embedding)
}

func TestSaveAndLoadPages_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.json")

	pages := []models.Page{
		{ID: "1", URL: "https://www.adgm.com/", Title: "Home", Content: "welcome"},
		{ID: "2", URL: "https://www.adgm.com/fees", Title: "Fees", Content: "schedule"},
	}

	require.NoError(t, SavePages(path, pages))

	loaded, err := LoadPages(path)
	require.NoError(t, err)
	assert.Equal(t, pages, loaded)
}

func TestLoadPages_MissingFile(t *testing.T) {
	_, err := LoadPages(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
