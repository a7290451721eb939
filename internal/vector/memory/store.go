package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/adgm-assist/backend/internal/vector"
	"github.com/adgm-assist/backend/pkg/logger"
)

// Store keeps every record in memory and answers searches with a
// brute-force cosine scan. Adequate for a few thousand chunks; larger
// corpora should use the milvus backend behind the same interface.
type Store struct {
	mu      sync.RWMutex
	records []vector.Record
	path    string
}

func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the persisted store wholesale. A missing or corrupt file is
// a hard error: the retrieval layer cannot serve questions without its
// vectors, so startup must fail loudly rather than answer from nothing.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vector store unreadable at %s: %w", path, err)
	}

	var records []vector.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("vector store corrupt at %s: %w", path, err)
	}

	for i, r := range records {
		if len(r.Embedding) == 0 {
			return nil, fmt.Errorf("vector store corrupt at %s: record %d has no embedding", path, i)
		}
		if len(r.Embedding) != len(records[0].Embedding) {
			return nil, fmt.Errorf("vector store corrupt at %s: record %d dimension %d != %d",
				path, i, len(r.Embedding), len(records[0].Embedding))
		}
	}

	logger.Info("Vector store loaded",
		zap.String("path", path),
		zap.Int("records", len(records)),
	)

	return &Store{records: records, path: path}, nil
}

func (s *Store) Add(ctx context.Context, records ...vector.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

// Search scores every record against query and returns the top k, most
// similar first. Ties keep insertion order.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]vector.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 {
		k = 5
	}

	results := make([]vector.Result, 0, len(s.records))
	for _, r := range s.records {
		results = append(results, vector.Result{
			Record: r,
			Score:  vector.Cosine(query, r.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k > len(results) {
		k = len(results)
	}

	return results[:k], nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Persist writes the whole store to its file: temp file in the same
// directory, then rename, so a crash mid-write never leaves a truncated
// store behind.
func (s *Store) Persist() error {
	s.mu.RLock()
	records := s.records
	s.mu.RUnlock()

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal vector store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".vectors-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp store file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write vector store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp store file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace vector store: %w", err)
	}

	logger.Info("Vector store persisted",
		zap.String("path", s.path),
		zap.Int("records", len(records)),
	)

	return nil
}
