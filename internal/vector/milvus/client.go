package milvus

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/adgm-assist/backend/internal/vector"
	"github.com/adgm-assist/backend/pkg/logger"
	"github.com/adgm-assist/backend/pkg/utils"
)

// Store implements vector.Store on a Milvus collection. This is the
// backend for corpora too large for the in-memory linear scan.
type Store struct {
	client         client.Client
	collectionName string
	vectorDim      int
	rowCount       atomic.Int64
}

func NewStore(ctx context.Context, endpoint, collectionName string, vectorDim int) (*Store, error) {
	c, err := client.NewGrpcClient(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	s := &Store{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}

	if err := s.ensureCollection(ctx); err != nil {
		c.Close()
		return nil, err
	}

	if stats, err := c.GetCollectionStatistics(ctx, collectionName); err == nil {
		if raw, ok := stats["row_count"]; ok {
			if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
				s.rowCount.Store(n)
			}
		}
	}

	logger.Info("Milvus store initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
		zap.Int64("rows", s.rowCount.Load()),
	)

	return s, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) ensureCollection(ctx context.Context) error {
	has, err := s.client.HasCollection(ctx, s.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		return s.client.LoadCollection(ctx, s.collectionName, false)
	}

	schema := &entity.Schema{
		CollectionName: s.collectionName,
		Description:    "Crawled page chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", s.vectorDim),
				},
			},
			{
				Name:       "text",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "8192"},
			},
			{
				Name:       "source_url",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "512"},
			},
		},
	}

	if err := s.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index definition: %w", err)
	}
	if err := s.client.CreateIndex(ctx, s.collectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := s.client.LoadCollection(ctx, s.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", s.collectionName))
	return nil
}

func (s *Store) Add(ctx context.Context, records ...vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(records))
	embeddings := make([][]float32, len(records))
	texts := make([]string, len(records))
	sourceURLs := make([]string, len(records))

	for i, r := range records {
		chunkIDs[i] = utils.HashString(r.SourceURL + r.Text)
		embeddings[i] = r.Embedding
		texts[i] = r.Text
		sourceURLs[i] = r.SourceURL
	}

	_, err := s.client.Insert(
		ctx,
		s.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", s.vectorDim, embeddings),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("source_url", sourceURLs),
	)
	if err != nil {
		return fmt.Errorf("failed to insert records: %w", err)
	}

	if err := s.client.Flush(ctx, s.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	s.rowCount.Add(int64(len(records)))

	logger.Info("Records inserted into milvus", zap.Int("count", len(records)))
	return nil
}

func (s *Store) Search(ctx context.Context, query []float32, k int) ([]vector.Result, error) {
	if k <= 0 {
		k = 5
	}

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := s.client.Search(
		ctx,
		s.collectionName,
		[]string{},
		"",
		[]string{"text", "source_url"},
		[]entity.Vector{entity.FloatVector(query)},
		"embedding",
		entity.COSINE,
		k,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var results []vector.Result
	for _, sr := range searchResult {
		textCol := sr.Fields.GetColumn("text")
		urlCol := sr.Fields.GetColumn("source_url")
		if textCol == nil || urlCol == nil {
			return nil, fmt.Errorf("search result missing output fields")
		}

		for i := 0; i < sr.ResultCount; i++ {
			text, err := textCol.Get(i)
			if err != nil {
				return nil, fmt.Errorf("failed to read text column: %w", err)
			}
			sourceURL, err := urlCol.Get(i)
			if err != nil {
				return nil, fmt.Errorf("failed to read source_url column: %w", err)
			}

			textStr, ok := text.(string)
			if !ok {
				return nil, fmt.Errorf("text column has unexpected type %T", text)
			}
			urlStr, ok := sourceURL.(string)
			if !ok {
				return nil, fmt.Errorf("source_url column has unexpected type %T", sourceURL)
			}

			results = append(results, vector.Result{
				Record: vector.Record{
					SourceURL: urlStr,
					Text:      textStr,
				},
				Score: float64(sr.Scores[i]),
			})
		}
	}

	logger.Debug("Milvus search completed",
		zap.Int("k", k),
		zap.Int("results", len(results)),
	)

	return results, nil
}

func (s *Store) Len() int {
	return int(s.rowCount.Load())
}
