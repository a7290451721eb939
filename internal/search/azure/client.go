package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/adgm-assist/backend/internal/retrieval"
	"github.com/adgm-assist/backend/internal/storage/models"
	"github.com/adgm-assist/backend/pkg/logger"
)

// Client talks to an Azure Cognitive Search index. It is the alternate
// retrieval backend: crawl output is uploaded as full documents and
// questions are answered with the service's own ranking instead of the
// local vector store.
type Client struct {
	endpoint   string
	apiKey     string
	indexName  string
	httpClient *http.Client
}

const apiVersion = "2023-11-01"

func NewClient(endpoint, apiKey, indexName string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		indexName:  indexName,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type uploadAction struct {
	SearchAction string `json:"@search.action"`
	ID           string `json:"id"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	Content      string `json:"content"`
}

// Upload pushes one crawl run's pages into the index.
func (c *Client) Upload(ctx context.Context, pages []models.Page) error {
	actions := make([]uploadAction, len(pages))
	for i, p := range pages {
		actions[i] = uploadAction{
			SearchAction: "mergeOrUpload",
			ID:           p.ID,
			URL:          p.URL,
			Title:        p.Title,
			Content:      p.Content,
		}
	}

	body, err := json.Marshal(map[string]any{"value": actions})
	if err != nil {
		return fmt.Errorf("failed to marshal upload batch: %w", err)
	}

	url := fmt.Sprintf("%s/indexes/%s/docs/index?api-version=%s", c.endpoint, c.indexName, apiVersion)
	if err := c.post(ctx, url, body, nil); err != nil {
		return fmt.Errorf("failed to upload documents: %w", err)
	}

	logger.Info("Documents uploaded to search index",
		zap.String("index", c.indexName),
		zap.Int("count", len(pages)),
	)

	return nil
}

type searchResponse struct {
	Value []struct {
		URL     string  `json:"url"`
		Title   string  `json:"title"`
		Content string  `json:"content"`
		Score   float64 `json:"@search.score"`
	} `json:"value"`
}

// Search runs a full-text query and returns up to top documents.
func (c *Client) Search(ctx context.Context, query string, top int) ([]retrieval.Snippet, error) {
	if top <= 0 {
		top = 5
	}

	body, err := json.Marshal(map[string]any{
		"search": query,
		"top":    top,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	url := fmt.Sprintf("%s/indexes/%s/docs/search?api-version=%s", c.endpoint, c.indexName, apiVersion)

	var resp searchResponse
	if err := c.post(ctx, url, body, &resp); err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}

	snippets := make([]retrieval.Snippet, 0, len(resp.Value))
	for _, doc := range resp.Value {
		snippets = append(snippets, retrieval.Snippet{
			SourceURL: doc.URL,
			Text:      doc.Content,
			Score:     doc.Score,
		})
	}

	logger.Debug("Full-text search completed",
		zap.String("index", c.indexName),
		zap.Int("results", len(snippets)),
	)

	return snippets, nil
}

// Retrieve satisfies retrieval.Retriever.
func (c *Client) Retrieve(ctx context.Context, question string, k int) ([]retrieval.Snippet, error) {
	return c.Search(ctx, question, k)
}

func (c *Client) post(ctx context.Context, url string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, payload)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
