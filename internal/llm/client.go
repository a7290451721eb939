package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/adgm-assist/backend/pkg/circuitbreaker"
	"github.com/adgm-assist/backend/pkg/logger"
	"github.com/adgm-assist/backend/pkg/retry"
)

var (
	// ErrEmbeddingService marks a failed call to the embedding endpoint.
	// The ingestion layer owns the retry policy for these.
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrCompletionService marks a failed chat completion. Surfaced to
	// the caller; the API layer converts it to the support message.
	ErrCompletionService = errors.New("completion service error")
)

type Client struct {
	client          *openai.Client
	model           string
	embeddingModel  string
	temperature     float32
	topP            float32
	maxOutputTokens int
	timeout         time.Duration
	cb              *circuitbreaker.CircuitBreaker
	retryConfig     retry.Config
}

type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

type Config struct {
	APIKey          string
	Model           string
	EmbeddingModel  string
	Temperature     float32
	TopP            float32
	MaxOutputTokens int
	TimeoutSec      int
}

func NewClient(cfg Config) *Client {
	client := openai.NewClient(cfg.APIKey)

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.DefaultConfig()
	retryConfig.InitialDelay = 500 * time.Millisecond
	retryConfig.MaxDelay = 5 * time.Second
	retryConfig.Logger = logger.GetLogger()

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	logger.Info("LLM client initialized",
		zap.String("model", cfg.Model),
		zap.String("embedding_model", cfg.EmbeddingModel),
	)

	return &Client{
		client:          client,
		model:           cfg.Model,
		embeddingModel:  cfg.EmbeddingModel,
		temperature:     cfg.Temperature,
		topP:            cfg.TopP,
		maxOutputTokens: cfg.MaxOutputTokens,
		timeout:         timeout,
		cb:              cb,
		retryConfig:     retryConfig,
	}
}

// Complete sends the full message list to the chat completion endpoint
// with the client's fixed decoding parameters and returns the trimmed
// reply text. Transient failures are retried inside the circuit breaker;
// an exhausted call surfaces as ErrCompletionService.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}

	var reply string

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    chatMessages,
					Temperature: c.temperature,
					TopP:        c.topP,
					MaxTokens:   c.maxOutputTokens,
				},
			)

			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}

			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}

			logger.Debug("Completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			reply = strings.TrimSpace(resp.Choices[0].Message.Content)
			return nil
		})
	})

	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletionService, err)
	}

	return reply, nil
}

// GenerateEmbedding converts text into a vector. It makes a single
// attempt through the circuit breaker: the per-chunk retry policy lives
// with the caller so one layer owns the attempt count.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var embedding []float32

	err := c.cb.Execute(ctx, func() error {
		resp, err := c.client.CreateEmbeddings(
			ctx,
			openai.EmbeddingRequest{
				Input: []string{text},
				Model: openai.EmbeddingModel(c.embeddingModel),
			},
		)

		if err != nil {
			return err
		}

		if len(resp.Data) == 0 {
			return fmt.Errorf("embedding response contained no data")
		}

		embedding = make([]float32, len(resp.Data[0].Embedding))
		copy(embedding, resp.Data[0].Embedding)
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingService, err)
	}

	return embedding, nil
}
