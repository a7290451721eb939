package chunker

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter measures text length in model tokens. The production
// counter is tiktoken's cl100k_base encoding; tests inject cheaper ones.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTiktokenCounter() (TokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to load cl100k_base encoding: %w", err)
	}
	return &tiktokenCounter{enc: enc}, nil
}

func (c *tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

type Chunker struct {
	counter   TokenCounter
	maxTokens int
}

func New(counter TokenCounter, maxTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = 500
	}
	return &Chunker{counter: counter, maxTokens: maxTokens}
}

// Split breaks text into chunks of at most maxTokens tokens. Words are
// accumulated until appending one would push the chunk over the budget;
// that word then starts the next chunk. Chunks never overlap and their
// concatenation preserves the original word sequence. A single word
// larger than the budget becomes a one-word chunk that exceeds it.
func (c *Chunker) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var current []string

	for _, word := range words {
		current = append(current, word)
		if len(current) > 1 && c.counter.Count(strings.Join(current, " ")) > c.maxTokens {
			current = current[:len(current)-1]
			chunks = append(chunks, strings.Join(current, " "))
			current = []string{word}
		}
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	return chunks
}
