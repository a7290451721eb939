package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/adgm-assist/backend/internal/llm"
	"github.com/adgm-assist/backend/internal/retrieval"
	"github.com/adgm-assist/backend/pkg/logger"
)

// SupportMessage is shown to the user when the completion service fails.
// It is a fixed policy message, never a raw error.
const SupportMessage = "We are unable to answer your question at the moment. " +
	"Please contact ADGM directly at +971 2 333 8888 or via email at contact@adgm.com for assistance."

const systemPromptTemplate = `You are an AI-powered customer service assistant for Abu Dhabi Global Market (ADGM). Your role is to provide accurate, clear, and formal information to ADGM customers and visitors based solely on the official ADGM website content provided below.

Instructions:
- Maintain a formal, respectful, and professional tone.
- You may also respond to questions specifically related to Abu Dhabi Finance Week (ADFW), as it falls under the scope of ADGM-related topics.

Responsibilities:
- Use only content retrieved from the official ADGM website. Do not use external sources or personal knowledge, even if you are confident in the answer.
- Always quote or reference information from the ADGM website where relevant.
- If the requested information is not available or you are unsure of the answer, respond:
  "Thank you for your question. Based on the information available to me, I am unable to provide a definitive answer. I kindly recommend contacting ADGM directly at +971 2 333 8888 or via email at contact@adgm.com for further assistance."
- If the user's query is not related to ADGM's scope, respond:
  "I appreciate your inquiry. However, this matter appears to be outside the scope of Abu Dhabi Global Market. For the most effective support, I encourage you to contact the appropriate organization. I am here to assist with ADGM-specific matters only."
- If the conversation becomes off-topic, respond:
  "Let's kindly keep the discussion focused on ADGM-related topics so I can provide you with the most relevant and accurate information. Thank you for your understanding."

Official ADGM Website: https://www.adgm.com
Information from ADGM website:
%s`

// Completer is the single capability the generator needs from the LLM
// layer.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

type Generator struct {
	retriever retrieval.Retriever
	completer Completer
	topK      int
}

func NewGenerator(retriever retrieval.Retriever, completer Completer, topK int) *Generator {
	if topK <= 0 {
		topK = 5
	}
	return &Generator{
		retriever: retriever,
		completer: completer,
		topK:      topK,
	}
}

// Reply answers one user turn: retrieve context for the question, build
// the message list from the system prompt plus the given history, and
// call the completion service. The caller passes a history snapshot
// (Manager.History copies under the lock), so concurrent appends to the
// live session never race with the read here. Retrieval failure degrades
// to an empty-context prompt (the persona then gives its unknown-answer
// response); a completion failure propagates to the caller.
func (g *Generator) Reply(ctx context.Context, sessionID string, history []Turn, question string) (string, []retrieval.Snippet, error) {
	snippets, err := g.retriever.Retrieve(ctx, question, g.topK)
	if err != nil {
		logger.Warn("Context retrieval failed, answering without context",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		snippets = nil
	}

	messages := g.buildMessages(history, question, snippets)

	reply, err := g.completer.Complete(ctx, messages)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate reply: %w", err)
	}

	logger.Info("Reply generated",
		zap.String("session_id", sessionID),
		zap.Int("history_turns", len(history)),
		zap.Int("context_snippets", len(snippets)),
		zap.Int("reply_length", len(reply)),
	)

	return reply, snippets, nil
}

func (g *Generator) buildMessages(history []Turn, question string, snippets []retrieval.Snippet) []llm.Message {
	messages := make([]llm.Message, 0, 2*len(history)+2)

	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: fmt.Sprintf(systemPromptTemplate, formatContext(snippets)),
	})

	for _, turn := range history {
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: turn.User},
			llm.Message{Role: llm.RoleAssistant, Content: turn.Bot},
		)
	}

	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: question})

	return messages
}

func formatContext(snippets []retrieval.Snippet) string {
	if len(snippets) == 0 {
		return "(no relevant content found)"
	}

	var b strings.Builder
	for i, s := range snippets {
		fmt.Fprintf(&b, "[%d] %s\nSource: %s\n\n", i+1, s.Text, s.SourceURL)
	}
	return strings.TrimSpace(b.String())
}
