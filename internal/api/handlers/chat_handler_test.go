package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adgm-assist/backend/internal/chat"
	"github.com/adgm-assist/backend/internal/llm"
	"github.com/adgm-assist/backend/internal/retrieval"
)

type fakeRetriever struct {
	snippets []retrieval.Snippet
	err      error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, question string, k int) ([]retrieval.Snippet, error) {
	return f.snippets, f.err
}

type fakeCompleter struct {
	reply string
	err   error
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	return f.reply, f.err
}

func newTestApp(retriever retrieval.Retriever, completer chat.Completer) (*fiber.App, *chat.Manager) {
	sessions := chat.NewManager()
	generator := chat.NewGenerator(retriever, completer, 5)
	h := NewChatHandler(sessions, generator, nil)

	app := fiber.New()
	app.Post("/sessions", h.CreateSession)
	app.Post("/chat", h.HandleChat)
	app.Get("/sessions/:id/history", h.GetHistory)
	app.Delete("/sessions/:id", h.EndSession)

	return app, sessions
}

// postJSON posts a JSON body and returns the status code and decoded
// response body.
func postJSON(t *testing.T, app *fiber.App, path string, body any) (int, map[string]any) {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))

	return resp.StatusCode, decoded
}

func TestChatFlow(t *testing.T) {
	retriever := &fakeRetriever{snippets: []retrieval.Snippet{
		{SourceURL: "https://www.adgm.com/setting-up", Text: "Licensing overview", Score: 0.91},
	}}
	completer := &fakeCompleter{reply: "You can apply for a licence online."}

	app, _ := newTestApp(retriever, completer)

	status, created := postJSON(t, app, "/sessions", nil)
	assert.Equal(t, 201, status)
	sessionID, ok := created["session_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, sessionID)

	status, reply := postJSON(t, app, "/chat", map[string]string{
		"session_id": sessionID,
		"message":    "How do I get a licence?",
	})
	assert.Equal(t, 200, status)
	assert.Equal(t, "You can apply for a licence online.", reply["reply"])

	sources, ok := reply["sources"].([]any)
	require.True(t, ok)
	require.Len(t, sources, 1)
	assert.Equal(t, "https://www.adgm.com/setting-up", sources[0])

	req := httptest.NewRequest("GET", fmt.Sprintf("/sessions/%s/history", sessionID), nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var history struct {
		Turns []chat.Turn `json:"turns"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	require.Len(t, history.Turns, 1)
	assert.Equal(t, "How do I get a licence?", history.Turns[0].User)
}

func TestChatCompletionServiceDown(t *testing.T) {
	retriever := &fakeRetriever{}
	completer := &fakeCompleter{err: fmt.Errorf("%w: upstream timeout", llm.ErrCompletionService)}

	app, sessions := newTestApp(retriever, completer)
	session := sessions.Create()

	status, reply := postJSON(t, app, "/chat", map[string]string{
		"session_id": session.ID,
		"message":    "How do I get a licence?",
	})

	assert.Equal(t, 200, status)
	assert.Equal(t, chat.SupportMessage, reply["reply"])

	turns, err := sessions.History(session.ID)
	require.NoError(t, err)
	assert.Empty(t, turns, "failed turn must not enter the history")
}

func TestChatUnknownSession(t *testing.T) {
	app, _ := newTestApp(&fakeRetriever{}, &fakeCompleter{reply: "ok"})

	status, _ := postJSON(t, app, "/chat", map[string]string{
		"session_id": "nope",
		"message":    "hello",
	})

	assert.Equal(t, 404, status)
}

func TestChatMissingMessage(t *testing.T) {
	app, sessions := newTestApp(&fakeRetriever{}, &fakeCompleter{reply: "ok"})
	session := sessions.Create()

	status, _ := postJSON(t, app, "/chat", map[string]string{
		"session_id": session.ID,
	})

	assert.Equal(t, 400, status)
}

func TestChatGeneratorError(t *testing.T) {
	app, sessions := newTestApp(&fakeRetriever{}, &fakeCompleter{err: errors.New("boom")})
	session := sessions.Create()

	status, _ := postJSON(t, app, "/chat", map[string]string{
		"session_id": session.ID,
		"message":    "hello",
	})

	assert.Equal(t, 500, status)
}

func TestEndSession(t *testing.T) {
	app, sessions := newTestApp(&fakeRetriever{}, &fakeCompleter{reply: "ok"})
	session := sessions.Create()

	req := httptest.NewRequest("DELETE", "/sessions/"+session.ID, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	_, err = sessions.Get(session.ID)
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
}

func TestSnippetSourcesDeduplicates(t *testing.T) {
	snippets := []retrieval.Snippet{
		{SourceURL: "https://www.adgm.com/a", Score: 0.9},
		{SourceURL: "https://www.adgm.com/a", Score: 0.8},
		{SourceURL: "https://www.adgm.com/b", Score: 0.7},
	}

	sources := snippetSources(snippets)

	assert.Equal(t, []string{"https://www.adgm.com/a", "https://www.adgm.com/b"}, sources)
}
