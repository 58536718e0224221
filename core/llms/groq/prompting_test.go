package groq

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamingServer(t *testing.T, chunks []string, received *[]requestBody) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body requestBody
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if received != nil {
			*received = append(*received, body)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient("", "")
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	client, err := NewClient("key", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, client.Model())
}

func TestPromptAccumulatesStreamedChunks(t *testing.T) {
	server := streamingServer(t, []string{"All ", "systems ", "nominal."}, nil)
	defer server.Close()

	client, err := NewClient("test-key", "", WithURL(server.URL))
	require.NoError(t, err)

	var seen []string
	reply, err := client.PromptWithStream(t.Context(), "status", func(chunk string) {
		seen = append(seen, chunk)
	})

	require.NoError(t, err)
	assert.Equal(t, "All systems nominal.", reply)
	assert.Equal(t, []string{"All ", "systems ", "nominal."}, seen)
}

func TestPromptSendsSystemPromptAndHistory(t *testing.T) {
	var received []requestBody
	server := streamingServer(t, []string{"ok"}, &received)
	defer server.Close()

	client, err := NewClient("test-key", "test-model",
		WithURL(server.URL), WithSystemPrompt("be brief"), WithHistoryLimit(1))
	require.NoError(t, err)

	for _, prompt := range []string{"first", "second", "third"} {
		_, err := client.Prompt(t.Context(), prompt)
		require.NoError(t, err)
	}

	require.Len(t, received, 3)
	assert.Equal(t, "test-model", received[2].Model)
	assert.True(t, received[2].Stream)
	assert.Equal(t, []message{
		{Role: messageRoleSystem, Content: "be brief"},
		{Role: messageRoleUser, Content: "second"},
		{Role: messageRoleAssistant, Content: "ok"},
		{Role: messageRoleUser, Content: "third"},
	}, received[2].Messages)

	assert.Equal(t, []Exchange{{Prompt: "third", Response: "ok"}}, client.History())
	client.ResetHistory()
	assert.Empty(t, client.History())
}

func TestDefaultSystemPromptIsCommandCenterPersona(t *testing.T) {
	var received []requestBody
	server := streamingServer(t, []string{"Online, Sir."}, &received)
	defer server.Close()

	client, err := NewClient("test-key", "", WithURL(server.URL), WithSystemPrompt(""))
	require.NoError(t, err)

	_, err = client.Prompt(t.Context(), "status")
	require.NoError(t, err)

	require.Len(t, received, 1)
	require.NotEmpty(t, received[0].Messages)
	system := received[0].Messages[0]
	assert.Equal(t, messageRoleSystem, system.Role)
	assert.Equal(t, DefaultSystemPrompt, system.Content)
	assert.Contains(t, system.Content, "MASTER SYSTEM")
	assert.Contains(t, system.Content, "Address the user as 'Sir'")
}

func TestHistoryReturnsIndependentCopy(t *testing.T) {
	server := streamingServer(t, []string{"ok"}, nil)
	defer server.Close()

	client, err := NewClient("test-key", "", WithURL(server.URL))
	require.NoError(t, err)
	_, err = client.Prompt(t.Context(), "first")
	require.NoError(t, err)

	history := client.History()
	require.Len(t, history, 1)
	history[0].Prompt = "rewritten"

	assert.Equal(t, "first", client.History()[0].Prompt)
}

func TestPromptReturnsStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewClient("test-key", "", WithURL(server.URL))
	require.NoError(t, err)

	_, err = client.Prompt(t.Context(), "status")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Empty(t, client.History())
}

func TestPromptSkipsMalformedChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {not json}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hello\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client, err := NewClient("test-key", "", WithURL(server.URL))
	require.NoError(t, err)

	reply, err := client.Prompt(t.Context(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", reply)
}
