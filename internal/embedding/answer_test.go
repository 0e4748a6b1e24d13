package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatAnswerer(t *testing.T) {
	t.Parallel()

	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"m",
			"choices":[{"index":0,"message":{"role":"assistant","content":"  Use the portal [1]. "},"finish_reason":"stop"}]}`))
	}))
	t.Cleanup(srv.Close)

	a := NewChatAnswerer(srv.URL+"/v1", "key", "")
	answer, err := a.Answer(context.Background(), "How do I reset my password?", []Passage{{
		URL:         "https://guide.example.com/account",
		Title:       "Account",
		Breadcrumbs: []string{"Guide", "Account"},
		Text:        "Reset it from the portal.",
	}})
	require.NoError(t, err)
	require.Equal(t, "Use the portal [1].", answer)

	require.Equal(t, DefaultChatModel, got.Model)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "system", got.Messages[0].Role)
	require.Contains(t, got.Messages[1].Content, "[1] Account (https://guide.example.com/account)")
	require.Contains(t, got.Messages[1].Content, "Path: Guide > Account")
	require.Contains(t, got.Messages[1].Content, "Question: How do I reset my password?")
}

func TestChatAnswererNoChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	}))
	t.Cleanup(srv.Close)

	_, err := NewChatAnswerer(srv.URL+"/v1", "key", "m").Answer(context.Background(), "q?", nil)
	require.EqualError(t, err, "chat completion returned no choices")
}

func TestUserPromptFallsBackToPreview(t *testing.T) {
	t.Parallel()

	prompt := userPrompt("why?", []Passage{{Title: "T", URL: "u", Preview: "short preview"}})
	require.Contains(t, prompt, "short preview")
	require.NotContains(t, prompt, "Path:")
}
