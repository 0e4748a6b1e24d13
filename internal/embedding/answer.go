package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// DefaultChatModel is used when no answer model is configured.
const DefaultChatModel = "gpt-4o-mini"

const systemPrompt = "You answer questions about an internal guide. " +
	"Use only the numbered passages provided. Cite passages as [n]. " +
	"If the passages do not contain the answer, say so."

// Passage is a retrieved piece of context handed to an Answerer.
type Passage struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Breadcrumbs []string `json:"breadcrumbs"`
	Preview     string   `json:"preview"`
	Text        string   `json:"-"`
}

// Answerer produces an answer to a question from retrieved passages.
type Answerer interface {
	Answer(ctx context.Context, question string, passages []Passage) (string, error)
}

// ChatAnswerer answers via the chat completions endpoint.
type ChatAnswerer struct {
	client *openai.Client
	model  string
}

// NewChatAnswerer builds an answerer against an OpenAI-compatible API.
func NewChatAnswerer(baseURL, apiKey, model string) *ChatAnswerer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultChatModel
	}
	return &ChatAnswerer{client: openai.NewClientWithConfig(cfg), model: model}
}

// Answer implements Answerer.
func (a *ChatAnswerer) Answer(ctx context.Context, question string, passages []Passage) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(question, passages)},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func userPrompt(question string, passages []Passage) string {
	var b strings.Builder
	for i, p := range passages {
		text := p.Text
		if text == "" {
			text = p.Preview
		}
		fmt.Fprintf(&b, "[%d] %s (%s)\n", i+1, p.Title, p.URL)
		if len(p.Breadcrumbs) > 0 {
			fmt.Fprintf(&b, "Path: %s\n", strings.Join(p.Breadcrumbs, " > "))
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
