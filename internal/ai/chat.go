package ai

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// ChatClient calls an OpenAI-compatible /chat/completions endpoint.
type ChatClient struct {
	cfg        ChatConfig
	httpClient httpDoer
}

func NewChatClient(cfg ChatConfig) *ChatClient {
	return &ChatClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
}

func (c *ChatClient) Model() string { return c.cfg.Model }

func (c *ChatClient) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	reqBody := map[string]interface{}{
		"model":       c.cfg.Model,
		"messages":    messages,
		"temperature": c.cfg.Temperature,
		"stream":      false,
	}
	if c.cfg.MaxTokens > 0 {
		reqBody["max_tokens"] = c.cfg.MaxTokens
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := postJSON(ctx, c.httpClient, c.cfg.BaseURL, "/chat/completions", c.cfg.APIKey, reqBody, &parsed); err != nil {
		return "", fmt.Errorf("llm completion failed: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty llm choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
