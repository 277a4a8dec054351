package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized is returned when the server rejects the credentials.
var ErrUnauthorized = errors.New("unauthorized")

type Config struct {
	BaseURL       string
	Username      string
	Password      string
	GatewaySecret string
	Timeout       time.Duration
}

// Client calls the user endpoints of the document chat server.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type Turn struct {
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Source struct {
	Source     string  `json:"source"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
	IsPublic   bool    `json:"is_public"`
}

type ChatReply struct {
	Response  string   `json:"response"`
	Prompt    string   `json:"prompt"`
	SessionID uint     `json:"session_id"`
	Sources   []Source `json:"sources"`
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

func (c *Client) Username() string { return c.cfg.Username }

// CheckAuth verifies the configured credentials.
func (c *Client) CheckAuth(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/user/auth/check", nil, nil)
}

func (c *Client) History(ctx context.Context) ([]Turn, error) {
	var turns []Turn
	if err := c.do(ctx, http.MethodGet, "/user/chat/history", nil, &turns); err != nil {
		return nil, err
	}
	return turns, nil
}

func (c *Client) Chat(ctx context.Context, message string, sessionID uint) (*ChatReply, error) {
	body := map[string]any{"message": message}
	if sessionID != 0 {
		body["session_id"] = sessionID
	}
	var reply ChatReply
	if err := c.do(ctx, http.MethodPost, "/user/chat", body, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *Client) ClearHistory(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/user/vectordb/memory", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request failed: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request failed: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.GatewaySecret != "" {
		req.Header.Set("X-From-ApiGateway", c.cfg.GatewaySecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response failed (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", ErrUnauthorized, env.Message)
	}
	if resp.StatusCode >= 300 || env.Code != 0 {
		return fmt.Errorf("server error (status %d, code %d): %s", resp.StatusCode, env.Code, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data failed: %w", err)
		}
	}
	return nil
}
