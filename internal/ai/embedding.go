package ai

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// EmbeddingConfig holds API settings for text-embedding (OpenAI-compatible).
type EmbeddingConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
}

type EmbeddingClient struct {
	cfg        EmbeddingConfig
	httpClient httpDoer
}

func NewEmbeddingClient(cfg EmbeddingConfig) *EmbeddingClient {
	return &EmbeddingClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *EmbeddingClient) Dimension() int { return c.cfg.Dimension }

// Embed returns the embedding vector for text. Empty input maps to a zero vector.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch returns one vector per input, in input order. Empty inputs are not
// sent to the API and map to zero vectors.
func (c *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))

	inputs := make([]string, 0, len(texts))
	positions := make([]int, 0, len(texts))
	for i, t := range texts {
		t = strings.TrimSpace(strings.ReplaceAll(t, "\n", " "))
		if t == "" {
			result[i] = make([]float32, c.cfg.Dimension)
			continue
		}
		inputs = append(inputs, t)
		positions = append(positions, i)
	}
	if len(inputs) == 0 {
		return result, nil
	}

	reqBody := map[string]interface{}{
		"model": c.cfg.Model,
		"input": inputs,
	}
	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := postJSON(ctx, c.httpClient, c.cfg.BaseURL, "/embeddings", c.cfg.APIKey, reqBody, &parsed); err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(parsed.Data) != len(inputs) {
		return nil, fmt.Errorf("embedding returned %d vectors for %d inputs", len(parsed.Data), len(inputs))
	}

	// The API does not promise to keep input order.
	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	for i, d := range parsed.Data {
		if d.Index != i {
			return nil, fmt.Errorf("embedding response missing index %d", i)
		}
		if c.cfg.Dimension > 0 && len(d.Embedding) != c.cfg.Dimension {
			return nil, fmt.Errorf("embedding dimension %d, want %d", len(d.Embedding), c.cfg.Dimension)
		}
		result[positions[i]] = d.Embedding
	}
	return result, nil
}
