package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedBatch_ReordersByIndexAndZeroFillsEmpty(t *testing.T) {
	var gotInputs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "emb", body.Model)
		gotInputs = body.Input

		// out of order on purpose
		_, _ = w.Write([]byte(`{"data":[
			{"index":1,"embedding":[0,2]},
			{"index":0,"embedding":[1,0]}
		]}`))
	}))
	defer srv.Close()

	c := NewEmbeddingClient(EmbeddingConfig{BaseURL: srv.URL + "/v1/", APIKey: "k", Model: "emb", Dimension: 2})
	out, err := c.EmbedBatch(context.Background(), []string{"first\nline", "  ", "second"})
	require.NoError(t, err)

	assert.Equal(t, []string{"first line", "second"}, gotInputs)
	require.Len(t, out, 3)
	assert.Equal(t, []float32{1, 0}, out[0])
	assert.Equal(t, []float32{0, 0}, out[1])
	assert.Equal(t, []float32{0, 2}, out[2])
}

func TestEmbed_EmptyInputSkipsNetwork(t *testing.T) {
	c := NewEmbeddingClient(EmbeddingConfig{BaseURL: "http://127.0.0.1:1", Dimension: 4})

	v, err := c.Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 4), v)
	assert.Equal(t, 4, c.Dimension())
}

func TestEmbed_PropagatesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewEmbeddingClient(EmbeddingConfig{BaseURL: srv.URL, Dimension: 2})
	_, err := c.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestEmbed_RejectsWrongDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,2,3]}]}`))
	}))
	defer srv.Close()

	c := NewEmbeddingClient(EmbeddingConfig{BaseURL: srv.URL, Dimension: 2})
	_, err := c.Embed(context.Background(), "hello")
	assert.Error(t, err)
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])
		assert.Equal(t, 0.7, body["temperature"])
		assert.Equal(t, float64(1024), body["max_tokens"])
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 2)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"42"}}]}`))
	}))
	defer srv.Close()

	c := NewChatClient(ChatConfig{BaseURL: srv.URL, Model: "gpt-4o-mini", Temperature: 0.7, MaxTokens: 1024})
	out, err := c.Complete(context.Background(), []ChatMessage{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "answer?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "42", out)
}

func TestComplete_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewChatClient(ChatConfig{BaseURL: srv.URL}).Complete(context.Background(), nil)
	assert.Error(t, err)
}
