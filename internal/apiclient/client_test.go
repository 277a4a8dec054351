package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", Username: "alice", Password: "pw", GatewaySecret: "gw"})
}

func writeEnvelope(w http.ResponseWriter, status, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "message": message, "data": data})
}

func TestClient_ChatSendsCredentialsAndDecodesReply(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "alice", user)
		assert.Equal(t, "pw", pass)
		assert.Equal(t, "gw", r.Header.Get("X-From-ApiGateway"))
		assert.Equal(t, "/user/chat", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["message"])
		assert.Equal(t, float64(7), body["session_id"])

		writeEnvelope(w, http.StatusOK, 0, "ok", map[string]any{
			"response":   "hi",
			"prompt":     "User: hello",
			"session_id": 7,
			"sources":    []map[string]any{{"source": "a.pdf", "similarity": 0.5, "is_public": true}},
		})
	})

	reply, err := c.Chat(context.Background(), "hello", 7)
	require.NoError(t, err)
	assert.Equal(t, "hi", reply.Response)
	assert.Equal(t, uint(7), reply.SessionID)
	require.Len(t, reply.Sources, 1)
	assert.True(t, reply.Sources[0].IsPublic)
}

func TestClient_UnauthorizedIsDistinguishable(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, 40101, "Incorrect username or password", nil)
	})

	err := c.CheckAuth(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestClient_ServerErrorCarriesMessage(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusInternalServerError, 50000, "chat failed: boom", nil)
	})

	_, err := c.History(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "chat failed: boom")
}

func TestClient_HistoryAndClear(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/user/chat/history":
			writeEnvelope(w, http.StatusOK, 0, "ok", []map[string]any{{"content": "q1"}, {"content": "q2"}})
		case r.Method == http.MethodDelete && r.URL.Path == "/user/vectordb/memory":
			writeEnvelope(w, http.StatusOK, 0, "ok", map[string]any{"cleared": "alice"})
		default:
			writeEnvelope(w, http.StatusNotFound, 40400, "not found", nil)
		}
	})

	turns, err := c.History(context.Background())
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "q2", turns[1].Content)
	assert.NoError(t, c.ClearHistory(context.Background()))
}
