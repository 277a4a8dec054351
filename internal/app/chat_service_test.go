package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docchat/internal/cache"
	"docchat/internal/model"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, queue string, payload any) error {
	return m.Called(ctx, queue, payload).Error(0)
}

func TestChat_PrivateChunksStayWithTheirTenant(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	alice, err := env.auth.CreateUser(ctx, "alice", "pw")
	require.NoError(t, err)
	_, err = env.auth.CreateUser(ctx, "bob", "pw")
	require.NoError(t, err)

	env.upload(t, "alice", false, "report.pdf", "The quarterly revenue of project falcon grew twelve percent.")
	env.upload(t, "bob", false, "secret.pdf", "Bob private salary numbers for project falcon.")
	_, err = env.ingest.IngestOwn(ctx, "alice", "report.pdf")
	require.NoError(t, err)
	_, err = env.ingest.IngestOwn(ctx, "bob", "secret.pdf")
	require.NoError(t, err)

	res, err := env.chat.Chat(ctx, ChatInput{UserID: alice.ID, Username: "alice", Message: "How did project falcon revenue do?"})
	require.NoError(t, err)

	assert.Contains(t, res.Prompt, "quarterly revenue of project falcon")
	assert.NotContains(t, res.Prompt, "salary")
	assert.Contains(t, res.Prompt, "Previous conversation:\nNo previous conversation found.")
	assert.Contains(t, res.Prompt, "User: How did project falcon revenue do?\nAnswer:")
	for _, src := range res.Sources {
		assert.Equal(t, "report.pdf", src.Source)
	}
	assert.Equal(t, "answer", res.Response)

	require.Len(t, env.completer.calls, 1)
	sent := env.completer.calls[0]
	require.Len(t, sent, 2)
	assert.Equal(t, "system", sent[0].Role)
	assert.Equal(t, res.Prompt, sent[1].Content)
}

func TestChat_PublicChunksVisibleToEveryone(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	bob, err := env.auth.CreateUser(ctx, "bob", "pw")
	require.NoError(t, err)

	env.upload(t, "admin", true, "handbook.pdf", "Vacation policy allows twenty days per year.")
	results, err := env.ingest.IngestAllPublic(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Error)

	res, err := env.chat.Chat(ctx, ChatInput{UserID: bob.ID, Username: "bob", Message: "vacation policy"})
	require.NoError(t, err)
	assert.Contains(t, res.Prompt, "twenty days")
}

func TestChat_StaleChunksSurviveDocumentDeletion(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice, err := env.auth.CreateUser(ctx, "alice", "pw")
	require.NoError(t, err)

	env.upload(t, "alice", false, "old.pdf", "Legacy pricing was ninety dollars.")
	_, err = env.ingest.IngestOwn(ctx, "alice", "old.pdf")
	require.NoError(t, err)

	res, err := env.document.DeleteOwn(ctx, "alice", []string{"old.pdf"})
	require.NoError(t, err)
	require.Equal(t, []string{"old.pdf"}, res.Deleted)

	chat, err := env.chat.Chat(ctx, ChatInput{UserID: alice.ID, Username: "alice", Message: "legacy pricing"})
	require.NoError(t, err)
	assert.Contains(t, chat.Prompt, "ninety dollars", "chunks are not removed with the stored file")
}

func TestChat_HistoryKeepsMostRecentTurns(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice, err := env.auth.CreateUser(ctx, "alice", "pw")
	require.NoError(t, err)

	for i := 0; i < 13; i++ {
		_, err := env.chat.Chat(ctx, ChatInput{UserID: alice.ID, Username: "alice", Message: fmt.Sprintf("question %d", i)})
		require.NoError(t, err)
	}

	turns, err := env.chat.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, turns, 10)
	assert.Equal(t, "question 3", turns[0].Content)
	assert.Equal(t, "question 12", turns[9].Content)

	empty, err := env.chat.History(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, env.chat.ClearHistory(ctx, "alice"))
	turns, err = env.chat.History(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestChat_PreviousTurnsFeedThePrompt(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice, err := env.auth.CreateUser(ctx, "alice", "pw")
	require.NoError(t, err)

	_, err = env.chat.Chat(ctx, ChatInput{UserID: alice.ID, Username: "alice", Message: "my favourite colour is teal"})
	require.NoError(t, err)
	res, err := env.chat.Chat(ctx, ChatInput{UserID: alice.ID, Username: "alice", Message: "what is my favourite colour"})
	require.NoError(t, err)

	assert.Contains(t, res.Prompt, "Previous conversation:\nmy favourite colour is teal")
	assert.Contains(t, res.Prompt, "No relevant documents found.")
}

func TestChat_Sessions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice, err := env.auth.CreateUser(ctx, "alice", "pw")
	require.NoError(t, err)

	long := "Tell me everything about the annual report and its many appendices please"
	first, err := env.chat.Chat(ctx, ChatInput{UserID: alice.ID, Username: "alice", Message: long})
	require.NoError(t, err)
	require.NotZero(t, first.SessionID)

	second, err := env.chat.Chat(ctx, ChatInput{UserID: alice.ID, Username: "alice", SessionID: first.SessionID, Message: "and the summary?"})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	sessions, err := env.chat.ListSessions(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, []rune(long)[:50], []rune(sessions[0].Title))

	msgs, err := env.chat.ListMessages(ctx, alice.ID, first.SessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)

	_, err = env.chat.Chat(ctx, ChatInput{UserID: alice.ID, Username: "alice", SessionID: 999, Message: "hi"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = env.chat.ListMessages(ctx, alice.ID+1, first.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, env.chat.DeleteSession(ctx, alice.ID, first.SessionID))
	assert.ErrorIs(t, env.chat.DeleteSession(ctx, alice.ID, first.SessionID), ErrSessionNotFound)
}

func TestChat_FailedCompletionRecordsNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice, err := env.auth.CreateUser(ctx, "alice", "pw")
	require.NoError(t, err)

	first, err := env.chat.Chat(ctx, ChatInput{UserID: alice.ID, Username: "alice", Message: "first question"})
	require.NoError(t, err)

	env.completer.err = errors.New("model overloaded")
	_, err = env.chat.Chat(ctx, ChatInput{UserID: alice.ID, Username: "alice", SessionID: first.SessionID, Message: "second question"})
	assert.EqualError(t, err, "model overloaded")

	turns, err := env.chat.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "first question", turns[0].Content)

	msgs, err := env.chat.ListMessages(ctx, alice.ID, first.SessionID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestChat_RejectsEmptyMessage(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.chat.Chat(context.Background(), ChatInput{UserID: 1, Username: "alice", Message: "   "})
	assert.ErrorIs(t, err, ErrMessageEmpty)
	assert.Empty(t, env.completer.calls)
}

func TestChat_PublishesMessagesWhenQueueConfigured(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice, err := env.auth.CreateUser(ctx, "alice", "pw")
	require.NoError(t, err)

	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, "chat.persist", mock.AnythingOfType("model.Message")).Return(nil).Twice()
	svc := NewChatService(env.sessions, env.messages, env.vectors,
		NewRetriever(env.vectors, wordEmbedder{}, 5, 3), env.completer, nil, pub,
		ChatConfig{HistoryLimit: 10, PersistQueue: "chat.persist"})

	res, err := svc.Chat(ctx, ChatInput{UserID: alice.ID, Username: "alice", Message: "hello"})
	require.NoError(t, err)
	pub.AssertExpectations(t)

	msgs, err := env.messages.ListBySessionID(ctx, res.SessionID, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs, "queued messages are written by the worker")
}

func TestChat_HistoryServedFromCacheUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice, err := env.auth.CreateUser(ctx, "alice", "pw")
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	hc := cache.NewHistoryCache(client, time.Minute, time.Second)

	svc := NewChatService(env.sessions, env.messages, env.vectors,
		NewRetriever(env.vectors, wordEmbedder{}, 5, 3), env.completer, hc, nil,
		ChatConfig{HistoryLimit: 10})

	_, err = svc.Chat(ctx, ChatInput{UserID: alice.ID, Username: "alice", Message: "first"})
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	turns, err := svc.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.True(t, mr.Exists("chat:history:alice"))

	_, err = svc.Chat(ctx, ChatInput{UserID: alice.ID, Username: "alice", Message: "second"})
	require.NoError(t, err)
	assert.False(t, mr.Exists("chat:history:alice"))

	turns, err = svc.History(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}
