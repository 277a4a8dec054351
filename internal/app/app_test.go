package app

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"docchat/internal/ai"
	"docchat/internal/chunker"
	"docchat/internal/platform/database"
	"docchat/internal/repository"
	"docchat/internal/storage"
	"docchat/internal/vectorstore"
)

const testDimension = 16

// wordEmbedder hashes words into a fixed-size bag-of-words vector.
type wordEmbedder struct{}

func (wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, testDimension)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%testDimension]++
	}
	return vec, nil
}

func (e wordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, _ := e.Embed(ctx, t)
		out = append(out, v)
	}
	return out, nil
}

type fakeCompleter struct {
	mu    sync.Mutex
	calls [][]ai.ChatMessage
	reply string
	err   error
}

func (f *fakeCompleter) Complete(_ context.Context, messages []ai.ChatMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, messages)
	if f.err != nil {
		return "", f.err
	}
	if f.reply == "" {
		return "answer", nil
	}
	return f.reply, nil
}

// plainExtract treats stored bytes as the document text.
func plainExtract(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	return string(b), err
}

type testEnv struct {
	db        *gorm.DB
	users     *repository.UserRepository
	sessions  *repository.SessionRepository
	messages  *repository.MessageRepository
	docs      *repository.DocumentRepository
	records   *repository.IngestRecordRepository
	store     storage.Storage
	vectors   vectorstore.Store
	completer *fakeCompleter

	auth     *AuthService
	document *DocumentService
	ingest   *IngestService
	chat     *ChatService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.New(ctx, "sqlite", filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })

	vectors, err := vectorstore.NewSQL(db)
	require.NoError(t, err)
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	ch, err := chunker.New(80, 10)
	require.NoError(t, err)

	env := &testEnv{
		db:        db,
		users:     repository.NewUserRepository(db),
		sessions:  repository.NewSessionRepository(db),
		messages:  repository.NewMessageRepository(db),
		docs:      repository.NewDocumentRepository(db),
		records:   repository.NewIngestRecordRepository(db),
		store:     store,
		vectors:   vectors,
		completer: &fakeCompleter{},
	}

	env.ingest = NewIngestService(env.docs, env.records, env.users, store, vectors, ch, wordEmbedder{}, nil, IngestConfig{BatchSize: 2}).
		WithExtractor(plainExtract)
	env.document = NewDocumentService(env.docs, store, LocalKey, time.Hour, nil)
	env.chat = NewChatService(
		env.sessions, env.messages, vectors,
		NewRetriever(vectors, wordEmbedder{}, 5, 3),
		env.completer, nil, nil,
		ChatConfig{HistoryLimit: 10},
	)
	env.auth = NewAuthService(env.users, env.sessions, AuthConfig{
		AdminUsername: "admin",
		AdminPassword: "123123",
		JWTSecret:     "test-secret",
		JWTExpiration: time.Hour,
	}, env.document, env.ingest, env.chat)
	return env
}

var errDiskFull = errors.New("disk full")

// failDocumentWrites makes every insert or update of the documents table fail.
func (e *testEnv) failDocumentWrites(t *testing.T) {
	t.Helper()
	fail := func(tx *gorm.DB) {
		if tx.Statement.Table == "documents" {
			_ = tx.AddError(errDiskFull)
		}
	}
	require.NoError(t, e.db.Callback().Create().Before("gorm:create").Register("test:fail_documents_create", fail))
	require.NoError(t, e.db.Callback().Update().Before("gorm:update").Register("test:fail_documents_update", fail))
}

func (e *testEnv) upload(t *testing.T, uploader string, public bool, name, body string) {
	t.Helper()
	_, err := e.document.Upload(context.Background(), UploadInput{
		Uploader: uploader,
		IsPublic: public,
		Files:    []UploadFile{{Filename: name, Size: int64(len(body)), Body: strings.NewReader(body)}},
	})
	require.NoError(t, err)
}
