package vectorstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPGVector(t *testing.T) (*pgvectorStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &pgvectorStore{db: db, dimension: 3}, mock
}

func TestPGVector_MigrateCreatesChunkAndTurnTables(t *testing.T) {
	s, mock := newMockPGVector(t)

	mock.ExpectExec(`CREATE EXTENSION IF NOT EXISTS vector`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS doc_chunks \((.+)embedding vector\(3\)`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS idx_doc_chunks_tenant ON doc_chunks`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS idx_doc_chunks_source ON doc_chunks`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS chat_turns \((.+)embedding vector\(3\)`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS idx_chat_turns_tenant ON chat_turns`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVector_SearchChunksFiltersByTenant(t *testing.T) {
	s, mock := newMockPGVector(t)

	rows := sqlmock.NewRows([]string{"id", "document_id", "source", "tenant", "is_public", "content", "similarity"}).
		AddRow("c1", int64(7), "report.pdf", "alice", false, "quarterly numbers", 0.91).
		AddRow("c2", int64(9), "handbook.pdf", "public", true, "company rules", 0.55)

	mock.ExpectQuery(`SELECT (.+) FROM doc_chunks WHERE tenant = \$2 OR is_public ORDER BY embedding <=> \$1 LIMIT \$3`).
		WithArgs(sqlmock.AnyArg(), "alice", 5).
		WillReturnRows(rows)

	got, err := s.SearchChunks(context.Background(), "alice", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint(7), got[0].DocumentID)
	assert.Equal(t, "report.pdf", got[0].Source)
	assert.InDelta(t, 0.91, got[0].Similarity, 1e-9)
	assert.True(t, got[1].IsPublic)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVector_RequiresTenantWithoutQuerying(t *testing.T) {
	s, mock := newMockPGVector(t)
	ctx := context.Background()

	_, err := s.SearchChunks(ctx, "", []float32{1}, 5)
	assert.ErrorIs(t, err, ErrTenantRequired)
	_, err = s.SearchTurns(ctx, "", []float32{1}, 3)
	assert.ErrorIs(t, err, ErrTenantRequired)
	assert.ErrorIs(t, s.DeleteTurns(ctx, ""), ErrTenantRequired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVector_AddTurnEvictsOldest(t *testing.T) {
	s, mock := newMockPGVector(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM chat_turns WHERE tenant = \$1`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	mock.ExpectExec(`DELETE FROM chat_turns WHERE id IN`).
		WithArgs("alice", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO chat_turns`).
		WithArgs(sqlmock.AnyArg(), "alice", "User: hi\nAssistant: hello", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectCommit()

	err := s.AddTurn(context.Background(), Turn{Tenant: "alice", Content: "User: hi\nAssistant: hello", Embedding: []float32{1, 0, 0}}, 10)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVector_AddTurnBelowCap(t *testing.T) {
	s, mock := newMockPGVector(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM chat_turns`).
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectExec(`INSERT INTO chat_turns`).
		WillReturnResult(sqlmock.NewResult(4, 1))
	mock.ExpectCommit()

	require.NoError(t, s.AddTurn(context.Background(), Turn{Tenant: "bob", Content: "x", Embedding: []float32{0, 1, 0}}, 10))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVector_ListTurnsOldestFirst(t *testing.T) {
	s, mock := newMockPGVector(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT (.+) FROM chat_turns WHERE tenant = \$1 ORDER BY id ASC`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "tenant", "content", "created_at", "similarity"}).
			AddRow("u1", "alice", "first", now.Add(-time.Minute), 0.0).
			AddRow("u2", "alice", "second", now, 0.0))

	turns, err := s.ListTurns(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "first", turns[0].Content)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVector_DeleteChunksBuildsFilter(t *testing.T) {
	s, mock := newMockPGVector(t)

	mock.ExpectExec(`DELETE FROM doc_chunks WHERE TRUE AND source = \$1 AND tenant = \$2`).
		WithArgs("report.pdf", "alice").
		WillReturnResult(sqlmock.NewResult(0, 4))

	require.NoError(t, s.DeleteChunks(context.Background(), ChunkFilter{Source: "report.pdf", Tenant: "alice"}))
	assert.ErrorIs(t, s.DeleteChunks(context.Background(), ChunkFilter{}), ErrEmptyFilter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVector_ListSources(t *testing.T) {
	s, mock := newMockPGVector(t)

	mock.ExpectQuery(`SELECT DISTINCT source, tenant, is_public FROM doc_chunks WHERE tenant = \$1 OR is_public`).
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows([]string{"source", "tenant", "is_public"}).
			AddRow("b.pdf", "bob", false).
			AddRow("a.pdf", "public", true))

	got, err := s.ListSources(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, []SourceInfo{
		{Source: "a.pdf", Tenant: "public", IsPublic: true},
		{Source: "b.pdf", Tenant: "bob"},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
