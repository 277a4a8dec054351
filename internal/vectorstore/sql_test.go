package vectorstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/platform/database"
)

func newSQLStore(t *testing.T) Store {
	t.Helper()
	db, err := database.New(context.Background(), "sqlite", filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	s, err := NewSQL(db)
	require.NoError(t, err)
	return s
}

func seedChunks(t *testing.T, s Store) {
	t.Helper()
	require.NoError(t, s.AddChunks(context.Background(), []Chunk{
		{DocumentID: 1, Source: "alice.pdf", Tenant: "alice", Content: "alice secret plan", Embedding: []float32{1, 0, 0}},
		{DocumentID: 2, Source: "bob.pdf", Tenant: "bob", Content: "bob secret plan", Embedding: []float32{1, 0, 0}},
		{DocumentID: 3, Source: "handbook.pdf", Tenant: "public", IsPublic: true, Content: "company handbook", Embedding: []float32{0.9, 0.1, 0}},
		{DocumentID: 4, Source: "notes.pdf", Tenant: "alice", IsPublic: true, Content: "alice shared notes", Embedding: []float32{0, 1, 0}},
	}))
}

func TestSQLStore_SearchChunksHonoursTenant(t *testing.T) {
	ctx := context.Background()
	s := newSQLStore(t)
	seedChunks(t, s)

	got, err := s.SearchChunks(ctx, "bob", []float32{1, 0, 0}, 10)
	require.NoError(t, err)

	var sources []string
	for _, m := range got {
		sources = append(sources, m.Source)
		assert.True(t, m.Tenant == "bob" || m.IsPublic, "chunk %s leaked to bob", m.ID)
	}
	assert.ElementsMatch(t, []string{"bob.pdf", "handbook.pdf", "notes.pdf"}, sources)
	assert.Equal(t, "bob.pdf", got[0].Source)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
}

func TestSQLStore_SearchChunksLimit(t *testing.T) {
	s := newSQLStore(t)
	seedChunks(t, s)

	got, err := s.SearchChunks(context.Background(), "alice", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alice.pdf", got[0].Source)
	assert.Equal(t, "handbook.pdf", got[1].Source)
}

func TestSQLStore_RequiresTenant(t *testing.T) {
	ctx := context.Background()
	s := newSQLStore(t)

	_, err := s.SearchChunks(ctx, "", []float32{1}, 1)
	assert.ErrorIs(t, err, ErrTenantRequired)
	_, err = s.ListSources(ctx, "")
	assert.ErrorIs(t, err, ErrTenantRequired)
	_, err = s.ListTurns(ctx, "")
	assert.ErrorIs(t, err, ErrTenantRequired)
	assert.ErrorIs(t, s.AddChunks(ctx, []Chunk{{Content: "x"}}), ErrTenantRequired)
	assert.ErrorIs(t, s.AddTurn(ctx, Turn{Content: "x"}, 10), ErrTenantRequired)
}

func TestSQLStore_ListAndDeleteSources(t *testing.T) {
	ctx := context.Background()
	s := newSQLStore(t)
	seedChunks(t, s)

	mine, err := s.ListSources(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []SourceInfo{
		{Source: "bob.pdf", Tenant: "bob"},
		{Source: "handbook.pdf", Tenant: "public", IsPublic: true},
		{Source: "notes.pdf", Tenant: "alice", IsPublic: true},
	}, mine)

	assert.ErrorIs(t, s.DeleteChunks(ctx, ChunkFilter{}), ErrEmptyFilter)

	require.NoError(t, s.DeleteChunks(ctx, ChunkFilter{Source: "notes.pdf", Tenant: "bob"}))
	all, err := s.ListAllSources(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4, "filter on another tenant removes nothing")

	require.NoError(t, s.DeleteChunks(ctx, ChunkFilter{Tenant: "alice"}))
	all, err = s.ListAllSources(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.DeleteChunks(ctx, ChunkFilter{DocumentID: 3}))
	require.NoError(t, s.DeleteAllChunks(ctx))
	all, err = s.ListAllSources(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLStore_HistoryRetention(t *testing.T) {
	ctx := context.Background()
	s := newSQLStore(t)

	for i := 0; i < 15; i++ {
		require.NoError(t, s.AddTurn(ctx, Turn{Tenant: "alice", Content: fmt.Sprintf("turn %d", i), Embedding: []float32{float32(i), 1}}, 10))
	}
	require.NoError(t, s.AddTurn(ctx, Turn{Tenant: "bob", Content: "bob turn", Embedding: []float32{1, 1}}, 10))

	turns, err := s.ListTurns(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, turns, 10)
	for i, turn := range turns {
		assert.Equal(t, fmt.Sprintf("turn %d", i+5), turn.Content)
	}

	bob, err := s.ListTurns(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, bob, 1)
}

func TestSQLStore_SearchAndDeleteTurns(t *testing.T) {
	ctx := context.Background()
	s := newSQLStore(t)

	require.NoError(t, s.AddTurn(ctx, Turn{Tenant: "alice", Content: "about cats", Embedding: []float32{1, 0}}, 10))
	require.NoError(t, s.AddTurn(ctx, Turn{Tenant: "alice", Content: "about dogs", Embedding: []float32{0, 1}}, 10))
	require.NoError(t, s.AddTurn(ctx, Turn{Tenant: "bob", Content: "bob cats", Embedding: []float32{1, 0}}, 10))

	got, err := s.SearchTurns(ctx, "alice", []float32{1, 0.1}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "about cats", got[0].Content)

	require.NoError(t, s.DeleteTurns(ctx, "alice"))
	left, err := s.ListTurns(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, left)

	require.NoError(t, s.DeleteAllTurns(ctx))
	left, err = s.ListTurns(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}
