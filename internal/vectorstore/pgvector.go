package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"
)

type pgvectorStore struct {
	db        *sql.DB
	dimension int
}

// NewPGVector opens a pgx connection and lets Postgres rank by cosine distance.
func NewPGVector(ctx context.Context, dsn string, dimension int) (Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pgvector dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open failed: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping pgvector failed: %w", err)
	}

	s := &pgvectorStore{db: db, dimension: dimension}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *pgvectorStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS doc_chunks (
			id UUID PRIMARY KEY,
			document_id BIGINT NOT NULL,
			source TEXT NOT NULL,
			tenant TEXT NOT NULL,
			is_public BOOLEAN NOT NULL DEFAULT FALSE,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dimension),
		`CREATE INDEX IF NOT EXISTS idx_doc_chunks_tenant ON doc_chunks (tenant)`,
		`CREATE INDEX IF NOT EXISTS idx_doc_chunks_source ON doc_chunks (source)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chat_turns (
			id BIGSERIAL PRIMARY KEY,
			uid UUID NOT NULL UNIQUE,
			tenant TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dimension),
		`CREATE INDEX IF NOT EXISTS idx_chat_turns_tenant ON chat_turns (tenant)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate pgvector failed: %w", err)
		}
	}
	return nil
}

func (s *pgvectorStore) AddChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx failed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO doc_chunks
		(id, document_id, source, tenant, is_public, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("prepare insert failed: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if c.Tenant == "" {
			return ErrTenantRequired
		}
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, id, int64(c.DocumentID), c.Source, c.Tenant, c.IsPublic, c.Content, pgvector.NewVector(c.Embedding)); err != nil {
			return fmt.Errorf("insert chunk failed: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunks failed: %w", err)
	}
	return nil
}

func (s *pgvectorStore) SearchChunks(ctx context.Context, tenant string, query []float32, k int) ([]Match, error) {
	if tenant == "" {
		return nil, ErrTenantRequired
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, document_id, source, tenant, is_public, content,
			1 - (embedding <=> $1) AS similarity
		FROM doc_chunks
		WHERE tenant = $2 OR is_public
		ORDER BY embedding <=> $1
		LIMIT $3`, pgvector.NewVector(query), tenant, k)
	if err != nil {
		return nil, fmt.Errorf("search chunks failed: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var (
			m     Match
			docID int64
		)
		if err := rows.Scan(&m.ID, &docID, &m.Source, &m.Tenant, &m.IsPublic, &m.Content, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan chunk failed: %w", err)
		}
		m.DocumentID = uint(docID)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *pgvectorStore) ListSources(ctx context.Context, tenant string) ([]SourceInfo, error) {
	if tenant == "" {
		return nil, ErrTenantRequired
	}
	return s.listSources(ctx, `SELECT DISTINCT source, tenant, is_public FROM doc_chunks
		WHERE tenant = $1 OR is_public ORDER BY source`, tenant)
}

func (s *pgvectorStore) ListAllSources(ctx context.Context) ([]SourceInfo, error) {
	return s.listSources(ctx, `SELECT DISTINCT source, tenant, is_public FROM doc_chunks ORDER BY source`)
}

func (s *pgvectorStore) listSources(ctx context.Context, query string, args ...any) ([]SourceInfo, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sources failed: %w", err)
	}
	defer rows.Close()

	var out []SourceInfo
	for rows.Next() {
		var si SourceInfo
		if err := rows.Scan(&si.Source, &si.Tenant, &si.IsPublic); err != nil {
			return nil, fmt.Errorf("scan source failed: %w", err)
		}
		out = append(out, si)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return dedupeSources(out), nil
}

func (s *pgvectorStore) DeleteChunks(ctx context.Context, filter ChunkFilter) error {
	if filter.empty() {
		return ErrEmptyFilter
	}
	query := `DELETE FROM doc_chunks WHERE TRUE`
	var args []any
	if filter.DocumentID != 0 {
		args = append(args, int64(filter.DocumentID))
		query += fmt.Sprintf(" AND document_id = $%d", len(args))
	}
	if filter.Source != "" {
		args = append(args, filter.Source)
		query += fmt.Sprintf(" AND source = $%d", len(args))
	}
	if filter.Tenant != "" {
		args = append(args, filter.Tenant)
		query += fmt.Sprintf(" AND tenant = $%d", len(args))
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete chunks failed: %w", err)
	}
	return nil
}

func (s *pgvectorStore) DeleteAllChunks(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM doc_chunks`); err != nil {
		return fmt.Errorf("delete all chunks failed: %w", err)
	}
	return nil
}

func (s *pgvectorStore) AddTurn(ctx context.Context, turn Turn, limit int) error {
	if turn.Tenant == "" {
		return ErrTenantRequired
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx failed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if limit > 0 {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_turns WHERE tenant = $1`, turn.Tenant).Scan(&count); err != nil {
			return fmt.Errorf("count turns failed: %w", err)
		}
		if excess := count - (limit - 1); excess > 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM chat_turns WHERE id IN (
				SELECT id FROM chat_turns WHERE tenant = $1 ORDER BY id ASC LIMIT $2)`, turn.Tenant, excess); err != nil {
				return fmt.Errorf("evict turns failed: %w", err)
			}
		}
	}

	id := turn.ID
	if id == "" {
		id = uuid.NewString()
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO chat_turns (uid, tenant, content, embedding) VALUES ($1, $2, $3, $4)`,
		id, turn.Tenant, turn.Content, pgvector.NewVector(turn.Embedding)); err != nil {
		return fmt.Errorf("insert turn failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit turn failed: %w", err)
	}
	return nil
}

func (s *pgvectorStore) SearchTurns(ctx context.Context, tenant string, query []float32, k int) ([]Turn, error) {
	if tenant == "" {
		return nil, ErrTenantRequired
	}
	return s.queryTurns(ctx, `SELECT uid, tenant, content, created_at, 1 - (embedding <=> $1) AS similarity
		FROM chat_turns WHERE tenant = $2
		ORDER BY embedding <=> $1 LIMIT $3`, pgvector.NewVector(query), tenant, k)
}

func (s *pgvectorStore) ListTurns(ctx context.Context, tenant string) ([]Turn, error) {
	if tenant == "" {
		return nil, ErrTenantRequired
	}
	return s.queryTurns(ctx, `SELECT uid, tenant, content, created_at, 0 AS similarity
		FROM chat_turns WHERE tenant = $1 ORDER BY id ASC`, tenant)
}

func (s *pgvectorStore) queryTurns(ctx context.Context, query string, args ...any) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query turns failed: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.Tenant, &t.Content, &t.CreatedAt, &t.Similarity); err != nil {
			return nil, fmt.Errorf("scan turn failed: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *pgvectorStore) DeleteTurns(ctx context.Context, tenant string) error {
	if tenant == "" {
		return ErrTenantRequired
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_turns WHERE tenant = $1`, tenant); err != nil {
		return fmt.Errorf("delete turns failed: %w", err)
	}
	return nil
}

func (s *pgvectorStore) DeleteAllTurns(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_turns`); err != nil {
		return fmt.Errorf("delete all turns failed: %w", err)
	}
	return nil
}

func (s *pgvectorStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *pgvectorStore) Close() error {
	return s.db.Close()
}
