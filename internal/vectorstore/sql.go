package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// chunkRow keeps the embedding as a JSON array so any gorm dialect can hold it.
type chunkRow struct {
	ID         string `gorm:"primaryKey;size:36"`
	DocumentID uint   `gorm:"index"`
	Source     string `gorm:"size:255;index"`
	Tenant     string `gorm:"size:64;index"`
	IsPublic   bool   `gorm:"index"`
	Content    string `gorm:"type:text;not null"`
	Embedding  string `gorm:"type:text"`
	CreatedAt  time.Time
}

func (chunkRow) TableName() string { return "doc_chunks" }

type turnRow struct {
	ID        uint   `gorm:"primaryKey"`
	UID       string `gorm:"size:36;uniqueIndex"`
	Tenant    string `gorm:"size:64;index"`
	Content   string `gorm:"type:text;not null"`
	Embedding string `gorm:"type:text"`
	CreatedAt time.Time
}

func (turnRow) TableName() string { return "chat_turns" }

type sqlStore struct {
	db *gorm.DB
}

// NewSQL keeps vectors in the relational store and ranks them in process.
func NewSQL(db *gorm.DB) (Store, error) {
	if err := db.AutoMigrate(&chunkRow{}, &turnRow{}); err != nil {
		return nil, fmt.Errorf("migrate vector tables failed: %w", err)
	}
	return &sqlStore{db: db}, nil
}

func encodeEmbedding(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeEmbedding(s string) []float32 {
	if s == "" {
		return nil
	}
	var v []float32
	_ = json.Unmarshal([]byte(s), &v)
	return v
}

// visible is the only tenant predicate for chunk reads in this backend.
func visible(db *gorm.DB, tenant string) *gorm.DB {
	return db.Where("tenant = ? OR is_public = ?", tenant, true)
}

func (s *sqlStore) AddChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	rows := make([]chunkRow, len(chunks))
	for i, c := range chunks {
		if c.Tenant == "" {
			return ErrTenantRequired
		}
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		rows[i] = chunkRow{
			ID:         id,
			DocumentID: c.DocumentID,
			Source:     c.Source,
			Tenant:     c.Tenant,
			IsPublic:   c.IsPublic,
			Content:    c.Content,
			Embedding:  encodeEmbedding(c.Embedding),
		}
	}
	if err := s.db.WithContext(ctx).CreateInBatches(rows, 100).Error; err != nil {
		return fmt.Errorf("insert chunks failed: %w", err)
	}
	return nil
}

func (s *sqlStore) SearchChunks(ctx context.Context, tenant string, query []float32, k int) ([]Match, error) {
	if tenant == "" {
		return nil, ErrTenantRequired
	}
	var rows []chunkRow
	if err := visible(s.db.WithContext(ctx), tenant).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load chunks failed: %w", err)
	}
	matches := make([]Match, 0, len(rows))
	for _, r := range rows {
		matches = append(matches, Match{
			Chunk: Chunk{
				ID:         r.ID,
				DocumentID: r.DocumentID,
				Source:     r.Source,
				Tenant:     r.Tenant,
				IsPublic:   r.IsPublic,
				Content:    r.Content,
			},
			Similarity: cosineSimilarity(query, decodeEmbedding(r.Embedding)),
		})
	}
	return topMatches(matches, k), nil
}

func (s *sqlStore) ListSources(ctx context.Context, tenant string) ([]SourceInfo, error) {
	if tenant == "" {
		return nil, ErrTenantRequired
	}
	return s.listSources(visible(s.db.WithContext(ctx), tenant))
}

func (s *sqlStore) ListAllSources(ctx context.Context) ([]SourceInfo, error) {
	return s.listSources(s.db.WithContext(ctx))
}

func (s *sqlStore) listSources(q *gorm.DB) ([]SourceInfo, error) {
	var out []SourceInfo
	err := q.Model(&chunkRow{}).
		Distinct("source", "tenant", "is_public").
		Order("source ASC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list sources failed: %w", err)
	}
	return dedupeSources(out), nil
}

func (s *sqlStore) DeleteChunks(ctx context.Context, filter ChunkFilter) error {
	if filter.empty() {
		return ErrEmptyFilter
	}
	q := s.db.WithContext(ctx)
	if filter.DocumentID != 0 {
		q = q.Where("document_id = ?", filter.DocumentID)
	}
	if filter.Source != "" {
		q = q.Where("source = ?", filter.Source)
	}
	if filter.Tenant != "" {
		q = q.Where("tenant = ?", filter.Tenant)
	}
	if err := q.Delete(&chunkRow{}).Error; err != nil {
		return fmt.Errorf("delete chunks failed: %w", err)
	}
	return nil
}

func (s *sqlStore) DeleteAllChunks(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&chunkRow{}).Error; err != nil {
		return fmt.Errorf("delete all chunks failed: %w", err)
	}
	return nil
}

func (s *sqlStore) AddTurn(ctx context.Context, turn Turn, limit int) error {
	if turn.Tenant == "" {
		return ErrTenantRequired
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if limit > 0 {
			var count int64
			if err := tx.Model(&turnRow{}).Where("tenant = ?", turn.Tenant).Count(&count).Error; err != nil {
				return fmt.Errorf("count turns failed: %w", err)
			}
			if excess := int(count) - (limit - 1); excess > 0 {
				var oldest []uint
				if err := tx.Model(&turnRow{}).
					Where("tenant = ?", turn.Tenant).
					Order("id ASC").
					Limit(excess).
					Pluck("id", &oldest).Error; err != nil {
					return fmt.Errorf("find oldest turns failed: %w", err)
				}
				if err := tx.Where("id IN ?", oldest).Delete(&turnRow{}).Error; err != nil {
					return fmt.Errorf("evict turns failed: %w", err)
				}
			}
		}

		id := turn.ID
		if id == "" {
			id = uuid.NewString()
		}
		row := &turnRow{
			UID:       id,
			Tenant:    turn.Tenant,
			Content:   turn.Content,
			Embedding: encodeEmbedding(turn.Embedding),
		}
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("insert turn failed: %w", err)
		}
		return nil
	})
}

func (s *sqlStore) SearchTurns(ctx context.Context, tenant string, query []float32, k int) ([]Turn, error) {
	rows, err := s.turnRows(ctx, tenant)
	if err != nil {
		return nil, err
	}
	turns := make([]Turn, 0, len(rows))
	for _, r := range rows {
		t := r.toTurn()
		t.Similarity = cosineSimilarity(query, decodeEmbedding(r.Embedding))
		turns = append(turns, t)
	}
	return topTurns(turns, k), nil
}

func (s *sqlStore) ListTurns(ctx context.Context, tenant string) ([]Turn, error) {
	rows, err := s.turnRows(ctx, tenant)
	if err != nil {
		return nil, err
	}
	turns := make([]Turn, len(rows))
	for i, r := range rows {
		turns[i] = r.toTurn()
	}
	return turns, nil
}

func (s *sqlStore) turnRows(ctx context.Context, tenant string) ([]turnRow, error) {
	if tenant == "" {
		return nil, ErrTenantRequired
	}
	var rows []turnRow
	if err := s.db.WithContext(ctx).Where("tenant = ?", tenant).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load turns failed: %w", err)
	}
	return rows, nil
}

func (r turnRow) toTurn() Turn {
	return Turn{ID: r.UID, Tenant: r.Tenant, Content: r.Content, CreatedAt: r.CreatedAt}
}

func (s *sqlStore) DeleteTurns(ctx context.Context, tenant string) error {
	if tenant == "" {
		return ErrTenantRequired
	}
	if err := s.db.WithContext(ctx).Where("tenant = ?", tenant).Delete(&turnRow{}).Error; err != nil {
		return fmt.Errorf("delete turns failed: %w", err)
	}
	return nil
}

func (s *sqlStore) DeleteAllTurns(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&turnRow{}).Error; err != nil {
		return fmt.Errorf("delete all turns failed: %w", err)
	}
	return nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close leaves the shared *gorm.DB open; its owner closes it.
func (s *sqlStore) Close() error { return nil }
