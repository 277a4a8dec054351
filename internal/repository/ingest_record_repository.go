package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"docchat/internal/model"
)

type IngestRecordRepository struct {
	db *gorm.DB
}

func NewIngestRecordRepository(db *gorm.DB) *IngestRecordRepository {
	return &IngestRecordRepository{db: db}
}

func (r *IngestRecordRepository) Create(ctx context.Context, record *model.IngestRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("create ingest record failed: %w", err)
	}
	return nil
}

func (r *IngestRecordRepository) List(ctx context.Context) ([]model.IngestRecord, error) {
	var list []model.IngestRecord
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list ingest records failed: %w", err)
	}
	return list, nil
}

func (r *IngestRecordRepository) ListByTenant(ctx context.Context, tenant string) ([]model.IngestRecord, error) {
	var list []model.IngestRecord
	if err := r.db.WithContext(ctx).Where("ingested_by = ?", tenant).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list ingest records by tenant failed: %w", err)
	}
	return list, nil
}

func (r *IngestRecordRepository) DeleteByTenant(ctx context.Context, tenant string) error {
	if err := r.db.WithContext(ctx).Where("ingested_by = ?", tenant).Delete(&model.IngestRecord{}).Error; err != nil {
		return fmt.Errorf("delete ingest records by tenant failed: %w", err)
	}
	return nil
}

func (r *IngestRecordRepository) DeleteByFilename(ctx context.Context, filename string) error {
	if err := r.db.WithContext(ctx).Where("filename = ?", filename).Delete(&model.IngestRecord{}).Error; err != nil {
		return fmt.Errorf("delete ingest records by filename failed: %w", err)
	}
	return nil
}

func (r *IngestRecordRepository) DeleteByFilenameAndTenant(ctx context.Context, filename, tenant string) error {
	if err := r.db.WithContext(ctx).Where("filename = ? AND ingested_by = ?", filename, tenant).Delete(&model.IngestRecord{}).Error; err != nil {
		return fmt.Errorf("delete ingest records failed: %w", err)
	}
	return nil
}

func (r *IngestRecordRepository) DeleteAll(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Where("1 = 1").Delete(&model.IngestRecord{}).Error; err != nil {
		return fmt.Errorf("delete all ingest records failed: %w", err)
	}
	return nil
}
