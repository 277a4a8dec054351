package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docchat/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Save inserts doc, or refreshes the existing row with the same (owner, filename).
func (r *DocumentRepository) Save(ctx context.Context, doc *model.Document) error {
	existing, err := r.GetByOwnerAndFilename(ctx, doc.Owner, doc.Filename)
	if err != nil {
		return err
	}
	if existing != nil {
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
	}
	if err := r.db.WithContext(ctx).Save(doc).Error; err != nil {
		return fmt.Errorf("save document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) List(ctx context.Context) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, owner string) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.WithContext(ctx).Where("owner = ?", owner).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents by owner failed: %w", err)
	}
	return list, nil
}

// ListByUploader returns what a user uploaded, including their public uploads.
func (r *DocumentRepository) ListByUploader(ctx context.Context, uploader string) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.WithContext(ctx).Where("uploaded_by = ?", uploader).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents by uploader failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) GetByOwnerAndFilename(ctx context.Context, owner, filename string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("owner = ? AND filename = ?", owner, filename).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

// FindByUploaderAndFilename prefers the uploader's private copy over a public one.
func (r *DocumentRepository) FindByUploaderAndFilename(ctx context.Context, uploader, filename string) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).
		Where("uploaded_by = ? AND filename = ?", uploader, filename).
		Order("is_public ASC").
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

// FindByFilename prefers the public copy when several owners share a filename.
func (r *DocumentRepository) FindByFilename(ctx context.Context, filename string) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).
		Where("filename = ?", filename).
		Order("is_public DESC").Order("id ASC").
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) DeleteByID(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&model.Document{}, id).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}
