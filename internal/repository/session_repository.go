package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docchat/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("create session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) ListByUserID(ctx context.Context, userID uint) ([]model.Session, error) {
	var sessions []model.Session
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("updated_at DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) GetByIDAndUserID(ctx context.Context, sessionID, userID uint) (*model.Session, error) {
	var session model.Session
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) Touch(ctx context.Context, sessionID uint) error {
	if err := r.db.WithContext(ctx).Model(&model.Session{}).Where("id = ?", sessionID).Update("updated_at", gorm.Expr("CURRENT_TIMESTAMP")).Error; err != nil {
		return fmt.Errorf("touch session failed: %w", err)
	}
	return nil
}

// DeleteByIDAndUserID removes the session and its messages in one transaction.
func (r *SessionRepository) DeleteByIDAndUserID(ctx context.Context, sessionID, userID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&model.Message{}).Error; err != nil {
			return fmt.Errorf("delete session messages failed: %w", err)
		}
		if err := tx.Where("id = ? AND user_id = ?", sessionID, userID).Delete(&model.Session{}).Error; err != nil {
			return fmt.Errorf("delete session failed: %w", err)
		}
		return nil
	})
}

// DeleteByUserID removes every session and message of a user.
func (r *SessionRepository) DeleteByUserID(ctx context.Context, userID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&model.Message{}).Error; err != nil {
			return fmt.Errorf("delete user messages failed: %w", err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&model.Session{}).Error; err != nil {
			return fmt.Errorf("delete user sessions failed: %w", err)
		}
		return nil
	})
}
