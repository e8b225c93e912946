package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/incuisenix/backend/internal/domain"
	"github.com/incuisenix/backend/internal/pkg/dbctx"
	"github.com/incuisenix/backend/internal/pkg/logger"
)

type ConversationRepo interface {
	Create(dbc dbctx.Context, row *domain.Conversation) (*domain.Conversation, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Conversation, error)
	// GetLatest returns the most recently created conversation for a
	// (user, video) pair, or gorm.ErrRecordNotFound.
	GetLatest(dbc dbctx.Context, userID, videoID uuid.UUID) (*domain.Conversation, error)
	// GetOrCreateLatest resumes the latest conversation, creating a fresh
	// one only when none exists yet.
	GetOrCreateLatest(dbc dbctx.Context, userID, videoID, courseID uuid.UUID) (*domain.Conversation, error)
	ListByUserVideo(dbc dbctx.Context, userID, videoID uuid.UUID) ([]*domain.Conversation, error)
	// ListByUser returns all of a user's conversations across videos,
	// newest first.
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*domain.Conversation, error)
	SetTitle(dbc dbctx.Context, id uuid.UUID, title string) error
	Touch(dbc dbctx.Context, id uuid.UUID) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type conversationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationRepo(db *gorm.DB, log *logger.Logger) ConversationRepo {
	return &conversationRepo{db: db, log: log.With("repo", "ConversationRepo")}
}

func (r *conversationRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *conversationRepo) Create(dbc dbctx.Context, row *domain.Conversation) (*domain.Conversation, error) {
	if row == nil {
		return nil, fmt.Errorf("missing conversation")
	}
	if row.Title == "" {
		row.Title = domain.DefaultConversationTitle
	}
	if err := r.conn(dbc).WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *conversationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Conversation, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	var out domain.Conversation
	if err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *conversationRepo) GetLatest(dbc dbctx.Context, userID, videoID uuid.UUID) (*domain.Conversation, error) {
	if userID == uuid.Nil || videoID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id or video_id")
	}
	var out domain.Conversation
	if err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("user_id = ? AND video_id = ?", userID, videoID).
		Order("created_at DESC").
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *conversationRepo) GetOrCreateLatest(dbc dbctx.Context, userID, videoID, courseID uuid.UUID) (*domain.Conversation, error) {
	existing, err := r.GetLatest(dbc, userID, videoID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return r.Create(dbc, &domain.Conversation{
		UserID:   userID,
		VideoID:  videoID,
		CourseID: courseID,
		Title:    domain.DefaultConversationTitle,
	})
}

func (r *conversationRepo) ListByUserVideo(dbc dbctx.Context, userID, videoID uuid.UUID) ([]*domain.Conversation, error) {
	if userID == uuid.Nil || videoID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id or video_id")
	}
	var out []*domain.Conversation
	if err := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&domain.Conversation{}).
		Where("user_id = ? AND video_id = ?", userID, videoID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *conversationRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*domain.Conversation, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	var out []*domain.Conversation
	if err := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&domain.Conversation{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *conversationRepo) SetTitle(dbc dbctx.Context, id uuid.UUID, title string) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if title == "" {
		return fmt.Errorf("missing title")
	}
	return r.conn(dbc).WithContext(dbc.Ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"title": title, "updated_at": time.Now().UTC()}).Error
}

func (r *conversationRepo) Touch(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	return r.conn(dbc).WithContext(dbc.Ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Update("updated_at", time.Now().UTC()).Error
}

func (r *conversationRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	return r.conn(dbc).WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&domain.ConversationMessage{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.Conversation{}).Error
	})
}
