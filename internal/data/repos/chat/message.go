package chat

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/incuisenix/backend/internal/domain"
	"github.com/incuisenix/backend/internal/pkg/dbctx"
	"github.com/incuisenix/backend/internal/pkg/logger"
)

type MessageRepo interface {
	Create(dbc dbctx.Context, row *domain.ConversationMessage) (*domain.ConversationMessage, error)
	// ListByConversation returns the full exchange history oldest-first.
	ListByConversation(dbc dbctx.Context, conversationID uuid.UUID) ([]*domain.ConversationMessage, error)
	// ListRecent returns at most limit of the latest messages, still
	// ordered oldest-first so they can be rendered as a prompt directly.
	ListRecent(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*domain.ConversationMessage, error)
	CountByConversation(dbc dbctx.Context, conversationID uuid.UUID) (int64, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, log *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: log.With("repo", "MessageRepo")}
}

func (r *messageRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *messageRepo) Create(dbc dbctx.Context, row *domain.ConversationMessage) (*domain.ConversationMessage, error) {
	if row == nil {
		return nil, fmt.Errorf("missing message")
	}
	if row.ConversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	if err := r.conn(dbc).WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *messageRepo) ListByConversation(dbc dbctx.Context, conversationID uuid.UUID) ([]*domain.ConversationMessage, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	var out []*domain.ConversationMessage
	if err := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&domain.ConversationMessage{}).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *messageRepo) ListRecent(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*domain.ConversationMessage, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	if limit <= 0 {
		return r.ListByConversation(dbc, conversationID)
	}
	var rows []*domain.ConversationMessage
	if err := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&domain.ConversationMessage{}).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	// Flip back to chronological order.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

func (r *messageRepo) CountByConversation(dbc dbctx.Context, conversationID uuid.UUID) (int64, error) {
	var n int64
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&domain.ConversationMessage{}).
		Where("conversation_id = ?", conversationID).
		Count(&n).Error
	return n, err
}
