package materials

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/incuisenix/backend/internal/domain"
	"github.com/incuisenix/backend/internal/pkg/dbctx"
	"github.com/incuisenix/backend/internal/pkg/logger"
)

type NoteRepo interface {
	Create(dbc dbctx.Context, rows []*domain.Note) ([]*domain.Note, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Note, error)
	// ListByUserVideo returns the user's notes for a video ordered by the
	// moment in the video they annotate.
	ListByUserVideo(dbc dbctx.Context, userID, videoID uuid.UUID) ([]*domain.Note, error)
	ListUsersWithNotes(dbc dbctx.Context, videoID uuid.UUID) ([]uuid.UUID, error)
	Update(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
	// SetIndexStatus bulk-updates the per-note index status for one
	// (user, video) pair.
	SetIndexStatus(dbc dbctx.Context, userID, videoID uuid.UUID, status string) error
}

type noteRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNoteRepo(db *gorm.DB, log *logger.Logger) NoteRepo {
	return &noteRepo{db: db, log: log.With("repo", "NoteRepo")}
}

func (r *noteRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *noteRepo) Create(dbc dbctx.Context, rows []*domain.Note) ([]*domain.Note, error) {
	if len(rows) == 0 {
		return []*domain.Note{}, nil
	}
	if err := r.conn(dbc).WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *noteRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Note, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	var out domain.Note
	if err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *noteRepo) ListByUserVideo(dbc dbctx.Context, userID, videoID uuid.UUID) ([]*domain.Note, error) {
	if userID == uuid.Nil || videoID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id or video_id")
	}
	var out []*domain.Note
	if err := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&domain.Note{}).
		Where("user_id = ? AND video_id = ?", userID, videoID).
		Order("video_timestamp ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *noteRepo) ListUsersWithNotes(dbc dbctx.Context, videoID uuid.UUID) ([]uuid.UUID, error) {
	if videoID == uuid.Nil {
		return nil, fmt.Errorf("missing video_id")
	}
	var out []uuid.UUID
	if err := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&domain.Note{}).
		Where("video_id = ?", videoID).
		Distinct("user_id").
		Pluck("user_id", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *noteRepo) Update(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return r.conn(dbc).WithContext(dbc.Ctx).
		Model(&domain.Note{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *noteRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	return r.conn(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&domain.Note{}).Error
}

func (r *noteRepo) SetIndexStatus(dbc dbctx.Context, userID, videoID uuid.UUID, status string) error {
	if userID == uuid.Nil || videoID == uuid.Nil {
		return fmt.Errorf("missing user_id or video_id")
	}
	return r.conn(dbc).WithContext(dbc.Ctx).
		Model(&domain.Note{}).
		Where("user_id = ? AND video_id = ?", userID, videoID).
		Updates(map[string]interface{}{"index_status": status, "updated_at": time.Now().UTC()}).Error
}
