package materials

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/incuisenix/backend/internal/domain"
	"github.com/incuisenix/backend/internal/pkg/dbctx"
	"github.com/incuisenix/backend/internal/pkg/logger"
)

type VideoRepo interface {
	Create(dbc dbctx.Context, rows []*domain.Video) ([]*domain.Video, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Video, error)
	// GetByPlatformID resolves a video through either hosting namespace.
	GetByPlatformID(dbc dbctx.Context, platformID string) (*domain.Video, error)
	ListAll(dbc dbctx.Context) ([]*domain.Video, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*domain.Video, error)
	UpdateStatusFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	AppendIngestLog(dbc dbctx.Context, id uuid.UUID, lines []string) error
}

type videoRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVideoRepo(db *gorm.DB, log *logger.Logger) VideoRepo {
	return &videoRepo{db: db, log: log.With("repo", "VideoRepo")}
}

func (r *videoRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *videoRepo) Create(dbc dbctx.Context, rows []*domain.Video) ([]*domain.Video, error) {
	if len(rows) == 0 {
		return []*domain.Video{}, nil
	}
	if err := r.conn(dbc).WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *videoRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Video, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	var out domain.Video
	if err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *videoRepo) GetByPlatformID(dbc dbctx.Context, platformID string) (*domain.Video, error) {
	if platformID == "" {
		return nil, fmt.Errorf("missing platform_id")
	}
	var out domain.Video
	if err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("youtube_id = ? OR vimeo_id = ?", platformID, platformID).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *videoRepo) ListAll(dbc dbctx.Context) ([]*domain.Video, error) {
	var out []*domain.Video
	if err := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&domain.Video{}).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *videoRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*domain.Video, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockByID requires dbc.Tx")
	}
	var out domain.Video
	if err := dbc.Tx.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateStatusFields writes status transitions. Callers must persist the
// transition before enqueueing any background work that depends on it.
func (r *videoRepo) UpdateStatusFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return r.conn(dbc).WithContext(dbc.Ctx).
		Model(&domain.Video{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *videoRepo) AppendIngestLog(dbc dbctx.Context, id uuid.UUID, lines []string) error {
	if id == uuid.Nil || len(lines) == 0 {
		return nil
	}
	video, err := r.GetByID(dbc, id)
	if err != nil {
		return err
	}
	merged, err := appendJSONLines(video.IngestLog, lines)
	if err != nil {
		return err
	}
	return r.conn(dbc).WithContext(dbc.Ctx).
		Model(&domain.Video{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"ingest_log": merged, "updated_at": time.Now().UTC()}).Error
}
