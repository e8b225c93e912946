package materials

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/incuisenix/backend/internal/domain"
	"github.com/incuisenix/backend/internal/pkg/dbctx"
	"github.com/incuisenix/backend/internal/pkg/logger"
)

type SegmentRepo interface {
	// ListByVideoKind returns segments ordered by start offset.
	ListByVideoKind(dbc dbctx.Context, videoID uuid.UUID, kind domain.SourceKind) ([]*domain.Segment, error)
	// LatestAtOrBefore returns the segment active at the given playback
	// position, or gorm.ErrRecordNotFound when nothing starts that early.
	LatestAtOrBefore(dbc dbctx.Context, videoID uuid.UUID, kind domain.SourceKind, seconds float64) (*domain.Segment, error)
	CountByVideoKind(dbc dbctx.Context, videoID uuid.UUID, kind domain.SourceKind) (int64, error)
	// Replace wholesale-swaps the segment set for a (video, kind) pair in
	// one transaction: delete-all-then-bulk-insert.
	Replace(dbc dbctx.Context, videoID uuid.UUID, kind domain.SourceKind, rows []*domain.Segment) error
	DeleteByVideoKind(dbc dbctx.Context, videoID uuid.UUID, kind domain.SourceKind) error
}

type segmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSegmentRepo(db *gorm.DB, log *logger.Logger) SegmentRepo {
	return &segmentRepo{db: db, log: log.With("repo", "SegmentRepo")}
}

func (r *segmentRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *segmentRepo) ListByVideoKind(dbc dbctx.Context, videoID uuid.UUID, kind domain.SourceKind) ([]*domain.Segment, error) {
	if videoID == uuid.Nil {
		return nil, fmt.Errorf("missing video_id")
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid source kind %q", kind)
	}
	var out []*domain.Segment
	if err := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&domain.Segment{}).
		Where("video_id = ? AND kind = ?", videoID, kind).
		Order("start_offset_seconds ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *segmentRepo) LatestAtOrBefore(dbc dbctx.Context, videoID uuid.UUID, kind domain.SourceKind, seconds float64) (*domain.Segment, error) {
	if videoID == uuid.Nil {
		return nil, fmt.Errorf("missing video_id")
	}
	var out domain.Segment
	if err := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&domain.Segment{}).
		Where("video_id = ? AND kind = ? AND start_offset_seconds <= ?", videoID, kind, seconds).
		Order("start_offset_seconds DESC").
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *segmentRepo) CountByVideoKind(dbc dbctx.Context, videoID uuid.UUID, kind domain.SourceKind) (int64, error) {
	var n int64
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&domain.Segment{}).
		Where("video_id = ? AND kind = ?", videoID, kind).
		Count(&n).Error
	return n, err
}

func (r *segmentRepo) Replace(dbc dbctx.Context, videoID uuid.UUID, kind domain.SourceKind, rows []*domain.Segment) error {
	if videoID == uuid.Nil {
		return fmt.Errorf("missing video_id")
	}
	if !kind.Valid() || kind == domain.SourceNote {
		return fmt.Errorf("replace not supported for kind %q", kind)
	}
	return r.conn(dbc).WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("video_id = ? AND kind = ?", videoID, kind).
			Delete(&domain.Segment{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		for _, row := range rows {
			row.VideoID = videoID
			row.Kind = kind
		}
		return tx.CreateInBatches(&rows, 500).Error
	})
}

func (r *segmentRepo) DeleteByVideoKind(dbc dbctx.Context, videoID uuid.UUID, kind domain.SourceKind) error {
	if videoID == uuid.Nil {
		return fmt.Errorf("missing video_id")
	}
	return r.conn(dbc).WithContext(dbc.Ctx).
		Where("video_id = ? AND kind = ?", videoID, kind).
		Delete(&domain.Segment{}).Error
}
