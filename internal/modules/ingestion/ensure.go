package ingestion

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/incuisenix/backend/internal/data/repos/materials"
	"github.com/incuisenix/backend/internal/domain"
	"github.com/incuisenix/backend/internal/modules/retrieval"
	"github.com/incuisenix/backend/internal/pkg/dbctx"
	"github.com/incuisenix/backend/internal/pkg/logger"
)

// Ensurer is the one idempotent resume operation: given a video in any
// state, do only the work needed to reach fully indexed. force wipes
// and restarts from extraction.
type Ensurer struct {
	log      *logger.Logger
	videos   materials.VideoRepo
	segments materials.SegmentRepo
	manager  *retrieval.Manager
	queue    Enqueuer
}

func NewEnsurer(
	log *logger.Logger,
	videos materials.VideoRepo,
	segments materials.SegmentRepo,
	manager *retrieval.Manager,
	queue Enqueuer,
) *Ensurer {
	return &Ensurer{
		log:      log.With("service", "Ensurer"),
		videos:   videos,
		segments: segments,
		manager:  manager,
		queue:    queue,
	}
}

func (e *Ensurer) EnsureIndexed(ctx context.Context, videoID uuid.UUID, force bool) error {
	dbc := dbctx.New(ctx)

	video, err := e.videos.GetByID(dbc, videoID)
	if err != nil {
		return fmt.Errorf("load video %s: %w", videoID, err)
	}
	platformID := video.PlatformID()
	if platformID == "" {
		return fmt.Errorf("video %s has no platform id", videoID)
	}

	if force {
		e.manager.DeleteIndex(retrieval.TranscriptKey(platformID))
		e.manager.DeleteIndex(retrieval.OCRKey(platformID))
		if err := e.videos.UpdateStatusFields(dbc, videoID, map[string]interface{}{
			"transcript_status":     domain.StatusPending,
			"ocr_transcript_status": domain.StatusPending,
			"index_status":          domain.StatusNone,
			"ocr_index_status":      domain.StatusNone,
		}); err != nil {
			return fmt.Errorf("reset statuses: %w", err)
		}
		return e.queue.EnqueueVideoIngest(ctx, videoID)
	}

	// Extraction still outstanding: re-run the whole pipeline.
	if video.TranscriptStatus != domain.StatusComplete {
		return e.queue.EnqueueVideoIngest(ctx, videoID)
	}

	if err := e.ensureVideoIndex(ctx, dbc, video, domain.SourceAudioTranscript, retrieval.TranscriptKey(platformID), video.IndexStatus); err != nil {
		return err
	}

	// OCR is best-effort; only rebuild its index when extraction
	// actually succeeded.
	if video.OCRTranscriptStatus == domain.StatusComplete {
		if err := e.ensureVideoIndex(ctx, dbc, video, domain.SourceOCR, retrieval.OCRKey(platformID), video.OCRIndexStatus); err != nil {
			return err
		}
	}
	return nil
}

func (e *Ensurer) ensureVideoIndex(ctx context.Context, dbc dbctx.Context, video *domain.Video, kind domain.SourceKind, key retrieval.Key, status string) error {
	n, err := e.segments.CountByVideoKind(dbc, video.ID, kind)
	if err != nil {
		return fmt.Errorf("count %s segments: %w", kind, err)
	}
	if n == 0 {
		return nil
	}
	if status == domain.StatusComplete && e.manager.IndexExists(key) {
		return nil
	}
	e.log.Info("Rebuilding index", "video_id", video.ID, "kind", string(kind), "status", status)
	return e.manager.BuildVideoIndex(ctx, video.ID, kind)
}
