package ingestion

import (
	"context"
	"fmt"

	"github.com/incuisenix/backend/internal/data/repos/materials"
	"github.com/incuisenix/backend/internal/domain"
	"github.com/incuisenix/backend/internal/modules/retrieval"
	"github.com/incuisenix/backend/internal/pkg/dbctx"
	"github.com/incuisenix/backend/internal/pkg/logger"
)

// Report summarizes one reconciliation sweep.
type Report struct {
	VideosChecked     int
	StatusCorrections int
	IndexesDeleted    int
	RebuildsEnqueued  int
}

// Reconciler compares every video's status fields against what actually
// exists: segments in the database, index artifacts on disk. It is the
// repair half of the partial-failure model; the pipeline itself has no
// retries beyond the one-shot background task.
type Reconciler struct {
	log      *logger.Logger
	videos   materials.VideoRepo
	segments materials.SegmentRepo
	notes    materials.NoteRepo
	manager  *retrieval.Manager
	queue    Enqueuer
}

func NewReconciler(
	log *logger.Logger,
	videos materials.VideoRepo,
	segments materials.SegmentRepo,
	notes materials.NoteRepo,
	manager *retrieval.Manager,
	queue Enqueuer,
) *Reconciler {
	return &Reconciler{
		log:      log.With("service", "Reconciler"),
		videos:   videos,
		segments: segments,
		notes:    notes,
		manager:  manager,
		queue:    queue,
	}
}

func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	dbc := dbctx.New(ctx)
	report := Report{}

	videos, err := r.videos.ListAll(dbc)
	if err != nil {
		return report, fmt.Errorf("list videos: %w", err)
	}

	for _, video := range videos {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.VideosChecked++

		platformID := video.PlatformID()
		if platformID == "" {
			continue
		}

		updates := map[string]interface{}{}

		// Stray extraction states from a crashed worker.
		if video.TranscriptStatus == domain.StatusProcessing {
			updates["transcript_status"] = domain.StatusPending
		}
		if video.OCRTranscriptStatus == domain.StatusProcessing {
			updates["ocr_transcript_status"] = domain.StatusPending
		}

		r.reconcileIndex(ctx, dbc, video, domain.SourceAudioTranscript,
			retrieval.TranscriptKey(platformID), "index_status", video.IndexStatus, updates, &report)
		r.reconcileIndex(ctx, dbc, video, domain.SourceOCR,
			retrieval.OCRKey(platformID), "ocr_index_status", video.OCRIndexStatus, updates, &report)

		if len(updates) > 0 {
			if err := r.videos.UpdateStatusFields(dbc, video.ID, updates); err != nil {
				return report, fmt.Errorf("correct statuses for video %s: %w", video.ID, err)
			}
			report.StatusCorrections += len(updates)
			r.log.Info("Corrected video statuses", "video_id", video.ID, "corrections", len(updates))
		}

		if err := r.reconcileNotes(ctx, dbc, video, platformID, &report); err != nil {
			return report, err
		}
	}

	return report, nil
}

func (r *Reconciler) reconcileIndex(
	ctx context.Context,
	dbc dbctx.Context,
	video *domain.Video,
	kind domain.SourceKind,
	key retrieval.Key,
	field string,
	status string,
	updates map[string]interface{},
	report *Report,
) {
	segCount, err := r.segments.CountByVideoKind(dbc, video.ID, kind)
	if err != nil {
		r.log.Error("Segment count failed during sweep", "video_id", video.ID, "kind", string(kind), "error", err)
		return
	}
	exists := r.manager.IndexExists(key)

	switch {
	case segCount == 0 && exists:
		// Orphaned artifact with no backing segments.
		r.manager.DeleteIndex(key)
		report.IndexesDeleted++
		if status != domain.StatusNone {
			updates[field] = domain.StatusNone
		}
	case segCount == 0:
		if status != domain.StatusNone && status != domain.StatusPending && status != domain.StatusFailed {
			updates[field] = domain.StatusNone
		}
	case !exists:
		// Segments exist but the artifact is gone; complete would be
		// a lie, indexing is a stray. Reset to a re-triable state.
		if status == domain.StatusComplete || status == domain.StatusIndexing || status == domain.StatusNone {
			updates[field] = domain.StatusPending
		}
		if r.queue != nil && status != domain.StatusFailed {
			if err := r.queue.EnqueueVideoIngest(ctx, video.ID); err != nil {
				r.log.Warn("Failed to enqueue rebuild during sweep", "video_id", video.ID, "error", err)
			} else {
				report.RebuildsEnqueued++
			}
		}
	case exists && status != domain.StatusComplete && status != domain.StatusFailed:
		// Artifact really exists; surface it.
		updates[field] = domain.StatusComplete
	}
}

func (r *Reconciler) reconcileNotes(ctx context.Context, dbc dbctx.Context, video *domain.Video, platformID string, report *Report) error {
	usersWithNotes, err := r.notes.ListUsersWithNotes(dbc, video.ID)
	if err != nil {
		return fmt.Errorf("list note users for video %s: %w", video.ID, err)
	}
	noted := map[string]bool{}
	for _, userID := range usersWithNotes {
		noted[userID.String()] = true
		if r.manager.IndexExists(retrieval.NotesKey(userID, platformID)) {
			continue
		}
		if err := r.notes.SetIndexStatus(dbc, userID, video.ID, domain.StatusPending); err != nil {
			return fmt.Errorf("mark notes pending: %w", err)
		}
		report.StatusCorrections++
		if r.queue != nil {
			if err := r.queue.EnqueueNoteReindex(ctx, userID, video.ID); err != nil {
				r.log.Warn("Failed to enqueue note reindex during sweep", "video_id", video.ID, "error", err)
			} else {
				report.RebuildsEnqueued++
			}
		}
	}

	// Note index files whose owner no longer has notes for this video.
	for _, userID := range r.manager.NoteIndexUsers(platformID) {
		if noted[userID.String()] {
			continue
		}
		r.manager.DeleteIndex(retrieval.NotesKey(userID, platformID))
		report.IndexesDeleted++
	}
	return nil
}
