package ingestion

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/incuisenix/backend/internal/data/repos/materials"
	"github.com/incuisenix/backend/internal/domain"
	"github.com/incuisenix/backend/internal/pkg/dbctx"
	"github.com/incuisenix/backend/internal/pkg/logger"
)

// Enqueuer dispatches background work. Tasks run at-least-once; the
// enqueuing side must already have committed the status that caused the
// enqueue (commit-then-enqueue).
type Enqueuer interface {
	EnqueueVideoIngest(ctx context.Context, videoID uuid.UUID) error
	EnqueueNoteReindex(ctx context.Context, userID, videoID uuid.UUID) error
}

// DisabledEnqueuer stands in when no job backend is configured. Every
// enqueue fails loudly instead of silently dropping work.
type DisabledEnqueuer struct{}

func (DisabledEnqueuer) EnqueueVideoIngest(ctx context.Context, videoID uuid.UUID) error {
	return fmt.Errorf("background jobs disabled: TEMPORAL_ADDRESS not set")
}

func (DisabledEnqueuer) EnqueueNoteReindex(ctx context.Context, userID, videoID uuid.UUID) error {
	return fmt.Errorf("background jobs disabled: TEMPORAL_ADDRESS not set")
}

// OnVideoCreated fires when a new video is registered and needs the
// full transcript/ocr/index pipeline.
type OnVideoCreated struct {
	VideoID uuid.UUID
}

// OnNoteChanged fires when a user creates, edits or deletes a note,
// invalidating that user's notes index for the video.
type OnNoteChanged struct {
	UserID  uuid.UUID
	VideoID uuid.UUID
}

// Orchestrator converts explicit domain events into durable status
// transitions followed by enqueued background work. No model-save
// hooks; every trigger is an event object passing through here.
type Orchestrator struct {
	log    *logger.Logger
	videos materials.VideoRepo
	notes  materials.NoteRepo
	queue  Enqueuer
}

func NewOrchestrator(log *logger.Logger, videos materials.VideoRepo, notes materials.NoteRepo, queue Enqueuer) *Orchestrator {
	return &Orchestrator{
		log:    log.With("service", "IngestOrchestrator"),
		videos: videos,
		notes:  notes,
		queue:  queue,
	}
}

func (o *Orchestrator) HandleVideoCreated(ctx context.Context, ev OnVideoCreated) error {
	dbc := dbctx.New(ctx)

	if err := o.videos.UpdateStatusFields(dbc, ev.VideoID, map[string]interface{}{
		"transcript_status":     domain.StatusPending,
		"ocr_transcript_status": domain.StatusPending,
		"index_status":          domain.StatusNone,
		"ocr_index_status":      domain.StatusNone,
	}); err != nil {
		return fmt.Errorf("mark video pending: %w", err)
	}

	if err := o.queue.EnqueueVideoIngest(ctx, ev.VideoID); err != nil {
		return fmt.Errorf("enqueue video ingest: %w", err)
	}
	o.log.Info("Video ingest enqueued", "video_id", ev.VideoID)
	return nil
}

func (o *Orchestrator) HandleNoteChanged(ctx context.Context, ev OnNoteChanged) error {
	dbc := dbctx.New(ctx)

	// No-op when the user just deleted their last note; the rebuild
	// job handles the delete-empty-index case itself.
	if err := o.notes.SetIndexStatus(dbc, ev.UserID, ev.VideoID, domain.StatusPending); err != nil {
		return fmt.Errorf("mark notes pending: %w", err)
	}

	if err := o.queue.EnqueueNoteReindex(ctx, ev.UserID, ev.VideoID); err != nil {
		return fmt.Errorf("enqueue note reindex: %w", err)
	}
	o.log.Info("Note reindex enqueued", "video_id", ev.VideoID)
	return nil
}
