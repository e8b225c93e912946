package pipelines

import (
	"context"

	"github.com/google/uuid"

	"github.com/incuisenix/backend/internal/domain"
	"github.com/incuisenix/backend/internal/modules/ingestion"
	"github.com/incuisenix/backend/internal/modules/retrieval"
	"github.com/incuisenix/backend/internal/pkg/logger"
)

type Activities struct {
	Log         *logger.Logger
	Transcripts *ingestion.TranscriptService
	OCR         *ingestion.OCRService
	Manager     *retrieval.Manager
	Reconciler  *ingestion.Reconciler
}

func NewActivities(
	log *logger.Logger,
	transcripts *ingestion.TranscriptService,
	ocr *ingestion.OCRService,
	manager *retrieval.Manager,
	reconciler *ingestion.Reconciler,
) *Activities {
	return &Activities{
		Log:         log.With("service", "PipelineActivities"),
		Transcripts: transcripts,
		OCR:         ocr,
		Manager:     manager,
		Reconciler:  reconciler,
	}
}

func (a *Activities) GenerateTranscript(ctx context.Context, videoID uuid.UUID) error {
	return a.Transcripts.Generate(ctx, videoID)
}

func (a *Activities) GenerateOCR(ctx context.Context, videoID uuid.UUID) error {
	return a.OCR.Generate(ctx, videoID)
}

func (a *Activities) BuildTranscriptIndex(ctx context.Context, videoID uuid.UUID) error {
	return a.Manager.BuildVideoIndex(ctx, videoID, domain.SourceAudioTranscript)
}

func (a *Activities) BuildOCRIndex(ctx context.Context, videoID uuid.UUID) error {
	return a.Manager.BuildVideoIndex(ctx, videoID, domain.SourceOCR)
}

func (a *Activities) BuildNotesIndex(ctx context.Context, in NoteReindexInput) error {
	return a.Manager.BuildNotesIndex(ctx, in.UserID, in.VideoID)
}

func (a *Activities) Reconcile(ctx context.Context) error {
	report, err := a.Reconciler.Run(ctx)
	if err != nil {
		return err
	}
	a.Log.Info("Reconcile sweep finished",
		"videos_checked", report.VideosChecked,
		"status_corrections", report.StatusCorrections,
		"indexes_deleted", report.IndexesDeleted,
		"rebuilds_enqueued", report.RebuildsEnqueued)
	return nil
}
