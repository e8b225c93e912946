package pipelines

import (
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	VideoIngestWorkflowName = "VideoIngestWorkflow"
	NoteReindexWorkflowName = "NoteReindexWorkflow"
	ReconcileWorkflowName   = "ReconcileWorkflow"
)

type VideoIngestInput struct {
	VideoID uuid.UUID `json:"video_id"`
}

type NoteReindexInput struct {
	UserID  uuid.UUID `json:"user_id"`
	VideoID uuid.UUID `json:"video_id"`
}

// Activities run at most once per workflow execution. Recovery from a
// crashed or failed run is the reconciliation sweep's job, not the
// retry policy's.
func activityOptions(timeout time.Duration) workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
}

// VideoIngestWorkflow runs the full pipeline for one video: audio
// transcript, then OCR, then both indexes. OCR and its index are
// best-effort; a failure there is recorded on the video row but does
// not fail the workflow.
func VideoIngestWorkflow(ctx workflow.Context, in VideoIngestInput) error {
	logger := workflow.GetLogger(ctx)
	ctx = workflow.WithActivityOptions(ctx, activityOptions(time.Hour))

	var a *Activities
	if err := workflow.ExecuteActivity(ctx, a.GenerateTranscript, in.VideoID).Get(ctx, nil); err != nil {
		return err
	}

	if err := workflow.ExecuteActivity(ctx, a.GenerateOCR, in.VideoID).Get(ctx, nil); err != nil {
		logger.Warn("OCR extraction failed; continuing without it", "video_id", in.VideoID.String(), "error", err)
	}

	if err := workflow.ExecuteActivity(ctx, a.BuildTranscriptIndex, in.VideoID).Get(ctx, nil); err != nil {
		return err
	}

	if err := workflow.ExecuteActivity(ctx, a.BuildOCRIndex, in.VideoID).Get(ctx, nil); err != nil {
		logger.Warn("OCR index build failed; continuing without it", "video_id", in.VideoID.String(), "error", err)
	}
	return nil
}

// NoteReindexWorkflow rebuilds one user's notes index for one video.
func NoteReindexWorkflow(ctx workflow.Context, in NoteReindexInput) error {
	ctx = workflow.WithActivityOptions(ctx, activityOptions(15*time.Minute))

	var a *Activities
	return workflow.ExecuteActivity(ctx, a.BuildNotesIndex, in).Get(ctx, nil)
}

// ReconcileWorkflow runs one full repair sweep over all videos.
func ReconcileWorkflow(ctx workflow.Context) error {
	ctx = workflow.WithActivityOptions(ctx, activityOptions(30*time.Minute))

	var a *Activities
	return workflow.ExecuteActivity(ctx, a.Reconcile).Get(ctx, nil)
}
