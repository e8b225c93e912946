package pipelines

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/incuisenix/backend/internal/pkg/logger"
)

// TemporalEnqueuer satisfies ingestion.Enqueuer by starting workflows.
// Workflow IDs are deterministic per target so a burst of events for
// the same video collapses into one running execution.
type TemporalEnqueuer struct {
	log       *logger.Logger
	client    temporalsdkclient.Client
	taskQueue string
}

func NewTemporalEnqueuer(log *logger.Logger, c temporalsdkclient.Client, taskQueue string) *TemporalEnqueuer {
	return &TemporalEnqueuer{
		log:       log.With("service", "TemporalEnqueuer"),
		client:    c,
		taskQueue: taskQueue,
	}
}

func (e *TemporalEnqueuer) EnqueueVideoIngest(ctx context.Context, videoID uuid.UUID) error {
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    fmt.Sprintf("video-ingest-%s", videoID),
		TaskQueue:             e.taskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}
	run, err := e.client.ExecuteWorkflow(ctx, opts, VideoIngestWorkflowName, VideoIngestInput{VideoID: videoID})
	if err != nil {
		return fmt.Errorf("start video ingest workflow: %w", err)
	}
	e.log.Info("Started video ingest workflow", "video_id", videoID, "run_id", run.GetRunID())
	return nil
}

func (e *TemporalEnqueuer) EnqueueNoteReindex(ctx context.Context, userID, videoID uuid.UUID) error {
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    fmt.Sprintf("note-reindex-%s-%s", userID, videoID),
		TaskQueue:             e.taskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}
	run, err := e.client.ExecuteWorkflow(ctx, opts, NoteReindexWorkflowName, NoteReindexInput{UserID: userID, VideoID: videoID})
	if err != nil {
		return fmt.Errorf("start note reindex workflow: %w", err)
	}
	e.log.Info("Started note reindex workflow", "video_id", videoID, "run_id", run.GetRunID())
	return nil
}

// EnqueueReconcile kicks one repair sweep; callers typically run it on
// a cron schedule or from an operator command.
func (e *TemporalEnqueuer) EnqueueReconcile(ctx context.Context) error {
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:        "reconcile-sweep",
		TaskQueue: e.taskQueue,
	}
	if _, err := e.client.ExecuteWorkflow(ctx, opts, ReconcileWorkflowName); err != nil {
		return fmt.Errorf("start reconcile workflow: %w", err)
	}
	return nil
}
