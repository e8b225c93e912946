package temporalworker

import (
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/incuisenix/backend/internal/pkg/envutil"
	"github.com/incuisenix/backend/internal/pkg/logger"
	"github.com/incuisenix/backend/internal/temporalx/pipelines"
)

// Runner hosts the Temporal worker that executes the ingest, note
// reindex and reconcile workflows.
type Runner struct {
	log    *logger.Logger
	worker worker.Worker
}

func NewRunner(log *logger.Logger, c temporalsdkclient.Client, taskQueue string, acts *pipelines.Activities) *Runner {
	w := worker.New(c, taskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     envutil.Int("TEMPORAL_MAX_CONCURRENT_ACTIVITIES", 4),
		MaxConcurrentWorkflowTaskExecutionSize: envutil.Int("TEMPORAL_MAX_CONCURRENT_WORKFLOW_TASKS", 8),
	})

	w.RegisterWorkflowWithOptions(pipelines.VideoIngestWorkflow, workflow.RegisterOptions{Name: pipelines.VideoIngestWorkflowName})
	w.RegisterWorkflowWithOptions(pipelines.NoteReindexWorkflow, workflow.RegisterOptions{Name: pipelines.NoteReindexWorkflowName})
	w.RegisterWorkflowWithOptions(pipelines.ReconcileWorkflow, workflow.RegisterOptions{Name: pipelines.ReconcileWorkflowName})
	w.RegisterActivity(acts)

	return &Runner{
		log:    log.With("service", "TemporalWorker"),
		worker: w,
	}
}

// Start runs the worker until Stop is called. It returns once the
// worker is accepting tasks.
func (r *Runner) Start() error {
	r.log.Info("Starting Temporal worker")
	return r.worker.Start()
}

func (r *Runner) Stop() {
	r.log.Info("Stopping Temporal worker")
	r.worker.Stop()
}
