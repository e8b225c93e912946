package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/incuisenix/backend/internal/data/db"
	"github.com/incuisenix/backend/internal/data/repos/materials"
	"github.com/incuisenix/backend/internal/modules/ingestion"
	"github.com/incuisenix/backend/internal/modules/retrieval"
	"github.com/incuisenix/backend/internal/pkg/envutil"
	"github.com/incuisenix/backend/internal/pkg/logger"
	"github.com/incuisenix/backend/internal/platform/ai"
	"github.com/incuisenix/backend/internal/platform/redislock"
	"github.com/incuisenix/backend/internal/temporalx"
	"github.com/incuisenix/backend/internal/temporalx/pipelines"
)

// Operator entry point for one reconciliation sweep. Run it after a
// crash, a disk restore, or whenever statuses look suspicious.
func main() {
	_ = godotenv.Load()

	enqueue := flag.Bool("enqueue", true, "enqueue rebuild workflows for repairable videos")
	timeout := flag.Duration("timeout", 30*time.Minute, "sweep timeout")
	flag.Parse()

	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var dbService *db.Service
	if envutil.String("DB_DRIVER", "postgres") == "sqlite" {
		dbService, err = db.NewSQLiteService(log, "")
	} else {
		dbService, err = db.NewPostgresService(log)
	}
	if err != nil {
		log.Fatal("Database init failed", "error", err)
	}
	gdb := dbService.DB()

	videoRepo := materials.NewVideoRepo(gdb, log)
	segmentRepo := materials.NewSegmentRepo(gdb, log)
	noteRepo := materials.NewNoteRepo(gdb, log)

	aiClient, err := ai.NewFromEnv(log)
	if err != nil {
		log.Fatal("AI client init failed", "error", err)
	}
	lock, err := redislock.NewFromEnv(log)
	if err != nil {
		log.Fatal("Redis lock init failed", "error", err)
	}
	defer lock.Close()

	manager, err := retrieval.NewManager(log, aiClient, videoRepo, segmentRepo, noteRepo, lock,
		envutil.String("INDEX_ROOT", "./data/indexes"))
	if err != nil {
		log.Fatal("Index manager init failed", "error", err)
	}

	var queue ingestion.Enqueuer
	if *enqueue {
		temporalClient, err := temporalx.NewClient(log)
		if err != nil {
			log.Fatal("Temporal init failed", "error", err)
		}
		if temporalClient != nil {
			defer temporalClient.Close()
			queue = pipelines.NewTemporalEnqueuer(log, temporalClient, temporalx.LoadConfig().TaskQueue)
		}
	}

	reconciler := ingestion.NewReconciler(log, videoRepo, segmentRepo, noteRepo, manager, queue)
	report, err := reconciler.Run(ctx)
	if err != nil {
		log.Fatal("Reconcile sweep failed", "error", err)
	}

	log.Info("Reconcile sweep finished",
		"videos_checked", report.VideosChecked,
		"status_corrections", report.StatusCorrections,
		"indexes_deleted", report.IndexesDeleted,
		"rebuilds_enqueued", report.RebuildsEnqueued)
}
