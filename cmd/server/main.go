package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/incuisenix/backend/internal/data/db"
	chatrepos "github.com/incuisenix/backend/internal/data/repos/chat"
	"github.com/incuisenix/backend/internal/data/repos/materials"
	apphttp "github.com/incuisenix/backend/internal/http"
	httpH "github.com/incuisenix/backend/internal/http/handlers"
	"github.com/incuisenix/backend/internal/modules/assistant"
	"github.com/incuisenix/backend/internal/modules/ingestion"
	"github.com/incuisenix/backend/internal/modules/retrieval"
	"github.com/incuisenix/backend/internal/observability"
	"github.com/incuisenix/backend/internal/pkg/envutil"
	"github.com/incuisenix/backend/internal/pkg/logger"
	"github.com/incuisenix/backend/internal/platform/ai"
	"github.com/incuisenix/backend/internal/platform/gcp"
	"github.com/incuisenix/backend/internal/platform/localmedia"
	"github.com/incuisenix/backend/internal/platform/redislock"
	"github.com/incuisenix/backend/internal/temporalx"
	"github.com/incuisenix/backend/internal/temporalx/pipelines"
	"github.com/incuisenix/backend/internal/temporalx/temporalworker"
)

func main() {
	_ = godotenv.Load()

	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing + metrics
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "incuisenix",
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),
	})
	metrics := observability.Init(log)
	metrics.StartServer(ctx, log, envutil.String("METRICS_ADDR", ""))

	// Database
	log.Info("Setting up database...")
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
	if err := db.AutoMigrateAll(gdb); err != nil {
		log.Fatal("Auto migration failed", "error", err)
	}
	metrics.StartPostgresCollector(ctx, log, gdb)
	metrics.StartVideoStatusCollector(ctx, log, gdb)

	// Repos
	log.Info("Setting up repos...")
	videoRepo := materials.NewVideoRepo(gdb, log)
	segmentRepo := materials.NewSegmentRepo(gdb, log)
	noteRepo := materials.NewNoteRepo(gdb, log)
	conversationRepo := chatrepos.NewConversationRepo(gdb, log)
	messageRepo := chatrepos.NewMessageRepo(gdb, log)

	// Platform clients
	log.Info("Setting up platform clients...")
	aiClient, err := ai.NewFromEnv(log)
	if err != nil {
		log.Fatal("AI client init failed", "error", err)
	}

	lock, err := redislock.NewFromEnv(log)
	if err != nil {
		log.Fatal("Redis lock init failed", "error", err)
	}
	defer lock.Close()
	metrics.StartRedisCollector(ctx, log, os.Getenv("REDIS_ADDR"))

	// Retrieval
	indexRoot := envutil.String("INDEX_ROOT", "./data/indexes")
	manager, err := retrieval.NewManager(log, aiClient, videoRepo, segmentRepo, noteRepo, lock, indexRoot)
	if err != nil {
		log.Fatal("Index manager init failed", "error", err)
	}
	retrievalCfg, err := retrieval.ConfigFromEnv()
	if err != nil {
		log.Fatal("Retrieval config invalid", "error", err)
	}
	hybrid, err := retrieval.NewHybrid(log, aiClient, manager, retrievalCfg)
	if err != nil {
		log.Fatal("Hybrid retriever init failed", "error", err)
	}

	// Ingestion pipeline
	log.Info("Setting up ingestion pipeline...")
	media := localmedia.New(log)
	bucket, err := gcp.NewBucket(log)
	if err != nil {
		log.Warn("GCS bucket unavailable; transcript/ocr extraction disabled", "error", err)
	}
	speech, err := gcp.NewSpeech(log)
	if err != nil {
		log.Warn("Speech client unavailable", "error", err)
	}
	videoOCR, err := gcp.NewVideoOCR(log)
	if err != nil {
		log.Warn("Video OCR client unavailable", "error", err)
	}
	vision, err := gcp.NewVision(log)
	if err != nil {
		log.Warn("Vision client unavailable", "error", err)
	}
	transcripts := ingestion.NewTranscriptService(log, media, bucket, speech, videoRepo, segmentRepo)
	ocr := ingestion.NewOCRService(log, media, bucket, videoOCR, vision, videoRepo, segmentRepo)

	// Temporal
	log.Info("Setting up Temporal...")
	temporalCfg := temporalx.LoadConfig()
	temporalClient, err := temporalx.NewClient(log)
	if err != nil {
		log.Fatal("Temporal init failed", "error", err)
	}

	var queue ingestion.Enqueuer = ingestion.DisabledEnqueuer{}
	if temporalClient != nil {
		defer temporalClient.Close()
		queue = pipelines.NewTemporalEnqueuer(log, temporalClient, temporalCfg.TaskQueue)
	}

	reconciler := ingestion.NewReconciler(log, videoRepo, segmentRepo, noteRepo, manager, queue)
	orchestrator := ingestion.NewOrchestrator(log, videoRepo, noteRepo, queue)
	ensurer := ingestion.NewEnsurer(log, videoRepo, segmentRepo, manager, queue)

	if temporalClient != nil && envutil.Bool("TEMPORAL_WORKER_ENABLED", true) {
		acts := pipelines.NewActivities(log, transcripts, ocr, manager, reconciler)
		runner := temporalworker.NewRunner(log, temporalClient, temporalCfg.TaskQueue, acts)
		if err := runner.Start(); err != nil {
			log.Fatal("Temporal worker failed to start", "error", err)
		}
		defer runner.Stop()
	}

	// Assistant
	log.Info("Setting up assistant...")
	router, err := assistant.NewRouter(log, aiClient, videoRepo, segmentRepo, noteRepo, hybrid)
	if err != nil {
		log.Fatal("Query router init failed", "error", err)
	}
	conversations := assistant.NewConversationService(log, conversationRepo, messageRepo)

	// HTTP
	srv := apphttp.NewServer(apphttp.RouterConfig{
		Log:                 log,
		Metrics:             metrics,
		AssistantHandler:    httpH.NewAssistantHandler(log, router, conversations, videoRepo),
		ConversationHandler: httpH.NewConversationHandler(conversations),
		NoteHandler:         httpH.NewNoteHandler(log, noteRepo, videoRepo, orchestrator),
		VideoHandler:        httpH.NewVideoHandler(log, videoRepo, segmentRepo, orchestrator, ensurer),
		HealthHandler:       httpH.NewHealthHandler(),
	})

	addr := envutil.String("HTTP_ADDR", ":8080")
	log.Info("Starting HTTP server", "addr", addr)
	if err := srv.Run(addr); err != nil {
		log.Fatal("HTTP server failed", "error", err)
	}

	if otelShutdown != nil {
		_ = otelShutdown(context.Background())
	}
}
