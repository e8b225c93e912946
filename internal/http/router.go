package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/incuisenix/backend/internal/http/handlers"
	httpMW "github.com/incuisenix/backend/internal/http/middleware"
	"github.com/incuisenix/backend/internal/observability"
	"github.com/incuisenix/backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log     *logger.Logger
	Metrics *observability.Metrics

	AssistantHandler    *httpH.AssistantHandler
	ConversationHandler *httpH.ConversationHandler
	NoteHandler         *httpH.NoteHandler
	VideoHandler        *httpH.VideoHandler
	HealthHandler       *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("incuisenix"))
	r.Use(httpMW.CORS())
	r.Use(httpMW.Identity())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		if cfg.AssistantHandler != nil {
			api.POST("/assistant", cfg.AssistantHandler.Ask)
		}

		if cfg.ConversationHandler != nil {
			api.GET("/conversations", cfg.ConversationHandler.List)
			api.GET("/conversations/:id/messages", cfg.ConversationHandler.Messages)
		}

		if cfg.NoteHandler != nil {
			api.POST("/videos/:video_id/notes", cfg.NoteHandler.Create)
			api.GET("/videos/:video_id/notes", cfg.NoteHandler.List)
			api.PUT("/notes/:id", cfg.NoteHandler.Update)
			api.DELETE("/notes/:id", cfg.NoteHandler.Delete)
		}

		if cfg.VideoHandler != nil {
			api.POST("/videos", cfg.VideoHandler.Register)
			api.GET("/videos/:video_id/status", cfg.VideoHandler.Status)
			api.GET("/videos/:video_id/transcript", cfg.VideoHandler.Transcript)
			api.POST("/videos/:video_id/reindex", cfg.VideoHandler.Reindex)
		}
	}

	return r
}
