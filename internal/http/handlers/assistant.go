package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/incuisenix/backend/internal/data/repos/materials"
	"github.com/incuisenix/backend/internal/http/middleware"
	"github.com/incuisenix/backend/internal/http/response"
	"github.com/incuisenix/backend/internal/modules/assistant"
	"github.com/incuisenix/backend/internal/pkg/dbctx"
	"github.com/incuisenix/backend/internal/pkg/logger"
)

// startProbeAnswer is returned for the client's "Start" placeholder
// query that only opens a fresh conversation.
const startProbeAnswer = "Starting new chat..."

type AssistantHandler struct {
	log           *logger.Logger
	router        *assistant.Router
	conversations *assistant.ConversationService
	videos        materials.VideoRepo
}

func NewAssistantHandler(
	log *logger.Logger,
	router *assistant.Router,
	conversations *assistant.ConversationService,
	videos materials.VideoRepo,
) *AssistantHandler {
	return &AssistantHandler{
		log:           log.With("handler", "AssistantHandler"),
		router:        router,
		conversations: conversations,
		videos:        videos,
	}
}

type assistantReq struct {
	Query          string     `json:"query"`
	VideoID        string     `json:"video_id"`
	Timestamp      float64    `json:"timestamp"`
	ConversationID *uuid.UUID `json:"conversation_id"`
	ForceNew       bool       `json:"force_new"`
}

// POST /api/assistant
func (h *AssistantHandler) Ask(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "missing_identity", errors.New("X-User-ID header required"))
		return
	}

	var req assistantReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	req.VideoID = strings.TrimSpace(req.VideoID)
	if req.Query == "" || req.VideoID == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("query and video_id are required"))
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	video, err := h.videos.GetByPlatformID(dbc, req.VideoID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.RespondError(c, http.StatusNotFound, "video_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "video_lookup_failed", err)
		return
	}

	conversation, err := h.conversations.Locate(dbc, req.ConversationID, userID, video.ID, video.CourseID, req.ForceNew)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "conversation_failed", err)
		return
	}

	// The client opens a new chat with a placeholder query; don't route it.
	if req.ForceNew && req.Query == "Start" {
		response.RespondOK(c, gin.H{
			"answer":          startProbeAnswer,
			"conversation_id": conversation.ID,
		})
		return
	}

	history, err := h.conversations.History(dbc, conversation.ID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "history_failed", err)
		return
	}

	answer, err := h.router.Answer(c.Request.Context(), assistant.Request{
		Query:      req.Query,
		PlatformID: req.VideoID,
		Timestamp:  req.Timestamp,
		History:    history,
		UserID:     userID,
	})
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "assistant_failed", err)
		return
	}

	if _, err := h.conversations.AppendExchange(dbc, conversation, req.Query, answer); err != nil {
		h.log.Warn("Failed to persist exchange", "conversation_id", conversation.ID, "error", err)
	}

	response.RespondOK(c, gin.H{
		"answer":          answer,
		"conversation_id": conversation.ID,
	})
}
