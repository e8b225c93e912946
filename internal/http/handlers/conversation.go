package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/incuisenix/backend/internal/http/middleware"
	"github.com/incuisenix/backend/internal/http/response"
	"github.com/incuisenix/backend/internal/modules/assistant"
	"github.com/incuisenix/backend/internal/pkg/dbctx"
)

type ConversationHandler struct {
	conversations *assistant.ConversationService
}

func NewConversationHandler(conversations *assistant.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

// GET /api/conversations
func (h *ConversationHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "missing_identity", errors.New("X-User-ID header required"))
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	conversations, err := h.conversations.List(dbc, userID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_conversations_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"conversations": conversations})
}

// GET /api/conversations/:id/messages
func (h *ConversationHandler) Messages(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "missing_identity", errors.New("X-User-ID header required"))
		return
	}
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_conversation_id", err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	msgs, err := h.conversations.Messages(dbc, conversationID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.RespondError(c, http.StatusNotFound, "conversation_not_found", err)
			return
		}
		response.RespondError(c, http.StatusForbidden, "conversation_access_denied", err)
		return
	}
	response.RespondOK(c, gin.H{"messages": msgs})
}
