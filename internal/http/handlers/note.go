package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/incuisenix/backend/internal/data/repos/materials"
	"github.com/incuisenix/backend/internal/domain"
	"github.com/incuisenix/backend/internal/http/middleware"
	"github.com/incuisenix/backend/internal/http/response"
	"github.com/incuisenix/backend/internal/modules/ingestion"
	"github.com/incuisenix/backend/internal/pkg/dbctx"
	"github.com/incuisenix/backend/internal/pkg/logger"
)

// NoteHandler owns note CRUD. Every mutation fires a note-changed event
// so the owner's notes index is rebuilt in the background.
type NoteHandler struct {
	log          *logger.Logger
	notes        materials.NoteRepo
	videos       materials.VideoRepo
	orchestrator *ingestion.Orchestrator
}

func NewNoteHandler(log *logger.Logger, notes materials.NoteRepo, videos materials.VideoRepo, orchestrator *ingestion.Orchestrator) *NoteHandler {
	return &NoteHandler{
		log:          log.With("handler", "NoteHandler"),
		notes:        notes,
		videos:       videos,
		orchestrator: orchestrator,
	}
}

type noteReq struct {
	Title          string  `json:"title"`
	Content        string  `json:"content"`
	VideoTimestamp float64 `json:"video_timestamp"`
}

// POST /api/videos/:video_id/notes
func (h *NoteHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "missing_identity", errors.New("X-User-ID header required"))
		return
	}
	var req noteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("title and content are required"))
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	video, err := h.videos.GetByPlatformID(dbc, c.Param("video_id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.RespondError(c, http.StatusNotFound, "video_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "video_lookup_failed", err)
		return
	}

	rows, err := h.notes.Create(dbc, []*domain.Note{{
		UserID:         userID,
		VideoID:        video.ID,
		CourseID:       video.CourseID,
		Title:          req.Title,
		Content:        req.Content,
		VideoTimestamp: req.VideoTimestamp,
	}})
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "create_note_failed", err)
		return
	}

	h.fireNoteChanged(c, userID, video.ID)
	response.RespondOK(c, gin.H{"note": rows[0]})
}

// GET /api/videos/:video_id/notes
func (h *NoteHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "missing_identity", errors.New("X-User-ID header required"))
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	video, err := h.videos.GetByPlatformID(dbc, c.Param("video_id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.RespondError(c, http.StatusNotFound, "video_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "video_lookup_failed", err)
		return
	}
	rows, err := h.notes.ListByUserVideo(dbc, userID, video.ID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_notes_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"notes": rows})
}

// PUT /api/notes/:id
func (h *NoteHandler) Update(c *gin.Context) {
	userID, note, ok := h.loadOwned(c)
	if !ok {
		return
	}
	var req noteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("title and content are required"))
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	if err := h.notes.Update(dbc, note.ID, map[string]interface{}{
		"title":   req.Title,
		"content": req.Content,
	}); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "update_note_failed", err)
		return
	}

	h.fireNoteChanged(c, userID, note.VideoID)
	response.RespondOK(c, gin.H{"status": "success"})
}

// DELETE /api/notes/:id
func (h *NoteHandler) Delete(c *gin.Context) {
	userID, note, ok := h.loadOwned(c)
	if !ok {
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	if err := h.notes.Delete(dbc, note.ID); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "delete_note_failed", err)
		return
	}

	h.fireNoteChanged(c, userID, note.VideoID)
	response.RespondOK(c, gin.H{"status": "success"})
}

func (h *NoteHandler) loadOwned(c *gin.Context) (uuid.UUID, *domain.Note, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "missing_identity", errors.New("X-User-ID header required"))
		return uuid.Nil, nil, false
	}
	noteID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_note_id", err)
		return uuid.Nil, nil, false
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	note, err := h.notes.GetByID(dbc, noteID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.RespondError(c, http.StatusNotFound, "note_not_found", err)
			return uuid.Nil, nil, false
		}
		response.RespondError(c, http.StatusInternalServerError, "note_lookup_failed", err)
		return uuid.Nil, nil, false
	}
	if note.UserID != userID {
		response.RespondError(c, http.StatusForbidden, "note_access_denied", errors.New("note does not belong to caller"))
		return uuid.Nil, nil, false
	}
	return userID, note, true
}

func (h *NoteHandler) fireNoteChanged(c *gin.Context, userID, videoID uuid.UUID) {
	if h.orchestrator == nil {
		return
	}
	err := h.orchestrator.HandleNoteChanged(c.Request.Context(), ingestion.OnNoteChanged{
		UserID:  userID,
		VideoID: videoID,
	})
	if err != nil {
		// The note itself is saved; the index catches up on the next sweep.
		h.log.Warn("Failed to dispatch note reindex", "video_id", videoID, "error", err)
	}
}
