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
	"github.com/incuisenix/backend/internal/http/response"
	"github.com/incuisenix/backend/internal/modules/ingestion"
	"github.com/incuisenix/backend/internal/pkg/dbctx"
	"github.com/incuisenix/backend/internal/pkg/logger"
)

type VideoHandler struct {
	log          *logger.Logger
	videos       materials.VideoRepo
	segments     materials.SegmentRepo
	orchestrator *ingestion.Orchestrator
	ensurer      *ingestion.Ensurer
}

func NewVideoHandler(
	log *logger.Logger,
	videos materials.VideoRepo,
	segments materials.SegmentRepo,
	orchestrator *ingestion.Orchestrator,
	ensurer *ingestion.Ensurer,
) *VideoHandler {
	return &VideoHandler{
		log:          log.With("handler", "VideoHandler"),
		videos:       videos,
		segments:     segments,
		orchestrator: orchestrator,
		ensurer:      ensurer,
	}
}

type registerVideoReq struct {
	CourseID  uuid.UUID `json:"course_id"`
	YoutubeID string    `json:"youtube_id"`
	VimeoID   string    `json:"vimeo_id"`
	Title     string    `json:"title"`
	VideoURL  string    `json:"video_url"`
}

// POST /api/videos
func (h *VideoHandler) Register(c *gin.Context) {
	var req registerVideoReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	req.YoutubeID = strings.TrimSpace(req.YoutubeID)
	req.VimeoID = strings.TrimSpace(req.VimeoID)
	if (req.YoutubeID == "") == (req.VimeoID == "") {
		response.RespondError(c, http.StatusBadRequest, "invalid_request",
			errors.New("exactly one of youtube_id or vimeo_id is required"))
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("title is required"))
		return
	}

	video := &domain.Video{
		CourseID: req.CourseID,
		Title:    req.Title,
		VideoURL: strings.TrimSpace(req.VideoURL),
	}
	if req.YoutubeID != "" {
		video.YoutubeID = &req.YoutubeID
	}
	if req.VimeoID != "" {
		video.VimeoID = &req.VimeoID
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	rows, err := h.videos.Create(dbc, []*domain.Video{video})
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "create_video_failed", err)
		return
	}
	video = rows[0]

	if h.orchestrator != nil {
		if err := h.orchestrator.HandleVideoCreated(c.Request.Context(), ingestion.OnVideoCreated{VideoID: video.ID}); err != nil {
			h.log.Warn("Failed to dispatch video ingest", "video_id", video.ID, "error", err)
		}
	}
	response.RespondOK(c, gin.H{"video": video})
}

// GET /api/videos/:video_id/status
func (h *VideoHandler) Status(c *gin.Context) {
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
	response.RespondOK(c, gin.H{
		"video_id":              video.PlatformID(),
		"transcript_status":     video.TranscriptStatus,
		"ocr_transcript_status": video.OCRTranscriptStatus,
		"index_status":          video.IndexStatus,
		"ocr_index_status":      video.OCRIndexStatus,
	})
}

// GET /api/videos/:video_id/transcript
func (h *VideoHandler) Transcript(c *gin.Context) {
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
	segs, err := h.segments.ListByVideoKind(dbc, video.ID, domain.SourceAudioTranscript)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_transcript_failed", err)
		return
	}
	out := make([]domain.SegmentData, 0, len(segs))
	for _, s := range segs {
		out = append(out, domain.SegmentData{Start: s.StartOffsetSeconds, Content: s.Text})
	}
	response.RespondOK(c, out)
}

type reindexReq struct {
	Force bool `json:"force"`
}

// POST /api/videos/:video_id/reindex
func (h *VideoHandler) Reindex(c *gin.Context) {
	// Body is optional; an absent or malformed one means force=false.
	var req reindexReq
	_ = c.ShouldBindJSON(&req)

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

	if err := h.ensurer.EnsureIndexed(c.Request.Context(), video.ID, req.Force); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "reindex_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"status": "accepted"})
}
