package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/incuisenix/backend/internal/data/repos/materials"
	"github.com/incuisenix/backend/internal/domain"
	"github.com/incuisenix/backend/internal/pkg/dbctx"
	"github.com/incuisenix/backend/internal/pkg/envutil"
	"github.com/incuisenix/backend/internal/pkg/logger"
	"github.com/incuisenix/backend/internal/platform/gcp"
	"github.com/incuisenix/backend/internal/platform/localmedia"
)

// OCRService extracts on-screen text segments. Two strategies: stage
// the whole video in GCS and run Video Intelligence text detection
// (default), or sample frames with ffmpeg and OCR each through Vision
// (OCR_MODE=frames). The OCR path is best-effort; its failure never
// blocks the transcript pipeline.
type OCRService struct {
	log      *logger.Logger
	media    localmedia.Tools
	bucket   gcp.Bucket
	videoOCR gcp.VideoOCR
	vision   gcp.Vision
	videos   materials.VideoRepo
	segments materials.SegmentRepo

	mode          string
	frameInterval float64
}

func NewOCRService(
	log *logger.Logger,
	media localmedia.Tools,
	bucket gcp.Bucket,
	videoOCR gcp.VideoOCR,
	vision gcp.Vision,
	videos materials.VideoRepo,
	segments materials.SegmentRepo,
) *OCRService {
	return &OCRService{
		log:           log.With("service", "OCRService"),
		media:         media,
		bucket:        bucket,
		videoOCR:      videoOCR,
		vision:        vision,
		videos:        videos,
		segments:      segments,
		mode:          strings.ToLower(envutil.String("OCR_MODE", "video")),
		frameInterval: envutil.Float("OCR_FRAME_INTERVAL_SECONDS", 10.0),
	}
}

// Generate produces deduplicated ocr segments for a video and resets
// the ocr index status for rebuild.
func (s *OCRService) Generate(ctx context.Context, videoID uuid.UUID) error {
	dbc := dbctx.New(ctx)

	video, err := s.videos.GetByID(dbc, videoID)
	if err != nil {
		return fmt.Errorf("load video %s: %w", videoID, err)
	}
	if video.VideoURL == "" {
		return s.fail(dbc, videoID, fmt.Errorf("video %s has no source url", videoID))
	}

	if err := s.videos.UpdateStatusFields(dbc, videoID, map[string]interface{}{
		"ocr_transcript_status": domain.StatusProcessing,
	}); err != nil {
		return fmt.Errorf("mark ocr processing: %w", err)
	}

	var segs []domain.SegmentData
	if s.mode == "frames" {
		segs, err = s.extractFrames(ctx, video)
	} else {
		segs, err = s.extractVideo(ctx, video)
	}
	if err != nil {
		return s.fail(dbc, videoID, err)
	}
	segs = dedupSegments(segs)

	rows := make([]*domain.Segment, 0, len(segs))
	for _, sd := range segs {
		rows = append(rows, &domain.Segment{
			CourseID:           video.CourseID,
			StartOffsetSeconds: sd.Start,
			Text:               sd.Content,
		})
	}
	if err := s.segments.Replace(dbc, videoID, domain.SourceOCR, rows); err != nil {
		return s.fail(dbc, videoID, fmt.Errorf("replace ocr segments: %w", err))
	}

	if err := s.videos.UpdateStatusFields(dbc, videoID, map[string]interface{}{
		"ocr_transcript_status": domain.StatusComplete,
		"ocr_index_status":      domain.StatusPending,
	}); err != nil {
		return fmt.Errorf("mark ocr complete: %w", err)
	}
	return nil
}

func (s *OCRService) extractVideo(ctx context.Context, video *domain.Video) ([]domain.SegmentData, error) {
	if s.bucket == nil || s.videoOCR == nil {
		return nil, fmt.Errorf("video ocr backend not configured: check GCP credentials and GCS_STAGING_BUCKET")
	}

	f, err := os.Open(video.VideoURL)
	if err == nil {
		defer f.Close()
		objectName := fmt.Sprintf("video/%s-%d%s", video.PlatformID(), time.Now().UnixNano(), filepath.Ext(video.VideoURL))
		gcsURI, upErr := s.bucket.Upload(ctx, objectName, f, "video/mp4")
		if upErr != nil {
			return nil, upErr
		}
		defer func() {
			if err := s.bucket.Delete(context.WithoutCancel(ctx), objectName); err != nil {
				s.log.Warn("Failed to delete staged video", "object", objectName, "error", err)
			}
		}()
		return s.videoOCR.DetectTextGCS(ctx, gcsURI)
	}

	if strings.HasPrefix(video.VideoURL, "gs://") {
		return s.videoOCR.DetectTextGCS(ctx, video.VideoURL)
	}
	// Remote http(s) source: fall back to frame sampling, which ffmpeg
	// can read directly from the URL.
	return s.extractFrames(ctx, video)
}

func (s *OCRService) extractFrames(ctx context.Context, video *domain.Video) ([]domain.SegmentData, error) {
	if s.vision == nil {
		return nil, fmt.Errorf("frame ocr backend not configured: check GCP credentials")
	}

	workDir, err := os.MkdirTemp("", "ocr-frames-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	frames, err := s.media.ExtractFrames(ctx, video.VideoURL, workDir, s.frameInterval)
	if err != nil {
		return nil, err
	}

	out := []domain.SegmentData{}
	for _, frame := range frames {
		raw, err := os.ReadFile(frame.Path)
		if err != nil {
			return nil, fmt.Errorf("read frame %s: %w", frame.Path, err)
		}
		text, err := s.vision.DetectText(ctx, raw)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, domain.SegmentData{Start: frame.OffsetSeconds, Content: text})
	}
	return out, nil
}

// dedupSegments drops segments whose text repeats the previous one.
// Slides and code stay on screen across many samples.
func dedupSegments(segs []domain.SegmentData) []domain.SegmentData {
	out := make([]domain.SegmentData, 0, len(segs))
	prev := ""
	for _, sd := range segs {
		norm := strings.Join(strings.Fields(strings.ToLower(sd.Content)), " ")
		if norm == "" || norm == prev {
			continue
		}
		out = append(out, sd)
		prev = norm
	}
	return out
}

func (s *OCRService) fail(dbc dbctx.Context, videoID uuid.UUID, cause error) error {
	if err := s.videos.UpdateStatusFields(dbc, videoID, map[string]interface{}{
		"ocr_transcript_status": domain.StatusFailed,
	}); err != nil {
		s.log.Error("Failed to mark ocr failure", "video_id", videoID, "error", err)
	}
	return cause
}
