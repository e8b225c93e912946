package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/incuisenix/backend/internal/data/repos/materials"
	"github.com/incuisenix/backend/internal/domain"
	"github.com/incuisenix/backend/internal/pkg/dbctx"
	"github.com/incuisenix/backend/internal/pkg/logger"
	"github.com/incuisenix/backend/internal/platform/gcp"
	"github.com/incuisenix/backend/internal/platform/localmedia"
)

// TranscriptService turns a video's audio into ordered transcript
// segments: ffmpeg audio extract, GCS stage, long-running speech
// recognition, wholesale segment replace.
type TranscriptService struct {
	log      *logger.Logger
	media    localmedia.Tools
	bucket   gcp.Bucket
	speech   gcp.Speech
	videos   materials.VideoRepo
	segments materials.SegmentRepo
}

func NewTranscriptService(
	log *logger.Logger,
	media localmedia.Tools,
	bucket gcp.Bucket,
	speech gcp.Speech,
	videos materials.VideoRepo,
	segments materials.SegmentRepo,
) *TranscriptService {
	return &TranscriptService{
		log:      log.With("service", "TranscriptService"),
		media:    media,
		bucket:   bucket,
		speech:   speech,
		videos:   videos,
		segments: segments,
	}
}

// Generate produces transcript segments for a video. The status field
// is written before and after so a crash mid-pipeline is visible to the
// reconciliation sweep. The index status is reset to pending so the
// index build stage knows the segment set changed.
func (s *TranscriptService) Generate(ctx context.Context, videoID uuid.UUID) error {
	dbc := dbctx.New(ctx)

	video, err := s.videos.GetByID(dbc, videoID)
	if err != nil {
		return fmt.Errorf("load video %s: %w", videoID, err)
	}
	if video.VideoURL == "" {
		return s.fail(dbc, videoID, "transcript_status", fmt.Errorf("video %s has no source url", videoID))
	}

	if err := s.videos.UpdateStatusFields(dbc, videoID, map[string]interface{}{
		"transcript_status": domain.StatusProcessing,
	}); err != nil {
		return fmt.Errorf("mark transcript processing: %w", err)
	}
	s.appendLog(dbc, videoID, "transcript: extraction started")

	segs, err := s.extract(ctx, video)
	if err != nil {
		return s.fail(dbc, videoID, "transcript_status", err)
	}

	rows := make([]*domain.Segment, 0, len(segs))
	for _, sd := range segs {
		rows = append(rows, &domain.Segment{
			CourseID:           video.CourseID,
			StartOffsetSeconds: sd.Start,
			Text:               sd.Content,
		})
	}
	if err := s.segments.Replace(dbc, videoID, domain.SourceAudioTranscript, rows); err != nil {
		return s.fail(dbc, videoID, "transcript_status", fmt.Errorf("replace transcript segments: %w", err))
	}

	if err := s.videos.UpdateStatusFields(dbc, videoID, map[string]interface{}{
		"transcript_status": domain.StatusComplete,
		"index_status":      domain.StatusPending,
	}); err != nil {
		return fmt.Errorf("mark transcript complete: %w", err)
	}
	s.appendLog(dbc, videoID, fmt.Sprintf("transcript: %d segments extracted", len(rows)))
	return nil
}

func (s *TranscriptService) extract(ctx context.Context, video *domain.Video) ([]domain.SegmentData, error) {
	// main constructs the service with nil clients when credentials are
	// missing; the video must fail legibly, not panic mid-pipeline.
	if s.bucket == nil || s.speech == nil {
		return nil, fmt.Errorf("speech backend not configured: check GCP credentials and GCS_STAGING_BUCKET")
	}

	workDir, err := os.MkdirTemp("", "transcript-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	audioPath := filepath.Join(workDir, "audio.flac")
	if err := s.media.ExtractAudio(ctx, video.VideoURL, audioPath); err != nil {
		return nil, err
	}

	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open extracted audio: %w", err)
	}
	defer f.Close()

	objectName := fmt.Sprintf("audio/%s-%d.flac", video.PlatformID(), time.Now().UnixNano())
	gcsURI, err := s.bucket.Upload(ctx, objectName, f, "audio/flac")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.bucket.Delete(context.WithoutCancel(ctx), objectName); err != nil {
			s.log.Warn("Failed to delete staged audio", "object", objectName, "error", err)
		}
	}()

	return s.speech.TranscribeAudioGCS(ctx, gcsURI)
}

func (s *TranscriptService) fail(dbc dbctx.Context, videoID uuid.UUID, field string, cause error) error {
	if err := s.videos.UpdateStatusFields(dbc, videoID, map[string]interface{}{field: domain.StatusFailed}); err != nil {
		s.log.Error("Failed to mark pipeline failure", "video_id", videoID, "field", field, "error", err)
	}
	s.appendLog(dbc, videoID, field+" failed: "+cause.Error())
	return cause
}

func (s *TranscriptService) appendLog(dbc dbctx.Context, videoID uuid.UUID, line string) {
	if err := s.videos.AppendIngestLog(dbc, videoID, []string{time.Now().UTC().Format(time.RFC3339) + " " + line}); err != nil {
		s.log.Warn("Failed to append ingest log", "video_id", videoID, "error", err)
	}
}
