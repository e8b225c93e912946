package gcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	videointelligence "cloud.google.com/go/videointelligence/apiv1"
	vipb "cloud.google.com/go/videointelligence/apiv1/videointelligencepb"

	"github.com/incuisenix/backend/internal/domain"
	"github.com/incuisenix/backend/internal/pkg/ctxutil"
	"github.com/incuisenix/backend/internal/pkg/logger"
)

// VideoOCR detects on-screen text in a video staged in GCS and returns
// it as timestamped segments.
type VideoOCR interface {
	DetectTextGCS(ctx context.Context, gcsURI string) ([]domain.SegmentData, error)
	Close() error
}

type videoOCRService struct {
	log        *logger.Logger
	client     *videointelligence.Client
	maxRetries int
}

func NewVideoOCR(log *logger.Logger) (VideoOCR, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	c, err := videointelligence.NewClient(context.Background(), ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("videointelligence client: %w", err)
	}

	return &videoOCRService{
		log:        log.With("service", "gcp.VideoOCR"),
		client:     c,
		maxRetries: 4,
	}, nil
}

func (s *videoOCRService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *videoOCRService) DetectTextGCS(ctx context.Context, gcsURI string) ([]domain.SegmentData, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	if !strings.HasPrefix(gcsURI, "gs://") {
		return nil, fmt.Errorf("gcsURI must be gs://... got %q", gcsURI)
	}

	req := &vipb.AnnotateVideoRequest{
		InputUri: gcsURI,
		Features: []vipb.Feature{vipb.Feature_TEXT_DETECTION},
		VideoContext: &vipb.VideoContext{
			TextDetectionConfig: &vipb.TextDetectionConfig{},
		},
	}

	resp, err := retryGRPC(ctx, s.maxRetries, func() (*vipb.AnnotateVideoResponse, error) {
		op, err := s.client.AnnotateVideo(ctx, req)
		if err != nil {
			return nil, err
		}
		return op.Wait(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("videointelligence AnnotateVideo: %w", err)
	}

	if resp == nil || len(resp.AnnotationResults) == 0 || resp.AnnotationResults[0] == nil {
		return nil, nil
	}
	return parseTextAnnotations(resp.AnnotationResults[0].TextAnnotations), nil
}

func parseTextAnnotations(ann []*vipb.TextAnnotation) []domain.SegmentData {
	out := []domain.SegmentData{}
	for _, ta := range ann {
		if ta == nil || strings.TrimSpace(ta.Text) == "" {
			continue
		}
		for _, seg := range ta.Segments {
			if seg == nil || seg.Segment == nil {
				continue
			}
			out = append(out, domain.SegmentData{
				Start:   durToSec(seg.Segment.StartTimeOffset),
				Content: strings.TrimSpace(ta.Text),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
