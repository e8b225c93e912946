package gcp

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/incuisenix/backend/internal/domain"
	"github.com/incuisenix/backend/internal/pkg/ctxutil"
	"github.com/incuisenix/backend/internal/pkg/logger"
)

// Speech produces timestamped transcript segments from audio already
// staged in GCS.
type Speech interface {
	TranscribeAudioGCS(ctx context.Context, gcsURI string) ([]domain.SegmentData, error)
	Close() error
}

type speechService struct {
	log        *logger.Logger
	client     *speech.Client
	maxRetries int

	languageCode string
	windowSec    float64
}

func NewSpeech(log *logger.Logger) (Speech, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	c, err := speech.NewClient(context.Background(), ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}

	return &speechService{
		log:          log.With("service", "gcp.Speech"),
		client:       c,
		maxRetries:   4,
		languageCode: "en-US",
		windowSec:    10.0,
	}, nil
}

func (s *speechService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *speechService) TranscribeAudioGCS(ctx context.Context, gcsURI string) ([]domain.SegmentData, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	if !strings.HasPrefix(gcsURI, "gs://") {
		return nil, fmt.Errorf("gcsURI must be gs://... got %q", gcsURI)
	}

	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               s.languageCode,
			EnableAutomaticPunctuation: true,
			EnableWordTimeOffsets:      true,
			Encoding:                   inferSpeechEncoding(gcsURI),
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Uri{Uri: gcsURI},
		},
	}

	resp, err := retryGRPC(ctx, s.maxRetries, func() (*speechpb.LongRunningRecognizeResponse, error) {
		op, err := s.client.LongRunningRecognize(ctx, req)
		if err != nil {
			return nil, err
		}
		return op.Wait(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("speech longrunningrecognize: %w", err)
	}

	return s.toSegments(resp), nil
}

func inferSpeechEncoding(gcsURI string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToLower(filepath.Ext(gcsURI)) {
	case ".wav":
		return speechpb.RecognitionConfig_LINEAR16
	case ".flac":
		return speechpb.RecognitionConfig_FLAC
	case ".mp3":
		return speechpb.RecognitionConfig_MP3
	case ".ogg", ".opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

type speechWord struct {
	w string
	s float64
	e float64
}

// toSegments folds word-level offsets into fixed time windows so each
// segment carries the start offset of its first word.
func (s *speechService) toSegments(resp *speechpb.LongRunningRecognizeResponse) []domain.SegmentData {
	if resp == nil || len(resp.Results) == 0 {
		return nil
	}

	words := []speechWord{}
	var full strings.Builder

	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		alt := r.Alternatives[0]
		if strings.TrimSpace(alt.Transcript) == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(strings.TrimSpace(alt.Transcript))

		for _, ww := range alt.Words {
			if ww == nil {
				continue
			}
			words = append(words, speechWord{
				w: ww.Word,
				s: durToSec(ww.StartTime),
				e: durToSec(ww.EndTime),
			})
		}
	}

	if len(words) == 0 {
		text := strings.TrimSpace(full.String())
		if text == "" {
			return nil
		}
		return []domain.SegmentData{{Start: 0, Content: text}}
	}

	segs := []domain.SegmentData{}
	curStart := words[0].s
	var buf strings.Builder

	flush := func() {
		txt := strings.TrimSpace(buf.String())
		if txt != "" {
			segs = append(segs, domain.SegmentData{Start: curStart, Content: txt})
		}
		buf.Reset()
	}

	for _, w := range words {
		if (w.s-curStart) >= s.windowSec && buf.Len() > 0 {
			flush()
			curStart = w.s
		}
		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(w.w)
	}
	flush()
	return segs
}

func durToSec(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return float64(d.Seconds) + float64(d.Nanos)/1e9
}
