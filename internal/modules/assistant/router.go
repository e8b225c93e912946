package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/incuisenix/backend/internal/data/repos/materials"
	"github.com/incuisenix/backend/internal/domain"
	"github.com/incuisenix/backend/internal/modules/retrieval"
	"github.com/incuisenix/backend/internal/pkg/dbctx"
	"github.com/incuisenix/backend/internal/pkg/logger"
	"github.com/incuisenix/backend/internal/platform/openai"
)

// User-visible fallbacks for missing data. Missing data is never an
// error on this path, always a legible answer.
const (
	NoTranscriptFallback = "I couldn't find a transcript to summarize for this video."
	NoNotesFallback      = "You haven't created any notes for this video yet."
)

const notesListHeader = "Here are your notes for this video:\n\n"

var summarizeKeywords = []string{"summarize", "summary", "overview", "tldr", "key points"}

const notePreviewLen = 200

// Request is one routed query. PlatformID is the video's external
// hosting ID; Timestamp is the playback position when the user asked.
type Request struct {
	Query      string
	PlatformID string
	Timestamp  float64
	History    []*domain.ConversationMessage
	UserID     uuid.UUID // uuid.Nil for anonymous callers
}

// Router re-decides a strategy per query. Strategies are not persisted
// state; the ordering runs cheap local checks before the remote
// classification call.
type Router struct {
	log        *logger.Logger
	ai         openai.Client
	classifier *Classifier
	videos     materials.VideoRepo
	segments   materials.SegmentRepo
	notes      materials.NoteRepo
	hybrid     *retrieval.Hybrid
}

func NewRouter(
	log *logger.Logger,
	ai openai.Client,
	videos materials.VideoRepo,
	segments materials.SegmentRepo,
	notes materials.NoteRepo,
	hybrid *retrieval.Hybrid,
) (*Router, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ai == nil {
		return nil, fmt.Errorf("ai client required")
	}
	if hybrid == nil {
		return nil, fmt.Errorf("hybrid retriever required")
	}
	return &Router{
		log:        log.With("service", "QueryRouter"),
		ai:         ai,
		classifier: NewClassifier(log, ai),
		videos:     videos,
		segments:   segments,
		notes:      notes,
		hybrid:     hybrid,
	}, nil
}

// Answer routes one query to a strategy and returns the produced text.
func (r *Router) Answer(ctx context.Context, req Request) (string, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return "", fmt.Errorf("empty query")
	}

	dbc := dbctx.New(ctx)
	video, err := r.videos.GetByPlatformID(dbc, req.PlatformID)
	if err != nil {
		return "", fmt.Errorf("resolve video %q: %w", req.PlatformID, err)
	}

	if containsSummarizeKeyword(query) {
		return r.summarize(ctx, dbc, video)
	}

	if t, ok := ParseTime(query, req.Timestamp); ok {
		answer, found, err := r.timeLookup(ctx, dbc, video, query, t)
		if err != nil {
			return "", err
		}
		if found {
			return answer, nil
		}
		// Nothing indexed that early; the time reference is not fatal.
	}

	intent := r.classifier.Classify(ctx, query)

	if intent == IntentFetchNotes && req.UserID == uuid.Nil {
		// Can't list notes for an anonymous caller.
		intent = IntentRAG
	}

	switch intent {
	case IntentFetchNotes:
		return r.listNotes(dbc, req.UserID, video)
	case IntentGeneral:
		return r.ai.GenerateText(ctx, generalSystem, query)
	default:
		return r.rag(ctx, video, req.UserID, query, req.History)
	}
}

func containsSummarizeKeyword(query string) bool {
	q := strings.ToLower(query)
	for _, kw := range summarizeKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// summarize concatenates the entire ordered transcript, not a retrieval
// subset. Summarization needs full coverage.
func (r *Router) summarize(ctx context.Context, dbc dbctx.Context, video *domain.Video) (string, error) {
	segs, err := r.segments.ListByVideoKind(dbc, video.ID, domain.SourceAudioTranscript)
	if err != nil {
		return "", fmt.Errorf("list transcript segments: %w", err)
	}
	if len(segs) == 0 {
		return NoTranscriptFallback, nil
	}

	var b strings.Builder
	for _, s := range segs {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(s.Text)
	}
	return r.ai.GenerateText(ctx, summarizeSystem, summarizeUser(b.String()))
}

// timeLookup answers from the single transcript segment active at the
// resolved time. found is false when no segment starts at or before it.
func (r *Router) timeLookup(ctx context.Context, dbc dbctx.Context, video *domain.Video, query string, t float64) (string, bool, error) {
	seg, err := r.segments.LatestAtOrBefore(dbc, video.ID, domain.SourceAudioTranscript, t)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("time lookup: %w", err)
	}
	answer, err := r.ai.GenerateText(ctx, timeFocusSystem, timeFocusUser(seg.Text, query))
	if err != nil {
		return "", false, err
	}
	return answer, true, nil
}

// listNotes is a deterministic database read; no retrieval, no LLM.
func (r *Router) listNotes(dbc dbctx.Context, userID uuid.UUID, video *domain.Video) (string, error) {
	rows, err := r.notes.ListByUserVideo(dbc, userID, video.ID)
	if err != nil {
		return "", fmt.Errorf("list notes: %w", err)
	}
	if len(rows) == 0 {
		return NoNotesFallback, nil
	}

	var b strings.Builder
	b.WriteString(notesListHeader)
	for i, n := range rows {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("* **(at %s) - %s**\n  %s",
			formatTimestamp(n.VideoTimestamp), n.Title, preview(n.Content)))
	}
	return b.String(), nil
}

func formatTimestamp(seconds float64) string {
	total := int(seconds)
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func preview(content string) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if len(runes) <= notePreviewLen {
		return content
	}
	return strings.TrimSpace(string(runes[:notePreviewLen])) + "..."
}

func (r *Router) rag(ctx context.Context, video *domain.Video, userID uuid.UUID, query string, history []*domain.ConversationMessage) (string, error) {
	retriever := r.hybrid.GetRetriever(video, userID)
	hits, err := retriever.Retrieve(ctx, query)
	if err != nil {
		return "", fmt.Errorf("retrieve context: %w", err)
	}

	var b strings.Builder
	for _, hit := range hits {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(hit.Chunk.Text)
	}
	contextText := b.String()
	if strings.TrimSpace(contextText) == "" {
		contextText = retrieval.NoContextSentinel
	}

	return r.ai.GenerateText(ctx, ragSystem, ragUser(contextText, formatHistory(history), query))
}
