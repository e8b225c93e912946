package assistant

import (
	"context"
	"fmt"

	"github.com/incuisenix/backend/internal/pkg/logger"
	"github.com/incuisenix/backend/internal/platform/openai"
)

// Intent is the closed result set of the remote query classifier.
type Intent string

const (
	IntentFetchNotes Intent = "Fetch_Notes"
	IntentRAG        Intent = "RAG"
	IntentGeneral    Intent = "General"
)

const classifierSystem = `You classify a student's question about a video into ` +
	`exactly one intent. "Fetch_Notes": the user wants to see their own saved ` +
	`notes for this video. "General": the question is general knowledge and not ` +
	`about this specific video's content. "RAG": the question is about this ` +
	`video's content and should be answered from the video's transcript and notes.`

var classifierSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"intent": map[string]any{
			"type": "string",
			"enum": []string{string(IntentFetchNotes), string(IntentRAG), string(IntentGeneral)},
		},
	},
	"required":             []string{"intent"},
	"additionalProperties": false,
}

// Classifier decides the routing strategy for queries that carry no
// cheap local signal (no summarize keyword, no time reference).
type Classifier struct {
	log *logger.Logger
	ai  openai.Client
}

func NewClassifier(log *logger.Logger, ai openai.Client) *Classifier {
	return &Classifier{log: log.With("service", "QueryClassifier"), ai: ai}
}

// Classify returns the intent for a query. Any classifier failure
// degrades to RAG; a broken classifier must not fail the request.
func (c *Classifier) Classify(ctx context.Context, query string) Intent {
	out, err := c.ai.GenerateJSON(ctx, classifierSystem,
		fmt.Sprintf("Question: %s", query),
		"query_intent", classifierSchema)
	if err != nil {
		c.log.Warn("Intent classification failed; defaulting to RAG", "error", err)
		return IntentRAG
	}

	raw, _ := out["intent"].(string)
	switch Intent(raw) {
	case IntentFetchNotes, IntentRAG, IntentGeneral:
		return Intent(raw)
	default:
		c.log.Warn("Intent classification returned unknown value; defaulting to RAG", "intent", raw)
		return IntentRAG
	}
}
