package assistant

import (
	"fmt"
	"strings"

	"github.com/incuisenix/backend/internal/domain"
)

const summarizeSystem = `You are a study assistant for an e-learning platform. ` +
	`Summarize the provided lecture transcript faithfully. Cover the main topics ` +
	`in the order they are presented, keep the summary concise, and do not invent ` +
	`material that is not in the transcript.`

const timeFocusSystem = `You are a study assistant for an e-learning platform. ` +
	`The user is asking about a specific moment in a video. You are given only ` +
	`the transcript text active at that moment. Explain what is being discussed ` +
	`right now based solely on that text. If the text is not enough to answer, ` +
	`say so.`

const generalSystem = `You are a helpful study assistant for an e-learning ` +
	`platform. Answer the user's question from general knowledge, clearly and ` +
	`concisely.`

const ragSystem = `You are a study assistant for an e-learning platform. Answer ` +
	`the user's question using the provided context from the video's transcript, ` +
	`on-screen text, and the user's own notes. Ground your answer in the context. ` +
	`If the context says no context is available, or does not contain the answer, ` +
	`say that you don't have enough information from this video rather than guessing.`

func summarizeUser(transcript string) string {
	return "Transcript:\n" + transcript + "\n\nSummarize this video."
}

func timeFocusUser(segmentText, query string) string {
	return fmt.Sprintf("Transcript at this moment:\n%s\n\nQuestion: %s", segmentText, query)
}

func ragUser(context, history, query string) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	b.WriteString(context)
	if strings.TrimSpace(history) != "" {
		b.WriteString("\n\nConversation so far:\n")
		b.WriteString(history)
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	return b.String()
}

// formatHistory renders prior exchanges oldest-first for prompt use.
func formatHistory(messages []*domain.ConversationMessage) string {
	var b strings.Builder
	for _, m := range messages {
		if m == nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("User: ")
		b.WriteString(m.Query)
		b.WriteString("\nAssistant: ")
		b.WriteString(m.Answer)
	}
	return b.String()
}
