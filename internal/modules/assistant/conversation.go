package assistant

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	chatrepos "github.com/incuisenix/backend/internal/data/repos/chat"
	"github.com/incuisenix/backend/internal/domain"
	"github.com/incuisenix/backend/internal/pkg/dbctx"
	"github.com/incuisenix/backend/internal/pkg/logger"
)

const (
	conversationTitleMaxLen = 60
	historyWindow           = 10
)

// ConversationService owns the (user, video) message history the
// router's RAG path feeds back into prompts.
type ConversationService struct {
	log           *logger.Logger
	conversations chatrepos.ConversationRepo
	messages      chatrepos.MessageRepo
}

func NewConversationService(log *logger.Logger, conversations chatrepos.ConversationRepo, messages chatrepos.MessageRepo) *ConversationService {
	return &ConversationService{
		log:           log.With("service", "ConversationService"),
		conversations: conversations,
		messages:      messages,
	}
}

// Resume returns the latest conversation for the pair, creating one
// when none exists. forceNew always starts a fresh conversation.
func (s *ConversationService) Resume(dbc dbctx.Context, userID, videoID, courseID uuid.UUID, forceNew bool) (*domain.Conversation, error) {
	if forceNew {
		return s.conversations.Create(dbc, &domain.Conversation{
			UserID:   userID,
			VideoID:  videoID,
			CourseID: courseID,
			Title:    domain.DefaultConversationTitle,
		})
	}
	return s.conversations.GetOrCreateLatest(dbc, userID, videoID, courseID)
}

// Locate resolves the conversation one routed query should land in. A
// supplied conversation ID wins when it belongs to the same user and
// video; a stale or foreign ID silently falls back to the latest
// conversation, and forceNew always starts fresh.
func (s *ConversationService) Locate(dbc dbctx.Context, conversationID *uuid.UUID, userID, videoID, courseID uuid.UUID, forceNew bool) (*domain.Conversation, error) {
	if !forceNew && conversationID != nil && *conversationID != uuid.Nil {
		conv, err := s.conversations.GetByID(dbc, *conversationID)
		if err == nil && conv.UserID == userID && conv.VideoID == videoID {
			return conv, nil
		}
		s.log.Warn("Requested conversation not usable; resuming latest", "conversation_id", *conversationID)
	}
	return s.Resume(dbc, userID, videoID, courseID, forceNew)
}

// History returns the recent exchanges in chronological order for
// prompt assembly.
func (s *ConversationService) History(dbc dbctx.Context, conversationID uuid.UUID) ([]*domain.ConversationMessage, error) {
	return s.messages.ListRecent(dbc, conversationID, historyWindow)
}

// List returns all of a user's conversations, newest first.
func (s *ConversationService) List(dbc dbctx.Context, userID uuid.UUID) ([]*domain.Conversation, error) {
	return s.conversations.ListByUser(dbc, userID)
}

// Messages returns a conversation's full history after checking the
// caller owns it.
func (s *ConversationService) Messages(dbc dbctx.Context, conversationID, userID uuid.UUID) ([]*domain.ConversationMessage, error) {
	conv, err := s.conversations.GetByID(dbc, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, fmt.Errorf("conversation %s does not belong to caller", conversationID)
	}
	return s.messages.ListByConversation(dbc, conversationID)
}

// AppendExchange records one query/answer pair and lazily titles the
// conversation from its first substantive query.
func (s *ConversationService) AppendExchange(dbc dbctx.Context, conversation *domain.Conversation, query, answer string) (*domain.ConversationMessage, error) {
	if conversation == nil {
		return nil, fmt.Errorf("missing conversation")
	}

	msg, err := s.messages.Create(dbc, &domain.ConversationMessage{
		ConversationID: conversation.ID,
		Query:          query,
		Answer:         answer,
	})
	if err != nil {
		return nil, err
	}

	if conversation.Title == domain.DefaultConversationTitle {
		if title := titleFromQuery(query); title != "" {
			if err := s.conversations.SetTitle(dbc, conversation.ID, title); err != nil {
				s.log.Warn("Failed to set conversation title", "conversation_id", conversation.ID, "error", err)
			} else {
				conversation.Title = title
			}
		}
	}

	if err := s.conversations.Touch(dbc, conversation.ID); err != nil {
		s.log.Warn("Failed to touch conversation", "conversation_id", conversation.ID, "error", err)
	}
	return msg, nil
}

// titleFromQuery derives a display title from the first real question.
// Placeholder queries (e.g. the client's "Start" probe) don't count.
func titleFromQuery(query string) string {
	q := strings.TrimSpace(query)
	if q == "" || strings.EqualFold(q, "start") {
		return ""
	}
	runes := []rune(q)
	if len(runes) > conversationTitleMaxLen {
		return strings.TrimSpace(string(runes[:conversationTitleMaxLen])) + "..."
	}
	return q
}
