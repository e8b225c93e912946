package assistant

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/incuisenix/backend/internal/data/db"
	chatrepos "github.com/incuisenix/backend/internal/data/repos/chat"
	"github.com/incuisenix/backend/internal/domain"
	"github.com/incuisenix/backend/internal/pkg/dbctx"
)

type conversationFixture struct {
	svc      *ConversationService
	messages chatrepos.MessageRepo
	dbc      dbctx.Context
	userID   uuid.UUID
	videoID  uuid.UUID
	courseID uuid.UUID
}

func newConversationFixture(t *testing.T) *conversationFixture {
	t.Helper()
	log := testLogger(t)

	svc, err := db.NewSQLiteService(log, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	gdb := svc.DB()
	if err := db.AutoMigrateAll(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	conversations := chatrepos.NewConversationRepo(gdb, log)
	messages := chatrepos.NewMessageRepo(gdb, log)

	return &conversationFixture{
		svc:      NewConversationService(log, conversations, messages),
		messages: messages,
		dbc:      dbctx.New(context.Background()),
		userID:   uuid.New(),
		videoID:  uuid.New(),
		courseID: uuid.New(),
	}
}

func TestResumeCreatesAndReuses(t *testing.T) {
	f := newConversationFixture(t)

	first, err := f.svc.Resume(f.dbc, f.userID, f.videoID, f.courseID, false)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if first.Title != domain.DefaultConversationTitle {
		t.Fatalf("new conversation title = %q", first.Title)
	}

	again, err := f.svc.Resume(f.dbc, f.userID, f.videoID, f.courseID, false)
	if err != nil {
		t.Fatalf("resume again: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("resume should reuse the latest conversation")
	}

	fresh, err := f.svc.Resume(f.dbc, f.userID, f.videoID, f.courseID, true)
	if err != nil {
		t.Fatalf("force new: %v", err)
	}
	if fresh.ID == first.ID {
		t.Fatalf("forceNew should create a distinct conversation")
	}
}

func TestLocateSuppliedIDWins(t *testing.T) {
	f := newConversationFixture(t)

	older, err := f.svc.Resume(f.dbc, f.userID, f.videoID, f.courseID, false)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := f.svc.Resume(f.dbc, f.userID, f.videoID, f.courseID, true); err != nil {
		t.Fatalf("create newer: %v", err)
	}

	got, err := f.svc.Locate(f.dbc, &older.ID, f.userID, f.videoID, f.courseID, false)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if got.ID != older.ID {
		t.Fatalf("supplied conversation id should win, got %s", got.ID)
	}
}

func TestLocateForeignIDFallsBack(t *testing.T) {
	f := newConversationFixture(t)

	mine, err := f.svc.Resume(f.dbc, f.userID, f.videoID, f.courseID, false)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	theirs, err := f.svc.Resume(f.dbc, uuid.New(), f.videoID, f.courseID, false)
	if err != nil {
		t.Fatalf("resume other user: %v", err)
	}

	got, err := f.svc.Locate(f.dbc, &theirs.ID, f.userID, f.videoID, f.courseID, false)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if got.ID != mine.ID {
		t.Fatalf("foreign conversation id should fall back to the caller's latest")
	}

	stale := uuid.New()
	got, err = f.svc.Locate(f.dbc, &stale, f.userID, f.videoID, f.courseID, false)
	if err != nil {
		t.Fatalf("locate with stale id: %v", err)
	}
	if got.ID != mine.ID {
		t.Fatalf("stale conversation id should fall back to the caller's latest")
	}
}

func TestLocateForceNewIgnoresSuppliedID(t *testing.T) {
	f := newConversationFixture(t)

	existing, err := f.svc.Resume(f.dbc, f.userID, f.videoID, f.courseID, false)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}

	got, err := f.svc.Locate(f.dbc, &existing.ID, f.userID, f.videoID, f.courseID, true)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if got.ID == existing.ID {
		t.Fatalf("forceNew should ignore the supplied id and start fresh")
	}
}

func TestAppendExchangeLazyTitle(t *testing.T) {
	f := newConversationFixture(t)

	conv, err := f.svc.Resume(f.dbc, f.userID, f.videoID, f.courseID, false)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}

	if _, err := f.svc.AppendExchange(f.dbc, conv, "what are slices?", "they wrap arrays"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if conv.Title != "what are slices?" {
		t.Fatalf("conversation should take its title from the first real query, got %q", conv.Title)
	}

	// The title is set once; later queries must not rename it.
	if _, err := f.svc.AppendExchange(f.dbc, conv, "and maps?", "hash tables"); err != nil {
		t.Fatalf("append second: %v", err)
	}
	if conv.Title != "what are slices?" {
		t.Fatalf("title should be stable after the first exchange, got %q", conv.Title)
	}
}

func TestAppendExchangeStartProbeDoesNotTitle(t *testing.T) {
	f := newConversationFixture(t)

	conv, err := f.svc.Resume(f.dbc, f.userID, f.videoID, f.courseID, false)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := f.svc.AppendExchange(f.dbc, conv, "Start", "hello"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if conv.Title != domain.DefaultConversationTitle {
		t.Fatalf("the Start probe must not become the title, got %q", conv.Title)
	}
}

func TestAppendExchangeTitleTruncation(t *testing.T) {
	f := newConversationFixture(t)

	conv, err := f.svc.Resume(f.dbc, f.userID, f.videoID, f.courseID, false)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}

	long := strings.Repeat("q", 100)
	if _, err := f.svc.AppendExchange(f.dbc, conv, long, "answer"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if !strings.HasSuffix(conv.Title, "...") {
		t.Fatalf("long title should be elided, got %q", conv.Title)
	}
	if len([]rune(conv.Title)) != conversationTitleMaxLen+3 {
		t.Fatalf("title length = %d runes, want %d", len([]rune(conv.Title)), conversationTitleMaxLen+3)
	}
}

func TestAppendExchangeNilConversation(t *testing.T) {
	f := newConversationFixture(t)
	if _, err := f.svc.AppendExchange(f.dbc, nil, "q", "a"); err == nil {
		t.Fatalf("expected error for nil conversation")
	}
}

func TestHistoryWindow(t *testing.T) {
	f := newConversationFixture(t)

	conv, err := f.svc.Resume(f.dbc, f.userID, f.videoID, f.courseID, false)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}

	base := time.Now().Add(-time.Hour).UTC()
	for i := 0; i < historyWindow+3; i++ {
		_, err := f.messages.Create(f.dbc, &domain.ConversationMessage{
			ConversationID: conv.ID,
			Query:          strings.Repeat("q", i+1),
			Answer:         "a",
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("create message %d: %v", i, err)
		}
	}

	got, err := f.svc.History(f.dbc, conv.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != historyWindow {
		t.Fatalf("history length = %d, want %d", len(got), historyWindow)
	}
	// Oldest of the window first, newest last; the three earliest
	// messages fall off.
	if got[0].Query != strings.Repeat("q", 4) {
		t.Fatalf("window should start at the 4th message, got %q", got[0].Query)
	}
	if got[len(got)-1].Query != strings.Repeat("q", historyWindow+3) {
		t.Fatalf("window should end at the newest message, got %q", got[len(got)-1].Query)
	}
}

func TestMessagesOwnershipCheck(t *testing.T) {
	f := newConversationFixture(t)

	conv, err := f.svc.Resume(f.dbc, f.userID, f.videoID, f.courseID, false)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := f.svc.AppendExchange(f.dbc, conv, "q", "a"); err != nil {
		t.Fatalf("append: %v", err)
	}

	msgs, err := f.svc.Messages(f.dbc, conv.ID, f.userID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}

	if _, err := f.svc.Messages(f.dbc, conv.ID, uuid.New()); err == nil {
		t.Fatalf("foreign caller must not read the conversation")
	}
}
