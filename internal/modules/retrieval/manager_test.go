package retrieval

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/incuisenix/backend/internal/data/db"
	"github.com/incuisenix/backend/internal/data/repos/materials"
	"github.com/incuisenix/backend/internal/domain"
	"github.com/incuisenix/backend/internal/pkg/dbctx"
)

type managerFixture struct {
	manager  *Manager
	videos   materials.VideoRepo
	segments materials.SegmentRepo
	notes    materials.NoteRepo
	root     string
	dbc      dbctx.Context
}

type recordingLocker struct {
	acquired []string
	released []string
}

func (l *recordingLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	l.acquired = append(l.acquired, name)
	return true, nil
}

func (l *recordingLocker) Release(ctx context.Context, name string) error {
	l.released = append(l.released, name)
	return nil
}

func newManagerFixture(t *testing.T, embed Embedder) (*managerFixture, *recordingLocker) {
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

	videos := materials.NewVideoRepo(gdb, log)
	segments := materials.NewSegmentRepo(gdb, log)
	notes := materials.NewNoteRepo(gdb, log)
	lock := &recordingLocker{}
	root := t.TempDir()

	manager, err := NewManager(log, embed, videos, segments, notes, lock, root)
	if err != nil {
		t.Fatalf("init manager: %v", err)
	}
	return &managerFixture{
		manager:  manager,
		videos:   videos,
		segments: segments,
		notes:    notes,
		root:     root,
		dbc:      dbctx.New(context.Background()),
	}, lock
}

func (f *managerFixture) createVideo(t *testing.T, platformID string) *domain.Video {
	t.Helper()
	id := platformID
	rows, err := f.videos.Create(f.dbc, []*domain.Video{{
		CourseID:  uuid.New(),
		YoutubeID: &id,
		Title:     "test video",
	}})
	if err != nil {
		t.Fatalf("create video: %v", err)
	}
	return rows[0]
}

func (f *managerFixture) replaceSegments(t *testing.T, videoID uuid.UUID, kind domain.SourceKind, texts ...string) {
	t.Helper()
	rows := make([]*domain.Segment, 0, len(texts))
	for i, text := range texts {
		rows = append(rows, &domain.Segment{
			CourseID:           uuid.New(),
			StartOffsetSeconds: float64(i * 10),
			Text:               text,
		})
	}
	if err := f.segments.Replace(f.dbc, videoID, kind, rows); err != nil {
		t.Fatalf("replace segments: %v", err)
	}
}

func TestBuildVideoIndexComplete(t *testing.T) {
	f, lock := newManagerFixture(t, stubEmbedder{vec: []float32{1, 0, 0}})
	video := f.createVideo(t, "yt-build")
	f.replaceSegments(t, video.ID, domain.SourceAudioTranscript, "intro text", "second part")

	if err := f.manager.BuildVideoIndex(context.Background(), video.ID, domain.SourceAudioTranscript); err != nil {
		t.Fatalf("build: %v", err)
	}

	got, err := f.videos.GetByID(f.dbc, video.ID)
	if err != nil {
		t.Fatalf("reload video: %v", err)
	}
	if got.IndexStatus != domain.StatusComplete {
		t.Fatalf("index_status = %q, want complete", got.IndexStatus)
	}

	key := TranscriptKey("yt-build")
	if !f.manager.IndexExists(key) {
		t.Fatalf("artifact missing after successful build")
	}
	ix := f.manager.LoadIndex(key)
	if ix == nil || len(ix.Chunks) == 0 {
		t.Fatalf("built index is empty")
	}

	name := key.LockName()
	if len(lock.acquired) != 1 || lock.acquired[0] != name {
		t.Fatalf("build lock not taken, acquired=%v", lock.acquired)
	}
	if len(lock.released) != 1 || lock.released[0] != name {
		t.Fatalf("build lock not released, released=%v", lock.released)
	}
}

// textEmbedder derives each vector from the input's bytes, so distinct
// chunks get distinct embeddings and a chunk-to-vector mismatch changes
// search results.
type textEmbedder struct{}

func (textEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		v := make([]float32, 4)
		for j, b := range []byte(in) {
			v[j%4] += float32(b%17) + 1
		}
		out[i] = v
	}
	return out, nil
}

func TestBuildVideoIndexRebuildAnswersIdentically(t *testing.T) {
	// Rebuilding over an unchanged segment set must produce an artifact
	// that ranks the same chunks in the same order. Concurrent batch
	// embedding must not detach vectors from their chunks.
	f, _ := newManagerFixture(t, textEmbedder{})
	video := f.createVideo(t, "yt-stable")

	// Enough text to spread the embedding across multiple batches.
	texts := make([]string, 0, 120)
	for i := 0; i < 120; i++ {
		texts = append(texts, strings.Repeat(fmt.Sprintf("segment %d topic text ", i), 25))
	}
	f.replaceSegments(t, video.ID, domain.SourceAudioTranscript, texts...)

	qv, err := textEmbedder{}.Embed(context.Background(), []string{"the select statement"})
	if err != nil {
		t.Fatalf("embed query: %v", err)
	}

	key := TranscriptKey("yt-stable")
	buildAndSearch := func() []Scored {
		if err := f.manager.BuildVideoIndex(context.Background(), video.ID, domain.SourceAudioTranscript); err != nil {
			t.Fatalf("build: %v", err)
		}
		ix := f.manager.LoadIndex(key)
		if ix == nil {
			t.Fatalf("artifact missing after build")
		}
		return ix.Search(qv[0], 3)
	}

	first := buildAndSearch()
	second := buildAndSearch()
	if len(first) < 2 {
		t.Fatalf("expected a multi-chunk index, got %d hits", len(first))
	}
	if len(second) != len(first) {
		t.Fatalf("rebuild changed result count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Chunk.Text != second[i].Chunk.Text {
			t.Fatalf("rebuild reordered results at rank %d:\nfirst  %q\nsecond %q",
				i, first[i].Chunk.Text, second[i].Chunk.Text)
		}
		if first[i].Score != second[i].Score {
			t.Fatalf("rebuild changed score at rank %d: %v vs %v", i, first[i].Score, second[i].Score)
		}
		if first[i].Chunk.StartOffsetSeconds != second[i].Chunk.StartOffsetSeconds {
			t.Fatalf("rebuild changed anchor at rank %d: %v vs %v",
				i, first[i].Chunk.StartOffsetSeconds, second[i].Chunk.StartOffsetSeconds)
		}
	}
}

func TestBuildVideoIndexNoSegments(t *testing.T) {
	f, _ := newManagerFixture(t, stubEmbedder{vec: []float32{1, 0, 0}})
	video := f.createVideo(t, "yt-empty")

	// A stale artifact from an earlier segment set must not survive a
	// rebuild that finds nothing to index.
	key := TranscriptKey("yt-empty")
	saveSingleChunkIndex(t, f.root, key, "stale")

	if err := f.manager.BuildVideoIndex(context.Background(), video.ID, domain.SourceAudioTranscript); err != nil {
		t.Fatalf("build: %v", err)
	}

	got, err := f.videos.GetByID(f.dbc, video.ID)
	if err != nil {
		t.Fatalf("reload video: %v", err)
	}
	if got.IndexStatus != domain.StatusNone {
		t.Fatalf("index_status = %q, want none", got.IndexStatus)
	}
	if f.manager.IndexExists(key) {
		t.Fatalf("stale artifact survived an empty rebuild")
	}
}

func TestBuildVideoIndexEmbedFailure(t *testing.T) {
	f, _ := newManagerFixture(t, stubEmbedder{fail: true})
	video := f.createVideo(t, "yt-fail")
	f.replaceSegments(t, video.ID, domain.SourceAudioTranscript, "some text")

	if err := f.manager.BuildVideoIndex(context.Background(), video.ID, domain.SourceAudioTranscript); err == nil {
		t.Fatalf("expected build to fail when embedding fails")
	}

	got, err := f.videos.GetByID(f.dbc, video.ID)
	if err != nil {
		t.Fatalf("reload video: %v", err)
	}
	if got.IndexStatus != domain.StatusFailed {
		t.Fatalf("index_status = %q, want failed", got.IndexStatus)
	}
	if f.manager.IndexExists(TranscriptKey("yt-fail")) {
		t.Fatalf("failed build must not leave an artifact")
	}
}

func TestBuildVideoIndexOCRUsesOwnStatusField(t *testing.T) {
	f, _ := newManagerFixture(t, stubEmbedder{vec: []float32{1, 0, 0}})
	video := f.createVideo(t, "yt-ocr")
	f.replaceSegments(t, video.ID, domain.SourceOCR, "slide text")

	if err := f.manager.BuildVideoIndex(context.Background(), video.ID, domain.SourceOCR); err != nil {
		t.Fatalf("build: %v", err)
	}

	got, err := f.videos.GetByID(f.dbc, video.ID)
	if err != nil {
		t.Fatalf("reload video: %v", err)
	}
	if got.OCRIndexStatus != domain.StatusComplete {
		t.Fatalf("ocr_index_status = %q, want complete", got.OCRIndexStatus)
	}
	if got.IndexStatus == domain.StatusComplete {
		t.Fatalf("transcript status should be untouched by an ocr build")
	}
	if !f.manager.IndexExists(OCRKey("yt-ocr")) {
		t.Fatalf("ocr artifact missing")
	}
}

func TestBuildVideoIndexRejectsNoteKind(t *testing.T) {
	f, _ := newManagerFixture(t, stubEmbedder{vec: []float32{1, 0, 0}})
	video := f.createVideo(t, "yt-kind")
	if err := f.manager.BuildVideoIndex(context.Background(), video.ID, domain.SourceNote); err == nil {
		t.Fatalf("expected error for note kind on the video index path")
	}
}

func TestBuildNotesIndex(t *testing.T) {
	f, _ := newManagerFixture(t, stubEmbedder{vec: []float32{1, 0, 0}})
	video := f.createVideo(t, "yt-notes")
	userID := uuid.New()

	created, err := f.notes.Create(f.dbc, []*domain.Note{{
		UserID:         userID,
		VideoID:        video.ID,
		CourseID:       video.CourseID,
		Title:          "Pointers",
		Content:        "Pointers hold addresses.",
		VideoTimestamp: 65,
	}})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}

	if err := f.manager.BuildNotesIndex(context.Background(), userID, video.ID); err != nil {
		t.Fatalf("build notes index: %v", err)
	}

	note, err := f.notes.GetByID(f.dbc, created[0].ID)
	if err != nil {
		t.Fatalf("reload note: %v", err)
	}
	if note.IndexStatus != domain.StatusComplete {
		t.Fatalf("note index_status = %q, want complete", note.IndexStatus)
	}

	ix := f.manager.LoadIndex(NotesKey(userID, "yt-notes"))
	if ix == nil || len(ix.Chunks) != 1 {
		t.Fatalf("expected one-chunk notes index, got %+v", ix)
	}
	if ix.Chunks[0].Text != note.SegmentText() {
		t.Fatalf("note chunk text = %q", ix.Chunks[0].Text)
	}
	if ix.Chunks[0].StartOffsetSeconds != 65 {
		t.Fatalf("note chunk anchored at %v, want 65", ix.Chunks[0].StartOffsetSeconds)
	}
}

func TestBuildNotesIndexNoNotes(t *testing.T) {
	f, _ := newManagerFixture(t, stubEmbedder{vec: []float32{1, 0, 0}})
	video := f.createVideo(t, "yt-nonotes")
	userID := uuid.New()

	key := NotesKey(userID, "yt-nonotes")
	saveSingleChunkIndex(t, f.root, key, "stale")

	if err := f.manager.BuildNotesIndex(context.Background(), userID, video.ID); err != nil {
		t.Fatalf("empty notes rebuild should not error: %v", err)
	}
	if f.manager.IndexExists(key) {
		t.Fatalf("stale notes artifact survived deletion of the last note")
	}
}

func TestNoteIndexUsers(t *testing.T) {
	f, _ := newManagerFixture(t, stubEmbedder{vec: []float32{1, 0, 0}})
	userA := uuid.New()
	userB := uuid.New()
	saveSingleChunkIndex(t, f.root, NotesKey(userA, "yt-users"), "a")
	saveSingleChunkIndex(t, f.root, NotesKey(userB, "yt-users"), "b")
	saveSingleChunkIndex(t, f.root, NotesKey(userB, "yt-other"), "b2")

	got := f.manager.NoteIndexUsers("yt-users")
	if len(got) != 2 {
		t.Fatalf("expected 2 users with note indexes, got %d", len(got))
	}
	seen := map[uuid.UUID]bool{}
	for _, id := range got {
		seen[id] = true
	}
	if !seen[userA] || !seen[userB] {
		t.Fatalf("wrong users returned: %v", got)
	}
}
