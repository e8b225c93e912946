package ingestion

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/incuisenix/backend/internal/data/db"
	"github.com/incuisenix/backend/internal/data/repos/materials"
	"github.com/incuisenix/backend/internal/domain"
	"github.com/incuisenix/backend/internal/modules/retrieval"
	"github.com/incuisenix/backend/internal/pkg/dbctx"
	"github.com/incuisenix/backend/internal/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

// recordingQueue captures enqueued work instead of dispatching it.
type recordingQueue struct {
	videoIngests  []uuid.UUID
	noteReindexes []uuid.UUID
}

func (q *recordingQueue) EnqueueVideoIngest(ctx context.Context, videoID uuid.UUID) error {
	q.videoIngests = append(q.videoIngests, videoID)
	return nil
}

func (q *recordingQueue) EnqueueNoteReindex(ctx context.Context, userID, videoID uuid.UUID) error {
	q.noteReindexes = append(q.noteReindexes, videoID)
	return nil
}

type sweepFixture struct {
	reconciler *Reconciler
	manager    *retrieval.Manager
	videos     materials.VideoRepo
	segments   materials.SegmentRepo
	notes      materials.NoteRepo
	queue      *recordingQueue
	root       string
	dbc        dbctx.Context
}

func newSweepFixture(t *testing.T) *sweepFixture {
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

	root := t.TempDir()
	manager, err := retrieval.NewManager(log, stubEmbedder{}, videos, segments, notes, nil, root)
	if err != nil {
		t.Fatalf("init manager: %v", err)
	}

	queue := &recordingQueue{}
	return &sweepFixture{
		reconciler: NewReconciler(log, videos, segments, notes, manager, queue),
		manager:    manager,
		videos:     videos,
		segments:   segments,
		notes:      notes,
		queue:      queue,
		root:       root,
		dbc:        dbctx.New(context.Background()),
	}
}

func (f *sweepFixture) createVideo(t *testing.T, platformID string, statuses map[string]interface{}) *domain.Video {
	t.Helper()
	id := platformID
	rows, err := f.videos.Create(f.dbc, []*domain.Video{{
		CourseID:  uuid.New(),
		YoutubeID: &id,
		Title:     "video " + platformID,
	}})
	if err != nil {
		t.Fatalf("create video: %v", err)
	}
	if len(statuses) > 0 {
		if err := f.videos.UpdateStatusFields(f.dbc, rows[0].ID, statuses); err != nil {
			t.Fatalf("set statuses: %v", err)
		}
	}
	return rows[0]
}

func (f *sweepFixture) addSegments(t *testing.T, videoID uuid.UUID, kind domain.SourceKind, n int) {
	t.Helper()
	rows := make([]*domain.Segment, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, &domain.Segment{
			CourseID:           uuid.New(),
			StartOffsetSeconds: float64(i * 10),
			Text:               fmt.Sprintf("segment %d", i),
		})
	}
	if err := f.segments.Replace(f.dbc, videoID, kind, rows); err != nil {
		t.Fatalf("replace segments: %v", err)
	}
}

func (f *sweepFixture) placeArtifact(t *testing.T, key retrieval.Key) {
	t.Helper()
	ix, err := retrieval.NewIndex(
		[]retrieval.Chunk{{Text: "stub"}},
		[][]float32{{1, 0, 0}},
	)
	if err != nil {
		t.Fatalf("build stub index: %v", err)
	}
	if err := ix.Save(key.Path(f.root)); err != nil {
		t.Fatalf("save stub index: %v", err)
	}
	if !f.manager.IndexExists(key) {
		t.Fatalf("stub artifact not visible to the manager")
	}
}

func TestSweepResetsStrayProcessing(t *testing.T) {
	f := newSweepFixture(t)
	video := f.createVideo(t, "yt-stray", map[string]interface{}{
		"transcript_status":     domain.StatusProcessing,
		"ocr_transcript_status": domain.StatusProcessing,
	})

	report, err := f.reconciler.Run(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.VideosChecked != 1 {
		t.Fatalf("videos checked = %d", report.VideosChecked)
	}
	if report.StatusCorrections != 2 {
		t.Fatalf("status corrections = %d, want 2", report.StatusCorrections)
	}

	got, err := f.videos.GetByID(f.dbc, video.ID)
	if err != nil {
		t.Fatalf("reload video: %v", err)
	}
	if got.TranscriptStatus != domain.StatusPending || got.OCRTranscriptStatus != domain.StatusPending {
		t.Fatalf("stray processing not reset: %q / %q", got.TranscriptStatus, got.OCRTranscriptStatus)
	}
}

func TestSweepDeletesOrphanedArtifact(t *testing.T) {
	f := newSweepFixture(t)
	video := f.createVideo(t, "yt-orphan", map[string]interface{}{
		"index_status": domain.StatusComplete,
	})
	// Artifact on disk but no backing segments.
	key := retrieval.TranscriptKey("yt-orphan")
	f.placeArtifact(t, key)

	report, err := f.reconciler.Run(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.IndexesDeleted != 1 {
		t.Fatalf("indexes deleted = %d, want 1", report.IndexesDeleted)
	}
	if f.manager.IndexExists(key) {
		t.Fatalf("orphaned artifact survived the sweep")
	}

	got, err := f.videos.GetByID(f.dbc, video.ID)
	if err != nil {
		t.Fatalf("reload video: %v", err)
	}
	if got.IndexStatus != domain.StatusNone {
		t.Fatalf("index_status = %q, want none", got.IndexStatus)
	}
}

func TestSweepReenqueuesMissingArtifact(t *testing.T) {
	f := newSweepFixture(t)
	video := f.createVideo(t, "yt-missing", map[string]interface{}{
		"index_status": domain.StatusComplete,
	})
	f.addSegments(t, video.ID, domain.SourceAudioTranscript, 3)

	report, err := f.reconciler.Run(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.RebuildsEnqueued == 0 {
		t.Fatalf("expected a rebuild to be enqueued")
	}
	if len(f.queue.videoIngests) == 0 || f.queue.videoIngests[0] != video.ID {
		t.Fatalf("video ingest not enqueued, got %v", f.queue.videoIngests)
	}

	got, err := f.videos.GetByID(f.dbc, video.ID)
	if err != nil {
		t.Fatalf("reload video: %v", err)
	}
	if got.IndexStatus != domain.StatusPending {
		t.Fatalf("index_status = %q, want pending", got.IndexStatus)
	}
}

func TestSweepDoesNotRetryFailed(t *testing.T) {
	// failed is terminal; the sweep must not resurrect it.
	f := newSweepFixture(t)
	video := f.createVideo(t, "yt-failed", map[string]interface{}{
		"index_status": domain.StatusFailed,
	})
	f.addSegments(t, video.ID, domain.SourceAudioTranscript, 2)

	if _, err := f.reconciler.Run(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(f.queue.videoIngests) != 0 {
		t.Fatalf("failed video must not be re-enqueued, got %v", f.queue.videoIngests)
	}

	got, err := f.videos.GetByID(f.dbc, video.ID)
	if err != nil {
		t.Fatalf("reload video: %v", err)
	}
	if got.IndexStatus != domain.StatusFailed {
		t.Fatalf("index_status = %q, want failed untouched", got.IndexStatus)
	}
}

func TestSweepSurfacesExistingArtifact(t *testing.T) {
	// Artifact and segments both exist but the status is a stray
	// indexing left by a crash; the sweep flips it to complete.
	f := newSweepFixture(t)
	video := f.createVideo(t, "yt-done", map[string]interface{}{
		"index_status": domain.StatusIndexing,
	})
	f.addSegments(t, video.ID, domain.SourceAudioTranscript, 2)
	f.placeArtifact(t, retrieval.TranscriptKey("yt-done"))

	if _, err := f.reconciler.Run(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	got, err := f.videos.GetByID(f.dbc, video.ID)
	if err != nil {
		t.Fatalf("reload video: %v", err)
	}
	if got.IndexStatus != domain.StatusComplete {
		t.Fatalf("index_status = %q, want complete", got.IndexStatus)
	}
}

func TestSweepSkipsVideosWithoutPlatformID(t *testing.T) {
	f := newSweepFixture(t)
	if _, err := f.videos.Create(f.dbc, []*domain.Video{{
		CourseID: uuid.New(),
		Title:    "unhosted",
	}}); err != nil {
		t.Fatalf("create video: %v", err)
	}

	report, err := f.reconciler.Run(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.VideosChecked != 1 || report.StatusCorrections != 0 {
		t.Fatalf("unexpected report for unhosted video: %+v", report)
	}
}

func TestSweepReenqueuesMissingNotesIndex(t *testing.T) {
	f := newSweepFixture(t)
	video := f.createVideo(t, "yt-notes", nil)
	userID := uuid.New()
	created, err := f.notes.Create(f.dbc, []*domain.Note{{
		UserID:         userID,
		VideoID:        video.ID,
		CourseID:       video.CourseID,
		Title:          "a note",
		Content:        "content",
		VideoTimestamp: 10,
	}})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}

	report, err := f.reconciler.Run(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(f.queue.noteReindexes) != 1 || f.queue.noteReindexes[0] != video.ID {
		t.Fatalf("note reindex not enqueued, got %v", f.queue.noteReindexes)
	}
	if report.RebuildsEnqueued == 0 {
		t.Fatalf("report should count the note rebuild")
	}

	note, err := f.notes.GetByID(f.dbc, created[0].ID)
	if err != nil {
		t.Fatalf("reload note: %v", err)
	}
	if note.IndexStatus != domain.StatusPending {
		t.Fatalf("note index_status = %q, want pending", note.IndexStatus)
	}
}

func TestSweepDeletesOrphanedNotesIndex(t *testing.T) {
	f := newSweepFixture(t)
	f.createVideo(t, "yt-oldnotes", nil)

	// An index for a user who since deleted all their notes.
	ghost := uuid.New()
	key := retrieval.NotesKey(ghost, "yt-oldnotes")
	f.placeArtifact(t, key)

	report, err := f.reconciler.Run(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.IndexesDeleted != 1 {
		t.Fatalf("indexes deleted = %d, want 1", report.IndexesDeleted)
	}
	if f.manager.IndexExists(key) {
		t.Fatalf("orphaned notes artifact survived the sweep")
	}
}
