package ingestion

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/incuisenix/backend/internal/data/repos/materials"
	"github.com/incuisenix/backend/internal/domain"
	"github.com/incuisenix/backend/internal/pkg/dbctx"
)

// committedStatusQueue reads the row back at enqueue time, capturing
// exactly what a worker picking the job up immediately would observe.
type committedStatusQueue struct {
	videos materials.VideoRepo
	notes  materials.NoteRepo
	dbc    dbctx.Context
	noteID uuid.UUID

	videoStatusAtEnqueue string
	noteStatusAtEnqueue  string
}

func (q *committedStatusQueue) EnqueueVideoIngest(ctx context.Context, videoID uuid.UUID) error {
	v, err := q.videos.GetByID(q.dbc, videoID)
	if err != nil {
		return err
	}
	q.videoStatusAtEnqueue = v.TranscriptStatus
	return nil
}

func (q *committedStatusQueue) EnqueueNoteReindex(ctx context.Context, userID, videoID uuid.UUID) error {
	n, err := q.notes.GetByID(q.dbc, q.noteID)
	if err != nil {
		return err
	}
	q.noteStatusAtEnqueue = n.IndexStatus
	return nil
}

func TestHandleVideoCreatedCommitsStatusBeforeEnqueue(t *testing.T) {
	f := newSweepFixture(t)
	q := &committedStatusQueue{videos: f.videos, notes: f.notes, dbc: f.dbc}
	o := NewOrchestrator(testLogger(t), f.videos, f.notes, q)
	video := f.createVideo(t, "yt-created", nil)

	if err := o.HandleVideoCreated(context.Background(), OnVideoCreated{VideoID: video.ID}); err != nil {
		t.Fatalf("handle video created: %v", err)
	}
	if q.videoStatusAtEnqueue != domain.StatusPending {
		t.Fatalf("enqueue observed transcript_status %q, want pending committed first", q.videoStatusAtEnqueue)
	}
}

func TestHandleNoteChangedCommitsStatusBeforeEnqueue(t *testing.T) {
	f := newSweepFixture(t)
	q := &committedStatusQueue{videos: f.videos, notes: f.notes, dbc: f.dbc}
	o := NewOrchestrator(testLogger(t), f.videos, f.notes, q)

	video := f.createVideo(t, "yt-noted", nil)
	userID := uuid.New()
	created, err := f.notes.Create(f.dbc, []*domain.Note{{
		UserID:         userID,
		VideoID:        video.ID,
		CourseID:       video.CourseID,
		Title:          "a note",
		Content:        "content",
		VideoTimestamp: 5,
	}})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	// Start from a settled status so the pending transition is visible.
	if err := f.notes.SetIndexStatus(f.dbc, userID, video.ID, domain.StatusComplete); err != nil {
		t.Fatalf("settle note status: %v", err)
	}
	q.noteID = created[0].ID

	if err := o.HandleNoteChanged(context.Background(), OnNoteChanged{UserID: userID, VideoID: video.ID}); err != nil {
		t.Fatalf("handle note changed: %v", err)
	}
	if q.noteStatusAtEnqueue != domain.StatusPending {
		t.Fatalf("enqueue observed note index_status %q, want pending committed first", q.noteStatusAtEnqueue)
	}
}

func TestHandleVideoCreatedEnqueueFailureKeepsCommittedStatus(t *testing.T) {
	// The status write survives a failed enqueue; the reconciliation
	// sweep picks the stranded pending video up later.
	f := newSweepFixture(t)
	o := NewOrchestrator(testLogger(t), f.videos, f.notes, DisabledEnqueuer{})
	video := f.createVideo(t, "yt-noqueue", nil)

	if err := o.HandleVideoCreated(context.Background(), OnVideoCreated{VideoID: video.ID}); err == nil {
		t.Fatalf("expected enqueue failure to propagate")
	}
	got, err := f.videos.GetByID(f.dbc, video.ID)
	if err != nil {
		t.Fatalf("reload video: %v", err)
	}
	if got.TranscriptStatus != domain.StatusPending {
		t.Fatalf("transcript_status = %q, want pending despite enqueue failure", got.TranscriptStatus)
	}
}
