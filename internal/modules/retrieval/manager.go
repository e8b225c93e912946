package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/incuisenix/backend/internal/data/repos/materials"
	"github.com/incuisenix/backend/internal/domain"
	"github.com/incuisenix/backend/internal/pkg/dbctx"
	"github.com/incuisenix/backend/internal/pkg/logger"
)

// Embedder is the slice of the AI client the index builder needs.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Locker serializes builds per index key across processes.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

const (
	buildLockTTL       = 15 * time.Minute
	buildLockRetryWait = 500 * time.Millisecond
	embedBatchSize     = 64
	embedConcurrency   = 4
)

// Manager owns the index artifacts: it builds, loads and deletes them,
// and keeps the database status fields in step with what is on disk.
type Manager struct {
	log      *logger.Logger
	embed    Embedder
	videos   materials.VideoRepo
	segments materials.SegmentRepo
	notes    materials.NoteRepo
	lock     Locker
	chunker  Chunker
	root     string
}

func NewManager(
	log *logger.Logger,
	embed Embedder,
	videos materials.VideoRepo,
	segments materials.SegmentRepo,
	notes materials.NoteRepo,
	lock Locker,
	root string,
) (*Manager, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if embed == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if root == "" {
		return nil, fmt.Errorf("index root required")
	}
	return &Manager{
		log:      log.With("service", "IndexManager"),
		embed:    embed,
		videos:   videos,
		segments: segments,
		notes:    notes,
		lock:     lock,
		chunker:  NewChunker(),
		root:     root,
	}, nil
}

func statusField(kind domain.SourceKind) string {
	if kind == domain.SourceOCR {
		return "ocr_index_status"
	}
	return "index_status"
}

// BuildVideoIndex rebuilds the transcript or ocr index for a video from
// its persisted segments. The status field is flipped to indexing for
// the duration and always lands on a terminal value.
func (m *Manager) BuildVideoIndex(ctx context.Context, videoID uuid.UUID, kind domain.SourceKind) error {
	if kind != domain.SourceAudioTranscript && kind != domain.SourceOCR {
		return fmt.Errorf("cannot build video index for kind %q", kind)
	}
	dbc := dbctx.New(ctx)

	video, err := m.videos.GetByID(dbc, videoID)
	if err != nil {
		return fmt.Errorf("load video %s: %w", videoID, err)
	}
	platformID := video.PlatformID()
	if platformID == "" {
		return fmt.Errorf("video %s has no platform id", videoID)
	}

	key := Key{Kind: kind, PlatformID: platformID}
	field := statusField(kind)

	if err := m.videos.UpdateStatusFields(dbc, videoID, map[string]interface{}{field: domain.StatusIndexing}); err != nil {
		return fmt.Errorf("mark %s indexing: %w", field, err)
	}

	buildErr := m.withLock(ctx, key, func() error {
		segs, err := m.segments.ListByVideoKind(dbc, videoID, kind)
		if err != nil {
			return fmt.Errorf("list segments: %w", err)
		}
		if len(segs) == 0 {
			// Nothing to index. A stale artifact from a previous
			// segment set must not survive.
			m.DeleteIndex(key)
			return errNoSegments
		}

		data := make([]domain.SegmentData, 0, len(segs))
		for _, s := range segs {
			data = append(data, domain.SegmentData{Start: s.StartOffsetSeconds, Content: s.Text})
		}
		return m.buildAndSave(ctx, key, m.chunker.BuildChunks(data))
	})

	return m.finishVideoBuild(dbc, videoID, field, buildErr)
}

var errNoSegments = fmt.Errorf("no segments to index")

func (m *Manager) finishVideoBuild(dbc dbctx.Context, videoID uuid.UUID, field string, buildErr error) error {
	switch {
	case buildErr == nil:
		return m.videos.UpdateStatusFields(dbc, videoID, map[string]interface{}{field: domain.StatusComplete})
	case buildErr == errNoSegments:
		return m.videos.UpdateStatusFields(dbc, videoID, map[string]interface{}{field: domain.StatusNone})
	default:
		if err := m.videos.UpdateStatusFields(dbc, videoID, map[string]interface{}{field: domain.StatusFailed}); err != nil {
			m.log.Error("Failed to mark index build failed", "video_id", videoID, "field", field, "error", err)
		}
		return buildErr
	}
}

// BuildNotesIndex rebuilds the per-user notes index for a video. Each
// note embeds as a single chunk anchored at its video timestamp.
func (m *Manager) BuildNotesIndex(ctx context.Context, userID, videoID uuid.UUID) error {
	dbc := dbctx.New(ctx)

	video, err := m.videos.GetByID(dbc, videoID)
	if err != nil {
		return fmt.Errorf("load video %s: %w", videoID, err)
	}
	platformID := video.PlatformID()
	if platformID == "" {
		return fmt.Errorf("video %s has no platform id", videoID)
	}

	key := NotesKey(userID, platformID)

	if err := m.notes.SetIndexStatus(dbc, userID, videoID, domain.StatusIndexing); err != nil {
		return fmt.Errorf("mark notes indexing: %w", err)
	}

	buildErr := m.withLock(ctx, key, func() error {
		rows, err := m.notes.ListByUserVideo(dbc, userID, videoID)
		if err != nil {
			return fmt.Errorf("list notes: %w", err)
		}
		if len(rows) == 0 {
			m.DeleteIndex(key)
			return errNoSegments
		}

		chunks := make([]Chunk, 0, len(rows))
		for _, n := range rows {
			chunks = append(chunks, Chunk{
				Text:               n.SegmentText(),
				StartOffsetSeconds: n.VideoTimestamp,
			})
		}
		return m.buildAndSave(ctx, key, chunks)
	})

	switch {
	case buildErr == nil:
		return m.notes.SetIndexStatus(dbc, userID, videoID, domain.StatusComplete)
	case buildErr == errNoSegments:
		return nil
	default:
		if err := m.notes.SetIndexStatus(dbc, userID, videoID, domain.StatusFailed); err != nil {
			m.log.Error("Failed to mark notes index build failed", "video_id", videoID, "error", err)
		}
		return buildErr
	}
}

func (m *Manager) buildAndSave(ctx context.Context, key Key, chunks []Chunk) error {
	if len(chunks) == 0 {
		m.DeleteIndex(key)
		return errNoSegments
	}

	vectors, err := m.embedChunks(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}

	ix, err := NewIndex(chunks, vectors)
	if err != nil {
		return err
	}
	if err := ix.Save(key.Path(m.root)); err != nil {
		return err
	}

	m.log.Info("Index built",
		"kind", string(key.Kind),
		"platform_id", key.PlatformID,
		"chunks", len(chunks),
	)
	return nil
}

func (m *Manager) embedChunks(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for start := 0; start < len(chunks); start += embedBatchSize {
		start := start
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		g.Go(func() error {
			inputs := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				inputs = append(inputs, c.Text)
			}
			batch, err := m.embed.Embed(gctx, inputs)
			if err != nil {
				return err
			}
			if len(batch) != end-start {
				return fmt.Errorf("embedding batch size mismatch: got %d, want %d", len(batch), end-start)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// withLock serializes the build with other processes working on the
// same key. Waits for the current holder rather than failing.
func (m *Manager) withLock(ctx context.Context, key Key, fn func() error) error {
	if m.lock == nil {
		return fn()
	}
	name := key.LockName()
	for {
		ok, err := m.lock.Acquire(ctx, name, buildLockTTL)
		if err != nil {
			return fmt.Errorf("acquire build lock %s: %w", name, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(buildLockRetryWait):
		}
	}
	defer func() {
		if err := m.lock.Release(context.WithoutCancel(ctx), name); err != nil {
			m.log.Warn("Failed to release build lock", "lock", name, "error", err)
		}
	}()
	return fn()
}

// LoadIndex returns the on-disk index for a key, or nil when there is
// none. A corrupt artifact is logged and treated as absent.
func (m *Manager) LoadIndex(key Key) *Index {
	ix, err := LoadIndexFile(key.Path(m.root))
	if err != nil {
		m.log.Warn("Index load failed; treating as absent",
			"kind", string(key.Kind),
			"platform_id", key.PlatformID,
			"error", err,
		)
		return nil
	}
	return ix
}

// IndexExists reports whether the artifact file is present.
func (m *Manager) IndexExists(key Key) bool {
	_, err := os.Stat(key.Path(m.root))
	return err == nil
}

// NoteIndexUsers lists the users that have an on-disk notes index for
// the given platform ID. Used by the reconciliation sweep to find
// orphaned artifacts.
func (m *Manager) NoteIndexUsers(platformID string) []uuid.UUID {
	entries, err := os.ReadDir(filepath.Join(m.root, "notes"))
	if err != nil {
		return nil
	}
	out := []uuid.UUID{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		userID, err := uuid.Parse(e.Name())
		if err != nil {
			continue
		}
		if m.IndexExists(NotesKey(userID, platformID)) {
			out = append(out, userID)
		}
	}
	return out
}

// DeleteIndex removes the artifact file. Missing is fine.
func (m *Manager) DeleteIndex(key Key) {
	if err := os.Remove(key.Path(m.root)); err != nil && !os.IsNotExist(err) {
		m.log.Warn("Failed to delete index file",
			"kind", string(key.Kind),
			"platform_id", key.PlatformID,
			"error", err,
		)
	}
}
