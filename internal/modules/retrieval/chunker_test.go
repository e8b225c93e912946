package retrieval

import (
	"strings"
	"testing"

	"github.com/incuisenix/backend/internal/domain"
)

func TestBuildChunksSingleSegment(t *testing.T) {
	c := NewChunker()
	chunks := c.BuildChunks([]domain.SegmentData{
		{Start: 12.5, Content: "  hello world  "},
	})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "hello world" {
		t.Fatalf("unexpected chunk text %q", chunks[0].Text)
	}
	if chunks[0].StartOffsetSeconds != 12.5 {
		t.Fatalf("expected offset 12.5, got %v", chunks[0].StartOffsetSeconds)
	}
}

func TestBuildChunksWindowing(t *testing.T) {
	// Two 600-rune segments join to 1201 runes (newline separator), so
	// the default 1000/150 window produces two chunks stepping by 850.
	segA := strings.Repeat("a", 600)
	segB := strings.Repeat("b", 600)

	c := NewChunker()
	chunks := c.BuildChunks([]domain.SegmentData{
		{Start: 0, Content: segA},
		{Start: 30, Content: segB},
	})
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}

	if got := len([]rune(chunks[0].Text)); got != 1000 {
		t.Fatalf("first chunk should span the full window, got %d runes", got)
	}
	if chunks[0].StartOffsetSeconds != 0 {
		t.Fatalf("first chunk offset = %v, want 0", chunks[0].StartOffsetSeconds)
	}

	// The second window starts at rune 850, inside segment B, so it
	// inherits B's start time and contains only b's.
	if strings.ContainsRune(chunks[1].Text, 'a') {
		t.Fatalf("second chunk should not reach back into the first segment")
	}
	if chunks[1].StartOffsetSeconds != 30 {
		t.Fatalf("second chunk offset = %v, want 30", chunks[1].StartOffsetSeconds)
	}

	// Overlap check: the tail of chunk 1 reappears at the head of chunk 2.
	tail := string([]rune(chunks[0].Text)[850:])
	if !strings.HasPrefix(chunks[1].Text, tail) {
		t.Fatalf("chunks do not overlap as configured")
	}
}

func TestBuildChunksOffsetTracksContributingSegment(t *testing.T) {
	// Three short segments in one window: the chunk's offset is the
	// first segment's, not the last's.
	chunks := NewChunker().BuildChunks([]domain.SegmentData{
		{Start: 5, Content: "one"},
		{Start: 10, Content: "two"},
		{Start: 15, Content: "three"},
	})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].StartOffsetSeconds != 5 {
		t.Fatalf("chunk offset = %v, want 5", chunks[0].StartOffsetSeconds)
	}
	if chunks[0].Text != "one\ntwo\nthree" {
		t.Fatalf("unexpected joined text %q", chunks[0].Text)
	}
}

func TestBuildChunksSkipsEmptySegments(t *testing.T) {
	chunks := NewChunker().BuildChunks([]domain.SegmentData{
		{Start: 0, Content: "   "},
		{Start: 10, Content: "\n\t"},
		{Start: 20, Content: "real text"},
	})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].StartOffsetSeconds != 20 {
		t.Fatalf("chunk offset = %v, want 20", chunks[0].StartOffsetSeconds)
	}
}

func TestBuildChunksAllEmpty(t *testing.T) {
	if got := NewChunker().BuildChunks(nil); got != nil {
		t.Fatalf("expected nil for no segments, got %v", got)
	}
	got := NewChunker().BuildChunks([]domain.SegmentData{{Start: 0, Content: "  "}})
	if got != nil {
		t.Fatalf("expected nil for whitespace-only segments, got %v", got)
	}
}

func TestBuildChunksCustomWindow(t *testing.T) {
	c := Chunker{Size: 10, Overlap: 3}
	chunks := c.BuildChunks([]domain.SegmentData{
		{Start: 0, Content: strings.Repeat("x", 20)},
	})
	// Windows start at 0, 7, 14 over 20 runes.
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len([]rune(chunks[2].Text)) != 6 {
		t.Fatalf("last chunk should hold the 6-rune remainder, got %d", len([]rune(chunks[2].Text)))
	}
}

func TestBuildChunksInvalidWindowFallsBack(t *testing.T) {
	// Overlap >= size is nonsense; the chunker falls back to defaults
	// rather than looping forever.
	c := Chunker{Size: 100, Overlap: 100}
	chunks := c.BuildChunks([]domain.SegmentData{
		{Start: 0, Content: strings.Repeat("y", 50)},
	})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
}
