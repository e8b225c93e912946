package retrieval

import (
	"strings"

	"github.com/incuisenix/backend/internal/domain"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 150
)

// Chunk is one embeddable unit of an index. StartOffsetSeconds is taken
// from the first segment that contributed text to the chunk, so every
// retrieved chunk can be traced back to a playback position.
type Chunk struct {
	Text               string
	StartOffsetSeconds float64
}

// Chunker slices concatenated segment text into fixed-size overlapping
// windows.
type Chunker struct {
	Size    int
	Overlap int
}

func NewChunker() Chunker {
	return Chunker{Size: DefaultChunkSize, Overlap: DefaultChunkOverlap}
}

type segmentSpan struct {
	start int // rune offset into the joined text
	at    float64
}

// BuildChunks joins the ordered segments with newlines and windows over
// the result. Segments must already be sorted by start offset.
func (c Chunker) BuildChunks(segments []domain.SegmentData) []Chunk {
	size := c.Size
	if size <= 0 {
		size = DefaultChunkSize
	}
	overlap := c.Overlap
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 2
		}
	}

	spans := make([]segmentSpan, 0, len(segments))
	var joined []rune
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Content)
		if text == "" {
			continue
		}
		if len(joined) > 0 {
			joined = append(joined, '\n')
		}
		spans = append(spans, segmentSpan{start: len(joined), at: seg.Start})
		joined = append(joined, []rune(text)...)
	}
	if len(joined) == 0 {
		return nil
	}

	step := size - overlap
	chunks := []Chunk{}
	for at := 0; at < len(joined); at += step {
		end := at + size
		if end > len(joined) {
			end = len(joined)
		}
		text := strings.TrimSpace(string(joined[at:end]))
		if text != "" {
			chunks = append(chunks, Chunk{
				Text:               text,
				StartOffsetSeconds: offsetFor(spans, at),
			})
		}
		if end == len(joined) {
			break
		}
	}
	return chunks
}

// offsetFor finds the segment whose text covers the given rune offset,
// i.e. the last span starting at or before it.
func offsetFor(spans []segmentSpan, at int) float64 {
	out := 0.0
	for _, sp := range spans {
		if sp.start > at {
			break
		}
		out = sp.at
	}
	return out
}
