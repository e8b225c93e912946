package retrieval

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewIndexValidation(t *testing.T) {
	if _, err := NewIndex([]Chunk{{Text: "a"}}, nil); err == nil {
		t.Fatalf("expected error for chunk/vector count mismatch")
	}
	if _, err := NewIndex(nil, nil); err == nil {
		t.Fatalf("expected error for empty index")
	}
	_, err := NewIndex(
		[]Chunk{{Text: "a"}, {Text: "b"}},
		[][]float32{{1, 0}, {1, 0, 0}},
	)
	if err == nil {
		t.Fatalf("expected error for ragged vector dims")
	}
}

func TestSearchRanksByCosine(t *testing.T) {
	ix, err := NewIndex(
		[]Chunk{{Text: "x-axis"}, {Text: "y-axis"}, {Text: "diagonal"}},
		[][]float32{{1, 0}, {0, 1}, {1, 1}},
	)
	if err != nil {
		t.Fatalf("build index: %v", err)
	}

	hits := ix.Search([]float32{1, 0.1}, 3)
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].Chunk.Text != "x-axis" {
		t.Fatalf("best hit = %q, want x-axis", hits[0].Chunk.Text)
	}
	if hits[2].Chunk.Text != "y-axis" {
		t.Fatalf("worst hit = %q, want y-axis", hits[2].Chunk.Text)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Fatalf("hits not sorted best-first: %v then %v", hits[i-1].Score, hits[i].Score)
		}
	}
}

func TestSearchEdgeCases(t *testing.T) {
	ix, err := NewIndex([]Chunk{{Text: "a"}, {Text: "b"}}, [][]float32{{1, 0}, {0, 1}})
	if err != nil {
		t.Fatalf("build index: %v", err)
	}

	if got := ix.Search([]float32{1, 0}, 1); len(got) != 1 {
		t.Fatalf("k truncation failed, got %d hits", len(got))
	}
	if got := ix.Search([]float32{1, 0}, 10); len(got) != 2 {
		t.Fatalf("k beyond size should return everything, got %d", len(got))
	}
	if got := ix.Search([]float32{1, 0, 0}, 1); got != nil {
		t.Fatalf("dim-mismatched query should return nil, got %v", got)
	}
	if got := ix.Search([]float32{1, 0}, 0); got != nil {
		t.Fatalf("k=0 should return nil, got %v", got)
	}
	var nilIx *Index
	if got := nilIx.Search([]float32{1, 0}, 1); got != nil {
		t.Fatalf("nil index should return nil, got %v", got)
	}
}

func TestIndexSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "abc123.idx")

	want, err := NewIndex(
		[]Chunk{
			{Text: "first", StartOffsetSeconds: 0},
			{Text: "second", StartOffsetSeconds: 42.5},
		},
		[][]float32{{1, 0, 0}, {0, 1, 0}},
	)
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	if err := want.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := LoadIndexFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil {
		t.Fatalf("load returned nil for existing artifact")
	}
	if got.Dim != want.Dim || len(got.Chunks) != len(want.Chunks) {
		t.Fatalf("round trip mismatch: got dim=%d chunks=%d", got.Dim, len(got.Chunks))
	}
	if got.Chunks[1].Text != "second" || got.Chunks[1].StartOffsetSeconds != 42.5 {
		t.Fatalf("chunk payload mangled: %+v", got.Chunks[1])
	}
	if got.Vectors[1][1] != 1 {
		t.Fatalf("vector payload mangled: %v", got.Vectors[1])
	}
}

func TestLoadIndexFileMissing(t *testing.T) {
	got, err := LoadIndexFile(filepath.Join(t.TempDir(), "nope.idx"))
	if err != nil {
		t.Fatalf("missing artifact should not be an error, got %v", err)
	}
	if got != nil {
		t.Fatalf("missing artifact should load as nil, got %+v", got)
	}
}

func TestLoadIndexFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.idx")
	if err := os.WriteFile(path, []byte("not a gob stream"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	if _, err := LoadIndexFile(path); err == nil {
		t.Fatalf("expected error for corrupt artifact")
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "v.idx")

	ix, err := NewIndex([]Chunk{{Text: "a"}}, [][]float32{{1}})
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	if err := ix.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "v.idx" {
		t.Fatalf("expected only the final artifact, found %d entries", len(entries))
	}
}
