package retrieval

import (
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
)

// Index is a flat vector index over the chunks of one source. Small
// enough per video that exhaustive cosine scan beats any ANN structure.
type Index struct {
	Dim     int
	Chunks  []Chunk
	Vectors [][]float32
}

// Scored is one search hit.
type Scored struct {
	Chunk Chunk
	Score float64
}

func NewIndex(chunks []Chunk, vectors [][]float32) (*Index, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty index")
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dim %d, want %d", i, len(v), dim)
		}
	}
	return &Index{Dim: dim, Chunks: chunks, Vectors: vectors}, nil
}

// Search returns the k nearest chunks by cosine similarity, best first.
func (ix *Index) Search(query []float32, k int) []Scored {
	if ix == nil || len(ix.Vectors) == 0 || len(query) != ix.Dim || k <= 0 {
		return nil
	}
	scored := make([]Scored, 0, len(ix.Vectors))
	for i, v := range ix.Vectors {
		scored = append(scored, Scored{Chunk: ix.Chunks[i], Score: cosine(query, v)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Save writes the index to a temp file in the target directory and
// renames it into place, so readers never observe a partial artifact.
func (ix *Index) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmpName := tmp.Name()

	if err := gob.NewEncoder(tmp).Encode(ix); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("encode index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp index: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename index into place: %w", err)
	}
	return nil
}

// LoadIndexFile reads an index from disk. A missing file is not an
// error: it returns (nil, nil) so callers treat absence as "no source".
func LoadIndexFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	defer f.Close()

	var ix Index
	if err := gob.NewDecoder(f).Decode(&ix); err != nil {
		return nil, fmt.Errorf("decode index %s: %w", path, err)
	}
	if len(ix.Chunks) != len(ix.Vectors) {
		return nil, fmt.Errorf("index %s is inconsistent: %d chunks, %d vectors", path, len(ix.Chunks), len(ix.Vectors))
	}
	return &ix, nil
}
