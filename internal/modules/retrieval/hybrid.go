package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/incuisenix/backend/internal/domain"
	"github.com/incuisenix/backend/internal/pkg/logger"
)

// NoContextSentinel is what prompt assembly sees when no index exists
// for a video yet. Degraded-but-available beats a hard failure here;
// indexing is asynchronous and may lag ingestion.
const NoContextSentinel = "No context available for this video."

// Retriever returns ranked chunks for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]Scored, error)
}

// rrfConstant dampens the rank-to-score conversion in reciprocal-rank
// fusion. The usual literature value.
const rrfConstant = 60.0

// Hybrid composes per-source retrievers into one weighted retriever.
type Hybrid struct {
	log     *logger.Logger
	embed   Embedder
	manager *Manager
	cfg     Config
}

func NewHybrid(log *logger.Logger, embed Embedder, manager *Manager, cfg Config) (*Hybrid, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if embed == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if manager == nil {
		return nil, fmt.Errorf("index manager required")
	}
	return &Hybrid{
		log:     log.With("service", "HybridRetriever"),
		embed:   embed,
		manager: manager,
		cfg:     cfg,
	}, nil
}

type weightedSource struct {
	kind   domain.SourceKind
	index  *Index
	weight float64
	k      int
}

// GetRetriever loads whichever per-source indexes exist for the video
// (and user, for notes) and assigns fusion weights by how many sources
// are available: three-way fixed split, two-way split favoring the
// higher-priority source, single source passed through unweighted, and
// a sentinel retriever when nothing is indexed yet.
func (h *Hybrid) GetRetriever(video *domain.Video, userID uuid.UUID) Retriever {
	platformID := video.PlatformID()
	if platformID == "" {
		return staticRetriever{}
	}

	// Priority order: transcript, notes, ocr.
	candidates := []weightedSource{
		{kind: domain.SourceAudioTranscript, index: h.manager.LoadIndex(TranscriptKey(platformID)), k: h.cfg.K.Transcript},
	}
	if userID != uuid.Nil {
		candidates = append(candidates, weightedSource{
			kind: domain.SourceNote, index: h.manager.LoadIndex(NotesKey(userID, platformID)), k: h.cfg.K.Notes,
		})
	}
	candidates = append(candidates, weightedSource{
		kind: domain.SourceOCR, index: h.manager.LoadIndex(OCRKey(platformID)), k: h.cfg.K.OCR,
	})

	available := candidates[:0:0]
	for _, c := range candidates {
		if c.index != nil {
			available = append(available, c)
		}
	}

	switch len(available) {
	case 0:
		h.log.Debug("No indexes available; using sentinel context", "platform_id", platformID)
		return staticRetriever{}
	case 1:
		available[0].weight = 1.0
		return &fusedRetriever{embed: h.embed, sources: available}
	case 2:
		available[0].weight = h.cfg.Weights.TwoWayPrimary
		available[1].weight = h.cfg.Weights.TwoWaySecondary
		return &fusedRetriever{embed: h.embed, sources: available}
	default:
		for i := range available {
			switch available[i].kind {
			case domain.SourceAudioTranscript:
				available[i].weight = h.cfg.Weights.Transcript
			case domain.SourceNote:
				available[i].weight = h.cfg.Weights.Notes
			case domain.SourceOCR:
				available[i].weight = h.cfg.Weights.OCR
			}
		}
		return &fusedRetriever{embed: h.embed, sources: available}
	}
}

// staticRetriever returns the sentinel chunk regardless of query.
type staticRetriever struct{}

func (staticRetriever) Retrieve(ctx context.Context, query string) ([]Scored, error) {
	return []Scored{{Chunk: Chunk{Text: NoContextSentinel}, Score: 1.0}}, nil
}

// fusedRetriever embeds the query once, searches each source at its own
// depth, and merges the ranked lists with weighted reciprocal-rank
// fusion.
type fusedRetriever struct {
	embed   Embedder
	sources []weightedSource
}

func (r *fusedRetriever) Retrieve(ctx context.Context, query string) ([]Scored, error) {
	vecs, err := r.embed.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query returned %d vectors", len(vecs))
	}
	qv := vecs[0]

	type fused struct {
		chunk Chunk
		score float64
	}
	merged := map[string]*fused{}

	for _, src := range r.sources {
		hits := src.index.Search(qv, src.k)
		for rank, hit := range hits {
			contribution := src.weight / (rrfConstant + float64(rank+1))
			if f, ok := merged[hit.Chunk.Text]; ok {
				f.score += contribution
			} else {
				merged[hit.Chunk.Text] = &fused{chunk: hit.Chunk, score: contribution}
			}
		}
	}

	out := make([]Scored, 0, len(merged))
	for _, f := range merged {
		out = append(out, Scored{Chunk: f.chunk, Score: f.score})
	}
	// Score ties break on chunk position then text; map iteration order
	// must not leak into the ranking.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Chunk.StartOffsetSeconds != out[j].Chunk.StartOffsetSeconds {
			return out[i].Chunk.StartOffsetSeconds < out[j].Chunk.StartOffsetSeconds
		}
		return out[i].Chunk.Text < out[j].Chunk.Text
	})
	return out, nil
}
