package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/dealsense/backend/internal/stage"
	"github.com/dealsense/backend/internal/storage/models"
	"github.com/dealsense/backend/pkg/logger"
)

// ErrNoCandidates means both retrieval signals came back empty. Retrieval is
// a required stage, so the turn fails rather than degrading.
var ErrNoCandidates = errors.New("retrieval returned no candidates")

// Hit is a (chunk, score) pair from one retrieval signal. Scores from the
// two signals live on different scales and are never compared directly; only
// rank positions enter fusion.
type Hit struct {
	ChunkID string
	Score   float64
}

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type SemanticSearcher interface {
	SearchSimilar(ctx context.Context, embedding []float32, scope []string, k int) ([]Hit, error)
}

type KeywordSearcher interface {
	SearchKeywords(ctx context.Context, query string, scope []string, k int) ([]Hit, error)
}

type ChunkStore interface {
	GetChunks(ctx context.Context, ids []string) (map[string]models.Chunk, error)
}

// Query carries the three text views of one user turn. Reformulated and
// Hypothetical come from query understanding and may equal Raw when
// understanding degraded.
type Query struct {
	Raw          string
	Reformulated string
	Hypothetical string
}

// embeddingTarget builds the text whose embedding drives semantic search.
// Appending the hypothetical response pulls the query vector toward the
// region where matching passages live.
func (q Query) embeddingTarget() string {
	base := q.Reformulated
	if base == "" {
		base = q.Raw
	}
	if q.Hypothetical == "" {
		return base
	}
	return base + "\n\n" + q.Hypothetical
}

type Config struct {
	Candidates int // per-signal fetch depth
	FusedTopK  int
	RRFK       int
}

type HybridRetriever struct {
	embedder Embedder
	semantic SemanticSearcher
	keyword  KeywordSearcher
	chunks   ChunkStore
	cfg      Config
}

func NewHybridRetriever(embedder Embedder, semantic SemanticSearcher, keyword KeywordSearcher, chunks ChunkStore, cfg Config) *HybridRetriever {
	if cfg.Candidates <= 0 {
		cfg.Candidates = 50
	}
	if cfg.FusedTopK <= 0 {
		cfg.FusedTopK = 24
	}
	if cfg.RRFK <= 0 {
		cfg.RRFK = 60
	}
	return &HybridRetriever{
		embedder: embedder,
		semantic: semantic,
		keyword:  keyword,
		chunks:   chunks,
		cfg:      cfg,
	}
}

// Retrieve runs semantic and keyword search in parallel, fuses the two
// ranked lists with reciprocal rank fusion, and hydrates the fused list with
// chunk records. One failed signal degrades to the survivor; both failing,
// or an empty fused list, fails the turn.
func (r *HybridRetriever) Retrieve(ctx context.Context, q Query, scope []string) ([]*Candidate, []stage.Degradation, error) {
	var (
		wg      sync.WaitGroup
		semHits []Hit
		keyHits []Hit
		semErr  error
		keyErr  error
	)

	wg.Add(2)

	go func() {
		defer wg.Done()
		target := q.embeddingTarget()
		if strings.TrimSpace(target) == "" {
			semErr = errors.New("empty semantic query")
			return
		}
		embedding, err := r.embedder.GenerateEmbedding(ctx, target)
		if err != nil {
			semErr = fmt.Errorf("failed to embed query: %w", err)
			return
		}
		semHits, semErr = r.semantic.SearchSimilar(ctx, embedding, scope, r.cfg.Candidates)
	}()

	go func() {
		defer wg.Done()
		keyHits, keyErr = r.keyword.SearchKeywords(ctx, q.Raw, scope, r.cfg.Candidates)
	}()

	wg.Wait()

	if semErr != nil && keyErr != nil {
		return nil, nil, fmt.Errorf("both retrieval signals failed (semantic: %v; keyword: %v)", semErr, keyErr)
	}

	var degradations []stage.Degradation
	if semErr != nil {
		logger.Warn("Semantic search failed, keyword results only", zap.Error(semErr))
		degradations = stage.Collect(degradations, stage.Degraded(stage.SemanticSearch, semErr))
	}
	if keyErr != nil {
		logger.Warn("Keyword search failed, semantic results only", zap.Error(keyErr))
		degradations = stage.Collect(degradations, stage.Degraded(stage.KeywordSearch, keyErr))
	}

	fused := Fuse(semHits, keyHits, r.cfg.RRFK, r.cfg.FusedTopK)
	if len(fused) == 0 {
		return nil, degradations, ErrNoCandidates
	}

	candidates, err := r.hydrate(ctx, fused)
	if err != nil {
		return nil, degradations, err
	}
	if len(candidates) == 0 {
		return nil, degradations, ErrNoCandidates
	}

	logger.Debug("Hybrid retrieval complete",
		zap.Int("semantic_hits", len(semHits)),
		zap.Int("keyword_hits", len(keyHits)),
		zap.Int("fused", len(candidates)),
	)

	return candidates, degradations, nil
}

// Fuse merges two ranked hit lists with reciprocal rank fusion. Each list
// contributes 1/(k + rank + 1) for the chunks it ranked, nothing for the
// rest, so fusion is insensitive to the signals' raw score scales. An empty
// list simply contributes no terms; fusion over one list preserves its
// order. Exported for direct testing.
func Fuse(semantic, keyword []Hit, rrfK, topK int) []*Candidate {
	byID := make(map[string]*Candidate, len(semantic)+len(keyword))

	lookup := func(chunkID string) *Candidate {
		if c, ok := byID[chunkID]; ok {
			return c
		}
		c := &Candidate{SemanticRank: -1, KeywordRank: -1}
		c.Chunk.ID = chunkID
		byID[chunkID] = c
		return c
	}

	for rank, hit := range semantic {
		c := lookup(hit.ChunkID)
		c.SemanticRank = rank
		c.SemanticScore = hit.Score
		c.HybridScore += 1.0 / float64(rrfK+rank+1)
	}

	for rank, hit := range keyword {
		c := lookup(hit.ChunkID)
		c.KeywordRank = rank
		c.KeywordScore = hit.Score
		c.HybridScore += 1.0 / float64(rrfK+rank+1)
	}

	fused := make([]*Candidate, 0, len(byID))
	for _, c := range byID {
		fused = append(fused, c)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].HybridScore != fused[j].HybridScore {
			return fused[i].HybridScore > fused[j].HybridScore
		}
		return fused[i].Chunk.ID < fused[j].Chunk.ID
	})

	if len(fused) > topK {
		fused = fused[:topK]
	}
	return fused
}

// hydrate replaces the placeholder chunks carrying only an ID with full
// records. Ids the store no longer knows are dropped; the indexes can run
// ahead of a re-ingested store.
func (r *HybridRetriever) hydrate(ctx context.Context, fused []*Candidate) ([]*Candidate, error) {
	ids := make([]string, len(fused))
	for i, c := range fused {
		ids[i] = c.Chunk.ID
	}

	records, err := r.chunks.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunk records: %w", err)
	}

	hydrated := fused[:0]
	for _, c := range fused {
		chunk, ok := records[c.Chunk.ID]
		if !ok {
			logger.Warn("Fused chunk missing from store", zap.String("chunk_id", c.Chunk.ID))
			continue
		}
		c.Chunk = chunk
		hydrated = append(hydrated, c)
	}

	return hydrated, nil
}
