package retrieval

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/dealsense/backend/internal/stage"
	"github.com/dealsense/backend/pkg/logger"
)

type CrossEncoder interface {
	Predict(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Reranker rescores fused candidates with a cross-encoder, then nudges the
// scores with the half-magnitude metadata preset. Reranking is optional: on
// any failure the fused order stands.
type Reranker struct {
	encoder   CrossEncoder
	booster   *MetadataBooster
	compress  func(text string, targetTokens int) string
	maxTokens int
	topK      int
}

// NewReranker builds a reranker. compress shortens each passage to the
// encoder's input window; encoder may be nil when no scoring service is
// configured.
func NewReranker(encoder CrossEncoder, booster *MetadataBooster, compress func(string, int) string, maxTokens, topK int) *Reranker {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	if topK <= 0 {
		topK = 10
	}
	return &Reranker{
		encoder:   encoder,
		booster:   booster,
		compress:  compress,
		maxTokens: maxTokens,
		topK:      topK,
	}
}

// Rerank returns the top candidates in final order. A nil degradation means
// the cross-encoder ordered them; otherwise the fused hybrid order was kept.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []*Candidate, hints Hints) ([]*Candidate, *stage.Degradation) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	if r.encoder == nil {
		return r.fallback(candidates), nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = r.compress(c.Chunk.Text, r.maxTokens)
	}

	scores, err := r.encoder.Predict(ctx, query, texts)
	if err != nil || len(scores) != len(candidates) {
		logger.Warn("Reranking failed, keeping fused order", zap.Error(err))
		return r.fallback(candidates), stage.Degraded(stage.Rerank, err)
	}

	for i, c := range candidates {
		c.RerankScore = scores[i]
	}

	r.booster.Apply(candidates, hints, RerankScoreField)
	SortByScore(candidates, RerankScoreField)

	return truncate(candidates, r.topK), nil
}

func (r *Reranker) fallback(candidates []*Candidate) []*Candidate {
	SortByScore(candidates, HybridScoreField)
	return truncate(candidates, r.topK)
}

// SortByScore orders candidates by the selected score descending, breaking
// ties on chunk ID for deterministic output.
func SortByScore(candidates []*Candidate, field ScoreField) {
	sort.Slice(candidates, func(i, j int) bool {
		si, sj := candidates[i].score(field), candidates[j].score(field)
		if si != sj {
			return si > sj
		}
		return candidates[i].Chunk.ID < candidates[j].Chunk.ID
	})
}

func truncate(candidates []*Candidate, k int) []*Candidate {
	if len(candidates) > k {
		return candidates[:k]
	}
	return candidates
}
