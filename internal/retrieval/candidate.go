package retrieval

import "github.com/dealsense/backend/internal/storage/models"

// Candidate is one chunk in the working ranked list of a single turn, with
// the transient per-query scoring attached. The set is exclusively owned by
// the turn that built it; nothing here is shared or persisted.
type Candidate struct {
	Chunk models.Chunk

	// 0-based position in each retrieval signal's ranked list, computed
	// once by the retrieval call; -1 when the signal did not return the
	// chunk.
	SemanticRank int
	KeywordRank  int

	SemanticScore float64
	KeywordScore  float64

	HybridScore   float64
	MetadataBoost float64
	RerankScore   float64

	CompressedText string
}

// ContextText returns the text that should enter the prompt: compressed if
// compression produced one, original otherwise.
func (c *Candidate) ContextText() string {
	if c.CompressedText != "" {
		return c.CompressedText
	}
	return c.Chunk.Text
}

// ScoreField selects which transient score a rescoring pass mutates, so the
// metadata booster is reusable before and after reranking.
type ScoreField int

const (
	HybridScoreField ScoreField = iota
	RerankScoreField
)

func (c *Candidate) score(field ScoreField) float64 {
	if field == RerankScoreField {
		return c.RerankScore
	}
	return c.HybridScore
}

func (c *Candidate) setScore(field ScoreField, v float64) {
	if field == RerankScoreField {
		c.RerankScore = v
		return
	}
	c.HybridScore = v
}
