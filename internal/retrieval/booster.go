package retrieval

import (
	"github.com/dealsense/backend/internal/analysis"
	"github.com/dealsense/backend/internal/storage/models"
)

// Hints carries the per-query signals the booster rescores against. The
// override fields come from query understanding; zero means no override and
// the query-type heuristic applies.
type Hints struct {
	QueryType         analysis.QueryType
	TableOverride     float64
	NarrativeOverride float64
}

// BoostParams are the multiplicative rescoring terms. All terms multiply
// into a single per-candidate factor; 1.0 is neutral everywhere.
type BoostParams struct {
	TableBoost       float64 // table and key-value chunks under a data query
	NarrativePenalty float64 // narrative chunks under a data query
	NarrativeBoost   float64 // narrative chunks under a narrative query
	HeadingBonus     float64
	EarlyPageBonus   float64
	ShortPenalty     float64
	LongBonus        float64

	EarlyPageCount  int
	ShortChunkChars int
	LongChunkChars  int
}

// MetadataBooster rescores candidates by chunk metadata. It is stateless
// per query; the same instance serves every turn.
type MetadataBooster struct {
	params BoostParams
}

func NewMetadataBooster(params BoostParams) *MetadataBooster {
	if params.EarlyPageCount <= 0 {
		params.EarlyPageCount = 2
	}
	if params.ShortChunkChars <= 0 {
		params.ShortChunkChars = 100
	}
	if params.LongChunkChars <= 0 {
		params.LongChunkChars = 1000
	}
	return &MetadataBooster{params: params}
}

// ForHybridRetriever returns the full-magnitude preset applied to fused
// scores before reranking.
func ForHybridRetriever() BoostParams {
	return BoostParams{
		TableBoost:       1.5,
		NarrativePenalty: 0.85,
		NarrativeBoost:   1.3,
		HeadingBonus:     1.05,
		EarlyPageBonus:   1.05,
		ShortPenalty:     0.9,
		LongBonus:        1.05,
	}
}

// ForReranker returns a half-magnitude preset. Cross-encoder scores already
// reflect relevance well, so metadata only nudges them.
func ForReranker() BoostParams {
	return BoostParams{
		TableBoost:       1.25,
		NarrativePenalty: 0.925,
		NarrativeBoost:   1.15,
		HeadingBonus:     1.025,
		EarlyPageBonus:   1.025,
		ShortPenalty:     0.95,
		LongBonus:        1.025,
	}
}

// Apply multiplies each candidate's selected score by its metadata factor
// and records the factor on the candidate. Candidate order is unchanged;
// the caller sorts.
func (b *MetadataBooster) Apply(candidates []*Candidate, hints Hints, field ScoreField) {
	for _, c := range candidates {
		factor := b.factor(&c.Chunk, hints)
		c.MetadataBoost = factor
		c.setScore(field, c.score(field)*factor)
	}
}

func (b *MetadataBooster) factor(chunk *models.Chunk, hints Hints) float64 {
	factor := b.contentTypeTerm(chunk, hints)

	if chunk.SectionHeading != "" {
		factor *= b.params.HeadingBonus
	}
	if chunk.PageNumber >= 1 && chunk.PageNumber <= b.params.EarlyPageCount {
		factor *= b.params.EarlyPageBonus
	}
	if len(chunk.Text) < b.params.ShortChunkChars {
		factor *= b.params.ShortPenalty
	} else if len(chunk.Text) > b.params.LongChunkChars {
		factor *= b.params.LongBonus
	}

	return factor
}

// contentTypeTerm applies the query-type heuristic unless understanding
// supplied an explicit override for this content class.
func (b *MetadataBooster) contentTypeTerm(chunk *models.Chunk, hints Hints) float64 {
	tabular := chunk.Tabular ||
		chunk.SectionType == models.SectionTable ||
		chunk.SectionType == models.SectionKeyValue

	if tabular {
		if hints.TableOverride != 0 {
			return hints.TableOverride
		}
		if hints.QueryType == analysis.DataQuery {
			return b.params.TableBoost
		}
		return 1.0
	}

	if hints.NarrativeOverride != 0 {
		return hints.NarrativeOverride
	}
	switch hints.QueryType {
	case analysis.DataQuery:
		return b.params.NarrativePenalty
	case analysis.NarrativeQuery:
		return b.params.NarrativeBoost
	default:
		return 1.0
	}
}
