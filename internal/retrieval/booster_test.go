package retrieval_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealsense/backend/internal/analysis"
	"github.com/dealsense/backend/internal/retrieval"
	"github.com/dealsense/backend/internal/storage/models"
)

func narrativeCandidate(id string, chars int) *retrieval.Candidate {
	c := &retrieval.Candidate{HybridScore: 1.0, SemanticRank: -1, KeywordRank: -1}
	c.Chunk = models.Chunk{
		ID:          id,
		Text:        strings.Repeat("a", chars),
		PageNumber:  5,
		SectionType: models.SectionNarrative,
	}
	return c
}

func tableCandidate(id string, chars int) *retrieval.Candidate {
	c := narrativeCandidate(id, chars)
	c.Chunk.SectionType = models.SectionTable
	c.Chunk.Tabular = true
	return c
}

func TestBoosterDataQueryFavorsTables(t *testing.T) {
	booster := retrieval.NewMetadataBooster(retrieval.ForHybridRetriever())
	table := tableCandidate("t", 500)
	narrative := narrativeCandidate("n", 500)

	booster.Apply([]*retrieval.Candidate{table, narrative}, retrieval.Hints{
		QueryType: analysis.DataQuery,
	}, retrieval.HybridScoreField)

	assert.InDelta(t, 1.5, table.HybridScore, 1e-9)
	assert.InDelta(t, 0.85, narrative.HybridScore, 1e-9)
	assert.Greater(t, table.MetadataBoost, 1.0)
	assert.Less(t, narrative.MetadataBoost, 1.0)
}

func TestBoosterNarrativeQueryFavorsNarrative(t *testing.T) {
	booster := retrieval.NewMetadataBooster(retrieval.ForHybridRetriever())
	table := tableCandidate("t", 500)
	narrative := narrativeCandidate("n", 500)

	booster.Apply([]*retrieval.Candidate{table, narrative}, retrieval.Hints{
		QueryType: analysis.NarrativeQuery,
	}, retrieval.HybridScoreField)

	assert.GreaterOrEqual(t, narrative.HybridScore, 1.0)
	// Tables are neutral under a narrative query, not penalized.
	assert.InDelta(t, 1.0, table.HybridScore, 1e-9)
}

func TestBoosterGenericQueryIsNeutral(t *testing.T) {
	booster := retrieval.NewMetadataBooster(retrieval.ForHybridRetriever())
	narrative := narrativeCandidate("n", 500)

	booster.Apply([]*retrieval.Candidate{narrative}, retrieval.Hints{
		QueryType: analysis.GenericQuery,
	}, retrieval.HybridScoreField)

	assert.InDelta(t, 1.0, narrative.HybridScore, 1e-9)
}

func TestBoosterOverrideTakesPrecedence(t *testing.T) {
	booster := retrieval.NewMetadataBooster(retrieval.ForHybridRetriever())
	table := tableCandidate("t", 500)

	booster.Apply([]*retrieval.Candidate{table}, retrieval.Hints{
		QueryType:     analysis.NarrativeQuery,
		TableOverride: 1.8,
	}, retrieval.HybridScoreField)

	assert.InDelta(t, 1.8, table.HybridScore, 1e-9)
}

func TestBoosterStructuralTerms(t *testing.T) {
	booster := retrieval.NewMetadataBooster(retrieval.ForHybridRetriever())

	withHeading := narrativeCandidate("h", 500)
	withHeading.Chunk.SectionHeading = "Financial Highlights"

	earlyPage := narrativeCandidate("e", 500)
	earlyPage.Chunk.PageNumber = 1

	short := narrativeCandidate("s", 50)
	long := narrativeCandidate("l", 1500)

	cands := []*retrieval.Candidate{withHeading, earlyPage, short, long}
	booster.Apply(cands, retrieval.Hints{QueryType: analysis.GenericQuery}, retrieval.HybridScoreField)

	assert.InDelta(t, 1.05, withHeading.HybridScore, 1e-9)
	assert.InDelta(t, 1.05, earlyPage.HybridScore, 1e-9)
	assert.InDelta(t, 0.9, short.HybridScore, 1e-9)
	assert.InDelta(t, 1.05, long.HybridScore, 1e-9)
}

func TestRerankerPresetIsGentler(t *testing.T) {
	full := retrieval.ForHybridRetriever()
	gentle := retrieval.ForReranker()

	require.Greater(t, full.TableBoost, gentle.TableBoost)
	require.Less(t, full.NarrativePenalty, gentle.NarrativePenalty)

	// Every gentle term sits closer to neutral than its full counterpart.
	assert.Less(t, gentle.TableBoost-1.0, full.TableBoost-1.0)
	assert.Less(t, 1.0-gentle.NarrativePenalty, 1.0-full.NarrativePenalty)
	assert.Less(t, gentle.NarrativeBoost-1.0, full.NarrativeBoost-1.0)
	assert.Less(t, gentle.HeadingBonus-1.0, full.HeadingBonus-1.0)
	assert.Less(t, 1.0-gentle.ShortPenalty, 1.0-full.ShortPenalty)
}
