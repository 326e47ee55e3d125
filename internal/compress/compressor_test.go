package compress_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealsense/backend/internal/compress"
	"github.com/dealsense/backend/internal/retrieval"
	"github.com/dealsense/backend/internal/storage/models"
)

const longNarrative = "The property generated strong returns in 2023. Revenue grew by 12 percent against the prior year. " +
	"Management attributes the growth to improved occupancy across the office portfolio. " +
	"The downtown submarket remained competitive throughout the period. " +
	"Leasing activity was concentrated in the second half of the year. " +
	"Tenant retention stayed above historical averages. " +
	"Operating expenses were held flat through renegotiated vendor contracts. " +
	"Capital expenditures focused on lobby renovations and elevator modernization."

func candidateWith(chunk models.Chunk) *retrieval.Candidate {
	return &retrieval.Candidate{Chunk: chunk, SemanticRank: -1, KeywordRank: -1}
}

func TestCompressChunksNeverExpands(t *testing.T) {
	c := compress.NewCompressor(0.6, 4)
	cand := candidateWith(models.Chunk{
		ID:          "n1",
		Text:        longNarrative,
		SectionType: models.SectionNarrative,
	})

	result, deg := c.CompressChunks([]*retrieval.Candidate{cand})

	require.Nil(t, deg)
	assert.LessOrEqual(t, len(cand.ContextText()), len(longNarrative))
	assert.LessOrEqual(t, result.CompressedTokens, result.OriginalTokens)
	assert.LessOrEqual(t, result.Ratio, 1.0)
}

func TestCompressChunksShortensTowardTarget(t *testing.T) {
	c := compress.NewCompressor(0.5, 4)
	cand := candidateWith(models.Chunk{
		ID:          "n1",
		Text:        longNarrative,
		SectionType: models.SectionNarrative,
	})

	result, deg := c.CompressChunks([]*retrieval.Candidate{cand})

	require.Nil(t, deg)
	assert.Equal(t, compress.MethodExtractive, result.Method)
	assert.NotEmpty(t, cand.CompressedText)
	assert.Less(t, len(cand.CompressedText), len(longNarrative))
}

func TestCompressChunksSkipsTabular(t *testing.T) {
	c := compress.NewCompressor(0.3, 4)
	table := "Year | Revenue | EBITDA\n2021 | 10.0 | 2.0\n2022 | 12.0 | 2.6\n2023 | 14.1 | 3.3"
	cand := candidateWith(models.Chunk{
		ID:          "t1",
		Text:        table,
		SectionType: models.SectionTable,
		Tabular:     true,
	})

	_, deg := c.CompressChunks([]*retrieval.Candidate{cand})

	require.Nil(t, deg)
	assert.Empty(t, cand.CompressedText)
	assert.Equal(t, table, cand.ContextText())
}

func TestCompressChunksPrefersSentencesWithFigures(t *testing.T) {
	c := compress.NewCompressor(0.4, 4)
	cand := candidateWith(models.Chunk{
		ID:          "n1",
		Text:        longNarrative,
		SectionType: models.SectionNarrative,
	})

	_, deg := c.CompressChunks([]*retrieval.Candidate{cand})

	require.Nil(t, deg)
	assert.Contains(t, cand.ContextText(), "12 percent")
}

func TestCompressTextToTokenLimitShortInputUnchanged(t *testing.T) {
	c := compress.NewCompressor(0.6, 4)
	text := "Short passage."

	assert.Equal(t, text, c.CompressTextToTokenLimit(text, 512))
}

func TestCompressTextToTokenLimitEnforcesLimit(t *testing.T) {
	c := compress.NewCompressor(0.6, 4)

	out := c.CompressTextToTokenLimit(longNarrative, 40)

	assert.LessOrEqual(t, c.EstimateTokens(out), 40)
	assert.NotEmpty(t, out)
}

func TestCompressTextToTokenLimitHardTruncatesUnsegmentableText(t *testing.T) {
	c := compress.NewCompressor(0.6, 4)
	blob := strings.Repeat("x", 4000)

	out := c.CompressTextToTokenLimit(blob, 100)

	assert.LessOrEqual(t, c.EstimateTokens(out), 100)
}

func TestEstimateTokens(t *testing.T) {
	c := compress.NewCompressor(0.6, 4)

	assert.Equal(t, 25, c.EstimateTokens(strings.Repeat("a", 100)))
	assert.Equal(t, 0, c.EstimateTokens("abc"))
}
