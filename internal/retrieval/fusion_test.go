package retrieval_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealsense/backend/internal/retrieval"
)

func hits(ids ...string) []retrieval.Hit {
	out := make([]retrieval.Hit, len(ids))
	for i, id := range ids {
		out[i] = retrieval.Hit{ChunkID: id, Score: float64(len(ids) - i)}
	}
	return out
}

func TestFuseBothSignalsAgree(t *testing.T) {
	fused := retrieval.Fuse(hits("a", "b", "c"), hits("a", "c", "b"), 60, 10)

	require.Len(t, fused, 3)
	// "a" leads both lists and must win.
	assert.Equal(t, "a", fused[0].Chunk.ID)
	assert.Equal(t, 0, fused[0].SemanticRank)
	assert.Equal(t, 0, fused[0].KeywordRank)
	assert.InDelta(t, 2.0/61.0, fused[0].HybridScore, 1e-12)
}

func TestFuseRankBasedNotScoreBased(t *testing.T) {
	// Keyword scores are on a wild scale; only rank positions may matter.
	semantic := []retrieval.Hit{{ChunkID: "a", Score: 0.99}, {ChunkID: "b", Score: 0.98}}
	keyword := []retrieval.Hit{{ChunkID: "b", Score: 50000}, {ChunkID: "a", Score: 49999}}

	fused := retrieval.Fuse(semantic, keyword, 60, 10)

	require.Len(t, fused, 2)
	// Symmetric ranks: each is first in one list, second in the other.
	assert.InDelta(t, fused[0].HybridScore, fused[1].HybridScore, 1e-12)
}

func TestFuseSingleListMember(t *testing.T) {
	fused := retrieval.Fuse(hits("a", "b"), hits("c"), 60, 10)

	byID := map[string]*retrieval.Candidate{}
	for _, c := range fused {
		byID[c.Chunk.ID] = c
	}

	require.Contains(t, byID, "c")
	assert.Equal(t, -1, byID["c"].SemanticRank)
	assert.Equal(t, 0, byID["c"].KeywordRank)
	assert.InDelta(t, 1.0/61.0, byID["c"].HybridScore, 1e-12)

	assert.Equal(t, -1, byID["a"].KeywordRank)
	assert.Equal(t, 0, byID["a"].SemanticRank)
}

func TestFuseEmptyKeywordListPreservesSemanticOrder(t *testing.T) {
	fused := retrieval.Fuse(hits("x", "y", "z"), nil, 60, 10)

	require.Len(t, fused, 3)
	assert.Equal(t, "x", fused[0].Chunk.ID)
	assert.Equal(t, "y", fused[1].Chunk.ID)
	assert.Equal(t, "z", fused[2].Chunk.ID)
}

func TestFuseDualListMemberBeatsSingleListMember(t *testing.T) {
	// "b" is ranked worse in both lists than "a" is in its one list, but
	// two contributions still beat one at these depths.
	semantic := hits("a", "b")
	keyword := hits("c", "b")

	fused := retrieval.Fuse(semantic, keyword, 60, 10)

	assert.Equal(t, "b", fused[0].Chunk.ID)
}

func TestFuseTruncatesToTopK(t *testing.T) {
	fused := retrieval.Fuse(hits("a", "b", "c", "d", "e"), nil, 60, 2)

	require.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].Chunk.ID)
	assert.Equal(t, "b", fused[1].Chunk.ID)
}

func TestFuseDeterministicTieBreak(t *testing.T) {
	first := retrieval.Fuse(hits("b", "a"), hits("a", "b"), 60, 10)
	second := retrieval.Fuse(hits("b", "a"), hits("a", "b"), 60, 10)

	require.Len(t, first, 2)
	assert.Equal(t, first[0].Chunk.ID, second[0].Chunk.ID)
	// Equal scores break on chunk ID.
	assert.Equal(t, "a", first[0].Chunk.ID)
}
