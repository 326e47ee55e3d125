package retrieval_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealsense/backend/internal/analysis"
	"github.com/dealsense/backend/internal/retrieval"
	"github.com/dealsense/backend/internal/stage"
)

type fakeEncoder struct {
	scores []float64
	err    error
	calls  int
}

func (f *fakeEncoder) Predict(_ context.Context, _ string, texts []string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.scores[:len(texts)], nil
}

func identityCompress(text string, _ int) string { return text }

func genericHints() retrieval.Hints {
	return retrieval.Hints{QueryType: analysis.GenericQuery}
}

func rankedCandidates() []*retrieval.Candidate {
	a := narrativeCandidate("a", 500)
	a.HybridScore = 0.9
	b := narrativeCandidate("b", 500)
	b.HybridScore = 0.5
	c := narrativeCandidate("c", 500)
	c.HybridScore = 0.1
	return []*retrieval.Candidate{a, b, c}
}

func TestRerankOrdersByEncoderScore(t *testing.T) {
	encoder := &fakeEncoder{scores: []float64{0.1, 0.2, 0.95}}
	booster := retrieval.NewMetadataBooster(retrieval.ForReranker())
	reranker := retrieval.NewReranker(encoder, booster, identityCompress, 512, 10)

	out, deg := reranker.Rerank(context.Background(), "q", rankedCandidates(), genericHints())

	require.Nil(t, deg)
	require.Len(t, out, 3)
	// The weakest fused candidate had the strongest cross-encoder score.
	assert.Equal(t, "c", out[0].Chunk.ID)
	assert.Equal(t, 1, encoder.calls)
}

func TestRerankFailureKeepsFusedOrder(t *testing.T) {
	encoder := &fakeEncoder{err: errors.New("scoring service down")}
	booster := retrieval.NewMetadataBooster(retrieval.ForReranker())
	reranker := retrieval.NewReranker(encoder, booster, identityCompress, 512, 10)

	out, deg := reranker.Rerank(context.Background(), "q", rankedCandidates(), genericHints())

	require.NotNil(t, deg)
	assert.Equal(t, stage.Rerank, deg.Stage)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].Chunk.ID)
	assert.Equal(t, "b", out[1].Chunk.ID)
	assert.Equal(t, "c", out[2].Chunk.ID)
}

func TestRerankNilEncoderIsNotDegraded(t *testing.T) {
	booster := retrieval.NewMetadataBooster(retrieval.ForReranker())
	reranker := retrieval.NewReranker(nil, booster, identityCompress, 512, 2)

	out, deg := reranker.Rerank(context.Background(), "q", rankedCandidates(), genericHints())

	assert.Nil(t, deg)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Chunk.ID)
}

func TestRerankTruncatesToTopK(t *testing.T) {
	encoder := &fakeEncoder{scores: []float64{0.3, 0.2, 0.1}}
	booster := retrieval.NewMetadataBooster(retrieval.ForReranker())
	reranker := retrieval.NewReranker(encoder, booster, identityCompress, 512, 2)

	out, deg := reranker.Rerank(context.Background(), "q", rankedCandidates(), genericHints())

	require.Nil(t, deg)
	assert.Len(t, out, 2)
}

func TestRerankCompressesPassagesToWindow(t *testing.T) {
	encoder := &fakeEncoder{scores: []float64{0.1, 0.2, 0.3}}
	booster := retrieval.NewMetadataBooster(retrieval.ForReranker())

	var seen []string
	compress := func(text string, targetTokens int) string {
		assert.Equal(t, 128, targetTokens)
		short := text[:10]
		seen = append(seen, short)
		return short
	}
	reranker := retrieval.NewReranker(encoder, booster, compress, 128, 10)

	_, deg := reranker.Rerank(context.Background(), "q", rankedCandidates(), genericHints())

	require.Nil(t, deg)
	assert.Len(t, seen, 3)
}
