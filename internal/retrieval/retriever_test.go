package retrieval_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealsense/backend/internal/retrieval"
	"github.com/dealsense/backend/internal/stage"
	"github.com/dealsense/backend/internal/storage/models"
)

type fakeEmbedder struct {
	err error
}

func (f fakeEmbedder) GenerateEmbedding(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type fakeSemantic struct {
	hits []retrieval.Hit
	err  error
}

func (f fakeSemantic) SearchSimilar(_ context.Context, _ []float32, _ []string, _ int) ([]retrieval.Hit, error) {
	return f.hits, f.err
}

type fakeKeyword struct {
	hits []retrieval.Hit
	err  error
}

func (f fakeKeyword) SearchKeywords(_ context.Context, _ string, _ []string, _ int) ([]retrieval.Hit, error) {
	return f.hits, f.err
}

type fakeChunks struct {
	known map[string]models.Chunk
}

func (f fakeChunks) GetChunks(_ context.Context, ids []string) (map[string]models.Chunk, error) {
	out := make(map[string]models.Chunk)
	for _, id := range ids {
		if chunk, ok := f.known[id]; ok {
			out[id] = chunk
		}
	}
	return out, nil
}

func chunkStore(ids ...string) fakeChunks {
	known := make(map[string]models.Chunk)
	for _, id := range ids {
		known[id] = models.Chunk{ID: id, DocumentID: "doc-1", Text: "text for " + id}
	}
	return fakeChunks{known: known}
}

func newRetriever(sem fakeSemantic, key fakeKeyword, chunks fakeChunks) *retrieval.HybridRetriever {
	return retrieval.NewHybridRetriever(fakeEmbedder{}, sem, key, chunks, retrieval.Config{})
}

func TestRetrieveMergesBothSignals(t *testing.T) {
	r := newRetriever(
		fakeSemantic{hits: hits("a", "b")},
		fakeKeyword{hits: hits("b", "c")},
		chunkStore("a", "b", "c"),
	)

	cands, degs, err := r.Retrieve(context.Background(), retrieval.Query{Raw: "q"}, nil)

	require.NoError(t, err)
	assert.Empty(t, degs)
	require.Len(t, cands, 3)
	assert.Equal(t, "b", cands[0].Chunk.ID)
	assert.Equal(t, "text for b", cands[0].Chunk.Text)
}

func TestRetrieveDegradesWhenKeywordFails(t *testing.T) {
	r := newRetriever(
		fakeSemantic{hits: hits("a", "b")},
		fakeKeyword{err: errors.New("fts offline")},
		chunkStore("a", "b"),
	)

	cands, degs, err := r.Retrieve(context.Background(), retrieval.Query{Raw: "q"}, nil)

	require.NoError(t, err)
	require.Len(t, degs, 1)
	assert.Equal(t, stage.KeywordSearch, degs[0].Stage)
	require.Len(t, cands, 2)
	assert.Equal(t, "a", cands[0].Chunk.ID)
}

func TestRetrieveDegradesWhenEmbeddingFails(t *testing.T) {
	r := retrieval.NewHybridRetriever(
		fakeEmbedder{err: errors.New("embedding api down")},
		fakeSemantic{hits: hits("a")},
		fakeKeyword{hits: hits("k1", "k2")},
		chunkStore("a", "k1", "k2"),
		retrieval.Config{},
	)

	cands, degs, err := r.Retrieve(context.Background(), retrieval.Query{Raw: "q"}, nil)

	require.NoError(t, err)
	require.Len(t, degs, 1)
	assert.Equal(t, stage.SemanticSearch, degs[0].Stage)
	require.Len(t, cands, 2)
	assert.Equal(t, "k1", cands[0].Chunk.ID)
}

func TestRetrieveErrorsWhenBothSignalsFail(t *testing.T) {
	r := newRetriever(
		fakeSemantic{err: errors.New("vector db down")},
		fakeKeyword{err: errors.New("fts down")},
		chunkStore(),
	)

	_, _, err := r.Retrieve(context.Background(), retrieval.Query{Raw: "q"}, nil)

	require.Error(t, err)
}

func TestRetrieveErrorsOnEmptyResults(t *testing.T) {
	r := newRetriever(fakeSemantic{}, fakeKeyword{}, chunkStore())

	_, _, err := r.Retrieve(context.Background(), retrieval.Query{Raw: "q"}, nil)

	require.ErrorIs(t, err, retrieval.ErrNoCandidates)
}

func TestRetrieveDropsChunksMissingFromStore(t *testing.T) {
	r := newRetriever(
		fakeSemantic{hits: hits("a", "ghost")},
		fakeKeyword{},
		chunkStore("a"),
	)

	cands, _, err := r.Retrieve(context.Background(), retrieval.Query{Raw: "q"}, nil)

	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "a", cands[0].Chunk.ID)
}
