package retrieval

import (
	"context"

	"github.com/dealsense/backend/internal/storage/sqlite"
	"github.com/dealsense/backend/internal/vector/milvus"
)

// MilvusIndex adapts the Milvus client to the retriever's semantic signal.
type MilvusIndex struct {
	Client *milvus.Client
}

func (m MilvusIndex) SearchSimilar(ctx context.Context, embedding []float32, scope []string, k int) ([]Hit, error) {
	raw, err := m.Client.Search(ctx, embedding, scope, k)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(raw))
	for i, h := range raw {
		hits[i] = Hit{ChunkID: h.ChunkID, Score: h.Score}
	}
	return hits, nil
}

// FTSIndex adapts the SQLite full-text index to the keyword signal.
type FTSIndex struct {
	Client *sqlite.Client
}

func (f FTSIndex) SearchKeywords(ctx context.Context, query string, scope []string, k int) ([]Hit, error) {
	raw, err := f.Client.LexicalSearch(ctx, query, scope, k)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(raw))
	for i, h := range raw {
		hits[i] = Hit{ChunkID: h.ChunkID, Score: h.Score}
	}
	return hits, nil
}
