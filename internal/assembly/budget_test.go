package assembly_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealsense/backend/internal/assembly"
	"github.com/dealsense/backend/internal/retrieval"
	"github.com/dealsense/backend/internal/stage"
	"github.com/dealsense/backend/internal/storage/models"
)

type fakeCompressor struct {
	replacement string
	degradation *stage.Degradation
	calls       int
}

func (f *fakeCompressor) CompressSummary(_ context.Context, summary *models.ConversationSummary) *stage.Degradation {
	f.calls++
	if f.degradation != nil {
		return f.degradation
	}
	summary.Summary = f.replacement
	summary.Compressed = true
	return nil
}

func chunkOf(id string, chars int) *retrieval.Candidate {
	return &retrieval.Candidate{
		Chunk:        models.Chunk{ID: id, Text: strings.Repeat("c", chars)},
		SemanticRank: -1,
		KeywordRank:  -1,
	}
}

func messagesOf(n, chars int) []models.Message {
	out := make([]models.Message, n)
	for i := range out {
		out[i] = models.Message{MessageIndex: i, Content: strings.Repeat("m", chars)}
	}
	return out
}

func testBudget() assembly.Budget {
	return assembly.Budget{
		MaxInputChars:      1000,
		AnswerReserveChars: 200,
		ChunkFloor:         2,
		MessageFloor:       2,
		SummaryCharCeiling: 100,
	}
}

func TestEnforceUnderBudgetIsNoop(t *testing.T) {
	enforcer := assembly.NewEnforcer(testBudget(), nil)
	in := assembly.PromptInputs{
		System:     "sys",
		Query:      "q",
		Candidates: []*retrieval.Candidate{chunkOf("a", 100)},
	}

	degs := enforcer.Enforce(context.Background(), &in)

	assert.Empty(t, degs)
	assert.Len(t, in.Candidates, 1)
}

func TestEnforceDropsWeakestChunksFirst(t *testing.T) {
	enforcer := assembly.NewEnforcer(testBudget(), nil)
	in := assembly.PromptInputs{
		System: strings.Repeat("s", 100),
		Query:  strings.Repeat("q", 50),
		Candidates: []*retrieval.Candidate{
			chunkOf("a", 200), chunkOf("b", 200), chunkOf("c", 200),
			chunkOf("d", 200), chunkOf("e", 200),
		},
	}

	enforcer.Enforce(context.Background(), &in)

	// 150 fixed + 1000 chunks > 800; dropping from the tail reaches 750.
	require.Len(t, in.Candidates, 3)
	assert.Equal(t, "a", in.Candidates[0].Chunk.ID)
	assert.Equal(t, "c", in.Candidates[2].Chunk.ID)
}

func TestEnforceRespectsChunkFloor(t *testing.T) {
	enforcer := assembly.NewEnforcer(testBudget(), nil)
	in := assembly.PromptInputs{
		Candidates: []*retrieval.Candidate{
			chunkOf("a", 600), chunkOf("b", 600), chunkOf("c", 600),
		},
	}

	enforcer.Enforce(context.Background(), &in)

	// Still over budget at the floor, but the floor holds.
	assert.Len(t, in.Candidates, 2)
}

func TestEnforceCompressesSummaryAfterChunks(t *testing.T) {
	compressor := &fakeCompressor{replacement: "tight"}
	enforcer := assembly.NewEnforcer(testBudget(), compressor)
	in := assembly.PromptInputs{
		Summary: &models.ConversationSummary{Summary: strings.Repeat("s", 900)},
		Candidates: []*retrieval.Candidate{
			chunkOf("a", 100), chunkOf("b", 100),
		},
	}

	degs := enforcer.Enforce(context.Background(), &in)

	assert.Empty(t, degs)
	assert.Equal(t, 1, compressor.calls)
	assert.Equal(t, "tight", in.Summary.Summary)
	// Chunks were already at the floor; they stay.
	assert.Len(t, in.Candidates, 2)
}

func TestEnforceTruncatesSummaryWhenCompressionFails(t *testing.T) {
	compressor := &fakeCompressor{degradation: stage.Degraded(stage.SummaryCompression, nil)}
	enforcer := assembly.NewEnforcer(testBudget(), compressor)
	in := assembly.PromptInputs{
		Summary: &models.ConversationSummary{Summary: strings.Repeat("s", 900)},
		Candidates: []*retrieval.Candidate{
			chunkOf("a", 100), chunkOf("b", 100),
		},
	}

	degs := enforcer.Enforce(context.Background(), &in)

	require.Len(t, degs, 1)
	assert.Equal(t, stage.SummaryCompression, degs[0].Stage)
	assert.LessOrEqual(t, len(in.Summary.Summary), 100)
}

func TestEnforceShedsOldestMessagesLast(t *testing.T) {
	enforcer := assembly.NewEnforcer(testBudget(), nil)
	in := assembly.PromptInputs{
		Messages: messagesOf(6, 200),
		Candidates: []*retrieval.Candidate{
			chunkOf("a", 100), chunkOf("b", 100),
		},
	}

	enforcer.Enforce(context.Background(), &in)

	// 1200 message chars + 200 chunk chars > 800; oldest messages go.
	require.Len(t, in.Messages, 3)
	assert.Equal(t, 3, in.Messages[0].MessageIndex)
}

func TestEnforceRespectsMessageFloor(t *testing.T) {
	enforcer := assembly.NewEnforcer(testBudget(), nil)
	in := assembly.PromptInputs{
		Messages: messagesOf(4, 500),
		Candidates: []*retrieval.Candidate{
			chunkOf("a", 100), chunkOf("b", 100),
		},
	}

	enforcer.Enforce(context.Background(), &in)

	assert.Len(t, in.Messages, 2)
}
