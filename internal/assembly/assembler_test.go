package assembly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealsense/backend/internal/retrieval"
	"github.com/dealsense/backend/internal/storage/models"
)

func TestScopeDocumentsNilMeansFullCollection(t *testing.T) {
	docs := []models.Document{{ID: "a"}, {ID: "b"}}

	scope := scopeDocuments(docs, nil)

	assert.Equal(t, docs, scope)
}

func TestScopeDocumentsPreservesMatchOrder(t *testing.T) {
	docs := []models.Document{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	scope := scopeDocuments(docs, []string{"c", "a"})

	require.Len(t, scope, 2)
	assert.Equal(t, "c", scope[0].ID)
	assert.Equal(t, "a", scope[1].ID)
}

func TestRenderPromptLabelsContext(t *testing.T) {
	scope := []models.Document{
		{ID: "doc-acme", Filename: "Acme_Corp_CIM.pdf"},
		{ID: "doc-beta", Filename: "Beta_LLC_Teaser.pdf"},
	}
	in := PromptInputs{
		Query: "Compare revenue",
		Candidates: []*retrieval.Candidate{
			{Chunk: models.Chunk{ID: "c1", DocumentID: "doc-beta", PageNumber: 4, Text: "Beta revenue was 8M."}},
			{Chunk: models.Chunk{ID: "c2", DocumentID: "doc-acme", PageNumber: 2, Text: "Acme revenue was 12M."}},
		},
	}

	prompt := renderPrompt(&in, scope)

	assert.Contains(t, prompt, "D1: Acme_Corp_CIM.pdf")
	assert.Contains(t, prompt, "D2: Beta_LLC_Teaser.pdf")
	assert.Contains(t, prompt, "[D2:p4] Beta revenue was 8M.")
	assert.Contains(t, prompt, "[D1:p2] Acme revenue was 12M.")
	assert.Contains(t, prompt, "Question: Compare revenue")
}

func TestRenderPromptUsesCompressedText(t *testing.T) {
	scope := []models.Document{{ID: "doc-a", Filename: "A.pdf"}}
	in := PromptInputs{
		Query: "q",
		Candidates: []*retrieval.Candidate{
			{
				Chunk:          models.Chunk{ID: "c1", DocumentID: "doc-a", PageNumber: 1, Text: "full original text"},
				CompressedText: "compressed text",
			},
		},
	}

	prompt := renderPrompt(&in, scope)

	assert.Contains(t, prompt, "compressed text")
	assert.NotContains(t, prompt, "full original text")
}

func TestRenderPromptIncludesSummaryAndHistory(t *testing.T) {
	scope := []models.Document{{ID: "doc-a", Filename: "A.pdf"}}
	in := PromptInputs{
		Query:   "q",
		Summary: &models.ConversationSummary{Summary: "Earlier we discussed Acme."},
		Messages: []models.Message{
			{Role: models.RoleUser, Content: "What about margins?"},
			{Role: models.RoleAssistant, Content: "Margins improved."},
		},
	}

	prompt := renderPrompt(&in, scope)

	assert.Contains(t, prompt, "Earlier we discussed Acme.")
	assert.Contains(t, prompt, "user: What about margins?")
	assert.Contains(t, prompt, "assistant: Margins improved.")
}

func TestRenderPromptSkipsChunksOutsideScope(t *testing.T) {
	scope := []models.Document{{ID: "doc-a", Filename: "A.pdf"}}
	in := PromptInputs{
		Query: "q",
		Candidates: []*retrieval.Candidate{
			{Chunk: models.Chunk{ID: "c1", DocumentID: "doc-unknown", PageNumber: 1, Text: "orphan"}},
		},
	}

	prompt := renderPrompt(&in, scope)

	assert.NotContains(t, prompt, "orphan")
}
