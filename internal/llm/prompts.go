package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dealsense/backend/pkg/logger"
)

// AnalyzeQuery asks the model for a structured reading of the user query:
// intent, entities, a reformulation, a hypothetical answer for semantic
// search, comparison aspects, and boost overrides. Returns the raw JSON
// content; the analysis package owns parsing and validation.
func (c *Client) AnalyzeQuery(ctx context.Context, query string, filenames []string, domain string) (string, error) {
	systemPrompt := fmt.Sprintf(`You are a query analyst for a %s document Q&A system.
Analyze the user question and return ONLY a JSON object:
{
  "query_type": "specific_data" | "comparison" | "narrative" | "general_qa",
  "entities": ["company or asset names mentioned"],
  "reformulated_query": "self-contained restatement of the question",
  "hypothetical_response": "one plausible paragraph answering the question, used for semantic search",
  "comparison_aspects": ["aspects to compare, if any"],
  "data_fields": ["specific metrics or fields requested"],
  "table_boost": 1.0,
  "narrative_boost": 1.0,
  "confidence": 0.9
}

table_boost and narrative_boost must stay between 0.5 and 2.0.
Return JSON only, no prose.`, domain)

	userPrompt := query
	if len(filenames) > 0 {
		userPrompt = fmt.Sprintf("Available documents: %s\n\nQuestion: %s", strings.Join(filenames, ", "), query)
	}

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.1,
		MaxTokens:    500,
	})

	if err != nil {
		return "", fmt.Errorf("failed to analyze query: %w", err)
	}

	return resp.Content, nil
}

// SummarizeConversation condenses older chat turns. The prompt pins down
// what must survive the compression and forbids invention.
func (c *Client) SummarizeConversation(ctx context.Context, transcript string) (string, error) {
	systemPrompt := `You summarize financial document Q&A conversations.
Produce a compact summary of the conversation below.

Requirements:
- Preserve every entity, metric, figure, date, and decision mentioned
- Preserve which documents were discussed
- Never invent facts that are not in the conversation
- Plain prose, no headers`

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   transcript,
		Temperature:  0.2,
		MaxTokens:    800,
	})

	if err != nil {
		return "", fmt.Errorf("failed to summarize conversation: %w", err)
	}

	logger.Debug("Conversation summarized", zap.Int("summary_length", len(resp.Content)))

	return resp.Content, nil
}

// CompressSummary rewrites an existing summary down to maxChars, keeping
// only key facts. Used when budget enforcement demands further shrinkage.
func (c *Client) CompressSummary(ctx context.Context, summary string, maxChars int) (string, error) {
	systemPrompt := fmt.Sprintf(`Rewrite the following conversation summary in at most %d characters.
Keep only key facts: entities, figures, dates, decisions. Do not add anything new.`, maxChars)

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   summary,
		Temperature:  0.1,
		MaxTokens:    maxChars / 3,
	})

	if err != nil {
		return "", fmt.Errorf("failed to compress summary: %w", err)
	}

	return resp.Content, nil
}
