package assembly

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/dealsense/backend/internal/retrieval"
	"github.com/dealsense/backend/internal/stage"
	"github.com/dealsense/backend/internal/storage/models"
	"github.com/dealsense/backend/pkg/logger"
)

type Budget struct {
	MaxInputChars      int
	AnswerReserveChars int
	ChunkFloor         int
	MessageFloor       int
	SummaryCharCeiling int
}

// PromptInputs are the pieces that will become the prompt, measured and
// trimmed as a unit before rendering.
type PromptInputs struct {
	System     string
	Query      string
	Summary    *models.ConversationSummary
	Messages   []models.Message
	Candidates []*retrieval.Candidate
}

type summaryCompressor interface {
	CompressSummary(ctx context.Context, summary *models.ConversationSummary) *stage.Degradation
}

// Enforcer trims prompt inputs until they fit the input budget, lowest
// value first: excess chunks, then summary bulk, then old messages. Floors
// guarantee the prompt keeps enough evidence and context to stay answerable.
type Enforcer struct {
	budget     Budget
	compressor summaryCompressor
}

func NewEnforcer(budget Budget, compressor summaryCompressor) *Enforcer {
	if budget.ChunkFloor <= 0 {
		budget.ChunkFloor = 2
	}
	if budget.MessageFloor <= 0 {
		budget.MessageFloor = 2
	}
	if budget.SummaryCharCeiling <= 0 {
		budget.SummaryCharCeiling = 3000
	}
	return &Enforcer{budget: budget, compressor: compressor}
}

// Enforce trims in place and reports what it degraded. Enforcement must
// never sink a turn: any panic restores the untrimmed inputs and the turn
// proceeds oversized.
func (e *Enforcer) Enforce(ctx context.Context, in *PromptInputs) (degradations []stage.Degradation) {
	saved := *in
	var savedSummary models.ConversationSummary
	if in.Summary != nil {
		savedSummary = *in.Summary
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Budget enforcement panicked, keeping untrimmed inputs",
				zap.Any("panic", r),
			)
			*in = saved
			if in.Summary != nil {
				*in.Summary = savedSummary
			}
			degradations = stage.Collect(nil, stage.Degraded(stage.BudgetEnforcement, fmt.Errorf("panic: %v", r)))
		}
	}()

	limit := e.budget.MaxInputChars - e.budget.AnswerReserveChars
	if limit <= 0 || e.measure(in) <= limit {
		return nil
	}

	// Step 1: shed the weakest chunks down to the floor.
	for e.measure(in) > limit && len(in.Candidates) > e.budget.ChunkFloor {
		in.Candidates = in.Candidates[:len(in.Candidates)-1]
	}

	// Step 2: compress the summary if one exists and still uncompressed.
	if e.measure(in) > limit && in.Summary != nil && !in.Summary.Compressed && e.compressor != nil {
		if deg := e.compressor.CompressSummary(ctx, in.Summary); deg != nil {
			degradations = stage.Collect(degradations, deg)
		}
	}

	// Step 3: hard-truncate the summary.
	if e.measure(in) > limit && in.Summary != nil && len(in.Summary.Summary) > e.budget.SummaryCharCeiling {
		in.Summary.Summary = truncateAt(in.Summary.Summary, e.budget.SummaryCharCeiling)
	}

	// Step 4: shed the oldest messages down to the floor.
	for e.measure(in) > limit && len(in.Messages) > e.budget.MessageFloor {
		in.Messages = in.Messages[1:]
	}

	if over := e.measure(in) - limit; over > 0 {
		logger.Warn("Prompt still over budget after trimming", zap.Int("over_chars", over))
	}

	return degradations
}

func (e *Enforcer) measure(in *PromptInputs) int {
	n := len(in.System) + len(in.Query)
	if in.Summary != nil {
		n += len(in.Summary.Summary)
	}
	for _, m := range in.Messages {
		n += len(m.Content)
	}
	for _, c := range in.Candidates {
		n += len(c.ContextText())
	}
	return n
}

func truncateAt(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return strings.TrimRightFunc(text[:limit], unicode.IsSpace)
}
