package assembly

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dealsense/backend/internal/analysis"
	"github.com/dealsense/backend/internal/compress"
	"github.com/dealsense/backend/internal/memory"
	"github.com/dealsense/backend/internal/metrics"
	"github.com/dealsense/backend/internal/retrieval"
	"github.com/dealsense/backend/internal/stage"
	"github.com/dealsense/backend/internal/storage/models"
	"github.com/dealsense/backend/pkg/logger"
)

const systemPrompt = `You are an analyst assistant answering questions about financial and real-estate documents.

Answer strictly from the provided context. If the context does not contain the answer, say so; never invent figures.

Cite every factual claim with the token of its source passage, exactly as labeled, e.g. [D1:p3]. Do not cite documents or pages that are not in the context.`

type DocumentStore interface {
	ListDocuments(ctx context.Context, collectionID string) ([]models.Document, error)
}

// Thresholds for resolving query-named documents against the collection.
type MatchConfig struct {
	NameThreshold   float64
	EntityThreshold float64
}

// TurnContext is everything one answered turn needs: the rendered prompt,
// the document scope the citation tokens index into, and the quality record
// of how it was built.
type TurnContext struct {
	System        string
	Prompt        string
	Query         string
	Scope         []models.Document
	Candidates    []*retrieval.Candidate
	Summary       *models.ConversationSummary
	History       []models.Message
	Analysis      analysis.Analysis
	Understanding *analysis.Understanding
	Compression   compress.Result
	Degradations  []stage.Degradation
	Elapsed       time.Duration
}

// Assembler runs the context pipeline for one turn: understand, scope,
// retrieve, rescore, rerank, compress, remember, fit to budget, render.
type Assembler struct {
	docs          DocumentStore
	understanding *analysis.UnderstandingService
	retriever     *retrieval.HybridRetriever
	hybridBooster *retrieval.MetadataBooster
	reranker      *retrieval.Reranker
	compressor    *compress.Compressor
	memory        *memory.Manager
	enforcer      *Enforcer
	match         MatchConfig
}

func NewAssembler(
	docs DocumentStore,
	understanding *analysis.UnderstandingService,
	retriever *retrieval.HybridRetriever,
	hybridBooster *retrieval.MetadataBooster,
	reranker *retrieval.Reranker,
	compressor *compress.Compressor,
	memoryManager *memory.Manager,
	enforcer *Enforcer,
	match MatchConfig,
) *Assembler {
	if match.NameThreshold <= 0 {
		match.NameThreshold = 0.6
	}
	if match.EntityThreshold <= 0 {
		match.EntityThreshold = 0.5
	}
	return &Assembler{
		docs:          docs,
		understanding: understanding,
		retriever:     retriever,
		hybridBooster: hybridBooster,
		reranker:      reranker,
		compressor:    compressor,
		memory:        memoryManager,
		enforcer:      enforcer,
		match:         match,
	}
}

// Assemble builds the full prompt context for a query in a session. It only
// errors when a required stage fails: document listing, history, or both
// retrieval signals. Everything else degrades and is recorded.
func (a *Assembler) Assemble(ctx context.Context, session *models.ChatSession, query string) (*TurnContext, error) {
	start := time.Now()

	docs, err := a.docs.ListDocuments(ctx, session.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("collection %s has no documents", session.CollectionID)
	}

	filenames := make([]string, len(docs))
	for i, d := range docs {
		filenames[i] = d.Filename
	}

	// Query understanding is an LLM round trip; overlap it with history.
	type understood struct {
		result      *analysis.Understanding
		degradation *stage.Degradation
	}
	understandingCh := make(chan understood, 1)
	go func() {
		u, deg := a.understanding.Understand(ctx, query, filenames)
		understandingCh <- understood{result: u, degradation: deg}
	}()

	heuristic := analysis.Analyze(query)

	history, err := a.memory.LoadHistory(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	u := <-understandingCh

	turn := &TurnContext{
		Query:         query,
		Analysis:      heuristic,
		Understanding: u.result,
	}
	turn.Degradations = stage.Collect(turn.Degradations, u.degradation)

	scopeIDs := analysis.FilterDocumentsByQuery(query, docs, u.result.Entities, a.match.NameThreshold, a.match.EntityThreshold)
	turn.Scope = scopeDocuments(docs, scopeIDs)

	candidates, retrievalDegs, err := a.retriever.Retrieve(ctx, retrieval.Query{
		Raw:          query,
		Reformulated: u.result.ReformulatedQuery,
		Hypothetical: u.result.HypotheticalResponse,
	}, scopeIDs)
	turn.Degradations = append(turn.Degradations, retrievalDegs...)
	if err != nil {
		return nil, err
	}
	metrics.FusedCandidates.Observe(float64(len(candidates)))

	hints := retrieval.Hints{
		QueryType:         heuristic.QueryType,
		TableOverride:     u.result.TableBoost,
		NarrativeOverride: u.result.NarrativeBoost,
	}

	a.hybridBooster.Apply(candidates, hints, retrieval.HybridScoreField)
	retrieval.SortByScore(candidates, retrieval.HybridScoreField)

	candidates, rerankDeg := a.reranker.Rerank(ctx, rerankQuery(query, u.result), candidates, hints)
	turn.Degradations = stage.Collect(turn.Degradations, rerankDeg)

	compression, compressDeg := a.compressor.CompressChunks(candidates)
	turn.Compression = compression
	turn.Degradations = stage.Collect(turn.Degradations, compressDeg)

	summary, recent, summaryDeg := a.memory.MaybeSummarize(ctx, session.ID, history, query)
	turn.Degradations = stage.Collect(turn.Degradations, summaryDeg)

	inputs := PromptInputs{
		System:     systemPrompt,
		Query:      query,
		Summary:    summary,
		Messages:   recent,
		Candidates: candidates,
	}
	turn.Degradations = append(turn.Degradations, a.enforcer.Enforce(ctx, &inputs)...)

	turn.System = inputs.System
	turn.Summary = inputs.Summary
	turn.History = inputs.Messages
	turn.Candidates = inputs.Candidates
	turn.Prompt = renderPrompt(&inputs, turn.Scope)
	turn.Elapsed = time.Since(start)

	metrics.TurnDuration.Observe(turn.Elapsed.Seconds())
	for _, deg := range turn.Degradations {
		metrics.StageDegraded.WithLabelValues(deg.Stage).Inc()
	}

	logger.Info("Turn context assembled",
		zap.String("session_id", session.ID),
		zap.Int("scope_documents", len(turn.Scope)),
		zap.Int("candidates", len(turn.Candidates)),
		zap.Int("degradations", len(turn.Degradations)),
		zap.Duration("elapsed", turn.Elapsed),
	)

	return turn, nil
}

// scopeDocuments orders the turn's document scope. The order is the
// citation contract: D1 is the first document here.
func scopeDocuments(docs []models.Document, scopeIDs []string) []models.Document {
	if scopeIDs == nil {
		return docs
	}
	byID := make(map[string]models.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	scope := make([]models.Document, 0, len(scopeIDs))
	for _, id := range scopeIDs {
		if d, ok := byID[id]; ok {
			scope = append(scope, d)
		}
	}
	return scope
}

func rerankQuery(query string, u *analysis.Understanding) string {
	if u != nil && u.ReformulatedQuery != "" {
		return u.ReformulatedQuery
	}
	return query
}

// renderPrompt lays out the trimmed inputs as the user prompt. Every context
// passage carries the [D<k>:p<n>] label the model must cite with.
func renderPrompt(in *PromptInputs, scope []models.Document) string {
	docIndex := make(map[string]int, len(scope))
	for i, d := range scope {
		docIndex[d.ID] = i + 1
	}

	var b strings.Builder

	if in.Summary != nil && in.Summary.Summary != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(in.Summary.Summary)
		b.WriteString("\n\n")
	}

	if len(in.Messages) > 0 {
		b.WriteString("Recent messages:\n")
		for _, m := range in.Messages {
			b.WriteString(m.Role)
			b.WriteString(": ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Documents:\n")
	for i, d := range scope {
		fmt.Fprintf(&b, "D%d: %s\n", i+1, d.Filename)
	}
	b.WriteString("\n")

	b.WriteString("Context:\n")
	for _, c := range in.Candidates {
		k, ok := docIndex[c.Chunk.DocumentID]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "[D%d:p%d] %s\n\n", k, c.Chunk.PageNumber, c.ContextText())
	}

	b.WriteString("Question: ")
	b.WriteString(in.Query)

	return b.String()
}
