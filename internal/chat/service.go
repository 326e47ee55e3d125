package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealsense/backend/internal/assembly"
	"github.com/dealsense/backend/internal/cache"
	"github.com/dealsense/backend/internal/llm"
	"github.com/dealsense/backend/internal/stage"
	"github.com/dealsense/backend/internal/storage/models"
	"github.com/dealsense/backend/pkg/logger"
)

type Store interface {
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	AppendMessage(ctx context.Context, msg *models.Message) error
}

// Service runs one chat turn end to end: assemble context, generate the
// answer, resolve citations, persist both messages.
type Service struct {
	store     Store
	assembler *assembly.Assembler
	llm       *llm.Client
	citations *assembly.CitationResolver
	summaries cache.SummaryCache
}

func NewService(store Store, assembler *assembly.Assembler, llmClient *llm.Client, citations *assembly.CitationResolver, summaries cache.SummaryCache) *Service {
	return &Service{
		store:     store,
		assembler: assembler,
		llm:       llmClient,
		citations: citations,
		summaries: summaries,
	}
}

type TurnRequest struct {
	SessionID string
	Query     string
}

type TurnResponse struct {
	MessageID    string              `json:"message_id"`
	SessionID    string              `json:"session_id"`
	Answer       string              `json:"answer"`
	Citations    []assembly.Citation `json:"citations"`
	Degradations []stage.Degradation `json:"degradations,omitempty"`
	LatencyMS    int64               `json:"latency_ms"`
}

// ProcessTurn answers a query in one shot.
func (s *Service) ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	start := time.Now()

	session, turn, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	completion, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: turn.System,
		UserPrompt:   turn.Prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	return s.finish(ctx, session, turn, req.Query, completion.Content, start)
}

// StreamTurn answers a query fragment by fragment through fn, then returns
// the completed turn with citations. Citations resolve only against the
// full answer, so they arrive after the stream ends.
func (s *Service) StreamTurn(ctx context.Context, req TurnRequest, fn func(fragment string) error) (*TurnResponse, error) {
	start := time.Now()

	session, turn, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	var answer string
	err = s.llm.Stream(ctx, llm.CompletionRequest{
		SystemPrompt: turn.System,
		UserPrompt:   turn.Prompt,
	}, func(fragment string) error {
		answer += fragment
		return fn(fragment)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to stream answer: %w", err)
	}

	return s.finish(ctx, session, turn, req.Query, answer, start)
}

func (s *Service) prepare(ctx context.Context, req TurnRequest) (*models.ChatSession, *assembly.TurnContext, error) {
	session, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load session: %w", err)
	}

	turn, err := s.assembler.Assemble(ctx, session, req.Query)
	if err != nil {
		return nil, nil, err
	}

	return session, turn, nil
}

func (s *Service) finish(ctx context.Context, session *models.ChatSession, turn *assembly.TurnContext, query, answer string, start time.Time) (*TurnResponse, error) {
	citations := s.citations.ResolveAll(ctx, answer, turn.Scope)

	// The query is persisted only once the turn produced an answer, so
	// history never contains a user turn with no reply.
	userMsg := &models.Message{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   query,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	assistantMsg := &models.Message{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		Role:      models.RoleAssistant,
		Content:   answer,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to persist assistant message: %w", err)
	}

	// The appended pair makes any cached summary's message count stale. The
	// count-equality check would reject it anyway; dropping it eagerly saves
	// the dead read on the next turn.
	if err := s.summaries.Invalidate(ctx, session.ID); err != nil {
		logger.Warn("Failed to invalidate summary cache", zap.Error(err))
	}

	latency := time.Since(start)
	logger.Info("Chat turn completed",
		zap.String("session_id", session.ID),
		zap.Int("citations", len(citations)),
		zap.Int("degradations", len(turn.Degradations)),
		zap.Duration("latency", latency),
	)

	return &TurnResponse{
		MessageID:    assistantMsg.ID,
		SessionID:    session.ID,
		Answer:       answer,
		Citations:    citations,
		Degradations: turn.Degradations,
		LatencyMS:    latency.Milliseconds(),
	}, nil
}
