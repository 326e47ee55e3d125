package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dealsense/backend/internal/cache"
	"github.com/dealsense/backend/internal/metrics"
	"github.com/dealsense/backend/internal/stage"
	"github.com/dealsense/backend/internal/storage/models"
	"github.com/dealsense/backend/pkg/logger"
)

type MessageStore interface {
	ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error)
	CountMessages(ctx context.Context, sessionID string) (int, error)
}

type Summarizer interface {
	SummarizeConversation(ctx context.Context, transcript string) (string, error)
	CompressSummary(ctx context.Context, summary string, maxChars int) (string, error)
}

type Config struct {
	HistoryLimit         int
	MinMessages          int
	TriggerRatio         float64
	VerbatimMessageCount int
	CharsPerToken        int
	MaxInputTokens       int
	SummaryCharCeiling   int
}

// Manager loads conversation history and rolls older turns into a cached
// summary once the history outgrows its share of the prompt budget.
type Manager struct {
	store      MessageStore
	cache      cache.SummaryCache
	summarizer Summarizer
	cfg        Config
}

func NewManager(store MessageStore, summaryCache cache.SummaryCache, summarizer Summarizer, cfg Config) *Manager {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 30
	}
	if cfg.MinMessages <= 0 {
		cfg.MinMessages = 6
	}
	if cfg.TriggerRatio <= 0 {
		cfg.TriggerRatio = 0.5
	}
	if cfg.VerbatimMessageCount <= 0 {
		cfg.VerbatimMessageCount = 4
	}
	if cfg.CharsPerToken <= 0 {
		cfg.CharsPerToken = 4
	}
	if cfg.MaxInputTokens <= 0 {
		cfg.MaxInputTokens = 8192
	}
	if cfg.SummaryCharCeiling <= 0 {
		cfg.SummaryCharCeiling = 3000
	}
	return &Manager{store: store, cache: summaryCache, summarizer: summarizer, cfg: cfg}
}

// LoadHistory returns the most recent messages in chronological order.
func (m *Manager) LoadHistory(ctx context.Context, sessionID string) ([]models.Message, error) {
	messages, err := m.store.ListRecentMessages(ctx, sessionID, m.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return messages, nil
}

// MaybeSummarize decides whether the history needs rolling up. The token
// pressure is measured over the history plus the pending user message, since
// both will occupy the same prompt. When it triggers, older messages collapse
// into a summary and only the verbatim tail remains as messages. A history
// below the trigger comes back untouched with a nil summary. Summarization
// never fails the turn.
func (m *Manager) MaybeSummarize(ctx context.Context, sessionID string, history []models.Message, userMessage string) (*models.ConversationSummary, []models.Message, *stage.Degradation) {
	if len(history) < m.cfg.MinMessages {
		return nil, history, nil
	}

	usedTokens := len(userMessage) / m.cfg.CharsPerToken
	for _, msg := range history {
		usedTokens += len(msg.Content) / m.cfg.CharsPerToken
	}
	if float64(usedTokens) < m.cfg.TriggerRatio*float64(m.cfg.MaxInputTokens) {
		return nil, history, nil
	}

	tail := m.cfg.VerbatimMessageCount
	if tail >= len(history) {
		return nil, history, nil
	}
	older, recent := history[:len(history)-tail], history[len(history)-tail:]

	count, err := m.store.CountMessages(ctx, sessionID)
	if err != nil {
		logger.Warn("Failed to count messages, skipping summary cache", zap.Error(err))
		count = -1
	}

	// A cached summary is valid only while the session has not grown since
	// it was written. Count equality is the whole invalidation story; no
	// locking, a stale entry is simply ignored.
	if count >= 0 {
		if cached, ok, cacheErr := m.cache.Get(ctx, sessionID); cacheErr == nil && ok && cached.MessageCount == count {
			logger.Debug("Summary cache hit", zap.String("session_id", sessionID))
			metrics.SummaryCacheHits.Inc()
			return cached, recent, nil
		}
	}
	metrics.SummaryCacheMisses.Inc()

	summary, degradation := m.summarize(ctx, older)
	record := &models.ConversationSummary{
		SessionID:           sessionID,
		MessageCount:        count,
		Summary:             summary,
		LastSummarizedIndex: older[len(older)-1].MessageIndex,
		CreatedAt:           time.Now().UTC(),
	}

	if count >= 0 && degradation == nil {
		if err := m.cache.Set(ctx, record); err != nil {
			logger.Warn("Failed to cache summary", zap.Error(err))
		}
	}

	return record, recent, degradation
}

func (m *Manager) summarize(ctx context.Context, older []models.Message) (string, *stage.Degradation) {
	transcript := buildTranscript(older)

	summary, err := m.summarizer.SummarizeConversation(ctx, transcript)
	if err != nil {
		logger.Warn("Summarization failed, using heuristic fallback", zap.Error(err))
		return heuristicSummary(older), stage.Degraded(stage.Summarization, err)
	}
	return strings.TrimSpace(summary), nil
}

// CompressSummary shrinks an oversized summary toward the character
// ceiling. Failure keeps the original text.
func (m *Manager) CompressSummary(ctx context.Context, summary *models.ConversationSummary) *stage.Degradation {
	if summary == nil || len(summary.Summary) <= m.cfg.SummaryCharCeiling {
		return nil
	}

	compressed, err := m.summarizer.CompressSummary(ctx, summary.Summary, m.cfg.SummaryCharCeiling)
	if err != nil {
		logger.Warn("Summary compression failed", zap.Error(err))
		return stage.Degraded(stage.SummaryCompression, err)
	}

	summary.Summary = strings.TrimSpace(compressed)
	summary.Compressed = true
	return nil
}

func buildTranscript(messages []models.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// heuristicSummary is the no-LLM fallback: the first sentence of each
// assistant turn, capped at 1000 characters.
func heuristicSummary(messages []models.Message) string {
	var parts []string
	total := 0
	for _, msg := range messages {
		if msg.Role != models.RoleAssistant {
			continue
		}
		sentence := firstSentence(msg.Content)
		if sentence == "" {
			continue
		}
		if total+len(sentence) > 1000 {
			break
		}
		parts = append(parts, sentence)
		total += len(sentence)
	}
	return strings.Join(parts, " ")
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	for i, r := range text {
		if r == '.' || r == '?' || r == '!' {
			return text[:i+1]
		}
	}
	if len(text) > 200 {
		return text[:200]
	}
	return text
}
