package cache

import (
	"context"

	"github.com/dealsense/backend/internal/storage/models"
)

// SummaryCache stores the per-session conversation summary. Correctness does
// not depend on the backing store: a stale or missing entry only costs one
// redundant summarization, because readers validate the stored message count
// against the session's current count before reuse.
type SummaryCache interface {
	Get(ctx context.Context, sessionID string) (*models.ConversationSummary, bool, error)
	Set(ctx context.Context, summary *models.ConversationSummary) error
	Invalidate(ctx context.Context, sessionID string) error
}
