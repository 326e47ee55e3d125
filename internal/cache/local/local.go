package local

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dealsense/backend/internal/storage/models"
	"github.com/dealsense/backend/pkg/logger"
)

// Cache is a process-local summary cache for deployments without Redis.
// Entries do not survive a restart; the count-equality check upstream makes
// that safe.
type Cache struct {
	entries *lru.Cache[string, models.ConversationSummary]
}

func New(size int) (*Cache, error) {
	entries, err := lru.New[string, models.ConversationSummary](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}

	logger.Info("Local summary cache initialized")
	return &Cache{entries: entries}, nil
}

func (c *Cache) Get(_ context.Context, sessionID string) (*models.ConversationSummary, bool, error) {
	summary, ok := c.entries.Get(sessionID)
	if !ok {
		return nil, false, nil
	}
	return &summary, true, nil
}

func (c *Cache) Set(_ context.Context, summary *models.ConversationSummary) error {
	c.entries.Add(summary.SessionID, *summary)
	return nil
}

func (c *Cache) Invalidate(_ context.Context, sessionID string) error {
	c.entries.Remove(sessionID)
	return nil
}
