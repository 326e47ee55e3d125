package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dealsense/backend/internal/storage/models"
	"github.com/dealsense/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis summary cache initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func summaryKey(sessionID string) string {
	return fmt.Sprintf("summary:%s", sessionID)
}

func (c *Client) Get(ctx context.Context, sessionID string) (*models.ConversationSummary, bool, error) {
	data, err := c.client.Get(ctx, summaryKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get summary: %w", err)
	}

	var summary models.ConversationSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal summary: %w", err)
	}

	logger.Debug("Summary cache hit", zap.String("session_id", sessionID), zap.Int("message_count", summary.MessageCount))
	return &summary, true, nil
}

func (c *Client) Set(ctx context.Context, summary *models.ConversationSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	err = c.client.Set(ctx, summaryKey(summary.SessionID), data, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set summary: %w", err)
	}

	logger.Debug("Summary cached",
		zap.String("session_id", summary.SessionID),
		zap.Int("message_count", summary.MessageCount),
	)
	return nil
}

func (c *Client) Invalidate(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, summaryKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate summary: %w", err)
	}
	return nil
}
