package ratelimit

import (
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Chat turns are weighted heavier than reads because each one fans out to
// the embedding model, both indexes and a completion call.
type Config struct {
	PerMinute    int
	ChatTurnCost int
	Logger       *zap.Logger
}

type bucket struct {
	mu       sync.Mutex
	tokens   float64
	lastSeen time.Time
}

type RateLimiter struct {
	mu           sync.Mutex
	buckets      map[string]*bucket
	perMinute    float64
	chatTurnCost float64
	logger       *zap.Logger
	done         chan struct{}
}

func New(cfg Config) *RateLimiter {
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 120
	}
	if cfg.ChatTurnCost <= 0 {
		cfg.ChatTurnCost = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	rl := &RateLimiter{
		buckets:      make(map[string]*bucket),
		perMinute:    float64(cfg.PerMinute),
		chatTurnCost: float64(cfg.ChatTurnCost),
		logger:       cfg.Logger,
		done:         make(chan struct{}),
	}

	go rl.evictIdle()

	return rl
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/metrics" || strings.HasSuffix(path, "/health") || strings.HasSuffix(path, "/ready") {
			return c.Next()
		}

		key := c.Get("X-User-ID")
		if key == "" {
			key = c.IP()
		}

		cost := 1.0
		if c.Method() == fiber.MethodPost && strings.HasSuffix(path, "/chat") {
			cost = rl.chatTurnCost
		}

		if !rl.allow(key, cost) {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("key", key),
				zap.String("ip", c.IP()),
				zap.String("path", path),
			)
			c.Set("Retry-After", "60")
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}

		return c.Next()
	}
}

func (rl *RateLimiter) allow(key string, cost float64) bool {
	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.perMinute, lastSeen: time.Now()}
		rl.buckets[key] = b
	}
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	refill := now.Sub(b.lastSeen).Minutes() * rl.perMinute
	b.tokens += refill
	if b.tokens > rl.perMinute {
		b.tokens = rl.perMinute
	}
	b.lastSeen = now

	if b.tokens < cost {
		return false
	}
	b.tokens -= cost
	return true
}

func (rl *RateLimiter) evictIdle() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-10 * time.Minute)
			rl.mu.Lock()
			for key, b := range rl.buckets {
				b.mu.Lock()
				idle := b.lastSeen.Before(cutoff)
				b.mu.Unlock()
				if idle {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *RateLimiter) Stop() {
	close(rl.done)
}
