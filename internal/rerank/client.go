package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dealsense/backend/pkg/circuitbreaker"
	"github.com/dealsense/backend/pkg/logger"
	"github.com/dealsense/backend/pkg/retry"
)

// Client talks to the external cross-encoder scoring service. The service
// scores (query, passage) pairs jointly; everything here is transport.
type Client struct {
	endpoint    string
	batchSize   int
	httpClient  *http.Client
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type scoreRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

func NewClient(endpoint string, timeoutSec, batchSize int) *Client {
	if batchSize <= 0 {
		batchSize = 32
	}

	cb := circuitbreaker.NewCircuitBreaker("cross-encoder", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          20 * time.Second,
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Logger:           logger.GetLogger(),
	})

	logger.Info("Cross-encoder client initialized", zap.String("endpoint", endpoint))

	return &Client{
		endpoint:  endpoint,
		batchSize: batchSize,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSec) * time.Second,
		},
		cb: cb,
		retryConfig: retry.Config{
			MaxAttempts:    2,
			InitialDelay:   200 * time.Millisecond,
			MaxDelay:       2 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
			Logger:         logger.GetLogger(),
		},
	}
}

// Predict scores every text against the query, batched. The returned slice
// is parallel to texts.
func (c *Client) Predict(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	scores := make([]float64, 0, len(texts))

	for i := 0; i < len(texts); i += c.batchSize {
		end := i + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batchScores, err := c.predictBatch(ctx, query, texts[i:end])
		if err != nil {
			return nil, err
		}

		scores = append(scores, batchScores...)
	}

	return scores, nil
}

func (c *Client) predictBatch(ctx context.Context, query string, texts []string) ([]float64, error) {
	payload, err := json.Marshal(scoreRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score request: %w", err)
	}

	var scores []float64

	err = c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
			if err != nil {
				return retry.Permanent(fmt.Errorf("failed to build score request: %w", err))
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("failed to call cross-encoder: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return fmt.Errorf("cross-encoder returned %d: %s", resp.StatusCode, string(body))
			}

			var parsed scoreResponse
			if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
				return fmt.Errorf("failed to decode scores: %w", err)
			}

			if len(parsed.Scores) != len(texts) {
				return retry.Permanent(fmt.Errorf("cross-encoder returned %d scores for %d texts", len(parsed.Scores), len(texts)))
			}

			scores = parsed.Scores
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	logger.Debug("Cross-encoder batch scored", zap.Int("pairs", len(texts)))
	return scores, nil
}
