package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dealsense/backend/internal/stage"
	"github.com/dealsense/backend/pkg/logger"
)

// Understanding is the LLM-backed structured read of a query. Boost fields
// of zero mean "no override"; non-zero values are clamped to [0.5, 2.0].
type Understanding struct {
	QueryType            string   `json:"query_type"`
	Entities             []string `json:"entities"`
	ReformulatedQuery    string   `json:"reformulated_query"`
	HypotheticalResponse string   `json:"hypothetical_response"`
	ComparisonAspects    []string `json:"comparison_aspects"`
	DataFields           []string `json:"data_fields"`
	TableBoost           float64  `json:"table_boost"`
	NarrativeBoost       float64  `json:"narrative_boost"`
	Confidence           float64  `json:"confidence"`
}

type queryAnalyzer interface {
	AnalyzeQuery(ctx context.Context, query string, filenames []string, domain string) (string, error)
}

type UnderstandingService struct {
	llm     queryAnalyzer
	domain  string
	timeout time.Duration
}

func NewUnderstandingService(llm queryAnalyzer, domain string, timeout time.Duration) *UnderstandingService {
	if domain == "" {
		domain = "financial and real-estate"
	}
	if timeout == 0 {
		timeout = 8 * time.Second
	}
	return &UnderstandingService{llm: llm, domain: domain, timeout: timeout}
}

// Understand is best-effort enrichment: on any failure it returns the
// documented fallback record and a degradation, never an error.
func (s *UnderstandingService) Understand(ctx context.Context, query string, filenames []string) (*Understanding, *stage.Degradation) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	content, err := s.llm.AnalyzeQuery(ctx, query, filenames, s.domain)
	if err != nil {
		logger.Warn("Query understanding failed, using fallback", zap.Error(err))
		return fallbackUnderstanding(query), stage.Degraded(stage.QueryUnderstanding, err)
	}

	understanding, err := parseUnderstanding(content)
	if err != nil {
		logger.Warn("Query understanding returned malformed output", zap.Error(err))
		return fallbackUnderstanding(query), stage.Degraded(stage.QueryUnderstanding, err)
	}

	if understanding.ReformulatedQuery == "" {
		understanding.ReformulatedQuery = query
	}
	understanding.TableBoost = clampBoost(understanding.TableBoost)
	understanding.NarrativeBoost = clampBoost(understanding.NarrativeBoost)

	logger.Debug("Query understood",
		zap.String("query_type", understanding.QueryType),
		zap.Int("entities", len(understanding.Entities)),
		zap.Float64("confidence", understanding.Confidence),
	)

	return understanding, nil
}

func fallbackUnderstanding(query string) *Understanding {
	return &Understanding{
		QueryType:            "general_qa",
		Entities:             []string{},
		ReformulatedQuery:    query,
		HypotheticalResponse: fmt.Sprintf("The documents address the question: %s", query),
		Confidence:           0.3,
	}
}

// clampBoost keeps an explicit override inside [0.5, 2.0]; zero stays zero
// to mean "no override".
func clampBoost(v float64) float64 {
	if v == 0 {
		return 0
	}
	if v < 0.5 {
		return 0.5
	}
	if v > 2.0 {
		return 2.0
	}
	return v
}

func parseUnderstanding(content string) (*Understanding, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model output")
	}

	var understanding Understanding
	if err := json.Unmarshal([]byte(content[start:end+1]), &understanding); err != nil {
		return nil, fmt.Errorf("failed to parse understanding: %w", err)
	}

	return &understanding, nil
}
