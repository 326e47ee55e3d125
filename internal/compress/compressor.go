package compress

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/dealsense/backend/internal/retrieval"
	"github.com/dealsense/backend/internal/stage"
	"github.com/dealsense/backend/internal/storage/models"
	"github.com/dealsense/backend/pkg/logger"
)

// Compression methods recorded per run.
const (
	MethodExtractive = "extractive"
	MethodNone       = "none"
	MethodFailed     = "failed"
)

// Result summarizes one compression pass over a candidate set.
type Result struct {
	Method           string  `json:"method"`
	OriginalTokens   int     `json:"original_tokens"`
	CompressedTokens int     `json:"compressed_tokens"`
	Ratio            float64 `json:"ratio"`
}

// Compressor shortens chunk text by extractive sentence selection. Tabular
// chunks pass through untouched; dropping rows from a table destroys it.
type Compressor struct {
	targetRatio   float64
	charsPerToken int
}

func NewCompressor(targetRatio float64, charsPerToken int) *Compressor {
	if targetRatio <= 0 || targetRatio > 1 {
		targetRatio = 0.6
	}
	if charsPerToken <= 0 {
		charsPerToken = 4
	}
	return &Compressor{targetRatio: targetRatio, charsPerToken: charsPerToken}
}

// EstimateTokens is the character heuristic used throughout the pipeline.
func (c *Compressor) EstimateTokens(text string) int {
	return len(text) / c.charsPerToken
}

// CompressChunks rewrites CompressedText on each non-tabular candidate,
// targeting the configured ratio of its original tokens. Compression never
// fails a turn: a chunk that cannot be segmented keeps its original text and
// the run is reported degraded.
func (c *Compressor) CompressChunks(candidates []*retrieval.Candidate) (Result, *stage.Degradation) {
	var originalTokens, compressedTokens, failures int

	for _, cand := range candidates {
		chunk := &cand.Chunk
		tokens := c.EstimateTokens(chunk.Text)
		originalTokens += tokens

		if chunk.Tabular || (chunk.SectionType != "" && chunk.SectionType != models.SectionNarrative) {
			compressedTokens += tokens
			continue
		}

		target := int(float64(tokens) * c.targetRatio)
		compressed, err := c.extractive(chunk.Text, target)
		if err != nil {
			logger.Warn("Chunk compression failed",
				zap.String("chunk_id", chunk.ID),
				zap.Error(err),
			)
			failures++
			compressedTokens += tokens
			continue
		}

		if len(compressed) >= len(chunk.Text) {
			compressedTokens += tokens
			continue
		}

		if chunk.SectionHeading != "" && !strings.Contains(compressed, chunk.SectionHeading) {
			compressed = chunk.SectionHeading + "\n" + compressed
		}

		cand.CompressedText = compressed
		compressedTokens += c.EstimateTokens(compressed)
	}

	result := Result{
		Method:           MethodExtractive,
		OriginalTokens:   originalTokens,
		CompressedTokens: compressedTokens,
	}
	if originalTokens > 0 {
		result.Ratio = float64(compressedTokens) / float64(originalTokens)
	}

	if failures == len(candidates) && failures > 0 {
		result.Method = MethodFailed
	} else if compressedTokens == originalTokens {
		result.Method = MethodNone
	}

	if failures > 0 {
		return result, stage.Degraded(stage.Compression, fmt.Errorf("%d of %d chunks failed to compress", failures, len(candidates)))
	}
	return result, nil
}

// CompressTextToTokenLimit shortens text to at most targetTokens. It tries
// extractive selection at a slightly undershooting rate, then falls back to
// a hard character truncation. Never errors.
func (c *Compressor) CompressTextToTokenLimit(text string, targetTokens int) string {
	tokens := c.EstimateTokens(text)
	if tokens <= targetTokens || targetTokens <= 0 {
		return text
	}

	// Undershoot by 10% so sentence granularity does not tip the result
	// back over the limit.
	budget := int(float64(targetTokens) * 0.9)
	if budget < 1 {
		budget = 1
	}

	compressed, err := c.extractive(text, budget)
	if err == nil && c.EstimateTokens(compressed) <= targetTokens {
		return compressed
	}

	limit := targetTokens * c.charsPerToken
	if limit >= len(text) {
		return text
	}
	return strings.TrimRightFunc(text[:limit], unicode.IsSpace)
}

// extractive keeps whole sentences, in original order, until the token
// budget is exhausted. Sentences carrying figures win ties so data survives
// compression first.
func (c *Compressor) extractive(text string, targetTokens int) (string, error) {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return "", fmt.Errorf("failed to segment text: %w", err)
	}

	sentences := doc.Sentences()
	if len(sentences) <= 1 {
		return text, nil
	}

	type scored struct {
		index int
		text  string
		score float64
	}

	ranked := make([]scored, len(sentences))
	for i, s := range sentences {
		score := 1.0 / float64(i+1)
		if i == 0 {
			score += 2.0
		}
		if strings.IndexFunc(s.Text, unicode.IsDigit) >= 0 {
			score += 1.5
		}
		ranked[i] = scored{index: i, text: s.Text, score: score}
	}

	// Select best-first, emit in document order.
	order := make([]int, len(ranked))
	for i := range order {
		order[i] = i
	}
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			if ranked[order[j]].score > ranked[order[i]].score {
				order[i], order[j] = order[j], order[i]
			}
		}
	}

	kept := make(map[int]bool)
	used := 0
	for _, idx := range order {
		cost := c.EstimateTokens(ranked[idx].text)
		if used+cost > targetTokens && len(kept) > 0 {
			continue
		}
		kept[idx] = true
		used += cost
		if used >= targetTokens {
			break
		}
	}

	var b strings.Builder
	for i, s := range ranked {
		if !kept[i] {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strings.TrimSpace(s.text))
	}

	return b.String(), nil
}
