package analysis

import (
	"regexp"
	"strings"

	"github.com/xrash/smetrics"
	"go.uber.org/zap"

	"github.com/dealsense/backend/internal/storage/models"
	"github.com/dealsense/backend/pkg/logger"
)

// Stop words stripped from extracted document mentions. Includes the metric
// vocabulary so "Beta LLC revenue" reduces to "beta llc".
var matcherStopwords = map[string]struct{}{
	"compare": {}, "comparing": {}, "comparison": {}, "vs": {}, "versus": {},
	"between": {}, "and": {}, "or": {}, "the": {}, "a": {}, "an": {}, "of": {},
	"for": {}, "in": {}, "on": {}, "to": {}, "with": {}, "what": {}, "which": {},
	"how": {}, "does": {}, "do": {}, "is": {}, "are": {}, "show": {}, "me": {},
	"revenue": {}, "revenues": {}, "ebitda": {}, "income": {}, "noi": {},
	"performance": {}, "financials": {}, "metrics": {}, "numbers": {},
	"figures": {}, "results": {}, "difference": {}, "differences": {},
	"document": {}, "documents": {}, "report": {}, "reports": {},
}

var (
	betweenPattern = regexp.MustCompile(`(?i)between\s+(.+?)\s+and\s+(.+?)(?:[?.!]|$)`)
	versusPattern  = regexp.MustCompile(`(?i)\s+(?:vs\.?|versus)\s+`)
	andPattern     = regexp.MustCompile(`(?i)\s+and\s+`)
)

// ExtractDocumentNames pulls free-text document mentions out of comparison
// phrasing ("X and Y", "X vs Y", "between X and Y", "X, Y and Z"). Returns
// lowercase cleaned names; empty when the query names nothing.
func ExtractDocumentNames(query string) []string {
	var parts []string

	if m := betweenPattern.FindStringSubmatch(query); m != nil {
		parts = append(parts, m[1])
		parts = append(parts, splitList(m[2])...)
	} else if versusPattern.MatchString(query) {
		parts = versusPattern.Split(query, -1)
	} else if andPattern.MatchString(query) {
		for _, clause := range strings.Split(query, ",") {
			parts = append(parts, andPattern.Split(clause, -1)...)
		}
	}

	seen := make(map[string]struct{})
	var names []string
	for _, part := range parts {
		name := cleanName(part)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	return names
}

func splitList(s string) []string {
	var out []string
	for _, clause := range strings.Split(s, ",") {
		out = append(out, andPattern.Split(clause, -1)...)
	}
	return out
}

func cleanName(part string) string {
	fields := strings.Fields(strings.ToLower(part))
	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()")
		if f == "" {
			continue
		}
		if _, stop := matcherStopwords[f]; stop {
			continue
		}
		kept = append(kept, f)
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, " ")
}

// FuzzyMatchDocument resolves a free-text name against document filenames.
// Similarity is measured against both the filename and the filename without
// its extension; containment in either direction lifts the score to at
// least 0.8. The best candidate wins only at or above threshold.
func FuzzyMatchDocument(name string, candidates []models.Document, threshold float64) *models.Document {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil
	}

	var best *models.Document
	bestScore := 0.0

	for i := range candidates {
		score := matchScore(name, candidates[i].Filename)
		if score > bestScore {
			bestScore = score
			best = &candidates[i]
		}
	}

	if best == nil || bestScore < threshold {
		return nil
	}

	logger.Debug("Document matched",
		zap.String("name", name),
		zap.String("filename", best.Filename),
		zap.Float64("score", bestScore),
	)

	return best
}

func matchScore(name, filename string) float64 {
	full := normalizeFilename(filename)
	stem := normalizeFilename(trimExtension(filename))

	score := smetrics.JaroWinkler(name, full, 0.7, 4)
	if s := smetrics.JaroWinkler(name, stem, 0.7, 4); s > score {
		score = s
	}

	if strings.Contains(full, name) || strings.Contains(name, stem) ||
		strings.Contains(stem, name) || strings.Contains(name, full) {
		if score < 0.8 {
			score = 0.8
		}
	}

	return score
}

func normalizeFilename(filename string) string {
	lower := strings.ToLower(filename)
	lower = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(lower)
	return strings.Join(strings.Fields(lower), " ")
}

func trimExtension(filename string) string {
	if idx := strings.LastIndex(filename, "."); idx > 0 {
		return filename[:idx]
	}
	return filename
}

// FilterDocumentsByQuery narrows the document scope to documents the query
// names. A nil result means "do not narrow": either the query names no
// documents, or nothing it names could be matched (falling back to the full
// set beats returning an empty one).
func FilterDocumentsByQuery(query string, docs []models.Document, entities []string, nameThreshold, entityThreshold float64) []string {
	names := ExtractDocumentNames(query)
	threshold := nameThreshold

	if len(names) == 0 && len(entities) > 0 {
		for _, e := range entities {
			if cleaned := cleanName(e); cleaned != "" {
				names = append(names, cleaned)
			}
		}
		threshold = entityThreshold
	}

	if len(names) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, name := range names {
		doc := FuzzyMatchDocument(name, docs, threshold)
		if doc == nil {
			logger.Debug("No document matched name", zap.String("name", name))
			continue
		}
		if _, dup := seen[doc.ID]; dup {
			continue
		}
		seen[doc.ID] = struct{}{}
		ids = append(ids, doc.ID)
	}

	if len(ids) == 0 {
		logger.Info("Query named documents but none matched, keeping full scope",
			zap.Strings("names", names),
		)
		return nil
	}

	return ids
}
