package analysis

import (
	"strings"
	"unicode"
)

type QueryType string

const (
	DataQuery      QueryType = "data_query"
	NarrativeQuery QueryType = "narrative_query"
	GenericQuery   QueryType = "generic_query"
)

// Analysis is the heuristic read of a query. One structured type everywhere;
// boundary code never passes loose maps around.
type Analysis struct {
	QueryType       QueryType
	TableBoost      float64
	NarrativeBoost  float64
	MatchedKeywords []string
}

var dataKeywords = []string{
	"revenue", "ebitda", "noi", "cap rate", "occupancy", "rent", "price",
	"sqft", "square feet", "square footage", "margin", "yield", "irr",
	"cash flow", "expense", "cost", "total", "how much", "how many",
	"percentage", "rate", "amount", "balance", "value", "per unit",
}

var narrativeKeywords = []string{
	"describe", "explain", "summarize", "summary", "overview", "why",
	"strategy", "background", "history", "risks", "outlook", "tell me about",
	"market", "tenant mix", "highlights", "story",
}

var questionWords = []string{"what", "which", "when", "where", "who", "how"}

// Analyze classifies a query as data-seeking, narrative, or generic, and
// derives boost hints for the metadata booster. Pure and side effect free;
// safe for concurrent use.
func Analyze(query string) Analysis {
	lower := strings.ToLower(query)

	var matched []string
	dataScore := 0
	for _, kw := range dataKeywords {
		if strings.Contains(lower, kw) {
			dataScore++
			matched = append(matched, kw)
		}
	}

	narrativeScore := 0
	for _, kw := range narrativeKeywords {
		if strings.Contains(lower, kw) {
			narrativeScore++
			matched = append(matched, kw)
		}
	}

	// Digits in the query usually mean the user wants figures back.
	if strings.IndexFunc(lower, unicode.IsDigit) >= 0 {
		dataScore++
	}

	for _, qw := range questionWords {
		if strings.HasPrefix(lower, qw+" ") {
			if qw == "how" || qw == "which" {
				dataScore++
			}
			break
		}
	}

	switch {
	case dataScore > narrativeScore && dataScore > 0:
		return Analysis{
			QueryType:       DataQuery,
			TableBoost:      1.5,
			NarrativeBoost:  0.85,
			MatchedKeywords: matched,
		}
	case narrativeScore > dataScore && narrativeScore > 0:
		return Analysis{
			QueryType:       NarrativeQuery,
			TableBoost:      0.9,
			NarrativeBoost:  1.3,
			MatchedKeywords: matched,
		}
	default:
		return Analysis{
			QueryType:       GenericQuery,
			TableBoost:      1.0,
			NarrativeBoost:  1.0,
			MatchedKeywords: matched,
		}
	}
}
