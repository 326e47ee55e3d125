package stage

// Stage names for degradation records.
const (
	QueryUnderstanding = "query_understanding"
	DocumentMatching   = "document_matching"
	KeywordSearch      = "keyword_search"
	SemanticSearch     = "semantic_search"
	Rerank             = "rerank"
	Compression        = "compression"
	Summarization      = "summarization"
	SummaryCompression = "summary_compression"
	BudgetEnforcement  = "budget_enforcement"
)

// Degradation records that an optional pipeline stage fell back to its
// simplest correct behavior instead of failing the turn. A nil *Degradation
// means the stage ran at full quality.
type Degradation struct {
	Stage string `json:"stage"`
	Cause string `json:"cause"`
}

func Degraded(stageName string, err error) *Degradation {
	if err == nil {
		return &Degradation{Stage: stageName, Cause: "unknown"}
	}
	return &Degradation{Stage: stageName, Cause: err.Error()}
}

// Collect appends non-nil degradations to a list; handy in the assembler.
func Collect(list []Degradation, items ...*Degradation) []Degradation {
	for _, item := range items {
		if item != nil {
			list = append(list, *item)
		}
	}
	return list
}
