package analysis_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealsense/backend/internal/analysis"
)

func TestAnalyzeDataQuery(t *testing.T) {
	a := analysis.Analyze("What is the EBITDA margin for 2023?")

	assert.Equal(t, analysis.DataQuery, a.QueryType)
	assert.Equal(t, 1.5, a.TableBoost)
	assert.Equal(t, 0.85, a.NarrativeBoost)
	assert.NotEmpty(t, a.MatchedKeywords)
}

func TestAnalyzeNarrativeQuery(t *testing.T) {
	a := analysis.Analyze("Describe the tenant mix and market outlook")

	assert.Equal(t, analysis.NarrativeQuery, a.QueryType)
	assert.Equal(t, 0.9, a.TableBoost)
	assert.Equal(t, 1.3, a.NarrativeBoost)
}

func TestAnalyzeGenericQuery(t *testing.T) {
	a := analysis.Analyze("Is this a good deal?")

	assert.Equal(t, analysis.GenericQuery, a.QueryType)
	assert.Equal(t, 1.0, a.TableBoost)
	assert.Equal(t, 1.0, a.NarrativeBoost)
}

func TestAnalyzeDigitsLeanData(t *testing.T) {
	a := analysis.Analyze("Show figures from 2021 to 2023")

	assert.Equal(t, analysis.DataQuery, a.QueryType)
}

func TestAnalyzeTieIsGeneric(t *testing.T) {
	// One data keyword against one narrative keyword.
	a := analysis.Analyze("explain the revenue")

	require.Equal(t, analysis.GenericQuery, a.QueryType)
	assert.Equal(t, 1.0, a.TableBoost)
}
