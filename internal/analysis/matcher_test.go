package analysis_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealsense/backend/internal/analysis"
	"github.com/dealsense/backend/internal/storage/models"
)

func collectionDocs() []models.Document {
	return []models.Document{
		{ID: "doc-acme", Filename: "Acme_Corp_CIM.pdf"},
		{ID: "doc-beta", Filename: "Beta_LLC_Teaser.pdf"},
		{ID: "doc-gamma", Filename: "Gamma_Report.pdf"},
	}
}

func TestExtractDocumentNamesAndPattern(t *testing.T) {
	names := analysis.ExtractDocumentNames("Compare Acme Corp and Beta LLC revenue")

	require.Len(t, names, 2)
	assert.Equal(t, "acme corp", names[0])
	assert.Equal(t, "beta llc", names[1])
}

func TestExtractDocumentNamesVersus(t *testing.T) {
	names := analysis.ExtractDocumentNames("Acme Corp vs Beta LLC")

	require.Len(t, names, 2)
	assert.Equal(t, "acme corp", names[0])
	assert.Equal(t, "beta llc", names[1])
}

func TestExtractDocumentNamesBetween(t *testing.T) {
	names := analysis.ExtractDocumentNames("What is the difference between Acme Corp and Beta LLC?")

	require.Len(t, names, 2)
	assert.Equal(t, "acme corp", names[0])
	assert.Equal(t, "beta llc", names[1])
}

func TestExtractDocumentNamesNoComparison(t *testing.T) {
	names := analysis.ExtractDocumentNames("What is the occupancy rate?")

	assert.Empty(t, names)
}

func TestFuzzyMatchDocumentContainment(t *testing.T) {
	doc := analysis.FuzzyMatchDocument("acme corp", collectionDocs(), 0.6)

	require.NotNil(t, doc)
	assert.Equal(t, "doc-acme", doc.ID)
}

func TestFuzzyMatchDocumentBelowThreshold(t *testing.T) {
	doc := analysis.FuzzyMatchDocument("zenith holdings", collectionDocs(), 0.6)

	assert.Nil(t, doc)
}

func TestFilterDocumentsByQueryComparison(t *testing.T) {
	ids := analysis.FilterDocumentsByQuery(
		"Compare Acme Corp and Beta LLC revenue",
		collectionDocs(), nil, 0.6, 0.5,
	)

	require.Len(t, ids, 2)
	assert.Equal(t, "doc-acme", ids[0])
	assert.Equal(t, "doc-beta", ids[1])
}

func TestFilterDocumentsByQueryNoNamesKeepsFullScope(t *testing.T) {
	ids := analysis.FilterDocumentsByQuery(
		"What is the occupancy rate?",
		collectionDocs(), nil, 0.6, 0.5,
	)

	assert.Nil(t, ids)
}

func TestFilterDocumentsByQueryEntityFallback(t *testing.T) {
	ids := analysis.FilterDocumentsByQuery(
		"What is the occupancy rate?",
		collectionDocs(), []string{"Gamma Report"}, 0.6, 0.5,
	)

	require.Len(t, ids, 1)
	assert.Equal(t, "doc-gamma", ids[0])
}

func TestFilterDocumentsByQueryUnmatchedNamesKeepFullScope(t *testing.T) {
	// A named document that matches nothing must widen back to the full
	// collection, never narrow to an empty scope.
	ids := analysis.FilterDocumentsByQuery(
		"Compare Zenith Holdings and Apex Partners revenue",
		collectionDocs(), nil, 0.95, 0.95,
	)

	assert.Nil(t, ids)
}
