package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealsense/backend/internal/storage/models"
)

func TestClassifyBlockTable(t *testing.T) {
	block := "Year | Revenue | EBITDA\n2021 | 10.0 | 2.0\n2022 | 12.0 | 2.6"

	assert.Equal(t, models.SectionTable, classifyBlock(block))
}

func TestClassifyBlockKeyValue(t *testing.T) {
	block := "Asking Price: $12,500,000\nCap Rate: 6.2%\nOccupancy: 94%\nYear Built: 1998"

	assert.Equal(t, models.SectionKeyValue, classifyBlock(block))
}

func TestClassifyBlockNarrative(t *testing.T) {
	block := "The property is a class A office tower located in the central business district. " +
		"It was extensively renovated in 2019 and enjoys strong tenant demand."

	assert.Equal(t, models.SectionNarrative, classifyBlock(block))
}

func TestIsHeading(t *testing.T) {
	assert.True(t, isHeading("Financial Highlights"))
	assert.True(t, isHeading("Section 4 Market Overview"))
	assert.False(t, isHeading("The property generated strong returns."))
	assert.False(t, isHeading(""))
	assert.False(t, isHeading(strings.Repeat("Very Long Heading ", 10)))
}

func TestSplitBlocksRespectsTargetSize(t *testing.T) {
	para := strings.Repeat("a", 500)
	text := para + "\n\n" + para + "\n\n" + para

	blocks := splitBlocks(text, 800)

	require.Len(t, blocks, 3)
	for _, block := range blocks {
		assert.LessOrEqual(t, len(block), 800)
	}
}

func TestChunkPageCarriesSectionMetadata(t *testing.T) {
	p := &Processor{}
	page := Page{Number: 3, Text: "Financial Highlights\n" +
		"The portfolio delivered net operating income of 4.2 million in fiscal 2023. " +
		"Occupancy finished the year at 94 percent across all properties in the fund."}

	chunks := p.chunkPage("doc-1", page)

	require.Len(t, chunks, 1)
	chunk := chunks[0]
	assert.Equal(t, "doc-1", chunk.DocumentID)
	assert.Equal(t, 3, chunk.PageNumber)
	assert.Equal(t, "Financial Highlights", chunk.SectionHeading)
	assert.Equal(t, models.SectionNarrative, chunk.SectionType)
	assert.False(t, chunk.Tabular)
	assert.NotEmpty(t, chunk.ID)
	assert.Contains(t, chunk.Metadata.FirstSentence, "net operating income")
}

func TestChunkPageTabularAgreement(t *testing.T) {
	p := &Processor{}
	page := Page{Number: 1, Text: "Rent Roll\n" +
		"Tenant | Suite | SF | Rent\nAcme Legal | 100 | 4500 | 28.50\n" +
		"Beta Partners | 210 | 6200 | 31.00\nGamma Co | 300 | 2100 | 26.75\n" +
		"Delta LLC | 410 | 1800 | 27.00"}

	chunks := p.chunkPage("doc-1", page)

	require.Len(t, chunks, 1)
	assert.Equal(t, models.SectionTable, chunks[0].SectionType)
	assert.True(t, chunks[0].Tabular)
}

func TestChunkPageSkipsTinyFragments(t *testing.T) {
	p := &Processor{}
	page := Page{Number: 1, Text: "Overview\nToo short."}

	chunks := p.chunkPage("doc-1", page)

	assert.Empty(t, chunks)
}

func TestCleanHTMLStripsMarkup(t *testing.T) {
	html := `<html><head><script>alert(1)</script><style>p{}</style></head>
<body><nav>menu</nav><h1>Offering Summary</h1><p>The asset is fully leased.</p></body></html>`

	text, err := cleanHTML(html)

	require.NoError(t, err)
	assert.Contains(t, text, "Offering Summary")
	assert.Contains(t, text, "The asset is fully leased.")
	assert.NotContains(t, text, "alert(1)")
	assert.NotContains(t, text, "menu")
}
