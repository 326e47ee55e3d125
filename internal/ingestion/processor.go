package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/dealsense/backend/internal/metrics"
	"github.com/dealsense/backend/internal/storage/models"
	"github.com/dealsense/backend/internal/storage/sqlite"
	"github.com/dealsense/backend/internal/vector/milvus"
	"github.com/dealsense/backend/pkg/logger"
	"github.com/dealsense/backend/pkg/utils"
)

const (
	targetChunkChars = 1200
	minChunkChars    = 80
)

type Embedder interface {
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Page is one page of extracted document text, 1-based.
type Page struct {
	Number int
	Text   string
}

// Input is a document ready for indexing. Either Pages holds extracted text
// or HTML holds raw markup to be cleaned and treated as a single page.
type Input struct {
	CollectionID string
	Filename     string
	Title        string
	ContentType  string
	SourceURL    string
	Pages        []Page
	HTML         string
}

// Processor turns raw documents into chunks in both indexes: rows plus FTS
// entries in SQLite, embeddings in Milvus.
type Processor struct {
	store    *sqlite.Client
	vectors  *milvus.Client
	embedder Embedder
}

func NewProcessor(store *sqlite.Client, vectors *milvus.Client, embedder Embedder) *Processor {
	return &Processor{store: store, vectors: vectors, embedder: embedder}
}

// Process indexes one document and returns it with the number of chunks
// written. Both indexes must succeed; a document visible to only one signal
// would skew fusion.
func (p *Processor) Process(ctx context.Context, in Input) (*models.Document, int, error) {
	pages := in.Pages
	if len(pages) == 0 && in.HTML != "" {
		text, err := cleanHTML(in.HTML)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to clean HTML: %w", err)
		}
		pages = []Page{{Number: 1, Text: text}}
	}
	if len(pages) == 0 {
		return nil, 0, fmt.Errorf("document %s has no content", in.Filename)
	}

	now := time.Now().UTC()
	doc := &models.Document{
		ID:           uuid.New().String(),
		CollectionID: in.CollectionID,
		Filename:     in.Filename,
		Title:        in.Title,
		ContentType:  in.ContentType,
		PageCount:    len(pages),
		SourceURL:    in.SourceURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if doc.Title == "" {
		doc.Title = strings.TrimSuffix(in.Filename, ".pdf")
	}

	var chunks []models.Chunk
	for _, page := range pages {
		chunks = append(chunks, p.chunkPage(doc.ID, page)...)
	}
	if len(chunks) == 0 {
		return nil, 0, fmt.Errorf("document %s produced no chunks", in.Filename)
	}

	if err := p.store.InsertDocument(ctx, doc); err != nil {
		return nil, 0, err
	}
	if err := p.store.InsertChunks(ctx, chunks); err != nil {
		return nil, 0, err
	}

	if err := p.indexVectors(ctx, chunks); err != nil {
		return nil, 0, err
	}

	metrics.DocumentsIngested.Inc()
	metrics.ChunksIndexed.Add(float64(len(chunks)))

	logger.Info("Document ingested",
		zap.String("document_id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.Int("pages", len(pages)),
		zap.Int("chunks", len(chunks)),
	)

	return doc, len(chunks), nil
}

func (p *Processor) indexVectors(ctx context.Context, chunks []models.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embeddings, err := p.embedder.GenerateBatchEmbeddings(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}

	vectors := make([]milvus.ChunkVector, len(chunks))
	for i, c := range chunks {
		vectors[i] = milvus.ChunkVector{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Embedding:  embeddings[i],
		}
	}

	return p.vectors.Insert(ctx, vectors)
}

// chunkPage splits a page into section-classified chunks. Sections open at
// heading lines; blocks inside a section split again at the target size on
// paragraph boundaries.
func (p *Processor) chunkPage(documentID string, page Page) []models.Chunk {
	sections := splitSections(page.Text)

	var chunks []models.Chunk
	index := 0
	for _, sec := range sections {
		for _, block := range splitBlocks(sec.body, targetChunkChars) {
			if len(strings.TrimSpace(block)) < minChunkChars {
				continue
			}

			sectionType := classifyBlock(block)
			chunk := models.Chunk{
				ID:             utils.ChunkID(documentID, page.Number, index),
				DocumentID:     documentID,
				Text:           block,
				PageNumber:     page.Number,
				SectionHeading: sec.heading,
				SectionType:    sectionType,
				Tabular:        sectionType == models.SectionTable,
				Metadata: models.ChunkMetadata{
					FirstSentence: firstSentence(block),
				},
				CreatedAt: time.Now().UTC(),
			}
			if sec.heading != "" {
				chunk.Metadata.HeadingHierarchy = []string{sec.heading}
			}
			chunks = append(chunks, chunk)
			index++
		}
	}
	return chunks
}

type section struct {
	heading string
	body    string
}

func splitSections(text string) []section {
	lines := strings.Split(text, "\n")
	var sections []section
	current := section{}
	var body []string

	flush := func() {
		current.body = strings.TrimSpace(strings.Join(body, "\n"))
		if current.body != "" {
			sections = append(sections, current)
		}
		body = body[:0]
	}

	for _, line := range lines {
		if isHeading(line) {
			flush()
			current = section{heading: strings.TrimSpace(line)}
			continue
		}
		body = append(body, line)
	}
	flush()

	return sections
}

// isHeading flags short title-like lines: no sentence punctuation, mostly
// capitalized words.
func isHeading(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || len(line) > 80 {
		return false
	}
	if strings.ContainsAny(line, ".!?") {
		return false
	}
	words := strings.Fields(line)
	if len(words) == 0 || len(words) > 10 {
		return false
	}
	capitalized := 0
	for _, w := range words {
		r := []rune(w)[0]
		if unicode.IsUpper(r) || unicode.IsDigit(r) {
			capitalized++
		}
	}
	return capitalized*2 >= len(words)
}

func splitBlocks(text string, target int) []string {
	paragraphs := strings.Split(text, "\n\n")
	var blocks []string
	var current strings.Builder

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(para) > target {
			blocks = append(blocks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	if current.Len() > 0 {
		blocks = append(blocks, current.String())
	}
	return blocks
}

// classifyBlock decides the section type from line shape: pipe or
// multi-column rows mean a table, a run of "Key: Value" lines means a
// key-value block, anything else is narrative.
func classifyBlock(block string) string {
	lines := strings.Split(block, "\n")
	tableLines, kvLines := 0, 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.Count(trimmed, "|") >= 2 || strings.Count(trimmed, "\t") >= 2 {
			tableLines++
			continue
		}
		if idx := strings.Index(trimmed, ":"); idx > 0 && idx < 40 && !strings.HasSuffix(trimmed, ":") {
			kvLines++
		}
	}

	total := 0
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			total++
		}
	}
	if total == 0 {
		return models.SectionNarrative
	}
	if tableLines*2 >= total {
		return models.SectionTable
	}
	if kvLines*2 >= total && total >= 3 {
		return models.SectionKeyValue
	}
	return models.SectionNarrative
}

func firstSentence(text string) string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return ""
	}
	sentences := doc.Sentences()
	if len(sentences) == 0 {
		return ""
	}
	return strings.TrimSpace(sentences[0].Text)
}

// cleanHTML strips markup down to readable text, dropping script, style,
// and navigation noise.
func cleanHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, header, footer, noscript").Remove()

	var b strings.Builder
	doc.Find("h1, h2, h3, h4, p, li, td, th").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		b.WriteString(text)
		b.WriteString("\n")
	})

	return b.String(), nil
}
