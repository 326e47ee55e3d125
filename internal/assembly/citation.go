package assembly

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/dealsense/backend/internal/metrics"
	"github.com/dealsense/backend/internal/storage/models"
	"github.com/dealsense/backend/pkg/logger"
)

// citationPattern matches the [D<k>:p<n>] tokens the model is instructed to
// emit, k being a 1-based index into the turn's document scope.
var citationPattern = regexp.MustCompile(`\[D(\d+):p(\d+)\]`)

type Citation struct {
	Token            string   `json:"token"`
	Unknown          bool     `json:"unknown,omitempty"`
	DocumentID       string   `json:"document_id,omitempty"`
	Filename         string   `json:"filename,omitempty"`
	Page             int      `json:"page"`
	ChunkID          string   `json:"chunk_id,omitempty"`
	Section          string   `json:"section,omitempty"`
	HeadingHierarchy []string `json:"heading_hierarchy,omitempty"`
	Snippet          string   `json:"snippet,omitempty"`
	URL              string   `json:"url,omitempty"`
}

type pageChunkStore interface {
	GetChunksByPage(ctx context.Context, documentID string, page int) ([]models.Chunk, error)
}

// CitationResolver maps citation tokens in an answer back to documents,
// pages, and representative chunks.
type CitationResolver struct {
	chunks pageChunkStore
}

func NewCitationResolver(chunks pageChunkStore) *CitationResolver {
	return &CitationResolver{chunks: chunks}
}

// ResolveAll resolves every distinct citation token in the answer against
// the turn's ordered document scope. A token pointing outside the scope is
// the model's mistake, not the turn's; it comes back as an unknown
// placeholder instead of vanishing. Results are ordered by token string.
func (r *CitationResolver) ResolveAll(ctx context.Context, answer string, scope []models.Document) []Citation {
	matches := citationPattern.FindAllStringSubmatch(answer, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	var citations []Citation

	for _, m := range matches {
		token := m[0]
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}

		docIndex, _ := strconv.Atoi(m[1])
		page, _ := strconv.Atoi(m[2])

		if docIndex < 1 || docIndex > len(scope) {
			logger.Debug("Citation outside document scope", zap.String("token", token))
			metrics.CitationsUnknown.Inc()
			citations = append(citations, Citation{Token: token, Unknown: true, Page: page})
			continue
		}
		metrics.CitationsResolved.Inc()
		doc := scope[docIndex-1]

		citation := Citation{
			Token:      token,
			DocumentID: doc.ID,
			Filename:   doc.Filename,
			Page:       page,
			URL:        doc.SourceURL,
		}
		r.attachChunk(ctx, &citation)
		citations = append(citations, citation)
	}

	sort.Slice(citations, func(i, j int) bool {
		return citations[i].Token < citations[j].Token
	})

	return citations
}

// attachChunk picks a representative chunk for the cited page, preferring
// narrative text because it snippets better than table fragments.
func (r *CitationResolver) attachChunk(ctx context.Context, citation *Citation) {
	chunks, err := r.chunks.GetChunksByPage(ctx, citation.DocumentID, citation.Page)
	if err != nil {
		logger.Warn("Failed to load chunks for citation",
			zap.String("token", citation.Token),
			zap.Error(err),
		)
		return
	}
	if len(chunks) == 0 {
		return
	}

	chosen := chunks[0]
	for _, chunk := range chunks {
		if !chunk.Tabular {
			chosen = chunk
			break
		}
	}

	citation.ChunkID = chosen.ID
	citation.Section = chosen.SectionHeading
	citation.HeadingHierarchy = chosen.Metadata.HeadingHierarchy
	citation.Snippet = snippet(chosen)
}

func snippet(chunk models.Chunk) string {
	text := chunk.Metadata.FirstSentence
	if text == "" {
		text = chunk.Text
	}
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > 150 {
		text = fmt.Sprintf("%s...", strings.TrimRightFunc(text[:150], func(r rune) bool { return r == ' ' || r == ',' }))
	}
	return text
}
