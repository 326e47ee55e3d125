package models

import "time"

// Section content classification. Exactly one applies per chunk, and
// Tabular must agree with SectionTable.
const (
	SectionNarrative = "narrative"
	SectionTable     = "table"
	SectionKeyValue  = "key_value"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Document struct {
	ID           string
	CollectionID string
	Filename     string
	Title        string
	ContentType  string
	PageCount    int
	SourceURL    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Chunk is a retrievable unit of document content. Chunks are created once
// at indexing time and are read-only inside the pipeline; per-query scoring
// lives on retrieval.Candidate, never here.
type Chunk struct {
	ID             string
	DocumentID     string
	Text           string
	PageNumber     int
	SectionHeading string
	SectionType    string
	Tabular        bool
	Metadata       ChunkMetadata
	CreatedAt      time.Time
}

type ChunkMetadata struct {
	HeadingHierarchy []string `json:"heading_hierarchy,omitempty"`
	FirstSentence    string   `json:"first_sentence,omitempty"`
	CharStart        int      `json:"char_start,omitempty"`
	CharEnd          int      `json:"char_end,omitempty"`
}

type ChatSession struct {
	ID           string
	CollectionID string
	Title        string
	CreatedAt    time.Time
}

// Message is one conversation turn. MessageIndex is monotonic per session
// and assigned by the store.
type Message struct {
	ID           string
	SessionID    string
	Role         string
	Content      string
	MessageIndex int
	CreatedAt    time.Time
}

// ConversationSummary is the cached rollup of older turns. It is valid only
// while MessageCount equals the session's current total message count.
type ConversationSummary struct {
	SessionID           string   `json:"session_id"`
	MessageCount        int      `json:"message_count"`
	Summary             string   `json:"summary"`
	Compressed          bool     `json:"compressed"`
	KeyFacts            []string `json:"key_facts,omitempty"`
	LastSummarizedIndex int      `json:"last_summarized_index"`
	CreatedAt           time.Time `json:"created_at"`
}
