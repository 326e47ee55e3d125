package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/dealsense/backend/internal/storage/models"
	"github.com/dealsense/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		collection_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		title TEXT,
		content_type TEXT,
		page_count INTEGER DEFAULT 0,
		source_url TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection_id);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		page_number INTEGER NOT NULL,
		section_heading TEXT,
		section_type TEXT NOT NULL,
		tabular INTEGER NOT NULL DEFAULT 0,
		text TEXT NOT NULL,
		metadata TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc_page ON chunks(document_id, page_number);

	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		text,
		chunk_id UNINDEXED,
		document_id UNINDEXED
	);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		collection_id TEXT NOT NULL,
		title TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_collection ON chat_sessions(collection_id);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		message_index INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE (session_id, message_index),
		FOREIGN KEY (session_id) REFERENCES chat_sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, message_index);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertDocument(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (id, collection_id, filename, title, content_type, page_count, source_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			page_count = excluded.page_count,
			updated_at = excluded.updated_at
	`

	_, err := c.db.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.CollectionID,
		doc.Filename,
		doc.Title,
		doc.ContentType,
		doc.PageCount,
		doc.SourceURL,
		doc.CreatedAt.Unix(),
		doc.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	logger.Debug("Document inserted", zap.String("doc_id", doc.ID), zap.String("filename", doc.Filename))
	return nil
}

func (c *Client) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	query := `SELECT id, collection_id, filename, title, content_type, page_count, source_url, created_at, updated_at FROM documents WHERE id = ?`

	var doc models.Document
	var createdAt, updatedAt int64

	err := c.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID,
		&doc.CollectionID,
		&doc.Filename,
		&doc.Title,
		&doc.ContentType,
		&doc.PageCount,
		&doc.SourceURL,
		&createdAt,
		&updatedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc.CreatedAt = time.Unix(createdAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)

	return &doc, nil
}

func (c *Client) ListDocuments(ctx context.Context, collectionID string) ([]models.Document, error) {
	query := `SELECT id, collection_id, filename, title, content_type, page_count, source_url, created_at, updated_at FROM documents WHERE collection_id = ? ORDER BY created_at`

	rows, err := c.db.QueryContext(ctx, query, collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		var createdAt, updatedAt int64

		err := rows.Scan(&doc.ID, &doc.CollectionID, &doc.Filename, &doc.Title, &doc.ContentType, &doc.PageCount, &doc.SourceURL, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		doc.CreatedAt = time.Unix(createdAt, 0)
		doc.UpdatedAt = time.Unix(updatedAt, 0)
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

func (c *Client) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertChunk := `INSERT INTO chunks (id, document_id, page_number, section_heading, section_type, tabular, text, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	insertFTS := `INSERT INTO chunks_fts (text, chunk_id, document_id) VALUES (?, ?, ?)`

	for _, chunk := range chunks {
		tabular := 0
		if chunk.Tabular {
			tabular = 1
		}

		metadataJSON, _ := json.Marshal(chunk.Metadata)

		_, err = tx.ExecContext(ctx, insertChunk,
			chunk.ID,
			chunk.DocumentID,
			chunk.PageNumber,
			chunk.SectionHeading,
			chunk.SectionType,
			tabular,
			chunk.Text,
			string(metadataJSON),
			chunk.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}

		_, err = tx.ExecContext(ctx, insertFTS, chunk.Text, chunk.ID, chunk.DocumentID)
		if err != nil {
			return fmt.Errorf("failed to index chunk text: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}

	logger.Debug("Chunks inserted", zap.Int("count", len(chunks)))
	return nil
}

func (c *Client) GetChunks(ctx context.Context, ids []string) (map[string]models.Chunk, error) {
	if len(ids) == 0 {
		return map[string]models.Chunk{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := fmt.Sprintf(`SELECT id, document_id, page_number, section_heading, section_type, tabular, text, metadata, created_at FROM chunks WHERE id IN (%s)`, placeholders)

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	defer rows.Close()

	chunks := make(map[string]models.Chunk, len(ids))
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks[chunk.ID] = chunk
	}

	return chunks, rows.Err()
}

func (c *Client) GetChunksByPage(ctx context.Context, documentID string, page int) ([]models.Chunk, error) {
	query := `SELECT id, document_id, page_number, section_heading, section_type, tabular, text, metadata, created_at FROM chunks WHERE document_id = ? AND page_number = ? ORDER BY id`

	rows, err := c.db.QueryContext(ctx, query, documentID, page)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks by page: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

func scanChunk(rows *sql.Rows) (models.Chunk, error) {
	var chunk models.Chunk
	var tabular int
	var metadataJSON sql.NullString
	var createdAt int64

	err := rows.Scan(
		&chunk.ID,
		&chunk.DocumentID,
		&chunk.PageNumber,
		&chunk.SectionHeading,
		&chunk.SectionType,
		&tabular,
		&chunk.Text,
		&metadataJSON,
		&createdAt,
	)
	if err != nil {
		return chunk, fmt.Errorf("failed to scan chunk: %w", err)
	}

	chunk.Tabular = tabular != 0
	chunk.CreatedAt = time.Unix(createdAt, 0)
	if metadataJSON.Valid && metadataJSON.String != "" {
		json.Unmarshal([]byte(metadataJSON.String), &chunk.Metadata)
	}

	return chunk, nil
}

// LexicalSearch runs a bm25-ranked full-text query over the FTS index,
// optionally restricted to a document scope. Hits come back in descending
// relevance order.
func (c *Client) LexicalSearch(ctx context.Context, query string, scope []string, k int) ([]LexicalHit, error) {
	match := buildMatchQuery(query)
	if match == "" {
		return nil, nil
	}

	sqlQuery := `SELECT chunk_id, document_id, bm25(chunks_fts) FROM chunks_fts WHERE chunks_fts MATCH ?`
	args := []interface{}{match}

	if len(scope) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(scope)), ",")
		sqlQuery += fmt.Sprintf(" AND document_id IN (%s)", placeholders)
		for _, id := range scope {
			args = append(args, id)
		}
	}

	sqlQuery += " ORDER BY bm25(chunks_fts) LIMIT ?"
	args = append(args, k)

	rows, err := c.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run lexical search: %w", err)
	}
	defer rows.Close()

	var hits []LexicalHit
	for rows.Next() {
		var hit LexicalHit
		var rank float64
		if err := rows.Scan(&hit.ChunkID, &hit.DocumentID, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		// bm25() is smaller-is-better; negate so callers see descending scores.
		hit.Score = -rank
		hits = append(hits, hit)
	}

	logger.Debug("Lexical search completed", zap.Int("hits", len(hits)), zap.Int("scope", len(scope)))
	return hits, rows.Err()
}

type LexicalHit struct {
	ChunkID    string
	DocumentID string
	Score      float64
}

// buildMatchQuery quotes each alphanumeric token so user input cannot carry
// FTS5 query syntax.
func buildMatchQuery(query string) string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	if len(fields) == 0 {
		return ""
	}

	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, `"`+f+`"`)
	}
	return strings.Join(quoted, " OR ")
}

func (c *Client) CreateSession(ctx context.Context, session *models.ChatSession) error {
	query := `INSERT INTO chat_sessions (id, collection_id, title, created_at) VALUES (?, ?, ?, ?)`

	_, err := c.db.ExecContext(ctx, query, session.ID, session.CollectionID, session.Title, session.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	logger.Info("Chat session created", zap.String("session_id", session.ID), zap.String("collection_id", session.CollectionID))
	return nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	query := `SELECT id, collection_id, title, created_at FROM chat_sessions WHERE id = ?`

	var session models.ChatSession
	var createdAt int64

	err := c.db.QueryRowContext(ctx, query, id).Scan(&session.ID, &session.CollectionID, &session.Title, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	session.CreatedAt = time.Unix(createdAt, 0)
	return &session, nil
}

// AppendMessage assigns the next monotonic message_index inside a
// transaction, which is what guarantees ordering across concurrent turns.
func (c *Client) AppendMessage(ctx context.Context, msg *models.Message) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(message_index), -1) + 1 FROM messages WHERE session_id = ?`, msg.SessionID).Scan(&next)
	if err != nil {
		return fmt.Errorf("failed to compute message index: %w", err)
	}

	msg.MessageIndex = next

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, message_index, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Role, msg.Content, msg.MessageIndex, msg.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}

	return nil
}

// ListRecentMessages returns at most limit of the latest user/assistant
// messages in chronological order.
func (c *Client) ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	query := `
		SELECT id, session_id, role, content, message_index, created_at FROM (
			SELECT id, session_id, role, content, message_index, created_at
			FROM messages
			WHERE session_id = ? AND role IN ('user', 'assistant')
			ORDER BY message_index DESC
			LIMIT ?
		) ORDER BY message_index ASC
	`

	rows, err := c.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var createdAt int64

		err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.MessageIndex, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		m.CreatedAt = time.Unix(createdAt, 0)
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (c *Client) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}
