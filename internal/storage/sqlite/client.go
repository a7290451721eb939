package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/adgm-assist/backend/internal/storage/models"
	"github.com/adgm-assist/backend/pkg/logger"
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
		url TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		content TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_url ON documents(url);

	CREATE TABLE IF NOT EXISTS chat_history (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		question TEXT NOT NULL,
		reply TEXT,
		top_score REAL,
		chunks_used INTEGER,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_session ON chat_history(session_id);
	CREATE INDEX IF NOT EXISTS idx_chat_created ON chat_history(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Info("Database schema initialized")
	return nil
}

// ReplaceDocuments overwrites the document mirror with the pages from one
// crawl run. A crawl output replaces the previous one wholesale.
func (c *Client) ReplaceDocuments(pages []models.Page) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM documents"); err != nil {
		return fmt.Errorf("failed to clear documents: %w", err)
	}

	stmt, err := tx.Prepare(
		"INSERT INTO documents (id, url, title, content, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, p := range pages {
		if _, err := stmt.Exec(p.ID, p.URL, p.Title, p.Content, now); err != nil {
			return fmt.Errorf("failed to insert document %s: %w", p.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	logger.Info("Documents replaced", zap.Int("count", len(pages)))
	return nil
}

func (c *Client) ListDocuments(limit int) ([]models.Document, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := c.db.Query(
		"SELECT id, url, title, created_at FROM documents ORDER BY CAST(id AS INTEGER) LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var d models.Document
		var createdAt int64
		if err := rows.Scan(&d.ID, &d.URL, &d.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		d.CreatedAt = time.Unix(createdAt, 0)
		docs = append(docs, d)
	}

	return docs, rows.Err()
}

func (c *Client) InsertChatRecord(rec *models.ChatRecord) error {
	_, err := c.db.Exec(
		`INSERT INTO chat_history
		 (id, session_id, question, reply, top_score, chunks_used, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Question, rec.Reply,
		rec.TopScore, rec.ChunksUsed, rec.LatencyMS, rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat record: %w", err)
	}
	return nil
}

func (c *Client) GetChatHistory(sessionID string, limit int) ([]models.ChatRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := c.db.Query(
		`SELECT id, session_id, question, reply, top_score, chunks_used, latency_ms, created_at
		 FROM chat_history WHERE session_id = ? ORDER BY created_at LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat history: %w", err)
	}
	defer rows.Close()

	var records []models.ChatRecord
	for rows.Next() {
		var rec models.ChatRecord
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Question, &rec.Reply,
			&rec.TopScore, &rec.ChunksUsed, &rec.LatencyMS, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat record: %w", err)
		}
		rec.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, rec)
	}

	return records, rows.Err()
}
