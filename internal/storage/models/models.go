package models

import "time"

// Page is one crawled page. IDs are assigned sequentially (1..N) when a
// crawl run is saved, so a crawl output is dense and self-contained.
type Page struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ChatRecord is one completed user/assistant exchange, persisted for the
// history endpoint.
type ChatRecord struct {
	ID         string
	SessionID  string
	Question   string
	Reply      string
	TopScore   float64
	ChunksUsed int
	LatencyMS  int
	CreatedAt  time.Time
}

// Document mirrors a crawled page in SQLite so the API can list what is
// indexed without re-reading the crawl output file.
type Document struct {
	ID        string
	URL       string
	Title     string
	Content   string
	CreatedAt time.Time
}
