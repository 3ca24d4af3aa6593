// Package lessons implements the persistent lessons-learned store.
//
// It uses SQLite with FTS5 full-text search so that the learn stage can
// record what a pipeline run discovered (failures, retries, plan/edit
// mismatches) and later runs can recall it by query.
package lessons

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Lesson is a single recorded insight from a pipeline run.
type Lesson struct {
	ID        int64  `json:"id"`
	RequestID string `json:"request_id"`
	Tool      string `json:"tool"`
	Category  string `json:"category"` // failure | retry | plan | edit | insight
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// SearchResult embeds a Lesson with its FTS5 rank.
type SearchResult struct {
	Lesson
	Rank float64 `json:"rank"`
}

// Stats holds aggregate store statistics.
type Stats struct {
	TotalLessons int            `json:"total_lessons"`
	ByCategory   map[string]int `json:"by_category"`
	ByTool       map[string]int `json:"by_tool"`
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the lessons database at path. ":memory:" gives
// an ephemeral store for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating lessons directory: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening lessons db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating lessons db: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS lessons (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT    NOT NULL,
			tool       TEXT    NOT NULL,
			category   TEXT    NOT NULL,
			title      TEXT    NOT NULL,
			content    TEXT    NOT NULL,
			created_at TEXT    NOT NULL DEFAULT (datetime('now'))
		);

		CREATE INDEX IF NOT EXISTS idx_lessons_tool     ON lessons(tool);
		CREATE INDEX IF NOT EXISTS idx_lessons_category ON lessons(category);
		CREATE INDEX IF NOT EXISTS idx_lessons_created  ON lessons(created_at DESC);

		CREATE VIRTUAL TABLE IF NOT EXISTS lessons_fts USING fts5(
			title,
			content,
			tool,
			category,
			content='lessons',
			content_rowid='id'
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts a lesson and returns its id. The FTS index uses an
// external content table, so the row is mirrored manually.
func (s *Store) Record(l Lesson) (int64, error) {
	if strings.TrimSpace(l.Title) == "" {
		return 0, fmt.Errorf("lesson title is required")
	}

	res, err := s.db.Exec(
		`INSERT INTO lessons (request_id, tool, category, title, content)
		 VALUES (?, ?, ?, ?, ?)`,
		l.RequestID, l.Tool, normalizeCategory(l.Category), l.Title, l.Content,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if _, err := s.db.Exec(
		`INSERT INTO lessons_fts(rowid, title, content, tool, category)
		 VALUES (?, ?, ?, ?, ?)`,
		id, l.Title, l.Content, l.Tool, normalizeCategory(l.Category),
	); err != nil {
		return 0, err
	}
	return id, nil
}

// Search runs an FTS5 match over titles and content. Empty queries fall
// back to recent lessons.
func (s *Store) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	ftsQuery := sanitizeFTS(query)
	if ftsQuery == "" {
		recent, err := s.Recent(limit)
		if err != nil {
			return nil, err
		}
		out := make([]SearchResult, len(recent))
		for i, l := range recent {
			out[i] = SearchResult{Lesson: l}
		}
		return out, nil
	}

	rows, err := s.db.Query(`
		SELECT l.id, l.request_id, l.tool, l.category, l.title, l.content, l.created_at, fts.rank
		FROM lessons_fts fts
		JOIN lessons l ON l.id = fts.rowid
		WHERE lessons_fts MATCH ?
		ORDER BY fts.rank
		LIMIT ?`,
		ftsQuery, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Tool, &r.Category, &r.Title, &r.Content, &r.CreatedAt, &r.Rank); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Recent returns the most recently recorded lessons.
func (s *Store) Recent(limit int) ([]Lesson, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(`
		SELECT id, request_id, tool, category, title, content, created_at
		FROM lessons
		ORDER BY datetime(created_at) DESC, id DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Lesson
	for rows.Next() {
		var l Lesson
		if err := rows.Scan(&l.ID, &l.RequestID, &l.Tool, &l.Category, &l.Title, &l.Content, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Stats returns aggregate counts by category and tool.
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{
		ByCategory: make(map[string]int),
		ByTool:     make(map[string]int),
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM lessons`).Scan(&stats.TotalLessons); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT category, COUNT(*) FROM lessons GROUP BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, err
		}
		stats.ByCategory[cat] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	toolRows, err := s.db.Query(`SELECT tool, COUNT(*) FROM lessons GROUP BY tool`)
	if err != nil {
		return nil, err
	}
	defer toolRows.Close()
	for toolRows.Next() {
		var tool string
		var n int
		if err := toolRows.Scan(&tool, &n); err != nil {
			return nil, err
		}
		stats.ByTool[tool] = n
	}
	return stats, toolRows.Err()
}

// --- Helpers ---

var validCategories = map[string]bool{
	"failure": true,
	"retry":   true,
	"plan":    true,
	"edit":    true,
	"insight": true,
}

func normalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if !validCategories[c] {
		return "insight"
	}
	return c
}

var ftsStrip = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// sanitizeFTS turns free text into a safe FTS5 query: strip operators,
// quote each term, AND them together.
func sanitizeFTS(query string) string {
	cleaned := ftsStrip.ReplaceAllString(query, " ")
	fields := strings.Fields(cleaned)
	if len(fields) == 0 {
		return ""
	}
	for i, f := range fields {
		fields[i] = `"` + f + `"`
	}
	return strings.Join(fields, " AND ")
}
