package docs

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Cache persists query results in SQLite, keyed by a blake3 digest of
// the normalized query. Concurrent writers race benignly: the upsert is
// last-writer-wins, which is fine because equal queries produce
// equivalent entries.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// OpenCache creates or opens the cache database at path. ":memory:"
// gives an ephemeral cache for tests.
func OpenCache(path string, ttl time.Duration) (*Cache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening docs cache: %w", err)
	}

	c := &Cache{db: db, ttl: ttl, now: time.Now}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating docs cache: %w", err)
	}
	return c, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) migrate() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS doc_cache (
			key        TEXT PRIMARY KEY,
			query      TEXT    NOT NULL,
			results    TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_doc_cache_created ON doc_cache(created_at);
	`)
	return err
}

// Get returns the cached results for the query, or ok=false on a miss
// or an expired entry.
func (c *Cache) Get(query string) ([]Result, bool, error) {
	var blob string
	var createdAt int64
	err := c.db.QueryRow(
		`SELECT results, created_at FROM doc_cache WHERE key = ?`, CacheKey(query),
	).Scan(&blob, &createdAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if c.ttl > 0 && c.now().Sub(time.Unix(createdAt, 0)) > c.ttl {
		return nil, false, nil
	}

	var results []Result
	if err := json.Unmarshal([]byte(blob), &results); err != nil {
		return nil, false, fmt.Errorf("decoding cached results: %w", err)
	}
	for i := range results {
		results[i].Source = "cache"
	}
	return results, true, nil
}

// Put stores results for the query, replacing any existing entry.
func (c *Cache) Put(query string, results []Result) error {
	blob, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	_, err = c.db.Exec(`
		INSERT INTO doc_cache (key, query, results, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			query = excluded.query,
			results = excluded.results,
			created_at = excluded.created_at`,
		CacheKey(query), query, string(blob), c.now().Unix(),
	)
	return err
}

// CacheKey returns the hex blake3 digest of the normalized query.
func CacheKey(query string) string {
	sum := blake3.Sum256([]byte(normalizeQuery(query)))
	return hex.EncodeToString(sum[:])
}

func normalizeQuery(q string) string {
	terms := Terms(q)
	out := ""
	for i, t := range terms {
		if i > 0 {
			out += " "
		}
		out += t
	}
	return out
}

// CachedClient wraps a Client with the cache. Lookup failures fall
// through to the inner client; cache write failures are swallowed —
// the cache is an optimization, never a correctness dependency.
type CachedClient struct {
	inner Client
	cache *Cache
}

// NewCachedClient wraps inner with cache. A nil cache disables caching.
func NewCachedClient(inner Client, cache *Cache) *CachedClient {
	return &CachedClient{inner: inner, cache: cache}
}

// Query consults the cache first and stores fresh results on a miss.
func (c *CachedClient) Query(ctx context.Context, text string, limit int) ([]Result, error) {
	if c.cache != nil {
		if cached, ok, err := c.cache.Get(text); err == nil && ok {
			if limit > 0 && len(cached) > limit {
				cached = cached[:limit]
			}
			return cached, nil
		}
	}

	results, err := c.inner.Query(ctx, text, limit)
	if err != nil {
		return nil, err
	}
	if c.cache != nil && len(results) > 0 {
		_ = c.cache.Put(text, results)
	}
	return results, nil
}
