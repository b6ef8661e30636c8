package geocode

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Cache stores search answers keyed by normalized query.
type Cache interface {
	Get(ctx context.Context, key string) ([]Place, bool, error)
	Put(ctx context.Context, key, query string, places []Place) error
}

// cacheKey returns SHA-256 hex of the normalized query.
func cacheKey(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

// MemoryCache is an in-process cache with an optional TTL.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	places []Place
	stored time.Time
}

// NewMemoryCache creates an in-process cache. A zero ttl never expires.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, now: time.Now, entries: map[string]memoryEntry{}}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]Place, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || (c.ttl > 0 && c.now().Sub(e.stored) > c.ttl) {
		return nil, false, nil
	}
	return append([]Place(nil), e.places...), true, nil
}

func (c *MemoryCache) Put(_ context.Context, key, _ string, places []Place) error {
	c.mu.Lock()
	c.entries[key] = memoryEntry{places: append([]Place(nil), places...), stored: c.now()}
	c.mu.Unlock()
	return nil
}

// DuckDBCache persists answers in a DuckDB table.
type DuckDBCache struct {
	db      *sql.DB
	ttlDays int
}

// NewDuckDBCache creates the cache table if needed. A ttlDays of zero never expires.
func NewDuckDBCache(ctx context.Context, db *sql.DB, ttlDays int) (*DuckDBCache, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS geocode_cache (
			query_hash VARCHAR PRIMARY KEY,
			query      VARCHAR NOT NULL,
			places     VARCHAR NOT NULL,
			cached_at  TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: create cache table")
	}
	return &DuckDBCache{db: db, ttlDays: ttlDays}, nil
}

func (c *DuckDBCache) Get(ctx context.Context, key string) ([]Place, bool, error) {
	query := "SELECT places FROM geocode_cache WHERE query_hash = ?"
	if c.ttlDays > 0 {
		query += fmt.Sprintf(" AND cached_at > now() - INTERVAL %d DAY", c.ttlDays)
	}

	var raw string
	if err := c.db.QueryRowContext(ctx, query, key).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, eris.Wrap(err, "geocode: cache lookup")
	}

	var places []Place
	if err := json.Unmarshal([]byte(raw), &places); err != nil {
		return nil, false, eris.Wrap(err, "geocode: decode cached places")
	}
	zap.L().Debug("geocode cache hit", zap.String("key", key[:12]), zap.Int("candidates", len(places)))
	return places, true, nil
}

func (c *DuckDBCache) Put(ctx context.Context, key, query string, places []Place) error {
	if places == nil {
		places = []Place{}
	}
	raw, err := json.Marshal(places)
	if err != nil {
		return eris.Wrap(err, "geocode: encode places")
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO geocode_cache (query_hash, query, places, cached_at) VALUES (?, ?, ?, now())`,
		key, query, string(raw),
	)
	if err != nil {
		return eris.Wrap(err, "geocode: store cache")
	}
	return nil
}

// Entry is one cached answer.
type Entry struct {
	Query      string    `json:"query" doc:"Query as first submitted"`
	Candidates int       `json:"candidates" doc:"Number of cached places"`
	CachedAt   time.Time `json:"cachedAt" doc:"When the answer was stored"`
}

// Entries lists the most recent cached answers, newest first.
func (c *DuckDBCache) Entries(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT query, places, cached_at FROM geocode_cache ORDER BY cached_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: list cache")
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var (
			e   Entry
			raw string
		)
		if err := rows.Scan(&e.Query, &raw, &e.CachedAt); err != nil {
			return nil, eris.Wrap(err, "geocode: scan cache row")
		}
		var places []Place
		if err := json.Unmarshal([]byte(raw), &places); err == nil {
			e.Candidates = len(places)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Purge deletes every cached answer and returns how many were removed.
func (c *DuckDBCache) Purge(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM geocode_cache`)
	if err != nil {
		return 0, eris.Wrap(err, "geocode: purge cache")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "geocode: purge cache")
	}
	zap.L().Info("geocode cache purged", zap.Int64("entries", n))
	return n, nil
}
