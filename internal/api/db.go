package api

import (
	"context"
	"database/sql"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-mapview/internal/db"
	"github.com/joeblew999/plat-mapview/pkg/geocode"
)

// DBHandler exposes the DuckDB-backed geocode cache.
type DBHandler struct {
	db    *sql.DB
	cache *geocode.DuckDBCache
}

// NewDBHandler creates a new database handler. Both arguments may be nil
// when the cache is not backed by DuckDB.
func NewDBHandler(conn *sql.DB, cache *geocode.DuckDBCache) *DBHandler {
	return &DBHandler{db: conn, cache: cache}
}

// RegisterRoutes registers database routes with Huma.
func (h *DBHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/tables", h.ListTables, huma.OperationTags("geocode"))
	huma.Get(api, "/api/v1/geocode/cache", h.ListCache, huma.OperationTags("geocode"))
	huma.Delete(api, "/api/v1/geocode/cache", h.PurgeCache, huma.OperationTags("geocode"))
}

// TablesOutput is the response for listing tables.
type TablesOutput struct {
	Body struct {
		Tables []string `json:"tables" doc:"List of table names"`
	}
}

// ListTables returns all DuckDB tables.
func (h *DBHandler) ListTables(ctx context.Context, input *struct{}) (*TablesOutput, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	tables, err := db.Tables(ctx, h.db)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	out := &TablesOutput{}
	out.Body.Tables = tables
	return out, nil
}

// CacheInput pages the cache listing.
type CacheInput struct {
	Limit int `query:"limit" default:"50" minimum:"1" maximum:"1000" doc:"Maximum entries to return"`
}

// CacheOutput is the response for listing cached answers.
type CacheOutput struct {
	Body struct {
		Entries []geocode.Entry `json:"entries" doc:"Cached answers, newest first"`
		Count   int             `json:"count" doc:"Number of entries returned"`
	}
}

// ListCache returns the most recent cached geocode answers.
func (h *DBHandler) ListCache(ctx context.Context, input *CacheInput) (*CacheOutput, error) {
	if h.cache == nil {
		return nil, huma.Error503ServiceUnavailable("Geocode cache is not persisted")
	}
	entries, err := h.cache.Entries(ctx, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list cache", err)
	}
	out := &CacheOutput{}
	out.Body.Entries = entries
	out.Body.Count = len(entries)
	return out, nil
}

// PurgeOutput is the response for clearing the cache.
type PurgeOutput struct {
	Body struct {
		Removed int64 `json:"removed" doc:"Number of entries removed"`
	}
}

// PurgeCache deletes every cached geocode answer.
func (h *DBHandler) PurgeCache(ctx context.Context, input *struct{}) (*PurgeOutput, error) {
	if h.cache == nil {
		return nil, huma.Error503ServiceUnavailable("Geocode cache is not persisted")
	}
	n, err := h.cache.Purge(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to purge cache", err)
	}
	out := &PurgeOutput{}
	out.Body.Removed = n
	return out, nil
}
