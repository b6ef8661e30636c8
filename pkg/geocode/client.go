// Package geocode resolves free-text place queries to coordinates using a
// Nominatim-compatible search endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// NominatimSearchURL is the public OpenStreetMap search endpoint.
const NominatimSearchURL = "https://nominatim.openstreetmap.org/search"

// DefaultUserAgent identifies requests as the usage policy requires.
const DefaultUserAgent = "plat-mapview/0.1 (+https://github.com/joeblew999/plat-mapview)"

// Client looks up places by free text.
type Client interface {
	// Search returns candidates in provider order. An empty slice means no match.
	Search(ctx context.Context, query string) ([]Place, error)
}

// Place is one geocoding candidate.
type Place struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"displayName,omitempty"`
	Class       string  `json:"class,omitempty"`
	Importance  float64 `json:"importance,omitempty"`
}

// Option configures the client.
type Option func(*nominatim)

// WithBaseURL points the client at another Nominatim-compatible endpoint.
func WithBaseURL(u string) Option {
	return func(n *nominatim) { n.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(n *nominatim) { n.httpClient = hc }
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(n *nominatim) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		n.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(n *nominatim) { n.userAgent = ua }
}

// WithResultLimit caps the number of candidates requested.
func WithResultLimit(limit int) Option {
	return func(n *nominatim) { n.limit = limit }
}

// WithCache enables a lookup cache.
func WithCache(c Cache) Option {
	return func(n *nominatim) { n.cache = c }
}

type nominatim struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	limit      int
	cache      Cache
}

// NewClient creates a Nominatim client with the given options.
func NewClient(opts ...Option) Client {
	n := &nominatim{
		baseURL:    NominatimSearchURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(1, 1), // public instance policy: 1 req/s
		userAgent:  DefaultUserAgent,
		limit:      5,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// nominatimResult mirrors the jsonv2/json search output. Coordinates are strings.
type nominatimResult struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Class       string  `json:"class"`
	Importance  float64 `json:"importance"`
}

// Search geocodes a query. Blank queries return no candidates.
func (n *nominatim) Search(ctx context.Context, query string) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	key := cacheKey(query)
	if n.cache != nil {
		if places, ok, err := n.cache.Get(ctx, key); err != nil {
			zap.L().Debug("geocode: cache lookup failed", zap.Error(err))
		} else if ok {
			return places, nil
		}
	}

	places, err := n.fetch(ctx, query)
	if err != nil {
		return nil, err
	}

	if n.cache != nil {
		if err := n.cache.Put(ctx, key, query, places); err != nil {
			zap.L().Debug("geocode: cache store failed", zap.Error(err))
		}
	}
	return places, nil
}

func (n *nominatim) fetch(ctx context.Context, query string) ([]Place, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit")
	}

	params := url.Values{
		"format": {"json"},
		"q":      {query},
	}
	if n.limit > 0 {
		params.Set("limit", strconv.Itoa(n.limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: nominatim returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}

	var raw []nominatimResult
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}

	places := make([]Place, 0, len(raw))
	for _, r := range raw {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lon, errLon := strconv.ParseFloat(r.Lon, 64)
		if errLat != nil || errLon != nil {
			zap.L().Debug("geocode: skipping candidate with bad coordinates",
				zap.String("lat", r.Lat), zap.String("lon", r.Lon))
			continue
		}
		places = append(places, Place{
			Lat:         lat,
			Lon:         lon,
			DisplayName: r.DisplayName,
			Class:       r.Class,
			Importance:  r.Importance,
		})
	}

	zap.L().Debug("geocode: search", zap.String("query", query), zap.Int("candidates", len(places)))
	return places, nil
}
