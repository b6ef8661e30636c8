// Package search resolves committed place queries and moves the camera to
// the first match. A later query always supersedes an earlier one.
package search

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-mapview/internal/engine"
	"github.com/joeblew999/plat-mapview/internal/notice"
	"github.com/joeblew999/plat-mapview/pkg/geocode"
)

// ResultZoom is the zoom level used when centering on a search result.
const ResultZoom = 14

var (
	ErrEmptyQuery     = eris.New("search: empty query")
	ErrNotFound       = eris.New("search: location not found")
	ErrNetworkFailure = eris.New("search: lookup failed")
	// ErrSuperseded is returned to the caller of a query whose answer arrived
	// after a newer query was committed. Nothing is applied or reported.
	ErrSuperseded = eris.New("search: superseded by a newer query")
)

// Geocoder turns a query into candidate coordinates, best first.
type Geocoder interface {
	Lookup(ctx context.Context, query string) ([]engine.Coordinate, error)
}

// GeocoderFunc adapts a function to Geocoder.
type GeocoderFunc func(ctx context.Context, query string) ([]engine.Coordinate, error)

func (f GeocoderFunc) Lookup(ctx context.Context, query string) ([]engine.Coordinate, error) {
	return f(ctx, query)
}

// FromClient adapts a geocode client.
func FromClient(c geocode.Client) Geocoder {
	return GeocoderFunc(func(ctx context.Context, query string) ([]engine.Coordinate, error) {
		places, err := c.Search(ctx, query)
		if err != nil {
			return nil, err
		}
		out := make([]engine.Coordinate, 0, len(places))
		for _, p := range places {
			out = append(out, engine.Coordinate{Lat: p.Lat, Lon: p.Lon})
		}
		return out, nil
	})
}

// Mover is the camera operation the resolver drives.
type Mover interface {
	MoveTo(center engine.Coordinate, zoom int) (bool, error)
}

// Notifier surfaces user-visible notices.
type Notifier interface {
	Push(kind notice.Kind, msg string) notice.Notice
}

// Result is an applied search answer.
type Result struct {
	Query      string            `json:"query"`
	Coordinate engine.Coordinate `json:"coordinate"`
	Candidates int               `json:"candidates"`
}

// Resolver runs searches. loop serialises it with the rest of the map; every
// method except Resolve expects the caller to hold loop.
type Resolver struct {
	loop     sync.Locker
	geocoder Geocoder
	camera   Mover
	notices  Notifier

	gen    uint64
	cancel context.CancelFunc
	open   bool
	last   *Result
}

// New creates a resolver.
func New(loop sync.Locker, g Geocoder, camera Mover, notices Notifier) *Resolver {
	return &Resolver{loop: loop, geocoder: g, camera: camera, notices: notices}
}

// Resolve commits query, looks it up without holding the loop, and applies
// the first candidate only if no newer query was committed meanwhile.
// The previous in-flight lookup is canceled.
func (r *Resolver) Resolve(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, ErrEmptyQuery
	}

	r.loop.Lock()
	r.gen++
	gen := r.gen
	if r.cancel != nil {
		r.cancel()
	}
	lookupCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.loop.Unlock()
	defer cancel()

	coords, err := r.geocoder.Lookup(lookupCtx, query)

	r.loop.Lock()
	defer r.loop.Unlock()

	if gen != r.gen {
		zap.L().Debug("search: dropping stale answer", zap.String("query", query))
		return Result{}, ErrSuperseded
	}
	r.cancel = nil

	if err != nil {
		zap.L().Warn("search: lookup failed", zap.String("query", query), zap.Error(err))
		r.notices.Push(notice.NetworkFailure, "Search failed, please try again.")
		return Result{}, eris.Wrapf(ErrNetworkFailure, "query %q: %v", query, err)
	}
	if len(coords) == 0 {
		r.notices.Push(notice.NotFound, "Location not found")
		return Result{}, eris.Wrapf(ErrNotFound, "query %q", query)
	}

	// Only the first candidate is used. One the camera rejects is a bad
	// answer from the geocoder, not a missing place.
	res := Result{Query: query, Coordinate: coords[0], Candidates: len(coords)}
	if _, err := r.camera.MoveTo(res.Coordinate, ResultZoom); err != nil {
		zap.L().Warn("search: malformed candidate", zap.String("query", query), zap.Error(err))
		r.notices.Push(notice.NetworkFailure, "Search failed, please try again.")
		return Result{}, eris.Wrapf(ErrNetworkFailure, "query %q: %v", query, err)
	}
	r.last = &res
	zap.L().Info("search: resolved", zap.String("query", query),
		zap.Float64("lat", res.Coordinate.Lat), zap.Float64("lon", res.Coordinate.Lon))
	return res, nil
}

// Open reports whether the search affordance is shown.
func (r *Resolver) Open() bool { return r.open }

// SetOpen shows or hides the search affordance.
func (r *Resolver) SetOpen(open bool) { r.open = open }

// Last returns the last applied result.
func (r *Resolver) Last() (Result, bool) {
	if r.last == nil {
		return Result{}, false
	}
	return *r.last, true
}

// Close hides the affordance, forgets the last result and invalidates any
// in-flight lookup.
func (r *Resolver) Close() {
	r.open = false
	r.last = nil
	r.gen++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}
