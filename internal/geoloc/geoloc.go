// Package geoloc turns a one-shot device location request into map state:
// the user location, its marker and a camera move.
package geoloc

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-mapview/internal/engine"
	"github.com/joeblew999/plat-mapview/internal/notice"
)

const (
	// RecenterZoom is the zoom used when centering on the user.
	RecenterZoom = 14
	// MarkerLabel labels the user location marker.
	MarkerLabel = "You are here"
)

var (
	ErrPermissionDenied = eris.New("geoloc: permission denied")
	ErrUnavailable      = eris.New("geoloc: location unavailable")
)

// Provider yields the device location once per call.
type Provider interface {
	Locate(ctx context.Context) (engine.Coordinate, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (engine.Coordinate, error)

func (f ProviderFunc) Locate(ctx context.Context) (engine.Coordinate, error) { return f(ctx) }

// Mover is the camera operation the bridge drives.
type Mover interface {
	MoveTo(center engine.Coordinate, zoom int) (bool, error)
}

// Notifier surfaces user-visible notices.
type Notifier interface {
	Push(kind notice.Kind, msg string) notice.Notice
}

// Bridge owns the user location. loop serialises it with the rest of the
// map; every method except Request expects the caller to hold loop.
type Bridge struct {
	loop     sync.Locker
	provider Provider
	engine   engine.Handle
	camera   Mover
	notices  Notifier

	gen      uint64
	location *engine.Coordinate
	markerID string
}

// NewBridge creates a bridge.
func NewBridge(loop sync.Locker, p Provider, h engine.Handle, camera Mover, notices Notifier) *Bridge {
	return &Bridge{loop: loop, provider: p, engine: h, camera: camera, notices: notices}
}

// Request asks the provider for the current position. On success the
// location and marker are replaced and the camera recenters. On failure the
// previous location stays and exactly one notice is raised. There is no retry.
func (b *Bridge) Request(ctx context.Context) (engine.Coordinate, error) {
	b.loop.Lock()
	b.gen++
	gen := b.gen
	b.loop.Unlock()

	at, err := b.provider.Locate(ctx)
	if err == nil {
		err = at.Validate()
	}

	b.loop.Lock()
	defer b.loop.Unlock()

	if gen != b.gen {
		return engine.Coordinate{}, eris.Wrap(ErrUnavailable, "request superseded")
	}

	if err != nil {
		zap.L().Warn("geoloc: request failed", zap.Error(err))
		if eris.Is(err, ErrPermissionDenied) {
			b.notices.Push(notice.PermissionDenied, "Unable to retrieve your location.")
			return engine.Coordinate{}, err
		}
		b.notices.Push(notice.Unavailable, "Geolocation not supported")
		if !eris.Is(err, ErrUnavailable) {
			err = eris.Wrapf(ErrUnavailable, "%v", err)
		}
		return engine.Coordinate{}, err
	}

	b.removeMarker()
	b.location = &at
	b.markerID = b.engine.AddMarker(at, MarkerLabel)
	if _, err := b.camera.MoveTo(at, RecenterZoom); err != nil {
		zap.L().Warn("geoloc: recenter failed", zap.Error(err))
	}
	zap.L().Info("geoloc: located", zap.Float64("lat", at.Lat), zap.Float64("lon", at.Lon))
	return at, nil
}

// Location returns the last known user location.
func (b *Bridge) Location() (engine.Coordinate, bool) {
	if b.location == nil {
		return engine.Coordinate{}, false
	}
	return *b.location, true
}

// Reset discards the location and its marker and ignores any in-flight request.
func (b *Bridge) Reset() {
	b.gen++
	b.removeMarker()
	b.location = nil
}

func (b *Bridge) removeMarker() {
	if b.markerID != "" {
		b.engine.RemoveShape(b.markerID)
		b.markerID = ""
	}
}
