package geoloc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-mapview/internal/camera"
	"github.com/joeblew999/plat-mapview/internal/engine"
	"github.com/joeblew999/plat-mapview/internal/notice"
)

type fixture struct {
	eng    *engine.Memory
	board  *notice.Board
	bridge *Bridge
	loop   *sync.Mutex
}

func newFixture(p Provider) *fixture {
	eng := engine.NewMemory(engine.Viewport{Center: engine.Coordinate{Lat: 51.505, Lon: -0.09}, Zoom: 13})
	board := notice.NewBoard()
	loop := &sync.Mutex{}
	return &fixture{
		eng:    eng,
		board:  board,
		loop:   loop,
		bridge: NewBridge(loop, p, eng, camera.New(eng), board),
	}
}

func markers(eng *engine.Memory) []*engine.Marker {
	var out []*engine.Marker
	for _, s := range eng.EnumerateManagedShapes() {
		if m, ok := s.(*engine.Marker); ok {
			out = append(out, m)
		}
	}
	return out
}

func TestRequestSuccess(t *testing.T) {
	at := engine.Coordinate{Lat: 48.8566, Lon: 2.3522}
	f := newFixture(StaticProvider{At: at})

	got, err := f.bridge.Request(context.Background())
	require.NoError(t, err)
	assert.Equal(t, at, got)

	loc, ok := f.bridge.Location()
	require.True(t, ok)
	assert.Equal(t, at, loc)

	vp := f.eng.Viewport()
	assert.Equal(t, at, vp.Center)
	assert.Equal(t, RecenterZoom, vp.Zoom)

	ms := markers(f.eng)
	require.Len(t, ms, 1)
	assert.Equal(t, MarkerLabel, ms[0].Label)
	assert.Empty(t, f.board.List())
}

func TestRequestReplacesMarker(t *testing.T) {
	n := 0
	f := newFixture(ProviderFunc(func(context.Context) (engine.Coordinate, error) {
		n++
		return engine.Coordinate{Lat: float64(n), Lon: float64(n)}, nil
	}))

	_, err := f.bridge.Request(context.Background())
	require.NoError(t, err)
	_, err = f.bridge.Request(context.Background())
	require.NoError(t, err)

	ms := markers(f.eng)
	require.Len(t, ms, 1)
	assert.Equal(t, engine.Coordinate{Lat: 2, Lon: 2}, ms[0].At)
}

func TestRequestDeniedKeepsLocation(t *testing.T) {
	first := engine.Coordinate{Lat: 10, Lon: 10}
	var deny bool
	f := newFixture(ProviderFunc(func(context.Context) (engine.Coordinate, error) {
		if deny {
			return engine.Coordinate{}, ErrPermissionDenied
		}
		return first, nil
	}))

	_, err := f.bridge.Request(context.Background())
	require.NoError(t, err)

	deny = true
	_, err = f.bridge.Request(context.Background())
	assert.True(t, errors.Is(err, ErrPermissionDenied))

	loc, ok := f.bridge.Location()
	require.True(t, ok)
	assert.Equal(t, first, loc)

	notices := f.board.List()
	require.Len(t, notices, 1)
	assert.Equal(t, notice.PermissionDenied, notices[0].Kind)
}

func TestRequestUnavailable(t *testing.T) {
	f := newFixture(ProviderFunc(func(context.Context) (engine.Coordinate, error) {
		return engine.Coordinate{}, errors.New("no gps")
	}))

	_, err := f.bridge.Request(context.Background())
	assert.True(t, errors.Is(err, ErrUnavailable))
	_, ok := f.bridge.Location()
	assert.False(t, ok)
	require.Len(t, f.board.List(), 1)
	assert.Equal(t, notice.Unavailable, f.board.List()[0].Kind)
	assert.Empty(t, markers(f.eng))
}

func TestRequestRejectsInvalidCoordinate(t *testing.T) {
	f := newFixture(StaticProvider{At: engine.Coordinate{Lat: 120, Lon: 0}})
	_, err := f.bridge.Request(context.Background())
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Len(t, f.board.List(), 1)
}

func TestResetRemovesMarker(t *testing.T) {
	f := newFixture(StaticProvider{At: engine.Coordinate{Lat: 1, Lon: 1}})
	_, err := f.bridge.Request(context.Background())
	require.NoError(t, err)

	f.loop.Lock()
	f.bridge.Reset()
	f.loop.Unlock()

	_, ok := f.bridge.Location()
	assert.False(t, ok)
	assert.Empty(t, markers(f.eng))
}

func TestReportedProvider(t *testing.T) {
	triggered := 0
	p := NewReportedProvider(func() { triggered++ })
	f := newFixture(p)

	done := make(chan error, 1)
	go func() {
		_, err := f.bridge.Request(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return p.Pending() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, p.ReportPosition(engine.Coordinate{Lat: 51.5, Lon: -0.09}))
	require.NoError(t, <-done)
	assert.Equal(t, 1, triggered)

	loc, ok := f.bridge.Location()
	require.True(t, ok)
	assert.Equal(t, 51.5, loc.Lat)
}

func TestReportedProviderErrors(t *testing.T) {
	p := NewReportedProvider(nil)

	errs := make(chan error, 1)
	go func() {
		_, err := p.Locate(context.Background())
		errs <- err
	}()
	require.Eventually(t, func() bool { return p.Pending() == 1 }, time.Second, time.Millisecond)
	p.ReportError(CodePermissionDenied, "User denied Geolocation")
	assert.True(t, errors.Is(<-errs, ErrPermissionDenied))

	go func() {
		_, err := p.Locate(context.Background())
		errs <- err
	}()
	require.Eventually(t, func() bool { return p.Pending() == 1 }, time.Second, time.Millisecond)
	p.ReportError(CodeTimeout, "Timeout expired")
	assert.True(t, errors.Is(<-errs, ErrUnavailable))

	assert.Equal(t, 0, p.ReportPosition(engine.Coordinate{}), "no waiters")
}

func TestReportedProviderContextCanceled(t *testing.T) {
	p := NewReportedProvider(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Locate(ctx)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Equal(t, 0, p.Pending())
}
