package viewer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-mapview/internal/catalog"
	"github.com/joeblew999/plat-mapview/internal/engine"
	"github.com/joeblew999/plat-mapview/internal/geoloc"
	"github.com/joeblew999/plat-mapview/internal/mapview"
	"github.com/joeblew999/plat-mapview/internal/search"
	"github.com/joeblew999/plat-mapview/internal/templates"
)

type fixture struct {
	mux     *http.ServeMux
	m       *mapview.Map
	eng     *engine.Memory
	locator *geoloc.ReportedProvider
	h       *Handler
}

func newFixture(t *testing.T, loggedIn bool) *fixture {
	t.Helper()
	eng := engine.NewMemory(engine.Viewport{Center: mapview.GreetingAt, Zoom: 13})
	locator := geoloc.NewReportedProvider(eng.RequestLocation)
	m, err := mapview.New(mapview.Options{
		Catalog: catalog.Default(),
		Engine:  eng,
		Geocoder: search.GeocoderFunc(func(_ context.Context, q string) ([]engine.Coordinate, error) {
			if q == "London" {
				return []engine.Coordinate{{Lat: 51.5073, Lon: -0.1276}}, nil
			}
			return nil, nil
		}),
		Locator:  locator,
		LoggedIn: loggedIn,
	})
	require.NoError(t, err)

	r, err := templates.Default()
	require.NoError(t, err)

	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("viewer test", "1.0.0"))
	h := New(m, eng, locator, r, PageConfig{Title: "Map", Center: mapview.GreetingAt, Zoom: 13})
	h.RegisterRoutes(api)
	mux.HandleFunc("GET /{$}", h.ServePage)

	t.Cleanup(func() {
		m.Close()
		eng.Close()
	})
	return &fixture{mux: mux, m: m, eng: eng, locator: locator, h: h}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestServePage(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<title>Map</title>")
	assert.Contains(t, body, "/api/v1/viewer/stream")
	assert.Contains(t, body, "engine-command")
}

func TestStreamReplaysAndRendersControls(t *testing.T) {
	f := newFixture(t, true)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/viewer/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, "engine-command")
	assert.Contains(t, body, "addLayer")
	assert.Contains(t, body, "#toolbar")
	assert.Contains(t, body, "#layer-picker")
	assert.Contains(t, body, "Streets")
	assert.Equal(t, 0, f.h.hub.len(), "stream unsubscribes on close")
	assert.Equal(t, 0, f.eng.Commands().Len())
}

func TestActions(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(http.MethodPost, "/api/v1/viewer/base", `{"base":"toner"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "toner", f.m.Snapshot().ActiveBase)

	rec = f.do(http.MethodPost, "/api/v1/viewer/overlay", `{"overlay":"hillshade-esri","on":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"hillshade-esri"}, f.m.Snapshot().Overlays)

	rec = f.do(http.MethodPost, "/api/v1/viewer/overlay", `{"on":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.do(http.MethodPost, "/api/v1/viewer/draw", "")
	assert.Equal(t, "enabled", f.m.Snapshot().Draw)

	f.do(http.MethodPost, "/api/v1/viewer/search/toggle", "")
	assert.True(t, f.m.Snapshot().SearchOpen)

	rec = f.do(http.MethodPost, "/api/v1/viewer/search", `{"query":"London"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Showing London")

	rec = f.do(http.MethodPost, "/api/v1/viewer/search", `{"query":"Atlantis"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.m.Notices().List(), 1)
	assert.Equal(t, "Location not found", f.m.Notices().List()[0].Message)

	rec = f.do(http.MethodPost, "/api/v1/viewer/clear", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Map cleared")
	v := f.m.Snapshot()
	assert.Equal(t, "toner", v.ActiveBase)
	assert.Empty(t, v.Overlays)
	assert.Equal(t, "disabled", v.Draw)
	assert.False(t, v.SearchOpen)
}

func TestActionsLoggedOut(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(http.MethodPost, "/api/v1/viewer/draw", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Log in to use the map tools.")
	assert.Equal(t, "disabled", f.m.Snapshot().Draw)

	rec = f.do(http.MethodPost, "/api/v1/viewer/shapes", `{"kind":"removed","id":"x"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDismissNotice(t *testing.T) {
	f := newFixture(t, true)
	n := f.m.Notices().Push("info", "hello")

	rec := f.do(http.MethodDelete, "/api/v1/viewer/notices/"+n.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "notice-"+n.ID)
	assert.Empty(t, f.m.Notices().List())

	rec = f.do(http.MethodDelete, "/api/v1/viewer/notices/"+n.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportLocation(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(http.MethodPost, "/api/v1/viewer/location", `{"lat":1,"lon":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"delivered":0}`, bodyWithoutSchema(t, rec))

	rec = f.do(http.MethodPost, "/api/v1/viewer/location", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	done := make(chan engine.Coordinate, 1)
	go func() {
		at, err := f.m.Locate(context.Background())
		assert.NoError(t, err)
		done <- at
	}()
	require.Eventually(t, func() bool { return f.locator.Pending() == 1 }, time.Second, 5*time.Millisecond)

	rec = f.do(http.MethodPost, "/api/v1/viewer/location", `{"lat":48.8566,"lon":2.3522}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"delivered":1}`, bodyWithoutSchema(t, rec))

	select {
	case at := <-done:
		assert.Equal(t, engine.Coordinate{Lat: 48.8566, Lon: 2.3522}, at)
	case <-time.After(time.Second):
		t.Fatal("locate did not return")
	}
	require.NotNil(t, f.m.Snapshot().Location)
}

func TestReportLocationDenied(t *testing.T) {
	f := newFixture(t, true)

	done := make(chan error, 1)
	go func() {
		_, err := f.m.Locate(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return f.locator.Pending() == 1 }, time.Second, 5*time.Millisecond)

	rec := f.do(http.MethodPost, "/api/v1/viewer/location", `{"errorCode":1,"errorMessage":"User denied"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	err := <-done
	assert.ErrorIs(t, err, geoloc.ErrPermissionDenied)
	require.Len(t, f.m.Notices().List(), 1)
	assert.Equal(t, "Unable to retrieve your location.", f.m.Notices().List()[0].Message)
}

func TestReportShape(t *testing.T) {
	f := newFixture(t, true)
	polygon := `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`

	rec := f.do(http.MethodPost, "/api/v1/viewer/shapes", `{"kind":"created","id":"42","tool":"polygon","geometry":`+polygon+`}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "drawing is disabled")

	_, err := f.m.ToggleDraw()
	require.NoError(t, err)

	rec = f.do(http.MethodPost, "/api/v1/viewer/shapes", `{"kind":"created","id":"42","tool":"polygon","geometry":`+polygon+`}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, f.m.Snapshot().Annotations)

	rec = f.do(http.MethodPost, "/api/v1/viewer/shapes", `{"kind":"created","id":"43","tool":"polygon"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/viewer/shapes", `{"kind":"created","id":"43","geometry":{"type":"Blob"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/v1/viewer/shapes", `{"kind":"edited","id":"nope","geometry":`+polygon+`}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err = f.m.ToggleDraw()
	require.NoError(t, err)
	rec = f.do(http.MethodPost, "/api/v1/viewer/shapes", `{"kind":"removed","id":"42"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "drawing is disabled")
	assert.Equal(t, 1, f.m.Snapshot().Annotations)

	_, err = f.m.ToggleDraw()
	require.NoError(t, err)
	rec = f.do(http.MethodPost, "/api/v1/viewer/shapes", `{"kind":"removed","id":"42"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, f.m.Snapshot().Annotations)
}

func TestStateChangeTouchesStreams(t *testing.T) {
	f := newFixture(t, true)
	ch := f.h.hub.subscribe()
	defer f.h.hub.unsubscribe(ch)

	require.NoError(t, f.m.SetActiveBase("toner"))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no tick after state change")
	}

	f.m.Notices().Push("info", "x")
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no tick after notice")
	}
}

// bodyWithoutSchema drops the $schema link huma adds to JSON responses.
func bodyWithoutSchema(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	delete(m, "$schema")
	b, err := json.Marshal(m)
	require.NoError(t, err)
	return string(b)
}
