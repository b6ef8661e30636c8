// Package viewer contains the Datastar SSE handlers behind the map page.
//
// The page is a thin terminal. It renders what the stream tells it to and
// reports drawing gestures and geolocation results back; every decision is
// made by the map controller on the server.
package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-mapview/internal/engine"
	"github.com/joeblew999/plat-mapview/internal/geoloc"
	"github.com/joeblew999/plat-mapview/internal/humastar"
	"github.com/joeblew999/plat-mapview/internal/mapview"
	"github.com/joeblew999/plat-mapview/internal/notice"
	"github.com/joeblew999/plat-mapview/internal/search"
	"github.com/joeblew999/plat-mapview/internal/templates"
)

// LocateTimeout bounds how long a locate request waits for the browser.
const LocateTimeout = 30 * time.Second

// PageConfig describes the initial page view.
type PageConfig struct {
	Title  string
	Center engine.Coordinate
	Zoom   int
}

// Handler serves the viewer page and its SSE endpoints.
type Handler struct {
	humastar.Handler
	m       *mapview.Map
	engine  *engine.Memory
	locator *geoloc.ReportedProvider
	page    PageConfig
	hub     *hub
}

// New creates a viewer handler. locator may be nil when locations come from
// a fixed provider.
func New(m *mapview.Map, eng *engine.Memory, locator *geoloc.ReportedProvider, renderer *templates.Renderer, page PageConfig) *Handler {
	h := &Handler{
		Handler: humastar.Handler{Renderer: renderer},
		m:       m,
		engine:  eng,
		locator: locator,
		page:    page,
		hub:     newHub(),
	}
	m.OnStateChange(h.hub.touch)
	m.Notices().OnPush(func(notice.Notice) { h.hub.touch() })
	return h
}

func (h *Handler) RegisterRoutes(api huma.API) {
	tags := huma.OperationTags("viewer")
	huma.Get(api, "/api/v1/viewer/stream", h.Stream, tags)
	huma.Post(api, "/api/v1/viewer/base", h.SetBase, tags)
	huma.Post(api, "/api/v1/viewer/overlay", h.SetOverlay, tags)
	huma.Post(api, "/api/v1/viewer/draw", h.ToggleDraw, tags)
	huma.Post(api, "/api/v1/viewer/search/toggle", h.ToggleSearch, tags)
	huma.Post(api, "/api/v1/viewer/search", h.Search, tags)
	huma.Post(api, "/api/v1/viewer/locate", h.Locate, tags)
	huma.Post(api, "/api/v1/viewer/clear", h.Clear, tags)
	huma.Delete(api, "/api/v1/viewer/notices/{id}", h.DismissNotice, tags)
	huma.Post(api, "/api/v1/viewer/location", h.ReportLocation, tags)
	huma.Post(api, "/api/v1/viewer/shapes", h.ReportShape, tags)
}

// ---------------------------------------------------------------------------
// Page
// ---------------------------------------------------------------------------

type pageData struct {
	Title        string
	Center       engine.Coordinate
	Zoom         int
	Signals      string
	CommandEvent string
}

// initialSignals seeds every signal the page binds or posts.
var initialSignals = map[string]any{
	"base": "", "overlay": "", "on": false, "query": "", "error": "", "success": "",
}

// ServePage renders the map page.
func (h *Handler) ServePage(w http.ResponseWriter, r *http.Request) {
	signals, _ := json.Marshal(initialSignals)
	html := h.Render("viewer-page", pageData{
		Title:        h.page.Title,
		Center:       h.page.Center,
		Zoom:         h.page.Zoom,
		Signals:      string(signals),
		CommandEvent: humastar.CommandEvent,
	})
	if html == "" {
		http.Error(w, "viewer unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}

// ---------------------------------------------------------------------------
// Stream
// ---------------------------------------------------------------------------

// Stream replays the engine state, then forwards every engine command and
// re-renders the controls whenever the map state changes.
func (h *Handler) Stream(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Handler.Stream(func(sse humastar.SSE) {
		cmds := h.engine.Commands().Subscribe()
		defer h.engine.Commands().Unsubscribe(cmds)
		dirty := h.hub.subscribe()
		defer h.hub.unsubscribe(dirty)

		for _, c := range h.engine.Replay() {
			if err := sse.Apply(c); err != nil {
				return
			}
		}
		h.pushState(sse)

		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-cmds:
				if !ok {
					return
				}
				if err := sse.Apply(c); err != nil {
					zap.L().Debug("viewer: stream closed", zap.Error(err))
					return
				}
			case <-dirty:
				h.pushState(sse)
			}
		}
	}), nil
}

type layerOption struct {
	ID       string
	Name     string
	Selected bool
}

type pickerData struct {
	Enabled  bool
	Bases    []layerOption
	Overlays []layerOption
}

func (h *Handler) picker(v mapview.View) pickerData {
	cat := h.m.Catalog()
	p := pickerData{Enabled: v.LoggedIn}
	for _, d := range cat.Base() {
		p.Bases = append(p.Bases, layerOption{ID: d.ID, Name: d.Name, Selected: d.ID == v.RenderedBase})
	}
	enabled := map[string]bool{}
	for _, id := range v.Overlays {
		enabled[id] = true
	}
	p.Overlays = []layerOption{}
	for _, d := range cat.Overlays() {
		p.Overlays = append(p.Overlays, layerOption{ID: d.ID, Name: d.Name, Selected: enabled[d.ID]})
	}
	return p
}

func (h *Handler) pushState(sse humastar.SSE) {
	v := h.m.Snapshot()
	sse.Patch(h.Render("toolbar", v), "#toolbar")
	sse.Patch(h.Render("layer-picker", h.picker(v)), "#layer-picker")
	sse.Patch(h.Render("notice-list", h.m.Notices().List()), "#notices")
	sse.Signals(map[string]any{
		"loggedIn":   v.LoggedIn,
		"draw":       v.Draw,
		"searchOpen": v.SearchOpen,
		"base":       v.RenderedBase,
	})
}

// ---------------------------------------------------------------------------
// Actions
// ---------------------------------------------------------------------------

// respond turns an action result into signals. Failures that already raised
// a notice are reported through the notice list only.
func (h *Handler) respond(err error, success string) *huma.StreamResponse {
	return h.Handler.Stream(func(sse humastar.SSE) {
		switch {
		case err == nil:
			if success != "" {
				sse.Success(success)
			}
		case errors.Is(err, mapview.ErrLoggedOut):
			sse.Error("Log in to use the map tools.")
		case errors.Is(err, search.ErrEmptyQuery), errors.Is(err, search.ErrSuperseded):
		default:
			zap.L().Debug("viewer: action failed", zap.Error(err))
		}
	})
}

func (h *Handler) SetBase(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	return h.respond(h.m.SetActiveBase(signals.String("base")), ""), nil
}

func (h *Handler) SetOverlay(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	id := signals.String("overlay")
	if id == "" {
		return nil, huma.Error400BadRequest("overlay is required")
	}
	return h.respond(h.m.SetOverlayEnabled(id, signals.Bool("on")), ""), nil
}

func (h *Handler) ToggleDraw(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	_, err := h.m.ToggleDraw()
	return h.respond(err, ""), nil
}

func (h *Handler) ToggleSearch(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	_, err := h.m.ToggleSearch()
	return h.respond(err, ""), nil
}

func (h *Handler) Search(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	res, err := h.m.Search(ctx, signals.String("query"))
	if err != nil {
		return h.respond(err, ""), nil
	}
	return h.respond(nil, "Showing "+res.Query), nil
}

func (h *Handler) Locate(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, LocateTimeout)
	defer cancel()
	_, err := h.m.Locate(ctx)
	return h.respond(err, ""), nil
}

func (h *Handler) Clear(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.respond(h.m.ClearAll(), "Map cleared"), nil
}

type NoticeIDInput struct {
	ID string `path:"id" doc:"Notice ID"`
}

func (h *Handler) DismissNotice(ctx context.Context, input *NoticeIDInput) (*huma.StreamResponse, error) {
	if !h.m.Notices().Dismiss(input.ID) {
		return nil, huma.Error404NotFound("notice not found")
	}
	h.hub.touch()
	return h.Handler.Stream(func(sse humastar.SSE) {
		sse.RemoveElementByID("notice-" + input.ID)
	}), nil
}

// ---------------------------------------------------------------------------
// Browser reports
// ---------------------------------------------------------------------------

// LocationReport is the outcome of the browser geolocation prompt.
type LocationReport struct {
	Lat          *float64 `json:"lat,omitempty" doc:"Latitude on success"`
	Lon          *float64 `json:"lon,omitempty" doc:"Longitude on success"`
	ErrorCode    int      `json:"errorCode,omitempty" doc:"GeolocationPositionError code on failure" enum:"0,1,2,3"`
	ErrorMessage string   `json:"errorMessage,omitempty" doc:"Browser error message"`
}

type DeliveredBody struct {
	Delivered int `json:"delivered" doc:"Number of pending locate requests answered"`
}

func (h *Handler) ReportLocation(ctx context.Context, input *struct{ Body LocationReport }) (*struct{ Body DeliveredBody }, error) {
	if h.locator == nil {
		return nil, huma.Error409Conflict("locations are not taken from the browser")
	}
	r := input.Body
	var n int
	switch {
	case r.ErrorCode != 0:
		n = h.locator.ReportError(r.ErrorCode, r.ErrorMessage)
	case r.Lat != nil && r.Lon != nil:
		n = h.locator.ReportPosition(engine.Coordinate{Lat: *r.Lat, Lon: *r.Lon})
	default:
		return nil, huma.Error400BadRequest("either lat/lon or errorCode is required")
	}
	return &struct{ Body DeliveredBody }{Body: DeliveredBody{Delivered: n}}, nil
}

// ShapeReport is a drawing gesture made in the browser.
type ShapeReport struct {
	Kind     string          `json:"kind" enum:"created,edited,removed" doc:"Gesture kind"`
	ID       string          `json:"id,omitempty" doc:"Browser shape id"`
	Tool     string          `json:"tool,omitempty" doc:"Draw tool used" example:"polygon"`
	Geometry json.RawMessage `json:"geometry,omitempty" doc:"GeoJSON geometry, absent for removals"`
}

type ShapeBody struct {
	ID string `json:"id" doc:"Shape id"`
}

func (h *Handler) ReportShape(ctx context.Context, input *struct{ Body ShapeReport }) (*struct{ Body ShapeBody }, error) {
	r := input.Body
	ev := mapview.ShapeEvent{Kind: engine.EventKind(r.Kind), ShapeID: r.ID, Tool: r.Tool}
	if ev.Kind != engine.ShapeRemoved {
		if len(r.Geometry) == 0 || string(r.Geometry) == "null" {
			return nil, huma.Error400BadRequest("geometry is required")
		}
		g, err := geojson.UnmarshalGeometry(r.Geometry)
		if err != nil {
			return nil, huma.Error400BadRequest("invalid geometry: " + err.Error())
		}
		ev.Geometry = g.Geometry()
	}

	id, err := h.m.ApplyShapeEvent(ev)
	switch {
	case err == nil:
		return &struct{ Body ShapeBody }{Body: ShapeBody{ID: id}}, nil
	case errors.Is(err, mapview.ErrLoggedOut):
		return nil, huma.Error403Forbidden(err.Error())
	case errors.Is(err, engine.ErrUnknownShape):
		return nil, huma.Error404NotFound(err.Error())
	case errors.Is(err, engine.ErrEditingDisabled), errors.Is(err, engine.ErrNotEditable):
		return nil, huma.Error409Conflict(err.Error())
	default:
		return nil, huma.Error400BadRequest(err.Error())
	}
}
