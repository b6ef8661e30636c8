// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-mapview/internal/catalog"
	"github.com/joeblew999/plat-mapview/internal/engine"
	"github.com/joeblew999/plat-mapview/internal/geoloc"
	"github.com/joeblew999/plat-mapview/internal/humastar"
	"github.com/joeblew999/plat-mapview/internal/mapview"
	"github.com/joeblew999/plat-mapview/internal/notice"
	"github.com/joeblew999/plat-mapview/internal/search"
)

// Version is reported by the health and info endpoints.
const Version = "0.1.0"

// Types

type IDInput struct {
	ID string `path:"id" doc:"Overlay layer ID" example:"hillshade-esri"`
}

type MapOutput struct {
	Body MapBody
}

// MapBody is the map view plus the actions valid in its current state.
type MapBody struct {
	mapview.View
}

// Actions advertises the transitions the current view allows.
func (b MapBody) Actions() []humastar.Action {
	if !b.LoggedIn {
		return []humastar.Action{
			{Rel: "login", Href: "/api/v1/session", Method: "PUT", Title: "Log in to use the map tools"},
		}
	}
	drawTitle := "Start drawing"
	if b.Draw == "enabled" {
		drawTitle = "Stop drawing"
	}
	return []humastar.Action{
		{Rel: "draw", Href: "/api/v1/map/draw/toggle", Method: "POST", Title: drawTitle},
		{Rel: "search", Href: "/api/v1/map/search", Method: "POST", Title: "Find a place"},
		{Rel: "locate", Href: "/api/v1/map/locate", Method: "POST", Title: "Center on me"},
		{Rel: "clear", Href: "/api/v1/map/clear", Method: "POST", Title: "Clear the map"},
		{Rel: "logout", Href: "/api/v1/session", Method: "PUT", Title: "Log out"},
	}
}

func (h *MapHandler) view() *MapOutput {
	return &MapOutput{Body: MapBody{View: h.m.Snapshot()}}
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"0.1.0"`
}

type CatalogBody struct {
	Base     []catalog.LayerDescriptor `json:"base" doc:"Selectable base layers"`
	Overlays []catalog.LayerDescriptor `json:"overlays" doc:"Selectable overlay layers"`
}

type BaseBody struct {
	ID string `json:"id" doc:"Base layer ID; unknown ids fall back to the first base layer" example:"toner"`
}

type EnabledBody struct {
	Enabled bool `json:"enabled" doc:"Whether the flag is on"`
}

type DrawBody struct {
	State string `json:"state" enum:"enabled,disabled" doc:"Draw session state after the toggle"`
}

type SearchBody struct {
	Query string `json:"query" minLength:"1" doc:"Free-text place query" example:"London"`
}

type SessionBody struct {
	LoggedIn bool `json:"loggedIn" doc:"Whether the user is logged in"`
}

// MapHandler serves the REST view of the map controller. Methods named
// Register* are auto-discovered by huma.AutoRegister.
type MapHandler struct {
	m *mapview.Map
}

func NewMapHandler(m *mapview.Map) *MapHandler {
	return &MapHandler{m: m}
}

// RegisterHealth registers health check routes.
func (h *MapHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterCatalog registers the layer catalog route.
func (h *MapHandler) RegisterCatalog(api huma.API) {
	huma.Get(api, "/api/v1/catalog", h.GetCatalog, huma.OperationTags("catalog"))
}

// RegisterMap registers the map state routes.
func (h *MapHandler) RegisterMap(api huma.API) {
	tags := huma.OperationTags("map")
	huma.Get(api, "/api/v1/map", h.GetMap, tags)
	huma.Put(api, "/api/v1/map/base", h.PutBase, tags)
	huma.Put(api, "/api/v1/map/overlays/{id}", h.PutOverlay, tags)
	huma.Put(api, "/api/v1/map/alt-layer", h.PutAltLayer, tags)
	huma.Post(api, "/api/v1/map/draw/toggle", h.ToggleDraw, tags)
	huma.Get(api, "/api/v1/map/annotations", h.GetAnnotations, tags)
	huma.Post(api, "/api/v1/map/search", h.Search, tags)
	huma.Post(api, "/api/v1/map/locate", h.Locate, tags)
	huma.Post(api, "/api/v1/map/clear", h.Clear, tags)
}

// RegisterSession registers the login flag route.
func (h *MapHandler) RegisterSession(api huma.API) {
	huma.Put(api, "/api/v1/session", h.PutSession, huma.OperationTags("session"))
}

// RegisterNotices registers notice routes.
func (h *MapHandler) RegisterNotices(api huma.API) {
	huma.Get(api, "/api/v1/notices", h.GetNotices, huma.OperationTags("notices"))
	huma.Delete(api, "/api/v1/notices/{id}", h.DeleteNotice, huma.OperationTags("notices"))
}

// Handlers

func (h *MapHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

func (h *MapHandler) GetCatalog(ctx context.Context, input *struct{}) (*struct{ Body CatalogBody }, error) {
	cat := h.m.Catalog()
	return &struct{ Body CatalogBody }{Body: CatalogBody{Base: cat.Base(), Overlays: cat.Overlays()}}, nil
}

func (h *MapHandler) GetMap(ctx context.Context, input *struct{}) (*MapOutput, error) {
	return h.view(), nil
}

func (h *MapHandler) PutBase(ctx context.Context, input *struct{ Body BaseBody }) (*MapOutput, error) {
	if err := h.m.SetActiveBase(input.Body.ID); err != nil {
		return nil, toHTTP(err)
	}
	return h.view(), nil
}

func (h *MapHandler) PutOverlay(ctx context.Context, input *struct {
	IDInput
	Body EnabledBody
}) (*MapOutput, error) {
	if err := h.m.SetOverlayEnabled(input.ID, input.Body.Enabled); err != nil {
		return nil, toHTTP(err)
	}
	return h.view(), nil
}

func (h *MapHandler) PutAltLayer(ctx context.Context, input *struct{ Body EnabledBody }) (*MapOutput, error) {
	h.m.SetAltLayer(input.Body.Enabled)
	return h.view(), nil
}

func (h *MapHandler) ToggleDraw(ctx context.Context, input *struct{}) (*struct{ Body DrawBody }, error) {
	state, err := h.m.ToggleDraw()
	if err != nil {
		return nil, toHTTP(err)
	}
	return &struct{ Body DrawBody }{Body: DrawBody{State: state.String()}}, nil
}

func (h *MapHandler) GetAnnotations(ctx context.Context, input *struct{}) (*struct{ Body *geojson.FeatureCollection }, error) {
	return &struct{ Body *geojson.FeatureCollection }{Body: h.m.Annotations()}, nil
}

func (h *MapHandler) Search(ctx context.Context, input *struct{ Body SearchBody }) (*struct{ Body search.Result }, error) {
	res, err := h.m.Search(ctx, input.Body.Query)
	if err != nil {
		return nil, toHTTP(err)
	}
	return &struct{ Body search.Result }{Body: res}, nil
}

func (h *MapHandler) Locate(ctx context.Context, input *struct{}) (*struct{ Body engine.Coordinate }, error) {
	at, err := h.m.Locate(ctx)
	if err != nil {
		return nil, toHTTP(err)
	}
	return &struct{ Body engine.Coordinate }{Body: at}, nil
}

func (h *MapHandler) Clear(ctx context.Context, input *struct{}) (*MapOutput, error) {
	if err := h.m.ClearAll(); err != nil {
		return nil, toHTTP(err)
	}
	return h.view(), nil
}

func (h *MapHandler) PutSession(ctx context.Context, input *struct{ Body SessionBody }) (*MapOutput, error) {
	h.m.SetLoggedIn(input.Body.LoggedIn)
	return h.view(), nil
}

type NoticesInput struct {
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Items to skip"`
	Limit  int `query:"limit" minimum:"1" maximum:"100" default:"20" doc:"Page size"`
}

func (h *MapHandler) GetNotices(ctx context.Context, input *NoticesInput) (*struct {
	Body humastar.PageBody[notice.Notice]
}, error) {
	page := humastar.Page(h.m.Notices().List(), input.Offset, input.Limit)
	return &struct {
		Body humastar.PageBody[notice.Notice]
	}{Body: page}, nil
}

func (h *MapHandler) DeleteNotice(ctx context.Context, input *struct {
	ID string `path:"id" doc:"Notice ID"`
}) (*struct{ Body MessageBody }, error) {
	if !h.m.Notices().Dismiss(input.ID) {
		return nil, huma.Error404NotFound("notice not found")
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Notice dismissed"}}, nil
}

// toHTTP maps controller errors to status codes. The notice raised for a
// failed lookup stays on the board; the response carries the same cause.
func toHTTP(err error) error {
	switch {
	case errors.Is(err, mapview.ErrLoggedOut):
		return huma.Error403Forbidden(err.Error())
	case errors.Is(err, search.ErrEmptyQuery):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, search.ErrNotFound):
		return huma.Error404NotFound("Location not found")
	case errors.Is(err, search.ErrSuperseded):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, search.ErrNetworkFailure):
		return huma.Error502BadGateway(err.Error())
	case errors.Is(err, geoloc.ErrPermissionDenied):
		return huma.Error403Forbidden(err.Error())
	case errors.Is(err, geoloc.ErrUnavailable):
		return huma.Error503ServiceUnavailable(err.Error())
	case errors.Is(err, engine.ErrAttachFailed):
		return huma.Error500InternalServerError(err.Error())
	default:
		return huma.Error500InternalServerError("map operation failed", err)
	}
}
