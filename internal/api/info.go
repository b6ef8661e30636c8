package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	dataDir string
	cache   string
	locator string
}

// NewInfoHandler describes the running service. cache is the geocode cache
// backend and locator the geolocation mode.
func NewInfoHandler(dataDir, cache, locator string) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, cache: cache, locator: locator}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	DataDir  string   `json:"data_dir" doc:"Data directory path"`
	Cache    string   `json:"cache" doc:"Geocode cache backend" enum:"duckdb,memory,off"`
	Locator  string   `json:"locator" doc:"Geolocation mode" enum:"browser,static"`
	Features []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:     "plat-mapview",
		Version:  Version,
		DataDir:  h.dataDir,
		Cache:    h.cache,
		Locator:  h.locator,
		Features: []string{"layers", "draw", "search", "geolocation", "sse"},
	}}, nil
}
