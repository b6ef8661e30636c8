package api

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-mapview/internal/humastar"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/catalog>; rel="catalog"`,
		`</api/v1/map>; rel="map"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/map>; rel="map"`,
	},
	"/api/v1/catalog": {
		`</api/v1/map>; rel="map"`,
	},
	"/api/v1/map": {
		`</api/v1/catalog>; rel="catalog"`,
		`</api/v1/map/annotations>; rel="annotations"`,
		`</api/v1/notices>; rel="notices"`,
		`</api/v1/session>; rel="session"`,
	},
	"/api/v1/map/base": {
		`</api/v1/map>; rel="up"`,
	},
	"/api/v1/map/overlays/{id}": {
		`</api/v1/map>; rel="up"`,
		`</api/v1/catalog>; rel="catalog"`,
	},
	"/api/v1/map/annotations": {
		`</api/v1/map>; rel="up"`,
	},
	"/api/v1/map/search": {
		`</api/v1/map>; rel="up"`,
		`</api/v1/notices>; rel="notices"`,
	},
	"/api/v1/map/locate": {
		`</api/v1/map>; rel="up"`,
		`</api/v1/notices>; rel="notices"`,
	},
	"/api/v1/map/clear": {
		`</api/v1/map>; rel="up"`,
	},
	"/api/v1/notices": {
		`</api/v1/map>; rel="map"`,
	},
	"/api/v1/notices/{id}": {
		`</api/v1/notices>; rel="collection"`,
	},
	"/api/v1/geocode/cache": {
		`</api/v1/map/search>; rel="search"`,
	},
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link headers.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range links[op.Path] {
			ctx.AppendHeader("Link", link)
		}

		// Item endpoints get a self link
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		// Pagination links from response body.
		if p, ok := v.(humastar.Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}

		// State-dependent action links from response body.
		if a, ok := v.(humastar.Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}

		return v, nil
	}
}
