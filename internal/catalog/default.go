package catalog

const stadiaAttribution = `&copy; <a href="https://stadiamaps.com/">Stadia Maps</a> &copy; <a href="https://stamen.com/">Stamen</a> &copy; <a href="https://openmaptiles.org/">OpenMapTiles</a> &copy; <a href="https://www.openstreetmap.org/copyright">OSM</a>`

func ptr[T any](v T) *T { return &v }

// DefaultBase is the built-in base layer list.
var DefaultBase = []LayerDescriptor{
	{
		ID:          "streets-osm",
		Name:        "Streets (OSM)",
		Kind:        KindTile,
		URLTemplate: "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
		Attribution: "&copy; OpenStreetMap contributors",
	},
	{
		ID:          SatelliteID,
		Name:        "Satellite (ESRI)",
		Kind:        KindTile,
		URLTemplate: "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
		Attribution: "Tiles &copy; Esri",
	},
	{
		ID:          "toner-lite",
		Name:        "Toner Lite (Stadia/Stamen)",
		Kind:        KindTile,
		URLTemplate: "https://tiles.stadiamaps.com/tiles/stamen_toner_lite/{z}/{x}/{y}{r}.png",
		Attribution: stadiaAttribution,
	},
	{
		ID:          "toner",
		Name:        "Toner (Stadia/Stamen)",
		Kind:        KindTile,
		URLTemplate: "https://tiles.stadiamaps.com/tiles/stamen_toner/{z}/{x}/{y}{r}.png",
		Attribution: stadiaAttribution,
	},
	{
		ID:          "topo-opentopo",
		Name:        "Topographic (OpenTopoMap)",
		Kind:        KindTile,
		URLTemplate: "https://{s}.tile.opentopomap.org/{z}/{x}/{y}.png",
		Attribution: "&copy; OpenTopoMap",
	},
}

// DefaultOverlays is the built-in overlay list.
var DefaultOverlays = []LayerDescriptor{
	{
		ID:             "hillshade-esri",
		Name:           "Hillshade (ESRI)",
		Kind:           KindTile,
		URLTemplate:    "https://services.arcgisonline.com/arcgis/rest/services/Elevation/World_Hillshade/MapServer/tile/{z}/{y}/{x}",
		Attribution:    "Hillshade &copy; Esri",
		DefaultOpacity: ptr(0.7),
		DefaultZIndex:  ptr(450),
	},
	{
		ID:             "terrain-lines-stadia",
		Name:           "Terrain Lines (Stadia/Stamen)",
		Kind:           KindTile,
		URLTemplate:    "https://tiles.stadiamaps.com/tiles/stamen_terrain_lines/{z}/{x}/{y}{r}.png",
		Attribution:    "&copy; Stadia Maps &copy; Stamen",
		DefaultOpacity: ptr(0.6),
		DefaultZIndex:  ptr(460),
	},
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(DefaultBase, DefaultOverlays)
	if err != nil {
		panic(err)
	}
	return c
}
