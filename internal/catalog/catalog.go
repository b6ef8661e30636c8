// Package catalog is the static registry of base-layer and overlay descriptors.
package catalog

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Kind tags how a layer is fetched and drawn.
type Kind string

const (
	KindTile    Kind = "tile"
	KindGeoJSON Kind = "geojson" // reserved, never rendered
)

// SatelliteID is the base layer forced by the alternate-layer flag.
const SatelliteID = "sat-esri"

// Overlay defaults used when a descriptor leaves opacity or z-index unset.
const (
	DefaultOverlayOpacity = 1.0
	DefaultOverlayZIndex  = 500
)

var (
	ErrEmptyBase      = eris.New("catalog: no base layers")
	ErrDuplicateID    = eris.New("catalog: duplicate layer id")
	ErrMissingID      = eris.New("catalog: layer id is required")
	ErrMissingURL     = eris.New("catalog: tile layer requires a url template")
	ErrInvalidOpacity = eris.New("catalog: opacity must be within [0,1]")
	ErrUnknownKind    = eris.New("catalog: unknown layer kind")
)

// LayerDescriptor describes one selectable layer.
type LayerDescriptor struct {
	ID             string   `json:"id" yaml:"id" doc:"Unique layer identifier" example:"streets-osm"`
	Name           string   `json:"name" yaml:"name" doc:"Display name" example:"Streets (OSM)"`
	Kind           Kind     `json:"kind" yaml:"kind" enum:"tile,geojson" doc:"Layer kind" example:"tile"`
	URLTemplate    string   `json:"url" yaml:"url" doc:"Tile URL template" example:"https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"`
	Attribution    string   `json:"attribution" yaml:"attribution" doc:"Attribution HTML"`
	DefaultOpacity *float64 `json:"opacity,omitempty" yaml:"opacity,omitempty" minimum:"0" maximum:"1" doc:"Default opacity (0-1)"`
	DefaultZIndex  *int     `json:"zIndex,omitempty" yaml:"zIndex,omitempty" doc:"Default stacking order"`
}

// Opacity returns the descriptor opacity or the fallback when unset.
func (d LayerDescriptor) Opacity(fallback float64) float64 {
	if d.DefaultOpacity == nil {
		return fallback
	}
	return *d.DefaultOpacity
}

// ZIndex returns the descriptor z-index or the fallback when unset.
func (d LayerDescriptor) ZIndex(fallback int) int {
	if d.DefaultZIndex == nil {
		return fallback
	}
	return *d.DefaultZIndex
}

// Renderable reports whether the engine can draw the layer.
func (d LayerDescriptor) Renderable() bool {
	return d.Kind == KindTile
}

func (d LayerDescriptor) validate() error {
	if d.ID == "" {
		return ErrMissingID
	}
	switch d.Kind {
	case KindTile:
		if d.URLTemplate == "" {
			return eris.Wrapf(ErrMissingURL, "layer %q", d.ID)
		}
	case KindGeoJSON:
	default:
		return eris.Wrapf(ErrUnknownKind, "layer %q kind %q", d.ID, d.Kind)
	}
	if d.DefaultOpacity != nil && (*d.DefaultOpacity < 0 || *d.DefaultOpacity > 1) {
		return eris.Wrapf(ErrInvalidOpacity, "layer %q opacity %v", d.ID, *d.DefaultOpacity)
	}
	return nil
}

// file is the on-disk catalog layout.
type file struct {
	Base     []LayerDescriptor `yaml:"base"`
	Overlays []LayerDescriptor `yaml:"overlays"`
}

// Catalog is an immutable set of base and overlay descriptors.
type Catalog struct {
	base     []LayerDescriptor
	overlays []LayerDescriptor
	baseIdx  map[string]int
	ovIdx    map[string]int
}

// New validates and freezes a catalog. Inputs are copied.
func New(base, overlays []LayerDescriptor) (*Catalog, error) {
	if len(base) == 0 {
		return nil, ErrEmptyBase
	}
	c := &Catalog{
		base:     append([]LayerDescriptor(nil), base...),
		overlays: append([]LayerDescriptor(nil), overlays...),
		baseIdx:  make(map[string]int, len(base)),
		ovIdx:    make(map[string]int, len(overlays)),
	}
	if err := index(c.base, c.baseIdx); err != nil {
		return nil, eris.Wrap(err, "catalog: base")
	}
	if err := index(c.overlays, c.ovIdx); err != nil {
		return nil, eris.Wrap(err, "catalog: overlays")
	}
	return c, nil
}

func index(list []LayerDescriptor, idx map[string]int) error {
	for i, d := range list {
		if err := d.validate(); err != nil {
			return err
		}
		if _, dup := idx[d.ID]; dup {
			return eris.Wrapf(ErrDuplicateID, "layer %q", d.ID)
		}
		idx[d.ID] = i
	}
	return nil
}

// Load reads a YAML catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "catalog: parse yaml")
	}
	return New(f.Base, f.Overlays)
}

// Marshal encodes the catalog as YAML.
func (c *Catalog) Marshal() ([]byte, error) {
	return yaml.Marshal(file{Base: c.Base(), Overlays: c.Overlays()})
}

// Base returns a copy of the base descriptors in catalog order.
func (c *Catalog) Base() []LayerDescriptor {
	return append([]LayerDescriptor(nil), c.base...)
}

// Overlays returns a copy of the overlay descriptors in catalog order.
func (c *Catalog) Overlays() []LayerDescriptor {
	return append([]LayerDescriptor(nil), c.overlays...)
}

// BaseByID looks up a base descriptor.
func (c *Catalog) BaseByID(id string) (LayerDescriptor, bool) {
	i, ok := c.baseIdx[id]
	if !ok {
		return LayerDescriptor{}, false
	}
	return c.base[i], true
}

// OverlayByID looks up an overlay descriptor.
func (c *Catalog) OverlayByID(id string) (LayerDescriptor, bool) {
	i, ok := c.ovIdx[id]
	if !ok {
		return LayerDescriptor{}, false
	}
	return c.overlays[i], true
}

// ResolveBase returns the base descriptor for id, falling back to the first
// catalog entry when id is absent.
func (c *Catalog) ResolveBase(id string) LayerDescriptor {
	if d, ok := c.BaseByID(id); ok {
		return d
	}
	return c.base[0]
}

// DefaultBaseID is the id of the first base layer.
func (c *Catalog) DefaultBaseID() string {
	return c.base[0].ID
}
