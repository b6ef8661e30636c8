// Package selection holds which base layer is active and which overlays are
// enabled, and renders that choice onto an engine.
package selection

import (
	"maps"
	"slices"

	"github.com/joeblew999/plat-mapview/internal/catalog"
)

// State is the declarative layer choice. It is pure data; validation against
// the catalog happens only when a [Plan] is resolved.
type State struct {
	ActiveBaseID    string          `json:"activeBaseId" doc:"Selected base layer" example:"streets-osm"`
	EnabledOverlays map[string]bool `json:"enabledOverlays" doc:"Enabled overlay ids"`
}

// New returns a state with the given base selected and no overlays.
func New(baseID string) *State {
	return &State{ActiveBaseID: baseID, EnabledOverlays: map[string]bool{}}
}

// SetActiveBase replaces the active base id unconditionally.
func (s *State) SetActiveBase(id string) {
	s.ActiveBaseID = id
}

// SetOverlayEnabled merges one overlay toggle. Unknown ids are kept but never
// rendered. Disabling removes the key so a toggle round-trip is exact.
func (s *State) SetOverlayEnabled(id string, on bool) {
	if s.EnabledOverlays == nil {
		s.EnabledOverlays = map[string]bool{}
	}
	if on {
		s.EnabledOverlays[id] = true
		return
	}
	delete(s.EnabledOverlays, id)
}

// ApplyAltLayer forces the satellite base when flag is true. A false flag
// leaves the selection as it is; the prior base is not restored.
func (s *State) ApplyAltLayer(flag bool) {
	if flag {
		s.ActiveBaseID = catalog.SatelliteID
	}
}

// ClearOverlays disables every overlay.
func (s *State) ClearOverlays() {
	s.EnabledOverlays = map[string]bool{}
}

// OverlayIDs returns the enabled overlay ids, sorted.
func (s *State) OverlayIDs() []string {
	return slices.Sorted(maps.Keys(s.EnabledOverlays))
}

// Plan is what the engine should show for a state.
type Plan struct {
	Base     catalog.LayerDescriptor   `json:"base"`
	Overlays []catalog.LayerDescriptor `json:"overlays"`
}

// Resolve maps the state onto the catalog. The base falls back to the first
// catalog entry; overlays missing from the catalog or not renderable are
// skipped. Overlays are ordered by z-index, then id.
func (s *State) Resolve(c *catalog.Catalog) Plan {
	p := Plan{Base: c.ResolveBase(s.ActiveBaseID)}
	for _, id := range s.OverlayIDs() {
		d, ok := c.OverlayByID(id)
		if !ok || !d.Renderable() {
			continue
		}
		p.Overlays = append(p.Overlays, d)
	}
	slices.SortStableFunc(p.Overlays, func(a, b catalog.LayerDescriptor) int {
		return a.ZIndex(catalog.DefaultOverlayZIndex) - b.ZIndex(catalog.DefaultOverlayZIndex)
	})
	return p
}
