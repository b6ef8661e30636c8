package selection

import (
	"go.uber.org/zap"

	"github.com/joeblew999/plat-mapview/internal/catalog"
	"github.com/joeblew999/plat-mapview/internal/engine"
)

// baseZIndex keeps the base layer below every overlay.
const baseZIndex = 0

// Renderer applies plans to an engine. It only tracks the engine layers it
// added itself, keyed by descriptor.
type Renderer struct {
	engine  engine.Handle
	applied map[string]string // layer key -> engine layer id
}

// NewRenderer creates a renderer bound to one engine.
func NewRenderer(h engine.Handle) *Renderer {
	return &Renderer{engine: h, applied: map[string]string{}}
}

func baseKey(id string) string    { return "base/" + id }
func overlayKey(id string) string { return "overlay/" + id }

// Apply brings the engine's tile layers in line with p. Layers already shown
// are left alone, so applying the same plan twice makes no engine calls.
func (r *Renderer) Apply(p Plan) {
	want := map[string]catalog.LayerDescriptor{baseKey(p.Base.ID): p.Base}
	for _, d := range p.Overlays {
		want[overlayKey(d.ID)] = d
	}

	for key, layerID := range r.applied {
		if _, keep := want[key]; keep {
			continue
		}
		r.engine.RemoveLayer(layerID)
		delete(r.applied, key)
		zap.L().Debug("selection: removed layer", zap.String("key", key))
	}

	r.add(baseKey(p.Base.ID), p.Base, 1, baseZIndex)
	for _, d := range p.Overlays {
		r.add(overlayKey(d.ID), d, catalog.DefaultOverlayOpacity, catalog.DefaultOverlayZIndex)
	}
}

func (r *Renderer) add(key string, d catalog.LayerDescriptor, opacity float64, zIndex int) {
	if _, ok := r.applied[key]; ok {
		return
	}
	r.applied[key] = r.engine.AddTileLayer(d.URLTemplate, d.Attribution, d.Opacity(opacity), d.ZIndex(zIndex))
	zap.L().Debug("selection: added layer", zap.String("key", key))
}

// Reset removes every layer this renderer added. The map calls it on unmount.
func (r *Renderer) Reset() {
	for key, layerID := range r.applied {
		r.engine.RemoveLayer(layerID)
		delete(r.applied, key)
	}
}

