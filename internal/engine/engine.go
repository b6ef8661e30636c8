// Package engine defines the contract between the map controller and the
// stateful rendering engine that owns the layer stack, the editing tools and
// the shape registry.
//
// The controller never keeps its own trusted copy of what is drawn: every read
// goes through [Handle.EnumerateManagedShapes]. [Memory] is an in-process
// engine that mirrors the browser renderer and forwards imperative calls as
// [Command] values on a [CommandBus].
package engine

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
)

var (
	// ErrAttachFailed is returned when editing controls cannot be attached.
	ErrAttachFailed = eris.New("engine: editing controls could not be attached")
	// ErrNotEditable is returned when a shape has no geometry export capability.
	ErrNotEditable = eris.New("engine: shape is not editable")
	// ErrUnknownShape is returned when a shape id does not resolve.
	ErrUnknownShape = eris.New("engine: unknown shape")
	// ErrEditingDisabled is returned when a draw gesture arrives without controls attached.
	ErrEditingDisabled = eris.New("engine: editing controls are not attached")
)

// EventKind identifies an engine-raised shape event.
type EventKind string

const (
	ShapeCreated EventKind = "created"
	ShapeEdited  EventKind = "edited"
	ShapeRemoved EventKind = "removed"
)

// Event is raised by the engine when the user draws, edits or removes a shape.
// The payload is only a hint; consumers re-derive state from the registry.
type Event struct {
	Kind    EventKind `json:"kind"`
	ShapeID string    `json:"shapeId"`
}

// EditOptions configures the editing toolbar.
type EditOptions struct {
	Draw   []string `json:"draw" doc:"Enabled draw tools" example:"polygon"`
	Edit   bool     `json:"edit" doc:"Allow vertex editing"`
	Remove bool     `json:"remove" doc:"Allow shape removal"`
}

// DefaultEditOptions enables every draw tool with edit and remove.
func DefaultEditOptions() EditOptions {
	return EditOptions{
		Draw:   []string{"marker", "polyline", "polygon", "rectangle"},
		Edit:   true,
		Remove: true,
	}
}

// Shape is anything held in the engine's shape registry.
type Shape interface {
	ShapeID() string
}

// EditMeta is the editing metadata the engine attaches to user-drawn shapes.
type EditMeta struct {
	Tool     string    `json:"tool"`
	Revision int       `json:"revision"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
}

// Editable is the capability that marks a shape as managed by the editing
// tools. Static markers share the registry but do not implement it.
type Editable interface {
	Shape
	Geometry() orb.Geometry
	EditMeta() EditMeta
}

// Viewport is the camera position last requested from the engine.
type Viewport struct {
	Center Coordinate `json:"center"`
	Zoom   int        `json:"zoom"`
}

// Handle is the imperative API of one map instance.
type Handle interface {
	AddTileLayer(urlTemplate, attribution string, opacity float64, zIndex int) string
	RemoveLayer(id string)
	MoveTo(center Coordinate, zoom int, duration time.Duration)
	EnableEditingControls(opts EditOptions) error
	DisableEditingControls()
	Subscribe(fn func(Event)) (unsubscribe func())
	EnumerateManagedShapes() []Shape
	ExportShapeAsGeometry(s Shape) (*geojson.Feature, error)
	RemoveShape(id string) bool
	AddMarker(at Coordinate, label string) string
}

// IsEditable reports whether s carries the editing capability.
func IsEditable(s Shape) bool {
	_, ok := s.(Editable)
	return ok
}

// Export converts an editable shape to a GeoJSON feature keyed by shape id.
func Export(s Shape) (*geojson.Feature, error) {
	e, ok := s.(Editable)
	if !ok {
		return nil, eris.Wrapf(ErrNotEditable, "shape %q", s.ShapeID())
	}
	g := e.Geometry()
	if g == nil {
		return nil, eris.Wrapf(ErrNotEditable, "shape %q has no geometry", s.ShapeID())
	}
	f := geojson.NewFeature(orb.Clone(g))
	f.ID = e.ShapeID()
	meta := e.EditMeta()
	f.Properties["tool"] = meta.Tool
	f.Properties["revision"] = meta.Revision
	return f, nil
}
