package engine

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// TileLayer is a tile layer held by the engine.
type TileLayer struct {
	ID          string  `json:"id"`
	URLTemplate string  `json:"url"`
	Attribution string  `json:"attribution"`
	Opacity     float64 `json:"opacity"`
	ZIndex      int     `json:"zIndex"`
}

type drawnShape struct {
	id   string
	geom orb.Geometry
	meta EditMeta
}

func (s *drawnShape) ShapeID() string        { return s.id }
func (s *drawnShape) Geometry() orb.Geometry { return s.geom }
func (s *drawnShape) EditMeta() EditMeta     { return s.meta }

// Marker is a static, non-editable shape.
type Marker struct {
	ID    string     `json:"id"`
	At    Coordinate `json:"at"`
	Label string     `json:"label"`
}

func (m *Marker) ShapeID() string { return m.ID }

var _ Handle = (*Memory)(nil)

// Memory is an in-process engine. Editable shapes and markers share one
// registry, as they do in the browser renderer.
type Memory struct {
	mu       sync.RWMutex
	layers   map[string]TileLayer
	shapes   map[string]Shape
	order    []string
	subs     map[uint64]func(Event)
	nextSub  uint64
	editing  bool
	editOpts EditOptions
	viewport Viewport
	closed   bool
	now      func() time.Time
	bus      *CommandBus
}

// NewMemory creates an engine centered on the given initial viewport.
func NewMemory(initial Viewport) *Memory {
	return &Memory{
		layers:   make(map[string]TileLayer),
		shapes:   make(map[string]Shape),
		subs:     make(map[uint64]func(Event)),
		viewport: initial,
		now:      time.Now,
		bus:      NewCommandBus(),
	}
}

// Commands returns the bus carrying every imperative call.
func (m *Memory) Commands() *CommandBus {
	return m.bus
}

// Close detaches the engine from its page. Later attach attempts fail.
func (m *Memory) Close() {
	m.mu.Lock()
	m.closed = true
	m.editing = false
	m.subs = make(map[uint64]func(Event))
	m.mu.Unlock()
}

func (m *Memory) AddTileLayer(urlTemplate, attribution string, opacity float64, zIndex int) string {
	l := TileLayer{
		ID:          uuid.NewString(),
		URLTemplate: urlTemplate,
		Attribution: attribution,
		Opacity:     opacity,
		ZIndex:      zIndex,
	}
	m.mu.Lock()
	m.layers[l.ID] = l
	m.mu.Unlock()

	m.bus.Publish(Command{Op: "addLayer", ID: l.ID, URL: urlTemplate, Attrib: attribution, Opacity: opacity, ZIndex: zIndex})
	return l.ID
}

func (m *Memory) RemoveLayer(id string) {
	m.mu.Lock()
	_, ok := m.layers[id]
	delete(m.layers, id)
	m.mu.Unlock()

	if ok {
		m.bus.Publish(Command{Op: "removeLayer", ID: id})
	}
}

// Layers returns the tile layers in z-index order.
func (m *Memory) Layers() []TileLayer {
	m.mu.RLock()
	out := make([]TileLayer, 0, len(m.layers))
	for _, l := range m.layers {
		out = append(out, l)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b TileLayer) int {
		if a.ZIndex != b.ZIndex {
			return a.ZIndex - b.ZIndex
		}
		if a.URLTemplate < b.URLTemplate {
			return -1
		}
		if a.URLTemplate > b.URLTemplate {
			return 1
		}
		return 0
	})
	return out
}

func (m *Memory) MoveTo(center Coordinate, zoom int, duration time.Duration) {
	m.mu.Lock()
	m.viewport = Viewport{Center: center, Zoom: zoom}
	m.mu.Unlock()

	c := center
	m.bus.Publish(Command{Op: "moveTo", Center: &c, Zoom: zoom, Duration: duration.Seconds()})
}

// Viewport returns the final camera position of the last transition.
func (m *Memory) Viewport() Viewport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viewport
}

func (m *Memory) EnableEditingControls(opts EditOptions) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return eris.Wrap(ErrAttachFailed, "engine closed")
	}
	m.editing = true
	m.editOpts = opts
	m.mu.Unlock()

	o := opts
	m.bus.Publish(Command{Op: "enableEditing", Options: &o})
	return nil
}

func (m *Memory) DisableEditingControls() {
	m.mu.Lock()
	was := m.editing
	m.editing = false
	m.mu.Unlock()

	if was {
		m.bus.Publish(Command{Op: "disableEditing"})
	}
}

// Editing reports whether editing controls are attached.
func (m *Memory) Editing() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.editing
}

func (m *Memory) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Subscribers returns the number of registered event listeners.
func (m *Memory) Subscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

func (m *Memory) EnumerateManagedShapes() []Shape {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Shape, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.shapes[id])
	}
	return out
}

func (m *Memory) ExportShapeAsGeometry(s Shape) (*geojson.Feature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Export(s)
}

func (m *Memory) RemoveShape(id string) bool {
	m.mu.Lock()
	ok := m.deleteLocked(id)
	m.mu.Unlock()

	if ok {
		m.bus.Publish(Command{Op: "removeShape", ID: id})
	}
	return ok
}

func (m *Memory) AddMarker(at Coordinate, label string) string {
	mk := &Marker{ID: uuid.NewString(), At: at, Label: label}
	m.mu.Lock()
	m.insertLocked(mk)
	m.mu.Unlock()

	c := at
	m.bus.Publish(Command{Op: "addMarker", ID: mk.ID, Center: &c, Label: label})
	return mk.ID
}

// CreateShape records a user draw gesture and raises ShapeCreated.
// An empty id is replaced by a generated one.
func (m *Memory) CreateShape(id, tool string, g orb.Geometry) (string, error) {
	if g == nil {
		return "", eris.New("engine: nil geometry")
	}
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	if !m.editing {
		m.mu.Unlock()
		return "", ErrEditingDisabled
	}
	if _, exists := m.shapes[id]; exists {
		m.mu.Unlock()
		return "", eris.Errorf("engine: shape %q already exists", id)
	}
	now := m.now()
	m.insertLocked(&drawnShape{
		id:   id,
		geom: orb.Clone(g),
		meta: EditMeta{Tool: tool, Revision: 1, Created: now, Updated: now},
	})
	m.mu.Unlock()

	m.Emit(Event{Kind: ShapeCreated, ShapeID: id})
	return id, nil
}

// EditShape replaces the geometry of an editable shape in place and raises
// ShapeEdited. The identity is kept. Edits are refused while the editing
// controls are detached.
func (m *Memory) EditShape(id string, g orb.Geometry) error {
	if g == nil {
		return eris.New("engine: nil geometry")
	}

	m.mu.Lock()
	if !m.editing {
		m.mu.Unlock()
		return ErrEditingDisabled
	}
	s, ok := m.shapes[id]
	if !ok {
		m.mu.Unlock()
		return eris.Wrapf(ErrUnknownShape, "shape %q", id)
	}
	ds, ok := s.(*drawnShape)
	if !ok {
		m.mu.Unlock()
		return eris.Wrapf(ErrNotEditable, "shape %q", id)
	}
	ds.geom = orb.Clone(g)
	ds.meta.Revision++
	ds.meta.Updated = m.now()
	m.mu.Unlock()

	m.Emit(Event{Kind: ShapeEdited, ShapeID: id})
	return nil
}

// DeleteShape removes an editable shape on a user gesture and raises
// ShapeRemoved. It is refused while the editing controls are detached.
func (m *Memory) DeleteShape(id string) error {
	m.mu.Lock()
	if !m.editing {
		m.mu.Unlock()
		return ErrEditingDisabled
	}
	s, ok := m.shapes[id]
	if !ok {
		m.mu.Unlock()
		return eris.Wrapf(ErrUnknownShape, "shape %q", id)
	}
	if !IsEditable(s) {
		m.mu.Unlock()
		return eris.Wrapf(ErrNotEditable, "shape %q", id)
	}
	m.deleteLocked(id)
	m.mu.Unlock()

	m.Emit(Event{Kind: ShapeRemoved, ShapeID: id})
	return nil
}

// Replay returns the commands that rebuild the current engine state on a
// freshly loaded page: layers bottom to top, shapes and markers in drawing
// order, the editing toolbar and the viewport.
func (m *Memory) Replay() []Command {
	layers := m.Layers()

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Command, 0, len(layers)+len(m.order)+2)
	for _, l := range layers {
		out = append(out, Command{Op: "addLayer", ID: l.ID, URL: l.URLTemplate, Attrib: l.Attribution, Opacity: l.Opacity, ZIndex: l.ZIndex})
	}
	for _, id := range m.order {
		switch s := m.shapes[id].(type) {
		case *Marker:
			c := s.At
			out = append(out, Command{Op: "addMarker", ID: s.ID, Center: &c, Label: s.Label})
		default:
			f, err := Export(s)
			if err != nil {
				continue
			}
			out = append(out, Command{Op: "addShape", ID: id, Feature: f})
		}
	}
	if m.editing {
		o := m.editOpts
		out = append(out, Command{Op: "enableEditing", Options: &o})
	}
	c := m.viewport.Center
	out = append(out, Command{Op: "moveTo", Center: &c, Zoom: m.viewport.Zoom})
	return out
}

// RequestLocation asks the page to run its geolocation prompt.
func (m *Memory) RequestLocation() {
	m.bus.Publish(Command{Op: "locate"})
}

// Emit delivers an event to every subscriber outside the registry lock so
// listeners may query the engine.
func (m *Memory) Emit(ev Event) {
	m.mu.RLock()
	ids := make([]uint64, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.subs[id])
	}
	m.mu.RUnlock()

	zap.L().Debug("engine: event", zap.String("kind", string(ev.Kind)), zap.String("shape", ev.ShapeID), zap.Int("listeners", len(fns)))
	for _, fn := range fns {
		fn(ev)
	}
}

func (m *Memory) insertLocked(s Shape) {
	m.shapes[s.ShapeID()] = s
	m.order = append(m.order, s.ShapeID())
}

func (m *Memory) deleteLocked(id string) bool {
	if _, ok := m.shapes[id]; !ok {
		return false
	}
	delete(m.shapes, id)
	m.order = slices.DeleteFunc(m.order, func(x string) bool { return x == id })
	return true
}
