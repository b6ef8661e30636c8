// Package mapview composes the layer selection, draw session, camera,
// geolocation and search into one map controller.
//
// A single mutex plays the role of a UI event loop: every mutation runs
// under it. Search and geolocation release it while they wait on the
// network or the browser and re-check that their request is still current
// before applying anything.
package mapview

import (
	"context"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-mapview/internal/camera"
	"github.com/joeblew999/plat-mapview/internal/catalog"
	"github.com/joeblew999/plat-mapview/internal/draw"
	"github.com/joeblew999/plat-mapview/internal/engine"
	"github.com/joeblew999/plat-mapview/internal/geoloc"
	"github.com/joeblew999/plat-mapview/internal/notice"
	"github.com/joeblew999/plat-mapview/internal/search"
	"github.com/joeblew999/plat-mapview/internal/selection"
)

// GreetingLabel labels the marker shown to logged-in users.
const GreetingLabel = "Hello there logged in user!"

// GreetingAt is where the greeting marker is placed.
var GreetingAt = engine.Coordinate{Lat: 51.505, Lon: -0.09}

var ErrLoggedOut = eris.New("mapview: map tools require a logged-in session")

// Options configures a Map.
type Options struct {
	Catalog  *catalog.Catalog
	Engine   engine.Handle
	Geocoder search.Geocoder
	Locator  geoloc.Provider
	Notices  *notice.Board

	BaseLayer string
	LoggedIn  bool
	Edit      engine.EditOptions
	Camera    []camera.Option
}

// Map is the map controller for one viewer.
type Map struct {
	mu sync.Mutex

	catalog   *catalog.Catalog
	engine    engine.Handle
	selection *selection.State
	renderer  *selection.Renderer
	session   *draw.Session
	camera    *camera.Controller
	locator   *geoloc.Bridge
	search    *search.Resolver
	notices   *notice.Board

	loggedIn   bool
	altLayer   bool
	greetingID string

	obsMu     sync.Mutex
	observers []draw.Observer
	listeners []func()
}

// New builds a map and renders its initial layers.
func New(opts Options) (*Map, error) {
	if opts.Catalog == nil {
		return nil, eris.New("mapview: catalog is required")
	}
	if opts.Engine == nil {
		return nil, eris.New("mapview: engine is required")
	}
	if opts.Notices == nil {
		opts.Notices = notice.NewBoard()
	}
	if opts.Edit.Draw == nil {
		opts.Edit = engine.DefaultEditOptions()
	}
	base := opts.BaseLayer
	if base == "" {
		base = opts.Catalog.DefaultBaseID()
	}

	m := &Map{
		catalog:   opts.Catalog,
		engine:    opts.Engine,
		selection: selection.New(base),
		renderer:  selection.NewRenderer(opts.Engine),
		session:   draw.New(opts.Engine, opts.Edit),
		camera:    camera.New(opts.Engine, opts.Camera...),
		notices:   opts.Notices,
	}
	if opts.Geocoder != nil {
		m.search = search.New(&m.mu, opts.Geocoder, m.camera, m.notices)
	}
	if opts.Locator != nil {
		m.locator = geoloc.NewBridge(&m.mu, opts.Locator, opts.Engine, m.camera, m.notices)
	}
	m.session.OnChange(m.forward)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.renderLocked()
	if opts.LoggedIn {
		m.setLoggedInLocked(true)
	}
	return m, nil
}

// Notices returns the notice board.
func (m *Map) Notices() *notice.Board { return m.notices }

// Catalog returns the layer catalog.
func (m *Map) Catalog() *catalog.Catalog { return m.catalog }

// OnAnnotations registers an observer for every new annotation collection.
// Observers run synchronously and must not call back into the Map.
func (m *Map) OnAnnotations(fn draw.Observer) {
	m.obsMu.Lock()
	m.observers = append(m.observers, fn)
	m.obsMu.Unlock()
}

// OnStateChange registers a listener called after every state change.
// Listeners may run with the map locked and must not block.
func (m *Map) OnStateChange(fn func()) {
	m.obsMu.Lock()
	m.listeners = append(m.listeners, fn)
	m.obsMu.Unlock()
}

func (m *Map) forward(fc *geojson.FeatureCollection) {
	m.obsMu.Lock()
	obs := append([]draw.Observer(nil), m.observers...)
	m.obsMu.Unlock()
	for _, fn := range obs {
		fn(fc)
	}
	m.changed()
}

func (m *Map) changed() {
	m.obsMu.Lock()
	listeners := append([]func(){}, m.listeners...)
	m.obsMu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// SetLoggedIn flips the session flag. Logging out hides the tools: drawing
// is disabled (shapes stay), search closes and the greeting marker goes.
func (m *Map) SetLoggedIn(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLoggedInLocked(on)
}

func (m *Map) setLoggedInLocked(on bool) {
	if m.loggedIn == on {
		return
	}
	m.loggedIn = on
	if on {
		m.greetingID = m.engine.AddMarker(GreetingAt, GreetingLabel)
		zap.L().Info("mapview: logged in")
		m.changed()
		return
	}
	if m.greetingID != "" {
		m.engine.RemoveShape(m.greetingID)
		m.greetingID = ""
	}
	m.session.Disable()
	if m.search != nil {
		m.search.SetOpen(false)
	}
	zap.L().Info("mapview: logged out")
	m.changed()
}

func (m *Map) requireLoggedInLocked() error {
	if !m.loggedIn {
		return ErrLoggedOut
	}
	return nil
}

// SetActiveBase selects the base layer. Unknown ids render the first
// catalog entry.
func (m *Map) SetActiveBase(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireLoggedInLocked(); err != nil {
		return err
	}
	m.selection.SetActiveBase(id)
	m.renderLocked()
	m.changed()
	return nil
}

// SetOverlayEnabled toggles one overlay.
func (m *Map) SetOverlayEnabled(id string, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireLoggedInLocked(); err != nil {
		return err
	}
	m.selection.SetOverlayEnabled(id, on)
	m.renderLocked()
	m.changed()
	return nil
}

// SetAltLayer records the external alternate-layer flag. Raising it forces
// the satellite base; lowering it leaves the base alone.
func (m *Map) SetAltLayer(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.altLayer = on
	m.selection.ApplyAltLayer(on)
	m.renderLocked()
	m.changed()
}

func (m *Map) renderLocked() {
	m.renderer.Apply(m.selection.Resolve(m.catalog))
}

// ToggleDraw flips the draw session. An attach failure raises a notice and
// leaves drawing disabled.
func (m *Map) ToggleDraw() (draw.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireLoggedInLocked(); err != nil {
		return m.session.State(), err
	}
	state, err := m.session.Toggle()
	if err != nil {
		m.notices.Push(notice.AttachFailure, "Drawing tools could not be started.")
		return state, err
	}
	m.changed()
	return state, nil
}

// ToggleSearch shows or hides the search box and returns the new state.
func (m *Map) ToggleSearch() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireLoggedInLocked(); err != nil {
		return false, err
	}
	if m.search == nil {
		return false, eris.New("mapview: search is not configured")
	}
	open := !m.search.Open()
	m.search.SetOpen(open)
	m.changed()
	return open, nil
}

// Search resolves query and moves the camera to the first match. A blank
// query is ignored and returns search.ErrEmptyQuery without a notice.
func (m *Map) Search(ctx context.Context, query string) (search.Result, error) {
	m.mu.Lock()
	err := m.requireLoggedInLocked()
	if err == nil && m.search == nil {
		err = eris.New("mapview: search is not configured")
	}
	m.mu.Unlock()
	if err != nil {
		return search.Result{}, err
	}
	res, err := m.search.Resolve(ctx, query)
	if err == nil {
		m.changed()
	}
	return res, err
}

// Locate asks for the device location and recenters on it.
func (m *Map) Locate(ctx context.Context) (engine.Coordinate, error) {
	m.mu.Lock()
	err := m.requireLoggedInLocked()
	if err == nil && m.locator == nil {
		err = eris.New("mapview: geolocation is not configured")
	}
	m.mu.Unlock()
	if err != nil {
		return engine.Coordinate{}, err
	}
	at, err := m.locator.Request(ctx)
	if err == nil {
		m.changed()
	}
	return at, err
}

// ClearAll returns the map to a neutral state: overlays off, drawn shapes
// removed, drawing disabled, user location discarded, search closed and
// the camera target forgotten. The base layer is kept.
func (m *Map) ClearAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireLoggedInLocked(); err != nil {
		return err
	}

	m.selection.ClearOverlays()
	m.renderLocked()
	m.session.Clear()
	if m.locator != nil {
		m.locator.Reset()
	}
	if m.search != nil {
		m.search.Close()
	}
	m.camera.Reset()

	zap.L().Info("mapview: cleared")
	m.changed()
	return nil
}

// ShapeEvent is a drawing gesture reported by the browser.
type ShapeEvent struct {
	Kind     engine.EventKind
	ShapeID  string
	Tool     string
	Geometry orb.Geometry
}

// ApplyShapeEvent mirrors a browser drawing gesture into the engine. It
// returns the id of the affected shape. The gesture runs under the map lock
// so it cannot interleave with ClearAll or a draw toggle.
func (m *Map) ApplyShapeEvent(ev ShapeEvent) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireLoggedInLocked(); err != nil {
		return "", err
	}

	mirror, ok := m.engine.(interface {
		CreateShape(id, tool string, g orb.Geometry) (string, error)
		EditShape(id string, g orb.Geometry) error
		DeleteShape(id string) error
	})
	if !ok {
		return "", eris.New("mapview: engine does not accept browser gestures")
	}

	switch ev.Kind {
	case engine.ShapeCreated:
		return mirror.CreateShape(ev.ShapeID, ev.Tool, ev.Geometry)
	case engine.ShapeEdited:
		return ev.ShapeID, mirror.EditShape(ev.ShapeID, ev.Geometry)
	case engine.ShapeRemoved:
		return ev.ShapeID, mirror.DeleteShape(ev.ShapeID)
	default:
		return "", eris.Errorf("mapview: unknown shape event %q", ev.Kind)
	}
}

// Annotations returns the current annotation collection.
func (m *Map) Annotations() *geojson.FeatureCollection {
	return m.session.Collection()
}

// View is a read-only snapshot of the map state.
type View struct {
	LoggedIn         bool               `json:"loggedIn" doc:"Whether map tools are available"`
	ActiveBase       string             `json:"activeBase" doc:"Selected base layer id"`
	RenderedBase     string             `json:"renderedBase" doc:"Base layer actually shown after fallback"`
	Overlays         []string           `json:"overlays" doc:"Enabled overlay ids"`
	RenderedOverlays []string           `json:"renderedOverlays" doc:"Overlay ids actually shown, bottom to top"`
	AltLayer         bool               `json:"altLayer" doc:"Alternate layer flag"`
	Draw             string             `json:"draw" doc:"Draw session state" enum:"enabled,disabled"`
	SearchOpen       bool               `json:"searchOpen" doc:"Whether the search box is shown"`
	LastSearch       *search.Result     `json:"lastSearch,omitempty" doc:"Last applied search"`
	Location         *engine.Coordinate `json:"location,omitempty" doc:"Last known user location"`
	Camera           *camera.Target     `json:"camera,omitempty" doc:"Last requested camera target"`
	Annotations      int                `json:"annotations" doc:"Number of drawn shapes"`
}

// Snapshot returns the current view.
func (m *Map) Snapshot() View {
	m.mu.Lock()
	defer m.mu.Unlock()

	plan := m.selection.Resolve(m.catalog)
	v := View{
		LoggedIn:     m.loggedIn,
		ActiveBase:   m.selection.ActiveBaseID,
		RenderedBase: plan.Base.ID,
		Overlays:     m.selection.OverlayIDs(),
		AltLayer:     m.altLayer,
		Draw:         m.session.State().String(),
		Annotations:  len(m.session.Collection().Features),
	}
	if v.Overlays == nil {
		v.Overlays = []string{}
	}
	v.RenderedOverlays = make([]string, 0, len(plan.Overlays))
	for _, d := range plan.Overlays {
		v.RenderedOverlays = append(v.RenderedOverlays, d.ID)
	}
	if m.search != nil {
		v.SearchOpen = m.search.Open()
		if r, ok := m.search.Last(); ok {
			v.LastSearch = &r
		}
	}
	if m.locator != nil {
		if at, ok := m.locator.Location(); ok {
			v.Location = &at
		}
	}
	if t, ok := m.camera.Target(); ok {
		v.Camera = &t
	}
	return v
}

// Close tears the map down on unmount: the draw session is detached and
// the tile layers this map added are removed from the engine.
func (m *Map) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Close()
	m.renderer.Reset()
}
