// Package draw implements the draw/edit session: it toggles the engine's
// editing controls and reduces shape events into an annotation collection.
//
// The collection is never patched from event payloads. Every event triggers
// a full re-read of the engine's registry, so missed, duplicated or
// out-of-order events cannot make the session drift from what is drawn.
package draw

import (
	"bytes"
	"sync"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-mapview/internal/engine"
)

// State is the session mode.
type State int

const (
	Disabled State = iota
	Enabled
)

func (s State) String() string {
	if s == Enabled {
		return "enabled"
	}
	return "disabled"
}

// Observer receives every published collection. It must not modify it.
type Observer func(*geojson.FeatureCollection)

// Session is the draw/edit state machine for one engine.
type Session struct {
	mu          sync.Mutex
	engine      engine.Handle
	opts        engine.EditOptions
	state       State
	unsubscribe func()
	gen         uint64 // bumped on every clear
	last        *geojson.FeatureCollection
	observers   []Observer
}

// New creates a disabled session.
func New(h engine.Handle, opts engine.EditOptions) *Session {
	return &Session{
		engine: h,
		opts:   opts,
		last:   geojson.NewFeatureCollection(),
	}
}

// OnChange registers an observer.
func (s *Session) OnChange(fn Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// State returns the current mode.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Enabled reports whether editing controls are attached.
func (s *Session) Enabled() bool {
	return s.State() == Enabled
}

// Collection returns the last published collection.
func (s *Session) Collection() *geojson.FeatureCollection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Toggle flips between Disabled and Enabled and returns the new state.
func (s *Session) Toggle() (State, error) {
	if s.Enabled() {
		s.Disable()
		return Disabled, nil
	}
	if err := s.Enable(); err != nil {
		return Disabled, err
	}
	return Enabled, nil
}

// Enable attaches the editing controls and starts listening for shape
// events. On attach failure the session stays disabled.
func (s *Session) Enable() error {
	s.mu.Lock()
	if s.state == Enabled {
		s.mu.Unlock()
		return nil
	}
	if err := s.engine.EnableEditingControls(s.opts); err != nil {
		s.mu.Unlock()
		return eris.Wrap(err, "draw: enable")
	}
	s.unsubscribe = s.engine.Subscribe(s.handle)
	s.state = Enabled
	s.mu.Unlock()

	zap.L().Info("draw: enabled")
	s.refresh()
	return nil
}

// Disable detaches the controls and stops listening. Drawn shapes stay on
// the map and in the collection.
func (s *Session) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Disabled {
		return
	}
	s.detachLocked()
	zap.L().Info("draw: disabled")
}

// Clear removes every editable shape from the engine, detaches the controls
// and resets the collection. Non-editable shapes such as markers are kept.
// Calling Clear with nothing to clear is a no-op.
func (s *Session) Clear() {
	s.mu.Lock()
	if s.state == Enabled {
		s.detachLocked()
	}
	removed := 0
	for _, shape := range s.engine.EnumerateManagedShapes() {
		if !engine.IsEditable(shape) {
			continue
		}
		if s.engine.RemoveShape(shape.ShapeID()) {
			removed++
		}
	}
	s.gen++
	hadFeatures := len(s.last.Features) > 0
	s.last = geojson.NewFeatureCollection()
	fc := s.last
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	if removed > 0 || hadFeatures {
		zap.L().Info("draw: cleared", zap.Int("removed", removed))
		notify(observers, fc)
	}
}

// Close tears the session down on unmount.
func (s *Session) Close() {
	s.Clear()
	s.mu.Lock()
	s.observers = nil
	s.mu.Unlock()
}

func (s *Session) detachLocked() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.engine.DisableEditingControls()
	s.state = Disabled
}

func (s *Session) handle(ev engine.Event) {
	zap.L().Debug("draw: event", zap.String("kind", string(ev.Kind)), zap.String("shape", ev.ShapeID))
	s.mu.Lock()
	enabled := s.state == Enabled
	gen := s.gen
	s.mu.Unlock()
	if !enabled {
		return
	}
	s.publish(gen, s.snapshot(), false)
}

// refresh re-reads the engine and publishes only when the collection changed.
func (s *Session) refresh() {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	s.publish(gen, s.snapshot(), true)
}

// publish stores fc unless the session was cleared after the snapshot was
// taken at generation gen. A snapshot racing a Disable is still engine
// truth: gestures are refused once the controls are detached.
func (s *Session) publish(gen uint64, fc *geojson.FeatureCollection, onlyIfChanged bool) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		zap.L().Debug("draw: dropped stale collection")
		return
	}
	if onlyIfChanged && equal(s.last, fc) {
		s.mu.Unlock()
		return
	}
	s.last = fc
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()
	notify(observers, fc)
}

// snapshot builds the collection from the engine's live registry.
func (s *Session) snapshot() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, shape := range s.engine.EnumerateManagedShapes() {
		if !engine.IsEditable(shape) {
			continue
		}
		f, err := s.engine.ExportShapeAsGeometry(shape)
		if err != nil {
			zap.L().Warn("draw: export failed", zap.String("shape", shape.ShapeID()), zap.Error(err))
			continue
		}
		fc.Append(f)
	}
	return fc
}

func notify(observers []Observer, fc *geojson.FeatureCollection) {
	for _, fn := range observers {
		fn(fc)
	}
}

func equal(a, b *geojson.FeatureCollection) bool {
	ab, errA := a.MarshalJSON()
	bb, errB := b.MarshalJSON()
	return errA == nil && errB == nil && bytes.Equal(ab, bb)
}

// IDs returns the feature ids of a collection in order.
func IDs(fc *geojson.FeatureCollection) []string {
	out := make([]string, 0, len(fc.Features))
	for _, f := range fc.Features {
		if id, ok := f.ID.(string); ok {
			out = append(out, id)
		}
	}
	return out
}
