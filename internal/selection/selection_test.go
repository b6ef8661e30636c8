package selection

import (
	"maps"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-mapview/internal/catalog"
	"github.com/joeblew999/plat-mapview/internal/engine"
)

func TestSetActiveBaseResolves(t *testing.T) {
	c := catalog.Default()
	s := New(c.DefaultBaseID())
	for _, d := range c.Base() {
		s.SetActiveBase(d.ID)
		assert.Equal(t, d.ID, s.Resolve(c).Base.ID)
	}

	s.SetActiveBase("not-in-catalog")
	assert.Equal(t, "not-in-catalog", s.ActiveBaseID, "no validation at call time")
	assert.Equal(t, c.DefaultBaseID(), s.Resolve(c).Base.ID)
}

func TestAltLayerDoesNotRestore(t *testing.T) {
	s := New("toner")
	s.ApplyAltLayer(true)
	assert.Equal(t, catalog.SatelliteID, s.ActiveBaseID)
	s.ApplyAltLayer(false)
	assert.Equal(t, catalog.SatelliteID, s.ActiveBaseID)
}

func TestOverlayRoundTrip(t *testing.T) {
	s := New("streets-osm")
	s.SetOverlayEnabled("terrain-lines-stadia", true)
	before := &State{ActiveBaseID: s.ActiveBaseID, EnabledOverlays: maps.Clone(s.EnabledOverlays)}

	s.SetOverlayEnabled("hillshade-esri", true)
	assert.Equal(t, []string{"hillshade-esri", "terrain-lines-stadia"}, s.OverlayIDs())
	s.SetOverlayEnabled("hillshade-esri", false)

	if diff := cmp.Diff(before, s); diff != "" {
		t.Fatalf("overlay round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestUnknownOverlayIsStoredNotRendered(t *testing.T) {
	c := catalog.Default()
	s := New(c.DefaultBaseID())
	s.SetOverlayEnabled("bogus", true)
	s.SetOverlayEnabled("terrain-lines-stadia", true)
	s.SetOverlayEnabled("hillshade-esri", true)

	assert.True(t, s.EnabledOverlays["bogus"])
	p := s.Resolve(c)
	require.Len(t, p.Overlays, 2)
	assert.Equal(t, "hillshade-esri", p.Overlays[0].ID, "lower z-index first")
	assert.Equal(t, "terrain-lines-stadia", p.Overlays[1].ID)
}

func TestRendererDiffsAgainstEngine(t *testing.T) {
	c := catalog.Default()
	eng := engine.NewMemory(engine.Viewport{})
	r := NewRenderer(eng)
	s := New(c.DefaultBaseID())

	r.Apply(s.Resolve(c))
	layers := eng.Layers()
	require.Len(t, layers, 1)
	assert.Equal(t, c.ResolveBase("streets-osm").URLTemplate, layers[0].URLTemplate)

	s.SetOverlayEnabled("hillshade-esri", true)
	r.Apply(s.Resolve(c))
	layers = eng.Layers()
	require.Len(t, layers, 2)
	assert.Equal(t, 450, layers[1].ZIndex)
	assert.InDelta(t, 0.7, layers[1].Opacity, 1e-9)

	// same plan again: no engine traffic
	ch := eng.Commands().Subscribe()
	r.Apply(s.Resolve(c))
	assert.Len(t, ch, 0)
	eng.Commands().Unsubscribe(ch)

	s.ApplyAltLayer(true)
	s.ClearOverlays()
	r.Apply(s.Resolve(c))
	layers = eng.Layers()
	require.Len(t, layers, 1)
	assert.Contains(t, layers[0].URLTemplate, "World_Imagery")

	r.Reset()
	assert.Empty(t, eng.Layers())
	r.Apply(s.Resolve(c))
	assert.Len(t, eng.Layers(), 1, "a reset renderer adds the base again")
}
