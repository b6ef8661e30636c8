package engine

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var square = orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}

func TestCoordinateValidate(t *testing.T) {
	assert.NoError(t, Coordinate{Lat: 51.5, Lon: -0.09}.Validate())
	assert.NoError(t, Coordinate{Lat: -90, Lon: 180}.Validate())
	assert.ErrorIs(t, Coordinate{Lat: 91, Lon: 0}.Validate(), ErrInvalidCoordinate)
	assert.ErrorIs(t, Coordinate{Lat: 0, Lon: -181}.Validate(), ErrInvalidCoordinate)
}

func TestCoordinateNear(t *testing.T) {
	london := Coordinate{Lat: 51.5074, Lon: -0.1278}
	assert.True(t, london.Near(Coordinate{Lat: 51.5, Lon: -0.09}, 5000))
	assert.False(t, london.Near(Coordinate{Lat: 48.85, Lon: 2.35}, 5000))
}

func TestMemoryCreateRequiresEditing(t *testing.T) {
	m := NewMemory(Viewport{})
	_, err := m.CreateShape("", "polygon", square)
	assert.ErrorIs(t, err, ErrEditingDisabled)
}

func TestMemoryEventsAndRegistry(t *testing.T) {
	m := NewMemory(Viewport{})
	require.NoError(t, m.EnableEditingControls(DefaultEditOptions()))

	var got []Event
	unsubscribe := m.Subscribe(func(ev Event) {
		got = append(got, ev)
		// listeners may read the registry while events are delivered
		_ = m.EnumerateManagedShapes()
	})

	id, err := m.CreateShape("", "polygon", square)
	require.NoError(t, err)
	m.AddMarker(Coordinate{Lat: 1, Lon: 1}, "static")
	require.NoError(t, m.EditShape(id, orb.LineString{{0, 0}, {2, 2}}))

	shapes := m.EnumerateManagedShapes()
	require.Len(t, shapes, 2)
	assert.True(t, IsEditable(shapes[0]))
	assert.False(t, IsEditable(shapes[1]))

	f, err := m.ExportShapeAsGeometry(shapes[0])
	require.NoError(t, err)
	assert.Equal(t, id, f.ID)
	assert.Equal(t, "LineString", f.Geometry.GeoJSONType())
	assert.Equal(t, 2, f.Properties["revision"])

	_, err = m.ExportShapeAsGeometry(shapes[1])
	assert.ErrorIs(t, err, ErrNotEditable)

	require.NoError(t, m.DeleteShape(id))
	assert.ErrorIs(t, m.DeleteShape(shapes[1].ShapeID()), ErrNotEditable)
	assert.ErrorIs(t, m.EditShape(id, square), ErrUnknownShape)

	assert.Equal(t, []Event{
		{Kind: ShapeCreated, ShapeID: id},
		{Kind: ShapeEdited, ShapeID: id},
		{Kind: ShapeRemoved, ShapeID: id},
	}, got)

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, m.Subscribers())
}

func TestMemoryCommandsForwarded(t *testing.T) {
	m := NewMemory(Viewport{})
	ch := m.Commands().Subscribe()
	defer m.Commands().Unsubscribe(ch)

	id := m.AddTileLayer("https://tile/{z}/{x}/{y}.png", "osm", 1, 0)
	m.RemoveLayer(id)
	m.RemoveLayer(id)
	m.MoveTo(Coordinate{Lat: 1, Lon: 2}, 14, 500*time.Millisecond)

	first := <-ch
	assert.Equal(t, "addLayer", first.Op)
	assert.Equal(t, id, first.ID)
	assert.Equal(t, "removeLayer", (<-ch).Op)
	move := <-ch
	assert.Equal(t, "moveTo", move.Op)
	assert.InDelta(t, 0.5, move.Duration, 1e-9)
	assert.Equal(t, Viewport{Center: Coordinate{Lat: 1, Lon: 2}, Zoom: 14}, m.Viewport())
	assert.Empty(t, m.Layers())
}

func TestMemoryClosedRefusesAttach(t *testing.T) {
	m := NewMemory(Viewport{})
	m.Close()
	assert.ErrorIs(t, m.EnableEditingControls(DefaultEditOptions()), ErrAttachFailed)
	assert.False(t, m.Editing())
}

func TestMemoryReplay(t *testing.T) {
	m := NewMemory(Viewport{Center: Coordinate{Lat: 51.505, Lon: -0.09}, Zoom: 13})
	m.AddTileLayer("https://overlay/{z}/{x}/{y}.png", "", 0.7, 450)
	m.AddTileLayer("https://base/{z}/{x}/{y}.png", "osm", 1, 0)
	m.AddMarker(Coordinate{Lat: 51.505, Lon: -0.09}, "hello")
	require.NoError(t, m.EnableEditingControls(DefaultEditOptions()))
	_, err := m.CreateShape("s1", "polygon", square)
	require.NoError(t, err)

	var ops []string
	for _, c := range m.Replay() {
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []string{"addLayer", "addLayer", "addMarker", "addShape", "enableEditing", "moveTo"}, ops)

	cmds := m.Replay()
	assert.Equal(t, "https://base/{z}/{x}/{y}.png", cmds[0].URL)
	require.NotNil(t, cmds[3].Feature)
	assert.Equal(t, "s1", cmds[3].Feature.ID)
	assert.Equal(t, 13, cmds[5].Zoom)
}
