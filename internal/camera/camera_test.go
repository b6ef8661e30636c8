package camera

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-mapview/internal/engine"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestMoveToIsIdempotentInFlight(t *testing.T) {
	eng := engine.NewMemory(engine.Viewport{})
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := New(eng, WithClock(clock.now))

	ch := eng.Commands().Subscribe()
	defer eng.Commands().Unsubscribe(ch)

	london := engine.Coordinate{Lat: 51.5, Lon: -0.09}
	moved, err := c.MoveTo(london, 14)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.True(t, c.InFlight())

	moved, err = c.MoveTo(london, 14)
	require.NoError(t, err)
	assert.False(t, moved, "same target mid-flight must not stack")

	moved, _ = c.MoveTo(london, 13)
	assert.True(t, moved, "different zoom restarts")

	clock.advance(time.Second)
	assert.False(t, c.InFlight())
	moved, _ = c.MoveTo(london, 13)
	assert.True(t, moved, "same target after landing moves again")

	assert.Len(t, ch, 3)
	assert.Equal(t, engine.Viewport{Center: london, Zoom: 13}, eng.Viewport())

	target, ok := c.Target()
	require.True(t, ok)
	assert.Equal(t, 13, target.Zoom)

	c.Reset()
	_, ok = c.Target()
	assert.False(t, ok)
}

func TestMoveToRejectsInvalid(t *testing.T) {
	c := New(engine.NewMemory(engine.Viewport{}))
	_, err := c.MoveTo(engine.Coordinate{Lat: 100}, 14)
	assert.ErrorIs(t, err, engine.ErrInvalidCoordinate)
}
