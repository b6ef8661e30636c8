// Package camera issues smooth viewport transitions on the engine.
package camera

import (
	"time"

	"go.uber.org/zap"

	"github.com/joeblew999/plat-mapview/internal/engine"
)

const (
	// FlyDuration is the transition length requested from the engine.
	FlyDuration = 500 * time.Millisecond
	// sameTargetMeters treats targets closer than this as identical.
	sameTargetMeters = 0.5
)

// Target is a camera destination.
type Target struct {
	Center engine.Coordinate `json:"center"`
	Zoom   int               `json:"zoom"`
}

func (t Target) same(o Target) bool {
	return t.Zoom == o.Zoom && t.Center.Near(o.Center, sameTargetMeters)
}

// Controller moves the camera. Repeating the in-flight target is a no-op.
type Controller struct {
	engine   engine.Handle
	duration time.Duration
	now      func() time.Time

	last     *Target
	deadline time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithDuration overrides the transition duration hint.
func WithDuration(d time.Duration) Option {
	return func(c *Controller) { c.duration = d }
}

// New creates a controller for one engine.
func New(h engine.Handle, opts ...Option) *Controller {
	c := &Controller{engine: h, duration: FlyDuration, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MoveTo requests a transition to center at zoom. It reports whether an
// engine call was made.
func (c *Controller) MoveTo(center engine.Coordinate, zoom int) (bool, error) {
	if err := center.Validate(); err != nil {
		return false, err
	}
	t := Target{Center: center, Zoom: zoom}
	now := c.now()
	if c.last != nil && c.last.same(t) && now.Before(c.deadline) {
		zap.L().Debug("camera: target already in flight", zap.Float64("lat", center.Lat), zap.Float64("lon", center.Lon))
		return false, nil
	}

	c.engine.MoveTo(center, zoom, c.duration)
	c.last = &t
	c.deadline = now.Add(c.duration)
	return true, nil
}

// Target returns the last requested target.
func (c *Controller) Target() (Target, bool) {
	if c.last == nil {
		return Target{}, false
	}
	return *c.last, true
}

// InFlight reports whether a transition is still running.
func (c *Controller) InFlight() bool {
	return c.last != nil && c.now().Before(c.deadline)
}

// Reset forgets the last target. The viewport itself stays where it is.
func (c *Controller) Reset() {
	c.last = nil
	c.deadline = time.Time{}
}
