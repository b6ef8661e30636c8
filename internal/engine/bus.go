package engine

import (
	"sync"

	"github.com/paulmach/orb/geojson"
)

// Command is an imperative engine call forwarded to the browser renderer.
type Command struct {
	Op       string           `json:"op"` // addLayer, removeLayer, moveTo, enableEditing, disableEditing, addShape, removeShape, addMarker, locate
	ID       string           `json:"id,omitempty"`
	URL      string           `json:"url,omitempty"`
	Attrib   string           `json:"attribution,omitempty"`
	Opacity  float64          `json:"opacity,omitempty"`
	ZIndex   int              `json:"zIndex,omitempty"`
	Center   *Coordinate      `json:"center,omitempty"`
	Zoom     int              `json:"zoom,omitempty"`
	Duration float64          `json:"duration,omitempty"` // seconds
	Options  *EditOptions     `json:"options,omitempty"`
	Label    string           `json:"label,omitempty"`
	Feature  *geojson.Feature `json:"feature,omitempty"`
}

// CommandBus is a simple fan-out pub/sub for engine commands.
type CommandBus struct {
	mu   sync.RWMutex
	subs map[chan Command]struct{}
}

// NewCommandBus creates a new command bus.
func NewCommandBus() *CommandBus {
	return &CommandBus{subs: make(map[chan Command]struct{})}
}

// Publish sends a command to all subscribers (non-blocking).
func (b *CommandBus) Publish(c Command) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- c:
		default:
			// subscriber too slow, it resyncs from a snapshot on reconnect
		}
	}
}

// Subscribe returns a buffered channel that receives commands.
func (b *CommandBus) Subscribe() chan Command {
	ch := make(chan Command, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *CommandBus) Unsubscribe(ch chan Command) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Len returns the number of active subscribers.
func (b *CommandBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
