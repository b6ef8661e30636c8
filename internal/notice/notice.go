// Package notice keeps transient, dismissible user notices.
package notice

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind classifies a notice by the failure that produced it.
type Kind string

const (
	PermissionDenied Kind = "permission_denied"
	Unavailable      Kind = "unavailable"
	NotFound         Kind = "not_found"
	NetworkFailure   Kind = "network_failure"
	AttachFailure    Kind = "engine_attach_failure"
	Info             Kind = "info"
)

// Notice is one user-visible message.
type Notice struct {
	ID      string    `json:"id" doc:"Notice identifier"`
	Kind    Kind      `json:"kind" doc:"Notice category" example:"not_found"`
	Message string    `json:"message" doc:"Human-readable message" example:"Location not found"`
	Created time.Time `json:"created" doc:"When the notice was raised"`
}

// Board is an ordered list of notices.
type Board struct {
	mu      sync.RWMutex
	notices []Notice
	onPush  []func(Notice)
	now     func() time.Time
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{now: time.Now}
}

// OnPush registers a listener called after every push.
func (b *Board) OnPush(fn func(Notice)) {
	b.mu.Lock()
	b.onPush = append(b.onPush, fn)
	b.mu.Unlock()
}

// Push records a notice and returns it.
func (b *Board) Push(kind Kind, msg string) Notice {
	n := Notice{ID: uuid.NewString(), Kind: kind, Message: msg, Created: b.now()}

	b.mu.Lock()
	b.notices = append(b.notices, n)
	listeners := append([]func(Notice){}, b.onPush...)
	b.mu.Unlock()

	zap.L().Info("notice", zap.String("kind", string(kind)), zap.String("message", msg))
	for _, fn := range listeners {
		fn(n)
	}
	return n
}

// Dismiss removes a notice. It reports whether the id was present.
func (b *Board) Dismiss(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.notices {
		if n.ID == id {
			b.notices = append(b.notices[:i], b.notices[i+1:]...)
			return true
		}
	}
	return false
}

// List returns the current notices, oldest first.
func (b *Board) List() []Notice {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Notice{}, b.notices...)
}

// Clear drops every notice.
func (b *Board) Clear() {
	b.mu.Lock()
	b.notices = nil
	b.mu.Unlock()
}
