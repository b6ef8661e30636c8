package geoloc

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/joeblew999/plat-mapview/internal/engine"
)

// Browser Geolocation API error codes.
const (
	CodePermissionDenied    = 1
	CodePositionUnavailable = 2
	CodeTimeout             = 3
)

// StaticProvider always reports the same coordinate.
type StaticProvider struct {
	At engine.Coordinate
}

func (p StaticProvider) Locate(context.Context) (engine.Coordinate, error) {
	return p.At, nil
}

type report struct {
	at  engine.Coordinate
	err error
}

// ReportedProvider waits for the browser to report a position. Each Locate
// calls trigger once so the page can run its geolocation prompt.
type ReportedProvider struct {
	mu      sync.Mutex
	waiters []chan report
	trigger func()
}

// NewReportedProvider creates a provider. trigger may be nil.
func NewReportedProvider(trigger func()) *ReportedProvider {
	return &ReportedProvider{trigger: trigger}
}

func (p *ReportedProvider) Locate(ctx context.Context) (engine.Coordinate, error) {
	ch := make(chan report, 1)
	p.mu.Lock()
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	if p.trigger != nil {
		p.trigger()
	}

	select {
	case r := <-ch:
		return r.at, r.err
	case <-ctx.Done():
		p.drop(ch)
		return engine.Coordinate{}, eris.Wrapf(ErrUnavailable, "waiting for browser: %v", ctx.Err())
	}
}

// Pending returns the number of callers waiting for a report.
func (p *ReportedProvider) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}

// ReportPosition delivers a position to every waiting caller and returns
// how many were waiting.
func (p *ReportedProvider) ReportPosition(at engine.Coordinate) int {
	return p.deliver(report{at: at})
}

// ReportError delivers a browser error code to every waiting caller.
func (p *ReportedProvider) ReportError(code int, message string) int {
	var err error
	switch code {
	case CodePermissionDenied:
		err = eris.Wrap(ErrPermissionDenied, message)
	default:
		err = eris.Wrapf(ErrUnavailable, "code %d: %s", code, message)
	}
	return p.deliver(report{err: err})
}

func (p *ReportedProvider) deliver(r report) int {
	p.mu.Lock()
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, ch := range waiters {
		ch <- r
	}
	return len(waiters)
}

func (p *ReportedProvider) drop(ch chan report) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}
