package usecases

import (
	"sync"

	"github.com/samirrijal/fieldsync/internal/core/domain"
	"github.com/samirrijal/fieldsync/internal/pkg/geospatial"
)

// WindowTracker holds the last committed window of a sync session.
// Points are always classified against the committed window, never against
// the most recent query.
type WindowTracker struct {
	halfWidthKm float64

	mu        sync.RWMutex
	window    domain.Window
	committed bool
}

// NewWindowTracker creates a tracker producing windows of the given half-width.
func NewWindowTracker(halfWidthKm float64) *WindowTracker {
	return &WindowTracker{halfWidthKm: halfWidthKm}
}

// Classify returns where p lies relative to the committed window.
// ok is false when nothing has been committed yet.
func (t *WindowTracker) Classify(p domain.GeoPoint) (c domain.Crossing, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.committed {
		return domain.Inside, false
	}
	return geospatial.Classify(p, t.window), true
}

// Commit computes a fresh window around focus and makes it current.
func (t *WindowTracker) Commit(focus domain.GeoPoint) domain.Window {
	w := geospatial.ComputeWindow(focus, t.halfWidthKm)
	t.mu.Lock()
	t.window = w
	t.committed = true
	t.mu.Unlock()
	return w
}

// Current returns the committed window, if any.
func (t *WindowTracker) Current() (domain.Window, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.window, t.committed
}
