package reveal

import (
	"errors"
	"sync"
)

// ErrNotObserving is returned when notifications are delivered to an observer
// that has not been started or has been disconnected.
var ErrNotObserving = errors.New("reveal: observer not active")

// Remote is an Observer whose notifications are produced elsewhere, for
// example by a browser IntersectionObserver posting entries to the server.
type Remote struct {
	mu       sync.Mutex
	notify   func([]Entry)
	observed map[string]struct{}
	active   bool
}

// NewRemote returns an inactive Remote.
func NewRemote() *Remote {
	return &Remote{observed: make(map[string]struct{})}
}

// Capability binds r to the tracker that starts with it.
func (r *Remote) Capability() Capability {
	return func(_ Options, notify func([]Entry)) (Observer, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.notify = notify
		r.active = true
		return r, nil
	}
}

func (r *Remote) Observe(region Region) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return ErrNotObserving
	}
	r.observed[region.ID] = struct{}{}
	return nil
}

func (r *Remote) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	r.notify = nil
	r.observed = make(map[string]struct{})
}

// Deliver forwards entries for observed regions to the tracker.
func (r *Remote) Deliver(entries []Entry) error {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return ErrNotObserving
	}
	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if _, ok := r.observed[e.ID]; ok {
			kept = append(kept, e)
		}
	}
	notify := r.notify
	r.mu.Unlock()

	if len(kept) > 0 {
		notify(kept)
	}
	return nil
}
