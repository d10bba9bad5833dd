package load

import (
	"image"
	"sync"
)

// Snapshot is one consistent view of the published load state.
//
// Invariants:
//   - after a terminal completion, Loading is false and Progress is 1
//     whether the load succeeded or failed
//   - Incremental is true only while partial progressive decodes are being
//     delivered; it is false on every terminal completion
type Snapshot struct {
	// Image is the most recent decoded result, nil until one arrives.
	Image image.Image

	// Err is the most recent failure, nil on success paths.
	Err error

	// Loading is true between Load() and the terminal completion or Cancel().
	Loading bool

	// Progress is the download fraction in [0, 1]. 0 when the expected
	// length is unknown.
	Progress float64

	// Incremental marks Image as a partial progressive decode.
	Incremental bool
}

// State is the observable container for one coordinator's published fields.
//
// Every mutation is marshaled onto the State's Dispatcher and applied as one
// atomic snapshot update; observers are notified synchronously on the
// dispatcher goroutine with a copy of the new snapshot. A reader therefore
// never sees a torn combination such as Loading=false with Progress != 1
// after a terminal completion.
type State struct {
	queue Dispatcher

	mu        sync.Mutex
	snap      Snapshot
	observers map[int]func(Snapshot)
	nextID    int
}

// NewState creates a State whose mutations run on queue.
func NewState(queue Dispatcher) *State {
	return &State{
		queue:     queue,
		observers: make(map[int]func(Snapshot)),
	}
}

// Snapshot returns the current state. Safe from any goroutine; the returned
// value is a copy and reflects the latest applied mutation.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Observe registers fn to run after every mutation, on the dispatcher
// goroutine. The returned func unregisters it; both are safe to call
// concurrently.
func (s *State) Observe(fn func(Snapshot)) (remove func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// apply marshals mutate onto the dispatcher, applies it to the snapshot, and
// notifies observers with the result.
func (s *State) apply(mutate func(*Snapshot)) {
	s.queue.Dispatch(func() {
		s.mu.Lock()
		mutate(&s.snap)
		snap := s.snap
		fns := make([]func(Snapshot), 0, len(s.observers))
		for _, fn := range s.observers {
			fns = append(fns, fn)
		}
		s.mu.Unlock()

		for _, fn := range fns {
			fn(snap)
		}
	})
}
