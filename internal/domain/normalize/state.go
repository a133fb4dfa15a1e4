package normalize

import "sync"

// State holds the running statistics of one evaluation session. It is
// owned by exactly one session, survives across calls, and is reset only
// on session teardown. All mutations go through apply, which holds the
// mutex for the whole update so a cancelled caller can never leave a
// half-applied observation behind.
type State struct {
	mu       sync.Mutex
	count    uint64
	mean     float64
	variance float64
}

// Snapshot is a consistent point-in-time copy of a State.
type Snapshot struct {
	Count    uint64
	Mean     float64
	Variance float64
}

// NewState creates an empty normalization state.
func NewState() *State {
	return &State{}
}

// Snapshot returns a consistent copy of the current statistics.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Count: s.count, Mean: s.mean, Variance: s.variance}
}

// Reset clears the statistics back to the fresh-session zero state.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count = 0
	s.mean = 0
	s.variance = 0
}

// apply folds one raw observation into the running statistics using the
// exponentially weighted Welford update and returns the post-update
// snapshot. The first observation seeds the mean directly so early
// estimates are not biased toward zero.
func (s *State) apply(raw, eta float64) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	if s.count == 1 {
		s.mean = raw
		s.variance = 0
	} else {
		diff := raw - s.mean
		incr := eta * diff
		s.mean += incr
		s.variance = (1 - eta) * (s.variance + diff*incr)
	}

	return Snapshot{Count: s.count, Mean: s.mean, Variance: s.variance}
}
