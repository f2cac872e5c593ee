package game

import "sort"

// StatusKind names a consumable status tracked on a drone instance.
type StatusKind string

const (
	// StatusSnared blocks the drone's next activation; consumed explicitly.
	StatusSnared StatusKind = "SNARED"
	// StatusSuppressed defers the drone's next attack behind a confirmation.
	StatusSuppressed StatusKind = "SUPPRESSED"
	// StatusMarked flags the drone for opposing effects; purely informational.
	StatusMarked StatusKind = "MARKED"
	// StatusTargetLocked pins the drone as the preferred target of the locker.
	StatusTargetLocked StatusKind = "TARGET_LOCKED"
)

// Statuses manages the named status counters on one drone instance.
// Consumable statuses are spent only on actual resolution, never on a merely
// queued or declined action.
type Statuses struct {
	counts map[StatusKind]int
}

// NewStatuses creates an empty status set.
func NewStatuses() *Statuses {
	return &Statuses{counts: make(map[StatusKind]int)}
}

// Add applies amount stacks of the status. Non-positive amounts are ignored.
func (s *Statuses) Add(kind StatusKind, amount int) {
	if amount <= 0 {
		return
	}
	s.counts[kind] += amount
}

// Has reports whether at least one stack of the status is present.
func (s *Statuses) Has(kind StatusKind) bool {
	return s.counts[kind] > 0
}

// Count returns the number of stacks of the status.
func (s *Statuses) Count(kind StatusKind) int {
	return s.counts[kind]
}

// Consume spends one stack of the status. Returns false if none was present.
func (s *Statuses) Consume(kind StatusKind) bool {
	if s.counts[kind] <= 0 {
		return false
	}
	s.counts[kind]--
	if s.counts[kind] == 0 {
		delete(s.counts, kind)
	}
	return true
}

// Clear removes every stack of the status.
func (s *Statuses) Clear(kind StatusKind) {
	delete(s.counts, kind)
}

// List returns the present statuses in sorted order, for views and checksums.
func (s *Statuses) List() []StatusKind {
	out := make([]StatusKind, 0, len(s.counts))
	for kind := range s.counts {
		out = append(out, kind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Copy creates a deep copy of the status set.
func (s *Statuses) Copy() *Statuses {
	c := NewStatuses()
	for kind, count := range s.counts {
		c.counts[kind] = count
	}
	return c
}
