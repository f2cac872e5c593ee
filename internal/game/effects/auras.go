// Package effects manages continuous stat modifiers ("lane auras") granted
// by drone abilities. Modifiers are registered when their source enters the
// board and dropped when it leaves; effective stats are recomputed from base
// values plus applicable modifiers after every board change.
package effects

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Scope controls which drones a modifier reaches.
type Scope int

const (
	// ScopeSameLane reaches friendly drones sharing the source's lane.
	ScopeSameLane Scope = iota
	// ScopeAllLanes reaches friendly drones in every lane.
	ScopeAllLanes
)

// Snapshot holds the mutable characteristics of a drone while modifiers are
// being evaluated.
type Snapshot struct {
	InstanceID string
	OwnerID    string
	Lane       string
	Base       map[string]int
	Stats      map[string]int
}

// NewSnapshot constructs an evaluation snapshot from base stats.
func NewSnapshot(instanceID, ownerID, lane string, base map[string]int) *Snapshot {
	s := &Snapshot{
		InstanceID: instanceID,
		OwnerID:    ownerID,
		Lane:       lane,
		Base:       make(map[string]int, len(base)),
	}
	for k, v := range base {
		s.Base[k] = v
	}
	s.Reset()
	return s
}

// Reset restores derived stats to their base values.
func (s *Snapshot) Reset() {
	s.Stats = make(map[string]int, len(s.Base))
	for k, v := range s.Base {
		s.Stats[k] = v
	}
}

// Modifier is one continuous stat adjustment granted by a source drone.
type Modifier struct {
	ID          string
	SourceID    string // drone granting the aura
	OwnerID     string // controller of the source
	Lane        string // lane of the source at registration time
	Scope       Scope
	Stat        string
	Delta       int
	SelfOnly    bool // applies only to the source itself (e.g. target lock bonuses)
	ExcludeSelf bool
}

// AppliesTo reports whether the modifier reaches the given snapshot.
func (m Modifier) AppliesTo(s *Snapshot) bool {
	if m.SelfOnly {
		return s.InstanceID == m.SourceID
	}
	if m.ExcludeSelf && s.InstanceID == m.SourceID {
		return false
	}
	if s.OwnerID != m.OwnerID {
		return false
	}
	if m.Scope == ScopeSameLane && s.Lane != m.Lane {
		return false
	}
	return true
}

// Apply adjusts the snapshot's derived stats. Stats never drop below zero.
func (m Modifier) Apply(s *Snapshot) {
	v := s.Stats[m.Stat] + m.Delta
	if v < 0 {
		v = 0
	}
	s.Stats[m.Stat] = v
}

// AuraSystem manages registration and evaluation of modifiers.
type AuraSystem struct {
	mu        sync.RWMutex
	modifiers map[string]Modifier
}

// NewAuraSystem constructs an empty aura system.
func NewAuraSystem() *AuraSystem {
	return &AuraSystem{modifiers: make(map[string]Modifier)}
}

// Add registers a modifier and returns its identifier.
func (as *AuraSystem) Add(m Modifier) string {
	as.mu.Lock()
	defer as.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	as.modifiers[m.ID] = m
	return m.ID
}

// Remove drops a modifier by identifier.
func (as *AuraSystem) Remove(id string) {
	as.mu.Lock()
	defer as.mu.Unlock()
	delete(as.modifiers, id)
}

// RemoveBySource drops every modifier granted by the given source drone.
// Called from the destruction cascade.
func (as *AuraSystem) RemoveBySource(sourceID string) int {
	as.mu.Lock()
	defer as.mu.Unlock()
	removed := 0
	for id, m := range as.modifiers {
		if m.SourceID == sourceID {
			delete(as.modifiers, id)
			removed++
		}
	}
	return removed
}

// UpdateSourceLane re-homes same-lane modifiers when their source moves.
func (as *AuraSystem) UpdateSourceLane(sourceID, lane string) {
	as.mu.Lock()
	defer as.mu.Unlock()
	for id, m := range as.modifiers {
		if m.SourceID == sourceID {
			m.Lane = lane
			as.modifiers[id] = m
		}
	}
}

// Evaluate resets the snapshot and applies every matching modifier in a
// deterministic order (sorted by modifier ID).
func (as *AuraSystem) Evaluate(s *Snapshot) {
	as.mu.RLock()
	defer as.mu.RUnlock()

	s.Reset()
	ids := make([]string, 0, len(as.modifiers))
	for id := range as.modifiers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		m := as.modifiers[id]
		if m.AppliesTo(s) {
			m.Apply(s)
		}
	}
}

// Count returns the number of registered modifiers.
func (as *AuraSystem) Count() int {
	as.mu.RLock()
	defer as.mu.RUnlock()
	return len(as.modifiers)
}
