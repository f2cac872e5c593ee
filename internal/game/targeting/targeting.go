// Package targeting implements the pure targeting resolver. Given a
// data-driven targeting definition and immutable snapshots of both players'
// boards, Route returns the ordered set of legal targets. The resolver never
// mutates its inputs and never caches: identical inputs always produce an
// identical, stably-ordered list.
package targeting

import (
	"strings"
)

// TargetType represents the kind of object a card or ability can affect.
type TargetType string

const (
	// TargetDrone targets drone instances on either board.
	TargetDrone TargetType = "DRONE"
	// TargetLane targets one of the three lanes on a player's side.
	TargetLane TargetType = "LANE"
	// TargetShipSection targets a ship section.
	TargetShipSection TargetType = "SHIP_SECTION"
	// TargetNone means the effect requires no target; Route is not consulted.
	TargetNone TargetType = "NONE"
)

// Affinity restricts candidates relative to the acting player.
type Affinity string

const (
	AffinityFriendly Affinity = "FRIENDLY"
	AffinityEnemy    Affinity = "ENEMY"
	AffinityAny      Affinity = "ANY"
)

// Location optionally restricts drone candidates to the source's lane.
type Location string

const (
	LocationSameLane Location = "SAME_LANE"
	LocationAnyLane  Location = "ANY_LANE"
)

// Comparison is the operator of a stat filter.
type Comparison string

const (
	CompareGTE Comparison = "GTE"
	CompareLTE Comparison = "LTE"
	CompareGT  Comparison = "GT"
	CompareLT  Comparison = "LT"
	CompareEQ  Comparison = "EQ"
)

// StatFilter applies a threshold comparison against a candidate stat.
type StatFilter struct {
	Stat       string
	Comparison Comparison
	Value      int
}

// Definition is the immutable, data-driven targeting specification owned by
// the static card/ability tables.
type Definition struct {
	Type     TargetType
	Affinity Affinity
	Location Location    // empty means ANY_LANE
	Filter   *StatFilter // optional
}

// Lanes is the fixed lane iteration order shared by both boards.
var Lanes = []string{"lane1", "lane2", "lane3"}

// Drone is the read-only view of a drone instance the resolver operates on.
type Drone struct {
	InstanceID string
	Name       string
	OwnerID    string
	Lane       string
	Stats      map[string]int // attack, speed, hull, shields, cost
	Exhausted  bool
}

// Section is the read-only view of a ship section.
type Section struct {
	Name    string
	OwnerID string
	Hull    int
	Shields int
}

// Board is one player's snapshot as seen by the resolver.
type Board struct {
	PlayerID string
	Lanes    map[string][]Drone // lane -> board order
	Sections []Section          // fixed section order
}

// Source identifies where the targeting effect originates. Lane is empty for
// effects played from hand or from the ship.
type Source struct {
	PlayerID string
	ID       string
	Lane     string
}

// Descriptor identifies one legal target.
type Descriptor struct {
	Kind    TargetType
	ID      string // drone instance ID, lane ID, or section name
	OwnerID string
	Lane    string // lane containing a drone target; equals ID for lanes
}

// Route returns the ordered set of legal targets for the definition, acting
// player and source. The candidate pool is selected by Type, filtered by
// Affinity relative to actingPlayerID, then by Location against the source's
// lane, with the stat filter applied last. Boards are always iterated acting
// player first, lanes in fixed order, board order within a lane, so the
// result is stable. An empty result means the effect is currently unplayable.
func Route(actingPlayerID string, source Source, def Definition, player1, player2 Board) []Descriptor {
	if def.Type == TargetNone {
		return nil
	}

	boards := orderBoards(actingPlayerID, player1, player2)
	var out []Descriptor

	switch def.Type {
	case TargetDrone:
		for _, board := range boards {
			if !affinityAllows(def.Affinity, actingPlayerID, board.PlayerID) {
				continue
			}
			for _, lane := range Lanes {
				if def.Location == LocationSameLane && source.Lane != "" && lane != source.Lane {
					continue
				}
				for _, drone := range board.Lanes[lane] {
					if drone.InstanceID == source.ID {
						continue
					}
					if !statFilterAllows(def.Filter, drone.Stats) {
						continue
					}
					out = append(out, Descriptor{
						Kind:    TargetDrone,
						ID:      drone.InstanceID,
						OwnerID: drone.OwnerID,
						Lane:    lane,
					})
				}
			}
		}

	case TargetLane:
		for _, board := range boards {
			if !affinityAllows(def.Affinity, actingPlayerID, board.PlayerID) {
				continue
			}
			for _, lane := range Lanes {
				if def.Location == LocationSameLane && source.Lane != "" && lane != source.Lane {
					continue
				}
				out = append(out, Descriptor{
					Kind:    TargetLane,
					ID:      lane,
					OwnerID: board.PlayerID,
					Lane:    lane,
				})
			}
		}

	case TargetShipSection:
		for _, board := range boards {
			if !affinityAllows(def.Affinity, actingPlayerID, board.PlayerID) {
				continue
			}
			for _, section := range board.Sections {
				stats := map[string]int{"hull": section.Hull, "shields": section.Shields}
				if !statFilterAllows(def.Filter, stats) {
					continue
				}
				out = append(out, Descriptor{
					Kind:    TargetShipSection,
					ID:      section.Name,
					OwnerID: board.PlayerID,
				})
			}
		}
	}

	return out
}

// orderBoards returns the boards with the acting player's board first so the
// output ordering does not depend on which seat is acting.
func orderBoards(actingPlayerID string, player1, player2 Board) [2]Board {
	if player2.PlayerID == actingPlayerID {
		return [2]Board{player2, player1}
	}
	return [2]Board{player1, player2}
}

func affinityAllows(affinity Affinity, actingPlayerID, ownerID string) bool {
	switch affinity {
	case AffinityFriendly:
		return ownerID == actingPlayerID
	case AffinityEnemy:
		return ownerID != actingPlayerID
	case AffinityAny, "":
		return true
	}
	return false
}

func statFilterAllows(filter *StatFilter, stats map[string]int) bool {
	if filter == nil {
		return true
	}
	value, ok := stats[strings.ToLower(filter.Stat)]
	if !ok {
		return false
	}
	switch filter.Comparison {
	case CompareGTE:
		return value >= filter.Value
	case CompareLTE:
		return value <= filter.Value
	case CompareGT:
		return value > filter.Value
	case CompareLT:
		return value < filter.Value
	case CompareEQ:
		return value == filter.Value
	}
	return false
}
