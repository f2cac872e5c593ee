package game

import (
	"sort"

	"github.com/Farjord/dronewars-server/internal/game/rules"
	"github.com/Farjord/dronewars-server/internal/game/targeting"
)

// GameStateView is the read-only, deep-copied snapshot handed to everything
// outside the engine: session layer, sync adapter, decision module and tests.
// It is JSON-serializable so the sync adapter can ship it for full resyncs.
type GameStateView struct {
	MatchID      string                `json:"matchId"`
	Round        int                   `json:"round"`
	Phase        string                `json:"phase"`
	Simultaneous bool                  `json:"simultaneous"`
	FirstPlayer  string                `json:"firstPlayer"`
	ActivePlayer string                `json:"activePlayer"`
	AwaitingAck  bool                  `json:"awaitingAck"`
	Winner       string                `json:"winner,omitempty"`
	Seq          uint64                `json:"seq"`
	PlayerOrder  []string              `json:"playerOrder"`
	Players      map[string]PlayerView `json:"players"`
	Commitments  map[string]bool       `json:"commitments,omitempty"`
	Pending      *PendingView          `json:"pending,omitempty"`
}

// PlayerView is one player's visible state. Hand contents are included for
// both players; visibility filtering is the session layer's concern, not the
// engine's.
type PlayerView struct {
	PlayerID          string                 `json:"playerId"`
	Controller        string                 `json:"controller"`
	Hand              []CardView             `json:"hand"`
	DeckCount         int                    `json:"deckCount"`
	Discard           []CardView             `json:"discard"`
	Lanes             map[string][]DroneView `json:"lanes"`
	Sections          map[string]SectionView `json:"sections"`
	Energy            int                    `json:"energy"`
	Momentum          int                    `json:"momentum"`
	ShieldsToAllocate int                    `json:"shieldsToAllocate"`
	Passed            bool                   `json:"passed"`
	DeployedThisRound int                    `json:"deployedThisRound"`
	AckedFirstPlayer  bool                   `json:"ackedFirstPlayer"`
	UsedAbilities     []string               `json:"usedAbilities,omitempty"`
}

// CardView is a card instance as seen from outside the engine.
type CardView struct {
	InstanceID string `json:"instanceId"`
	Name       string `json:"name"`
}

// DroneView is a drone instance with its effective (aura-adjusted) stats.
type DroneView struct {
	InstanceID string       `json:"instanceId"`
	Name       string       `json:"name"`
	OwnerID    string       `json:"ownerId"`
	Lane       string       `json:"lane"`
	Hull       int          `json:"hull"`
	Shields    int          `json:"shields"`
	Attack     int          `json:"attack"`
	Speed      int          `json:"speed"`
	Cost       int          `json:"cost"`
	Exhausted  bool         `json:"exhausted"`
	Statuses   []StatusKind `json:"statuses,omitempty"`
}

// SectionView is one ship section's visible state.
type SectionView struct {
	Name       string `json:"name"`
	Hull       int    `json:"hull"`
	Shields    int    `json:"shields"`
	MaxShields int    `json:"maxShields"`
	Destroyed  bool   `json:"destroyed"`
}

// PendingView describes an open suspension point without exposing the
// internal decision record.
type PendingView struct {
	Token      string                 `json:"token"`
	PlayerID   string                 `json:"playerId"`
	Kind       string                 `json:"kind"`
	Candidates []targeting.Descriptor `json:"candidates,omitempty"`
	Choices    []string               `json:"choices,omitempty"`
	Count      int                    `json:"count,omitempty"`
	Lane       string                 `json:"lane,omitempty"`
}

var pendingKindNames = map[pendingKind]string{
	pendingInterception:       "interception",
	pendingSuppression:        "suppression",
	pendingSearchAndDraw:      "searchAndDraw",
	pendingMovement:           "movement",
	pendingMandatoryDiscard:   "mandatoryDiscard",
	pendingShieldReallocation: "shieldReallocation",
}

// viewLocked builds a snapshot of the current state. Caller holds gs.mu.
func (gs *gameState) viewLocked() GameStateView {
	phase := gs.phases.CurrentPhase()
	view := GameStateView{
		MatchID:      gs.matchID,
		Round:        gs.phases.RoundNumber(),
		Phase:        phase.String(),
		Simultaneous: phase.Simultaneous(),
		FirstPlayer:  gs.phases.FirstPlayer(),
		ActivePlayer: gs.phases.ActivePlayer(),
		AwaitingAck:  gs.awaitingAck,
		Winner:       gs.winner,
		Seq:          gs.seq,
		PlayerOrder:  append([]string(nil), gs.playerOrder...),
		Players:      make(map[string]PlayerView, 2),
	}

	if phase.Simultaneous() {
		view.Commitments = make(map[string]bool, 2)
		for playerID, slot := range gs.commits.Status(phase) {
			view.Commitments[playerID] = slot.Completed
		}
	}

	for _, id := range gs.playerOrder {
		view.Players[id] = gs.playerView(gs.players[id])
	}

	if gs.pending != nil {
		view.Pending = &PendingView{
			Token:      gs.pending.Token,
			PlayerID:   gs.pending.PlayerID,
			Kind:       pendingKindNames[gs.pending.Kind],
			Candidates: append([]targeting.Descriptor(nil), gs.pending.Candidates...),
			Choices:    append([]string(nil), gs.pending.Choices...),
			Count:      gs.pending.Count,
			Lane:       gs.pending.Lane,
		}
	}
	return view
}

func (gs *gameState) playerView(p *internalPlayer) PlayerView {
	pv := PlayerView{
		PlayerID:          p.PlayerID,
		Controller:        string(gs.controllers[p.PlayerID]),
		DeckCount:         len(p.Deck),
		Lanes:             make(map[string][]DroneView, len(targeting.Lanes)),
		Sections:          make(map[string]SectionView, len(SectionOrder)),
		Energy:            p.Energy,
		Momentum:          p.Momentum,
		ShieldsToAllocate: p.ShieldsToAllocate,
		Passed:            p.Passed,
		DeployedThisRound: p.DeployedThisRound,
		AckedFirstPlayer:  p.AckedFirstPlayer,
	}
	for kind, used := range p.UsedAbilities {
		if used {
			pv.UsedAbilities = append(pv.UsedAbilities, string(kind))
		}
	}
	sort.Strings(pv.UsedAbilities)
	for _, c := range p.Hand {
		pv.Hand = append(pv.Hand, CardView{InstanceID: c.InstanceID, Name: c.DefName})
	}
	for _, c := range p.Discard {
		pv.Discard = append(pv.Discard, CardView{InstanceID: c.InstanceID, Name: c.DefName})
	}
	for _, lane := range targeting.Lanes {
		drones := make([]DroneView, 0, len(p.Lanes[lane]))
		for _, d := range p.Lanes[lane] {
			drones = append(drones, DroneView{
				InstanceID: d.InstanceID,
				Name:       d.Name,
				OwnerID:    d.OwnerID,
				Lane:       d.Lane,
				Hull:       d.Hull,
				Shields:    d.Shields,
				Attack:     d.stat("attack"),
				Speed:      d.stat("speed"),
				Cost:       d.stat("cost"),
				Exhausted:  d.Exhausted,
				Statuses:   d.Statuses.List(),
			})
		}
		pv.Lanes[lane] = drones
	}
	for _, name := range SectionOrder {
		s := p.Sections[name]
		pv.Sections[name] = SectionView{
			Name:       s.Name,
			Hull:       s.Hull,
			Shields:    s.Shields,
			MaxShields: s.MaxShields,
			Destroyed:  s.destroyed(),
		}
	}
	return pv
}

// PhaseFromView parses the snapshot's phase name back to a rules.Phase.
func PhaseFromView(view GameStateView) (rules.Phase, bool) {
	return rules.ParsePhase(view.Phase)
}
