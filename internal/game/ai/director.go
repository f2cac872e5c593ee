// Package ai implements the computer opponent. It submits actions through
// the same ProcessAction pipeline as a human client and proposes only
// targets the resolver reports as legal, so the engine never needs an
// AI-specific code path. Every decision is a pure function of the state
// snapshot and the configured weights, which keeps replays of AI matches
// deterministic.
package ai

import (
	"sort"

	"go.uber.org/zap"

	"github.com/Farjord/dronewars-server/internal/game"
	"github.com/Farjord/dronewars-server/internal/game/targeting"
)

// RouteFunc resolves legal targets against the current state. Wired to
// Engine.RouteTargeting for the match being played.
type RouteFunc func(actingPlayerID string, source targeting.Source, def targeting.Definition) []targeting.Descriptor

// Director makes decisions for AI-controlled players. A single director can
// serve every AI seat in the process; it holds no per-match state.
type Director struct {
	logger  *zap.Logger
	weights Weights
}

// NewDirector creates a director with the given weight set.
func NewDirector(logger *zap.Logger, weights Weights) *Director {
	return &Director{logger: logger, weights: weights}
}

// ChooseInterceptor implements game.InterceptionChooser: called synchronously
// by the combat resolver when an AI-controlled defender may intercept. Picks
// the cheapest eligible drone, declining when even that exceeds the
// configured loss tolerance.
func (d *Director) ChooseInterceptor(view game.GameStateView, defenderID string, candidates []targeting.Descriptor) string {
	best := ""
	bestCost := -1
	for _, c := range candidates {
		dv, ok := findDrone(view, c.ID)
		if !ok {
			continue
		}
		if best == "" || dv.Cost < bestCost {
			best = c.ID
			bestCost = dv.Cost
		}
	}
	if best == "" || bestCost > d.weights.MaxInterceptCost {
		return ""
	}
	return best
}

// Decide returns the next action for the player, or false when the player has
// nothing to do (not its turn, waiting on the opponent, or match over).
func (d *Director) Decide(view game.GameStateView, playerID string, route RouteFunc) (game.Action, bool) {
	if view.Winner != "" {
		return game.Action{}, false
	}
	me, ok := view.Players[playerID]
	if !ok {
		return game.Action{}, false
	}

	if view.AwaitingAck {
		if me.AckedFirstPlayer {
			return game.Action{}, false
		}
		return action(game.ActionAcknowledgeFirstPlayer, playerID, game.Payload{}), true
	}

	if view.Pending != nil {
		if view.Pending.PlayerID != playerID {
			return game.Action{}, false
		}
		return d.resolvePending(view, me, playerID)
	}

	if view.Simultaneous {
		if view.Commitments[playerID] {
			return game.Action{}, false
		}
		return d.decideCommit(view, me, playerID)
	}

	if view.ActivePlayer != playerID || me.Passed {
		return game.Action{}, false
	}
	switch view.Phase {
	case "DEPLOYMENT":
		return d.decideDeployment(me, playerID)
	case "ACTION":
		return d.decideAction(view, me, playerID, route)
	}
	return game.Action{}, false
}

// resolvePending answers an open suspension point addressed to this player.
func (d *Director) resolvePending(view game.GameStateView, me game.PlayerView, playerID string) (game.Action, bool) {
	p := view.Pending
	payload := game.Payload{Token: p.Token}

	switch p.Kind {
	case "interception":
		pick := d.ChooseInterceptor(view, playerID, p.Candidates)
		if pick == "" {
			payload.Decline = true
		} else {
			payload.InterceptorID = pick
		}
		return action(game.ActionAttack, playerID, payload), true

	case "suppression":
		payload.Proceed = true
		return action(game.ActionSuppressedConsumption, playerID, payload), true

	case "searchAndDraw":
		count := p.Count
		if count > len(p.Choices) {
			count = len(p.Choices)
		}
		payload.CardIDs = append([]string(nil), p.Choices[:count]...)
		return action(game.ActionSearchAndDrawCompletion, playerID, payload), true

	case "movement":
		count := p.Count
		if count > len(p.Choices) {
			count = len(p.Choices)
		}
		if count == 0 {
			count = 1
		}
		payload.DroneIDs = append([]string(nil), p.Choices[:count]...)
		return action(game.ActionMovementCompletion, playerID, payload), true

	case "mandatoryDiscard":
		payload.CardIDs = discardPicks(me.Hand, p.Count)
		return action(game.ActionMandatoryDiscard, playerID, payload), true

	case "shieldReallocation":
		payload.Allocation = d.allocateShields(me, p.Count)
		return action(game.ActionReallocateShieldsComplete, playerID, payload), true
	}
	return game.Action{}, false
}

// decideCommit handles the four simultaneous phases.
func (d *Director) decideCommit(view game.GameStateView, me game.PlayerView, playerID string) (game.Action, bool) {
	payload := game.Payload{Phase: view.Phase}

	switch view.Phase {
	case "OPTIONAL_DISCARD":
		// Keep the hand; the refill after both commits tops it back up anyway.
		return action(game.ActionCommitPhase, playerID, payload), true

	case "MANDATORY_DISCARD":
		excess := len(me.Hand) - game.HandLimit
		if excess > 0 {
			payload.CardIDs = discardPicks(me.Hand, excess)
		}
		return action(game.ActionCommitPhase, playerID, payload), true

	case "MANDATORY_DRONE_REMOVAL":
		excess := droneCount(me) - droneLimit(me)
		if excess > 0 {
			payload.DroneIDs = removalPicks(me, excess)
		}
		return action(game.ActionCommitPhase, playerID, payload), true

	case "ALLOCATE_SHIELDS":
		if me.ShieldsToAllocate > 0 {
			if section := d.nextShieldSection(me); section != "" {
				return action(game.ActionAllocateShield, playerID, game.Payload{Section: section}), true
			}
		}
		return action(game.ActionCommitPhase, playerID, payload), true
	}
	return game.Action{}, false
}

// decideDeployment deploys the strongest affordable drone into the emptiest
// lane, holding back the configured energy reserve, then passes.
func (d *Director) decideDeployment(me game.PlayerView, playerID string) (game.Action, bool) {
	budget := me.Energy - d.weights.EnergyReserve
	if droneCount(me) < droneLimit(me) {
		best := ""
		bestCost := -1
		for _, name := range game.DefaultDronePool {
			def := game.DroneTable[name]
			if def.Cost <= budget && def.Cost > bestCost {
				best = name
				bestCost = def.Cost
			}
		}
		if best != "" {
			if lane := emptiestLane(me); lane != "" {
				return action(game.ActionDeployment, playerID, game.Payload{DroneName: best, Lane: lane}), true
			}
		}
	}
	return action(game.ActionTurnTransition, playerID, game.Payload{Pass: true}), true
}

// decideAction picks one action-phase move in fixed priority order: free a
// snared drone, attack, use a section ability, play a card, then pass.
func (d *Director) decideAction(view game.GameStateView, me game.PlayerView, playerID string, route RouteFunc) (game.Action, bool) {
	for _, dv := range allDrones(me) {
		if !dv.Exhausted && hasStatus(dv, game.StatusSnared) {
			return action(game.ActionSnaredConsumption, playerID, game.Payload{DroneID: dv.InstanceID}), true
		}
	}

	if act, ok := d.decideAttack(view, me, playerID); ok {
		return act, true
	}

	if d.weights.UseSectionAbilities {
		if act, ok := d.decideSectionAbility(view, me, playerID); ok {
			return act, true
		}
	}

	if act, ok := d.decideCardPlay(view, me, playerID, route); ok {
		return act, true
	}

	return action(game.ActionTurnTransition, playerID, game.Payload{Pass: true}), true
}

// decideAttack declares an attack with a ready drone that has a worthwhile
// target: a drone in its lane, or the weakest enemy section when the lane is
// open. SectionAggression picks between the two when both are available.
func (d *Director) decideAttack(view game.GameStateView, me game.PlayerView, playerID string) (game.Action, bool) {
	opp, ok := opponentView(view, playerID)
	if !ok {
		return game.Action{}, false
	}

	var droneAttack, sectionAttack *game.Action
	for _, lane := range targeting.Lanes {
		for _, attacker := range me.Lanes[lane] {
			if attacker.Exhausted || hasStatus(attacker, game.StatusSnared) {
				continue
			}
			enemies := opp.Lanes[lane]
			if len(enemies) > 0 {
				if droneAttack == nil {
					target := pickAttackTarget(attacker, enemies)
					a := action(game.ActionAttack, playerID, game.Payload{
						DroneID:    attacker.InstanceID,
						TargetID:   target.InstanceID,
						TargetKind: string(targeting.TargetDrone),
					})
					droneAttack = &a
				}
			} else if sectionAttack == nil {
				if section := weakestIntactSection(opp); section != "" {
					a := action(game.ActionAttack, playerID, game.Payload{
						DroneID:    attacker.InstanceID,
						TargetID:   section,
						TargetKind: string(targeting.TargetShipSection),
					})
					sectionAttack = &a
				}
			}
		}
	}

	if sectionAttack != nil && (droneAttack == nil || d.weights.SectionAggression >= 2) {
		return *sectionAttack, true
	}
	if droneAttack != nil {
		return *droneAttack, true
	}
	return game.Action{}, false
}

// pickAttackTarget prefers a target the attacker destroys outright, then a
// locked target, then simply the lowest remaining hull.
func pickAttackTarget(attacker game.DroneView, enemies []game.DroneView) game.DroneView {
	piercing := false
	if def, ok := game.DroneTable[attacker.Name]; ok && def.Ability != nil {
		piercing = def.Ability.Kind == game.AbilityPiercing
	}
	best := enemies[0]
	bestScore := -1
	for _, enemy := range enemies {
		effective := enemy.Hull + enemy.Shields
		if piercing {
			effective = enemy.Hull
		}
		score := 0
		if attacker.Attack >= effective {
			score += 100
		}
		if hasStatus(enemy, game.StatusTargetLocked) {
			score += 10
		}
		score += 9 - enemy.Hull
		if score > bestScore {
			best = enemy
			bestScore = score
		}
	}
	return best
}

// decideSectionAbility spends the energy surge when reserves run dry.
func (d *Director) decideSectionAbility(view game.GameStateView, me game.PlayerView, playerID string) (game.Action, bool) {
	if surge, ok := me.Sections["powerCell"]; ok && !surge.Destroyed {
		// The surge is once per round; proposing a spent one would bounce off
		// the engine and strand the seat, so check the used list first.
		if me.Energy <= d.weights.EnergyReserve && !usedAbility(me, game.SectionAbilityEnergySurge) {
			return action(game.ActionShipAbility, playerID, game.Payload{
				Ability: string(game.SectionAbilityEnergySurge),
			}), true
		}
	}
	return game.Action{}, false
}

// decideCardPlay walks the hand in order and plays the first card with a
// payable cost and a worthwhile legal target.
func (d *Director) decideCardPlay(view game.GameStateView, me game.PlayerView, playerID string, route RouteFunc) (game.Action, bool) {
	if route == nil {
		return game.Action{}, false
	}
	for _, card := range me.Hand {
		def, ok := game.CardTable[card.Name]
		if !ok || def.Cost > me.Energy {
			continue
		}
		if def.AdditionalCost != nil {
			// Discard costs trade card advantage away; skip those plays.
			if def.AdditionalCost.Discard > 0 {
				continue
			}
			if me.Momentum < def.AdditionalCost.Momentum {
				continue
			}
		}
		// Movement plays need follow-up judgement the heuristics don't have.
		if def.Effect.Kind == game.EffectMovement {
			continue
		}

		payload := game.Payload{CardID: card.InstanceID}
		if def.Targeting.Type == targeting.TargetNone {
			// Card draw is only worth playing with room in hand.
			if def.Effect.Kind == game.EffectDraw && len(me.Hand)+def.Effect.Value > game.HandLimit+1 {
				continue
			}
			return action(game.ActionCardPlay, playerID, payload), true
		}

		source := targeting.Source{PlayerID: playerID, ID: card.InstanceID}
		candidates := route(playerID, source, def.Targeting)
		target, ok := d.pickCardTarget(view, def, playerID, candidates)
		if !ok {
			continue
		}
		payload.TargetID = target.ID
		payload.TargetKind = string(target.Kind)
		return action(game.ActionCardPlay, playerID, payload), true
	}
	return game.Action{}, false
}

// pickCardTarget chooses a target worth spending the card on. Returning
// false skips the card this turn.
func (d *Director) pickCardTarget(view game.GameStateView, def game.CardDefinition, playerID string, candidates []targeting.Descriptor) (targeting.Descriptor, bool) {
	if len(candidates) == 0 {
		return targeting.Descriptor{}, false
	}

	switch def.Effect.Kind {
	case game.EffectDamage:
		best := targeting.Descriptor{}
		bestHull := 1 << 30
		for _, c := range candidates {
			dv, ok := findDrone(view, c.ID)
			if !ok {
				continue
			}
			if dv.Hull < bestHull {
				best = c
				bestHull = dv.Hull
			}
		}
		if best.ID == "" {
			return targeting.Descriptor{}, false
		}
		return best, true

	case game.EffectHeal:
		for _, c := range candidates {
			dv, ok := findDrone(view, c.ID)
			if !ok {
				continue
			}
			if base, known := game.DroneTable[dv.Name]; known && dv.Hull < base.Hull {
				return c, true
			}
		}
		return targeting.Descriptor{}, false

	case game.EffectStatus:
		for _, c := range candidates {
			dv, ok := findDrone(view, c.ID)
			if !ok {
				continue
			}
			if !hasStatus(dv, def.Effect.Status) {
				return c, true
			}
		}
		return targeting.Descriptor{}, false

	case game.EffectLaneDamage:
		best := targeting.Descriptor{}
		most := 0
		for _, c := range candidates {
			n := len(view.Players[c.OwnerID].Lanes[c.ID])
			if n > most {
				best = c
				most = n
			}
		}
		if most < 2 {
			return targeting.Descriptor{}, false
		}
		return best, true

	case game.EffectReadyDrone:
		for _, c := range candidates {
			dv, ok := findDrone(view, c.ID)
			if ok && dv.Exhausted {
				return c, true
			}
		}
		return targeting.Descriptor{}, false
	}

	return candidates[0], true
}

// allocateShields spreads count shields across intact sections, weakest hull
// first, respecting each section's maximum.
func (d *Director) allocateShields(me game.PlayerView, count int) map[string]int {
	type slot struct {
		name string
		hull int
		max  int
	}
	var slots []slot
	for _, name := range game.SectionOrder {
		s := me.Sections[name]
		if s.Destroyed {
			continue
		}
		slots = append(slots, slot{name: name, hull: s.Hull, max: s.MaxShields})
	}
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].hull < slots[j].hull })

	allocation := make(map[string]int, len(slots))
	for i := range slots {
		if count == 0 {
			break
		}
		give := slots[i].max
		if give > count {
			give = count
		}
		if give > 0 {
			allocation[slots[i].name] = give
			count -= give
		}
	}
	return allocation
}

// nextShieldSection returns the intact section with the lowest hull that can
// still take a shield, or empty when every section is saturated.
func (d *Director) nextShieldSection(me game.PlayerView) string {
	best := ""
	bestHull := 1 << 30
	for _, name := range game.SectionOrder {
		s := me.Sections[name]
		if s.Destroyed || s.Shields >= s.MaxShields {
			continue
		}
		if s.Hull < bestHull {
			best = name
			bestHull = s.Hull
		}
	}
	return best
}

func action(t game.ActionType, playerID string, payload game.Payload) game.Action {
	return game.Action{Type: t, ActingPlayerID: playerID, Payload: payload}
}

// discardPicks returns the instance IDs of the count highest-cost cards.
func discardPicks(hand []game.CardView, count int) []string {
	type entry struct {
		id   string
		cost int
		idx  int
	}
	entries := make([]entry, 0, len(hand))
	for i, c := range hand {
		cost := 0
		if def, ok := game.CardTable[c.Name]; ok {
			cost = def.Cost
		}
		entries = append(entries, entry{id: c.InstanceID, cost: cost, idx: i})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].cost > entries[j].cost })
	if count > len(entries) {
		count = len(entries)
	}
	out := make([]string, 0, count)
	for _, e := range entries[:count] {
		out = append(out, e.id)
	}
	return out
}

// removalPicks returns the count cheapest drones for mandatory removal.
func removalPicks(me game.PlayerView, count int) []string {
	drones := allDrones(me)
	sort.SliceStable(drones, func(i, j int) bool { return drones[i].Cost < drones[j].Cost })
	if count > len(drones) {
		count = len(drones)
	}
	out := make([]string, 0, count)
	for _, d := range drones[:count] {
		out = append(out, d.InstanceID)
	}
	return out
}

func allDrones(me game.PlayerView) []game.DroneView {
	var out []game.DroneView
	for _, lane := range targeting.Lanes {
		out = append(out, me.Lanes[lane]...)
	}
	return out
}

func droneCount(me game.PlayerView) int {
	return len(allDrones(me))
}

func droneLimit(me game.PlayerView) int {
	if hub, ok := me.Sections["droneControlHub"]; ok && hub.Destroyed {
		return game.DroneCapacityNoHub
	}
	return game.DroneCapacity
}

func emptiestLane(me game.PlayerView) string {
	best := ""
	fewest := game.MaxDronesPerLane
	for _, lane := range targeting.Lanes {
		if n := len(me.Lanes[lane]); n < fewest {
			best = lane
			fewest = n
		}
	}
	return best
}

func opponentView(view game.GameStateView, playerID string) (game.PlayerView, bool) {
	for _, id := range view.PlayerOrder {
		if id != playerID {
			p, ok := view.Players[id]
			return p, ok
		}
	}
	return game.PlayerView{}, false
}

func findDrone(view game.GameStateView, instanceID string) (game.DroneView, bool) {
	for _, id := range view.PlayerOrder {
		p := view.Players[id]
		for _, lane := range targeting.Lanes {
			for _, d := range p.Lanes[lane] {
				if d.InstanceID == instanceID {
					return d, true
				}
			}
		}
	}
	return game.DroneView{}, false
}

func usedAbility(me game.PlayerView, kind game.SectionAbilityKind) bool {
	for _, used := range me.UsedAbilities {
		if used == string(kind) {
			return true
		}
	}
	return false
}

func hasStatus(d game.DroneView, kind game.StatusKind) bool {
	for _, s := range d.Statuses {
		if s == kind {
			return true
		}
	}
	return false
}

func weakestIntactSection(p game.PlayerView) string {
	best := ""
	bestHull := 1 << 30
	for _, name := range game.SectionOrder {
		s := p.Sections[name]
		if s.Destroyed {
			continue
		}
		if s.Hull < bestHull {
			best = name
			bestHull = s.Hull
		}
	}
	return best
}
