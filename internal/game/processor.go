package game

import (
	"fmt"

	"github.com/Farjord/dronewars-server/internal/game/rules"
	"github.com/Farjord/dronewars-server/internal/game/targeting"
)

// process validates and applies one action under the match lock. Every
// handler performs its legality checks before the first mutation, so a
// rejection always leaves the state untouched.
func (e *Engine) process(gs *gameState, action Action) Result {
	if _, ok := gs.players[action.ActingPlayerID]; !ok {
		return reject("unknown acting player")
	}
	if gs.winner != "" {
		return reject("match is over")
	}
	if gs.awaitingAck && action.Type != ActionAcknowledgeFirstPlayer {
		return reject("awaiting first-player acknowledgement")
	}
	if gs.pending != nil && !resumesPending(gs.pending, action) {
		return reject("another action is awaiting a decision")
	}

	switch action.Type {
	case ActionAcknowledgeFirstPlayer:
		return e.handleAcknowledgeFirstPlayer(gs, action)
	case ActionCommitPhase:
		return e.handleCommitPhase(gs, action)
	case ActionAllocateShield:
		return e.handleAllocateShield(gs, action)
	case ActionDeployment:
		return e.handleDeployment(gs, action)
	case ActionTurnTransition:
		return e.handleTurnTransition(gs, action)
	case ActionAttack:
		return e.handleAttack(gs, action)
	case ActionSuppressedConsumption:
		return e.handleSuppressedConsumption(gs, action)
	case ActionSnaredConsumption:
		return e.handleSnaredConsumption(gs, action)
	case ActionCardPlay:
		return e.handleCardPlay(gs, action)
	case ActionMove:
		return e.handleMove(gs, action)
	case ActionMovementCompletion:
		return e.handleMovementCompletion(gs, action)
	case ActionSearchAndDrawCompletion:
		return e.handleSearchAndDrawCompletion(gs, action)
	case ActionMandatoryDiscard:
		return e.handleMandatoryDiscard(gs, action)
	case ActionAbility:
		return e.handleAbility(gs, action)
	case ActionShipAbility:
		return e.handleShipAbility(gs, action, SectionAbilityKind(action.Payload.Ability))
	case ActionRecallAbility:
		return e.handleShipAbility(gs, action, SectionAbilityRecall)
	case ActionTargetLockAbility:
		return e.handleShipAbility(gs, action, SectionAbilityTargetLock)
	case ActionRecalculateAbility:
		return e.handleShipAbility(gs, action, SectionAbilityRecalculate)
	case ActionReallocateShieldsComplete:
		return e.handleReallocateShieldsComplete(gs, action)
	}
	return reject(fmt.Sprintf("unrecognized action type %q", action.Type))
}

// resumesPending reports whether the action is the follow-up the suspended
// pipeline is waiting for.
func resumesPending(p *pendingDecision, action Action) bool {
	if action.Payload.Token != p.Token || action.ActingPlayerID != p.PlayerID {
		return false
	}
	switch p.Kind {
	case pendingInterception:
		return action.Type == ActionAttack
	case pendingSuppression:
		return action.Type == ActionSuppressedConsumption
	case pendingSearchAndDraw:
		return action.Type == ActionSearchAndDrawCompletion
	case pendingMovement:
		return action.Type == ActionMovementCompletion
	case pendingMandatoryDiscard:
		return action.Type == ActionMandatoryDiscard
	case pendingShieldReallocation:
		return action.Type == ActionReallocateShieldsComplete
	}
	return false
}

// requireTurn checks the alternating-phase preconditions: correct phase
// family, turn ownership, pass status. Returns a rejection reason or empty.
func (gs *gameState) requireTurn(playerID string, phases ...rules.Phase) string {
	current := gs.phases.CurrentPhase()
	ok := false
	for _, p := range phases {
		if current == p {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Sprintf("not allowed during %s", current)
	}
	if gs.phases.ActivePlayer() != playerID {
		return "not your turn"
	}
	if gs.players[playerID].Passed {
		return "already passed"
	}
	return ""
}

func (e *Engine) handleAcknowledgeFirstPlayer(gs *gameState, action Action) Result {
	if !gs.awaitingAck {
		return reject("first player already acknowledged")
	}
	p := gs.players[action.ActingPlayerID]
	if p.AckedFirstPlayer {
		// Duplicate acknowledgement is a no-op.
		return Result{Accepted: true}
	}
	p.AckedFirstPlayer = true
	both := true
	for _, id := range gs.playerOrder {
		if !gs.players[id].AckedFirstPlayer {
			both = false
		}
	}
	if both {
		gs.awaitingAck = false
		gs.bus.Publish(rules.NewEvent(rules.EventFirstPlayerChosen, gs.phases.FirstPlayer(), "", gs.phases.FirstPlayer()))
		gs.appendLog(action.ActingPlayerID, fmt.Sprintf("round 1 begins, %s has initiative", gs.phases.FirstPlayer()), nil)
	}
	return Result{Accepted: true}
}

// phaseApplies decides whether a conditional phase is entered this round.
func phaseApplies(gs *gameState, phase rules.Phase) bool {
	switch phase {
	case rules.PhaseMandatoryDiscard:
		for _, id := range gs.playerOrder {
			if len(gs.players[id].Hand) > HandLimit {
				return true
			}
		}
		return false
	case rules.PhaseMandatoryDroneRemoval:
		for _, id := range gs.playerOrder {
			p := gs.players[id]
			if p.droneCount() > p.droneLimit() {
				return true
			}
		}
		return false
	}
	return true
}

// advancePhase leaves the current phase and enters the next applicable one,
// running its entry work (commit slots, round upkeep, pass-flag resets).
func (e *Engine) advancePhase(gs *gameState) {
	gs.commits.Clear(gs.phases.CurrentPhase())
	next := gs.phases.Advance(func(p rules.Phase) bool { return phaseApplies(gs, p) })

	switch next {
	case rules.PhaseOptionalDiscard:
		gs.commits.Begin(next)

	case rules.PhaseMandatoryDiscard:
		gs.commits.Begin(next)
		for _, id := range gs.playerOrder {
			if len(gs.players[id].Hand) <= HandLimit {
				gs.commits.Commit(next, id, nil)
			}
		}

	case rules.PhaseMandatoryDroneRemoval:
		gs.commits.Begin(next)
		for _, id := range gs.playerOrder {
			p := gs.players[id]
			if p.droneCount() <= p.droneLimit() {
				gs.commits.Commit(next, id, nil)
			}
		}

	case rules.PhaseAllocateShields:
		// Round upkeep: drones ready, resources reset, shields granted.
		for _, id := range gs.playerOrder {
			p := gs.players[id]
			for _, lane := range targeting.Lanes {
				for _, d := range p.Lanes[lane] {
					d.Exhausted = false
				}
			}
			energy := energyPerRound
			if p.Sections["powerCell"].destroyed() {
				energy -= energyPowerCellLoss
			}
			p.Energy = energy
			p.ShieldsToAllocate = shieldsPerRound
			p.DeployedThisRound = 0
			p.AttacksThisTurn = 0
			p.Passed = false
			p.UsedAbilities = make(map[SectionAbilityKind]bool)
		}
		gs.commits.Begin(next)

	case rules.PhaseDeployment, rules.PhaseAction:
		for _, id := range gs.playerOrder {
			gs.players[id].Passed = false
			gs.players[id].AttacksThisTurn = 0
		}
	}
}

func (e *Engine) handleCommitPhase(gs *gameState, action Action) Result {
	current := gs.phases.CurrentPhase()
	if action.Payload.Phase != "" && action.Payload.Phase != current.String() {
		// Late commit for an already-exited phase: a no-op, not an error.
		return Result{Accepted: true}
	}
	if !current.Simultaneous() {
		return reject(fmt.Sprintf("%s is not a simultaneous phase", current))
	}
	p := gs.players[action.ActingPlayerID]
	if gs.commits.Completed(current, action.ActingPlayerID) {
		// Duplicate commit is a no-op, never a re-application.
		return Result{Accepted: true}
	}

	// Validate before mutating.
	discards := action.Payload.CardIDs
	switch current {
	case rules.PhaseOptionalDiscard:
		if reason := validateHandCards(p, discards); reason != "" {
			return reject(reason)
		}
	case rules.PhaseMandatoryDiscard:
		excess := len(p.Hand) - HandLimit
		if excess < 0 {
			excess = 0
		}
		if len(discards) != excess {
			return reject(fmt.Sprintf("must discard exactly %d cards", excess))
		}
		if reason := validateHandCards(p, discards); reason != "" {
			return reject(reason)
		}
	case rules.PhaseMandatoryDroneRemoval:
		excess := p.droneCount() - p.droneLimit()
		if excess < 0 {
			excess = 0
		}
		if len(action.Payload.DroneIDs) != excess {
			return reject(fmt.Sprintf("must remove exactly %d drones", excess))
		}
		for _, id := range action.Payload.DroneIDs {
			d, ok := gs.drones[id]
			if !ok || d.OwnerID != action.ActingPlayerID {
				return reject("drone selection references a drone you do not control")
			}
		}
		if !uniqueStrings(action.Payload.DroneIDs) {
			return reject("duplicate drone in selection")
		}
	case rules.PhaseAllocateShields:
		// Allocation happened incrementally via allocateShield; unspent
		// shields are forfeited on commit.
	}

	// Apply.
	switch current {
	case rules.PhaseOptionalDiscard, rules.PhaseMandatoryDiscard:
		discardByIDs(gs, p, discards)
	case rules.PhaseMandatoryDroneRemoval:
		for _, id := range action.Payload.DroneIDs {
			d := gs.drones[id]
			gs.removeDrone(d)
			gs.bus.Publish(rules.NewEvent(rules.EventDroneDestroyed, d.InstanceID, "", action.ActingPlayerID))
		}
	case rules.PhaseAllocateShields:
		p.ShieldsToAllocate = 0
	}

	gs.commits.Commit(current, action.ActingPlayerID, map[string]string{
		"discards": fmt.Sprintf("%d", len(discards)),
	})
	gs.appendLog(action.ActingPlayerID, fmt.Sprintf("committed %s", current), nil)

	// Phase advances at the instant the second flag flips.
	status := gs.commits.Status(current)
	both := true
	for _, id := range gs.playerOrder {
		if !status[id].Completed {
			both = false
		}
	}
	if both {
		if current == rules.PhaseOptionalDiscard {
			for _, id := range gs.playerOrder {
				player := gs.players[id]
				if n := HandLimit - len(player.Hand); n > 0 {
					gs.drawCards(player, n)
				}
			}
		}
		e.advancePhase(gs)
	}
	return Result{Accepted: true}
}

func (e *Engine) handleAllocateShield(gs *gameState, action Action) Result {
	if gs.phases.CurrentPhase() != rules.PhaseAllocateShields {
		return reject("shields can only be allocated during ALLOCATE_SHIELDS")
	}
	p := gs.players[action.ActingPlayerID]
	if gs.commits.Completed(rules.PhaseAllocateShields, action.ActingPlayerID) {
		return reject("shield allocation already committed")
	}
	if p.ShieldsToAllocate <= 0 {
		return reject("no shields left to allocate")
	}
	section, ok := p.Sections[action.Payload.Section]
	if !ok {
		return reject("unknown ship section")
	}
	if section.destroyed() {
		return reject("cannot shield a destroyed section")
	}
	if section.Shields >= section.MaxShields {
		return reject("section shields already at maximum")
	}

	section.Shields++
	p.ShieldsToAllocate--
	gs.bus.Publish(rules.NewEventWithAmount(rules.EventShieldsAllocated, section.Name, "", action.ActingPlayerID, 1))
	return Result{Accepted: true}
}

func (e *Engine) handleDeployment(gs *gameState, action Action) Result {
	if reason := gs.requireTurn(action.ActingPlayerID, rules.PhaseDeployment); reason != "" {
		return reject(reason)
	}
	p := gs.players[action.ActingPlayerID]
	def, ok := DroneTable[action.Payload.DroneName]
	if !ok {
		return reject("unknown drone type")
	}
	if !laneExists(action.Payload.Lane) {
		return reject("unknown lane")
	}
	if p.Energy < def.Cost {
		return reject("insufficient energy")
	}
	if len(p.Lanes[action.Payload.Lane]) >= MaxDronesPerLane {
		return reject("lane is full")
	}
	if p.droneCount() >= p.droneLimit() {
		return reject("drone capacity reached")
	}

	p.Energy -= def.Cost
	d := gs.placeDrone(p, def.Name, action.Payload.Lane)
	p.DeployedThisRound++
	gs.bus.Publish(rules.NewEvent(rules.EventDroneDeployed, d.InstanceID, "", action.ActingPlayerID))
	gs.appendLog(action.ActingPlayerID, fmt.Sprintf("deployed %s to %s", def.Name, action.Payload.Lane), map[string]string{
		"drone": d.InstanceID,
		"lane":  action.Payload.Lane,
	})
	return Result{Accepted: true}
}

func (e *Engine) handleTurnTransition(gs *gameState, action Action) Result {
	if reason := gs.requireTurn(action.ActingPlayerID, rules.PhaseDeployment, rules.PhaseAction); reason != "" {
		return reject(reason)
	}
	p := gs.players[action.ActingPlayerID]
	oppID := gs.opponentOf(action.ActingPlayerID)
	opp := gs.players[oppID]

	if action.Payload.Pass {
		p.Passed = true
		gs.appendLog(action.ActingPlayerID, "passed", nil)
	}
	p.AttacksThisTurn = 0

	if p.Passed && opp.Passed {
		// Phase over. Initiative for the next round swaps when the action
		// phase closes out the round.
		if gs.phases.CurrentPhase() == rules.PhaseAction {
			gs.phases.ScheduleNextFirstPlayer(gs.opponentOf(gs.phases.FirstPlayer()))
		}
		e.advancePhase(gs)
		return Result{Accepted: true}
	}
	if !opp.Passed {
		gs.phases.SetActivePlayer(oppID)
	}
	gs.bus.Publish(rules.NewEvent(rules.EventTurnTransition, gs.phases.ActivePlayer(), "", action.ActingPlayerID))
	return Result{Accepted: true}
}

// finishAttack runs the combat resolver and converts its outcome into a
// processor result, installing a pending decision for suspensions.
func (e *Engine) finishAttack(gs *gameState, details AttackDetails) Result {
	defenderID := gs.opponentOf(details.ActingPlayerID)
	var chooseAI func([]targeting.Descriptor) string
	if gs.controllers[defenderID] == ControllerAI && e.chooser != nil {
		chooseAI = func(candidates []targeting.Descriptor) string {
			return e.chooser.ChooseInterceptor(gs.viewLocked(), defenderID, candidates)
		}
	}

	outcome := gs.resolveAttack(details, chooseAI)

	if outcome.needsSuppression {
		token := gs.nextID("decision")
		stored := details
		gs.pending = &pendingDecision{
			Token:    token,
			Kind:     pendingSuppression,
			PlayerID: details.ActingPlayerID,
			Attack:   &stored,
		}
		gs.bus.Publish(rules.NewEvent(rules.EventAttackSuspended, details.TargetID, details.AttackerID, details.ActingPlayerID))
		return Result{
			Accepted:      true,
			DecisionToken: token,
			MandatoryAction: &MandatoryAction{
				Type:     ActionSuppressedConsumption,
				PlayerID: details.ActingPlayerID,
			},
		}
	}
	if outcome.needsInterception {
		token := gs.nextID("decision")
		stored := details
		gs.pending = &pendingDecision{
			Token:      token,
			Kind:       pendingInterception,
			PlayerID:   defenderID,
			Attack:     &stored,
			Candidates: outcome.candidates,
		}
		gs.bus.Publish(rules.NewEvent(rules.EventAttackSuspended, details.TargetID, details.AttackerID, details.ActingPlayerID))
		return Result{
			Accepted:                  true,
			NeedsInterceptionDecision: true,
			DecisionToken:             token,
			Candidates:                outcome.candidates,
		}
	}

	return Result{Accepted: true, Winner: outcome.winner}
}

func (e *Engine) handleAttack(gs *gameState, action Action) Result {
	// Follow-up call resuming a suspended interception decision. An invalid
	// pick is rejected outright; the pending decision stays open so the
	// defender can answer again.
	if gs.pending != nil && gs.pending.Kind == pendingInterception {
		details := *gs.pending.Attack
		details.InterceptionDecided = true
		if !action.Payload.Decline {
			if !descriptorListContains(gs.pending.Candidates, action.Payload.InterceptorID) {
				return reject("interceptor is not an eligible candidate")
			}
			details.InterceptorID = action.Payload.InterceptorID
		}
		gs.pending = nil
		return e.finishAttack(gs, details)
	}

	if reason := gs.requireTurn(action.ActingPlayerID, rules.PhaseAction); reason != "" {
		return reject(reason)
	}
	attacker, ok := gs.drones[action.Payload.DroneID]
	if !ok {
		return reject("attacker no longer exists")
	}
	if attacker.OwnerID != action.ActingPlayerID {
		return reject("you do not control the attacker")
	}
	if attacker.Exhausted {
		return reject("attacker is exhausted")
	}
	if attacker.Statuses.Has(StatusSnared) {
		return reject("attacker is snared; the snare must be consumed first")
	}

	defenderID := gs.opponentOf(action.ActingPlayerID)
	kind := targeting.TargetType(action.Payload.TargetKind)
	switch kind {
	case targeting.TargetDrone:
		target, found := gs.drones[action.Payload.TargetID]
		if !found {
			return reject("target no longer exists")
		}
		if target.OwnerID != defenderID {
			return reject("cannot attack your own drone")
		}
		if target.Lane != attacker.Lane {
			return reject("target is not in the attacker's lane")
		}
	case targeting.TargetShipSection:
		section, found := gs.players[defenderID].Sections[action.Payload.TargetID]
		if !found {
			return reject("unknown ship section")
		}
		if section.destroyed() {
			return reject("section is already destroyed")
		}
		if len(gs.players[defenderID].Lanes[attacker.Lane]) > 0 {
			return reject("enemy drones are defending this lane")
		}
	default:
		return reject("invalid attack target kind")
	}

	details := AttackDetails{
		AttackerID:     attacker.InstanceID,
		ActingPlayerID: action.ActingPlayerID,
		TargetID:       action.Payload.TargetID,
		TargetKind:     kind,
		Lane:           attacker.Lane,
	}
	gs.bus.Publish(rules.NewEvent(rules.EventAttackDeclared, details.TargetID, details.AttackerID, action.ActingPlayerID))
	return e.finishAttack(gs, details)
}

func (e *Engine) handleSuppressedConsumption(gs *gameState, action Action) Result {
	if gs.pending == nil || gs.pending.Kind != pendingSuppression {
		return reject("no suppressed attack awaiting confirmation")
	}
	details := *gs.pending.Attack
	gs.pending = nil

	if !action.Payload.Proceed {
		// Explicit cancellation: the suppression is not consumed and the
		// attacker keeps its activation.
		gs.appendLog(action.ActingPlayerID, "cancelled suppressed attack", nil)
		return Result{Accepted: true}
	}
	details.SuppressionConfirmed = true
	return e.finishAttack(gs, details)
}

func (e *Engine) handleSnaredConsumption(gs *gameState, action Action) Result {
	if reason := gs.requireTurn(action.ActingPlayerID, rules.PhaseAction); reason != "" {
		return reject(reason)
	}
	d, ok := gs.drones[action.Payload.DroneID]
	if !ok || d.OwnerID != action.ActingPlayerID {
		return reject("you do not control that drone")
	}
	if !d.Statuses.Has(StatusSnared) {
		return reject("drone is not snared")
	}
	if d.Exhausted {
		return reject("drone is exhausted")
	}

	d.Statuses.Consume(StatusSnared)
	d.Exhausted = true
	gs.bus.Publish(rules.NewEvent(rules.EventStatusConsumed, d.InstanceID, "", action.ActingPlayerID))
	gs.appendLog(action.ActingPlayerID, fmt.Sprintf("%s broke free of the snare", d.InstanceID), nil)
	return Result{Accepted: true}
}

func (e *Engine) handleCardPlay(gs *gameState, action Action) Result {
	if reason := gs.requireTurn(action.ActingPlayerID, rules.PhaseAction); reason != "" {
		return reject(reason)
	}
	p := gs.players[action.ActingPlayerID]
	idx, card := gs.findHandCard(p, action.Payload.CardID)
	if card == nil {
		return reject("card is not in your hand")
	}
	def, ok := CardTable[card.DefName]
	if !ok {
		return reject("unknown card definition")
	}
	if p.Energy < def.Cost {
		return reject("insufficient energy")
	}

	// Additional costs are validated and named upfront so the whole play is
	// still atomic.
	var costDiscards []string
	if def.AdditionalCost != nil {
		if p.Momentum < def.AdditionalCost.Momentum {
			return reject("insufficient momentum")
		}
		if def.AdditionalCost.Discard > 0 {
			costDiscards = action.Payload.CardIDs
			if len(costDiscards) != def.AdditionalCost.Discard {
				return reject(fmt.Sprintf("must discard %d additional cards", def.AdditionalCost.Discard))
			}
			for _, id := range costDiscards {
				if id == card.InstanceID {
					return reject("cannot discard the played card to pay its cost")
				}
			}
			if reason := validateHandCards(p, costDiscards); reason != "" {
				return reject(reason)
			}
		}
	}

	// Targeted effects require a non-empty resolver result containing the
	// declared target.
	var target targeting.Descriptor
	if def.Targeting.Type != targeting.TargetNone {
		source := targeting.Source{PlayerID: action.ActingPlayerID, ID: card.InstanceID}
		candidates := targeting.Route(action.ActingPlayerID, source, def.Targeting,
			gs.boardFor(gs.playerOrder[0]), gs.boardFor(gs.playerOrder[1]))
		if len(candidates) == 0 {
			return reject("no valid targets")
		}
		found := false
		for _, c := range candidates {
			if c.ID == action.Payload.TargetID && (action.Payload.TargetKind == "" || string(c.Kind) == action.Payload.TargetKind) {
				target = c
				found = true
				break
			}
		}
		if !found {
			return reject("declared target is not legal")
		}
	}

	// Movement needs capacity and movable drones before any cost is paid.
	if def.Effect.Kind == EffectMovement {
		free := MaxDronesPerLane - len(p.Lanes[target.ID])
		movable := movementCandidates(p, target.ID)
		if free <= 0 || len(movable) == 0 {
			return reject("no valid targets")
		}
	}

	// Pay costs and consume the card.
	p.Energy -= def.Cost
	if def.AdditionalCost != nil {
		p.Momentum -= def.AdditionalCost.Momentum
		discardByIDs(gs, p, costDiscards)
		// Re-find the played card; discards shifted the hand.
		idx, _ = gs.findHandCard(p, card.InstanceID)
	}
	played := p.Hand[idx]
	p.Hand = append(p.Hand[:idx], p.Hand[idx+1:]...)
	p.Discard = append(p.Discard, played)
	gs.bus.Publish(rules.NewEvent(rules.EventCardPlayed, played.InstanceID, "", action.ActingPlayerID))
	gs.appendLog(action.ActingPlayerID, fmt.Sprintf("played %s", def.Name), map[string]string{
		"card":   played.InstanceID,
		"target": target.ID,
	})

	return e.applyCardEffect(gs, action.ActingPlayerID, def, played.InstanceID, target)
}

// movementCandidates lists the player's drones outside the destination lane.
func movementCandidates(p *internalPlayer, destLane string) []string {
	var out []string
	for _, lane := range targeting.Lanes {
		if lane == destLane {
			continue
		}
		for _, d := range p.Lanes[lane] {
			out = append(out, d.InstanceID)
		}
	}
	return out
}

// applyCardEffect resolves a card or ability effect against its target,
// returning the result including any pipeline interrupt.
func (e *Engine) applyCardEffect(gs *gameState, playerID string, def CardDefinition, sourceID string, target targeting.Descriptor) Result {
	p := gs.players[playerID]

	switch def.Effect.Kind {
	case EffectDamage:
		return e.applyEffectDamage(gs, playerID, sourceID, target, def.Effect.Value)

	case EffectLaneDamage:
		victims := append([]*internalDrone(nil), gs.players[target.OwnerID].Lanes[target.ID]...)
		for _, d := range victims {
			e.damageDrone(gs, playerID, sourceID, d, def.Effect.Value, false)
		}
		return Result{Accepted: true, Winner: gs.checkWin()}

	case EffectHeal:
		d, ok := gs.drones[target.ID]
		if !ok {
			return reject("target no longer exists")
		}
		max := DroneTable[d.Name].Hull
		d.Hull += def.Effect.Value
		if d.Hull > max {
			d.Hull = max
		}
		return Result{Accepted: true}

	case EffectStatus:
		d, ok := gs.drones[target.ID]
		if !ok {
			return reject("target no longer exists")
		}
		d.Statuses.Add(def.Effect.Status, def.Effect.Value)
		gs.bus.Publish(rules.NewEvent(rules.EventStatusApplied, d.InstanceID, sourceID, playerID))
		return Result{Accepted: true}

	case EffectReadyDrone:
		d, ok := gs.drones[target.ID]
		if !ok {
			return reject("target no longer exists")
		}
		d.Exhausted = false
		return Result{Accepted: true}

	case EffectDraw:
		gs.drawCards(p, def.Effect.Value)
		if len(p.Hand) > HandLimit {
			token := gs.nextID("decision")
			count := len(p.Hand) - HandLimit
			gs.pending = &pendingDecision{
				Token:    token,
				Kind:     pendingMandatoryDiscard,
				PlayerID: playerID,
				Count:    count,
			}
			return Result{
				Accepted:      true,
				DecisionToken: token,
				MandatoryAction: &MandatoryAction{
					Type:     ActionMandatoryDiscard,
					PlayerID: playerID,
					Count:    count,
				},
			}
		}
		return Result{Accepted: true}

	case EffectSearchAndDraw:
		depth := 5
		if depth > len(p.Deck) {
			depth = len(p.Deck)
		}
		if depth == 0 {
			return Result{Accepted: true}
		}
		choices := make([]string, depth)
		for i := 0; i < depth; i++ {
			choices[i] = p.Deck[i].InstanceID
		}
		count := def.Effect.Value
		if count > depth {
			count = depth
		}
		token := gs.nextID("decision")
		gs.pending = &pendingDecision{
			Token:    token,
			Kind:     pendingSearchAndDraw,
			PlayerID: playerID,
			Choices:  choices,
			Count:    count,
		}
		return Result{
			Accepted:           true,
			NeedsCardSelection: true,
			DecisionToken:      token,
			CardChoices:        choices,
			SelectCount:        count,
		}

	case EffectMovement:
		candidates := movementCandidates(p, target.ID)
		count := def.Effect.Value
		if free := MaxDronesPerLane - len(p.Lanes[target.ID]); count > free {
			count = free
		}
		if count > len(candidates) {
			count = len(candidates)
		}
		token := gs.nextID("decision")
		gs.pending = &pendingDecision{
			Token:    token,
			Kind:     pendingMovement,
			PlayerID: playerID,
			Choices:  candidates,
			Count:    count,
			Lane:     target.ID,
		}
		return Result{
			Accepted:           true,
			NeedsCardSelection: true,
			DecisionToken:      token,
			CardChoices:        candidates,
			SelectCount:        count,
		}
	}

	return reject("unknown effect kind")
}

// applyEffectDamage damages a single drone or section target.
func (e *Engine) applyEffectDamage(gs *gameState, playerID, sourceID string, target targeting.Descriptor, amount int) Result {
	switch target.Kind {
	case targeting.TargetDrone:
		d, ok := gs.drones[target.ID]
		if !ok {
			return reject("target no longer exists")
		}
		e.damageDrone(gs, playerID, sourceID, d, amount, false)
	case targeting.TargetShipSection:
		section := gs.players[target.OwnerID].Sections[target.ID]
		sh, hull := applyDamage(amount, section.Shields, section.Hull, false)
		section.Shields, section.Hull = sh, hull
		gs.bus.Publish(rules.NewEventWithAmount(rules.EventSectionDamaged, target.ID, sourceID, playerID, amount))
		if section.destroyed() {
			gs.bus.Publish(rules.NewEvent(rules.EventSectionDestroyed, target.ID, sourceID, playerID))
		}
	default:
		return reject("effect cannot damage that target")
	}
	return Result{Accepted: true, Winner: gs.checkWin()}
}

// damageDrone applies effect damage with the destruction cascade.
func (e *Engine) damageDrone(gs *gameState, playerID, sourceID string, d *internalDrone, amount int, piercing bool) {
	sh, hull := applyDamage(amount, d.Shields, d.Hull, piercing)
	d.Shields, d.Hull = sh, hull
	gs.bus.Publish(rules.NewEventWithAmount(rules.EventDroneDamaged, d.InstanceID, sourceID, playerID, amount))
	if d.Hull <= 0 {
		gs.removeDrone(d)
		gs.bus.Publish(rules.NewEvent(rules.EventDroneDestroyed, d.InstanceID, sourceID, playerID))
	}
}

func (e *Engine) handleMove(gs *gameState, action Action) Result {
	if reason := gs.requireTurn(action.ActingPlayerID, rules.PhaseAction); reason != "" {
		return reject(reason)
	}
	p := gs.players[action.ActingPlayerID]
	d, ok := gs.drones[action.Payload.DroneID]
	if !ok || d.OwnerID != action.ActingPlayerID {
		return reject("you do not control that drone")
	}
	if d.Exhausted {
		return reject("drone is exhausted")
	}
	if d.Statuses.Has(StatusSnared) {
		return reject("drone is snared; the snare must be consumed first")
	}
	if !laneExists(action.Payload.Lane) {
		return reject("unknown lane")
	}
	if action.Payload.Lane == d.Lane {
		return reject("drone is already in that lane")
	}
	if p.Energy < moveEnergyCost {
		return reject("insufficient energy")
	}
	if len(p.Lanes[action.Payload.Lane]) >= MaxDronesPerLane {
		return reject("lane is full")
	}

	p.Energy -= moveEnergyCost
	from := d.Lane
	gs.moveDrone(d, action.Payload.Lane)
	d.Exhausted = true
	gs.bus.Publish(rules.NewEvent(rules.EventDroneMoved, d.InstanceID, "", action.ActingPlayerID))
	gs.appendLog(action.ActingPlayerID, fmt.Sprintf("moved %s from %s to %s", d.InstanceID, from, action.Payload.Lane), nil)
	return Result{Accepted: true}
}

func (e *Engine) handleMovementCompletion(gs *gameState, action Action) Result {
	if gs.pending == nil || gs.pending.Kind != pendingMovement {
		return reject("no movement awaiting completion")
	}
	pending := gs.pending
	ids := action.Payload.DroneIDs
	if len(ids) == 0 || len(ids) > pending.Count {
		return reject(fmt.Sprintf("select between 1 and %d drones", pending.Count))
	}
	if !uniqueStrings(ids) {
		return reject("duplicate drone in selection")
	}
	for _, id := range ids {
		if !stringInList(pending.Choices, id) {
			return reject("selection includes an ineligible drone")
		}
	}
	p := gs.players[action.ActingPlayerID]
	if len(p.Lanes[pending.Lane])+len(ids) > MaxDronesPerLane {
		return reject("destination lane cannot hold that many drones")
	}

	gs.pending = nil
	for _, id := range ids {
		d := gs.drones[id]
		gs.moveDrone(d, pending.Lane)
		gs.bus.Publish(rules.NewEvent(rules.EventDroneMoved, d.InstanceID, "", action.ActingPlayerID))
	}
	gs.appendLog(action.ActingPlayerID, fmt.Sprintf("moved %d drones to %s", len(ids), pending.Lane), nil)
	return Result{Accepted: true}
}

func (e *Engine) handleSearchAndDrawCompletion(gs *gameState, action Action) Result {
	if gs.pending == nil || gs.pending.Kind != pendingSearchAndDraw {
		return reject("no search awaiting completion")
	}
	pending := gs.pending
	ids := action.Payload.CardIDs
	if len(ids) != pending.Count {
		return reject(fmt.Sprintf("select exactly %d cards", pending.Count))
	}
	if !uniqueStrings(ids) {
		return reject("duplicate card in selection")
	}
	for _, id := range ids {
		if !stringInList(pending.Choices, id) {
			return reject("selection includes an ineligible card")
		}
	}

	gs.pending = nil
	p := gs.players[action.ActingPlayerID]

	// Chosen cards go to hand; the rest of the searched window goes to the
	// bottom of the deck in its original order.
	depth := len(pending.Choices)
	window := append([]cardInstance(nil), p.Deck[:depth]...)
	p.Deck = p.Deck[depth:]
	for _, id := range ids {
		for _, card := range window {
			if card.InstanceID == id {
				p.Hand = append(p.Hand, card)
				gs.bus.Publish(rules.NewEvent(rules.EventCardDrawn, card.InstanceID, "", action.ActingPlayerID))
			}
		}
	}
	for _, card := range window {
		if !stringInList(ids, card.InstanceID) {
			p.Deck = append(p.Deck, card)
		}
	}

	if len(p.Hand) > HandLimit {
		token := gs.nextID("decision")
		count := len(p.Hand) - HandLimit
		gs.pending = &pendingDecision{
			Token:    token,
			Kind:     pendingMandatoryDiscard,
			PlayerID: action.ActingPlayerID,
			Count:    count,
		}
		return Result{
			Accepted:      true,
			DecisionToken: token,
			MandatoryAction: &MandatoryAction{
				Type:     ActionMandatoryDiscard,
				PlayerID: action.ActingPlayerID,
				Count:    count,
			},
		}
	}
	return Result{Accepted: true}
}

func (e *Engine) handleMandatoryDiscard(gs *gameState, action Action) Result {
	if gs.pending == nil || gs.pending.Kind != pendingMandatoryDiscard {
		return reject("no mandatory discard is pending")
	}
	pending := gs.pending
	p := gs.players[action.ActingPlayerID]
	ids := action.Payload.CardIDs
	if len(ids) != pending.Count {
		return reject(fmt.Sprintf("must discard exactly %d cards", pending.Count))
	}
	if reason := validateHandCards(p, ids); reason != "" {
		return reject(reason)
	}

	gs.pending = nil
	discardByIDs(gs, p, ids)
	gs.appendLog(action.ActingPlayerID, fmt.Sprintf("discarded %d cards over the hand limit", len(ids)), nil)
	return Result{Accepted: true}
}

func (e *Engine) handleAbility(gs *gameState, action Action) Result {
	if reason := gs.requireTurn(action.ActingPlayerID, rules.PhaseAction); reason != "" {
		return reject(reason)
	}
	d, ok := gs.drones[action.Payload.DroneID]
	if !ok || d.OwnerID != action.ActingPlayerID {
		return reject("you do not control that drone")
	}
	def := DroneTable[d.Name]
	if def.Activated == nil {
		return reject("drone has no activated ability")
	}
	if def.Activated.Exhausts && d.Exhausted {
		return reject("drone is exhausted")
	}
	if d.Statuses.Has(StatusSnared) {
		return reject("drone is snared; the snare must be consumed first")
	}
	p := gs.players[action.ActingPlayerID]
	if p.Energy < def.Activated.Cost {
		return reject("insufficient energy")
	}

	var target targeting.Descriptor
	if def.Activated.Targeting.Type != targeting.TargetNone {
		source := targeting.Source{PlayerID: action.ActingPlayerID, ID: d.InstanceID, Lane: d.Lane}
		candidates := targeting.Route(action.ActingPlayerID, source, def.Activated.Targeting,
			gs.boardFor(gs.playerOrder[0]), gs.boardFor(gs.playerOrder[1]))
		if len(candidates) == 0 {
			return reject("no valid targets")
		}
		found := false
		for _, c := range candidates {
			if c.ID == action.Payload.TargetID {
				target = c
				found = true
				break
			}
		}
		if !found {
			return reject("declared target is not legal")
		}
	}

	p.Energy -= def.Activated.Cost
	if def.Activated.Exhausts {
		d.Exhausted = true
	}
	gs.appendLog(action.ActingPlayerID, fmt.Sprintf("%s used its ability", d.InstanceID), nil)
	effectDef := CardDefinition{Name: d.Name, Effect: def.Activated.Effect}
	return e.applyCardEffect(gs, action.ActingPlayerID, effectDef, d.InstanceID, target)
}

func (e *Engine) handleShipAbility(gs *gameState, action Action, kind SectionAbilityKind) Result {
	if reason := gs.requireTurn(action.ActingPlayerID, rules.PhaseAction); reason != "" {
		return reject(reason)
	}
	cost, known := SectionAbilityCost[kind]
	if !known {
		return reject("unknown ship ability")
	}
	p := gs.players[action.ActingPlayerID]
	section := sectionWithAbility(p, kind)
	if section == nil {
		return reject("no section provides that ability")
	}
	if section.destroyed() {
		return reject("section is destroyed")
	}
	if p.UsedAbilities[kind] {
		return reject("ability already used this round")
	}
	if p.Energy < cost {
		return reject("insufficient energy")
	}

	switch kind {
	case SectionAbilityEnergySurge:
		p.Energy += 2 - cost
		p.UsedAbilities[kind] = true
		gs.bus.Publish(rules.NewEventWithAmount(rules.EventEnergyChanged, action.ActingPlayerID, section.Name, action.ActingPlayerID, 2))
		gs.appendLog(action.ActingPlayerID, "power cell surged for 2 energy", nil)
		return Result{Accepted: true}

	case SectionAbilityTargetLock:
		target, ok := gs.drones[action.Payload.TargetID]
		if !ok || target.OwnerID == action.ActingPlayerID {
			return reject("target must be an enemy drone")
		}
		p.Energy -= cost
		p.UsedAbilities[kind] = true
		target.Statuses.Add(StatusTargetLocked, 1)
		target.Statuses.Add(StatusMarked, 1)
		gs.bus.Publish(rules.NewEvent(rules.EventStatusApplied, target.InstanceID, section.Name, action.ActingPlayerID))
		gs.appendLog(action.ActingPlayerID, fmt.Sprintf("target lock on %s", target.InstanceID), nil)
		return Result{Accepted: true}

	case SectionAbilityRecall:
		d, ok := gs.drones[action.Payload.DroneID]
		if !ok || d.OwnerID != action.ActingPlayerID {
			return reject("you do not control that drone")
		}
		p.Energy -= cost
		p.UsedAbilities[kind] = true
		refund := DroneTable[d.Name].Cost / 2
		gs.removeDrone(d)
		p.Energy += refund
		gs.bus.Publish(rules.NewEvent(rules.EventDroneRecalled, d.InstanceID, section.Name, action.ActingPlayerID))
		gs.appendLog(action.ActingPlayerID, fmt.Sprintf("recalled %s", d.InstanceID), map[string]string{
			"refund": fmt.Sprintf("%d", refund),
		})
		return Result{Accepted: true}

	case SectionAbilityRecalculate:
		total := 0
		for _, name := range SectionOrder {
			total += p.Sections[name].Shields
		}
		if total == 0 {
			return reject("no shields to reallocate")
		}
		p.Energy -= cost
		p.UsedAbilities[kind] = true
		token := gs.nextID("decision")
		gs.pending = &pendingDecision{
			Token:    token,
			Kind:     pendingShieldReallocation,
			PlayerID: action.ActingPlayerID,
			Count:    total,
		}
		return Result{
			Accepted:                   true,
			RequiresShieldReallocation: true,
			DecisionToken:              token,
			SelectCount:                total,
		}
	}
	return reject("unknown ship ability")
}

func (e *Engine) handleReallocateShieldsComplete(gs *gameState, action Action) Result {
	if gs.pending == nil || gs.pending.Kind != pendingShieldReallocation {
		return reject("no shield reallocation is pending")
	}
	pending := gs.pending
	p := gs.players[action.ActingPlayerID]
	allocation := action.Payload.Allocation

	total := 0
	for name, count := range allocation {
		section, ok := p.Sections[name]
		if !ok {
			return reject("unknown ship section in allocation")
		}
		if count < 0 {
			return reject("negative shield allocation")
		}
		if section.destroyed() && count > 0 {
			return reject("cannot shield a destroyed section")
		}
		if count > section.MaxShields {
			return reject("allocation exceeds section maximum")
		}
		total += count
	}
	if total != pending.Count {
		return reject(fmt.Sprintf("allocation must redistribute exactly %d shields", pending.Count))
	}

	gs.pending = nil
	for _, name := range SectionOrder {
		p.Sections[name].Shields = allocation[name]
	}
	gs.bus.Publish(rules.NewEvent(rules.EventShieldsReallocated, "", "", action.ActingPlayerID))
	gs.appendLog(action.ActingPlayerID, "reallocated shields", nil)
	return Result{Accepted: true}
}

func sectionWithAbility(p *internalPlayer, kind SectionAbilityKind) *shipSection {
	for _, name := range SectionOrder {
		for _, a := range SectionTable[name].Abilities {
			if a == kind {
				return p.Sections[name]
			}
		}
	}
	return nil
}

func laneExists(lane string) bool {
	for _, l := range targeting.Lanes {
		if l == lane {
			return true
		}
	}
	return false
}

func validateHandCards(p *internalPlayer, ids []string) string {
	if !uniqueStrings(ids) {
		return "duplicate card in selection"
	}
	for _, id := range ids {
		found := false
		for i := range p.Hand {
			if p.Hand[i].InstanceID == id {
				found = true
				break
			}
		}
		if !found {
			return "card is not in your hand"
		}
	}
	return ""
}

func discardByIDs(gs *gameState, p *internalPlayer, ids []string) {
	for _, id := range ids {
		for i := range p.Hand {
			if p.Hand[i].InstanceID == id {
				gs.discardFromHand(p, i)
				break
			}
		}
	}
}

func uniqueStrings(ids []string) bool {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return false
		}
		seen[id] = true
	}
	return true
}

func stringInList(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
