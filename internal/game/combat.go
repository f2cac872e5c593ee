package game

import (
	"fmt"

	"github.com/Farjord/dronewars-server/internal/game/rules"
	"github.com/Farjord/dronewars-server/internal/game/targeting"
)

// AttackDetails carries everything the combat resolver needs for one attack,
// including the resume fields of the two-call interception protocol.
type AttackDetails struct {
	AttackerID     string
	ActingPlayerID string
	TargetID       string
	TargetKind     targeting.TargetType
	Lane           string

	// Resume fields. InterceptionDecided is set on the follow-up call that
	// answers a needsInterceptionDecision suspension; InterceptorID is empty
	// when the defender declined. SuppressionConfirmed is set when the
	// attacker's owner confirmed spending the suppressed status.
	InterceptionDecided  bool
	InterceptorID        string
	SuppressionConfirmed bool
}

// attackOutcome is the combat resolver's report back to the processor.
type attackOutcome struct {
	// Suspension markers. Exactly one of these is set when the attack did
	// not resolve; the processor turns them into pipeline interrupts.
	needsInterception bool
	needsSuppression  bool
	candidates        []targeting.Descriptor

	resolved       bool
	finalTargetID  string
	finalKind      targeting.TargetType
	redirected     bool
	guardian       bool
	damage         int
	shieldDamage   int
	hullDamage     int
	destroyedDrone string
	sectionKilled  bool
	winner         string
}

// guardianIn returns the first guardian among the defender's drones in the
// lane, excluding the current target. Board order makes the pick
// deterministic; guardians override defender choice entirely.
func (gs *gameState) guardianIn(defenderID, lane, targetID string) *internalDrone {
	for _, d := range gs.players[defenderID].Lanes[lane] {
		def := DroneTable[d.Name]
		if def.Ability != nil && def.Ability.Kind == AbilityGuardian && d.InstanceID != targetID && d.Hull > 0 {
			return d
		}
	}
	return nil
}

// interceptorCandidates computes the defender drones eligible to voluntarily
// intercept the attack: same lane, not exhausted, not the original target,
// and faster than the attacker unless the drone always intercepts.
func (gs *gameState) interceptorCandidates(defenderID, lane, targetID string, attackerSpeed int) []targeting.Descriptor {
	var out []targeting.Descriptor
	for _, d := range gs.players[defenderID].Lanes[lane] {
		if d.InstanceID == targetID || d.Exhausted {
			continue
		}
		def := DroneTable[d.Name]
		always := def.Ability != nil && def.Ability.Kind == AbilityAlwaysIntercepts
		if !always && d.stat("speed") < attackerSpeed {
			continue
		}
		out = append(out, targeting.Descriptor{
			Kind:    targeting.TargetDrone,
			ID:      d.InstanceID,
			OwnerID: d.OwnerID,
			Lane:    lane,
		})
	}
	return out
}

// resolveAttack resolves one attack through the strictly-ordered pipeline:
// suppression gate, guardian redirection, voluntary interception, damage
// application, destruction cascade, win check, log entry. Invoked only from
// the processor's attack handler; chooseAI supplies the interception pick
// when the defending side is AI-controlled (empty string declines).
func (gs *gameState) resolveAttack(details AttackDetails, chooseAI func([]targeting.Descriptor) string) attackOutcome {
	attacker := gs.drones[details.AttackerID]
	defenderID := gs.opponentOf(details.ActingPlayerID)

	// Step 1: a suppressed attacker's resolution is deferred until its owner
	// explicitly confirms. The status is not spent by the mere attempt.
	if attacker.Statuses.Has(StatusSuppressed) && !details.SuppressionConfirmed {
		return attackOutcome{needsSuppression: true}
	}

	finalID := details.TargetID
	finalKind := details.TargetKind
	outcome := attackOutcome{}

	// Step 2: guardians force redirection without giving the defender a
	// choice. A guardian being the declared target needs no redirect.
	if g := gs.guardianIn(defenderID, details.Lane, details.TargetID); g != nil {
		finalID = g.InstanceID
		finalKind = targeting.TargetDrone
		outcome.redirected = true
		outcome.guardian = true
		gs.bus.Publish(rules.NewEvent(rules.EventAttackRedirected, finalID, details.AttackerID, defenderID))
	} else {
		// Step 3: voluntary interceptors.
		candidates := gs.interceptorCandidates(defenderID, details.Lane, details.TargetID, attacker.stat("speed"))
		if len(candidates) > 0 {
			if !details.InterceptionDecided {
				if gs.controllers[defenderID] == ControllerHuman || chooseAI == nil {
					// Step 4: human defender — suspend and return the
					// candidate set. No damage until the follow-up arrives.
					gs.bus.Publish(rules.NewEvent(rules.EventInterceptionOffered, details.TargetID, details.AttackerID, defenderID))
					return attackOutcome{needsInterception: true, candidates: candidates}
				}
				// Step 5: AI defender decides synchronously. The chooser picks
				// from the offered candidates only; the processor validates
				// human resume picks before they reach this point.
				details.InterceptorID = chooseAI(candidates)
				details.InterceptionDecided = true
			}
			if details.InterceptorID != "" {
				finalID = details.InterceptorID
				finalKind = targeting.TargetDrone
				outcome.redirected = true
				gs.bus.Publish(rules.NewEvent(rules.EventAttackRedirected, finalID, details.AttackerID, defenderID))
			} else {
				gs.bus.Publish(rules.NewEvent(rules.EventInterceptionDeclined, details.TargetID, details.AttackerID, defenderID))
			}
		}
	}

	// The attack is now actually resolving: consumable statuses are spent.
	if details.SuppressionConfirmed && attacker.Statuses.Consume(StatusSuppressed) {
		gs.bus.Publish(rules.NewEvent(rules.EventStatusConsumed, attacker.InstanceID, "", details.ActingPlayerID))
	}

	damage := attacker.stat("attack")
	attackerDef := DroneTable[attacker.Name]
	piercing := attackerDef.Ability != nil && attackerDef.Ability.Kind == AbilityPiercing

	outcome.resolved = true
	outcome.finalTargetID = finalID
	outcome.finalKind = finalKind

	// Step 6: damage. Shields absorb before hull; excess beyond zero is
	// discarded and never carried to another target.
	if finalKind == targeting.TargetShipSection {
		section := gs.players[defenderID].Sections[finalID]
		sh, hull := applyDamage(damage, section.Shields, section.Hull, false)
		outcome.shieldDamage = section.Shields - sh
		outcome.hullDamage = section.Hull - hull
		section.Shields, section.Hull = sh, hull
		outcome.damage = damage
		gs.bus.Publish(rules.NewEventWithAmount(rules.EventSectionDamaged, finalID, attacker.InstanceID, details.ActingPlayerID, damage))
		if section.destroyed() {
			outcome.sectionKilled = true
			gs.bus.Publish(rules.NewEvent(rules.EventSectionDestroyed, finalID, attacker.InstanceID, details.ActingPlayerID))
		}
	} else {
		target := gs.drones[finalID]
		if target.Statuses.Consume(StatusTargetLocked) {
			damage++
			gs.bus.Publish(rules.NewEvent(rules.EventStatusConsumed, target.InstanceID, "", defenderID))
		}
		sh, hull := applyDamage(damage, target.Shields, target.Hull, piercing)
		outcome.shieldDamage = target.Shields - sh
		outcome.hullDamage = target.Hull - hull
		target.Shields, target.Hull = sh, hull
		outcome.damage = damage
		gs.bus.Publish(rules.NewEventWithAmount(rules.EventDroneDamaged, finalID, attacker.InstanceID, details.ActingPlayerID, damage))

		// Step 7: destruction cascade.
		if target.Hull <= 0 {
			gs.removeDrone(target)
			outcome.destroyedDrone = target.InstanceID
			gs.players[details.ActingPlayerID].Momentum++
			gs.bus.Publish(rules.NewEvent(rules.EventDroneDestroyed, target.InstanceID, attacker.InstanceID, details.ActingPlayerID))
		}
	}

	attacker.Exhausted = true
	gs.players[details.ActingPlayerID].AttacksThisTurn++
	outcome.winner = gs.checkWin()

	// Step 8: structured log entry.
	gs.appendLog(details.ActingPlayerID, fmt.Sprintf("%s attacked %s for %d", attacker.InstanceID, finalID, outcome.damage), map[string]string{
		"attacker":   attacker.InstanceID,
		"target":     finalID,
		"kind":       string(finalKind),
		"damage":     fmt.Sprintf("%d", outcome.damage),
		"redirected": fmt.Sprintf("%t", outcome.redirected),
		"destroyed":  outcome.destroyedDrone,
	})
	gs.bus.Publish(rules.NewEventWithAmount(rules.EventAttackResolved, finalID, attacker.InstanceID, details.ActingPlayerID, outcome.damage))

	return outcome
}

// applyDamage splits damage across shields then hull, flooring both at zero.
// Piercing damage skips shields entirely.
func applyDamage(damage, shields, hull int, piercing bool) (int, int) {
	if !piercing {
		absorbed := damage
		if absorbed > shields {
			absorbed = shields
		}
		shields -= absorbed
		damage -= absorbed
	}
	hull -= damage
	if hull < 0 {
		hull = 0
	}
	return shields, hull
}

func descriptorListContains(list []targeting.Descriptor, id string) bool {
	for _, d := range list {
		if d.ID == id {
			return true
		}
	}
	return false
}
