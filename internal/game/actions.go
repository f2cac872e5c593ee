package game

import (
	"github.com/Farjord/dronewars-server/internal/game/targeting"
)

// ActionType identifies a state-changing action submitted to ProcessAction.
type ActionType string

const (
	ActionAttack                    ActionType = "attack"
	ActionAbility                   ActionType = "ability"
	ActionShipAbility               ActionType = "shipAbility"
	ActionCardPlay                  ActionType = "cardPlay"
	ActionMove                      ActionType = "move"
	ActionMovementCompletion        ActionType = "movementCompletion"
	ActionSearchAndDrawCompletion   ActionType = "searchAndDrawCompletion"
	ActionTurnTransition            ActionType = "turnTransition"
	ActionAcknowledgeFirstPlayer    ActionType = "acknowledgeFirstPlayer"
	ActionSnaredConsumption         ActionType = "snaredConsumption"
	ActionSuppressedConsumption     ActionType = "suppressedConsumption"
	ActionReallocateShieldsComplete ActionType = "reallocateShieldsComplete"
	ActionRecallAbility             ActionType = "recallAbility"
	ActionTargetLockAbility         ActionType = "targetLockAbility"
	ActionRecalculateAbility        ActionType = "recalculateAbility"
	ActionDeployment                ActionType = "deployment"
	ActionAllocateShield            ActionType = "allocateShield"
	ActionCommitPhase               ActionType = "commitPhase"
	ActionMandatoryDiscard          ActionType = "mandatoryDiscard"
)

// Payload carries the per-type parameters of an action. Fields not relevant
// to the action type are left zero. The struct is JSON-serializable so the
// sync adapter can ship actions between peers unchanged.
type Payload struct {
	Token         string         `json:"token,omitempty"`         // pending-decision token for resume calls
	DroneName     string         `json:"droneName,omitempty"`     // deployment
	DroneID       string         `json:"droneId,omitempty"`       // acting drone instance
	DroneIDs      []string       `json:"droneIds,omitempty"`      // multi-drone selections
	TargetID      string         `json:"targetId,omitempty"`      // drone instance, lane or section
	TargetKind    string         `json:"targetKind,omitempty"`    // DRONE | LANE | SHIP_SECTION
	Lane          string         `json:"lane,omitempty"`
	CardID        string         `json:"cardId,omitempty"`  // card instance in hand
	CardIDs       []string       `json:"cardIds,omitempty"` // discards / search picks
	Section       string         `json:"section,omitempty"`
	InterceptorID string         `json:"interceptorId,omitempty"` // chosen interceptor on resume
	Decline       bool           `json:"decline,omitempty"`       // decline interception / cancel
	Pass          bool           `json:"pass,omitempty"`          // turnTransition: pass for the phase
	Proceed       bool           `json:"proceed,omitempty"`       // suppressedConsumption: confirm
	Phase         string         `json:"phase,omitempty"`         // commitPhase: phase being committed
	Ability       string         `json:"ability,omitempty"`       // shipAbility: ability kind
	Allocation    map[string]int `json:"allocation,omitempty"`    // reallocateShieldsComplete
}

// Action is the transient envelope submitted to the processor. It is not
// persisted beyond the processing call and the resulting log entry; accepted
// actions are additionally recorded in the match history for sync and replay.
type Action struct {
	Type           ActionType `json:"type"`
	ActingPlayerID string     `json:"actingPlayerId"`
	Payload        Payload    `json:"payload"`
}

// MandatoryAction describes a forced follow-up that must be resolved before
// the turn can continue.
type MandatoryAction struct {
	Type     ActionType `json:"type"`
	PlayerID string     `json:"playerId"`
	Count    int        `json:"count,omitempty"`
}

// Result is the structured outcome of ProcessAction. Validation failures are
// reported here as rejections, never as errors; the state is guaranteed
// unchanged for rejected actions.
type Result struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`

	// Pipeline interrupts. When one of these is set the pipeline is held
	// exclusively until the matching follow-up action (or an explicit
	// cancellation) arrives.
	NeedsInterceptionDecision  bool             `json:"needsInterceptionDecision,omitempty"`
	NeedsCardSelection         bool             `json:"needsCardSelection,omitempty"`
	RequiresShieldReallocation bool             `json:"requiresShieldReallocation,omitempty"`
	MandatoryAction            *MandatoryAction `json:"mandatoryAction,omitempty"`

	DecisionToken string                 `json:"decisionToken,omitempty"`
	Candidates    []targeting.Descriptor `json:"candidates,omitempty"`
	CardChoices   []string               `json:"cardChoices,omitempty"`
	SelectCount   int                    `json:"selectCount,omitempty"`

	Phase  string `json:"phase,omitempty"`
	Round  int    `json:"round,omitempty"`
	Winner string `json:"winner,omitempty"`
	Seq    uint64 `json:"seq,omitempty"`
}

// reject builds a rejection result with the given reason.
func reject(reason string) Result {
	return Result{Accepted: false, Reason: reason}
}

// AcceptedAction is one entry of the ordered, sequence-numbered action
// history the authority maintains. The sync adapter relays these records to
// the mirror in order; the replayer re-drives a fresh engine from them.
type AcceptedAction struct {
	Seq      uint64 `json:"seq"`
	Action   Action `json:"action"`
	Checksum string `json:"checksum"`
}

// pendingKind discriminates the suspension points of the pipeline.
type pendingKind int

const (
	pendingInterception pendingKind = iota
	pendingSuppression
	pendingSearchAndDraw
	pendingMovement
	pendingMandatoryDiscard
	pendingShieldReallocation
)

// pendingDecision captures a suspended action awaiting a human decision.
// While set, no other state-mutating action may be processed.
type pendingDecision struct {
	Token      string
	Kind       pendingKind
	PlayerID   string // who must respond
	Attack     *AttackDetails
	Candidates []targeting.Descriptor
	Choices    []string // card instance IDs to pick from
	Count      int      // how many must be chosen/moved/discarded
	Lane       string   // movement destination
}
