package game

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/Farjord/dronewars-server/internal/game/effects"
	"github.com/Farjord/dronewars-server/internal/game/rules"
	"github.com/Farjord/dronewars-server/internal/game/targeting"
)

// Tunable match constants. Balancing values live here rather than in the
// processor so they read as data.
const (
	startingHandSize    = 5
	HandLimit           = 5
	MaxDronesPerLane    = 3
	DroneCapacity       = 6
	DroneCapacityNoHub  = 4
	energyPerRound      = 5
	energyPowerCellLoss = 2
	shieldsPerRound     = 3
	moveEnergyCost      = 1
	sectionsToLose      = 2
)

// Controller says who drives a player's decisions.
type Controller string

const (
	ControllerHuman Controller = "HUMAN"
	ControllerAI    Controller = "AI"
)

// LogEntry is one structured entry in the match log.
type LogEntry struct {
	Seq       uint64
	Round     int
	Phase     string
	PlayerID  string
	Message   string
	Timestamp time.Time
	Details   map[string]string
}

// cardInstance is a per-copy card held in a deck, hand or discard pile.
type cardInstance struct {
	InstanceID string
	DefName    string
}

// shipSection is the live state of one ship section.
type shipSection struct {
	Name       string
	Hull       int
	Shields    int // allocated shields currently absorbing damage
	MaxShields int
}

func (s *shipSection) destroyed() bool {
	return s.Hull <= 0
}

// internalDrone is a drone instance on the board. InstanceID is unique for
// the lifetime of the match and never reused.
type internalDrone struct {
	InstanceID string
	Name       string
	OwnerID    string
	Lane       string
	Hull       int
	Shields    int
	Exhausted  bool
	Statuses   *Statuses
	AuraID     string         // modifier registered for this drone, if any
	eff        map[string]int // effective stats after auras
}

// stat returns the drone's effective stat, falling back to base values when
// the aura cache has not been built yet.
func (d *internalDrone) stat(name string) int {
	if v, ok := d.eff[name]; ok {
		return v
	}
	def := DroneTable[d.Name]
	switch name {
	case "attack":
		return def.Attack
	case "speed":
		return def.Speed
	case "cost":
		return def.Cost
	}
	return 0
}

// internalPlayer is one player's full state.
type internalPlayer struct {
	PlayerID          string
	Deck              []cardInstance
	Hand              []cardInstance
	Discard           []cardInstance
	Lanes             map[string][]*internalDrone
	Sections          map[string]*shipSection
	Energy            int
	Momentum          int
	ShieldsToAllocate int
	Passed            bool
	DeployedThisRound int
	AttacksThisTurn   int
	AckedFirstPlayer  bool
	UsedAbilities     map[SectionAbilityKind]bool
}

func (p *internalPlayer) droneCount() int {
	n := 0
	for _, lane := range p.Lanes {
		n += len(lane)
	}
	return n
}

func (p *internalPlayer) destroyedSections() int {
	n := 0
	for _, s := range p.Sections {
		if s.destroyed() {
			n++
		}
	}
	return n
}

func (p *internalPlayer) droneLimit() int {
	if hub, ok := p.Sections["droneControlHub"]; ok && hub.destroyed() {
		return DroneCapacityNoHub
	}
	return DroneCapacity
}

// gameState is the canonical per-match state, owned exclusively by the
// engine. All identifiers generated inside a match come from the
// deterministic counter so that replaying the same ordered action stream
// reproduces the identical state.
type gameState struct {
	matchID     string
	seed        int64
	rng         *rand.Rand
	bus         *rules.EventBus
	phases      *rules.PhaseMachine
	commits     *rules.CommitTracker
	auras       *effects.AuraSystem
	players     map[string]*internalPlayer
	playerOrder []string
	drones      map[string]*internalDrone
	controllers map[string]Controller
	pending     *pendingDecision
	winner      string
	seq         uint64
	idCounter   int
	log         []LogEntry
	history     []AcceptedAction
	startedAt   time.Time
	awaitingAck bool
	mu          sync.RWMutex
}

// newGameState builds the initial match state: shuffled decks, opening hands,
// intact ship sections, first-player determination pending acknowledgement.
func newGameState(matchID string, playerIDs [2]string, controllers [2]Controller, seed int64) *gameState {
	bus := rules.NewEventBus()
	gs := &gameState{
		matchID:     matchID,
		seed:        seed,
		rng:         rand.New(rand.NewSource(seed)),
		bus:         bus,
		auras:       effects.NewAuraSystem(),
		players:     make(map[string]*internalPlayer, 2),
		playerOrder: []string{playerIDs[0], playerIDs[1]},
		drones:      make(map[string]*internalDrone),
		controllers: map[string]Controller{
			playerIDs[0]: controllers[0],
			playerIDs[1]: controllers[1],
		},
		startedAt:   time.Now(),
		awaitingAck: true,
	}
	gs.commits = rules.NewCommitTracker(bus, playerIDs[0], playerIDs[1])

	for _, id := range gs.playerOrder {
		gs.players[id] = gs.newPlayer(id)
	}

	// First player is drawn from the seeded RNG so both the mirror and a
	// replay land on the same choice.
	first := gs.playerOrder[gs.rng.Intn(2)]
	gs.phases = rules.NewPhaseMachine(bus, first)
	gs.commits.Begin(rules.PhaseOptionalDiscard)

	for _, id := range gs.playerOrder {
		gs.drawCards(gs.players[id], startingHandSize)
	}
	return gs
}

func (gs *gameState) newPlayer(id string) *internalPlayer {
	p := &internalPlayer{
		PlayerID:      id,
		Lanes:         make(map[string][]*internalDrone, len(targeting.Lanes)),
		Sections:      make(map[string]*shipSection, len(SectionOrder)),
		Energy:        energyPerRound,
		UsedAbilities: make(map[SectionAbilityKind]bool),
	}
	for _, lane := range targeting.Lanes {
		p.Lanes[lane] = nil
	}
	for _, name := range SectionOrder {
		def := SectionTable[name]
		p.Sections[name] = &shipSection{
			Name:       name,
			Hull:       def.Hull,
			Shields:    0,
			MaxShields: def.MaxShields,
		}
	}
	for _, defName := range DefaultDeck {
		p.Deck = append(p.Deck, cardInstance{
			InstanceID: gs.nextID("card"),
			DefName:    defName,
		})
	}
	gs.shuffleDeck(p)
	return p
}

// nextID yields a deterministic, match-unique identifier.
func (gs *gameState) nextID(prefix string) string {
	gs.idCounter++
	return fmt.Sprintf("%s-%04d", prefix, gs.idCounter)
}

func (gs *gameState) shuffleDeck(p *internalPlayer) {
	gs.rng.Shuffle(len(p.Deck), func(i, j int) {
		p.Deck[i], p.Deck[j] = p.Deck[j], p.Deck[i]
	})
}

// drawCards moves up to n cards from deck to hand, reshuffling the discard
// pile into the deck when the deck runs dry.
func (gs *gameState) drawCards(p *internalPlayer, n int) int {
	drawn := 0
	for i := 0; i < n; i++ {
		if len(p.Deck) == 0 {
			if len(p.Discard) == 0 {
				break
			}
			p.Deck = p.Discard
			p.Discard = nil
			gs.shuffleDeck(p)
			gs.bus.Publish(rules.NewEvent(rules.EventDeckShuffled, "", "", p.PlayerID))
		}
		card := p.Deck[0]
		p.Deck = p.Deck[1:]
		p.Hand = append(p.Hand, card)
		drawn++
		gs.bus.Publish(rules.NewEvent(rules.EventCardDrawn, card.InstanceID, "", p.PlayerID))
	}
	return drawn
}

func (gs *gameState) opponentOf(playerID string) string {
	if gs.playerOrder[0] == playerID {
		return gs.playerOrder[1]
	}
	return gs.playerOrder[0]
}

func (gs *gameState) findHandCard(p *internalPlayer, instanceID string) (int, *cardInstance) {
	for i := range p.Hand {
		if p.Hand[i].InstanceID == instanceID {
			return i, &p.Hand[i]
		}
	}
	return -1, nil
}

// discardFromHand moves the card at index i to the discard pile.
func (gs *gameState) discardFromHand(p *internalPlayer, i int) {
	card := p.Hand[i]
	p.Hand = append(p.Hand[:i], p.Hand[i+1:]...)
	p.Discard = append(p.Discard, card)
	gs.bus.Publish(rules.NewEvent(rules.EventCardDiscarded, card.InstanceID, "", p.PlayerID))
}

// placeDrone creates a drone instance in the given lane and registers any
// aura it carries.
func (gs *gameState) placeDrone(p *internalPlayer, defName, lane string) *internalDrone {
	def := DroneTable[defName]
	d := &internalDrone{
		InstanceID: gs.nextID("drone"),
		Name:       defName,
		OwnerID:    p.PlayerID,
		Lane:       lane,
		Hull:       def.Hull,
		Shields:    def.Shields,
		Statuses:   NewStatuses(),
	}
	p.Lanes[lane] = append(p.Lanes[lane], d)
	gs.drones[d.InstanceID] = d

	if def.Ability != nil && def.Ability.Kind == AbilityLaneAura {
		d.AuraID = gs.auras.Add(effects.Modifier{
			SourceID:    d.InstanceID,
			OwnerID:     p.PlayerID,
			Lane:        lane,
			Scope:       effects.ScopeSameLane,
			Stat:        def.Ability.Stat,
			Delta:       def.Ability.Delta,
			ExcludeSelf: true,
		})
	}
	gs.recomputeEffectiveStats()
	return d
}

// removeDrone deletes the instance from its lane and index, drops its auras
// and recomputes dependent stat caches. Part of the destruction cascade.
func (gs *gameState) removeDrone(d *internalDrone) {
	owner := gs.players[d.OwnerID]
	lane := owner.Lanes[d.Lane]
	for i, other := range lane {
		if other.InstanceID == d.InstanceID {
			owner.Lanes[d.Lane] = append(lane[:i], lane[i+1:]...)
			break
		}
	}
	delete(gs.drones, d.InstanceID)
	gs.auras.RemoveBySource(d.InstanceID)
	gs.recomputeEffectiveStats()
}

// moveDrone relocates a drone to another lane and re-homes its auras.
func (gs *gameState) moveDrone(d *internalDrone, lane string) {
	owner := gs.players[d.OwnerID]
	from := owner.Lanes[d.Lane]
	for i, other := range from {
		if other.InstanceID == d.InstanceID {
			owner.Lanes[d.Lane] = append(from[:i], from[i+1:]...)
			break
		}
	}
	d.Lane = lane
	owner.Lanes[lane] = append(owner.Lanes[lane], d)
	gs.auras.UpdateSourceLane(d.InstanceID, lane)
	gs.recomputeEffectiveStats()
}

// recomputeEffectiveStats re-evaluates every drone's derived stats against
// the aura system. Runs after any board mutation.
func (gs *gameState) recomputeEffectiveStats() {
	for _, id := range gs.playerOrder {
		p := gs.players[id]
		for _, lane := range targeting.Lanes {
			for _, d := range p.Lanes[lane] {
				def := DroneTable[d.Name]
				snap := effects.NewSnapshot(d.InstanceID, d.OwnerID, d.Lane, map[string]int{
					"attack": def.Attack,
					"speed":  def.Speed,
					"cost":   def.Cost,
				})
				gs.auras.Evaluate(snap)
				d.eff = snap.Stats
			}
		}
	}
}

// boardFor builds the targeting resolver's read-only view of one player.
func (gs *gameState) boardFor(playerID string) targeting.Board {
	p := gs.players[playerID]
	board := targeting.Board{
		PlayerID: playerID,
		Lanes:    make(map[string][]targeting.Drone, len(targeting.Lanes)),
	}
	for _, lane := range targeting.Lanes {
		for _, d := range p.Lanes[lane] {
			board.Lanes[lane] = append(board.Lanes[lane], targeting.Drone{
				InstanceID: d.InstanceID,
				Name:       d.Name,
				OwnerID:    d.OwnerID,
				Lane:       d.Lane,
				Exhausted:  d.Exhausted,
				Stats: map[string]int{
					"attack":  d.stat("attack"),
					"speed":   d.stat("speed"),
					"cost":    d.stat("cost"),
					"hull":    d.Hull,
					"shields": d.Shields,
				},
			})
		}
	}
	for _, name := range SectionOrder {
		s := p.Sections[name]
		board.Sections = append(board.Sections, targeting.Section{
			Name:    s.Name,
			OwnerID: playerID,
			Hull:    s.Hull,
			Shields: s.Shields,
		})
	}
	return board
}

// appendLog records a structured log entry for the current action.
func (gs *gameState) appendLog(playerID, message string, details map[string]string) {
	gs.log = append(gs.log, LogEntry{
		Seq:       gs.seq,
		Round:     gs.phases.RoundNumber(),
		Phase:     gs.phases.CurrentPhase().String(),
		PlayerID:  playerID,
		Message:   message,
		Timestamp: time.Now(),
		Details:   details,
	})
}

// checkWin inspects both ships and finishes the match when a loss condition
// is met. Returns the winner's player ID, or empty.
func (gs *gameState) checkWin() string {
	if gs.winner != "" {
		return gs.winner
	}
	for _, id := range gs.playerOrder {
		if gs.players[id].destroyedSections() >= sectionsToLose {
			gs.winner = gs.opponentOf(id)
			gs.phases.Finish(gs.winner)
			return gs.winner
		}
	}
	return ""
}
