package rules

import (
	"sync"
	"time"
)

// EventType indicates the category of a rules event.
type EventType string

const (
	// Phase / round events
	EventRoundStarted        EventType = "ROUND_STARTED"
	EventPhaseTransition     EventType = "PHASE_TRANSITION"
	EventBothPlayersComplete EventType = "BOTH_PLAYERS_COMPLETE"
	EventTurnTransition      EventType = "TURN_TRANSITION"
	EventFirstPlayerChosen   EventType = "FIRST_PLAYER_CHOSEN"

	// Commitment events
	EventCommitRecorded EventType = "COMMIT_RECORDED"

	// Card events
	EventCardPlayed    EventType = "CARD_PLAYED"
	EventCardDrawn     EventType = "CARD_DRAWN"
	EventCardDiscarded EventType = "CARD_DISCARDED"
	EventDeckShuffled  EventType = "DECK_SHUFFLED"

	// Board events
	EventDroneDeployed  EventType = "DRONE_DEPLOYED"
	EventDroneMoved     EventType = "DRONE_MOVED"
	EventDroneDestroyed EventType = "DRONE_DESTROYED"
	EventDroneRecalled  EventType = "DRONE_RECALLED"
	EventDroneExhausted EventType = "DRONE_EXHAUSTED"

	// Combat events
	EventAttackDeclared       EventType = "ATTACK_DECLARED"
	EventAttackSuspended      EventType = "ATTACK_SUSPENDED"
	EventAttackRedirected     EventType = "ATTACK_REDIRECTED"
	EventAttackResolved       EventType = "ATTACK_RESOLVED"
	EventInterceptionOffered  EventType = "INTERCEPTION_OFFERED"
	EventInterceptionDeclined EventType = "INTERCEPTION_DECLINED"

	// Damage events
	EventDroneDamaged       EventType = "DRONE_DAMAGED"
	EventSectionDamaged     EventType = "SECTION_DAMAGED"
	EventSectionDestroyed   EventType = "SECTION_DESTROYED"
	EventShieldsAllocated   EventType = "SHIELDS_ALLOCATED"
	EventShieldsReallocated EventType = "SHIELDS_REALLOCATED"

	// Status events
	EventStatusApplied  EventType = "STATUS_APPLIED"
	EventStatusConsumed EventType = "STATUS_CONSUMED"

	// Resource events
	EventEnergyChanged   EventType = "ENERGY_CHANGED"
	EventMomentumChanged EventType = "MOMENTUM_CHANGED"

	// Terminal events
	EventGameEnded EventType = "GAME_ENDED"
)

// Event carries the facts about a single rules occurrence.
type Event struct {
	Type      EventType
	ID        string            // Unique event ID
	TargetID  string            // ID of the target (drone, lane, section, player)
	SourceID  string            // ID of the source drone/card/ability
	PlayerID  string            // Acting player
	Amount    int               // Numeric value (damage, shields, energy)
	Lane      string            // Lane the event relates to, if any
	Data      string            // Additional string data
	Timestamp time.Time
	Metadata  map[string]string // Additional metadata
}

// Listener defines a callback that reacts to incoming events.
type Listener func(Event)

// TypedListener defines a callback that reacts to a specific event type.
type TypedListener struct {
	Handle    int
	EventType EventType
	Callback  func(Event)
}

// EventBus provides a synchronous publish/subscribe implementation with type filtering.
type EventBus struct {
	mu             sync.RWMutex
	listeners      map[int]Listener
	typedListeners map[EventType][]TypedListener
	nextHandle     int
}

// NewEventBus constructs a fresh event bus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners:      make(map[int]Listener),
		typedListeners: make(map[EventType][]TypedListener),
	}
}

// Subscribe registers a listener for all events and returns a handle.
func (bus *EventBus) Subscribe(listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners[handle] = listener
	return handle
}

// SubscribeTyped registers a listener for a specific event type.
func (bus *EventBus) SubscribeTyped(eventType EventType, callback func(Event)) int {
	if callback == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.typedListeners[eventType] = append(bus.typedListeners[eventType], TypedListener{
		Handle:    handle,
		EventType: eventType,
		Callback:  callback,
	})
	return handle
}

// Unsubscribe removes the listener identified by the provided handle.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.listeners, handle)
	for eventType, listeners := range bus.typedListeners {
		for i := len(listeners) - 1; i >= 0; i-- {
			if listeners[i].Handle == handle {
				bus.typedListeners[eventType] = append(listeners[:i], listeners[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers the event to all registered listeners synchronously.
func (bus *EventBus) Publish(event Event) {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	for _, listener := range bus.listeners {
		listener(event)
	}
	if typedListeners, ok := bus.typedListeners[event.Type]; ok {
		for _, listener := range typedListeners {
			listener.Callback(event)
		}
	}
}

// NewEvent creates a new event with common fields populated.
func NewEvent(eventType EventType, targetID, sourceID, playerID string) Event {
	return Event{
		Type:      eventType,
		TargetID:  targetID,
		SourceID:  sourceID,
		PlayerID:  playerID,
		Timestamp: time.Now(),
		Metadata:  make(map[string]string),
	}
}

// NewEventWithAmount creates a new event with an amount value.
func NewEventWithAmount(eventType EventType, targetID, sourceID, playerID string, amount int) Event {
	evt := NewEvent(eventType, targetID, sourceID, playerID)
	evt.Amount = amount
	return evt
}
