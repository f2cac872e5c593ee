package sync

import (
	"encoding/json"
	"fmt"
	gosync "sync"

	"go.uber.org/zap"

	"github.com/Farjord/dronewars-server/internal/game"
)

// Sender delivers an envelope to the guest side of a match. Implemented by
// the websocket session; must be safe for concurrent use.
type Sender func(Envelope) error

// Host relays the authoritative engine's accepted actions to guest mirrors
// and validates their intents. One host serves every hosted match in the
// process.
type Host struct {
	engine *game.Engine
	logger *zap.Logger

	mu     gosync.Mutex
	guests map[string][]guestLink // matchID -> attached guests
	setups map[string]matchSetup
	unsub  func()
}

type guestLink struct {
	playerID string
	send     Sender
	lastSeq  uint64
}

// matchSetup is what a full resync needs beyond the history.
type matchSetup struct {
	seed        int64
	playerIDs   [2]string
	controllers [2]game.Controller
}

// NewHost creates a host relay bound to the engine. It subscribes to the
// engine and streams each newly accepted action to the match's guests.
func NewHost(engine *game.Engine, logger *zap.Logger) *Host {
	h := &Host{
		engine: engine,
		logger: logger,
		guests: make(map[string][]guestLink),
		setups: make(map[string]matchSetup),
	}
	h.unsub = engine.Subscribe(h.onAccepted)
	return h
}

// Close detaches the host from the engine.
func (h *Host) Close() {
	if h.unsub != nil {
		h.unsub()
	}
}

// RegisterMatch records the setup needed to serve full resyncs for a match.
func (h *Host) RegisterMatch(matchID string, seed int64, playerIDs [2]string, controllers [2]game.Controller) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.setups[matchID] = matchSetup{seed: seed, playerIDs: playerIDs, controllers: controllers}
}

// AttachGuest registers a guest connection for a match. The guest is brought
// current immediately with a full sync.
func (h *Host) AttachGuest(matchID, playerID string, send Sender) error {
	// Cursor starts at the current history tip; the full sync below covers
	// everything up to at least that point, and the mirror drops any overlap
	// between the sync and the live stream by sequence number.
	var lastSeq uint64
	if history, err := h.engine.History(matchID, 0); err == nil && len(history) > 0 {
		lastSeq = history[len(history)-1].Seq
	}
	h.mu.Lock()
	h.guests[matchID] = append(h.guests[matchID], guestLink{playerID: playerID, send: send, lastSeq: lastSeq})
	h.mu.Unlock()
	return h.sendFullSync(matchID, send)
}

// DetachGuest removes a guest connection.
func (h *Host) DetachGuest(matchID, playerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	links := h.guests[matchID]
	for i, link := range links {
		if link.playerID == playerID {
			h.guests[matchID] = append(links[:i], links[i+1:]...)
			break
		}
	}
}

// Handle processes one guest envelope: an intent or a resync request.
func (h *Host) Handle(env Envelope, send Sender) error {
	switch env.Type {
	case MessageIntent:
		var payload IntentPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return fmt.Errorf("decoding intent: %w", err)
		}
		result, err := h.engine.ProcessAction(env.MatchID, payload.Action)
		if err != nil {
			return err
		}
		reply, err := Encode(MessageIntentResult, env.MatchID, IntentResultPayload{
			IntentID: payload.IntentID,
			Result:   result,
		})
		if err != nil {
			return err
		}
		return send(reply)

	case MessageRequestFullSync:
		var payload RequestFullSyncPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return fmt.Errorf("decoding resync request: %w", err)
		}
		h.logger.Warn("guest requested full sync",
			zap.String("match_id", env.MatchID),
			zap.Uint64("after_seq", payload.AfterSeq),
			zap.String("reason", payload.Reason),
		)
		return h.sendFullSync(env.MatchID, send)
	}
	return fmt.Errorf("unexpected message type %q from guest", env.Type)
}

// onAccepted streams the newly accepted action, with the state it produced,
// to every guest of the match. A guest whose cursor has fallen more than one
// record behind gets a full sync instead: only the latest post-state is in
// hand, so the backlog cannot be replayed as deltas.
func (h *Host) onAccepted(matchID string, view game.GameStateView) {
	h.mu.Lock()
	links := h.guests[matchID]
	if len(links) == 0 {
		h.mu.Unlock()
		return
	}
	// Pull each guest's backlog under the lock so per-guest cursors stay
	// consistent, then send outside it.
	type delivery struct {
		send     Sender
		record   game.AcceptedAction
		fullSync bool
	}
	var deliveries []delivery
	for i := range links {
		records, err := h.engine.History(matchID, links[i].lastSeq)
		if err != nil || len(records) == 0 {
			continue
		}
		tail := records[len(records)-1]
		links[i].lastSeq = tail.Seq
		if len(records) == 1 && tail.Seq == view.Seq {
			deliveries = append(deliveries, delivery{send: links[i].send, record: tail})
		} else {
			deliveries = append(deliveries, delivery{send: links[i].send, fullSync: true})
		}
	}
	h.guests[matchID] = links
	h.mu.Unlock()

	for _, d := range deliveries {
		if d.fullSync {
			if err := h.sendFullSync(matchID, d.send); err != nil {
				h.logger.Warn("catch-up sync to guest failed", zap.String("match_id", matchID), zap.Error(err))
			}
			continue
		}
		env, err := Encode(MessageAction, matchID, ActionPayload{Record: d.record, View: view})
		if err != nil {
			continue
		}
		if err := d.send(env); err != nil {
			h.logger.Warn("relay to guest failed", zap.String("match_id", matchID), zap.Error(err))
		}
	}
}

func (h *Host) sendFullSync(matchID string, send Sender) error {
	h.mu.Lock()
	setup, ok := h.setups[matchID]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("match %s is not registered for sync", matchID)
	}
	history, err := h.engine.History(matchID, 0)
	if err != nil {
		return err
	}
	view, err := h.engine.GetState(matchID)
	if err != nil {
		return err
	}
	env, err := Encode(MessageFullSync, matchID, FullSyncPayload{
		Seed:        setup.seed,
		PlayerIDs:   setup.playerIDs,
		Controllers: setup.controllers,
		History:     history,
		View:        view,
	})
	if err != nil {
		return err
	}
	return send(env)
}
