// Package sync keeps a guest client's copy of a match converged with the
// host's authoritative engine. The host relays every accepted action in
// sequence order together with the state it produced; the mirror adopts that
// state directly and never re-runs game logic of its own. Sequence gaps are
// repaired with a full resync. Guests never mutate state on their own: their
// inputs travel to the host as intents.
package sync

import (
	"encoding/json"

	"github.com/Farjord/dronewars-server/internal/game"
)

// MessageType discriminates sync envelopes on the wire.
type MessageType string

const (
	// MessageAction carries one accepted action from host to guest.
	MessageAction MessageType = "action"
	// MessageIntent carries a proposed action from guest to host.
	MessageIntent MessageType = "intent"
	// MessageIntentResult returns the processing outcome for an intent.
	MessageIntentResult MessageType = "intentResult"
	// MessageRequestFullSync asks the host for a complete state transfer.
	MessageRequestFullSync MessageType = "requestFullSync"
	// MessageFullSync carries everything needed to rebuild the match.
	MessageFullSync MessageType = "fullSync"
)

// Envelope is the wire frame for every sync message.
type Envelope struct {
	Type    MessageType     `json:"type"`
	MatchID string          `json:"matchId"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ActionPayload relays one accepted action together with the authoritative
// state it produced. The record carries the host's post-state checksum; the
// view is what the mirror installs.
type ActionPayload struct {
	Record game.AcceptedAction `json:"record"`
	View   game.GameStateView  `json:"view"`
}

// IntentPayload is a guest-submitted action awaiting host validation.
type IntentPayload struct {
	IntentID string      `json:"intentId"`
	Action   game.Action `json:"action"`
}

// IntentResultPayload reports the host's verdict on an intent.
type IntentResultPayload struct {
	IntentID string      `json:"intentId"`
	Result   game.Result `json:"result"`
}

// RequestFullSyncPayload reports why the guest needs a resync.
type RequestFullSyncPayload struct {
	AfterSeq uint64 `json:"afterSeq"`
	Reason   string `json:"reason"`
}

// FullSyncPayload rebuilds the guest mirror from scratch: the match seed and
// setup plus the complete accepted-action history, with the current view for
// immediate display while the mirror re-drives.
type FullSyncPayload struct {
	Seed        int64                 `json:"seed"`
	PlayerIDs   [2]string             `json:"playerIds"`
	Controllers [2]game.Controller    `json:"controllers"`
	History     []game.AcceptedAction `json:"history"`
	View        game.GameStateView    `json:"view"`
}

// Encode wraps a payload into an envelope.
func Encode(msgType MessageType, matchID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msgType, MatchID: matchID, Payload: raw}, nil
}
