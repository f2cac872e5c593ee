package server

import (
	"encoding/json"

	"github.com/Farjord/dronewars-server/internal/game"
	gamesync "github.com/Farjord/dronewars-server/internal/sync"
)

// Client-to-server message types.
const (
	ClientMsgCreateLobby = "createLobby"
	ClientMsgJoinLobby   = "joinLobby"
	ClientMsgAction      = "action"
	ClientMsgGetState    = "getState"
	ClientMsgSync        = "sync"
)

// Server-to-client message types.
const (
	ServerMsgLobbyCreated = "lobbyCreated"
	ServerMsgMatchStarted = "matchStarted"
	ServerMsgActionResult = "actionResult"
	ServerMsgState        = "state"
	ServerMsgSync         = "sync"
	ServerMsgError        = "error"
)

// ClientMessage is the envelope for everything a client sends.
type ClientMessage struct {
	Type     string             `json:"type"`
	PlayerID string             `json:"playerId,omitempty"`
	MatchID  string             `json:"matchId,omitempty"`
	VsAI     bool               `json:"vsAi,omitempty"`
	JoinCode string             `json:"joinCode,omitempty"`
	Action   *game.Action       `json:"action,omitempty"`
	Sync     *gamesync.Envelope `json:"sync,omitempty"`
}

// ServerMessage is the envelope for everything the server sends.
type ServerMessage struct {
	Type     string              `json:"type"`
	MatchID  string              `json:"matchId,omitempty"`
	JoinCode string              `json:"joinCode,omitempty"`
	Players  []string            `json:"players,omitempty"`
	Result   *game.Result        `json:"result,omitempty"`
	State    *game.GameStateView `json:"state,omitempty"`
	Sync     *gamesync.Envelope  `json:"sync,omitempty"`
	Error    string              `json:"error,omitempty"`
}

func encodeServerMessage(msg ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func errorMessage(err string) ServerMessage {
	return ServerMessage{Type: ServerMsgError, Error: err}
}
