// Package match manages the lobby lifecycle in front of the game engine:
// creating lobbies, admitting the second player by join code, and starting
// the match once both seats are filled. Join codes are stored only as bcrypt
// hashes; the plaintext exists once, in the create response to the host.
package match

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Farjord/dronewars-server/internal/game"
)

// codeAlphabet avoids visually ambiguous characters in join codes.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Status is a lobby's lifecycle state.
type Status string

const (
	StatusWaiting Status = "WAITING"
	StatusStarted Status = "STARTED"
	StatusExpired Status = "EXPIRED"
)

// Lobby is one pending or started match.
type Lobby struct {
	MatchID     string
	HostID      string
	GuestID     string
	Status      Status
	Seed        int64
	Controllers [2]game.Controller
	CreatedAt   time.Time

	codeHash []byte
}

// Manager owns the lobby table and starts matches on the engine.
type Manager struct {
	engine         *game.Engine
	logger         *zap.Logger
	joinCodeLength int
	lobbyTimeout   time.Duration

	mu      sync.Mutex
	lobbies map[string]*Lobby

	// OnMatchStarted is invoked after a lobby's match begins, outside the
	// manager lock. The sync host uses it to register the match for relays.
	OnMatchStarted func(matchID string, seed int64, playerIDs [2]string, controllers [2]game.Controller)
}

// NewManager creates a lobby manager.
func NewManager(engine *game.Engine, joinCodeLength int, lobbyTimeout time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		engine:         engine,
		logger:         logger,
		joinCodeLength: joinCodeLength,
		lobbyTimeout:   lobbyTimeout,
		lobbies:        make(map[string]*Lobby),
	}
}

// Create opens a lobby for the host. For AI matches the game starts
// immediately and the returned join code is empty.
func (m *Manager) Create(hostID string, vsAI bool) (*Lobby, string, error) {
	if hostID == "" {
		return nil, "", fmt.Errorf("host player ID is required")
	}
	matchID := uuid.NewString()

	if vsAI {
		lobby := &Lobby{
			MatchID:     matchID,
			HostID:      hostID,
			GuestID:     "ai-" + matchID[:8],
			Status:      StatusStarted,
			Seed:        randomSeed(),
			Controllers: [2]game.Controller{game.ControllerHuman, game.ControllerAI},
			CreatedAt:   time.Now(),
		}
		if err := m.startLocked(lobby); err != nil {
			return nil, "", err
		}
		m.mu.Lock()
		m.lobbies[matchID] = lobby
		m.mu.Unlock()
		return lobby, "", nil
	}

	code, err := m.generateCode()
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hashing join code: %w", err)
	}

	lobby := &Lobby{
		MatchID:     matchID,
		HostID:      hostID,
		Status:      StatusWaiting,
		Seed:        randomSeed(),
		Controllers: [2]game.Controller{game.ControllerHuman, game.ControllerHuman},
		CreatedAt:   time.Now(),
		codeHash:    hash,
	}
	m.mu.Lock()
	m.lobbies[matchID] = lobby
	m.mu.Unlock()

	m.logger.Info("lobby created", zap.String("match_id", matchID), zap.String("host", hostID))
	return lobby, code, nil
}

// Join admits a guest by join code and starts the match. The code is matched
// against every waiting lobby's hash.
func (m *Manager) Join(guestID, code string) (*Lobby, error) {
	if guestID == "" {
		return nil, fmt.Errorf("guest player ID is required")
	}

	m.mu.Lock()
	var lobby *Lobby
	for _, l := range m.lobbies {
		if l.Status != StatusWaiting {
			continue
		}
		if bcrypt.CompareHashAndPassword(l.codeHash, []byte(code)) == nil {
			lobby = l
			break
		}
	}
	if lobby == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("no waiting lobby matches that join code")
	}
	if lobby.HostID == guestID {
		m.mu.Unlock()
		return nil, fmt.Errorf("cannot join your own lobby")
	}
	lobby.GuestID = guestID
	lobby.Status = StatusStarted
	m.mu.Unlock()

	if err := m.startLocked(lobby); err != nil {
		m.mu.Lock()
		lobby.GuestID = ""
		lobby.Status = StatusWaiting
		m.mu.Unlock()
		return nil, err
	}
	return lobby, nil
}

// Get returns a lobby by match ID.
func (m *Manager) Get(matchID string) (*Lobby, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lobbies[matchID]
	return l, ok
}

// Remove drops a lobby record. Called when a match ends.
func (m *Manager) Remove(matchID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lobbies, matchID)
}

// ExpireStale marks waiting lobbies past the timeout as expired and removes
// them. Returns the number expired.
func (m *Manager) ExpireStale(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, l := range m.lobbies {
		if l.Status == StatusWaiting && now.Sub(l.CreatedAt) > m.lobbyTimeout {
			l.Status = StatusExpired
			delete(m.lobbies, id)
			n++
		}
	}
	return n
}

// startLocked begins the engine match for a filled lobby.
func (m *Manager) startLocked(lobby *Lobby) error {
	playerIDs := [2]string{lobby.HostID, lobby.GuestID}
	if err := m.engine.StartMatch(lobby.MatchID, playerIDs, lobby.Controllers, lobby.Seed); err != nil {
		return fmt.Errorf("starting match: %w", err)
	}
	m.logger.Info("match started from lobby",
		zap.String("match_id", lobby.MatchID),
		zap.String("host", lobby.HostID),
		zap.String("guest", lobby.GuestID),
	)
	if m.OnMatchStarted != nil {
		m.OnMatchStarted(lobby.MatchID, lobby.Seed, playerIDs, lobby.Controllers)
	}
	return nil
}

// generateCode produces a join code from the unambiguous alphabet using
// crypto/rand.
func (m *Manager) generateCode() (string, error) {
	code := make([]byte, m.joinCodeLength)
	buf := make([]byte, m.joinCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating join code: %w", err)
	}
	for i := range code {
		code[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return string(code), nil
}

// randomSeed draws a match seed from crypto/rand. The seed is the only
// nondeterministic input a match ever sees.
func randomSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.BigEndian.Uint64(buf[:]) &^ (1 << 63))
}
