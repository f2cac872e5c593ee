// Package server exposes the match service over websockets: lobby management,
// action submission, state pushes after every accepted action, and the sync
// relay for guest mirrors.
package server

import (
	"context"
	"errors"
	"net/http"
	gosync "sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Farjord/dronewars-server/internal/config"
	"github.com/Farjord/dronewars-server/internal/game"
	"github.com/Farjord/dronewars-server/internal/game/ai"
	"github.com/Farjord/dronewars-server/internal/match"
	"github.com/Farjord/dronewars-server/internal/repository"
	gamesync "github.com/Farjord/dronewars-server/internal/sync"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server wires the engine, lobby manager, AI runner and sync host behind a
// websocket endpoint.
type Server struct {
	cfg     config.ServerConfig
	logger  *zap.Logger
	engine  *game.Engine
	lobbies *match.Manager
	host    *gamesync.Host
	runner  *ai.Runner
	store   *repository.MatchRepository // nil when persistence is disabled

	mu       gosync.Mutex
	clients  map[*client]bool
	byMatch  map[string]map[*client]bool
	aiStops  map[string]func()
	persistd map[string]bool

	httpServer *http.Server
	unsub      func()
}

// New creates the server and installs its engine subscriptions.
func New(
	cfg config.ServerConfig,
	engine *game.Engine,
	lobbies *match.Manager,
	host *gamesync.Host,
	runner *ai.Runner,
	store *repository.MatchRepository,
	logger *zap.Logger,
) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		engine:   engine,
		lobbies:  lobbies,
		host:     host,
		runner:   runner,
		store:    store,
		clients:  make(map[*client]bool),
		byMatch:  make(map[string]map[*client]bool),
		aiStops:  make(map[string]func()),
		persistd: make(map[string]bool),
	}
	lobbies.OnMatchStarted = s.onMatchStarted
	s.unsub = engine.Subscribe(s.onAccepted)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: 0, // websocket writes manage their own deadlines
	}
	return s
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("websocket server listening", zap.String("address", s.cfg.Address))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if s.unsub != nil {
		s.unsub()
	}
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := newClient(s, conn)
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	go c.writePump()
	go c.readPump()
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
	if c.matchID != "" {
		if peers, ok := s.byMatch[c.matchID]; ok {
			delete(peers, c)
		}
	}
	s.mu.Unlock()

	if c.matchID != "" && c.playerID != "" {
		s.host.DetachGuest(c.matchID, c.playerID)
	}
}

// handleMessage dispatches one decoded client message.
func (s *Server) handleMessage(c *client, msg ClientMessage) {
	switch msg.Type {
	case ClientMsgCreateLobby:
		s.handleCreateLobby(c, msg)
	case ClientMsgJoinLobby:
		s.handleJoinLobby(c, msg)
	case ClientMsgAction:
		s.handleAction(c, msg)
	case ClientMsgGetState:
		s.handleGetState(c, msg)
	case ClientMsgSync:
		s.handleSync(c, msg)
	default:
		c.sendMessage(errorMessage("unknown message type"))
	}
}

func (s *Server) handleCreateLobby(c *client, msg ClientMessage) {
	if msg.PlayerID == "" {
		c.sendMessage(errorMessage("playerId is required"))
		return
	}
	lobby, code, err := s.lobbies.Create(msg.PlayerID, msg.VsAI)
	if err != nil {
		c.sendMessage(errorMessage(err.Error()))
		return
	}
	c.playerID = msg.PlayerID
	s.bindClient(c, lobby.MatchID)

	c.sendMessage(ServerMessage{
		Type:     ServerMsgLobbyCreated,
		MatchID:  lobby.MatchID,
		JoinCode: code,
	})
	if lobby.Status == match.StatusStarted {
		s.announceStart(lobby)
	}
}

func (s *Server) handleJoinLobby(c *client, msg ClientMessage) {
	if msg.PlayerID == "" || msg.JoinCode == "" {
		c.sendMessage(errorMessage("playerId and joinCode are required"))
		return
	}
	lobby, err := s.lobbies.Join(msg.PlayerID, msg.JoinCode)
	if err != nil {
		c.sendMessage(errorMessage(err.Error()))
		return
	}
	c.playerID = msg.PlayerID
	s.bindClient(c, lobby.MatchID)
	s.announceStart(lobby)
}

func (s *Server) handleAction(c *client, msg ClientMessage) {
	if msg.Action == nil || msg.MatchID == "" {
		c.sendMessage(errorMessage("matchId and action are required"))
		return
	}
	result, err := s.engine.ProcessAction(msg.MatchID, *msg.Action)
	if err != nil {
		c.sendMessage(errorMessage(err.Error()))
		return
	}
	c.sendMessage(ServerMessage{
		Type:    ServerMsgActionResult,
		MatchID: msg.MatchID,
		Result:  &result,
	})
}

func (s *Server) handleGetState(c *client, msg ClientMessage) {
	if msg.MatchID == "" {
		c.sendMessage(errorMessage("matchId is required"))
		return
	}
	view, err := s.engine.GetState(msg.MatchID)
	if err != nil {
		c.sendMessage(errorMessage(err.Error()))
		return
	}
	c.sendMessage(ServerMessage{Type: ServerMsgState, MatchID: msg.MatchID, State: &view})
}

// handleSync forwards a guest's sync envelope to the host relay. Replies go
// back through the same connection.
func (s *Server) handleSync(c *client, msg ClientMessage) {
	if msg.Sync == nil {
		c.sendMessage(errorMessage("sync envelope is required"))
		return
	}
	send := func(env gamesync.Envelope) error {
		c.sendMessage(ServerMessage{Type: ServerMsgSync, MatchID: env.MatchID, Sync: &env})
		return nil
	}
	if err := s.host.Handle(*msg.Sync, send); err != nil {
		c.sendMessage(errorMessage(err.Error()))
	}
}

func (s *Server) bindClient(c *client, matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.matchID = matchID
	if s.byMatch[matchID] == nil {
		s.byMatch[matchID] = make(map[*client]bool)
	}
	s.byMatch[matchID][c] = true
}

// announceStart notifies every client bound to the lobby's match.
func (s *Server) announceStart(lobby *match.Lobby) {
	view, err := s.engine.GetState(lobby.MatchID)
	if err != nil {
		return
	}
	msg := ServerMessage{
		Type:    ServerMsgMatchStarted,
		MatchID: lobby.MatchID,
		Players: []string{lobby.HostID, lobby.GuestID},
		State:   &view,
	}
	s.broadcast(lobby.MatchID, msg)
}

func (s *Server) broadcast(matchID string, msg ServerMessage) {
	s.mu.Lock()
	targets := make([]*client, 0, len(s.byMatch[matchID]))
	for c := range s.byMatch[matchID] {
		targets = append(targets, c)
	}
	s.mu.Unlock()
	for _, c := range targets {
		c.sendMessage(msg)
	}
}

// onMatchStarted is the lobby manager's callback: register the match for
// sync relays and start the AI loop when a seat is computer-controlled.
func (s *Server) onMatchStarted(matchID string, seed int64, playerIDs [2]string, controllers [2]game.Controller) {
	s.host.RegisterMatch(matchID, seed, playerIDs, controllers)

	var aiSeats []string
	for i, ctrl := range controllers {
		if ctrl == game.ControllerAI {
			aiSeats = append(aiSeats, playerIDs[i])
		}
	}
	if len(aiSeats) > 0 {
		stop := s.runner.Attach(matchID, aiSeats)
		s.mu.Lock()
		s.aiStops[matchID] = stop
		s.mu.Unlock()
	}
}

// onAccepted pushes the fresh state to the match's clients and finalizes the
// match when a winner is set.
func (s *Server) onAccepted(matchID string, view game.GameStateView) {
	s.broadcast(matchID, ServerMessage{Type: ServerMsgState, MatchID: matchID, State: &view})

	if view.Winner != "" {
		s.finishMatch(matchID, view)
	}
}

// finishMatch stops the AI loop and persists the record once.
func (s *Server) finishMatch(matchID string, view game.GameStateView) {
	s.mu.Lock()
	if s.persistd[matchID] {
		s.mu.Unlock()
		return
	}
	s.persistd[matchID] = true
	stop := s.aiStops[matchID]
	delete(s.aiStops, matchID)
	s.mu.Unlock()

	if stop != nil {
		stop()
	}

	lobby, ok := s.lobbies.Get(matchID)
	if s.store != nil && ok {
		history, err := s.engine.History(matchID, 0)
		if err == nil && len(history) > 0 {
			record := repository.FinishedMatch{
				MatchID:    matchID,
				Player1ID:  lobby.HostID,
				Player2ID:  lobby.GuestID,
				WinnerID:   view.Winner,
				Seed:       lobby.Seed,
				Rounds:     view.Round,
				Checksum:   history[len(history)-1].Checksum,
				History:    history,
				FinishedAt: time.Now(),
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.store.Save(ctx, record); err != nil {
				s.logger.Error("persisting finished match", zap.String("match_id", matchID), zap.Error(err))
			}
			cancel()
		}
	}
	s.lobbies.Remove(matchID)
	s.logger.Info("match finished",
		zap.String("match_id", matchID),
		zap.String("winner", view.Winner),
		zap.Int("rounds", view.Round),
	)
}
