package sync

import (
	"encoding/json"
	"fmt"
	gosync "sync"

	"go.uber.org/zap"

	"github.com/Farjord/dronewars-server/internal/game"
)

// Mirror maintains the guest-side copy of one match. Every relayed action
// carries the host's authoritative post-state, which the mirror installs
// verbatim; no game logic runs on the guest. Out-of-order delivery triggers
// a full resync, and the mirror never invents state of its own.
type Mirror struct {
	matchID string
	logger  *zap.Logger
	send    Sender // toward the host

	mu          gosync.Mutex
	appliedSeq  uint64
	checksum    string
	synced      bool
	nextIntent  int
	lastView    game.GameStateView
	viewWaiters []func(game.GameStateView)
}

// NewMirror creates a mirror for a match. It is inert until the first full
// sync arrives from the host.
func NewMirror(matchID string, send Sender, logger *zap.Logger) *Mirror {
	return &Mirror{matchID: matchID, send: send, logger: logger}
}

// OnView registers a callback invoked with the mirrored view after every
// applied action. Used by the client UI layer.
func (m *Mirror) OnView(fn func(game.GameStateView)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewWaiters = append(m.viewWaiters, fn)
}

// View returns the last mirrored snapshot.
func (m *Mirror) View() game.GameStateView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastView
}

// SubmitIntent forwards a local player's action to the host. The mirror does
// not apply it locally; the state changes only when the host's accepted
// record comes back.
func (m *Mirror) SubmitIntent(action game.Action) error {
	m.mu.Lock()
	m.nextIntent++
	intentID := fmt.Sprintf("intent-%06d", m.nextIntent)
	m.mu.Unlock()

	env, err := Encode(MessageIntent, m.matchID, IntentPayload{IntentID: intentID, Action: action})
	if err != nil {
		return err
	}
	return m.send(env)
}

// Handle processes one envelope from the host.
func (m *Mirror) Handle(env Envelope) error {
	switch env.Type {
	case MessageFullSync:
		var payload FullSyncPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return fmt.Errorf("decoding full sync: %w", err)
		}
		return m.applyFullSync(payload)

	case MessageAction:
		var payload ActionPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return fmt.Errorf("decoding action relay: %w", err)
		}
		return m.applyRecord(payload)

	case MessageIntentResult:
		// Rejections surface to the UI; accepted intents arrive separately
		// as relayed action records. Nothing to apply here.
		return nil
	}
	return fmt.Errorf("unexpected message type %q from host", env.Type)
}

// applyFullSync installs the host's complete state. The history tail must
// agree with the view's sequence number, otherwise the transfer is internally
// inconsistent and another resync is requested.
func (m *Mirror) applyFullSync(payload FullSyncPayload) error {
	var tailSeq uint64
	var tailChecksum string
	if n := len(payload.History); n > 0 {
		tailSeq = payload.History[n-1].Seq
		tailChecksum = payload.History[n-1].Checksum
	}
	if payload.View.Seq != tailSeq {
		return m.requestResync(payload.View.Seq, "full sync view does not match its history tail")
	}

	m.mu.Lock()
	m.appliedSeq = tailSeq
	m.checksum = tailChecksum
	m.synced = true
	m.lastView = payload.View
	waiters := append([]func(game.GameStateView){}, m.viewWaiters...)
	m.mu.Unlock()

	m.logger.Info("mirror synced", zap.String("match_id", m.matchID), zap.Uint64("seq", tailSeq))
	for _, fn := range waiters {
		fn(payload.View)
	}
	return nil
}

// applyRecord installs one relayed action's post-state, verifying sequence
// order first. Duplicates from a full-sync overlap are dropped silently.
func (m *Mirror) applyRecord(payload ActionPayload) error {
	record := payload.Record
	if payload.View.Seq != record.Seq {
		return m.requestResync(record.Seq, "relayed view does not match its record")
	}

	m.mu.Lock()
	if !m.synced {
		m.mu.Unlock()
		return nil // waiting for the initial full sync
	}
	if record.Seq <= m.appliedSeq {
		m.mu.Unlock()
		return nil // overlap with the last full sync
	}
	if record.Seq != m.appliedSeq+1 {
		m.mu.Unlock()
		return m.requestResync(record.Seq, "sequence gap")
	}
	m.appliedSeq = record.Seq
	m.checksum = record.Checksum
	m.lastView = payload.View
	waiters := append([]func(game.GameStateView){}, m.viewWaiters...)
	m.mu.Unlock()

	for _, fn := range waiters {
		fn(payload.View)
	}
	return nil
}

// Checksum reports the host-recorded checksum of the last applied state.
func (m *Mirror) Checksum() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checksum
}

// requestResync marks the mirror stale and asks the host for a full state
// transfer.
func (m *Mirror) requestResync(atSeq uint64, reason string) error {
	m.mu.Lock()
	m.synced = false
	afterSeq := m.appliedSeq
	m.mu.Unlock()

	m.logger.Warn("mirror requesting resync",
		zap.String("match_id", m.matchID),
		zap.Uint64("at_seq", atSeq),
		zap.String("reason", reason),
	)
	env, err := Encode(MessageRequestFullSync, m.matchID, RequestFullSyncPayload{
		AfterSeq: afterSeq,
		Reason:   reason,
	})
	if err != nil {
		return err
	}
	return m.send(env)
}
