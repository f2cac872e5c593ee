package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Farjord/dronewars-server/internal/game"
)

// FinishedMatch is one persisted match record.
type FinishedMatch struct {
	MatchID    string
	Player1ID  string
	Player2ID  string
	WinnerID   string
	Seed       int64
	Rounds     int
	Checksum   string
	History    []game.AcceptedAction
	FinishedAt time.Time
}

// MatchRepository stores finished matches and their replay histories.
type MatchRepository struct {
	db *DB
}

// NewMatchRepository creates a repository backed by the given pool.
func NewMatchRepository(db *DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// Save writes a finished match. The history blob is the complete ordered
// accepted-action record, sufficient to re-drive the match from its seed.
func (r *MatchRepository) Save(ctx context.Context, m FinishedMatch) error {
	history, err := json.Marshal(m.History)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO finished_matches
			(match_id, player1_id, player2_id, winner_id, seed, rounds, checksum, history, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (match_id) DO NOTHING`,
		m.MatchID, m.Player1ID, m.Player2ID, m.WinnerID, m.Seed, m.Rounds, m.Checksum, history, m.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting finished match: %w", err)
	}
	r.db.logger.Info("finished match persisted",
		zap.String("match_id", m.MatchID),
		zap.String("winner", m.WinnerID),
		zap.Int("rounds", m.Rounds),
	)
	return nil
}

// Get loads one finished match by ID.
func (r *MatchRepository) Get(ctx context.Context, matchID string) (*FinishedMatch, error) {
	var m FinishedMatch
	var history []byte
	err := r.db.pool.QueryRow(ctx, `
		SELECT match_id, player1_id, player2_id, winner_id, seed, rounds, checksum, history, finished_at
		FROM finished_matches WHERE match_id = $1`, matchID,
	).Scan(&m.MatchID, &m.Player1ID, &m.Player2ID, &m.WinnerID, &m.Seed, &m.Rounds, &m.Checksum, &history, &m.FinishedAt)
	if err != nil {
		return nil, fmt.Errorf("loading match %s: %w", matchID, err)
	}
	if err := json.Unmarshal(history, &m.History); err != nil {
		return nil, fmt.Errorf("decoding history for %s: %w", matchID, err)
	}
	return &m, nil
}

// ListRecent returns the most recently finished matches without their
// history blobs.
func (r *MatchRepository) ListRecent(ctx context.Context, limit int) ([]FinishedMatch, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT match_id, player1_id, player2_id, winner_id, seed, rounds, checksum, finished_at
		FROM finished_matches ORDER BY finished_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	var out []FinishedMatch
	for rows.Next() {
		var m FinishedMatch
		if err := rows.Scan(&m.MatchID, &m.Player1ID, &m.Player2ID, &m.WinnerID, &m.Seed, &m.Rounds, &m.Checksum, &m.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning match row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PruneOlderThan deletes records past the replay retention window. Returns
// the number of rows removed.
func (r *MatchRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM finished_matches WHERE finished_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning finished matches: %w", err)
	}
	return tag.RowsAffected(), nil
}
