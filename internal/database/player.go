// internal/database/player.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrPlayerNotFound is returned by PlayerBySession for an unknown session.
var ErrPlayerNotFound = errors.New("player not found")

// Player is the last nickname a session was seen under.
type Player struct {
	SessionID string    `json:"sessionId"`
	Nickname  string    `json:"nickname"`
	CreatedAt time.Time `json:"createdAt"`
	LastSeen  time.Time `json:"lastSeen"`
}

// UpsertPlayer records that sessionID is playing as nickname.
func (s *Store) UpsertPlayer(ctx context.Context, sessionID, nickname string) error {
	q := `
		INSERT INTO players (session_id, nickname, last_seen)
		VALUES ($1, $2, NOW())
		ON CONFLICT (session_id)
		DO UPDATE SET nickname = EXCLUDED.nickname, last_seen = NOW()
	`
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, sessionID, nickname)
		return err
	})
}

// PlayerBySession looks a player up by session id.
func (s *Store) PlayerBySession(ctx context.Context, sessionID string) (*Player, error) {
	var p Player
	q := `
	SELECT session_id, nickname, created_at, last_seen
	FROM players
	WHERE session_id=$1
	`
	err := s.pool.QueryRow(ctx, q, sessionID).Scan(&p.SessionID, &p.Nickname, &p.CreatedAt, &p.LastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query player: %w", err)
	}
	return &p, nil
}
