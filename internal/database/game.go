// internal/database/game.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrGameNotFound is returned by GameDetails for an unknown id.
var ErrGameNotFound = errors.New("game not found")

// GameRecord is a finished game as handed over by the room coordinator.
type GameRecord struct {
	RoomCode       string
	StartedAt      time.Time
	FinishedAt     time.Time
	WinnerNickname string
	WinningScore   int
	Participants   []ParticipantRecord
}

// ParticipantRecord is one player's line in a GameRecord. SessionID is empty
// for players who never registered a session.
type ParticipantRecord struct {
	SessionID string
	Nickname  string
	Score     int
	Dice      []int
	TurnOrder int
	IsWinner  bool
}

// GameSummary is a stored game with its participants in turn order.
type GameSummary struct {
	ID             int64         `json:"id"`
	RoomCode       string        `json:"roomCode"`
	StartedAt      time.Time     `json:"startedAt"`
	FinishedAt     time.Time     `json:"finishedAt"`
	PlayerCount    int           `json:"playerCount"`
	WinnerNickname string        `json:"winnerNickname"`
	WinningScore   int           `json:"winningScore"`
	Participants   []Participant `json:"participants"`
}

// Participant is the public view of one player's result.
type Participant struct {
	Nickname  string `json:"nickname"`
	Score     int    `json:"score"`
	Dice      []int  `json:"dice"`
	IsWinner  bool   `json:"isWinner"`
	TurnOrder int    `json:"turnOrder"`
}

// Store reads and writes game history.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an open pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// RecordGame inserts the game row and one row per participant in a single
// transaction and returns the new game id.
func (s *Store) RecordGame(ctx context.Context, rec GameRecord) (int64, error) {
	var gameID int64
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		insertGame := `
			INSERT INTO games (room_code, started_at, finished_at, player_count, winner_nickname, winning_score)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`
		if e := tx.QueryRow(ctx, insertGame,
			rec.RoomCode, rec.StartedAt, rec.FinishedAt, len(rec.Participants),
			rec.WinnerNickname, rec.WinningScore,
		).Scan(&gameID); e != nil {
			return e
		}

		insertParticipant := `
			INSERT INTO game_participants (game_id, player_session_id, nickname, final_score, final_dice, turn_order, is_winner)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		for _, p := range rec.Participants {
			var session *string
			if p.SessionID != "" {
				session = &p.SessionID
			}
			if _, e := tx.Exec(ctx, insertParticipant,
				gameID, session, p.Nickname, p.Score, toInt32s(p.Dice), p.TurnOrder, p.IsWinner,
			); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("tx insert game or participants: %w", err)
	}
	return gameID, nil
}

const participantsAgg = `
	COALESCE(
		json_agg(json_build_object(
			'nickname', gp.nickname,
			'score', gp.final_score,
			'dice', gp.final_dice,
			'isWinner', gp.is_winner,
			'turnOrder', gp.turn_order
		) ORDER BY gp.turn_order) FILTER (WHERE gp.id IS NOT NULL),
		'[]'
	)
`

// RecentGames returns the latest finished games, newest first.
func (s *Store) RecentGames(ctx context.Context, limit int) ([]GameSummary, error) {
	q := `
		SELECT g.id, g.room_code, g.started_at, g.finished_at, g.player_count,
		       g.winner_nickname, g.winning_score, ` + participantsAgg + `
		FROM games g
		LEFT JOIN game_participants gp ON g.id = gp.game_id
		GROUP BY g.id
		ORDER BY g.finished_at DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent games: %w", err)
	}
	return collectGames(rows)
}

// GamesBySession returns the games a session took part in, newest first.
func (s *Store) GamesBySession(ctx context.Context, sessionID string, limit int) ([]GameSummary, error) {
	q := `
		SELECT g.id, g.room_code, g.started_at, g.finished_at, g.player_count,
		       g.winner_nickname, g.winning_score, ` + participantsAgg + `
		FROM games g
		LEFT JOIN game_participants gp ON g.id = gp.game_id
		WHERE g.id IN (SELECT game_id FROM game_participants WHERE player_session_id = $1)
		GROUP BY g.id
		ORDER BY g.finished_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query games by session: %w", err)
	}
	return collectGames(rows)
}

// GameDetails returns a single game, or ErrGameNotFound.
func (s *Store) GameDetails(ctx context.Context, id int64) (*GameSummary, error) {
	q := `
		SELECT g.id, g.room_code, g.started_at, g.finished_at, g.player_count,
		       g.winner_nickname, g.winning_score, ` + participantsAgg + `
		FROM games g
		LEFT JOIN game_participants gp ON g.id = gp.game_id
		WHERE g.id = $1
		GROUP BY g.id
	`
	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("query game %d: %w", id, err)
	}
	games, err := collectGames(rows)
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, ErrGameNotFound
	}
	return &games[0], nil
}

func collectGames(rows pgx.Rows) ([]GameSummary, error) {
	games, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (GameSummary, error) {
		var g GameSummary
		err := row.Scan(
			&g.ID, &g.RoomCode, &g.StartedAt, &g.FinishedAt, &g.PlayerCount,
			&g.WinnerNickname, &g.WinningScore, &g.Participants,
		)
		return g, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan games: %w", err)
	}
	return games, nil
}

func toInt32s(dice []int) []int32 {
	out := make([]int32, len(dice))
	for i, d := range dice {
		out[i] = int32(d)
	}
	return out
}
