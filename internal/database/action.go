// internal/database/action.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/threes/internal/cache"
)

// InsertActions writes a batch of room actions in one transaction.
func (s *Store) InsertActions(ctx context.Context, recs []cache.ActionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	q := `
		INSERT INTO room_actions (room_code, action_index, actor_id, action_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rec := range recs {
			var actor *string
			if rec.ActorID != "" {
				actor = &rec.ActorID
			}
			payload := []byte(rec.Payload)
			if len(payload) == 0 {
				payload = []byte("{}")
			}
			batch.Queue(q, rec.RoomCode, rec.ActionIndex, actor, rec.ActionType, payload, time.UnixMilli(rec.Timestamp))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("tx insert room actions: %w", err)
	}
	return nil
}

// CountActions returns how many actions are stored for a room code.
func (s *Store) CountActions(ctx context.Context, roomCode string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM room_actions WHERE room_code=$1`, roomCode).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count room actions: %w", err)
	}
	return n, nil
}
