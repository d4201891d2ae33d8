// internal/database/store_test.go
package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jason-s-yu/threes/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupStore starts a throwaway postgres, migrates it and returns a Store.
func setupStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("threes"),
		tcpostgres.WithUsername("threes"),
		tcpostgres.WithPassword("threes"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	version, err := MigrateUp(dsn)
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)
	// running again is a no-op
	_, err = MigrateUp(dsn)
	require.NoError(t, err)

	pool, err := ConnectDB(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewStore(pool)
}

func sampleGame(code string, finished time.Time) GameRecord {
	return GameRecord{
		RoomCode:       code,
		StartedAt:      finished.Add(-2 * time.Minute),
		FinishedAt:     finished,
		WinnerNickname: "Alice",
		WinningScore:   4,
		Participants: []ParticipantRecord{
			{SessionID: "sess-a", Nickname: "Alice", Score: 4, Dice: []int{1, 3, 3, 3, 3}, TurnOrder: 1, IsWinner: true},
			{Nickname: "Bob", Score: 12, Dice: []int{2, 2, 2, 3, 6}, TurnOrder: 2},
		},
	}
}

func TestRecordAndReadGames(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	firstID, err := s.RecordGame(ctx, sampleGame("ABCD", now.Add(-time.Hour)))
	require.NoError(t, err)
	secondID, err := s.RecordGame(ctx, sampleGame("WXYZ", now))
	require.NoError(t, err)
	assert.Greater(t, secondID, firstID)

	recent, err := s.RecentGames(ctx, 20)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, secondID, recent[0].ID, "newest first")
	assert.Equal(t, "WXYZ", recent[0].RoomCode)
	assert.Equal(t, 2, recent[0].PlayerCount)

	limited, err := s.RecentGames(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	g, err := s.GameDetails(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, "ABCD", g.RoomCode)
	assert.Equal(t, "Alice", g.WinnerNickname)
	assert.Equal(t, 4, g.WinningScore)
	require.Len(t, g.Participants, 2)
	assert.Equal(t, Participant{Nickname: "Alice", Score: 4, Dice: []int{1, 3, 3, 3, 3}, IsWinner: true, TurnOrder: 1}, g.Participants[0])
	assert.Equal(t, 2, g.Participants[1].TurnOrder)

	_, err = s.GameDetails(ctx, secondID+100)
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestGamesBySession(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.RecordGame(ctx, sampleGame("ABCD", time.Now()))
	require.NoError(t, err)

	mine, err := s.GamesBySession(ctx, "sess-a", 20)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Len(t, mine[0].Participants, 2, "every participant is listed, not just the session's own row")

	none, err := s.GamesBySession(ctx, "sess-unknown", 20)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpsertPlayer(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.PlayerBySession(ctx, "sess-a")
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	require.NoError(t, s.UpsertPlayer(ctx, "sess-a", "Alice"))
	require.NoError(t, s.UpsertPlayer(ctx, "sess-a", "Ally"))

	p, err := s.PlayerBySession(ctx, "sess-a")
	require.NoError(t, err)
	assert.Equal(t, "Ally", p.Nickname)
	assert.False(t, p.LastSeen.Before(p.CreatedAt))
}

func TestInsertActions(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertActions(ctx, nil))
	recs := []cache.ActionRecord{
		{RoomCode: "ABCD", ActionIndex: 1, ActorID: "5f1c9a52-3b5e-4d1a-9f43-0d2f0b8e7c11", ActionType: "game_started", Payload: json.RawMessage(`{"type":"game_started"}`), Timestamp: time.Now().UnixMilli()},
		{RoomCode: "ABCD", ActionIndex: 2, ActionType: "turn_started", Timestamp: time.Now().UnixMilli()},
	}
	require.NoError(t, s.InsertActions(ctx, recs))

	n, err := s.CountActions(ctx, "ABCD")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
