// internal/room/errors.go
package room

import "errors"

// Coordinator rejections. None of these mutate room state.
var (
	ErrInvalidNickname   = errors.New("nickname must be 1-30 characters")
	ErrInvalidMessage    = errors.New("chat message must be 1-200 characters")
	ErrInvalidSession    = errors.New("session id is required")
	ErrRoomNotFound      = errors.New("room not found")
	ErrGameInProgress    = errors.New("game already in progress")
	ErrRoomFull          = errors.New("room is full")
	ErrSessionNotFound   = errors.New("session not found in room")
	ErrNotInRoom         = errors.New("player not in room")
	ErrNotHost           = errors.New("only host can start the game")
	ErrNoPlayers         = errors.New("need at least 1 player")
	ErrGameNotInProgress = errors.New("game not in progress")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrGameNotFinished   = errors.New("game not finished")
)
