// internal/room/events.go
package room

import (
	"github.com/jason-s-yu/threes/internal/game"
)

// EventType is the discriminator of an outbound message.
type EventType string

const (
	EventRoomCreated        EventType = "room_created"
	EventRoomJoined         EventType = "room_joined"
	EventPlayerJoined       EventType = "player_joined"
	EventPlayerLeft         EventType = "player_left"
	EventPlayerDisconnected EventType = "player_disconnected"
	EventPlayerReconnected  EventType = "player_reconnected"
	EventGameStarted        EventType = "game_started"
	EventRematchStarted     EventType = "rematch_started"
	EventTurnStarted        EventType = "turn_started"
	EventDiceRolled         EventType = "dice_rolled"
	EventDiceKept           EventType = "dice_kept"
	EventTurnEnded          EventType = "turn_ended"
	EventGameEnded          EventType = "game_ended"
	EventRematchProposed    EventType = "rematch_proposed"
	EventStateSync          EventType = "state_sync"
	EventRoomClosed         EventType = "room_closed"
	EventChat               EventType = "chat"
	EventError              EventType = "error"
)

// Event is a single outbound message. Only the fields relevant to Type are
// set. The embedded payloads are flattened into the top-level JSON object, so
// for example dice_rolled carries activeDice, keptDice and rollsLeft directly.
type Event struct {
	Type     EventType `json:"type"`
	RoomCode string    `json:"roomCode,omitempty"`
	PlayerID string    `json:"playerId,omitempty"`
	Nickname string    `json:"nickname,omitempty"`
	IsHost   *bool     `json:"isHost,omitempty"`
	HostID   string    `json:"hostId,omitempty"`
	NewHost  string    `json:"newHost,omitempty"`
	Status   Status    `json:"status,omitempty"`

	Player  *PlayerInfo     `json:"player,omitempty"`
	Players []PlayerInfo    `json:"players,omitempty"`
	Game    *game.GameState `json:"game,omitempty"`

	*TurnInfo
	*DiceInfo
	*TurnEnd
	*GameSummary
	*RematchInfo

	Reason    string `json:"reason,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"ts,omitempty"`
}

// PlayerInfo is the public view of a player.
type PlayerInfo struct {
	ID        string `json:"id"`
	Nickname  string `json:"nickname"`
	Connected bool   `json:"connected"`
	IsHost    bool   `json:"isHost"`
}

// TurnInfo names whose turn it is.
type TurnInfo struct {
	CurrentPlayerIndex    int    `json:"currentPlayerIndex"`
	CurrentPlayerID       string `json:"currentPlayerId"`
	CurrentPlayerNickname string `json:"currentPlayerNickname"`
}

// DiceInfo is a player's dice after a roll or keep.
type DiceInfo struct {
	ActiveDice []int `json:"activeDice"`
	KeptDice   []int `json:"keptDice"`
	RollsLeft  int   `json:"rollsLeft"`
}

// TurnEnd is the payload of turn_ended.
type TurnEnd struct {
	FinalScore int   `json:"finalScore"`
	FinalDice  []int `json:"finalDice"`
}

// PlayerResult is one player's final standing.
type PlayerResult struct {
	PlayerID string `json:"playerId"`
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
	Dice     []int  `json:"dice"`
	IsWinner bool   `json:"isWinner"`
}

// Winner identifies a player tied at the winning score.
type Winner struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}

// GameSummary is the payload of game_ended.
type GameSummary struct {
	Results      []PlayerResult `json:"results"`
	Winners      []Winner       `json:"winners"`
	WinningScore int            `json:"winningScore"`
}

// RematchInfo is the current rematch tally.
type RematchInfo struct {
	ProposedBy    string   `json:"proposedBy"`
	AcceptedBy    []string `json:"acceptedBy"`
	AcceptedCount int      `json:"acceptedCount"`
	TotalPlayers  int      `json:"totalPlayers"`
}

func diceInfo(s *game.PlayerTurnState) *DiceInfo {
	return &DiceInfo{
		ActiveDice: append([]int{}, s.ActiveDice...),
		KeptDice:   append([]int{}, s.KeptDice...),
		RollsLeft:  s.RollsLeft,
	}
}

func boolPtr(b bool) *bool { return &b }
