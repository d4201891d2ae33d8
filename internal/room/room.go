// internal/room/room.go
package room

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jason-s-yu/threes/internal/game"
)

// Status is a room's lifecycle phase.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

const (
	// MaxPlayers caps room membership.
	MaxPlayers = 6
	// MaxNicknameLength is measured in runes after trimming.
	MaxNicknameLength = 30
	// MaxChatLength is measured in runes after trimming.
	MaxChatLength = 200
)

// Player is one member of a room. It carries no transport state; the gateway
// maps player IDs to live connections.
type Player struct {
	ID        uuid.UUID
	Nickname  string
	Connected bool
	JoinedAt  time.Time

	// SessionToken only identifies the player for reconnects once SessionBound
	// is set by an explicit registration.
	SessionToken string
	SessionBound bool

	// seq changes every time a new connection attaches to this player, so
	// requests from a superseded connection can be told apart.
	seq uint64
}

// Membership ties a connection to a player in a room.
type Membership struct {
	Code     string
	PlayerID uuid.UUID
	Seq      uint64
}

// RematchVote tracks rematch consent after a finished game.
type RematchVote struct {
	ProposedBy uuid.UUID
	AcceptedBy []uuid.UUID
}

func (v *RematchVote) accepted(id uuid.UUID) bool {
	for _, a := range v.AcceptedBy {
		if a == id {
			return true
		}
	}
	return false
}

func (v *RematchVote) drop(id uuid.UUID) {
	for i, a := range v.AcceptedBy {
		if a == id {
			v.AcceptedBy = append(v.AcceptedBy[:i], v.AcceptedBy[i+1:]...)
			return
		}
	}
}

// Room is one game session. All fields are guarded by Mu.
type Room struct {
	Code         string
	Status       Status
	HostID       uuid.UUID
	Players      []*Player
	Game         *game.Game
	Rematch      *RematchVote
	CreatedAt    time.Time
	LastActivity time.Time

	Mu sync.Mutex

	// sendMu is taken before Mu is released so events leave in mutation order.
	sendMu sync.Mutex

	closed      bool
	pacing      *time.Timer
	pacingSeq   int
	actionIndex int
}

func newRoom(code string, host *Player, now time.Time) *Room {
	return &Room{
		Code:         code,
		Status:       StatusWaiting,
		HostID:       host.ID,
		Players:      []*Player{host},
		CreatedAt:    now,
		LastActivity: now,
	}
}

func newPlayer(nickname string, now time.Time) *Player {
	return &Player{
		ID:        uuid.New(),
		Nickname:  nickname,
		Connected: true,
		JoinedAt:  now,
		seq:       1,
	}
}

func (r *Room) indexOf(id uuid.UUID) int {
	for i, p := range r.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (r *Room) touch(now time.Time) {
	r.LastActivity = now
}

func (r *Room) connected() []*Player {
	out := make([]*Player, 0, len(r.Players))
	for _, p := range r.Players {
		if p.Connected {
			out = append(out, p)
		}
	}
	return out
}

// removePlayer drops the player at i along with its turn state and vote.
func (r *Room) removePlayer(i int) *Player {
	p := r.Players[i]
	r.Players = append(r.Players[:i], r.Players[i+1:]...)
	if r.Game != nil {
		r.Game.RemoveState(i)
	}
	if r.Rematch != nil {
		r.Rematch.drop(p.ID)
		if len(r.Rematch.AcceptedBy) == 0 {
			r.Rematch = nil
		}
	}
	return p
}

func (r *Room) stopPacing() {
	if r.pacing != nil {
		r.pacing.Stop()
		r.pacing = nil
	}
	r.pacingSeq++
}

func (r *Room) playerInfos() []PlayerInfo {
	out := make([]PlayerInfo, len(r.Players))
	for i, p := range r.Players {
		out[i] = r.playerInfo(p)
	}
	return out
}

func (r *Room) playerInfo(p *Player) PlayerInfo {
	return PlayerInfo{
		ID:        p.ID.String(),
		Nickname:  p.Nickname,
		Connected: p.Connected,
		IsHost:    p.ID == r.HostID,
	}
}

func (r *Room) turnInfo() *TurnInfo {
	if r.Game == nil || r.Game.CurrentPlayerIndex >= len(r.Players) {
		return nil
	}
	p := r.Players[r.Game.CurrentPlayerIndex]
	return &TurnInfo{
		CurrentPlayerIndex:    r.Game.CurrentPlayerIndex,
		CurrentPlayerID:       p.ID.String(),
		CurrentPlayerNickname: p.Nickname,
	}
}

// roomEvent fills the fields shared by room_created, room_joined and state_sync.
func (r *Room) roomEvent(t EventType, p *Player) Event {
	ev := Event{
		Type:     t,
		RoomCode: r.Code,
		PlayerID: p.ID.String(),
		IsHost:   boolPtr(p.ID == r.HostID),
		HostID:   r.HostID.String(),
		Status:   r.Status,
		Players:  r.playerInfos(),
	}
	if r.Game != nil {
		ev.Game = r.Game.Snapshot()
		ev.TurnInfo = r.turnInfo()
	}
	if r.Rematch != nil {
		ev.RematchInfo = r.rematchInfo()
	}
	return ev
}

func (r *Room) rematchInfo() *RematchInfo {
	accepted := make([]string, len(r.Rematch.AcceptedBy))
	for i, id := range r.Rematch.AcceptedBy {
		accepted[i] = id.String()
	}
	return &RematchInfo{
		ProposedBy:    r.Rematch.ProposedBy.String(),
		AcceptedBy:    accepted,
		AcceptedCount: len(accepted),
		TotalPlayers:  len(r.connected()),
	}
}

// Info is a read-only projection of a room for the query API.
type Info struct {
	Code        string `json:"code"`
	PlayerCount int    `json:"playerCount"`
	MaxPlayers  int    `json:"maxPlayers"`
	Status      Status `json:"status"`
}

// NormalizeNickname trims name and checks its length.
func NormalizeNickname(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n == 0 || n > MaxNicknameLength {
		return "", ErrInvalidNickname
	}
	return name, nil
}

func normalizeChat(msg string) (string, error) {
	msg = strings.TrimSpace(msg)
	if n := utf8.RuneCountInString(msg); n == 0 || n > MaxChatLength {
		return "", ErrInvalidMessage
	}
	return msg, nil
}
