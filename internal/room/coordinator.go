// internal/room/coordinator.go
package room

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/threes/internal/cache"
	"github.com/jason-s-yu/threes/internal/database"
	"github.com/jason-s-yu/threes/internal/game"
	"github.com/sirupsen/logrus"
)

// Client is the transport side of one connection.
type Client interface {
	// Send queues ev without blocking. It reports false if the event was dropped.
	Send(ev Event) bool
	// Close terminates the connection.
	Close(reason string)
}

// Notifier delivers events to the clients attached to a room. Implementations
// must not block and must not call back into the Coordinator.
type Notifier interface {
	Attach(code string, playerID uuid.UUID, c Client)
	Detach(code string, playerID uuid.UUID)
	Send(code string, playerID uuid.UUID, ev Event)
	Broadcast(code string, ev Event, except uuid.UUID)
	Release(code string)
}

// HistorySink stores finished games.
type HistorySink interface {
	RecordGame(ctx context.Context, rec database.GameRecord) (int64, error)
}

// PlayerDirectory remembers which nickname a session last played under.
type PlayerDirectory interface {
	UpsertPlayer(ctx context.Context, sessionID, nickname string) error
}

// ActionLog receives every broadcast event for offline replay.
type ActionLog interface {
	Publish(ctx context.Context, rec cache.ActionRecord) error
}

// Options configures a Coordinator. Zero values fall back to defaults.
type Options struct {
	Notifier Notifier
	History  HistorySink
	Players  PlayerDirectory
	Actions  ActionLog
	Roller   game.Roller
	Logger   logrus.FieldLogger

	TurnDelay     time.Duration
	IdleTimeout   time.Duration
	SweepInterval time.Duration

	Now func() time.Time
}

const (
	DefaultTurnDelay     = 3 * time.Second
	DefaultIdleTimeout   = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

// Coordinator is the only code that mutates rooms. Each operation locks one
// room, validates, mutates, and hands the resulting events to the Notifier
// after the state lock is released.
type Coordinator struct {
	rooms   *Registry
	notify  Notifier
	history HistorySink
	players PlayerDirectory
	actions ActionLog
	roller  game.Roller
	log     logrus.FieldLogger

	turnDelay     time.Duration
	idleTimeout   time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	background sync.WaitGroup
}

// NewCoordinator builds a Coordinator with an empty registry.
func NewCoordinator(opts Options) *Coordinator {
	c := &Coordinator{
		rooms:         NewRegistry(),
		notify:        opts.Notifier,
		history:       opts.History,
		players:       opts.Players,
		actions:       opts.Actions,
		roller:        opts.Roller,
		log:           opts.Logger,
		turnDelay:     opts.TurnDelay,
		idleTimeout:   opts.IdleTimeout,
		sweepInterval: opts.SweepInterval,
		now:           opts.Now,
	}
	if c.notify == nil {
		c.notify = nopNotifier{}
	}
	if c.roller == nil {
		c.roller = game.RandomRoller
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	if c.turnDelay <= 0 {
		c.turnDelay = DefaultTurnDelay
	}
	if c.idleTimeout <= 0 {
		c.idleTimeout = DefaultIdleTimeout
	}
	if c.sweepInterval <= 0 {
		c.sweepInterval = DefaultSweepInterval
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Registry exposes the room registry for read-only lookups.
func (c *Coordinator) Registry() *Registry {
	return c.rooms
}

// CreateRoom opens a new room hosted by the caller.
func (c *Coordinator) CreateRoom(client Client, nickname string) (Membership, error) {
	name, err := NormalizeNickname(nickname)
	if err != nil {
		return Membership{}, err
	}

	now := c.now()
	host := newPlayer(name, now)
	r := c.rooms.Create(func(code string) *Room {
		return newRoom(code, host, now)
	})

	r.Mu.Lock()
	out := &outbox{}
	out.attach(r.Code, host.ID, client)
	out.send(r.Code, host.ID, r.roomEvent(EventRoomCreated, host))
	m := Membership{Code: r.Code, PlayerID: host.ID, Seq: host.seq}
	c.commit(r, out)

	c.log.WithFields(logrus.Fields{"room": r.Code, "player": host.ID}).Info("room created")
	return m, nil
}

// JoinRoom adds the caller to a room that has not started.
func (c *Coordinator) JoinRoom(client Client, code, nickname string) (Membership, error) {
	name, err := NormalizeNickname(nickname)
	if err != nil {
		return Membership{}, err
	}

	r, err := c.lockRoom(code)
	if err != nil {
		return Membership{}, err
	}
	if r.Status != StatusWaiting {
		r.Mu.Unlock()
		return Membership{}, ErrGameInProgress
	}
	if len(r.Players) >= MaxPlayers {
		r.Mu.Unlock()
		return Membership{}, ErrRoomFull
	}

	now := c.now()
	p := newPlayer(name, now)
	r.Players = append(r.Players, p)
	r.touch(now)

	out := &outbox{}
	out.attach(r.Code, p.ID, client)
	out.send(r.Code, p.ID, r.roomEvent(EventRoomJoined, p))
	info := r.playerInfo(p)
	c.broadcast(r, out, p.ID, Event{Type: EventPlayerJoined, Player: &info}, p.ID)
	m := Membership{Code: r.Code, PlayerID: p.ID, Seq: p.seq}
	c.commit(r, out)

	c.log.WithFields(logrus.Fields{"room": m.Code, "player": p.ID}).Info("player joined")
	return m, nil
}

// Reconnect resumes the player whose registered session token matches.
func (c *Coordinator) Reconnect(client Client, code, token string) (Membership, error) {
	if token == "" {
		return Membership{}, ErrSessionNotFound
	}
	r, err := c.lockRoom(code)
	if err != nil {
		return Membership{}, err
	}

	var p *Player
	for _, candidate := range r.Players {
		if candidate.SessionBound && candidate.SessionToken == token {
			p = candidate
			break
		}
	}
	if p == nil {
		r.Mu.Unlock()
		return Membership{}, ErrSessionNotFound
	}

	p.Connected = true
	p.seq++
	r.touch(c.now())

	out := &outbox{}
	out.attach(r.Code, p.ID, client)
	out.send(r.Code, p.ID, r.roomEvent(EventStateSync, p))
	c.broadcast(r, out, p.ID, Event{
		Type:     EventPlayerReconnected,
		PlayerID: p.ID.String(),
		Nickname: p.Nickname,
	}, p.ID)
	m := Membership{Code: r.Code, PlayerID: p.ID, Seq: p.seq}
	c.commit(r, out)

	c.log.WithFields(logrus.Fields{"room": m.Code, "player": p.ID}).Info("player reconnected")
	return m, nil
}

// SetSession registers the token the caller may later reconnect with.
func (c *Coordinator) SetSession(m Membership, token string) error {
	if token == "" {
		return ErrInvalidSession
	}
	r, idx, err := c.acquire(m)
	if err != nil {
		return err
	}
	p := r.Players[idx]
	p.SessionToken = token
	p.SessionBound = true
	r.touch(c.now())
	nickname := p.Nickname
	c.commit(r, &outbox{})

	if c.players != nil {
		c.goBackground(func(ctx context.Context) {
			if err := c.players.UpsertPlayer(ctx, token, nickname); err != nil {
				c.log.WithError(err).WithField("room", m.Code).Warn("failed to upsert player")
			}
		})
	}
	return nil
}

// Leave handles both an explicit leave and a dropped connection. Requests
// from a connection that has since been replaced are ignored.
func (c *Coordinator) Leave(m Membership) error {
	r, err := c.lockRoom(m.Code)
	if err != nil {
		return err
	}
	idx := r.indexOf(m.PlayerID)
	if idx < 0 {
		r.Mu.Unlock()
		return ErrNotInRoom
	}
	if r.Players[idx].seq != m.Seq {
		r.Mu.Unlock()
		return nil
	}

	out := &outbox{}
	c.leave(r, idx, out)
	c.commit(r, out)
	return nil
}

func (c *Coordinator) leave(r *Room, idx int, out *outbox) {
	p := r.Players[idx]
	out.detach(r.Code, p.ID)
	r.touch(c.now())
	logger := c.log.WithFields(logrus.Fields{"room": r.Code, "player": p.ID})

	if r.Status == StatusPlaying {
		if !p.Connected {
			return
		}
		p.Connected = false
		c.broadcast(r, out, p.ID, Event{
			Type:     EventPlayerDisconnected,
			PlayerID: p.ID.String(),
			Nickname: p.Nickname,
		}, p.ID)
		logger.Info("player disconnected mid-game")
		return
	}

	r.removePlayer(idx)
	if len(r.Players) == 0 {
		c.destroy(r, out)
		logger.Info("last player left, room closed")
		return
	}
	if r.HostID == p.ID {
		r.HostID = r.Players[0].ID
	}
	c.broadcast(r, out, p.ID, Event{
		Type:     EventPlayerLeft,
		PlayerID: p.ID.String(),
		Nickname: p.Nickname,
		NewHost:  r.HostID.String(),
	}, uuid.Nil)
	logger.Info("player left")

	if r.Status == StatusFinished && r.Rematch != nil {
		c.checkRematch(r, out)
	}
}

// Chat relays a short message to the whole room.
func (c *Coordinator) Chat(m Membership, message string) error {
	text, err := normalizeChat(message)
	if err != nil {
		return err
	}
	r, idx, err := c.acquire(m)
	if err != nil {
		return err
	}
	p := r.Players[idx]
	now := c.now()
	r.touch(now)

	out := &outbox{}
	c.broadcast(r, out, p.ID, Event{
		Type:      EventChat,
		PlayerID:  p.ID.String(),
		Nickname:  p.Nickname,
		Message:   text,
		Timestamp: now.UnixMilli(),
	}, uuid.Nil)
	c.commit(r, out)
	return nil
}

// RoomInfo returns a read-only summary of a live room.
func (c *Coordinator) RoomInfo(code string) (Info, bool) {
	r, err := c.lockRoom(code)
	if err != nil {
		return Info{}, false
	}
	defer r.Mu.Unlock()
	return Info{
		Code:        r.Code,
		PlayerCount: len(r.Players),
		MaxPlayers:  MaxPlayers,
		Status:      r.Status,
	}, true
}

// Wait blocks until background persistence started so far has finished.
func (c *Coordinator) Wait() {
	c.background.Wait()
}

// lockRoom returns the room for code with Mu held.
func (c *Coordinator) lockRoom(code string) (*Room, error) {
	r, ok := c.rooms.Get(code)
	if !ok {
		return nil, ErrRoomNotFound
	}
	r.Mu.Lock()
	if r.closed {
		r.Mu.Unlock()
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// acquire locks the room named by m and resolves the acting player. The
// player must be connected through the same attachment that m describes.
func (c *Coordinator) acquire(m Membership) (*Room, int, error) {
	r, err := c.lockRoom(m.Code)
	if err != nil {
		return nil, -1, err
	}
	idx := r.indexOf(m.PlayerID)
	if idx < 0 || r.Players[idx].seq != m.Seq || !r.Players[idx].Connected {
		r.Mu.Unlock()
		return nil, -1, ErrNotInRoom
	}
	return r, idx, nil
}

// commit releases r.Mu and delivers out. sendMu is taken before the state
// lock is dropped so that deliveries for a room keep mutation order.
func (c *Coordinator) commit(r *Room, out *outbox) {
	r.sendMu.Lock()
	r.Mu.Unlock()
	out.deliver(c.notify)
	r.sendMu.Unlock()
}

// destroy marks r closed and removes it from the registry. Assumes r.Mu is held.
func (c *Coordinator) destroy(r *Room, out *outbox) {
	r.closed = true
	r.stopPacing()
	out.release(r.Code)
	c.rooms.Remove(r.Code, r)
}

// broadcast queues ev for the room and mirrors it to the action log.
// Assumes r.Mu is held.
func (c *Coordinator) broadcast(r *Room, out *outbox, actor uuid.UUID, ev Event, except uuid.UUID) {
	out.broadcast(r.Code, ev, except)
	c.logAction(r, actor, ev)
}

// logAction publishes ev to the action log asynchronously. Assumes r.Mu is held.
func (c *Coordinator) logAction(r *Room, actor uuid.UUID, ev Event) {
	if c.actions == nil {
		return
	}
	r.actionIndex++
	rec := cache.ActionRecord{
		RoomCode:    r.Code,
		ActionIndex: r.actionIndex,
		ActionType:  string(ev.Type),
		Timestamp:   c.now().UnixMilli(),
	}
	if actor != uuid.Nil {
		rec.ActorID = actor.String()
	}
	c.goBackground(func(ctx context.Context) {
		if err := rec.SetPayload(ev); err != nil {
			c.log.WithError(err).Warn("failed to encode room action")
			return
		}
		if err := c.actions.Publish(ctx, rec); err != nil {
			c.log.WithError(err).WithField("room", rec.RoomCode).Warnf("failed to publish action %d", rec.ActionIndex)
		}
	})
}

func (c *Coordinator) goBackground(fn func(ctx context.Context)) {
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		fn(ctx)
	}()
}

// outbox collects notifier calls made while a room is locked.
type outbox struct {
	ops []func(Notifier)
}

func (o *outbox) attach(code string, id uuid.UUID, cl Client) {
	o.ops = append(o.ops, func(n Notifier) { n.Attach(code, id, cl) })
}

func (o *outbox) detach(code string, id uuid.UUID) {
	o.ops = append(o.ops, func(n Notifier) { n.Detach(code, id) })
}

func (o *outbox) send(code string, id uuid.UUID, ev Event) {
	o.ops = append(o.ops, func(n Notifier) { n.Send(code, id, ev) })
}

func (o *outbox) broadcast(code string, ev Event, except uuid.UUID) {
	o.ops = append(o.ops, func(n Notifier) { n.Broadcast(code, ev, except) })
}

func (o *outbox) release(code string) {
	o.ops = append(o.ops, func(n Notifier) { n.Release(code) })
}

func (o *outbox) deliver(n Notifier) {
	for _, op := range o.ops {
		op(n)
	}
}

type nopNotifier struct{}

func (nopNotifier) Attach(string, uuid.UUID, Client) {}
func (nopNotifier) Detach(string, uuid.UUID) {}
func (nopNotifier) Send(string, uuid.UUID, Event) {}
func (nopNotifier) Broadcast(string, Event, uuid.UUID) {}
func (nopNotifier) Release(string) {}
