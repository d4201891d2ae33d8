// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/threes/internal/game"
	"github.com/jason-s-yu/threes/internal/middleware"
	"github.com/jason-s-yu/threes/internal/room"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Error codes sent in {type:"error"} replies.
const (
	CodeRoomNotFound      = "ROOM_NOT_FOUND"
	CodeGameInProgress    = "GAME_IN_PROGRESS"
	CodeRoomFull          = "ROOM_FULL"
	CodeSessionNotFound   = "SESSION_NOT_FOUND"
	CodeInvalidNickname   = "INVALID_NICKNAME"
	CodeNotHost           = "NOT_HOST"
	CodeNotYourTurn       = "NOT_YOUR_TURN"
	CodeGameNotInProgress = "GAME_NOT_IN_PROGRESS"
	CodeGameNotFinished   = "GAME_NOT_FINISHED"
	CodeNotInRoom         = "NOT_IN_ROOM"
	CodeInvalidSession    = "INVALID_SESSION"
	CodeIllegalAction     = "ILLEGAL_ACTION"
	CodeBadMessage        = "BAD_MESSAGE"
	CodeRateLimited       = "RATE_LIMITED"
	CodeInternal          = "INTERNAL"
)

const eventPong room.EventType = "pong"

// RoomMessage is an inbound websocket message. Only the fields relevant to
// Type are read.
type RoomMessage struct {
	Type      string `json:"type"`
	Nickname  string `json:"nickname,omitempty"`
	RoomCode  string `json:"roomCode,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Indices   []int  `json:"indices,omitempty"`
	Message   string `json:"message,omitempty"`
}

// RoomWSHandler upgrades GET /ws and runs one connection until it closes.
func RoomWSHandler(srv *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			srv.log.Warnf("websocket accept error: %v", err)
			return
		}
		c.SetReadLimit(srv.opts.ReadLimit)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		client := newWSClient(c, cancel, srv.opts, srv.log.WithField("remote", r.RemoteAddr))

		if !srv.track(client) {
			_ = c.Close(ServerShuttingDown, "server shutting down")
			return
		}
		defer srv.untrack(client)
		middleware.LogWebSocketConnect(srv.log, r.RemoteAddr, r.URL.Path)

		go client.writePump(ctx, srv.opts.PingInterval)
		err = client.readPump(ctx, srv)

		// a dropped connection leaves exactly like an explicit leave
		client.leaveCurrent(srv)
		client.closeWith(websocket.StatusNormalClosure, "")
		middleware.LogWebSocketDisconnect(srv.log, r.RemoteAddr, r.URL.Path, err)
	}
}

// wsClient is one websocket connection. It implements room.Client.
type wsClient struct {
	conn    *websocket.Conn
	cancel  context.CancelFunc
	out     chan room.Event
	limiter *rate.Limiter
	log     logrus.FieldLogger

	closeOnce sync.Once

	// membership is only touched by the read goroutine.
	membership room.Membership
	joined     bool
}

func newWSClient(conn *websocket.Conn, cancel context.CancelFunc, opts ServerOptions, logger logrus.FieldLogger) *wsClient {
	return &wsClient{
		conn:    conn,
		cancel:  cancel,
		out:     make(chan room.Event, opts.OutboundBuffer),
		limiter: rate.NewLimiter(rate.Limit(opts.MessagesPerSecond), opts.MessageBurst),
		log:     logger,
	}
}

// Send queues ev without blocking.
func (c *wsClient) Send(ev room.Event) bool {
	select {
	case c.out <- ev:
		return true
	default:
		return false
	}
}

// Close is called by the hub when another connection takes over the player.
func (c *wsClient) Close(reason string) {
	c.closeWith(ConnectionReplaced, reason)
}

// closeWith starts the close handshake once. The read loop sees the close
// and unwinds the connection.
func (c *wsClient) closeWith(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		go func() {
			_ = c.conn.Close(code, reason)
			c.cancel()
		}()
	})
}

func (c *wsClient) sendError(code, message string) {
	c.Send(room.Event{Type: room.EventError, Code: code, Message: message})
}

func (c *wsClient) setMembership(m room.Membership) {
	c.membership = m
	c.joined = true
}

// switchMembership binds the connection to m and only then leaves the room
// it was in before, so a rejected join keeps the old seat. Leaving a seat
// that m itself superseded is a no-op.
func (c *wsClient) switchMembership(srv *RoomServer, m room.Membership) {
	c.leaveCurrent(srv)
	c.setMembership(m)
}

// leaveCurrent leaves the room this connection is bound to, if any.
func (c *wsClient) leaveCurrent(srv *RoomServer) {
	if !c.joined {
		return
	}
	if err := srv.Coord.Leave(c.membership); err != nil && !errors.Is(err, room.ErrRoomNotFound) {
		c.log.WithError(err).WithField("room", c.membership.Code).Debug("leave after disconnect")
	}
	c.joined = false
	c.membership = room.Membership{}
}

// readPump decodes inbound messages and dispatches them until the connection
// fails or ctx is cancelled.
func (c *wsClient) readPump(ctx context.Context, srv *RoomServer) error {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				return nil
			case errors.Is(err, context.Canceled):
				return nil
			default:
				c.log.Debugf("read error: %v (status %d)", err, status)
				return err
			}
		}

		if typ != websocket.MessageText {
			c.log.Warnf("ignoring non-text message type %d", typ)
			continue
		}
		if !c.limiter.Allow() {
			c.sendError(CodeRateLimited, "Too many messages")
			continue
		}

		var msg RoomMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			c.sendError(CodeBadMessage, "Invalid message format")
			continue
		}
		c.dispatch(srv, msg)
	}
}

// dispatch routes one message to the coordinator. Errors go back to the
// sender only.
func (c *wsClient) dispatch(srv *RoomServer, msg RoomMessage) {
	coord := srv.Coord
	var err error

	switch msg.Type {
	case "create_room":
		var m room.Membership
		if m, err = coord.CreateRoom(c, msg.Nickname); err == nil {
			c.switchMembership(srv, m)
		}

	case "join_room":
		if strings.TrimSpace(msg.RoomCode) == "" {
			c.sendError(CodeBadMessage, "Room code required")
			return
		}
		var m room.Membership
		if m, err = coord.JoinRoom(c, msg.RoomCode, msg.Nickname); err == nil {
			c.switchMembership(srv, m)
		}

	case "reconnect":
		if strings.TrimSpace(msg.RoomCode) == "" || msg.SessionID == "" {
			c.sendError(CodeBadMessage, "Missing roomCode or sessionId")
			return
		}
		var m room.Membership
		if m, err = coord.Reconnect(c, msg.RoomCode, msg.SessionID); err == nil {
			c.switchMembership(srv, m)
		}

	case "ping":
		c.Send(room.Event{Type: eventPong, Timestamp: time.Now().UnixMilli()})

	case "set_session", "start_game", "roll", "keep_dice", "request_rematch", "accept_rematch", "leave_room", "chat":
		if !c.joined {
			err = room.ErrNotInRoom
			break
		}
		err = c.dispatchInRoom(srv, msg)

	default:
		c.sendError(CodeBadMessage, "Unknown message type")
		return
	}

	if err != nil {
		c.log.WithField("type", msg.Type).Debugf("rejected: %v", err)
		c.sendError(errorCode(err), err.Error())
	}
}

func (c *wsClient) dispatchInRoom(srv *RoomServer, msg RoomMessage) error {
	coord := srv.Coord
	m := c.membership

	switch msg.Type {
	case "set_session":
		return coord.SetSession(m, msg.SessionID)
	case "start_game":
		return coord.StartGame(m)
	case "roll":
		return coord.Roll(m)
	case "keep_dice":
		return coord.Keep(m, msg.Indices)
	case "request_rematch":
		return coord.RequestRematch(m)
	case "accept_rematch":
		return coord.AcceptRematch(m)
	case "chat":
		return coord.Chat(m, msg.Message)
	case "leave_room":
		c.leaveCurrent(srv)
	}
	return nil
}

// writePump serializes queued events and keeps the connection alive with
// pings. A ping that is not answered before the next one is due closes the
// connection.
func (c *wsClient) writePump(ctx context.Context, pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.out:
			data, err := json.Marshal(ev)
			if err != nil {
				c.log.Warnf("failed to marshal outgoing %s: %v", ev.Type, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.log.Debugf("failed to write to websocket: %v", err)
				c.closeWith(websocket.StatusInternalError, "write failed")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingInterval)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.log.Infof("ping failed: %v, assuming disconnect", err)
				c.closeWith(PingTimeout, "ping timeout")
				return
			}
		}
	}
}

// errorCode maps coordinator and engine errors to stable wire codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, room.ErrGameInProgress):
		return CodeGameInProgress
	case errors.Is(err, room.ErrRoomFull):
		return CodeRoomFull
	case errors.Is(err, room.ErrSessionNotFound):
		return CodeSessionNotFound
	case errors.Is(err, room.ErrInvalidNickname):
		return CodeInvalidNickname
	case errors.Is(err, room.ErrNotHost):
		return CodeNotHost
	case errors.Is(err, room.ErrNotYourTurn):
		return CodeNotYourTurn
	case errors.Is(err, room.ErrGameNotInProgress):
		return CodeGameNotInProgress
	case errors.Is(err, room.ErrGameNotFinished):
		return CodeGameNotFinished
	case errors.Is(err, room.ErrNotInRoom):
		return CodeNotInRoom
	case errors.Is(err, room.ErrInvalidSession):
		return CodeInvalidSession
	case errors.Is(err, room.ErrInvalidMessage):
		return CodeBadMessage
	case errors.Is(err, room.ErrNoPlayers),
		errors.Is(err, game.ErrTurnOver),
		errors.Is(err, game.ErrNoRollsLeft),
		errors.Is(err, game.ErrMustKeepFirst),
		errors.Is(err, game.ErrAllDiceKept),
		errors.Is(err, game.ErrMustRollFirst),
		errors.Is(err, game.ErrNoDiceSelected),
		errors.Is(err, game.ErrInvalidDieIndex),
		errors.Is(err, game.ErrDuplicateIndices):
		return CodeIllegalAction
	}
	return CodeInternal
}
