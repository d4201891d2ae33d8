// internal/handlers/room_server.go
package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/jason-s-yu/threes/internal/database"
	"github.com/jason-s-yu/threes/internal/room"
	"github.com/sirupsen/logrus"
)

// HistoryReader serves the read side of the history API.
type HistoryReader interface {
	RecentGames(ctx context.Context, limit int) ([]database.GameSummary, error)
	GamesBySession(ctx context.Context, sessionID string, limit int) ([]database.GameSummary, error)
	GameDetails(ctx context.Context, id int64) (*database.GameSummary, error)
	PlayerBySession(ctx context.Context, sessionID string) (*database.Player, error)
}

// ServerOptions tunes the gateway. Zero values fall back to defaults.
type ServerOptions struct {
	PingInterval      time.Duration
	MessagesPerSecond float64
	MessageBurst      int
	OutboundBuffer    int
	ReadLimit         int64
	PublicURL         string
}

const (
	DefaultPingInterval      = 30 * time.Second
	DefaultMessagesPerSecond = 20
	DefaultMessageBurst      = 40
	DefaultOutboundBuffer    = 64
	DefaultReadLimit         = 4096
)

// RoomServer ties the room coordinator to its websocket and HTTP surfaces.
type RoomServer struct {
	Coord   *room.Coordinator
	Hub     *Hub
	History HistoryReader // nil when no database is configured

	opts ServerOptions
	log  logrus.FieldLogger

	clientsMu sync.Mutex
	clients   map[*wsClient]struct{}
	closing   bool
	handlers  sync.WaitGroup
}

// NewRoomServer wires a coordinator that delivers through hub. History may be nil.
func NewRoomServer(coord *room.Coordinator, hub *Hub, history HistoryReader, opts ServerOptions, logger logrus.FieldLogger) *RoomServer {
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.MessagesPerSecond <= 0 {
		opts.MessagesPerSecond = DefaultMessagesPerSecond
	}
	if opts.MessageBurst <= 0 {
		opts.MessageBurst = DefaultMessageBurst
	}
	if opts.OutboundBuffer <= 0 {
		opts.OutboundBuffer = DefaultOutboundBuffer
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = DefaultReadLimit
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RoomServer{
		Coord:   coord,
		Hub:     hub,
		History: history,
		opts:    opts,
		log:     logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// track registers a connection handler. It reports false once CloseAll has
// run, in which case the handler must not touch the coordinator.
func (s *RoomServer) track(c *wsClient) bool {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if s.closing {
		return false
	}
	s.clients[c] = struct{}{}
	s.handlers.Add(1)
	return true
}

func (s *RoomServer) untrack(c *wsClient) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()
	s.handlers.Done()
}

// CloseAll closes every open websocket and refuses new ones. Used on
// shutdown, since hijacked connections are not covered by http.Server.Shutdown.
// The closes complete asynchronously; use Wait to block on them.
func (s *RoomServer) CloseAll() int {
	s.clientsMu.Lock()
	s.closing = true
	clients := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.Unlock()

	for _, c := range clients {
		c.closeWith(ServerShuttingDown, "server shutting down")
	}
	return len(clients)
}

// Wait blocks until every connection handler has returned, including its
// final leave, or until ctx is done.
func (s *RoomServer) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConnectionCount reports how many websockets are open.
func (s *RoomServer) ConnectionCount() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}
