// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the room gateway.
const (
	ConnectionReplaced websocket.StatusCode = 3000 // The player resumed on a newer connection.
	ServerShuttingDown websocket.StatusCode = 3001 // The server is draining connections.
	PingTimeout        websocket.StatusCode = 3002 // A keepalive ping went unanswered.
)
