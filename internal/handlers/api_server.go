// internal/handlers/api_server.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/jason-s-yu/threes/internal/database"
	"github.com/jason-s-yu/threes/internal/middleware"
	"github.com/jason-s-yu/threes/internal/room"
	"github.com/skip2/go-qrcode"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	qrSize              = 256
)

// NewRouter mounts the websocket gateway and the read-only HTTP API.
func NewRouter(srv *RoomServer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", HealthHandler)
	mux.HandleFunc("GET /ws", RoomWSHandler(srv))

	mux.HandleFunc("GET /join/{code}", JoinHandler(srv))
	mux.HandleFunc("GET /api/rooms/{code}", RoomInfoHandler(srv))
	mux.HandleFunc("GET /api/rooms/{code}/qr", RoomQRHandler(srv))

	mux.HandleFunc("GET /api/history", RecentGamesHandler(srv))
	mux.HandleFunc("GET /api/history/mine/{sessionId}", SessionGamesHandler(srv))
	mux.HandleFunc("GET /api/history/{gameId}", GameDetailsHandler(srv))
	mux.HandleFunc("GET /api/players/{sessionId}", PlayerHandler(srv))

	return middleware.LogMiddleware(srv.log)(mux)
}

// HealthHandler reports liveness.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RoomInfoHandler returns the public summary of a live room.
func RoomInfoHandler(srv *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, ok := srv.Coord.RoomInfo(r.PathValue("code"))
		if !ok {
			writeError(w, http.StatusNotFound, "Room not found")
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

// RoomQRHandler renders a PNG QR code of the room's join link.
func RoomQRHandler(srv *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, ok := srv.Coord.RoomInfo(r.PathValue("code"))
		if !ok {
			writeError(w, http.StatusNotFound, "Room not found")
			return
		}
		png, err := qrcode.Encode(JoinURL(srv.opts.PublicURL, info.Code), qrcode.Medium, qrSize)
		if err != nil {
			srv.log.WithError(err).WithField("room", info.Code).Error("failed to render QR code")
			writeError(w, http.StatusInternalServerError, "Failed to render QR code")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(png)
	}
}

// JoinInvite is what a join link resolves to. Clients join by sending
// join_room with RoomCode over the websocket at WSPath.
type JoinInvite struct {
	RoomCode    string      `json:"roomCode"`
	Status      room.Status `json:"status"`
	PlayerCount int         `json:"playerCount"`
	MaxPlayers  int         `json:"maxPlayers"`
	Joinable    bool        `json:"joinable"`
	WSPath      string      `json:"wsPath"`
}

// JoinHandler resolves the shareable /join/{code} link that QR codes point at.
func JoinHandler(srv *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, ok := srv.Coord.RoomInfo(r.PathValue("code"))
		if !ok {
			writeError(w, http.StatusNotFound, "Room not found")
			return
		}
		writeJSON(w, http.StatusOK, JoinInvite{
			RoomCode:    info.Code,
			Status:      info.Status,
			PlayerCount: info.PlayerCount,
			MaxPlayers:  info.MaxPlayers,
			Joinable:    info.Status == room.StatusWaiting && info.PlayerCount < info.MaxPlayers,
			WSPath:      "/ws",
		})
	}
}

// JoinURL is the link a QR code points at.
func JoinURL(publicURL, code string) string {
	return strings.TrimRight(publicURL, "/") + "/join/" + room.NormalizeCode(code)
}

// RecentGamesHandler lists the latest finished games.
func RecentGamesHandler(srv *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !historyAvailable(srv, w) {
			return
		}
		games, err := srv.History.RecentGames(r.Context(), historyLimit(r))
		if err != nil {
			srv.log.WithError(err).Error("failed to fetch history")
			writeError(w, http.StatusInternalServerError, "Failed to fetch history")
			return
		}
		writeJSON(w, http.StatusOK, games)
	}
}

// SessionGamesHandler lists the games a session played in.
func SessionGamesHandler(srv *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !historyAvailable(srv, w) {
			return
		}
		games, err := srv.History.GamesBySession(r.Context(), r.PathValue("sessionId"), historyLimit(r))
		if err != nil {
			srv.log.WithError(err).Error("failed to fetch player history")
			writeError(w, http.StatusInternalServerError, "Failed to fetch history")
			return
		}
		writeJSON(w, http.StatusOK, games)
	}
}

// GameDetailsHandler returns one stored game.
func GameDetailsHandler(srv *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !historyAvailable(srv, w) {
			return
		}
		id, err := strconv.ParseInt(r.PathValue("gameId"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid game id")
			return
		}
		g, err := srv.History.GameDetails(r.Context(), id)
		if errors.Is(err, database.ErrGameNotFound) {
			writeError(w, http.StatusNotFound, "Game not found")
			return
		}
		if err != nil {
			srv.log.WithError(err).Errorf("failed to fetch game %d", id)
			writeError(w, http.StatusInternalServerError, "Failed to fetch game")
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

// PlayerHandler returns the directory entry for a session.
func PlayerHandler(srv *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !historyAvailable(srv, w) {
			return
		}
		p, err := srv.History.PlayerBySession(r.Context(), r.PathValue("sessionId"))
		if errors.Is(err, database.ErrPlayerNotFound) {
			writeError(w, http.StatusNotFound, "Player not found")
			return
		}
		if err != nil {
			srv.log.WithError(err).Error("failed to fetch player")
			writeError(w, http.StatusInternalServerError, "Failed to fetch player")
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func historyAvailable(srv *RoomServer, w http.ResponseWriter) bool {
	if srv.History == nil {
		writeError(w, http.StatusServiceUnavailable, "History is not available")
		return false
	}
	return true
}

// historyLimit reads ?limit=, defaulting to 20 and capping at 100.
func historyLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultHistoryLimit
	}
	if n > maxHistoryLimit {
		return maxHistoryLimit
	}
	return n
}
