package oneday

import (
	"encoding/json"
	"net/http"
	"time"
)

// RootHandler serves a small service banner with live counts.
func (app *App) RootHandler(w http.ResponseWriter, r *http.Request) error {
	stats := app.chatService.Stats()
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(map[string]interface{}{
		"message":        "oneday chat relay",
		"status":         "running",
		"connectedUsers": stats.Connected,
		"waitingUsers":   stats.Waiting,
		"activeRooms":    stats.Rooms,
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// StatusHandler serves the full introspection snapshot: connected users,
// waiting users and active rooms with their occupancy.
func (app *App) StatusHandler(w http.ResponseWriter, r *http.Request) error {
	snapshot := app.chatService.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(snapshot)
}
