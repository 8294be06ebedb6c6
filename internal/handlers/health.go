package handlers

import "net/http"

// ConnectionCounter reports the number of live realtime connections.
type ConnectionCounter interface {
	ConnectionCount() int
}

type HealthHandler struct {
	Hub ConnectionCounter
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"connections": h.Hub.ConnectionCount(),
	})
}
