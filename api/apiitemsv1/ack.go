package apiitemsv1

import (
	"encoding/json"
	"net/http"
)

// AckResponse means queued, never applied: the change becomes visible once
// the queue flushes.
type AckResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeAck(w http.ResponseWriter, message string) error {
	w.WriteHeader(http.StatusAccepted)
	return json.NewEncoder(w).Encode(AckResponse{
		Success: true,
		Message: message,
	})
}
