package server

import (
	"net/http"

	"github.com/playperu/marslanding/internal/broker"
)

func handleStatus(b *broker.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, b.Snapshot())
	}
}
