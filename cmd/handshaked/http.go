package main

import (
	"encoding/json"
	"net/http"

	"github.com/nuntissura/handshake/pkg/store"
)

// handleListEvents exposes the Flight Recorder's event log read-side
// (spec §3 list_events) for operator tooling; write access is never
// exposed over HTTP — every write goes through RecordEvent calls made by
// the governed components themselves.
func handleListEvents(w http.ResponseWriter, r *http.Request, fr *store.FlightRecorder) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	events := fr.ListEvents(store.EventFilter{})
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events)
}
