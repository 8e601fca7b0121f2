package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/joshp123/bluedoor/internal/fermax"
	"github.com/joshp123/bluedoor/internal/poll"
	"github.com/joshp123/bluedoor/internal/session"
)

// SnapshotProvider exposes the current discovered home/door set.
type SnapshotProvider interface {
	Snapshot() poll.Snapshot
}

// DoorOpener executes a door-open command.
type DoorOpener interface {
	OpenDoor(ctx context.Context, door fermax.Door) (fermax.Outcome, error)
}

// HealthHandler returns a simple OK for liveness checks.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// DoorsHandler serves the current discovery snapshot.
func DoorsHandler(snapshots SnapshotProvider) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, snapshots.Snapshot())
	})
}

// OpenDoorHandler resolves a door from the snapshot and fires the
// open command. The HTTP status mirrors the classified outcome so
// dumb callers get a usable signal, but the body always carries the
// full outcome.
func OpenDoorHandler(snapshots SnapshotProvider, opener DoorOpener) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		door, ok := snapshots.Snapshot().Door(r.PathValue("home"), r.PathValue("door"))
		if !ok {
			writeError(w, http.StatusNotFound, "unknown door", "not_found")
			return
		}

		outcome, err := opener.OpenDoor(r.Context(), door)
		if err != nil {
			if session.IsAuthError(err) {
				writeError(w, http.StatusUnauthorized, err.Error(), "credentials")
				return
			}
			writeError(w, http.StatusBadGateway, err.Error(), "transient")
			return
		}

		switch outcome.Classification {
		case fermax.Success:
			writeJSON(w, http.StatusOK, outcome)
		case fermax.Ambiguous:
			// Command was sent; outcome unknown. A warning, not an
			// error: the door may well have opened.
			writeJSON(w, http.StatusAccepted, outcome)
		default:
			writeJSON(w, http.StatusBadGateway, outcome)
		}
	})
}

// NewMux assembles the full HTTP surface.
func NewMux(snapshots SnapshotProvider, opener DoorOpener, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthHandler)
	mux.Handle("/metrics", metrics)
	mux.Handle("GET /doors", DoorsHandler(snapshots))
	mux.Handle("POST /doors/{home}/{door}/open", OpenDoorHandler(snapshots, opener))
	return mux
}

type errorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg, category string) {
	writeJSON(w, status, errorResponse{Error: msg, Category: category})
}
