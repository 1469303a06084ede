package reconcile

import (
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/printforge/cartsync/internal/bus/cartbus"
	"github.com/printforge/cartsync/internal/journal"
	"github.com/printforge/cartsync/internal/observability"
	"github.com/printforge/cartsync/internal/schema"
)

// StatsSource exposes accumulated reconciliation counters, typically the
// engine itself.
type StatsSource interface {
	Stats() observability.ReconcileSnapshot
}

// NewControlHTTPHandler returns the control REST facade: a forced
// reconciliation trigger, runtime counters, the fee mutation journal, and a
// liveness probe. stats and store may be nil; the matching endpoints then
// report 404.
func NewControlHTTPHandler(bus cartbus.Bus, stats StatsSource, store journal.Store) http.Handler {
	server := &controlHTTPServer{bus: bus, stats: stats, store: store}
	mux := http.NewServeMux()
	mux.HandleFunc("/control/reconcile", server.handleReconcile)
	mux.HandleFunc("/control/stats", server.handleStats)
	mux.HandleFunc("/control/journal", server.handleJournal)
	mux.HandleFunc("/healthz", server.handleHealth)
	return mux
}

type controlHTTPServer struct {
	bus   cartbus.Bus
	stats StatsSource
	store journal.Store
}

type controlAck struct {
	Status  string `json:"status"`
	EventID string `json:"eventId,omitempty"`
}

func (s *controlHTTPServer) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	evt := schema.NewCartEvent(schema.EventCartRefresh, "control/http")
	if err := s.bus.Publish(r.Context(), evt); err != nil {
		writeControlError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeControlJSON(w, http.StatusAccepted, controlAck{Status: "accepted", EventID: evt.EventID})
}

func (s *controlHTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.stats == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeControlJSON(w, http.StatusOK, s.stats.Stats())
}

func (s *controlHTTPServer) handleJournal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	query := journal.Query{ProjectID: r.URL.Query().Get("projectId")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeControlError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		query.Limit = limit
	}

	entries, err := s.store.List(r.Context(), query)
	if err != nil {
		writeControlError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeControlJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *controlHTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeControlJSON(w, http.StatusOK, controlAck{Status: "ok"})
}

func writeControlJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeControlError(w http.ResponseWriter, status int, message string) {
	writeControlJSON(w, status, map[string]string{"error": message})
}
