package api

import (
	"net/http"
	"time"
)

func (s *Server) handleClients(w http.ResponseWriter, _ *http.Request) {
	s.metrics.Request("clients")

	if !s.requireSys(w) {
		return
	}

	writeJSON(w, http.StatusOK, s.clients.List())
}

func (s *Server) handleClientsCount(w http.ResponseWriter, _ *http.Request) {
	s.metrics.Request("clients")

	if !s.requireSys(w) {
		return
	}

	writeJSON(w, http.StatusOK, s.clients.Stats().Counts())
}

func (s *Server) handleClientsActive(w http.ResponseWriter, _ *http.Request) {
	s.metrics.Request("clients")

	if !s.requireSys(w) {
		return
	}

	c := s.clients.Stats()

	var lastUpdated any
	if !c.LastUpdated.IsZero() {
		lastUpdated = c.LastUpdated.Format(time.RFC3339Nano)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"active": c.Connected,
		"connection_rate": map[string]any{
			"1min":  c.Connections1Min,
			"5min":  c.Connections5Min,
			"15min": c.Connections15Min,
		},
		"last_updated": lastUpdated,
	})
}

func (s *Server) handleClientsStats(w http.ResponseWriter, _ *http.Request) {
	s.metrics.Request("clients")

	if !s.requireSys(w) {
		return
	}

	writeJSON(w, http.StatusOK, s.clients.Stats().Document())
}
