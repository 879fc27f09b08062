package api

import "net/http"

func (s *Server) handleBrokerStatus(w http.ResponseWriter, _ *http.Request) {
	s.metrics.Request("broker")

	writeJSON(w, http.StatusOK, map[string]any{
		"connected": s.client.IsConnected(),
		"broker": map[string]any{
			"host": s.brokerHost,
			"port": s.brokerPort,
		},
	})
}

func (s *Server) handleBrokerStats(w http.ResponseWriter, _ *http.Request) {
	s.metrics.Request("broker")

	if doc := s.feedStats(); doc != nil {
		writeJSON(w, http.StatusOK, doc)
		return
	}

	if !s.requireSys(w) {
		return
	}

	snapshot := s.sys.Snapshot()

	writeJSON(w, http.StatusOK, snapshot.Document())
}

func (s *Server) handleBrokerSummary(w http.ResponseWriter, _ *http.Request) {
	s.metrics.Request("broker")

	if !s.requireSys(w) {
		return
	}

	snapshot := s.sys.Snapshot()

	writeJSON(w, http.StatusOK, snapshot.Summary())
}

func (s *Server) handleBrokerVersion(w http.ResponseWriter, _ *http.Request) {
	s.metrics.Request("broker")

	if !s.requireSys(w) {
		return
	}

	snapshot := s.sys.Snapshot()

	writeJSON(w, http.StatusOK, map[string]any{
		"version": snapshot.Version,
		"uptime":  snapshot.Uptime,
	})
}
