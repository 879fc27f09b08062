package stats

import "time"

// ClientStats is the client-connection view of the broker statistics,
// derived from the $SYS client counters and connection load gauges.
type ClientStats struct {
	Connected    *int64
	Disconnected *int64
	Total        *int64
	Maximum      *int64
	Expired      *int64

	Connections1Min  *float64
	Connections5Min  *float64
	Connections15Min *float64

	LastUpdated time.Time
}

// Clients extracts the client statistics from s.
func (s *Stats) Clients() ClientStats {
	return ClientStats{
		Connected:        s.ClientsConnected,
		Disconnected:     s.ClientsDisconnected,
		Total:            s.ClientsTotal,
		Maximum:          s.ClientsMaximum,
		Expired:          s.ClientsExpired,
		Connections1Min:  s.LoadConnections1Min,
		Connections5Min:  s.LoadConnections5Min,
		Connections15Min: s.LoadConnections15Min,
		LastUpdated:      s.LastUpdated,
	}
}

// Document returns the detailed client statistics document.
func (c ClientStats) Document() map[string]any {
	return map[string]any{
		"connected":    c.Connected,
		"disconnected": c.Disconnected,
		"total":        c.Total,
		"maximum":      c.Maximum,
		"expired":      c.Expired,
		"connection_rate": map[string]any{
			"1min":  c.Connections1Min,
			"5min":  c.Connections5Min,
			"15min": c.Connections15Min,
		},
		"last_updated": rfc3339(c.LastUpdated),
	}
}

// Counts returns the simplified count document.
func (c ClientStats) Counts() map[string]any {
	return map[string]any{
		"connected":    c.Connected,
		"disconnected": c.Disconnected,
		"total":        c.Total,
		"maximum":      c.Maximum,
		"last_updated": rfc3339(c.LastUpdated),
	}
}
