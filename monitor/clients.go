package monitor

import (
	"time"

	"github.com/hollyvale/mqttdash/stats"
)

// ClientMonitor exposes the client-connection view of the broker
// statistics collected by a SysMonitor.
//
// Mosquitto's $SYS topics publish aggregate counters, not individual
// client identifiers, so the monitor reports categorized counts and
// connection activity rather than a roster.
type ClientMonitor struct {
	sys *SysMonitor
}

// NewClientMonitor returns a ClientMonitor reading from sys.
func NewClientMonitor(sys *SysMonitor) *ClientMonitor {
	return &ClientMonitor{sys: sys}
}

// Stats returns the current client statistics.
func (m *ClientMonitor) Stats() stats.ClientStats {
	s := m.sys.Snapshot()
	return s.Clients()
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}

	return *v
}

// Category is one row of the categorized client listing.
type Category struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Count       int64  `json:"count"`
	Status      string `json:"status"`
}

// List returns the categorized client listing document served by the
// /api/clients endpoint.
func (m *ClientMonitor) List() map[string]any {
	c := m.Stats()

	categories := []Category{
		{
			Name:        "Connected",
			Description: "Clients currently connected to the broker",
			Count:       deref(c.Connected),
			Status:      "online",
		},
		{
			Name:        "Disconnected",
			Description: "Persistent clients that are currently disconnected",
			Count:       deref(c.Disconnected),
			Status:      "offline",
		},
		{
			Name:        "Expired",
			Description: "Client sessions expired and removed by the broker",
			Count:       deref(c.Expired),
			Status:      "expired",
		},
	}

	return map[string]any{
		"summary": map[string]any{
			"total_tracked":           deref(c.Total),
			"currently_connected":     deref(c.Connected),
			"persistent_disconnected": deref(c.Disconnected),
			"expired_sessions":        deref(c.Expired),
			"peak_connections":        deref(c.Maximum),
		},
		"categories": categories,
		"connection_activity": map[string]any{
			"rate_1min":  c.Connections1Min,
			"rate_5min":  c.Connections5Min,
			"rate_15min": c.Connections15Min,
		},
		"last_updated": statsTime(c),
	}
}

func statsTime(c stats.ClientStats) any {
	if c.LastUpdated.IsZero() {
		return nil
	}

	return c.LastUpdated.Format(time.RFC3339Nano)
}
