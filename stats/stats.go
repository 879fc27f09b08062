// Package stats provides the data model for Mosquitto broker statistics
// collected from the $SYS topic hierarchy, along with the topic-to-field
// mapping used to parse them.
//
// See https://mosquitto.org/man/mosquitto-8.html for topic documentation.
package stats

import (
	"strconv"
	"strings"
	"time"
)

// Stats holds broker statistics collected from $SYS/broker/# topics.
// Fields are pointers so that counters the broker has not yet published
// render as null, matching the dashboard wire format. Values are replaced,
// never mutated in place, so a shallow copy of Stats is a safe snapshot.
type Stats struct {
	Version *string
	Uptime  *int64

	ClientsConnected    *int64
	ClientsDisconnected *int64
	ClientsTotal        *int64
	ClientsMaximum      *int64
	ClientsExpired      *int64

	MessagesReceived *int64
	MessagesSent     *int64
	MessagesStored   *int64
	MessagesInflight *int64
	MessagesDropped  *int64

	PublishReceived *int64
	PublishSent     *int64
	PublishDropped  *int64

	BytesReceived *int64
	BytesSent     *int64

	Subscriptions    *int64
	RetainedMessages *int64

	LoadMessagesReceived1Min  *float64
	LoadMessagesReceived5Min  *float64
	LoadMessagesReceived15Min *float64
	LoadMessagesSent1Min      *float64
	LoadMessagesSent5Min      *float64
	LoadMessagesSent15Min     *float64
	LoadBytesReceived1Min     *float64
	LoadBytesReceived5Min     *float64
	LoadBytesReceived15Min    *float64
	LoadBytesSent1Min         *float64
	LoadBytesSent5Min         *float64
	LoadBytesSent15Min        *float64
	LoadConnections1Min       *float64
	LoadConnections5Min       *float64
	LoadConnections15Min      *float64
	LoadPublishReceived1Min   *float64
	LoadPublishReceived5Min   *float64
	LoadPublishReceived15Min  *float64
	LoadPublishSent1Min       *float64
	LoadPublishSent5Min       *float64
	LoadPublishSent15Min      *float64
	LoadSockets1Min           *float64
	LoadSockets5Min           *float64
	LoadSockets15Min          *float64

	HeapCurrent *int64
	HeapMaximum *int64

	LastUpdated time.Time
}

// parseInt parses an integer payload, tolerating unit suffixes such as
// "1234 seconds" that some broker versions append.
func parseInt(payload string) (int64, error) {
	if f := strings.Fields(payload); len(f) > 0 {
		payload = f[0]
	}

	return strconv.ParseInt(payload, 10, 64)
}

func parseFloat(payload string) (float64, error) {
	if f := strings.Fields(payload); len(f) > 0 {
		payload = f[0]
	}

	return strconv.ParseFloat(payload, 64)
}

type setter func(*Stats, string) error

func setString(field func(*Stats) **string) setter {
	return func(s *Stats, payload string) error {
		*field(s) = &payload
		return nil
	}
}

func setInt(field func(*Stats) **int64) setter {
	return func(s *Stats, payload string) error {
		v, err := parseInt(payload)
		if err != nil {
			return err
		}

		*field(s) = &v

		return nil
	}
}

func setFloat(field func(*Stats) **float64) setter {
	return func(s *Stats, payload string) error {
		v, err := parseFloat(payload)
		if err != nil {
			return err
		}

		*field(s) = &v

		return nil
	}
}

// sysTopics maps $SYS topics to the Stats field they populate, including
// the alternate topics some broker builds publish (store/messages/count,
// publish/bytes/*).
var sysTopics = map[string]setter{
	"$SYS/broker/version": setString(func(s *Stats) **string { return &s.Version }),
	"$SYS/broker/uptime":  setInt(func(s *Stats) **int64 { return &s.Uptime }),

	"$SYS/broker/clients/connected":    setInt(func(s *Stats) **int64 { return &s.ClientsConnected }),
	"$SYS/broker/clients/disconnected": setInt(func(s *Stats) **int64 { return &s.ClientsDisconnected }),
	"$SYS/broker/clients/total":        setInt(func(s *Stats) **int64 { return &s.ClientsTotal }),
	"$SYS/broker/clients/maximum":      setInt(func(s *Stats) **int64 { return &s.ClientsMaximum }),
	"$SYS/broker/clients/expired":      setInt(func(s *Stats) **int64 { return &s.ClientsExpired }),

	"$SYS/broker/messages/received":     setInt(func(s *Stats) **int64 { return &s.MessagesReceived }),
	"$SYS/broker/messages/sent":         setInt(func(s *Stats) **int64 { return &s.MessagesSent }),
	"$SYS/broker/messages/stored":       setInt(func(s *Stats) **int64 { return &s.MessagesStored }),
	"$SYS/broker/store/messages/count":  setInt(func(s *Stats) **int64 { return &s.MessagesStored }),
	"$SYS/broker/messages/inflight":     setInt(func(s *Stats) **int64 { return &s.MessagesInflight }),
	"$SYS/broker/messages/dropped":      setInt(func(s *Stats) **int64 { return &s.MessagesDropped }),
	"$SYS/broker/retained messages/count": setInt(func(s *Stats) **int64 { return &s.RetainedMessages }),

	"$SYS/broker/publish/messages/received": setInt(func(s *Stats) **int64 { return &s.PublishReceived }),
	"$SYS/broker/publish/messages/sent":     setInt(func(s *Stats) **int64 { return &s.PublishSent }),
	"$SYS/broker/publish/messages/dropped":  setInt(func(s *Stats) **int64 { return &s.PublishDropped }),

	"$SYS/broker/bytes/received":         setInt(func(s *Stats) **int64 { return &s.BytesReceived }),
	"$SYS/broker/bytes/sent":             setInt(func(s *Stats) **int64 { return &s.BytesSent }),
	"$SYS/broker/publish/bytes/received": setInt(func(s *Stats) **int64 { return &s.BytesReceived }),
	"$SYS/broker/publish/bytes/sent":     setInt(func(s *Stats) **int64 { return &s.BytesSent }),

	"$SYS/broker/subscriptions/count": setInt(func(s *Stats) **int64 { return &s.Subscriptions }),

	"$SYS/broker/load/messages/received/1min":  setFloat(func(s *Stats) **float64 { return &s.LoadMessagesReceived1Min }),
	"$SYS/broker/load/messages/received/5min":  setFloat(func(s *Stats) **float64 { return &s.LoadMessagesReceived5Min }),
	"$SYS/broker/load/messages/received/15min": setFloat(func(s *Stats) **float64 { return &s.LoadMessagesReceived15Min }),
	"$SYS/broker/load/messages/sent/1min":      setFloat(func(s *Stats) **float64 { return &s.LoadMessagesSent1Min }),
	"$SYS/broker/load/messages/sent/5min":      setFloat(func(s *Stats) **float64 { return &s.LoadMessagesSent5Min }),
	"$SYS/broker/load/messages/sent/15min":     setFloat(func(s *Stats) **float64 { return &s.LoadMessagesSent15Min }),
	"$SYS/broker/load/bytes/received/1min":     setFloat(func(s *Stats) **float64 { return &s.LoadBytesReceived1Min }),
	"$SYS/broker/load/bytes/received/5min":     setFloat(func(s *Stats) **float64 { return &s.LoadBytesReceived5Min }),
	"$SYS/broker/load/bytes/received/15min":    setFloat(func(s *Stats) **float64 { return &s.LoadBytesReceived15Min }),
	"$SYS/broker/load/bytes/sent/1min":         setFloat(func(s *Stats) **float64 { return &s.LoadBytesSent1Min }),
	"$SYS/broker/load/bytes/sent/5min":         setFloat(func(s *Stats) **float64 { return &s.LoadBytesSent5Min }),
	"$SYS/broker/load/bytes/sent/15min":        setFloat(func(s *Stats) **float64 { return &s.LoadBytesSent15Min }),
	"$SYS/broker/load/connections/1min":        setFloat(func(s *Stats) **float64 { return &s.LoadConnections1Min }),
	"$SYS/broker/load/connections/5min":        setFloat(func(s *Stats) **float64 { return &s.LoadConnections5Min }),
	"$SYS/broker/load/connections/15min":       setFloat(func(s *Stats) **float64 { return &s.LoadConnections15Min }),
	"$SYS/broker/load/publish/received/1min":   setFloat(func(s *Stats) **float64 { return &s.LoadPublishReceived1Min }),
	"$SYS/broker/load/publish/received/5min":   setFloat(func(s *Stats) **float64 { return &s.LoadPublishReceived5Min }),
	"$SYS/broker/load/publish/received/15min":  setFloat(func(s *Stats) **float64 { return &s.LoadPublishReceived15Min }),
	"$SYS/broker/load/publish/sent/1min":       setFloat(func(s *Stats) **float64 { return &s.LoadPublishSent1Min }),
	"$SYS/broker/load/publish/sent/5min":       setFloat(func(s *Stats) **float64 { return &s.LoadPublishSent5Min }),
	"$SYS/broker/load/publish/sent/15min":      setFloat(func(s *Stats) **float64 { return &s.LoadPublishSent15Min }),
	"$SYS/broker/load/sockets/1min":            setFloat(func(s *Stats) **float64 { return &s.LoadSockets1Min }),
	"$SYS/broker/load/sockets/5min":            setFloat(func(s *Stats) **float64 { return &s.LoadSockets5Min }),
	"$SYS/broker/load/sockets/15min":           setFloat(func(s *Stats) **float64 { return &s.LoadSockets15Min }),

	"$SYS/broker/heap/current": setInt(func(s *Stats) **int64 { return &s.HeapCurrent }),
	"$SYS/broker/heap/maximum": setInt(func(s *Stats) **int64 { return &s.HeapMaximum }),
}

// Apply updates s from a $SYS topic message. It returns true if the topic
// is a known statistic and the payload parsed; unknown topics and
// malformed payloads are ignored.
func (s *Stats) Apply(topic, payload string) bool {
	set, ok := sysTopics[topic]
	if !ok {
		return false
	}

	if err := set(s, payload); err != nil {
		return false
	}

	s.LastUpdated = time.Now().UTC()

	return true
}

// IsSysTopic reports whether topic carries a statistic that Apply
// understands.
func IsSysTopic(topic string) bool {
	_, ok := sysTopics[topic]
	return ok
}

func rfc3339(t time.Time) any {
	if t.IsZero() {
		return nil
	}

	return t.Format(time.RFC3339Nano)
}

// Document returns the full nested statistics document served by the
// dashboard API and pushed over Redis and WebSocket.
func (s *Stats) Document() map[string]any {
	return map[string]any{
		"broker": map[string]any{
			"version": s.Version,
			"uptime":  s.Uptime,
		},
		"clients": map[string]any{
			"connected":    s.ClientsConnected,
			"disconnected": s.ClientsDisconnected,
			"total":        s.ClientsTotal,
			"maximum":      s.ClientsMaximum,
			"expired":      s.ClientsExpired,
		},
		"messages": map[string]any{
			"received": s.MessagesReceived,
			"sent":     s.MessagesSent,
			"stored":   s.MessagesStored,
			"inflight": s.MessagesInflight,
			"dropped":  s.MessagesDropped,
		},
		"publish": map[string]any{
			"received": s.PublishReceived,
			"sent":     s.PublishSent,
			"dropped":  s.PublishDropped,
		},
		"bytes": map[string]any{
			"received": s.BytesReceived,
			"sent":     s.BytesSent,
		},
		"subscriptions": map[string]any{
			"count": s.Subscriptions,
		},
		"retained": map[string]any{
			"count": s.RetainedMessages,
		},
		"load": map[string]any{
			"messages_received": loadTriple(s.LoadMessagesReceived1Min, s.LoadMessagesReceived5Min, s.LoadMessagesReceived15Min),
			"messages_sent":     loadTriple(s.LoadMessagesSent1Min, s.LoadMessagesSent5Min, s.LoadMessagesSent15Min),
			"bytes_received":    loadTriple(s.LoadBytesReceived1Min, s.LoadBytesReceived5Min, s.LoadBytesReceived15Min),
			"bytes_sent":        loadTriple(s.LoadBytesSent1Min, s.LoadBytesSent5Min, s.LoadBytesSent15Min),
			"connections":       loadTriple(s.LoadConnections1Min, s.LoadConnections5Min, s.LoadConnections15Min),
			"publish_received":  loadTriple(s.LoadPublishReceived1Min, s.LoadPublishReceived5Min, s.LoadPublishReceived15Min),
			"publish_sent":      loadTriple(s.LoadPublishSent1Min, s.LoadPublishSent5Min, s.LoadPublishSent15Min),
			"sockets":           loadTriple(s.LoadSockets1Min, s.LoadSockets5Min, s.LoadSockets15Min),
		},
		"heap": map[string]any{
			"current": s.HeapCurrent,
			"maximum": s.HeapMaximum,
		},
		"last_updated": rfc3339(s.LastUpdated),
	}
}

// Summary returns the flat summary document with the key metrics only.
func (s *Stats) Summary() map[string]any {
	return map[string]any{
		"version":           s.Version,
		"uptime":            s.Uptime,
		"clients_connected": s.ClientsConnected,
		"clients_total":     s.ClientsTotal,
		"messages_received": s.MessagesReceived,
		"messages_sent":     s.MessagesSent,
		"bytes_received":    s.BytesReceived,
		"bytes_sent":        s.BytesSent,
		"subscriptions":     s.Subscriptions,
		"retained_messages": s.RetainedMessages,
		"last_updated":      rfc3339(s.LastUpdated),
	}
}

func loadTriple(m1, m5, m15 *float64) map[string]any {
	return map[string]any{
		"1min":  m1,
		"5min":  m5,
		"15min": m15,
	}
}
