package stats

import (
	"testing"
)

func TestApply(t *testing.T) {
	var s Stats

	tests := []struct {
		topic   string
		payload string
		want    bool
	}{
		{"$SYS/broker/version", "mosquitto version 2.0.18", true},
		{"$SYS/broker/uptime", "3672 seconds", true},
		{"$SYS/broker/clients/connected", "5", true},
		{"$SYS/broker/clients/disconnected", "3", true},
		{"$SYS/broker/messages/received", "1024", true},
		{"$SYS/broker/store/messages/count", "17", true},
		{"$SYS/broker/retained messages/count", "9", true},
		{"$SYS/broker/load/messages/received/1min", "12.75", true},
		{"$SYS/broker/heap/current", "262144", true},
		{"$SYS/broker/publish/bytes/sent", "2048", true},
		{"home/temperature", "23.5", false},
		{"$SYS/broker/clients/connected", "not-a-number", false},
	}

	for _, tt := range tests {
		if got := s.Apply(tt.topic, tt.payload); got != tt.want {
			t.Errorf("Apply(%q, %q) = %v, want %v", tt.topic, tt.payload, got, tt.want)
		}
	}

	if s.Version == nil || *s.Version != "mosquitto version 2.0.18" {
		t.Errorf("Version = %v", s.Version)
	}

	if s.Uptime == nil || *s.Uptime != 3672 {
		t.Errorf("Uptime = %v, want suffix-tolerant parse of 3672", s.Uptime)
	}

	if s.ClientsConnected == nil || *s.ClientsConnected != 5 {
		t.Errorf("ClientsConnected = %v", s.ClientsConnected)
	}

	if s.MessagesStored == nil || *s.MessagesStored != 17 {
		t.Errorf("MessagesStored = %v, want value from alternate topic", s.MessagesStored)
	}

	if s.RetainedMessages == nil || *s.RetainedMessages != 9 {
		t.Errorf("RetainedMessages = %v", s.RetainedMessages)
	}

	if s.LoadMessagesReceived1Min == nil || *s.LoadMessagesReceived1Min != 12.75 {
		t.Errorf("LoadMessagesReceived1Min = %v", s.LoadMessagesReceived1Min)
	}

	if s.BytesSent == nil || *s.BytesSent != 2048 {
		t.Errorf("BytesSent = %v, want value from publish/bytes alternate", s.BytesSent)
	}

	if s.LastUpdated.IsZero() {
		t.Error("LastUpdated not set after successful Apply")
	}
}

func TestApplyBadPayloadKeepsOldValue(t *testing.T) {
	var s Stats

	s.Apply("$SYS/broker/clients/connected", "5")
	s.Apply("$SYS/broker/clients/connected", "garbage")

	if s.ClientsConnected == nil || *s.ClientsConnected != 5 {
		t.Errorf("ClientsConnected = %v, want 5 preserved", s.ClientsConnected)
	}
}

func TestDocumentShape(t *testing.T) {
	var s Stats

	s.Apply("$SYS/broker/clients/connected", "2")
	s.Apply("$SYS/broker/bytes/received", "100")

	doc := s.Document()

	clients, ok := doc["clients"].(map[string]any)
	if !ok {
		t.Fatal("document missing clients section")
	}

	if v, ok := clients["connected"].(*int64); !ok || v == nil || *v != 2 {
		t.Errorf("clients.connected = %v", clients["connected"])
	}

	if clients["expired"].(*int64) != nil {
		t.Error("clients.expired should be nil before first $SYS message")
	}

	for _, key := range []string{"broker", "messages", "publish", "bytes", "subscriptions", "retained", "load", "heap", "last_updated"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("document missing %q section", key)
		}
	}
}

func TestClientsExtraction(t *testing.T) {
	var s Stats

	s.Apply("$SYS/broker/clients/connected", "4")
	s.Apply("$SYS/broker/load/connections/1min", "0.5")

	c := s.Clients()

	if c.Connected == nil || *c.Connected != 4 {
		t.Errorf("Connected = %v", c.Connected)
	}

	if c.Connections1Min == nil || *c.Connections1Min != 0.5 {
		t.Errorf("Connections1Min = %v", c.Connections1Min)
	}

	counts := c.Counts()
	if _, ok := counts["expired"]; ok {
		t.Error("Counts should not include expired")
	}
}

func TestTopicInfoRecord(t *testing.T) {
	info := TopicInfo{Topic: "home/temperature"}

	info.Record("23.5", 1, true)
	info.Record("24.0", 0, false)

	if info.MessageCount != 2 {
		t.Errorf("MessageCount = %d", info.MessageCount)
	}

	if info.LastPayload != "24.0" {
		t.Errorf("LastPayload = %q", info.LastPayload)
	}

	if info.LastQoS != 0 || info.LastRetained {
		t.Errorf("LastQoS = %d, LastRetained = %v", info.LastQoS, info.LastRetained)
	}
}
