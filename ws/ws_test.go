package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hollyvale/mqttdash/mock"
	"github.com/hollyvale/mqttdash/monitor"
)

func newTestHub(t *testing.T, client *mock.Client, pushInterval time.Duration) (*Hub, *websocket.Conn) {
	t.Helper()

	sys := monitor.NewSysMonitor(client)
	if err := sys.Subscribe(context.Background()); err != nil {
		t.Fatal(err)
	}

	h := NewHub(client, sys, monitor.NewClientMonitor(sys), pushInterval)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() { _ = h.Run(ctx) }()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { _ = conn.Close() })

	return h, conn
}

type testFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) testFrame {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}

	var f testFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatal(err)
	}

	return f
}

// readUntil skips frames until one matches event, so tests are not
// sensitive to interleaved periodic pushes.
func readUntil(t *testing.T, conn *websocket.Conn, event string) testFrame {
	t.Helper()

	for i := 0; i < 20; i++ {
		f := readFrame(t, conn)
		if f.Event == event {
			return f
		}
	}

	t.Fatalf("never received %q", event)

	return testFrame{}
}

func writeFrame(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}

	if err := conn.WriteJSON(testFrame{Event: event, Data: raw}); err != nil {
		t.Fatal(err)
	}
}

func TestHubConnected(t *testing.T) {
	_, conn := newTestHub(t, mock.NewClient(), time.Minute)

	f := readFrame(t, conn)
	if f.Event != "connected" {
		t.Fatalf("first event = %q, want connected", f.Event)
	}

	var data struct {
		SessionID string   `json:"session_id"`
		Channels  []string `json:"channels"`
	}

	if err := json.Unmarshal(f.Data, &data); err != nil {
		t.Fatal(err)
	}

	if data.SessionID == "" {
		t.Error("expected a session_id")
	}

	if len(data.Channels) != len(Channels()) {
		t.Errorf("channels = %v, want %v", data.Channels, Channels())
	}
}

func TestGetChannels(t *testing.T) {
	_, conn := newTestHub(t, mock.NewClient(), time.Minute)

	readUntil(t, conn, "connected")

	writeFrame(t, conn, "subscribe", map[string]string{"channel": "load"})
	readUntil(t, conn, "subscribed")

	writeFrame(t, conn, "get_channels", nil)

	f := readUntil(t, conn, "channels")

	var data struct {
		Channels   []string `json:"channels"`
		Subscribed []string `json:"subscribed"`
	}

	if err := json.Unmarshal(f.Data, &data); err != nil {
		t.Fatal(err)
	}

	if len(data.Subscribed) != 1 || data.Subscribed[0] != "load" {
		t.Errorf("subscribed = %v, want [load]", data.Subscribed)
	}
}

func TestSubscribePushesImmediately(t *testing.T) {
	client := mock.NewClient()
	_, conn := newTestHub(t, client, time.Minute)

	client.Deliver("$SYS/broker/clients/connected", "4", 0, false)

	readUntil(t, conn, "connected")

	writeFrame(t, conn, "subscribe", map[string]string{"channel": "broker_summary"})
	readUntil(t, conn, "subscribed")

	f := readUntil(t, conn, "broker_summary_update")

	var summary map[string]any
	if err := json.Unmarshal(f.Data, &summary); err != nil {
		t.Fatal(err)
	}

	if summary["clients_connected"] != float64(4) {
		t.Errorf("clients_connected = %v, want 4", summary["clients_connected"])
	}
}

func TestPeriodicPush(t *testing.T) {
	_, conn := newTestHub(t, mock.NewClient(), 30*time.Millisecond)

	readUntil(t, conn, "connected")

	writeFrame(t, conn, "subscribe", map[string]string{"channel": "broker_stats"})
	readUntil(t, conn, "subscribed")

	// Immediate push plus at least one ticker push.
	readUntil(t, conn, "broker_stats_update")
	readUntil(t, conn, "broker_stats_update")
}

func TestSubscribeUnknownChannel(t *testing.T) {
	_, conn := newTestHub(t, mock.NewClient(), time.Minute)

	readUntil(t, conn, "connected")

	writeFrame(t, conn, "subscribe", map[string]string{"channel": "nope"})

	f := readUntil(t, conn, "error")

	var data struct {
		Message string `json:"message"`
	}

	if err := json.Unmarshal(f.Data, &data); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(data.Message, "nope") {
		t.Errorf("error message = %q, want it to name the channel", data.Message)
	}
}

func TestPingBroker(t *testing.T) {
	client := mock.NewClient()
	_, conn := newTestHub(t, client, time.Minute)

	readUntil(t, conn, "connected")

	writeFrame(t, conn, "ping_broker", nil)

	f := readUntil(t, conn, "broker_status")

	var data struct {
		Connected bool `json:"connected"`
	}

	if err := json.Unmarshal(f.Data, &data); err != nil {
		t.Fatal(err)
	}

	if !data.Connected {
		t.Error("expected connected broker status")
	}
}

func TestTopicForwarding(t *testing.T) {
	client := mock.NewClient()
	_, conn := newTestHub(t, client, time.Minute)

	readUntil(t, conn, "connected")

	writeFrame(t, conn, "subscribe_topic", map[string]string{"topic": "home/+/temp"})
	readUntil(t, conn, "topic_subscribed")

	if !client.Subscribed("home/+/temp") {
		t.Fatal("expected a broker subscription for home/+/temp")
	}

	client.Deliver("home/kitchen/temp", "21.5", 0, false)

	f := readUntil(t, conn, "topic_message")

	var data struct {
		Topic   string `json:"topic"`
		Payload string `json:"payload"`
	}

	if err := json.Unmarshal(f.Data, &data); err != nil {
		t.Fatal(err)
	}

	if data.Topic != "home/kitchen/temp" || data.Payload != "21.5" {
		t.Errorf("topic_message = %+v", data)
	}

	writeFrame(t, conn, "unsubscribe_topic", map[string]string{"topic": "home/+/temp"})
	readUntil(t, conn, "topic_unsubscribed")

	if client.Subscribed("home/+/temp") {
		t.Error("expected the broker subscription to be removed")
	}
}

func TestDisconnectDropsSubscriptions(t *testing.T) {
	client := mock.NewClient()
	h, conn := newTestHub(t, client, time.Minute)

	readUntil(t, conn, "connected")

	writeFrame(t, conn, "subscribe_topic", map[string]string{"topic": "home/#"})
	readUntil(t, conn, "topic_subscribed")

	if err := conn.Close(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Count() == 0 && !client.Subscribed("home/#") {
			return
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Errorf("sessions = %d, subscribed = %v; want session and subscription gone",
		h.Count(), client.Subscribed("home/#"))
}

func TestSubscribeMultipleChannels(t *testing.T) {
	_, conn := newTestHub(t, mock.NewClient(), time.Minute)
	readUntil(t, conn, "connected")

	writeFrame(t, conn, "subscribe", map[string]any{
		"channels": []string{"load", "clients", "nope"},
	})

	f := readUntil(t, conn, "subscribed")

	var data struct {
		Channels []string `json:"channels"`
		Invalid  []string `json:"invalid"`
	}
	if err := json.Unmarshal(f.Data, &data); err != nil {
		t.Fatal(err)
	}

	if len(data.Channels) != 2 {
		t.Errorf("channels = %v, want [load clients]", data.Channels)
	}
	if len(data.Invalid) != 1 || data.Invalid[0] != "nope" {
		t.Errorf("invalid = %v, want [nope]", data.Invalid)
	}

	// Each valid channel gets an immediate update.
	readUntil(t, conn, "load_update")
	readUntil(t, conn, "clients_update")
}
