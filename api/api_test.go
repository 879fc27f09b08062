package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hollyvale/mqttdash/config"
	"github.com/hollyvale/mqttdash/mock"
	"github.com/hollyvale/mqttdash/monitor"
)

type fixture struct {
	client  *mock.Client
	sys     *monitor.SysMonitor
	tracker *monitor.TopicTracker
	srv     *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	client := mock.NewClient()

	sys := monitor.NewSysMonitor(client)
	if err := sys.Subscribe(context.Background()); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.MQTT.Broker = "tcp://localhost:1883"

	tracker := monitor.NewTopicTracker(client, cfg.Tracker)
	if err := tracker.Subscribe(context.Background()); err != nil {
		t.Fatal(err)
	}

	srv := NewServer(cfg, client, sys, monitor.NewClientMonitor(sys), tracker, nil)

	return &fixture{
		client:  client,
		sys:     sys,
		tracker: tracker,
		srv:     srv,
	}
}

func (f *fixture) get(t *testing.T, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()

	f.srv.Router().ServeHTTP(rec, req)

	return rec, decodeBody(t, rec)
}

func (f *fixture) post(t *testing.T, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()

	f.srv.Router().ServeHTTP(rec, req)

	return rec, decodeBody(t, rec)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v: %s", err, rec.Body.String())
	}

	return body
}

func TestBrokerStatus(t *testing.T) {
	f := newFixture(t)

	rec, body := f.get(t, "/api/broker/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	if body["connected"] != true {
		t.Errorf("connected = %v, want true", body["connected"])
	}

	broker, ok := body["broker"].(map[string]any)
	if !ok || broker["host"] != "localhost" || broker["port"] != float64(1883) {
		t.Errorf("broker = %v", body["broker"])
	}

	f.client.SetConnected(false)

	_, body = f.get(t, "/api/broker/status")
	if body["connected"] != false {
		t.Errorf("connected = %v, want false", body["connected"])
	}
}

func TestBrokerStats(t *testing.T) {
	f := newFixture(t)

	f.client.Deliver("$SYS/broker/clients/connected", "10", 0, false)
	f.client.Deliver("$SYS/broker/uptime", "3672 seconds", 0, false)

	rec, body := f.get(t, "/api/broker/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", rec.Code, body)
	}

	clients, ok := body["clients"].(map[string]any)
	if !ok || clients["connected"] != float64(10) {
		t.Errorf("clients = %v", body["clients"])
	}

	broker, ok := body["broker"].(map[string]any)
	if !ok || broker["uptime"] != float64(3672) {
		t.Errorf("broker = %v", body["broker"])
	}
}

func TestBrokerStatsUnavailable(t *testing.T) {
	f := newFixture(t)

	if err := f.sys.Unsubscribe(context.Background()); err != nil {
		t.Fatal(err)
	}

	rec, body := f.get(t, "/api/broker/stats")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	if body["code"] != CodeSysNotSubscribed {
		t.Errorf("code = %v, want %s", body["code"], CodeSysNotSubscribed)
	}

	f.client.SetConnected(false)

	rec, body = f.get(t, "/api/broker/stats")
	if rec.Code != http.StatusServiceUnavailable || body["code"] != CodeBrokerDisconnected {
		t.Errorf("status = %d, code = %v; want 503 %s", rec.Code, body["code"], CodeBrokerDisconnected)
	}
}

func TestClients(t *testing.T) {
	f := newFixture(t)

	f.client.Deliver("$SYS/broker/clients/connected", "3", 0, false)
	f.client.Deliver("$SYS/broker/clients/total", "8", 0, false)

	rec, body := f.get(t, "/api/clients")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	summary, ok := body["summary"].(map[string]any)
	if !ok || summary["currently_connected"] != float64(3) {
		t.Errorf("summary = %v", body["summary"])
	}

	rec, body = f.get(t, "/api/clients/active")
	if rec.Code != http.StatusOK || body["active"] != float64(3) {
		t.Errorf("active = %v, want 3", body["active"])
	}

	rec, body = f.get(t, "/api/clients/count")
	if rec.Code != http.StatusOK || body["total"] != float64(8) {
		t.Errorf("count body = %v", body)
	}
}

func TestTopics(t *testing.T) {
	f := newFixture(t)

	f.client.Deliver("home/kitchen/temp", "21.5", 0, false)
	f.client.Deliver("home/hall/temp", "19.0", 0, false)
	f.client.Deliver("garage/door", "closed", 0, true)

	rec, body := f.get(t, "/api/topics/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	if body["total"] != float64(3) {
		t.Errorf("total = %v, want 3", body["total"])
	}

	_, body = f.get(t, "/api/topics/?prefix=home/")
	if body["filtered"] != float64(2) {
		t.Errorf("filtered = %v, want 2", body["filtered"])
	}

	_, body = f.get(t, "/api/topics/?filter=home/%2B/temp")
	if body["filtered"] != float64(2) {
		t.Errorf("wildcard filtered = %v, want 2", body["filtered"])
	}

	_, body = f.get(t, "/api/topics/?limit=1")
	topics, ok := body["topics"].([]any)
	if !ok || len(topics) != 1 {
		t.Errorf("limited topics = %v", body["topics"])
	}

	_, body = f.get(t, "/api/topics/count")
	if body["count"] != float64(3) {
		t.Errorf("count = %v, want 3", body["count"])
	}
}

func TestTopicLookup(t *testing.T) {
	f := newFixture(t)

	f.client.Deliver("home/kitchen/temp", "21.5", 1, false)

	rec, body := f.get(t, "/api/topics/home/kitchen/temp")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", rec.Code, body)
	}

	if body["topic"] != "home/kitchen/temp" || body["last_payload"] != "21.5" {
		t.Errorf("topic doc = %v", body)
	}

	rec, body = f.get(t, "/api/topics/no/such/topic")
	if rec.Code != http.StatusNotFound || body["code"] != CodeTopicNotFound {
		t.Errorf("status = %d, code = %v; want 404 %s", rec.Code, body["code"], CodeTopicNotFound)
	}
}

func TestPublish(t *testing.T) {
	f := newFixture(t)

	rec, body := f.post(t, "/api/messages/publish",
		`{"topic": "home/lamp", "payload": "on", "qos": 1, "retain": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", rec.Code, body)
	}

	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}

	pubs := f.client.Published()
	if len(pubs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pubs))
	}

	p := pubs[0]
	if p.Topic != "home/lamp" || p.Payload != "on" || p.QoS != 1 || !p.Retained {
		t.Errorf("publication = %+v", p)
	}
}

func TestPublishValidation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"not json", `{{{`, http.StatusBadRequest, CodeInvalidRequest},
		{"missing topic", `{"payload": "x"}`, http.StatusBadRequest, CodeMissingTopic},
		{"blank topic", `{"topic": "   "}`, http.StatusBadRequest, CodeInvalidTopic},
		{"wildcard plus", `{"topic": "home/+/lamp"}`, http.StatusBadRequest, CodeInvalidTopicWildcards},
		{"wildcard hash", `{"topic": "home/#"}`, http.StatusBadRequest, CodeInvalidTopicWildcards},
		{"qos out of range", `{"topic": "a", "qos": 3}`, http.StatusBadRequest, CodeInvalidQoS},
		{"qos wrong type", `{"topic": "a", "qos": "1"}`, http.StatusBadRequest, CodeInvalidQoS},
		{"retain wrong type", `{"topic": "a", "retain": "yes"}`, http.StatusBadRequest, CodeInvalidRetain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			rec, body := f.post(t, "/api/messages/publish", tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}

			if body["code"] != tt.code {
				t.Errorf("code = %v, want %s", body["code"], tt.code)
			}

			if len(f.client.Published()) != 0 {
				t.Error("nothing should have been published")
			}
		})
	}
}

func TestPublishNumericPayload(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.post(t, "/api/messages/publish", `{"topic": "sensors/temp", "payload": 23.5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	pubs := f.client.Published()
	if len(pubs) != 1 || pubs[0].Payload != "23.5" {
		t.Errorf("publications = %+v, want payload 23.5", pubs)
	}
}

func TestPublishBrokerDown(t *testing.T) {
	f := newFixture(t)
	f.client.SetConnected(false)

	rec, body := f.post(t, "/api/messages/publish", `{"topic": "a", "payload": "b"}`)
	if rec.Code != http.StatusServiceUnavailable || body["code"] != CodeBrokerDisconnected {
		t.Errorf("status = %d, code = %v; want 503 %s", rec.Code, body["code"], CodeBrokerDisconnected)
	}
}

func TestPublishFailure(t *testing.T) {
	f := newFixture(t)
	f.client.PublishErr = errors.New("token timeout")

	rec, body := f.post(t, "/api/messages/publish", `{"topic": "a", "payload": "b"}`)
	if rec.Code != http.StatusInternalServerError || body["code"] != CodePublishFailed {
		t.Errorf("status = %d, code = %v; want 500 %s", rec.Code, body["code"], CodePublishFailed)
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	rec, body := f.get(t, "/healthz")
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthz = %d %v", rec.Code, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	f.srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), "mqttdash_tracked_topics") {
		t.Error("expected mqttdash_tracked_topics in metrics output")
	}
}

type fakeFeed struct {
	stats     map[string]any
	connected bool
}

func (f *fakeFeed) Stats() map[string]any { return f.stats }
func (f *fakeFeed) Connected() bool       { return f.connected }

func TestBrokerStatsFromFeed(t *testing.T) {
	f := newFixture(t)

	if err := f.sys.Unsubscribe(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.srv.SetFeed(&fakeFeed{
		stats:     map[string]any{"version": "mosquitto 2.0.18"},
		connected: true,
	})

	rec, body := f.get(t, "/api/broker/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	if body["version"] != "mosquitto 2.0.18" {
		t.Errorf("version = %v, want the feed document", body["version"])
	}
}
