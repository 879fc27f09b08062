package config

import (
	"strings"
	"testing"
	"time"

	"github.com/hollyvale/mqttdash/log"
)

const testConfig = `
mqtt:
  broker: tcp://mosquitto:1883
  client_id: test-dashboard
  username: $MQTTDASH_TEST_USER
  password: hunter2
  keep_alive: 60s
redis:
  addr: redis:6379
api:
  listen: ":9090"
  push_interval: 2s
tracker:
  inactive_timeout: 30m
  max_payload_size: 512
bridge:
  stats_interval: 10s
log:
  level: warn
`

func TestRead(t *testing.T) {
	t.Setenv("MQTTDASH_TEST_USER", "dashboard")

	cfg, err := Read(strings.NewReader(testConfig))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if cfg.MQTT.Broker != "tcp://mosquitto:1883" {
		t.Errorf("MQTT.Broker = %q", cfg.MQTT.Broker)
	}

	if cfg.MQTT.Username != "dashboard" {
		t.Errorf("MQTT.Username = %q, want env-expanded value", cfg.MQTT.Username)
	}

	if cfg.MQTT.KeepAlive != time.Minute {
		t.Errorf("MQTT.KeepAlive = %v", cfg.MQTT.KeepAlive)
	}

	if cfg.API.Listen != ":9090" {
		t.Errorf("API.Listen = %q", cfg.API.Listen)
	}

	if cfg.API.PushInterval != 2*time.Second {
		t.Errorf("API.PushInterval = %v", cfg.API.PushInterval)
	}

	if cfg.Tracker.InactiveTimeout != 30*time.Minute {
		t.Errorf("Tracker.InactiveTimeout = %v", cfg.Tracker.InactiveTimeout)
	}

	if cfg.Tracker.MaxPayloadSize != 512 {
		t.Errorf("Tracker.MaxPayloadSize = %d", cfg.Tracker.MaxPayloadSize)
	}

	if cfg.Bridge.StatsInterval != 10*time.Second {
		t.Errorf("Bridge.StatsInterval = %v", cfg.Bridge.StatsInterval)
	}

	if cfg.Log.Level != log.LevelWarn {
		t.Errorf("Log.Level = %v", cfg.Log.Level)
	}
}

func TestReadDefaults(t *testing.T) {
	cfg, err := Read(strings.NewReader("mqtt:\n  broker: tcp://localhost:1883\n"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if cfg.API.Listen != ":8080" {
		t.Errorf("API.Listen = %q, want default :8080", cfg.API.Listen)
	}

	if cfg.API.PushInterval != 5*time.Second {
		t.Errorf("API.PushInterval = %v, want default 5s", cfg.API.PushInterval)
	}

	if cfg.Tracker.InactiveTimeout != time.Hour {
		t.Errorf("Tracker.InactiveTimeout = %v, want default 1h", cfg.Tracker.InactiveTimeout)
	}

	if cfg.Certs.Dir != "/etc/mosquitto/certs" {
		t.Errorf("Certs.Dir = %q", cfg.Certs.Dir)
	}

	if cfg.Certs.Owner != "mosquitto" {
		t.Errorf("Certs.Owner = %q", cfg.Certs.Owner)
	}
}

func TestReadInvalid(t *testing.T) {
	// Provider outside the allowed enum should fail validation.
	_, err := Read(strings.NewReader("mqtt:\n  broker: tcp://localhost:1883\ncerts:\n  provider: route53\n"))
	if err == nil {
		t.Fatal("Read with invalid certs.provider expected error")
	}
}

func TestExpandSecretFallback(t *testing.T) {
	// No /run/secrets in the test environment, so the value falls back
	// to empty rather than keeping the directive.
	if got := Expand("!secret does_not_exist"); got != "" {
		t.Errorf("Expand(!secret) = %q, want empty", got)
	}
}
