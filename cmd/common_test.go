package cmd

import (
	"testing"

	"github.com/hollyvale/mqttdash/config"
	"github.com/hollyvale/mqttdash/log"
)

func TestHasPort(t *testing.T) {
	for _, tt := range []struct {
		addr string
		want bool
	}{
		{"localhost:1883", true},
		{"127.0.0.1:1883", true},
		{"tcp://localhost:1883", true},
		{"localhost", false},
		{"tcp://localhost", false},
		{"127.0.0.1", false},
		{"broker.local:", false},
	} {
		if got := hasPort(tt.addr); got != tt.want {
			t.Errorf("hasPort(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestFlagsToConfig(t *testing.T) {
	defer func() {
		Broker, Port, Username, Password, LogLevel = "", 1883, "", "", ""
	}()

	Broker = "broker.local"
	Port = 8883
	Username = "dash"
	Password = "hunter2"
	LogLevel = "debug"

	cfg := config.Default()
	if err := flagsToConfig(cfg); err != nil {
		t.Fatal(err)
	}

	if cfg.MQTT.Broker != "broker.local:8883" {
		t.Errorf("broker = %q, want %q", cfg.MQTT.Broker, "broker.local:8883")
	}
	if cfg.MQTT.Username != "dash" || cfg.MQTT.Password != "hunter2" {
		t.Errorf("credentials = %q/%q", cfg.MQTT.Username, cfg.MQTT.Password)
	}
	if cfg.Log.Level != log.LevelDebug {
		t.Errorf("log level = %v, want debug", cfg.Log.Level)
	}
}

func TestFlagsToConfigKeepsPort(t *testing.T) {
	defer func() { Broker, Port = "", 1883 }()

	Broker = "broker.local:1884"
	Port = 8883

	cfg := config.Default()
	if err := flagsToConfig(cfg); err != nil {
		t.Fatal(err)
	}

	if cfg.MQTT.Broker != "broker.local:1884" {
		t.Errorf("broker = %q, want %q", cfg.MQTT.Broker, "broker.local:1884")
	}
}

func TestFindConfigEnv(t *testing.T) {
	defer func() { ConfigPath = nil }()

	ConfigPath = nil
	t.Setenv("MQTTDASH_CONFIG_PATH", "/etc/mqttdash/a.yaml,/etc/mqttdash/b.yaml")

	findConfig()

	if len(ConfigPath) != 2 || ConfigPath[0] != "/etc/mqttdash/a.yaml" {
		t.Errorf("ConfigPath = %v", ConfigPath)
	}
}
