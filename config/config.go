// Package config provides the structures used for configuration.
package config

import (
	"io"
	"os"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/hollyvale/mqttdash/config/secrets"
	"github.com/hollyvale/mqttdash/log"
)

// Config contains the configuration for the dashboard backend, the
// MQTT-Redis bridge, and the certificate tooling. Config should be created
// with a call to [Default], [Read], or [Load] as string fields are expanded
// against the environment and docker secrets after decoding.
type Config struct {
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Redis   RedisConfig   `yaml:"redis,omitempty"`
	API     APIConfig     `yaml:"api,omitempty"`
	Tracker TrackerConfig `yaml:"tracker,omitempty"`
	Bridge  BridgeConfig  `yaml:"bridge,omitempty"`
	Certs   CertsConfig   `yaml:"certs,omitempty"`
	Log     LogConfig     `yaml:"log,omitempty"`
}

// RedisConfig is the configuration for the Redis pub/sub connection used by
// the bridge and, optionally, by the dashboard in bridge mode.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
	// Password is the optional Redis AUTH password.
	Password string `yaml:"password,omitempty"`
	// DB is the Redis database number.
	DB int `yaml:"db,omitempty" validate:"gte=0"`
}

// APIConfig is the configuration for the REST and WebSocket server.
type APIConfig struct {
	// Listen is the host:port the HTTP server binds to.
	Listen string `yaml:"listen" validate:"omitempty,hostname_port"`
	// CORSOrigins is the list of allowed CORS origins. An empty list
	// allows all origins, matching the original dashboard default.
	CORSOrigins []string `yaml:"cors_origins,omitempty"`
	// PushInterval is how often broker statistics are pushed to
	// subscribed WebSocket clients.
	PushInterval time.Duration `yaml:"push_interval,omitempty" validate:"gte=0"`
	// ReadTimeout and WriteTimeout bound HTTP request handling.
	ReadTimeout  time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty"`
}

// TrackerConfig is the configuration for the topic tracker.
type TrackerConfig struct {
	// InactiveTimeout is how long a topic may go without traffic before
	// it is pruned from listings. Zero disables pruning.
	InactiveTimeout time.Duration `yaml:"inactive_timeout,omitempty" validate:"gte=0"`
	// MaxPayloadSize is the largest payload, in bytes, stored per topic.
	// Longer payloads are truncated.
	MaxPayloadSize int `yaml:"max_payload_size,omitempty" validate:"gte=0"`
	// TrackSysTopics indicates whether $SYS topics appear in listings.
	TrackSysTopics bool `yaml:"track_sys_topics,omitempty"`
}

// BridgeConfig is the configuration for the MQTT-Redis bridge process.
type BridgeConfig struct {
	// StatsInterval is how often the aggregated $SYS statistics document
	// is published to Redis.
	StatsInterval time.Duration `yaml:"stats_interval,omitempty" validate:"gte=0"`
	// ClientID overrides the MQTT client ID for the bridge so it never
	// collides with the dashboard's own client.
	ClientID string `yaml:"client_id,omitempty"`
}

// CertsConfig is the configuration for certificate issuance and install.
type CertsConfig struct {
	// Provider selects the acme.sh DNS hook, "hetzner" (DNS console) or
	// "hetznercloud" (cloud API).
	Provider string `yaml:"provider,omitempty" validate:"omitempty,oneof=hetzner hetznercloud"`
	// CloudToken authenticates against api.hetzner.cloud.
	CloudToken string `yaml:"cloud_token,omitempty"`
	// ConsoleToken authenticates against dns.hetzner.com.
	ConsoleToken string `yaml:"console_token,omitempty"`
	// Dir is the directory certificates are installed into.
	Dir string `yaml:"dir,omitempty"`
	// Owner is the user and group that own installed files.
	Owner string `yaml:"owner,omitempty"`
	// ReloadCmd is run after a successful install.
	ReloadCmd string `yaml:"reload_cmd,omitempty"`
	// AcmePath is the path to the acme.sh script.
	AcmePath string `yaml:"acme_path,omitempty"`
	// Staging selects the Let's Encrypt staging environment.
	Staging bool `yaml:"staging,omitempty"`
}

// LogConfig is the configuration for the default logger.
type LogConfig struct {
	Level  log.Level `yaml:"level"`
	Output string    `yaml:"output"`
	Format string    `yaml:"format"`
}

var defaultCfg = Config{
	MQTT: DefaultMQTT,
	Redis: RedisConfig{
		Addr: "localhost:6379",
	},
	API: APIConfig{
		Listen:       ":8080",
		PushInterval: 5 * time.Second,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	},
	Tracker: TrackerConfig{
		InactiveTimeout: time.Hour,
		MaxPayloadSize:  1024,
	},
	Bridge: BridgeConfig{
		StatsInterval: 5 * time.Second,
		ClientID:      "mqttdash-bridge",
	},
	Certs: CertsConfig{
		Provider: "hetzner",
		Dir:      "/etc/mosquitto/certs",
		Owner:    "mosquitto",
		AcmePath: "acme.sh",
	},
}

// Default returns the default Config when no config file is provided.
func Default() *Config {
	cfg := defaultCfg
	cfg.Expand()

	return &cfg
}

// Read returns the Config parsed from the yaml encoded config from r.
func Read(r io.Reader) (*Config, error) {
	cfg := defaultCfg
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.Expand()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Load returns the Config parsed from the given yaml files, applied in
// order. If the first file does not exist, the default config is returned.
func Load(file ...string) (*Config, error) {
	if len(file) == 0 {
		return Default(), nil
	}

	log.Info("Loading config", "path", file)

	if _, err := os.Stat(file[0]); err != nil {
		return Default(), nil
	}

	cfg := defaultCfg

	for _, path := range file {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}

		err = yaml.NewDecoder(f).Decode(&cfg)
		f.Close()

		if err != nil && err != io.EOF {
			return nil, err
		}
	}

	cfg.Expand()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Expand replaces ${var} or $var in s according to the values of the
// current environment variables, and replaces "!secret var" according to
// the file at /run/secrets/<var>.
func Expand(s string) string {
	if secret, ok := secrets.CutPrefix(s); ok {
		return secrets.MustRead(secret, "")
	}

	return os.ExpandEnv(s)
}

func expandValue(v reflect.Value) {
	switch v.Kind() {
	case reflect.String:
		if v.CanSet() {
			v.SetString(Expand(v.String()))
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	case reflect.Pointer:
		expandValue(v.Elem())
	}
}

// Expand calls [Expand] on every string field of cfg.
func (cfg *Config) Expand() {
	expandValue(reflect.ValueOf(cfg).Elem())
}

// Validate checks the struct-level validation tags on cfg.
func (cfg *Config) Validate() error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(cfg)
}

// Write writes the yaml encoding of cfg to w.
func (cfg *Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()

	enc.SetIndent(2)

	return enc.Encode(cfg)
}
