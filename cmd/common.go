package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/hollyvale/mqttdash/config"
	"github.com/hollyvale/mqttdash/internal/build"
	"github.com/hollyvale/mqttdash/log"
)

// Flags shared by the serve and bridge commands.
var (
	ConfigPath []string // Path(s) to config file/directory
	Broker     string   // MQTT broker address
	Port       int      // MQTT broker port
	Username   string   // MQTT client username
	Password   string   // MQTT client password
	LogLevel   string   // Log level
)

var cfg *config.Config

// ExitError is an error that should cause the program to exit with the
// given code.
type ExitError struct {
	Err  error
	Code int
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func findConfig() {
	const defaultConfigFile = "mqttdash.yaml"

	if len(ConfigPath) > 0 {
		return
	}

	if env, ok := os.LookupEnv("MQTTDASH_CONFIG_PATH"); ok {
		ConfigPath = strings.Split(env, ",")
		return
	}

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		ConfigPath = []string{filepath.Join(xdg, defaultConfigFile)}
		return
	}

	home, err := os.UserHomeDir()
	cobra.CheckErr(err)

	ConfigPath = []string{filepath.Join(home, ".config", defaultConfigFile)}
}

func addConnectionFlags(cmd *cobra.Command) {
	cmd.Flags().SortFlags = false
	cmd.Flags().StringSliceVarP(&ConfigPath, "config", "c", nil, "Path(s) to config file/directory")
	cmd.Flags().StringVarP(&Broker, "broker", "b", "", "MQTT broker address")
	cmd.Flags().IntVarP(&Port, "port", "p", 1883, "MQTT broker port")
	cmd.Flags().StringVar(&Username, "username", "", "MQTT client username")
	cmd.Flags().StringVar(&Password, "password", "", "MQTT client password")
	cmd.Flags().StringVarP(&LogLevel, "log", "l", "", "Log level")

	_ = cmd.MarkFlagFilename("config", "yaml", "yml")
	_ = cmd.MarkFlagDirname("config")
}

// loadConfig resolves the config path, loads it, and applies flag
// overrides. Used as PreRunE by serve and bridge.
func loadConfig(_ *cobra.Command, _ []string) error {
	findConfig()

	var err error

	cfg, err = config.Load(ConfigPath...)
	if err != nil {
		return err
	}

	if err := flagsToConfig(cfg); err != nil {
		return err
	}

	setLogHandler(cfg)
	log.Info("Config loaded", "path", strings.Join(ConfigPath, ","))
	log.Debug("MQTT broker", "addr", cfg.MQTT.Broker)

	return nil
}

func flagsToConfig(cfg *config.Config) error {
	if LogLevel != "" {
		var level log.Level
		if err := level.UnmarshalText([]byte(LogLevel)); err != nil {
			return err
		}

		cfg.Log.Level = level
	}

	if Broker != "" {
		if !hasPort(Broker) && Port >= 0 {
			Broker += ":" + strconv.Itoa(Port)
		}

		cfg.MQTT.Broker = Broker
	}

	if Username != "" {
		cfg.MQTT.Username = Username
	}

	if Password != "" {
		cfg.MQTT.Password = Password
	}

	return nil
}

func hasPort(addr string) bool {
	if last := addr[len(addr)-1]; last < '0' || last > '9' {
		return false
	}

	var has bool

	for _, c := range addr {
		switch {
		case c == ':':
			has = true
		case '0' <= c && c <= '9':
		default:
			has = false
		}
	}

	return has
}

func setLogHandler(cfg *config.Config) {
	var w io.Writer

	switch strings.ToLower(cfg.Log.Output) {
	case "", "stderr":
	case "stdout":
		w = os.Stdout
	case "discard":
		log.SetHandler(log.DiscardHandler)
		return
	default:
		f, err := os.OpenFile(cfg.Log.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Error("Unable to open log file, deferring to stderr", err)
			return
		}

		w = f

		AddCleanup(func() { _ = f.Close() })
	}

	log.SetLogLevel(cfg.Log.Level)

	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		if w == nil {
			w = os.Stderr
		}

		log.SetJSONHandler(w)
	default:
		if w != nil {
			log.SetOutput(w)
		}
	}
}

const banner = `┌──────────────────────────────────────────────┐
│                                              │
│   mqttdash - MQTT broker dashboard           │
│                                              │
│     Version: {{printf "%%-24.24s" .Version}}        │
│     Build Time: %-24.24s     │
│                                              │
└──────────────────────────────────────────────┘
`

// BannerTemplate returns the string used for templating the banner.
func BannerTemplate() string {
	return fmt.Sprintf(banner, build.BuildTime())
}

// PrintBanner prints the banner to the given command's output.
func PrintBanner(cmd *cobra.Command) error {
	t := template.New("banner")

	template.Must(t.Parse(BannerTemplate()))

	return t.Execute(cmd.OutOrStdout(), cmd.Root())
}
