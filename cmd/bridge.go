package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hollyvale/mqttdash/bridge"
	"github.com/hollyvale/mqttdash/log"
	"github.com/hollyvale/mqttdash/mqtt"
)

// NewCmdBridge returns the bridge command, which relays broker activity
// to Redis pub/sub channels and executes commands received from them.
func NewCmdBridge() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bridge [--config <path>]... [flags]",
		Short: "Run the MQTT to Redis bridge",
		Long: `Run the MQTT to Redis bridge in the foreground until a signal is received.

Broker statistics, client summaries, and tracked topics are published to
Redis channels on an interval, and publish/subscribe commands received
on the command channel are executed against the broker. Messages from
topics subscribed through the command channel are relayed back to
Redis.`,
		Example: `  mqttdash bridge --config config.yaml`,
		GroupID: "commands",
		Args:    cobra.NoArgs,
		PreRunE: loadConfig,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBridge(cmd.Context())
		},

		DisableFlagsInUseLine: true,
	}

	addConnectionFlags(cmd)

	return cmd
}

func runBridge(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := mqtt.New(&cfg.MQTT)

	if err := client.Connect(ctx); err != nil {
		log.Error("Not connected", err)
		return &ExitError{err, 1}
	}
	defer client.Disconnect()

	rdb, err := bridge.NewRedis(ctx, cfg.Redis)
	if err != nil {
		log.Error("Redis unreachable", err)
		return &ExitError{err, 1}
	}
	defer func() { _ = rdb.Close() }()

	b := bridge.New(client, rdb, cfg)

	log.Info("Bridge running", "redis", cfg.Redis.Addr)

	if err := ignoreCanceled(b.Run(ctx)); err != nil {
		return &ExitError{err, 1}
	}

	log.Info("Done")

	return nil
}
