package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hollyvale/mqttdash/api"
	"github.com/hollyvale/mqttdash/bridge"
	"github.com/hollyvale/mqttdash/config"
	"github.com/hollyvale/mqttdash/log"
	"github.com/hollyvale/mqttdash/monitor"
	"github.com/hollyvale/mqttdash/mqtt"
	"github.com/hollyvale/mqttdash/ws"
)

// NewCmdServe returns the serve command, which runs the dashboard: the
// MQTT monitors, the REST API, and the WebSocket hub.
func NewCmdServe() *cobra.Command {
	var withRedis bool

	cmd := &cobra.Command{
		Use:   "serve [--config <path>]... [flags]",
		Short: "Run the dashboard server",
		Long: `Run the dashboard server in the foreground until a signal is received.

A connection to the MQTT broker is established, broker statistics and
topic activity are collected, and the REST and WebSocket interfaces are
served. SIGINT or SIGTERM shuts the server down gracefully.

With --with-redis the server additionally consumes the channels
published by a separately running bridge and forwards them to connected
WebSocket sessions.`,
		Example: `  mqttdash serve --config config.yaml
  mqttdash serve --broker 127.0.0.1:1883 --username dashboard --password p@55w0rd`,
		GroupID: "commands",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := PrintBanner(cmd); err != nil {
				return err
			}

			return loadConfig(cmd, args)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), withRedis)
		},

		DisableFlagsInUseLine: true,
	}

	addConnectionFlags(cmd)
	cmd.Flags().BoolVar(&withRedis, "with-redis", false, "Consume bridge channels from Redis")

	return cmd
}

func runServe(ctx context.Context, withRedis bool) error {
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

	sys := monitor.NewSysMonitor(client)
	if err := sys.Subscribe(ctx); err != nil {
		return &ExitError{err, 1}
	}

	tracker := monitor.NewTopicTracker(client, cfg.Tracker)
	if err := tracker.Subscribe(ctx); err != nil {
		return &ExitError{err, 1}
	}

	clients := monitor.NewClientMonitor(sys)

	hub := ws.NewHub(client, sys, clients, cfg.API.PushInterval)
	server := api.NewServer(cfg, client, sys, clients, tracker, hub)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCanceled(hub.Run(ctx))
	})

	g.Go(func() error {
		return server.ListenAndServe(ctx)
	})

	g.Go(func() error {
		return ignoreCanceled(watchConfig(ctx, ConfigPath))
	})

	if withRedis {
		rdb, err := bridge.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return &ExitError{err, 1}
		}

		AddCleanup(func() { _ = rdb.Close() })

		sub := bridge.NewRedisSubscriber(rdb)
		server.SetFeed(sub)

		sub.OnStats(func(doc map[string]any) {
			hub.Broadcast("broker_stats_update", doc)
		})

		sub.OnStatus(func(msg bridge.StatusMessage) {
			hub.Broadcast("broker_status", map[string]any{
				"connected": msg.Connected,
				"timestamp": msg.Timestamp,
			})
		})

		sub.OnMessage(func(msg bridge.RelayedMessage) {
			hub.Broadcast("topic_message", map[string]any{
				"topic":     msg.Topic,
				"payload":   msg.Payload,
				"timestamp": msg.Timestamp,
			})
		})

		if err := sub.Start(ctx); err != nil {
			return &ExitError{err, 1}
		}
	}

	log.Info("Dashboard running", "listen", cfg.API.Listen)

	if err := g.Wait(); err != nil {
		return &ExitError{err, 1}
	}

	log.Info("Done")

	return nil
}

// watchConfig reloads the log configuration when a config file changes.
func watchConfig(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	for _, p := range paths {
		if err := watcher.Add(p); err != nil {
			log.WarnError("Unable to watch config file", err, "path", p)
		}
	}

	// Editors often replace rather than rewrite, which fires several
	// events in a burst. Debounce before reloading.
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) {
				pending = time.After(500 * time.Millisecond)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			log.WarnError("Config watcher error", err)

		case <-pending:
			pending = nil

			next, err := config.Load(paths...)
			if err != nil {
				log.WarnError("Unable to reload config", err)
				continue
			}

			setLogHandler(next)
			log.Info("Reloaded logging configuration", "level", next.Log.Level)
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}
