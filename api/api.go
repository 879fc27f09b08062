// Package api serves the dashboard's REST interface: broker status and
// statistics, client counts, tracked topics, and message publishing. The
// WebSocket endpoint and Prometheus metrics hang off the same router.
package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hollyvale/mqttdash/config"
	"github.com/hollyvale/mqttdash/log"
	"github.com/hollyvale/mqttdash/monitor"
	"github.com/hollyvale/mqttdash/mqtt"
	"github.com/hollyvale/mqttdash/ws"
)

// StatsFeed supplies broker statistics received from a bridge when the
// server is not collecting them from the broker itself.
type StatsFeed interface {
	Stats() map[string]any
	Connected() bool
}

// Server is the dashboard HTTP server.
type Server struct {
	client  mqtt.Client
	sys     *monitor.SysMonitor
	clients *monitor.ClientMonitor
	tracker *monitor.TopicTracker
	hub     *ws.Hub
	feed    StatsFeed
	metrics *Metrics

	cfg config.APIConfig

	brokerHost string
	brokerPort int
}

// NewServer wires the REST handlers to the dashboard services. hub may
// be nil when the WebSocket layer is disabled.
func NewServer(cfg *config.Config, client mqtt.Client, sys *monitor.SysMonitor, clients *monitor.ClientMonitor, tracker *monitor.TopicTracker, hub *ws.Hub) *Server {
	s := &Server{
		client:  client,
		sys:     sys,
		clients: clients,
		tracker: tracker,
		hub:     hub,
		metrics: NewMetrics(),
		cfg:     cfg.API,
	}

	s.brokerHost, s.brokerPort = brokerAddr(cfg.MQTT.Broker)

	if hub != nil {
		s.metrics.Sessions(hub.Count)
	}

	if tracker != nil {
		s.metrics.TrackedTopics(tracker.Count)
	}

	s.metrics.BrokerConnected(client.IsConnected)

	return s
}

// SetFeed registers a bridge stats feed. Broker statistics fall back to
// the feed's last document when the local collector is not subscribed.
func (s *Server) SetFeed(feed StatsFeed) {
	s.feed = feed
}

// feedStats returns the bridge-fed stats document, or nil when the
// server collects statistics itself.
func (s *Server) feedStats() map[string]any {
	if s.feed == nil || s.sys.Subscribed() {
		return nil
	}

	return s.feed.Stats()
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/broker", func(r chi.Router) {
			r.Get("/status", s.handleBrokerStatus)
			r.Get("/stats", s.handleBrokerStats)
			r.Get("/stats/summary", s.handleBrokerSummary)
			r.Get("/version", s.handleBrokerVersion)
		})

		r.Route("/clients", func(r chi.Router) {
			r.Get("/", s.handleClients)
			r.Get("/count", s.handleClientsCount)
			r.Get("/active", s.handleClientsActive)
			r.Get("/stats", s.handleClientsStats)
		})

		r.Route("/topics", func(r chi.Router) {
			r.Get("/", s.handleTopics)
			r.Get("/count", s.handleTopicsCount)
			r.Get("/summary", s.handleTopicsSummary)
			r.Get("/*", s.handleTopic)
		})

		r.Post("/messages/publish", s.handlePublish)
	})

	if s.hub != nil {
		r.Get("/ws", s.hub.ServeHTTP)
	}

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	r.Get("/healthz", s.handleHealthz)

	return r
}

// ListenAndServe runs the HTTP server until ctx is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		log.Info("HTTP server listening", "addr", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"broker_connected": s.client.IsConnected(),
	})
}

// requireBroker writes the standard error when the broker is away.
func (s *Server) requireBroker(w http.ResponseWriter) bool {
	if s.client.IsConnected() {
		return true
	}

	writeError(w, http.StatusServiceUnavailable, CodeBrokerDisconnected, "Not connected to MQTT broker")

	return false
}

func (s *Server) requireSys(w http.ResponseWriter) bool {
	if !s.requireBroker(w) {
		return false
	}

	if !s.sys.Subscribed() {
		writeError(w, http.StatusServiceUnavailable, CodeSysNotSubscribed, "Not subscribed to broker statistics")
		return false
	}

	return true
}

func (s *Server) requireTracker(w http.ResponseWriter) bool {
	if !s.requireBroker(w) {
		return false
	}

	if !s.tracker.Subscribed() {
		writeError(w, http.StatusServiceUnavailable, CodeTopicTrackerNotSubscribed, "Not subscribed to topic tracking")
		return false
	}

	return true
}

// brokerAddr extracts the host and port from a broker URI for the
// status document.
func brokerAddr(broker string) (string, int) {
	u, err := url.Parse(broker)
	if err != nil || u.Host == "" {
		return broker, 0
	}

	port, _ := strconv.Atoi(u.Port())

	return u.Hostname(), port
}

// requestLogger logs completed requests at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(wrapped, r)

		log.Debug("Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.Status(),
			"duration", time.Since(start),
		)
	})
}
