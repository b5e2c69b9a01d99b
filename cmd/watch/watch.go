// Package watch implements the long-running recorder command.
package watch

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/reowatch/reowatch/internal/conf"
	"github.com/reowatch/reowatch/internal/datastore"
	"github.com/reowatch/reowatch/internal/diskmanager"
	"github.com/reowatch/reowatch/internal/events"
	"github.com/reowatch/reowatch/internal/httpserver"
	"github.com/reowatch/reowatch/internal/logger"
	"github.com/reowatch/reowatch/internal/mqtt"
	"github.com/reowatch/reowatch/internal/notification"
	"github.com/reowatch/reowatch/internal/observability"
	"github.com/reowatch/reowatch/internal/orchestrator"
	"github.com/reowatch/reowatch/internal/telemetry"
)

const (
	busDrainTimeout     = 10 * time.Second
	telemetryFlushDelay = 2 * time.Second
	discoveryTimeout    = 10 * time.Second
)

// Command creates the watch command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Record clips while cameras see a person",
		Long: "Connect to every enabled camera, subscribe to person detection and record " +
			"a clip for as long as a person is in view. Runs until SIGINT or SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), settings)
		},
	}

	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the watch command.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("output", "", "Base directory for clips and snapshots")
	cmd.Flags().String("listen", "", "Listen address of the status API")
	cmd.Flags().Duration("post-detection", 0, "Keep recording this long after the person leaves")

	for key, flag := range map[string]string{
		"recording.outputdir":     "output",
		"webserver.listen":        "listen",
		"recording.postdetection": "post-detection",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// services collects what Run starts so shutdown can stop it in order
type services struct {
	metrics  *observability.Metrics
	consumer *observability.Consumer
	bus      *events.EventBus
	store    *datastore.Store
	mqtt     mqtt.Client
	disk     *diskmanager.Manager
}

// Run starts every enabled component and blocks until ctx is cancelled or
// a termination signal arrives.
func Run(ctx context.Context, settings *conf.Settings) error {
	log := logger.Global().Module("main")
	log.Info("starting reowatch",
		logger.String("version", settings.Version),
		logger.String("build_date", settings.BuildDate),
		logger.Int("cameras", len(settings.EnabledCameras())))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go reopenLogOnHangup(ctx, log)

	svc, err := startServices(ctx, settings, log)
	if err != nil {
		return err
	}
	defer svc.close(log)

	orchOpts := []orchestrator.Option{
		orchestrator.WithPublisher(svc.bus),
		orchestrator.WithStateObserver(svc.consumer.ObserveState),
	}
	if svc.disk != nil {
		orchOpts = append(orchOpts, orchestrator.WithSpaceGuard(svc.disk))
	}
	orch := orchestrator.New(settings, orchOpts...)

	if err := orch.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if settings.WebServer.Enabled {
		serverOpts := []httpserver.Option{
			httpserver.WithMetrics(svc.metrics.Handler()),
			httpserver.WithVersion(settings.Version),
		}
		if svc.store != nil {
			serverOpts = append(serverOpts, httpserver.WithArtifacts(svc.store))
		}
		srv := httpserver.New(settings.WebServer.Listen, orch, serverOpts...)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if svc.disk != nil {
		g.Go(func() error {
			svc.disk.Run(gctx)
			return nil
		})
	}

	<-gctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), orchestrator.DefaultShutdownTimeout)
	defer cancel()
	orch.Shutdown(shutdownCtx)

	if err := g.Wait(); err != nil {
		log.Error("service stopped with error", logger.Error(err))
		return err
	}
	return nil
}

// startServices builds the event bus and its consumers.
func startServices(ctx context.Context, settings *conf.Settings, log logger.Logger) (*services, error) {
	m, err := observability.NewMetrics()
	if err != nil {
		return nil, err
	}

	svc := &services{
		metrics:  m,
		consumer: observability.NewConsumer(m),
		bus:      events.New(events.DefaultConfig()),
	}
	if err := svc.bus.RegisterConsumer(svc.consumer); err != nil {
		svc.close(log)
		return nil, err
	}

	if settings.Datastore.Enabled {
		store, err := datastore.Open(settings.Datastore.Path)
		if err != nil {
			svc.close(log)
			return nil, err
		}
		svc.store = store
		if err := svc.bus.RegisterConsumer(datastore.NewConsumer(store)); err != nil {
			svc.close(log)
			return nil, err
		}
	}

	if settings.MQTT.Enabled {
		if err := svc.startMQTT(ctx, settings, log); err != nil {
			svc.close(log)
			return nil, err
		}
	}

	if settings.Notification.Enabled {
		if err := svc.startNotifications(settings); err != nil {
			svc.close(log)
			return nil, err
		}
	}

	if settings.Retention.Enabled {
		opts := []diskmanager.Option{diskmanager.WithMetrics(m.DiskManager)}
		if svc.store != nil {
			store := svc.store
			opts = append(opts, diskmanager.WithDeleteHook(func(ctx context.Context, path string) {
				if err := store.DeleteByPath(ctx, path); err != nil {
					log.Warn("failed to remove deleted artifact from index",
						logger.String("path", path),
						logger.Error(err))
				}
			}))
		}
		svc.disk = diskmanager.New(settings, opts...)
	}

	return svc, nil
}

func (s *services) startMQTT(ctx context.Context, settings *conf.Settings, log logger.Logger) error {
	client, err := mqtt.NewClient(settings, s.metrics.MQTT)
	if err != nil {
		return err
	}

	var names []string
	for _, cam := range settings.EnabledCameras() {
		names = append(names, cam.Name)
	}
	discovery := mqtt.NewDiscoveryPublisher(client, mqtt.DiscoveryConfig{
		BaseTopic: settings.MQTT.Topic,
		NodeID:    settings.Main.Name,
		Version:   settings.Version,
	})
	client.SetOnConnect(func() {
		dctx, cancel := context.WithTimeout(context.Background(), discoveryTimeout)
		defer cancel()
		if err := discovery.PublishDiscovery(dctx, names); err != nil {
			log.Warn("failed to publish home assistant discovery", logger.Error(err))
		}
	})

	// The broker being down at startup is not fatal; events are dropped
	// and counted until it comes back
	if err := client.Connect(ctx); err != nil {
		log.Warn("mqtt connection failed, continuing without it", logger.Error(err))
	}
	s.mqtt = client

	cfg := mqtt.DefaultConfig()
	cfg.Topic = settings.MQTT.Topic
	cfg.Retain = settings.MQTT.Retain
	return s.bus.RegisterConsumer(mqtt.NewEventConsumer(client, cfg))
}

func (s *services) startNotifications(settings *conf.Settings) error {
	timeout := settings.Notification.Timeout
	if timeout <= 0 {
		timeout = notification.DefaultTimeout
	}

	provider, err := notification.NewShoutrrrProvider(settings.Notification.URLs, timeout)
	if err != nil {
		return err
	}

	kinds := notificationKinds(settings.Notification.Events)
	consumer := notification.NewConsumer([]notification.Provider{provider}, kinds, timeout,
		notification.WithMetrics(s.metrics.Notification))
	return s.bus.RegisterConsumer(consumer)
}

// notificationKinds converts configured names, defaulting when none are set
func notificationKinds(names []string) []events.Kind {
	if len(names) == 0 {
		return notification.DefaultKinds()
	}
	kinds := make([]events.Kind, 0, len(names))
	for _, n := range names {
		kinds = append(kinds, events.Kind(n))
	}
	return kinds
}

// close drains the bus first so consumers see the final clip events, then
// releases their backends.
func (s *services) close(log logger.Logger) {
	if err := s.bus.Shutdown(busDrainTimeout); err != nil {
		log.Warn("event bus did not drain", logger.Error(err))
	}
	stats := s.bus.GetStats()
	log.Info("event bus stopped",
		logger.Uint64("processed", stats.EventsProcessed),
		logger.Uint64("dropped", stats.EventsDropped),
		logger.Uint64("errors", stats.ConsumerErrors))

	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Warn("failed to close datastore", logger.Error(err))
		}
	}
	telemetry.Flush(telemetryFlushDelay)
}

// reopenLogOnHangup rotates the log file on SIGHUP
func reopenLogOnHangup(ctx context.Context, log logger.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := logger.Global().ReopenLogFile(); err != nil {
				log.Warn("failed to reopen log file", logger.Error(err))
			}
		}
	}
}
