package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pollenmap/internal/api"
	"pollenmap/internal/queue"
	"pollenmap/pkg/config"
	"pollenmap/pkg/forecast"
	"pollenmap/pkg/logging"
	"pollenmap/pkg/playback"
	"pollenmap/pkg/probe"
	"pollenmap/pkg/request"
	"pollenmap/pkg/session"
	"pollenmap/pkg/tracker"
	"pollenmap/pkg/version"
)

const defaultConfigPath = "configs/pollenmap.yaml"

var (
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	configPath = flag.String("config", defaultConfigPath, "Path to the config file")
)

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config file generated: %s\n", *configPath)
		return
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("PollenMap Started", "version", version.Version, "api", appCfg.API.BaseURL)

	tr := tracker.New()
	client := request.New(tr, logging.RequestLogger, request.ClientConfig{
		Timeout:      time.Duration(appCfg.Request.Timeout),
		Workers:      appCfg.Request.Workers,
		MaxBodyBytes: appCfg.Request.MaxBodyBytes,
	})
	defer client.Close()

	manifests := forecast.NewManifestFetcher(client, appCfg.API.BaseURL)
	areas := forecast.NewAreaFetcher(client, appCfg.API.BaseURL)

	// Startup Probes
	results := probe.Run(ctx, []probe.Probe{
		probe.Config(appCfg),
		probe.ForecastAPI(manifests),
	})
	if err := probe.AnalyzeResults(results); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	sess := session.New(manifests, areas, session.Config{
		Timeout:         time.Duration(appCfg.Request.Timeout),
		DefaultAllergen: appCfg.Forecast.DefaultAllergen,
		Tracker:         tr,
	})
	defer sess.Close()

	hub := api.NewHub()
	defer hub.Close()
	sess.AddListener(hub)
	sess.AddListener(logListener())

	if kc := appCfg.Events.Kafka; kc.Enabled() {
		producer := queue.NewProducer(kc.Brokers, kc.Topic)
		defer producer.Close()
		pub := queue.NewForecastPublisher(producer, kc.Buffer)
		// Runs before producer.Close so buffered events are flushed.
		defer pub.Close()
		sess.AddListener(pub)
		slog.Info("Publishing forecast events", "brokers", kc.Brokers, "topic", kc.Topic)
	}

	sched := playback.NewScheduler(sess, time.Duration(appCfg.Playback.Period))
	defer sched.Close()
	if appCfg.Playback.Autoplay {
		sched.Play()
	}

	sess.LoadManifest()

	return runServer(ctx, appCfg, sess, sched, tr, hub)
}

// logListener reports failures the UI may not be connected to see.
func logListener() session.Listener {
	return session.ListenerFuncs{
		ManifestReady: func(m *forecast.Manifest) {
			slog.Info("Forecast manifest ready", "allergens", len(m.Allergens), "intervals", m.Range.Len())
		},
		FetchFailed: func(kind forecast.Kind, err error) {
			slog.Warn("Forecast fetch failed", "kind", kind, "error", err)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config, sess *session.Session, sched *playback.Scheduler, tr *tracker.Tracker, hub *api.Hub) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	srv := api.NewServer(cfg.Server.Address,
		api.NewForecastHandler(sess),
		api.NewPlaybackHandler(sched),
		api.NewStatsHandler(tr),
		hub,
		shutdownFunc,
	)

	srv.Handler = loggingMiddleware(srv.Handler)
	return runServerLifecycle(ctx, srv, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
