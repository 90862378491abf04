package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"media-reaper/internal/api"
	"media-reaper/internal/auth"
	"media-reaper/internal/config"
	"media-reaper/internal/database"
	"media-reaper/internal/deletion"
	"media-reaper/internal/exitcodes"
	"media-reaper/internal/logging"
	"media-reaper/internal/mediaindex"
	"media-reaper/internal/metrics"
	"media-reaper/internal/scheduler"
	"media-reaper/internal/websocket"
)

func main() {
	configPath := flag.String("config", "/etc/media-reaper/config.yaml", "Path to configuration file")
	once := flag.Bool("once", false, "Run one maintenance cycle and exit (no API server)")
	flag.Parse()

	os.Exit(run(*configPath, *once))
}

func run(configPath string, once bool) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", configPath, err)
		return exitcodes.InvalidConfig
	}

	log := logging.New(cfg)
	log.WithField("config", configPath).Info("media-reaper starting")

	metrics.Init()

	index, err := mediaindex.Open(cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Error("failed to open media index")
		return exitcodes.RuntimeError
	}
	defer index.Close()

	history, err := database.NewDeletionDB(cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Error("failed to open deletion history")
		return exitcodes.RuntimeError
	}
	defer func() {
		if err := history.Close(); err != nil {
			log.WithError(err).Error("failed to close deletion history")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.WithField("signal", sig.String()).Info("shutting down gracefully")
		cancel()
	}()

	deps := scheduler.Deps{
		Index:   index,
		Scanner: mediaindex.NewScanner(index, log, cfg.Index.Extensions, cfg.Index.MaxFilesPerSecond),
		History: history,
		Log:     log,
	}

	if once {
		if err := scheduler.RunOnce(ctx, cfg, deps); err != nil {
			log.WithError(err).Error("maintenance cycle failed")
			return exitcodes.RuntimeError
		}
		log.Info("maintenance cycle completed")
		return exitcodes.Success
	}

	if cfg.Prometheus.Port > 0 {
		metrics.StartServer(cfg.PrometheusAddress(), log)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), api.ShutdownTimeout)
			defer done()
			metrics.Shutdown(shutdownCtx, log)
		}()
	}

	health := metrics.NewHealthChecker(30 * time.Second)
	health.RegisterComponent("media_index", index.Ping, 5*time.Second)
	health.RegisterComponent("history", func(ctx context.Context) error {
		_, err := history.GetRecentDeletions(1)
		return err
	}, 5*time.Second)
	health.Start()
	metrics.SetHealthChecker(health)
	defer health.Stop()

	hub := websocket.NewHub(log)
	go hub.Run(ctx)

	svc := deletion.NewFromConfig(cfg, index, log)
	svc.AddObserver(deletion.NewHistoryObserver(history, log))
	svc.AddObserver(deletion.MetricsObserver{})
	svc.AddObserver(hub)
	log.WithField("strategies", svc.Strategies()).Info("deletion chain ready")

	var jwtManager *auth.JWTManager
	if cfg.API.JWTSecret != "" {
		jwtManager, err = auth.NewJWTManager(cfg.API.JWTSecret, cfg.JWTExpiry())
		if err != nil {
			log.WithError(err).Error("invalid jwt configuration")
			return exitcodes.InvalidConfig
		}
	} else {
		log.Warn("api.jwt_secret is empty, bridge API accepts unauthenticated requests")
	}

	server := api.NewServer(api.Options{
		Service:      svc,
		Available:    index.Ping,
		Events:       websocket.HandleEvents(hub),
		JWT:          jwtManager,
		RateLimit:    cfg.RequestRate(),
		RateBurst:    cfg.API.RateBurst,
		MaxBodyBytes: cfg.API.MaxBodyBytes,
		Log:          log,
	})

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := server.ListenAndServe(ctx, cfg.ListenAddress); err != nil {
			errCh <- fmt.Errorf("bridge API: %w", err)
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		if err := scheduler.Run(ctx, cfg, deps); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("scheduler: %w", err)
			cancel()
		}
	}()

	wg.Wait()
	close(errCh)

	code := exitcodes.Success
	for err := range errCh {
		log.WithError(err).Error("media-reaper stopped with error")
		code = exitcodes.RuntimeError
	}
	log.WithFields(logrus.Fields{"exit_code": code}).Info("media-reaper stopped")
	return code
}
