package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tradeboard/config"
	"tradeboard/internal/archive"
	"tradeboard/internal/board"
	"tradeboard/internal/dashboard"
	"tradeboard/internal/demo"
	"tradeboard/internal/metrics"
	"tradeboard/internal/transport"
	"tradeboard/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultConfigPath, "Path to configuration file")
	offline := flag.Bool("offline", false, "Use the in-process broker with a synthetic feed instead of RabbitMQ")
	feedInterval := flag.Duration("feed-interval", time.Second, "Candle interval of the offline feed")

	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolveConfigPath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}
	metrics.Configure(cfg.Metrics)

	log.WithFields(logger.Fields{
		"service":     cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": config.AppEnvironment(),
		"offline":     *offline,
	}).Info("starting tradeboard")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.StartReport(ctx, log, cfg.Logging.ReportInterval)

	stopCloudWatch, err := metrics.StartCloudWatch(ctx, cfg.Metrics.CloudWatch)
	if err != nil {
		log.WithError(err).Warn("failed to start CloudWatch exporter; continuing without it")
		stopCloudWatch = func() {}
	}
	defer stopCloudWatch()

	var (
		tr  transport.Transport
		mem *transport.Memory
	)
	if *offline {
		mem = transport.NewMemory(cfg.Broker.ReconnectDelay)
		tr = mem
	} else {
		tr = transport.NewAMQP(cfg.Broker)
	}

	b := board.New(cfg, tr)
	if err := b.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start board")
		os.Exit(1)
	}

	var wg sync.WaitGroup

	if mem != nil {
		feed := demo.NewFeed(mem, *feedInterval, cfg.Commands.SecCode)
		wg.Add(1)
		go func() {
			defer wg.Done()
			feed.Run(ctx)
		}()
	}

	if cfg.Archive.Enabled {
		archiver, err := archive.New(ctx, cfg.Archive, cfg.App.Version, b)
		if err != nil {
			log.WithError(err).Error("failed to create archive writer")
			os.Exit(1)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			archiver.Run(ctx)
		}()
	} else {
		log.WithComponent("main").Info("archive disabled; skipping S3 writer")
	}

	dash, err := dashboard.NewServer(cfg.Dashboard, log, b)
	if err != nil {
		log.WithError(err).Error("failed to create dashboard")
		os.Exit(1)
	}
	if dash != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dash.Run(ctx, cfg.App.Name); err != nil {
				log.WithError(err).Error("dashboard stopped with error")
				cancel()
			}
		}()
	} else {
		log.WithComponent("main").Info("dashboard disabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown")
	shutdown(b, cancel)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("tradeboard stopped")
}

// shutdown stops the board while the root context is still live, so its
// subscriptions are released before the dispatcher sees cancellation.
func shutdown(b interface{ Stop() }, cancel context.CancelFunc) {
	b.Stop()
	cancel()
}
