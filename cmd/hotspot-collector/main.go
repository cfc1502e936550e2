package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/mohit83k/hotspot-console/internal/accounting"
	"github.com/mohit83k/hotspot-console/internal/config"
	"github.com/mohit83k/hotspot-console/internal/database"
	"github.com/mohit83k/hotspot-console/internal/logger"
	"github.com/mohit83k/hotspot-console/internal/server"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	migrate := flag.Bool("migrate", false, "create the accounting tables before serving")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	cfg, err := config.Resolve(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.NewLogrusLogger(cfg.LogFilePath, cfg.LogLevel)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
	defer db.Close()

	store := accounting.NewStore(db, cfg.Database.Driver, cfg.Database.QueryTimeout, log)
	if *migrate {
		if err := store.Migrate(ctx); err != nil {
			log.Error(err)
			os.Exit(1)
		}
	}

	radiusServer := server.NewServer(":"+cfg.Radius.Port, cfg.Radius.Secret, store, log)

	if err := run(ctx, cfg.MetricsAddr, radiusServer, log); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

// run serves RADIUS accounting and /metrics until ctx is cancelled.
func run(ctx context.Context, metricsAddr string, radiusServer *server.Server, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return radiusServer.ListenAndServe(gctx)
	})
	g.Go(func() error {
		log.Info("Metrics listening on " + metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
