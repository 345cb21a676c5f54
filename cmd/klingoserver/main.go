// Package main runs the klingoserver trading daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klingon-exchange/klingon-v2/internal/auth"
	"github.com/klingon-exchange/klingon-v2/internal/broadcast"
	"github.com/klingon-exchange/klingon-v2/internal/config"
	"github.com/klingon-exchange/klingon-v2/internal/dispatch"
	"github.com/klingon-exchange/klingon-v2/internal/hooks"
	"github.com/klingon-exchange/klingon-v2/internal/market"
	"github.com/klingon-exchange/klingon-v2/internal/server"
	"github.com/klingon-exchange/klingon-v2/internal/session"
	"github.com/klingon-exchange/klingon-v2/internal/store"
	"github.com/klingon-exchange/klingon-v2/internal/trade"
	"github.com/klingon-exchange/klingon-v2/internal/unbox"
	"github.com/klingon-exchange/klingon-v2/internal/workerpool"
	"github.com/klingon-exchange/klingon-v2/pkg/logging"
)

var version = "0.1.0-dev"

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.klingoserver", "Data directory")
		configFile  = flag.String("config", "", "Directory holding config.yaml (default: <data-dir>)")
		workers     = flag.Int("workers", 0, "Worker pool size, overrides config (0 = use config)")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("klingoserver %s\n", version)
		os.Exit(0)
	}

	log := logging.New(logging.DefaultConfig())
	logging.SetDefault(log)

	configDir := *dataDir
	if *configFile != "" {
		configDir = *configFile
	}
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}
	cfg.Storage.DataDir = *dataDir

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *workers > 0 {
		cfg.Workers.Count = *workers
	}

	if port := flag.Arg(0); port != "" {
		cfg.Listen = ":" + port
	}

	log = logging.New(&logging.Config{Level: cfg.Logging.Level, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	log.Info("klingoserver starting", "version", version, "listen", cfg.Listen)

	st, err := store.New(&store.Config{DataDir: cfg.Storage.DataDir})
	if err != nil {
		log.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	log.Info("store opened", "data_dir", cfg.Storage.DataDir)

	h := hooks.New(st)

	var hub *broadcast.WSHub
	if cfg.ObserverListen != "" {
		hub = broadcast.NewWSHub()
		h.AttachHub(hub)
		go hub.Run()

		mux := http.NewServeMux()
		mux.HandleFunc("/ws", hub.HandleWS)
		observerSrv := &http.Server{Addr: cfg.ObserverListen, Handler: mux}
		go func() {
			if err := observerSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("observer feed failed", "error", err)
			}
		}()
		log.Info("observer feed listening", "addr", cfg.ObserverListen)
	}

	sessions := session.New(st)
	authSvc := auth.New(st, sessions, auth.LegacyHasher{}, h)
	marketEngine := market.New(st, h)
	tradeEngine := trade.New(st, h)
	unboxEngine := unbox.New(st, h)
	d := dispatch.New(st, authSvc, marketEngine, tradeEngine, unboxEngine, h)

	pool := workerpool.New(workerpool.Config{
		Workers:       cfg.Workers.Count,
		QueueCapacity: cfg.Workers.QueueCapacity,
	})

	srv := server.New(server.Config{ListenAddr: cfg.Listen}, d, pool)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reapTicker := time.NewTicker(time.Minute)
	defer reapTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-reapTicker.C:
				if n, err := tradeEngine.Reap(); err != nil {
					log.Error("trade reap failed", "error", err)
				} else if n > 0 {
					log.Info("expired pending trades", "count", n)
				}
				if n, err := st.UnlockExpiredInstances(market.TradeLockDuration); err != nil {
					log.Error("trade-lock sweep failed", "error", err)
				} else if n > 0 {
					log.Info("cleared expired trade locks", "count", n)
				}
			}
		}
	}()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error("server failed to bind", "error", err)
			os.Exit(1)
		}
	case <-sigCh:
		log.Info("shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("error during shutdown", "error", err)
		}
		if err := pool.Shutdown(shutdownCtx); err != nil {
			log.Error("error draining worker pool", "error", err)
		}
	}

	log.Info("goodbye")
}
