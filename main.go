package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"rocketcrash/api"
	"rocketcrash/config"
	"rocketcrash/contract"
	"rocketcrash/db"
	"rocketcrash/engine"
	"rocketcrash/ws"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Warn("⚠️ .env file not found, using environment variables")
	} else {
		log.Info("✅ Loaded environment variables from .env")
	}

	cfg := config.Load()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx := context.Background()

	// Primary store. Postgres when configured, in-memory otherwise so
	// local development works with zero infrastructure.
	var store engine.Store
	var dbHealth api.HealthChecker
	if cfg.DatabaseURL != "" {
		pg, err := db.NewPostgres(ctx, cfg.DatabaseURL, log)
		if err != nil {
			log.WithError(err).Fatal("❌ PostgreSQL initialization failed")
		}
		defer pg.Close()
		store = pg
		dbHealth = pg
	} else {
		log.Warn("⚠️ DATABASE_URL not set, using in-memory store")
		log.Warn("   All state is lost on restart")
		store = db.NewMemStore()
	}

	// Redis carries the rate limiter, pause flag and history cache. The
	// engine runs without it, minus those features.
	var redisClient *db.Redis
	var limiter engine.RateLimiter
	var flags engine.Flags
	if rc, err := db.NewRedis(ctx, cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB, log); err != nil {
		log.WithError(err).Warn("⚠️ Redis initialization failed")
		log.Warn("   Rate limiting and history cache are disabled")
	} else {
		defer rc.Close()
		redisClient = rc
		limiter = rc
		flags = rc
	}

	// Claim contract client, read-only. Without it stuck claims stay
	// pending instead of being reconciled.
	var oracle engine.NonceOracle
	if cfg.ChainEnabled {
		gh, err := contract.NewGameHouse(cfg.ChainRPCURL, cfg.ClaimContract, log)
		if err != nil {
			log.WithError(err).Warn("⚠️ Claim contract initialization failed")
			log.Warn("   Claim reconciliation is disabled")
		} else {
			defer gh.Close()
			oracle = gh
		}
	}

	eng := engine.New(engine.Options{
		Store:         store,
		Limiter:       limiter,
		Oracle:        oracle,
		Flags:         flags,
		PoolThreshold: cfg.PoolSafetyThreshold,
		Logger:        log,
	})

	feed := ws.NewFeed(log)
	go feed.Run()

	server := api.NewServer(eng, redisClient, feed, dbHealth, log)
	mux := http.NewServeMux()
	server.Register(mux)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Infof("🚀 Server starting on %s", cfg.ListenAddr)
		log.Info("")
		log.Info("📡 Live feed:")
		log.Infof("   ws://%s/ws/feed - round phase events", cfg.ListenAddr)
		log.Info("")
		log.Info("🔌 API Endpoints:")
		log.Info("   POST /api/round/advance - tick the round state machine")
		log.Info("   GET  /api/status - engine status + pool balance")
		log.Info("   GET  /api/round - current round (seed hidden until crash)")
		log.Info("   GET  /api/round/history - revealed rounds, newest first")
		log.Info("   GET  /api/verify - provable fairness check")
		log.Info("   POST /api/ticket/buy - mint an entry ticket")
		log.Info("   POST /api/bet - place a bet during betting")
		log.Info("   POST /api/cashout - cash out while flying")
		log.Info("   POST /api/claim/start|tx|cancel - claim flow")
		log.Info("   POST /api/claim/reconcile - sweep stuck claims")
		log.Info("   GET  /api/leaderboard - wallet PnL standings")
		log.Info("   GET  /api/health - liveness probe")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("❌ Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("🛑 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("❌ Graceful shutdown failed")
	}
	log.Info("👋 Bye")
}
