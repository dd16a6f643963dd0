package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/notify"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/service"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/store"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/store/memory"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/store/redis"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/store/sqlite"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/token"
	"github.com/BrandonDHaskell/Attendo/server/internal/config"
	"github.com/BrandonDHaskell/Attendo/server/internal/db"
	"github.com/BrandonDHaskell/Attendo/server/internal/grpcapi"
	"github.com/BrandonDHaskell/Attendo/server/internal/httpapi"
	"github.com/BrandonDHaskell/Attendo/server/internal/logging"
)

type stores struct {
	stations   store.StationStore
	heartbeats store.HeartbeatStore
	attendance store.AttendanceStore
	close      func()
}

func main() {
	cfg := config.FromEnv()
	logger, err := logging.New(cfg.Env, "attendo-server")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer st.close()

	guard, closeGuard, err := openReplayGuard(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("replay guard", zap.Error(err))
	}
	defer closeGuard()

	hub := notify.NewHub(logger.Named("hub"))

	// Services
	registry := service.NewStationRegistry(st.stations)
	heartbeatSvc := service.NewHeartbeatService(st.heartbeats, registry, logger.Named("heartbeat"))
	attendanceSvc := service.NewAttendanceService(registry, service.AttendancePolicy{
		AllowUnknownStations: cfg.AllowUnknownStations,
		AllowedClassIDs:      config.Set(cfg.ClassIDs),
		SubmitGrace:          cfg.SubmitGrace,
	}, st.attendance, logger.Named("attendance"),
		service.WithPublisher(hub),
		service.WithReplayGuard(guard),
	)
	tokenSvc := service.NewTokenService(token.NewIssuer(nil), service.TokenPolicy{
		AllowedDurations: cfg.TokenDurations,
		AllowedClassIDs:  config.Set(cfg.ClassIDs),
	}, logger.Named("token"))

	pruner := service.NewHeartbeatPruner(st.heartbeats, service.PrunerConfig{
		RetentionDays: cfg.HeartbeatRetentionDays,
		IntervalHours: cfg.PruneIntervalHours,
	}, logger.Named("pruner"))
	pruner.Start(ctx)
	defer pruner.Stop()

	// HTTP
	httpSrv := httpapi.NewServer(httpapi.Dependencies{
		Logger:            logger.Named("http"),
		Addr:              cfg.HTTPAddr,
		HeartbeatService:  heartbeatSvc,
		AttendanceService: attendanceSvc,
		TokenService:      tokenSvc,
		Hub:               hub,
		AllowedOrigins:    cfg.AllowedOrigins,
	})

	// gRPC
	grpcSrv := grpcapi.NewServer(grpcapi.Dependencies{
		Logger:            logger.Named("grpc"),
		Addr:              cfg.GRPCAddr,
		AttendanceService: attendanceSvc,
	})

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.Start(); err != nil {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()
	go func() {
		logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Start(); err != nil {
			logger.Error("grpc server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	grpcSrv.Stop()
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (stores, error) {
	if cfg.Store == "memory" {
		logger.Info("using in-memory stores")
		return stores{
			stations:   memory.NewStationStore(cfg.KnownStations),
			heartbeats: memory.New(),
			attendance: memory.NewAttendanceStore(),
			close:      func() {},
		}, nil
	}

	sqlDB, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		return stores{}, err
	}
	if err := commission(ctx, sqlDB, cfg); err != nil {
		_ = sqlDB.Close()
		return stores{}, err
	}
	writer := db.NewWorker(sqlDB)
	logger.Info("using sqlite stores", zap.String("path", cfg.DBPath))

	return stores{
		stations:   sqlite.NewStationStore(sqlDB, writer),
		heartbeats: sqlite.NewHeartbeatStore(sqlDB, writer),
		attendance: sqlite.NewAttendanceStore(sqlDB, writer),
		close: func() {
			writer.Close()
			_ = sqlDB.Close()
		},
	}, nil
}

func commission(ctx context.Context, sqlDB *sql.DB, cfg config.Config) error {
	if cfg.Env == "dev" {
		return db.SeedDev(ctx, sqlDB, db.SeedDevOptions{KnownStations: cfg.KnownStations})
	}
	return db.Commission(ctx, sqlDB, cfg.KnownStations)
}

func openReplayGuard(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.ReplayGuard, func(), error) {
	if cfg.RedisAddr == "" {
		return memory.NewReplayGuard(nil), func() {}, nil
	}

	client := redis.NewClient(cfg.RedisAddr, cfg.RedisPassword)
	guard := redis.NewReplayGuard(client, redis.DefaultPrefix)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := guard.Ping(pingCtx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("using redis replay guard", zap.String("addr", cfg.RedisAddr))
	return guard, func() { _ = client.Close() }, nil
}
