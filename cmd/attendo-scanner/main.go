package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/notify"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/scan"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/submit"
	"github.com/BrandonDHaskell/Attendo/server/internal/config"
	"github.com/BrandonDHaskell/Attendo/server/internal/logging"
	"github.com/BrandonDHaskell/Attendo/server/internal/scanner"
)

func main() {
	cfg := config.ScannerFromEnv()
	logger, err := logging.New(cfg.Env, "attendo-scanner")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.StudentID == "" {
		logger.Fatal("ATTENDO_SCANNER_STUDENT_ID is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Heartbeats always go over HTTP; attendance follows the transport.
	httpClient := submit.NewHTTPClient(submit.HTTPConfig{
		BaseURL:  cfg.ServerURL,
		Protobuf: cfg.Protobuf,
		Logger:   logger.Named("http"),
	})
	var submitter scan.Submitter = httpClient
	if cfg.Transport == "grpc" {
		cc, err := submit.Dial(cfg.GRPCAddr)
		if err != nil {
			logger.Fatal("grpc dial", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
		}
		defer func() { _ = cc.Close() }()
		submitter = submit.NewGRPCSubmitter(cc, logger.Named("grpc"))
	}

	controls := make(chan scanner.Control, 4)
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigs)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				c := scanner.ControlSwitchCamera
				if sig == syscall.SIGUSR2 {
					c = scanner.ControlToggleFlash
				}
				select {
				case controls <- c:
				default:
				}
			}
		}
	}()

	agent := scanner.NewAgent(scanner.AgentConfig{
		Session: scan.SessionConfig{
			Registry: scan.NewCameraRegistry(&scanner.GlobEnumerator{
				Pattern:      cfg.DeviceGlob,
				FlashDevices: cfg.FlashCameras,
			}),
			Camera: &scanner.CommandCamera{
				Command:      cfg.ZbarCommand,
				TorchCommand: cfg.TorchCommand,
				Logger:       logger.Named("camera"),
			},
			Submitter: submitter,
			Notifier:  notify.NewPrinter(os.Stdout, logger.Named("status")),
			StudentID: cfg.StudentID,
			StationID: cfg.StationID,
		},
		Heartbeats:        httpClient,
		HeartbeatInterval: cfg.HeartbeatInterval,
		ResetDelay:        cfg.ResetDelay,
		Controls:          controls,
		Logger:            logger.Named("agent"),
	})

	logger.Info("scanner starting",
		zap.String("station_id", cfg.StationID),
		zap.String("transport", cfg.Transport),
		zap.String("devices", cfg.DeviceGlob))

	if err := agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scanner stopped", zap.Error(err))
		os.Exit(1)
	}
}
