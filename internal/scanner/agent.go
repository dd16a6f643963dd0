package scanner

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/scan"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/types"
)

const (
	DefaultResetDelay        = 3 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
)

// Control is an operator action delivered to a running Agent.
type Control int

const (
	ControlSwitchCamera Control = iota + 1
	ControlToggleFlash
)

type HeartbeatSender interface {
	Heartbeat(ctx context.Context, req types.HeartbeatRequest) (types.HeartbeatResponse, error)
}

type AgentConfig struct {
	Session scan.SessionConfig

	Heartbeats        HeartbeatSender // optional
	HeartbeatInterval time.Duration

	// ResetDelay is how long a Success or Error result stays on screen
	// before the agent scans again.
	ResetDelay time.Duration

	Controls <-chan Control
	Logger   *zap.Logger
}

// Agent runs a scanning station as a kiosk: it keeps the session scanning,
// re-arming it after every result, and reports station health.
type Agent struct {
	session    *scan.Session
	registry   *scan.CameraRegistry
	heartbeats HeartbeatSender
	hbEvery    time.Duration
	resetDelay time.Duration
	controls   <-chan Control
	logger     *zap.Logger
	stationID  string

	next    scan.Notifier
	events  chan types.StatusEvent
	started time.Time
}

func NewAgent(cfg AgentConfig) *Agent {
	a := &Agent{
		registry:   cfg.Session.Registry,
		heartbeats: cfg.Heartbeats,
		hbEvery:    cfg.HeartbeatInterval,
		resetDelay: cfg.ResetDelay,
		controls:   cfg.Controls,
		logger:     cfg.Logger,
		stationID:  cfg.Session.StationID,
		next:       cfg.Session.Notifier,
		events:     make(chan types.StatusEvent, 16),
	}
	if a.hbEvery <= 0 {
		a.hbEvery = DefaultHeartbeatInterval
	}
	if a.resetDelay <= 0 {
		a.resetDelay = DefaultResetDelay
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}

	sc := cfg.Session
	sc.Notifier = scan.NotifierFunc(a.observe)
	if sc.Logger == nil {
		sc.Logger = a.logger
	}
	a.session = scan.NewSession(sc)
	return a
}

func (a *Agent) Session() *scan.Session { return a.session }

// Run scans until ctx is cancelled, then releases the camera.
func (a *Agent) Run(ctx context.Context) error {
	a.started = time.Now()
	defer a.session.Close()

	if _, err := a.registry.Refresh(ctx); err != nil {
		a.logger.Warn("camera enumeration failed", zap.Error(err))
	}
	for _, c := range a.registry.Cameras() {
		a.logger.Info("camera found",
			zap.String("camera_id", c.ID),
			zap.String("label", c.Label),
			zap.Bool("flash", c.HasFlash))
	}
	a.start(ctx)

	hb := time.NewTicker(a.hbEvery)
	defer hb.Stop()
	a.sendHeartbeat(ctx)

	var rearm <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-a.events:
			if rearm == nil && needsRearm(a.session.Snapshot().Status) {
				rearm = time.After(a.resetDelay)
			}

		case <-rearm:
			rearm = nil
			a.rearm(ctx)

		case c := <-a.controls:
			a.handleControl(ctx, c)

		case <-hb.C:
			a.sendHeartbeat(ctx)
		}
	}
}

func (a *Agent) observe(ev types.StatusEvent) {
	if a.next != nil {
		a.next.Notify(ev)
	}
	select {
	case a.events <- ev:
	default:
	}
}

func (a *Agent) start(ctx context.Context) {
	if err := a.session.Start(ctx); err != nil {
		a.logger.Warn("scan start failed", zap.Error(err))
	}
}

func (a *Agent) rearm(ctx context.Context) {
	switch a.session.Snapshot().Status {
	case scan.StatusSuccess, scan.StatusError:
		if err := a.session.Reset(); err != nil {
			a.logger.Warn("reset failed", zap.Error(err))
			return
		}
	case scan.StatusIdle:
	default:
		return
	}

	if len(a.registry.Cameras()) == 0 {
		if _, err := a.registry.Refresh(ctx); err != nil {
			a.logger.Warn("camera enumeration failed", zap.Error(err))
		}
	}
	a.start(ctx)
}

func (a *Agent) handleControl(ctx context.Context, c Control) {
	switch c {
	case ControlSwitchCamera:
		err := a.session.SwitchCamera(ctx)
		if errors.Is(err, scan.ErrInvalidTransition) {
			a.logger.Info("camera switch ignored: not scanning")
		}
	case ControlToggleFlash:
		if !a.session.ToggleFlash() {
			a.logger.Info("flash toggle ignored")
		}
	}
}

func (a *Agent) sendHeartbeat(ctx context.Context) {
	if a.heartbeats == nil {
		return
	}
	snap := a.session.Snapshot()
	req := types.HeartbeatRequest{
		StationID:     a.stationID,
		Status:        string(snap.Status),
		ActiveCamera:  snap.SelectedCameraID,
		SuccessCount:  snap.SuccessCount,
		UptimeSeconds: uint64(time.Since(a.started) / time.Second),
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := a.heartbeats.Heartbeat(ctx, req)
	if err != nil {
		a.logger.Warn("heartbeat failed", zap.Error(err))
		return
	}
	if !resp.Known {
		a.logger.Warn("station is not registered with the server", zap.String("station_id", a.stationID))
	}
}

func needsRearm(st scan.Status) bool {
	return st == scan.StatusSuccess || st == scan.StatusError || st == scan.StatusIdle
}
