package scanner_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/scan"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/token"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/types"
	"github.com/BrandonDHaskell/Attendo/server/internal/scanner"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ── GlobEnumerator ───────────────────────────────────────────────────────────

func TestGlobEnumerator(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"video2", "video0"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	sysfs := filepath.Join(dir, "sys")
	if err := os.MkdirAll(filepath.Join(sysfs, "video0"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sysfs, "video0", "name"), []byte("USB Camera\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	e := &scanner.GlobEnumerator{
		Pattern:      filepath.Join(dir, "video*"),
		FlashDevices: []string{"video2"},
		SysfsRoot:    sysfs,
	}
	cams, err := e.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(cams) != 2 {
		t.Fatalf("expected 2 cameras, got %d", len(cams))
	}
	if cams[0].ID != filepath.Join(dir, "video0") || cams[0].Label != "USB Camera" || cams[0].HasFlash {
		t.Errorf("unexpected first camera %+v", cams[0])
	}
	if cams[1].Label != "video2" || !cams[1].HasFlash {
		t.Errorf("unexpected second camera %+v", cams[1])
	}
}

// ── CommandCamera ────────────────────────────────────────────────────────────

func TestCommandCamera_ReadsLines(t *testing.T) {
	cam := &scanner.CommandCamera{
		Command: "sh",
		Args:    []string{"-c", `printf 'cs101-1-30\n\n%s\n' "$1"; exec sleep 10`, "sh", scanner.DeviceToken},
	}

	st, err := cam.Open(context.Background(), "/dev/video9")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var got []string
	for len(got) < 2 {
		select {
		case f := <-st.Frames():
			got = append(got, f.Payload)
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out; got %v", got)
		}
	}
	if got[0] != "cs101-1-30" || got[1] != "/dev/video9" {
		t.Errorf("unexpected payloads %v", got)
	}

	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case _, ok := <-st.Frames():
		if ok {
			t.Error("expected no further frames")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("frames not closed after Close")
	}
	if err := st.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestCommandCamera_ProcessExitEndsStream(t *testing.T) {
	cam := &scanner.CommandCamera{Command: "sh", Args: []string{"-c", "exit 0"}}

	st, err := cam.Open(context.Background(), "cam")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	select {
	case _, ok := <-st.Frames():
		if ok {
			t.Error("expected closed stream")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not end")
	}
}

func TestCommandCamera_MissingBinary(t *testing.T) {
	cam := &scanner.CommandCamera{Command: filepath.Join(t.TempDir(), "no-such-decoder")}
	if _, err := cam.Open(context.Background(), "cam"); err == nil {
		t.Fatal("expected error for missing decoder")
	}
}

// ── Agent ────────────────────────────────────────────────────────────────────

type staticEnumerator []scan.CameraDescriptor

func (e staticEnumerator) Enumerate(context.Context) ([]scan.CameraDescriptor, error) {
	return e, nil
}

type chanStream struct {
	id     string
	frames chan scan.Frame
	once   sync.Once
}

func (s *chanStream) Frames() <-chan scan.Frame { return s.frames }
func (s *chanStream) Close() error {
	s.once.Do(func() { close(s.frames) })
	return nil
}

// chanCamera fails the next fail[id] opens of a camera; a negative count
// fails forever.
type chanCamera struct {
	mu       sync.Mutex
	streams  []*chanStream
	fail     map[string]int
	attempts map[string]int
}

func (c *chanCamera) Open(_ context.Context, id string) (scan.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempts == nil {
		c.attempts = make(map[string]int)
	}
	c.attempts[id]++
	if n := c.fail[id]; n != 0 {
		if n > 0 {
			c.fail[id] = n - 1
		}
		return nil, errors.New("device busy")
	}
	st := &chanStream{id: id, frames: make(chan scan.Frame, 4)}
	c.streams = append(c.streams, st)
	return st, nil
}

func (c *chanCamera) opened() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

func (c *chanCamera) tries(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[id]
}

func (c *chanCamera) last() *chanStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streams[len(c.streams)-1]
}

type acceptAll struct{}

func (acceptAll) Submit(context.Context, token.AttendanceToken, scan.ScanContext) error { return nil }

type recordingHeartbeats struct {
	mu   sync.Mutex
	reqs []types.HeartbeatRequest
}

func (r *recordingHeartbeats) Heartbeat(_ context.Context, req types.HeartbeatRequest) (types.HeartbeatResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return types.HeartbeatResponse{OK: true, Known: true, StationID: req.StationID}, nil
}

func (r *recordingHeartbeats) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reqs)
}

func TestAgent_RearmsAfterSuccess(t *testing.T) {
	cam := &chanCamera{}
	hbs := &recordingHeartbeats{}
	controls := make(chan scanner.Control, 1)

	agent := scanner.NewAgent(scanner.AgentConfig{
		Session: scan.SessionConfig{
			Registry: scan.NewCameraRegistry(staticEnumerator{
				{ID: "video0"},
				{ID: "video1", HasFlash: true},
			}),
			Camera:    cam,
			Submitter: acceptAll{},
			StudentID: "PES001",
			StationID: "station-1",
		},
		Heartbeats:        hbs,
		HeartbeatInterval: time.Hour,
		ResetDelay:        10 * time.Millisecond,
		Controls:          controls,
	})
	session := agent.Session()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agent.Run(ctx) }()

	waitFor(t, "scanning", func() bool { return session.Snapshot().Status == scan.StatusScanning })
	waitFor(t, "first heartbeat", func() bool { return hbs.count() >= 1 })

	raw, err := token.Encode("cs101", time.Now().Add(-time.Minute).UnixMilli(), 30)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	cam.last().frames <- scan.Frame{Payload: raw}

	waitFor(t, "re-armed after success", func() bool {
		s := session.Snapshot()
		return s.SuccessCount == 1 && s.Status == scan.StatusScanning && cam.opened() == 2
	})

	controls <- scanner.ControlSwitchCamera
	waitFor(t, "camera switch", func() bool { return session.Snapshot().ActiveCameraID == "video1" })

	controls <- scanner.ControlToggleFlash
	waitFor(t, "flash on", func() bool { return session.Snapshot().FlashEnabled })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if session.Snapshot().StreamOpen {
		t.Error("expected camera released on shutdown")
	}
}

// newTestAgent starts an agent over cam with two cameras, video1 having a
// flash. The agent is stopped when the test ends.
func newTestAgent(t *testing.T, cam *chanCamera) (*scanner.Agent, chan<- scanner.Control) {
	t.Helper()
	controls := make(chan scanner.Control, 1)
	agent := scanner.NewAgent(scanner.AgentConfig{
		Session: scan.SessionConfig{
			Registry: scan.NewCameraRegistry(staticEnumerator{
				{ID: "video0"},
				{ID: "video1", HasFlash: true},
			}),
			Camera:    cam,
			Submitter: acceptAll{},
			StudentID: "PES001",
			StationID: "station-1",
		},
		HeartbeatInterval: time.Hour,
		ResetDelay:        10 * time.Millisecond,
		Controls:          controls,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = agent.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return agent, controls
}

func TestAgent_RetriesAfterFailedStart(t *testing.T) {
	cam := &chanCamera{fail: map[string]int{"video0": 2}}
	agent, _ := newTestAgent(t, cam)
	session := agent.Session()

	waitFor(t, "scanning after retries", func() bool {
		s := session.Snapshot()
		return s.Status == scan.StatusScanning && s.ActiveCameraID == "video0"
	})
	if got := cam.tries("video0"); got != 3 {
		t.Errorf("expected 3 open attempts on video0, got %d", got)
	}
}

func TestAgent_FailedSwitchFallsBack(t *testing.T) {
	cam := &chanCamera{fail: map[string]int{"video1": -1}}
	agent, controls := newTestAgent(t, cam)
	session := agent.Session()

	waitFor(t, "scanning", func() bool { return session.Snapshot().Status == scan.StatusScanning })

	controls <- scanner.ControlSwitchCamera
	waitFor(t, "switch attempted", func() bool { return cam.tries("video1") >= 1 })

	// The agent re-arms on the camera that still works.
	waitFor(t, "back on video0", func() bool {
		s := session.Snapshot()
		return s.Status == scan.StatusScanning && s.ActiveCameraID == "video0" && cam.opened() == 2
	})
	if got := cam.tries("video1"); got != 1 {
		t.Errorf("expected the broken camera to be tried once, got %d", got)
	}

	controls <- scanner.ControlToggleFlash
	time.Sleep(50 * time.Millisecond)
	if session.Snapshot().FlashEnabled {
		t.Error("expected flash toggle ignored on a camera without flash")
	}
}
