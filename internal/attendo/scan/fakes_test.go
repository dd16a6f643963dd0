package scan_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/scan"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/token"
	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/types"
)

type fakeEnumerator struct {
	mu    sync.Mutex
	cams  []scan.CameraDescriptor
	err   error
	calls int
}

func (f *fakeEnumerator) Enumerate(context.Context) ([]scan.CameraDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.cams, nil
}

type fakeStream struct {
	cameraID string
	frames   chan scan.Frame
	cam      *fakeCamera
	once     sync.Once

	mu    sync.Mutex
	torch []bool
}

func (s *fakeStream) Frames() <-chan scan.Frame { return s.frames }

func (s *fakeStream) Close() error {
	s.once.Do(func() {
		s.cam.release(s)
		close(s.frames)
	})
	return nil
}

func (s *fakeStream) SetTorch(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.torch = append(s.torch, on)
	return nil
}

func (s *fakeStream) send(payload string) {
	s.frames <- scan.Frame{Payload: payload}
}

// fakeCamera tracks every open handle so tests can assert that at most one
// stream is ever open.
type fakeCamera struct {
	mu      sync.Mutex
	fail    map[string]error
	open    map[*fakeStream]struct{}
	opened  []*fakeStream
	maxOpen int

	// When gate is set, Open signals entered and waits for gate to close.
	gate    chan struct{}
	entered chan struct{}
}

func newFakeCamera() *fakeCamera {
	return &fakeCamera{
		fail: make(map[string]error),
		open: make(map[*fakeStream]struct{}),
	}
}

func (c *fakeCamera) Open(_ context.Context, cameraID string) (scan.Stream, error) {
	c.mu.Lock()
	gate, entered := c.gate, c.entered
	c.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail[cameraID]; err != nil {
		return nil, err
	}
	st := &fakeStream{cameraID: cameraID, frames: make(chan scan.Frame, 8), cam: c}
	c.open[st] = struct{}{}
	c.opened = append(c.opened, st)
	if len(c.open) > c.maxOpen {
		c.maxOpen = len(c.open)
	}
	return st, nil
}

func (c *fakeCamera) release(st *fakeStream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.open, st)
}

func (c *fakeCamera) openStreams() []*fakeStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*fakeStream, 0, len(c.open))
	for st := range c.open {
		out = append(out, st)
	}
	return out
}

func (c *fakeCamera) last() *fakeStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.opened) == 0 {
		return nil
	}
	return c.opened[len(c.opened)-1]
}

// fakeSubmitter records calls. When block is set, Submit signals entered
// and waits for block to be closed.
type fakeSubmitter struct {
	mu      sync.Mutex
	calls   []token.AttendanceToken
	scans   []scan.ScanContext
	err     error
	block   chan struct{}
	entered chan struct{}
	during  func()
}

func (f *fakeSubmitter) Submit(_ context.Context, tok token.AttendanceToken, sc scan.ScanContext) error {
	f.mu.Lock()
	f.calls = append(f.calls, tok)
	f.scans = append(f.scans, sc)
	block, entered, during, err := f.block, f.entered, f.during, f.err
	f.mu.Unlock()

	if during != nil {
		during()
	}
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []types.StatusEvent
}

func (n *recordingNotifier) Notify(ev types.StatusEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) last() types.StatusEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return types.StatusEvent{}
	}
	return n.events[len(n.events)-1]
}

func (n *recordingNotifier) count(level types.StatusLevel) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, ev := range n.events {
		if ev.Level == level {
			c++
		}
	}
	return c
}

type harness struct {
	session   *scan.Session
	enum      *fakeEnumerator
	camera    *fakeCamera
	submitter *fakeSubmitter
	notifier  *recordingNotifier
}

// newHarness builds a session over fake capabilities with the clock pinned
// at nowMs.
func newHarness(t *testing.T, cams []scan.CameraDescriptor, nowMs int64) *harness {
	t.Helper()

	h := &harness{
		enum:      &fakeEnumerator{cams: cams},
		camera:    newFakeCamera(),
		submitter: &fakeSubmitter{},
		notifier:  &recordingNotifier{},
	}
	h.session = scan.NewSession(scan.SessionConfig{
		Registry:  scan.NewCameraRegistry(h.enum),
		Camera:    h.camera,
		Submitter: h.submitter,
		Notifier:  h.notifier,
		StudentID: "PES1UG20CS001",
		StationID: "station-1",
		Now:       func() time.Time { return time.UnixMilli(nowMs) },
	})
	t.Cleanup(h.session.Close)
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var errBoom = errors.New("boom")

var twoCameras = []scan.CameraDescriptor{
	{ID: "cam-front", Label: "Front"},
	{ID: "cam-back", Label: "Back", HasFlash: true},
}
