package scanner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/scan"
)

// DeviceToken is replaced by the camera ID in command arguments.
const DeviceToken = "{device}"

// StateToken is replaced by 1 or 0 in torch command arguments.
const StateToken = "{on}"

// DefaultDecoderArgs run zbarcam headless, printing one raw payload per
// line.
var DefaultDecoderArgs = []string{"--raw", "--nodisplay", "-Sdisable", "-Sqrcode.enable", DeviceToken}

// CommandCamera decodes QR codes by running an external decoder per stream,
// one process per open camera. Each stdout line is a decoded payload.
type CommandCamera struct {
	Command string
	Args    []string

	// TorchCommand, if set, switches the camera light, for example
	// v4l2-ctl -d {device} -c torch={on}.
	TorchCommand []string

	Logger *zap.Logger
}

func (c *CommandCamera) Open(ctx context.Context, cameraID string) (scan.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	args := c.Args
	if len(args) == 0 {
		args = DefaultDecoderArgs
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cmd := exec.Command(c.Command, expand(args, cameraID, "")...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	var stderr strings.Builder
	cmd.Stderr = &limitedWriter{w: &stderr, n: 4096}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.Command, err)
	}

	st := &commandStream{
		cameraID: cameraID,
		cmd:      cmd,
		frames:   make(chan scan.Frame, 4),
		done:     make(chan struct{}),
		torch:    c.TorchCommand,
		logger:   logger.With(zap.String("camera_id", cameraID)),
	}
	go st.read(stdout, &stderr)
	return st, nil
}

type commandStream struct {
	cameraID string
	cmd      *exec.Cmd
	frames   chan scan.Frame
	done     chan struct{}
	torch    []string
	logger   *zap.Logger

	closeOnce sync.Once
}

func (s *commandStream) Frames() <-chan scan.Frame { return s.frames }

// Close stops the decoder. Frames is closed once the process has exited.
func (s *commandStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if kerr := s.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			err = kerr
		}
	})
	return err
}

func (s *commandStream) SetTorch(on bool) error {
	if len(s.torch) == 0 {
		return errors.New("torch control not configured")
	}
	state := "0"
	if on {
		state = "1"
	}
	args := expand(s.torch[1:], s.cameraID, state)
	if out, err := exec.Command(s.torch[0], args...).CombinedOutput(); err != nil {
		return fmt.Errorf("torch: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (s *commandStream) read(stdout io.Reader, stderr *strings.Builder) {
	defer close(s.frames)

	sc := bufio.NewScanner(stdout)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		select {
		case s.frames <- scan.Frame{Payload: line}:
		case <-s.done:
		}
	}

	err := s.cmd.Wait()
	select {
	case <-s.done:
	default:
		s.logger.Warn("decoder exited",
			zap.Error(err),
			zap.String("stderr", strings.TrimSpace(stderr.String())))
	}
}

func expand(args []string, device, state string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		a = strings.ReplaceAll(a, DeviceToken, device)
		out[i] = strings.ReplaceAll(a, StateToken, state)
	}
	return out
}

type limitedWriter struct {
	mu sync.Mutex
	w  io.Writer
	n  int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.n <= 0 {
		return len(p), nil
	}
	q := p
	if len(q) > l.n {
		q = q[:l.n]
	}
	l.n -= len(q)
	_, _ = l.w.Write(q)
	return len(p), nil
}
