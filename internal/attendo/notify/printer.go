package notify

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/types"
)

// Printer shows scan status on a kiosk console and mirrors it to the log.
type Printer struct {
	mu     sync.Mutex
	out    io.Writer
	logger *zap.Logger
}

func NewPrinter(out io.Writer, logger *zap.Logger) *Printer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Printer{out: out, logger: logger}
}

func (p *Printer) Notify(ev types.StatusEvent) {
	p.mu.Lock()
	fmt.Fprintf(p.out, "%s [%s] %s\n", ev.At.Local().Format("15:04:05"), symbol(ev.Level), ev.Message)
	p.mu.Unlock()

	p.logger.Debug("status", zap.String("level", string(ev.Level)), zap.String("message", ev.Message))
}

func symbol(l types.StatusLevel) string {
	switch l {
	case types.LevelSuccess:
		return "OK"
	case types.LevelError:
		return "!!"
	default:
		return ".."
	}
}
