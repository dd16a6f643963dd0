package notify

import (
	"sync"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Attendo/server/internal/attendo/types"
)

// DefaultBuffer is the per-subscriber queue depth.
const DefaultBuffer = 32

// Subscription receives events for one class until Close is called.
type Subscription struct {
	ClassID string
	events  chan types.AttendanceEvent
	hub     *Hub
	once    sync.Once
}

func (s *Subscription) Events() <-chan types.AttendanceEvent { return s.events }

func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s) })
}

// Hub fans accepted attendance out to live subscribers per class. A slow
// subscriber loses events rather than stalling Publish.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: DefaultBuffer,
		logger: logger,
	}
}

func (h *Hub) Subscribe(classID string) *Subscription {
	s := &Subscription{
		ClassID: classID,
		events:  make(chan types.AttendanceEvent, h.buffer),
		hub:     h,
	}

	h.mu.Lock()
	if _, ok := h.subs[classID]; !ok {
		h.subs[classID] = make(map[*Subscription]struct{})
	}
	h.subs[classID][s] = struct{}{}
	n := len(h.subs[classID])
	h.mu.Unlock()

	h.logger.Debug("live subscriber added", zap.String("class_id", classID), zap.Int("subscribers", n))
	return s
}

func (h *Hub) Publish(ev types.AttendanceEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs[ev.ClassID] {
		select {
		case s.events <- ev:
		default:
			h.logger.Warn("live subscriber lagging, event dropped",
				zap.String("class_id", ev.ClassID),
				zap.String("record_id", ev.RecordID))
		}
	}
}

// Subscribers reports how many subscribers classID has.
func (h *Hub) Subscribers(classID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[classID])
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.subs[s.ClassID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.ClassID)
		}
	}
	close(s.events)
}
