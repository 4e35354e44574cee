package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"wbs/collab-client/clock"
	"wbs/collab-client/models"
)

const DefaultHeartbeatInterval = 30 * time.Second

// Heartbeat sends a periodic keep-alive and measures round-trip latency
// from the server's echo. A missed echo is not an error; liveness loss
// surfaces through the socket's own close.
type Heartbeat struct {
	clock    clock.Clock
	interval time.Duration

	mu      sync.Mutex
	epoch   uint64
	running bool
	timer   *clock.Timer
	send    func(models.Message) bool

	pingID        string
	sentAt        time.Time
	latency       time.Duration
	hasLatency    bool
	lastHeartbeat time.Time
}

func NewHeartbeat(c clock.Clock, interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Heartbeat{clock: c, interval: interval}
}

// Start arms the beat. Each beat hands a heartbeat message to send;
// send reports whether it went out. Restarting replaces the previous
// schedule.
func (h *Heartbeat) Start(send func(models.Message) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopLocked()
	h.epoch++
	h.running = true
	h.send = send
	h.armLocked(h.epoch)
}

// Stop cancels the schedule. Echoes still update last-heartbeat.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
}

func (h *Heartbeat) stopLocked() {
	h.running = false
	h.epoch++
	h.timer.Stop()
	h.timer = nil
	h.pingID = ""
	h.sentAt = time.Time{}
}

func (h *Heartbeat) armLocked(epoch uint64) {
	h.timer = h.clock.AfterFunc(h.interval, func() { h.beat(epoch) })
}

func (h *Heartbeat) beat(epoch uint64) {
	h.mu.Lock()
	if !h.running || epoch != h.epoch {
		h.mu.Unlock()
		return
	}
	id := uuid.NewString()
	sentAt := h.clock.Now()
	h.pingID = id
	h.sentAt = sentAt
	send := h.send
	h.armLocked(epoch)
	h.mu.Unlock()

	send(models.Message{
		Type:      models.TypeHeartbeat,
		Timestamp: models.FormatTimestamp(sentAt),
		Payload:   &models.HeartbeatPayload{PingID: id},
	})
}

// Observe records a heartbeat echo. Latency is computed only when a
// send is outstanding and the echo's ping id matches it, or the echo
// carries no ping id.
func (h *Heartbeat) Observe(msg models.Message) {
	now := h.clock.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastHeartbeat = now
	if h.sentAt.IsZero() {
		return
	}
	if p, ok := msg.Heartbeat(); ok && p != nil && p.PingID != "" && p.PingID != h.pingID {
		return
	}

	h.latency = now.Sub(h.sentAt)
	h.hasLatency = true
	h.pingID = ""
	h.sentAt = time.Time{}
}

// Latency returns the last measured round trip, if any.
func (h *Heartbeat) Latency() (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latency, h.hasLatency
}

// LastHeartbeat returns when the last echo arrived (zero if never).
func (h *Heartbeat) LastHeartbeat() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastHeartbeat
}
