package desktop

import (
	"sync"
	"time"
)

const metricsInterval = 5 * time.Second

// streamMetrics accumulates per-interval counters for one capture loop.
type streamMetrics struct {
	sync.Mutex
	frames        uint64
	bytes         uint64
	blocks        uint64
	skipped       uint64
	encoderErrors uint64
	lastError     string
	intervalStart time.Time
}

type metricsSnapshot struct {
	Frames        uint64
	Bytes         uint64
	Blocks        uint64
	Skipped       uint64
	EncoderErrors uint64
	LastError     string
	Interval      time.Duration
}

func newStreamMetrics() *streamMetrics {
	return &streamMetrics{intervalStart: time.Now()}
}

// payload shapes a snapshot for the DESKTOP_METRICS packet the server
// aggregates for viewers.
func (s metricsSnapshot) payload() map[string]any {
	data := map[string]any{
		"frames":        s.Frames,
		"bytes":         s.Bytes,
		"blocks":        s.Blocks,
		"queueDrops":    s.Skipped,
		"encoderErrors": s.EncoderErrors,
		"intervalMs":    s.Interval.Milliseconds(),
	}
	if s.LastError != "" {
		data["lastError"] = s.LastError
	}
	return data
}

func (m *streamMetrics) recordFrame(size, blocks int) {
	if m == nil {
		return
	}
	m.Lock()
	m.frames++
	m.bytes += uint64(size)
	m.blocks += uint64(blocks)
	m.Unlock()
}

func (m *streamMetrics) recordSkip() {
	if m == nil {
		return
	}
	m.Lock()
	m.skipped++
	m.Unlock()
}

func (m *streamMetrics) recordError(err error) {
	if m == nil || err == nil {
		return
	}
	m.Lock()
	m.encoderErrors++
	m.lastError = err.Error()
	m.Unlock()
}

// snapshot drains the counters when the reporting interval has elapsed.
// The second return is false while the interval is still open.
func (m *streamMetrics) snapshot() (metricsSnapshot, bool) {
	if m == nil {
		return metricsSnapshot{}, false
	}
	m.Lock()
	defer m.Unlock()
	now := time.Now()
	interval := now.Sub(m.intervalStart)
	if interval < metricsInterval {
		return metricsSnapshot{}, false
	}
	snap := metricsSnapshot{
		Frames:        m.frames,
		Bytes:         m.bytes,
		Blocks:        m.blocks,
		Skipped:       m.skipped,
		EncoderErrors: m.encoderErrors,
		LastError:     m.lastError,
		Interval:      interval,
	}
	m.frames = 0
	m.bytes = 0
	m.blocks = 0
	m.skipped = 0
	m.encoderErrors = 0
	m.lastError = ""
	m.intervalStart = now
	return snap, true
}
