package stats

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	minTrackable = 1
	maxTrackable = int64(10 * time.Minute / time.Microsecond)
)

// SafeHistogram is a thread-safe wrapper around hdrhistogram.
// Values are stored in microseconds.
type SafeHistogram struct {
	hist *hdrhistogram.Histogram
	mu   sync.Mutex
}

func NewSafeHistogram() *SafeHistogram {
	// 1us to 10min, 3 significant figures
	h := hdrhistogram.New(minTrackable, maxTrackable, 3)
	return &SafeHistogram{hist: h}
}

// RecordDuration records d, clamped into the trackable range.
func (h *SafeHistogram) RecordDuration(d time.Duration) error {
	v := d.Microseconds()
	if v < minTrackable {
		v = minTrackable
	}
	if v > maxTrackable {
		v = maxTrackable
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.RecordValue(v)
}

// Quantile returns the value at q (0-100) as a duration.
func (h *SafeHistogram) Quantile(q float64) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hist.TotalCount() == 0 {
		return 0
	}
	return time.Duration(h.hist.ValueAtQuantile(q)) * time.Microsecond
}

func (h *SafeHistogram) Max() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hist.TotalCount() == 0 {
		return 0
	}
	return time.Duration(h.hist.Max()) * time.Microsecond
}

func (h *SafeHistogram) TotalCount() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.TotalCount()
}
