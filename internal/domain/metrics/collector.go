package metrics

import (
	"context"
	"sort"
	"sync"
	"time"
)

// SendStats counts terminal outcomes of message sends.
type SendStats struct {
	Completed int64 `json:"completed"`
	Cancelled int64 `json:"cancelled"`
	Failed    int64 `json:"failed"`
}

// Collector aggregates engine metrics: send outcomes, stream durations and
// endpoint throughput samples. It is safe for concurrent use.
type Collector struct {
	mu sync.RWMutex

	sends           SendStats
	streamDurations []int64   // milliseconds, last 100
	tpsSamples      []float64 // last 100
	lastUpdate      time.Time
}

const sampleWindow = 100

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		streamDurations: make([]int64, 0, sampleWindow),
		tpsSamples:      make([]float64, 0, sampleWindow),
		lastUpdate:      time.Now(),
	}
}

// RecordSendCompleted records a successful send and its stream duration.
// A non-nil rate records an endpoint throughput sample.
func (c *Collector) RecordSendCompleted(duration time.Duration, tokensPerSecond *float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sends.Completed++
	c.streamDurations = appendCapped(c.streamDurations, duration.Milliseconds())
	if tokensPerSecond != nil {
		c.tpsSamples = appendCapped(c.tpsSamples, *tokensPerSecond)
	}
	c.lastUpdate = time.Now()
}

// RecordSendCancelled records a user-cancelled send.
func (c *Collector) RecordSendCancelled(duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sends.Cancelled++
	c.streamDurations = appendCapped(c.streamDurations, duration.Milliseconds())
	c.lastUpdate = time.Now()
}

// RecordSendFailed records a send that ended in a transport or endpoint error.
func (c *Collector) RecordSendFailed(duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sends.Failed++
	c.streamDurations = appendCapped(c.streamDurations, duration.Milliseconds())
	c.lastUpdate = time.Now()
}

// Snapshot returns the current aggregated metrics.
func (c *Collector) Snapshot(ctx context.Context) map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]interface{}{
		"sends": map[string]int64{
			"completed": c.sends.Completed,
			"cancelled": c.sends.Cancelled,
			"failed":    c.sends.Failed,
		},
		"stream_duration_ms": map[string]int64{
			"avg": avgInt64(c.streamDurations),
			"p95": percentileInt64(c.streamDurations, 0.95),
		},
		"tokens_per_second": map[string]float64{
			"avg":  avgFloat64(c.tpsSamples),
			"last": lastFloat64(c.tpsSamples),
		},
		"timestamp": c.lastUpdate,
	}
}

// Reset clears all collected metrics
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sends = SendStats{}
	c.streamDurations = c.streamDurations[:0]
	c.tpsSamples = c.tpsSamples[:0]
	c.lastUpdate = time.Now()
}

// GetLastUpdateTime returns when metrics were last updated
func (c *Collector) GetLastUpdateTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}

func appendCapped[T any](s []T, v T) []T {
	s = append(s, v)
	if len(s) > sampleWindow {
		s = s[len(s)-sampleWindow:]
	}
	return s
}

func avgInt64(s []int64) int64 {
	if len(s) == 0 {
		return 0
	}
	var sum int64
	for _, v := range s {
		sum += v
	}
	return sum / int64(len(s))
}

func percentileInt64(s []int64, p float64) int64 {
	if len(s) == 0 {
		return 0
	}
	sorted := make([]int64, len(s))
	copy(sorted, s)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func avgFloat64(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s {
		sum += v
	}
	return sum / float64(len(s))
}

func lastFloat64(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}
