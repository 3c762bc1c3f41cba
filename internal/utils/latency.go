package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a bounded window of recent durations per operation.
type LatencyTracker struct {
	mu      sync.RWMutex
	samples map[string][]time.Duration
	maxSize int
}

// NewLatencyTracker creates a tracker storing up to maxSize samples per operation.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &LatencyTracker{samples: make(map[string][]time.Duration), maxSize: maxSize}
}

// Observe records a duration for op, evicting the oldest sample when full.
func (l *LatencyTracker) Observe(op string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	window := append(l.samples[op], d)
	if len(window) > l.maxSize {
		window = window[len(window)-l.maxSize:]
	}
	l.samples[op] = window
}

// Percentile returns the p-th (0-100) percentile for op, or zero without samples.
func (l *LatencyTracker) Percentile(op string, p float64) time.Duration {
	l.mu.RLock()
	window := append([]time.Duration(nil), l.samples[op]...)
	l.mu.RUnlock()

	if len(window) == 0 {
		return 0
	}
	sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })

	switch {
	case p <= 0:
		return window[0]
	case p >= 100:
		return window[len(window)-1]
	}
	return window[int((p/100.0)*float64(len(window)-1))]
}

// Count returns the number of samples held for op.
func (l *LatencyTracker) Count(op string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.samples[op])
}
