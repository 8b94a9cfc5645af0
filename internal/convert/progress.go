package convert

import (
	"sync"

	"golang.org/x/time/rate"
)

// progressTracker implements spec.md §3's progress state and §4.7's
// reporting rule: progress is only computed if a callback was supplied,
// and is clamp(min(per-track max timestamps) / total_duration, 0, 1),
// emitted only when it changes. Callback invocations are additionally
// rate-limited so a fast copy-path track can't flood the caller.
type progressTracker struct {
	mu            sync.Mutex
	totalDuration float64
	maxTimestamps map[int]float64
	onProgress    func(float64)
	limiter       *rate.Limiter
	last          float64
	haveLast      bool
}

// newProgressTracker returns nil if onProgress is nil — the orchestrator
// then skips all tracking work, per spec.md §4.7.
func newProgressTracker(totalDuration float64, onProgress func(float64)) *progressTracker {
	if onProgress == nil {
		return nil
	}
	return &progressTracker{
		totalDuration: totalDuration,
		maxTimestamps: make(map[int]float64),
		onProgress:    onProgress,
		limiter:       rate.NewLimiter(rate.Limit(30), 1), // at most 30 callback invocations/sec
	}
}

// Update records trackID's latest timestamp and emits progress if it
// changed and the limiter allows it.
func (t *progressTracker) Update(trackID int, ts float64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	if cur, ok := t.maxTimestamps[trackID]; !ok || ts > cur {
		t.maxTimestamps[trackID] = ts
	}
	p := t.computeLocked()
	changed := !t.haveLast || p != t.last
	if changed {
		t.last = p
		t.haveLast = true
	}
	t.mu.Unlock()

	if changed && t.limiter.Allow() {
		t.onProgress(p)
	}
}

// Complete forces a final progress=1 emission, bypassing the limiter
// (spec.md §8 "progress=1 after all tracks complete").
func (t *progressTracker) Complete() {
	if t == nil {
		return
	}
	t.onProgress(1)
}

func (t *progressTracker) computeLocked() float64 {
	if t.totalDuration <= 0 {
		return 1
	}
	first := true
	var m float64
	for _, v := range t.maxTimestamps {
		if first || v < m {
			m = v
			first = false
		}
	}
	if first {
		return 0
	}
	p := m / t.totalDuration
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
