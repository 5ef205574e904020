// Package monitor tracks operation timings and runtime resource usage.
package monitor

import (
	"runtime"
	"sync"
	"time"
)

// OpStats accumulates timing statistics for one named operation.
type OpStats struct {
	Calls       int64         `json:"calls"`
	Errors      int64         `json:"errors"`
	TotalTime   time.Duration `json:"total_time"`
	AvgTime     time.Duration `json:"avg_time"`
	MinTime     time.Duration `json:"min_time"`
	MaxTime     time.Duration `json:"max_time"`
	SuccessRate float64       `json:"success_rate"`
}

// Sample is one snapshot of process-level runtime numbers.
type Sample struct {
	Timestamp  time.Time `json:"timestamp"`
	Goroutines int       `json:"goroutines"`
	HeapMB     float64   `json:"heap_mb"`
	GCCycles   uint32    `json:"gc_cycles"`
}

// Monitor is safe for concurrent use.
type Monitor struct {
	mu         sync.Mutex
	ops        map[string]*OpStats
	samples    []Sample
	maxHistory int
	startedAt  time.Time

	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New creates a monitor keeping at most maxHistory runtime samples.
func New(maxHistory int) *Monitor {
	return &Monitor{
		ops:        make(map[string]*OpStats),
		maxHistory: maxHistory,
		startedAt:  time.Now(),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Record adds one timed call to an operation's stats.
func (m *Monitor) Record(op string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.ops[op]
	if !ok {
		s = &OpStats{MinTime: duration}
		m.ops[op] = s
	}
	s.Calls++
	s.TotalTime += duration
	s.AvgTime = s.TotalTime / time.Duration(s.Calls)
	if duration < s.MinTime {
		s.MinTime = duration
	}
	if duration > s.MaxTime {
		s.MaxTime = duration
	}
	if err != nil {
		s.Errors++
	}
	s.SuccessRate = float64(s.Calls-s.Errors) / float64(s.Calls) * 100
}

// Time runs fn and records its duration under op.
func (m *Monitor) Time(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	m.Record(op, time.Since(start), err)
	return err
}

// Ops returns a copy of the per-operation stats.
func (m *Monitor) Ops() map[string]OpStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]OpStats, len(m.ops))
	for name, s := range m.ops {
		out[name] = *s
	}
	return out
}

// Uptime reports time since the monitor was created.
func (m *Monitor) Uptime() time.Duration {
	return time.Since(m.startedAt)
}

// Start launches the background runtime sampler.
func (m *Monitor) Start(interval time.Duration) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sample()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop terminates the sampler. Safe to call when Start was never called.
func (m *Monitor) Stop() {
	m.mu.Lock()
	running := m.running
	m.running = false
	m.mu.Unlock()
	if !running {
		return
	}
	close(m.stop)
	<-m.done
}

func (m *Monitor) sample() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s := Sample{
		Timestamp:  time.Now(),
		Goroutines: runtime.NumGoroutine(),
		HeapMB:     float64(ms.HeapInuse) / 1024 / 1024,
		GCCycles:   ms.NumGC,
	}

	m.mu.Lock()
	m.samples = append(m.samples, s)
	if len(m.samples) > m.maxHistory {
		m.samples = m.samples[1:]
	}
	m.mu.Unlock()
}

// Samples returns runtime samples newer than the cutoff.
func (m *Monitor) Samples(since time.Time) []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Sample, 0, len(m.samples))
	for _, s := range m.samples {
		if s.Timestamp.After(since) {
			out = append(out, s)
		}
	}
	return out
}
