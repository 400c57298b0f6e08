package main

import (
	"math"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

const (
	percentileP50         = 0.50
	percentileP95         = 0.95
	percentileP99         = 0.99
	microsecondsPerSecond = 1e6
)

// benchMetrics implements outbox.Metrics for a benchmark run.
type benchMetrics struct {
	delivered atomic.Int64
	failed    atomic.Int64
	cycles    durationStats
}

func (m *benchMetrics) ObserveCycleDuration(d time.Duration) { m.cycles.Add(d) }
func (m *benchMetrics) AddDelivered(n int)                   { m.delivered.Add(int64(n)) }
func (m *benchMetrics) AddFailed(n int)                      { m.failed.Add(int64(n)) }
func (m *benchMetrics) AddPermanent(int)                     {}
func (m *benchMetrics) AddPersistFailures(int)               {}
func (m *benchMetrics) SetPending(int)                       {}

func (m *benchMetrics) Delivered() int64 {
	return m.delivered.Load()
}

type durationStats struct {
	mu      sync.Mutex
	samples []time.Duration
}

func (s *durationStats) Add(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.samples = append(s.samples, d)
	s.mu.Unlock()
}

func (s *durationStats) Snapshot() durationSnapshot {
	s.mu.Lock()
	samples := slices.Clone(s.samples)
	s.mu.Unlock()
	if len(samples) == 0 {
		return durationSnapshot{}
	}
	slices.Sort(samples)

	return durationSnapshot{
		P50:   percentile(samples, percentileP50),
		P95:   percentile(samples, percentileP95),
		P99:   percentile(samples, percentileP99),
		Max:   samples[len(samples)-1],
		Count: len(samples),
	}
}

type durationSnapshot struct {
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	Max   time.Duration
	Count int
}

func percentile(samples []time.Duration, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(samples)))) - 1
	idx = max(0, min(idx, len(samples)-1))

	return samples[idx]
}

func msFloat(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

type resourceUsage struct {
	UserCPUSeconds    float64
	SystemCPUSeconds  float64
	GoTotalAllocBytes uint64
	GoNumGC           uint32
}

func readResourceUsage() resourceUsage {
	var usage resourceUsage

	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err == nil {
		usage.UserCPUSeconds = float64(ru.Utime.Sec) + float64(ru.Utime.Usec)/microsecondsPerSecond
		usage.SystemCPUSeconds = float64(ru.Stime.Sec) + float64(ru.Stime.Usec)/microsecondsPerSecond
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	usage.GoTotalAllocBytes = ms.TotalAlloc
	usage.GoNumGC = ms.NumGC

	return usage
}

func deltaUsage(start, end resourceUsage) resourceUsage {
	return resourceUsage{
		UserCPUSeconds:    end.UserCPUSeconds - start.UserCPUSeconds,
		SystemCPUSeconds:  end.SystemCPUSeconds - start.SystemCPUSeconds,
		GoTotalAllocBytes: end.GoTotalAllocBytes - start.GoTotalAllocBytes,
		GoNumGC:           end.GoNumGC - start.GoNumGC,
	}
}
