package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// QueryTracker tracks latency quantiles per operation using DDSketch, plus
// cache hit/miss counts. Operations are free-form names such as "fetch",
// "cache_get" or "server_query".
type QueryTracker struct {
	mu               sync.Mutex
	sketches         map[string]*ddsketch.DDSketch
	hits             int64
	misses           int64
	relativeAccuracy float64
}

// NewQueryTracker creates a new tracker.
// relativeAccuracy determines the accuracy of quantile estimates (e.g., 0.01 = 1% accuracy)
func NewQueryTracker(relativeAccuracy float64) *QueryTracker {
	return &QueryTracker{
		sketches:         make(map[string]*ddsketch.DDSketch),
		relativeAccuracy: relativeAccuracy,
	}
}

// Record records a duration for the given operation.
func (qt *QueryTracker) Record(operation string, duration time.Duration) {
	qt.mu.Lock()
	defer qt.mu.Unlock()

	sketch, exists := qt.sketches[operation]
	if !exists {
		var err error
		sketch, err = ddsketch.LogUnboundedDenseDDSketch(qt.relativeAccuracy)
		if err != nil {
			// Fallback to default sketch if there's an error
			sketch, _ = ddsketch.NewDefaultDDSketch(qt.relativeAccuracy)
		}
		qt.sketches[operation] = sketch
	}

	// Record duration in milliseconds
	sketch.Add(float64(duration.Microseconds()) / 1000.0)
}

// RecordFunc wraps a function and records its execution time.
func (qt *QueryTracker) RecordFunc(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	qt.Record(operation, time.Since(start))
	return err
}

// RecordHit counts a cache hit and records the server-reported query time of
// the cached response, so hit latencies stay visible after the network call
// that produced them is long gone.
func (qt *QueryTracker) RecordHit(serverQueryTime time.Duration) {
	qt.mu.Lock()
	qt.hits++
	qt.mu.Unlock()
	qt.Record("server_query", serverQueryTime)
}

// RecordMiss counts a cache miss.
func (qt *QueryTracker) RecordMiss() {
	qt.mu.Lock()
	qt.misses++
	qt.mu.Unlock()
}

// HitRate returns hits/(hits+misses), or 0 before any lookup.
func (qt *QueryTracker) HitRate() float64 {
	qt.mu.Lock()
	defer qt.mu.Unlock()
	total := qt.hits + qt.misses
	if total == 0 {
		return 0
	}
	return float64(qt.hits) / float64(total)
}

// Counts returns the raw hit and miss counts.
func (qt *QueryTracker) Counts() (hits, misses int64) {
	qt.mu.Lock()
	defer qt.mu.Unlock()
	return qt.hits, qt.misses
}

// GetQuantile returns the value at the given quantile for the operation.
// quantile should be between 0 and 1 (e.g., 0.5 for median, 0.99 for p99).
func (qt *QueryTracker) GetQuantile(operation string, quantile float64) (float64, error) {
	qt.mu.Lock()
	defer qt.mu.Unlock()

	sketch, exists := qt.sketches[operation]
	if !exists {
		return 0, fmt.Errorf("no data for operation: %s", operation)
	}

	return sketch.GetValueAtQuantile(quantile)
}

// Stats holds common statistics for an operation, in milliseconds.
type Stats struct {
	Operation string
	Count     int64
	Min       float64
	P50       float64
	P90       float64
	P95       float64
	P99       float64
	Max       float64
}

// GetStats returns statistics for the given operation.
func (qt *QueryTracker) GetStats(operation string) (Stats, error) {
	qt.mu.Lock()
	defer qt.mu.Unlock()
	return qt.getStatsLocked(operation)
}

func (qt *QueryTracker) getStatsLocked(operation string) (Stats, error) {
	sketch, exists := qt.sketches[operation]
	if !exists {
		return Stats{}, fmt.Errorf("no data for operation: %s", operation)
	}

	count := sketch.GetCount()
	if count == 0 {
		return Stats{Operation: operation}, nil
	}

	min, _ := sketch.GetMinValue()
	p50, _ := sketch.GetValueAtQuantile(0.50)
	p90, _ := sketch.GetValueAtQuantile(0.90)
	p95, _ := sketch.GetValueAtQuantile(0.95)
	p99, _ := sketch.GetValueAtQuantile(0.99)
	max, _ := sketch.GetMaxValue()

	return Stats{
		Operation: operation,
		Count:     int64(count),
		Min:       min,
		P50:       p50,
		P90:       p90,
		P95:       p95,
		P99:       p99,
		Max:       max,
	}, nil
}

// GetAllStats returns statistics for all tracked operations.
func (qt *QueryTracker) GetAllStats() []Stats {
	qt.mu.Lock()
	defer qt.mu.Unlock()

	stats := make([]Stats, 0, len(qt.sketches))
	for operation := range qt.sketches {
		stat, err := qt.getStatsLocked(operation)
		if err == nil {
			stats = append(stats, stat)
		}
	}

	return stats
}

// String returns a human-readable line of the statistics.
func (s Stats) String() string {
	if s.Count == 0 {
		return fmt.Sprintf("  %s: no data", s.Operation)
	}
	return fmt.Sprintf("  %s (n=%d): min=%.2fms p50=%.2fms p90=%.2fms p95=%.2fms p99=%.2fms max=%.2fms",
		s.Operation, s.Count, s.Min, s.P50, s.P90, s.P95, s.P99, s.Max)
}
