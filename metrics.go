package pitgo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
type MetricsCollector interface {
	// RecordOpen is called after each open operation.
	RecordOpen(duration time.Duration, err error)

	// RecordSearch is called after each search operation.
	// totalShards/failedShards describe the fan-out outcome.
	RecordSearch(totalShards, failedShards int, duration time.Duration, err error)

	// RecordClose is called after each close operation.
	RecordClose(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordOpen(time.Duration, error)             {}
func (NoopMetricsCollector) RecordSearch(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordClose(time.Duration, error)            {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	OpenCount         atomic.Int64
	OpenErrors        atomic.Int64
	OpenTotalNanos    atomic.Int64
	SearchCount       atomic.Int64
	SearchErrors      atomic.Int64
	SearchShards      atomic.Int64
	SearchShardErrors atomic.Int64
	SearchTotalNanos  atomic.Int64
	CloseCount        atomic.Int64
	CloseErrors       atomic.Int64
}

// RecordOpen implements MetricsCollector.
func (b *BasicMetricsCollector) RecordOpen(duration time.Duration, err error) {
	b.OpenCount.Add(1)
	b.OpenTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.OpenErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(totalShards, failedShards int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchShards.Add(int64(totalShards))
	b.SearchShardErrors.Add(int64(failedShards))
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordClose implements MetricsCollector.
func (b *BasicMetricsCollector) RecordClose(duration time.Duration, err error) {
	b.CloseCount.Add(1)
	if err != nil {
		b.CloseErrors.Add(1)
	}
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	OpenCount         int64
	OpenErrors        int64
	OpenAvgNanos      int64
	SearchCount       int64
	SearchErrors      int64
	SearchShards      int64
	SearchShardErrors int64
	SearchAvgNanos    int64
	CloseCount        int64
	CloseErrors       int64
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		OpenCount:         b.OpenCount.Load(),
		OpenErrors:        b.OpenErrors.Load(),
		OpenAvgNanos:      avg(b.OpenTotalNanos.Load(), b.OpenCount.Load()),
		SearchCount:       b.SearchCount.Load(),
		SearchErrors:      b.SearchErrors.Load(),
		SearchShards:      b.SearchShards.Load(),
		SearchShardErrors: b.SearchShardErrors.Load(),
		SearchAvgNanos:    avg(b.SearchTotalNanos.Load(), b.SearchCount.Load()),
		CloseCount:        b.CloseCount.Load(),
		CloseErrors:       b.CloseErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}
