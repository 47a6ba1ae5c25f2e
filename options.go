package pitgo

import "time"

type options struct {
	logger         *Logger
	metrics        MetricsCollector
	poolSize       int
	requestTimeout time.Duration
}

// Option configures Coordinator constructor behavior.
type Option func(*options)

// WithLogger configures structured logging for coordinator operations.
// Pass nil to keep the default noop logger.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// open/search/close operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

// WithWorkerPoolSize sets the number of fan-out workers.
// <= 0 uses runtime.GOMAXPROCS(0).
func WithWorkerPoolSize(n int) Option {
	return func(o *options) {
		o.poolSize = n
	}
}

// WithRequestTimeout bounds every per-node call issued during open, search,
// and close. A node that does not respond within the timeout counts as a
// failed participant for that one request; its context entry is left alone.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}
