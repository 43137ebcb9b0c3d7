package limiter

import (
	"time"

	"go.uber.org/zap"
)

type options struct {
	maxConnections int
	rateLimit      time.Duration
	priorityLevels int
	maxQueueLen    int
	logger         *zap.Logger
	releaseHook    func()
}

var defaultOptions = options{
	maxConnections: 10,
	priorityLevels: 10,
	logger:         zap.NewNop(),
}

type Option func(opts *options)

func WithLogger(logger *zap.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// WithMaxConnections sets the number of concurrent slots. Ignored in favor
// of 1 when a rate limit is configured.
func WithMaxConnections(n int) Option {
	return func(opts *options) {
		opts.maxConnections = n
	}
}

// WithRateLimit sets the minimum interval between dispatch starts.
// A nonzero interval forces the connection cap to 1.
func WithRateLimit(interval time.Duration) Option {
	return func(opts *options) {
		opts.rateLimit = interval
	}
}

func WithPriorityLevels(levels int) Option {
	return func(opts *options) {
		opts.priorityLevels = levels
	}
}

// WithMaxQueueLen bounds the pending queue. Submit returns ErrQueueFull
// beyond the bound. Zero means unbounded.
func WithMaxQueueLen(n int) Option {
	return func(opts *options) {
		opts.maxQueueLen = n
	}
}

// withReleaseHook registers a callback invoked after every slot release.
// Used by Cluster for idle tracking.
func withReleaseHook(hook func()) Option {
	return func(opts *options) {
		opts.releaseHook = hook
	}
}
