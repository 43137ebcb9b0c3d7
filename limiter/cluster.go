package limiter

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultKey is the limiter key used when a submission names none.
const DefaultKey = "default"

// Policy selects how a Cluster maps keys to limiters.
type Policy int

const (
	// PolicyPerKey gives every key its own limiter, created on first use.
	PolicyPerKey Policy = iota
	// PolicyShared routes every key to one limiter, so all submissions
	// draw from a single slot budget.
	PolicyShared
)

// Cluster is a registry of RateLimiters keyed by an identifier. Limiters are
// created lazily with the cluster's default configuration.
type Cluster struct {
	mu        sync.Mutex
	policy    Policy
	limiters  map[string]*RateLimiter
	defaults  []Option
	logger    *zap.Logger
	onDrain   func()
	onRelease func()
	idle      bool
}

type ClusterOption func(c *Cluster)

func WithPolicy(policy Policy) ClusterOption {
	return func(c *Cluster) {
		c.policy = policy
	}
}

// WithLimiterDefaults sets the options applied to every lazily created
// limiter.
func WithLimiterDefaults(opts ...Option) ClusterOption {
	return func(c *Cluster) {
		c.defaults = opts
	}
}

func WithClusterLogger(logger *zap.Logger) ClusterOption {
	return func(c *Cluster) {
		c.logger = logger
	}
}

// WithDrainFunc registers a callback fired once per transition from having
// active or queued work to having none.
func WithDrainFunc(fn func()) ClusterOption {
	return func(c *Cluster) {
		c.onDrain = fn
	}
}

// WithReleaseFunc registers a callback fired on every slot release in the
// cluster.
func WithReleaseFunc(fn func()) ClusterOption {
	return func(c *Cluster) {
		c.onRelease = fn
	}
}

func NewCluster(opts ...ClusterOption) *Cluster {
	c := &Cluster{
		limiters: map[string]*RateLimiter{},
		logger:   zap.NewNop(),
		idle:     true,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get returns the limiter for key, creating it with the cluster defaults if
// absent. An empty key resolves to DefaultKey; under PolicyShared every key
// resolves to the one shared limiter.
func (c *Cluster) Get(key string) *RateLimiter {
	key = c.resolve(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.limiters[key]; ok {
		return l
	}
	opts := []Option{WithLogger(c.logger)}
	opts = append(opts, c.defaults...)
	opts = append(opts, withReleaseHook(c.released))
	l := New(key, opts...)
	c.limiters[key] = l
	c.logger.Debug("limiter created", zap.String("key", key))

	return l
}

// Submit hands task to the limiter selected by key at the given priority.
// The cluster is marked busy before the task can possibly finish, so a
// release never races the idle bookkeeping.
func (c *Cluster) Submit(key string, priority int, task Task) error {
	l := c.Get(key)
	c.mu.Lock()
	c.idle = false
	c.mu.Unlock()
	if err := l.Submit(priority, task); err != nil {
		c.mu.Lock()
		if c.emptyLocked() {
			c.idle = true
		}
		c.mu.Unlock()
		return err
	}

	return nil
}

// SetRateLimit updates the dispatch interval of the limiter selected by key.
func (c *Cluster) SetRateLimit(key string, interval time.Duration) {
	c.Get(key).SetRateLimit(interval)
}

// Empty reports whether every limiter in the cluster is empty.
func (c *Cluster) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.emptyLocked()
}

func (c *Cluster) resolve(key string) string {
	if key == "" || c.policy == PolicyShared {
		return DefaultKey
	}

	return key
}

func (c *Cluster) emptyLocked() bool {
	for _, l := range c.limiters {
		if !l.Empty() {
			return false
		}
	}

	return true
}

// released runs after every slot release: forwards the release notification
// and fires the drain callback when the cluster just went idle.
func (c *Cluster) released() {
	if c.onRelease != nil {
		c.onRelease()
	}
	c.mu.Lock()
	drained := !c.idle && c.emptyLocked()
	if drained {
		c.idle = true
	}
	c.mu.Unlock()
	if drained && c.onDrain != nil {
		c.onDrain()
	}
}
