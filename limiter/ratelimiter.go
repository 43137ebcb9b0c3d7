package limiter

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrQueueFull is returned by Submit when the pending queue is bounded and
// already holds the configured maximum.
var ErrQueueFull = errors.New("limiter: pending queue full")

// Task is one unit of queued work. The limiter runs it on its own goroutine
// once a slot is granted. done must be called when the work is finished to
// hand the slot back; calling it more than once has no further effect.
type Task func(done func(), key string)

// RateLimiter grants a bounded number of concurrent slots and, when a rate
// limit is set, spaces dispatch starts at least one interval apart. Pending
// tasks wait in a priority queue: lowest priority number first, arrival
// order within a level.
type RateLimiter struct {
	mu        sync.Mutex
	key       string
	gate      *rate.Limiter // non-nil iff rateLimit > 0
	gateReady bool          // a matured reservation is waiting to be spent
	waiting   bool          // a gate timer is armed; do not reserve again
	active    int
	queue     *multiQueue
	options
}

func New(key string, opts ...Option) *RateLimiter {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	l := &RateLimiter{
		key:   key,
		queue: newMultiQueue(options.priorityLevels),
	}
	l.options = options
	if l.rateLimit > 0 {
		l.maxConnections = 1
		l.gate = rate.NewLimiter(rate.Every(l.rateLimit), 1)
	}

	return l
}

func (l *RateLimiter) Key() string {
	return l.key
}

// Submit enqueues task at the given priority and dispatches immediately when
// a slot is free and the rate gate is open. Priorities outside the configured
// level range are clamped, not rejected.
func (l *RateLimiter) Submit(priority int, task Task) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if priority < 0 || priority >= l.priorityLevels {
		clamped := priority
		if clamped < 0 {
			clamped = 0
		}
		if clamped >= l.priorityLevels {
			clamped = l.priorityLevels - 1
		}
		l.logger.Warn("priority out of range, clamped",
			zap.String("key", l.key),
			zap.Int("priority", priority),
			zap.Int("clamped", clamped),
		)
		priority = clamped
	}
	if l.maxQueueLen > 0 && l.queue.len() >= l.maxQueueLen {
		return ErrQueueFull
	}
	l.queue.push(priority, task)
	l.dispatch()

	return nil
}

// SetRateLimit changes the minimum dispatch interval at runtime. Slots that
// are already active are not disturbed; only future dispatch decisions use
// the new value. A nonzero interval forces the connection cap to 1.
func (l *RateLimiter) SetRateLimit(interval time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rateLimit = interval
	if interval <= 0 {
		l.gate = nil
		l.gateReady = false
		return
	}
	l.maxConnections = 1
	if l.gate == nil {
		l.gate = rate.NewLimiter(rate.Every(interval), 1)
	} else {
		l.gate.SetLimit(rate.Every(interval))
	}
}

// Empty reports whether the limiter has no active slots and no queued tasks.
func (l *RateLimiter) Empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.active == 0 && l.queue.len() == 0
}

// dispatch pops and starts queued tasks while a slot is free and the gate
// allows it. When the gate demands a wait, a timer retries once the
// reservation matures. Caller must hold l.mu.
func (l *RateLimiter) dispatch() {
	for l.active < l.maxConnections && l.queue.len() > 0 {
		if l.gate != nil && !l.gateReady {
			if l.waiting {
				return
			}
			if delay := l.gate.Reserve().Delay(); delay > 0 {
				l.waiting = true
				time.AfterFunc(delay, l.gateMatured)
				return
			}
		}
		l.gateReady = false
		task := l.queue.pop()
		l.active++
		go task(l.release(), l.key)
	}
}

func (l *RateLimiter) gateMatured() {
	l.mu.Lock()
	l.waiting = false
	l.gateReady = true
	l.dispatch()
	l.mu.Unlock()
}

// release builds the one-shot done callback for a granted slot. The sync.Once
// keeps a double call from double-incrementing the free slot count.
func (l *RateLimiter) release() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.active--
			l.dispatch()
			hook := l.releaseHook
			l.mu.Unlock()
			if hook != nil {
				hook()
			}
		})
	}
}
