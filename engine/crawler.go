// Package engine wires the scheduling pipeline together: admission and
// duplicate checks, per-key rate limiting, request execution, and response
// normalization with retries.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/admariner/crawler/collect"
	"github.com/admariner/crawler/dedup"
	"github.com/admariner/crawler/limiter"
	"github.com/admariner/crawler/proxy"
)

// ErrDuplicate is returned by Do when the dedup store has already seen the
// request. Callback-style submissions drop duplicates silently instead.
var ErrDuplicate = errors.New("engine: request dropped as duplicate")

// Crawler schedules outbound requests: it decides when and in what order
// they run, enforces per-key concurrency and rate limits, and normalizes
// responses once they complete. Network I/O, document parsing and duplicate
// detection are collaborators supplied through options.
type Crawler struct {
	cluster  *limiter.Cluster
	uaRot    proxy.Rotator
	proxyRot proxy.Rotator
	drainCh  chan struct{}
	options
}

func NewCrawler(opts ...Option) *Crawler {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	c := &Crawler{
		drainCh: make(chan struct{}, 1),
	}
	c.options = options
	if c.fetcher == nil {
		c.fetcher = &collect.HTTPFetch{Logger: c.logger}
	}
	if c.parser == nil {
		c.parser = collect.HTMLParser{}
	}
	if c.store == nil && c.skipDuplicates {
		c.store = dedup.NewInMemory()
	}
	c.cluster = limiter.NewCluster(
		limiter.WithPolicy(c.policy),
		limiter.WithClusterLogger(c.logger),
		limiter.WithLimiterDefaults(
			limiter.WithLogger(c.logger),
			limiter.WithMaxConnections(c.maxConnections),
			limiter.WithRateLimit(c.rateLimit),
			limiter.WithPriorityLevels(c.priorityLevels),
			limiter.WithMaxQueueLen(c.maxQueueLen),
		),
		limiter.WithDrainFunc(c.drained),
		limiter.WithReleaseFunc(c.released),
	)
	if c.store != nil {
		// store setup runs in the background; a failed init only costs
		// duplicate detection, never the scheduler
		go func() {
			if err := c.store.Init(context.Background()); err != nil {
				c.logger.Warn("dedup store init failed, duplicate checks fail open", zap.Error(err))
			}
		}()
	}

	return c
}

// Add admits inputs in callback style. Each input must be one of the
// admitted shapes: a URL string, a JSON-serialized form, or a
// *collect.Request. Admission stops at the first synchronous error; inputs
// admitted before it stay admitted.
func (c *Crawler) Add(inputs ...any) error {
	return c.AddContext(context.Background(), inputs...)
}

// AddContext is Add with a caller context that is passed through to the
// dedup check and the transport.
func (c *Crawler) AddContext(ctx context.Context, inputs ...any) error {
	for _, input := range inputs {
		req, err := collect.NewRequest(input, c.defaults())
		if err != nil {
			return err
		}
		req.SetContext(ctx)
		if _, err := c.schedule(ctx, req); err != nil {
			return err
		}
	}

	return nil
}

// Do is the future-style entry point: it admits one input and blocks until
// the outcome is known. The slot is released before Do returns; any
// Callback set on the input is replaced.
func (c *Crawler) Do(ctx context.Context, input any) (*collect.Response, error) {
	req, err := collect.NewRequest(input, c.defaults())
	if err != nil {
		return nil, err
	}
	req.SetContext(ctx)
	type outcome struct {
		resp *collect.Response
		err  error
	}
	ch := make(chan outcome, 1)
	req.Callback = func(err error, resp *collect.Response, release func()) {
		release()
		ch <- outcome{resp: resp, err: err}
	}
	admitted, err := c.schedule(ctx, req)
	if err != nil {
		return nil, err
	}
	if !admitted {
		return nil, ErrDuplicate
	}
	select {
	case out := <-ch:
		return out.resp, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetRateLimit changes the dispatch interval of the limiter selected by key
// at runtime.
func (c *Crawler) SetRateLimit(key string, interval time.Duration) {
	c.cluster.SetRateLimit(key, interval)
}

// Empty reports whether no request is active or queued anywhere.
func (c *Crawler) Empty() bool {
	return c.cluster.Empty()
}

// Wait blocks until the crawler is empty. Intended for a single waiter.
func (c *Crawler) Wait() {
	for !c.cluster.Empty() {
		<-c.drainCh
	}
}

// schedule runs admission for a normalized request: the duplicate check
// (fail-open), the notifications, then submission to the cluster. The bool
// reports whether the request was admitted; a duplicate is dropped silently.
func (c *Crawler) schedule(ctx context.Context, req *collect.Request) (bool, error) {
	if c.skipDuplicates && c.store != nil && req.HTML == "" {
		seen, err := c.store.Seen(ctx, req.Fingerprint(c.dedupFields...))
		switch {
		case err != nil:
			c.logger.Warn("duplicate check failed, treating as unseen",
				zap.String("id", req.ID),
				zap.String("url", req.URL),
				zap.Error(err),
			)
		case seen:
			c.logger.Debug("duplicate request dropped",
				zap.String("id", req.ID),
				zap.String("url", req.URL),
			)
			return false, nil
		}
	}
	c.events.schedule(req)
	if key := req.LimiterKey; key != "" && key != limiter.DefaultKey && c.policy != limiter.PolicyShared {
		c.events.limiterChange(req, key)
	}
	err := c.cluster.Submit(req.LimiterKey, req.Priority, func(done func(), _ string) {
		c.execute(req, done)
	})
	if err != nil {
		return false, fmt.Errorf("submit request %s: %w", req.ID, err)
	}

	return true, nil
}

func (c *Crawler) defaults() collect.Defaults {
	return collect.Defaults{
		Header:        c.headers,
		Priority:      c.defaultPriority,
		Retries:       c.retries,
		RetryInterval: c.retryInterval,
		Timeout:       c.timeout,
		Proxies:       c.proxies,
		UserAgents:    c.userAgents,
		Encoding:      c.encoding,
		ForceDecode:   c.forceDecode,
		JSON:          c.parseJSON,
		ParseDocument: c.parseDocument,
	}
}

func (c *Crawler) released() {
	if c.events.OnRelease != nil {
		c.events.OnRelease()
	}
}

func (c *Crawler) drained() {
	select {
	case c.drainCh <- struct{}{}:
	default:
	}
	if c.events.OnDrain != nil {
		c.events.OnDrain()
	}
}
