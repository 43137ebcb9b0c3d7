package engine

import (
	"context"
	"fmt"
	"net/url"

	"github.com/admariner/crawler/collect"
)

// execute runs one granted slot: rotation, referer merge, the pre-request
// hook, then the transport call. A request carrying an inline body bypasses
// all of it and goes straight to normalization.
func (c *Crawler) execute(req *collect.Request, done func()) {
	if req.HTML != "" {
		c.finalize(req, collect.NewInlineResponse(req), done)
		return
	}

	// rotation advances in one synchronous step before anything can block,
	// so concurrent dispatches each take a distinct position
	if req.UserAgent == "" {
		req.UserAgent = c.uaRot.Next(req.UserAgents)
	}
	if req.Proxy == "" {
		req.Proxy = c.proxyRot.Next(req.Proxies)
	}
	if req.UserAgent != "" {
		req.Header.Set("User-Agent", req.UserAgent)
	}
	c.mergeReferer(req)

	if req.PreRequest != nil {
		if err := req.PreRequest(req); err != nil {
			c.fail(req, fmt.Errorf("pre-request hook: %w", err), done)
			return
		}
	}

	if !req.SkipRequestEvent {
		c.events.request(req)
	}

	ctx := req.Context()
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	resp, err := c.fetcher.Fetch(ctx, req)
	c.handle(req, resp, err, done)
}

// mergeReferer sets the referer header from the explicit field, or derives
// it from the target's origin when configured.
func (c *Crawler) mergeReferer(req *collect.Request) {
	if req.Referer == "" && c.originReferer {
		if u, err := url.Parse(req.URL); err == nil && u.Host != "" {
			req.Referer = u.Scheme + "://" + u.Host
		}
	}
	if req.Referer != "" {
		req.Header.Set("Referer", req.Referer)
	}
}
