package engine

import "github.com/admariner/crawler/collect"

// Events carries optional notification hooks. Nil hooks are skipped. Hooks
// run synchronously on scheduler goroutines and must not block.
type Events struct {
	// OnSchedule fires when a request passes admission, before it is
	// queued.
	OnSchedule func(req *collect.Request)
	// OnRequest fires immediately before the transport call.
	OnRequest func(req *collect.Request)
	// OnLimiterChange fires when a request is admitted under a
	// non-default limiter key.
	OnLimiterChange func(req *collect.Request, key string)
	// OnRelease fires on every slot release.
	OnRelease func()
	// OnDrain fires once per transition of the whole cluster from having
	// active or queued work to having none.
	OnDrain func()
}

func (e Events) schedule(req *collect.Request) {
	if e.OnSchedule != nil {
		e.OnSchedule(req)
	}
}

func (e Events) request(req *collect.Request) {
	if e.OnRequest != nil {
		e.OnRequest(req)
	}
}

func (e Events) limiterChange(req *collect.Request, key string) {
	if e.OnLimiterChange != nil {
		e.OnLimiterChange(req, key)
	}
}
