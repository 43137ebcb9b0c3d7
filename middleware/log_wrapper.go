package middleware

import (
	"go.uber.org/zap"

	"github.com/admariner/crawler/collect"
	"github.com/admariner/crawler/engine"
)

// LogEvents wraps an event set so every notification is logged before the
// wrapped hook runs.
func LogEvents(log *zap.Logger, next engine.Events) engine.Events {
	return engine.Events{
		OnSchedule: func(req *collect.Request) {
			log.Info("schedule",
				zap.String("id", req.ID),
				zap.String("url", req.URL),
				zap.Int("priority", req.Priority),
			)
			if next.OnSchedule != nil {
				next.OnSchedule(req)
			}
		},
		OnRequest: func(req *collect.Request) {
			log.Info("request",
				zap.String("id", req.ID),
				zap.String("method", req.Method),
				zap.String("url", req.URL),
				zap.String("proxy", req.Proxy),
			)
			if next.OnRequest != nil {
				next.OnRequest(req)
			}
		},
		OnLimiterChange: func(req *collect.Request, key string) {
			log.Info("limiter change",
				zap.String("id", req.ID),
				zap.String("key", key),
			)
			if next.OnLimiterChange != nil {
				next.OnLimiterChange(req, key)
			}
		},
		OnRelease: func() {
			log.Debug("slot released")
			if next.OnRelease != nil {
				next.OnRelease()
			}
		},
		OnDrain: func() {
			log.Info("drain")
			if next.OnDrain != nil {
				next.OnDrain()
			}
		},
	}
}
