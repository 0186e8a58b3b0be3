package middleware

import (
	"strings"
	"time"

	coreconfig "github.com/m3rciful/wabot/core/config"
	"github.com/m3rciful/wabot/core/whatsapp"
)

// DefaultMiddlewares builds the shared middleware chain for bots:
// recover, rate limit (when configured), logger and metrics.
func DefaultMiddlewares(cfg *coreconfig.Config, onLimited whatsapp.HandlerFunc) []whatsapp.Middleware {
	mws := []whatsapp.Middleware{
		{Name: "recover", Use: Recover},
	}

	if cfg != nil {
		interval := time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond
		if interval > 0 {
			ex := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
			for _, t := range cfg.RateLimit.ExcludeUpdates {
				ex[strings.ToLower(t)] = struct{}{}
			}
			mws = append(mws, whatsapp.Middleware{
				Name: "rate_limit",
				Use:  RateLimit(RateLimitOptions{Interval: interval, Exclude: ex, OnLimited: onLimited}),
			})
		}
	}

	mws = append(mws,
		whatsapp.Middleware{Name: "logger", Use: Logger},
		whatsapp.Middleware{Name: "metrics", Use: Metrics},
	)
	return mws
}
