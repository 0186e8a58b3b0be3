package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/wabot/core/logger"
	"github.com/m3rciful/wabot/core/whatsapp"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval time.Duration
	// Exclude holds update kinds (message, status, state) that bypass the limit.
	Exclude   map[string]struct{}
	OnLimited whatsapp.HandlerFunc
}

// RateLimit enforces a minimum interval between updates from the same sender.
// Limited updates are dropped after OnLimited runs.
func RateLimit(opts RateLimitOptions) whatsapp.MiddlewareFunc {
	var (
		lastSeen   = make(map[string]time.Time)
		lastSeenMu sync.Mutex
	)
	return func(next whatsapp.HandlerFunc) whatsapp.HandlerFunc {
		return func(c *whatsapp.Context) error {
			sender := c.SenderID()
			if sender == "" || opts.Interval <= 0 {
				return next(c)
			}
			if _, skip := opts.Exclude[string(c.Kind())]; skip {
				return next(c)
			}

			now := time.Now()
			lastSeenMu.Lock()
			if last, ok := lastSeen[sender]; ok && now.Sub(last) < opts.Interval {
				lastSeenMu.Unlock()
				logger.Warn(c.Context(), logger.CompWA, "rate_limit",
					slog.String("status", "rate_limited"),
					slog.String("chat_id", c.ChatID()),
					slog.String("sender_id", sender),
				)
				if opts.OnLimited != nil {
					_ = opts.OnLimited(c)
				}
				return nil
			}
			lastSeen[sender] = now
			for id, ts := range lastSeen {
				if now.Sub(ts) > 10*opts.Interval {
					delete(lastSeen, id)
				}
			}
			lastSeenMu.Unlock()
			return next(c)
		}
	}
}
