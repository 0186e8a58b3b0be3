package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/wabot/core/logger"
	"github.com/m3rciful/wabot/core/whatsapp"
	"github.com/m3rciful/wabot/core/whatsapp/message"
)

// recentUpdate keeps a short-lived set of logged message ids to avoid double logging.
// Expired ids are swept once per keepFor or when the set reaches recentMax.
var (
	recentMu     sync.Mutex
	recentUpdate = make(map[string]time.Time)
	lastSweep    time.Time
	keepFor      = 10 * time.Second
	recentMax    = 4096
	clock        = time.Now
)

func alreadyLogged(id string) bool {
	if id == "" {
		return false
	}
	now := clock()
	recentMu.Lock()
	defer recentMu.Unlock()
	if len(recentUpdate) >= recentMax || now.Sub(lastSweep) > keepFor {
		sweepRecent(now)
	}
	if ts, ok := recentUpdate[id]; ok && now.Sub(ts) <= keepFor {
		return true
	}
	recentUpdate[id] = now
	return false
}

func sweepRecent(now time.Time) {
	lastSweep = now
	for k, ts := range recentUpdate {
		if now.Sub(ts) > keepFor {
			delete(recentUpdate, k)
		}
	}
	if len(recentUpdate) >= recentMax {
		clear(recentUpdate)
	}
}

// Logger sets the correlation id, installs the request logger and logs a
// single receipt line per update.
func Logger(next whatsapp.HandlerFunc) whatsapp.HandlerFunc {
	return func(c *whatsapp.Context) error {
		u := c.Update()
		chatID, senderID := c.ChatID(), c.SenderID()

		rid := logger.BuildRID(u.ReceiptID, chatID, senderID)
		c.Set("rid", rid)
		c.Set("update_start", time.Now())

		ctx := logger.WithRID(c.Context(), rid)
		ctx = logger.WithUpdateMeta(ctx, u.ReceiptID, chatID, senderID)
		ctx = logger.WithLogger(ctx, logger.Component(logger.CompWA))
		c.SetContext(ctx)

		if logger.ShouldSampleDebug() && !alreadyLogged(u.IDMessage) {
			m := c.Message()
			attrs := []slog.Attr{
				slog.String("status", "ok"),
				slog.String("rid", rid),
				slog.String("webhook", string(u.TypeWebhook)),
			}
			if u.IDMessage != "" {
				attrs = append(attrs, slog.String("message_id", u.IDMessage))
			}
			if chatID != "" {
				attrs = append(attrs,
					slog.String("chat_id", chatID),
					slog.String("chat_type", string(c.ChatType())),
				)
			}
			if senderID != "" {
				attrs = append(attrs, slog.String("sender_id", senderID))
				if name := c.SenderName(); name != "" {
					attrs = append(attrs, slog.String("sender_name", logger.SanitizeLimit(name, 64)))
				}
			}
			switch {
			case m.Type != "" && c.Kind() == message.KindMessage:
				attrs = append(attrs, slog.String("type", string(m.Type)))
				if t := c.Text(); t != "" {
					attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
				}
			case u.Status != nil:
				attrs = append(attrs, slog.String("delivery", *u.Status))
			case u.StateInstance != nil:
				attrs = append(attrs, slog.String("state", *u.StateInstance))
			}
			logger.Debug(ctx, logger.CompWA, "update.received", attrs...)
		}

		return next(c)
	}
}
