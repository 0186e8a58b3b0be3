package session

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/wabot/core/logger"
	"github.com/m3rciful/wabot/core/whatsapp"
)

// KeyFunc derives the session key of an update. An empty key skips the store.
type KeyFunc func(c *whatsapp.Context) string

// Option configures Middleware.
type Option func(*options)

type options struct {
	key    KeyFunc
	locker *KeyedMutex
}

// ChatKey keys sessions by chat id.
func ChatKey(c *whatsapp.Context) string { return c.ChatID() }

// SenderKey keys sessions by chat id and sender id, giving every group member their own session.
func SenderKey(c *whatsapp.Context) string {
	chat := c.ChatID()
	if chat == "" {
		return ""
	}
	sender := c.SenderID()
	if sender == "" || sender == chat {
		return chat
	}
	return chat + ":" + sender
}

// KeyBySender switches the key to SenderKey when on is true.
func KeyBySender(on bool) Option {
	return func(o *options) {
		if on {
			o.key = SenderKey
		}
	}
}

// WithKeyFunc installs a custom key derivation.
func WithKeyFunc(fn KeyFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.key = fn
		}
	}
}

// WithLocker shares a KeyedMutex between several session middlewares.
func WithLocker(l *KeyedMutex) Option {
	return func(o *options) {
		if l != nil {
			o.locker = l
		}
	}
}

// Middleware loads the session before the rest of the pipeline and writes it
// back afterwards. Updates for the same key run one at a time so a
// read-modify-write cycle is never interleaved. The session is saved even
// when the handler fails; an emptied session is deleted.
func Middleware(store Store, opts ...Option) whatsapp.MiddlewareFunc {
	o := options{key: ChatKey, locker: NewKeyedMutex()}
	for _, opt := range opts {
		opt(&o)
	}
	return func(next whatsapp.HandlerFunc) whatsapp.HandlerFunc {
		return func(c *whatsapp.Context) error {
			key := o.key(c)
			if key == "" || store == nil {
				return next(c)
			}
			unlock := o.locker.Lock(key)
			defer unlock()

			ctx := c.Context()
			data, err := store.Get(ctx, key)
			if err != nil {
				logger.Error(ctx, logger.CompStore, "session.load",
					slog.String("status", "fail"),
					slog.String("key", key),
					slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
				)
				return fmt.Errorf("session: load: %w", err)
			}
			if data == nil {
				data = map[string]any{}
			}
			c.Session = whatsapp.Session(data)

			handleErr := next(c)

			var saveErr error
			if len(c.Session) == 0 {
				saveErr = store.Delete(ctx, key)
			} else {
				saveErr = store.Set(ctx, key, c.Session)
			}
			if saveErr != nil {
				logger.Error(ctx, logger.CompStore, "session.save",
					slog.String("status", "fail"),
					slog.String("key", key),
					slog.String("err", logger.SanitizeLimit(saveErr.Error(), 256)),
				)
				saveErr = fmt.Errorf("session: save: %w", saveErr)
			}
			return errors.Join(handleErr, saveErr)
		}
	}
}
