package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/m3rciful/wabot/core/logger"
	"github.com/m3rciful/wabot/core/whatsapp/api"
	"github.com/m3rciful/wabot/core/whatsapp/message"
)

// ErrorHandler receives every error that escapes the pipeline of an update.
// Its return value becomes the result of HandleUpdate.
type ErrorHandler func(err error, c *Context) error

// Bot is the front controller: it owns the root Composer and turns raw
// updates into Contexts that run through it.
type Bot struct {
	*Composer

	sender api.Sender

	mu    sync.RWMutex
	outer []MiddlewareFunc
	run   HandlerFunc
	catch ErrorHandler
}

// NewBot returns a Bot replying through sender.
func NewBot(sender api.Sender) *Bot {
	b := &Bot{Composer: NewComposer(), sender: sender}
	b.rebuildOuter()
	return b
}

// Sender returns the outbound sender handed to every Context.
func (b *Bot) Sender() api.Sender { return b.sender }

// SetSender replaces the outbound sender.
func (b *Bot) SetSender(s api.Sender) { b.sender = s }

// Around registers middlewares that wrap the whole pipeline, including
// middlewares added with Use. The first registered is the outermost.
func (b *Bot) Around(mws ...MiddlewareFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, mw := range mws {
		if mw != nil {
			b.outer = append(b.outer, mw)
		}
	}
	b.rebuildOuter()
}

func (b *Bot) rebuildOuter() {
	h := HandlerFunc(func(c *Context) error {
		return b.Composer.Run(c, unhandled)
	})
	for i := len(b.outer) - 1; i >= 0; i-- {
		h = b.outer[i](h)
	}
	b.run = h
}

// Catch installs the error handler.
func (b *Bot) Catch(h ErrorHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.catch = h
}

// HandleUpdate runs u through the pipeline. Errors go to the Catch handler;
// without one they are logged and returned.
func (b *Bot) HandleUpdate(ctx context.Context, u message.RawUpdate) error {
	return b.Handle(b.NewContext(ctx, u))
}

// NewContext builds the Context for u with the Bot sender and update metadata.
func (b *Bot) NewContext(ctx context.Context, u message.RawUpdate) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	c := NewContext(ctx, u, b.sender)
	c.ctx = logger.WithUpdateMeta(c.ctx, u.ReceiptID, c.ChatID(), c.SenderID())
	return c
}

// Handle runs an already built Context through the pipeline. A panic in a
// handler reaches the Catch handler like any other error.
func (b *Bot) Handle(c *Context) (err error) {
	b.mu.RLock()
	run, catch := b.run, b.catch
	b.mu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			err = recovered(c, r)
		}
	}()

	err = runGuarded(c, run)
	if err == nil {
		return nil
	}
	if catch != nil {
		return catch(err, c)
	}
	logger.Error(c.ctx, logger.CompWA, "update.failed",
		slog.String("status", "fail"),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		slog.String("err_code", deriveErrorCode(err)),
	)
	return err
}

func runGuarded(c *Context, run HandlerFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(c, r)
		}
	}()
	return run(c)
}

func recovered(c *Context, r any) error {
	logger.Error(c.ctx, logger.CompWA, "panic.recovered",
		slog.String("err", fmt.Sprint(r)),
		slog.String("stack", string(debug.Stack())),
	)
	return fmt.Errorf("whatsapp: panic while handling update: %v", r)
}

func unhandled(c *Context) error {
	if logger.ShouldSampleDebug() {
		logger.Debug(c.ctx, logger.CompWA, "update.unhandled",
			slog.String("status", "skip"),
			slog.String("kind", string(c.Kind())),
			slog.String("type", string(c.msg.Type)),
		)
	}
	return nil
}
