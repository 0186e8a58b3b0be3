package middleware

import (
	"context"

	"github.com/m3rciful/wabot/core/whatsapp"
	"github.com/m3rciful/wabot/core/whatsapp/api"
)

// countingSender wraps the Context sender to count delivered messages.
type countingSender struct {
	api.Sender
	c *whatsapp.Context
}

func (s countingSender) Send(ctx context.Context, chatID string, p api.Payload) (api.SendResult, error) {
	res, err := s.Sender.Send(ctx, chatID, p)
	if err == nil {
		s.c.Set(whatsapp.KeyMessages, whatsapp.MessagesSent(s.c)+1)
	}
	return res, err
}

// Unwrap exposes the wrapped sender.
func (s countingSender) Unwrap() api.Sender { return s.Sender }

// Metrics counts the messages sent while handling an update.
// The count is reported in the handler summary line.
func Metrics(next whatsapp.HandlerFunc) whatsapp.HandlerFunc {
	return func(c *whatsapp.Context) error {
		c.Set(whatsapp.KeyMessages, 0)
		if s := c.Sender(); s != nil {
			c.SetSender(countingSender{Sender: s, c: c})
		}
		return next(c)
	}
}
