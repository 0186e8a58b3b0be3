package whatsapp

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/wabot/core/logger"
	"github.com/m3rciful/wabot/core/whatsapp/api"
)

var (
	// ErrNoSender is wrapped by SendError when the Context has no outbound sender.
	ErrNoSender = errors.New("whatsapp: no sender configured")
	// ErrNoChat is wrapped by SendError when the update has no chat to reply to.
	ErrNoChat = errors.New("whatsapp: update has no chat id")
)

// SendError reports a failed outbound call made by a reply helper.
type SendError struct {
	Kind   api.PayloadKind
	ChatID string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("whatsapp: send %s to %s: %v", e.Kind, e.ChatID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Code names the failure for handler summaries.
func (e *SendError) Code() string {
	var apiErr *api.Error
	if errors.As(e.Err, &apiErr) {
		return apiErr.Code()
	}
	return "SEND_FAILED"
}

// ReplyOption adjusts an outbound payload.
type ReplyOption func(c *Context, p *api.Payload)

// Quote replies to the message with the given id.
func Quote(id string) ReplyOption {
	return func(_ *Context, p *api.Payload) { p.QuotedMessageID = id }
}

// QuoteCurrent replies to the message being handled.
func QuoteCurrent() ReplyOption {
	return func(c *Context, p *api.Payload) { p.QuotedMessageID = c.msg.ID }
}

// LinkPreview toggles the link preview of a text reply.
func LinkPreview(on bool) ReplyOption {
	return func(_ *Context, p *api.Payload) { p.LinkPreview = &on }
}

// Caption sets the caption of a file reply.
func Caption(text string) ReplyOption {
	return func(_ *Context, p *api.Payload) { p.Caption = text }
}

// FileName overrides the file name of a file reply.
func FileName(name string) ReplyOption {
	return func(_ *Context, p *api.Payload) {
		if strings.TrimSpace(name) != "" {
			p.FileName = name
		}
	}
}

// Send delivers p to the current chat and returns the provider acknowledgment.
// Failures are returned as *SendError.
func (c *Context) Send(p api.Payload, opts ...ReplyOption) (api.SendResult, error) {
	for _, opt := range opts {
		if opt != nil {
			opt(c, &p)
		}
	}
	chatID := c.ChatID()
	if chatID == "" {
		return api.SendResult{}, &SendError{Kind: p.Kind, Err: ErrNoChat}
	}
	if c.sender == nil {
		return api.SendResult{}, &SendError{Kind: p.Kind, ChatID: chatID, Err: ErrNoSender}
	}
	res, err := c.sender.Send(c.ctx, chatID, p)
	if err != nil {
		logger.Warn(c.ctx, logger.CompWA, "send.fail",
			slog.String("status", "fail"),
			slog.String("kind", string(p.Kind)),
			slog.String("error_kind", api.Classify(err)),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return api.SendResult{}, &SendError{Kind: p.Kind, ChatID: chatID, Err: err}
	}
	return res, nil
}

// Reply sends a text message to the current chat.
func (c *Context) Reply(text string, opts ...ReplyOption) error {
	_, err := c.Send(api.Payload{Kind: api.PayloadText, Text: text}, opts...)
	return err
}

// ReplyWithPhoto sends an image by URL.
func (c *Context) ReplyWithPhoto(url string, opts ...ReplyOption) error {
	return c.replyFile(url, "photo.jpg", opts)
}

// ReplyWithDocument sends a document by URL.
func (c *Context) ReplyWithDocument(url string, opts ...ReplyOption) error {
	return c.replyFile(url, "document", opts)
}

// ReplyWithAudio sends an audio file by URL.
func (c *Context) ReplyWithAudio(url string, opts ...ReplyOption) error {
	return c.replyFile(url, "audio.mp3", opts)
}

// ReplyWithVideo sends a video by URL.
func (c *Context) ReplyWithVideo(url string, opts ...ReplyOption) error {
	return c.replyFile(url, "video.mp4", opts)
}

func (c *Context) replyFile(url, defaultName string, opts []ReplyOption) error {
	_, err := c.Send(api.Payload{Kind: api.PayloadFile, FileURL: url, FileName: defaultName}, opts...)
	return err
}

// ReplyWithLocation sends a location pin. An empty name defaults to "Location".
func (c *Context) ReplyWithLocation(lat, lon float64, name, address string, opts ...ReplyOption) error {
	if strings.TrimSpace(name) == "" {
		name = "Location"
	}
	_, err := c.Send(api.Payload{
		Kind:         api.PayloadLocation,
		Latitude:     lat,
		Longitude:    lon,
		LocationName: name,
		Address:      address,
	}, opts...)
	return err
}

// ReplyWithContact shares a contact card.
func (c *Context) ReplyWithContact(card api.ContactCard, opts ...ReplyOption) error {
	_, err := c.Send(api.Payload{Kind: api.PayloadContact, Contact: &card}, opts...)
	return err
}

// DeleteMessage removes a message from the current chat. The sender must implement api.Deleter.
func (c *Context) DeleteMessage(idMessage string) error {
	chatID := c.ChatID()
	if chatID == "" {
		return &SendError{Kind: "delete", Err: ErrNoChat}
	}
	d, ok := unwrapDeleter(c.sender)
	if !ok {
		return &SendError{Kind: "delete", ChatID: chatID, Err: ErrNoSender}
	}
	if err := d.DeleteMessage(c.ctx, chatID, idMessage); err != nil {
		return &SendError{Kind: "delete", ChatID: chatID, Err: err}
	}
	return nil
}

// Unwrapper is implemented by senders that decorate another sender.
type Unwrapper interface {
	Unwrap() api.Sender
}

func unwrapDeleter(s api.Sender) (api.Deleter, bool) {
	for s != nil {
		if d, ok := s.(api.Deleter); ok {
			return d, true
		}
		u, ok := s.(Unwrapper)
		if !ok {
			return nil, false
		}
		s = u.Unwrap()
	}
	return nil, false
}
