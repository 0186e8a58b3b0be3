package whatsapp

import (
	"context"

	"github.com/m3rciful/wabot/core/whatsapp/api"
	"github.com/m3rciful/wabot/core/whatsapp/message"
)

// HandlerFunc handles one update.
type HandlerFunc func(c *Context) error

// MiddlewareFunc wraps the remainder of a chain.
type MiddlewareFunc func(next HandlerFunc) HandlerFunc

// Session is the per-conversation state visible to handlers.
// It is loaded before and saved after the pipeline by the session middleware.
type Session map[string]any

// KeyMessages is the Context slot counting messages sent during an update.
const KeyMessages = "messages"

// Context is the per-update facade handed to middleware and handlers.
// It is owned by a single pipeline invocation and is not safe for concurrent use.
type Context struct {
	ctx     context.Context
	update  message.RawUpdate
	msg     message.Message
	sender  api.Sender
	values  map[string]any
	match   []string
	command *parsedCommand

	// fallback is the continuation run when no route of the current composer matches.
	fallback HandlerFunc

	// Session is never nil while the pipeline runs.
	Session Session
}

type parsedCommand struct {
	name string
	args string
	ok   bool
}

// NewContext builds a Context for u. A nil sender makes every reply fail with ErrNoSender.
func NewContext(ctx context.Context, u message.RawUpdate, sender api.Sender) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Context{
		ctx:     ctx,
		update:  u,
		msg:     message.Normalize(u),
		sender:  sender,
		values:  make(map[string]any),
		Session: make(Session),
	}
}

// Context returns the request-scoped context carrying log correlation values.
func (c *Context) Context() context.Context { return c.ctx }

// SetContext replaces the request-scoped context.
func (c *Context) SetContext(ctx context.Context) {
	if ctx != nil {
		c.ctx = ctx
	}
}

// Update returns the raw notification.
func (c *Context) Update() message.RawUpdate { return c.update }

// Message returns the normalized message.
func (c *Context) Message() *message.Message { return &c.msg }

// Kind reports the update kind (message, status, state).
func (c *Context) Kind() message.Kind { return c.update.TypeWebhook.Kind() }

// ChatID returns the conversation id, empty for updates without a chat.
func (c *Context) ChatID() string {
	if c.update.Sender == nil {
		return ""
	}
	return c.update.Sender.ChatID
}

// SenderID returns the author id of the message.
func (c *Context) SenderID() string {
	if c.update.Sender == nil {
		return ""
	}
	if c.update.Sender.Sender != "" {
		return c.update.Sender.Sender
	}
	return c.update.Sender.ChatID
}

// SenderName returns the display name of the author if the provider sent one.
func (c *Context) SenderName() string {
	if c.update.Sender == nil {
		return ""
	}
	return c.update.Sender.SenderName
}

// ChatType reports whether the chat is private or a group.
func (c *Context) ChatType() message.ChatType { return message.ChatTypeOf(c.ChatID()) }

// Text returns the resolved message text or an empty string.
func (c *Context) Text() string { return c.msg.TextOr("") }

// Command returns the lower-cased command name and its arguments when the text starts with "/".
func (c *Context) Command() (name, args string, ok bool) {
	if c.command == nil {
		n, a, isCmd := message.ParseCommand(c.Text())
		c.command = &parsedCommand{name: n, args: a, ok: isCmd}
	}
	return c.command.name, c.command.args, c.command.ok
}

// Args returns the command arguments, or an empty string.
func (c *Context) Args() string {
	_, args, _ := c.Command()
	return args
}

// Match returns the submatches of the Hears pattern that selected the handler.
func (c *Context) Match() []string { return c.match }

// Get returns a value stored with Set.
func (c *Context) Get(key string) any { return c.values[key] }

// Set stores a per-update value.
func (c *Context) Set(key string, v any) { c.values[key] = v }

// Sender returns the outbound sender used by reply helpers.
func (c *Context) Sender() api.Sender { return c.sender }

// SetSender replaces the outbound sender, e.g. with an instrumented wrapper.
func (c *Context) SetSender(s api.Sender) { c.sender = s }

// MessagesSent returns the number of messages counted during this update.
func MessagesSent(c *Context) int {
	if c == nil {
		return 0
	}
	n, _ := c.Get(KeyMessages).(int)
	return n
}
