package message

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChatType distinguishes one-to-one chats from groups.
type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
)

// ChatTypeOf derives the chat type from a WhatsApp chat id.
func ChatTypeOf(chatID string) ChatType {
	if strings.HasSuffix(chatID, "@c.us") {
		return ChatPrivate
	}
	return ChatGroup
}

// ParseCommand splits "/Name rest of text" into ("name", "rest of text").
// ok is false when text is not a command.
func ParseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if len(text) < 2 || text[0] != '/' {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head = strings.TrimSpace(head)
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// Synthetic builds an incoming text update for chatID, used to re-run the
// pipeline without a provider notification.
func Synthetic(chatID, senderID, text string) RawUpdate {
	if senderID == "" {
		senderID = chatID
	}
	return RawUpdate{
		TypeWebhook: WebhookIncomingMessage,
		IDMessage:   "synthetic-" + uuid.NewString(),
		Timestamp:   time.Now().Unix(),
		Sender:      &SenderData{ChatID: chatID, Sender: senderID},
		Data: &MessageData{
			TypeMessage: string(TypeText),
			Text:        &TextData{TextMessage: &text},
		},
	}
}
