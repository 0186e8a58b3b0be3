package message

// Type is the normalized message kind taken from messageData.typeMessage.
type Type string

const (
	TypeText         Type = "textMessage"
	TypeExtendedText Type = "extendedTextMessage"
	TypeQuoted       Type = "quotedMessage"
	TypeImage        Type = "imageMessage"
	TypeVideo        Type = "videoMessage"
	TypeAudio        Type = "audioMessage"
	TypeDocument     Type = "documentMessage"
	TypeFile         Type = "fileMessage"
	TypeLocation     Type = "locationMessage"
	TypeContact      Type = "contactMessage"
	TypeUnknown      Type = "unknown"
)

// aliases folds provider kinds that behave like one of the normalized kinds.
var aliases = map[string]Type{
	"pttMessage":     TypeAudio,
	"stickerMessage": TypeImage,
}

// ParseType maps a provider typeMessage value onto the closed set of kinds.
func ParseType(raw string) Type {
	switch t := Type(raw); t {
	case TypeText, TypeExtendedText, TypeQuoted,
		TypeImage, TypeVideo, TypeAudio, TypeDocument, TypeFile,
		TypeLocation, TypeContact:
		return t
	}
	if t, ok := aliases[raw]; ok {
		return t
	}
	return TypeUnknown
}

// IsMedia reports whether t carries a file block.
func (t Type) IsMedia() bool {
	switch t {
	case TypeImage, TypeVideo, TypeAudio, TypeDocument, TypeFile:
		return true
	}
	return false
}

// Webhook is the typeWebhook discriminator of a notification body.
type Webhook string

const (
	WebhookIncomingMessage    Webhook = "incomingMessageReceived"
	WebhookOutgoingMessage    Webhook = "outgoingMessageReceived"
	WebhookOutgoingAPIMessage Webhook = "outgoingAPIMessageReceived"
	WebhookOutgoingStatus     Webhook = "outgoingMessageStatus"
	WebhookStateInstance      Webhook = "stateInstanceChanged"
)

// Kind groups webhooks into the update kinds handlers and rate limiting care about.
type Kind string

const (
	KindMessage Kind = "message"
	KindStatus  Kind = "status"
	KindState   Kind = "state"
	KindUnknown Kind = "unknown"
)

// Kind classifies the webhook discriminator.
func (w Webhook) Kind() Kind {
	switch w {
	case WebhookIncomingMessage, WebhookOutgoingMessage, WebhookOutgoingAPIMessage:
		return KindMessage
	case WebhookOutgoingStatus:
		return KindStatus
	case WebhookStateInstance:
		return KindState
	}
	return KindUnknown
}
