package api

import (
	"context"

	"github.com/m3rciful/wabot/core/whatsapp/message"
)

// PayloadKind selects the provider send method.
type PayloadKind string

const (
	PayloadText     PayloadKind = "text"
	PayloadFile     PayloadKind = "file"
	PayloadLocation PayloadKind = "location"
	PayloadContact  PayloadKind = "contact"
)

// ContactCard is the contact shared by a contact payload.
type ContactCard struct {
	PhoneContact int64  `json:"phoneContact"`
	FirstName    string `json:"firstName,omitempty"`
	MiddleName   string `json:"middleName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	Company      string `json:"company,omitempty"`
}

// Payload is one outbound message. Only the fields of its Kind are used.
type Payload struct {
	Kind PayloadKind

	Text        string
	LinkPreview *bool

	FileURL  string
	FileName string
	Caption  string

	Latitude     float64
	Longitude    float64
	LocationName string
	Address      string

	Contact *ContactCard

	QuotedMessageID string
}

// SendResult acknowledges a delivered send request.
type SendResult struct {
	IDMessage string `json:"idMessage"`
}

// Sender delivers outbound payloads.
type Sender interface {
	Send(ctx context.Context, chatID string, p Payload) (SendResult, error)
}

// Deleter removes a previously sent message.
type Deleter interface {
	DeleteMessage(ctx context.Context, chatID, idMessage string) error
}

// Notification is one queued inbound notification.
type Notification struct {
	ReceiptID int64
	Body      message.RawUpdate
}

// Receiver pulls notifications from the instance queue.
type Receiver interface {
	// ReceiveNotification returns nil, nil when the queue is empty.
	ReceiveNotification(ctx context.Context) (*Notification, error)
	DeleteNotification(ctx context.Context, receiptID int64) error
}
