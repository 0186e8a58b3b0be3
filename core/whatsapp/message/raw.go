package message

import (
	"encoding/json"
	"errors"
)

// ErrNotObject is returned by Decode when the body is not a JSON object.
var ErrNotObject = errors.New("message: update body is not a JSON object")

// RawUpdate is a notification body as delivered by the provider, either
// through receiveNotification or the webhook. Each nested block is optional.
type RawUpdate struct {
	TypeWebhook Webhook
	ReceiptID   int64
	IDMessage   string
	Timestamp   int64

	Instance *InstanceData
	Sender   *SenderData
	Data     *MessageData

	// Status is set for outgoingMessageStatus webhooks.
	Status *string
	// StateInstance is set for stateInstanceChanged webhooks.
	StateInstance *string
}

// InstanceData identifies the instance that produced the notification.
type InstanceData struct {
	IDInstance   int64  `json:"idInstance"`
	Wid          string `json:"wid"`
	TypeInstance string `json:"typeInstance"`
}

// SenderData describes the conversation and the author of a message.
type SenderData struct {
	ChatID     string `json:"chatId"`
	Sender     string `json:"sender"`
	SenderName string `json:"senderName"`
	ChatName   string `json:"chatName"`
}

// MessageData carries the type discriminator and the per-type blocks.
type MessageData struct {
	TypeMessage string

	Text         *TextData
	ExtendedText *ExtendedTextData
	File         *FileData
	Location     *LocationData
	Contact      *ContactData
	Quoted       *QuotedData
}

// TextData is the textMessageData block.
type TextData struct {
	TextMessage *string `json:"textMessage"`
}

// ExtendedTextData is the extendedTextMessageData block.
type ExtendedTextData struct {
	Text        *string `json:"text"`
	Description *string `json:"description"`
	Title       *string `json:"title"`
}

// FileData is the fileMessageData block shared by all media kinds.
type FileData struct {
	DownloadURL *string `json:"downloadUrl"`
	FileName    *string `json:"fileName"`
	Caption     *string `json:"caption"`
	MimeType    *string `json:"mimeType"`
}

// LocationData is the locationMessageData block.
type LocationData struct {
	NameLocation *string  `json:"nameLocation"`
	Address      *string  `json:"address"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

// ContactData is the contactMessageData block.
type ContactData struct {
	DisplayName *string `json:"displayName"`
	VCard       *string `json:"vcard"`
}

// QuotedData is the quotedMessage block of a reply.
type QuotedData struct {
	IDMessage   *string `json:"idMessage"`
	StanzaID    *string `json:"stanzaId"`
	Participant *string `json:"participant"`
}

// Decode parses a notification body. Only a body that is not a JSON object
// is an error; a block that is not an object decodes to nil and a
// wrong-typed field decodes to its zero value.
func Decode(data []byte) (RawUpdate, error) {
	var u RawUpdate
	if err := u.UnmarshalJSON(data); err != nil {
		return RawUpdate{}, err
	}
	return u, nil
}

// UnmarshalJSON implements json.Unmarshaler with per-field leniency.
func (u *RawUpdate) UnmarshalJSON(data []byte) error {
	fields, err := objectOf(data)
	if err != nil {
		return err
	}
	*u = RawUpdate{
		TypeWebhook:   Webhook(valueOf[string](fields["typeWebhook"])),
		ReceiptID:     valueOf[int64](fields["receiptId"]),
		IDMessage:     valueOf[string](fields["idMessage"]),
		Timestamp:     valueOf[int64](fields["timestamp"]),
		Instance:      blockOf[InstanceData](fields["instanceData"]),
		Sender:        blockOf[SenderData](fields["senderData"]),
		Data:          blockOf[MessageData](fields["messageData"]),
		Status:        blockOf[string](fields["status"]),
		StateInstance: blockOf[string](fields["stateInstance"]),
	}
	return nil
}

// UnmarshalJSON decodes each data block independently so one bad block
// does not hide the others.
func (d *MessageData) UnmarshalJSON(data []byte) error {
	fields, err := objectOf(data)
	if err != nil {
		return err
	}
	*d = MessageData{
		TypeMessage:  valueOf[string](fields["typeMessage"]),
		Text:         blockOf[TextData](fields["textMessageData"]),
		ExtendedText: blockOf[ExtendedTextData](fields["extendedTextMessageData"]),
		File:         blockOf[FileData](fields["fileMessageData"]),
		Location:     blockOf[LocationData](fields["locationMessageData"]),
		Contact:      blockOf[ContactData](fields["contactMessageData"]),
		Quoted:       blockOf[QuotedData](fields["quotedMessage"]),
	}
	if d.File == nil {
		// Some gateways deliver media under imageMessageData and friends.
		for _, key := range []string{"imageMessageData", "videoMessageData", "audioMessageData", "documentMessageData"} {
			if d.File = blockOf[FileData](fields[key]); d.File != nil {
				break
			}
		}
	}
	return nil
}

// The block decoders below read field by field: a wrong-typed field zeroes
// only itself.

func (b *InstanceData) UnmarshalJSON(data []byte) error {
	f, err := objectOf(data)
	if err != nil {
		return err
	}
	*b = InstanceData{
		IDInstance:   valueOf[int64](f["idInstance"]),
		Wid:          valueOf[string](f["wid"]),
		TypeInstance: valueOf[string](f["typeInstance"]),
	}
	return nil
}

func (b *SenderData) UnmarshalJSON(data []byte) error {
	f, err := objectOf(data)
	if err != nil {
		return err
	}
	*b = SenderData{
		ChatID:     valueOf[string](f["chatId"]),
		Sender:     valueOf[string](f["sender"]),
		SenderName: valueOf[string](f["senderName"]),
		ChatName:   valueOf[string](f["chatName"]),
	}
	return nil
}

func (b *TextData) UnmarshalJSON(data []byte) error {
	f, err := objectOf(data)
	if err != nil {
		return err
	}
	*b = TextData{TextMessage: blockOf[string](f["textMessage"])}
	return nil
}

func (b *ExtendedTextData) UnmarshalJSON(data []byte) error {
	f, err := objectOf(data)
	if err != nil {
		return err
	}
	*b = ExtendedTextData{
		Text:        blockOf[string](f["text"]),
		Description: blockOf[string](f["description"]),
		Title:       blockOf[string](f["title"]),
	}
	return nil
}

func (b *FileData) UnmarshalJSON(data []byte) error {
	f, err := objectOf(data)
	if err != nil {
		return err
	}
	*b = FileData{
		DownloadURL: blockOf[string](f["downloadUrl"]),
		FileName:    blockOf[string](f["fileName"]),
		Caption:     blockOf[string](f["caption"]),
		MimeType:    blockOf[string](f["mimeType"]),
	}
	return nil
}

func (b *LocationData) UnmarshalJSON(data []byte) error {
	f, err := objectOf(data)
	if err != nil {
		return err
	}
	*b = LocationData{
		NameLocation: blockOf[string](f["nameLocation"]),
		Address:      blockOf[string](f["address"]),
		Latitude:     blockOf[float64](f["latitude"]),
		Longitude:    blockOf[float64](f["longitude"]),
	}
	return nil
}

func (b *ContactData) UnmarshalJSON(data []byte) error {
	f, err := objectOf(data)
	if err != nil {
		return err
	}
	*b = ContactData{
		DisplayName: blockOf[string](f["displayName"]),
		VCard:       blockOf[string](f["vcard"]),
	}
	return nil
}

func (b *QuotedData) UnmarshalJSON(data []byte) error {
	f, err := objectOf(data)
	if err != nil {
		return err
	}
	*b = QuotedData{
		IDMessage:   blockOf[string](f["idMessage"]),
		StanzaID:    blockOf[string](f["stanzaId"]),
		Participant: blockOf[string](f["participant"]),
	}
	return nil
}

func objectOf(data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, ErrNotObject
	}
	return fields, nil
}

// blockOf decodes raw into a new T, returning nil for absent, null or malformed input.
func blockOf[T any](raw json.RawMessage) *T {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return nil
	}
	return v
}

func valueOf[T any](raw json.RawMessage) T {
	var zero T
	if v := blockOf[T](raw); v != nil {
		return *v
	}
	return zero
}
