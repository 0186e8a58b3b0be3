package message

// Contact is the projected contactMessageData block.
type Contact struct {
	DisplayName *string
	VCard       *string
}

// Message is the uniform read-only view over a RawUpdate.
// Optional fields are nil when the source block or field is absent.
type Message struct {
	ID        string
	Type      Type
	RawType   string
	Timestamp int64

	Text    *string
	Caption *string

	FileURL  *string
	FileName *string
	MimeType *string

	Latitude        *float64
	Longitude       *float64
	LocationName    *string
	LocationAddress *string

	Contact *Contact

	QuotedMessageID *string
}

// Normalize projects u into a Message. It is total: any RawUpdate,
// including the zero value, yields a Message.
func Normalize(u RawUpdate) Message {
	m := Message{
		ID:        u.IDMessage,
		Type:      TypeUnknown,
		Timestamp: u.Timestamp,
	}
	d := u.Data
	if d == nil {
		return m
	}
	m.RawType = d.TypeMessage
	m.Type = ParseType(d.TypeMessage)

	switch {
	case m.Type == TypeText:
		if d.Text != nil {
			m.Text = d.Text.TextMessage
		}
	case m.Type == TypeExtendedText, m.Type == TypeQuoted:
		if d.ExtendedText != nil {
			m.Text = d.ExtendedText.Text
		}
	case m.Type.IsMedia():
		if d.File != nil {
			m.FileURL = d.File.DownloadURL
			m.FileName = d.File.FileName
			m.Caption = d.File.Caption
			m.MimeType = d.File.MimeType
		}
		if d.Text != nil && d.Text.TextMessage != nil {
			m.Text = d.Text.TextMessage
		} else {
			m.Text = m.Caption
		}
	case m.Type == TypeLocation:
		if l := d.Location; l != nil {
			m.Latitude = l.Latitude
			m.Longitude = l.Longitude
			m.LocationName = l.NameLocation
			m.LocationAddress = l.Address
		}
	case m.Type == TypeContact:
		if c := d.Contact; c != nil {
			m.Contact = &Contact{DisplayName: c.DisplayName, VCard: c.VCard}
		}
	}

	if q := d.Quoted; q != nil {
		switch {
		case q.IDMessage != nil:
			m.QuotedMessageID = q.IDMessage
		case q.StanzaID != nil:
			m.QuotedMessageID = q.StanzaID
		}
	}
	return m
}

// IsText is true for plain, extended and quoted text kinds.
func (m Message) IsText() bool {
	return m.Type == TypeText || m.Type == TypeExtendedText || m.Type == TypeQuoted
}

// IsQuoted is true only for the quoted kind.
func (m Message) IsQuoted() bool { return m.Type == TypeQuoted }

func (m Message) IsImage() bool    { return m.Type == TypeImage }
func (m Message) IsVideo() bool    { return m.Type == TypeVideo }
func (m Message) IsAudio() bool    { return m.Type == TypeAudio }
func (m Message) IsDocument() bool { return m.Type == TypeDocument }
func (m Message) IsFile() bool     { return m.Type == TypeFile }
func (m Message) IsLocation() bool { return m.Type == TypeLocation }
func (m Message) IsContact() bool  { return m.Type == TypeContact }

// IsMedia is true for image, video, audio, document and file kinds.
func (m Message) IsMedia() bool { return m.Type.IsMedia() }

// GetLatitude projects the optional latitude.
func (m Message) GetLatitude() (float64, bool) { return deref(m.Latitude) }

// GetLongitude projects the optional longitude.
func (m Message) GetLongitude() (float64, bool) { return deref(m.Longitude) }

// TextOr returns the resolved text or fallback when absent.
func (m Message) TextOr(fallback string) string {
	if m.Text == nil {
		return fallback
	}
	return *m.Text
}

func deref[T any](p *T) (T, bool) {
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}

// Deref returns the pointed-to string or "" for nil.
func Deref(s *string) string {
	v, _ := deref(s)
	return v
}
