package message

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, body string) Message {
	t.Helper()
	u, err := Decode([]byte(body))
	require.NoError(t, err)
	return Normalize(u)
}

func TestNormalizeText(t *testing.T) {
	m := decode(t, `{
		"typeWebhook": "incomingMessageReceived",
		"idMessage": "ABC",
		"timestamp": 1700000000,
		"senderData": {"chatId": "79001234567@c.us", "sender": "79001234567@c.us", "senderName": "Al"},
		"messageData": {"typeMessage": "textMessage", "textMessageData": {"textMessage": "hi"}}
	}`)
	assert.Equal(t, TypeText, m.Type)
	assert.Equal(t, "ABC", m.ID)
	require.NotNil(t, m.Text)
	assert.Equal(t, "hi", *m.Text)
	assert.True(t, m.IsText())
	assert.False(t, m.IsQuoted())
	assert.Nil(t, m.QuotedMessageID)
}

func TestNormalizeEmptyTextIsNotAbsent(t *testing.T) {
	m := decode(t, `{"messageData": {"typeMessage": "textMessage", "textMessageData": {"textMessage": ""}}}`)
	require.NotNil(t, m.Text)
	assert.Equal(t, "", *m.Text)

	m = decode(t, `{"messageData": {"typeMessage": "textMessage", "textMessageData": {}}}`)
	assert.Nil(t, m.Text)
}

func TestNormalizeExtendedAndQuotedText(t *testing.T) {
	m := decode(t, `{"messageData": {
		"typeMessage": "quotedMessage",
		"extendedTextMessageData": {"text": "reply"},
		"quotedMessage": {"stanzaId": "Q1", "participant": "7@c.us"}
	}}`)
	assert.True(t, m.IsText())
	assert.True(t, m.IsQuoted())
	require.NotNil(t, m.Text)
	assert.Equal(t, "reply", *m.Text)
	require.NotNil(t, m.QuotedMessageID)
	assert.Equal(t, "Q1", *m.QuotedMessageID)

	m = decode(t, `{"messageData": {"typeMessage": "extendedTextMessage", "extendedTextMessageData": {"text": "see https://x"}}}`)
	assert.True(t, m.IsText())
	assert.False(t, m.IsQuoted())
	assert.Equal(t, "see https://x", m.TextOr(""))
}

func TestQuotedIDDegradesToNil(t *testing.T) {
	fixtures := map[string]string{
		"missing": `{"messageData": {"typeMessage": "quotedMessage", "extendedTextMessageData": {"text": "x"}}}`,
		"null":    `{"messageData": {"typeMessage": "quotedMessage", "quotedMessage": null}}`,
		"no id":   `{"messageData": {"typeMessage": "quotedMessage", "quotedMessage": {"participant": "7@c.us"}}}`,
		"garbage": `{"messageData": {"typeMessage": "quotedMessage", "quotedMessage": "oops"}}`,
	}
	for name, body := range fixtures {
		t.Run(name, func(t *testing.T) {
			m := decode(t, body)
			assert.Nil(t, m.QuotedMessageID)
			assert.True(t, m.IsQuoted())
		})
	}
}

func TestMediaTextFallsBackToCaption(t *testing.T) {
	m := decode(t, `{"messageData": {
		"typeMessage": "imageMessage",
		"fileMessageData": {"downloadUrl": "https://cdn/x.jpg", "fileName": "x.jpg", "caption": "hello", "mimeType": "image/jpeg"}
	}}`)
	assert.True(t, m.IsImage())
	assert.True(t, m.IsMedia())
	assert.False(t, m.IsText())
	require.NotNil(t, m.Text)
	assert.Equal(t, "hello", *m.Text)
	assert.Equal(t, "https://cdn/x.jpg", Deref(m.FileURL))
	assert.Equal(t, "x.jpg", Deref(m.FileName))
	assert.Equal(t, "hello", Deref(m.Caption))
	assert.Equal(t, "image/jpeg", Deref(m.MimeType))
}

func TestWrongTypedFieldKeepsSiblings(t *testing.T) {
	u, err := Decode([]byte(`{
		"typeWebhook": "incomingMessageReceived",
		"senderData": {"chatId": "1@c.us", "sender": 42},
		"messageData": {
			"typeMessage": "imageMessage",
			"fileMessageData": {"downloadUrl": 123, "caption": "hello"},
			"locationMessageData": {"latitude": "north", "longitude": 37.6}
		}
	}`))
	require.NoError(t, err)
	require.NotNil(t, u.Sender)
	assert.Equal(t, "1@c.us", u.Sender.ChatID)
	assert.Empty(t, u.Sender.Sender)

	m := Normalize(u)
	assert.Nil(t, m.FileURL)
	assert.Equal(t, "hello", Deref(m.Caption))
	require.NotNil(t, m.Text)
	assert.Equal(t, "hello", *m.Text)

	require.NotNil(t, u.Data.Location)
	assert.Nil(t, u.Data.Location.Latitude)
	require.NotNil(t, u.Data.Location.Longitude)
	assert.InDelta(t, 37.6, *u.Data.Location.Longitude, 1e-9)
}

func TestMediaWithoutFileBlock(t *testing.T) {
	m := decode(t, `{"messageData": {"typeMessage": "documentMessage"}}`)
	assert.True(t, m.IsDocument())
	assert.Nil(t, m.Text)
	assert.Nil(t, m.FileURL)
	assert.Nil(t, m.FileName)
	assert.Nil(t, m.Caption)
}

func TestLocationAndContact(t *testing.T) {
	m := decode(t, `{"messageData": {"typeMessage": "locationMessage", "locationMessageData": {
		"nameLocation": "Office", "address": "Main st", "latitude": 55.75, "longitude": 37.61}}}`)
	assert.True(t, m.IsLocation())
	lat, ok := m.GetLatitude()
	assert.True(t, ok)
	assert.Equal(t, 55.75, lat)
	lon, ok := m.GetLongitude()
	assert.True(t, ok)
	assert.Equal(t, 37.61, lon)
	assert.Equal(t, "Office", Deref(m.LocationName))
	assert.Equal(t, "Main st", Deref(m.LocationAddress))

	m = decode(t, `{"messageData": {"typeMessage": "locationMessage"}}`)
	_, ok = m.GetLatitude()
	assert.False(t, ok)
	assert.Nil(t, m.LocationName)

	m = decode(t, `{"messageData": {"typeMessage": "contactMessage", "contactMessageData": {"displayName": "Bo", "vcard": "BEGIN:VCARD"}}}`)
	assert.True(t, m.IsContact())
	require.NotNil(t, m.Contact)
	assert.Equal(t, "Bo", Deref(m.Contact.DisplayName))

	m = decode(t, `{"messageData": {"typeMessage": "contactMessage"}}`)
	assert.Nil(t, m.Contact)
}

func TestUnknownTypePassesThrough(t *testing.T) {
	m := decode(t, `{"messageData": {"typeMessage": "pollMessage"}}`)
	assert.Equal(t, TypeUnknown, m.Type)
	assert.Equal(t, "pollMessage", m.RawType)

	m = Normalize(RawUpdate{})
	assert.Equal(t, TypeUnknown, m.Type)
	assert.Nil(t, m.Text)

	assert.Equal(t, TypeAudio, ParseType("pttMessage"))
}

func TestPredicatesAreExclusive(t *testing.T) {
	kinds := []Type{TypeText, TypeExtendedText, TypeQuoted, TypeImage, TypeVideo, TypeAudio,
		TypeDocument, TypeFile, TypeLocation, TypeContact, TypeUnknown}
	for _, k := range kinds {
		m := Message{Type: k}
		exclusive := []bool{m.IsImage(), m.IsVideo(), m.IsAudio(), m.IsDocument(), m.IsFile(), m.IsLocation(), m.IsContact()}
		count := 0
		for _, v := range exclusive {
			if v {
				count++
			}
		}
		assert.LessOrEqual(t, count, 1, "kind %s", k)
		assert.Equal(t, k == TypeText || k == TypeExtendedText || k == TypeQuoted, m.IsText(), "kind %s", k)
		assert.Equal(t, k == TypeQuoted, m.IsQuoted(), "kind %s", k)
		assert.Equal(t, m.IsImage() || m.IsVideo() || m.IsAudio() || m.IsDocument() || m.IsFile(), m.IsMedia(), "kind %s", k)
	}
}

func TestDecodeRejectsNonObject(t *testing.T) {
	for _, body := range []string{`null`, `[]`, `"x"`, `{`} {
		_, err := Decode([]byte(body))
		assert.ErrorIs(t, err, ErrNotObject, body)
	}
}

// randomUpdate builds a body where each known field is present, null,
// wrongly typed or absent.
func randomUpdate(r *rand.Rand) []byte {
	values := []any{nil, "s", 1.5, true, map[string]any{}, []any{1}}
	pick := func(valid any) (any, bool) {
		switch r.Intn(4) {
		case 0:
			return nil, false
		case 1:
			return nil, true
		case 2:
			return values[r.Intn(len(values))], true
		default:
			return valid, true
		}
	}
	put := func(m map[string]any, key string, valid any) {
		if v, ok := pick(valid); ok {
			m[key] = v
		}
	}
	types := []string{"textMessage", "extendedTextMessage", "quotedMessage", "imageMessage", "videoMessage",
		"audioMessage", "documentMessage", "fileMessage", "locationMessage", "contactMessage", "weird"}
	data := map[string]any{}
	put(data, "typeMessage", types[r.Intn(len(types))])
	put(data, "textMessageData", map[string]any{"textMessage": "t"})
	put(data, "extendedTextMessageData", map[string]any{"text": "e"})
	put(data, "fileMessageData", map[string]any{"downloadUrl": "u", "caption": "c"})
	put(data, "locationMessageData", map[string]any{"latitude": 1.0, "longitude": 2.0})
	put(data, "contactMessageData", map[string]any{"displayName": "d"})
	put(data, "quotedMessage", map[string]any{"idMessage": "q"})

	body := map[string]any{}
	put(body, "typeWebhook", "incomingMessageReceived")
	put(body, "idMessage", "id")
	put(body, "timestamp", 1)
	put(body, "senderData", map[string]any{"chatId": "1@c.us"})
	put(body, "messageData", data)
	out, _ := json.Marshal(body)
	return out
}

func TestNormalizeIsTotal(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		body := randomUpdate(r)
		assert.NotPanics(t, func() {
			u, err := Decode(body)
			require.NoError(t, err, string(body))
			_ = Normalize(u)
		}, string(body))
	}
}

func FuzzDecodeNormalize(f *testing.F) {
	f.Add([]byte(`{}`))
	f.Add([]byte(`{"messageData": {"typeMessage": "imageMessage", "fileMessageData": null}}`))
	f.Add([]byte(`{"messageData": {"typeMessage": "quotedMessage", "quotedMessage": {"idMessage": 5}}}`))
	f.Fuzz(func(t *testing.T, body []byte) {
		u, err := Decode(body)
		if err != nil {
			return
		}
		_ = Normalize(u)
	})
}

func TestParseCommand(t *testing.T) {
	name, args, ok := ParseCommand("/Start now please")
	assert.True(t, ok)
	assert.Equal(t, "start", name)
	assert.Equal(t, "now please", args)

	_, _, ok = ParseCommand("start")
	assert.False(t, ok)
	_, _, ok = ParseCommand("/")
	assert.False(t, ok)
	_, _, ok = ParseCommand("/ x")
	assert.False(t, ok)
}

func TestChatTypeAndSynthetic(t *testing.T) {
	assert.Equal(t, ChatPrivate, ChatTypeOf("79001234567@c.us"))
	assert.Equal(t, ChatGroup, ChatTypeOf("120363025@g.us"))

	u := Synthetic("1@c.us", "", "/start")
	m := Normalize(u)
	assert.Equal(t, "/start", m.TextOr(""))
	assert.Equal(t, "1@c.us", u.Sender.Sender)
	assert.Equal(t, KindMessage, u.TypeWebhook.Kind())
	assert.NotEmpty(t, m.ID)
}
