package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/wabot/core/whatsapp/message"
)

type recorded struct {
	method string
	path   string
	auth   string
	body   map[string]any
}

type recorder struct {
	mu    sync.Mutex
	calls []recorded
}

func (r *recorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.calls...)
}

func (r *recorder) last() recorded {
	calls := r.all()
	return calls[len(calls)-1]
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := recorded{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &call.body)
		}
		rec.mu.Lock()
		rec.calls = append(rec.calls, call)
		rec.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{BaseURL: srv.URL + "/", IDInstance: "1101", APIToken: "secret-token", HTTPClient: srv.Client()})
	require.NoError(t, err)
	return c, rec
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(Options{IDInstance: "1"})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestSendText(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"idMessage":"OUT1"}`))
	})
	preview := false
	res, err := c.Send(context.Background(), "7@c.us", Payload{Kind: PayloadText, Text: "hi", QuotedMessageID: "Q", LinkPreview: &preview})
	require.NoError(t, err)
	assert.Equal(t, "OUT1", res.IDMessage)

	require.Len(t, calls.all(), 1)
	call := calls.last()
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, "/whatsapp/1101/sendMessage", call.path)
	assert.Equal(t, "Bearer secret-token", call.auth)
	assert.Equal(t, "7@c.us", call.body["chatId"])
	assert.Equal(t, "hi", call.body["message"])
	assert.Equal(t, "Q", call.body["quotedMessageId"])
	assert.Equal(t, false, call.body["linkPreview"])
}

func TestSendKindsUseMatchingMethods(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"idMessage":"X"}`))
	})
	ctx := context.Background()
	_, err := c.Send(ctx, "7@c.us", Payload{Kind: PayloadFile, FileURL: "https://x/p.jpg", FileName: "photo.jpg", Caption: "c"})
	require.NoError(t, err)
	_, err = c.Send(ctx, "7@c.us", Payload{Kind: PayloadLocation, Latitude: 1, Longitude: 2, LocationName: "Location"})
	require.NoError(t, err)
	_, err = c.Send(ctx, "7@c.us", Payload{Kind: PayloadContact, Contact: &ContactCard{PhoneContact: 79001234567, FirstName: "Bo"}})
	require.NoError(t, err)

	_, err = c.Send(ctx, "7@c.us", Payload{Kind: PayloadContact})
	require.Error(t, err)
	_, err = c.Send(ctx, "7@c.us", Payload{Kind: "sticker"})
	require.Error(t, err)

	all := calls.all()
	require.Len(t, all, 3)
	assert.True(t, strings.HasSuffix(all[0].path, "/sendFileByUrl"))
	assert.Equal(t, "https://x/p.jpg", all[0].body["urlFile"])
	assert.True(t, strings.HasSuffix(all[1].path, "/sendLocation"))
	assert.Equal(t, "Location", all[1].body["nameLocation"])
	assert.True(t, strings.HasSuffix(all[2].path, "/sendContact"))
	contact := all[2].body["contact"].(map[string]any)
	assert.Equal(t, float64(79001234567), contact["phoneContact"])
}

func TestSendErrorIsTypedAndRedacted(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`upstream rejected token secret-token`))
	})
	_, err := c.Send(context.Background(), "7@c.us", Payload{Kind: PayloadText, Text: "x"})
	require.Error(t, err)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.NotContains(t, err.Error(), "secret-token")
	assert.True(t, IsTransient(err))
	assert.Equal(t, "http_5xx", Classify(err))
}

func TestReceiveAndDeleteNotification(t *testing.T) {
	var empty atomic.Bool
	empty.Store(true)
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "receiveNotification") && empty.Load():
			_, _ = w.Write([]byte(`null`))
		case strings.Contains(r.URL.Path, "receiveNotification"):
			_, _ = w.Write([]byte(`{"receiptId": 17, "body": {
				"typeWebhook": "incomingMessageReceived",
				"senderData": {"chatId": "7@c.us", "sender": "7@c.us"},
				"messageData": {"typeMessage": "textMessage", "textMessageData": {"textMessage": "hi"}}}}`))
		default:
			_, _ = w.Write([]byte(`{"result": true}`))
		}
	})
	ctx := context.Background()

	n, err := c.ReceiveNotification(ctx)
	require.NoError(t, err)
	assert.Nil(t, n)

	empty.Store(false)
	n, err = c.ReceiveNotification(ctx)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, int64(17), n.ReceiptID)
	assert.Equal(t, int64(17), n.Body.ReceiptID)
	assert.Equal(t, message.WebhookIncomingMessage, n.Body.TypeWebhook)
	assert.Equal(t, "hi", message.Normalize(n.Body).TextOr(""))

	require.NoError(t, c.DeleteNotification(ctx, 17))
	last := calls.last()
	assert.Equal(t, http.MethodDelete, last.method)
	assert.Equal(t, "/whatsapp/1101/deleteNotification/17", last.path)
}

func TestSettingsAndState(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "getStateInstance") {
			_, _ = w.Write([]byte(`{"stateInstance": "authorized"}`))
			return
		}
		_, _ = w.Write([]byte(`{"saveSettings": true}`))
	})
	state, err := c.StateInstance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "authorized", state)

	require.NoError(t, c.SetSettings(context.Background(), Settings{WebhookURL: ""}))
	last := calls.last()
	assert.Equal(t, "", last.body["webhookUrl"])
}

func TestClassifyContext(t *testing.T) {
	assert.Equal(t, "timeout", Classify(context.DeadlineExceeded))
	assert.Equal(t, "cancelled", Classify(context.Canceled))
	assert.Equal(t, "", Classify(nil))
	assert.False(t, IsTransient(&Error{StatusCode: 400}))
	assert.True(t, IsTransient(&Error{StatusCode: 429}))
}
