package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/wabot/core/logger"
	"github.com/m3rciful/wabot/core/whatsapp/message"
)

// ErrConfig is returned by NewClient when credentials are missing.
var ErrConfig = errors.New("api: id_instance and api_token_instance are required")

// Options configures a Client.
type Options struct {
	BaseURL    string
	IDInstance string
	APIToken   string
	HTTPClient *http.Client
	// ReceiveTimeout is the long-poll window of receiveNotification in seconds.
	ReceiveTimeout int
}

// Client calls the SDKWA REST gateway of one instance.
// Every call goes to {base}/whatsapp/{idInstance}/{method} with a bearer token.
type Client struct {
	base           string
	id             string
	token          string
	http           *http.Client
	receiveTimeout int
}

var (
	_ Sender   = (*Client)(nil)
	_ Deleter  = (*Client)(nil)
	_ Receiver = (*Client)(nil)
)

// NewClient validates opts and returns a Client.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.IDInstance) == "" || strings.TrimSpace(opts.APIToken) == "" {
		return nil, ErrConfig
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = "https://api.sdkwa.pro"
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = BuildHTTPClient(0)
	}
	rt := opts.ReceiveTimeout
	if rt <= 0 {
		rt = 5
	}
	return &Client{base: base, id: opts.IDInstance, token: opts.APIToken, http: hc, receiveTimeout: rt}, nil
}

type sendMessageRequest struct {
	ChatID          string `json:"chatId"`
	Message         string `json:"message"`
	QuotedMessageID string `json:"quotedMessageId,omitempty"`
	LinkPreview     *bool  `json:"linkPreview,omitempty"`
}

type sendFileRequest struct {
	ChatID          string `json:"chatId"`
	URLFile         string `json:"urlFile"`
	FileName        string `json:"fileName"`
	Caption         string `json:"caption,omitempty"`
	QuotedMessageID string `json:"quotedMessageId,omitempty"`
}

type sendLocationRequest struct {
	ChatID          string  `json:"chatId"`
	NameLocation    string  `json:"nameLocation,omitempty"`
	Address         string  `json:"address,omitempty"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	QuotedMessageID string  `json:"quotedMessageId,omitempty"`
}

type sendContactRequest struct {
	ChatID          string      `json:"chatId"`
	Contact         ContactCard `json:"contact"`
	QuotedMessageID string      `json:"quotedMessageId,omitempty"`
}

// Send delivers p to chatID using the method matching p.Kind.
func (c *Client) Send(ctx context.Context, chatID string, p Payload) (SendResult, error) {
	var (
		method string
		body   any
	)
	switch p.Kind {
	case PayloadText:
		method = "sendMessage"
		body = sendMessageRequest{ChatID: chatID, Message: p.Text, QuotedMessageID: p.QuotedMessageID, LinkPreview: p.LinkPreview}
	case PayloadFile:
		method = "sendFileByUrl"
		body = sendFileRequest{ChatID: chatID, URLFile: p.FileURL, FileName: p.FileName, Caption: p.Caption, QuotedMessageID: p.QuotedMessageID}
	case PayloadLocation:
		method = "sendLocation"
		body = sendLocationRequest{ChatID: chatID, NameLocation: p.LocationName, Address: p.Address,
			Latitude: p.Latitude, Longitude: p.Longitude, QuotedMessageID: p.QuotedMessageID}
	case PayloadContact:
		if p.Contact == nil {
			return SendResult{}, fmt.Errorf("api sendContact: nil contact")
		}
		method = "sendContact"
		body = sendContactRequest{ChatID: chatID, Contact: *p.Contact, QuotedMessageID: p.QuotedMessageID}
	default:
		return SendResult{}, fmt.Errorf("api: unsupported payload kind %q", p.Kind)
	}

	var res SendResult
	if err := c.call(ctx, http.MethodPost, method, "", body, &res); err != nil {
		return SendResult{}, err
	}
	return res, nil
}

// DeleteMessage removes a message from the chat for everyone.
func (c *Client) DeleteMessage(ctx context.Context, chatID, idMessage string) error {
	body := map[string]string{"chatId": chatID, "idMessage": idMessage}
	return c.call(ctx, http.MethodPost, "deleteMessage", "", body, nil)
}

type notificationEnvelope struct {
	ReceiptID int64           `json:"receiptId"`
	Body      json.RawMessage `json:"body"`
}

// ReceiveNotification pulls the next queued notification. It returns nil, nil when the queue is empty.
func (c *Client) ReceiveNotification(ctx context.Context) (*Notification, error) {
	var env *notificationEnvelope
	query := "?receiveTimeout=" + strconv.Itoa(c.receiveTimeout)
	if err := c.call(ctx, http.MethodGet, "receiveNotification", query, nil, &env); err != nil {
		return nil, err
	}
	if env == nil || env.ReceiptID == 0 {
		return nil, nil
	}
	n := &Notification{ReceiptID: env.ReceiptID}
	if body, err := message.Decode(env.Body); err == nil {
		n.Body = body
	}
	n.Body.ReceiptID = env.ReceiptID
	return n, nil
}

// DeleteNotification acknowledges receiptID so the queue advances.
func (c *Client) DeleteNotification(ctx context.Context, receiptID int64) error {
	return c.call(ctx, http.MethodDelete, "deleteNotification", "/"+strconv.FormatInt(receiptID, 10), nil, nil)
}

// StateInstance returns the authorization state of the instance, e.g. "authorized".
func (c *Client) StateInstance(ctx context.Context) (string, error) {
	var out struct {
		StateInstance string `json:"stateInstance"`
	}
	if err := c.call(ctx, http.MethodGet, "getStateInstance", "", nil, &out); err != nil {
		return "", err
	}
	return out.StateInstance, nil
}

// Settings is the subset of instance settings the bot manages.
type Settings struct {
	WebhookURL      string `json:"webhookUrl"`
	WebhookURLToken string `json:"webhookUrlToken,omitempty"`
	// IncomingWebhook toggles delivery of incoming message notifications ("yes"/"no").
	IncomingWebhook string `json:"incomingWebhook,omitempty"`
}

// SetSettings updates the instance settings. An empty WebhookURL routes
// notifications to the receiveNotification queue.
func (c *Client) SetSettings(ctx context.Context, s Settings) error {
	return c.call(ctx, http.MethodPost, "setSettings", "", s, nil)
}

func (c *Client) call(ctx context.Context, httpMethod, method, suffix string, in, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api %s: encode: %w", method, err)
		}
		body = bytes.NewReader(data)
	}
	endpoint := fmt.Sprintf("%s/whatsapp/%s/%s%s", c.base, c.id, method, suffix)
	req, err := http.NewRequestWithContext(ctx, httpMethod, endpoint, body)
	if err != nil {
		return fmt.Errorf("api %s: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		err = redact(fmt.Errorf("api %s: %w", method, err), c.token)
		logger.Debug(ctx, logger.CompAPI, "api.call",
			slog.String("status", "fail"),
			slog.String("op", method),
			slog.String("error_kind", Classify(err)),
			slog.Duration("duration", logger.Took(start)),
		)
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("api %s: read body: %w", method, err)
	}
	logger.Debug(ctx, logger.CompAPI, "api.call",
		slog.String("status", "ok"),
		slog.String("op", method),
		slog.Int("http_code", resp.StatusCode),
		slog.Duration("duration", logger.Took(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return redact(&Error{Method: method, StatusCode: resp.StatusCode, Body: string(raw)}, c.token)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("api %s: decode: %w", method, err)
	}
	return nil
}
