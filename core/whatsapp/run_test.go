package whatsapp

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/wabot/core/config"
	"github.com/m3rciful/wabot/core/whatsapp/api"
)

type fakeClient struct {
	fakeSender
	fakeReceiver

	settingsMu sync.Mutex
	settings   []api.Settings
	state      string
}

func (f *fakeClient) SetSettings(_ context.Context, s api.Settings) error {
	f.settingsMu.Lock()
	defer f.settingsMu.Unlock()
	f.settings = append(f.settings, s)
	return nil
}

func (f *fakeClient) StateInstance(context.Context) (string, error) { return f.state, nil }

type pollerFunc func(ctx context.Context, sink Sink) error

func (p pollerFunc) Poll(ctx context.Context, sink Sink) error { return p(ctx, sink) }

func runConfig() *coreconfig.Config {
	return &coreconfig.Config{WhatsApp: coreconfig.WhatsAppConfig{
		IDInstance: "1101",
		APIToken:   "tok",
		RunMode:    coreconfig.RunModeLongpoll,
	}}
}

func TestRunWhatsAppHandlesPolledUpdates(t *testing.T) {
	client := &fakeClient{state: "authorized"}
	b := NewBot(nil)
	b.Hears(regexp.MustCompile(`^ping$`), func(c *Context) error { return c.Reply("pong") })

	var outer, started, stopped bool
	err := RunWhatsApp(context.Background(), RunOptions{
		Config: runConfig(),
		Bot:    b,
		Client: client,
		Poller: pollerFunc(func(ctx context.Context, sink Sink) error {
			require.NoError(t, sink(ctx, text("ping")))
			return context.Canceled
		}),
		Middlewares: []Middleware{{Name: "outer", Use: func(next HandlerFunc) HandlerFunc {
			return func(c *Context) error { outer = true; return next(c) }
		}}},
		OnStart: func(_ context.Context, rt Runtime) error {
			started = rt.Dispatcher != nil && rt.Bot == b
			return nil
		},
		OnStop: func(context.Context, Runtime) error { stopped = true; return nil },
	})

	require.NoError(t, err)
	assert.True(t, started)
	assert.True(t, stopped)
	assert.True(t, outer)
	assert.Same(t, client, b.Sender())
	assert.Equal(t, []string{"pong"}, client.texts())
	require.Len(t, client.settings, 1)
	assert.Empty(t, client.settings[0].WebhookURL)
}

func TestRunWhatsAppStartFailure(t *testing.T) {
	polled := false
	boom := errors.New("boom")
	err := RunWhatsApp(context.Background(), RunOptions{
		Config:                runConfig(),
		Bot:                   NewBot(nil),
		Client:                &fakeClient{state: "authorized"},
		DisableWebhookCleanup: true,
		Poller: pollerFunc(func(context.Context, Sink) error {
			polled = true
			return nil
		}),
		OnStart: func(context.Context, Runtime) error { return boom },
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, polled)
}

func TestRunWhatsAppRejectsMissingInputs(t *testing.T) {
	require.Error(t, RunWhatsApp(context.Background(), RunOptions{Bot: NewBot(nil)}))
	require.Error(t, RunWhatsApp(context.Background(), RunOptions{Config: runConfig()}))
}
