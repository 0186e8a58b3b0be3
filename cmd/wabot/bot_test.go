package main

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/wabot/core/config"
	"github.com/m3rciful/wabot/core/whatsapp"
	"github.com/m3rciful/wabot/core/whatsapp/api"
	"github.com/m3rciful/wabot/core/whatsapp/message"
	"github.com/m3rciful/wabot/core/whatsapp/session"
)

const chat = "79001234567@c.us"

type recordingSender struct {
	mu    sync.Mutex
	texts []string
}

func (s *recordingSender) Send(_ context.Context, _ string, p api.Payload) (api.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, p.Text)
	return api.SendResult{IDMessage: "OUT"}, nil
}

func (s *recordingSender) take() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.texts
	s.texts = nil
	return out
}

func newTestBot(t *testing.T, cfg *coreconfig.Config) (*whatsapp.Bot, *recordingSender, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore()
	s := &recordingSender{}
	bot := newBot(cfg, store)
	bot.SetSender(s)
	return bot, s, store
}

func send(t *testing.T, bot *whatsapp.Bot, text string) {
	t.Helper()
	require.NoError(t, bot.HandleUpdate(context.Background(), message.Synthetic(chat, "", text)))
}

func TestRegistrationFlow(t *testing.T) {
	bot, s, store := newTestBot(t, &coreconfig.Config{})

	send(t, bot, "/profile")
	assert.Equal(t, []string{"I don't know you yet. Send /register."}, s.take())

	send(t, bot, "/register")
	send(t, bot, "Al")
	send(t, bot, "old")
	send(t, bot, "/back")
	send(t, bot, "Alice")
	send(t, bot, "30")
	assert.Equal(t, []string{
		"What is your name? Send /cancel to stop or /back to go back.",
		"Nice to meet you, Al. How old are you?",
		"Please send your age as a number.",
		"What is your name?",
		"Nice to meet you, Alice. How old are you?",
		"Saved: Alice, 30. Send /profile to see it again.",
	}, s.take())

	send(t, bot, "/profile")
	assert.Equal(t, []string{"- Name: Alice\n- Age: 30"}, s.take())

	data, err := store.Get(context.Background(), chat)
	require.NoError(t, err)
	assert.NotContains(t, data, "__scene")
}

func TestRegistrationCancel(t *testing.T) {
	bot, s, _ := newTestBot(t, &coreconfig.Config{})
	send(t, bot, "/signup")
	send(t, bot, "/cancel")
	send(t, bot, "hello")
	assert.Equal(t, []string{
		"What is your name? Send /cancel to stop or /back to go back.",
		"Registration cancelled.",
		"hello",
	}, s.take())
}

func TestHelpListsVisibleCommands(t *testing.T) {
	bot, s, _ := newTestBot(t, &coreconfig.Config{})
	send(t, bot, "/help")
	assert.Equal(t, []string{
		"*Commands*" +
			"\n- /help - Show available commands" +
			"\n- /profile - Show what you told me" +
			"\n- /register - Tell me about yourself" +
			"\n- /start - Start the bot",
	}, s.take())
}

func TestStatsIsAdminOnly(t *testing.T) {
	cfg := &coreconfig.Config{WhatsApp: coreconfig.WhatsAppConfig{AdminID: "79001234567"}}
	bot, s, _ := newTestBot(t, cfg)
	send(t, bot, "one")
	send(t, bot, "/stats")
	assert.Equal(t, []string{"one", "Messages in this chat: 1"}, s.take())

	cfg = &coreconfig.Config{WhatsApp: coreconfig.WhatsAppConfig{AdminID: "70000000000"}}
	bot, s, _ = newTestBot(t, cfg)
	send(t, bot, "/stats")
	assert.Equal(t, []string{"This command is for the bot admin."}, s.take())
}

func TestPingAndMedia(t *testing.T) {
	bot, s, _ := newTestBot(t, &coreconfig.Config{})
	send(t, bot, "PING")

	img := message.Synthetic(chat, "", "")
	img.Data = &message.MessageData{TypeMessage: "imageMessage"}
	require.NoError(t, bot.HandleUpdate(context.Background(), img))

	assert.Equal(t, []string{"pong", "Got your image."}, s.take())
}
