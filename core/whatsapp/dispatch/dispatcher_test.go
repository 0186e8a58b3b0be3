package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/wabot/core/whatsapp/message"
)

func update(chatID, id string) message.RawUpdate {
	return message.RawUpdate{
		TypeWebhook: message.WebhookIncomingMessage,
		IDMessage:   id,
		Sender:      &message.SenderData{ChatID: chatID, Sender: chatID},
	}
}

func TestPerChatOrdering(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[string][]string{}
	)
	d := New(HandlerFunc(func(_ context.Context, u message.RawUpdate) error {
		mu.Lock()
		defer mu.Unlock()
		seen[u.Sender.ChatID] = append(seen[u.Sender.ChatID], u.IDMessage)
		return nil
	}), Options{Workers: 4, QueueSize: 64})

	chats := []string{"1@c.us", "2@c.us", "3@c.us"}
	var want = map[string][]string{}
	for i := 0; i < 20; i++ {
		for _, chat := range chats {
			id := chat + "#" + string(rune('a'+i))
			want[chat] = append(want[chat], id)
			require.NoError(t, d.Enqueue(context.Background(), update(chat, id)))
		}
	}
	d.Close()

	assert.Equal(t, want, seen)
	assert.Equal(t, uint64(60), d.Handled())
}

func TestQueueFullAndClosed(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d := New(HandlerFunc(func(context.Context, message.RawUpdate) error {
		started <- struct{}{}
		<-block
		return nil
	}), Options{Workers: 1, QueueSize: 1})

	require.NoError(t, d.Enqueue(context.Background(), update("1@c.us", "a")))
	<-started
	require.NoError(t, d.Enqueue(context.Background(), update("1@c.us", "b")))
	assert.ErrorIs(t, d.Enqueue(context.Background(), update("1@c.us", "c")), ErrQueueFull)

	close(block)
	d.Close()
	assert.ErrorIs(t, d.Enqueue(context.Background(), update("1@c.us", "d")), ErrQueueClosed)
}

func TestErrorsAndPanicsAreCounted(t *testing.T) {
	d := New(HandlerFunc(func(_ context.Context, u message.RawUpdate) error {
		switch u.IDMessage {
		case "err":
			return errors.New("boom")
		case "panic":
			panic("bad handler")
		}
		return nil
	}), Options{Workers: 1, QueueSize: 8})

	for _, id := range []string{"ok", "err", "panic", "ok2"} {
		require.NoError(t, d.Enqueue(context.Background(), update("1@c.us", id)))
	}
	d.Close()
	assert.Equal(t, uint64(2), d.ErrorCount())
}

func TestJobOutlivesCancelledContext(t *testing.T) {
	done := make(chan error, 1)
	d := New(HandlerFunc(func(ctx context.Context, _ message.RawUpdate) error {
		done <- ctx.Err()
		return nil
	}), Options{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Enqueue(ctx, update("1@c.us", "a")))
	cancel()
	d.Close()
	assert.NoError(t, <-done)
}
