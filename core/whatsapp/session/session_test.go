package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/wabot/core/database"
	"github.com/m3rciful/wabot/core/whatsapp"
	"github.com/m3rciful/wabot/core/whatsapp/message"
)

func TestMemoryStoreRoundTripAndIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	got, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	in := map[string]any{"count": 1, "nested": map[string]any{"a": []any{"x"}}}
	require.NoError(t, s.Set(ctx, "k", in))
	in["nested"].(map[string]any)["a"] = "mutated"

	got, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": 1, "nested": map[string]any{"a": []any{"x"}}}, got)

	got["count"] = 2
	again, _ := s.Get(ctx, "k")
	assert.Equal(t, 1, again["count"])

	require.NoError(t, s.Delete(ctx, "k"))
	assert.Equal(t, 0, s.Len())
	assert.ErrorIs(t, s.Set(ctx, "", in), ErrEmptyKey)
}

func TestFileStoreSurvivesRecreate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "sessions.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "79001234567@c.us", map[string]any{"count": 1}))
	require.NoError(t, s.Set(ctx, "gone", map[string]any{"x": true}))
	require.NoError(t, s.Delete(ctx, "gone"))

	// reads through the same instance follow JSON typing
	got, err := s.Get(ctx, "79001234567@c.us")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": float64(1)}, got)

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	got, err = reopened.Get(ctx, "79001234567@c.us")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": float64(1)}, got)

	got, err = reopened.Get(ctx, "gone")
	require.NoError(t, err)
	assert.Empty(t, got)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := NewFileStore(path)
	require.Error(t, err)
}

func TestSQLStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, database.MemoryPath)
	require.NoError(t, err)
	defer db.Close()

	s := NewSQLStore(db)
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Set(ctx, "k", map[string]any{"count": 1}))
	require.NoError(t, s.Set(ctx, "k", map[string]any{"count": 2, "name": "Al"}))
	got, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": float64(2), "name": "Al"}, got)

	n, err := s.Prune(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.Delete(ctx, "k"))
	got, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := NewKeyedMutex()
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		active = map[string]int{}
		peak   = map[string]int{}
	)
	for i := 0; i < 40; i++ {
		key := []string{"a", "b"}[i%2]
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock(key)
			defer unlock()
			mu.Lock()
			active[key]++
			if active[key] > peak[key] {
				peak[key] = active[key]
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active[key]--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, peak)
	assert.Zero(t, km.Len())

	unlock := km.Lock("x")
	unlock()
	unlock()
	assert.Zero(t, km.Len())
}

func counterBot(store Store, opts ...Option) *whatsapp.Bot {
	b := whatsapp.NewBot(nil)
	b.Use(Middleware(store, opts...))
	b.Command("reset", func(c *whatsapp.Context) error {
		delete(c.Session, "count")
		return nil
	})
	b.On(func(c *whatsapp.Context) error {
		n, _ := c.Session["count"].(int)
		c.Session["count"] = n + 1
		return nil
	})
	return b
}

func TestMiddlewareSerializesConcurrentUpdates(t *testing.T) {
	store := NewMemoryStore()
	b := counterBot(store)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, b.HandleUpdate(context.Background(), message.Synthetic("7@c.us", "", "hit")))
		}()
	}
	wg.Wait()

	got, err := store.Get(context.Background(), "7@c.us")
	require.NoError(t, err)
	assert.Equal(t, 50, got["count"])

	require.NoError(t, b.HandleUpdate(context.Background(), message.Synthetic("7@c.us", "", "/reset")))
	assert.Equal(t, 0, store.Len())
}

func TestMiddlewareKeyBySender(t *testing.T) {
	store := NewMemoryStore()
	b := counterBot(store, KeyBySender(true))
	ctx := context.Background()

	require.NoError(t, b.HandleUpdate(ctx, message.Synthetic("1203@g.us", "7@c.us", "a")))
	require.NoError(t, b.HandleUpdate(ctx, message.Synthetic("1203@g.us", "8@c.us", "b")))
	require.NoError(t, b.HandleUpdate(ctx, message.Synthetic("1203@g.us", "7@c.us", "c")))

	a, _ := store.Get(ctx, "1203@g.us:7@c.us")
	bb, _ := store.Get(ctx, "1203@g.us:8@c.us")
	assert.Equal(t, 2, a["count"])
	assert.Equal(t, 1, bb["count"])
}

type failingStore struct {
	*MemoryStore
	setErr error
}

func (f failingStore) Set(context.Context, string, map[string]any) error { return f.setErr }

func TestMiddlewareJoinsHandlerAndSaveErrors(t *testing.T) {
	saveErr := errors.New("disk full")
	handlerErr := errors.New("handler")
	b := whatsapp.NewBot(nil)
	b.Use(Middleware(failingStore{MemoryStore: NewMemoryStore(), setErr: saveErr}))
	b.On(func(c *whatsapp.Context) error {
		c.Session["x"] = 1
		return handlerErr
	})

	err := b.HandleUpdate(context.Background(), message.Synthetic("7@c.us", "", "x"))
	assert.ErrorIs(t, err, saveErr)
	assert.ErrorIs(t, err, handlerErr)
}

func TestMiddlewareSkipsUpdatesWithoutChat(t *testing.T) {
	store := NewMemoryStore()
	b := whatsapp.NewBot(nil)
	b.Use(Middleware(store))
	b.OnKind(func(c *whatsapp.Context) error {
		c.Session["seen"] = true
		return nil
	}, message.KindState)

	state := "authorized"
	require.NoError(t, b.HandleUpdate(context.Background(), message.RawUpdate{
		TypeWebhook:   message.WebhookStateInstance,
		StateInstance: &state,
	}))
	assert.Zero(t, store.Len())
}
