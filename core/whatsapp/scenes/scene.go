// Package scenes implements named conversation states (scenes), ordered
// step flows (wizards) and the Stage that routes updates to the active one.
// All scene state lives in the session under the "__scene" key, so it
// survives restarts whenever the session store does.
package scenes

import (
	"errors"
	"sync"
	"time"

	"github.com/m3rciful/wabot/core/whatsapp"
)

// Entry is a scene registered on a Stage: a *Scene or a *Wizard.
type Entry interface {
	ID() string

	base() *Scene
	handle(c *whatsapp.Context, next whatsapp.HandlerFunc) error
	// entered reports whether it handled the entering update itself.
	entered(c *whatsapp.Context) (bool, error)
	initRecord(rec map[string]any)
}

// Scene is a named conversation state with its own handler registry.
// While it is active its routes take precedence over the bot's.
type Scene struct {
	*whatsapp.Composer

	id string

	mu      sync.RWMutex
	ttl     time.Duration
	onEnter []whatsapp.HandlerFunc
	onLeave []whatsapp.HandlerFunc
}

// New returns an empty scene.
func New(id string) *Scene {
	return &Scene{Composer: whatsapp.NewComposer(), id: id}
}

// ID returns the scene identifier.
func (s *Scene) ID() string { return s.id }

// OnEnter appends hooks fired after the scene becomes active.
func (s *Scene) OnEnter(hs ...whatsapp.HandlerFunc) *Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnter = appendHandlers(s.onEnter, hs)
	return s
}

// OnLeave appends hooks fired before the scene is cleared.
func (s *Scene) OnLeave(hs ...whatsapp.HandlerFunc) *Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLeave = appendHandlers(s.onLeave, hs)
	return s
}

// SetTTL expires the scene d after it was entered. Zero disables expiry.
func (s *Scene) SetTTL(d time.Duration) *Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttl = d
	return s
}

// TTL returns the configured expiry.
func (s *Scene) TTL() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ttl
}

func (s *Scene) base() *Scene { return s }

func (s *Scene) handle(c *whatsapp.Context, next whatsapp.HandlerFunc) error {
	return s.Composer.Run(c, next)
}

func (s *Scene) entered(*whatsapp.Context) (bool, error) { return false, nil }

func (s *Scene) initRecord(map[string]any) {}

func (s *Scene) fireEnter(c *whatsapp.Context) error {
	s.mu.RLock()
	hooks := s.onEnter
	s.mu.RUnlock()
	return runHooks(c, hooks)
}

func (s *Scene) fireLeave(c *whatsapp.Context) error {
	s.mu.RLock()
	hooks := s.onLeave
	s.mu.RUnlock()
	return runHooks(c, hooks)
}

func (s *Scene) expired(rec map[string]any, now time.Time) bool {
	ttl := s.TTL()
	if ttl <= 0 {
		return false
	}
	at, ok := enteredAt(rec)
	return ok && now.Sub(at) > ttl
}

func runHooks(c *whatsapp.Context, hooks []whatsapp.HandlerFunc) error {
	var errs []error
	for _, h := range hooks {
		if err := h(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func appendHandlers(dst, hs []whatsapp.HandlerFunc) []whatsapp.HandlerFunc {
	for _, h := range hs {
		if h != nil {
			dst = append(dst, h)
		}
	}
	return dst
}
