package scenes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/m3rciful/wabot/core/logger"
	"github.com/m3rciful/wabot/core/whatsapp"
)

// ErrSceneNotFound is returned when entering an unregistered scene.
var ErrSceneNotFound = errors.New("scenes: scene not found")

// ErrNoStage is returned by handle operations on a Context the Stage middleware never saw.
var ErrNoStage = errors.New("scenes: stage middleware not installed")

const stageKey = "scenes.stage"

// Stage maps scene ids to scenes and routes updates to the active one.
type Stage struct {
	mu     sync.RWMutex
	scenes map[string]Entry
	def    string
	now    func() time.Time
}

// NewStage returns a Stage with the given scenes registered.
func NewStage(entries ...Entry) *Stage {
	st := &Stage{scenes: make(map[string]Entry), now: time.Now}
	for _, e := range entries {
		st.Register(e)
	}
	return st
}

// Register adds e. Empty and duplicate ids are skipped with a warning.
func (st *Stage) Register(e Entry) *Stage {
	if e == nil {
		return st
	}
	id := e.ID()
	st.mu.Lock()
	defer st.mu.Unlock()
	if id == "" {
		logger.Warn(context.Background(), logger.CompWire, "register.scene.skip", slog.String("reason", "empty id"))
		return st
	}
	if _, dup := st.scenes[id]; dup {
		logger.Warn(context.Background(), logger.CompWire, "register.scene.duplicate", slog.String("scene", id))
		return st
	}
	st.scenes[id] = e
	return st
}

// Unregister removes the scene with id.
func (st *Stage) Unregister(id string) *Stage {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.scenes, id)
	if st.def == id {
		st.def = ""
	}
	return st
}

// Scene returns the scene registered under id.
func (st *Stage) Scene(id string) (Entry, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	e, ok := st.scenes[id]
	return e, ok
}

// IDs lists the registered scene ids in order.
func (st *Stage) IDs() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	ids := make([]string, 0, len(st.scenes))
	for id := range st.scenes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetDefault makes the middleware enter id whenever no scene is active.
func (st *Stage) SetDefault(id string) error {
	if _, ok := st.Scene(id); !ok && id != "" {
		return fmt.Errorf("%w: %q", ErrSceneNotFound, id)
	}
	st.mu.Lock()
	st.def = id
	st.mu.Unlock()
	return nil
}

func (st *Stage) defaultID() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.def
}

// Middleware routes updates to the active scene. Updates the scene declines
// continue down the pipeline; with no active scene the Stage is inert.
func (st *Stage) Middleware() whatsapp.MiddlewareFunc {
	return func(next whatsapp.HandlerFunc) whatsapp.HandlerFunc {
		return func(c *whatsapp.Context) error {
			c.Set(stageKey, st)
			entry := st.Current(c)
			if entry == nil {
				if def := st.defaultID(); def != "" && c.ChatID() != "" {
					dispatched, err := st.enter(c, def)
					if err != nil || dispatched {
						return err
					}
					entry = st.Current(c)
				}
			}
			if entry == nil {
				return next(c)
			}
			prev := c.Context()
			c.SetContext(logger.WithScene(prev, entry.ID()))
			defer c.SetContext(prev)
			return entry.handle(c, next)
		}
	}
}

// Current returns the active scene. Expired records are cleared without
// firing leave hooks; records naming an unregistered scene are ignored.
func (st *Stage) Current(c *whatsapp.Context) Entry {
	rec, ok := recordOf(c)
	if !ok {
		return nil
	}
	id, _ := rec[fieldID].(string)
	entry, found := st.Scene(id)
	if !found {
		return nil
	}
	if entry.base().expired(rec, st.now()) {
		clearRecord(c)
		logger.Info(c.Context(), logger.CompScene, "scene.expired",
			slog.String("scene", id),
			slog.Duration("ttl", entry.base().TTL()),
		)
		return nil
	}
	return entry
}

// Enter leaves the active scene (firing its leave hooks), records id as
// active and fires its enter hooks. Entering the active scene again re-enters it.
func (st *Stage) Enter(c *whatsapp.Context, id string) error {
	_, err := st.enter(c, id)
	return err
}

// enter reports whether the entered scene already handled the current update.
func (st *Stage) enter(c *whatsapp.Context, id string) (bool, error) {
	target, ok := st.Scene(id)
	if !ok {
		logger.Warn(c.Context(), logger.CompScene, "scene.enter",
			slog.String("status", "fail"),
			slog.String("scene", id),
			slog.String("err_code", "SCENE_NOT_FOUND"),
		)
		return false, fmt.Errorf("%w: %q", ErrSceneNotFound, id)
	}
	c.Set(stageKey, st)

	from := ""
	var errs []error
	if cur := st.Current(c); cur != nil {
		from = cur.ID()
		errs = append(errs, st.leave(c, cur))
	}

	rec := newRecord(id, st.now())
	target.initRecord(rec)
	c.Session[SessionKey] = rec

	prev := c.Context()
	c.SetContext(logger.WithScene(prev, id))
	defer c.SetContext(prev)

	logger.Info(c.Context(), logger.CompScene, "scene.enter",
		slog.String("status", "ok"),
		slog.String("from", from),
		slog.String("scene", id),
	)
	errs = append(errs, target.base().fireEnter(c))
	dispatched := false
	// A hook may already have moved on to another scene.
	if activeID(c) == id {
		var err error
		dispatched, err = target.entered(c)
		errs = append(errs, err)
	}
	return dispatched, errors.Join(errs...)
}

// Leave fires the active scene's leave hooks and clears it. It is a no-op without an active scene.
func (st *Stage) Leave(c *whatsapp.Context) error {
	cur := st.Current(c)
	if cur == nil {
		return nil
	}
	return st.leave(c, cur)
}

// Reenter leaves and enters the active scene again, resetting its state.
func (st *Stage) Reenter(c *whatsapp.Context) error {
	cur := st.Current(c)
	if cur == nil {
		return nil
	}
	return st.Enter(c, cur.ID())
}

func (st *Stage) leave(c *whatsapp.Context, e Entry) error {
	err := e.base().fireLeave(c)
	// Leave hooks may enter another scene; only clear our own record.
	if activeID(c) == e.ID() {
		clearRecord(c)
	}
	logger.Info(c.Context(), logger.CompScene, "scene.leave",
		slog.String("status", logger.Status(err)),
		slog.String("scene", e.ID()),
	)
	return err
}

func stageOf(c *whatsapp.Context) *Stage {
	st, _ := c.Get(stageKey).(*Stage)
	return st
}
