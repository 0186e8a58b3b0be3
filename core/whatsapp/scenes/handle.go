package scenes

import (
	"log/slog"

	"github.com/m3rciful/wabot/core/logger"
	"github.com/m3rciful/wabot/core/whatsapp"
)

// Handle controls scenes on behalf of one update.
type Handle struct {
	c     *whatsapp.Context
	stage *Stage
}

// From returns the scene handle for c. Operations fail with ErrNoStage
// unless the Stage middleware ran for c.
func From(c *whatsapp.Context) *Handle {
	return &Handle{c: c, stage: stageOf(c)}
}

// Enter switches to the scene id.
func (h *Handle) Enter(id string) error {
	if h.stage == nil {
		return ErrNoStage
	}
	return h.stage.Enter(h.c, id)
}

// Leave leaves the active scene.
func (h *Handle) Leave() error {
	if h.stage == nil {
		return ErrNoStage
	}
	return h.stage.Leave(h.c)
}

// Reenter restarts the active scene.
func (h *Handle) Reenter() error {
	if h.stage == nil {
		return ErrNoStage
	}
	return h.stage.Reenter(h.c)
}

// Current returns the active scene id, or "".
func (h *Handle) Current() string {
	if h.stage == nil {
		return ""
	}
	if e := h.stage.Current(h.c); e != nil {
		return e.ID()
	}
	return ""
}

// State returns the live state map of the active scene. Changes are saved
// with the session. Without an active scene it returns an empty detached map.
func (h *Handle) State() map[string]any {
	rec, ok := recordOf(h.c)
	if !ok {
		return map[string]any{}
	}
	return stateOf(rec)
}

// SetState replaces the state of the active scene.
func (h *Handle) SetState(state map[string]any) {
	rec, ok := recordOf(h.c)
	if !ok {
		return
	}
	if state == nil {
		state = map[string]any{}
	}
	rec[fieldState] = state
}

// UpdateState merges updates into the state of the active scene.
func (h *Handle) UpdateState(updates map[string]any) {
	rec, ok := recordOf(h.c)
	if !ok {
		return
	}
	st := stateOf(rec)
	for k, v := range updates {
		st[k] = v
	}
}

// Only passes updates on while one of ids is the active scene and drops them otherwise.
func Only(ids ...string) whatsapp.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		allowed[id] = struct{}{}
	}
	return func(next whatsapp.HandlerFunc) whatsapp.HandlerFunc {
		return func(c *whatsapp.Context) error {
			current := From(c).Current()
			if _, ok := allowed[current]; ok && current != "" {
				logger.Debug(c.Context(), logger.CompScene, "scene.match",
					slog.String("scene", current),
				)
				return next(c)
			}
			logger.Debug(c.Context(), logger.CompScene, "scene.skip",
				slog.String("scene", current),
			)
			return nil
		}
	}
}
