package scenes

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/m3rciful/wabot/core/logger"
	"github.com/m3rciful/wabot/core/whatsapp"
)

// InvalidStepError reports a jump outside [0, Total].
type InvalidStepError struct {
	Step  int
	Total int
}

func (e *InvalidStepError) Error() string {
	return fmt.Sprintf("scenes: invalid wizard step %d (steps: %d)", e.Step, e.Total)
}

// Code returns the log error code.
func (e *InvalidStepError) Code() string { return "INVALID_STEP" }

// Wizard is a scene that walks through ordered steps. Each update while it
// is active runs the step at the cursor once; scene routes registered on the
// wizard (for example /cancel) are checked first.
type Wizard struct {
	*Scene

	stepsMu sync.RWMutex
	steps   []whatsapp.HandlerFunc
}

// NewWizard returns a wizard with the given steps.
func NewWizard(id string, steps ...whatsapp.HandlerFunc) *Wizard {
	w := &Wizard{Scene: New(id)}
	w.Step(steps...)
	return w
}

// Step appends steps.
func (w *Wizard) Step(hs ...whatsapp.HandlerFunc) *Wizard {
	w.stepsMu.Lock()
	defer w.stepsMu.Unlock()
	w.steps = appendHandlers(w.steps, hs)
	return w
}

// Len returns the number of steps.
func (w *Wizard) Len() int {
	w.stepsMu.RLock()
	defer w.stepsMu.RUnlock()
	return len(w.steps)
}

func (w *Wizard) step(i int) (whatsapp.HandlerFunc, bool) {
	w.stepsMu.RLock()
	defer w.stepsMu.RUnlock()
	if i < 0 || i >= len(w.steps) {
		return nil, false
	}
	return w.steps[i], true
}

func (w *Wizard) initRecord(rec map[string]any) {
	rec[fieldCursor] = 0
	rec[fieldData] = map[string]any{}
	rec[fieldCompleted] = []any{}
}

// entered runs step 0 with the update that entered the wizard.
func (w *Wizard) entered(c *whatsapp.Context) (bool, error) {
	return true, w.runStep(c, nil)
}

func (w *Wizard) handle(c *whatsapp.Context, next whatsapp.HandlerFunc) error {
	return w.Scene.Composer.Run(c, func(c *whatsapp.Context) error {
		return w.runStep(c, next)
	})
}

// runStep invokes the step at the cursor. A terminal cursor falls through to next.
func (w *Wizard) runStep(c *whatsapp.Context, next whatsapp.HandlerFunc) error {
	rec, ok := recordOf(c)
	if !ok {
		return callNext(c, next)
	}
	cursor := cursorOf(rec)
	h, ok := w.step(cursor)
	if !ok {
		return callNext(c, next)
	}
	start := time.Now()
	err := h(c)
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("scene", w.ID()),
		slog.Int("step", cursor),
		slog.Int64("duration_ms", logger.Took(start).Milliseconds()),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
	}
	logger.Debug(c.Context(), logger.CompScene, "wizard.step", attrs...)
	return err
}

func callNext(c *whatsapp.Context, next whatsapp.HandlerFunc) error {
	if next == nil {
		return nil
	}
	return next(c)
}

// Progress summarizes how far a wizard has advanced.
type Progress struct {
	Current   int
	Total     int
	Completed int
	Percent   float64
	Done      bool
}

// WizardHandle navigates the active wizard of one update.
type WizardHandle struct {
	c      *whatsapp.Context
	wizard *Wizard
}

// WizardFrom returns the handle of the active wizard, or nil when the active scene is not a wizard.
func WizardFrom(c *whatsapp.Context) *WizardHandle {
	st := stageOf(c)
	if st == nil {
		return nil
	}
	e, ok := st.Scene(activeID(c))
	if !ok {
		return nil
	}
	w, ok := e.(*Wizard)
	if !ok {
		return nil
	}
	return &WizardHandle{c: c, wizard: w}
}

func (h *WizardHandle) record() (map[string]any, bool) {
	rec, ok := recordOf(h.c)
	if !ok {
		return nil, false
	}
	if id, _ := rec[fieldID].(string); id != h.wizard.ID() {
		return nil, false
	}
	return rec, true
}

// Cursor returns the current step index. It equals the step count once terminal.
func (h *WizardHandle) Cursor() int {
	rec, ok := h.record()
	if !ok {
		return 0
	}
	return cursorOf(rec)
}

// Completed reports whether the cursor has moved past the last step.
func (h *WizardHandle) Completed() bool {
	rec, ok := h.record()
	return ok && cursorOf(rec) >= h.wizard.Len()
}

// Next records data for the current step, when non-nil, and advances the
// cursor. It reports false and changes nothing once the cursor is terminal.
// The next step runs on the following update.
func (h *WizardHandle) Next(data map[string]any) bool {
	rec, ok := h.record()
	if !ok {
		return false
	}
	cursor := cursorOf(rec)
	if cursor >= h.wizard.Len() {
		return false
	}
	if data != nil {
		stepDataOf(rec)[strconv.Itoa(cursor)] = data
	}
	markCompleted(rec, cursor)
	rec[fieldCursor] = cursor + 1
	logger.Debug(h.c.Context(), logger.CompScene, "wizard.next",
		slog.String("scene", h.wizard.ID()),
		slog.Int("from", cursor),
		slog.Int("to", cursor+1),
	)
	return true
}

// Previous moves the cursor back one step, floored at zero. Recorded data is kept.
func (h *WizardHandle) Previous() bool {
	rec, ok := h.record()
	if !ok {
		return false
	}
	cursor := cursorOf(rec)
	if cursor <= 0 {
		return false
	}
	rec[fieldCursor] = cursor - 1
	return true
}

// JumpTo moves the cursor to n, which may be the terminal position.
// Out of range values return *InvalidStepError and leave the cursor untouched.
func (h *WizardHandle) JumpTo(n int) error {
	total := h.wizard.Len()
	if n < 0 || n > total {
		return &InvalidStepError{Step: n, Total: total}
	}
	rec, ok := h.record()
	if !ok {
		return fmt.Errorf("scenes: wizard %q is not active", h.wizard.ID())
	}
	rec[fieldCursor] = n
	return nil
}

// Complete fires the leave hooks and clears the wizard state.
func (h *WizardHandle) Complete() error {
	if _, ok := h.record(); !ok {
		return nil
	}
	logger.Info(h.c.Context(), logger.CompScene, "wizard.complete",
		slog.String("scene", h.wizard.ID()),
		slog.Int("steps", h.wizard.Len()),
	)
	st := stageOf(h.c)
	if st == nil {
		return ErrNoStage
	}
	return st.leave(h.c, h.wizard)
}

// StepData returns a copy of the data recorded at step i.
func (h *WizardHandle) StepData(i int) map[string]any {
	rec, ok := h.record()
	if !ok {
		return map[string]any{}
	}
	data, ok := rec[fieldData].(map[string]any)
	if !ok {
		return map[string]any{}
	}
	step, _ := data[strconv.Itoa(i)].(map[string]any)
	return copyMap(step)
}

// AllData returns copies of all recorded step data keyed by step index.
func (h *WizardHandle) AllData() map[int]map[string]any {
	out := map[int]map[string]any{}
	rec, ok := h.record()
	if !ok {
		return out
	}
	data, _ := rec[fieldData].(map[string]any)
	for k, v := range data {
		i, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		step, _ := v.(map[string]any)
		out[i] = copyMap(step)
	}
	return out
}

// Progress reports the wizard position.
func (h *WizardHandle) Progress() Progress {
	total := h.wizard.Len()
	p := Progress{Total: total}
	rec, ok := h.record()
	if !ok {
		return p
	}
	p.Current = cursorOf(rec)
	p.Completed = len(completedOf(rec))
	if total > 0 {
		p.Percent = float64(p.Completed) / float64(total) * 100
	}
	p.Done = p.Current >= total
	return p
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
