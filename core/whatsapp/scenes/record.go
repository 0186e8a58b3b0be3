package scenes

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/m3rciful/wabot/core/whatsapp"
)

// SessionKey is the session entry holding the active scene record.
const SessionKey = "__scene"

const (
	fieldID        = "id"
	fieldState     = "state"
	fieldEnteredAt = "entered_at"
	fieldCursor    = "cursor"
	fieldData      = "data"
	fieldCompleted = "completed"
)

func recordOf(c *whatsapp.Context) (map[string]any, bool) {
	if c.Session == nil {
		return nil, false
	}
	rec, ok := c.Session[SessionKey].(map[string]any)
	if !ok || rec == nil {
		return nil, false
	}
	return rec, true
}

func activeID(c *whatsapp.Context) string {
	rec, ok := recordOf(c)
	if !ok {
		return ""
	}
	id, _ := rec[fieldID].(string)
	return id
}

func newRecord(id string, now time.Time) map[string]any {
	return map[string]any{
		fieldID:        id,
		fieldState:     map[string]any{},
		fieldEnteredAt: now.UTC().Format(time.RFC3339Nano),
	}
}

func clearRecord(c *whatsapp.Context) {
	if c.Session != nil {
		delete(c.Session, SessionKey)
	}
}

func enteredAt(rec map[string]any) (time.Time, bool) {
	raw, _ := rec[fieldEnteredAt].(string)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// stateOf returns the live state map of rec, creating it when missing.
func stateOf(rec map[string]any) map[string]any {
	st, ok := rec[fieldState].(map[string]any)
	if !ok || st == nil {
		st = map[string]any{}
		rec[fieldState] = st
	}
	return st
}

func cursorOf(rec map[string]any) int {
	n, _ := toInt(rec[fieldCursor])
	return n
}

func stepDataOf(rec map[string]any) map[string]any {
	data, ok := rec[fieldData].(map[string]any)
	if !ok || data == nil {
		data = map[string]any{}
		rec[fieldData] = data
	}
	return data
}

func completedOf(rec map[string]any) []int {
	raw, _ := rec[fieldCompleted].([]any)
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		if n, ok := toInt(v); ok {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

func markCompleted(rec map[string]any, step int) {
	for _, n := range completedOf(rec) {
		if n == step {
			return
		}
	}
	raw, _ := rec[fieldCompleted].([]any)
	rec[fieldCompleted] = append(raw, step)
}

// toInt accepts the numeric shapes produced by in-memory and JSON-backed stores.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}
