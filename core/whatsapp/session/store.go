// Package session persists per-conversation state between updates.
package session

import (
	"context"
	"errors"
)

// ErrEmptyKey is returned by stores for an empty session key.
var ErrEmptyKey = errors.New("session: empty key")

// Store is a pluggable key-value persistence for sessions.
// Implementations must be safe for concurrent use. Get returns an empty,
// non-nil map for unknown keys.
type Store interface {
	Get(ctx context.Context, key string) (map[string]any, error)
	Set(ctx context.Context, key string, data map[string]any) error
	Delete(ctx context.Context, key string) error
}

// Clone deep-copies nested maps and slices of a session value tree.
func Clone(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Clone(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
