package middleware

import (
	"strings"

	"github.com/m3rciful/wabot/core/whatsapp"
)

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	AdminID  string
	OnReject whatsapp.HandlerFunc
}

// AdminOnly ensures that only the admin sender can invoke downstream handlers.
// An empty AdminID disables the check.
func AdminOnly(opts AdminOptions) whatsapp.MiddlewareFunc {
	if strings.TrimSpace(opts.AdminID) == "" {
		return func(next whatsapp.HandlerFunc) whatsapp.HandlerFunc { return next }
	}
	return AllowOnly(opts.OnReject, opts.AdminID)
}

// AllowOnly passes updates whose sender is one of ids. Others go to onReject, if set, or are dropped.
func AllowOnly(onReject whatsapp.HandlerFunc, ids ...string) whatsapp.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = normalizeID(id); id != "" {
			allowed[id] = struct{}{}
		}
	}
	return func(next whatsapp.HandlerFunc) whatsapp.HandlerFunc {
		return func(c *whatsapp.Context) error {
			if _, ok := allowed[normalizeID(c.SenderID())]; ok {
				return next(c)
			}
			if onReject != nil {
				return onReject(c)
			}
			return nil
		}
	}
}

// normalizeID accepts both "79001234567" and "79001234567@c.us".
func normalizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if !strings.Contains(id, "@") {
		id += "@c.us"
	}
	return id
}
