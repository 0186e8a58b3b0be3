package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/wabot/core/logger"
	"github.com/m3rciful/wabot/core/whatsapp"
)

// PanicError carries a recovered panic value and the stack at the point of panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Code names the error for handler summaries.
func (e *PanicError) Code() string { return "PANIC" }

// Recover turns a panic in downstream handlers into a *PanicError.
func Recover(next whatsapp.HandlerFunc) whatsapp.HandlerFunc {
	return func(c *whatsapp.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				perr := &PanicError{Value: r, Stack: debug.Stack()}
				logger.Error(c.Context(), logger.CompWA, "panic.recovered",
					slog.String("status", "fail"),
					slog.Any("err", r),
					slog.String("stack", string(perr.Stack)),
				)
				err = perr
			}
		}()
		return next(c)
	}
}
