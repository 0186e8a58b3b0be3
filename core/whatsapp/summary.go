package whatsapp

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/m3rciful/wabot/core/logger"
)

func handleWithSummary(c *Context, handlerName string, start time.Time, fn HandlerFunc, extras ...slog.Attr) error {
	name := normalizeHandlerName(handlerName)
	prevCtx := c.ctx
	c.ctx = logger.WithHandler(c.ctx, name)
	err := fn(c)
	logHandlerSummary(c, name, start, err, extras...)
	c.ctx = prevCtx
	return err
}

func logHandlerSummary(c *Context, handlerName string, start time.Time, err error, extras ...slog.Attr) {
	status := logger.Status(err)
	outcome := status
	if errors.Is(err, context.Canceled) {
		status, outcome = "cancelled", "cancelled"
	}

	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", handlerName),
		slog.String("outcome", outcome),
		slog.Int("messages", MessagesSent(c)),
		slog.Int64("duration_ms", logger.Took(start).Milliseconds()),
	}
	if scene := logger.SceneFrom(c.ctx); scene != "" {
		attrs = append(attrs, slog.String("scene", scene))
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
			slog.String("cause", handlerName),
		)
	}
	attrs = append(attrs, extras...)
	logger.Info(c.ctx, logger.CompWA, "handler.handled", attrs...)
}

func normalizeHandlerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	name = strings.TrimPrefix(name, "/")
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}

func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	type coder interface{ Code() string }
	var c coder
	if errors.As(err, &c) {
		if code := strings.TrimSpace(c.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Name() != "" {
		return strings.ToUpper(strings.ReplaceAll(t.Name(), " ", "_"))
	}
	return "UNKNOWN_ERROR"
}
