package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

// contextKey is a private type to avoid collisions in context.
type contextKey string

const (
	ctxRID       contextKey = "rid"
	ctxReceiptID contextKey = "receipt_id"
	ctxChatID    contextKey = "chat_id"
	ctxSenderID  contextKey = "sender_id"
	ctxLogger    contextKey = "logger"
	ctxHandler   contextKey = "handler"
	ctxScene     contextKey = "scene"
	ctxTraceID   contextKey = "trace_id"
	ctxSpanID    contextKey = "span_id"
)

// WithLogger stores the provided slog.Logger in context for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxLogger, log)
}

// FromContext extracts slog.Logger from context or returns global default.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxLogger).(*slog.Logger); ok {
			return l
		}
	}
	return L
}

// WithRID attaches request correlation id into context.
func WithRID(ctx context.Context, rid string) context.Context {
	return withString(ctx, ctxRID, rid)
}

// RIDFrom extracts rid from context if present.
func RIDFrom(ctx context.Context) string {
	return stringFrom(ctx, ctxRID)
}

// WithUpdateMeta attaches the notification receipt and conversation identifiers to context.
func WithUpdateMeta(ctx context.Context, receiptID int64, chatID, senderID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if receiptID != 0 {
		ctx = context.WithValue(ctx, ctxReceiptID, receiptID)
	}
	ctx = withString(ctx, ctxChatID, chatID)
	return withString(ctx, ctxSenderID, senderID)
}

// ReceiptIDFrom extracts the notification receipt id from context.
func ReceiptIDFrom(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	if id, ok := ctx.Value(ctxReceiptID).(int64); ok {
		return id
	}
	return 0
}

// ChatIDFrom extracts chat id from context.
func ChatIDFrom(ctx context.Context) string {
	return stringFrom(ctx, ctxChatID)
}

// SenderIDFrom extracts sender id from context.
func SenderIDFrom(ctx context.Context) string {
	return stringFrom(ctx, ctxSenderID)
}

// WithHandler stores handler identifier in context for downstream logs.
func WithHandler(ctx context.Context, handler string) context.Context {
	return withString(ctx, ctxHandler, handler)
}

// HandlerFrom returns handler identifier from context if present.
func HandlerFrom(ctx context.Context) string {
	return stringFrom(ctx, ctxHandler)
}

// WithScene stores the active scene id in context.
func WithScene(ctx context.Context, scene string) context.Context {
	return withString(ctx, ctxScene, scene)
}

// SceneFrom returns the active scene id from context if present.
func SceneFrom(ctx context.Context) string {
	return stringFrom(ctx, ctxScene)
}

// WithTrace attaches trace and span identifiers to context.
func WithTrace(ctx context.Context, traceID, spanID string) context.Context {
	ctx = withString(ctx, ctxTraceID, traceID)
	return withString(ctx, ctxSpanID, spanID)
}

// TraceIDFrom extracts trace id from context.
func TraceIDFrom(ctx context.Context) string {
	return stringFrom(ctx, ctxTraceID)
}

// SpanIDFrom extracts span id from context.
func SpanIDFrom(ctx context.Context) string {
	return stringFrom(ctx, ctxSpanID)
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(key).(string); ok {
		return s
	}
	return ""
}

// Sanitize drops control and format runes except tab and newline.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	b := strings.Builder{}
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) || r == 0x7F {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SanitizeLimit applies Sanitize and limits the output length in runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(Sanitize(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max])
}

// BuildRID returns a correlation identifier in the format receiptID:chatID:senderID.
func BuildRID(receiptID int64, chatID, senderID string) string {
	return fmt.Sprintf("%d:%s:%s", receiptID, chatID, senderID)
}

// CompactRID shortens a receipt:chat:sender RID into base36 segments.
// WhatsApp ids lose their server suffix; group chats keep a "g" marker.
// Input that does not match the format is returned unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	if rid == "" {
		return ""
	}
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	compact := make([]string, 0, len(parts))
	for _, part := range parts {
		seg, ok := compactSegment(strings.TrimSpace(part))
		if !ok {
			return rid
		}
		compact = append(compact, seg)
	}
	return strings.Join(compact, ".")
}

func compactSegment(part string) (string, bool) {
	if part == "" {
		return "", false
	}
	marker := ""
	if local, server, found := strings.Cut(part, "@"); found {
		part = local
		if server == "g.us" {
			marker = "g"
		}
	}
	// Group ids may carry a creator-timestamp form like 79001234567-1600000000.
	part = strings.ReplaceAll(part, "-", "")
	n, err := strconv.ParseInt(part, 10, 64)
	if err != nil {
		return "", false
	}
	return marker + strconv.FormatInt(n, 36), true
}
