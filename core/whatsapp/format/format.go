// Package format builds WhatsApp-flavoured rich text.
package format

import (
	"strings"
)

// Bold wraps text in WhatsApp bold markers.
func Bold(text string) string { return wrap(text, "*") }

// Italic wraps text in WhatsApp italic markers.
func Italic(text string) string { return wrap(text, "_") }

// Strike wraps text in WhatsApp strikethrough markers.
func Strike(text string) string { return wrap(text, "~") }

// Mono renders text as a monospace block.
func Mono(text string) string {
	if text == "" {
		return ""
	}
	return "```" + strings.ReplaceAll(text, "```", "'''") + "```"
}

// Code renders text as inline code.
func Code(text string) string { return wrap(text, "`") }

// Quote prefixes each line with the quote marker.
func Quote(text string) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}

// List renders items as a bulleted list.
func List(items ...string) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(item)
	}
	return b.String()
}

// Escape breaks formatting markers in user supplied text by inserting a
// zero-width joiner after each one.
func Escape(text string) string {
	return escaper.Replace(text)
}

var escaper = strings.NewReplacer(
	"*", "*\u200d",
	"_", "_\u200d",
	"~", "~\u200d",
	"`", "`\u200d",
)

// wrap keeps surrounding whitespace outside the markers; WhatsApp ignores
// markers that touch a space.
func wrap(text, marker string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return text
	}
	start := strings.Index(text, trimmed)
	return text[:start] + marker + trimmed + marker + text[start+len(trimmed):]
}
