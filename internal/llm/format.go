package llm

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	formatterSystemPrompt = "You are a *faithful* text formatter. Do not add or remove information. " +
		"Fix punctuation and casing. Split into sentences and short paragraphs. " +
		"Keep names and wording; no summaries, no bullet lists. Output plain formatted text only."
	formatterMaxTokens = 800
)

// Formatter cleans up punctuation and casing of raw transcript text.
type Formatter struct {
	chat *Chat
}

// NewFormatter uses chat when it is loaded; a nil chat always formats
// with FormatFallback.
func NewFormatter(chat *Chat) *Formatter {
	return &Formatter{chat: chat}
}

// Format never fails: model errors fall back to the deterministic
// formatter. The bool reports whether the model produced the text.
func (f *Formatter) Format(ctx context.Context, raw string) (string, bool) {
	if f.chat == nil || f.chat.client == nil || strings.TrimSpace(raw) == "" {
		return FormatFallback(raw), false
	}
	out, err := f.chat.chat(ctx, formatterSystemPrompt, raw, formatterMaxTokens)
	if err != nil {
		slog.Warn("model formatting failed, using fallback", "error", err)
		return FormatFallback(raw), false
	}
	return out, true
}

// FormatFallback collapses whitespace, splits after runs of . ? or !
// and capitalizes each sentence.
func FormatFallback(raw string) string {
	txt := strings.Join(strings.Fields(raw), " ")
	if txt == "" {
		return ""
	}

	var parts []string
	var cur strings.Builder
	afterStop := false
	for _, r := range txt {
		if isStop(r) {
			cur.WriteRune(r)
			afterStop = true
			continue
		}
		if afterStop {
			if r == ' ' {
				continue
			}
			parts = append(parts, cur.String())
			cur.Reset()
			afterStop = false
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}

	for i, p := range parts {
		parts[i] = capitalize(p)
	}
	return strings.Join(parts, " ")
}

func isStop(r rune) bool { return r == '.' || r == '?' || r == '!' }

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
