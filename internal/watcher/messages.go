package watcher

import (
	"errors"
	"strings"
	"unicode/utf8"

	"dartwatch/internal/dart"
)

const (
	heartbeatNoDisclosures = "🧪 [TEST] Scheduler is running (no disclosures)"
	heartbeatNothingNew    = "🧪 [TEST] Scheduler is running (no new disclosure)"
	logDumpHeader          = "🧾 [TEST] Run log"

	maxRawInReport = 1000
)

// NewDisclosureMessage is the announcement text: title, newline, viewer link.
func NewDisclosureMessage(d dart.Disclosure) string {
	return "📌 " + d.Title + "\n" + d.URL()
}

// FailureMessage summarizes a failed run for the chat. The raw API envelope
// is included (truncated) so operators see what the upstream said.
func FailureMessage(corpCode string, err error) string {
	var b strings.Builder
	b.WriteString("⚠️ Disclosure check failed")
	if corpCode != "" {
		b.WriteString(" (corp ")
		b.WriteString(corpCode)
		b.WriteString(")")
	}
	b.WriteString("\n")
	b.WriteString(err.Error())

	var se *dart.SourceError
	if errors.As(err, &se) && strings.TrimSpace(se.Raw) != "" {
		b.WriteString("\nresponse: ")
		b.WriteString(truncateRunes(strings.TrimSpace(se.Raw), maxRawInReport))
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
