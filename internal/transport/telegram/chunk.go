package telegram

import (
	"strings"
	"unicode/utf16"
)

// MaxMessageChars stays under Telegram's 4096 limit with room for prefixes.
// Like Telegram, it counts UTF-16 code units, so an emoji outside the BMP
// counts as two.
const MaxMessageChars = 4000

// TextLen is the length of s as Telegram counts it (UTF-16 code units).
func TextLen(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

// Chunk splits text on line boundaries into pieces of at most maxLen
// UTF-16 code units (see TextLen).
//
// Lines are never split: a single line longer than maxLen becomes its own
// oversized chunk. Joining the result with "\n" gives back text exactly.
// maxLen <= 0 means MaxMessageChars.
func Chunk(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = MaxMessageChars
	}
	if TextLen(text) <= maxLen {
		return []string{text}
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, 4)

	var cur strings.Builder
	curLen := 0
	started := false
	for _, line := range lines {
		n := TextLen(line)
		if !started {
			cur.WriteString(line)
			curLen = n
			started = true
			continue
		}
		if curLen+1+n <= maxLen {
			cur.WriteByte('\n')
			cur.WriteString(line)
			curLen += 1 + n
			continue
		}
		out = append(out, cur.String())
		cur.Reset()
		cur.WriteString(line)
		curLen = n
	}
	if started {
		out = append(out, cur.String())
	}
	return out
}
