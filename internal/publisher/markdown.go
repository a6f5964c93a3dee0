package publisher

import (
	"strings"
	"unicode/utf16"
)

const reservedChars = "\\_*[]()~`>#-+=|{}.!"

// Escape prefixes every MarkdownV2 control character with a backslash.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(reservedChars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EscapeURL escapes a link target, where only ')' and '\' are significant.
func EscapeURL(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == ')' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Length measures s in UTF-16 code units, the unit Telegram limits messages by.
func Length(s string) int {
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

// truncateUnits cuts s so that it holds at most limit UTF-16 units.
func truncateUnits(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	n := 0
	for i, r := range s {
		l := utf16.RuneLen(r)
		if l < 1 {
			l = 1
		}
		if n+l > limit {
			return s[:i]
		}
		n += l
	}
	return s
}
