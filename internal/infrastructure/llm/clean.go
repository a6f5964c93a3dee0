package llm

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

const maxPostRunes = 2000

var htmlTag = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9]*(\s[^<>]*)?/?>`)

// cleanText strips markup, normalises to NFC, collapses whitespace and caps the length.
// A '<' that does not open a well-formed tag is kept as literal text.
func cleanText(s string) string {
	switch {
	case htmlTag.MatchString(s):
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(escapeStrayLT(s))); err == nil {
			s = doc.Text()
		}
	case strings.Contains(s, "&"):
		s = html.UnescapeString(s)
	}
	s = norm.NFC.String(s)
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxPostRunes {
		s = string(runes[:maxPostRunes])
	}
	return s
}

// escapeStrayLT rewrites every '<' outside a tag match as an entity so the
// HTML parser cannot open a tag there.
func escapeStrayLT(s string) string {
	var b strings.Builder
	last := 0
	for _, loc := range htmlTag.FindAllStringIndex(s, -1) {
		b.WriteString(strings.ReplaceAll(s[last:loc[0]], "<", "&lt;"))
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(strings.ReplaceAll(s[last:], "<", "&lt;"))
	return b.String()
}
