package publisher

import (
	"fmt"
	"strings"

	"CryptoNewsAnalyzer/internal/domain"
)

const (
	// DefaultMaxLength is Telegram's message limit in UTF-16 units.
	DefaultMaxLength = 4096

	documentHeader = "*Криптоанализ твитов* 🌟\n\n"
	sourceLabel    = "Источник"
	minEntryRoom   = 64
)

// Renderer turns classified pairs into length-bounded MarkdownV2 messages.
type Renderer struct {
	maxLength int
	rules     []EmojiRule
	headerLen int
}

// NewRenderer validates that maxLength leaves room for at least a short entry.
// Zero selects DefaultMaxLength; nil rules select DefaultEmojiRules.
func NewRenderer(maxLength int, rules []EmojiRule) (*Renderer, error) {
	if maxLength == 0 {
		maxLength = DefaultMaxLength
	}
	if rules == nil {
		rules = DefaultEmojiRules
	}

	longestBucket := 0
	for _, b := range buckets {
		longestBucket = max(longestBucket, Length(bucketHeader(b)))
	}
	need := Length(documentHeader) + longestBucket + minEntryRoom
	if maxLength < need {
		return nil, fmt.Errorf("%w: max message length %d is below the minimum %d", domain.ErrValidation, maxLength, need)
	}
	return &Renderer{maxLength: maxLength, rules: rules, headerLen: Length(documentHeader)}, nil
}

// Render filters to valuable pairs, groups them into buckets in display order
// and packs them greedily into messages. Entries inside a bucket keep input order.
// An entry whose link and title cannot fit one message is dropped.
func (r *Renderer) Render(pairs []domain.Pair) []string {
	grouped := make(map[domain.Group][]domain.Pair)
	for _, p := range pairs {
		if p.Classification.IsValuable() {
			g := p.Classification.Group()
			grouped[g] = append(grouped[g], p)
		}
	}
	if len(grouped) == 0 {
		return nil
	}

	pk := &packer{maxLength: r.maxLength}
	for _, g := range domain.Groups {
		items := grouped[g]
		if len(items) == 0 {
			continue
		}
		b := buckets[g]
		headed := false
		for _, pair := range items {
			prefix := ""
			if !headed {
				prefix = bucketHeader(b)
			}
			budget := r.maxLength - r.headerLen - Length(prefix)
			e, ok := r.entry(pair, b.symbol, budget)
			if !ok {
				continue
			}
			pk.add(prefix, e)
			headed = true
		}
	}
	return pk.finish()
}

func bucketHeader(b bucket) string {
	return "*" + Escape(b.title) + "*\n\n"
}

// entry renders one pair within budget, shortening the description first and then
// the title. It reports false when even a one-unit title does not fit.
func (r *Renderer) entry(pair domain.Pair, fallback string, budget int) (string, bool) {
	c := pair.Classification
	symbol := pickEmoji(r.rules, c.Title, c.Description, fallback)
	link := EscapeURL(pair.Post.URL)

	render := func(title, description string) string {
		return fmt.Sprintf("*%s %s*\n%s\n[%s](%s)\n\n", Escape(title), symbol, Escape(description), sourceLabel, link)
	}

	title, description := c.Title, c.Description
	s := render(title, description)
	for Length(s) > budget {
		over := Length(s) - budget
		switch {
		case description != "":
			description = shorten(description, over)
		default:
			title = shorten(title, over)
			if title == "" {
				return "", false
			}
		}
		s = render(title, description)
	}
	return s, true
}

// shorten drops at least over units from s and marks the cut with an ellipsis.
func shorten(s string, over int) string {
	keep := Length(s) - over - 1
	if keep <= 0 {
		return ""
	}
	return truncateUnits(s, keep) + "…"
}

// packer accumulates chunks into messages that each start with the document header.
type packer struct {
	maxLength int
	cur       strings.Builder
	curLen    int
	entries   int
	out       []string
}

func (p *packer) add(prefix, entry string) {
	piece := prefix + entry
	l := Length(piece)
	if p.entries > 0 && p.curLen+l > p.maxLength {
		p.flush()
	}
	if p.entries == 0 && p.cur.Len() == 0 {
		p.cur.WriteString(documentHeader)
		p.curLen = Length(documentHeader)
	}
	p.cur.WriteString(piece)
	p.curLen += l
	p.entries++
}

func (p *packer) flush() {
	if p.entries > 0 {
		p.out = append(p.out, strings.TrimRight(p.cur.String(), "\n"))
	}
	p.cur.Reset()
	p.curLen = 0
	p.entries = 0
}

func (p *packer) finish() []string {
	p.flush()
	return p.out
}
