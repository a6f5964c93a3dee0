package publisher

import (
	"strings"

	"CryptoNewsAnalyzer/internal/domain"
)

// EmojiRule decorates an entry whose title or description contains Keyword.
type EmojiRule struct {
	Keyword string
	Symbol  string
}

// DefaultEmojiRules are evaluated in order; the first match wins.
var DefaultEmojiRules = []EmojiRule{
	{Keyword: "bitcoin", Symbol: "₿"},
	{Keyword: "биткоин", Symbol: "₿"},
	{Keyword: "btc", Symbol: "₿"},
	{Keyword: "ethereum", Symbol: "Ξ"},
	{Keyword: "эфириум", Symbol: "Ξ"},
	{Keyword: "новая функция", Symbol: "✨"},
	{Keyword: "обновлен", Symbol: "✨"},
	{Keyword: "upgrade", Symbol: "✨"},
	{Keyword: "взлом", Symbol: "🚨"},
	{Keyword: "hack", Symbol: "🚨"},
	{Keyword: "exploit", Symbol: "🚨"},
	{Keyword: "листинг", Symbol: "🆕"},
	{Keyword: "listing", Symbol: "🆕"},
	{Keyword: "регулятор", Symbol: "⚖️"},
	{Keyword: "regulat", Symbol: "⚖️"},
	{Keyword: "etf", Symbol: "🏦"},
	{Keyword: "airdrop", Symbol: "🎁"},
}

type bucket struct {
	title  string
	symbol string
}

var buckets = map[domain.Group]bucket{
	domain.GroupNews:      {title: "📰 Новости", symbol: "📢"},
	domain.GroupRumors:    {title: "🗣 Слухи", symbol: "❓"},
	domain.GroupInsider:   {title: "🕵 Инсайды", symbol: "🔐"},
	domain.GroupEducation: {title: "📚 Обучение", symbol: "🎓"},
	domain.GroupAnalytics: {title: "📊 Аналитика", symbol: "📈"},
	domain.GroupOthers:    {title: "📌 Разное", symbol: "📢"},
}

// pickEmoji scans title and description case-insensitively.
func pickEmoji(rules []EmojiRule, title, description, fallback string) string {
	text := strings.ToLower(title + " " + description)
	for _, rule := range rules {
		if strings.Contains(text, strings.ToLower(rule.Keyword)) {
			return rule.Symbol
		}
	}
	return fallback
}
