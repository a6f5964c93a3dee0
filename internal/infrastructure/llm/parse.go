package llm

import (
	"encoding/json"
	"errors"
	"strings"

	"CryptoNewsAnalyzer/internal/domain"
)

var errNoArray = errors.New("response holds no json array")

var categoryAliases = map[string]domain.Category{
	"analitics": domain.CategoryAnalytics,
	"analysis":  domain.CategoryAnalytics,
	"news":      domain.CategoryTrueNews,
	"true_news": domain.CategoryTrueNews,
	"fake_news": domain.CategoryFakeNews,
	"rumor":     domain.CategoryFakeNews,
	"insider":   domain.CategoryInside,
	"education": domain.CategoryTutorial,
	"trade":     domain.CategoryTrading,
	"other":     domain.CategoryOthers,
	"spam":      domain.CategorySpam,
	"flood":     domain.CategoryFlood,
	"duplicate": domain.CategoryAlreadyPosted,
	"is_spam":   domain.CategorySpam,
	"is_flood":  domain.CategoryFlood,
	"already":   domain.CategoryAlreadyPosted,
	"reposted":  domain.CategoryAlreadyPosted,
}

// parseArray decodes content as a JSON array, falling back to the span
// between the first '[' and the last ']'.
func parseArray(content string) ([]json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errNoArray
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(content), &items); err == nil {
		return items, nil
	}

	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, errNoArray
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &items); err != nil {
		return nil, errors.Join(errNoArray, err)
	}
	return items, nil
}

// repair turns raw elements into exactly n classifications.
func repair(items []json.RawMessage, n int) []domain.Classification {
	out := make([]domain.Classification, 0, n)
	for _, raw := range items {
		if len(out) == n {
			break
		}
		out = append(out, repairOne(raw))
	}
	for len(out) < n {
		out = append(out, domain.Fallback())
	}
	return out
}

func repairOne(raw json.RawMessage) domain.Classification {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return domain.Fallback()
	}

	category := stringField(obj, "category")
	if category == "" {
		category = stringField(obj, "type")
	}
	c, err := domain.NewClassification(
		string(normalizeCategory(category)),
		stringField(obj, "title"),
		stringField(obj, "description"),
	)
	if err != nil {
		return domain.Fallback()
	}
	return c
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

func normalizeCategory(value string) domain.Category {
	value = strings.TrimSpace(value)
	if c, err := domain.ParseCategory(value); err == nil {
		return c
	}
	lower := strings.ToLower(value)
	for _, c := range domain.Categories {
		if strings.ToLower(string(c)) == lower {
			return c
		}
	}
	if c, ok := categoryAliases[lower]; ok {
		return c
	}
	return domain.Category(value)
}
