package domain

import "fmt"

// Category is a value of the closed classification taxonomy.
// The string values are the wire format exchanged with the model.
type Category string

const (
	CategoryTrueNews      Category = "trueNews"
	CategoryFakeNews      Category = "fakeNews"
	CategoryInside        Category = "inside"
	CategoryTutorial      Category = "tutorial"
	CategoryAnalytics     Category = "analytics"
	CategoryTrading       Category = "trading"
	CategoryOthers        Category = "others"
	CategorySpam          Category = "isSpam"
	CategoryFlood         Category = "isFlood"
	CategoryAlreadyPosted Category = "alreadyPosted"
)

// Categories lists the taxonomy in declaration order.
var Categories = []Category{
	CategoryTrueNews,
	CategoryFakeNews,
	CategoryInside,
	CategoryTutorial,
	CategoryAnalytics,
	CategoryTrading,
	CategoryOthers,
	CategorySpam,
	CategoryFlood,
	CategoryAlreadyPosted,
}

// ParseCategory accepts exact taxonomy values only.
func ParseCategory(value string) (Category, error) {
	for _, c := range Categories {
		if string(c) == value {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, value)
}

// Group is a display bucket used when publishing.
type Group string

const (
	GroupNews      Group = "news"
	GroupRumors    Group = "rumors"
	GroupInsider   Group = "inside"
	GroupEducation Group = "education"
	GroupAnalytics Group = "analytics"
	GroupOthers    Group = "others"
)

// Groups is the fixed display order of buckets.
var Groups = []Group{
	GroupNews,
	GroupRumors,
	GroupInsider,
	GroupEducation,
	GroupAnalytics,
	GroupOthers,
}

// Classification is the structured judgment produced for one post.
type Classification struct {
	Category    Category
	Title       string
	Description string
}

// NewClassification fails when the category is outside the taxonomy.
func NewClassification(category, title, description string) (Classification, error) {
	c, err := ParseCategory(category)
	if err != nil {
		return Classification{}, err
	}
	return Classification{Category: c, Title: title, Description: description}, nil
}

// Fallback is used for indices the model did not classify usefully.
func Fallback() Classification {
	return Classification{Category: CategoryOthers}
}

// IsNoise reports spam, flood and duplicate categories.
func (c Category) IsNoise() bool {
	switch c {
	case CategorySpam, CategoryFlood, CategoryAlreadyPosted:
		return true
	}
	return false
}

// IsValuable reports whether the classification is worth publishing.
func (c Classification) IsValuable() bool {
	return !c.Category.IsNoise() && c.Title != "" && c.Description != ""
}

// Group maps the category to its display bucket.
func (c Classification) Group() Group {
	switch c.Category {
	case CategoryTrueNews:
		return GroupNews
	case CategoryFakeNews:
		return GroupRumors
	case CategoryInside:
		return GroupInsider
	case CategoryTutorial:
		return GroupEducation
	case CategoryAnalytics, CategoryTrading:
		return GroupAnalytics
	default:
		return GroupOthers
	}
}
