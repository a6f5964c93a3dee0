package domain

import (
	"fmt"
	"strings"
	"time"
)

// ProcessingState tracks whether a post has been claimed for analysis.
type ProcessingState string

const (
	StateUnseen   ProcessingState = "unseen"
	StateInFlight ProcessingState = "in_flight"
)

// Post is one unit of ingested text awaiting classification.
type Post struct {
	ID        int64
	URL       string
	Text      string
	CreatedAt time.Time
	State     ProcessingState
}

// NewPost validates the natural key and text before building a post.
func NewPost(id int64, url, text string, createdAt time.Time) (Post, error) {
	if strings.TrimSpace(url) == "" {
		return Post{}, fmt.Errorf("%w: post url cannot be empty", ErrValidation)
	}
	if strings.TrimSpace(text) == "" {
		return Post{}, fmt.Errorf("%w: post text cannot be empty", ErrValidation)
	}
	return Post{
		ID:        id,
		URL:       url,
		Text:      text,
		CreatedAt: createdAt,
		State:     StateUnseen,
	}, nil
}

// Pair binds a post to the classification produced for it.
type Pair struct {
	Post           Post
	Classification Classification
}

// ZipPairs joins posts with classifications index by index.
func ZipPairs(posts []Post, results []Classification) ([]Pair, error) {
	if len(posts) != len(results) {
		return nil, fmt.Errorf("%w: %d posts but %d classifications", ErrValidation, len(posts), len(results))
	}
	pairs := make([]Pair, len(posts))
	for i := range posts {
		pairs[i] = Pair{Post: posts[i], Classification: results[i]}
	}
	return pairs, nil
}

// ClassificationRecord is the append-only row persisted per classified post.
type ClassificationRecord struct {
	PostURL     string
	Category    Category
	Title       string
	Description string
	CreatedAt   time.Time
}
