package domain

import "fmt"

// NewsItem is a single market news article as returned by the news source.
// PublishedAt is in epoch seconds.
type NewsItem struct {
	ID             int64    `json:"id"`
	Headline       string   `json:"headline"`
	Summary        string   `json:"summary"`
	Source         string   `json:"source"`
	URL            string   `json:"url"`
	PublishedAt    int64    `json:"datetime"`
	Category       string   `json:"category"`
	RelatedSymbols []string `json:"related,omitempty"`
	Image          string   `json:"image,omitempty"`
}

// Valid reports whether the item carries every field a digest needs.
func (n NewsItem) Valid() bool {
	return n.Headline != "" &&
		n.Summary != "" &&
		n.Source != "" &&
		n.URL != "" &&
		n.PublishedAt != 0
}

func (n NewsItem) DedupKey() string {
	return fmt.Sprintf("%d-%s-%s", n.ID, n.URL, n.Headline)
}
