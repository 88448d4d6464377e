package models

// NewsEvent is one headline pulled from an RSS feed, as published to the
// news topic.
type NewsEvent struct {
	Source      string `json:"source"`
	Title       string `json:"title"`
	Link        string `json:"link"`
	PublishedAt int64  `json:"publishedAt"` // unix millis, 0 when the feed omits it
	IngestedAt  int64  `json:"ingestedAt"`  // unix millis
}
