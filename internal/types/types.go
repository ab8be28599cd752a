package types

import (
	"strings"
	"time"
)

// ContentItem is one post fetched from a platform. It is not modified after
// the platform hands it to the orchestrator.
type ContentItem struct {
	ID        string
	Platform  string
	Author    string
	CreatedAt time.Time
	Title     string
	Body      string
	Permalink string
	Flair     string

	// AuthorScore is the author's reputation (karma, followers). Nil when the
	// platform has no such notion or the lookup failed.
	AuthorScore *int64
	ScoreUnit   string
}

// Text is what gets classified: the title followed by the body.
func (i *ContentItem) Text() string {
	title := strings.TrimSpace(i.Title)
	body := strings.TrimSpace(i.Body)

	switch {
	case title == "":
		return body
	case body == "":
		return title
	default:
		return title + "\n\n" + body
	}
}

func (i *ContentItem) Score() int64 {
	if i.AuthorScore == nil {
		return 0
	}
	return *i.AuthorScore
}
