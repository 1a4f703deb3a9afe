package core

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"hashwatch/internal"
)

var tagPattern = regexp.MustCompile(`#[a-zA-Z0-9_-]+`)

// Item is one fetched record. It is a value: once built by NewItem it is
// passed around by copy and never modified.
type Item struct {
	Author    string
	Timestamp int64
	Body      string
	Tags      []string
}

var _ internal.Into[[]any] = Item{}

func NewItem(author string, timestamp int64, body string) Item {
	body = norm.NFC.String(body)
	return Item{
		Author:    author,
		Timestamp: timestamp,
		Body:      body,
		Tags:      ExtractTags(body),
	}
}

// Into flattens the item into a tweets row without its term id:
// time, author, message, tags.
func (i Item) Into() []any {
	return []any{i.Timestamp, i.Author, i.Body, strings.Join(i.Tags, " ")}
}

// ExtractTags returns the hashtags in body, each once, in order of first
// appearance.
func ExtractTags(body string) []string {
	matches := tagPattern.FindAllString(body, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	tags := make([]string, 0, len(matches))
	for _, tag := range matches {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}
