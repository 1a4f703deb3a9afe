package sources

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"

	"hashwatch/internal/core"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func collect(t *testing.T, f core.Fetcher, term string, since int64) ([]core.Item, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	itemChan, errChan := f.Fetch(ctx, term, since)
	var items []core.Item
	var fetchErr error
	for itemChan != nil || errChan != nil {
		select {
		case item, ok := <-itemChan:
			if !ok {
				itemChan = nil
				continue
			}
			items = append(items, item)
		case err, ok := <-errChan:
			if !ok {
				errChan = nil
				continue
			}
			fetchErr = err
		}
	}
	return items, fetchErr
}

const searchJSON = `{
  "statuses": [
    {"created_at": "Mon Jan 01 00:01:40 +0000 2024", "full_text": "old one #nba", "user": {"name": "Alice"}},
    {"created_at": "Mon Jan 01 00:03:20 +0000 2024", "full_text": "AT&amp;T courtside #nba #nba", "user": {"name": "Bob"}},
    {"created_at": "Mon Jan 01 00:02:30 +0000 2024", "text": "short text", "user": {"name": "", "screen_name": "carol"}},
    {"created_at": "not a date", "text": "broken", "user": {"name": "Dan"}}
  ]
}`

func TestAPISourceFetch(t *testing.T) {
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/tweets.json" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.Query().Get("q")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, searchJSON)
	}))
	defer srv.Close()

	src := NewAPISource(APIConfig{
		BaseURL:        srv.URL,
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
		AccessToken:    "at",
		AccessSecret:   "as",
		Logger:         discardLogger(),
	})
	if err := src.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	items, err := collect(t, src, "#nba", base+100)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if gotQuery != "#nba" {
		t.Fatalf("q = %q, want #nba", gotQuery)
	}
	if !strings.HasPrefix(gotAuth, "OAuth ") || !strings.Contains(gotAuth, `oauth_consumer_key="ck"`) {
		t.Fatalf("Authorization = %q, want OAuth1 header", gotAuth)
	}

	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2: %+v", len(items), items)
	}
	if items[0].Author != "Bob" || items[0].Timestamp != base+200 || items[0].Body != "AT&T courtside #nba #nba" {
		t.Fatalf("items[0] = %+v", items[0])
	}
	if len(items[0].Tags) != 1 || items[0].Tags[0] != "#nba" {
		t.Fatalf("items[0].Tags = %v, want [#nba]", items[0].Tags)
	}
	if items[1].Author != "carol" || items[1].Timestamp != base+150 {
		t.Fatalf("items[1] = %+v", items[1])
	}
	for _, item := range items {
		if item.Timestamp <= base+100 {
			t.Fatalf("item %+v not newer than since", item)
		}
	}
}

func TestAPISourceHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	src := NewAPISource(APIConfig{BaseURL: srv.URL, Logger: discardLogger()})
	src.Initialize(context.Background())

	items, err := collect(t, src, "#nba", 0)
	if err == nil {
		t.Fatal("Fetch() error = nil, want status error")
	}
	if len(items) != 0 {
		t.Fatalf("items = %v, want none", items)
	}
}

const searchPage = `<?xml version="1.0" encoding="utf-8"?>
<html><body>
<table class="tweet">
  <tr><td class="username">@alice</td><td class="timestamp"><a name="tweet_1000">1m</a></td></tr>
  <tr><td class="tweet-text"><div class="dir-ltr">first #nba</div></td></tr>
</table>
<table class="tweet">
  <tr><td class="username">@bob</td><td class="timestamp"><a name="tweet_999">2m</a></td></tr>
  <tr><td class="tweet-text"><div class="dir-ltr">older #nba</div></td></tr>
</table>
<table class="tweet">
  <tr><td class="username">@carol</td><td class="timestamp"><a name="tweet_10000">now</a></td></tr>
  <tr><td class="tweet-text"><div class="dir-ltr">newest #nba #finals</div></td></tr>
</table>
<table class="tweet">
  <tr><td class="username">@nobody</td><td class="timestamp"><span>no anchor</span></td></tr>
</table>
</body></html>`

func TestScrapeSourceFetch(t *testing.T) {
	var gotQuery, gotMode string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotMode = r.URL.Query().Get("s")
		io.WriteString(w, searchPage)
	}))
	defer srv.Close()

	src := NewScrapeSource(ScrapeConfig{URL: srv.URL, Mode: SearchNonStrict, Logger: discardLogger()})
	if src.Domain() != core.DomainPlatformID {
		t.Fatalf("Domain() = %v, want platform-id", src.Domain())
	}

	// 999 equals since and is dropped. 10000 is kept although it sorts
	// before "999" as a plain string.
	items, err := collect(t, src, "#nba", 999)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if gotQuery != "#nba" || gotMode != "typd" {
		t.Fatalf("query = (%q, %q), want (#nba, typd)", gotQuery, gotMode)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2: %+v", len(items), items)
	}
	if items[0].Author != "@alice" || items[0].Timestamp != 1000 || items[0].Body != "first #nba" {
		t.Fatalf("items[0] = %+v", items[0])
	}
	if items[1].Timestamp != 10000 || len(items[1].Tags) != 2 {
		t.Fatalf("items[1] = %+v", items[1])
	}
}

func TestStripXMLDeclaration(t *testing.T) {
	got := stripXMLDeclaration(`<?xml version="1.0" encoding="utf-8"?><html></html>`)
	if got != "<html></html>" {
		t.Fatalf("stripXMLDeclaration() = %q", got)
	}
	if got := stripXMLDeclaration("<html></html>"); got != "<html></html>" {
		t.Fatalf("stripXMLDeclaration() changed plain html: %q", got)
	}
}

func TestParseSearchMode(t *testing.T) {
	if m, err := ParseSearchMode(""); err != nil || m != SearchExact {
		t.Fatalf("ParseSearchMode(\"\") = (%q, %v), want sprv", m, err)
	}
	if m, err := ParseSearchMode("typd"); err != nil || m != SearchNonStrict {
		t.Fatalf("ParseSearchMode(typd) = (%q, %v), want typd", m, err)
	}
	if _, err := ParseSearchMode("fuzzy"); err == nil {
		t.Fatal("ParseSearchMode(fuzzy) error = nil")
	}
}

const searchRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
<channel>
  <title>search</title>
  <item>
    <title>t1</title>
    <dc:creator>alice</dc:creator>
    <description>&lt;p&gt;new &lt;b&gt;#oslo&lt;/b&gt;&lt;/p&gt;</description>
    <pubDate>Mon, 01 Jan 2024 00:03:20 GMT</pubDate>
  </item>
  <item>
    <title>t2</title>
    <dc:creator>bob</dc:creator>
    <description>old #oslo</description>
    <pubDate>Mon, 01 Jan 2024 00:00:10 GMT</pubDate>
  </item>
  <item>
    <title>undated</title>
    <description>no date #oslo</description>
  </item>
</channel>
</rss>`

func TestFeedSourceFetch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/rss+xml")
		io.WriteString(w, searchRSS)
	}))
	defer srv.Close()

	src, err := NewFeedSource(FeedConfig{URLTemplate: srv.URL + "/search/rss?q=%s", Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewFeedSource() error = %v", err)
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	items, err := collect(t, src, "#oslo", base+100)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if gotQuery != "#oslo" {
		t.Fatalf("q = %q, want #oslo", gotQuery)
	}
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1: %+v", len(items), items)
	}
	if items[0].Author != "alice" || items[0].Body != "new #oslo" || items[0].Timestamp != base+200 {
		t.Fatalf("items[0] = %+v", items[0])
	}
}

func TestNewFeedSourceRejectsTemplate(t *testing.T) {
	if _, err := NewFeedSource(FeedConfig{URLTemplate: "https://example.com/rss"}); err == nil {
		t.Fatal("NewFeedSource() without placeholder error = nil")
	}
}

func TestPostToItem(t *testing.T) {
	name := "Alice A."
	post := &bsky.FeedDefs_PostView{
		Uri:       "at://did:plc:abc/app.bsky.feed.post/1",
		IndexedAt: "2024-01-01T00:05:00.000Z",
		Author:    &bsky.ActorDefs_ProfileViewBasic{Handle: "alice.bsky.social", DisplayName: &name},
		Record: &lexutil.LexiconTypeDecoder{Val: &bsky.FeedPost{
			Text:      "tip off #nba #nba",
			CreatedAt: "2024-01-01T00:03:20.123Z",
		}},
	}

	item, err := postToItem(post)
	if err != nil {
		t.Fatalf("postToItem() error = %v", err)
	}

	want := time.Date(2024, 1, 1, 0, 3, 20, 0, time.UTC).Unix()
	if item.Timestamp != want || item.Author != "Alice A." || len(item.Tags) != 1 {
		t.Fatalf("item = %+v", item)
	}

	post.Author.DisplayName = nil
	post.Record.Val.(*bsky.FeedPost).CreatedAt = "garbage"
	item, err = postToItem(post)
	if err != nil {
		t.Fatalf("postToItem() with bad createdAt error = %v", err)
	}
	if item.Author != "alice.bsky.social" || item.Timestamp != want+100 {
		t.Fatalf("item with fallbacks = %+v", item)
	}

	if _, err := postToItem(&bsky.FeedDefs_PostView{}); err == nil {
		t.Fatal("postToItem() without record error = nil")
	}
}

type failingSession struct{ err error }

func (s failingSession) Do(ctx context.Context, fn func(c *xrpc.Client) error) error {
	return s.err
}

func TestBlueskySourceSessionError(t *testing.T) {
	wantErr := errors.New("session expired")
	src := NewBlueskySource(BlueskyConfig{Session: failingSession{err: wantErr}, Logger: discardLogger()})

	items, err := collect(t, src, "#nba", 0)
	if !errors.Is(err, wantErr) {
		t.Fatalf("Fetch() error = %v, want %v", err, wantErr)
	}
	if len(items) != 0 {
		t.Fatalf("items = %v, want none", items)
	}
}
