package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pauljones0/x-parser/internal/xclient"
)

func article(handle, id, datetime, text, extra string, replies, retweets, likes string) string {
	return `<article data-testid="tweet">` + extra +
		`<div data-testid="User-Name"><a href="/` + handle + `"><span>` + strings.ToUpper(handle) + `</span></a></div>` +
		`<a href="/` + handle + `/status/` + id + `"><time datetime="` + datetime + `">time</time></a>` +
		`<div data-testid="tweetText">` + text + `</div>` +
		`<button data-testid="reply" aria-label="` + replies + ` Replies. Reply"></button>` +
		`<button data-testid="retweet"><span>` + retweets + `</span></button>` +
		`<button data-testid="like" aria-label="` + likes + ` Likes. Like"></button>` +
		`</article>`
}

func page(body string) string {
	return `<html><body><main>` + body + `</main></body></html>`
}

func TestParseTimeline_Articles(t *testing.T) {
	c := New(DefaultSelectors(), 0)
	html := page(
		article("alice", "100", "2024-05-01T10:00:00.000Z", "hello world", "", "3", "1.2K", "1,234") +
			article("bob", "101", "2024-05-01T11:00:00.000Z", "reposted thing",
				`<span data-testid="socialContext">Carol reposted</span>`, "0", "0", "0"),
	)

	tweets, err := c.ParseTimeline(strings.NewReader(html))
	if err != nil {
		t.Fatalf("ParseTimeline() error = %v", err)
	}
	if len(tweets) != 2 {
		t.Fatalf("expected 2 tweets, got %d", len(tweets))
	}

	first := tweets[0]
	if first.TweetID != "100" || first.AuthorUsername != "alice" || first.AuthorName != "ALICE" {
		t.Errorf("unexpected identity: %+v", first)
	}
	if first.Content != "hello world" {
		t.Errorf("Content = %q", first.Content)
	}
	if first.URL != "https://x.com/alice/status/100" {
		t.Errorf("URL = %q", first.URL)
	}
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if !first.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", first.CreatedAt, want)
	}
	if first.Replies != 3 || first.Retweets != 1200 || first.Likes != 1234 {
		t.Errorf("counts = %d/%d/%d, want 3/1200/1234", first.Replies, first.Retweets, first.Likes)
	}
	if first.IsRetweet {
		t.Error("first tweet should not be a retweet")
	}
	if !tweets[1].IsRetweet {
		t.Error("second tweet should be flagged as a retweet")
	}
}

func TestParseTimeline_JSONLDFallback(t *testing.T) {
	c := New(DefaultSelectors(), 0)
	html := page(`<script type="application/ld+json">[
		{"@type":"SocialMediaPosting","identifier":"200","url":"https://x.com/dave/status/200",
		 "articleBody":"from json-ld","datePublished":"2024-06-01T08:00:00Z",
		 "author":{"name":"Dave","additionalName":"dave"},
		 "interactionStatistic":[{"interactionType":"https://schema.org/LikeAction","userInteractionCount":7}]}
	]</script>`)

	tweets, err := c.ParseTimeline(strings.NewReader(html))
	if err != nil {
		t.Fatalf("ParseTimeline() error = %v", err)
	}
	if len(tweets) != 1 {
		t.Fatalf("expected 1 tweet, got %d", len(tweets))
	}
	if tweets[0].TweetID != "200" || tweets[0].Content != "from json-ld" || tweets[0].Likes != 7 {
		t.Errorf("unexpected tweet: %+v", tweets[0])
	}
}

func TestParseTimeline_Empty(t *testing.T) {
	c := New(DefaultSelectors(), 0)
	_, err := c.ParseTimeline(strings.NewReader(page("<p>nothing here</p>")))
	if !errors.Is(err, ErrNoTweets) {
		t.Errorf("expected ErrNoTweets, got %v", err)
	}
}

func TestParseConversation_DOM(t *testing.T) {
	c := New(DefaultSelectors(), 0)
	html := page(
		// Ancestor shown above the focal tweet.
		article("zed", "90", "2024-05-01T09:00:00Z", "ancestor", "", "1", "0", "0") +
			article("alice", "100", "2024-05-01T10:00:00Z", "root", "", "2", "0", "5") +
			article("bob", "101", "2024-05-01T10:05:00Z", "first reply", "", "0", "0", "1") +
			article("carol", "102", "2024-05-01T10:06:00Z", "quoting",
				`<div role="link"><div data-testid="tweetText">quoted body</div></div>`, "0", "0", "0"),
	)

	root, replies, err := c.ParseConversation(strings.NewReader(html), "100")
	if err != nil {
		t.Fatalf("ParseConversation() error = %v", err)
	}
	if root == nil || root.TweetID != "100" || root.Content != "root" {
		t.Fatalf("unexpected root: %+v", root)
	}
	if len(replies) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(replies))
	}
	for _, r := range replies {
		if r.ParentID != "100" || r.RootID != "100" {
			t.Errorf("reply %s: parent=%s root=%s, want 100/100", r.ID, r.ParentID, r.RootID)
		}
	}
	if replies[0].ID != "101" || replies[0].AuthorHandle != "bob" || replies[0].LikeCount != 1 {
		t.Errorf("unexpected first reply: %+v", replies[0])
	}
	if !replies[1].IsQuote {
		t.Error("expected quoted reply to be flagged")
	}
}

func TestParseConversation_JSONLDNesting(t *testing.T) {
	c := New(DefaultSelectors(), 0)
	html := page(`<script type="application/ld+json">
		{"@type":"SocialMediaPosting","identifier":"300","url":"https://x.com/erin/status/300",
		 "articleBody":"root post","datePublished":"2024-07-01T12:00:00Z",
		 "author":{"name":"Erin","additionalName":"erin"},
		 "comment":[
		   {"@type":"Comment","url":"https://x.com/frank/status/301","text":"reply",
		    "datePublished":"2024-07-01T12:01:00Z","author":{"name":"Frank","additionalName":"frank"},
		    "comment":[
		      {"@type":"Comment","url":"https://x.com/erin/status/302","text":"nested",
		       "datePublished":"2024-07-01T12:02:00Z","author":{"name":"Erin","additionalName":"erin"}}
		    ]}
		 ]}
	</script>`)

	root, replies, err := c.ParseConversation(strings.NewReader(html), "300")
	if err != nil {
		t.Fatalf("ParseConversation() error = %v", err)
	}
	if root.TweetID != "300" || root.Content != "root post" {
		t.Errorf("unexpected root: %+v", root)
	}
	if len(replies) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(replies))
	}
	if replies[0].ID != "301" || replies[0].ParentID != "300" {
		t.Errorf("reply 301: got id=%s parent=%s", replies[0].ID, replies[0].ParentID)
	}
	if replies[1].ID != "302" || replies[1].ParentID != "301" || replies[1].RootID != "300" {
		t.Errorf("reply 302: got id=%s parent=%s root=%s", replies[1].ID, replies[1].ParentID, replies[1].RootID)
	}
}

func TestParseConversation_RootMissing(t *testing.T) {
	c := New(DefaultSelectors(), 0)
	html := page(article("bob", "101", "2024-05-01T10:05:00Z", "reply", "", "0", "0", "0"))
	_, _, err := c.ParseConversation(strings.NewReader(html), "100")
	if !errors.Is(err, ErrNoTweets) {
		t.Errorf("expected ErrNoTweets, got %v", err)
	}
}

func TestFetchConversation_Allowlist(t *testing.T) {
	c := New(DefaultSelectors(), time.Second)
	_, _, err := c.FetchConversation(context.Background(), xclient.Credentials{}, "https://notx.com/alice/status/100")
	if err == nil || !strings.Contains(err.Error(), "allowlist") {
		t.Fatalf("expected allowlist error, got %v", err)
	}
}

func TestFetchHTMLContent_SecurityAndCookies(t *testing.T) {
	var gotCookie string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie("auth_token"); err == nil {
			gotCookie = ck.Value
		}
		w.Write([]byte(page(article("alice", "100", "2024-05-01T10:00:00Z", "root", "", "0", "0", "0"))))
	}))
	defer server.Close()

	c := New(DefaultSelectors(), time.Second)
	creds := xclient.Credentials{AuthToken: "tok", CSRFToken: "csrf"}

	if _, err := c.fetchHTMLContent(context.Background(), creds, server.URL+"/alice/status/100"); err == nil {
		t.Fatal("expected allowlist rejection for test server host")
	} else if !strings.Contains(err.Error(), "allowlist") {
		t.Errorf("unexpected error: %v", err)
	}

	if _, err := c.fetchHTMLContent(context.Background(), creds, "ftp://x.com/alice/status/100"); err == nil {
		t.Error("expected scheme rejection")
	}

	c.hosts = append(c.hosts, "127.0.0.1")
	body, err := c.fetchHTMLContent(context.Background(), creds, server.URL+"/alice/status/100")
	if err != nil {
		t.Fatalf("fetchHTMLContent() error = %v", err)
	}
	defer body.Close()
	root, _, err := c.ParseConversation(body, "100")
	if err != nil || root.TweetID != "100" {
		t.Fatalf("ParseConversation() = %+v, %v", root, err)
	}
	if gotCookie != "tok" {
		t.Errorf("auth_token cookie = %q, want tok", gotCookie)
	}
}

func TestLoadConfig_Embedded(t *testing.T) {
	sel := LoadConfig("")
	if sel.Article.Container != DefaultSelectors().Article.Container {
		t.Errorf("container = %q", sel.Article.Container)
	}
	if sel.JSONLD == "" {
		t.Error("expected JSON-LD selector")
	}
}

func TestLoadSelectorsFromBytes_RequiresContainer(t *testing.T) {
	if _, err := LoadSelectorsFromBytes([]byte(`{"article":{}}`)); err == nil {
		t.Error("expected error for missing container")
	}
}
