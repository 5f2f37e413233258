// Package scraper reads tweets and replies out of rendered X pages. It is
// the fallback path when the JSON API is unavailable, and it backs the
// import of saved timeline pages.
package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pauljones0/x-parser/internal/models"
	"github.com/pauljones0/x-parser/internal/util"
	"github.com/pauljones0/x-parser/internal/xclient"
)

// ErrNoTweets is returned when a page holds neither tweet articles nor
// structured data.
var ErrNoTweets = errors.New("no tweets found in page")

var (
	permalinkRegex   = regexp.MustCompile(`/(\w+)/status/(\d+)`)
	leadingCountRegx = regexp.MustCompile(`^\s*([\d.,]+[KkMmBb]?)`)
)

// allowedHosts limits FetchConversation to X status pages.
var allowedHosts = []string{"x.com", "www.x.com", "twitter.com", "www.twitter.com", "mobile.twitter.com"}

type Client struct {
	httpClient *http.Client
	selectors  SelectorConfig
	hosts      []string
}

func New(selectors SelectorConfig, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		selectors: selectors,
		hosts:     allowedHosts,
	}
}

// scrapedArticle is one tweet article read from the DOM.
type scrapedArticle struct {
	tweet   models.Tweet
	isQuote bool
}

// ParseTimeline extracts every tweet article from a rendered timeline page.
// Pages without articles fall back to embedded JSON-LD.
func (c *Client) ParseTimeline(r io.Reader) ([]models.Tweet, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	articles := c.parseArticles(doc)
	if len(articles) > 0 {
		tweets := make([]models.Tweet, 0, len(articles))
		for _, a := range articles {
			tweets = append(tweets, a.tweet)
		}
		return tweets, nil
	}

	postings := c.parseJSONLD(doc)
	if len(postings) == 0 {
		return nil, ErrNoTweets
	}
	tweets := make([]models.Tweet, 0, len(postings))
	for i := range postings {
		if t, ok := postingToTweet(&postings[i]); ok {
			tweets = append(tweets, t)
		}
	}
	return tweets, nil
}

// ParseConversation extracts the root tweet and its replies from a rendered
// status page. Articles shown above the root are ancestors and are skipped.
// The DOM does not expose reply nesting, so DOM replies are attached to the
// root; JSON-LD comments keep their nesting.
func (c *Client) ParseConversation(r io.Reader, rootID string) (*models.Tweet, []models.ReplyRecord, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var (
		root    *models.Tweet
		replies []models.ReplyRecord
	)
	for _, a := range c.parseArticles(doc) {
		if a.tweet.TweetID == rootID {
			t := a.tweet
			root = &t
			continue
		}
		if root == nil {
			continue
		}
		replies = append(replies, models.ReplyRecord{
			ID:                a.tweet.TweetID,
			AuthorHandle:      a.tweet.AuthorUsername,
			AuthorDisplayName: a.tweet.AuthorName,
			Text:              a.tweet.Content,
			CreatedAt:         a.tweet.CreatedAt,
			LikeCount:         a.tweet.Likes,
			ShareCount:        a.tweet.Retweets,
			ReplyCount:        a.tweet.Replies,
			ParentID:          rootID,
			RootID:            rootID,
			IsRetweet:         a.tweet.IsRetweet,
			IsQuote:           a.isQuote,
		})
	}
	if root != nil {
		return root, replies, nil
	}

	postings := c.parseJSONLD(doc)
	for i := range postings {
		p := &postings[i]
		if p.Identifier != rootID && !strings.Contains(p.URL, "/status/"+rootID) {
			continue
		}
		t, ok := postingToTweet(p)
		if !ok {
			continue
		}
		t.TweetID = rootID
		return &t, flattenComments(p.Comment, rootID, rootID), nil
	}
	return nil, nil, ErrNoTweets
}

func (c *Client) parseArticles(doc *goquery.Document) []scrapedArticle {
	sel := c.selectors.Article
	var out []scrapedArticle
	var parseErrors []string

	doc.Find(sel.Container).Each(func(i int, s *goquery.Selection) {
		var a scrapedArticle
		t := &a.tweet

		// 1. Permalink and timestamp. The anchor wrapping <time> is the
		// article's own permalink; other status links may be quotes.
		timeSel := s.Find(sel.Time).First()
		href, _ := timeSel.Closest("a").Attr("href")
		if href == "" {
			href, _ = s.Find(sel.Permalink).First().Attr("href")
		}
		m := permalinkRegex.FindStringSubmatch(href)
		if m == nil {
			parseErrors = append(parseErrors, fmt.Sprintf("article %d: permalink not found", i))
			return
		}
		t.AuthorUsername, t.TweetID = m[1], m[2]
		t.URL = util.StatusURL(m[1], m[2])

		if dt, ok := timeSel.Attr("datetime"); ok {
			if parsed, err := time.Parse(time.RFC3339, dt); err == nil {
				t.CreatedAt = parsed.UTC()
			} else {
				parseErrors = append(parseErrors, fmt.Sprintf("article %s: bad datetime %q", t.TweetID, dt))
			}
		}

		// 2. Author display name is the first span inside the user block.
		t.AuthorName = strings.TrimSpace(s.Find(sel.UserName).Find("span").First().Text())

		// 3. Text and reshare markers.
		t.Content = strings.TrimSpace(s.Find(sel.Text).First().Text())
		if ctxText := strings.ToLower(s.Find(sel.SocialContext).Text()); strings.Contains(ctxText, "repost") || strings.Contains(ctxText, "retweet") {
			t.IsRetweet = true
		}
		a.isQuote = s.Find(sel.Quoted).Length() > 0

		// 4. Counters.
		t.Replies = readCount(s.Find(sel.ReplyCount).First())
		t.Retweets = readCount(s.Find(sel.RetweetCount).First())
		t.Likes = readCount(s.Find(sel.LikeCount).First())

		t.Categories = []string{}
		t.AIComments = []string{}
		out = append(out, a)
	})

	if len(parseErrors) > 0 {
		slog.Debug("Encountered parsing issues", "count", len(parseErrors), "issues", strings.Join(parseErrors, "; "))
	}
	return out
}

// readCount reads a counter button, preferring its aria-label ("12 Likes.
// Like") over the visible abbreviated text ("1.2K").
func readCount(s *goquery.Selection) int {
	if s.Length() == 0 {
		return 0
	}
	if label, ok := s.Attr("aria-label"); ok {
		if m := leadingCountRegx.FindStringSubmatch(label); m != nil {
			return util.ParseMetric(m[1])
		}
	}
	return util.ParseMetric(strings.TrimSpace(s.Text()))
}

func (c *Client) parseJSONLD(doc *goquery.Document) []JSONLDSocialMediaPosting {
	var postings []JSONLDSocialMediaPosting
	doc.Find(c.selectors.JSONLD).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		// A block is either one object or an array of objects.
		var many []JSONLDSocialMediaPosting
		if err := json.Unmarshal([]byte(raw), &many); err == nil {
			postings = append(postings, many...)
			return
		}
		var one JSONLDSocialMediaPosting
		if err := json.Unmarshal([]byte(raw), &one); err != nil {
			slog.Debug("Skipping unparsable JSON-LD block", "error", err)
			return
		}
		postings = append(postings, one)
	})
	return postings
}

func postingToTweet(p *JSONLDSocialMediaPosting) (models.Tweet, bool) {
	id := p.Identifier
	handle := p.Author.AdditionalName
	if m := permalinkRegex.FindStringSubmatch(p.URL); m != nil {
		if id == "" {
			id = m[2]
		}
		if handle == "" {
			handle = m[1]
		}
	}
	if id == "" {
		return models.Tweet{}, false
	}
	return models.Tweet{
		TweetID:        id,
		AuthorUsername: handle,
		AuthorName:     p.Author.Name,
		Content:        p.body(),
		CreatedAt:      p.DatePublished.UTC(),
		URL:            util.StatusURL(handle, id),
		Likes:          p.count("LikeAction"),
		Retweets:       p.count("ShareAction"),
		Replies:        p.count("CommentAction"),
		IsRetweet:      p.SharedContent != nil && p.body() == "",
		Categories:     []string{},
		AIComments:     []string{},
	}, true
}

// flattenComments walks nested JSON-LD comments depth-first, recording each
// comment's parent.
func flattenComments(comments []JSONLDSocialMediaPosting, parentID, rootID string) []models.ReplyRecord {
	var out []models.ReplyRecord
	for i := range comments {
		cm := &comments[i]
		t, ok := postingToTweet(cm)
		if !ok {
			continue
		}
		out = append(out, models.ReplyRecord{
			ID:                t.TweetID,
			AuthorHandle:      t.AuthorUsername,
			AuthorDisplayName: t.AuthorName,
			Text:              t.Content,
			CreatedAt:         cm.DatePublished.UTC(),
			LikeCount:         t.Likes,
			ShareCount:        t.Retweets,
			ReplyCount:        t.Replies,
			ParentID:          parentID,
			RootID:            rootID,
			IsQuote:           cm.SharedContent != nil && t.Content != "",
			IsRetweet:         t.IsRetweet,
		})
		out = append(out, flattenComments(cm.Comment, t.TweetID, rootID)...)
	}
	return out
}

// FetchConversation downloads a status page with the session cookies and
// parses it with ParseConversation.
func (c *Client) FetchConversation(ctx context.Context, creds xclient.Credentials, statusURL string) (*models.Tweet, []models.ReplyRecord, error) {
	rootID, err := util.ExtractTweetID(statusURL)
	if err != nil {
		return nil, nil, err
	}
	body, err := c.fetchHTMLContent(ctx, creds, statusURL)
	if err != nil {
		return nil, nil, err
	}
	defer body.Close()
	return c.ParseConversation(body, rootID)
}

func (c *Client) fetchHTMLContent(ctx context.Context, creds xclient.Credentials, urlStr string) (io.ReadCloser, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL %s: %w", urlStr, err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("invalid URL scheme %s: only http and https allowed", parsedURL.Scheme)
	}

	hostname := parsedURL.Hostname()
	allowed := false
	for _, domain := range c.hosts {
		if hostname == domain {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("security violation: URL hostname %s is not in allowlist", hostname)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for URL %s: %w", urlStr, err)
	}
	if creds.Valid() {
		req.AddCookie(&http.Cookie{Name: "auth_token", Value: creds.AuthToken})
		req.AddCookie(&http.Cookie{Name: "ct0", Value: creds.CSRFToken})
	}
	req.Header.Set("Accept", "text/html")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL %s: %w", urlStr, err)
	}

	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, fmt.Errorf("failed to fetch URL %s: status code %d", urlStr, res.StatusCode)
	}

	return res.Body, nil
}
