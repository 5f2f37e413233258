package util

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	statusURLRegex = regexp.MustCompile(`(?:twitter\.com|x\.com)/(\w+)/status(?:es)?/(\d+)`)
	tweetIDRegex   = regexp.MustCompile(`^\d{1,20}$`)
)

// statusHosts lists hosts that serve status pages and are rewritten to x.com.
var statusHosts = map[string]bool{
	"x.com":              true,
	"www.x.com":          true,
	"mobile.x.com":       true,
	"twitter.com":        true,
	"www.twitter.com":    true,
	"mobile.twitter.com": true,
}

// ExtractTweetID returns the numeric status id from a status URL, or the
// input itself when it already is a bare id.
func ExtractTweetID(input string) (string, error) {
	input = strings.TrimSpace(input)
	if tweetIDRegex.MatchString(input) {
		return input, nil
	}
	m := statusURLRegex.FindStringSubmatch(input)
	if m == nil {
		return "", fmt.Errorf("no tweet id in %q", input)
	}
	return m[2], nil
}

// StatusURL builds the canonical status URL for a tweet.
func StatusURL(handle, tweetID string) string {
	if handle == "" {
		handle = "i"
	}
	return "https://x.com/" + handle + "/status/" + tweetID
}

// NormalizeStatusURL rewrites twitter.com and mobile hosts to x.com and drops
// tracking query parameters. URLs on other hosts are returned unchanged.
func NormalizeStatusURL(rawURL string) (string, error) {
	parsedURL, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL, err
	}
	if !statusHosts[strings.ToLower(parsedURL.Hostname())] {
		return rawURL, nil
	}

	m := statusURLRegex.FindStringSubmatch("x.com" + parsedURL.Path)
	if m == nil {
		return rawURL, fmt.Errorf("not a status URL: %q", rawURL)
	}
	return StatusURL(m[1], m[2]), nil
}
