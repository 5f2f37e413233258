package scraper

import (
	"encoding/json"
	"fmt"
	"os"
)

// SelectorConfig holds the CSS selectors used to read tweets out of a
// rendered X page.
type SelectorConfig struct {
	Article ArticleSelectors `json:"article"`
	JSONLD  string           `json:"json_ld"`
}

type ArticleSelectors struct {
	Container     string `json:"container"`
	Text          string `json:"text"`
	UserName      string `json:"user_name"`
	Time          string `json:"time"`
	Permalink     string `json:"permalink"`
	SocialContext string `json:"social_context"` // "reposted" banner on retweets
	Quoted        string `json:"quoted"`
	ReplyCount    string `json:"reply_count"`
	RetweetCount  string `json:"retweet_count"`
	LikeCount     string `json:"like_count"`
}

// LoadSelectors loads the selector configuration from the specified JSON file.
func LoadSelectors(path string) (SelectorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to read selector config file: %w", err)
	}

	return LoadSelectorsFromBytes(data)
}

// LoadSelectorsFromBytes parses selector configuration from raw JSON bytes.
func LoadSelectorsFromBytes(data []byte) (SelectorConfig, error) {
	var config SelectorConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to parse selector config JSON: %w", err)
	}
	if config.Article.Container == "" {
		return SelectorConfig{}, fmt.Errorf("selector config: article.container is required")
	}

	return config, nil
}

// DefaultSelectors returns the fallback configuration if no JSON file is loaded.
func DefaultSelectors() SelectorConfig {
	return SelectorConfig{
		Article: ArticleSelectors{
			Container:     `article[data-testid="tweet"]`,
			Text:          `div[data-testid="tweetText"]`,
			UserName:      `div[data-testid="User-Name"]`,
			Time:          "time",
			Permalink:     `a[href*="/status/"]`,
			SocialContext: `span[data-testid="socialContext"]`,
			Quoted:        `div[role="link"] div[data-testid="tweetText"]`,
			ReplyCount:    `button[data-testid="reply"]`,
			RetweetCount:  `button[data-testid="retweet"]`,
			LikeCount:     `button[data-testid="like"]`,
		},
		JSONLD: `script[type="application/ld+json"]`,
	}
}
