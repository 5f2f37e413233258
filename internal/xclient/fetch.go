package xclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/pauljones0/x-parser/internal/models"
)

// graphQLFeatures mirrors the feature switches the web client sends; the
// API rejects requests that omit required ones.
var graphQLFeatures = map[string]bool{
	"responsive_web_graphql_exclude_directive_enabled":                        true,
	"verified_phone_label_enabled":                                            false,
	"creator_subscriptions_tweet_preview_api_enabled":                         true,
	"responsive_web_graphql_timeline_navigation_enabled":                      true,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled":       false,
	"tweetypie_unmention_optimization_enabled":                                true,
	"responsive_web_edit_tweet_api_enabled":                                   true,
	"graphql_is_translatable_rweb_tweet_is_translatable_enabled":              true,
	"view_counts_everywhere_api_enabled":                                      true,
	"longform_notetweets_consumption_enabled":                                 true,
	"tweet_awards_web_tipping_enabled":                                        false,
	"freedom_of_speech_not_reach_fetch_enabled":                               true,
	"standardized_nudges_misinfo":                                             true,
	"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled": true,
	"longform_notetweets_rich_text_read_enabled":                              true,
	"longform_notetweets_inline_media_enabled":                                true,
	"responsive_web_enhance_cards_enabled":                                    false,
}

func graphQLParams(variables map[string]any) (url.Values, error) {
	vars, err := json.Marshal(variables)
	if err != nil {
		return nil, err
	}
	features, err := json.Marshal(graphQLFeatures)
	if err != nil {
		return nil, err
	}
	return url.Values{
		"variables": {string(vars)},
		"features":  {string(features)},
	}, nil
}

// FetchTweet loads a single tweet by id.
func (c *Client) FetchTweet(ctx context.Context, creds Credentials, tweetID string) (*models.Tweet, error) {
	params, err := graphQLParams(map[string]any{
		"tweetId":                tweetID,
		"withCommunity":          false,
		"includePromotedContent": false,
		"withVoice":              false,
	})
	if err != nil {
		return nil, err
	}

	var resp tweetByIDResponse
	if err := c.getJSON(ctx, creds, c.endpoints.TweetByID, params, &resp); err != nil {
		return nil, fmt.Errorf("fetch tweet %s: %w", tweetID, err)
	}
	t, ok := resultToTweet(resp.Data.TweetResult.Result)
	if !ok {
		if len(resp.Errors) > 0 {
			return nil, fmt.Errorf("fetch tweet %s: %w: %s", tweetID, ErrTweetUnavailable, resp.Errors[0].Message)
		}
		return nil, fmt.Errorf("fetch tweet %s: %w", tweetID, ErrTweetUnavailable)
	}
	return &t, nil
}

// FetchConversation loads the focal tweet and up to maxPages pages of its
// replies. Replies are de-duplicated by id across pages, first page wins.
// Records are returned unfiltered; thread.Build decides what is kept.
func (c *Client) FetchConversation(ctx context.Context, creds Credentials, tweetID string, maxPages int) (*models.Tweet, []models.ReplyRecord, error) {
	if maxPages < 1 {
		maxPages = 1
	}

	var (
		root    *models.Tweet
		replies []models.ReplyRecord
		seen    = make(map[string]bool)
		cursor  string
		used    = make(map[string]bool)
	)

	for page := 0; page < maxPages; page++ {
		vars := map[string]any{
			"focalTweetId":                           tweetID,
			"with_rux_injections":                    false,
			"includePromotedContent":                 false,
			"withCommunity":                          true,
			"withQuickPromoteEligibilityTweetFields": false,
			"withBirdwatchNotes":                     false,
			"withVoice":                              false,
			"withV2Timeline":                         true,
		}
		if cursor != "" {
			vars["cursor"] = cursor
			vars["referrer"] = "tweet"
		}
		params, err := graphQLParams(vars)
		if err != nil {
			return nil, nil, err
		}

		var resp tweetDetailResponse
		if err := c.getJSON(ctx, creds, c.endpoints.TweetDetail, params, &resp); err != nil {
			if page == 0 {
				return nil, nil, fmt.Errorf("fetch conversation %s: %w", tweetID, err)
			}
			// Keep what earlier pages produced.
			slog.Warn("Stopping reply pagination after error", "tweet_id", tweetID, "page", page+1, "error", err)
			break
		}

		parsed := parseConversation(&resp, tweetID)
		if parsed.root != nil && root == nil {
			root = parsed.root
		}
		added := 0
		for _, r := range parsed.replies {
			if r.ID == "" || seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			replies = append(replies, r)
			added++
		}
		slog.Debug("Fetched reply page", "tweet_id", tweetID, "page", page+1, "new", added)

		if parsed.cursor == "" || used[parsed.cursor] || added == 0 {
			break
		}
		used[parsed.cursor] = true
		cursor = parsed.cursor
	}

	if root == nil {
		var err error
		root, err = c.FetchTweet(ctx, creds, tweetID)
		if err != nil {
			return nil, nil, err
		}
	}
	return root, replies, nil
}

// FetchReplies returns only the reply records of a conversation.
func (c *Client) FetchReplies(ctx context.Context, creds Credentials, tweetID string, maxPages int) ([]models.ReplyRecord, error) {
	_, replies, err := c.FetchConversation(ctx, creds, tweetID, maxPages)
	return replies, err
}

// FetchHomeTimeline returns up to count timeline tweets newer than sinceID.
// count is capped at MaxTimelineCount.
func (c *Client) FetchHomeTimeline(ctx context.Context, creds Credentials, sinceID string, count int) ([]models.Tweet, error) {
	if count <= 0 || count > MaxTimelineCount {
		count = MaxTimelineCount
	}
	params := url.Values{
		"count":                 {strconv.Itoa(count)},
		"include_entities":      {"1"},
		"include_user_entities": {"1"},
		"tweet_mode":            {"extended"},
	}
	if sinceID != "" {
		params.Set("since_id", sinceID)
	}

	var resp homeTimelineResponse
	if err := c.getJSON(ctx, creds, c.endpoints.HomeTimeline, params, &resp); err != nil {
		return nil, fmt.Errorf("fetch home timeline: %w", err)
	}
	tweets := parseHomeTimeline(&resp)
	if len(tweets) > count {
		tweets = tweets[:count]
	}
	return tweets, nil
}
