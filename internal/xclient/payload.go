package xclient

import (
	"strings"
	"time"

	"github.com/pauljones0/x-parser/internal/models"
	"github.com/pauljones0/x-parser/internal/util"
)

// CreatedAtLayout is the timestamp format used in legacy tweet payloads.
const CreatedAtLayout = "Mon Jan 02 15:04:05 -0700 2006"

type tweetLegacy struct {
	IDStr                string `json:"id_str"`
	UserIDStr            string `json:"user_id_str"`
	ConversationIDStr    string `json:"conversation_id_str"`
	InReplyToStatusIDStr string `json:"in_reply_to_status_id_str"`
	RetweetedStatusIDStr string `json:"retweeted_status_id_str"`
	QuotedStatusIDStr    string `json:"quoted_status_id_str"`
	FullText             string `json:"full_text"`
	Text                 string `json:"text"`
	CreatedAt            string `json:"created_at"`
	FavoriteCount        int    `json:"favorite_count"`
	RetweetCount         int    `json:"retweet_count"`
	ReplyCount           int    `json:"reply_count"`

	RetweetedStatusResult *struct {
		Result *tweetResult `json:"result"`
	} `json:"retweeted_status_result"`
}

type userLegacy struct {
	ScreenName string `json:"screen_name"`
	Name       string `json:"name"`
}

type tweetResult struct {
	Typename string       `json:"__typename"`
	RestID   string       `json:"rest_id"`
	Legacy   *tweetLegacy `json:"legacy"`
	Core     struct {
		UserResults struct {
			Result struct {
				Legacy userLegacy  `json:"legacy"`
				Core   *userLegacy `json:"core"`
			} `json:"result"`
		} `json:"user_results"`
	} `json:"core"`
	// Set on TweetWithVisibilityResults wrappers.
	Tweet *tweetResult `json:"tweet"`
}

// unwrap returns the inner tweet of visibility wrappers.
func (r *tweetResult) unwrap() *tweetResult {
	for r != nil && r.Legacy == nil && r.Tweet != nil {
		r = r.Tweet
	}
	return r
}

func (r *tweetResult) author() userLegacy {
	u := r.Core.UserResults.Result
	// Newer payloads move screen_name and name under core.
	if u.Core != nil && u.Core.ScreenName != "" {
		return *u.Core
	}
	return u.Legacy
}

type itemContent struct {
	ItemType     string `json:"itemType"`
	TweetResults struct {
		Result *tweetResult `json:"result"`
	} `json:"tweet_results"`
	Value      string `json:"value"`
	CursorType string `json:"cursorType"`
}

type timelineEntry struct {
	EntryID string `json:"entryId"`
	Content struct {
		EntryType   string       `json:"entryType"`
		ItemContent *itemContent `json:"itemContent"`
		Items       []struct {
			Item struct {
				ItemContent itemContent `json:"itemContent"`
			} `json:"item"`
		} `json:"items"`
		Value      string `json:"value"`
		CursorType string `json:"cursorType"`
	} `json:"content"`
}

type timelineInstruction struct {
	Type    string          `json:"type"`
	Entries []timelineEntry `json:"entries"`
}

type tweetDetailResponse struct {
	Data struct {
		Conversation struct {
			Instructions []timelineInstruction `json:"instructions"`
		} `json:"threaded_conversation_with_injections_v2"`
	} `json:"data"`
	Errors []apiError `json:"errors"`
}

type tweetByIDResponse struct {
	Data struct {
		TweetResult struct {
			Result *tweetResult `json:"result"`
		} `json:"tweetResult"`
	} `json:"data"`
	Errors []apiError `json:"errors"`
}

type apiError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type homeTimelineResponse struct {
	GlobalObjects struct {
		Tweets map[string]tweetLegacy `json:"tweets"`
		Users  map[string]userLegacy  `json:"users"`
	} `json:"globalObjects"`
	Timeline struct {
		Instructions []struct {
			AddEntries *struct {
				Entries []struct {
					EntryID string `json:"entryId"`
				} `json:"entries"`
			} `json:"addEntries"`
		} `json:"instructions"`
	} `json:"timeline"`
}

// parseCreatedAt returns the zero time for unparsable input so the thread
// builder can drop the record.
func parseCreatedAt(s string) time.Time {
	t, err := time.Parse(CreatedAtLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func (l *tweetLegacy) text() string {
	if l.FullText != "" {
		return l.FullText
	}
	return l.Text
}

func (l *tweetLegacy) isRetweet() bool {
	return l.RetweetedStatusIDStr != "" || l.RetweetedStatusResult != nil
}

func toTweet(l *tweetLegacy, id string, u userLegacy) models.Tweet {
	if id == "" {
		id = l.IDStr
	}
	return models.Tweet{
		TweetID:        id,
		AuthorUsername: u.ScreenName,
		AuthorName:     u.Name,
		Content:        l.text(),
		CreatedAt:      parseCreatedAt(l.CreatedAt),
		URL:            util.StatusURL(u.ScreenName, id),
		Likes:          l.FavoriteCount,
		Retweets:       l.RetweetCount,
		Replies:        l.ReplyCount,
		IsRetweet:      l.isRetweet(),
		IsReply:        l.InReplyToStatusIDStr != "",
		Categories:     []string{},
		AIComments:     []string{},
	}
}

func resultToTweet(r *tweetResult) (models.Tweet, bool) {
	r = r.unwrap()
	if r == nil || r.Legacy == nil {
		return models.Tweet{}, false
	}
	id := r.RestID
	if id == "" {
		id = r.Legacy.IDStr
	}
	return toTweet(r.Legacy, id, r.author()), true
}

func resultToReply(r *tweetResult) (models.ReplyRecord, bool) {
	r = r.unwrap()
	if r == nil || r.Legacy == nil {
		return models.ReplyRecord{}, false
	}
	l := r.Legacy
	id := r.RestID
	if id == "" {
		id = l.IDStr
	}
	u := r.author()
	return models.ReplyRecord{
		ID:                id,
		AuthorHandle:      u.ScreenName,
		AuthorDisplayName: u.Name,
		Text:              l.text(),
		CreatedAt:         parseCreatedAt(l.CreatedAt),
		LikeCount:         l.FavoriteCount,
		ShareCount:        l.RetweetCount,
		ReplyCount:        l.ReplyCount,
		ParentID:          l.InReplyToStatusIDStr,
		RootID:            l.ConversationIDStr,
		IsRetweet:         l.isRetweet(),
		IsQuote:           l.QuotedStatusIDStr != "",
	}, true
}

// conversationPage is one decoded TweetDetail page.
type conversationPage struct {
	root    *models.Tweet
	replies []models.ReplyRecord
	cursor  string
}

func parseConversation(resp *tweetDetailResponse, focalID string) conversationPage {
	var page conversationPage
	for _, ins := range resp.Data.Conversation.Instructions {
		if ins.Type != "" && ins.Type != "TimelineAddEntries" {
			continue
		}
		for _, e := range ins.Entries {
			switch {
			case strings.HasPrefix(e.EntryID, "tweet-"):
				if e.Content.ItemContent == nil {
					continue
				}
				if t, ok := resultToTweet(e.Content.ItemContent.TweetResults.Result); ok && t.TweetID == focalID {
					page.root = &t
				} else if rec, ok := resultToReply(e.Content.ItemContent.TweetResults.Result); ok {
					// Ancestors of a focal reply also arrive as tweet- entries.
					page.replies = append(page.replies, rec)
				}
			case strings.HasPrefix(e.EntryID, "conversationthread-"):
				for _, it := range e.Content.Items {
					if it.Item.ItemContent.ItemType == "TimelineTimelineCursor" {
						continue
					}
					if rec, ok := resultToReply(it.Item.ItemContent.TweetResults.Result); ok {
						page.replies = append(page.replies, rec)
					}
				}
			case strings.HasPrefix(e.EntryID, "cursor-bottom-"):
				if e.Content.ItemContent != nil && e.Content.ItemContent.Value != "" {
					page.cursor = e.Content.ItemContent.Value
				} else if e.Content.Value != "" {
					page.cursor = e.Content.Value
				}
			}
		}
	}
	return page
}

func parseHomeTimeline(resp *homeTimelineResponse) []models.Tweet {
	var tweets []models.Tweet
	for _, ins := range resp.Timeline.Instructions {
		if ins.AddEntries == nil {
			continue
		}
		for _, e := range ins.AddEntries.Entries {
			id, ok := strings.CutPrefix(e.EntryID, "tweet-")
			if !ok {
				continue
			}
			legacy, ok := resp.GlobalObjects.Tweets[id]
			if !ok {
				continue
			}
			user := resp.GlobalObjects.Users[legacy.UserIDStr]
			tweets = append(tweets, toTweet(&legacy, id, user))
		}
	}
	return tweets
}
