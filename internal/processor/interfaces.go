package processor

import (
	"context"
	"io"
	"time"

	"github.com/pauljones0/x-parser/internal/ai"
	"github.com/pauljones0/x-parser/internal/models"
	"github.com/pauljones0/x-parser/internal/thread"
	"github.com/pauljones0/x-parser/internal/xclient"
)

// TweetStore abstracts the storage layer for tweet data.
type TweetStore interface {
	CreateTweet(ctx context.Context, t *models.Tweet) error
	UpsertTweet(ctx context.Context, t *models.Tweet) (*models.Tweet, error)
	GetTweet(ctx context.Context, tweetID string) (*models.Tweet, error)
	UpdateAnalysis(ctx context.Context, tweetID string, a models.Analysis) error
	SaveThread(ctx context.Context, tweetID, blob string) error
	LatestTweetID(ctx context.Context) (string, error)
	UnsentRelevant(ctx context.Context, limit int) ([]models.Tweet, error)
	MarkSent(ctx context.Context, tweetIDs []string, at time.Time) error
	TrimOldTweets(ctx context.Context, maxTweets int) error
}

// Source is the authenticated API the tweets and threads come from.
type Source interface {
	FetchConversation(ctx context.Context, creds xclient.Credentials, tweetID string, maxPages int) (*models.Tweet, []models.ReplyRecord, error)
	FetchHomeTimeline(ctx context.Context, creds xclient.Credentials, sinceID string, count int) ([]models.Tweet, error)
}

// PageSource parses rendered pages when the API path fails, and HTML exports
// uploaded by users.
type PageSource interface {
	FetchConversation(ctx context.Context, creds xclient.Credentials, statusURL string) (*models.Tweet, []models.ReplyRecord, error)
	ParseTimeline(r io.Reader) ([]models.Tweet, error)
}

// Analyzer abstracts the LLM layer.
type Analyzer interface {
	Enabled() bool
	CheckRelevance(ctx context.Context, author, text string) (ai.Relevance, error)
	Translate(ctx context.Context, text, lang string) (string, error)
	Summarize(ctx context.Context, text, lang string) (string, error)
	AnalyzeThread(ctx context.Context, tweet *models.Tweet, ts *thread.ThreadStructure, lang string) (ai.ThreadAnalysis, error)
	AnalyzeBatch(ctx context.Context, tweets []models.Tweet, concurrency int) ([]ai.Relevance, error)
}

// SeenSet remembers tweet ids across timeline runs.
type SeenSet interface {
	FilterUnseen(ctx context.Context, ids []string) ([]string, error)
	MarkSeen(ctx context.Context, ids ...string) error
}

// Notifier abstracts the notification layer.
type Notifier interface {
	Enabled() bool
	SendTweets(ctx context.Context, tweets []models.Tweet) error
}
