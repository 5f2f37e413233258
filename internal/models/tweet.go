package models

import (
	"errors"
	"time"
)

var (
	// ErrTweetExists is returned when attempting to create a tweet that is already stored.
	ErrTweetExists = errors.New("tweet already exists")
	// ErrTweetNotFound is returned when a tweet lookup or delete finds nothing.
	ErrTweetNotFound = errors.New("tweet not found")
)

// Tweet is a stored top-level post together with its AI enrichment.
type Tweet struct {
	ID             string    `firestore:"id" json:"id"`
	TweetID        string    `firestore:"tweetId" json:"tweetId" validate:"required,numeric"`
	AuthorUsername string    `firestore:"authorUsername" json:"authorUsername" validate:"required"`
	AuthorName     string    `firestore:"authorName" json:"authorName"`
	Content        string    `firestore:"content" json:"content" validate:"required"`
	CreatedAt      time.Time `firestore:"createdAt" json:"createdAt" validate:"required"`
	URL            string    `firestore:"url" json:"url" validate:"omitempty,url"`
	Likes          int       `firestore:"likes" json:"likes" validate:"gte=0"`
	Retweets       int       `firestore:"retweets" json:"retweets" validate:"gte=0"`
	Replies        int       `firestore:"replies" json:"replies" validate:"gte=0"`

	// Timeline-only flags, never persisted.
	IsRetweet bool `firestore:"-" json:"isRetweet,omitempty"`
	IsReply   bool `firestore:"-" json:"isReply,omitempty"`

	// AI Enriched Fields
	IsRelevant     bool     `firestore:"isRelevant" json:"isRelevant"`
	RelevanceScore float64  `firestore:"relevanceScore" json:"relevanceScore" validate:"gte=0,lte=1"`
	Categories     []string `firestore:"categories" json:"categories"`
	Translation    string   `firestore:"translation,omitempty" json:"translation,omitempty"`
	Summary        string   `firestore:"summary,omitempty" json:"summary,omitempty"`
	AIComments     []string `firestore:"aiComments" json:"aiComments"`
	IsProcessed    bool     `firestore:"isProcessed" json:"isProcessed"`

	// RepliesData holds the serialized thread snapshot for this tweet.
	RepliesData string `firestore:"repliesData,omitempty" json:"repliesData,omitempty"`

	SavedAt    time.Time  `firestore:"savedAt" json:"savedAt"`
	IsFavorite bool       `firestore:"isFavorite" json:"isFavorite"`
	BotSentAt  *time.Time `firestore:"botSentAt" json:"botSentAt,omitempty"`
}

// Analysis is the subset of Tweet fields written after an LLM pass.
type Analysis struct {
	IsRelevant     bool
	RelevanceScore float64
	Categories     []string
	Translation    string
	Summary        string
	AIComments     []string
}

// Stats is an aggregate snapshot of the tweet table.
type Stats struct {
	TotalTweets    int        `json:"totalTweets"`
	RelevantTweets int        `json:"relevantTweets"`
	TodayTweets    int        `json:"todayTweets"`
	LastProcessed  *time.Time `json:"lastProcessed,omitempty"`
}
