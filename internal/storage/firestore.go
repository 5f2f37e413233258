package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pauljones0/x-parser/internal/models"
)

const firestoreCollection = "tweets"

// Firestore stores one document per tweet, keyed by tweet id.
type Firestore struct {
	client *firestore.Client
}

func NewFirestore(ctx context.Context, projectID string) (*Firestore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &Firestore{client: client}, nil
}

func (c *Firestore) Close() error {
	return c.client.Close()
}

func (c *Firestore) collection() *firestore.CollectionRef {
	return c.client.Collection(firestoreCollection)
}

func decodeDoc(doc *firestore.DocumentSnapshot) (*models.Tweet, error) {
	var t models.Tweet
	if err := doc.DataTo(&t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tweet %s: %w", doc.Ref.ID, err)
	}
	if t.Categories == nil {
		t.Categories = []string{}
	}
	if t.AIComments == nil {
		t.AIComments = []string{}
	}
	return &t, nil
}

// CreateTweet fails with models.ErrTweetExists if the document already exists.
func (c *Firestore) CreateTweet(ctx context.Context, t *models.Tweet) error {
	prepareNew(t, time.Now())
	_, err := c.collection().Doc(t.TweetID).Create(ctx, t)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return models.ErrTweetExists
		}
		return fmt.Errorf("failed to create tweet %s: %w", t.TweetID, err)
	}
	return nil
}

// UpsertTweet creates the tweet, or on conflict refreshes the scraped fields
// and leaves analysis untouched.
func (c *Firestore) UpsertTweet(ctx context.Context, t *models.Tweet) (*models.Tweet, error) {
	err := c.CreateTweet(ctx, t)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, models.ErrTweetExists) {
		return nil, err
	}

	updates := []firestore.Update{
		{Path: "authorUsername", Value: t.AuthorUsername},
		{Path: "authorName", Value: t.AuthorName},
		{Path: "content", Value: t.Content},
		{Path: "url", Value: t.URL},
		{Path: "likes", Value: t.Likes},
		{Path: "retweets", Value: t.Retweets},
		{Path: "replies", Value: t.Replies},
	}
	if t.RepliesData != "" {
		updates = append(updates, firestore.Update{Path: "repliesData", Value: t.RepliesData})
	}
	if _, err := c.collection().Doc(t.TweetID).Update(ctx, updates); err != nil {
		return nil, fmt.Errorf("failed to update tweet %s: %w", t.TweetID, err)
	}
	return c.GetTweet(ctx, t.TweetID)
}

// GetTweet returns nil, nil when the tweet is not stored.
func (c *Firestore) GetTweet(ctx context.Context, tweetID string) (*models.Tweet, error) {
	doc, err := c.collection().Doc(tweetID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tweet %s: %w", tweetID, err)
	}
	if !doc.Exists() {
		return nil, nil
	}
	return decodeDoc(doc)
}

// filterQuery applies a list filter. Firestore has no substring match, so
// category filters match whole category names.
func (c *Firestore) filterQuery(filter string) firestore.Query {
	q := c.collection().Query
	switch f := normalizeFilter(filter); f {
	case FilterAll:
	case FilterRelevant:
		q = q.Where("isRelevant", "==", true)
	case FilterFavorites:
		q = q.Where("isFavorite", "==", true)
	default:
		q = q.Where("categories", "array-contains", f)
	}
	return q
}

func (c *Firestore) count(ctx context.Context, q firestore.Query) (int, error) {
	snap, err := q.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, err
	}
	return countValue(snap["all"])
}

// countValue reads an aggregation count, which arrives as a protobuf value.
func countValue(v any) (int, error) {
	switch val := v.(type) {
	case int64:
		return int(val), nil
	case *firestorepb.Value:
		return int(val.GetIntegerValue()), nil
	case nil:
		return 0, fmt.Errorf("count aggregation result was invalid: 'all' key missing")
	default:
		return 0, fmt.Errorf("count aggregation result has unexpected type %T", v)
	}
}

func collect(iter *firestore.DocumentIterator) ([]models.Tweet, error) {
	defer iter.Stop()
	tweets := []models.Tweet{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		t, err := decodeDoc(doc)
		if err != nil {
			return nil, err
		}
		tweets = append(tweets, *t)
	}
	return tweets, nil
}

func (c *Firestore) ListTweets(ctx context.Context, filter string, page, limit int) ([]models.Tweet, int, error) {
	page, limit = normalizePaging(page, limit)
	q := c.filterQuery(filter)

	total, err := c.count(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count tweets: %w", err)
	}

	tweets, err := collect(q.OrderBy("createdAt", firestore.Desc).
		Offset((page - 1) * limit).
		Limit(limit).
		Documents(ctx))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tweets: %w", err)
	}
	return tweets, total, nil
}

// update applies updates to an existing tweet, mapping NotFound to
// models.ErrTweetNotFound.
func (c *Firestore) update(ctx context.Context, tweetID string, updates []firestore.Update) error {
	_, err := c.collection().Doc(tweetID).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return models.ErrTweetNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update tweet %s: %w", tweetID, err)
	}
	return nil
}

func (c *Firestore) UpdateAnalysis(ctx context.Context, tweetID string, a models.Analysis) error {
	categories, comments := a.Categories, a.AIComments
	if categories == nil {
		categories = []string{}
	}
	if comments == nil {
		comments = []string{}
	}
	return c.update(ctx, tweetID, []firestore.Update{
		{Path: "isRelevant", Value: a.IsRelevant},
		{Path: "relevanceScore", Value: a.RelevanceScore},
		{Path: "categories", Value: categories},
		{Path: "translation", Value: a.Translation},
		{Path: "summary", Value: a.Summary},
		{Path: "aiComments", Value: comments},
		{Path: "isProcessed", Value: true},
	})
}

func (c *Firestore) SaveThread(ctx context.Context, tweetID, blob string) error {
	return c.update(ctx, tweetID, []firestore.Update{{Path: "repliesData", Value: blob}})
}

func (c *Firestore) SetFavorite(ctx context.Context, tweetID string, favorite bool) error {
	return c.update(ctx, tweetID, []firestore.Update{{Path: "isFavorite", Value: favorite}})
}

// DeleteTweet returns models.ErrTweetNotFound when the document is missing.
func (c *Firestore) DeleteTweet(ctx context.Context, tweetID string) error {
	_, err := c.collection().Doc(tweetID).Delete(ctx, firestore.Exists)
	if status.Code(err) == codes.NotFound {
		return models.ErrTweetNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete tweet %s: %w", tweetID, err)
	}
	return nil
}

// deleteDocs queues a delete for every document from iter.
func (c *Firestore) deleteDocs(ctx context.Context, iter *firestore.DocumentIterator, limit int, skip func(*firestore.DocumentSnapshot) bool) (int, error) {
	defer iter.Stop()
	bulkWriter := c.client.BulkWriter(ctx)
	defer bulkWriter.End()

	deleted := 0
	for limit < 0 || deleted < limit {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return deleted, err
		}
		if skip != nil && skip(doc) {
			continue
		}
		if _, err := bulkWriter.Delete(doc.Ref); err != nil {
			slog.Warn("Error queueing delete", "id", doc.Ref.ID, "error", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		bulkWriter.Flush()
	}
	return deleted, nil
}

func (c *Firestore) DeleteAll(ctx context.Context) (int, error) {
	n, err := c.deleteDocs(ctx, c.collection().Documents(ctx), -1, nil)
	if err != nil {
		return n, fmt.Errorf("failed to delete tweets: %w", err)
	}
	return n, nil
}

// LatestTweetID returns the id of the most recently created tweet, or "".
func (c *Firestore) LatestTweetID(ctx context.Context) (string, error) {
	tweets, err := collect(c.collection().OrderBy("createdAt", firestore.Desc).Limit(1).Documents(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to get latest tweet id: %w", err)
	}
	if len(tweets) == 0 {
		return "", nil
	}
	return tweets[0].TweetID, nil
}

func (c *Firestore) UnsentRelevant(ctx context.Context, limit int) ([]models.Tweet, error) {
	if limit < 1 {
		limit = 10
	}
	tweets, err := collect(c.collection().
		Where("isRelevant", "==", true).
		Where("botSentAt", "==", nil).
		OrderBy("savedAt", firestore.Desc).
		Limit(limit).
		Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to query unsent tweets: %w", err)
	}
	return tweets, nil
}

func (c *Firestore) MarkSent(ctx context.Context, tweetIDs []string, at time.Time) error {
	if len(tweetIDs) == 0 {
		return nil
	}
	bulkWriter := c.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(tweetIDs))
	for _, id := range tweetIDs {
		job, err := bulkWriter.Update(c.collection().Doc(id), []firestore.Update{{Path: "botSentAt", Value: at.UTC()}})
		if err != nil {
			slog.Warn("Error queueing sent marker", "id", id, "error", err)
			continue
		}
		jobs = append(jobs, job)
	}
	bulkWriter.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("failed to mark tweets sent: %w", err)
		}
	}
	return nil
}

func (c *Firestore) Stats(ctx context.Context, now time.Time) (models.Stats, error) {
	var (
		st  models.Stats
		err error
	)
	if st.TotalTweets, err = c.count(ctx, c.collection().Query); err != nil {
		return models.Stats{}, fmt.Errorf("failed to count tweets: %w", err)
	}
	if st.RelevantTweets, err = c.count(ctx, c.collection().Where("isRelevant", "==", true)); err != nil {
		return models.Stats{}, fmt.Errorf("failed to count relevant tweets: %w", err)
	}
	if st.TodayTweets, err = c.count(ctx, c.collection().Where("savedAt", ">=", startOfDay(now))); err != nil {
		return models.Stats{}, fmt.Errorf("failed to count today's tweets: %w", err)
	}

	last, err := collect(c.collection().OrderBy("savedAt", firestore.Desc).Limit(1).Documents(ctx))
	if err != nil {
		return models.Stats{}, fmt.Errorf("failed to get last saved tweet: %w", err)
	}
	if len(last) > 0 {
		saved := last[0].SavedAt
		st.LastProcessed = &saved
	}
	return st, nil
}

// TrimOldTweets deletes the oldest tweets by createdAt until at most
// maxTweets remain. Favorites are never trimmed.
func (c *Firestore) TrimOldTweets(ctx context.Context, maxTweets int) error {
	current, err := c.count(ctx, c.collection().Query)
	if err != nil {
		return fmt.Errorf("failed to get tweet count for trimming: %w", err)
	}
	if current <= maxTweets {
		return nil
	}

	numToDelete := current - maxTweets
	slog.Info("Trimming old tweets", "current", current, "max", maxTweets, "deleting", numToDelete)

	iter := c.collection().OrderBy("createdAt", firestore.Asc).Documents(ctx)
	deleted, err := c.deleteDocs(ctx, iter, numToDelete, func(doc *firestore.DocumentSnapshot) bool {
		fav, _ := doc.DataAt("isFavorite")
		b, _ := fav.(bool)
		return b
	})
	if err != nil {
		return fmt.Errorf("failed to iterate tweets for trimming: %w", err)
	}
	slog.Info("Trimmed old tweets", "deleted", deleted)
	return nil
}
