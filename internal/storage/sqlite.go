package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pauljones0/x-parser/internal/models"
)

type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path and ensures the
// schema exists.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent use.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tweets (
		id TEXT PRIMARY KEY,
		tweet_id TEXT NOT NULL UNIQUE,
		author_username TEXT NOT NULL,
		author_name TEXT,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		url TEXT,
		likes INTEGER NOT NULL DEFAULT 0,
		retweets INTEGER NOT NULL DEFAULT 0,
		replies INTEGER NOT NULL DEFAULT 0,
		is_relevant BOOLEAN NOT NULL DEFAULT 0,
		relevance_score REAL NOT NULL DEFAULT 0,
		categories TEXT NOT NULL DEFAULT '[]',
		translation TEXT,
		summary TEXT,
		ai_comments TEXT NOT NULL DEFAULT '[]',
		is_processed BOOLEAN NOT NULL DEFAULT 0,
		replies_data TEXT,
		saved_at DATETIME NOT NULL,
		is_favorite BOOLEAN NOT NULL DEFAULT 0,
		bot_sent_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_tweets_created_at ON tweets(created_at);
	CREATE INDEX IF NOT EXISTS idx_tweets_saved_at ON tweets(saved_at);
	CREATE INDEX IF NOT EXISTS idx_tweets_relevant ON tweets(is_relevant, bot_sent_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const tweetColumns = `id, tweet_id, author_username, author_name, content, created_at, url,
	likes, retweets, replies, is_relevant, relevance_score, categories, translation,
	summary, ai_comments, is_processed, replies_data, saved_at, is_favorite, bot_sent_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTweet(row rowScanner) (*models.Tweet, error) {
	var (
		t                            models.Tweet
		authorName, url, translation sql.NullString
		summary, repliesData         sql.NullString
		categories, aiComments       string
		botSentAt                    sql.NullTime
	)
	err := row.Scan(&t.ID, &t.TweetID, &t.AuthorUsername, &authorName, &t.Content, &t.CreatedAt, &url,
		&t.Likes, &t.Retweets, &t.Replies, &t.IsRelevant, &t.RelevanceScore, &categories, &translation,
		&summary, &aiComments, &t.IsProcessed, &repliesData, &t.SavedAt, &t.IsFavorite, &botSentAt)
	if err != nil {
		return nil, err
	}

	t.AuthorName = authorName.String
	t.URL = url.String
	t.Translation = translation.String
	t.Summary = summary.String
	t.RepliesData = repliesData.String
	t.CreatedAt = t.CreatedAt.UTC()
	t.SavedAt = t.SavedAt.UTC()
	if botSentAt.Valid {
		sent := botSentAt.Time.UTC()
		t.BotSentAt = &sent
	}
	t.Categories = decodeList(categories)
	t.AIComments = decodeList(aiComments)
	return &t, nil
}

func decodeList(raw string) []string {
	out := []string{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		slog.Warn("Ignoring malformed list column", "value", raw, "error", err)
		return []string{}
	}
	return out
}

func encodeList(list []string) string {
	if list == nil {
		list = []string{}
	}
	data, _ := json.Marshal(list)
	return string(data)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateTweet inserts a new tweet. It returns models.ErrTweetExists when the
// tweet id is already stored.
func (s *SQLite) CreateTweet(ctx context.Context, t *models.Tweet) error {
	prepareNew(t, time.Now())
	_, err := s.db.ExecContext(ctx, `INSERT INTO tweets (`+tweetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TweetID, t.AuthorUsername, nullString(t.AuthorName), t.Content, t.CreatedAt.UTC(), nullString(t.URL),
		t.Likes, t.Retweets, t.Replies, t.IsRelevant, t.RelevanceScore, encodeList(t.Categories), nullString(t.Translation),
		nullString(t.Summary), encodeList(t.AIComments), t.IsProcessed, nullString(t.RepliesData), t.SavedAt.UTC(), t.IsFavorite,
		nullTime(t.BotSentAt))
	if isUniqueViolation(err) {
		return models.ErrTweetExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert tweet %s: %w", t.TweetID, err)
	}
	return nil
}

// UpsertTweet creates the tweet or refreshes its author, content and
// counters. Analysis fields of an existing row are preserved; repliesData is
// only replaced when t carries one.
func (s *SQLite) UpsertTweet(ctx context.Context, t *models.Tweet) (*models.Tweet, error) {
	prepareNew(t, time.Now())
	_, err := s.db.ExecContext(ctx, `INSERT INTO tweets (`+tweetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tweet_id) DO UPDATE SET
			author_username = excluded.author_username,
			author_name = excluded.author_name,
			content = excluded.content,
			url = excluded.url,
			likes = excluded.likes,
			retweets = excluded.retweets,
			replies = excluded.replies,
			replies_data = COALESCE(excluded.replies_data, tweets.replies_data)`,
		t.ID, t.TweetID, t.AuthorUsername, nullString(t.AuthorName), t.Content, t.CreatedAt.UTC(), nullString(t.URL),
		t.Likes, t.Retweets, t.Replies, t.IsRelevant, t.RelevanceScore, encodeList(t.Categories), nullString(t.Translation),
		nullString(t.Summary), encodeList(t.AIComments), t.IsProcessed, nullString(t.RepliesData), t.SavedAt.UTC(), t.IsFavorite,
		nullTime(t.BotSentAt))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert tweet %s: %w", t.TweetID, err)
	}
	return s.GetTweet(ctx, t.TweetID)
}

// GetTweet returns nil, nil when the tweet is not stored.
func (s *SQLite) GetTweet(ctx context.Context, tweetID string) (*models.Tweet, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tweetColumns+` FROM tweets WHERE tweet_id = ?`, tweetID)
	t, err := scanTweet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tweet %s: %w", tweetID, err)
	}
	return t, nil
}

func filterClause(filter string) (string, []any) {
	switch normalizeFilter(filter) {
	case FilterAll:
		return "", nil
	case FilterRelevant:
		return " WHERE is_relevant = 1", nil
	case FilterFavorites:
		return " WHERE is_favorite = 1", nil
	default:
		return " WHERE categories LIKE ?", []any{"%" + filter + "%"}
	}
}

// ListTweets returns one page of tweets, newest first, and the total number
// of tweets matching filter.
func (s *SQLite) ListTweets(ctx context.Context, filter string, page, limit int) ([]models.Tweet, int, error) {
	page, limit = normalizePaging(page, limit)
	where, args := filterClause(filter)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tweets`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tweets: %w", err)
	}

	query := `SELECT ` + tweetColumns + ` FROM tweets` + where + ` ORDER BY created_at DESC, tweet_id DESC LIMIT ? OFFSET ?`
	tweets, err := s.queryTweets(ctx, query, append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, err
	}
	return tweets, total, nil
}

func (s *SQLite) queryTweets(ctx context.Context, query string, args ...any) ([]models.Tweet, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tweets: %w", err)
	}
	defer rows.Close()

	tweets := []models.Tweet{}
	for rows.Next() {
		t, err := scanTweet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tweet: %w", err)
		}
		tweets = append(tweets, *t)
	}
	return tweets, rows.Err()
}

func (s *SQLite) execOne(ctx context.Context, tweetID, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update tweet %s: %w", tweetID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrTweetNotFound
	}
	return nil
}

// UpdateAnalysis stores an LLM result and marks the tweet processed.
func (s *SQLite) UpdateAnalysis(ctx context.Context, tweetID string, a models.Analysis) error {
	return s.execOne(ctx, tweetID, `UPDATE tweets SET
			is_relevant = ?, relevance_score = ?, categories = ?, translation = ?,
			summary = ?, ai_comments = ?, is_processed = 1
		WHERE tweet_id = ?`,
		a.IsRelevant, a.RelevanceScore, encodeList(a.Categories), nullString(a.Translation),
		nullString(a.Summary), encodeList(a.AIComments), tweetID)
}

// SaveThread stores the serialized thread snapshot for a tweet.
func (s *SQLite) SaveThread(ctx context.Context, tweetID, blob string) error {
	return s.execOne(ctx, tweetID, `UPDATE tweets SET replies_data = ? WHERE tweet_id = ?`, nullString(blob), tweetID)
}

func (s *SQLite) SetFavorite(ctx context.Context, tweetID string, favorite bool) error {
	return s.execOne(ctx, tweetID, `UPDATE tweets SET is_favorite = ? WHERE tweet_id = ?`, favorite, tweetID)
}

// DeleteTweet returns models.ErrTweetNotFound when nothing was deleted.
func (s *SQLite) DeleteTweet(ctx context.Context, tweetID string) error {
	return s.execOne(ctx, tweetID, `DELETE FROM tweets WHERE tweet_id = ?`, tweetID)
}

// DeleteAll removes every tweet and returns how many were deleted.
func (s *SQLite) DeleteAll(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tweets`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tweets: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// LatestTweetID returns the id of the newest stored tweet, or "" when empty.
// Status ids are time-ordered, so the numerically largest id is the newest.
func (s *SQLite) LatestTweetID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT tweet_id FROM tweets ORDER BY LENGTH(tweet_id) DESC, tweet_id DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest tweet id: %w", err)
	}
	return id, nil
}

// UnsentRelevant returns relevant tweets not yet pushed to chat, newest saved first.
func (s *SQLite) UnsentRelevant(ctx context.Context, limit int) ([]models.Tweet, error) {
	if limit < 1 {
		limit = 10
	}
	return s.queryTweets(ctx, `SELECT `+tweetColumns+` FROM tweets
		WHERE is_relevant = 1 AND bot_sent_at IS NULL
		ORDER BY saved_at DESC LIMIT ?`, limit)
}

// MarkSent records that the tweets were delivered to chat.
func (s *SQLite) MarkSent(ctx context.Context, tweetIDs []string, at time.Time) error {
	if len(tweetIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tweetIDs)), ",")
	args := make([]any, 0, len(tweetIDs)+1)
	args = append(args, at.UTC())
	for _, id := range tweetIDs {
		args = append(args, id)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE tweets SET bot_sent_at = ? WHERE tweet_id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("failed to mark tweets sent: %w", err)
	}
	return nil
}

// Stats counts all, relevant and today's tweets. Today starts at midnight in
// now's location.
func (s *SQLite) Stats(ctx context.Context, now time.Time) (models.Stats, error) {
	var st models.Stats
	err := s.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN is_relevant = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN saved_at >= ? THEN 1 ELSE 0 END), 0)
		FROM tweets`, startOfDay(now).UTC()).Scan(&st.TotalTweets, &st.RelevantTweets, &st.TodayTweets)
	if err != nil {
		return models.Stats{}, fmt.Errorf("failed to compute stats: %w", err)
	}

	var lastSaved sql.NullTime
	err = s.db.QueryRowContext(ctx, `SELECT saved_at FROM tweets ORDER BY saved_at DESC LIMIT 1`).Scan(&lastSaved)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return models.Stats{}, fmt.Errorf("failed to get last saved tweet: %w", err)
	}
	if lastSaved.Valid {
		t := lastSaved.Time.UTC()
		st.LastProcessed = &t
	}
	return st, nil
}

// TrimOldTweets deletes the oldest tweets by createdAt until at most
// maxTweets remain. Favorites are never trimmed.
func (s *SQLite) TrimOldTweets(ctx context.Context, maxTweets int) error {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tweets`).Scan(&total); err != nil {
		return fmt.Errorf("failed to count tweets for trimming: %w", err)
	}
	if total <= maxTweets {
		return nil
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM tweets WHERE id IN (
			SELECT id FROM tweets WHERE is_favorite = 0
			ORDER BY created_at ASC LIMIT ?
		)`, total-maxTweets)
	if err != nil {
		return fmt.Errorf("failed to trim tweets: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Info("Trimmed old tweets", "deleted", n, "max", maxTweets)
	}
	return nil
}
