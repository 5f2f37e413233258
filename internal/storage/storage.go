// Package storage persists tweets, their AI analysis and thread snapshots.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pauljones0/x-parser/internal/config"
	"github.com/pauljones0/x-parser/internal/models"
)

// List filters. Any other value is matched against categories.
const (
	FilterAll       = "all"
	FilterRelevant  = "relevant"
	FilterFavorites = "favorites"
)

// Store is implemented by every backend.
type Store interface {
	CreateTweet(ctx context.Context, t *models.Tweet) error
	UpsertTweet(ctx context.Context, t *models.Tweet) (*models.Tweet, error)
	GetTweet(ctx context.Context, tweetID string) (*models.Tweet, error)
	ListTweets(ctx context.Context, filter string, page, limit int) ([]models.Tweet, int, error)
	UpdateAnalysis(ctx context.Context, tweetID string, a models.Analysis) error
	SaveThread(ctx context.Context, tweetID, blob string) error
	SetFavorite(ctx context.Context, tweetID string, favorite bool) error
	DeleteTweet(ctx context.Context, tweetID string) error
	DeleteAll(ctx context.Context) (int, error)
	LatestTweetID(ctx context.Context) (string, error)
	UnsentRelevant(ctx context.Context, limit int) ([]models.Tweet, error)
	MarkSent(ctx context.Context, tweetIDs []string, at time.Time) error
	Stats(ctx context.Context, now time.Time) (models.Stats, error)
	TrimOldTweets(ctx context.Context, maxTweets int) error
	Close() error
}

// Open connects to the backend selected by cfg.StorageBackend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StorageBackend {
	case config.BackendFirestore:
		return NewFirestore(ctx, cfg.ProjectID)
	case config.BackendSQLite, "":
		return NewSQLite(ctx, cfg.DatabasePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// prepareNew fills the fields a freshly stored tweet must carry.
func prepareNew(t *models.Tweet, now time.Time) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.SavedAt.IsZero() {
		t.SavedAt = now.UTC()
	}
	if t.Categories == nil {
		t.Categories = []string{}
	}
	if t.AIComments == nil {
		t.AIComments = []string{}
	}
}

// startOfDay returns local midnight of now's day.
func startOfDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

func normalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	return page, limit
}

func normalizeFilter(filter string) string {
	f := strings.TrimSpace(filter)
	if f == "" {
		return FilterAll
	}
	return f
}
