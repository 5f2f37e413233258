package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pauljones0/x-parser/internal/config"
	"github.com/pauljones0/x-parser/internal/models"
	"github.com/pauljones0/x-parser/internal/xclient"
)

// maxTimelineCount is the largest page the home timeline endpoint serves.
const maxTimelineCount = 200

// RunResult counts what one timeline pass did.
type RunResult struct {
	Fetched  int `json:"fetched"`
	Skipped  int `json:"skipped"`
	Checked  int `json:"checked"`
	Relevant int `json:"relevant"`
	Added    int `json:"added"`
	Notified int `json:"notified"`
}

// ProcessTimeline pulls home timeline tweets newer than the latest stored
// one, filters them, scores the rest with the LLM, stores the keepers and
// sends pending notifications. Per-tweet failures are collected; the
// returned result is valid even when err is non-nil.
func (p *Processor) ProcessTimeline(ctx context.Context, creds xclient.Credentials, mc config.MonitorConfig) (RunResult, error) {
	var res RunResult

	sinceID, err := p.store.LatestTweetID(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to read latest tweet id: %w", err)
	}

	count := min(max(mc.MaxTweetsPerCheck, 1), maxTimelineCount)
	fetched, err := p.source.FetchHomeTimeline(ctx, creds, sinceID, count)
	if err != nil {
		return res, fmt.Errorf("failed to fetch home timeline: %w", err)
	}
	res.Fetched = len(fetched)
	slog.Info("Fetched home timeline", "count", len(fetched), "since_id", sinceID)

	candidates := p.filterTimeline(fetched, mc)
	candidates, err = p.dropSeen(ctx, candidates)
	if err != nil {
		slog.Warn("Seen-set lookup failed, checking every tweet", "error", err)
	}
	res.Skipped = res.Fetched - len(candidates)
	if len(candidates) == 0 {
		return res, p.finishRun(ctx, &res, nil)
	}

	relevances, batchErr := p.analyzer.AnalyzeBatch(ctx, candidates, p.config.BatchSize)
	if len(relevances) != len(candidates) {
		return res, fmt.Errorf("relevance batch returned %d results for %d tweets: %v", len(relevances), len(candidates), batchErr)
	}
	var errorMessages []string
	if batchErr != nil {
		errorMessages = append(errorMessages, batchErr.Error())
	}

	var checkedIDs []string
	for i := range candidates {
		t := &candidates[i]
		rel := relevances[i]
		if rel.Err != nil {
			continue
		}
		res.Checked++
		checkedIDs = append(checkedIDs, t.TweetID)

		keep := rel.IsRelevant && rel.Score >= mc.MinRelevance
		if keep {
			res.Relevant++
		}
		if mc.RelevantOnly && !keep {
			continue
		}

		t.IsRelevant = keep
		t.RelevanceScore = rel.Score
		t.Categories = rel.Categories
		t.IsProcessed = true
		if rel.Reason != "" {
			t.AIComments = []string{rel.Reason}
		}
		if err := p.store.CreateTweet(ctx, t); err != nil {
			if errors.Is(err, models.ErrTweetExists) {
				continue
			}
			errorMessages = append(errorMessages, fmt.Sprintf("store tweet %s: %v", t.TweetID, err))
			continue
		}
		res.Added++
	}

	if p.seen != nil {
		if err := p.seen.MarkSeen(ctx, checkedIDs...); err != nil {
			slog.Warn("Failed to mark tweets seen", "error", err)
		}
	}
	return res, p.finishRun(ctx, &res, errorMessages)
}

// finishRun trims storage and flushes notifications after a pass.
func (p *Processor) finishRun(ctx context.Context, res *RunResult, errorMessages []string) error {
	if res.Added > 0 {
		if err := p.store.TrimOldTweets(ctx, p.config.MaxStoredTweets); err != nil {
			slog.Warn("Failed to trim old tweets", "error", err)
		}
	}

	n, err := p.NotifyPending(ctx)
	res.Notified = n
	if err != nil {
		errorMessages = append(errorMessages, err.Error())
	}

	slog.Info("Finished timeline run", "fetched", res.Fetched, "checked", res.Checked, "relevant", res.Relevant, "added", res.Added, "notified", res.Notified)
	if len(errorMessages) > 0 {
		return fmt.Errorf("processed with errors: %s", strings.Join(errorMessages, "; "))
	}
	return nil
}

// filterTimeline drops retweets and replies per mc and tweets that fail
// validation.
func (p *Processor) filterTimeline(tweets []models.Tweet, mc config.MonitorConfig) []models.Tweet {
	out := make([]models.Tweet, 0, len(tweets))
	for _, t := range tweets {
		if mc.SkipRetweets && t.IsRetweet {
			continue
		}
		if mc.SkipReplies && t.IsReply {
			continue
		}
		if err := p.validator.ValidateStruct(t); err != nil {
			slog.Debug("Skipping invalid timeline tweet", "tweet_id", t.TweetID, "error", err)
			continue
		}
		out = append(out, t)
	}
	return out
}

// dropSeen removes tweets the seen-set already knows. On lookup failure the
// input is returned unchanged alongside the error.
func (p *Processor) dropSeen(ctx context.Context, tweets []models.Tweet) ([]models.Tweet, error) {
	if p.seen == nil || len(tweets) == 0 {
		return tweets, nil
	}
	ids := make([]string, len(tweets))
	for i, t := range tweets {
		ids[i] = t.TweetID
	}
	unseen, err := p.seen.FilterUnseen(ctx, ids)
	if err != nil {
		return tweets, err
	}
	keep := make(map[string]bool, len(unseen))
	for _, id := range unseen {
		keep[id] = true
	}
	out := make([]models.Tweet, 0, len(unseen))
	for _, t := range tweets {
		if keep[t.TweetID] {
			out = append(out, t)
		}
	}
	return out, nil
}
