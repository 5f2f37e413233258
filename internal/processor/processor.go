package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pauljones0/x-parser/internal/ai"
	"github.com/pauljones0/x-parser/internal/config"
	"github.com/pauljones0/x-parser/internal/models"
	"github.com/pauljones0/x-parser/internal/thread"
	"github.com/pauljones0/x-parser/internal/util"
	"github.com/pauljones0/x-parser/internal/validator"
	"github.com/pauljones0/x-parser/internal/xclient"
)

var (
	// ErrInvalidInput is returned when a tweet URL or id cannot be parsed.
	ErrInvalidInput = errors.New("invalid tweet reference")
	// ErrAIDisabled is returned by analysis operations when no LLM is configured.
	ErrAIDisabled = errors.New("ai analysis is not configured")
)

// notifyBatchLimit caps how many pending tweets one NotifyPending call sends.
const notifyBatchLimit = 20

// Processor runs the fetch, filter, analyze, store and notify steps shared
// by the HTTP API and the monitor.
type Processor struct {
	store     TweetStore
	source    Source
	pages     PageSource
	analyzer  Analyzer
	seen      SeenSet
	notifier  Notifier
	validator *validator.Validator
	config    *config.Config
	now       func() time.Time
}

// Deps groups the collaborators of a Processor. Pages and Seen are optional.
type Deps struct {
	Store    TweetStore
	Source   Source
	Pages    PageSource
	Analyzer Analyzer
	Seen     SeenSet
	Notifier Notifier
}

func New(d Deps, cfg *config.Config) *Processor {
	return &Processor{
		store:     d.Store,
		source:    d.Source,
		pages:     d.Pages,
		analyzer:  d.Analyzer,
		seen:      d.Seen,
		notifier:  d.Notifier,
		validator: validator.New(),
		config:    cfg,
		now:       time.Now,
	}
}

// ThreadOptions bounds a thread parse. Zero values fall back to the
// configured defaults.
type ThreadOptions struct {
	MaxDepth    int
	MaxReplies  int
	MaxPages    int
	Credentials xclient.Credentials
}

// ThreadResult is a parsed root tweet and its reply tree.
type ThreadResult struct {
	Tweet  *models.Tweet           `json:"tweet"`
	Thread *thread.ThreadStructure `json:"thread"`
}

// ParseThread fetches the tweet named by input (a status URL or a bare id)
// with its replies, builds the bounded reply tree and stores both.
func (p *Processor) ParseThread(ctx context.Context, input string, opts ThreadOptions) (*ThreadResult, error) {
	tweetID, err := util.ExtractTweetID(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if opts.MaxDepth == 0 {
		opts.MaxDepth = p.config.ThreadMaxDepth
	}
	if opts.MaxReplies == 0 {
		opts.MaxReplies = p.config.ThreadMaxChildren
	}
	if opts.MaxPages == 0 {
		opts.MaxPages = p.config.ThreadMaxPages
	}

	root, records, err := p.fetchConversation(ctx, input, tweetID, opts)
	if err != nil {
		return nil, err
	}

	ts, err := thread.Build(records, tweetID, opts.MaxDepth, opts.MaxReplies)
	if err != nil {
		return nil, err
	}
	slog.Info("Built thread", "tweet_id", tweetID, "records", len(records), "replies", ts.TotalReplies, "max_depth", ts.MaxDepth)

	if err := p.validator.ValidateStruct(root); err != nil {
		return nil, fmt.Errorf("root tweet %s: %w", tweetID, err)
	}
	stored, err := p.store.UpsertTweet(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("failed to store tweet %s: %w", tweetID, err)
	}

	blob, err := json.Marshal(ts)
	if err != nil {
		return nil, err
	}
	if err := p.store.SaveThread(ctx, tweetID, string(blob)); err != nil {
		return nil, fmt.Errorf("failed to store thread %s: %w", tweetID, err)
	}
	stored.RepliesData = string(blob)

	return &ThreadResult{Tweet: stored, Thread: ts}, nil
}

// fetchConversation tries the API first and falls back to the rendered
// status page when a PageSource is configured.
func (p *Processor) fetchConversation(ctx context.Context, input, tweetID string, opts ThreadOptions) (*models.Tweet, []models.ReplyRecord, error) {
	root, records, err := p.source.FetchConversation(ctx, opts.Credentials, tweetID, opts.MaxPages)
	if err == nil {
		return root, records, nil
	}
	if p.pages == nil || ctx.Err() != nil || errors.Is(err, xclient.ErrNoCredentials) {
		return nil, nil, fmt.Errorf("failed to fetch conversation %s: %w", tweetID, err)
	}

	slog.Warn("API fetch failed, trying status page", "tweet_id", tweetID, "error", err)
	statusURL, nerr := util.NormalizeStatusURL(input)
	if nerr != nil || !strings.Contains(statusURL, "/status/") {
		statusURL = util.StatusURL("", tweetID)
	}
	root, records, perr := p.pages.FetchConversation(ctx, opts.Credentials, statusURL)
	if perr != nil {
		return nil, nil, fmt.Errorf("failed to fetch conversation %s: %w", tweetID, errors.Join(err, perr))
	}
	return root, records, nil
}

// AnalyzeTweet checks a stored tweet's relevance and, when relevant, adds a
// translation and a summary.
func (p *Processor) AnalyzeTweet(ctx context.Context, tweetID, lang string) (*models.Tweet, error) {
	t, err := p.loadForAnalysis(ctx, tweetID)
	if err != nil {
		return nil, err
	}
	lang = p.language(lang)

	rel, err := p.analyzer.CheckRelevance(ctx, t.AuthorUsername, t.Content)
	if err != nil {
		return nil, fmt.Errorf("relevance check for %s: %w", tweetID, err)
	}
	a := models.Analysis{IsRelevant: rel.IsRelevant, RelevanceScore: rel.Score, Categories: rel.Categories}
	if rel.Reason != "" {
		a.AIComments = []string{rel.Reason}
	}

	if rel.IsRelevant {
		if a.Translation, err = p.analyzer.Translate(ctx, t.Content, lang); err != nil {
			return nil, fmt.Errorf("translation for %s: %w", tweetID, err)
		}
		if a.Summary, err = p.analyzer.Summarize(ctx, t.Content, lang); err != nil {
			return nil, fmt.Errorf("summary for %s: %w", tweetID, err)
		}
	}

	if err := p.store.UpdateAnalysis(ctx, tweetID, a); err != nil {
		return nil, err
	}
	applyAnalysis(t, a)
	slog.Info("Analyzed tweet", "tweet_id", tweetID, "relevant", a.IsRelevant, "score", a.RelevanceScore)
	return t, nil
}

// ThreadAnalysisResult is the outcome of AnalyzeThread.
type ThreadAnalysisResult struct {
	Tweet     *models.Tweet      `json:"tweet"`
	Relevance ai.Relevance       `json:"relevance"`
	Analysis  *ai.ThreadAnalysis `json:"analysis,omitempty"`
	Saved     bool               `json:"saved"`
}

// AnalyzeThread checks a stored tweet's relevance and, when relevant,
// translates it and digests its stored reply tree. dryRun skips the write.
func (p *Processor) AnalyzeThread(ctx context.Context, tweetID, lang string, dryRun bool) (*ThreadAnalysisResult, error) {
	t, err := p.loadForAnalysis(ctx, tweetID)
	if err != nil {
		return nil, err
	}
	lang = p.language(lang)

	rel, err := p.analyzer.CheckRelevance(ctx, t.AuthorUsername, t.Content)
	if err != nil {
		return nil, fmt.Errorf("relevance check for %s: %w", tweetID, err)
	}
	res := &ThreadAnalysisResult{Tweet: t, Relevance: rel}
	a := models.Analysis{IsRelevant: rel.IsRelevant, RelevanceScore: rel.Score, Categories: rel.Categories}

	if rel.IsRelevant {
		ts, err := storedThread(t)
		if err != nil {
			slog.Warn("Stored thread snapshot unreadable, analyzing without replies", "tweet_id", tweetID, "error", err)
		}
		if a.Translation, err = p.analyzer.Translate(ctx, t.Content, lang); err != nil {
			return nil, fmt.Errorf("translation for %s: %w", tweetID, err)
		}
		ta, err := p.analyzer.AnalyzeThread(ctx, t, ts, lang)
		if err != nil {
			return nil, fmt.Errorf("thread analysis for %s: %w", tweetID, err)
		}
		a.Summary = ta.Summary
		a.AIComments = ta.KeyPoints
		res.Analysis = &ta
	}

	applyAnalysis(t, a)
	if dryRun {
		return res, nil
	}
	if err := p.store.UpdateAnalysis(ctx, tweetID, a); err != nil {
		return nil, err
	}
	res.Saved = true
	return res, nil
}

func (p *Processor) loadForAnalysis(ctx context.Context, tweetID string) (*models.Tweet, error) {
	if !p.analyzer.Enabled() {
		return nil, ErrAIDisabled
	}
	t, err := p.store.GetTweet(ctx, tweetID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrTweetNotFound, tweetID)
	}
	return t, nil
}

func (p *Processor) language(lang string) string {
	if lang != "" {
		return lang
	}
	return p.config.Language
}

// storedThread decodes the snapshot saved by ParseThread. A tweet without
// one yields nil.
func storedThread(t *models.Tweet) (*thread.ThreadStructure, error) {
	if t.RepliesData == "" {
		return nil, nil
	}
	var ts thread.ThreadStructure
	if err := json.Unmarshal([]byte(t.RepliesData), &ts); err != nil {
		return nil, err
	}
	return &ts, nil
}

func applyAnalysis(t *models.Tweet, a models.Analysis) {
	t.IsRelevant = a.IsRelevant
	t.RelevanceScore = a.RelevanceScore
	t.Categories = a.Categories
	t.Translation = a.Translation
	t.Summary = a.Summary
	t.AIComments = a.AIComments
	t.IsProcessed = true
}

// NotifyPending sends relevant tweets that have not been announced yet and
// marks them sent. It returns how many tweets went out.
func (p *Processor) NotifyPending(ctx context.Context) (int, error) {
	if p.notifier == nil || !p.notifier.Enabled() {
		return 0, nil
	}
	pending, err := p.store.UnsentRelevant(ctx, notifyBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to load unsent tweets: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	// Oldest first reads naturally in a chat.
	for i, j := 0, len(pending)-1; i < j; i, j = i+1, j-1 {
		pending[i], pending[j] = pending[j], pending[i]
	}
	if err := p.notifier.SendTweets(ctx, pending); err != nil {
		return 0, fmt.Errorf("failed to send notifications: %w", err)
	}

	ids := make([]string, len(pending))
	for i, t := range pending {
		ids[i] = t.TweetID
	}
	if err := p.store.MarkSent(ctx, ids, p.now()); err != nil {
		return len(pending), fmt.Errorf("failed to mark tweets sent: %w", err)
	}
	slog.Info("Sent notifications", "count", len(pending))
	return len(pending), nil
}

// ImportResult counts what ImportHTML did with each parsed tweet.
type ImportResult struct {
	Parsed   int      `json:"parsed"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// ImportHTML parses a saved timeline page and upserts every valid tweet.
func (p *Processor) ImportHTML(ctx context.Context, r io.Reader) (ImportResult, error) {
	var res ImportResult
	if p.pages == nil {
		return res, errors.New("html import is not configured")
	}
	tweets, err := p.pages.ParseTimeline(r)
	if err != nil {
		return res, err
	}
	res.Parsed = len(tweets)

	for i := range tweets {
		t := &tweets[i]
		if err := p.validator.ValidateStruct(t); err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("tweet %s: %v", t.TweetID, err))
			continue
		}
		if _, err := p.store.UpsertTweet(ctx, t); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("tweet %s: %v", t.TweetID, err))
			continue
		}
		res.Imported++
	}
	slog.Info("Imported HTML timeline", "parsed", res.Parsed, "imported", res.Imported, "skipped", res.Skipped)
	return res, nil
}
