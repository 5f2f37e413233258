package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"github.com/pauljones0/x-parser/internal/config"
	"github.com/pauljones0/x-parser/internal/models"
	"github.com/pauljones0/x-parser/internal/thread"
)

const (
	tempRelevance   float32 = 0.3
	tempTranslation float32 = 0.1
	tempSummary     float32 = 0.5
	tempThread      float32 = 0.4

	// maxContextReplies bounds how many replies are quoted in a thread prompt.
	maxContextReplies = 100
)

// generateFunc sends one prompt and returns the raw model text.
type generateFunc func(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error)

type Client struct {
	generate generateFunc
	prompts  *config.Prompts
	timeout  time.Duration
}

// Relevance is the outcome of a relevance check.
type Relevance struct {
	Score      float64  `json:"relevance_score"`
	IsRelevant bool     `json:"is_relevant"`
	Categories []string `json:"categories"`
	Reason     string   `json:"reason"`

	// Err is set by AnalyzeBatch when the check for this tweet failed.
	Err error `json:"-"`
}

// ThreadAnalysis is the structured digest of a discussion thread.
type ThreadAnalysis struct {
	Summary         string   `json:"summary"`
	KeyPoints       []string `json:"key_points"`
	Sentiment       string   `json:"sentiment"`
	TopParticipants []string `json:"top_participants"`
}

var relevanceSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"relevance_score": {
			Type:        genai.TypeNumber,
			Description: "Relevance between 0 and 1.",
		},
		"is_relevant": {
			Type: genai.TypeBoolean,
		},
		"categories": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
		"reason": {
			Type: genai.TypeString,
		},
	},
	Required: []string{"relevance_score", "is_relevant", "categories"},
}

var threadSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"summary":          {Type: genai.TypeString},
		"key_points":       {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"sentiment":        {Type: genai.TypeString},
		"top_participants": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
	Required: []string{"summary"},
}

// NewClient returns nil without an API key; every method on a nil Client
// degrades to an empty result.
func NewClient(ctx context.Context, apiKey, modelID string, prompts *config.Prompts, timeout time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	gen := func(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, modelID, genai.Text(prompt), cfg)
		if err != nil {
			return "", fmt.Errorf("gemini generation failed: %w", err)
		}
		text := resp.Text()
		if text == "" {
			return "", fmt.Errorf("no text part in response")
		}
		return text, nil
	}
	return newWithGenerator(gen, prompts, timeout), nil
}

func newWithGenerator(gen generateFunc, prompts *config.Prompts, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{generate: gen, prompts: prompts, timeout: timeout}
}

// Enabled reports whether an LLM backend is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.generate != nil
}

func (c *Client) call(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.generate(ctx, prompt, cfg)
}

func jsonConfig(temp float32, schema *genai.Schema) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(temp),
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}
}

// CheckRelevance scores a post's relevance.
func (c *Client) CheckRelevance(ctx context.Context, author, text string) (Relevance, error) {
	if !c.Enabled() {
		return Relevance{Categories: []string{}}, nil
	}

	prompt, err := c.prompts.Render("relevance", "", config.PromptData{Text: text, Author: author})
	if err != nil {
		return Relevance{}, err
	}
	raw, err := c.call(ctx, prompt, jsonConfig(tempRelevance, relevanceSchema))
	if err != nil {
		return Relevance{}, err
	}

	var r Relevance
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &r); err != nil {
		return Relevance{}, fmt.Errorf("failed to parse relevance response: %w", err)
	}
	r.Score = min(max(r.Score, 0), 1)
	if r.Categories == nil {
		r.Categories = []string{}
	}
	return r, nil
}

// Translate returns text translated into lang.
func (c *Client) Translate(ctx context.Context, text, lang string) (string, error) {
	return c.plain(ctx, "translator", lang, text, tempTranslation)
}

// Summarize returns a short summary of text in lang.
func (c *Client) Summarize(ctx context.Context, text, lang string) (string, error) {
	return c.plain(ctx, "summarizer", lang, text, tempSummary)
}

func (c *Client) plain(ctx context.Context, name, lang, text string, temp float32) (string, error) {
	if !c.Enabled() {
		return "", nil
	}
	prompt, err := c.prompts.Render(name, lang, config.PromptData{Text: text})
	if err != nil {
		return "", err
	}
	out, err := c.call(ctx, prompt, &genai.GenerateContentConfig{Temperature: genai.Ptr(temp)})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// AnalyzeThread digests a tweet and its reply tree. A response that is not
// valid JSON is kept as the summary.
func (c *Client) AnalyzeThread(ctx context.Context, tweet *models.Tweet, ts *thread.ThreadStructure, lang string) (ThreadAnalysis, error) {
	if !c.Enabled() {
		return defaultAnalysis(""), nil
	}

	prompt, err := c.prompts.Render("thread_analyzer", lang, config.PromptData{
		Text:    tweet.Content,
		Author:  tweet.AuthorUsername,
		Replies: threadContext(ts, lang),
	})
	if err != nil {
		return ThreadAnalysis{}, err
	}
	raw, err := c.call(ctx, prompt, jsonConfig(tempThread, threadSchema))
	if err != nil {
		return ThreadAnalysis{}, err
	}

	var a ThreadAnalysis
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &a); err != nil {
		slog.Warn("Thread analysis was not valid JSON, using raw text", "tweet_id", tweet.TweetID, "error", err)
		return defaultAnalysis(strings.TrimSpace(raw)), nil
	}
	if a.KeyPoints == nil {
		a.KeyPoints = []string{}
	}
	if a.TopParticipants == nil {
		a.TopParticipants = []string{}
	}
	return a, nil
}

func defaultAnalysis(summary string) ThreadAnalysis {
	return ThreadAnalysis{
		Summary:         summary,
		KeyPoints:       []string{},
		Sentiment:       "neutral",
		TopParticipants: []string{},
	}
}

// threadContext renders replies in pre-order, one numbered line each,
// indented by depth.
func threadContext(ts *thread.ThreadStructure, lang string) string {
	if ts == nil || ts.TotalReplies == 0 {
		if lang == "ru" {
			return "(нет ответов)"
		}
		return "(no replies)"
	}

	var b strings.Builder
	for i, node := range ts.Replies {
		if i >= maxContextReplies {
			break
		}
		fmt.Fprintf(&b, "%s%d. @%s: %s (👍 %d)\n",
			strings.Repeat("  ", node.Depth-1), i+1, node.AuthorHandle,
			strings.ReplaceAll(node.Text, "\n", " "), node.LikeCount)
	}
	return b.String()
}

// AnalyzeBatch checks relevance for each tweet with at most concurrency
// requests in flight. Results align with tweets; failed entries carry only
// Err and are also reported together in the returned error.
func (c *Client) AnalyzeBatch(ctx context.Context, tweets []models.Tweet, concurrency int) ([]Relevance, error) {
	results := make([]Relevance, len(tweets))
	errs := make([]error, len(tweets))
	if concurrency < 1 {
		concurrency = 1
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i := range tweets {
		g.Go(func() error {
			r, err := c.CheckRelevance(ctx, tweets[i].AuthorUsername, tweets[i].Content)
			if err != nil {
				errs[i] = fmt.Errorf("tweet %s: %w", tweets[i].TweetID, err)
				results[i] = Relevance{Err: err}
				return nil
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err.Error())
		}
	}
	if len(failed) > 0 {
		return results, fmt.Errorf("%d of %d relevance checks failed: %s", len(failed), len(tweets), strings.Join(failed, "; "))
	}
	return results, nil
}

// cleanJSON strips markdown fences and any prose around the JSON object.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start > 0 && end > start {
		s = s[start : end+1]
	}
	return s
}
