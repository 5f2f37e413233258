package ai

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/pauljones0/x-parser/internal/config"
	"github.com/pauljones0/x-parser/internal/models"
	"github.com/pauljones0/x-parser/internal/thread"
)

func testPrompts(t *testing.T) *config.Prompts {
	t.Helper()
	p, err := config.LoadPrompts("")
	if err != nil {
		t.Fatalf("LoadPrompts() error = %v", err)
	}
	return p
}

func fakeClient(t *testing.T, fn generateFunc) *Client {
	return newWithGenerator(fn, testPrompts(t), time.Second)
}

func TestNilClientDegrades(t *testing.T) {
	c, err := NewClient(context.Background(), "", "model", nil, 0)
	if err != nil || c != nil {
		t.Fatalf("NewClient without key = %v, %v; want nil, nil", c, err)
	}
	ctx := context.Background()

	r, err := c.CheckRelevance(ctx, "a", "text")
	if err != nil || r.IsRelevant || r.Score != 0 || r.Categories == nil {
		t.Errorf("CheckRelevance() = %+v, %v", r, err)
	}
	if s, err := c.Translate(ctx, "text", "en"); s != "" || err != nil {
		t.Errorf("Translate() = %q, %v", s, err)
	}
	if s, err := c.Summarize(ctx, "text", "en"); s != "" || err != nil {
		t.Errorf("Summarize() = %q, %v", s, err)
	}
	a, err := c.AnalyzeThread(ctx, &models.Tweet{}, nil, "en")
	if err != nil || a.KeyPoints == nil {
		t.Errorf("AnalyzeThread() = %+v, %v", a, err)
	}
	if c.Enabled() {
		t.Error("nil client should not be enabled")
	}
}

func TestCheckRelevance(t *testing.T) {
	var gotTemp float32
	var gotPrompt string
	c := fakeClient(t, func(_ context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
		gotPrompt = prompt
		gotTemp = *cfg.Temperature
		if cfg.ResponseMIMEType != "application/json" || cfg.ResponseSchema == nil {
			t.Error("relevance request should enforce a JSON schema")
		}
		return "```json\n{\"relevance_score\": 1.7, \"is_relevant\": true, \"categories\": [\"ai\"], \"reason\": \"on topic\"}\n```", nil
	})

	r, err := c.CheckRelevance(context.Background(), "alice", "new model released")
	if err != nil {
		t.Fatalf("CheckRelevance() error = %v", err)
	}
	if !r.IsRelevant || r.Score != 1 || len(r.Categories) != 1 || r.Categories[0] != "ai" {
		t.Errorf("unexpected relevance: %+v", r)
	}
	if gotTemp != tempRelevance {
		t.Errorf("temperature = %v, want %v", gotTemp, tempRelevance)
	}
	if !strings.Contains(gotPrompt, "@alice") || !strings.Contains(gotPrompt, "new model released") {
		t.Errorf("prompt missing post data: %q", gotPrompt)
	}
}

func TestCheckRelevance_BadJSON(t *testing.T) {
	c := fakeClient(t, func(context.Context, string, *genai.GenerateContentConfig) (string, error) {
		return "not json", nil
	})
	if _, err := c.CheckRelevance(context.Background(), "a", "b"); err == nil {
		t.Error("expected parse error")
	}
}

func TestTranslateUsesLanguageVariant(t *testing.T) {
	var gotPrompt string
	c := fakeClient(t, func(_ context.Context, prompt string, _ *genai.GenerateContentConfig) (string, error) {
		gotPrompt = prompt
		return "  привет  ", nil
	})
	out, err := c.Translate(context.Background(), "hello", "ru")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if out != "привет" {
		t.Errorf("Translate() = %q", out)
	}
	if !strings.Contains(gotPrompt, "русский") {
		t.Errorf("expected Russian prompt, got %q", gotPrompt)
	}
}

func buildThread(t *testing.T) *thread.ThreadStructure {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []models.ReplyRecord{
		{ID: "2", AuthorHandle: "bob", Text: "first", CreatedAt: base, ParentID: "1", RootID: "1", LikeCount: 4},
		{ID: "3", AuthorHandle: "carol", Text: "nested", CreatedAt: base.Add(time.Minute), ParentID: "2", RootID: "1"},
	}
	ts, err := thread.Build(records, "1", 3, 50)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return ts
}

func TestAnalyzeThread(t *testing.T) {
	var gotPrompt string
	c := fakeClient(t, func(_ context.Context, prompt string, _ *genai.GenerateContentConfig) (string, error) {
		gotPrompt = prompt
		return `{"summary":"a debate","key_points":["x"],"sentiment":"mixed"}`, nil
	})
	tweet := &models.Tweet{TweetID: "1", AuthorUsername: "alice", Content: "root post"}

	a, err := c.AnalyzeThread(context.Background(), tweet, buildThread(t), "en")
	if err != nil {
		t.Fatalf("AnalyzeThread() error = %v", err)
	}
	if a.Summary != "a debate" || a.Sentiment != "mixed" || len(a.KeyPoints) != 1 || a.TopParticipants == nil {
		t.Errorf("unexpected analysis: %+v", a)
	}
	if !strings.Contains(gotPrompt, "1. @bob: first (👍 4)") || !strings.Contains(gotPrompt, "  2. @carol: nested") {
		t.Errorf("prompt missing reply context: %q", gotPrompt)
	}
}

func TestAnalyzeThread_FallbackOnBadJSON(t *testing.T) {
	c := fakeClient(t, func(context.Context, string, *genai.GenerateContentConfig) (string, error) {
		return "The thread is mostly supportive.", nil
	})
	a, err := c.AnalyzeThread(context.Background(), &models.Tweet{TweetID: "1"}, nil, "en")
	if err != nil {
		t.Fatalf("AnalyzeThread() error = %v", err)
	}
	if a.Summary != "The thread is mostly supportive." || a.Sentiment != "neutral" {
		t.Errorf("unexpected fallback: %+v", a)
	}
}

func TestAnalyzeBatch(t *testing.T) {
	var inFlight, peak atomic.Int32
	c := fakeClient(t, func(_ context.Context, prompt string, _ *genai.GenerateContentConfig) (string, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		if strings.Contains(prompt, "boom") {
			return "", errors.New("upstream failure")
		}
		return `{"relevance_score":0.8,"is_relevant":true,"categories":[]}`, nil
	})

	tweets := []models.Tweet{
		{TweetID: "1", Content: "ok"},
		{TweetID: "2", Content: "boom"},
		{TweetID: "3", Content: "ok"},
		{TweetID: "4", Content: "ok"},
	}
	results, err := c.AnalyzeBatch(context.Background(), tweets, 2)
	if err == nil || !strings.Contains(err.Error(), "1 of 4") || !strings.Contains(err.Error(), "tweet 2") {
		t.Errorf("expected aggregated error, got %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if results[1].IsRelevant || results[1].Err == nil {
		t.Errorf("failed entry = %+v, want only Err set", results[1])
	}
	if !results[0].IsRelevant || !results[3].IsRelevant {
		t.Error("successful entries should be populated")
	}
	if peak.Load() > 2 {
		t.Errorf("concurrency peak = %d, want <= 2", peak.Load())
	}
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}```", `{"a":1}`},
		{"Here you go: {\"a\":1} thanks", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := cleanJSON(tt.in); got != tt.want {
			t.Errorf("cleanJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
