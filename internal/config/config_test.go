package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	// Set test environment variables (auto-cleaned up after test)
	t.Setenv("PORT", "9090")
	t.Setenv("CHAT_WEBHOOK_URL", "https://test.webhook")
	t.Setenv("TWITTER_AUTH_TOKEN", "auth")
	t.Setenv("TWITTER_CSRF_TOKEN", "csrf")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("SESSION_PATH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Expected 9090, got %s", cfg.Port)
	}
	if cfg.ChatWebhookURL != "https://test.webhook" {
		t.Errorf("Expected https://test.webhook, got %s", cfg.ChatWebhookURL)
	}
	if cfg.TwitterAuthToken != "auth" || cfg.TwitterCSRFToken != "csrf" {
		t.Errorf("Expected twitter credentials to be loaded, got %q/%q", cfg.TwitterAuthToken, cfg.TwitterCSRFToken)
	}
	if cfg.StorageBackend != BackendSQLite {
		t.Errorf("Expected default backend sqlite, got %s", cfg.StorageBackend)
	}
	if cfg.Monitor.Interval != 30*time.Minute {
		t.Errorf("Expected default 30m, got %s", cfg.Monitor.Interval)
	}
	if cfg.Monitor.MaxTweetsPerCheck != 50 {
		t.Errorf("Expected default MaxTweetsPerCheck 50, got %d", cfg.Monitor.MaxTweetsPerCheck)
	}
	if cfg.Monitor.MinRelevance != 0.5 {
		t.Errorf("Expected default MinRelevance 0.5, got %v", cfg.Monitor.MinRelevance)
	}
	if !cfg.Monitor.SkipRetweets || cfg.Monitor.SkipReplies || !cfg.Monitor.RelevantOnly {
		t.Errorf("Unexpected monitor defaults: %+v", cfg.Monitor)
	}
	if cfg.ThreadMaxDepth != 3 || cfg.ThreadMaxChildren != 50 {
		t.Errorf("Expected thread bounds 3/50, got %d/%d", cfg.ThreadMaxDepth, cfg.ThreadMaxChildren)
	}
	if cfg.RateLimitDelay != 2*time.Second {
		t.Errorf("Expected default rate limit delay 2s, got %s", cfg.RateLimitDelay)
	}
	if cfg.MessageFormat != "detailed" || cfg.Language != "ru" {
		t.Errorf("Expected detailed/ru, got %s/%s", cfg.MessageFormat, cfg.Language)
	}
	if cfg.SessionPath != "data/session.json" {
		t.Errorf("Expected default session path, got %s", cfg.SessionPath)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("Expected default log level INFO, got %s", cfg.LogLevel)
	}
}

func TestLoad_FirestoreRequiresProject(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "firestore")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")

	_, err := Load()
	if err == nil {
		t.Error("Load() should return an error when GOOGLE_CLOUD_PROJECT is not set for firestore")
	}
}

func TestLoad_FirestoreWithProject(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "Firestore")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "test-project")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.StorageBackend != BackendFirestore || cfg.ProjectID != "test-project" {
		t.Errorf("Expected firestore/test-project, got %s/%s", cfg.StorageBackend, cfg.ProjectID)
	}
}

func TestLoad_CustomMonitorInterval(t *testing.T) {
	t.Setenv("MONITOR_INTERVAL", "5m")
	t.Setenv("MONITOR_SKIP_REPLIES", "true")
	t.Setenv("MONITOR_MIN_SCORE", "0.7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.Monitor.Interval != 5*time.Minute {
		t.Errorf("Expected 5m, got %s", cfg.Monitor.Interval)
	}
	if !cfg.Monitor.SkipReplies {
		t.Error("Expected SkipReplies to be true")
	}
	if cfg.Monitor.MinRelevance != 0.7 {
		t.Errorf("Expected 0.7, got %v", cfg.Monitor.MinRelevance)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"MONITOR_INTERVAL", "not-a-duration"},
		{"MONITOR_INTERVAL", "-5m"},
		{"THREAD_MAX_DEPTH", "0"},
		{"THREAD_MAX_CHILDREN", "many"},
		{"MONITOR_SKIP_RETWEETS", "maybe"},
		{"MONITOR_MIN_SCORE", "1.5"},
		{"STORAGE_BACKEND", "postgres"},
		{"BOT_MESSAGE_FORMAT", "fancy"},
		{"BOT_LANGUAGE", "de"},
		{"LOG_LEVEL", "loud"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load() should return error for %s=%q", tt.key, tt.value)
			} else if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("Expected error to mention %s, got %v", tt.key, err)
			}
		})
	}
}

func TestLoadPrompts_Defaults(t *testing.T) {
	p, err := LoadPrompts("")
	if err != nil {
		t.Fatalf("LoadPrompts() returned unexpected error: %v", err)
	}

	out, err := p.Render("relevance", "en", PromptData{Text: "Go 1.26 released", Author: "golang"})
	if err != nil {
		t.Fatalf("Render() returned unexpected error: %v", err)
	}
	if !strings.Contains(out, "Go 1.26 released") || !strings.Contains(out, "@golang") {
		t.Errorf("Rendered prompt missing data: %s", out)
	}

	ru, err := p.Render("translator", "ru", PromptData{Text: "hello"})
	if err != nil {
		t.Fatalf("Render() returned unexpected error: %v", err)
	}
	if !strings.Contains(ru, "русский") {
		t.Errorf("Expected Russian translator prompt, got %s", ru)
	}

	fallback, err := p.Render("summarizer", "de", PromptData{Text: "hello"})
	if err != nil {
		t.Fatalf("Render() returned unexpected error: %v", err)
	}
	if !strings.Contains(fallback, "Summarize") {
		t.Errorf("Expected English fallback, got %s", fallback)
	}

	if _, err := p.Render("nope", "en", PromptData{}); err == nil {
		t.Error("Expected error for unknown prompt")
	}
}

func TestLoadPrompts_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	content := "relevance: \"score {{.Text}}\"\ntranslator:\n  en: \"tr {{.Text}}\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	p, err := LoadPrompts(path)
	if err != nil {
		t.Fatalf("LoadPrompts() returned unexpected error: %v", err)
	}
	out, err := p.Render("translator", "ru", PromptData{Text: "x"})
	if err != nil {
		t.Fatalf("Render() returned unexpected error: %v", err)
	}
	if out != "tr x" {
		t.Errorf("Expected %q, got %q", "tr x", out)
	}
}

func TestParsePrompts_Invalid(t *testing.T) {
	if _, err := ParsePrompts([]byte("translator:\n  en: hi\n")); err == nil {
		t.Error("Expected error when relevance template is missing")
	}
	if _, err := ParsePrompts([]byte("relevance: \"{{.Text\"\n")); err == nil {
		t.Error("Expected error for broken template")
	}
	if _, err := LoadPrompts(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
