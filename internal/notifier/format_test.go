package notifier

import (
	"strings"
	"testing"
	"time"

	"github.com/pauljones0/x-parser/internal/models"
)

func sampleTweet() models.Tweet {
	return models.Tweet{
		TweetID:        "42",
		AuthorUsername: "alice",
		AuthorName:     "Alice",
		Content:        "Shipping a new model today",
		CreatedAt:      time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC),
		URL:            "https://x.com/alice/status/42",
		Likes:          10,
		Retweets:       2,
		Replies:        5,
		RelevanceScore: 0.87,
		Categories:     []string{"ai", "startups"},
		Translation:    "Сегодня выпускаем новую модель",
		Summary:        "New model release",
		AIComments:     []string{"launch timing", "pricing"},
	}
}

func TestTruncateText(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"привет мир", 8, "приве..."},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		if got := TruncateText(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateText(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestFormatTweet(t *testing.T) {
	tw := sampleTweet()

	tests := []struct {
		name   string
		format string
		lang   string
		want   []string
		absent []string
	}{
		{
			name:   "brief en",
			format: FormatBrief,
			lang:   "en",
			want:   []string{"🔥 New Tweet", "👤 @alice", "📅 05.03.2024 14:07", "💭 Main point: New model release", "🤖 Relevance: 0.9/1.0", "🏷️ ai, startups", "💾 5 | 👍 10 | 🔄 2"},
			absent: []string{"(Alice)", "launch timing"},
		},
		{
			name:   "detailed en",
			format: FormatDetailed,
			lang:   "en",
			want:   []string{"🔥 New Relevant Tweet!", "👤 @alice (Alice)", "📝 Original:\nShipping", "🌐 Translation:", "• launch timing", "• Categories: ai, startups", "🔗 Link: https://x.com/alice/status/42"},
		},
		{
			name:   "detailed ru",
			format: FormatDetailed,
			lang:   "ru",
			want:   []string{"🔥 Новый релевантный твитт!", "🌐 Перевод:", "• Релевантность: 0.9/1.0", "💾 Комментариев: 5"},
		},
		{
			name:   "unknown language falls back to en",
			format: FormatBrief,
			lang:   "de",
			want:   []string{"🔥 New Tweet"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatTweet(tw, tt.format, tt.lang)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("message missing %q:\n%s", w, got)
				}
			}
			for _, a := range tt.absent {
				if strings.Contains(got, a) {
					t.Errorf("message should not contain %q:\n%s", a, got)
				}
			}
		})
	}
}

func TestFormatTweet_Defaults(t *testing.T) {
	tw := models.Tweet{AuthorUsername: "bob", Content: "same", Translation: "same"}
	got := FormatTweet(tw, FormatBrief, "en")
	if strings.Contains(got, "Translation") {
		t.Error("identical translation should be omitted")
	}
	if !strings.Contains(got, "N/A/1.0") || !strings.Contains(got, "🏷️ -") {
		t.Errorf("missing defaults:\n%s", got)
	}
}

func TestFormatTweet_CapsLength(t *testing.T) {
	tw := sampleTweet()
	tw.Content = strings.Repeat("x", 5000)
	if n := len([]rune(FormatTweet(tw, FormatDetailed, "en"))); n != MaxMessageLength {
		t.Errorf("message length = %d, want %d", n, MaxMessageLength)
	}
}

func TestFormatBatch(t *testing.T) {
	if got := FormatBatch(nil, FormatBrief, "en"); got != nil {
		t.Errorf("FormatBatch(nil) = %v", got)
	}

	one := FormatBatch([]models.Tweet{sampleTweet()}, FormatBrief, "en")
	if len(one) != 1 || strings.Contains(one[0], "1/1") {
		t.Errorf("single tweet batch = %q", one)
	}

	three := FormatBatch([]models.Tweet{sampleTweet(), sampleTweet(), sampleTweet()}, FormatBrief, "ru")
	if len(three) != 4 {
		t.Fatalf("len = %d, want 4", len(three))
	}
	if three[0] != "🔥 Найдено 3 новых релевантных твиттов!" {
		t.Errorf("header = %q", three[0])
	}
	for i, msg := range three[1:] {
		prefix := "\n" + string(rune('1'+i)) + "/3\n"
		if !strings.HasPrefix(msg, prefix) {
			t.Errorf("message %d = %q, want prefix %q", i+1, msg[:10], prefix)
		}
	}
}

func TestFormatStatus(t *testing.T) {
	last := time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)
	info := StatusInfo{
		Stats:    models.Stats{TotalTweets: 12, RelevantTweets: 4, TodayTweets: 2, LastProcessed: &last},
		Running:  true,
		Interval: 30 * time.Minute,
	}

	en := FormatStatus(info, "en")
	for _, w := range []string{"🟢 Active", "every 30 minutes", "Total tweets: 12", "Relevant: 4", "Today: 2", "05.03.2024 09:30"} {
		if !strings.Contains(en, w) {
			t.Errorf("en status missing %q:\n%s", w, en)
		}
	}

	info.Running = false
	info.Stats.LastProcessed = nil
	ru := FormatStatus(info, "ru")
	for _, w := range []string{"🔴 Остановлен", "каждые 30 минут", "Никогда"} {
		if !strings.Contains(ru, w) {
			t.Errorf("ru status missing %q:\n%s", w, ru)
		}
	}
}
