package notifier

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pauljones0/x-parser/internal/models"
)

const (
	FormatBrief    = "brief"
	FormatDetailed = "detailed"

	dateLayout = "02.01.2006 15:04"
)

// labels holds the per-language strings of a message.
type labels struct {
	briefTitle, detailedTitle string
	original, translation     string
	mainPoint, keyPoints      string
	relevance, categories     string
	metadata, link, comments  string
	batchHeader               string
	never                     string
}

var messageLabels = map[string]labels{
	"en": {
		briefTitle:    "🔥 New Tweet",
		detailedTitle: "🔥 New Relevant Tweet!",
		original:      "📝 Original:",
		translation:   "🌐 Translation:",
		mainPoint:     "💭 Main point:",
		keyPoints:     "🧠 Key points:",
		relevance:     "Relevance",
		categories:    "Categories",
		metadata:      "🤖 Metadata:",
		link:          "🔗 Link:",
		comments:      "💾 Comments:",
		batchHeader:   "🔥 Found %d new relevant tweets!",
		never:         "Never",
	},
	"ru": {
		briefTitle:    "🔥 Новый твитт",
		detailedTitle: "🔥 Новый релевантный твитт!",
		original:      "📝 Оригинал:",
		translation:   "🌐 Перевод:",
		mainPoint:     "💭 Суть:",
		keyPoints:     "🧠 Ключевые моменты:",
		relevance:     "Релевантность",
		categories:    "Категории",
		metadata:      "🤖 Метаданные:",
		link:          "🔗 Ссылка:",
		comments:      "💾 Комментариев:",
		batchHeader:   "🔥 Найдено %d новых релевантных твиттов!",
		never:         "Никогда",
	},
}

func labelsFor(lang string) labels {
	if l, ok := messageLabels[lang]; ok {
		return l
	}
	return messageLabels["en"]
}

// TruncateText shortens s to at most maxLen runes, replacing the tail with "...".
func TruncateText(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

func formatScore(score float64) string {
	if score == 0 {
		return "N/A"
	}
	return strconv.FormatFloat(math.Round(score*10)/10, 'f', -1, 64)
}

func categoryList(cats []string) string {
	if len(cats) == 0 {
		return "-"
	}
	return strings.Join(cats, ", ")
}

// FormatTweet renders t as a brief or detailed message in lang (en or ru).
// Unknown formats render as detailed and unknown languages as English.
func FormatTweet(t models.Tweet, format, lang string) string {
	var msg string
	if format == FormatBrief {
		msg = formatBrief(t, labelsFor(lang))
	} else {
		msg = formatDetailed(t, labelsFor(lang))
	}
	return TruncateText(msg, MaxMessageLength)
}

func formatBrief(t models.Tweet, l labels) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n👤 @%s\n📅 %s\n\n📝 %s", l.briefTitle, t.AuthorUsername, t.CreatedAt.Format(dateLayout), TruncateText(t.Content, 200))
	if t.Translation != "" && t.Translation != t.Content {
		fmt.Fprintf(&b, "\n\n%s\n%s", l.translation, TruncateText(t.Translation, 150))
	}
	if t.Summary != "" {
		fmt.Fprintf(&b, "\n\n%s %s", l.mainPoint, TruncateText(t.Summary, 150))
	}
	fmt.Fprintf(&b, "\n\n🤖 %s: %s/1.0\n🏷️ %s", l.relevance, formatScore(t.RelevanceScore), categoryList(t.Categories))
	fmt.Fprintf(&b, "\n\n🔗 %s\n💾 %d | 👍 %d | 🔄 %d", t.URL, t.Replies, t.Likes, t.Retweets)
	return b.String()
}

func formatDetailed(t models.Tweet, l labels) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n👤 @%s (%s)\n📅 %s\n\n%s\n%s", l.detailedTitle, t.AuthorUsername, t.AuthorName, t.CreatedAt.Format(dateLayout), l.original, t.Content)
	if t.Translation != "" && t.Translation != t.Content {
		fmt.Fprintf(&b, "\n\n%s\n%s", l.translation, t.Translation)
	}
	if t.Summary != "" {
		fmt.Fprintf(&b, "\n\n%s %s", l.mainPoint, t.Summary)
	}
	if len(t.AIComments) > 0 {
		fmt.Fprintf(&b, "\n\n%s", l.keyPoints)
		for _, c := range t.AIComments {
			fmt.Fprintf(&b, "\n• %s", TruncateText(c, 200))
		}
	}
	fmt.Fprintf(&b, "\n\n%s\n• %s: %s/1.0\n• %s: %s", l.metadata, l.relevance, formatScore(t.RelevanceScore), l.categories, categoryList(t.Categories))
	fmt.Fprintf(&b, "\n\n%s %s\n%s %d | 👍 %d | 🔄 %d", l.link, t.URL, l.comments, t.Replies, t.Likes, t.Retweets)
	return b.String()
}

// FormatBatch renders tweets as a list of messages. A single tweet is one
// message; several get a header followed by "i/N" numbered messages.
func FormatBatch(tweets []models.Tweet, format, lang string) []string {
	switch len(tweets) {
	case 0:
		return nil
	case 1:
		return []string{FormatTweet(tweets[0], format, lang)}
	}

	l := labelsFor(lang)
	msgs := make([]string, 0, len(tweets)+1)
	msgs = append(msgs, fmt.Sprintf(l.batchHeader, len(tweets)))
	for i, t := range tweets {
		body := fmt.Sprintf("\n%d/%d\n%s", i+1, len(tweets), FormatTweet(t, format, lang))
		msgs = append(msgs, TruncateText(body, MaxMessageLength))
	}
	return msgs
}

// StatusInfo is the monitor state shown by FormatStatus.
type StatusInfo struct {
	Stats    models.Stats
	Running  bool
	Interval time.Duration
}

// FormatStatus renders the monitor state and tweet counters.
func FormatStatus(s StatusInfo, lang string) string {
	l := labelsFor(lang)
	last := l.never
	if s.Stats.LastProcessed != nil {
		last = s.Stats.LastProcessed.Format(dateLayout)
	}
	minutes := int(s.Interval.Minutes())

	if lang == "ru" {
		state := "🔴 Остановлен"
		if s.Running {
			state = "🟢 Активен"
		}
		return fmt.Sprintf("📊 Статус мониторинга\n\n🤖 Состояние: %s\n⏰ Интервал: каждые %d минут\n\n📈 Статистика:\n• Всего твиттов: %d\n• Релевантных: %d\n• Сегодня: %d\n\n🕐 Последний анализ: %s",
			state, minutes, s.Stats.TotalTweets, s.Stats.RelevantTweets, s.Stats.TodayTweets, last)
	}
	state := "🔴 Stopped"
	if s.Running {
		state = "🟢 Active"
	}
	return fmt.Sprintf("📊 Monitoring Status\n\n🤖 Status: %s\n⏰ Interval: every %d minutes\n\n📈 Statistics:\n• Total tweets: %d\n• Relevant: %d\n• Today: %d\n\n🕐 Last processed: %s",
		state, minutes, s.Stats.TotalTweets, s.Stats.RelevantTweets, s.Stats.TodayTweets, last)
}
