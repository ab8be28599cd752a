package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"watchtower/internal/classifier"
	"watchtower/internal/textutil"
)

type ParseMode string

const (
	ModeHTML     ParseMode = "html"
	ModeMarkdown ParseMode = "markdown"
	ModePlain    ParseMode = "plain"
)

const timestampLayout = "2006-01-02 15:04:05 UTC"

// Alert is everything needed to render one notification.
type Alert struct {
	Label       string
	User        string
	SocialScore *int64
	ScoreUnit   string
	CreatedAt   time.Time
	Permalink   string
	Sentiment   classifier.Sentiment
	Summary     string
}

func Glyph(d classifier.Direction) string {
	switch d {
	case classifier.Bullish:
		return "🟢"
	case classifier.Bearish:
		return "🔴"
	default:
		return "⚪"
	}
}

// GlyphCount is max(1, score/10), so a zero or failed score still gets one.
func GlyphCount(score int) int {
	return max(1, score/10)
}

func SentimentHeader(s classifier.Sentiment) string {
	glyphs := strings.Repeat(Glyph(s.Direction), GlyphCount(s.Score))
	if !s.Known() {
		return fmt.Sprintf("%s %s ?/100", glyphs, strings.ToUpper(string(classifier.Unknown)))
	}
	return fmt.Sprintf("%s %s %d/100", glyphs, strings.ToUpper(string(s.Direction)), s.Score)
}

func FormatAlert(a Alert, mode ParseMode) string {
	esc := func(s string) string { return s }
	switch mode {
	case ModeHTML:
		esc = html.EscapeString
	case ModeMarkdown:
		// backslash escapes work for both telegram legacy markdown and discord
		esc = func(s string) string { return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s) }
	}

	var sb strings.Builder
	sb.WriteString(SentimentHeader(a.Sentiment))
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "%s from %s", esc(a.Label), esc(a.User))
	if a.SocialScore != nil {
		score := textutil.FormatNumber(*a.SocialScore)
		if a.ScoreUnit != "" {
			score += " " + a.ScoreUnit
		}
		fmt.Fprintf(&sb, " (%s)", esc(score))
	}
	fmt.Fprintf(&sb, " at %s\n", a.CreatedAt.UTC().Format(timestampLayout))
	sb.WriteString(esc(a.Permalink))

	summary := strings.TrimSpace(a.Summary)
	if summary == "" {
		summary = "unavailable"
	}
	fmt.Fprintf(&sb, "\n\nSummary: %s", esc(summary))

	return sb.String()
}

func HeartbeatText(botName string) string {
	return fmt.Sprintf("💓 %s is alive", botName)
}
