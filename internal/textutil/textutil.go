package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	htmlStripper = bluemonday.StrictPolicy()
	printer      = message.NewPrinter(language.English)

	spaceRun = regexp.MustCompile(`[ \t\x{00a0}]+`)
	blankRun = regexp.MustCompile(`\n{3,}`)
)

const blockSelector = "p, div, li, blockquote, pre, h1, h2, h3, h4, h5, h6, tr"

// StripHTML removes every tag and decodes entities. Suited to one-line fields.
func StripHTML(s string) string {
	s = htmlStripper.Sanitize(s)
	s = html.UnescapeString(s)
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// HTMLToText renders an HTML fragment as plain text, keeping paragraph breaks.
func HTMLToText(s string) string {
	if !strings.Contains(s, "<") {
		return normalize(html.UnescapeString(s))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return StripHTML(s)
	}

	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find(blockSelector).Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml("\n\n")
	})

	return normalize(doc.Text())
}

func normalize(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(blankRun.ReplaceAllString(s, "\n\n"))
}

// Truncate cuts s to at most limit runes, marking the cut with an ellipsis.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit == 1 {
		return "…"
	}

	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}

// FormatNumber renders n with English thousands separators.
func FormatNumber(n int64) string {
	return printer.Sprintf("%d", n)
}

func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
