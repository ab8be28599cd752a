package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

type opmlDocument struct {
	XMLName xml.Name `xml:"opml"`
	Body    struct {
		Outlines []opmlOutline `xml:"outline"`
	} `xml:"body"`
}

type opmlOutline struct {
	Title    string        `xml:"title,attr"`
	Text     string        `xml:"text,attr"`
	XMLURL   string        `xml:"xmlUrl,attr"`
	Outlines []opmlOutline `xml:"outline"`
}

// ParseOPML returns feed name -> URL for every outline with an xmlUrl,
// nested folders included. Names are sanitized so they can be listed as
// group authors.
func ParseOPML(data []byte) (map[string]string, error) {
	var doc opmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse OPML: %w", err)
	}

	feeds := make(map[string]string)
	collectOutlines(feeds, doc.Body.Outlines)
	return feeds, nil
}

func collectOutlines(feeds map[string]string, outlines []opmlOutline) {
	for _, outline := range outlines {
		if outline.XMLURL != "" {
			name := outline.Title
			if name == "" {
				name = outline.Text
			}
			if name == "" {
				name = outline.XMLURL
			}

			name = sanitizeFeedName(name)
			if _, exists := feeds[name]; !exists {
				feeds[name] = outline.XMLURL
			}
		}

		collectOutlines(feeds, outline.Outlines)
	}
}

func sanitizeFeedName(name string) string {
	name = strings.ToLower(name)
	name = strings.NewReplacer(" ", "_", ".", "_", "-", "_", "&", "and").Replace(name)

	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LoadOPML reads an OPML subscription list from a local path or an http(s)
// URL.
func LoadOPML(ctx context.Context, source string) (map[string]string, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("failed to read OPML file: %w", err)
		}
		return ParseOPML(data)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.HTTPClient.Timeout = 30 * time.Second
	client.Logger = nil

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build OPML request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch OPML: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch OPML: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read OPML response: %w", err)
	}
	return ParseOPML(data)
}
