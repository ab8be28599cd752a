package sources

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const opmlXML = `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head><title>subs</title></head>
  <body>
    <outline text="Markets">
      <outline title="Market Desk" xmlUrl="https://example.com/desk.xml"/>
      <outline text="Fed-Watch &amp; Rates" xmlUrl="https://example.com/fed.xml"/>
    </outline>
    <outline text="no url here"/>
  </body>
</opml>`

func TestParseOPML(t *testing.T) {
	feeds, err := ParseOPML([]byte(opmlXML))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"market_desk":         "https://example.com/desk.xml",
		"fed_watch_and_rates": "https://example.com/fed.xml",
	}, feeds)
}

func TestParseOPMLInvalid(t *testing.T) {
	_, err := ParseOPML([]byte("<opml><body>"))
	assert.Error(t, err)
}

func TestLoadOPMLFromFileAndURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subs.opml")
	require.NoError(t, os.WriteFile(path, []byte(opmlXML), 0o644))

	feeds, err := LoadOPML(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, feeds, 2)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/subs.opml" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, opmlXML)
	}))
	defer srv.Close()

	feeds, err = LoadOPML(context.Background(), srv.URL+"/subs.opml")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/desk.xml", feeds["market_desk"])

	_, err = LoadOPML(context.Background(), srv.URL+"/missing.opml")
	assert.Error(t, err)
}
