package m3u

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite_RendersExtinfAndURLLines(t *testing.T) {
	entries := []Entry{
		{Number: "1", Name: "News Channel", TvgID: "news.ch1", Logo: "http://x/logo.png", Group: "News", URL: "http://host/ch1.ts"},
		{Number: "2", Name: "Music", TvgID: "music.ch2", URL: "http://host/ch2.ts"},
	}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, entries, "http://host/xmltv.xml"))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[1], `tvg-chno="1"`)
	assert.True(t, strings.HasSuffix(lines[1], ",News Channel"))
	assert.Contains(t, lines[1], `tvg-id="news.ch1"`)
	assert.Equal(t, "http://host/ch1.ts", lines[2])
	assert.Contains(t, lines[3], `tvg-id="music.ch2"`)
}

func TestWrite_HeaderIncludesXMLTVURL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil, "http://host/xmltv.xml"))
	assert.Contains(t, buf.String(), `x-tvg-url="http://host/xmltv.xml"`)
}
