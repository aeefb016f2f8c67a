// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package m3u

import (
	"fmt"
	"io"
)

// Entry is one playlist line source: a channel plus the stream URL the
// boundary serves it on.
type Entry struct {
	Number string
	Name   string
	TvgID  string
	Logo   string
	Group  string
	URL    string
}

// Write renders entries as an M3U playlist with an EXTM3U header carrying
// the XMLTV URL, then one #EXTINF line (tvg-chno, tvg-id, tvg-logo,
// group-title, then the name after the comma) and one URL line per entry.
func Write(w io.Writer, entries []Entry, xmltvURL string) error {
	header := "#EXTM3U"
	if xmltvURL != "" {
		header += fmt.Sprintf(` x-tvg-url="%s"`, xmltvURL)
	}
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}

	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "#EXTINF:-1 tvg-chno=%q tvg-id=%q tvg-logo=%q group-title=%q,%s\n",
			e.Number, e.TvgID, e.Logo, e.Group, e.Name); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, e.URL); err != nil {
			return err
		}
	}
	return nil
}
