// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package epg generates the XMLTV guide (I6: EPG derived from anchor) from
// each channel's PlayoutTimeline. It only produces the guide; fuzzy program
// matching against an external grabber is out of scope.
package epg

import (
	"encoding/xml"
	"os"
	"path/filepath"
)

// TV is the root XMLTV document.
type TV struct {
	XMLName      xml.Name    `xml:"tv"`
	Generator    string      `xml:"generator-info-name,attr,omitempty"`
	GeneratorURL string      `xml:"generator-info-url,attr,omitempty"`
	Channels     []Channel   `xml:"channel"`
	Programs     []Programme `xml:"programme"`
}

// Channel is an XMLTV channel entry.
type Channel struct {
	ID          string   `xml:"id,attr"`
	DisplayName []string `xml:"display-name"`
	Icon        *Icon    `xml:"icon,omitempty"`
}

// Icon is a channel logo reference.
type Icon struct {
	Src string `xml:"src,attr"`
}

// Programme is one scheduled airing, one per PlayoutItem occurrence.
type Programme struct {
	Start   string `xml:"start,attr"`
	Stop    string `xml:"stop,attr"`
	Channel string `xml:"channel,attr"`
	Title   Title  `xml:"title"`
	Desc    string `xml:"desc,omitempty"`
}

// Title is a programme title, language-tagged per XMLTV convention.
type Title struct {
	Lang string `xml:"lang,attr,omitempty"`
	Text string `xml:",chardata"`
}

// Assemble builds a TV document from channels and programmes. Kept as a
// pure function so callers can diff successive documents byte-for-byte
// except the generator timestamp (R3).
func Assemble(channels []Channel, programs []Programme) TV {
	return TV{
		Generator:    "exstreamtv",
		GeneratorURL: "https://github.com/roto31/exstreamtv",
		Channels:     channels,
		Programs:     programs,
	}
}

// Write renders tv atomically: temp file in the same directory, then
// rename, so a reader never observes a partial document.
func Write(tv TV, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "xmltv-*.xml.tmp")
	if err != nil {
		return err
	}
	closed := false
	defer func() {
		if !closed {
			_ = tmp.Close()
		}
		if _, statErr := os.Stat(tmp.Name()); !os.IsNotExist(statErr) {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.WriteString(xml.Header); err != nil {
		return err
	}
	if _, err := tmp.WriteString(`<!DOCTYPE tv SYSTEM "xmltv.dtd">` + "\n"); err != nil {
		return err
	}

	enc := xml.NewEncoder(tmp)
	enc.Indent("", "  ")
	if err := enc.Encode(tv); err != nil {
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}
	closed = true

	return os.Rename(tmp.Name(), outputPath)
}
