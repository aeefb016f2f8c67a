// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package boundary

import (
	"encoding/xml"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roto31/exstreamtv/internal/epg"
	"github.com/roto31/exstreamtv/internal/log"
	"github.com/roto31/exstreamtv/internal/m3u"
	"github.com/roto31/exstreamtv/internal/metrics"
	"github.com/roto31/exstreamtv/internal/session"
	"github.com/roto31/exstreamtv/internal/throttle"
)

// HandlePlaylist serves playlist.m3u: every enabled channel, pointing at
// this boundary's own per-channel .ts endpoint and XMLTV URL.
func (s *Server) HandlePlaylist(w http.ResponseWriter, r *http.Request) {
	baseURL := s.requestBaseURL(r)

	entities := s.channels.All()
	entries := make([]m3u.Entry, 0, len(entities))
	for _, e := range entities {
		entries = append(entries, m3u.Entry{
			Number: e.ID,
			Name:   e.Name,
			TvgID:  e.ID,
			Group:  e.Group,
			URL:    baseURL + "/channel/" + e.ID + ".ts",
		})
	}

	w.Header().Set("Content-Type", "application/x-mpegurl; charset=utf-8")
	if err := m3u.Write(w, entries, baseURL+"/xmltv.xml"); err != nil {
		log.WithComponent("boundary").Error().Err(err).Msg("failed to write playlist.m3u")
	}
}

// HandleXMLTV serves xmltv.xml, projecting every channel's timeline forward
// by the configured horizon (I6: EPG derived from anchor).
func (s *Server) HandleXMLTV(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	defer func() { metrics.EPGGenerationSeconds.Observe(time.Since(start).Seconds()) }()

	entries := s.registry.Channels()
	sources := make([]epg.ChannelSource, 0, len(entries))
	for _, e := range entries {
		sources = append(sources, epg.ChannelSource{
			Entity:   e.Entity,
			Schedule: e.Schedule,
			Anchor:   e.Timeline.Anchor(),
		})
	}

	tv := epg.Generate(sources, s.cfg.TitleLookup, s.cfg.EPGHorizon)

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(tv); err != nil {
		log.WithComponent("boundary").Error().Err(err).Msg("failed to write xmltv.xml")
	}
}

// HandleStream serves a channel's live MPEG-TS bytes: opens a session
// (I10: per-channel cap), subscribes to the running ChannelRuntime, and
// paces writes through a per-connection StreamThrottler.
func (s *Server) HandleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logger := log.WithComponent("boundary.stream")

	entry, ok := s.registry.Channel(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	sess, err := s.sessions.Open(id, r.RemoteAddr)
	if err != nil {
		http.Error(w, "too many viewers", http.StatusServiceUnavailable)
		return
	}
	defer s.sessions.Close(sess)

	w.Header().Set("Content-Type", "video/mp2t")
	flusher, _ := w.(http.Flusher)

	sub := &streamSubscriber{
		w:         w,
		flusher:   flusher,
		throttler: s.newThrottler(),
		sess:      sess,
		sessions:  s.sessions,
		channelID: id,
	}

	unsubscribe := entry.Runtime.Subscribe(sub)
	defer unsubscribe()

	<-r.Context().Done()
	logger.Debug().Str("channel", id).Msg("stream client disconnected")
}

// streamSubscriber adapts one HTTP response into a channel.Subscriber:
// every fan-out Write is paced and accounted before reaching the wire.
type streamSubscriber struct {
	w         http.ResponseWriter
	flusher   http.Flusher
	throttler *throttle.Throttler
	sess      *session.Session
	sessions  *session.Manager
	channelID string
}

func (sub *streamSubscriber) Write(p []byte) (int, error) {
	paced := sub.throttler.Pace(sub.w)
	n, err := paced.Write(p)
	if n > 0 {
		metrics.AddChannelBytesOut(sub.channelID, float64(n))
		sub.sessions.RecordBytes(sub.sess, int64(n))
	}
	if sub.flusher != nil {
		sub.flusher.Flush()
	}
	if err != nil {
		_ = sub.sessions.RecordError(sub.sess)
	}
	return n, err
}
