// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package boundary

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roto31/exstreamtv/internal/middleware"
)

// NewRouter assembles the full Boundary HTTP surface behind the canonical
// ingress middleware stack (§6): IPTV (playlist, guide, per-channel
// stream), HDHomeRun emulation, health, and metrics.
func NewRouter(s *Server, stackCfg middleware.StackConfig) *chi.Mux {
	r := middleware.NewRouter(stackCfg)

	r.Get("/healthz", s.HandleHealthz)
	r.Get("/readyz", s.HandleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/playlist.m3u", s.HandlePlaylist)
	r.Get("/xmltv.xml", s.HandleXMLTV)
	r.Get("/channel/{id}.ts", s.HandleStream)

	r.Get("/discover.json", s.HandleDiscover)
	r.Get("/lineup_status.json", s.HandleLineupStatus)
	r.Get("/lineup.json", s.HandleLineup)
	r.Post("/lineup.json", s.HandleLineupPost)
	r.Get("/device.xml", s.HandleDeviceXML)

	return r
}
