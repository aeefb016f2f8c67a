// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package boundary

import (
	"encoding/json"
	"net/http"
)

type healthStatus struct {
	OK       bool              `json:"ok"`
	Pool     poolStatus        `json:"pool"`
	Breakers map[string]string `json:"breakers,omitempty"`
}

type poolStatus struct {
	Live        int     `json:"live"`
	Capacity    int     `json:"capacity"`
	Utilization float64 `json:"utilization"`
	Containment bool    `json:"containment"`
}

// HandleHealthz is the liveness probe: the process is up and answering
// HTTP at all. It never reports false; a hung process won't answer it.
func (s *Server) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// HandleReadyz is the readiness probe: reports ProcessPool containment
// (B3: memory pressure denies spawns but does not crash the process) and
// each channel's CircuitBreaker state, so an operator can see a channel
// stuck OPEN without grepping logs.
func (s *Server) HandleReadyz(w http.ResponseWriter, _ *http.Request) {
	stats := s.pool.Stats()
	states := s.breakers.States()
	breakerLabels := make(map[string]string, len(states))
	for ch, st := range states {
		breakerLabels[ch] = st.String()
	}

	status := healthStatus{
		OK: !stats.Containment,
		Pool: poolStatus{
			Live:        stats.Live,
			Capacity:    stats.Capacity,
			Utilization: stats.Utilization,
			Containment: stats.Containment,
		},
		Breakers: breakerLabels,
	}

	w.Header().Set("Content-Type", "application/json")
	if !status.OK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}
