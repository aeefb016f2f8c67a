// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package middleware is the canonical HTTP ingress stack for the Boundary
// (C13): the same ordering protects the IPTV surface and the HDHomeRun
// emulation surface so neither drifts from the other.
package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"

	"github.com/roto31/exstreamtv/internal/log"
)

// Recoverer ensures a panic in any downstream handler does not take down
// the process: it logs the panic with a stack trace and returns 500 JSON.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				buf := make([]byte, 8192)
				n := runtime.Stack(buf, false)

				reqID := log.RequestIDFromContext(r.Context())
				log.WithComponentFromContext(r.Context(), "panic-recovery").Error().
					Str("event", "panic.recovered").
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remoteAddr", r.RemoteAddr).
					Str("requestId", reqID).
					Interface("panicValue", rec).
					Str("stackTrace", string(buf[:n])).
					Msg("panic recovered in HTTP handler")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error":     "internal server error",
					"requestId": reqID,
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
