// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/roto31/exstreamtv/internal/resolver"
)

// parseMediaRef turns a ScheduleItem.MediaRefID into a resolver.MediaRef.
// IDs carry their kind as a scheme prefix ("local:", "plex:", "archiveorg:",
// "youtube:") so a schedule file stays a flat list of strings instead of a
// nested per-kind structure.
func parseMediaRef(id string) (resolver.MediaRef, error) {
	scheme, rest, ok := strings.Cut(id, ":")
	if !ok {
		return resolver.MediaRef{Kind: resolver.Local, Path: id}, nil
	}

	switch scheme {
	case "local":
		return resolver.MediaRef{Kind: resolver.Local, Path: rest}, nil
	case "plex":
		return resolver.MediaRef{Kind: resolver.Plex, LibraryKey: rest}, nil
	case "jellyfin":
		return resolver.MediaRef{Kind: resolver.Jellyfin, LibraryKey: rest}, nil
	case "emby":
		return resolver.MediaRef{Kind: resolver.Emby, LibraryKey: rest}, nil
	case "archiveorg":
		return resolver.MediaRef{Kind: resolver.ArchiveOrg, ArchiveID: rest}, nil
	case "youtube":
		return resolver.MediaRef{Kind: resolver.YouTube, VideoID: rest}, nil
	default:
		return resolver.MediaRef{}, fmt.Errorf("mediaref: unknown scheme %q in %q", scheme, id)
	}
}

// localBackend resolves Kind: Local refs against the filesystem. It is the
// only resolver.Backend registered by default; Plex/Jellyfin/Emby/
// ArchiveOrg/YouTube all require an external API client with no shipped
// implementation yet (see DESIGN.md), so refs of those kinds fall through
// to the error screen until a deployment wires its own Backend via
// resolver.Register.
type localBackend struct{}

func (localBackend) Resolve(_ context.Context, ref resolver.MediaRef) (resolver.ResolvedSource, error) {
	if ref.Path == "" {
		return resolver.ResolvedSource{}, &resolver.ResolveError{Kind: resolver.NotFound, Err: fmt.Errorf("empty local path")}
	}
	if _, err := os.Stat(ref.Path); err != nil {
		return resolver.ResolvedSource{}, &resolver.ResolveError{Kind: resolver.NotFound, Err: err}
	}
	return resolver.ResolvedSource{
		PrimaryURI:          ref.Path,
		Kind:                resolver.KindFile,
		DurationKnown:       true,
		DirectPlayCandidate: true,
	}, nil
}
