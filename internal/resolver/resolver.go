// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package resolver implements the MediaResolver (C7): turns a closed
// MediaRef variant into a concrete playable ResolvedSource. Per the Design
// Notes, source kinds are modeled as a closed sum type dispatched with a
// switch, not duck-typed attribute lookups.
package resolver

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// Kind is the closed set of MediaRef variants.
type Kind int

const (
	Local Kind = iota
	Plex
	Jellyfin
	Emby
	ArchiveOrg
	YouTube
	Filler
)

// MediaRef is the closed variant the streaming core passes to Resolve. Only
// the fields relevant to Kind are populated by callers; Resolve never does
// late-bound attribute lookups on it.
type MediaRef struct {
	Kind       Kind
	Path       string // Local
	ServerURL  string // Plex/Jellyfin/Emby
	LibraryKey string // Plex/Jellyfin/Emby
	VideoID    string // YouTube
	ArchiveID  string // ArchiveOrg
}

// StreamKind classifies a resolved stream's container/codec expectations.
type StreamKind int

const (
	KindFile StreamKind = iota
	KindHTTP
)

// SubtitlePick / AudioPick follow the fixed priority in spec §4.7: exact
// language match with preferred type (text > image) > exact language any
// type > default-flagged stream > first stream.
type SubtitlePick struct {
	StreamIndex int
	Language    string
	IsImage     bool
}

type AudioPick struct {
	StreamIndex int
	Language    string
	Channels    int
	NeedsDownmix bool
}

// ResolvedSource is the MediaResolver's output.
type ResolvedSource struct {
	PrimaryURI         string
	Kind               StreamKind
	DurationKnown      bool
	ContainerHint       string
	CodecHints          []string
	SubtitlePick        *SubtitlePick
	AudioPick           *AudioPick
	DirectPlayCandidate bool
}

// ResolveErrorKind classifies resolution failures.
type ResolveErrorKind string

const (
	NotFound    ResolveErrorKind = "NotFound"
	AuthExpired ResolveErrorKind = "AuthExpired"
	Unreachable ResolveErrorKind = "Unreachable"
	Ambiguous   ResolveErrorKind = "Ambiguous"
)

// ResolveError reports a classified resolution failure.
type ResolveError struct {
	Kind ResolveErrorKind
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolver: %s: %v", e.Kind, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Backend resolves one MediaRef.Kind to a ResolvedSource. Implementations
// are provided per kind (local filesystem, Plex API client, HTTP VOD
// client, etc) and registered with a Resolver.
type Backend interface {
	Resolve(ctx context.Context, ref MediaRef) (ResolvedSource, error)
}

// Resolver dispatches MediaRef.Kind to the matching Backend and
// de-duplicates concurrent refreshes of the same short-lived URL via
// singleflight.
type Resolver struct {
	backends map[Kind]Backend
	sf       singleflight.Group
}

// New constructs a Resolver with no backends registered; call Register for
// each Kind the deployment supports.
func New() *Resolver {
	return &Resolver{backends: make(map[Kind]Backend)}
}

// Register associates a Backend with a Kind.
func (r *Resolver) Register(k Kind, b Backend) {
	r.backends[k] = b
}

// Resolve turns ref into a ResolvedSource. Every backend is called through
// singleflight keyed by ref's identity so concurrent resolves/retries for
// the same ref share one in-flight call.
func (r *Resolver) Resolve(ctx context.Context, ref MediaRef) (ResolvedSource, error) {
	backend, ok := r.backends[ref.Kind]
	if !ok {
		return ResolvedSource{}, &ResolveError{Kind: NotFound, Err: fmt.Errorf("no backend registered for kind %d", ref.Kind)}
	}

	key := refKey(ref)
	v, err, _ := r.sf.Do(key, func() (any, error) {
		return backend.Resolve(ctx, ref)
	})
	if err != nil {
		return ResolvedSource{}, err
	}
	return v.(ResolvedSource), nil
}

func refKey(ref MediaRef) string {
	switch ref.Kind {
	case Local:
		return "local:" + ref.Path
	case Plex, Jellyfin, Emby:
		return fmt.Sprintf("%d:%s:%s", ref.Kind, ref.ServerURL, ref.LibraryKey)
	case YouTube:
		return "youtube:" + ref.VideoID
	case ArchiveOrg:
		return "archive:" + ref.ArchiveID
	case Filler:
		return "filler:" + ref.Path
	default:
		return fmt.Sprintf("unknown:%d", ref.Kind)
	}
}

// PickSubtitle applies the fixed priority order over candidate subtitle
// streams: exact language + text > exact language + image > default-flagged
// > first.
func PickSubtitle(candidates []SubtitlePick, preferredLang string, defaultIdx int) *SubtitlePick {
	var exactText, exactImage *SubtitlePick
	for i := range candidates {
		c := candidates[i]
		if c.Language == preferredLang {
			if !c.IsImage && exactText == nil {
				exactText = &c
			}
			if c.IsImage && exactImage == nil {
				exactImage = &c
			}
		}
	}
	if exactText != nil {
		return exactText
	}
	if exactImage != nil {
		return exactImage
	}
	for i := range candidates {
		if candidates[i].StreamIndex == defaultIdx {
			c := candidates[i]
			return &c
		}
	}
	if len(candidates) > 0 {
		return &candidates[0]
	}
	return nil
}

// PickAudio applies the same fixed-priority strategy for audio streams, and
// flags downmix when the chosen layout exceeds targetChannels.
func PickAudio(candidates []AudioPick, preferredLang string, defaultIdx int, targetChannels int) *AudioPick {
	var exact *AudioPick
	for i := range candidates {
		if candidates[i].Language == preferredLang && exact == nil {
			c := candidates[i]
			exact = &c
		}
	}
	chosen := exact
	if chosen == nil {
		for i := range candidates {
			if candidates[i].StreamIndex == defaultIdx {
				c := candidates[i]
				chosen = &c
				break
			}
		}
	}
	if chosen == nil && len(candidates) > 0 {
		chosen = &candidates[0]
	}
	if chosen != nil && chosen.Channels > targetChannels {
		chosen.NeedsDownmix = true
	}
	return chosen
}
