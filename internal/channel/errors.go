// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package channel

import (
	"errors"

	"github.com/roto31/exstreamtv/internal/resolver"
)

// FailureCause classifies why a source exited abnormally (§7), driving
// whether superviseLoop retries the same item through the governor or
// advances past it without one.
type FailureCause string

const (
	// Transient is a recoverable failure (process crash, network hiccup):
	// the governor gets to decide whether and when to retry.
	Transient FailureCause = "Transient"
	// PermanentForItem means this item's source cannot be played at all;
	// skip it and advance, the same as a natural EOF, rather than retrying.
	PermanentForItem FailureCause = "PermanentForItem"
	// PermanentForSource means the channel's whole source configuration is
	// broken; still governor-gated, but never worth a fast retry.
	PermanentForSource FailureCause = "PermanentForSource"
)

// SourceFailure reports a classified source failure.
type SourceFailure struct {
	Cause FailureCause
	Err   error
}

func (f *SourceFailure) Error() string {
	if f.Err == nil {
		return string(f.Cause)
	}
	return string(f.Cause) + ": " + f.Err.Error()
}

func (f *SourceFailure) Unwrap() error { return f.Err }

// errHealthStale is the internal event fired when a running source has
// produced no output bytes for the configured stale window (§4.12).
var errHealthStale = errors.New("channel: source health stale, no output")

// classifyStartError maps a SourceStarter/MediaResolver error to a
// FailureCause. A resolver.ResolveError with Kind NotFound or Ambiguous
// means this exact item can never resolve, so it's worth skipping rather
// than retrying; AuthExpired/Unreachable may clear up on their own.
// Anything unrecognized defaults to Transient so it still gets a
// governor-throttled retry instead of silently skipping content.
func classifyStartError(err error) *SourceFailure {
	var re *resolver.ResolveError
	if errors.As(err, &re) {
		switch re.Kind {
		case resolver.NotFound, resolver.Ambiguous:
			return &SourceFailure{Cause: PermanentForItem, Err: err}
		case resolver.AuthExpired, resolver.Unreachable:
			return &SourceFailure{Cause: Transient, Err: err}
		}
	}
	return &SourceFailure{Cause: Transient, Err: err}
}
