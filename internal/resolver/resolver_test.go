package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	calls int
	src   ResolvedSource
	err   error
}

func (f *fakeBackend) Resolve(ctx context.Context, ref MediaRef) (ResolvedSource, error) {
	f.calls++
	return f.src, f.err
}

func TestResolve_DispatchesByKind(t *testing.T) {
	r := New()
	fb := &fakeBackend{src: ResolvedSource{PrimaryURI: "file:///a.mp4", Kind: KindFile}}
	r.Register(Local, fb)

	src, err := r.Resolve(context.Background(), MediaRef{Kind: Local, Path: "/a.mp4"})
	require.NoError(t, err)
	assert.Equal(t, "file:///a.mp4", src.PrimaryURI)
}

func TestResolve_UnregisteredKindIsNotFound(t *testing.T) {
	r := New()
	_, err := r.Resolve(context.Background(), MediaRef{Kind: YouTube, VideoID: "abc"})
	require.Error(t, err)
	var re *ResolveError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, NotFound, re.Kind)
}

func TestResolve_PropagatesClassifiedError(t *testing.T) {
	r := New()
	fb := &fakeBackend{err: &ResolveError{Kind: AuthExpired, Err: errors.New("token expired")}}
	r.Register(YouTube, fb)

	_, err := r.Resolve(context.Background(), MediaRef{Kind: YouTube, VideoID: "abc"})
	var re *ResolveError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, AuthExpired, re.Kind)
}

func TestPickSubtitle_PriorityOrder(t *testing.T) {
	candidates := []SubtitlePick{
		{StreamIndex: 0, Language: "de", IsImage: true},
		{StreamIndex: 1, Language: "en", IsImage: false},
		{StreamIndex: 2, Language: "en", IsImage: true},
	}
	pick := PickSubtitle(candidates, "en", 0)
	require.NotNil(t, pick)
	assert.Equal(t, 1, pick.StreamIndex, "exact-language text track must win over exact-language image track")
}

func TestPickSubtitle_FallsBackToDefault(t *testing.T) {
	candidates := []SubtitlePick{
		{StreamIndex: 0, Language: "fr"},
		{StreamIndex: 1, Language: "es"},
	}
	pick := PickSubtitle(candidates, "en", 1)
	require.NotNil(t, pick)
	assert.Equal(t, 1, pick.StreamIndex)
}

func TestPickAudio_DownmixWhenLayoutExceedsTarget(t *testing.T) {
	candidates := []AudioPick{{StreamIndex: 0, Language: "en", Channels: 6}}
	pick := PickAudio(candidates, "en", 0, 2)
	require.NotNil(t, pick)
	assert.True(t, pick.NeedsDownmix)
}

func TestPickAudio_NoDownmixWhenWithinTarget(t *testing.T) {
	candidates := []AudioPick{{StreamIndex: 0, Language: "en", Channels: 2}}
	pick := PickAudio(candidates, "en", 0, 2)
	require.NotNil(t, pick)
	assert.False(t, pick.NeedsDownmix)
}
