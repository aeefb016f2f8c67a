package sourcebuild

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roto31/exstreamtv/internal/resolver"
)

func TestBuild_DirectPlayUsesCopy(t *testing.T) {
	src := resolver.ResolvedSource{PrimaryURI: "/media/a.mp4", Kind: resolver.KindFile, DirectPlayCandidate: true}
	args, err := Build(src, DefaultProfile(), HardwareCapabilities{}, 0)
	require.NoError(t, err)
	assert.Contains(t, args, "copy")
	assert.Contains(t, args, "h264_mp4toannexb")
}

func TestBuild_FallsBackToHardwareEncoderWhenNotDirectPlay(t *testing.T) {
	src := resolver.ResolvedSource{PrimaryURI: "http://host/x", Kind: resolver.KindHTTP, DirectPlayCandidate: false}
	args, err := Build(src, DefaultProfile(), HardwareCapabilities{VAAPI: true}, 0)
	require.NoError(t, err)
	assert.Contains(t, args, "h264_vaapi")
}

func TestBuild_FallsBackToSoftwareWithNoHardware(t *testing.T) {
	src := resolver.ResolvedSource{PrimaryURI: "http://host/x", Kind: resolver.KindHTTP, DirectPlayCandidate: false}
	args, err := Build(src, DefaultProfile(), HardwareCapabilities{}, 0)
	require.NoError(t, err)
	assert.Contains(t, args, "libx264")
}

func TestBuild_AlwaysTargetsMPEGTSOnStdout(t *testing.T) {
	src := resolver.ResolvedSource{PrimaryURI: "/media/a.mp4", Kind: resolver.KindFile, DirectPlayCandidate: true}
	args, err := Build(src, DefaultProfile(), HardwareCapabilities{}, 0)
	require.NoError(t, err)
	assert.Contains(t, args, "mpegts")
	assert.Equal(t, "pipe:1", args[len(args)-1])
}

func TestBuild_SeeksOnlyWhenSeekable(t *testing.T) {
	seekable := resolver.ResolvedSource{PrimaryURI: "/media/a.mp4", Kind: resolver.KindFile, DirectPlayCandidate: true}
	args, err := Build(seekable, DefaultProfile(), HardwareCapabilities{}, 90*time.Second)
	require.NoError(t, err)
	assert.Contains(t, args, "-ss")
	assert.Contains(t, args, "00:01:30")

	notSeekable := resolver.ResolvedSource{PrimaryURI: "http://host/live", Kind: resolver.KindHTTP, DirectPlayCandidate: false}
	args2, err := Build(notSeekable, DefaultProfile(), HardwareCapabilities{}, 90*time.Second)
	require.NoError(t, err)
	assert.NotContains(t, args2, "-ss")
}

func TestBuild_HTTPSourceGetsReconnectFlags(t *testing.T) {
	src := resolver.ResolvedSource{PrimaryURI: "http://host/x", Kind: resolver.KindHTTP, DirectPlayCandidate: true}
	args, err := Build(src, DefaultProfile(), HardwareCapabilities{}, 0)
	require.NoError(t, err)
	assert.Contains(t, args, "-reconnect")
}

func TestBuild_RealtimePacingAddsReFlag(t *testing.T) {
	src := resolver.ResolvedSource{PrimaryURI: "/media/a.mp4", Kind: resolver.KindFile, DirectPlayCandidate: true}
	prof := DefaultProfile()
	prof.RealtimePacing = true
	args, err := Build(src, prof, HardwareCapabilities{}, 0)
	require.NoError(t, err)
	assert.Contains(t, args, "-re")

	prof.RealtimePacing = false
	args2, err := Build(src, prof, HardwareCapabilities{}, 0)
	require.NoError(t, err)
	assert.NotContains(t, args2, "-re")
}

func TestBuild_DownmixUsesAACWhenNeeded(t *testing.T) {
	src := resolver.ResolvedSource{
		PrimaryURI:          "/media/a.mp4",
		Kind:                resolver.KindFile,
		DirectPlayCandidate: true,
		AudioPick:           &resolver.AudioPick{StreamIndex: 1, Channels: 6, NeedsDownmix: true},
	}
	args, err := Build(src, DefaultProfile(), HardwareCapabilities{}, 0)
	require.NoError(t, err)
	assert.Contains(t, args, "aac")
	assert.Contains(t, args, "-ac")
}

func TestBuild_RejectsEmptyURI(t *testing.T) {
	_, err := Build(resolver.ResolvedSource{}, DefaultProfile(), HardwareCapabilities{}, 0)
	require.Error(t, err)
}
