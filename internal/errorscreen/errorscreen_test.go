package errorscreen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuild_TestPatternUsesSmptebars(t *testing.T) {
	args := Build(DefaultConfig())
	assertContainsSubstring(t, args, "smptebars")
	assertContainsSubstring(t, args, "anullsrc")
}

func TestBuild_TextModeAddsDrawtext(t *testing.T) {
	cfg := Config{Visual: VisualText, Audio: AudioSine, Message: "No Signal"}
	args := Build(cfg)
	assertContainsSubstring(t, args, "drawtext")
	assertContainsSubstring(t, args, "sine")
}

func TestBuild_EscapesMessageSpecialChars(t *testing.T) {
	cfg := Config{Visual: VisualText, Message: "it's: broken"}
	args := Build(cfg)
	found := false
	for _, a := range args {
		if a == "-vf" {
			continue
		}
		if a != "" && containsEscaped(a) {
			found = true
		}
	}
	assert.True(t, found)
}

func TestBuild_AlwaysEndsOnStdoutMPEGTS(t *testing.T) {
	args := Build(DefaultConfig())
	assert.Equal(t, "pipe:1", args[len(args)-1])
	assertContainsSubstring(t, args, "mpegts")
}

func TestBuild_WhiteNoiseAudio(t *testing.T) {
	cfg := Config{Visual: VisualStatic, Audio: AudioWhiteNoise}
	args := Build(cfg)
	assertContainsSubstring(t, args, "anoisesrc")
	assertContainsSubstring(t, args, "noise=alls")
}

func assertContainsSubstring(t *testing.T, args []string, substr string) {
	t.Helper()
	for _, a := range args {
		if len(a) >= len(substr) && indexOf(a, substr) >= 0 {
			return
		}
	}
	t.Fatalf("expected an arg containing %q in %v", substr, args)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func containsEscaped(s string) bool {
	return indexOf(s, "\\'") >= 0 || indexOf(s, "\\:") >= 0
}
