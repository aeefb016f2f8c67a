// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package errorscreen implements the ErrorScreenSource (C9): a synthetic
// MPEG-TS fallback stream ChannelRuntime acquires through the ProcessPool
// whenever a channel has no resolvable content (B1/B2, or a failed source).
// It builds ffmpeg lavfi argv the same way sourcebuild builds real-source
// argv, using "-f lavfi" inputs (smptebars, color, nullsrc and the audio
// sources) for the synthetic streams.
package errorscreen

import "fmt"

// VisualMode selects the synthetic video pattern.
type VisualMode string

const (
	VisualText        VisualMode = "text"
	VisualStatic       VisualMode = "static"
	VisualTestPattern  VisualMode = "test_pattern"
	VisualSlate        VisualMode = "slate"
)

// AudioMode selects the synthetic audio track.
type AudioMode string

const (
	AudioSilent     AudioMode = "silent"
	AudioSine       AudioMode = "sine"
	AudioWhiteNoise AudioMode = "white_noise"
	AudioBeep       AudioMode = "beep"
)

// Config configures one error-screen build.
type Config struct {
	Visual  VisualMode
	Audio   AudioMode
	Message string // shown under VisualText
	Width   int
	Height  int
	FPS     int
}

// DefaultConfig mirrors a plain SMPTE-bars slate with silent audio.
func DefaultConfig() Config {
	return Config{Visual: VisualTestPattern, Audio: AudioSilent, Width: 1280, Height: 720, FPS: 25}
}

func (c Config) withDefaults() Config {
	if c.Width == 0 {
		c.Width = 1280
	}
	if c.Height == 0 {
		c.Height = 720
	}
	if c.FPS == 0 {
		c.FPS = 25
	}
	return c
}

// Build constructs the ffmpeg argv that produces an endless synthetic
// MPEG-TS stream on stdout per cfg. Unlike sourcebuild.Build this never
// reads an external input; both video and audio are lavfi-generated so the
// error screen never depends on a resolvable source.
func Build(cfg Config) []string {
	cfg = cfg.withDefaults()
	size := fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)

	args := []string{
		"-nostdin", "-hide_banner", "-loglevel", "error", "-nostats",
		"-f", "lavfi", "-i", videoSource(cfg, size),
		"-f", "lavfi", "-i", audioSource(cfg.Audio),
	}

	if cfg.Visual == VisualText {
		args = append(args, "-vf", fmt.Sprintf(
			"drawtext=text='%s':fontcolor=white:fontsize=36:x=(w-text_w)/2:y=(h-text_h)/2",
			escapeDrawtext(cfg.Message),
		))
	}

	args = append(args,
		"-c:v", "libx264", "-preset", "veryfast", "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", "128k",
		"-f", "mpegts",
		"-mpegts_flags", "resend_headers+initial_discontinuity",
		"pipe:1",
	)
	return args
}

func videoSource(cfg Config, size string) string {
	switch cfg.Visual {
	case VisualStatic:
		return fmt.Sprintf("nullsrc=size=%s:rate=%d,noise=alls=50:allf=t", size, cfg.FPS)
	case VisualSlate, VisualText:
		return fmt.Sprintf("color=c=black:size=%s:rate=%d", size, cfg.FPS)
	case VisualTestPattern:
		fallthrough
	default:
		return fmt.Sprintf("smptebars=size=%s:rate=%d", size, cfg.FPS)
	}
}

func audioSource(mode AudioMode) string {
	switch mode {
	case AudioSine:
		return "sine=frequency=440:sample_rate=48000"
	case AudioBeep:
		return "sine=frequency=1000:sample_rate=48000:beep_factor=4"
	case AudioWhiteNoise:
		return "anoisesrc=sample_rate=48000:color=white"
	case AudioSilent:
		fallthrough
	default:
		return "anullsrc=sample_rate=48000:channel_layout=stereo"
	}
}

func escapeDrawtext(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\'' || c == ':' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}
