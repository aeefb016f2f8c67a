// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sourcebuild implements the SourceBuilder (C8): it turns a
// resolver.ResolvedSource plus an encode Profile into the ffmpeg argv that
// produces an MPEG-TS elementary stream on stdout. Per spec §4.8 the output
// is always MPEG-TS on a pipe, never a file on disk, and the decision order
// is fixed: direct-play copy check, then hardware-encoder fallback to
// software H.264, then the MPEG-TS/reconnect/pacing flags.
package sourcebuild

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/roto31/exstreamtv/internal/resolver"
)

// Encoder names the video encoder selected for a build, either a hardware
// accelerator or the software fallback.
type Encoder string

const (
	EncoderCopy           Encoder = "copy"
	EncoderSoftwareH264    Encoder = "libx264"
	EncoderVideoToolbox    Encoder = "h264_videotoolbox"
	EncoderNVENC           Encoder = "h264_nvenc"
	EncoderQSV             Encoder = "h264_qsv"
	EncoderVAAPI           Encoder = "h264_vaapi"
	EncoderAMF             Encoder = "h264_amf"
)

// HardwareCapabilities reports which accelerators are usable on this host.
// Detection is cheap and cached by the caller; sourcebuild only consults it.
type HardwareCapabilities struct {
	VideoToolbox bool
	NVENC        bool
	QSV          bool
	VAAPI        bool
	AMF          bool
}

// DetectHardware probes the local host for encoder availability. Only VAAPI
// is checked on Linux via the render node; the others are always false
// unless a future build tags in a platform-specific prober.
func DetectHardware() HardwareCapabilities {
	return HardwareCapabilities{VAAPI: hasVAAPIRenderNode()}
}

func hasVAAPIRenderNode() bool {
	_, err := os.Stat("/dev/dri/renderD128")
	return err == nil
}

func (h HardwareCapabilities) pick() Encoder {
	switch {
	case h.VideoToolbox:
		return EncoderVideoToolbox
	case h.NVENC:
		return EncoderNVENC
	case h.QSV:
		return EncoderQSV
	case h.VAAPI:
		return EncoderVAAPI
	case h.AMF:
		return EncoderAMF
	default:
		return EncoderSoftwareH264
	}
}

// Profile configures the transcode side of a build. AllowCopy lets direct
// play proceed when the ResolvedSource is DirectPlayCandidate; when false
// (e.g. a profile that forces re-encode for a flaky source) the builder
// always transcodes.
type Profile struct {
	AllowCopy      bool
	VideoCRF       int
	VideoMaxWidth  int
	AudioBitrateK  int
	RealtimePacing bool // pace pre-recorded content at native rate (-re)
}

// DefaultProfile is the "high" profile: copy-preferring, realtime-paced,
// AAC at a safe bitrate when the audio pick needs a downmix.
func DefaultProfile() Profile {
	return Profile{AllowCopy: true, VideoCRF: 23, AudioBitrateK: 192, RealtimePacing: true}
}

// Build constructs the ffmpeg argv for resolved, selecting an encoder from
// hw only when a copy is not possible, seeking to resumeOffset only when the
// source is seekable, and always targeting MPEG-TS on stdout.
func Build(resolved resolver.ResolvedSource, prof Profile, hw HardwareCapabilities, resumeOffset time.Duration) ([]string, error) {
	if resolved.PrimaryURI == "" {
		return nil, fmt.Errorf("sourcebuild: empty source URI")
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",

		"-fflags", "+genpts+nobuffer+discardcorrupt",
		"-err_detect", "ignore_err",
		"-analyzeduration", "10000000",
		"-probesize", "25000000",
		"-max_delay", "0",
	}

	if resolved.Kind == resolver.KindHTTP {
		args = append(args,
			"-user_agent", "exstreamtv/1.0",
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
			"-timeout", "10000000",
		)
	}

	if prof.RealtimePacing {
		args = append(args, "-re")
	}

	seekable := resolved.Kind == resolver.KindFile || resolved.DurationKnown
	if resumeOffset > 0 && seekable {
		args = append(args, "-ss", formatSeek(resumeOffset))
	}

	args = append(args, "-i", resolved.PrimaryURI)

	args = append(args, "-map", "0:v:0?")
	if resolved.AudioPick != nil {
		args = append(args, "-map", fmt.Sprintf("0:%d", resolved.AudioPick.StreamIndex))
	} else {
		args = append(args, "-map", "0:a:0?")
	}

	useCopy := prof.AllowCopy && resolved.DirectPlayCandidate
	var encoder Encoder
	if useCopy {
		encoder = EncoderCopy
	} else {
		encoder = hw.pick()
	}
	args = append(args, "-c:v", string(encoder))
	if encoder == EncoderCopy {
		args = append(args, "-bsf:v", "h264_mp4toannexb", "-muxdelay", "0")
	} else {
		args = append(args, "-pix_fmt", "yuv420p")
		crf := prof.VideoCRF
		if crf == 0 {
			crf = 23
		}
		args = append(args, "-preset", "faster", "-crf", strconv.Itoa(crf))
		if prof.VideoMaxWidth > 0 {
			args = append(args, "-vf", fmt.Sprintf("scale=w=%d:h=-2:flags=lanczos", prof.VideoMaxWidth))
		}
	}

	if resolved.AudioPick != nil && resolved.AudioPick.NeedsDownmix {
		bitrate := prof.AudioBitrateK
		if bitrate == 0 {
			bitrate = 192
		}
		args = append(args,
			"-c:a", "aac",
			"-b:a", fmt.Sprintf("%dk", bitrate),
			"-ac", "2",
			"-ar", "48000",
		)
	} else {
		args = append(args, "-c:a", "copy")
	}

	args = append(args,
		"-f", "mpegts",
		"-mpegts_flags", "resend_headers+initial_discontinuity",
		"pipe:1",
	)

	return args, nil
}

func formatSeek(d time.Duration) string {
	total := int(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
