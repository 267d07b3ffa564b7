// Package streamplan resolves which audio and subtitle streams a work
// item keeps, what codec/bitrate each encoded audio stream gets, and
// whether a stereo downmix track is appended. Resolution runs once per
// work item from probes plus configuration and is immutable afterward.
package streamplan

import (
	"ripqueue/internal/config"
	"ripqueue/internal/mediaprobe"
	"ripqueue/internal/protocol"
)

// AudioBitrateTier names the three channel-count-driven bitrate
// classes. The exact kbps values are a quality-parameter concern
// (QualityTable); the default DVD and Blu-ray tables differ in the
// high tier only.
type AudioBitrateTier string

const (
	BitrateLow    AudioBitrateTier = "low"    // <= 2 channels
	BitrateMedium AudioBitrateTier = "medium" // > 2 channels on DVD, or unknown channel count
	BitrateHigh   AudioBitrateTier = "high"   // > 2 channels on Blu-ray
)

// QualityTable carries the numeric targets that differ by source
// type. DVD and Blu-ray sources MUST use different values; the table
// is a configuration concern, not hardcoded per call site.
type QualityTable struct {
	AudioBitrateKbps map[AudioBitrateTier]int
	DownmixKbps      int
}

// DefaultQualityTable reproduces the values the original toolchain
// used: DVD keeps audio at 256k/640k, Blu-ray at 256k/768k, and an
// optional downmix track is always AAC stereo at 192k.
func DefaultQualityTable(sourceType protocol.SourceType) QualityTable {
	if sourceType == protocol.SourceBluray {
		return QualityTable{
			AudioBitrateKbps: map[AudioBitrateTier]int{BitrateLow: 256, BitrateMedium: 640, BitrateHigh: 768},
			DownmixKbps:      192,
		}
	}
	return QualityTable{
		AudioBitrateKbps: map[AudioBitrateTier]int{BitrateLow: 256, BitrateMedium: 640, BitrateHigh: 640},
		DownmixKbps:      192,
	}
}

// AudioTrack is one resolved output audio stream.
type AudioTrack struct {
	SourceIndex int
	Channels    int
	Language    string
	Codec       string // "copy", "eac3", or "aac" for the downmix track
	BitrateKbps int     // 0 when Codec == "copy"
	IsDownmix   bool
}

// SubtitleTrack is one resolved output subtitle stream.
type SubtitleTrack struct {
	SourceIndex int
	Language    string
	CodecName   string
}

// Plan is the fully-resolved stream selection for one work item.
type Plan struct {
	Audio     []AudioTrack
	Subtitles []SubtitleTrack
}

// resolveAudioPolicy turns the configured policy into a concrete
// encode-or-copy decision for this source type: auto encodes Blu-ray
// and copies DVD; encode/copy are honored verbatim.
func resolveAudioPolicy(policy config.AudioPolicy, sourceType protocol.SourceType) config.AudioPolicy {
	if policy != config.AudioAuto {
		return policy
	}
	if sourceType == protocol.SourceBluray {
		return config.AudioEncode
	}
	return config.AudioCopy
}

func bitrateTier(channels int, sourceType protocol.SourceType) AudioBitrateTier {
	switch {
	case channels <= 0:
		return BitrateMedium
	case channels <= 2:
		return BitrateLow
	case sourceType == protocol.SourceBluray:
		return BitrateHigh
	default:
		return BitrateMedium
	}
}

// filterByLanguage keeps only streams whose language is in allow; an
// empty allow-set keeps everything (no filtering configured).
func filterByLanguage[T any](streams []T, language func(T) string, allow []string) []T {
	if len(allow) == 0 {
		return streams
	}
	set := make(map[string]bool, len(allow))
	for _, l := range allow {
		set[l] = true
	}
	out := make([]T, 0, len(streams))
	for _, s := range streams {
		if set[language(s)] {
			out = append(out, s)
		}
	}
	return out
}

// Resolve builds the stream plan for one work item from its probed
// audio/subtitle streams and the process configuration.
func Resolve(cfg *config.Config, sourceType protocol.SourceType, audio []mediaprobe.AudioStream, subs []mediaprobe.SubtitleStream) Plan {
	table := DefaultQualityTable(sourceType)

	keptAudio := filterByLanguage(audio, func(a mediaprobe.AudioStream) string { return a.Language }, cfg.AudioLanguages)
	if len(keptAudio) == 0 && len(audio) > 0 {
		// Safety fallback: never silently drop every audio stream.
		keptAudio = audio
	}

	keptSubs := filterByLanguage(subs, func(s mediaprobe.SubtitleStream) string { return s.Language }, cfg.SubtitleLanguages)

	policy := resolveAudioPolicy(cfg.AudioPolicy, sourceType)

	var plan Plan
	for i, a := range keptAudio {
		track := AudioTrack{SourceIndex: a.Index, Channels: a.Channels, Language: a.Language}
		if policy == config.AudioCopy {
			track.Codec = "copy"
		} else {
			tier := bitrateTier(a.Channels, sourceType)
			track.Codec = "eac3"
			track.BitrateKbps = table.AudioBitrateKbps[tier]
		}
		plan.Audio = append(plan.Audio, track)

		if i == 0 && cfg.EnableDownmix && policy != config.AudioCopy {
			plan.Audio = append(plan.Audio, AudioTrack{
				SourceIndex: a.Index,
				Channels:    2,
				Language:    a.Language,
				Codec:       "aac",
				BitrateKbps: table.DownmixKbps,
				IsDownmix:   true,
			})
		}
	}

	for _, s := range keptSubs {
		plan.Subtitles = append(plan.Subtitles, SubtitleTrack{
			SourceIndex: s.Index,
			Language:    s.Language,
			CodecName:   s.CodecName,
		})
	}

	return plan
}
