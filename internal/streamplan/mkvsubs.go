package streamplan

import "strings"

// mkvCompatibleCodecs lists subtitle codecs that can be muxed into an
// MKV container without transcoding, per FFmpeg's matroska.c codec tag
// mapping.
var mkvCompatibleCodecs = map[string]bool{
	"subrip":             true,
	"srt":                true,
	"ass":                true,
	"ssa":                true,
	"text":               true,
	"dvd_subtitle":       true,
	"dvb_subtitle":       true,
	"hdmv_pgs_subtitle":  true,
	"hdmv_text_subtitle": true,
	"arib_caption":       true,
	"webvtt":             true,
}

// FilterMKVCompatible drops subtitle tracks whose codec cannot be
// muxed into an MKV container as-is, returning the codecs it dropped
// (deduplicated) for a single warning line instead of one per stream.
func FilterMKVCompatible(subs []SubtitleTrack) (kept []SubtitleTrack, droppedCodecs []string) {
	if subs == nil {
		return nil, nil
	}
	kept = make([]SubtitleTrack, 0, len(subs))
	seen := make(map[string]bool)
	for _, s := range subs {
		codec := strings.ToLower(strings.TrimSpace(s.CodecName))
		if mkvCompatibleCodecs[codec] {
			kept = append(kept, s)
			continue
		}
		if !seen[codec] {
			seen[codec] = true
			droppedCodecs = append(droppedCodecs, s.CodecName)
		}
	}
	return kept, droppedCodecs
}
