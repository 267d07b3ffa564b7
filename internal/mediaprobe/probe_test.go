package mediaprobe

import (
	"encoding/json"
	"testing"
)

func TestProbeStreamLanguageLowercasesTag(t *testing.T) {
	s := probeStream{Tags: map[string]string{"language": "ENG"}}
	if got := s.language(); got != "eng" {
		t.Errorf("got %q, want lowercased \"eng\"", got)
	}
}

func TestProbeStreamLanguageAbsent(t *testing.T) {
	s := probeStream{}
	if got := s.language(); got != "" {
		t.Errorf("got %q, want empty string when untagged", got)
	}
}

func TestProbeOutputParsesFormatAndStreams(t *testing.T) {
	raw := `{
		"format": {"duration": "120.5"},
		"streams": [
			{"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "field_order": "tt"},
			{"index": 1, "codec_type": "audio", "codec_name": "ac3", "channels": 6, "tags": {"language": "eng"}},
			{"index": 2, "codec_type": "subtitle", "codec_name": "subrip", "tags": {"language": "deu"}}
		]
	}`
	var parsed probeOutput
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed.Format.Duration != "120.5" {
		t.Errorf("got duration %q, want 120.5", parsed.Format.Duration)
	}
	if len(parsed.Streams) != 3 {
		t.Fatalf("got %d streams, want 3", len(parsed.Streams))
	}
	if parsed.Streams[1].Channels != 6 || parsed.Streams[1].language() != "eng" {
		t.Errorf("audio stream parsed incorrectly: %+v", parsed.Streams[1])
	}
}

func TestFrameEntryInterlacedFlagParsesStringBool(t *testing.T) {
	raw := `{"frames": [{"interlaced_frame": "1", "top_field_first": "0"}, {"interlaced_frame": "0", "top_field_first": "1"}]}`
	var parsed frameOutput
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		t.Fatal(err)
	}
	samples := make([]FrameSample, 0, len(parsed.Frames))
	for _, f := range parsed.Frames {
		samples = append(samples, FrameSample{Interlaced: f.InterlacedFrame == "1", TopFieldFirst: f.TopFieldFirst == "1"})
	}
	if !samples[0].Interlaced || samples[0].TopFieldFirst {
		t.Errorf("got %+v, want interlaced=true topFieldFirst=false", samples[0])
	}
	if samples[1].Interlaced || !samples[1].TopFieldFirst {
		t.Errorf("got %+v, want interlaced=false topFieldFirst=true", samples[1])
	}
}
