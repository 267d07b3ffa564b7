package streamplan

import (
	"testing"

	"ripqueue/internal/config"
	"ripqueue/internal/mediaprobe"
	"ripqueue/internal/protocol"
)

func baseConfig() *config.Config {
	cfg := config.Default()
	return cfg
}

func TestResolveLanguageFilterSafetyFallback(t *testing.T) {
	cfg := baseConfig()
	cfg.AudioLanguages = []string{"jpn"} // would remove every stream below
	audio := []mediaprobe.AudioStream{{Index: 1, Channels: 2, Language: "eng"}}

	plan := Resolve(cfg, protocol.SourceDVD, audio, nil)
	if len(plan.Audio) != 1 {
		t.Fatalf("got %d audio tracks, want 1 (fallback to keep all)", len(plan.Audio))
	}
}

func TestResolveAudioPolicyAutoEncodesBluray(t *testing.T) {
	cfg := baseConfig()
	audio := []mediaprobe.AudioStream{{Index: 1, Channels: 6, Language: "eng"}}
	plan := Resolve(cfg, protocol.SourceBluray, audio, nil)
	if plan.Audio[0].Codec == "copy" {
		t.Errorf("got copy, want encode for bluray auto policy")
	}
	if plan.Audio[0].BitrateKbps != 768 {
		t.Errorf("got %d kbps, want 768 for >2ch bluray", plan.Audio[0].BitrateKbps)
	}
}

func TestResolveAudioPolicyAutoCopiesDVD(t *testing.T) {
	cfg := baseConfig()
	audio := []mediaprobe.AudioStream{{Index: 1, Channels: 6, Language: "eng"}}
	plan := Resolve(cfg, protocol.SourceDVD, audio, nil)
	if plan.Audio[0].Codec != "copy" {
		t.Errorf("got %s, want copy for dvd auto policy", plan.Audio[0].Codec)
	}
}

func TestResolveBitrateTiers(t *testing.T) {
	cfg := baseConfig()
	cfg.AudioPolicy = config.AudioEncode
	cases := []struct {
		channels int
		st       protocol.SourceType
		want     int
	}{
		{2, protocol.SourceDVD, 256},
		{6, protocol.SourceDVD, 640},
		{6, protocol.SourceBluray, 768},
		{0, protocol.SourceDVD, 640},
	}
	for _, c := range cases {
		audio := []mediaprobe.AudioStream{{Index: 1, Channels: c.channels, Language: "eng"}}
		plan := Resolve(cfg, c.st, audio, nil)
		if plan.Audio[0].BitrateKbps != c.want {
			t.Errorf("channels=%d source=%s: got %d kbps, want %d", c.channels, c.st, plan.Audio[0].BitrateKbps, c.want)
		}
	}
}

func TestResolveDownmixAppendsStereoTrack(t *testing.T) {
	cfg := baseConfig()
	cfg.AudioPolicy = config.AudioEncode
	cfg.EnableDownmix = true
	audio := []mediaprobe.AudioStream{{Index: 1, Channels: 6, Language: "eng"}}
	plan := Resolve(cfg, protocol.SourceBluray, audio, nil)
	if len(plan.Audio) != 2 {
		t.Fatalf("got %d audio tracks, want 2 (original + downmix)", len(plan.Audio))
	}
	if !plan.Audio[1].IsDownmix || plan.Audio[1].Channels != 2 {
		t.Errorf("got %+v, want stereo downmix track", plan.Audio[1])
	}
}

func TestResolveDownmixSkippedOnCopyPolicy(t *testing.T) {
	cfg := baseConfig()
	cfg.AudioPolicy = config.AudioCopy
	cfg.EnableDownmix = true
	audio := []mediaprobe.AudioStream{{Index: 1, Channels: 6, Language: "eng"}}
	plan := Resolve(cfg, protocol.SourceBluray, audio, nil)
	if len(plan.Audio) != 1 {
		t.Fatalf("got %d audio tracks, want 1 (no downmix under copy policy)", len(plan.Audio))
	}
}

func TestFilterMKVCompatibleDropsAndDedups(t *testing.T) {
	subs := []SubtitleTrack{
		{SourceIndex: 1, CodecName: "subrip"},
		{SourceIndex: 2, CodecName: "mov_text"},
		{SourceIndex: 3, CodecName: "mov_text"},
	}
	kept, dropped := FilterMKVCompatible(subs)
	if len(kept) != 1 || kept[0].SourceIndex != 1 {
		t.Errorf("got kept=%v, want only subrip", kept)
	}
	if len(dropped) != 1 || dropped[0] != "mov_text" {
		t.Errorf("got dropped=%v, want deduplicated [mov_text]", dropped)
	}
}
