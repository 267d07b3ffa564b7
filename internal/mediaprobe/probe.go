// Package mediaprobe wraps ffprobe invocations: container duration and
// field order, audio/subtitle stream enumeration, and the bounded
// per-frame sample used by the interlace analyzer.
package mediaprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"ripqueue/internal/logger"
	"ripqueue/internal/xerrors"
)

// AudioStream describes one audio stream as needed by stream-plan
// resolution: absolute index (for -map 0:N), channel count and
// language tag (empty if untagged).
type AudioStream struct {
	Index    int
	Channels int
	Language string
}

// SubtitleStream describes one subtitle stream.
type SubtitleStream struct {
	Index     int
	CodecName string
	Language  string
}

// Result is the probe summary of one media file.
type Result struct {
	Duration    time.Duration
	FieldOrder  string // raw ffprobe value: "progressive", "tt", "bb", "tb", "bt", or ""
	Width       int
	Height      int
	VideoCodec  string
	AudioCodec  string
	Audio       []AudioStream
	Subtitles   []SubtitleStream
}

// Prober wraps an ffprobe binary path.
type Prober struct {
	ffprobePath string
}

func New(ffprobePath string) *Prober {
	return &Prober{ffprobePath: ffprobePath}
}

type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeFormat struct {
	Duration string `json:"duration"`
}

type probeStream struct {
	Index       int               `json:"index"`
	CodecType   string            `json:"codec_type"`
	CodecName   string            `json:"codec_name"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	FieldOrder  string            `json:"field_order"`
	Channels    int               `json:"channels"`
	Tags        map[string]string `json:"tags"`
}

func (s probeStream) language() string {
	if s.Tags == nil {
		return ""
	}
	return strings.ToLower(s.Tags["language"])
}

// Probe runs ffprobe -show_format -show_streams and extracts the
// fields the worker's stream-plan and interlace-decision logic need.
func (p *Prober) Probe(ctx context.Context, path string) (Result, error) {
	out, err := p.run(ctx, "-show_format", "-show_streams", path)
	if err != nil {
		return Result{}, err
	}

	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return Result{}, fmt.Errorf("%w: parse ffprobe output for %s: %v", xerrors.ErrFilesystem, path, err)
	}

	var res Result
	if parsed.Format.Duration != "" {
		secs, _ := strconv.ParseFloat(parsed.Format.Duration, 64)
		res.Duration = time.Duration(secs * float64(time.Second))
	}

	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "video":
			if res.VideoCodec == "" {
				res.VideoCodec = s.CodecName
				res.Width = s.Width
				res.Height = s.Height
				res.FieldOrder = strings.ToLower(s.FieldOrder)
			}
		case "audio":
			if res.AudioCodec == "" {
				res.AudioCodec = s.CodecName
			}
			res.Audio = append(res.Audio, AudioStream{
				Index:    s.Index,
				Channels: s.Channels,
				Language: s.language(),
			})
		case "subtitle":
			res.Subtitles = append(res.Subtitles, SubtitleStream{
				Index:     s.Index,
				CodecName: s.CodecName,
				Language:  s.language(),
			})
		}
	}
	return res, nil
}

// FrameSample is one decoded frame's interlace-relevant fields, as
// reported by ffprobe -show_frames.
type FrameSample struct {
	Interlaced    bool
	TopFieldFirst bool
}

type frameOutput struct {
	Frames []frameEntry `json:"frames"`
}

type frameEntry struct {
	InterlacedFrame string `json:"interlaced_frame"`
	TopFieldFirst   string `json:"top_field_first"`
}

// SampleFrames decodes up to maxFrames frames of the first video
// stream and reports their interlace flags, for use when container
// metadata is absent or ambiguous. Bounded so a long file never turns
// a single probe into a full decode.
func (p *Prober) SampleFrames(ctx context.Context, path string, maxFrames int) ([]FrameSample, error) {
	out, err := p.run(ctx,
		"-select_streams", "v:0",
		"-show_frames",
		"-show_entries", "frame=interlaced_frame,top_field_first",
		"-read_intervals", fmt.Sprintf("%%+#%d", maxFrames),
		path,
	)
	if err != nil {
		return nil, err
	}
	var parsed frameOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse ffprobe frame sample for %s: %v", xerrors.ErrFilesystem, path, err)
	}
	samples := make([]FrameSample, 0, len(parsed.Frames))
	for _, f := range parsed.Frames {
		samples = append(samples, FrameSample{
			Interlaced:    f.InterlacedFrame == "1",
			TopFieldFirst: f.TopFieldFirst == "1",
		})
	}
	return samples, nil
}

func (p *Prober) run(ctx context.Context, args ...string) ([]byte, error) {
	full := append([]string{"-v", "quiet", "-print_format", "json"}, args...)
	cmd := exec.CommandContext(ctx, p.ffprobePath, full...)
	logger.Debug("ffprobe command", "args", strings.Join(full, " "))

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe failed: %v: %s", xerrors.ErrTransient, err, stderr.String())
	}
	return out, nil
}
