// Package interlace resolves whether a work item should be treated as
// interlaced, combining an explicit envelope hint, container metadata
// and a bounded statistical frame sample, in that priority order.
package interlace

import "ripqueue/internal/mediaprobe"

// SampleWindow is the default number of frames the statistical
// analysis decodes when metadata is absent or ambiguous.
const SampleWindow = 500

// interlacedFieldOrders are the field_order values ffprobe reports for
// interlaced content. "progressive" decides progressive; "" and any
// other value fall through to the frame-sample stage.
var interlacedFieldOrders = map[string]bool{
	"tt": true, "bb": true, "tb": true, "bt": true,
}

// Decide applies the full priority chain: explicit hint, then
// container field_order, then majority vote over a bounded frame
// sample, then a conservative fallback to interlaced when every stage
// above is indeterminate. samples may be nil if the analysis stage was
// skipped (metadata already resolved the question).
func Decide(hint *bool, fieldOrder string, samples []mediaprobe.FrameSample) bool {
	if hint != nil {
		return *hint
	}

	switch fieldOrder {
	case "progressive":
		return false
	case "tt", "bb", "tb", "bt":
		return true
	}

	if decided, ok := voteFrames(samples); ok {
		return decided
	}

	// Metadata unknown and analysis indeterminate: conservative choice,
	// an unneeded deinterlace costs less than interlaced artifacts.
	return true
}

// voteFrames reports the majority vote over samples: interlaced-flagged
// frames against progressive ones. An empty sample (nothing decoded)
// or an exact tie is undetermined (ok=false).
func voteFrames(samples []mediaprobe.FrameSample) (interlaced bool, ok bool) {
	if len(samples) == 0 {
		return false, false
	}
	var interlacedCount, progressiveCount int
	for _, s := range samples {
		if s.Interlaced {
			interlacedCount++
		} else {
			progressiveCount++
		}
	}
	if interlacedCount == progressiveCount {
		return false, false
	}
	return interlacedCount > progressiveCount, true
}
