// Package encode implements the multi-encoder state machine: two
// hardware paths (QSV, VAAPI) plus a software fallback, per-encoder
// retry, partial-output cleanup between attempts, and the host GPU
// lock scoped around the hardware states.
package encode

import "ripqueue/internal/protocol"

// Accel identifies one of the three encoder paths the state machine
// walks through, in priority order.
type Accel string

const (
	AccelQSV   Accel = "qsv"
	AccelVAAPI Accel = "vaapi"
	AccelSW    Accel = "sw"
)

// order is the fixed hardware-then-software priority: QSV, then VAAPI,
// then software. A codec-specific source exception may skip QSV (see
// RequiresSoftwareDecode).
var order = []Accel{AccelQSV, AccelVAAPI, AccelSW}

// QualityTargets carries the source-type-dependent numeric targets for
// each encoder. Blu-ray sources use tighter (lower) values than DVD.
type QualityTargets struct {
	QSVGlobalQuality int
	VAAPIQP          int
	SWCRF            int
}

// DefaultQualityTargets reproduces the original toolchain's per-source
// quality table.
func DefaultQualityTargets(sourceType protocol.SourceType) QualityTargets {
	if sourceType == protocol.SourceBluray {
		return QualityTargets{QSVGlobalQuality: 21, VAAPIQP: 22, SWCRF: 21}
	}
	return QualityTargets{QSVGlobalQuality: 25, VAAPIQP: 26, SWCRF: 25}
}

// RequiresSoftwareDecode reports whether the source codec/profile/bit
// depth combination cannot be hardware-decoded by the given encoder's
// associated decoder, in which case that encoder attempt should be
// skipped in favor of the next one in priority order. VC-1 (and WMV3)
// is the concrete exception named in the job protocol: QSV decodes it
// unreliably, so such sources start at VAAPI.
func RequiresSoftwareDecode(codec string, accel Accel) bool {
	switch accel {
	case AccelQSV:
		return codec == "vc1" || codec == "wmv3"
	default:
		return false
	}
}

// NextAccel returns the encoder after current in priority order, or
// "" if current is the last one, or if the next one is software and
// software fallback is disabled. VC-1 sources
// skip QSV per RequiresSoftwareDecode; callers should call NextAccel
// again if the returned accel requires software decode too.
func NextAccel(current Accel, swFallbackEnabled bool) Accel {
	for i, a := range order {
		if a != current {
			continue
		}
		if i+1 >= len(order) {
			return ""
		}
		next := order[i+1]
		if next == AccelSW && !swFallbackEnabled {
			return ""
		}
		return next
	}
	return ""
}

// FirstAccel returns the first encoder to attempt for a given source
// codec, skipping QSV for codecs that require software decode on it.
func FirstAccel(codec string) Accel {
	if RequiresSoftwareDecode(codec, AccelQSV) {
		return AccelVAAPI
	}
	return AccelQSV
}
