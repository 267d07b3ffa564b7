// Package protocol implements the job envelope wire format and the
// intake validation rules that decide whether a raw bus payload becomes
// a queued job.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ripqueue/internal/xerrors"
)

// SupportedVersion is the only protocol version this worker accepts.
// Mismatches are rejected outright, never coerced.
const SupportedVersion = 3

// Mode identifies whether an envelope's files belong to a series or a
// movie, which in turn selects the destination-path rule.
type Mode string

const (
	ModeSeries Mode = "series"
	ModeMovie  Mode = "movie"
)

// SourceType identifies the physical media class the files originated
// from, which selects quality targets and default audio policy.
type SourceType string

const (
	SourceDVD    SourceType = "dvd"
	SourceBluray SourceType = "bluray"
)

// Envelope is the validated, resolved job message handed to the queue.
// Mode and SourceType are always resolved (never empty) once an
// Envelope leaves Validate; inference happens exactly once, here.
type Envelope struct {
	Version    int        `json:"version"`
	Mode       Mode       `json:"mode"`
	SourceType SourceType `json:"source_type"`
	Path       string     `json:"path,omitempty"`
	Files      []string   `json:"files,omitempty"`
	Interlaced *bool      `json:"interlaced,omitempty"`
}

// rawEnvelope mirrors the wire shape before validation, with version
// left as json.Number and interlaced as json.RawMessage so we can distinguish
// "absent", "wrong type" and "present" during validation.
type rawEnvelope struct {
	Version    json.Number     `json:"version"`
	Mode       string          `json:"mode"`
	SourceType string          `json:"source_type"`
	Path       string          `json:"path"`
	Files      []string        `json:"files"`
	Interlaced json.RawMessage `json:"interlaced"`
}

// PathExistsFunc reports whether a filesystem path exists; injected so
// validation is testable without touching a real filesystem.
type PathExistsFunc func(path string) bool

// Subpaths names the configured series/movie subpath segments used for
// mode inference from a path, case-insensitively.
type Subpaths struct {
	Series string
	Movie  string
}

// Validate runs the full intake validation order from the job protocol
// and returns an accepted, fully-resolved Envelope, or a wrapped
// xerrors.ErrProtocol describing the rejection reason. Each check
// short-circuits the next, matching the "validation order" contract:
// parse, version, path-or-files, mode, source_type, interlaced type.
func Validate(payload []byte, subpaths Subpaths, pathExists PathExistsFunc) (Envelope, error) {
	dec := json.NewDecoder(strings.NewReader(string(payload)))
	dec.UseNumber()
	var raw rawEnvelope
	if err := dec.Decode(&raw); err != nil {
		return Envelope{}, fmt.Errorf("%w: payload is not a JSON object: %v", xerrors.ErrProtocol, err)
	}

	version, err := raw.Version.Int64()
	if err != nil || int(version) != SupportedVersion {
		return Envelope{}, fmt.Errorf("%w: unsupported version %q (want %d)", xerrors.ErrProtocol, raw.Version.String(), SupportedVersion)
	}

	hasPath := raw.Path != "" && pathExists != nil && pathExists(raw.Path)
	hasFiles := len(raw.Files) > 0
	if !hasPath && !hasFiles {
		return Envelope{}, fmt.Errorf("%w: neither path nor files resolves to work", xerrors.ErrProtocol)
	}

	mode, err := resolveMode(raw.Mode, raw.Path, subpaths)
	if err != nil {
		return Envelope{}, err
	}

	sourceType, err := resolveSourceType(raw.SourceType, raw.Path)
	if err != nil {
		return Envelope{}, err
	}

	var interlaced *bool
	if len(raw.Interlaced) > 0 && string(raw.Interlaced) != "null" {
		var b bool
		if err := json.Unmarshal(raw.Interlaced, &b); err != nil {
			return Envelope{}, fmt.Errorf("%w: interlaced must be a bool: %v", xerrors.ErrProtocol, err)
		}
		interlaced = &b
	}

	return Envelope{
		Version:    SupportedVersion,
		Mode:       mode,
		SourceType: sourceType,
		Path:       raw.Path,
		Files:      raw.Files,
		Interlaced: interlaced,
	}, nil
}

func resolveMode(explicit, path string, subpaths Subpaths) (Mode, error) {
	switch Mode(strings.ToLower(explicit)) {
	case ModeSeries:
		return ModeSeries, nil
	case ModeMovie:
		return ModeMovie, nil
	}
	if path != "" {
		lower := strings.ToLower(path)
		switch {
		case subpaths.Series != "" && strings.Contains(lower, strings.ToLower(subpaths.Series)):
			return ModeSeries, nil
		case subpaths.Movie != "" && strings.Contains(lower, strings.ToLower(subpaths.Movie)):
			return ModeMovie, nil
		}
	}
	return "", fmt.Errorf("%w: cannot resolve mode from %q or path %q", xerrors.ErrProtocol, explicit, path)
}

func resolveSourceType(explicit, path string) (SourceType, error) {
	switch SourceType(strings.ToLower(explicit)) {
	case SourceDVD:
		return SourceDVD, nil
	case SourceBluray:
		return SourceBluray, nil
	}
	if path != "" {
		lower := strings.ToLower(path)
		switch {
		case strings.Contains(lower, string(SourceDVD)):
			return SourceDVD, nil
		case strings.Contains(lower, string(SourceBluray)):
			return SourceBluray, nil
		}
	}
	return "", fmt.Errorf("%w: cannot resolve source_type from %q or path %q", xerrors.ErrProtocol, explicit, path)
}

// StatusKind names the three lifecycle topics a worker publishes to.
type StatusKind string

const (
	StatusStart StatusKind = "start"
	StatusDone  StatusKind = "done"
	StatusError StatusKind = "error"
)

// StatusEvent is the payload published on a lifecycle topic. Encoder is
// set on StatusStart only; Error is set on StatusError only.
type StatusEvent struct {
	Version   int        `json:"version"`
	Kind      StatusKind `json:"-"`
	Path      string     `json:"path"`
	Encoder   string     `json:"encoder,omitempty"`
	Timestamp int64      `json:"timestamp"`
	Error     string     `json:"error,omitempty"`
}

// NewStatusEvent stamps the current time onto a new status event.
func NewStatusEvent(kind StatusKind, path string) StatusEvent {
	return StatusEvent{
		Version:   SupportedVersion,
		Kind:      kind,
		Path:      path,
		Timestamp: time.Now().Unix(),
	}
}

// MarshalJSON encodes the wire payload without the Kind discriminator,
// which lives in the topic name, not the body.
func (e StatusEvent) MarshalJSON() ([]byte, error) {
	type wire StatusEvent
	return json.Marshal(wire(e))
}
