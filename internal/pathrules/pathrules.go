// Package pathrules implements the destination-path computation shared
// by the transcode worker and the reconciler. Both must agree on the
// same deterministic function of (mode, source_type, source file,
// configured roots) so that a reconciler scan and a worker run never
// disagree about whether a file's output already exists.
package pathrules

import (
	"path/filepath"
	"regexp"
	"strings"

	"ripqueue/internal/protocol"
)

// IntermediatePattern matches tool-generated temporary filenames
// produced by the ripping toolchain for untitled tracks. Files
// matching this are never selected as work items and never appear in
// a reconciler envelope.
var IntermediatePattern = regexp.MustCompile(`^[A-Za-z0-9]{2}_[A-Za-z][0-9]{2}\.mkv$`)

// IsIntermediate reports whether base (a filename, not a path) matches
// the intermediate-output pattern.
func IsIntermediate(base string) bool {
	return IntermediatePattern.MatchString(base)
}

// Roots carries the configured filesystem layout needed to compute
// destination paths.
type Roots struct {
	SourceBase     string
	SeriesSubpath  string
	MovieSubpath   string
	SeriesDestBase string
	MovieDestBase  string
}

// SeriesSourceRoot returns the source root for a given source type's
// series subtree, e.g. <SourceBase>/dvd/Serien.
func (r Roots) SeriesSourceRoot(st protocol.SourceType) string {
	return filepath.Join(r.SourceBase, string(st), r.SeriesSubpath)
}

// MovieSourceRoot returns the source root for a given source type's
// movie subtree, e.g. <SourceBase>/bluray/Filme.
func (r Roots) MovieSourceRoot(st protocol.SourceType) string {
	return filepath.Join(r.SourceBase, string(st), r.MovieSubpath)
}

// Destination computes the deterministic output path for one source
// file within a job. commonRoot is the job's common ancestor directory
// (used for movie mode); it may be empty, in which case the movie
// output collapses to the file's basename.
func Destination(mode protocol.Mode, sourceType protocol.SourceType, sourceFile, commonRoot string, roots Roots) string {
	switch mode {
	case protocol.ModeSeries:
		rel, err := filepath.Rel(roots.SeriesSourceRoot(sourceType), sourceFile)
		if err != nil || strings.HasPrefix(rel, "..") {
			rel = filepath.Base(sourceFile)
		}
		return filepath.Join(roots.SeriesDestBase, rel)
	case protocol.ModeMovie:
		if commonRoot != "" {
			rel, err := filepath.Rel(commonRoot, sourceFile)
			if err == nil && !strings.HasPrefix(rel, "..") {
				return filepath.Join(roots.MovieDestBase, rel)
			}
		}
		return filepath.Join(roots.MovieDestBase, filepath.Base(sourceFile))
	default:
		return filepath.Join(roots.MovieDestBase, filepath.Base(sourceFile))
	}
}

// CommonRoot returns the deepest directory common to all of files, or
// the empty string if files is empty. When a path hint is supplied and
// is an ancestor of every file, it is preferred over the computed
// common ancestor, matching the envelope's "path kept as a hint"
// semantics.
func CommonRoot(files []string, pathHint string) string {
	if pathHint != "" {
		allUnder := true
		for _, f := range files {
			rel, err := filepath.Rel(pathHint, f)
			if err != nil || strings.HasPrefix(rel, "..") {
				allUnder = false
				break
			}
		}
		if allUnder {
			return pathHint
		}
	}
	if len(files) == 0 {
		return ""
	}
	common := filepath.Dir(files[0])
	for _, f := range files[1:] {
		dir := filepath.Dir(f)
		common = commonPrefix(common, dir)
	}
	return common
}

func commonPrefix(a, b string) string {
	aParts := strings.Split(filepath.ToSlash(a), "/")
	bParts := strings.Split(filepath.ToSlash(b), "/")
	n := len(aParts)
	if len(bParts) < n {
		n = len(bParts)
	}
	var out []string
	for i := 0; i < n; i++ {
		if aParts[i] != bParts[i] {
			break
		}
		out = append(out, aParts[i])
	}
	if len(out) == 0 {
		return "/"
	}
	return strings.Join(out, "/")
}
