package worker

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"ripqueue/internal/pathrules"
	"ripqueue/internal/protocol"
)

var containerExtensions = regexp.MustCompile(`(?i)\.(mkv|mp4|m2ts|ts|avi|mov)$`)

// WorkItem is one source file within a claimed job, paired with its
// deterministic destination path. Ephemeral: never persisted.
type WorkItem struct {
	Source      string
	Destination string
}

// Enumerate lists the work items for an accepted envelope: the
// envelope's file list when present, otherwise a recursive scan of
// path; intermediate tool-generated files are always excluded.
func Enumerate(env protocol.Envelope, roots pathrules.Roots) ([]WorkItem, error) {
	files := env.Files
	if len(files) == 0 {
		scanned, err := scanDir(env.Path)
		if err != nil {
			return nil, err
		}
		files = scanned
	}

	var kept []string
	for _, f := range files {
		if pathrules.IsIntermediate(filepath.Base(f)) {
			continue
		}
		kept = append(kept, f)
	}

	commonRoot := ""
	if env.Mode == protocol.ModeMovie {
		commonRoot = pathrules.CommonRoot(kept, env.Path)
	}

	items := make([]WorkItem, 0, len(kept))
	for _, f := range kept {
		dest := pathrules.Destination(env.Mode, env.SourceType, f, commonRoot, roots)
		items = append(items, WorkItem{Source: f, Destination: dest})
	}
	return items, nil
}

// EnumerateSourceFiles recursively lists container files under root,
// sorted for determinism. Shared with the reconciler's source-tree
// walk so both use the same extension and ordering rules.
func EnumerateSourceFiles(root string) ([]string, error) {
	return scanDir(root)
}

func scanDir(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if containerExtensions.MatchString(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Exists reports whether a work item's destination has already been
// produced, in which case the item is skipped silently (idempotence).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
