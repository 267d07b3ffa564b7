// Package reconcile implements the one-shot tool that diffs the source
// and destination trees and republishes job envelopes for any source
// file whose deterministic output is missing. It is the designated
// mechanism for re-driving work a worker skipped, failed, or never
// saw.
package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"ripqueue/internal/bus"
	"ripqueue/internal/config"
	"ripqueue/internal/logger"
	"ripqueue/internal/mediaprobe"
	"ripqueue/internal/pathrules"
	"ripqueue/internal/protocol"
	"ripqueue/internal/worker"
)

// markerFile names the per-directory override that pins a batch's
// source type without relying on height-probing.
const markerFile = ".source_type"

// probeConcurrency bounds how many files a batch's source-type probe
// fallback decodes concurrently.
const probeConcurrency = 4

// Plan is one envelope the reconciler would publish, computed but not
// yet sent — dry-run mode stops here.
type Plan struct {
	SourceType protocol.SourceType
	Mode       protocol.Mode
	Dir        string
	Files      []string
}

// Reconciler walks source roots under cfg and computes the set of
// envelopes needed to fill every gap in the destination tree.
type Reconciler struct {
	cfg    *config.Config
	prober *mediaprobe.Prober
}

func New(cfg *config.Config, prober *mediaprobe.Prober) *Reconciler {
	return &Reconciler{cfg: cfg, prober: prober}
}

// Plan discovers source roots, diffs them against the destination
// tree, and returns one Plan per batch, in deterministic
// sorted-by-directory order.
func (r *Reconciler) Plan(ctx context.Context) ([]Plan, error) {
	roots := r.discoverRoots()
	if len(roots) == 0 {
		logger.Warn("no source roots found under configured base, nothing to reconcile", "base", r.cfg.Roots.SourceBase)
		return nil, nil
	}

	var plans []Plan
	for _, root := range roots {
		missing, mode, err := r.missingByMode(root.sourceType, root.path, protocol.ModeSeries, r.cfg.Roots.SeriesDestBase)
		if err != nil {
			return nil, err
		}
		plans = append(plans, r.batchMissing(ctx, root.sourceType, mode, missing)...)

		missing, mode, err = r.missingByMode(root.sourceType, root.path, protocol.ModeMovie, r.cfg.Roots.MovieDestBase)
		if err != nil {
			return nil, err
		}
		plans = append(plans, r.batchMissing(ctx, root.sourceType, mode, missing)...)
	}

	sort.Slice(plans, func(i, j int) bool { return plans[i].Dir < plans[j].Dir })
	return plans, nil
}

type sourceRoot struct {
	sourceType protocol.SourceType
	path       string
}

// discoverRoots probes the configured source base for "dvd" and
// "bluray" subfolders, falling back to the configured default source
// type applied to the base itself when neither exists.
func (r *Reconciler) discoverRoots() []sourceRoot {
	base := r.cfg.Roots.SourceBase
	if base == "" {
		return nil
	}

	var roots []sourceRoot
	for _, st := range []protocol.SourceType{protocol.SourceDVD, protocol.SourceBluray} {
		candidate := filepath.Join(base, string(st))
		if dirExists(candidate) {
			roots = append(roots, sourceRoot{sourceType: st, path: candidate})
		}
	}
	if len(roots) > 0 {
		return roots
	}

	if !dirExists(base) {
		return nil
	}
	return []sourceRoot{{sourceType: protocol.SourceType(r.cfg.DefaultSourceType), path: base}}
}

// missingByMode enumerates container files under root's mode subpath
// and returns those whose deterministic destination does not exist.
func (r *Reconciler) missingByMode(sourceType protocol.SourceType, root string, mode protocol.Mode, destBase string) ([]string, protocol.Mode, error) {
	subpath := r.cfg.Roots.SeriesSubpath
	if mode == protocol.ModeMovie {
		subpath = r.cfg.Roots.MovieSubpath
	}
	scanRoot := filepath.Join(root, subpath)
	if !dirExists(scanRoot) {
		return nil, mode, nil
	}

	files, err := worker.EnumerateSourceFiles(scanRoot)
	if err != nil {
		return nil, mode, fmt.Errorf("scan %s: %w", scanRoot, err)
	}

	var missing []string
	for _, f := range files {
		// The published envelope's path is the batch directory, which the
		// worker uses as a movie's common root; mirror that here.
		commonRoot := ""
		if mode == protocol.ModeMovie {
			commonRoot = filepath.Dir(f)
		}
		dest := pathrules.Destination(mode, sourceType, f, commonRoot, r.cfg.Roots)
		if !worker.Exists(dest) {
			missing = append(missing, f)
		}
	}
	return missing, mode, nil
}

// batchMissing groups missing files by parent directory and splits
// each group into fixed-size batches, resolving each batch's source
// type independently.
func (r *Reconciler) batchMissing(ctx context.Context, walkerDefault protocol.SourceType, mode protocol.Mode, missing []string) []Plan {
	if len(missing) == 0 {
		return nil
	}

	byDir := make(map[string][]string)
	for _, f := range missing {
		dir := filepath.Dir(f)
		byDir[dir] = append(byDir[dir], f)
	}

	dirs := make([]string, 0, len(byDir))
	for d := range byDir {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	batchSize := r.cfg.ReconcileBatchSize
	if batchSize <= 0 {
		batchSize = 5
	}

	var plans []Plan
	for _, dir := range dirs {
		files := byDir[dir]
		sort.Strings(files)
		for start := 0; start < len(files); start += batchSize {
			end := start + batchSize
			if end > len(files) {
				end = len(files)
			}
			batch := files[start:end]
			sourceType := r.resolveBatchSourceType(ctx, dir, batch, walkerDefault)
			plans = append(plans, Plan{SourceType: sourceType, Mode: mode, Dir: dir, Files: append([]string{}, batch...)})
		}
	}
	return plans
}

// resolveBatchSourceType walks up from dir looking for a marker file;
// absent that, it probes the batch's files concurrently for video
// height and falls back to the walker's default if every probe fails
// or is inconclusive.
func (r *Reconciler) resolveBatchSourceType(ctx context.Context, dir string, batch []string, walkerDefault protocol.SourceType) protocol.SourceType {
	if st, ok := readMarker(dir); ok {
		return st
	}

	heights := make([]int, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for i, f := range batch {
		i, f := i, f
		g.Go(func() error {
			res, err := r.prober.Probe(gctx, f)
			if err != nil {
				if !r.cfg.ReconcileIncludeProbeFailures {
					logger.Warn("probe failed during source-type detection, excluding from decision", "file", f, "error", err)
				}
				return nil
			}
			heights[i] = res.Height
			return nil
		})
	}
	g.Wait()

	for _, h := range heights {
		switch {
		case h > 0 && h <= 576:
			return protocol.SourceDVD
		case h >= 720:
			return protocol.SourceBluray
		}
	}
	return walkerDefault
}

func readMarker(dir string) (protocol.SourceType, bool) {
	for d := dir; d != "." && d != string(filepath.Separator) && d != ""; d = filepath.Dir(d) {
		data, err := os.ReadFile(filepath.Join(d, markerFile))
		if err == nil {
			st := protocol.SourceType(strings.ToLower(strings.TrimSpace(string(data))))
			if st == protocol.SourceDVD || st == protocol.SourceBluray {
				return st, true
			}
		}
		next := filepath.Dir(d)
		if next == d {
			break
		}
	}
	return "", false
}

func totalFiles(plans []Plan) int {
	n := 0
	for _, p := range plans {
		n += len(p.Files)
	}
	return n
}

func dirExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

// Run computes the reconciliation plan and, unless dryRun, publishes
// one envelope per batch. A mid-run publish failure aborts immediately
// — reconciliation is safe to re-run from scratch.
func Run(ctx context.Context, cfg *config.Config, prober *mediaprobe.Prober, client *bus.Client, dryRun bool) error {
	r := New(cfg, prober)
	plans, err := r.Plan(ctx)
	if err != nil {
		return err
	}

	logger.Info("reconcile plan computed", "batches", len(plans), "files", humanize.Comma(int64(totalFiles(plans))))

	for _, p := range plans {
		env := protocol.Envelope{
			Version:    protocol.SupportedVersion,
			Mode:       p.Mode,
			SourceType: p.SourceType,
			Path:       p.Dir,
			Files:      p.Files,
		}
		if dryRun {
			logger.Info("reconcile plan (dry-run)", "dir", p.Dir, "mode", p.Mode, "source_type", p.SourceType, "files", len(p.Files))
			continue
		}
		if err := client.PublishJob(env); err != nil {
			return fmt.Errorf("aborting reconcile run, publish failed for %s: %w", p.Dir, err)
		}
		logger.Info("published reconcile envelope", "dir", p.Dir, "mode", p.Mode, "source_type", p.SourceType, "files", len(p.Files))
	}
	return nil
}
